package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	domain "github.com/hanko-field/storebot/internal/domain"
	"github.com/hanko-field/storebot/internal/platform/requestctx"
	"github.com/hanko-field/storebot/internal/services"
)

// session is the per-update view handlers work with.
type session struct {
	chatID     int64
	user       *tgbotapi.User
	target     Target
	callbackID string
	// notice is the callback answer text, shown as an alert.
	notice string
}

func (s *session) userID() int64 {
	if s.user == nil {
		return 0
	}
	return s.user.ID
}

func (s *session) firstName() string {
	if s.user == nil {
		return ""
	}
	return s.user.FirstName
}

type callbackHandler func(ctx context.Context, s *session, argument string) error

func (b *Bot) callbackRoutes() map[string]callbackHandler {
	return map[string]callbackHandler{
		cbShowCatalog:       b.showCatalog,
		cbBackToCategories:  b.showCatalog,
		cbCategory:          b.chooseCategory,
		cbSubcategory:       b.chooseSubcategory,
		cbBackToSubcategory: b.backToSubcategory,
		cbNextProduct:       b.nextProduct,
		cbPrevProduct:       b.prevProduct,
		cbAddToCart:         b.addToCart,
		cbConfirmAdd:        b.confirmAdd,
		cbCancelAdd:         b.cancelAdd,
		cbViewCart:          b.viewCart,
		cbClearCart:         b.clearCart,
		cbRemoveFromCart:    b.removeFromCart,
		cbCheckout:          b.previewCheckout,
		cbConfirmOrder:      b.startCheckout,
		cbCompleteOrder:     b.completeOrder,
		cbCancelOrder:       b.cancelOrder,
		cbShowFAQ:           b.showFAQ,
		cbFAQTopic:          b.showFAQTopic,
		cbBackToStart:       b.backToStart,
		cbNoop:              func(context.Context, *session, string) error { return nil },
	}
}

func (b *Bot) route(ctx context.Context, update tgbotapi.Update) error {
	switch {
	case update.Message != nil:
		return b.routeMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		return b.routeCallback(ctx, update.CallbackQuery)
	case update.InlineQuery != nil:
		return b.answerInlineQuery(ctx, update.InlineQuery)
	}
	return nil
}

func (b *Bot) routeMessage(ctx context.Context, msg *tgbotapi.Message) error {
	if msg.Chat == nil {
		return nil
	}
	s := &session{chatID: msg.Chat.ID, user: msg.From, target: Target{ChatID: msg.Chat.ID}}
	if msg.IsCommand() {
		switch msg.Command() {
		case "start":
			return b.start(ctx, s)
		case "catalog":
			return b.showCatalog(ctx, s, "")
		case "cart":
			return b.viewCart(ctx, s, "")
		case "faq", "help":
			return b.showFAQ(ctx, s, "")
		case "admin_xlsx":
			return b.exportOrders(ctx, s)
		}
		requestctx.Logger(ctx).Debug("bot.unknown_command", zap.String("command", msg.Command()))
		return nil
	}
	if strings.TrimSpace(msg.Text) == textCatalogReplyTrigger {
		return b.showCatalog(ctx, s, "")
	}
	return b.handleText(ctx, s, msg.Text)
}

func (b *Bot) routeCallback(ctx context.Context, query *tgbotapi.CallbackQuery) error {
	s := &session{user: query.From, callbackID: query.ID, target: targetOf(query.Message)}
	s.chatID = s.target.ChatID
	if s.chatID == 0 && query.From != nil {
		s.chatID = query.From.ID
		s.target.ChatID = query.From.ID
	}

	action, argument := parseCallback(query.Data)
	handler, ok := b.callbackRoutes()[action]
	if !ok {
		requestctx.Logger(ctx).Debug("bot.unknown_callback", zap.String("data", query.Data))
		return b.render.Answer(ctx, query.ID, "", false)
	}
	if err := handler(ctx, s, argument); err != nil {
		return err
	}
	return b.render.Answer(ctx, query.ID, s.notice, s.notice != "")
}

// notify tells the user about a rejected action: as a callback alert, or as a message for commands.
func (b *Bot) notify(ctx context.Context, s *session, text string) error {
	if s.callbackID != "" {
		s.notice = text
		return nil
	}
	return b.render.Send(ctx, s.chatID, text, nil)
}

func (b *Bot) start(ctx context.Context, s *session) error {
	user, created, err := b.register(ctx, s)
	if err != nil {
		return err
	}
	if err := b.states.Clear(ctx, s.chatID); err != nil {
		return err
	}
	empty, err := b.carts.IsEmpty(ctx, user.TelegramID)
	if err != nil {
		return err
	}
	return b.render.Send(ctx, s.chatID, greetingText(s.firstName(), created), mainMenuKeyboard(empty))
}

func (b *Bot) backToStart(ctx context.Context, s *session, _ string) error {
	user, _, err := b.register(ctx, s)
	if err != nil {
		return err
	}
	empty, err := b.carts.IsEmpty(ctx, user.TelegramID)
	if err != nil {
		return err
	}
	return b.render.Show(ctx, s.target, welcomeBackText(s.firstName()), mainMenuKeyboard(empty))
}

func (b *Bot) register(ctx context.Context, s *session) (domain.User, bool, error) {
	cmd := services.RegisterUserCommand{TelegramID: s.userID()}
	if s.user != nil {
		cmd.Username = s.user.UserName
		cmd.FirstName = s.user.FirstName
	}
	return b.users.Register(ctx, cmd)
}
