package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/oklog/ulid/v2"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/hanko-field/storebot/internal/conversation"
	"github.com/hanko-field/storebot/internal/platform/config"
	"github.com/hanko-field/storebot/internal/platform/observability"
	"github.com/hanko-field/storebot/internal/platform/requestctx"
	"github.com/hanko-field/storebot/internal/services"
)

// UpdateSource delivers updates by long polling. *tgbotapi.BotAPI satisfies it.
type UpdateSource interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Deps wires the bot to its services.
type Deps struct {
	Client    Client
	Updates   UpdateSource
	Users     services.UserService
	Navigator services.NavigatorService
	Carts     services.CartService
	Checkout  services.CheckoutService
	FAQ       services.FAQService
	Exports   services.ExportService
	States    conversation.Store
	Media     ImageResolver
	Telegram  config.TelegramConfig
	// ExportDir holds spreadsheets while they are uploaded. Defaults to the OS temp dir.
	ExportDir   string
	Logger      *zap.Logger
	IDGenerator func() string
}

// Bot routes Telegram updates to the storefront services.
type Bot struct {
	updates    UpdateSource
	render     *Renderer
	users      services.UserService
	navigator  services.NavigatorService
	carts      services.CartService
	checkout   services.CheckoutService
	faq        services.FAQService
	exports    services.ExportService
	states     conversation.Store
	telegram   config.TelegramConfig
	exportDir  string
	logger     *zap.Logger
	newID      func() string
	dispatcher *dispatcher
}

// New validates deps and constructs a bot.
func New(deps Deps) (*Bot, error) {
	switch {
	case deps.Client == nil:
		return nil, errors.New("bot: client is required")
	case deps.Users == nil:
		return nil, errors.New("bot: user service is required")
	case deps.Navigator == nil:
		return nil, errors.New("bot: navigator service is required")
	case deps.Carts == nil:
		return nil, errors.New("bot: cart service is required")
	case deps.Checkout == nil:
		return nil, errors.New("bot: checkout service is required")
	case deps.FAQ == nil:
		return nil, errors.New("bot: faq service is required")
	case deps.States == nil:
		return nil, errors.New("bot: conversation store is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	newID := deps.IDGenerator
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}

	b := &Bot{
		updates:   deps.Updates,
		render:    NewRenderer(deps.Client, deps.Media),
		users:     deps.Users,
		navigator: deps.Navigator,
		carts:     deps.Carts,
		checkout:  deps.Checkout,
		faq:       deps.FAQ,
		exports:   deps.Exports,
		states:    deps.States,
		telegram:  deps.Telegram,
		exportDir: strings.TrimSpace(deps.ExportDir),
		logger:    logger.Named("bot"),
		newID:     newID,
	}
	b.dispatcher = newDispatcher(deps.Telegram.MailboxSize, 0, b.HandleUpdate)
	return b, nil
}

// Renderer exposes the message renderer, which also delivers broadcasts.
func (b *Bot) Renderer() *Renderer {
	return b.render
}

// Run long-polls for updates until ctx is cancelled, then waits for in-flight updates.
func (b *Bot) Run(ctx context.Context) error {
	if b.updates == nil {
		return errors.New("bot: update source is required")
	}
	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.telegram.PollTimeout
	updates := b.updates.GetUpdatesChan(u)
	defer b.dispatcher.wait()

	b.logger.Info("bot.polling", zap.Int("timeout", u.Timeout), zap.Int("mailboxSize", b.telegram.MailboxSize))
	for {
		select {
		case <-ctx.Done():
			b.updates.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			chatID := updateChatID(update)
			if !b.dispatcher.dispatch(ctx, chatID, update) {
				b.logger.Warn("bot.update_dropped",
					zap.Int("updateID", update.UpdateID),
					zap.Int64("chatID", chatID),
					zap.String("kind", updateKind(update)),
				)
			}
		}
	}
}

// HandleUpdate processes one update with its own span and logger. Handler failures are
// logged and answered with a generic error.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	kind := updateKind(update)
	chatID := updateChatID(update)
	ctx, span := observability.StartUpdateSpan(ctx, kind, update.UpdateID, chatID)
	defer span.End()

	fields := []zap.Field{zap.Int("updateID", update.UpdateID), zap.Int64("chatID", chatID), zap.String("kind", kind)}
	if trace, ok := requestctx.Trace(ctx); ok {
		fields = append(fields, zap.String("traceID", trace.TraceID))
	}
	logger := b.logger.With(fields...)
	ctx = requestctx.WithLogger(ctx, logger)
	if from := update.SentFrom(); from != nil {
		ctx = requestctx.WithChat(ctx, requestctx.Chat{
			ChatID:   chatID,
			UserID:   from.ID,
			Username: from.UserName,
			Admin:    b.telegram.IsAdmin(from.ID),
		})
	}

	start := time.Now()
	err := b.safeRoute(ctx, update)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		logger.Error("bot.update_failed", zap.Error(err), zap.Duration("duration", time.Since(start)))
		b.replyError(ctx, update)
		return
	}
	logger.Debug("bot.update_handled", zap.Duration("duration", time.Since(start)))
}

func (b *Bot) safeRoute(ctx context.Context, update tgbotapi.Update) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("bot: panic: %v", rec)
		}
	}()
	return b.route(ctx, update)
}

func (b *Bot) replyError(ctx context.Context, update tgbotapi.Update) {
	logger := requestctx.Logger(ctx)
	switch {
	case update.CallbackQuery != nil:
		if err := b.render.Answer(ctx, update.CallbackQuery.ID, textGenericError, true); err != nil {
			logger.Debug("bot.error_reply_failed", zap.Error(err))
		}
	case update.Message != nil:
		if err := b.render.Send(ctx, update.Message.Chat.ID, textGenericError, nil); err != nil {
			logger.Debug("bot.error_reply_failed", zap.Error(err))
		}
	}
}

func updateKind(update tgbotapi.Update) string {
	switch {
	case update.Message != nil && update.Message.IsCommand():
		return "command"
	case update.Message != nil:
		return "message"
	case update.CallbackQuery != nil:
		return "callback"
	case update.InlineQuery != nil:
		return "inline_query"
	default:
		return "other"
	}
}

// updateChatID keys the mailbox. Inline queries have no chat and use the sender id.
func updateChatID(update tgbotapi.Update) int64 {
	if chat := update.FromChat(); chat != nil {
		return chat.ID
	}
	if from := update.SentFrom(); from != nil {
		return from.ID
	}
	return 0
}
