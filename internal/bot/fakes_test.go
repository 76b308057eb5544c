package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/hanko-field/storebot/internal/conversation"
	domain "github.com/hanko-field/storebot/internal/domain"
	"github.com/hanko-field/storebot/internal/payments"
	"github.com/hanko-field/storebot/internal/platform/config"
	"github.com/hanko-field/storebot/internal/platform/idempotency"
	psqlite "github.com/hanko-field/storebot/internal/platform/sqlite"
	"github.com/hanko-field/storebot/internal/platform/storage"
	"github.com/hanko-field/storebot/internal/repositories/sqlite"
	"github.com/hanko-field/storebot/internal/services"
)

const (
	testChatID  int64 = 4242
	testAdminID int64 = 9001
)

type fakeClient struct {
	mu       sync.Mutex
	sent     []tgbotapi.Chattable
	requests []tgbotapi.Chattable
	sendErr  func(tgbotapi.Chattable) error
}

func (c *fakeClient) Send(msg tgbotapi.Chattable) (tgbotapi.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		if err := c.sendErr(msg); err != nil {
			return tgbotapi.Message{}, err
		}
	}
	c.sent = append(c.sent, msg)
	return tgbotapi.Message{MessageID: len(c.sent)}, nil
}

func (c *fakeClient) Request(msg tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, msg)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (c *fakeClient) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = nil
	c.requests = nil
}

// last returns the most recent successfully sent chattable.
func (c *fakeClient) last(t *testing.T) tgbotapi.Chattable {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.sent, "nothing was sent")
	return c.sent[len(c.sent)-1]
}

// lastText returns the text and inline keyboard of the most recent text message or edit.
func (c *fakeClient) lastText(t *testing.T) (string, *tgbotapi.InlineKeyboardMarkup) {
	t.Helper()
	switch msg := c.last(t).(type) {
	case tgbotapi.MessageConfig:
		keyboard, _ := msg.ReplyMarkup.(*tgbotapi.InlineKeyboardMarkup)
		return msg.Text, keyboard
	case tgbotapi.EditMessageTextConfig:
		return msg.Text, msg.ReplyMarkup
	default:
		t.Fatalf("last sent message is %T, want text", msg)
		return "", nil
	}
}

// answers returns the callback answers recorded so far.
func (c *fakeClient) answers() []tgbotapi.CallbackConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []tgbotapi.CallbackConfig
	for _, req := range c.requests {
		if answer, ok := req.(tgbotapi.CallbackConfig); ok {
			out = append(out, answer)
		}
	}
	return out
}

func (c *fakeClient) deletes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, req := range c.requests {
		if _, ok := req.(tgbotapi.DeleteMessageConfig); ok {
			n++
		}
	}
	return n
}

func callbackDataOf(keyboard *tgbotapi.InlineKeyboardMarkup) []string {
	if keyboard == nil {
		return nil
	}
	var out []string
	for _, row := range keyboard.InlineKeyboard {
		for _, btn := range row {
			switch {
			case btn.CallbackData != nil:
				out = append(out, *btn.CallbackData)
			case btn.URL != nil:
				out = append(out, *btn.URL)
			}
		}
	}
	return out
}

type fakeProvider struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (p *fakeProvider) CreatePayment(_ context.Context, req payments.PaymentRequest) (payments.PaymentSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return payments.PaymentSession{}, p.err
	}
	return payments.PaymentSession{
		ID:          "pay-" + strconv.Itoa(p.calls),
		RedirectURL: "https://pay.example/session/" + strconv.Itoa(p.calls),
		Status:      payments.StatusPending,
	}, nil
}

func (p *fakeProvider) failWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

type fakeImages struct {
	image storage.Image
	err   error
}

func (f fakeImages) Resolve(context.Context, string) (storage.Image, error) {
	return f.image, f.err
}

type failingStore struct {
	conversation.Store
}

func (failingStore) Load(context.Context, int64) (conversation.State, error) {
	return nil, errors.New("store offline")
}

type botFixture struct {
	t        *testing.T
	ctx      context.Context
	client   *fakeClient
	registry *sqlite.Registry
	states   *conversation.MemoryStore
	provider *fakeProvider
	carts    services.CartService
	bot      *Bot
	nextID   int
	now      time.Time
}

func newBotFixture(t *testing.T, configure ...func(*Deps)) *botFixture {
	t.Helper()
	ctx := context.Background()
	db, err := psqlite.Open(ctx, ":memory:")
	require.NoError(t, err)
	registry, err := sqlite.NewRegistry(db)
	require.NoError(t, err)
	t.Cleanup(func() { _ = registry.Close(ctx) })

	f := &botFixture{
		t:        t,
		ctx:      ctx,
		client:   &fakeClient{},
		registry: registry,
		states:   conversation.NewMemoryStore(),
		provider: &fakeProvider{},
		now:      time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return f.now }
	f.seedCatalog()

	users, err := services.NewUserService(services.UserServiceDeps{Repository: registry.Users(), Clock: clock})
	require.NoError(t, err)
	navigator, err := services.NewNavigatorService(services.NavigatorServiceDeps{Catalog: registry.Catalog()})
	require.NoError(t, err)
	carts, err := services.NewCartService(services.CartServiceDeps{Repository: registry.Carts(), Clock: clock})
	require.NoError(t, err)
	manager, err := payments.NewManager(map[string]payments.Provider{"fake": f.provider})
	require.NoError(t, err)
	checkout, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Carts:       registry.Carts(),
		Orders:      registry.Orders(),
		Payments:    manager,
		Idempotency: idempotency.NewMemoryStore(),
		Settings: services.PaymentSettings{
			Provider:           "fake",
			Amount:             decimal.RequireFromString("199.00"),
			Currency:           "RUB",
			ReturnURL:          "https://t.me/storebot",
			MarkPaidOnRedirect: true,
		},
		Clock: clock,
		IDGenerator: func() string {
			f.nextID++
			return fmt.Sprintf("ord-%d", f.nextID)
		},
	})
	require.NoError(t, err)
	faq, err := services.NewFAQService("")
	require.NoError(t, err)
	exports, err := services.NewExportService(services.ExportServiceDeps{Orders: registry.Orders(), Clock: clock})
	require.NoError(t, err)

	attempts := 0
	deps := Deps{
		Client:    f.client,
		Users:     users,
		Navigator: navigator,
		Carts:     carts,
		Checkout:  checkout,
		FAQ:       faq,
		Exports:   exports,
		States:    f.states,
		Telegram:  config.TelegramConfig{AdminIDs: []int64{testAdminID}, MailboxSize: 4},
		ExportDir: t.TempDir(),
		IDGenerator: func() string {
			attempts++
			return fmt.Sprintf("attempt-%d", attempts)
		},
	}
	for _, fn := range configure {
		fn(&deps)
	}
	b, err := New(deps)
	require.NoError(t, err)
	f.bot = b
	f.carts = carts
	return f
}

func (f *botFixture) seedCatalog() {
	w := f.registry.CatalogWriter()
	require.NoError(f.t, w.InsertCategory(f.ctx, domain.Category{ID: "cat-1", Name: "Одежда", CreatedAt: f.now}))
	require.NoError(f.t, w.InsertCategory(f.ctx, domain.Category{ID: "cat-2", Name: "Сумки", CreatedAt: f.now}))
	require.NoError(f.t, w.InsertSubcategory(f.ctx, domain.Subcategory{ID: "sub-1", CategoryID: "cat-1", Name: "Футболки", CreatedAt: f.now}))
	require.NoError(f.t, w.InsertSubcategory(f.ctx, domain.Subcategory{ID: "sub-2", CategoryID: "cat-1", Name: "Шарфы", CreatedAt: f.now}))
	for _, id := range []string{"p-1", "p-2", "p-3"} {
		require.NoError(f.t, w.InsertProduct(f.ctx, domain.Product{
			ID:            id,
			SubcategoryID: "sub-1",
			Description:   "Футболка " + id,
			CreatedAt:     f.now,
		}))
	}
}

func (f *botFixture) handle(update tgbotapi.Update) {
	f.t.Helper()
	f.bot.HandleUpdate(f.ctx, update)
}

func (f *botFixture) command(from int64, command string) {
	f.t.Helper()
	f.handle(commandUpdate(from, command))
}

func (f *botFixture) text(text string) {
	f.t.Helper()
	f.handle(tgbotapi.Update{UpdateID: 1, Message: &tgbotapi.Message{
		MessageID: 100,
		From:      testUser(testChatID),
		Chat:      &tgbotapi.Chat{ID: testChatID},
		Text:      text,
	}})
}

func (f *botFixture) press(data string) {
	f.t.Helper()
	f.handle(callbackUpdate(testChatID, 10, false, data))
}

func (f *botFixture) state() conversation.State {
	f.t.Helper()
	state, err := f.states.Load(f.ctx, testChatID)
	require.NoError(f.t, err)
	return state
}

func (f *botFixture) fillCart(productID string, quantity int) {
	f.t.Helper()
	_, _, err := f.registry.Users().GetOrCreate(f.ctx, domain.User{TelegramID: testChatID, FirstName: "Анна", RegisteredAt: f.now})
	require.NoError(f.t, err)
	require.NoError(f.t, f.carts.AddOrReplace(f.ctx, testChatID, productID, quantity))
}

func testUser(id int64) *tgbotapi.User {
	return &tgbotapi.User{ID: id, FirstName: "Анна", UserName: "anna"}
}

func commandUpdate(from int64, command string) tgbotapi.Update {
	text := "/" + command
	return tgbotapi.Update{UpdateID: 1, Message: &tgbotapi.Message{
		MessageID: 100,
		From:      testUser(from),
		Chat:      &tgbotapi.Chat{ID: from},
		Text:      text,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(text)}},
	}}
}

func callbackUpdate(chatID int64, messageID int, photo bool, data string) tgbotapi.Update {
	msg := &tgbotapi.Message{MessageID: messageID, Chat: &tgbotapi.Chat{ID: chatID}}
	if photo {
		msg.Photo = []tgbotapi.PhotoSize{{FileID: "photo"}}
	}
	return tgbotapi.Update{UpdateID: 2, CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb-" + data,
		From:    testUser(chatID),
		Message: msg,
		Data:    data,
	}}
}
