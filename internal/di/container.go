package di

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	gcs "cloud.google.com/go/storage"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/hanko-field/storebot/internal/bot"
	"github.com/hanko-field/storebot/internal/conversation"
	"github.com/hanko-field/storebot/internal/payments"
	"github.com/hanko-field/storebot/internal/platform/config"
	pfirestore "github.com/hanko-field/storebot/internal/platform/firestore"
	"github.com/hanko-field/storebot/internal/platform/idempotency"
	"github.com/hanko-field/storebot/internal/platform/jobs"
	"github.com/hanko-field/storebot/internal/platform/observability"
	psqlite "github.com/hanko-field/storebot/internal/platform/sqlite"
	"github.com/hanko-field/storebot/internal/platform/storage"
	"github.com/hanko-field/storebot/internal/repositories"
	firestorerepo "github.com/hanko-field/storebot/internal/repositories/firestore"
	sqliterepo "github.com/hanko-field/storebot/internal/repositories/sqlite"
	"github.com/hanko-field/storebot/internal/services"
)

// Services bundles the service-layer contracts the bot, the admin API and the CLI rely upon.
type Services struct {
	Users      services.UserService
	Navigator  services.NavigatorService
	Carts      services.CartService
	Checkout   services.CheckoutService
	FAQ        services.FAQService
	Exports    services.ExportService
	Catalog    services.CatalogImportService
	Broadcasts services.BroadcastService
}

// Container wires repositories, services, and transport clients for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Services     Services
	States       conversation.Store
	Idempotency  idempotency.Store
	Media        *storage.MediaResolver
	// Bot is nil when the container was built without a Telegram client.
	Bot *bot.Bot

	logger  *zap.Logger
	clock   func() time.Time
	closers []func(context.Context) error
}

type containerOptions struct {
	registry  repositories.Registry
	providers map[string]payments.Provider
	client    bot.Client
	updates   bot.UpdateSource
	telegram  bool
	clock     func() time.Time
}

// Option customises container construction.
type Option func(*containerOptions)

// WithRegistry injects a prebuilt repository registry. The container takes ownership and closes it.
func WithRegistry(reg repositories.Registry) Option {
	return func(o *containerOptions) {
		o.registry = reg
	}
}

// WithPaymentProviders replaces the providers built from configuration.
func WithPaymentProviders(providers map[string]payments.Provider) Option {
	return func(o *containerOptions) {
		o.providers = providers
	}
}

// WithTelegramClient supplies the Telegram transport instead of dialling the Bot API.
func WithTelegramClient(client bot.Client, updates bot.UpdateSource) Option {
	return func(o *containerOptions) {
		o.client = client
		o.updates = updates
		o.telegram = true
	}
}

// WithTelegram dials the Bot API with the configured token so the bot and broadcasts are available.
func WithTelegram() Option {
	return func(o *containerOptions) {
		o.telegram = true
	}
}

// WithClock overrides the clock handed to every service.
func WithClock(clock func() time.Time) Option {
	return func(o *containerOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// NewContainer constructs the runtime dependencies. Without WithTelegram or WithTelegramClient the
// bot and the broadcast service stay nil, which is enough for offline export and seeding.
func NewContainer(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*Container, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	options := containerOptions{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	c := &Container{
		Config: cfg,
		States: conversation.NewMemoryStore(),
		logger: logger,
	}
	if err := c.build(ctx, options); err != nil {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if closeErr := c.Close(closeCtx); closeErr != nil {
			logger.Warn("container cleanup after failed build", zap.Error(closeErr))
		}
		return nil, err
	}
	return c, nil
}

func (c *Container) build(ctx context.Context, options containerOptions) error {
	cfg := c.Config

	var (
		firestoreProvider *pfirestore.Provider
		err               error
	)
	reg := options.registry
	if reg == nil {
		reg, firestoreProvider, err = openRegistry(ctx, cfg)
		if err != nil {
			return err
		}
	}
	c.Repositories = reg
	c.closers = append(c.closers, reg.Close)

	idem, err := c.idempotencyStore(ctx, firestoreProvider)
	if err != nil {
		return err
	}
	c.Idempotency = idem

	var storageClient *gcs.Client
	if cfg.Storage.ExportsBucket != "" || cfg.Store.Driver == config.StoreDriverFirestore {
		storageClient, err = gcs.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("build storage client: %w", err)
		}
		c.closers = append(c.closers, func(context.Context) error { return storageClient.Close() })
	}
	var opener storage.ObjectOpener
	if storageClient != nil {
		opener = storage.GCSOpener(storageClient)
	}
	c.Media = storage.NewMediaResolver(cfg.Storage.MediaDir, opener)

	events, err := c.orderEventPublisher(ctx)
	if err != nil {
		return err
	}

	providers := options.providers
	if providers == nil {
		providers, err = buildPaymentProviders(cfg.Payments, c.logger.Named("payments"))
		if err != nil {
			return err
		}
	}
	manager, err := payments.NewManager(providers, payments.WithDefaultProvider(cfg.Payments.Provider))
	if err != nil {
		return fmt.Errorf("build payment manager: %w", err)
	}

	clock := options.clock
	c.clock = clock
	svc := Services{}
	if svc.Users, err = services.NewUserService(services.UserServiceDeps{
		Repository: reg.Users(),
		Clock:      clock,
		Logger:     c.eventLogger("users"),
	}); err != nil {
		return fmt.Errorf("build user service: %w", err)
	}
	if svc.Navigator, err = services.NewNavigatorService(services.NavigatorServiceDeps{
		Catalog: reg.Catalog(),
		Logger:  c.eventLogger("navigator"),
	}); err != nil {
		return fmt.Errorf("build navigator service: %w", err)
	}
	if svc.Carts, err = services.NewCartService(services.CartServiceDeps{
		Repository: reg.Carts(),
		Clock:      clock,
		Logger:     c.eventLogger("cart"),
	}); err != nil {
		return fmt.Errorf("build cart service: %w", err)
	}
	if svc.Checkout, err = services.NewCheckoutService(services.CheckoutServiceDeps{
		Carts:       reg.Carts(),
		Orders:      reg.Orders(),
		Payments:    manager,
		Idempotency: idem,
		Events:      events,
		Settings: services.PaymentSettings{
			Provider:           cfg.Payments.Provider,
			Amount:             cfg.Payments.FlatAmount,
			Currency:           cfg.Payments.Currency,
			ReturnURL:          cfg.Payments.ReturnURL,
			Timeout:            cfg.Payments.Timeout,
			MarkPaidOnRedirect: cfg.Payments.MarkPaidOnRedirect,
		},
		IdempotencyTTL: cfg.Idempotency.TTL,
		Clock:          clock,
		Logger:         c.eventLogger("checkout"),
	}); err != nil {
		return fmt.Errorf("build checkout service: %w", err)
	}
	if svc.FAQ, err = services.NewFAQService(cfg.FAQ.File); err != nil {
		return fmt.Errorf("build faq service: %w", err)
	}

	exportDeps := services.ExportServiceDeps{
		Orders: reg.Orders(),
		Clock:  clock,
		Logger: c.eventLogger("export"),
	}
	if cfg.Storage.ExportsBucket != "" {
		uploader, err := storage.NewUploader(storageClient, cfg.Storage.ExportsBucket)
		if err != nil {
			return fmt.Errorf("build export uploader: %w", err)
		}
		exportDeps.Archiver = uploader
	}
	if svc.Exports, err = services.NewExportService(exportDeps); err != nil {
		return fmt.Errorf("build export service: %w", err)
	}
	if svc.Catalog, err = services.NewCatalogImportService(services.CatalogImportServiceDeps{
		Writer: reg.CatalogWriter(),
		Clock:  clock,
		Logger: c.eventLogger("catalog"),
	}); err != nil {
		return fmt.Errorf("build catalog import service: %w", err)
	}
	c.Services = svc

	if !options.telegram {
		return nil
	}
	client, updates := options.client, options.updates
	if client == nil {
		api, err := tgbotapi.NewBotAPI(strings.TrimSpace(cfg.Telegram.Token))
		if err != nil {
			return fmt.Errorf("connect telegram bot api: %w", err)
		}
		api.Debug = cfg.Telegram.Debug
		c.logger.Info("telegram authorised", zap.String("username", api.Self.UserName))
		client, updates = api, api
	}

	b, err := bot.New(bot.Deps{
		Client:    client,
		Updates:   updates,
		Users:     svc.Users,
		Navigator: svc.Navigator,
		Carts:     svc.Carts,
		Checkout:  svc.Checkout,
		FAQ:       svc.FAQ,
		Exports:   svc.Exports,
		States:    c.States,
		Media:     c.Media,
		Telegram:  cfg.Telegram,
		ExportDir: cfg.Storage.MediaDir,
		Logger:    c.logger,
	})
	if err != nil {
		return fmt.Errorf("build bot: %w", err)
	}
	c.Bot = b

	if c.Services.Broadcasts, err = services.NewBroadcastService(services.BroadcastServiceDeps{
		Broadcasts:  reg.Broadcasts(),
		Users:       reg.Users(),
		Sender:      b.Renderer(),
		Workers:     cfg.Broadcast.Workers,
		SendTimeout: cfg.Broadcast.Timeout,
		Clock:       clock,
		Logger:      c.eventLogger("broadcast"),
	}); err != nil {
		return fmt.Errorf("build broadcast service: %w", err)
	}
	return nil
}

// RunIdempotencyCleanup sweeps expired confirm reservations on the configured interval
// until ctx is done.
func (c *Container) RunIdempotencyCleanup(ctx context.Context) {
	logger := c.logger.Named("idempotency")
	idempotency.RunCleanup(ctx, c.Idempotency, c.Config.Idempotency.CleanupInterval, c.Config.Idempotency.CleanupBatchSize, c.clock,
		func(removed int, err error) {
			if err != nil {
				logger.Error("idempotency cleanup error", zap.Error(err))
				return
			}
			if removed > 0 {
				logger.Info("idempotency cleanup removed records", zap.Int("count", removed))
			}
		})
}

// Ping checks the repository store, for readiness probes.
func (c *Container) Ping(ctx context.Context) error {
	pinger, ok := c.Repositories.(interface{ Ping(context.Context) error })
	if !ok {
		return nil
	}
	return pinger.Ping(ctx)
}

// Close releases resources in reverse construction order.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}

func (c *Container) eventLogger(component string) func(context.Context, string, map[string]any) {
	return observability.NewEventLogger(c.logger.Named(component))
}

func openRegistry(ctx context.Context, cfg config.Config) (repositories.Registry, *pfirestore.Provider, error) {
	switch cfg.Store.Driver {
	case config.StoreDriverFirestore:
		provider := pfirestore.NewProvider(cfg.Firestore)
		reg, err := firestorerepo.NewRegistry(provider)
		if err != nil {
			_ = provider.Close(ctx)
			return nil, nil, fmt.Errorf("build firestore registry: %w", err)
		}
		return reg, provider, nil
	case config.StoreDriverSQLite, "":
		db, err := psqlite.Open(ctx, cfg.Store.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		reg, err := sqliterepo.NewRegistry(db)
		if err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("build sqlite registry: %w", err)
		}
		return reg, nil, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}
}

// idempotencyStore keeps confirm reservations next to the orders when Firestore is the store.
func (c *Container) idempotencyStore(ctx context.Context, provider *pfirestore.Provider) (idempotency.Store, error) {
	if provider == nil {
		return idempotency.NewMemoryStore(), nil
	}
	client, err := provider.Client(ctx)
	if err != nil {
		return nil, fmt.Errorf("build idempotency store: %w", err)
	}
	return idempotency.NewFirestoreStore(client), nil
}

func (c *Container) orderEventPublisher(ctx context.Context) (services.OrderEventPublisher, error) {
	cfg := c.Config.PubSub
	if cfg.OrderTopic == "" || cfg.ProjectID == "" {
		return services.NoopOrderEventPublisher{}, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("build pubsub client: %w", err)
	}
	c.closers = append(c.closers, func(context.Context) error { return client.Close() })
	publisher, err := jobs.NewPubSubOrderEventPublisher(client.Topic(cfg.OrderTopic))
	if err != nil {
		return nil, err
	}
	c.closers = append(c.closers, func(context.Context) error {
		publisher.Stop()
		return nil
	})
	return publisher, nil
}

// buildPaymentProviders registers every provider with credentials. The configured provider must be among them.
func buildPaymentProviders(cfg config.PaymentsConfig, logger *zap.Logger) (map[string]payments.Provider, error) {
	providers := make(map[string]payments.Provider, 2)
	if cfg.YooKassa.ShopID != "" && cfg.YooKassa.SecretKey != "" {
		yookassa, err := payments.NewYooKassaProvider(payments.YooKassaProviderConfig{
			ShopID:     cfg.YooKassa.ShopID,
			SecretKey:  cfg.YooKassa.SecretKey,
			BaseURL:    cfg.YooKassa.BaseURL,
			HTTPClient: &http.Client{Timeout: cfg.Timeout},
			Logger:     payments.YooKassaLogger(observability.NewEventLogger(logger.Named("yookassa"))),
		})
		if err != nil {
			return nil, fmt.Errorf("build yookassa provider: %w", err)
		}
		providers["yookassa"] = yookassa
	}
	if cfg.Stripe.APIKey != "" {
		stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderConfig{
			APIKey:     cfg.Stripe.APIKey,
			SuccessURL: cfg.Stripe.SuccessURL,
			CancelURL:  cfg.Stripe.CancelURL,
			Logger:     payments.StripeLogger(observability.NewEventLogger(logger.Named("stripe"))),
		})
		if err != nil {
			return nil, fmt.Errorf("build stripe provider: %w", err)
		}
		providers["stripe"] = stripeProvider
	}
	if _, ok := providers[cfg.Provider]; !ok {
		return nil, fmt.Errorf("payment provider %q is not configured", cfg.Provider)
	}
	return providers, nil
}
