package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const (
	defaultEnvFile           = ".env"
	defaultPort              = "8080"
	defaultReadTimeout       = 15 * time.Second
	defaultWriteTimeout      = 30 * time.Second
	defaultIdleTimeout       = 120 * time.Second
	defaultPollTimeout       = 60
	defaultMailboxSize       = 16
	defaultStoreDriver       = StoreDriverSQLite
	defaultSQLitePath        = "storebot.db"
	defaultPaymentProvider   = "yookassa"
	defaultFlatAmount        = "199.00"
	defaultCurrency          = "RUB"
	defaultPaymentTimeout    = 15 * time.Second
	defaultYooKassaBaseURL   = "https://api.yookassa.ru/v3"
	defaultMediaDir          = "media"
	defaultBroadcastWorkers  = 8
	defaultBroadcastTimeout  = 10 * time.Second
	defaultIdempotencyTTL    = 15 * time.Minute
	defaultCleanupInterval   = 5 * time.Minute
	defaultCleanupBatchSize  = 500
	defaultSecretsFallback   = ".secrets.local"
	defaultSecretEnvironment = "local"
)

// Store drivers supported by the repository registry.
const (
	StoreDriverSQLite    = "sqlite"
	StoreDriverFirestore = "firestore"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server      ServerConfig
	Telegram    TelegramConfig
	Store       StoreConfig
	Firestore   FirestoreConfig
	PubSub      PubSubConfig
	Storage     StorageConfig
	Payments    PaymentsConfig
	FAQ         FAQConfig
	Broadcast   BroadcastConfig
	Admin       AdminConfig
	Idempotency IdempotencyConfig
	Secrets     SecretsConfig
}

// ServerConfig configures the admin HTTP server.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// TelegramConfig configures the bot transport.
type TelegramConfig struct {
	Token       string
	Debug       bool
	PollTimeout int
	AdminIDs    []int64
	BotURL      string
	MailboxSize int
}

// IsAdmin reports whether the Telegram user id is on the admin allowlist.
func (c TelegramConfig) IsAdmin(userID int64) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// StoreConfig selects the persistence driver.
type StoreConfig struct {
	Driver     string
	SQLitePath string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// PubSubConfig configures order event publishing.
type PubSubConfig struct {
	ProjectID  string
	OrderTopic string
}

// StorageConfig lists bucket and local paths for media and exports.
type StorageConfig struct {
	ExportsBucket string
	MediaDir      string
}

// PaymentsConfig configures the payment gateway call made at checkout.
type PaymentsConfig struct {
	Provider           string
	FlatAmount         decimal.Decimal
	Currency           string
	ReturnURL          string
	Timeout            time.Duration
	MarkPaidOnRedirect bool
	YooKassa           YooKassaConfig
	Stripe             StripeConfig
}

// YooKassaConfig holds YooKassa shop credentials.
type YooKassaConfig struct {
	ShopID    string
	SecretKey string
	BaseURL   string
}

// StripeConfig holds Stripe Checkout settings.
type StripeConfig struct {
	APIKey     string
	SuccessURL string
	CancelURL  string
}

// FAQConfig points at an optional FAQ YAML file overriding the embedded topics.
type FAQConfig struct {
	File string
}

// BroadcastConfig bounds the broadcast fan-out.
type BroadcastConfig struct {
	Workers int
	Timeout time.Duration
}

// AdminConfig protects the admin HTTP API.
type AdminConfig struct {
	APIToken string
}

// IdempotencyConfig controls the checkout confirm guard.
type IdempotencyConfig struct {
	TTL              time.Duration
	CleanupInterval  time.Duration
	CleanupBatchSize int
}

// SecretsConfig configures Secret Manager resolution.
type SecretsConfig struct {
	ProjectID    string
	Environment  string
	FallbackFile string
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError indicates that one or more required secrets failed to resolve.
type MissingSecretsError struct {
	names []string
}

// Error implements the error interface.
func (e *MissingSecretsError) Error() string {
	if e == nil || len(e.names) == 0 {
		return "missing required secrets"
	}
	redacted := make([]string, 0, len(e.names))
	for _, name := range e.names {
		redacted = append(redacted, redactSecretName(name))
	}
	sort.Strings(redacted)
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(redacted, ", "))
}

// Names returns the underlying secret identifiers.
func (e *MissingSecretsError) Names() []string {
	if e == nil {
		return nil
	}
	out := append([]string(nil), e.names...)
	sort.Strings(out)
	return out
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.LookupEnv, relying only on provided maps and .env files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets a custom secret resolver used for secret:// and sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// WithRequiredSecrets marks the provided secret identifiers as mandatory.
// Identifiers match the config field names recorded by the loader (e.g. "Telegram.Token").
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) {
		o.requiredSecrets = append(o.requiredSecrets, names...)
	}
}

// Lookup returns a key lookup that applies the same precedence as Load
// (explicit map > OS env > .env file). The secrets fetcher uses it to read its
// own settings before Load runs.
func Lookup(opts ...Option) (func(string) (string, bool), error) {
	options := defaultLoaderOptions()
	for _, opt := range opts {
		opt(&options)
	}
	return options.lookup()
}

func defaultLoaderOptions() loaderOptions {
	return loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
		secret: SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
			return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
		}),
	}
}

func (o loaderOptions) lookup() (func(string) (string, bool), error) {
	dotEnvValues, err := loadDotEnv(o.envFile)
	if err != nil {
		return nil, err
	}
	return func(key string) (string, bool) {
		if o.envMap != nil {
			if value, ok := o.envMap[key]; ok {
				return value, true
			}
		}
		if o.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if value, ok := dotEnvValues[key]; ok {
			return value, true
		}
		return "", false
	}, nil
}

// Load assembles the application configuration by combining defaults, .env overrides,
// environment variables, and optional secret manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := defaultLoaderOptions()
	for _, opt := range opts {
		opt(&options)
	}

	lookup, err := options.lookup()
	if err != nil {
		return Config{}, err
	}

	var invalid []string
	flatAmount, err := decimal.NewFromString(stringWithDefault(lookup, "STOREBOT_PAYMENT_FLAT_AMOUNT", defaultFlatAmount))
	if err != nil {
		invalid = append(invalid, "Payments.FlatAmount")
	}
	adminIDs, err := int64ListWithDefault(lookup, "STOREBOT_TELEGRAM_ADMIN_IDS")
	if err != nil {
		invalid = append(invalid, "Telegram.AdminIDs")
	}

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(lookup, "STOREBOT_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(lookup, "STOREBOT_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(lookup, "STOREBOT_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(lookup, "STOREBOT_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Telegram: TelegramConfig{
			Token:       stringWithDefault(lookup, "STOREBOT_TELEGRAM_TOKEN", ""),
			Debug:       boolWithDefault(lookup, "STOREBOT_TELEGRAM_DEBUG", false),
			PollTimeout: intWithDefault(lookup, "STOREBOT_TELEGRAM_POLL_TIMEOUT", defaultPollTimeout),
			AdminIDs:    adminIDs,
			BotURL:      stringWithDefault(lookup, "STOREBOT_TELEGRAM_BOT_URL", ""),
			MailboxSize: intWithDefault(lookup, "STOREBOT_TELEGRAM_MAILBOX_SIZE", defaultMailboxSize),
		},
		Store: StoreConfig{
			Driver:     strings.ToLower(stringWithDefault(lookup, "STOREBOT_STORE_DRIVER", defaultStoreDriver)),
			SQLitePath: stringWithDefault(lookup, "STOREBOT_SQLITE_PATH", defaultSQLitePath),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "STOREBOT_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "STOREBOT_FIRESTORE_EMULATOR_HOST", ""),
		},
		PubSub: PubSubConfig{
			ProjectID:  stringWithDefault(lookup, "STOREBOT_PUBSUB_PROJECT_ID", ""),
			OrderTopic: stringWithDefault(lookup, "STOREBOT_PUBSUB_ORDER_TOPIC", ""),
		},
		Storage: StorageConfig{
			ExportsBucket: stringWithDefault(lookup, "STOREBOT_EXPORT_BUCKET", ""),
			MediaDir:      stringWithDefault(lookup, "STOREBOT_MEDIA_DIR", defaultMediaDir),
		},
		Payments: PaymentsConfig{
			Provider:           strings.ToLower(stringWithDefault(lookup, "STOREBOT_PAYMENT_PROVIDER", defaultPaymentProvider)),
			FlatAmount:         flatAmount,
			Currency:           strings.ToUpper(stringWithDefault(lookup, "STOREBOT_PAYMENT_CURRENCY", defaultCurrency)),
			ReturnURL:          stringWithDefault(lookup, "STOREBOT_PAYMENT_RETURN_URL", ""),
			Timeout:            durationWithDefault(lookup, "STOREBOT_PAYMENT_TIMEOUT", defaultPaymentTimeout),
			MarkPaidOnRedirect: boolWithDefault(lookup, "STOREBOT_PAYMENT_MARK_PAID_ON_REDIRECT", true),
			YooKassa: YooKassaConfig{
				ShopID:    stringWithDefault(lookup, "STOREBOT_YOOKASSA_SHOP_ID", ""),
				SecretKey: stringWithDefault(lookup, "STOREBOT_YOOKASSA_SECRET_KEY", ""),
				BaseURL:   stringWithDefault(lookup, "STOREBOT_YOOKASSA_BASE_URL", defaultYooKassaBaseURL),
			},
			Stripe: StripeConfig{
				APIKey:     stringWithDefault(lookup, "STOREBOT_STRIPE_API_KEY", ""),
				SuccessURL: stringWithDefault(lookup, "STOREBOT_STRIPE_SUCCESS_URL", ""),
				CancelURL:  stringWithDefault(lookup, "STOREBOT_STRIPE_CANCEL_URL", ""),
			},
		},
		FAQ: FAQConfig{
			File: stringWithDefault(lookup, "STOREBOT_FAQ_FILE", ""),
		},
		Broadcast: BroadcastConfig{
			Workers: intWithDefault(lookup, "STOREBOT_BROADCAST_WORKERS", defaultBroadcastWorkers),
			Timeout: durationWithDefault(lookup, "STOREBOT_BROADCAST_TIMEOUT", defaultBroadcastTimeout),
		},
		Admin: AdminConfig{
			APIToken: stringWithDefault(lookup, "STOREBOT_ADMIN_API_TOKEN", ""),
		},
		Idempotency: IdempotencyConfig{
			TTL:              durationWithDefault(lookup, "STOREBOT_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupInterval:  durationWithDefault(lookup, "STOREBOT_IDEMPOTENCY_CLEANUP_INTERVAL", defaultCleanupInterval),
			CleanupBatchSize: intWithDefault(lookup, "STOREBOT_IDEMPOTENCY_CLEANUP_BATCH", defaultCleanupBatchSize),
		},
		Secrets: SecretsConfig{
			ProjectID:    stringWithDefault(lookup, "STOREBOT_SECRETS_PROJECT_ID", ""),
			Environment:  strings.ToLower(stringWithDefault(lookup, "STOREBOT_SECRETS_ENVIRONMENT", defaultSecretEnvironment)),
			FallbackFile: stringWithDefault(lookup, "STOREBOT_SECRETS_FALLBACK_FILE", defaultSecretsFallback),
		},
	}

	// Return URL falls back to the bot link, matching the redirect back to the chat.
	if cfg.Payments.ReturnURL == "" {
		cfg.Payments.ReturnURL = cfg.Telegram.BotURL
	}
	if cfg.Payments.Stripe.SuccessURL == "" {
		cfg.Payments.Stripe.SuccessURL = cfg.Payments.ReturnURL
	}
	if cfg.Payments.Stripe.CancelURL == "" {
		cfg.Payments.Stripe.CancelURL = cfg.Payments.ReturnURL
	}
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firestore.ProjectID
	}
	if cfg.Secrets.ProjectID == "" {
		cfg.Secrets.ProjectID = cfg.Firestore.ProjectID
	}

	resolved := make(map[string]string)
	secretFields := []struct {
		name  string
		field *string
	}{
		{"Telegram.Token", &cfg.Telegram.Token},
		{"Payments.YooKassa.SecretKey", &cfg.Payments.YooKassa.SecretKey},
		{"Payments.Stripe.APIKey", &cfg.Payments.Stripe.APIKey},
		{"Admin.APIToken", &cfg.Admin.APIToken},
	}
	for _, target := range secretFields {
		value, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = value
		resolved[target.name] = strings.TrimSpace(value)
	}

	if err := validateConfig(cfg, invalid); err != nil {
		return Config{}, err
	}

	if missing := findMissingSecrets(options.requiredSecrets, resolved); missing != nil {
		return Config{}, missing
	}

	return cfg, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if value == "" || !isSecretReference(value) {
		return value, nil
	}
	normalized := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: normalized, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, normalized)
	if err != nil {
		return "", &SecretError{Ref: normalized, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config, invalid []string) error {
	missing := append([]string(nil), invalid...)

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	switch cfg.Store.Driver {
	case StoreDriverSQLite:
		if strings.TrimSpace(cfg.Store.SQLitePath) == "" {
			missing = append(missing, "Store.SQLitePath")
		}
	case StoreDriverFirestore:
		if cfg.Firestore.ProjectID == "" {
			missing = append(missing, "Firestore.ProjectID")
		}
	default:
		missing = append(missing, "Store.Driver")
	}
	if cfg.Payments.FlatAmount.Sign() <= 0 {
		missing = append(missing, "Payments.FlatAmount")
	}
	if len(cfg.Payments.Currency) != 3 {
		missing = append(missing, "Payments.Currency")
	}
	if cfg.Payments.Timeout <= 0 {
		missing = append(missing, "Payments.Timeout")
	}
	switch cfg.Payments.Provider {
	case "yookassa":
		if cfg.Payments.YooKassa.ShopID == "" {
			missing = append(missing, "Payments.YooKassa.ShopID")
		}
		if cfg.Payments.YooKassa.SecretKey == "" {
			missing = append(missing, "Payments.YooKassa.SecretKey")
		}
	case "stripe":
		if cfg.Payments.Stripe.APIKey == "" {
			missing = append(missing, "Payments.Stripe.APIKey")
		}
	default:
		missing = append(missing, "Payments.Provider")
	}
	if cfg.Payments.ReturnURL == "" {
		missing = append(missing, "Payments.ReturnURL")
	}
	if cfg.Telegram.MailboxSize <= 0 {
		missing = append(missing, "Telegram.MailboxSize")
	}
	if cfg.Broadcast.Workers <= 0 {
		missing = append(missing, "Broadcast.Workers")
	}
	if cfg.Idempotency.TTL <= 0 {
		missing = append(missing, "Idempotency.TTL")
	}
	if cfg.Idempotency.CleanupInterval <= 0 {
		missing = append(missing, "Idempotency.CleanupInterval")
	}
	if cfg.Idempotency.CleanupBatchSize <= 0 {
		missing = append(missing, "Idempotency.CleanupBatchSize")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func findMissingSecrets(required []string, resolved map[string]string) *MissingSecretsError {
	var missing []string
	seen := make(map[string]struct{})
	for _, name := range required {
		trimmed := strings.TrimSpace(name)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		if strings.TrimSpace(resolved[trimmed]) == "" {
			missing = append(missing, trimmed)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &MissingSecretsError{names: missing}
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}

func redactSecretName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:8])
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	values, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", path, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}

func csvWithDefault(lookup func(string) (string, bool), key string) []string {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func int64ListWithDefault(lookup func(string) (string, bool), key string) ([]int64, error) {
	parts := csvWithDefault(lookup, key)
	out := make([]int64, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("config: %s: %w", key, err)
		}
		out = append(out, id)
	}
	return out, nil
}
