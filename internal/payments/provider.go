package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Status enumerates the normalised payment states shared across providers.
type Status string

const (
	// StatusPending indicates the payment is awaiting customer action at the redirect URL.
	StatusPending Status = "pending"
	// StatusSucceeded indicates the PSP reports the payment as captured.
	StatusSucceeded Status = "succeeded"
	// StatusCanceled indicates the PSP cancelled the payment.
	StatusCanceled Status = "canceled"
)

// ErrUnsupportedProvider is returned when the manager cannot locate a provider.
var ErrUnsupportedProvider = errors.New("payments: unsupported provider")

// PaymentRequest captures the payload required to create a redirect payment.
type PaymentRequest struct {
	Amount         decimal.Decimal
	Currency       string
	ReturnURL      string
	Description    string
	IdempotencyKey string
	Metadata       map[string]string
}

// PaymentSession is the PSP response: an identifier plus the URL the customer pays at.
type PaymentSession struct {
	ID          string
	Provider    string
	RedirectURL string
	Status      Status
}

// Provider defines the contract for PSP adapters to implement.
type Provider interface {
	CreatePayment(ctx context.Context, req PaymentRequest) (PaymentSession, error)
}

// Manager coordinates provider selection.
type Manager struct {
	providers       map[string]Provider
	defaultProvider string
	currencyRoutes  map[string]string
}

// ManagerOption configures optional behaviour when building a Manager.
type ManagerOption func(*Manager)

// WithDefaultProvider overrides the default provider for currencies without explicit routing.
func WithDefaultProvider(provider string) ManagerOption {
	return func(m *Manager) {
		m.defaultProvider = provider
	}
}

// WithCurrencyRoutes configures static currency to provider mappings.
func WithCurrencyRoutes(routes map[string]string) ManagerOption {
	return func(m *Manager) {
		if len(routes) == 0 {
			return
		}
		if m.currencyRoutes == nil {
			m.currencyRoutes = make(map[string]string, len(routes))
		}
		for k, v := range routes {
			m.currencyRoutes[strings.ToUpper(strings.TrimSpace(k))] = strings.TrimSpace(v)
		}
	}
}

// NewManager constructs a Manager over the supplied providers.
func NewManager(providers map[string]Provider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	copyMap := make(map[string]Provider, len(providers))
	for k, v := range providers {
		key := strings.TrimSpace(strings.ToLower(k))
		if key == "" || v == nil {
			return nil, fmt.Errorf("payments: invalid provider registration for key %q", k)
		}
		copyMap[key] = v
	}
	m := &Manager{providers: copyMap}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// PaymentContext defines the hints available when selecting a provider.
type PaymentContext struct {
	PreferredProvider string
	Currency          string
}

func (m *Manager) resolveProvider(ctx PaymentContext) (string, Provider, error) {
	if m == nil {
		return "", nil, errors.New("payments: manager is nil")
	}
	if provider := strings.TrimSpace(strings.ToLower(ctx.PreferredProvider)); provider != "" {
		if p, ok := m.providers[provider]; ok {
			return provider, p, nil
		}
	}
	currency := strings.ToUpper(strings.TrimSpace(ctx.Currency))
	if currency != "" && m.currencyRoutes != nil {
		if providerKey, ok := m.currencyRoutes[currency]; ok {
			provider := strings.TrimSpace(strings.ToLower(providerKey))
			if p, ok := m.providers[provider]; ok {
				return provider, p, nil
			}
		}
	}
	if def := strings.TrimSpace(strings.ToLower(m.defaultProvider)); def != "" {
		if p, ok := m.providers[def]; ok {
			return def, p, nil
		}
	}
	if len(m.providers) == 1 {
		for key, p := range m.providers {
			return key, p, nil
		}
	}
	return "", nil, ErrUnsupportedProvider
}

// CreatePayment delegates to the resolved provider and stamps the provider key on the session.
func (m *Manager) CreatePayment(ctx context.Context, paymentCtx PaymentContext, req PaymentRequest) (PaymentSession, error) {
	key, provider, err := m.resolveProvider(paymentCtx)
	if err != nil {
		return PaymentSession{}, err
	}
	session, err := provider.CreatePayment(ctx, req)
	if err != nil {
		return PaymentSession{}, err
	}
	session.Provider = key
	return session, nil
}

// minorUnits converts amount to the integer minor currency unit (kopecks, cents).
func minorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
