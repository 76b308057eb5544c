package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripeSessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey     string
	SuccessURL string
	CancelURL  string
	Backends   *stripe.Backends
	Logger     StripeLogger
	Sessions   stripeSessionAPI
}

// StripeProvider creates Stripe Checkout sessions for the flat order amount.
type StripeProvider struct {
	sessions   stripeSessionAPI
	successURL string
	cancelURL  string
	logger     StripeLogger
}

// NewStripeProvider constructs a Stripe Provider using the given configuration.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Sessions == nil {
		return nil, errors.New("stripe: api key is required")
	}

	sessions := cfg.Sessions
	if sessions == nil {
		sc := client.New(apiKey, cfg.Backends)
		sessions = sc.CheckoutSessions
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeProvider{
		sessions:   sessions,
		successURL: strings.TrimSpace(cfg.SuccessURL),
		cancelURL:  strings.TrimSpace(cfg.CancelURL),
		logger:     logger,
	}, nil
}

// CreatePayment creates a one-line Stripe Checkout session and returns its hosted URL.
func (p *StripeProvider) CreatePayment(ctx context.Context, req PaymentRequest) (PaymentSession, error) {
	if p == nil {
		return PaymentSession{}, errors.New("stripe: provider is nil")
	}

	successURL := defaultString(p.successURL, req.ReturnURL)
	cancelURL := defaultString(p.cancelURL, req.ReturnURL)
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(successURL),
		CancelURL:  stripe.String(cancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(req.Currency)),
				UnitAmount: stripe.Int64(minorUnits(req.Amount)),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(defaultString(req.Description, "Order")),
				},
			},
		}},
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if len(req.Metadata) > 0 {
		params.Metadata = make(map[string]string, len(req.Metadata))
		for k, v := range req.Metadata {
			params.Metadata[k] = v
		}
	}

	session, err := p.sessions.New(params)
	if err != nil {
		return PaymentSession{}, fmt.Errorf("stripe: create checkout session: %w", err)
	}
	if strings.TrimSpace(session.URL) == "" {
		return PaymentSession{}, errors.New("stripe: checkout session has no url")
	}

	p.logger(ctx, "payments.stripe.session.created", map[string]any{
		"sessionId": session.ID,
		"currency":  session.Currency,
	})

	status := StatusPending
	if session.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid {
		status = StatusSucceeded
	}
	return PaymentSession{
		ID:          session.ID,
		RedirectURL: session.URL,
		Status:      status,
	}, nil
}

func defaultString(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
