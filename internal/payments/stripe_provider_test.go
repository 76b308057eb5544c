package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v78"
)

type fakeStripeSessions struct {
	params  *stripe.CheckoutSessionParams
	session *stripe.CheckoutSession
	err     error
}

func (f *fakeStripeSessions) New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.params = params
	return f.session, f.err
}

func TestStripeCreatePaymentBuildsSingleLineSession(t *testing.T) {
	sessions := &fakeStripeSessions{session: &stripe.CheckoutSession{ID: "cs_1", URL: "https://checkout.stripe.com/cs_1"}}
	provider, err := NewStripeProvider(StripeProviderConfig{Sessions: sessions, CancelURL: "https://t.me/storebot?cancel"})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	session, err := provider.CreatePayment(context.Background(), PaymentRequest{
		Amount:         decimal.RequireFromString("199.00"),
		Currency:       "RUB",
		ReturnURL:      "https://t.me/storebot",
		Description:    "Тестовый заказ #1",
		IdempotencyKey: "key-1",
		Metadata:       map[string]string{"orderId": "1"},
	})
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	if session.ID != "cs_1" || session.RedirectURL != "https://checkout.stripe.com/cs_1" || session.Status != StatusPending {
		t.Fatalf("unexpected session %+v", session)
	}

	params := sessions.params
	if params == nil || len(params.LineItems) != 1 {
		t.Fatalf("expected one line item, got %+v", params)
	}
	line := params.LineItems[0]
	if *line.PriceData.UnitAmount != 19900 || *line.PriceData.Currency != "rub" {
		t.Fatalf("unexpected price data %+v", line.PriceData)
	}
	if *params.SuccessURL != "https://t.me/storebot" || *params.CancelURL != "https://t.me/storebot?cancel" {
		t.Fatalf("unexpected urls %s %s", *params.SuccessURL, *params.CancelURL)
	}
	if params.IdempotencyKey == nil || *params.IdempotencyKey != "key-1" {
		t.Fatalf("expected idempotency key")
	}
	if params.Metadata["orderId"] != "1" {
		t.Fatalf("expected metadata copied")
	}
}

func TestStripeCreatePaymentWrapsErrors(t *testing.T) {
	boom := errors.New("boom")
	provider, _ := NewStripeProvider(StripeProviderConfig{Sessions: &fakeStripeSessions{err: boom}})
	if _, err := provider.CreatePayment(context.Background(), PaymentRequest{Amount: decimal.NewFromInt(1), Currency: "RUB"}); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestNewStripeProviderRequiresKey(t *testing.T) {
	if _, err := NewStripeProvider(StripeProviderConfig{}); err == nil {
		t.Fatalf("expected error without api key")
	}
}
