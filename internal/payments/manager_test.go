package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

type fakeProvider struct {
	calls   int
	last    PaymentRequest
	session PaymentSession
	err     error
}

func (f *fakeProvider) CreatePayment(_ context.Context, req PaymentRequest) (PaymentSession, error) {
	f.calls++
	f.last = req
	return f.session, f.err
}

func TestManagerCreatePaymentUsesPreferredProvider(t *testing.T) {
	yookassa := &fakeProvider{session: PaymentSession{ID: "yk_1"}}
	stripe := &fakeProvider{session: PaymentSession{ID: "st_1"}}

	mgr, err := NewManager(map[string]Provider{"yookassa": yookassa, "stripe": stripe})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	session, err := mgr.CreatePayment(context.Background(), PaymentContext{PreferredProvider: "Stripe"}, PaymentRequest{Currency: "RUB"})
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	if session.Provider != "stripe" || session.ID != "st_1" {
		t.Fatalf("expected stripe session, got %+v", session)
	}
	if yookassa.calls != 0 {
		t.Fatalf("expected yookassa untouched")
	}
}

func TestManagerRoutesByCurrencyThenDefault(t *testing.T) {
	yookassa := &fakeProvider{}
	stripe := &fakeProvider{}
	mgr, err := NewManager(
		map[string]Provider{"yookassa": yookassa, "stripe": stripe},
		WithCurrencyRoutes(map[string]string{"rub": "yookassa"}),
		WithDefaultProvider("stripe"),
	)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	if s, _ := mgr.CreatePayment(context.Background(), PaymentContext{Currency: "rub"}, PaymentRequest{}); s.Provider != "yookassa" {
		t.Fatalf("expected currency route to yookassa, got %q", s.Provider)
	}
	if s, _ := mgr.CreatePayment(context.Background(), PaymentContext{Currency: "USD"}, PaymentRequest{}); s.Provider != "stripe" {
		t.Fatalf("expected default stripe, got %q", s.Provider)
	}
}

func TestManagerUnsupportedProvider(t *testing.T) {
	mgr, err := NewManager(map[string]Provider{"a": &fakeProvider{}, "b": &fakeProvider{}})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	_, err = mgr.CreatePayment(context.Background(), PaymentContext{}, PaymentRequest{})
	if !errors.Is(err, ErrUnsupportedProvider) {
		t.Fatalf("expected ErrUnsupportedProvider, got %v", err)
	}
}

func TestManagerPropagatesProviderError(t *testing.T) {
	boom := errors.New("boom")
	mgr, _ := NewManager(map[string]Provider{"yookassa": &fakeProvider{err: boom}})
	if _, err := mgr.CreatePayment(context.Background(), PaymentContext{}, PaymentRequest{}); !errors.Is(err, boom) {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestNewManagerRejectsEmptyRegistration(t *testing.T) {
	if _, err := NewManager(nil); err == nil {
		t.Fatalf("expected error for empty providers")
	}
	if _, err := NewManager(map[string]Provider{" ": &fakeProvider{}}); err == nil {
		t.Fatalf("expected error for blank key")
	}
}

func TestMinorUnits(t *testing.T) {
	cases := map[string]int64{"199.00": 19900, "0.015": 2, "10": 1000}
	for in, want := range cases {
		if got := minorUnits(decimal.RequireFromString(in)); got != want {
			t.Fatalf("minorUnits(%s) = %d, want %d", in, got, want)
		}
	}
}
