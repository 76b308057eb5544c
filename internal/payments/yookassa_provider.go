package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultYooKassaBaseURL = "https://api.yookassa.ru/v3"
	yooKassaErrorBodyLimit = 4 << 10
)

// YooKassaLogger defines the logging contract for YooKassa provider operations.
type YooKassaLogger func(ctx context.Context, event string, fields map[string]any)

// YooKassaProviderConfig configures the YooKassaProvider.
type YooKassaProviderConfig struct {
	ShopID     string
	SecretKey  string
	BaseURL    string
	HTTPClient *http.Client
	Logger     YooKassaLogger
}

// YooKassaProvider creates redirect payments through the YooKassa REST API.
type YooKassaProvider struct {
	shopID    string
	secretKey string
	baseURL   string
	http      *http.Client
	logger    YooKassaLogger
}

// YooKassaError is the error object returned by the API.
type YooKassaError struct {
	StatusCode  int    `json:"-"`
	Type        string `json:"type"`
	ID          string `json:"id"`
	Code        string `json:"code"`
	Description string `json:"description"`
	Parameter   string `json:"parameter"`
}

func (e *YooKassaError) Error() string {
	if e.Parameter != "" {
		return fmt.Sprintf("yookassa: %d %s: %s (parameter %s)", e.StatusCode, e.Code, e.Description, e.Parameter)
	}
	return fmt.Sprintf("yookassa: %d %s: %s", e.StatusCode, e.Code, e.Description)
}

type yooKassaAmount struct {
	Value    string `json:"value"`
	Currency string `json:"currency"`
}

type yooKassaConfirmation struct {
	Type            string `json:"type"`
	ReturnURL       string `json:"return_url,omitempty"`
	ConfirmationURL string `json:"confirmation_url,omitempty"`
}

type yooKassaPaymentRequest struct {
	Amount       yooKassaAmount       `json:"amount"`
	Confirmation yooKassaConfirmation `json:"confirmation"`
	Capture      bool                 `json:"capture"`
	Description  string               `json:"description,omitempty"`
	Metadata     map[string]string    `json:"metadata,omitempty"`
}

type yooKassaPayment struct {
	ID           string               `json:"id"`
	Status       string               `json:"status"`
	Paid         bool                 `json:"paid"`
	Confirmation yooKassaConfirmation `json:"confirmation"`
}

// NewYooKassaProvider constructs a YooKassa Provider.
func NewYooKassaProvider(cfg YooKassaProviderConfig) (*YooKassaProvider, error) {
	shopID := strings.TrimSpace(cfg.ShopID)
	secret := strings.TrimSpace(cfg.SecretKey)
	if shopID == "" || secret == "" {
		return nil, errors.New("yookassa: shop id and secret key are required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultYooKassaBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &YooKassaProvider{
		shopID:    shopID,
		secretKey: secret,
		baseURL:   baseURL,
		http:      httpClient,
		logger:    logger,
	}, nil
}

// CreatePayment posts a captured redirect payment and returns its confirmation URL.
func (p *YooKassaProvider) CreatePayment(ctx context.Context, req PaymentRequest) (PaymentSession, error) {
	if p == nil {
		return PaymentSession{}, errors.New("yookassa: provider is nil")
	}

	body, err := json.Marshal(yooKassaPaymentRequest{
		Amount: yooKassaAmount{
			Value:    req.Amount.StringFixed(2),
			Currency: strings.ToUpper(req.Currency),
		},
		Confirmation: yooKassaConfirmation{Type: "redirect", ReturnURL: req.ReturnURL},
		Capture:      true,
		Description:  req.Description,
		Metadata:     req.Metadata,
	})
	if err != nil {
		return PaymentSession{}, fmt.Errorf("yookassa: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/payments", bytes.NewReader(body))
	if err != nil {
		return PaymentSession{}, fmt.Errorf("yookassa: build request: %w", err)
	}
	httpReq.SetBasicAuth(p.shopID, p.secretKey)
	httpReq.Header.Set("Content-Type", "application/json")
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		httpReq.Header.Set("Idempotence-Key", key)
	}

	resp, err := p.http.Do(httpReq)
	if err != nil {
		return PaymentSession{}, fmt.Errorf("yookassa: create payment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &YooKassaError{StatusCode: resp.StatusCode}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, yooKassaErrorBodyLimit))
		if err := json.Unmarshal(raw, apiErr); err != nil || apiErr.Code == "" {
			apiErr.Code = http.StatusText(resp.StatusCode)
			apiErr.Description = strings.TrimSpace(string(raw))
		}
		return PaymentSession{}, apiErr
	}

	var payment yooKassaPayment
	if err := json.NewDecoder(resp.Body).Decode(&payment); err != nil {
		return PaymentSession{}, fmt.Errorf("yookassa: decode response: %w", err)
	}
	if payment.Confirmation.ConfirmationURL == "" {
		return PaymentSession{}, fmt.Errorf("yookassa: payment %s has no confirmation url", payment.ID)
	}

	p.logger(ctx, "payments.yookassa.payment.created", map[string]any{
		"paymentId": payment.ID,
		"status":    payment.Status,
	})

	return PaymentSession{
		ID:          payment.ID,
		RedirectURL: payment.Confirmation.ConfirmationURL,
		Status:      yooKassaStatus(payment),
	}, nil
}

func yooKassaStatus(payment yooKassaPayment) Status {
	switch {
	case payment.Paid || payment.Status == "succeeded":
		return StatusSucceeded
	case payment.Status == "canceled":
		return StatusCanceled
	default:
		return StatusPending
	}
}
