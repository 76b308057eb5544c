package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"

	domain "github.com/hanko-field/storebot/internal/domain"
	"github.com/hanko-field/storebot/internal/payments"
	"github.com/hanko-field/storebot/internal/platform/idempotency"
	"github.com/hanko-field/storebot/internal/repositories"
)

const defaultPaymentTimeout = 15 * time.Second

var (
	// ErrCheckoutUnavailable indicates checkout dependencies are currently unavailable.
	ErrCheckoutUnavailable = errors.New("checkout: unavailable")
	// ErrCheckoutPaymentFailed indicates the payment request failed or timed out. The order is kept
	// as payment_failed and the cart is untouched.
	ErrCheckoutPaymentFailed = errors.New("checkout: payment failed")
	// ErrCheckoutInProgress indicates another delivery of the same confirmation is still running.
	ErrCheckoutInProgress = errors.New("checkout: confirmation already in progress")
)

var tracer = otel.Tracer("github.com/hanko-field/storebot/internal/services")

// paymentCreator abstracts payments.Manager for easier testing.
type paymentCreator interface {
	CreatePayment(ctx context.Context, paymentCtx payments.PaymentContext, req payments.PaymentRequest) (payments.PaymentSession, error)
}

// CheckoutServiceDeps wires the dependencies required by the checkout service.
type CheckoutServiceDeps struct {
	Carts          repositories.CartRepository
	Orders         repositories.OrderRepository
	Payments       paymentCreator
	Idempotency    idempotency.Store
	Events         OrderEventPublisher
	Settings       PaymentSettings
	IdempotencyTTL time.Duration
	Clock          func() time.Time
	Logger         func(ctx context.Context, event string, fields map[string]any)
	IDGenerator    func() string
}

type checkoutService struct {
	carts    repositories.CartRepository
	orders   repositories.OrderRepository
	payments paymentCreator
	guard    idempotency.Store
	events   OrderEventPublisher
	settings PaymentSettings
	ttl      time.Duration
	now      func() time.Time
	logger   func(ctx context.Context, event string, fields map[string]any)
	newID    func() string
}

// NewCheckoutService constructs a CheckoutService validating required dependencies.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Carts == nil {
		return nil, errors.New("checkout service: cart repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("checkout service: order repository is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("checkout service: payment manager is required")
	}
	if deps.Idempotency == nil {
		return nil, errors.New("checkout service: idempotency store is required")
	}
	settings := deps.Settings
	if !settings.Amount.IsPositive() {
		return nil, errors.New("checkout service: payment amount must be positive")
	}
	settings.Currency = strings.ToUpper(strings.TrimSpace(settings.Currency))
	if settings.Currency == "" {
		return nil, errors.New("checkout service: payment currency is required")
	}
	if settings.Timeout <= 0 {
		settings.Timeout = defaultPaymentTimeout
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	events := deps.Events
	if events == nil {
		events = NoopOrderEventPublisher{}
	}
	newID := deps.IDGenerator
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	ttl := deps.IdempotencyTTL
	if ttl <= 0 {
		ttl = idempotency.DefaultTTL
	}

	return &checkoutService{
		carts:    deps.Carts,
		orders:   deps.Orders,
		payments: deps.Payments,
		guard:    deps.Idempotency,
		events:   events,
		settings: settings,
		ttl:      ttl,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
		newID:  newID,
	}, nil
}

func (s *checkoutService) Preview(ctx context.Context, userID int64) ([]domain.CartItem, error) {
	if userID == 0 {
		return nil, ErrCheckoutInvalidInput
	}
	items, err := s.carts.List(ctx, userID)
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	if len(items) == 0 {
		return nil, ErrCheckoutEmptyCart
	}
	return items, nil
}

// Confirm snapshots the cart into an order, requests payment and clears the cart. Deliveries
// sharing the chat and attempt id run at most once: a completed attempt is replayed and a
// running one is rejected with ErrCheckoutInProgress.
func (s *checkoutService) Confirm(ctx context.Context, cmd ConfirmCheckoutCommand) (result CheckoutResult, err error) {
	attemptID := strings.TrimSpace(cmd.AttemptID)
	if cmd.ChatID == 0 || cmd.UserID == 0 || attemptID == "" {
		return CheckoutResult{}, ErrCheckoutInvalidInput
	}

	ctx, span := tracer.Start(ctx, "checkout.confirm")
	span.SetAttributes(
		attribute.Int64("telegram.chat_id", cmd.ChatID),
		attribute.String("checkout.attempt_id", attemptID),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(otelcodes.Error, err.Error())
		}
		span.End()
	}()

	key := checkoutIdempotencyKey(cmd.ChatID, attemptID)
	fingerprint := idempotency.Fingerprint(strconv.FormatInt(cmd.ChatID, 10), strconv.FormatInt(cmd.UserID, 10), attemptID)
	reservation, err := s.guard.Reserve(ctx, key, fingerprint, s.now(), s.ttl)
	if err != nil {
		if errors.Is(err, idempotency.ErrFingerprintMismatch) {
			return CheckoutResult{}, ErrCheckoutInvalidInput
		}
		s.logger(ctx, "checkout.reserve_failed", map[string]any{"chatID": cmd.ChatID, "error": err.Error()})
		return CheckoutResult{}, errors.Join(ErrCheckoutUnavailable, err)
	}
	switch reservation.State {
	case idempotency.ReservationStateCompleted:
		return s.replay(ctx, reservation.Record.Outcome)
	case idempotency.ReservationStatePending:
		return CheckoutResult{}, ErrCheckoutInProgress
	}

	result, err = s.place(ctx, cmd)
	if err != nil {
		if releaseErr := s.guard.Release(ctx, key, fingerprint); releaseErr != nil {
			s.logger(ctx, "checkout.release_failed", map[string]any{"chatID": cmd.ChatID, "error": releaseErr.Error()})
		}
		return result, err
	}

	outcome := idempotency.Outcome{
		OrderID:    result.Order.ID,
		Status:     string(result.Order.Status),
		PaymentURL: result.PaymentURL,
	}
	if err := s.guard.Complete(ctx, key, fingerprint, outcome, s.now(), s.ttl); err != nil {
		s.logger(ctx, "checkout.complete_record_failed", map[string]any{"orderID": result.Order.ID, "error": err.Error()})
	}
	return result, nil
}

func (s *checkoutService) place(ctx context.Context, cmd ConfirmCheckoutCommand) (CheckoutResult, error) {
	recipient, err := validateRecipient(cmd.Recipient)
	if err != nil {
		// An attempt that never reached confirmation, such as a replayed button after a restart.
		if cmd.Recipient == (domain.Recipient{}) {
			return CheckoutResult{}, ErrDialogueStale
		}
		return CheckoutResult{}, err
	}

	items, err := s.carts.List(ctx, cmd.UserID)
	if err != nil {
		return CheckoutResult{}, s.translateRepoError(err)
	}
	if len(items) == 0 {
		return CheckoutResult{}, ErrCheckoutEmptyCart
	}

	now := s.now()
	order := domain.Order{
		ID:        s.newID(),
		UserID:    cmd.UserID,
		Recipient: recipient,
		Status:    domain.OrderStatusPendingPayment,
		Amount:    domain.Money{Amount: s.settings.Amount, Currency: s.settings.Currency},
		Lines:     snapshotLines(items),
		CreatedAt: now,
		UpdatedAt: now,
	}
	for i := range order.Lines {
		order.Lines[i].OrderID = order.ID
	}
	if err := s.orders.Create(ctx, order); err != nil {
		s.logger(ctx, "checkout.order_create_failed", map[string]any{"userID": cmd.UserID, "error": err.Error()})
		return CheckoutResult{}, s.translateRepoError(err)
	}
	s.publish(ctx, OrderEventPlaced, order)

	session, err := s.requestPayment(ctx, order)
	if err != nil {
		failedAt := s.now()
		order.Status = domain.OrderStatusPaymentFailed
		order.FailureNote = err.Error()
		order.UpdatedAt = failedAt
		if updateErr := s.orders.UpdatePayment(ctx, order.ID, repositories.OrderPaymentUpdate{
			Status:      domain.OrderStatusPaymentFailed,
			FailureNote: order.FailureNote,
			UpdatedAt:   failedAt,
		}); updateErr != nil {
			s.logger(ctx, "checkout.order_update_failed", map[string]any{"orderID": order.ID, "error": updateErr.Error()})
		}
		s.logger(ctx, "checkout.payment_failed", map[string]any{
			"orderID": order.ID,
			"userID":  order.UserID,
			"error":   err.Error(),
		})
		s.publish(ctx, OrderEventPaymentFailed, order)
		return CheckoutResult{Order: order}, ErrCheckoutPaymentFailed
	}

	updatedAt := s.now()
	order.PaymentID = session.ID
	order.PaymentURL = session.RedirectURL
	order.UpdatedAt = updatedAt
	if s.settings.MarkPaidOnRedirect {
		order.Status = domain.OrderStatusPaid
		order.Paid = true
		order.PaidAt = &updatedAt
	}
	if err := s.orders.UpdatePayment(ctx, order.ID, repositories.OrderPaymentUpdate{
		Status:     order.Status,
		Paid:       order.Paid,
		PaymentID:  order.PaymentID,
		PaymentURL: order.PaymentURL,
		UpdatedAt:  updatedAt,
		PaidAt:     order.PaidAt,
	}); err != nil {
		s.logger(ctx, "checkout.order_update_failed", map[string]any{"orderID": order.ID, "error": err.Error()})
		return CheckoutResult{Order: order}, s.translateRepoError(err)
	}

	if err := s.carts.DeleteAll(ctx, order.UserID); err != nil {
		s.logger(ctx, "checkout.cart_clear_failed", map[string]any{"userID": order.UserID, "error": err.Error()})
	}
	if order.Paid {
		s.publish(ctx, OrderEventPaid, order)
	}
	s.logger(ctx, "checkout.completed", map[string]any{
		"orderID":  order.ID,
		"userID":   order.UserID,
		"lines":    len(order.Lines),
		"provider": session.Provider,
		"paid":     order.Paid,
	})
	return CheckoutResult{Order: order, PaymentURL: session.RedirectURL, Paid: order.Paid}, nil
}

func (s *checkoutService) requestPayment(ctx context.Context, order domain.Order) (payments.PaymentSession, error) {
	ctx, span := tracer.Start(ctx, "checkout.payment")
	defer span.End()
	span.SetAttributes(
		attribute.String("order.id", order.ID),
		attribute.String("payment.provider", s.settings.Provider),
	)

	ctx, cancel := context.WithTimeout(ctx, s.settings.Timeout)
	defer cancel()

	session, err := s.payments.CreatePayment(ctx, payments.PaymentContext{
		PreferredProvider: s.settings.Provider,
		Currency:          s.settings.Currency,
	}, payments.PaymentRequest{
		Amount:         s.settings.Amount,
		Currency:       s.settings.Currency,
		ReturnURL:      s.settings.ReturnURL,
		Description:    fmt.Sprintf("Заказ #%s", order.ID),
		IdempotencyKey: paymentIdempotencyKey(order.ID),
		Metadata: map[string]string{
			"orderId": order.ID,
			"userId":  strconv.FormatInt(order.UserID, 10),
		},
	})
	if err == nil && strings.TrimSpace(session.RedirectURL) == "" {
		err = errors.New("payment session has no redirect url")
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
		return payments.PaymentSession{}, err
	}
	return session, nil
}

func (s *checkoutService) replay(ctx context.Context, outcome idempotency.Outcome) (CheckoutResult, error) {
	order, err := s.orders.Get(ctx, outcome.OrderID)
	if err != nil {
		s.logger(ctx, "checkout.replay_lookup_failed", map[string]any{"orderID": outcome.OrderID, "error": err.Error()})
		order = domain.Order{ID: outcome.OrderID, Status: domain.OrderStatus(outcome.Status)}
		order.Paid = order.Status == domain.OrderStatusPaid
	}
	return CheckoutResult{
		Order:      order,
		PaymentURL: outcome.PaymentURL,
		Paid:       order.Paid,
		Replayed:   true,
	}, nil
}

func (s *checkoutService) publish(ctx context.Context, eventType string, order domain.Order) {
	event := OrderEvent{
		Type:       eventType,
		OrderID:    order.ID,
		UserID:     order.UserID,
		Status:     string(order.Status),
		Amount:     order.Amount.Amount.StringFixed(2),
		Currency:   order.Amount.Currency,
		OccurredAt: s.now(),
	}
	if _, err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "checkout.event_publish_failed", map[string]any{
			"orderID": order.ID,
			"type":    eventType,
			"error":   err.Error(),
		})
	}
}

func (s *checkoutService) translateRepoError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrCheckoutEmptyCart):
		return err
	case isRepoConflict(err), isRepoNotFound(err):
		return errors.Join(ErrCheckoutInvalidInput, err)
	}
	return errors.Join(ErrCheckoutUnavailable, err)
}

func checkoutIdempotencyKey(chatID int64, attemptID string) string {
	return fmt.Sprintf("checkout:%d:%s", chatID, attemptID)
}

// paymentIdempotencyKey is scoped to the order so a retried confirm, which places a new
// order, never reuses a gateway key with a different request body.
func paymentIdempotencyKey(orderID string) string {
	return "payment:" + orderID
}

func validateRecipient(recipient domain.Recipient) (domain.Recipient, error) {
	name, err := ValidateName(recipient.FullName)
	if err != nil {
		return domain.Recipient{}, err
	}
	phone, err := ValidatePhone(recipient.Phone)
	if err != nil {
		return domain.Recipient{}, err
	}
	address, err := ValidateAddress(recipient.Address)
	if err != nil {
		return domain.Recipient{}, err
	}
	return domain.Recipient{FullName: name, Phone: phone, Address: address}, nil
}

func snapshotLines(items []domain.CartItem) []domain.OrderLine {
	lines := make([]domain.OrderLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, domain.OrderLine{
			ProductID:       item.Line.ProductID,
			SubcategoryName: item.Product.SubcategoryName,
			Description:     item.Product.Description,
			Quantity:        item.Line.Quantity,
		})
	}
	return lines
}

// NoopOrderEventPublisher discards order events. It is used when no topic is configured.
type NoopOrderEventPublisher struct{}

// PublishOrderEvent implements OrderEventPublisher.
func (NoopOrderEventPublisher) PublishOrderEvent(context.Context, OrderEvent) (string, error) {
	return "", nil
}
