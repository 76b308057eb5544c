package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	domain "github.com/hanko-field/storebot/internal/domain"
	"github.com/hanko-field/storebot/internal/platform/textutil"
	"github.com/hanko-field/storebot/internal/repositories"
)

const (
	defaultBroadcastWorkers = 8
	defaultBroadcastTimeout = 10 * time.Second
	broadcastMetricScope    = "github.com/hanko-field/storebot/internal/services/broadcast"
)

// ErrBroadcastInvalidInput indicates a missing title or message.
var ErrBroadcastInvalidInput = errors.New("broadcast service: invalid input")

// ErrBroadcastUnavailable indicates the broadcast record or user list could not be accessed.
var ErrBroadcastUnavailable = errors.New("broadcast service: unavailable")

// BroadcastServiceDeps wires the repositories, transport and pool bounds.
type BroadcastServiceDeps struct {
	Broadcasts  repositories.BroadcastRepository
	Users       repositories.UserRepository
	Sender      MessageSender
	Workers     int
	SendTimeout time.Duration
	Meter       metric.Meter
	Clock       func() time.Time
	Logger      func(context.Context, string, map[string]any)
	IDGenerator func() string
}

type broadcastService struct {
	broadcasts repositories.BroadcastRepository
	users      repositories.UserRepository
	sender     MessageSender
	workers    int64
	timeout    time.Duration
	deliveries metric.Int64Counter
	now        func() time.Time
	logger     func(context.Context, string, map[string]any)
	newID      func() string
}

// NewBroadcastService constructs a BroadcastService.
func NewBroadcastService(deps BroadcastServiceDeps) (BroadcastService, error) {
	if deps.Broadcasts == nil {
		return nil, errors.New("broadcast service: broadcast repository is required")
	}
	if deps.Users == nil {
		return nil, errors.New("broadcast service: user repository is required")
	}
	if deps.Sender == nil {
		return nil, errors.New("broadcast service: sender is required")
	}
	workers := deps.Workers
	if workers <= 0 {
		workers = defaultBroadcastWorkers
	}
	timeout := deps.SendTimeout
	if timeout <= 0 {
		timeout = defaultBroadcastTimeout
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	newID := deps.IDGenerator
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	meter := deps.Meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(broadcastMetricScope)
	}
	deliveries, err := meter.Int64Counter(
		"broadcast.deliveries",
		metric.WithDescription("Broadcast messages attempted, by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("broadcast service: register metric: %w", err)
	}

	return &broadcastService{
		broadcasts: deps.Broadcasts,
		users:      deps.Users,
		sender:     deps.Sender,
		workers:    int64(workers),
		timeout:    timeout,
		deliveries: deliveries,
		now:        func() time.Time { return clock().UTC() },
		logger:     logger,
		newID:      newID,
	}, nil
}

// Send stores the broadcast, delivers it to every recipient at most once and marks it sent.
// Failed deliveries are reported, not retried.
func (s *broadcastService) Send(ctx context.Context, cmd BroadcastCommand) (BroadcastReport, error) {
	title := textutil.PlainText(cmd.Title)
	message := textutil.PlainText(cmd.Message)
	if title == "" || message == "" {
		return BroadcastReport{}, ErrBroadcastInvalidInput
	}

	ctx, span := otel.Tracer(broadcastMetricScope).Start(ctx, "broadcast.run")
	defer span.End()

	record := domain.Broadcast{
		ID:        s.newID(),
		Title:     title,
		Message:   message,
		CreatedAt: s.now(),
	}
	if err := s.broadcasts.Insert(ctx, record); err != nil {
		return BroadcastReport{}, errors.Join(ErrBroadcastUnavailable, err)
	}

	recipients := cmd.Recipients
	if len(recipients) == 0 {
		ids, err := s.users.ListIDs(ctx)
		if err != nil {
			return BroadcastReport{Broadcast: record}, errors.Join(ErrBroadcastUnavailable, err)
		}
		recipients = ids
	}
	span.SetAttributes(
		attribute.String("broadcast.id", record.ID),
		attribute.Int("broadcast.recipients", len(recipients)),
	)

	text := FormatBroadcast(title, message)
	result := s.deliver(ctx, recipients, text)

	sentAt := s.now()
	if err := s.broadcasts.MarkSent(ctx, record.ID, sentAt); err != nil {
		s.logger(ctx, "broadcast.mark_sent_failed", map[string]any{"broadcastID": record.ID, "error": err.Error()})
		return BroadcastReport{Broadcast: record, Result: result}, errors.Join(ErrBroadcastUnavailable, err)
	}
	record.Sent = true
	record.SentAt = &sentAt

	s.logger(ctx, "broadcast.completed", map[string]any{
		"broadcastID": record.ID,
		"succeeded":   len(result.Succeeded),
		"failed":      len(result.Failed),
	})
	return BroadcastReport{Broadcast: record, Result: result}, nil
}

// deliver runs at most s.workers sends at once. The partitions keep the recipient order.
func (s *broadcastService) deliver(ctx context.Context, recipients []int64, text string) domain.BroadcastResult {
	delivered := make([]bool, len(recipients))
	var g errgroup.Group
	sem := semaphore.NewWeighted(s.workers)

	for i, chatID := range recipients {
		if err := sem.Acquire(ctx, 1); err != nil {
			s.logger(ctx, "broadcast.aborted", map[string]any{"remaining": len(recipients) - i, "error": err.Error()})
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			sendCtx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()

			err := s.sender.SendHTML(sendCtx, chatID, text)
			outcome := "succeeded"
			if err != nil {
				outcome = "failed"
				s.logger(ctx, "broadcast.delivery_failed", map[string]any{"chatID": chatID, "error": err.Error()})
			}
			s.deliveries.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
			delivered[i] = err == nil
			return nil
		})
	}
	_ = g.Wait()

	var result domain.BroadcastResult
	for i, chatID := range recipients {
		if delivered[i] {
			result.Succeeded = append(result.Succeeded, chatID)
		} else {
			result.Failed = append(result.Failed, chatID)
		}
	}
	return result
}

// FormatBroadcast renders the HTML message body sent to every user.
func FormatBroadcast(title, message string) string {
	return fmt.Sprintf("<b>%s</b>\n\n%s", textutil.EscapeHTML(title), textutil.EscapeHTML(message))
}
