package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"
)

type stubSender struct {
	mu       sync.Mutex
	inFlight int32
	peak     int32
	sent     map[int64]string
	fail     map[int64]bool
	delay    time.Duration
}

func (s *stubSender) SendHTML(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	current := atomic.AddInt32(&s.inFlight, 1)
	defer atomic.AddInt32(&s.inFlight, -1)
	for {
		peak := atomic.LoadInt32(&s.peak)
		if current <= peak || atomic.CompareAndSwapInt32(&s.peak, peak, current) {
			break
		}
	}
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if s.fail[chatID] {
		return errBoom
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sent == nil {
		s.sent = make(map[int64]string)
	}
	s.sent[chatID] = text
	return nil
}

func TestBroadcastServicePartitionsResult(t *testing.T) {
	defer goleak.VerifyNone(t)

	repo := &stubBroadcastRepository{}
	sender := &stubSender{fail: map[int64]bool{2: true, 4: true}, delay: 5 * time.Millisecond}
	users := &stubUserRepository{listIDsFunc: func(context.Context) ([]int64, error) {
		return []int64{1, 2, 3, 4, 5}, nil
	}}
	svc, err := NewBroadcastService(BroadcastServiceDeps{
		Broadcasts:  repo,
		Users:       users,
		Sender:      sender,
		Workers:     2,
		IDGenerator: sequentialIDs("bc-"),
	})
	if err != nil {
		t.Fatalf("unexpected error constructing broadcast service: %v", err)
	}

	report, err := svc.Send(context.Background(), BroadcastCommand{Title: "Скидки", Message: "Только <i>сегодня</i>"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if diff := cmp.Diff([]int64{1, 3, 5}, report.Result.Succeeded); diff != "" {
		t.Fatalf("succeeded mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int64{2, 4}, report.Result.Failed); diff != "" {
		t.Fatalf("failed mismatch (-want +got):\n%s", diff)
	}
	if peak := atomic.LoadInt32(&sender.peak); peak > 2 {
		t.Fatalf("expected at most 2 concurrent sends, saw %d", peak)
	}
	if !report.Broadcast.Sent || report.Broadcast.SentAt == nil {
		t.Fatalf("expected broadcast marked sent, got %+v", report.Broadcast)
	}
	if _, ok := repo.sentAt["bc-1"]; !ok {
		t.Fatalf("expected MarkSent for bc-1, got %v", repo.sentAt)
	}
	if got := sender.sent[1]; got != "<b>Скидки</b>\n\nТолько сегодня" {
		t.Fatalf("unexpected message body %q", got)
	}
}

func TestBroadcastServiceExplicitRecipients(t *testing.T) {
	defer goleak.VerifyNone(t)

	sender := &stubSender{}
	users := &stubUserRepository{listIDsFunc: func(context.Context) ([]int64, error) {
		t.Fatalf("user list must not be read when recipients are given")
		return nil, nil
	}}
	svc, err := NewBroadcastService(BroadcastServiceDeps{Broadcasts: &stubBroadcastRepository{}, Users: users, Sender: sender})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	report, err := svc.Send(context.Background(), BroadcastCommand{Title: "t", Message: "m", Recipients: []int64{9}})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(report.Result.Succeeded) != 1 || report.Result.Succeeded[0] != 9 {
		t.Fatalf("unexpected result %+v", report.Result)
	}
}

func TestBroadcastServiceRejectsEmptyMessage(t *testing.T) {
	svc, err := NewBroadcastService(BroadcastServiceDeps{Broadcasts: &stubBroadcastRepository{}, Users: &stubUserRepository{}, Sender: &stubSender{}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := svc.Send(context.Background(), BroadcastCommand{Title: " ", Message: "m"}); !errors.Is(err, ErrBroadcastInvalidInput) {
		t.Fatalf("expected ErrBroadcastInvalidInput, got %v", err)
	}
}

func TestBroadcastServiceCancelledContextFailsRemaining(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc, err := NewBroadcastService(BroadcastServiceDeps{Broadcasts: &stubBroadcastRepository{}, Users: &stubUserRepository{}, Sender: &stubSender{}, Workers: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	report, err := svc.Send(ctx, BroadcastCommand{Title: "t", Message: "m", Recipients: []int64{1, 2, 3}})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(report.Result.Succeeded)+len(report.Result.Failed) != 3 {
		t.Fatalf("every recipient must be reported, got %+v", report.Result)
	}
	if len(report.Result.Failed) == 0 {
		t.Fatalf("expected failures after cancellation, got %+v", report.Result)
	}
}
