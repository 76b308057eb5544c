package idempotency

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStoreReserveLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	fp := Fingerprint("p1:2", "p2:1")

	res, err := store.Reserve(ctx, "checkout:42:a1", fp, now, time.Hour)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if res.State != ReservationStateNew {
		t.Fatalf("expected new reservation, got %v", res.State)
	}

	res, err = store.Reserve(ctx, "checkout:42:a1", fp, now.Add(time.Second), time.Hour)
	if err != nil {
		t.Fatalf("second reserve: %v", err)
	}
	if res.State != ReservationStatePending {
		t.Fatalf("expected pending, got %v", res.State)
	}

	outcome := Outcome{OrderID: "ord_1", Status: "paid", PaymentURL: "https://pay.example/1"}
	if err := store.Complete(ctx, "checkout:42:a1", fp, outcome, now.Add(2*time.Second), time.Hour); err != nil {
		t.Fatalf("complete: %v", err)
	}

	res, err = store.Reserve(ctx, "checkout:42:a1", fp, now.Add(3*time.Second), time.Hour)
	if err != nil {
		t.Fatalf("replay reserve: %v", err)
	}
	if res.State != ReservationStateCompleted || res.Record.Outcome != outcome {
		t.Fatalf("expected completed replay, got %+v", res)
	}
}

func TestMemoryStoreFingerprintMismatch(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Now()

	if _, err := store.Reserve(ctx, "k", Fingerprint("a"), now, time.Hour); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if _, err := store.Reserve(ctx, "k", Fingerprint("b"), now, time.Hour); !errors.Is(err, ErrFingerprintMismatch) {
		t.Fatalf("expected mismatch, got %v", err)
	}
	if err := store.Release(ctx, "k", Fingerprint("b")); !errors.Is(err, ErrFingerprintMismatch) {
		t.Fatalf("expected mismatch on release, got %v", err)
	}
}

func TestMemoryStoreReleaseAndExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	fp := Fingerprint("x")

	if _, err := store.Reserve(ctx, "k1", fp, now, time.Minute); err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := store.Release(ctx, "k1", fp); err != nil {
		t.Fatalf("release: %v", err)
	}
	res, err := store.Reserve(ctx, "k1", fp, now, time.Minute)
	if err != nil || res.State != ReservationStateNew {
		t.Fatalf("expected fresh reservation after release, got %+v err=%v", res, err)
	}

	if _, err := store.Reserve(ctx, "k2", fp, now, time.Minute); err != nil {
		t.Fatalf("reserve k2: %v", err)
	}
	removed, err := store.CleanupExpired(ctx, now.Add(2*time.Minute), 0)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
}

func TestFingerprintIgnoresOrder(t *testing.T) {
	if Fingerprint("a", "b") != Fingerprint("b", "a") {
		t.Fatalf("expected order-independent fingerprint")
	}
	if Fingerprint("a") == Fingerprint("b") {
		t.Fatalf("expected distinct fingerprints")
	}
}

func TestRunCleanupSweepsExpiredRecords(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	for _, key := range []string{"checkout:1:a", "checkout:2:b"} {
		if _, err := store.Reserve(context.Background(), key, Fingerprint(key), now, time.Minute); err != nil {
			t.Fatalf("reserve %s: %v", key, err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	removed := make(chan int, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		RunCleanup(ctx, store, 5*time.Millisecond, 10, func() time.Time { return now.Add(time.Hour) }, func(n int, err error) {
			if err != nil {
				t.Errorf("cleanup: %v", err)
			}
			removed <- n
		})
	}()

	select {
	case n := <-removed:
		if n != 2 {
			t.Fatalf("expected first sweep to remove 2 records, got %d", n)
		}
	case <-time.After(time.Second):
		t.Fatal("cleanup never ran")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("cleanup did not stop on cancel")
	}

	res, err := store.Reserve(context.Background(), "checkout:1:a", Fingerprint("checkout:1:a"), now.Add(time.Hour), time.Minute)
	if err != nil || res.State != ReservationStateNew {
		t.Fatalf("expected swept key to reserve fresh, got %+v err=%v", res, err)
	}
}
