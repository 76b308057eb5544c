package idempotency

import (
	"context"
	"time"
)

const cleanupRunTimeout = time.Minute

// CleanupReport receives the outcome of every sweep.
type CleanupReport func(removed int, err error)

// RunCleanup removes up to batch expired records every interval until ctx is done.
func RunCleanup(ctx context.Context, store Store, interval time.Duration, batch int, clock func() time.Time, report CleanupReport) {
	if store == nil || interval <= 0 {
		return
	}
	if clock == nil {
		clock = time.Now
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, cleanupRunTimeout)
			removed, err := store.CleanupExpired(runCtx, clock().UTC(), batch)
			cancel()
			if report != nil {
				report(removed, err)
			}
		case <-ctx.Done():
			return
		}
	}
}
