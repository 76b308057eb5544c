package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"strings"
	"time"
)

// Status represents the lifecycle state of a guarded operation.
type Status string

const (
	// DefaultTTL is how long a confirmation record is retained.
	DefaultTTL = 24 * time.Hour
	// StatusPending means the key is reserved and the operation has not finished.
	StatusPending Status = "pending"
	// StatusCompleted means the operation finished and its outcome can be replayed.
	StatusCompleted Status = "completed"
)

// ReservationState describes the outcome of attempting to reserve a key.
type ReservationState int

const (
	// ReservationStateNew means the caller owns the key and should run the operation.
	ReservationStateNew ReservationState = iota
	// ReservationStateCompleted means a previous outcome exists and should be replayed.
	ReservationStateCompleted
	// ReservationStatePending means another caller is still running the operation.
	ReservationStatePending
)

// Reservation encapsulates the result of reserving a key, including the stored record if available.
type Reservation struct {
	State  ReservationState
	Record Record
}

// Outcome is the replayable result of a checkout confirmation.
type Outcome struct {
	OrderID    string
	Status     string
	PaymentURL string
}

// Record captures the persisted state for a key.
type Record struct {
	Key         string
	Fingerprint string
	Status      Status
	Outcome     Outcome
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ExpiresAt   time.Time
}

// Store persists reservations and outcomes.
type Store interface {
	Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error)
	Complete(ctx context.Context, key, fingerprint string, outcome Outcome, now time.Time, ttl time.Duration) error
	Release(ctx context.Context, key, fingerprint string) error
	CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

var (
	// ErrFingerprintMismatch is returned when a key is reused for a different payload.
	ErrFingerprintMismatch = errors.New("idempotency: key reserved for different request fingerprint")
)

// Fingerprint hashes the parts that identify a request payload. Part order does not matter.
func Fingerprint(parts ...string) string {
	sorted := make([]string, len(parts))
	copy(sorted, parts)
	sort.Strings(sorted)
	return sha256Hex([]byte(strings.Join(sorted, "\x1f")))
}

func compositeKey(key string) string {
	return sha256Hex([]byte(strings.TrimSpace(key)))
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func newPendingRecord(key, fingerprint string, now time.Time, ttl time.Duration) Record {
	return Record{
		Key:         key,
		Fingerprint: fingerprint,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
}
