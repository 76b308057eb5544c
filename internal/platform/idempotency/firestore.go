package idempotency

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultCollection  = "checkout_confirmations"
	defaultMaxAttempts = 5
)

// FirestoreOption customises the FirestoreStore behaviour.
type FirestoreOption func(*FirestoreStore)

// WithCollection overrides the collection name used to store reservations.
func WithCollection(name string) FirestoreOption {
	return func(store *FirestoreStore) {
		if name != "" {
			store.collection = name
		}
	}
}

// WithMaxAttempts configures the transaction retry attempts.
func WithMaxAttempts(attempts int) FirestoreOption {
	return func(store *FirestoreStore) {
		if attempts > 0 {
			store.maxAttempts = attempts
		}
	}
}

// FirestoreStore implements Store backed by Cloud Firestore so several bot replicas share reservations.
type FirestoreStore struct {
	client      *firestore.Client
	collection  string
	maxAttempts int
}

// NewFirestoreStore constructs a Firestore-backed store.
func NewFirestoreStore(client *firestore.Client, opts ...FirestoreOption) *FirestoreStore {
	store := &FirestoreStore{
		client:      client,
		collection:  defaultCollection,
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store
}

// Reserve claims key inside a transaction and reports any stored outcome.
func (s *FirestoreStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error) {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	ref := s.client.Collection(s.collection).Doc(compositeKey(key))

	var result Reservation
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) != codes.NotFound {
				return err
			}
			record := newPendingRecord(key, fingerprint, now, ttl)
			result = Reservation{State: ReservationStateNew, Record: record}
			return tx.Set(ref, toFirestoreRecord(record))
		}

		var stored firestoreRecord
		if err := snap.DataTo(&stored); err != nil {
			return err
		}
		if !stored.ExpiresAt.IsZero() && !now.Before(stored.ExpiresAt) {
			record := newPendingRecord(key, fingerprint, now, ttl)
			result = Reservation{State: ReservationStateNew, Record: record}
			return tx.Set(ref, toFirestoreRecord(record))
		}
		if stored.Fingerprint != fingerprint {
			return ErrFingerprintMismatch
		}

		record := stored.toRecord()
		if record.Status == StatusCompleted {
			result = Reservation{State: ReservationStateCompleted, Record: record}
			return nil
		}
		result = Reservation{State: ReservationStatePending, Record: record}
		return nil
	}, firestore.MaxAttempts(s.attempts()))

	return result, err
}

// Complete persists the outcome associated with the key.
func (s *FirestoreStore) Complete(ctx context.Context, key, fingerprint string, outcome Outcome, now time.Time, ttl time.Duration) error {
	now = now.UTC()
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	ref := s.client.Collection(s.collection).Doc(compositeKey(key))

	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		record := Record{Key: key, Fingerprint: fingerprint, CreatedAt: now}
		snap, err := tx.Get(ref)
		switch {
		case err == nil:
			var stored firestoreRecord
			if err := snap.DataTo(&stored); err != nil {
				return err
			}
			if stored.Fingerprint != fingerprint {
				return ErrFingerprintMismatch
			}
			record = stored.toRecord()
		case status.Code(err) != codes.NotFound:
			return err
		}

		record.Status = StatusCompleted
		record.Outcome = outcome
		record.UpdatedAt = now
		record.ExpiresAt = now.Add(ttl)
		return tx.Set(ref, toFirestoreRecord(record))
	}, firestore.MaxAttempts(s.attempts()))
}

// CleanupExpired removes expired records up to limit.
func (s *FirestoreStore) CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	docs, err := s.client.Collection(s.collection).Where("expires_at", "<=", now.UTC()).Limit(limit).Documents(ctx).GetAll()
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, nil
	}

	batch := s.client.BulkWriter(ctx)
	for _, doc := range docs {
		if _, err := batch.Delete(doc.Ref); err != nil {
			batch.End()
			return 0, err
		}
	}
	batch.End()
	return len(docs), nil
}

// Release removes the reservation so a later attempt may retry.
func (s *FirestoreStore) Release(ctx context.Context, key, _ string) error {
	_, err := s.client.Collection(s.collection).Doc(compositeKey(key)).Delete(ctx)
	if status.Code(err) == codes.NotFound {
		return nil
	}
	return err
}

func (s *FirestoreStore) attempts() int {
	if s.maxAttempts <= 0 {
		return 1
	}
	return s.maxAttempts
}

type firestoreRecord struct {
	Key         string    `firestore:"key"`
	Fingerprint string    `firestore:"fingerprint"`
	Status      string    `firestore:"status"`
	OrderID     string    `firestore:"order_id"`
	OrderStatus string    `firestore:"order_status"`
	PaymentURL  string    `firestore:"payment_url"`
	CreatedAt   time.Time `firestore:"created_at"`
	UpdatedAt   time.Time `firestore:"updated_at"`
	ExpiresAt   time.Time `firestore:"expires_at"`
}

func toFirestoreRecord(r Record) firestoreRecord {
	return firestoreRecord{
		Key:         r.Key,
		Fingerprint: r.Fingerprint,
		Status:      string(r.Status),
		OrderID:     r.Outcome.OrderID,
		OrderStatus: r.Outcome.Status,
		PaymentURL:  r.Outcome.PaymentURL,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		ExpiresAt:   r.ExpiresAt,
	}
}

func (r firestoreRecord) toRecord() Record {
	return Record{
		Key:         r.Key,
		Fingerprint: r.Fingerprint,
		Status:      Status(r.Status),
		Outcome: Outcome{
			OrderID:    r.OrderID,
			Status:     r.OrderStatus,
			PaymentURL: r.PaymentURL,
		},
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
		ExpiresAt: r.ExpiresAt,
	}
}
