package firestore

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/hanko-field/storebot/internal/domain"
	pfirestore "github.com/hanko-field/storebot/internal/platform/firestore"
)

type broadcastDocument struct {
	Title     string     `firestore:"title"`
	Message   string     `firestore:"message"`
	Sent      bool       `firestore:"sent"`
	SentAt    *time.Time `firestore:"sentAt,omitempty"`
	CreatedAt time.Time  `firestore:"createdAt"`
}

// BroadcastRepository stores broadcast records.
type BroadcastRepository struct {
	base *pfirestore.BaseRepository[broadcastDocument]
}

// Insert stores a new broadcast. Reusing an id is a conflict.
func (r *BroadcastRepository) Insert(ctx context.Context, broadcast domain.Broadcast) error {
	return r.base.Create(ctx, broadcast.ID, broadcastDocument{
		Title:     broadcast.Title,
		Message:   broadcast.Message,
		Sent:      broadcast.Sent,
		SentAt:    broadcast.SentAt,
		CreatedAt: broadcast.CreatedAt.UTC(),
	})
}

// MarkSent flags the broadcast as delivered.
func (r *BroadcastRepository) MarkSent(ctx context.Context, broadcastID string, sentAt time.Time) error {
	return r.base.Update(ctx, broadcastID, []firestore.Update{
		{Path: "sent", Value: true},
		{Path: "sentAt", Value: sentAt.UTC()},
	})
}

// Get loads one broadcast.
func (r *BroadcastRepository) Get(ctx context.Context, broadcastID string) (domain.Broadcast, error) {
	doc, err := r.base.Get(ctx, broadcastID)
	if err != nil {
		return domain.Broadcast{}, err
	}
	var sentAt *time.Time
	if doc.Data.SentAt != nil {
		t := doc.Data.SentAt.UTC()
		sentAt = &t
	}
	return domain.Broadcast{
		ID:        doc.ID,
		Title:     doc.Data.Title,
		Message:   doc.Data.Message,
		Sent:      doc.Data.Sent,
		SentAt:    sentAt,
		CreatedAt: doc.Data.CreatedAt.UTC(),
	}, nil
}
