package sqlite

import (
	"context"
	"database/sql"
	"time"

	domain "github.com/hanko-field/storebot/internal/domain"
	psqlite "github.com/hanko-field/storebot/internal/platform/sqlite"
)

// BroadcastRepository stores broadcast records.
type BroadcastRepository struct {
	db *sql.DB
}

// Insert stores a new broadcast.
func (r *BroadcastRepository) Insert(ctx context.Context, broadcast domain.Broadcast) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO broadcasts (id, title, message, sent, sent_at, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		broadcast.ID, broadcast.Title, broadcast.Message, broadcast.Sent,
		psqlite.NullTimestamp(broadcast.SentAt), psqlite.Timestamp(broadcast.CreatedAt))
	return psqlite.WrapError("broadcasts.insert", err)
}

// MarkSent flags the broadcast as delivered.
func (r *BroadcastRepository) MarkSent(ctx context.Context, broadcastID string, sentAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE broadcasts SET sent = 1, sent_at = ? WHERE id = ?`,
		psqlite.Timestamp(sentAt), broadcastID)
	if err != nil {
		return psqlite.WrapError("broadcasts.mark_sent", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return psqlite.WrapError("broadcasts.mark_sent", err)
	}
	if affected == 0 {
		return psqlite.NotFound("broadcasts.mark_sent")
	}
	return nil
}

// Get loads one broadcast.
func (r *BroadcastRepository) Get(ctx context.Context, broadcastID string) (domain.Broadcast, error) {
	var (
		broadcast domain.Broadcast
		sentAt    sql.NullInt64
		createdAt int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, title, message, sent, sent_at, created_at FROM broadcasts WHERE id = ?`, broadcastID).
		Scan(&broadcast.ID, &broadcast.Title, &broadcast.Message, &broadcast.Sent, &sentAt, &createdAt)
	if err != nil {
		return domain.Broadcast{}, psqlite.WrapError("broadcasts.get", err)
	}
	broadcast.SentAt = psqlite.NullTime(sentAt)
	broadcast.CreatedAt = psqlite.Time(createdAt)
	return broadcast, nil
}
