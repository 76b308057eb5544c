package sqlite

import (
	"context"
	"database/sql"
	"time"

	domain "github.com/hanko-field/storebot/internal/domain"
	psqlite "github.com/hanko-field/storebot/internal/platform/sqlite"
)

// UserRepository stores Telegram users.
type UserRepository struct {
	db *sql.DB
}

// GetOrCreate inserts user when absent and refreshes the display fields otherwise.
func (r *UserRepository) GetOrCreate(ctx context.Context, user domain.User) (domain.User, bool, error) {
	registeredAt := user.RegisteredAt
	if registeredAt.IsZero() {
		registeredAt = time.Now()
	}

	var created bool
	err := psqlite.RunInTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO users (telegram_id, username, first_name, registered_at) VALUES (?, ?, ?, ?)
			 ON CONFLICT(telegram_id) DO NOTHING`,
			user.TelegramID, user.Username, user.FirstName, psqlite.Timestamp(registeredAt))
		if err != nil {
			return psqlite.WrapError("users.insert", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return psqlite.WrapError("users.insert", err)
		}
		created = affected == 1
		if created {
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE users SET
			   username = CASE WHEN ? <> '' THEN ? ELSE username END,
			   first_name = CASE WHEN ? <> '' THEN ? ELSE first_name END
			 WHERE telegram_id = ?`,
			user.Username, user.Username, user.FirstName, user.FirstName, user.TelegramID); err != nil {
			return psqlite.WrapError("users.refresh", err)
		}
		return nil
	})
	if err != nil {
		return domain.User{}, false, err
	}

	stored, err := r.Get(ctx, user.TelegramID)
	if err != nil {
		return domain.User{}, false, err
	}
	return stored, created, nil
}

// Get loads a user by Telegram id.
func (r *UserRepository) Get(ctx context.Context, telegramID int64) (domain.User, error) {
	var (
		user         domain.User
		registeredAt int64
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT telegram_id, username, first_name, registered_at FROM users WHERE telegram_id = ?`, telegramID).
		Scan(&user.TelegramID, &user.Username, &user.FirstName, &registeredAt)
	if err != nil {
		return domain.User{}, psqlite.WrapError("users.get", err)
	}
	user.RegisteredAt = psqlite.Time(registeredAt)
	return user, nil
}

// ListIDs returns every user id in registration order.
func (r *UserRepository) ListIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT telegram_id FROM users ORDER BY registered_at, telegram_id`)
	if err != nil {
		return nil, psqlite.WrapError("users.list", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, psqlite.WrapError("users.list", err)
		}
		ids = append(ids, id)
	}
	return ids, psqlite.WrapError("users.list", rows.Err())
}
