package firestore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/hanko-field/storebot/internal/domain"
	pfirestore "github.com/hanko-field/storebot/internal/platform/firestore"
)

type userDocument struct {
	TelegramID   int64     `firestore:"telegramId"`
	Username     string    `firestore:"username"`
	FirstName    string    `firestore:"firstName"`
	RegisteredAt time.Time `firestore:"registeredAt"`
}

func (d userDocument) domain() domain.User {
	return domain.User{
		TelegramID:   d.TelegramID,
		Username:     d.Username,
		FirstName:    d.FirstName,
		RegisteredAt: d.RegisteredAt.UTC(),
	}
}

func userDocID(telegramID int64) string {
	return strconv.FormatInt(telegramID, 10)
}

// UserRepository stores users under their Telegram id.
type UserRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[userDocument]
}

// GetOrCreate creates the user document in a transaction or refreshes its display fields.
func (r *UserRepository) GetOrCreate(ctx context.Context, user domain.User) (domain.User, bool, error) {
	registeredAt := user.RegisteredAt.UTC()
	if registeredAt.IsZero() {
		registeredAt = time.Now().UTC()
	}

	var (
		stored  userDocument
		created bool
	)
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, userDocID(user.TelegramID))
		if err != nil {
			return err
		}
		snapshot, err := tx.Get(ref)
		switch status.Code(err) {
		case codes.NotFound:
			stored = userDocument{
				TelegramID:   user.TelegramID,
				Username:     user.Username,
				FirstName:    user.FirstName,
				RegisteredAt: registeredAt,
			}
			created = true
			return tx.Create(ref, stored)
		case codes.OK:
		default:
			return err
		}

		if err := snapshot.DataTo(&stored); err != nil {
			return fmt.Errorf("firestore users decode %s: %w", ref.ID, err)
		}
		created = false
		var updates []firestore.Update
		if user.Username != "" && user.Username != stored.Username {
			stored.Username = user.Username
			updates = append(updates, firestore.Update{Path: "username", Value: user.Username})
		}
		if user.FirstName != "" && user.FirstName != stored.FirstName {
			stored.FirstName = user.FirstName
			updates = append(updates, firestore.Update{Path: "firstName", Value: user.FirstName})
		}
		if len(updates) == 0 {
			return nil
		}
		return tx.Update(ref, updates)
	})
	if err != nil {
		return domain.User{}, false, pfirestore.WrapError("users.get_or_create", err)
	}
	return stored.domain(), created, nil
}

// Get loads a user by Telegram id.
func (r *UserRepository) Get(ctx context.Context, telegramID int64) (domain.User, error) {
	doc, err := r.base.Get(ctx, userDocID(telegramID))
	if err != nil {
		return domain.User{}, err
	}
	return doc.Data.domain(), nil
}

// ListIDs returns every user id in registration order.
func (r *UserRepository) ListIDs(ctx context.Context) ([]int64, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("registeredAt", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, doc.Data.TelegramID)
	}
	return ids, nil
}
