package sqlite

import (
	"context"
	"database/sql"
	"time"

	domain "github.com/hanko-field/storebot/internal/domain"
	psqlite "github.com/hanko-field/storebot/internal/platform/sqlite"
)

// CartRepository stores cart lines keyed by (user_id, product_id).
type CartRepository struct {
	db *sql.DB
}

// Upsert replaces the quantity for an existing line. The row id, and with it the list position, is preserved.
func (r *CartRepository) Upsert(ctx context.Context, line domain.CartLine) error {
	now := line.UpdatedAt
	if now.IsZero() {
		now = time.Now()
	}
	addedAt := line.AddedAt
	if addedAt.IsZero() {
		addedAt = now
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO cart_lines (user_id, product_id, quantity, added_at, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, product_id) DO UPDATE SET quantity = excluded.quantity, updated_at = excluded.updated_at`,
		line.UserID, line.ProductID, line.Quantity, psqlite.Timestamp(addedAt), psqlite.Timestamp(now))
	return psqlite.WrapError("cart_lines.upsert", err)
}

// Delete removes one line. A missing line is not an error.
func (r *CartRepository) Delete(ctx context.Context, userID int64, productID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM cart_lines WHERE user_id = ? AND product_id = ?`, userID, productID)
	return psqlite.WrapError("cart_lines.delete", err)
}

// DeleteAll removes every line of the user.
func (r *CartRepository) DeleteAll(ctx context.Context, userID int64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM cart_lines WHERE user_id = ?`, userID)
	return psqlite.WrapError("cart_lines.delete_all", err)
}

// List returns the user's lines in insertion order, joined with product data.
func (r *CartRepository) List(ctx context.Context, userID int64) ([]domain.CartItem, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT c.user_id, c.product_id, c.quantity, c.added_at, c.updated_at, `+productColumns+`
		 FROM cart_lines c
		 JOIN products p ON p.id = c.product_id
		 JOIN subcategories s ON s.id = p.subcategory_id
		 WHERE c.user_id = ?
		 ORDER BY c.rowid`, userID)
	if err != nil {
		return nil, psqlite.WrapError("cart_lines.list", err)
	}
	defer rows.Close()

	var items []domain.CartItem
	for rows.Next() {
		var (
			item               domain.CartItem
			addedAt, updatedAt int64
			productCreatedAt   int64
		)
		if err := rows.Scan(&item.Line.UserID, &item.Line.ProductID, &item.Line.Quantity, &addedAt, &updatedAt,
			&item.Product.ID, &item.Product.SubcategoryID, &item.Product.SubcategoryName, &item.Product.CategoryID,
			&item.Product.Description, &item.Product.ImageRef, &productCreatedAt); err != nil {
			return nil, psqlite.WrapError("cart_lines.list", err)
		}
		item.Line.AddedAt = psqlite.Time(addedAt)
		item.Line.UpdatedAt = psqlite.Time(updatedAt)
		item.Product.CreatedAt = psqlite.Time(productCreatedAt)
		items = append(items, item)
	}
	return items, psqlite.WrapError("cart_lines.list", rows.Err())
}

// Exists reports whether the user has at least one line.
func (r *CartRepository) Exists(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM cart_lines WHERE user_id = ?)`, userID).Scan(&exists)
	if err != nil {
		return false, psqlite.WrapError("cart_lines.exists", err)
	}
	return exists, nil
}
