package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"

	domain "github.com/hanko-field/storebot/internal/domain"
	psqlite "github.com/hanko-field/storebot/internal/platform/sqlite"
	"github.com/hanko-field/storebot/internal/repositories"
)

const orderColumns = `o.id, o.user_id, u.username, o.full_name, o.phone, o.address, o.status, o.paid, o.amount, o.currency,
	o.payment_id, o.payment_url, o.failure_note, o.created_at, o.updated_at, o.paid_at`

// OrderRepository persists orders and their line snapshots.
type OrderRepository struct {
	db *sql.DB
}

// Create stores the header and lines in one transaction.
func (r *OrderRepository) Create(ctx context.Context, order domain.Order) error {
	return psqlite.RunInTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO orders (id, user_id, full_name, phone, address, status, paid, amount, currency,
			   payment_id, payment_url, failure_note, created_at, updated_at, paid_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			order.ID, order.UserID, order.Recipient.FullName, order.Recipient.Phone, order.Recipient.Address,
			string(order.Status), order.Paid, order.Amount.Amount.StringFixed(2), order.Amount.Currency,
			order.PaymentID, order.PaymentURL, order.FailureNote,
			psqlite.Timestamp(order.CreatedAt), psqlite.Timestamp(order.UpdatedAt), psqlite.NullTimestamp(order.PaidAt))
		if err != nil {
			return psqlite.WrapError("orders.insert", err)
		}

		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO order_lines (order_id, line_no, product_id, quantity) VALUES (?, ?, ?, ?)`)
		if err != nil {
			return psqlite.WrapError("order_lines.prepare", err)
		}
		defer stmt.Close()

		for i, line := range order.Lines {
			if _, err := stmt.ExecContext(ctx, order.ID, i+1, line.ProductID, line.Quantity); err != nil {
				return psqlite.WrapError("order_lines.insert", err)
			}
		}
		return nil
	})
}

// UpdatePayment records the gateway outcome on the header.
func (r *OrderRepository) UpdatePayment(ctx context.Context, orderID string, update repositories.OrderPaymentUpdate) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET status = ?, paid = ?, payment_id = ?, payment_url = ?, failure_note = ?, updated_at = ?, paid_at = ?
		 WHERE id = ?`,
		string(update.Status), update.Paid, update.PaymentID, update.PaymentURL, update.FailureNote,
		psqlite.Timestamp(update.UpdatedAt), psqlite.NullTimestamp(update.PaidAt), orderID)
	if err != nil {
		return psqlite.WrapError("orders.update_payment", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return psqlite.WrapError("orders.update_payment", err)
	}
	if affected == 0 {
		return psqlite.NotFound("orders.update_payment")
	}
	return nil
}

// Get loads one order with lines.
func (r *OrderRepository) Get(ctx context.Context, orderID string) (domain.Order, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders o JOIN users u ON u.telegram_id = o.user_id WHERE o.id = ?`, orderID)
	order, err := scanOrder(row)
	if err != nil {
		return domain.Order{}, psqlite.WrapError("orders.get", err)
	}
	lines, err := r.listLines(ctx, `WHERE l.order_id = ?`, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	order.Lines = lines[order.ID]
	return order, nil
}

// List returns every order with lines, oldest first.
func (r *OrderRepository) List(ctx context.Context) ([]domain.Order, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders o JOIN users u ON u.telegram_id = o.user_id ORDER BY o.created_at, o.rowid`)
	if err != nil {
		return nil, psqlite.WrapError("orders.list", err)
	}
	var orders []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, psqlite.WrapError("orders.list", err)
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, psqlite.WrapError("orders.list", err)
	}
	rows.Close()

	lines, err := r.listLines(ctx, "")
	if err != nil {
		return nil, err
	}
	for i := range orders {
		orders[i].Lines = lines[orders[i].ID]
	}
	return orders, nil
}

func (r *OrderRepository) listLines(ctx context.Context, where string, args ...any) (map[string][]domain.OrderLine, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT l.order_id, l.product_id, s.name, p.description, l.quantity
		 FROM order_lines l
		 JOIN products p ON p.id = l.product_id
		 JOIN subcategories s ON s.id = p.subcategory_id
		 `+where+`
		 ORDER BY l.order_id, l.line_no`, args...)
	if err != nil {
		return nil, psqlite.WrapError("order_lines.list", err)
	}
	defer rows.Close()

	lines := make(map[string][]domain.OrderLine)
	for rows.Next() {
		var line domain.OrderLine
		if err := rows.Scan(&line.OrderID, &line.ProductID, &line.SubcategoryName, &line.Description, &line.Quantity); err != nil {
			return nil, psqlite.WrapError("order_lines.list", err)
		}
		lines[line.OrderID] = append(lines[line.OrderID], line)
	}
	return lines, psqlite.WrapError("order_lines.list", rows.Err())
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order                domain.Order
		status, amount       string
		createdAt, updatedAt int64
		paidAt               sql.NullInt64
	)
	if err := row.Scan(&order.ID, &order.UserID, &order.Username,
		&order.Recipient.FullName, &order.Recipient.Phone, &order.Recipient.Address,
		&status, &order.Paid, &amount, &order.Amount.Currency,
		&order.PaymentID, &order.PaymentURL, &order.FailureNote, &createdAt, &updatedAt, &paidAt); err != nil {
		return domain.Order{}, err
	}
	value, err := decimal.NewFromString(amount)
	if err != nil {
		return domain.Order{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	order.Amount.Amount = value
	order.Status = domain.OrderStatus(status)
	order.CreatedAt = psqlite.Time(createdAt)
	order.UpdatedAt = psqlite.Time(updatedAt)
	order.PaidAt = psqlite.NullTime(paidAt)
	return order, nil
}
