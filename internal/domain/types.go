package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// User is a storefront customer identified by their Telegram account id.
type User struct {
	TelegramID   int64
	Username     string
	FirstName    string
	RegisteredAt time.Time
}

// Category is the top level of the catalog tree.
type Category struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// Subcategory groups products beneath a single category.
type Subcategory struct {
	ID         string
	CategoryID string
	Name       string
	CreatedAt  time.Time
}

// Product is a sellable catalog entry. ImageRef is optional and may point at a
// local media path, an http(s) URL, or a gs://bucket/object reference.
type Product struct {
	ID              string
	SubcategoryID   string
	SubcategoryName string
	CategoryID      string
	Description     string
	ImageRef        string
	CreatedAt       time.Time
}

// HasImage reports whether the product carries an image reference.
func (p Product) HasImage() bool {
	return p.ImageRef != ""
}

// CartLine is the quantity a user holds for one product. At most one line exists per (user, product).
type CartLine struct {
	UserID    int64
	ProductID string
	Quantity  int
	AddedAt   time.Time
	UpdatedAt time.Time
}

// CartItem is a cart line resolved against the catalog for presentation.
type CartItem struct {
	Line    CartLine
	Product Product
}

// OrderStatus describes the payment lifecycle of an order.
type OrderStatus string

const (
	// OrderStatusPendingPayment is set when the order is created and the gateway has not been called yet.
	OrderStatusPendingPayment OrderStatus = "pending_payment"
	// OrderStatusPaid marks orders considered paid.
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusPaymentFailed marks orders whose payment request could not be created.
	OrderStatusPaymentFailed OrderStatus = "payment_failed"
)

// Recipient is the delivery contact captured during checkout.
type Recipient struct {
	FullName string
	Phone    string
	Address  string
}

// Money is a decimal amount in a single currency.
type Money struct {
	Amount   decimal.Decimal
	Currency string
}

// String renders the amount with two decimals, e.g. "199.00 RUB".
func (m Money) String() string {
	return m.Amount.StringFixed(2) + " " + m.Currency
}

// Order is created once per completed checkout. Lines are immutable snapshots.
type Order struct {
	ID          string
	UserID      int64
	Username    string
	Recipient   Recipient
	Status      OrderStatus
	Paid        bool
	Amount      Money
	PaymentID   string
	PaymentURL  string
	Lines       []OrderLine
	CreatedAt   time.Time
	UpdatedAt   time.Time
	PaidAt      *time.Time
	FailureNote string
}

// OrderLine snapshots one cart line at order creation time.
type OrderLine struct {
	OrderID         string
	ProductID       string
	SubcategoryName string
	Description     string
	Quantity        int
}

// Broadcast is an administrator notification sent to every user.
type Broadcast struct {
	ID        string
	Title     string
	Message   string
	Sent      bool
	SentAt    *time.Time
	CreatedAt time.Time
}

// BroadcastResult partitions recipients by delivery outcome.
type BroadcastResult struct {
	Succeeded []int64
	Failed    []int64
}
