package services

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hanko-field/storebot/internal/conversation"
	domain "github.com/hanko-field/storebot/internal/domain"
)

// UserService registers Telegram users on first contact.
type UserService interface {
	// Register runs get-or-create for the account. created reports a first interaction.
	Register(ctx context.Context, cmd RegisterUserCommand) (user domain.User, created bool, err error)
	ListRecipientIDs(ctx context.Context) ([]int64, error)
}

// NavigatorService computes catalog screens for navigation events.
type NavigatorService interface {
	EnterCatalog(ctx context.Context) (CatalogScreen, error)
	ChooseCategory(ctx context.Context, categoryID string) (CatalogScreen, error)
	ChooseSubcategory(ctx context.Context, subcategoryID string) (ProductScreen, error)
	Next(ctx context.Context, browsing conversation.Browsing) (ProductScreen, error)
	Prev(ctx context.Context, browsing conversation.Browsing) (ProductScreen, error)
	Current(ctx context.Context, browsing conversation.Browsing) (ProductScreen, error)
	// BackToSubcategories lists the subcategories of the category owning subcategoryID.
	BackToSubcategories(ctx context.Context, subcategoryID string) (CatalogScreen, error)
	BackToCategories(ctx context.Context) (CatalogScreen, error)
}

// CartService manages cart lines with upsert semantics.
type CartService interface {
	AddOrReplace(ctx context.Context, userID int64, productID string, quantity int) error
	Remove(ctx context.Context, userID int64, productID string) error
	Clear(ctx context.Context, userID int64) error
	List(ctx context.Context, userID int64) ([]domain.CartItem, error)
	IsEmpty(ctx context.Context, userID int64) (bool, error)
}

// CheckoutService turns a confirmed dialogue into an order and a payment request.
type CheckoutService interface {
	// Preview returns the cart lines shown before the dialogue starts. An empty cart fails with ErrCheckoutEmptyCart.
	Preview(ctx context.Context, userID int64) ([]domain.CartItem, error)
	Confirm(ctx context.Context, cmd ConfirmCheckoutCommand) (CheckoutResult, error)
}

// FAQService answers help topics.
type FAQService interface {
	Topics() []FAQEntry
	Lookup(topic string) (FAQEntry, bool)
	Search(query string) []FAQEntry
}

// BroadcastService fans a notification out to every user.
type BroadcastService interface {
	Send(ctx context.Context, cmd BroadcastCommand) (BroadcastReport, error)
}

// ExportService renders every order into a spreadsheet.
type ExportService interface {
	ExportOrders(ctx context.Context) (OrderExport, error)
}

// CatalogImportService loads catalog trees and removes products.
type CatalogImportService interface {
	Import(ctx context.Context, catalog CatalogImport) (CatalogImportResult, error)
	DeleteProduct(ctx context.Context, productID string) error
}

// MessageSender delivers one broadcast message to a chat.
type MessageSender interface {
	SendHTML(ctx context.Context, chatID int64, text string) error
}

// OrderEventPublisher emits order lifecycle events.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) (string, error)
}

// Order event types.
const (
	OrderEventPlaced        = "order.placed"
	OrderEventPaid          = "order.paid"
	OrderEventPaymentFailed = "order.payment_failed"
)

// OrderEvent is the payload published for order lifecycle changes.
type OrderEvent struct {
	Type       string    `json:"type"`
	OrderID    string    `json:"orderId"`
	UserID     int64     `json:"userId"`
	Status     string    `json:"status"`
	Amount     string    `json:"amount"`
	Currency   string    `json:"currency"`
	OccurredAt time.Time `json:"occurredAt"`
}

// RegisterUserCommand carries the Telegram account fields seen on an update.
type RegisterUserCommand struct {
	TelegramID int64
	Username   string
	FirstName  string
}

// CatalogNodeKind identifies the level of a catalog list screen.
type CatalogNodeKind string

const (
	CatalogNodeCategory    CatalogNodeKind = "category"
	CatalogNodeSubcategory CatalogNodeKind = "subcategory"
)

// CatalogNode is one selectable entry of a list screen.
type CatalogNode struct {
	ID   string
	Name string
}

// CatalogScreen lists categories, or the subcategories of CategoryID.
type CatalogScreen struct {
	Kind       CatalogNodeKind
	CategoryID string
	Nodes      []CatalogNode
}

// ProductScreen is a single product with its cyclic position. Browsing is the cursor state
// the caller stores for the following next/prev events.
type ProductScreen struct {
	Product  domain.Product
	Index    int
	Count    int
	HasImage bool
	Browsing conversation.Browsing
}

// ConfirmCheckoutCommand confirms a checkout attempt.
type ConfirmCheckoutCommand struct {
	ChatID    int64
	UserID    int64
	AttemptID string
	Recipient domain.Recipient
}

// CheckoutResult describes the outcome of a confirmed checkout.
type CheckoutResult struct {
	Order      domain.Order
	PaymentURL string
	Paid       bool
	// Replayed is set when the result comes from an earlier completed confirmation.
	Replayed bool
}

// FAQEntry is one help topic.
type FAQEntry struct {
	Topic  string `yaml:"topic"`
	Emoji  string `yaml:"emoji"`
	Answer string `yaml:"answer"`
}

// BroadcastCommand describes an administrator notification.
type BroadcastCommand struct {
	Title   string
	Message string
	// Recipients overrides the full user list when non-empty.
	Recipients []int64
}

// BroadcastReport is the persisted broadcast plus its partitioned delivery result.
type BroadcastReport struct {
	Broadcast domain.Broadcast
	Result    domain.BroadcastResult
}

// OrderExport is a rendered spreadsheet.
type OrderExport struct {
	FileName    string
	ContentType string
	Data        []byte
	Orders      int
	GeneratedAt time.Time
}

// CatalogImport is the seed file layout.
type CatalogImport struct {
	Categories []CatalogImportCategory `yaml:"categories" json:"categories"`
}

// CatalogImportCategory is a category with nested subcategories.
type CatalogImportCategory struct {
	Name          string                     `yaml:"name" json:"name"`
	Subcategories []CatalogImportSubcategory `yaml:"subcategories" json:"subcategories"`
}

// CatalogImportSubcategory is a subcategory with nested products.
type CatalogImportSubcategory struct {
	Name     string                 `yaml:"name" json:"name"`
	Products []CatalogImportProduct `yaml:"products" json:"products"`
}

// CatalogImportProduct is one product of the seed file.
type CatalogImportProduct struct {
	Description string `yaml:"description" json:"description"`
	Image       string `yaml:"image,omitempty" json:"image,omitempty"`
}

// CatalogImportResult counts inserted rows.
type CatalogImportResult struct {
	Categories    int `json:"categories"`
	Subcategories int `json:"subcategories"`
	Products      int `json:"products"`
}

// PaymentSettings are the flat-amount payment parameters used at checkout.
type PaymentSettings struct {
	Provider           string
	Amount             decimal.Decimal
	Currency           string
	ReturnURL          string
	Timeout            time.Duration
	MarkPaidOnRedirect bool
}
