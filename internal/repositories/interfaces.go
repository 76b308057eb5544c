package repositories

import (
	"context"
	"time"

	domain "github.com/hanko-field/storebot/internal/domain"
)

// Registry exposes typed repository accessors and lifecycle hooks for dependency injection.
type Registry interface {
	Close(ctx context.Context) error

	Users() UserRepository
	Catalog() CatalogRepository
	CatalogWriter() CatalogWriter
	Carts() CartRepository
	Orders() OrderRepository
	Broadcasts() BroadcastRepository
}

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UserRepository persists Telegram users.
type UserRepository interface {
	// GetOrCreate inserts the user when absent. The returned flag reports whether a row was created.
	// Existing users keep their registration time; username and first name are refreshed.
	GetOrCreate(ctx context.Context, user domain.User) (domain.User, bool, error)
	Get(ctx context.Context, telegramID int64) (domain.User, error)
	ListIDs(ctx context.Context) ([]int64, error)
}

// CatalogRepository reads the category tree. Lists are returned in insertion order.
type CatalogRepository interface {
	ListCategories(ctx context.Context) ([]domain.Category, error)
	GetCategory(ctx context.Context, categoryID string) (domain.Category, error)
	ListSubcategories(ctx context.Context, categoryID string) ([]domain.Subcategory, error)
	GetSubcategory(ctx context.Context, subcategoryID string) (domain.Subcategory, error)
	ListProductIDs(ctx context.Context, subcategoryID string) ([]string, error)
	GetProduct(ctx context.Context, productID string) (domain.Product, error)
}

// CatalogWriter mutates the catalog from admin tooling.
type CatalogWriter interface {
	InsertCategory(ctx context.Context, category domain.Category) error
	InsertSubcategory(ctx context.Context, subcategory domain.Subcategory) error
	InsertProduct(ctx context.Context, product domain.Product) error
	// DeleteProduct fails with a conflict error while any order line references the product.
	DeleteProduct(ctx context.Context, productID string) error
}

// CartRepository stores cart lines keyed by (user, product).
type CartRepository interface {
	// Upsert replaces the quantity of an existing line or inserts a new one, keeping the original position.
	Upsert(ctx context.Context, line domain.CartLine) error
	Delete(ctx context.Context, userID int64, productID string) error
	DeleteAll(ctx context.Context, userID int64) error
	List(ctx context.Context, userID int64) ([]domain.CartItem, error)
	Exists(ctx context.Context, userID int64) (bool, error)
}

// OrderPaymentUpdate records the outcome of a payment request.
type OrderPaymentUpdate struct {
	Status      domain.OrderStatus
	Paid        bool
	PaymentID   string
	PaymentURL  string
	FailureNote string
	UpdatedAt   time.Time
	PaidAt      *time.Time
}

// OrderRepository persists order headers and their line snapshots.
type OrderRepository interface {
	// Create stores the header and all lines atomically.
	Create(ctx context.Context, order domain.Order) error
	UpdatePayment(ctx context.Context, orderID string, update OrderPaymentUpdate) error
	Get(ctx context.Context, orderID string) (domain.Order, error)
	// List returns every order with lines, newest last.
	List(ctx context.Context) ([]domain.Order, error)
}

// BroadcastRepository stores broadcast records.
type BroadcastRepository interface {
	Insert(ctx context.Context, broadcast domain.Broadcast) error
	MarkSent(ctx context.Context, broadcastID string, sentAt time.Time) error
	Get(ctx context.Context, broadcastID string) (domain.Broadcast, error)
}
