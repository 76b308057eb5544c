package firestore

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/hanko-field/storebot/internal/platform/firestore"
	"github.com/hanko-field/storebot/internal/repositories"
)

const (
	usersCollection         = "users"
	categoriesCollection    = "categories"
	subcategoriesCollection = "subcategories"
	productsCollection      = "products"
	cartLinesCollection     = "cart_lines"
	ordersCollection        = "orders"
	broadcastsCollection    = "broadcasts"
	countersCollection      = "counters"

	catalogCounterID = "catalog"
)

// Registry wires the Firestore repositories around a shared provider.
type Registry struct {
	provider   *pfirestore.Provider
	users      *UserRepository
	catalog    *CatalogRepository
	carts      *CartRepository
	orders     *OrderRepository
	broadcasts *BroadcastRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs the Firestore registry. Close releases the provider.
func NewRegistry(provider *pfirestore.Provider) (*Registry, error) {
	if provider == nil {
		return nil, errors.New("firestore registry: provider is required")
	}
	return &Registry{
		provider:   provider,
		users:      &UserRepository{provider: provider, base: pfirestore.NewBaseRepository[userDocument](provider, usersCollection)},
		catalog:    newCatalogRepository(provider),
		carts:      &CartRepository{provider: provider, base: pfirestore.NewBaseRepository[cartLineDocument](provider, cartLinesCollection)},
		orders:     &OrderRepository{provider: provider, base: pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection)},
		broadcasts: &BroadcastRepository{base: pfirestore.NewBaseRepository[broadcastDocument](provider, broadcastsCollection)},
	}, nil
}

// Ping initialises the client when needed and reads a missing document to confirm connectivity.
func (r *Registry) Ping(ctx context.Context) error {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}
	_, err = client.Collection(countersCollection).Doc(catalogCounterID).Get(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return err
	}
	return nil
}

// Close releases the provider.
func (r *Registry) Close(ctx context.Context) error {
	return r.provider.Close(ctx)
}

func (r *Registry) Users() repositories.UserRepository { return r.users }
func (r *Registry) Catalog() repositories.CatalogRepository { return r.catalog }
func (r *Registry) CatalogWriter() repositories.CatalogWriter { return r.catalog }
func (r *Registry) Carts() repositories.CartRepository { return r.carts }
func (r *Registry) Orders() repositories.OrderRepository { return r.orders }
func (r *Registry) Broadcasts() repositories.BroadcastRepository { return r.broadcasts }
