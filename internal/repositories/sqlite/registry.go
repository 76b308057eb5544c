package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/hanko-field/storebot/internal/repositories"
)

// Registry wires every SQLite repository around one database handle.
type Registry struct {
	db         *sql.DB
	users      *UserRepository
	catalog    *CatalogRepository
	carts      *CartRepository
	orders     *OrderRepository
	broadcasts *BroadcastRepository
}

var _ repositories.Registry = (*Registry)(nil)

// NewRegistry constructs the SQLite registry. The caller transfers ownership of db.
func NewRegistry(db *sql.DB) (*Registry, error) {
	if db == nil {
		return nil, errors.New("sqlite registry: database is required")
	}
	return &Registry{
		db:         db,
		users:      &UserRepository{db: db},
		catalog:    &CatalogRepository{db: db},
		carts:      &CartRepository{db: db},
		orders:     &OrderRepository{db: db},
		broadcasts: &BroadcastRepository{db: db},
	}, nil
}

// Ping verifies the database is reachable.
func (r *Registry) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close releases the database handle.
func (r *Registry) Close(context.Context) error {
	return r.db.Close()
}

func (r *Registry) Users() repositories.UserRepository { return r.users }
func (r *Registry) Catalog() repositories.CatalogRepository { return r.catalog }
func (r *Registry) CatalogWriter() repositories.CatalogWriter { return r.catalog }
func (r *Registry) Carts() repositories.CartRepository { return r.carts }
func (r *Registry) Orders() repositories.OrderRepository { return r.orders }
func (r *Registry) Broadcasts() repositories.BroadcastRepository { return r.broadcasts }
