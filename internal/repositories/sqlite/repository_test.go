package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	domain "github.com/hanko-field/storebot/internal/domain"
	psqlite "github.com/hanko-field/storebot/internal/platform/sqlite"
	"github.com/hanko-field/storebot/internal/repositories"
	"github.com/hanko-field/storebot/internal/repositories/sqlite"
)

type repositorySuite struct {
	suite.Suite
	ctx      context.Context
	registry *sqlite.Registry
	now      time.Time
}

func TestRepositorySuite(t *testing.T) {
	suite.Run(t, new(repositorySuite))
}

func (s *repositorySuite) SetupTest() {
	s.ctx = context.Background()
	db, err := psqlite.Open(s.ctx, ":memory:")
	s.Require().NoError(err)
	registry, err := sqlite.NewRegistry(db)
	s.Require().NoError(err)
	s.registry = registry
	s.now = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	s.seedCatalog()
}

func (s *repositorySuite) TearDownTest() {
	s.Require().NoError(s.registry.Close(s.ctx))
}

func (s *repositorySuite) seedCatalog() {
	w := s.registry.CatalogWriter()
	s.Require().NoError(w.InsertCategory(s.ctx, domain.Category{ID: "cat-1", Name: "Одежда", CreatedAt: s.now}))
	s.Require().NoError(w.InsertCategory(s.ctx, domain.Category{ID: "cat-2", Name: "Обувь", CreatedAt: s.now}))
	s.Require().NoError(w.InsertSubcategory(s.ctx, domain.Subcategory{ID: "sub-1", CategoryID: "cat-1", Name: "Футболки", CreatedAt: s.now}))
	for _, id := range []string{"p-3", "p-1", "p-2"} {
		s.Require().NoError(w.InsertProduct(s.ctx, domain.Product{
			ID:            id,
			SubcategoryID: "sub-1",
			Description:   "Футболка " + id,
			CreatedAt:     s.now,
		}))
	}
}

func (s *repositorySuite) user(id int64) domain.User {
	user, _, err := s.registry.Users().GetOrCreate(s.ctx, domain.User{TelegramID: id, Username: "buyer", FirstName: "Анна", RegisteredAt: s.now})
	s.Require().NoError(err)
	return user
}

func (s *repositorySuite) TestCatalogListOrdering() {
	categories, err := s.registry.Catalog().ListCategories(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(categories, 2)
	s.Equal("Обувь", categories[0].Name)
	s.Equal("Одежда", categories[1].Name)

	ids, err := s.registry.Catalog().ListProductIDs(s.ctx, "sub-1")
	s.Require().NoError(err)
	s.Equal([]string{"p-3", "p-1", "p-2"}, ids)

	product, err := s.registry.Catalog().GetProduct(s.ctx, "p-1")
	s.Require().NoError(err)
	s.Equal("Футболки", product.SubcategoryName)
	s.Equal("cat-1", product.CategoryID)
	s.False(product.HasImage())

	subs, err := s.registry.Catalog().ListSubcategories(s.ctx, "cat-2")
	s.Require().NoError(err)
	s.Empty(subs)
}

func (s *repositorySuite) TestSubcategoriesOrderedByNameAndUniquePerCategory() {
	w := s.registry.CatalogWriter()
	s.Require().NoError(w.InsertSubcategory(s.ctx, domain.Subcategory{ID: "sub-2", CategoryID: "cat-1", Name: "Куртки", CreatedAt: s.now}))
	s.Require().NoError(w.InsertSubcategory(s.ctx, domain.Subcategory{ID: "sub-3", CategoryID: "cat-2", Name: "Футболки", CreatedAt: s.now}))

	subs, err := s.registry.Catalog().ListSubcategories(s.ctx, "cat-1")
	s.Require().NoError(err)
	s.Require().Len(subs, 2)
	s.Equal("sub-2", subs[0].ID)
	s.Equal("sub-1", subs[1].ID)

	err = w.InsertSubcategory(s.ctx, domain.Subcategory{ID: "sub-4", CategoryID: "cat-1", Name: "Футболки", CreatedAt: s.now})
	var repoErr repositories.RepositoryError
	s.Require().ErrorAs(err, &repoErr)
	s.True(repoErr.IsConflict())
}

func (s *repositorySuite) TestCatalogMissingProductIsNotFound() {
	_, err := s.registry.Catalog().GetProduct(s.ctx, "missing")
	s.Require().Error(err)
	var repoErr repositories.RepositoryError
	s.Require().ErrorAs(err, &repoErr)
	s.True(repoErr.IsNotFound())
}

func (s *repositorySuite) TestDuplicateCategoryNameIsConflict() {
	err := s.registry.CatalogWriter().InsertCategory(s.ctx, domain.Category{ID: "cat-3", Name: "Одежда", CreatedAt: s.now})
	var repoErr repositories.RepositoryError
	s.Require().ErrorAs(err, &repoErr)
	s.True(repoErr.IsConflict())
}

func (s *repositorySuite) TestGetOrCreateIsIdempotent() {
	users := s.registry.Users()
	first, created, err := users.GetOrCreate(s.ctx, domain.User{TelegramID: 42, Username: "old", FirstName: "Иван", RegisteredAt: s.now})
	s.Require().NoError(err)
	s.True(created)

	second, created, err := users.GetOrCreate(s.ctx, domain.User{TelegramID: 42, Username: "new", RegisteredAt: s.now.Add(time.Hour)})
	s.Require().NoError(err)
	s.False(created)
	s.Equal(first.RegisteredAt, second.RegisteredAt)
	s.Equal("new", second.Username)
	s.Equal("Иван", second.FirstName)

	ids, err := users.ListIDs(s.ctx)
	s.Require().NoError(err)
	s.Equal([]int64{42}, ids)
}

func (s *repositorySuite) TestCartUpsertReplacesQuantityAndKeepsPosition() {
	s.user(7)
	carts := s.registry.Carts()
	s.Require().NoError(carts.Upsert(s.ctx, domain.CartLine{UserID: 7, ProductID: "p-1", Quantity: 2, UpdatedAt: s.now}))
	s.Require().NoError(carts.Upsert(s.ctx, domain.CartLine{UserID: 7, ProductID: "p-2", Quantity: 1, UpdatedAt: s.now}))
	s.Require().NoError(carts.Upsert(s.ctx, domain.CartLine{UserID: 7, ProductID: "p-1", Quantity: 5, UpdatedAt: s.now.Add(time.Minute)}))
	s.Require().NoError(carts.Upsert(s.ctx, domain.CartLine{UserID: 7, ProductID: "p-1", Quantity: 5, UpdatedAt: s.now.Add(2 * time.Minute)}))

	items, err := carts.List(s.ctx, 7)
	s.Require().NoError(err)
	s.Require().Len(items, 2)
	s.Equal("p-1", items[0].Line.ProductID)
	s.Equal(5, items[0].Line.Quantity)
	s.Equal(s.now, items[0].Line.AddedAt)
	s.Equal("Футболки", items[0].Product.SubcategoryName)
	s.Equal("p-2", items[1].Line.ProductID)
}

func (s *repositorySuite) TestCartDeleteAndClear() {
	s.user(7)
	carts := s.registry.Carts()
	s.Require().NoError(carts.Upsert(s.ctx, domain.CartLine{UserID: 7, ProductID: "p-1", Quantity: 1, UpdatedAt: s.now}))
	s.Require().NoError(carts.Upsert(s.ctx, domain.CartLine{UserID: 7, ProductID: "p-2", Quantity: 1, UpdatedAt: s.now}))

	s.Require().NoError(carts.Delete(s.ctx, 7, "p-1"))
	s.Require().NoError(carts.Delete(s.ctx, 7, "p-1"))
	exists, err := carts.Exists(s.ctx, 7)
	s.Require().NoError(err)
	s.True(exists)

	s.Require().NoError(carts.DeleteAll(s.ctx, 7))
	s.Require().NoError(carts.DeleteAll(s.ctx, 7))
	exists, err = carts.Exists(s.ctx, 7)
	s.Require().NoError(err)
	s.False(exists)
}

func (s *repositorySuite) TestCartRejectsUnknownUser() {
	err := s.registry.Carts().Upsert(s.ctx, domain.CartLine{UserID: 99, ProductID: "p-1", Quantity: 1, UpdatedAt: s.now})
	var repoErr repositories.RepositoryError
	s.Require().ErrorAs(err, &repoErr)
	s.True(repoErr.IsConflict())
}

func (s *repositorySuite) TestOrderLifecycle() {
	s.user(7)
	orders := s.registry.Orders()
	order := domain.Order{
		ID:        "ord-1",
		UserID:    7,
		Recipient: domain.Recipient{FullName: "Анна Иванова", Phone: "+79991234567", Address: "Москва, ул. Ленина 1"},
		Status:    domain.OrderStatusPendingPayment,
		Amount:    domain.Money{Amount: decimal.RequireFromString("199"), Currency: "RUB"},
		Lines: []domain.OrderLine{
			{ProductID: "p-2", Quantity: 3},
			{ProductID: "p-1", Quantity: 1},
		},
		CreatedAt: s.now,
		UpdatedAt: s.now,
	}
	s.Require().NoError(orders.Create(s.ctx, order))

	paidAt := s.now.Add(time.Minute)
	s.Require().NoError(orders.UpdatePayment(s.ctx, "ord-1", repositories.OrderPaymentUpdate{
		Status:     domain.OrderStatusPaid,
		Paid:       true,
		PaymentID:  "pay-1",
		PaymentURL: "https://pay.example/1",
		UpdatedAt:  paidAt,
		PaidAt:     &paidAt,
	}))

	stored, err := orders.Get(s.ctx, "ord-1")
	s.Require().NoError(err)
	s.Equal("buyer", stored.Username)
	s.True(stored.Paid)
	s.Equal(domain.OrderStatusPaid, stored.Status)
	s.Equal("199.00 RUB", stored.Amount.String())
	s.Require().NotNil(stored.PaidAt)
	s.Equal(paidAt, *stored.PaidAt)
	s.Require().Len(stored.Lines, 2)
	s.Equal("p-2", stored.Lines[0].ProductID)
	s.Equal(3, stored.Lines[0].Quantity)
	s.Equal("Футболка p-2", stored.Lines[0].Description)

	all, err := orders.List(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(all, 1)
	s.Len(all[0].Lines, 2)
}

func (s *repositorySuite) TestOrderCreateIsAtomic() {
	s.user(7)
	err := s.registry.Orders().Create(s.ctx, domain.Order{
		ID:        "ord-1",
		UserID:    7,
		Status:    domain.OrderStatusPendingPayment,
		Amount:    domain.Money{Amount: decimal.RequireFromString("199"), Currency: "RUB"},
		Lines:     []domain.OrderLine{{ProductID: "p-1", Quantity: 1}, {ProductID: "missing", Quantity: 1}},
		CreatedAt: s.now,
		UpdatedAt: s.now,
	})
	s.Require().Error(err)

	_, err = s.registry.Orders().Get(s.ctx, "ord-1")
	var repoErr repositories.RepositoryError
	s.Require().ErrorAs(err, &repoErr)
	s.True(repoErr.IsNotFound())
}

func (s *repositorySuite) TestReferencedProductCannotBeDeleted() {
	s.user(7)
	s.Require().NoError(s.registry.Orders().Create(s.ctx, domain.Order{
		ID:        "ord-1",
		UserID:    7,
		Status:    domain.OrderStatusPendingPayment,
		Amount:    domain.Money{Amount: decimal.RequireFromString("199"), Currency: "RUB"},
		Lines:     []domain.OrderLine{{ProductID: "p-1", Quantity: 1}},
		CreatedAt: s.now,
		UpdatedAt: s.now,
	}))

	err := s.registry.CatalogWriter().DeleteProduct(s.ctx, "p-1")
	var repoErr repositories.RepositoryError
	s.Require().ErrorAs(err, &repoErr)
	s.True(repoErr.IsConflict())

	s.Require().NoError(s.registry.CatalogWriter().DeleteProduct(s.ctx, "p-2"))
	err = s.registry.CatalogWriter().DeleteProduct(s.ctx, "p-2")
	s.Require().ErrorAs(err, &repoErr)
	s.True(repoErr.IsNotFound())
}

func (s *repositorySuite) TestBroadcastMarkSent() {
	broadcasts := s.registry.Broadcasts()
	s.Require().NoError(broadcasts.Insert(s.ctx, domain.Broadcast{ID: "b-1", Title: "Акция", Message: "Скидки", CreatedAt: s.now}))

	sentAt := s.now.Add(time.Hour)
	s.Require().NoError(broadcasts.MarkSent(s.ctx, "b-1", sentAt))

	stored, err := broadcasts.Get(s.ctx, "b-1")
	s.Require().NoError(err)
	s.True(stored.Sent)
	s.Require().NotNil(stored.SentAt)
	s.Equal(sentAt, *stored.SentAt)

	err = broadcasts.MarkSent(s.ctx, "missing", sentAt)
	var repoErr repositories.RepositoryError
	s.Require().ErrorAs(err, &repoErr)
	s.True(repoErr.IsNotFound())
}

func TestNewRegistryRequiresDB(t *testing.T) {
	_, err := sqlite.NewRegistry(nil)
	require.Error(t, err)
}
