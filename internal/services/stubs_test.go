package services

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	domain "github.com/hanko-field/storebot/internal/domain"
	"github.com/hanko-field/storebot/internal/payments"
	"github.com/hanko-field/storebot/internal/repositories"
)

type repoError struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e repoError) Error() string { return "repository error" }
func (e repoError) IsNotFound() bool { return e.notFound }
func (e repoError) IsConflict() bool { return e.conflict }
func (e repoError) IsUnavailable() bool { return e.unavailable }

var _ repositories.RepositoryError = repoError{}

type stubUserRepository struct {
	getOrCreateFunc func(ctx context.Context, user domain.User) (domain.User, bool, error)
	listIDsFunc     func(ctx context.Context) ([]int64, error)
}

func (s *stubUserRepository) GetOrCreate(ctx context.Context, user domain.User) (domain.User, bool, error) {
	if s.getOrCreateFunc == nil {
		return user, true, nil
	}
	return s.getOrCreateFunc(ctx, user)
}

func (s *stubUserRepository) Get(context.Context, int64) (domain.User, error) {
	return domain.User{}, repoError{notFound: true}
}

func (s *stubUserRepository) ListIDs(ctx context.Context) ([]int64, error) {
	if s.listIDsFunc == nil {
		return nil, nil
	}
	return s.listIDsFunc(ctx)
}

// memoryCatalog serves a fixed tree in declaration order.
type memoryCatalog struct {
	categories    []domain.Category
	subcategories []domain.Subcategory
	products      []domain.Product
}

func (m *memoryCatalog) ListCategories(context.Context) ([]domain.Category, error) {
	return append([]domain.Category(nil), m.categories...), nil
}

func (m *memoryCatalog) GetCategory(_ context.Context, id string) (domain.Category, error) {
	for _, c := range m.categories {
		if c.ID == id {
			return c, nil
		}
	}
	return domain.Category{}, repoError{notFound: true}
}

func (m *memoryCatalog) ListSubcategories(_ context.Context, categoryID string) ([]domain.Subcategory, error) {
	var out []domain.Subcategory
	for _, s := range m.subcategories {
		if s.CategoryID == categoryID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *memoryCatalog) GetSubcategory(_ context.Context, id string) (domain.Subcategory, error) {
	for _, s := range m.subcategories {
		if s.ID == id {
			return s, nil
		}
	}
	return domain.Subcategory{}, repoError{notFound: true}
}

func (m *memoryCatalog) ListProductIDs(_ context.Context, subcategoryID string) ([]string, error) {
	var out []string
	for _, p := range m.products {
		if p.SubcategoryID == subcategoryID {
			out = append(out, p.ID)
		}
	}
	return out, nil
}

func (m *memoryCatalog) GetProduct(_ context.Context, id string) (domain.Product, error) {
	for _, p := range m.products {
		if p.ID == id {
			return p, nil
		}
	}
	return domain.Product{}, repoError{notFound: true}
}

// memoryCartRepository keeps lines in insertion order with upsert semantics.
type memoryCartRepository struct {
	mu      sync.Mutex
	lines   []domain.CartLine
	catalog map[string]domain.Product
	listErr error
}

func newMemoryCartRepository(products ...domain.Product) *memoryCartRepository {
	catalog := make(map[string]domain.Product, len(products))
	for _, p := range products {
		catalog[p.ID] = p
	}
	return &memoryCartRepository{catalog: catalog}
}

func (m *memoryCartRepository) Upsert(_ context.Context, line domain.CartLine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.catalog[line.ProductID]; !ok {
		return repoError{conflict: true}
	}
	for i := range m.lines {
		if m.lines[i].UserID == line.UserID && m.lines[i].ProductID == line.ProductID {
			m.lines[i].Quantity = line.Quantity
			m.lines[i].UpdatedAt = line.UpdatedAt
			return nil
		}
	}
	m.lines = append(m.lines, line)
	return nil
}

func (m *memoryCartRepository) Delete(_ context.Context, userID int64, productID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.lines[:0]
	for _, l := range m.lines {
		if l.UserID == userID && l.ProductID == productID {
			continue
		}
		kept = append(kept, l)
	}
	m.lines = kept
	return nil
}

func (m *memoryCartRepository) DeleteAll(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.lines[:0]
	for _, l := range m.lines {
		if l.UserID != userID {
			kept = append(kept, l)
		}
	}
	m.lines = kept
	return nil
}

func (m *memoryCartRepository) List(_ context.Context, userID int64) ([]domain.CartItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var items []domain.CartItem
	for _, l := range m.lines {
		if l.UserID == userID {
			items = append(items, domain.CartItem{Line: l, Product: m.catalog[l.ProductID]})
		}
	}
	return items, nil
}

func (m *memoryCartRepository) Exists(ctx context.Context, userID int64) (bool, error) {
	items, err := m.List(ctx, userID)
	return len(items) > 0, err
}

type stubOrderRepository struct {
	mu       sync.Mutex
	orders   map[string]domain.Order
	created  []string
	createFn func(order domain.Order) error
}

func newStubOrderRepository() *stubOrderRepository {
	return &stubOrderRepository{orders: make(map[string]domain.Order)}
}

func (s *stubOrderRepository) Create(_ context.Context, order domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createFn != nil {
		if err := s.createFn(order); err != nil {
			return err
		}
	}
	s.orders[order.ID] = order
	s.created = append(s.created, order.ID)
	return nil
}

func (s *stubOrderRepository) UpdatePayment(_ context.Context, orderID string, update repositories.OrderPaymentUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return repoError{notFound: true}
	}
	order.Status = update.Status
	order.Paid = update.Paid
	order.PaymentID = update.PaymentID
	order.PaymentURL = update.PaymentURL
	order.FailureNote = update.FailureNote
	order.UpdatedAt = update.UpdatedAt
	order.PaidAt = update.PaidAt
	s.orders[orderID] = order
	return nil
}

func (s *stubOrderRepository) Get(_ context.Context, orderID string) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	order, ok := s.orders[orderID]
	if !ok {
		return domain.Order{}, repoError{notFound: true}
	}
	return order, nil
}

func (s *stubOrderRepository) List(context.Context) ([]domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Order, 0, len(s.created))
	for _, id := range s.created {
		out = append(out, s.orders[id])
	}
	return out, nil
}

func (s *stubOrderRepository) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.created)
}

type stubPaymentCreator struct {
	calls      int
	lastReq    payments.PaymentRequest
	requests   []payments.PaymentRequest
	createFunc func(ctx context.Context, req payments.PaymentRequest) (payments.PaymentSession, error)
}

func (s *stubPaymentCreator) CreatePayment(ctx context.Context, _ payments.PaymentContext, req payments.PaymentRequest) (payments.PaymentSession, error) {
	s.calls++
	s.lastReq = req
	s.requests = append(s.requests, req)
	if s.createFunc == nil {
		return payments.PaymentSession{ID: "pay-1", Provider: "yookassa", RedirectURL: "https://pay.example/1"}, nil
	}
	return s.createFunc(ctx, req)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []OrderEvent
	err    error
}

func (r *recordingPublisher) PublishOrderEvent(_ context.Context, event OrderEvent) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return "msg", r.err
}

func (r *recordingPublisher) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

type stubBroadcastRepository struct {
	mu       sync.Mutex
	inserted []domain.Broadcast
	sentAt   map[string]time.Time
}

func (s *stubBroadcastRepository) Insert(_ context.Context, b domain.Broadcast) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserted = append(s.inserted, b)
	return nil
}

func (s *stubBroadcastRepository) MarkSent(_ context.Context, id string, sentAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sentAt == nil {
		s.sentAt = make(map[string]time.Time)
	}
	s.sentAt[id] = sentAt
	return nil
}

func (s *stubBroadcastRepository) Get(context.Context, string) (domain.Broadcast, error) {
	return domain.Broadcast{}, repoError{notFound: true}
}

type stubCatalogWriter struct {
	categories    []domain.Category
	subcategories []domain.Subcategory
	products      []domain.Product
	deleteErr     error
	insertErr     error
}

func (s *stubCatalogWriter) InsertCategory(_ context.Context, c domain.Category) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.categories = append(s.categories, c)
	return nil
}

func (s *stubCatalogWriter) InsertSubcategory(_ context.Context, sub domain.Subcategory) error {
	s.subcategories = append(s.subcategories, sub)
	return nil
}

func (s *stubCatalogWriter) InsertProduct(_ context.Context, p domain.Product) error {
	s.products = append(s.products, p)
	return nil
}

func (s *stubCatalogWriter) DeleteProduct(context.Context, string) error {
	return s.deleteErr
}

var errBoom = errors.New("boom")

func sequentialIDs(prefix string) func() string {
	var (
		mu sync.Mutex
		n  int
	)
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return prefix + strconv.Itoa(n)
	}
}
