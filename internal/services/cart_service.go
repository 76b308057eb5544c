package services

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/hanko-field/storebot/internal/domain"
	"github.com/hanko-field/storebot/internal/repositories"
)

var errCartRepositoryRequired = errors.New("cart service: repository is required")

// ErrCartInvalidInput indicates the caller supplied invalid input.
var ErrCartInvalidInput = errors.New("cart service: invalid input")

// ErrCartNotFound indicates the product or user referenced by the line does not exist.
var ErrCartNotFound = errors.New("cart service: not found")

// ErrCartUnavailable indicates the cart store cannot fulfil the request.
var ErrCartUnavailable = errors.New("cart service: unavailable")

// CartServiceDeps wires the cart repository.
type CartServiceDeps struct {
	Repository repositories.CartRepository
	Clock      func() time.Time
	Logger     func(context.Context, string, map[string]any)
}

type cartService struct {
	repo   repositories.CartRepository
	now    func() time.Time
	logger func(context.Context, string, map[string]any)
}

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Repository == nil {
		return nil, errCartRepositoryRequired
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &cartService{
		repo:   deps.Repository,
		now:    func() time.Time { return clock().UTC() },
		logger: logger,
	}, nil
}

// AddOrReplace sets the quantity of the (user, product) line. Repeating the call with the same
// arguments leaves the cart unchanged.
func (s *cartService) AddOrReplace(ctx context.Context, userID int64, productID string, quantity int) error {
	productID = strings.TrimSpace(productID)
	if userID == 0 || productID == "" || quantity <= 0 {
		return ErrCartInvalidInput
	}
	now := s.now()
	if err := s.repo.Upsert(ctx, domain.CartLine{
		UserID:    userID,
		ProductID: productID,
		Quantity:  quantity,
		AddedAt:   now,
		UpdatedAt: now,
	}); err != nil {
		return s.translateRepoError(err)
	}
	s.logger(ctx, "cart.line_set", map[string]any{
		"userID":    userID,
		"productID": productID,
		"quantity":  quantity,
	})
	return nil
}

func (s *cartService) Remove(ctx context.Context, userID int64, productID string) error {
	productID = strings.TrimSpace(productID)
	if userID == 0 || productID == "" {
		return ErrCartInvalidInput
	}
	if err := s.repo.Delete(ctx, userID, productID); err != nil && !isRepoNotFound(err) {
		return s.translateRepoError(err)
	}
	return nil
}

func (s *cartService) Clear(ctx context.Context, userID int64) error {
	if userID == 0 {
		return ErrCartInvalidInput
	}
	if err := s.repo.DeleteAll(ctx, userID); err != nil {
		return s.translateRepoError(err)
	}
	return nil
}

func (s *cartService) List(ctx context.Context, userID int64) ([]domain.CartItem, error) {
	if userID == 0 {
		return nil, ErrCartInvalidInput
	}
	items, err := s.repo.List(ctx, userID)
	if err != nil {
		return nil, s.translateRepoError(err)
	}
	return items, nil
}

func (s *cartService) IsEmpty(ctx context.Context, userID int64) (bool, error) {
	if userID == 0 {
		return true, ErrCartInvalidInput
	}
	exists, err := s.repo.Exists(ctx, userID)
	if err != nil {
		return true, s.translateRepoError(err)
	}
	return !exists, nil
}

func (s *cartService) translateRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound(), repoErr.IsConflict():
			// A conflict on upsert means the user or product row is gone.
			return ErrCartNotFound
		default:
			return errors.Join(ErrCartUnavailable, err)
		}
	}
	return errors.Join(ErrCartUnavailable, err)
}
