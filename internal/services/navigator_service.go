package services

import (
	"context"
	"errors"
	"strings"

	"github.com/hanko-field/storebot/internal/conversation"
	"github.com/hanko-field/storebot/internal/repositories"
)

var errNavigatorCatalogRequired = errors.New("navigator service: catalog repository is required")

// ErrNavigatorEmpty indicates the selection has nothing to show. The caller keeps the previous screen.
var ErrNavigatorEmpty = errors.New("navigator service: empty selection")

// ErrNavigatorNotFound indicates the selected node no longer exists.
var ErrNavigatorNotFound = errors.New("navigator service: not found")

// ErrNavigatorUnavailable indicates the catalog could not be read.
var ErrNavigatorUnavailable = errors.New("navigator service: unavailable")

// NavigatorServiceDeps wires the catalog reader.
type NavigatorServiceDeps struct {
	Catalog repositories.CatalogRepository
	Logger  func(context.Context, string, map[string]any)
}

type navigatorService struct {
	catalog repositories.CatalogRepository
	logger  func(context.Context, string, map[string]any)
}

// NewNavigatorService constructs a NavigatorService.
func NewNavigatorService(deps NavigatorServiceDeps) (NavigatorService, error) {
	if deps.Catalog == nil {
		return nil, errNavigatorCatalogRequired
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &navigatorService{catalog: deps.Catalog, logger: logger}, nil
}

func (s *navigatorService) EnterCatalog(ctx context.Context) (CatalogScreen, error) {
	categories, err := s.catalog.ListCategories(ctx)
	if err != nil {
		return CatalogScreen{}, s.translateRepoError(err)
	}
	if len(categories) == 0 {
		return CatalogScreen{}, ErrNavigatorEmpty
	}
	nodes := make([]CatalogNode, 0, len(categories))
	for _, category := range categories {
		nodes = append(nodes, CatalogNode{ID: category.ID, Name: category.Name})
	}
	return CatalogScreen{Kind: CatalogNodeCategory, Nodes: nodes}, nil
}

func (s *navigatorService) BackToCategories(ctx context.Context) (CatalogScreen, error) {
	return s.EnterCatalog(ctx)
}

func (s *navigatorService) ChooseCategory(ctx context.Context, categoryID string) (CatalogScreen, error) {
	categoryID = strings.TrimSpace(categoryID)
	if categoryID == "" {
		return CatalogScreen{}, ErrNavigatorNotFound
	}
	if _, err := s.catalog.GetCategory(ctx, categoryID); err != nil {
		return CatalogScreen{}, s.translateRepoError(err)
	}
	subcategories, err := s.catalog.ListSubcategories(ctx, categoryID)
	if err != nil {
		return CatalogScreen{}, s.translateRepoError(err)
	}
	if len(subcategories) == 0 {
		return CatalogScreen{}, ErrNavigatorEmpty
	}
	nodes := make([]CatalogNode, 0, len(subcategories))
	for _, sub := range subcategories {
		nodes = append(nodes, CatalogNode{ID: sub.ID, Name: sub.Name})
	}
	return CatalogScreen{Kind: CatalogNodeSubcategory, CategoryID: categoryID, Nodes: nodes}, nil
}

func (s *navigatorService) BackToSubcategories(ctx context.Context, subcategoryID string) (CatalogScreen, error) {
	sub, err := s.catalog.GetSubcategory(ctx, strings.TrimSpace(subcategoryID))
	if err != nil {
		return CatalogScreen{}, s.translateRepoError(err)
	}
	return s.ChooseCategory(ctx, sub.CategoryID)
}

func (s *navigatorService) ChooseSubcategory(ctx context.Context, subcategoryID string) (ProductScreen, error) {
	subcategoryID = strings.TrimSpace(subcategoryID)
	if subcategoryID == "" {
		return ProductScreen{}, ErrNavigatorNotFound
	}
	sub, err := s.catalog.GetSubcategory(ctx, subcategoryID)
	if err != nil {
		return ProductScreen{}, s.translateRepoError(err)
	}
	ids, err := s.catalog.ListProductIDs(ctx, subcategoryID)
	if err != nil {
		return ProductScreen{}, s.translateRepoError(err)
	}
	if len(ids) == 0 {
		return ProductScreen{}, ErrNavigatorEmpty
	}
	return s.screen(ctx, conversation.Browsing{
		CategoryID:    sub.CategoryID,
		SubcategoryID: sub.ID,
		ProductIDs:    ids,
		Cursor:        0,
	})
}

func (s *navigatorService) Next(ctx context.Context, browsing conversation.Browsing) (ProductScreen, error) {
	return s.move(ctx, browsing, 1)
}

func (s *navigatorService) Prev(ctx context.Context, browsing conversation.Browsing) (ProductScreen, error) {
	return s.move(ctx, browsing, -1)
}

func (s *navigatorService) Current(ctx context.Context, browsing conversation.Browsing) (ProductScreen, error) {
	return s.move(ctx, browsing, 0)
}

func (s *navigatorService) move(ctx context.Context, browsing conversation.Browsing, delta int) (ProductScreen, error) {
	n := len(browsing.ProductIDs)
	if n == 0 {
		return ProductScreen{}, ErrNavigatorEmpty
	}
	browsing.ProductIDs = append([]string(nil), browsing.ProductIDs...)
	browsing.Cursor = Wrap(browsing.Cursor+delta, n)
	return s.screen(ctx, browsing)
}

func (s *navigatorService) screen(ctx context.Context, browsing conversation.Browsing) (ProductScreen, error) {
	product, err := s.catalog.GetProduct(ctx, browsing.ProductID())
	if err != nil {
		if isRepoNotFound(err) {
			s.logger(ctx, "navigator.stale_product", map[string]any{
				"productID":     browsing.ProductID(),
				"subcategoryID": browsing.SubcategoryID,
			})
		}
		return ProductScreen{}, s.translateRepoError(err)
	}
	return ProductScreen{
		Product:  product,
		Index:    browsing.Cursor,
		Count:    len(browsing.ProductIDs),
		HasImage: product.HasImage(),
		Browsing: browsing,
	}, nil
}

// Wrap maps i into [0, n) so the cursor cycles in both directions.
func Wrap(i, n int) int {
	if n <= 0 {
		return 0
	}
	return ((i % n) + n) % n
}

func (s *navigatorService) translateRepoError(err error) error {
	switch {
	case err == nil:
		return nil
	case isRepoNotFound(err):
		return ErrNavigatorNotFound
	case isRepoUnavailable(err):
		return errors.Join(ErrNavigatorUnavailable, err)
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return errors.Join(ErrNavigatorUnavailable, err)
	}
	return err
}
