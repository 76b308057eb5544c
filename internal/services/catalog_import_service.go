package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"gopkg.in/yaml.v3"

	domain "github.com/hanko-field/storebot/internal/domain"
	"github.com/hanko-field/storebot/internal/platform/textutil"
	"github.com/hanko-field/storebot/internal/repositories"
)

var (
	// ErrCatalogInvalidInput indicates a malformed catalog file.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
	// ErrCatalogConflict indicates a duplicate category name or a missing parent.
	ErrCatalogConflict = errors.New("catalog: conflict")
	// ErrCatalogProductInUse indicates the product is referenced by an order line and cannot be deleted.
	ErrCatalogProductInUse = errors.New("catalog: product is referenced by orders")
	// ErrCatalogNotFound indicates the product does not exist.
	ErrCatalogNotFound = errors.New("catalog: not found")
	// ErrCatalogUnavailable indicates the catalog store could not be reached.
	ErrCatalogUnavailable = errors.New("catalog: unavailable")
)

// CatalogImportServiceDeps wires the catalog writer.
type CatalogImportServiceDeps struct {
	Writer      repositories.CatalogWriter
	Clock       func() time.Time
	Logger      func(context.Context, string, map[string]any)
	IDGenerator func() string
}

type catalogImportService struct {
	writer repositories.CatalogWriter
	now    func() time.Time
	logger func(context.Context, string, map[string]any)
	newID  func() string
}

// NewCatalogImportService constructs a CatalogImportService.
func NewCatalogImportService(deps CatalogImportServiceDeps) (CatalogImportService, error) {
	if deps.Writer == nil {
		return nil, errors.New("catalog import service: writer is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	newID := deps.IDGenerator
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	return &catalogImportService{
		writer: deps.Writer,
		now:    func() time.Time { return clock().UTC() },
		logger: logger,
		newID:  newID,
	}, nil
}

// ParseCatalogImport decodes a YAML (or JSON) catalog file.
func ParseCatalogImport(data []byte) (CatalogImport, error) {
	var catalog CatalogImport
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return CatalogImport{}, fmt.Errorf("%w: %v", ErrCatalogInvalidInput, err)
	}
	return catalog, nil
}

// Import validates the whole tree before inserting it parent first, so the file order becomes
// the listing order. A failure part way leaves the rows inserted so far.
func (s *catalogImportService) Import(ctx context.Context, catalog CatalogImport) (CatalogImportResult, error) {
	if err := validateCatalogImport(catalog); err != nil {
		return CatalogImportResult{}, err
	}

	var result CatalogImportResult
	for _, category := range catalog.Categories {
		categoryID := s.newID()
		if err := s.writer.InsertCategory(ctx, domain.Category{
			ID:        categoryID,
			Name:      textutil.PlainText(category.Name),
			CreatedAt: s.now(),
		}); err != nil {
			return result, s.translateRepoError(err)
		}
		result.Categories++

		for _, sub := range category.Subcategories {
			subID := s.newID()
			if err := s.writer.InsertSubcategory(ctx, domain.Subcategory{
				ID:         subID,
				CategoryID: categoryID,
				Name:       textutil.PlainText(sub.Name),
				CreatedAt:  s.now(),
			}); err != nil {
				return result, s.translateRepoError(err)
			}
			result.Subcategories++

			for _, product := range sub.Products {
				if err := s.writer.InsertProduct(ctx, domain.Product{
					ID:            s.newID(),
					SubcategoryID: subID,
					Description:   textutil.PlainText(product.Description),
					ImageRef:      strings.TrimSpace(product.Image),
					CreatedAt:     s.now(),
				}); err != nil {
					return result, s.translateRepoError(err)
				}
				result.Products++
			}
		}
	}
	s.logger(ctx, "catalog.imported", map[string]any{
		"categories":    result.Categories,
		"subcategories": result.Subcategories,
		"products":      result.Products,
	})
	return result, nil
}

func (s *catalogImportService) DeleteProduct(ctx context.Context, productID string) error {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return ErrCatalogInvalidInput
	}
	if err := s.writer.DeleteProduct(ctx, productID); err != nil {
		switch {
		case isRepoConflict(err):
			return ErrCatalogProductInUse
		case isRepoNotFound(err):
			return ErrCatalogNotFound
		}
		return errors.Join(ErrCatalogUnavailable, err)
	}
	s.logger(ctx, "catalog.product_deleted", map[string]any{"productID": productID})
	return nil
}

func (s *catalogImportService) translateRepoError(err error) error {
	switch {
	case isRepoConflict(err):
		return errors.Join(ErrCatalogConflict, err)
	case isRepoNotFound(err):
		return errors.Join(ErrCatalogNotFound, err)
	}
	return errors.Join(ErrCatalogUnavailable, err)
}

func validateCatalogImport(catalog CatalogImport) error {
	if len(catalog.Categories) == 0 {
		return fmt.Errorf("%w: no categories", ErrCatalogInvalidInput)
	}
	names := make(map[string]struct{}, len(catalog.Categories))
	for i, category := range catalog.Categories {
		name := textutil.PlainText(category.Name)
		if name == "" {
			return fmt.Errorf("%w: category %d has no name", ErrCatalogInvalidInput, i+1)
		}
		if _, dup := names[name]; dup {
			return fmt.Errorf("%w: duplicate category %q", ErrCatalogInvalidInput, name)
		}
		names[name] = struct{}{}
		for j, sub := range category.Subcategories {
			if textutil.PlainText(sub.Name) == "" {
				return fmt.Errorf("%w: category %q subcategory %d has no name", ErrCatalogInvalidInput, name, j+1)
			}
			for k, product := range sub.Products {
				if textutil.PlainText(product.Description) == "" {
					return fmt.Errorf("%w: subcategory %q product %d has no description", ErrCatalogInvalidInput, sub.Name, k+1)
				}
			}
		}
	}
	return nil
}
