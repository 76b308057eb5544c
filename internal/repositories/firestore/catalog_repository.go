package firestore

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/hanko-field/storebot/internal/domain"
	pfirestore "github.com/hanko-field/storebot/internal/platform/firestore"
)

type counterDocument struct {
	CurrentValue int64     `firestore:"currentValue"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

type categoryDocument struct {
	Name      string    `firestore:"name"`
	Position  int64     `firestore:"position"`
	CreatedAt time.Time `firestore:"createdAt"`
}

type subcategoryDocument struct {
	CategoryID string    `firestore:"categoryId"`
	Name       string    `firestore:"name"`
	Position   int64     `firestore:"position"`
	CreatedAt  time.Time `firestore:"createdAt"`
}

type productDocument struct {
	SubcategoryID string    `firestore:"subcategoryId"`
	Description   string    `firestore:"description"`
	ImageRef      string    `firestore:"imageRef,omitempty"`
	Position      int64     `firestore:"position"`
	OrderLines    int64     `firestore:"orderLines"`
	CreatedAt     time.Time `firestore:"createdAt"`
}

// CatalogRepository stores the catalog tree in three flat collections. A shared counter
// assigns positions so listings keep insertion order.
type CatalogRepository struct {
	provider      *pfirestore.Provider
	counters      *pfirestore.BaseRepository[counterDocument]
	categories    *pfirestore.BaseRepository[categoryDocument]
	subcategories *pfirestore.BaseRepository[subcategoryDocument]
	products      *pfirestore.BaseRepository[productDocument]
}

func newCatalogRepository(provider *pfirestore.Provider) *CatalogRepository {
	return &CatalogRepository{
		provider:      provider,
		counters:      pfirestore.NewBaseRepository[counterDocument](provider, countersCollection),
		categories:    pfirestore.NewBaseRepository[categoryDocument](provider, categoriesCollection),
		subcategories: pfirestore.NewBaseRepository[subcategoryDocument](provider, subcategoriesCollection),
		products:      pfirestore.NewBaseRepository[productDocument](provider, productsCollection),
	}
}

// ListCategories returns every category ordered by name.
func (r *CatalogRepository) ListCategories(ctx context.Context) ([]domain.Category, error) {
	docs, err := r.categories.Query(ctx, byName)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Category, 0, len(docs))
	for _, doc := range docs {
		out = append(out, categoryFromDocument(doc))
	}
	return out, nil
}

// GetCategory loads one category.
func (r *CatalogRepository) GetCategory(ctx context.Context, categoryID string) (domain.Category, error) {
	doc, err := r.categories.Get(ctx, categoryID)
	if err != nil {
		return domain.Category{}, err
	}
	return categoryFromDocument(doc), nil
}

// ListSubcategories returns the subcategories of categoryID ordered by name.
func (r *CatalogRepository) ListSubcategories(ctx context.Context, categoryID string) ([]domain.Subcategory, error) {
	docs, err := r.subcategories.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("categoryId", "==", categoryID)
	})
	if err != nil {
		return nil, err
	}
	sortSubcategoriesByName(docs)
	out := make([]domain.Subcategory, 0, len(docs))
	for _, doc := range docs {
		out = append(out, subcategoryFromDocument(doc))
	}
	return out, nil
}

// GetSubcategory loads one subcategory.
func (r *CatalogRepository) GetSubcategory(ctx context.Context, subcategoryID string) (domain.Subcategory, error) {
	doc, err := r.subcategories.Get(ctx, subcategoryID)
	if err != nil {
		return domain.Subcategory{}, err
	}
	return subcategoryFromDocument(doc), nil
}

// ListProductIDs returns product ids of subcategoryID in insertion order.
func (r *CatalogRepository) ListProductIDs(ctx context.Context, subcategoryID string) ([]string, error) {
	docs, err := r.products.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("subcategoryId", "==", subcategoryID)
	})
	if err != nil {
		return nil, err
	}
	sortByPosition(docs, func(d productDocument) int64 { return d.Position })
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, doc.ID)
	}
	return ids, nil
}

// GetProduct loads a product and resolves its subcategory.
func (r *CatalogRepository) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	doc, err := r.products.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	sub, err := r.subcategories.Get(ctx, doc.Data.SubcategoryID)
	if err != nil {
		return domain.Product{}, err
	}
	return productFromDocument(doc, sub.Data), nil
}

// InsertCategory stores a new category. Duplicate names are conflicts.
func (r *CatalogRepository) InsertCategory(ctx context.Context, category domain.Category) error {
	name := strings.TrimSpace(category.Name)
	return r.insert(ctx, "categories.insert", func(ctx context.Context, tx *firestore.Transaction) (func(int64) error, error) {
		coll, err := r.categories.CollectionRef(ctx)
		if err != nil {
			return nil, err
		}
		existing, err := tx.Documents(coll.Where("name", "==", name).Limit(1)).GetAll()
		if err != nil {
			return nil, err
		}
		if len(existing) > 0 {
			return nil, pfirestore.Conflict("categories.insert", fmt.Errorf("category %q already exists", name))
		}
		ref := coll.Doc(category.ID)
		return func(position int64) error {
			return tx.Create(ref, categoryDocument{Name: name, Position: position, CreatedAt: category.CreatedAt.UTC()})
		}, nil
	})
}

// InsertSubcategory stores a new subcategory under an existing category.
func (r *CatalogRepository) InsertSubcategory(ctx context.Context, subcategory domain.Subcategory) error {
	return r.insert(ctx, "subcategories.insert", func(ctx context.Context, tx *firestore.Transaction) (func(int64) error, error) {
		parent, err := r.categories.DocumentRef(ctx, subcategory.CategoryID)
		if err != nil {
			return nil, err
		}
		if _, err := tx.Get(parent); err != nil {
			return nil, missingParent("subcategories.insert", err)
		}
		name := strings.TrimSpace(subcategory.Name)
		coll, err := r.subcategories.CollectionRef(ctx)
		if err != nil {
			return nil, err
		}
		existing, err := tx.Documents(coll.Where("categoryId", "==", subcategory.CategoryID).Where("name", "==", name).Limit(1)).GetAll()
		if err != nil {
			return nil, err
		}
		if len(existing) > 0 {
			return nil, pfirestore.Conflict("subcategories.insert", fmt.Errorf("subcategory %q already exists in category %s", name, subcategory.CategoryID))
		}
		ref, err := r.subcategories.DocumentRef(ctx, subcategory.ID)
		if err != nil {
			return nil, err
		}
		return func(position int64) error {
			return tx.Create(ref, subcategoryDocument{
				CategoryID: subcategory.CategoryID,
				Name:       name,
				Position:   position,
				CreatedAt:  subcategory.CreatedAt.UTC(),
			})
		}, nil
	})
}

// InsertProduct stores a new product under an existing subcategory.
func (r *CatalogRepository) InsertProduct(ctx context.Context, product domain.Product) error {
	return r.insert(ctx, "products.insert", func(ctx context.Context, tx *firestore.Transaction) (func(int64) error, error) {
		parent, err := r.subcategories.DocumentRef(ctx, product.SubcategoryID)
		if err != nil {
			return nil, err
		}
		if _, err := tx.Get(parent); err != nil {
			return nil, missingParent("products.insert", err)
		}
		ref, err := r.products.DocumentRef(ctx, product.ID)
		if err != nil {
			return nil, err
		}
		return func(position int64) error {
			return tx.Create(ref, productDocument{
				SubcategoryID: product.SubcategoryID,
				Description:   product.Description,
				ImageRef:      product.ImageRef,
				Position:      position,
				CreatedAt:     product.CreatedAt.UTC(),
			})
		}, nil
	})
}

// DeleteProduct removes a product and its cart lines. Products referenced by order lines are conflicts.
func (r *CatalogRepository) DeleteProduct(ctx context.Context, productID string) error {
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.products.DocumentRef(ctx, productID)
		if err != nil {
			return err
		}
		snapshot, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc productDocument
		if err := snapshot.DataTo(&doc); err != nil {
			return fmt.Errorf("firestore products decode %s: %w", productID, err)
		}
		if doc.OrderLines > 0 {
			return pfirestore.Conflict("products.delete", fmt.Errorf("product %s is referenced by %d order lines", productID, doc.OrderLines))
		}

		client, err := r.provider.Client(ctx)
		if err != nil {
			return err
		}
		lines, err := tx.Documents(client.Collection(cartLinesCollection).Where("productId", "==", productID)).GetAll()
		if err != nil {
			return err
		}
		for _, line := range lines {
			if err := tx.Delete(line.Ref); err != nil {
				return err
			}
		}
		return tx.Delete(ref)
	})
	return pfirestore.WrapError("products.delete", err)
}

// insert runs prepare and the counter read in one transaction, then writes with the next position.
func (r *CatalogRepository) insert(ctx context.Context, op string, prepare func(context.Context, *firestore.Transaction) (func(int64) error, error)) error {
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		write, err := prepare(ctx, tx)
		if err != nil {
			return err
		}

		counterRef, err := r.counters.DocumentRef(ctx, catalogCounterID)
		if err != nil {
			return err
		}
		var counter counterDocument
		snapshot, err := tx.Get(counterRef)
		switch status.Code(err) {
		case codes.OK:
			if err := snapshot.DataTo(&counter); err != nil {
				return fmt.Errorf("firestore counters decode %s: %w", catalogCounterID, err)
			}
		case codes.NotFound:
		default:
			return err
		}

		counter.CurrentValue++
		counter.UpdatedAt = time.Now().UTC()
		if err := tx.Set(counterRef, counter); err != nil {
			return err
		}
		return write(counter.CurrentValue)
	})
	return pfirestore.WrapError(op, err)
}

func missingParent(op string, err error) error {
	if status.Code(err) == codes.NotFound {
		return pfirestore.Conflict(op, errors.New("parent document does not exist"))
	}
	return err
}

func byName(q firestore.Query) firestore.Query {
	return q.OrderBy("name", firestore.Asc)
}

func sortSubcategoriesByName(docs []pfirestore.Document[subcategoryDocument]) {
	slices.SortStableFunc(docs, func(a, b pfirestore.Document[subcategoryDocument]) int {
		if c := cmp.Compare(a.Data.Name, b.Data.Name); c != 0 {
			return c
		}
		return cmp.Compare(a.Data.Position, b.Data.Position)
	})
}

// sortByPosition orders equality-filtered results in memory, avoiding a composite index.
func sortByPosition[T any](docs []pfirestore.Document[T], position func(T) int64) {
	for i := 1; i < len(docs); i++ {
		for j := i; j > 0 && position(docs[j].Data) < position(docs[j-1].Data); j-- {
			docs[j], docs[j-1] = docs[j-1], docs[j]
		}
	}
}

func categoryFromDocument(doc pfirestore.Document[categoryDocument]) domain.Category {
	return domain.Category{ID: doc.ID, Name: doc.Data.Name, CreatedAt: doc.Data.CreatedAt.UTC()}
}

func subcategoryFromDocument(doc pfirestore.Document[subcategoryDocument]) domain.Subcategory {
	return domain.Subcategory{
		ID:         doc.ID,
		CategoryID: doc.Data.CategoryID,
		Name:       doc.Data.Name,
		CreatedAt:  doc.Data.CreatedAt.UTC(),
	}
}

func productFromDocument(doc pfirestore.Document[productDocument], sub subcategoryDocument) domain.Product {
	return domain.Product{
		ID:              doc.ID,
		SubcategoryID:   doc.Data.SubcategoryID,
		SubcategoryName: sub.Name,
		CategoryID:      sub.CategoryID,
		Description:     doc.Data.Description,
		ImageRef:        doc.Data.ImageRef,
		CreatedAt:       doc.Data.CreatedAt.UTC(),
	}
}
