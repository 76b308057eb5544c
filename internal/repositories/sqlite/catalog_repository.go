package sqlite

import (
	"context"
	"database/sql"
	"strings"

	domain "github.com/hanko-field/storebot/internal/domain"
	psqlite "github.com/hanko-field/storebot/internal/platform/sqlite"
)

const productColumns = `p.id, p.subcategory_id, s.name, s.category_id, p.description, p.image_ref, p.created_at`

// CatalogRepository reads and writes the category tree. Lists follow insertion order.
type CatalogRepository struct {
	db *sql.DB
}

// ListCategories returns every category ordered by name.
func (r *CatalogRepository) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, created_at FROM categories ORDER BY name, rowid`)
	if err != nil {
		return nil, psqlite.WrapError("categories.list", err)
	}
	defer rows.Close()

	var categories []domain.Category
	for rows.Next() {
		var (
			category  domain.Category
			createdAt int64
		)
		if err := rows.Scan(&category.ID, &category.Name, &createdAt); err != nil {
			return nil, psqlite.WrapError("categories.list", err)
		}
		category.CreatedAt = psqlite.Time(createdAt)
		categories = append(categories, category)
	}
	return categories, psqlite.WrapError("categories.list", rows.Err())
}

// GetCategory loads one category.
func (r *CatalogRepository) GetCategory(ctx context.Context, categoryID string) (domain.Category, error) {
	var (
		category  domain.Category
		createdAt int64
	)
	err := r.db.QueryRowContext(ctx, `SELECT id, name, created_at FROM categories WHERE id = ?`, categoryID).
		Scan(&category.ID, &category.Name, &createdAt)
	if err != nil {
		return domain.Category{}, psqlite.WrapError("categories.get", err)
	}
	category.CreatedAt = psqlite.Time(createdAt)
	return category, nil
}

// ListSubcategories returns the subcategories of categoryID ordered by name.
func (r *CatalogRepository) ListSubcategories(ctx context.Context, categoryID string) ([]domain.Subcategory, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, category_id, name, created_at FROM subcategories WHERE category_id = ? ORDER BY name, rowid`, categoryID)
	if err != nil {
		return nil, psqlite.WrapError("subcategories.list", err)
	}
	defer rows.Close()

	var subcategories []domain.Subcategory
	for rows.Next() {
		sub, err := scanSubcategory(rows)
		if err != nil {
			return nil, psqlite.WrapError("subcategories.list", err)
		}
		subcategories = append(subcategories, sub)
	}
	return subcategories, psqlite.WrapError("subcategories.list", rows.Err())
}

// GetSubcategory loads one subcategory.
func (r *CatalogRepository) GetSubcategory(ctx context.Context, subcategoryID string) (domain.Subcategory, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, category_id, name, created_at FROM subcategories WHERE id = ?`, subcategoryID)
	sub, err := scanSubcategory(row)
	if err != nil {
		return domain.Subcategory{}, psqlite.WrapError("subcategories.get", err)
	}
	return sub, nil
}

// ListProductIDs returns product ids of subcategoryID in insertion order.
func (r *CatalogRepository) ListProductIDs(ctx context.Context, subcategoryID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM products WHERE subcategory_id = ? ORDER BY rowid`, subcategoryID)
	if err != nil {
		return nil, psqlite.WrapError("products.list", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, psqlite.WrapError("products.list", err)
		}
		ids = append(ids, id)
	}
	return ids, psqlite.WrapError("products.list", rows.Err())
}

// GetProduct loads a product with its subcategory name and category id.
func (r *CatalogRepository) GetProduct(ctx context.Context, productID string) (domain.Product, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM products p JOIN subcategories s ON s.id = p.subcategory_id WHERE p.id = ?`, productID)
	product, err := scanProduct(row)
	if err != nil {
		return domain.Product{}, psqlite.WrapError("products.get", err)
	}
	return product, nil
}

// InsertCategory stores a new category. Duplicate names are conflicts.
func (r *CatalogRepository) InsertCategory(ctx context.Context, category domain.Category) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO categories (id, name, created_at) VALUES (?, ?, ?)`,
		category.ID, strings.TrimSpace(category.Name), psqlite.Timestamp(category.CreatedAt))
	return psqlite.WrapError("categories.insert", err)
}

// InsertSubcategory stores a new subcategory under an existing category.
func (r *CatalogRepository) InsertSubcategory(ctx context.Context, subcategory domain.Subcategory) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO subcategories (id, category_id, name, created_at) VALUES (?, ?, ?, ?)`,
		subcategory.ID, subcategory.CategoryID, strings.TrimSpace(subcategory.Name), psqlite.Timestamp(subcategory.CreatedAt))
	return psqlite.WrapError("subcategories.insert", err)
}

// InsertProduct stores a new product under an existing subcategory.
func (r *CatalogRepository) InsertProduct(ctx context.Context, product domain.Product) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO products (id, subcategory_id, description, image_ref, created_at) VALUES (?, ?, ?, ?, ?)`,
		product.ID, product.SubcategoryID, product.Description, product.ImageRef, psqlite.Timestamp(product.CreatedAt))
	return psqlite.WrapError("products.insert", err)
}

// DeleteProduct removes a product. Order lines restrict the delete and surface as a conflict.
func (r *CatalogRepository) DeleteProduct(ctx context.Context, productID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, productID)
	if err != nil {
		return psqlite.WrapError("products.delete", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return psqlite.WrapError("products.delete", err)
	}
	if affected == 0 {
		return psqlite.NotFound("products.delete")
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubcategory(row rowScanner) (domain.Subcategory, error) {
	var (
		sub       domain.Subcategory
		createdAt int64
	)
	if err := row.Scan(&sub.ID, &sub.CategoryID, &sub.Name, &createdAt); err != nil {
		return domain.Subcategory{}, err
	}
	sub.CreatedAt = psqlite.Time(createdAt)
	return sub, nil
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var (
		product   domain.Product
		createdAt int64
	)
	if err := row.Scan(&product.ID, &product.SubcategoryID, &product.SubcategoryName, &product.CategoryID,
		&product.Description, &product.ImageRef, &createdAt); err != nil {
		return domain.Product{}, err
	}
	product.CreatedAt = psqlite.Time(createdAt)
	return product, nil
}
