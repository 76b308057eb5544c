package firestore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/hanko-field/storebot/internal/domain"
	pfirestore "github.com/hanko-field/storebot/internal/platform/firestore"
)

type cartLineDocument struct {
	UserID    int64     `firestore:"userId"`
	ProductID string    `firestore:"productId"`
	Quantity  int       `firestore:"quantity"`
	AddedAt   time.Time `firestore:"addedAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

func cartLineDocID(userID int64, productID string) string {
	return userDocID(userID) + "_" + productID
}

// CartRepository stores one document per (user, product). The composite document id makes
// the upsert key unique.
type CartRepository struct {
	provider *pfirestore.Provider
	base     *pfirestore.BaseRepository[cartLineDocument]
}

// Upsert replaces the quantity of an existing line, keeping addedAt, or creates the line.
func (r *CartRepository) Upsert(ctx context.Context, line domain.CartLine) error {
	now := line.UpdatedAt.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}
	err := r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref, err := r.base.DocumentRef(ctx, cartLineDocID(line.UserID, line.ProductID))
		if err != nil {
			return err
		}
		_, err = tx.Get(ref)
		switch status.Code(err) {
		case codes.OK:
			return tx.Update(ref, []firestore.Update{
				{Path: "quantity", Value: line.Quantity},
				{Path: "updatedAt", Value: now},
			})
		case codes.NotFound:
		default:
			return err
		}

		client, err := r.provider.Client(ctx)
		if err != nil {
			return err
		}
		refs := []*firestore.DocumentRef{
			client.Collection(usersCollection).Doc(userDocID(line.UserID)),
			client.Collection(productsCollection).Doc(line.ProductID),
		}
		snapshots, err := tx.GetAll(refs)
		if err != nil {
			return err
		}
		for _, snapshot := range snapshots {
			if !snapshot.Exists() {
				return pfirestore.Conflict("cart_lines.upsert", fmt.Errorf("referenced document %s does not exist", snapshot.Ref.Path))
			}
		}

		addedAt := line.AddedAt.UTC()
		if addedAt.IsZero() {
			addedAt = now
		}
		return tx.Create(ref, cartLineDocument{
			UserID:    line.UserID,
			ProductID: line.ProductID,
			Quantity:  line.Quantity,
			AddedAt:   addedAt,
			UpdatedAt: now,
		})
	})
	return pfirestore.WrapError("cart_lines.upsert", err)
}

// Delete removes one line. A missing line is not an error.
func (r *CartRepository) Delete(ctx context.Context, userID int64, productID string) error {
	return r.base.Delete(ctx, cartLineDocID(userID, productID))
}

// DeleteAll removes every line of the user in one batch.
func (r *CartRepository) DeleteAll(ctx context.Context, userID int64) error {
	docs, err := r.base.Query(ctx, byUser(userID))
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		for _, doc := range docs {
			ref, err := r.base.DocumentRef(ctx, doc.ID)
			if err != nil {
				return err
			}
			if err := tx.Delete(ref); err != nil {
				return err
			}
		}
		return nil
	})
	return pfirestore.WrapError("cart_lines.delete_all", err)
}

// List returns the user's lines ordered by addedAt, resolved against the catalog.
func (r *CartRepository) List(ctx context.Context, userID int64) ([]domain.CartItem, error) {
	docs, err := r.base.Query(ctx, byUser(userID))
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	sort.SliceStable(docs, func(i, j int) bool {
		return docs[i].Data.AddedAt.Before(docs[j].Data.AddedAt)
	})

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	productIDs := make([]string, 0, len(docs))
	for _, doc := range docs {
		productIDs = append(productIDs, doc.Data.ProductID)
	}
	products, err := resolveProducts(ctx, client, productIDs)
	if err != nil {
		return nil, pfirestore.WrapError("cart_lines.list", err)
	}

	items := make([]domain.CartItem, 0, len(docs))
	for _, doc := range docs {
		product, ok := products[doc.Data.ProductID]
		if !ok {
			continue
		}
		items = append(items, domain.CartItem{
			Line: domain.CartLine{
				UserID:    doc.Data.UserID,
				ProductID: doc.Data.ProductID,
				Quantity:  doc.Data.Quantity,
				AddedAt:   doc.Data.AddedAt.UTC(),
				UpdatedAt: doc.Data.UpdatedAt.UTC(),
			},
			Product: product,
		})
	}
	return items, nil
}

// Exists reports whether the user has at least one line.
func (r *CartRepository) Exists(ctx context.Context, userID int64) (bool, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return byUser(userID)(q).Limit(1)
	})
	if err != nil {
		return false, err
	}
	return len(docs) > 0, nil
}

func byUser(userID int64) pfirestore.QueryBuilder {
	return func(q firestore.Query) firestore.Query {
		return q.Where("userId", "==", userID)
	}
}

// resolveProducts batch-loads products and their subcategories. Missing products are omitted.
func resolveProducts(ctx context.Context, client *firestore.Client, productIDs []string) (map[string]domain.Product, error) {
	refs := make([]*firestore.DocumentRef, 0, len(productIDs))
	for _, id := range productIDs {
		refs = append(refs, client.Collection(productsCollection).Doc(id))
	}
	snapshots, err := client.GetAll(ctx, refs)
	if err != nil {
		return nil, err
	}

	docs := make(map[string]pfirestore.Document[productDocument], len(snapshots))
	subRefs := make([]*firestore.DocumentRef, 0, len(snapshots))
	seen := make(map[string]struct{})
	for _, snapshot := range snapshots {
		if !snapshot.Exists() {
			continue
		}
		doc, err := pfirestore.Decode[productDocument](snapshot)
		if err != nil {
			return nil, err
		}
		docs[doc.ID] = doc
		if _, ok := seen[doc.Data.SubcategoryID]; !ok {
			seen[doc.Data.SubcategoryID] = struct{}{}
			subRefs = append(subRefs, client.Collection(subcategoriesCollection).Doc(doc.Data.SubcategoryID))
		}
	}
	if len(subRefs) == 0 {
		return map[string]domain.Product{}, nil
	}

	subSnapshots, err := client.GetAll(ctx, subRefs)
	if err != nil {
		return nil, err
	}
	subs := make(map[string]subcategoryDocument, len(subSnapshots))
	for _, snapshot := range subSnapshots {
		if !snapshot.Exists() {
			continue
		}
		sub, err := pfirestore.Decode[subcategoryDocument](snapshot)
		if err != nil {
			return nil, err
		}
		subs[sub.ID] = sub.Data
	}

	out := make(map[string]domain.Product, len(docs))
	for id, doc := range docs {
		sub, ok := subs[doc.Data.SubcategoryID]
		if !ok {
			return nil, errors.New("firestore: product " + id + " references a missing subcategory")
		}
		out[id] = productFromDocument(doc, sub)
	}
	return out, nil
}
