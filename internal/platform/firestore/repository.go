package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

// Document pairs a decoded entity with its document ID.
type Document[T any] struct {
	ID   string
	Data T
}

// QueryBuilder customises Firestore queries before execution.
type QueryBuilder func(query firestore.Query) firestore.Query

// BaseRepository provides typed helpers wrapping a single collection.
type BaseRepository[T any] struct {
	provider   *Provider
	collection string
}

// NewBaseRepository constructs a BaseRepository bound to collection. T must be decodable by DataTo.
func NewBaseRepository[T any](provider *Provider, collection string) *BaseRepository[T] {
	return &BaseRepository[T]{provider: provider, collection: strings.TrimSpace(collection)}
}

// Set upserts value under id.
func (r *BaseRepository[T]) Set(ctx context.Context, id string, value T, opts ...firestore.SetOption) error {
	doc, err := r.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := doc.Set(ctx, value, opts...); err != nil {
		return WrapError(r.op("set"), err)
	}
	return nil
}

// Create inserts value under id and fails with a conflict when the document exists.
func (r *BaseRepository[T]) Create(ctx context.Context, id string, value T) error {
	doc, err := r.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := doc.Create(ctx, value); err != nil {
		return WrapError(r.op("create"), err)
	}
	return nil
}

// Update applies partial updates to the document.
func (r *BaseRepository[T]) Update(ctx context.Context, id string, updates []firestore.Update) error {
	doc, err := r.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := doc.Update(ctx, updates); err != nil {
		return WrapError(r.op("update"), err)
	}
	return nil
}

// Delete removes the document. Missing documents are not an error.
func (r *BaseRepository[T]) Delete(ctx context.Context, id string) error {
	doc, err := r.DocumentRef(ctx, id)
	if err != nil {
		return err
	}
	if _, err := doc.Delete(ctx); err != nil {
		return WrapError(r.op("delete"), err)
	}
	return nil
}

// Get fetches the document by ID and decodes it.
func (r *BaseRepository[T]) Get(ctx context.Context, id string) (Document[T], error) {
	doc, err := r.DocumentRef(ctx, id)
	if err != nil {
		return Document[T]{}, err
	}
	snapshot, err := doc.Get(ctx)
	if err != nil {
		return Document[T]{}, WrapError(r.op("get"), err)
	}
	return decode[T](snapshot)
}

// Query executes a collection query and returns the decoded documents.
func (r *BaseRepository[T]) Query(ctx context.Context, build QueryBuilder) ([]Document[T], error) {
	coll, err := r.CollectionRef(ctx)
	if err != nil {
		return nil, err
	}

	query := coll.Query
	if build != nil {
		query = build(query)
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var docs []Document[T]
	for {
		snapshot, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, WrapError(r.op("query"), err)
		}
		doc, err := decode[T](snapshot)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// CollectionRef exposes the collection for transactions and batch writes.
func (r *BaseRepository[T]) CollectionRef(ctx context.Context) (*firestore.CollectionRef, error) {
	if r == nil || r.provider == nil {
		return nil, WrapError(r.op("collection"), errors.New("firestore: provider is nil"))
	}
	if r.collection == "" {
		return nil, WrapError(r.op("collection"), errors.New("firestore: collection name is required"))
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(r.collection), nil
}

// DocumentRef exposes a document reference for transactions.
func (r *BaseRepository[T]) DocumentRef(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	if strings.TrimSpace(id) == "" {
		return nil, WrapError(r.op("document"), errors.New("firestore: document id is required"))
	}
	coll, err := r.CollectionRef(ctx)
	if err != nil {
		return nil, err
	}
	return coll.Doc(id), nil
}

func (r *BaseRepository[T]) op(action string) string {
	name := "firestore"
	if r != nil && r.collection != "" {
		name = r.collection
	}
	return fmt.Sprintf("%s.%s", name, action)
}

// Decode converts a snapshot into a typed document.
func Decode[T any](snapshot *firestore.DocumentSnapshot) (Document[T], error) {
	return decode[T](snapshot)
}

func decode[T any](snapshot *firestore.DocumentSnapshot) (Document[T], error) {
	var target T
	if err := snapshot.DataTo(&target); err != nil {
		return Document[T]{}, fmt.Errorf("firestore: decode document %s: %w", snapshot.Ref.ID, err)
	}
	return Document[T]{ID: snapshot.Ref.ID, Data: target}, nil
}
