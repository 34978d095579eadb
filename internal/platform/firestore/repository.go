package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
)

// Document is a decoded snapshot plus its server timestamps.
type Document[T any] struct {
	ID         string
	Data       T
	CreateTime time.Time
	UpdateTime time.Time
}

// WriteResult carries the commit time of a mutation.
type WriteResult struct {
	UpdateTime time.Time
}

// Encoder converts an entity into a Firestore-compatible value.
type Encoder[T any] func(ctx context.Context, value T) (any, error)

// Decoder converts a snapshot into an entity.
type Decoder[T any] func(ctx context.Context, snap *firestore.DocumentSnapshot) (T, error)

// QueryBuilder narrows a collection query.
type QueryBuilder func(query firestore.Query) firestore.Query

// BaseRepository gives typed access to a single collection.
type BaseRepository[T any] struct {
	provider   *Provider
	collection string
	encode     Encoder[T]
	decode     Decoder[T]
}

// NewBaseRepository binds a repository to collection. Nil codecs fall back to native struct mapping.
func NewBaseRepository[T any](provider *Provider, collection string, encode Encoder[T], decode Decoder[T]) *BaseRepository[T] {
	if encode == nil {
		encode = IdentityEncoder[T]()
	}
	if decode == nil {
		decode = StructDecoder[T]()
	}
	return &BaseRepository[T]{
		provider:   provider,
		collection: strings.TrimSpace(collection),
		encode:     encode,
		decode:     decode,
	}
}

// Create writes a new document and fails with a conflict when the ID is taken.
func (r *BaseRepository[T]) Create(ctx context.Context, id string, value T) (WriteResult, error) {
	ref, err := r.documentRef(ctx, id)
	if err != nil {
		return WriteResult{}, err
	}
	payload, err := r.encode(ctx, value)
	if err != nil {
		return WriteResult{}, fmt.Errorf("firestore: encode document %s: %w", id, err)
	}
	res, err := ref.Create(ctx, payload)
	if err != nil {
		return WriteResult{}, WrapError(r.op("create"), err)
	}
	return WriteResult{UpdateTime: res.UpdateTime}, nil
}

// Set upserts the document.
func (r *BaseRepository[T]) Set(ctx context.Context, id string, value T, opts ...firestore.SetOption) (WriteResult, error) {
	ref, err := r.documentRef(ctx, id)
	if err != nil {
		return WriteResult{}, err
	}
	payload, err := r.encode(ctx, value)
	if err != nil {
		return WriteResult{}, fmt.Errorf("firestore: encode document %s: %w", id, err)
	}
	res, err := ref.Set(ctx, payload, opts...)
	if err != nil {
		return WriteResult{}, WrapError(r.op("set"), err)
	}
	return WriteResult{UpdateTime: res.UpdateTime}, nil
}

// Update applies field-level changes to an existing document.
func (r *BaseRepository[T]) Update(ctx context.Context, id string, updates []firestore.Update, preconds ...firestore.Precondition) (WriteResult, error) {
	ref, err := r.documentRef(ctx, id)
	if err != nil {
		return WriteResult{}, err
	}
	res, err := ref.Update(ctx, updates, preconds...)
	if err != nil {
		return WriteResult{}, WrapError(r.op("update"), err)
	}
	return WriteResult{UpdateTime: res.UpdateTime}, nil
}

// Get loads a single document.
func (r *BaseRepository[T]) Get(ctx context.Context, id string) (Document[T], error) {
	ref, err := r.documentRef(ctx, id)
	if err != nil {
		return Document[T]{}, err
	}
	snap, err := ref.Get(ctx)
	if err != nil {
		return Document[T]{}, WrapError(r.op("get"), err)
	}
	return r.Decode(ctx, snap)
}

// GetAll loads the documents for ids in one round trip. Missing documents are
// skipped; the result follows the order of ids with duplicates removed.
func (r *BaseRepository[T]) GetAll(ctx context.Context, ids []string) ([]Document[T], error) {
	coll, err := r.collectionRef(ctx)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(ids))
	refs := make([]*firestore.DocumentRef, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		refs = append(refs, coll.Doc(id))
	}
	if len(refs) == 0 {
		return nil, nil
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	snaps, err := client.GetAll(ctx, refs)
	if err != nil {
		return nil, WrapError(r.op("get_all"), err)
	}
	docs := make([]Document[T], 0, len(snaps))
	for _, snap := range snaps {
		if snap == nil || !snap.Exists() {
			continue
		}
		doc, err := r.Decode(ctx, snap)
		if err != nil {
			return nil, fmt.Errorf("firestore: decode document %s: %w", snap.Ref.ID, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Query runs a collection query and decodes every result.
func (r *BaseRepository[T]) Query(ctx context.Context, build QueryBuilder) ([]Document[T], error) {
	coll, err := r.collectionRef(ctx)
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
		snap, err := iter.Next()
		if isIteratorDone(err) {
			break
		}
		if err != nil {
			return nil, WrapError(r.op("query"), err)
		}
		doc, err := r.Decode(ctx, snap)
		if err != nil {
			return nil, fmt.Errorf("firestore: decode document %s: %w", snap.Ref.ID, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// DocumentRef exposes the reference for use inside transactions.
func (r *BaseRepository[T]) DocumentRef(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	return r.documentRef(ctx, id)
}

// Encode runs the repository encoder, for transactional writes.
func (r *BaseRepository[T]) Encode(ctx context.Context, value T) (any, error) {
	return r.encode(ctx, value)
}

// Decode converts a snapshot read elsewhere, typically inside a transaction.
func (r *BaseRepository[T]) Decode(ctx context.Context, snap *firestore.DocumentSnapshot) (Document[T], error) {
	entity, err := r.decode(ctx, snap)
	if err != nil {
		return Document[T]{}, err
	}
	return Document[T]{
		ID:         snap.Ref.ID,
		Data:       entity,
		CreateTime: snap.CreateTime,
		UpdateTime: snap.UpdateTime,
	}, nil
}

func (r *BaseRepository[T]) collectionRef(ctx context.Context) (*firestore.CollectionRef, error) {
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

func (r *BaseRepository[T]) documentRef(ctx context.Context, id string) (*firestore.DocumentRef, error) {
	if strings.TrimSpace(id) == "" {
		return nil, WrapError(r.op("document"), errors.New("firestore: document id is required"))
	}
	coll, err := r.collectionRef(ctx)
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
	return name + "." + action
}

// IdentityEncoder stores values as-is using their firestore struct tags.
func IdentityEncoder[T any]() Encoder[T] {
	return func(_ context.Context, value T) (any, error) {
		return value, nil
	}
}

// StructDecoder populates T with DataTo.
func StructDecoder[T any]() Decoder[T] {
	return func(_ context.Context, snap *firestore.DocumentSnapshot) (T, error) {
		var target T
		err := snap.DataTo(&target)
		return target, err
	}
}

func isIteratorDone(err error) bool {
	return errors.Is(err, iterator.Done)
}
