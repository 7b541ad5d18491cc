package docstore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStore adapts a Cloud Firestore client.
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore wraps an initialized Firestore client.
func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

func (s *FirestoreStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		return nil, mapFirestoreErr(collection, id, err)
	}
	return fromSnapshot(snap), nil
}

func (s *FirestoreStore) Query(ctx context.Context, collection string, q Query) ([]*Document, error) {
	iter := s.buildQuery(collection, q).Documents(ctx)
	defer iter.Stop()
	return drain(iter)
}

func (s *FirestoreStore) Create(ctx context.Context, collection string, data map[string]any) (string, error) {
	ref := s.client.Collection(collection).NewDoc()
	if _, err := ref.Create(ctx, toFirestore(data)); err != nil {
		return "", mapFirestoreErr(collection, ref.ID, err)
	}
	return ref.ID, nil
}

func (s *FirestoreStore) Set(ctx context.Context, collection, id string, data map[string]any) error {
	_, err := s.client.Collection(collection).Doc(id).Set(ctx, toFirestore(data))
	return mapFirestoreErr(collection, id, err)
}

func (s *FirestoreStore) Update(ctx context.Context, collection, id string, updates []Update) error {
	_, err := s.client.Collection(collection).Doc(id).Update(ctx, toFirestoreUpdates(updates))
	return mapFirestoreErr(collection, id, err)
}

func (s *FirestoreStore) Delete(ctx context.Context, collection, id string) error {
	_, err := s.client.Collection(collection).Doc(id).Delete(ctx)
	return mapFirestoreErr(collection, id, err)
}

func (s *FirestoreStore) Batch() Batch {
	return &firestoreBatch{client: s.client, wb: s.client.Batch()}
}

func (s *FirestoreStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	err := s.client.RunTransaction(ctx, func(ctx context.Context, t *firestore.Transaction) error {
		return fn(ctx, &firestoreTx{store: s, tx: t})
	})
	if status.Code(err) == codes.Aborted {
		return fmt.Errorf("%w: %v", ErrAborted, err)
	}
	return err
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

func (s *FirestoreStore) buildQuery(collection string, q Query) firestore.Query {
	query := s.client.Collection(collection).Query
	for _, f := range q.Filters {
		query = query.Where(f.Field, string(f.Op), f.Value)
	}
	if q.OrderBy != "" {
		dir := firestore.Asc
		if q.Desc {
			dir = firestore.Desc
		}
		query = query.OrderBy(q.OrderBy, dir)
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}
	return query
}

type firestoreBatch struct {
	client *firestore.Client
	wb     *firestore.WriteBatch
}

func (b *firestoreBatch) Create(collection string, data map[string]any) string {
	ref := b.client.Collection(collection).NewDoc()
	b.wb.Create(ref, toFirestore(data))
	return ref.ID
}

func (b *firestoreBatch) Set(collection, id string, data map[string]any) {
	b.wb.Set(b.client.Collection(collection).Doc(id), toFirestore(data))
}

func (b *firestoreBatch) Update(collection, id string, updates []Update) {
	b.wb.Update(b.client.Collection(collection).Doc(id), toFirestoreUpdates(updates))
}

func (b *firestoreBatch) Delete(collection, id string) {
	b.wb.Delete(b.client.Collection(collection).Doc(id))
}

func (b *firestoreBatch) Commit(ctx context.Context) error {
	if _, err := b.wb.Commit(ctx); err != nil {
		return mapFirestoreErr("batch", "", err)
	}
	return nil
}

type firestoreTx struct {
	store *FirestoreStore
	tx    *firestore.Transaction
}

func (t *firestoreTx) Get(collection, id string) (*Document, error) {
	snap, err := t.tx.Get(t.store.client.Collection(collection).Doc(id))
	if err != nil {
		return nil, mapFirestoreErr(collection, id, err)
	}
	return fromSnapshot(snap), nil
}

func (t *firestoreTx) Query(collection string, q Query) ([]*Document, error) {
	iter := t.tx.Documents(t.store.buildQuery(collection, q))
	defer iter.Stop()
	return drain(iter)
}

func (t *firestoreTx) Create(collection string, data map[string]any) (string, error) {
	ref := t.store.client.Collection(collection).NewDoc()
	return ref.ID, t.tx.Create(ref, toFirestore(data))
}

func (t *firestoreTx) Set(collection, id string, data map[string]any) error {
	return t.tx.Set(t.store.client.Collection(collection).Doc(id), toFirestore(data))
}

func (t *firestoreTx) Update(collection, id string, updates []Update) error {
	return t.tx.Update(t.store.client.Collection(collection).Doc(id), toFirestoreUpdates(updates))
}

func (t *firestoreTx) Delete(collection, id string) error {
	return t.tx.Delete(t.store.client.Collection(collection).Doc(id))
}

func drain(iter *firestore.DocumentIterator) ([]*Document, error) {
	var docs []*Document
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return docs, nil
		}
		if err != nil {
			return nil, fmt.Errorf("iterate documents: %w", err)
		}
		docs = append(docs, fromSnapshot(snap))
	}
}

func fromSnapshot(snap *firestore.DocumentSnapshot) *Document {
	return &Document{ID: snap.Ref.ID, Data: snap.Data()}
}

func toFirestore(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = toFirestoreValue(v)
	}
	return out
}

func toFirestoreValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return toFirestore(val)
	case sentinel:
		if val == ServerTimestamp {
			return firestore.ServerTimestamp
		}
		return firestore.Delete
	default:
		return v
	}
}

func toFirestoreUpdates(updates []Update) []firestore.Update {
	out := make([]firestore.Update, 0, len(updates))
	for _, u := range updates {
		out = append(out, firestore.Update{Path: u.Path, Value: toFirestoreValue(u.Value)})
	}
	return out
}

func mapFirestoreErr(collection, id string, err error) error {
	if err == nil {
		return nil
	}
	switch status.Code(err) {
	case codes.NotFound:
		return fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	case codes.AlreadyExists:
		return fmt.Errorf("%s/%s: %w", collection, id, ErrAlreadyExists)
	}
	return fmt.Errorf("firestore %s/%s: %w", collection, id, err)
}
