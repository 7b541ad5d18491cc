package docstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// WriteKind identifies a queued write.
type WriteKind string

const (
	WriteCreate WriteKind = "create"
	WriteSet    WriteKind = "set"
	WriteUpdate WriteKind = "update"
	WriteDelete WriteKind = "delete"
)

// Write is a single queued mutation, as seen by a FaultHook.
type Write struct {
	Kind       WriteKind
	Collection string
	ID         string
	Data       map[string]any
	Updates    []Update
}

// FaultHook is consulted for every write during a commit. Returning an error
// aborts the whole commit.
type FaultHook func(w Write) error

type memDoc struct {
	data map[string]any
	seq  int64
}

type docKey struct {
	collection string
	id         string
}

// MemoryStore keeps documents in process memory. Transactions are serialized
// on a single mutex, which makes them trivially conflict-free.
type MemoryStore struct {
	mu    sync.Mutex
	docs  map[string]map[string]*memDoc
	seq   int64
	now   func() time.Time
	fault FaultHook
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock sets the clock used to resolve ServerTimestamp.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		docs: make(map[string]map[string]*memDoc),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetFaultHook installs (or clears, with nil) the commit fault hook.
func (s *MemoryStore) SetFaultHook(h FaultHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fault = h
}

func (s *MemoryStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(collection, id)
}

func (s *MemoryStore) getLocked(collection, id string) (*Document, error) {
	d, ok := s.docs[collection][id]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	return &Document{ID: id, Data: resolve(d.data, time.Time{})}, nil
}

func (s *MemoryStore) Query(ctx context.Context, collection string, q Query) ([]*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queryLocked(collection, q), nil
}

func (s *MemoryStore) queryLocked(collection string, q Query) []*Document {
	type hit struct {
		id  string
		doc *memDoc
	}
	var hits []hit
	for id, d := range s.docs[collection] {
		ok := true
		for _, f := range q.Filters {
			if !matches(d.data, f) {
				ok = false
				break
			}
		}
		if ok && q.OrderBy != "" {
			_, ok = lookup(d.data, q.OrderBy)
		}
		if ok {
			hits = append(hits, hit{id: id, doc: d})
		}
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].doc.seq < hits[j].doc.seq })
	if q.OrderBy != "" {
		sort.SliceStable(hits, func(i, j int) bool {
			a, _ := lookup(hits[i].doc.data, q.OrderBy)
			b, _ := lookup(hits[j].doc.data, q.OrderBy)
			c, _ := compareValues(a, b)
			if q.Desc {
				return c > 0
			}
			return c < 0
		})
	}
	if q.Limit > 0 && len(hits) > q.Limit {
		hits = hits[:q.Limit]
	}

	out := make([]*Document, 0, len(hits))
	for _, h := range hits {
		out = append(out, &Document{ID: h.id, Data: resolve(h.doc.data, time.Time{})})
	}
	return out
}

func (s *MemoryStore) Create(ctx context.Context, collection string, data map[string]any) (string, error) {
	id := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.commitLocked([]Write{{Kind: WriteCreate, Collection: collection, ID: id, Data: data}}); err != nil {
		return "", err
	}
	return id, nil
}

func (s *MemoryStore) Set(ctx context.Context, collection, id string, data map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitLocked([]Write{{Kind: WriteSet, Collection: collection, ID: id, Data: data}})
}

func (s *MemoryStore) Update(ctx context.Context, collection, id string, updates []Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitLocked([]Write{{Kind: WriteUpdate, Collection: collection, ID: id, Updates: updates}})
}

func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commitLocked([]Write{{Kind: WriteDelete, Collection: collection, ID: id}})
}

func (s *MemoryStore) Batch() Batch {
	return &memBatch{s: s}
}

func (s *MemoryStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{s: s}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return s.commitLocked(tx.writes)
}

func (s *MemoryStore) Close() error { return nil }

// commitLocked applies writes all-or-nothing. Every write is staged against a
// private overlay first; the live map is only touched once all have passed.
func (s *MemoryStore) commitLocked(writes []Write) error {
	now := s.now()
	staged := make(map[docKey]*memDoc)

	current := func(k docKey) (*memDoc, bool) {
		if d, ok := staged[k]; ok {
			return d, d != nil
		}
		d, ok := s.docs[k.collection][k.id]
		return d, ok
	}

	for _, w := range writes {
		if s.fault != nil {
			if err := s.fault(w); err != nil {
				return err
			}
		}
		k := docKey{collection: w.Collection, id: w.ID}
		existing, exists := current(k)

		switch w.Kind {
		case WriteCreate:
			if exists {
				return fmt.Errorf("%s/%s: %w", w.Collection, w.ID, ErrAlreadyExists)
			}
			s.seq++
			staged[k] = &memDoc{data: resolve(w.Data, now), seq: s.seq}
		case WriteSet:
			seq := int64(0)
			if exists {
				seq = existing.seq
			} else {
				s.seq++
				seq = s.seq
			}
			staged[k] = &memDoc{data: resolve(w.Data, now), seq: seq}
		case WriteUpdate:
			if !exists {
				return fmt.Errorf("%s/%s: %w", w.Collection, w.ID, ErrNotFound)
			}
			data := resolve(existing.data, now)
			for _, u := range w.Updates {
				setPath(data, u.Path, resolveUpdate(u.Value, now))
			}
			staged[k] = &memDoc{data: data, seq: existing.seq}
		case WriteDelete:
			staged[k] = nil
		default:
			return fmt.Errorf("unknown write kind %q", w.Kind)
		}
	}

	for k, d := range staged {
		if d == nil {
			delete(s.docs[k.collection], k.id)
			continue
		}
		col, ok := s.docs[k.collection]
		if !ok {
			col = make(map[string]*memDoc)
			s.docs[k.collection] = col
		}
		col[k.id] = d
	}
	return nil
}

func resolveUpdate(v any, now time.Time) any {
	if v == DeleteField {
		return DeleteField
	}
	return resolveValue(v, now)
}

type memBatch struct {
	s      *MemoryStore
	writes []Write
}

func (b *memBatch) Create(collection string, data map[string]any) string {
	id := uuid.NewString()
	b.writes = append(b.writes, Write{Kind: WriteCreate, Collection: collection, ID: id, Data: data})
	return id
}

func (b *memBatch) Set(collection, id string, data map[string]any) {
	b.writes = append(b.writes, Write{Kind: WriteSet, Collection: collection, ID: id, Data: data})
}

func (b *memBatch) Update(collection, id string, updates []Update) {
	b.writes = append(b.writes, Write{Kind: WriteUpdate, Collection: collection, ID: id, Updates: updates})
}

func (b *memBatch) Delete(collection, id string) {
	b.writes = append(b.writes, Write{Kind: WriteDelete, Collection: collection, ID: id})
}

func (b *memBatch) Commit(ctx context.Context) error {
	b.s.mu.Lock()
	defer b.s.mu.Unlock()
	return b.s.commitLocked(b.writes)
}

// memTx runs with the store mutex held by RunTransaction.
type memTx struct {
	s      *MemoryStore
	writes []Write
}

func (t *memTx) Get(collection, id string) (*Document, error) {
	return t.s.getLocked(collection, id)
}

func (t *memTx) Query(collection string, q Query) ([]*Document, error) {
	return t.s.queryLocked(collection, q), nil
}

func (t *memTx) Create(collection string, data map[string]any) (string, error) {
	id := uuid.NewString()
	t.writes = append(t.writes, Write{Kind: WriteCreate, Collection: collection, ID: id, Data: data})
	return id, nil
}

func (t *memTx) Set(collection, id string, data map[string]any) error {
	t.writes = append(t.writes, Write{Kind: WriteSet, Collection: collection, ID: id, Data: data})
	return nil
}

func (t *memTx) Update(collection, id string, updates []Update) error {
	t.writes = append(t.writes, Write{Kind: WriteUpdate, Collection: collection, ID: id, Updates: updates})
	return nil
}

func (t *memTx) Delete(collection, id string) error {
	t.writes = append(t.writes, Write{Kind: WriteDelete, Collection: collection, ID: id})
	return nil
}
