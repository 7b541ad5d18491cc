// Package docstore is a small document-database abstraction shaped after
// Firestore: collections of JSON-like documents addressed by id, field-path
// updates, filtered queries, atomic batches and read-then-write transactions.
//
// Three backends implement Store: Firestore for production, Postgres (JSONB)
// for self-hosted deployments and an in-memory store used by tests and local
// development.
package docstore

import (
	"context"
	"errors"
	"path"
	"strings"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrAlreadyExists is returned by Create when the generated id collides.
	ErrAlreadyExists = errors.New("document already exists")
	// ErrAborted is returned when a transaction could not be committed.
	ErrAborted = errors.New("transaction aborted")
)

type sentinel string

// ServerTimestamp is replaced by the commit time of the write that carries it.
const ServerTimestamp = sentinel("serverTimestamp")

// DeleteField removes the field it is assigned to in an Update.
const DeleteField = sentinel("deleteField")

// Op is a query comparison operator.
type Op string

const (
	OpEqual        Op = "=="
	OpLess         Op = "<"
	OpLessEqual    Op = "<="
	OpGreater      Op = ">"
	OpGreaterEqual Op = ">="
)

// Filter restricts a query to documents whose field compares to Value.
type Filter struct {
	Field string
	Op    Op
	Value any
}

// Where builds a Filter.
func Where(field string, op Op, value any) Filter {
	return Filter{Field: field, Op: op, Value: value}
}

// Query describes a collection query. Zero Limit means unbounded.
type Query struct {
	Filters []Filter
	OrderBy string
	Desc    bool
	Limit   int
}

// Update sets a single (possibly dotted) field path.
type Update struct {
	Path  string
	Value any
}

// Document is a snapshot of a stored record.
type Document struct {
	ID   string
	Data map[string]any
}

// Store is the document store consumed by the engines.
type Store interface {
	Get(ctx context.Context, collection, id string) (*Document, error)
	Query(ctx context.Context, collection string, q Query) ([]*Document, error)
	Create(ctx context.Context, collection string, data map[string]any) (string, error)
	Set(ctx context.Context, collection, id string, data map[string]any) error
	// Update fails with ErrNotFound when the document is absent.
	Update(ctx context.Context, collection, id string, updates []Update) error
	Delete(ctx context.Context, collection, id string) error
	Batch() Batch
	// RunTransaction runs fn so that every write it issues commits atomically
	// and only if the documents it read were not changed concurrently. All
	// reads must happen before the first write.
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Close() error
}

// Batch collects writes that commit all-or-nothing.
type Batch interface {
	// Create queues a new document and returns the id it will be stored under.
	Create(collection string, data map[string]any) string
	Set(collection, id string, data map[string]any)
	Update(collection, id string, updates []Update)
	Delete(collection, id string)
	Commit(ctx context.Context) error
}

// Tx is the view of the store inside RunTransaction.
type Tx interface {
	Get(collection, id string) (*Document, error)
	Query(collection string, q Query) ([]*Document, error)
	Create(collection string, data map[string]any) (string, error)
	Set(collection, id string, data map[string]any) error
	Update(collection, id string, updates []Update) error
	Delete(collection, id string) error
}

// Sub returns the path of a sub-collection under a document.
func Sub(collection, id, child string) string {
	return path.Join(collection, id, child)
}

// Fields splits a dotted field path.
func Fields(fieldPath string) []string {
	return strings.Split(fieldPath, ".")
}
