package docstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// timeLayout is fixed-width so JSONB text comparisons order chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

var fieldPathPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// DocumentRow is the single table backing every collection.
type DocumentRow struct {
	Collection string            `gorm:"primaryKey;type:varchar(255)"`
	ID         string            `gorm:"primaryKey;type:varchar(64)"`
	Data       datatypes.JSONMap `gorm:"type:jsonb;not null"`
	CreatedAt  time.Time         `gorm:"index"`
	UpdatedAt  time.Time
}

func (DocumentRow) TableName() string {
	return "documents"
}

// PostgresStore keeps documents as JSONB rows. Range filters and ordering
// compare the text form of the field, which is correct for strings and
// timestamps but not for numbers.
type PostgresStore struct {
	db  *gorm.DB
	now func() time.Time
}

// NewPostgresStore wraps a gorm connection. Call AutoMigrate once at startup.
func NewPostgresStore(db *gorm.DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

// AutoMigrate creates the documents table.
func (s *PostgresStore) AutoMigrate() error {
	return s.db.AutoMigrate(&DocumentRow{})
}

func (s *PostgresStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	return pgGet(s.db.WithContext(ctx), collection, id, false)
}

func (s *PostgresStore) Query(ctx context.Context, collection string, q Query) ([]*Document, error) {
	return pgQuery(s.db.WithContext(ctx), collection, q, false)
}

func (s *PostgresStore) Create(ctx context.Context, collection string, data map[string]any) (string, error) {
	id := uuid.NewString()
	err := s.apply(ctx, []Write{{Kind: WriteCreate, Collection: collection, ID: id, Data: data}})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *PostgresStore) Set(ctx context.Context, collection, id string, data map[string]any) error {
	return s.apply(ctx, []Write{{Kind: WriteSet, Collection: collection, ID: id, Data: data}})
}

func (s *PostgresStore) Update(ctx context.Context, collection, id string, updates []Update) error {
	return s.apply(ctx, []Write{{Kind: WriteUpdate, Collection: collection, ID: id, Updates: updates}})
}

func (s *PostgresStore) Delete(ctx context.Context, collection, id string) error {
	return s.apply(ctx, []Write{{Kind: WriteDelete, Collection: collection, ID: id}})
}

func (s *PostgresStore) Batch() Batch {
	return &pgBatch{s: s}
}

func (s *PostgresStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		tx := &pgTx{db: db}
		if err := fn(ctx, tx); err != nil {
			return err
		}
		return pgApply(db, tx.writes, s.now())
	})
}

func (s *PostgresStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *PostgresStore) apply(ctx context.Context, writes []Write) error {
	return s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		return pgApply(db, writes, s.now())
	})
}

func pgGet(db *gorm.DB, collection, id string, lock bool) (*Document, error) {
	if lock {
		db = db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var row DocumentRow
	err := db.Where("collection = ? AND id = ?", collection, id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%s/%s: %w", collection, id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return &Document{ID: row.ID, Data: map[string]any(row.Data)}, nil
}

func pgQuery(db *gorm.DB, collection string, q Query, lock bool) ([]*Document, error) {
	query := db.Model(&DocumentRow{}).Where("collection = ?", collection)
	for _, f := range q.Filters {
		if !fieldPathPattern.MatchString(f.Field) {
			return nil, fmt.Errorf("invalid field path %q", f.Field)
		}
		op, err := sqlOp(f.Op)
		if err != nil {
			return nil, err
		}
		query = query.Where("data #>> ?::text[] "+op+" ?", pgPath(f.Field), pgText(f.Value))
	}
	if q.OrderBy != "" {
		if !fieldPathPattern.MatchString(q.OrderBy) {
			return nil, fmt.Errorf("invalid order field %q", q.OrderBy)
		}
		dir := "ASC"
		if q.Desc {
			dir = "DESC"
		}
		query = query.
			Where("data #>> ?::text[] IS NOT NULL", pgPath(q.OrderBy)).
			Clauses(clause.OrderBy{Expression: clause.Expr{
				SQL:                "data #>> ?::text[] " + dir + ", created_at",
				Vars:               []any{pgPath(q.OrderBy)},
				WithoutParentheses: true,
			}})
	} else {
		query = query.Order("created_at")
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}
	if lock {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var rows []DocumentRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	docs := make([]*Document, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, &Document{ID: row.ID, Data: map[string]any(row.Data)})
	}
	return docs, nil
}

func pgApply(db *gorm.DB, writes []Write, now time.Time) error {
	for _, w := range writes {
		switch w.Kind {
		case WriteCreate:
			row := DocumentRow{Collection: w.Collection, ID: w.ID, Data: encodeTimes(resolve(w.Data, now))}
			if err := db.Create(&row).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					return fmt.Errorf("%s/%s: %w", w.Collection, w.ID, ErrAlreadyExists)
				}
				return fmt.Errorf("create %s/%s: %w", w.Collection, w.ID, err)
			}
		case WriteSet:
			row := DocumentRow{Collection: w.Collection, ID: w.ID, Data: encodeTimes(resolve(w.Data, now))}
			err := db.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "collection"}, {Name: "id"}},
				DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
			}).Create(&row).Error
			if err != nil {
				return fmt.Errorf("set %s/%s: %w", w.Collection, w.ID, err)
			}
		case WriteUpdate:
			doc, err := pgGet(db, w.Collection, w.ID, true)
			if err != nil {
				return err
			}
			for _, u := range w.Updates {
				setPath(doc.Data, u.Path, resolveUpdate(u.Value, now))
			}
			err = db.Model(&DocumentRow{}).
				Where("collection = ? AND id = ?", w.Collection, w.ID).
				Updates(map[string]any{"data": encodeTimes(doc.Data), "updated_at": now}).Error
			if err != nil {
				return fmt.Errorf("update %s/%s: %w", w.Collection, w.ID, err)
			}
		case WriteDelete:
			err := db.Where("collection = ? AND id = ?", w.Collection, w.ID).Delete(&DocumentRow{}).Error
			if err != nil {
				return fmt.Errorf("delete %s/%s: %w", w.Collection, w.ID, err)
			}
		}
	}
	return nil
}

type pgBatch struct {
	s      *PostgresStore
	writes []Write
}

func (b *pgBatch) Create(collection string, data map[string]any) string {
	id := uuid.NewString()
	b.writes = append(b.writes, Write{Kind: WriteCreate, Collection: collection, ID: id, Data: data})
	return id
}

func (b *pgBatch) Set(collection, id string, data map[string]any) {
	b.writes = append(b.writes, Write{Kind: WriteSet, Collection: collection, ID: id, Data: data})
}

func (b *pgBatch) Update(collection, id string, updates []Update) {
	b.writes = append(b.writes, Write{Kind: WriteUpdate, Collection: collection, ID: id, Updates: updates})
}

func (b *pgBatch) Delete(collection, id string) {
	b.writes = append(b.writes, Write{Kind: WriteDelete, Collection: collection, ID: id})
}

func (b *pgBatch) Commit(ctx context.Context) error {
	return b.s.apply(ctx, b.writes)
}

// pgTx locks every row it reads until the surrounding transaction ends.
// Queries also take a per-collection advisory lock so a query that matched
// nothing stays empty until commit.
type pgTx struct {
	db     *gorm.DB
	writes []Write
	locked map[string]bool
}

func (t *pgTx) Get(collection, id string) (*Document, error) {
	return pgGet(t.db, collection, id, true)
}

func (t *pgTx) Query(collection string, q Query) ([]*Document, error) {
	if !t.locked[collection] {
		if err := t.db.Exec("SELECT pg_advisory_xact_lock(hashtext(?))", collection).Error; err != nil {
			return nil, fmt.Errorf("lock %s: %w", collection, err)
		}
		if t.locked == nil {
			t.locked = make(map[string]bool)
		}
		t.locked[collection] = true
	}
	return pgQuery(t.db, collection, q, true)
}

func (t *pgTx) Create(collection string, data map[string]any) (string, error) {
	id := uuid.NewString()
	t.writes = append(t.writes, Write{Kind: WriteCreate, Collection: collection, ID: id, Data: data})
	return id, nil
}

func (t *pgTx) Set(collection, id string, data map[string]any) error {
	t.writes = append(t.writes, Write{Kind: WriteSet, Collection: collection, ID: id, Data: data})
	return nil
}

func (t *pgTx) Update(collection, id string, updates []Update) error {
	t.writes = append(t.writes, Write{Kind: WriteUpdate, Collection: collection, ID: id, Updates: updates})
	return nil
}

func (t *pgTx) Delete(collection, id string) error {
	t.writes = append(t.writes, Write{Kind: WriteDelete, Collection: collection, ID: id})
	return nil
}

func sqlOp(op Op) (string, error) {
	switch op {
	case OpEqual:
		return "=", nil
	case OpLess, OpLessEqual, OpGreater, OpGreaterEqual:
		return string(op), nil
	}
	return "", fmt.Errorf("unsupported operator %q", op)
}

func pgPath(fieldPath string) string {
	return "{" + strings.Join(Fields(fieldPath), ",") + "}"
}

// pgText renders a filter value the way `#>>` renders the stored JSON value.
func pgText(v any) string {
	switch val := v.(type) {
	case time.Time:
		return val.UTC().Format(timeLayout)
	case string:
		return val
	default:
		return fmt.Sprint(val)
	}
}

func encodeTimes(data map[string]any) datatypes.JSONMap {
	out := make(datatypes.JSONMap, len(data))
	for k, v := range data {
		out[k] = encodeTimeValue(v)
	}
	return out
}

func encodeTimeValue(v any) any {
	switch val := v.(type) {
	case time.Time:
		return val.UTC().Format(timeLayout)
	case *time.Time:
		if val == nil {
			return nil
		}
		return val.UTC().Format(timeLayout)
	case map[string]any:
		return map[string]any(encodeTimes(val))
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = encodeTimeValue(e)
		}
		return out
	default:
		return v
	}
}
