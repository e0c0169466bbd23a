package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrConflict is returned when an update targets a row that does not exist.
var ErrConflict = errors.New("entity does not exist")

// Entity is anything kept in the store. Relationships between entities are
// identifier fields, never embedded references.
type Entity interface {
	Kind() string
	EntityID() int64
	SetEntityID(id int64)
}

// Row is a stored entity in its encoded form.
type Row struct {
	ID   int64
	Data []byte
}

type Reader interface {
	// LoadRaw returns nil, nil when the entity does not exist.
	LoadRaw(ctx context.Context, kind string, id int64) ([]byte, error)
	// ListRaw returns every entity of kind ordered by id.
	ListRaw(ctx context.Context, kind string) ([]Row, error)
}

type Writer interface {
	// SaveRaw inserts when id is 0 and returns the id of the stored row.
	SaveRaw(ctx context.Context, kind string, id int64, data []byte) (int64, error)
	DeleteRaw(ctx context.Context, kind string, id int64) error
}

// Tx is a read/modify/commit scope.
type Tx interface {
	Reader
	Writer
}

// Store auto-commits every call made on it directly. Update groups calls into
// one transaction that is committed when fn returns nil. Transactions are
// serialized; fn must only use the Tx it is given.
type Store interface {
	Tx
	Update(ctx context.Context, fn func(tx Tx) error) error
	Close() error
}

type entityPtr[T any] interface {
	*T
	Entity
}

// Get loads the entity with id. It returns nil, nil when it does not exist.
func Get[T any, P entityPtr[T]](ctx context.Context, r Reader, id int64) (P, error) {
	p := P(new(T))
	if id == 0 {
		return nil, nil
	}
	raw, err := r.LoadRaw(ctx, p.Kind(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s %d: %w", p.Kind(), id, err)
	}
	if raw == nil {
		return nil, nil
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("failed to decode %s %d: %w", p.Kind(), id, err)
	}
	p.SetEntityID(id)
	return p, nil
}

// List returns every entity of type T ordered by id.
func List[T any, P entityPtr[T]](ctx context.Context, r Reader) ([]P, error) {
	kind := P(new(T)).Kind()
	rows, err := r.ListRaw(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", kind, err)
	}
	out := make([]P, 0, len(rows))
	for _, row := range rows {
		p := P(new(T))
		if err := json.Unmarshal(row.Data, p); err != nil {
			return nil, fmt.Errorf("failed to decode %s %d: %w", kind, row.ID, err)
		}
		p.SetEntityID(row.ID)
		out = append(out, p)
	}
	return out, nil
}

// Save inserts or updates e. New entities get their identifier assigned.
func Save(ctx context.Context, w Writer, e Entity) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", e.Kind(), err)
	}
	id, err := w.SaveRaw(ctx, e.Kind(), e.EntityID(), data)
	if err != nil {
		return fmt.Errorf("failed to save %s %d: %w", e.Kind(), e.EntityID(), err)
	}
	e.SetEntityID(id)
	return nil
}

// Delete removes e.
func Delete(ctx context.Context, w Writer, e Entity) error {
	if err := w.DeleteRaw(ctx, e.Kind(), e.EntityID()); err != nil {
		return fmt.Errorf("failed to delete %s %d: %w", e.Kind(), e.EntityID(), err)
	}
	return nil
}
