package store

import (
	"cmp"
	"context"
	"slices"
	"sync"
)

type rowKey struct {
	kind string
	id   int64
}

// MemoryStore keeps entities in process memory. It is used by tests and by
// the server when no database path is configured.
type MemoryStore struct {
	mu     sync.Mutex
	rows   map[rowKey][]byte
	nextID int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[rowKey][]byte)}
}

func (s *MemoryStore) LoadRaw(ctx context.Context, kind string, id int64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(kind, id), nil
}

func (s *MemoryStore) ListRaw(ctx context.Context, kind string) ([]Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list(kind, nil, nil), nil
}

func (s *MemoryStore) SaveRaw(ctx context.Context, kind string, id int64, data []byte) (int64, error) {
	var saved int64
	err := s.Update(ctx, func(tx Tx) error {
		var err error
		saved, err = tx.SaveRaw(ctx, kind, id, data)
		return err
	})
	return saved, err
}

func (s *MemoryStore) DeleteRaw(ctx context.Context, kind string, id int64) error {
	return s.Update(ctx, func(tx Tx) error {
		return tx.DeleteRaw(ctx, kind, id)
	})
}

// Update runs fn while holding the store lock. Writes become visible only
// when fn returns nil.
func (s *MemoryStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{
		store:   s,
		writes:  make(map[rowKey][]byte),
		deletes: make(map[rowKey]bool),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for k := range tx.deletes {
		delete(s.rows, k)
	}
	for k, v := range tx.writes {
		s.rows[k] = v
	}
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) load(kind string, id int64) []byte {
	data, ok := s.rows[rowKey{kind, id}]
	if !ok {
		return nil
	}
	return slices.Clone(data)
}

func (s *MemoryStore) list(kind string, writes map[rowKey][]byte, deletes map[rowKey]bool) []Row {
	merged := make(map[int64][]byte)
	for k, v := range s.rows {
		if k.kind == kind {
			merged[k.id] = v
		}
	}
	for k, v := range writes {
		if k.kind == kind {
			merged[k.id] = v
		}
	}
	for k := range deletes {
		if k.kind == kind {
			delete(merged, k.id)
		}
	}

	rows := make([]Row, 0, len(merged))
	for id, data := range merged {
		rows = append(rows, Row{ID: id, Data: slices.Clone(data)})
	}
	slices.SortFunc(rows, func(a, b Row) int { return cmp.Compare(a.ID, b.ID) })
	return rows
}

type memoryTx struct {
	store   *MemoryStore
	writes  map[rowKey][]byte
	deletes map[rowKey]bool
}

func (tx *memoryTx) LoadRaw(ctx context.Context, kind string, id int64) ([]byte, error) {
	k := rowKey{kind, id}
	if tx.deletes[k] {
		return nil, nil
	}
	if data, ok := tx.writes[k]; ok {
		return slices.Clone(data), nil
	}
	return tx.store.load(kind, id), nil
}

func (tx *memoryTx) ListRaw(ctx context.Context, kind string) ([]Row, error) {
	return tx.store.list(kind, tx.writes, tx.deletes), nil
}

func (tx *memoryTx) SaveRaw(ctx context.Context, kind string, id int64, data []byte) (int64, error) {
	if id == 0 {
		tx.store.nextID++
		id = tx.store.nextID
	} else if raw, _ := tx.LoadRaw(ctx, kind, id); raw == nil {
		return 0, ErrConflict
	}
	k := rowKey{kind, id}
	delete(tx.deletes, k)
	tx.writes[k] = slices.Clone(data)
	return id, nil
}

func (tx *memoryTx) DeleteRaw(ctx context.Context, kind string, id int64) error {
	k := rowKey{kind, id}
	delete(tx.writes, k)
	tx.deletes[k] = true
	return nil
}
