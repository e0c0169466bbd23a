package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection serializes transactions.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	store := &SQLiteStore{db: db}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS entities (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			data TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entities_kind ON entities(kind, id)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) LoadRaw(ctx context.Context, kind string, id int64) ([]byte, error) {
	return loadRaw(ctx, s.db, kind, id)
}

func (s *SQLiteStore) ListRaw(ctx context.Context, kind string) ([]Row, error) {
	return listRaw(ctx, s.db, kind)
}

func (s *SQLiteStore) SaveRaw(ctx context.Context, kind string, id int64, data []byte) (int64, error) {
	return saveRaw(ctx, s.db, kind, id, data)
}

func (s *SQLiteStore) DeleteRaw(ctx context.Context, kind string, id int64) error {
	return deleteRaw(ctx, s.db, kind, id)
}

// Update runs fn inside a database transaction.
func (s *SQLiteStore) Update(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(&sqliteTx{tx: tx}); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) LoadRaw(ctx context.Context, kind string, id int64) ([]byte, error) {
	return loadRaw(ctx, t.tx, kind, id)
}

func (t *sqliteTx) ListRaw(ctx context.Context, kind string) ([]Row, error) {
	return listRaw(ctx, t.tx, kind)
}

func (t *sqliteTx) SaveRaw(ctx context.Context, kind string, id int64, data []byte) (int64, error) {
	return saveRaw(ctx, t.tx, kind, id, data)
}

func (t *sqliteTx) DeleteRaw(ctx context.Context, kind string, id int64) error {
	return deleteRaw(ctx, t.tx, kind, id)
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func loadRaw(ctx context.Context, q querier, kind string, id int64) ([]byte, error) {
	var data string
	err := q.QueryRowContext(ctx,
		`SELECT data FROM entities WHERE kind = ? AND id = ?`, kind, id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(data), nil
}

func listRaw(ctx context.Context, q querier, kind string) ([]Row, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, data FROM entities WHERE kind = ? ORDER BY id`, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var data string
		if err := rows.Scan(&r.ID, &data); err != nil {
			return nil, err
		}
		r.Data = []byte(data)
		out = append(out, r)
	}
	return out, rows.Err()
}

func saveRaw(ctx context.Context, q querier, kind string, id int64, data []byte) (int64, error) {
	if id == 0 {
		result, err := q.ExecContext(ctx,
			`INSERT INTO entities (kind, data, created_at, updated_at) VALUES (?, ?, ?, ?)`,
			kind, string(data), time.Now(), time.Now())
		if err != nil {
			return 0, err
		}
		return result.LastInsertId()
	}

	result, err := q.ExecContext(ctx,
		`UPDATE entities SET data = ?, updated_at = ? WHERE kind = ? AND id = ?`,
		string(data), time.Now(), kind, id)
	if err != nil {
		return 0, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if rows == 0 {
		return 0, ErrConflict
	}
	return id, nil
}

func deleteRaw(ctx context.Context, q querier, kind string, id int64) error {
	_, err := q.ExecContext(ctx, `DELETE FROM entities WHERE kind = ? AND id = ?`, kind, id)
	return err
}
