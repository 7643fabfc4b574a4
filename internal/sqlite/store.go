// Package sqlite is a single-file SpaceRepository for local runs and the
// agent's demo mode.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/cwrk-planet/spaces/internal/domain"
	"github.com/cwrk-planet/spaces/internal/storage"
)

const schema = `
CREATE TABLE IF NOT EXISTS spaces (
	id         TEXT PRIMARY KEY,
	host       TEXT NOT NULL,
	created_at INTEGER NOT NULL,
	doc        TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS spaces_created_at_id_idx ON spaces (created_at DESC, id DESC);
`

type Store struct {
	sqlDB *sql.DB
}

// Open opens (or creates) the database at path and applies the schema.
// Write transactions take the lock up front, so Update is serialized.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) +
		"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

func (s *Store) Create(ctx context.Context, sp *domain.Space) error {
	doc, err := json.Marshal(sp)
	if err != nil {
		return fmt.Errorf("marshal space: %w", err)
	}
	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO spaces (id, host, created_at, doc) VALUES (?, ?, ?, ?)`,
		sp.ID, sp.Host, sp.CreatedAt, string(doc))
	if isConstraint(err) {
		return domain.ErrSpaceExists
	}
	return err
}

func (s *Store) Get(ctx context.Context, id string) (*domain.Space, error) {
	return get(ctx, s.sqlDB, id)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func get(ctx context.Context, q queryer, id string) (*domain.Space, error) {
	var doc string
	err := q.QueryRowContext(ctx, `SELECT doc FROM spaces WHERE id = ?`, id).Scan(&doc)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSpaceNotFound
		}
		return nil, err
	}
	var sp domain.Space
	if err := json.Unmarshal([]byte(doc), &sp); err != nil {
		return nil, fmt.Errorf("unmarshal space: %w", err)
	}
	return &sp, nil
}

func (s *Store) List(ctx context.Context, limit int, cursorStr string) ([]domain.Space, string, error) {
	cur, err := storage.DecodeCursor(cursorStr)
	if err != nil {
		return nil, "", err
	}

	var (
		rows *sql.Rows
		qErr error
	)
	if cur == nil {
		rows, qErr = s.sqlDB.QueryContext(ctx,
			`SELECT doc FROM spaces ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	} else {
		rows, qErr = s.sqlDB.QueryContext(ctx,
			`SELECT doc FROM spaces
			 WHERE created_at < ? OR (created_at = ? AND id < ?)
			 ORDER BY created_at DESC, id DESC LIMIT ?`,
			cur.CreatedAt, cur.CreatedAt, cur.ID, limit)
	}
	if qErr != nil {
		return nil, "", qErr
	}
	defer rows.Close()

	var spaces []domain.Space
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, "", err
		}
		var sp domain.Space
		if err := json.Unmarshal([]byte(doc), &sp); err != nil {
			return nil, "", fmt.Errorf("unmarshal space: %w", err)
		}
		spaces = append(spaces, sp)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	var next string
	if n := len(spaces); n > 0 {
		next = storage.NextCursor(n, limit, spaces[n-1].CreatedAt, spaces[n-1].ID)
	}
	return spaces, next, nil
}

func (s *Store) Update(ctx context.Context, id string, fn func(sp *domain.Space) error) (*domain.Space, error) {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	sp, err := get(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(sp); err != nil {
		return nil, err
	}
	doc, err := json.Marshal(sp)
	if err != nil {
		return nil, fmt.Errorf("marshal space: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE spaces SET doc = ? WHERE id = ?`, string(doc), id); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return sp, nil
}

func isConstraint(err error) bool {
	var se *msqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
		return true
	}
	return false
}
