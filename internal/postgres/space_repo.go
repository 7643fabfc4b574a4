package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cwrk-planet/spaces/internal/domain"
	"github.com/cwrk-planet/spaces/internal/storage"
)

const uniqueViolation = "23505"

// SpaceRepository stores each space as one jsonb document. Mutations lock
// the row, so concurrent joins cannot exceed capacity.
type SpaceRepository struct {
	db *pgxpool.Pool
}

func NewSpaceRepository(db *pgxpool.Pool) *SpaceRepository {
	return &SpaceRepository{db: db}
}

func (r *SpaceRepository) Create(ctx context.Context, sp *domain.Space) error {
	doc, err := json.Marshal(sp)
	if err != nil {
		return fmt.Errorf("marshal space: %w", err)
	}
	_, err = r.db.Exec(ctx,
		`INSERT INTO spaces (id, host, created_at, doc) VALUES ($1, $2, $3, $4)`,
		sp.ID, sp.Host, sp.CreatedAt, doc)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return domain.ErrSpaceExists
	}
	return err
}

func (r *SpaceRepository) Get(ctx context.Context, id string) (*domain.Space, error) {
	var doc []byte
	err := r.db.QueryRow(ctx, `SELECT doc FROM spaces WHERE id=$1`, id).Scan(&doc)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSpaceNotFound
		}
		return nil, err
	}
	return unmarshal(doc)
}

func (r *SpaceRepository) List(ctx context.Context, limit int, cursorStr string) ([]domain.Space, string, error) {
	cur, err := storage.DecodeCursor(cursorStr)
	if err != nil {
		return nil, "", err
	}

	query := `
		SELECT doc
		FROM spaces
		WHERE ($1::bigint IS NULL OR created_at < $1
		       OR (created_at = $1 AND id < $2))
		ORDER BY created_at DESC, id DESC
		LIMIT $3`

	var createdAt, id any
	if cur != nil {
		createdAt = cur.CreatedAt
		id = cur.ID
	}

	rows, err := r.db.Query(ctx, query, createdAt, id, limit)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()

	var spaces []domain.Space
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, "", err
		}
		sp, err := unmarshal(doc)
		if err != nil {
			return nil, "", err
		}
		spaces = append(spaces, *sp)
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

// Update runs fn against the locked row and writes the result back in the
// same transaction. An error from fn rolls everything back.
func (r *SpaceRepository) Update(ctx context.Context, id string, fn func(sp *domain.Space) error) (*domain.Space, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	// параллельные транзакции по тому же space ждут здесь
	var doc []byte
	if err := tx.QueryRow(ctx, `SELECT doc FROM spaces WHERE id=$1 FOR UPDATE`, id).Scan(&doc); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSpaceNotFound
		}
		return nil, err
	}
	sp, err := unmarshal(doc)
	if err != nil {
		return nil, err
	}
	if err := fn(sp); err != nil {
		return nil, err
	}

	out, err := json.Marshal(sp)
	if err != nil {
		return nil, fmt.Errorf("marshal space: %w", err)
	}
	if _, err := tx.Exec(ctx, `UPDATE spaces SET doc=$2 WHERE id=$1`, id, out); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return sp, nil
}

func unmarshal(doc []byte) (*domain.Space, error) {
	var sp domain.Space
	if err := json.Unmarshal(doc, &sp); err != nil {
		return nil, fmt.Errorf("unmarshal space: %w", err)
	}
	return &sp, nil
}
