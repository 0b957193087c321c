package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"market-feed/internal/storage"
)

// CursorRepository is a PostgreSQL implementation of storage.CursorRepository.
// Uses table venue_cursors with one row per venue key.
type CursorRepository struct {
	pool *Pool
}

// NewCursorRepository creates a new PostgreSQL cursor repository.
func NewCursorRepository(pool *Pool) *CursorRepository {
	return &CursorRepository{pool: pool}
}

// Load returns all persisted cursors.
func (r *CursorRepository) Load(ctx context.Context) (map[string]uint64, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT venue_key, sequence FROM venue_cursors
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: load cursors: %v", storage.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	cursors := make(map[string]uint64)
	for rows.Next() {
		var (
			key string
			seq int64
		)
		if err := rows.Scan(&key, &seq); err != nil {
			return nil, err
		}
		cursors[key] = uint64(seq)
	}

	return cursors, rows.Err()
}

// Save upserts every cursor in one transaction. GREATEST keeps the stored
// sequence from moving backwards.
func (r *CursorRepository) Save(ctx context.Context, cursors map[string]uint64) error {
	if len(cursors) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for key, seq := range cursors {
		if key == "" {
			return storage.ErrInvalidInput
		}
		batch.Queue(`
			INSERT INTO venue_cursors (venue_key, sequence, updated_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT (venue_key) DO UPDATE
			SET sequence = GREATEST(venue_cursors.sequence, EXCLUDED.sequence),
			    updated_at = NOW()
		`, key, int64(seq))
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", storage.ErrStoreUnavailable, err)
	}
	defer tx.Rollback(ctx)

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("%w: save cursors: %v", storage.ErrStoreUnavailable, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %v", storage.ErrStoreUnavailable, err)
	}
	return nil
}

var _ storage.CursorRepository = (*CursorRepository)(nil)
