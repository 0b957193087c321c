package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"market-feed/internal/storage"
)

// CursorKey is the Redis key holding the cursor record.
const CursorKey = "cursors"

// CursorRepository stores the cursor mapping as one JSON object under CursorKey.
type CursorRepository struct {
	client *Client
	key    string
}

// NewCursorRepository creates a Redis cursor repository.
func NewCursorRepository(client *Client) *CursorRepository {
	return &CursorRepository{client: client, key: CursorKey}
}

// Load reads the cursor record. A missing key yields an empty map.
func (r *CursorRepository) Load(ctx context.Context) (map[string]uint64, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return map[string]uint64{}, nil
		}
		return nil, fmt.Errorf("%w: get %s: %v", storage.ErrStoreUnavailable, r.key, err)
	}

	cursors := make(map[string]uint64)
	if err := json.Unmarshal(data, &cursors); err != nil {
		return nil, fmt.Errorf("decode %s: %w", r.key, err)
	}
	return cursors, nil
}

// Save merges the mapping into the stored record inside a WATCH transaction,
// keeping the higher sequence per key.
func (r *CursorRepository) Save(ctx context.Context, cursors map[string]uint64) error {
	txf := func(tx *goredis.Tx) error {
		merged := make(map[string]uint64, len(cursors))

		data, err := tx.Get(ctx, r.key).Bytes()
		switch {
		case errors.Is(err, goredis.Nil):
		case err != nil:
			return err
		default:
			if err := json.Unmarshal(data, &merged); err != nil {
				return fmt.Errorf("decode %s: %w", r.key, err)
			}
		}

		for k, v := range cursors {
			if cur, ok := merged[k]; !ok || v > cur {
				merged[k] = v
			}
		}

		out, err := json.Marshal(merged)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, r.key, out, 0)
			return nil
		})
		return err
	}

	if err := r.client.Watch(ctx, txf, r.key); err != nil {
		return fmt.Errorf("%w: save %s: %v", storage.ErrStoreUnavailable, r.key, err)
	}
	return nil
}

var _ storage.CursorRepository = (*CursorRepository)(nil)
