package redis

import (
	"context"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"market-feed/internal/storage"
)

// WindowStore keeps each window as a Redis list.
type WindowStore struct {
	client *Client
}

// NewWindowStore creates a Redis window store.
func NewWindowStore(client *Client) *WindowStore {
	return &WindowStore{client: client}
}

// Append RPUSHes entry onto every list in one pipeline.
func (s *WindowStore) Append(ctx context.Context, keys []string, entry []byte) error {
	if len(entry) == 0 {
		return storage.ErrInvalidInput
	}
	if len(keys) == 0 {
		return nil
	}

	_, err := s.client.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		for _, key := range keys {
			pipe.RPush(ctx, key, entry)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: append: %v", storage.ErrStoreUnavailable, err)
	}
	return nil
}

// Drain reads and deletes the list in one MULTI/EXEC block, so a concurrent
// RPUSH is ordered entirely before or after it.
func (s *WindowStore) Drain(ctx context.Context, key string) ([][]byte, error) {
	var rng *goredis.StringSliceCmd
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		rng = pipe.LRange(ctx, key, 0, -1)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: drain %s: %v", storage.ErrStoreUnavailable, key, err)
	}
	return toBytes(rng.Val()), nil
}

// Range returns the list without removing it.
func (s *WindowStore) Range(ctx context.Context, key string) ([][]byte, error) {
	vals, err := s.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: range %s: %v", storage.ErrStoreUnavailable, key, err)
	}
	return toBytes(vals), nil
}

// Head reads the first n entries with LRANGE 0 n-1.
func (s *WindowStore) Head(ctx context.Context, key string, n int) ([][]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	vals, err := s.client.LRange(ctx, key, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: head %s: %v", storage.ErrStoreUnavailable, key, err)
	}
	return toBytes(vals), nil
}

// TrimPrefix drops the first n entries with LTRIM n -1. Entries pushed to
// the tail after the caller counted n are kept.
func (s *WindowStore) TrimPrefix(ctx context.Context, key string, n int) error {
	if n <= 0 {
		return nil
	}
	if err := s.client.LTrim(ctx, key, int64(n), -1).Err(); err != nil {
		return fmt.Errorf("%w: trim %s: %v", storage.ErrStoreUnavailable, key, err)
	}
	return nil
}

func toBytes(vals []string) [][]byte {
	if len(vals) == 0 {
		return nil
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		out[i] = []byte(v)
	}
	return out
}

var _ storage.WindowStore = (*WindowStore)(nil)
