package redis

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowStore_AppendDrainTrim(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	client, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()
	store := NewWindowStore(client)

	require.NoError(t, store.Append(ctx, []string{"v-bbo-1m", "v-bbo-24h"}, []byte("a")))
	require.NoError(t, store.Append(ctx, []string{"v-bbo-1m", "v-bbo-24h"}, []byte("b")))
	require.NoError(t, store.Append(ctx, []string{"v-bbo-24h"}, []byte("c")))

	drained, err := store.Drain(ctx, "v-bbo-1m")
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("a"), []byte("b")}, drained)

	empty, err := store.Drain(ctx, "v-bbo-1m")
	require.NoError(t, err)
	assert.Empty(t, empty)

	head, err := store.Head(ctx, "v-bbo-24h", 2)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("a"), []byte("b")}, head)

	require.NoError(t, store.TrimPrefix(ctx, "v-bbo-24h", 2))
	rest, err := store.Range(ctx, "v-bbo-24h")
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("c")}, rest)
}

func TestWindowStore_DrainExclusivity(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	client, cleanup := setupTestRedis(t)
	defer cleanup()

	ctx := context.Background()
	store := NewWindowStore(client)

	const (
		writers   = 4
		perWriter = 200
	)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		drained [][]byte
	)

	done := make(chan struct{})
	drainerDone := make(chan struct{})
	go func() {
		defer close(drainerDone)
		for {
			got, err := store.Drain(ctx, "k")
			if err == nil {
				mu.Lock()
				drained = append(drained, got...)
				mu.Unlock()
			}
			select {
			case <-done:
				return
			default:
			}
		}
	}()

	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_ = store.Append(ctx, []string{"k"}, []byte(fmt.Sprintf("%d-%d", w, i)))
			}
		}(w)
	}
	wg.Wait()
	close(done)
	<-drainerDone

	rest, err := store.Drain(ctx, "k")
	require.NoError(t, err)
	drained = append(drained, rest...)

	seen := make(map[string]int)
	for _, e := range drained {
		seen[string(e)]++
	}
	assert.Len(t, seen, writers*perWriter)
	for k, n := range seen {
		assert.Equal(t, 1, n, "entry %s drained more than once", k)
	}
}
