package window

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-feed/internal/domain"
	"market-feed/internal/storage/memory"
)

var venue = domain.VenueKey{Base: "0x1::aptos_coin::AptosCoin", Quote: "0xa::usdc::USDC"}

func TestListKey(t *testing.T) {
	got := ListKey(venue, domain.MetricBBO, domain.Res1m)
	assert.Equal(t, "0x1::aptos_coin::AptosCoin-0xa::usdc::USDC-bbo-1m", got)
}

func TestBuffer_AppendAllResolutionsAndDrainOne(t *testing.T) {
	store := memory.NewWindowStore()
	buf := NewBuffer(store)
	ctx := context.Background()

	require.NoError(t, buf.AppendBBO(ctx, venue, domain.WindowResolutions, domain.BboSample{Bid: 10, Ask: 12, Time: 1}))
	require.NoError(t, buf.AppendTrade(ctx, venue, domain.WindowResolutions, domain.TradeSample{Side: domain.SideBuy, Price: 11, Quantity: 1, Time: 1}))

	for _, res := range domain.WindowResolutions {
		assert.Equal(t, 1, store.Len(ListKey(venue, domain.MetricBBO, res)), "bbo list %s", res)
		assert.Equal(t, 1, store.Len(ListKey(venue, domain.MetricTrade, res)), "trade list %s", res)
	}

	bbos, trades, err := buf.Drain(ctx, venue, domain.Res15s)
	require.NoError(t, err)
	assert.Equal(t, []domain.BboSample{{Bid: 10, Ask: 12, Time: 1}}, bbos)
	assert.Equal(t, []domain.TradeSample{{Side: domain.SideBuy, Price: 11, Quantity: 1, Time: 1}}, trades)

	assert.Equal(t, 0, store.Len(ListKey(venue, domain.MetricBBO, domain.Res15s)))
	assert.Equal(t, 1, store.Len(ListKey(venue, domain.MetricBBO, domain.Res1m)), "other resolutions untouched")
}

func TestBuffer_DrainEmpty(t *testing.T) {
	buf := NewBuffer(memory.NewWindowStore())

	bbos, trades, err := buf.Drain(context.Background(), venue, domain.Res1h)
	require.NoError(t, err)
	assert.Empty(t, bbos)
	assert.Empty(t, trades)
}

func TestBuffer_TrimBefore(t *testing.T) {
	buf := NewBuffer(memory.NewWindowStore())
	ctx := context.Background()
	res := []domain.Resolution{domain.Res24h}

	for _, ts := range []int64{100, 200, 300} {
		require.NoError(t, buf.AppendBBO(ctx, venue, res, domain.BboSample{Bid: 1, Ask: 2, Time: ts}))
	}
	require.NoError(t, buf.AppendTrade(ctx, venue, res, domain.TradeSample{Price: 1, Quantity: 1, Time: 150}))
	require.NoError(t, buf.AppendTrade(ctx, venue, res, domain.TradeSample{Price: 1, Quantity: 1, Time: 250}))

	n, err := buf.TrimBefore(ctx, venue, domain.Res24h, 200)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	bbos, trades, err := buf.Range(ctx, venue, domain.Res24h)
	require.NoError(t, err)
	require.Len(t, bbos, 2)
	assert.Equal(t, int64(200), bbos[0].Time)
	require.Len(t, trades, 1)
	assert.Equal(t, int64(250), trades[0].Time)
}

// countingStore records reads so tests can check TrimBefore stays on the
// head of the list.
type countingStore struct {
	*memory.WindowStore
	ranges int
	heads  int
}

func (s *countingStore) Range(ctx context.Context, key string) ([][]byte, error) {
	s.ranges++
	return s.WindowStore.Range(ctx, key)
}

func (s *countingStore) Head(ctx context.Context, key string, n int) ([][]byte, error) {
	s.heads++
	return s.WindowStore.Head(ctx, key, n)
}

func TestBuffer_TrimBeforeReadsOnlyTheStalePrefix(t *testing.T) {
	store := &countingStore{WindowStore: memory.NewWindowStore()}
	buf := NewBuffer(store)
	ctx := context.Background()
	res := []domain.Resolution{domain.Res24h}

	const total = 3*trimChunk + 10
	for i := 0; i < total; i++ {
		require.NoError(t, buf.AppendBBO(ctx, venue, res, domain.BboSample{Bid: 1, Ask: 2, Time: int64(i)}))
	}

	n, err := buf.TrimBefore(ctx, venue, domain.Res24h, 2*trimChunk+5)
	require.NoError(t, err)
	assert.Equal(t, 2*trimChunk+5, n)
	assert.Equal(t, trimChunk+5, store.Len(ListKey(venue, domain.MetricBBO, domain.Res24h)))
	assert.Zero(t, store.ranges)
	assert.Equal(t, 3+1, store.heads, "three bbo chunks and one empty trade list")

	store.heads = 0
	n, err = buf.TrimBefore(ctx, venue, domain.Res24h, 2*trimChunk+5)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 2, store.heads, "nothing stale: one read per list")
}

// Appends racing drains: every tick lands in exactly one drain.
func TestBuffer_DrainExclusivity(t *testing.T) {
	buf := NewBuffer(memory.NewWindowStore())
	ctx := context.Background()
	res := []domain.Resolution{domain.Res15s}

	const total = 2000

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		times = make(map[int64]int)
	)

	record := func(bbos []domain.BboSample) {
		mu.Lock()
		defer mu.Unlock()
		for _, b := range bbos {
			times[b.Time]++
		}
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			_ = buf.AppendBBO(ctx, venue, res, domain.BboSample{Bid: 1, Ask: 2, Time: int64(i)})
		}
	}()

	stop := make(chan struct{})
	drained := make(chan struct{})
	go func() {
		defer close(drained)
		for {
			select {
			case <-stop:
				return
			default:
			}
			bbos, _, err := buf.Drain(ctx, venue, domain.Res15s)
			if err == nil {
				record(bbos)
			}
		}
	}()

	wg.Wait()
	close(stop)
	<-drained

	bbos, _, err := buf.Drain(ctx, venue, domain.Res15s)
	require.NoError(t, err)
	record(bbos)

	assert.Len(t, times, total)
	for ts, n := range times {
		assert.Equal(t, 1, n, "tick %d drained %d times", ts, n)
	}
}
