package memory

import (
	"context"
	"errors"
	"testing"

	"market-feed/internal/domain"
	"market-feed/internal/storage"
)

var testVenue = domain.VenueKey{Base: "0x1::aptos_coin::AptosCoin", Quote: "0xa::usdc::USDC"}

func TestBarStore_InsertIdempotent(t *testing.T) {
	store := NewBarStore()
	ctx := context.Background()

	rec := &storage.BarRecord{
		ID:  "bar-1",
		Bar: domain.Bar{Venue: testVenue, Resolution: domain.Res1m, Time: 60_000},
	}
	if err := store.InsertBars(ctx, []*storage.BarRecord{rec, rec}); err != nil {
		t.Fatalf("InsertBars failed: %v", err)
	}
	if err := store.InsertBars(ctx, []*storage.BarRecord{rec}); err != nil {
		t.Fatalf("InsertBars failed: %v", err)
	}

	got, err := store.GetBars(ctx, testVenue, domain.Res1m, 0, 120_000)
	if err != nil {
		t.Fatalf("GetBars failed: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("Expected 1 bar, got %d", len(got))
	}
}

func TestBarStore_GetBarsFiltersAndSorts(t *testing.T) {
	store := NewBarStore()
	ctx := context.Background()

	bars := []*storage.BarRecord{
		{ID: "3", Bar: domain.Bar{Venue: testVenue, Resolution: domain.Res1m, Time: 180_000}},
		{ID: "1", Bar: domain.Bar{Venue: testVenue, Resolution: domain.Res1m, Time: 60_000}},
		{ID: "x", Bar: domain.Bar{Venue: testVenue, Resolution: domain.Res5m, Time: 60_000}},
		{ID: "2", Bar: domain.Bar{Venue: testVenue, Resolution: domain.Res1m, Time: 120_000}},
	}
	if err := store.InsertBars(ctx, bars); err != nil {
		t.Fatalf("InsertBars failed: %v", err)
	}

	got, _ := store.GetBars(ctx, testVenue, domain.Res1m, 60_000, 120_000)
	if len(got) != 2 {
		t.Fatalf("Expected 2 bars, got %d", len(got))
	}
	if got[0].Bar.Time != 60_000 || got[1].Bar.Time != 120_000 {
		t.Errorf("bars not sorted by time: %d, %d", got[0].Bar.Time, got[1].Bar.Time)
	}
}

func TestBarStore_InvalidInput(t *testing.T) {
	store := NewBarStore()

	err := store.InsertBars(context.Background(), []*storage.BarRecord{{ID: ""}})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

func TestTradeStore_GetTradesOrderedBySequence(t *testing.T) {
	store := NewTradeStore()
	ctx := context.Background()

	trades := []*storage.TradeRecord{
		{ID: "t4", Trade: domain.Trade{Venue: testVenue, Sequence: 4, Time: 1_000}},
		{ID: "t0", Trade: domain.Trade{Venue: testVenue, Sequence: 0, Time: 1_000}},
		{ID: "t2", Trade: domain.Trade{Venue: testVenue, Sequence: 2, Time: 1_000}},
	}
	if err := store.InsertTrades(ctx, trades); err != nil {
		t.Fatalf("InsertTrades failed: %v", err)
	}

	got, err := store.GetTrades(ctx, testVenue, 0, 2_000)
	if err != nil {
		t.Fatalf("GetTrades failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Expected 3 trades, got %d", len(got))
	}
	for i, want := range []uint64{0, 2, 4} {
		if got[i].Trade.Sequence != want {
			t.Errorf("trade[%d].Sequence = %d, want %d", i, got[i].Trade.Sequence, want)
		}
	}
}
