package bar

import (
	"testing"

	"market-feed/internal/domain"
)

var venue = domain.VenueKey{Base: "0x1::aptos_coin::AptosCoin", Quote: "0xa::usdc::USDC"}

func TestAggregate_BboOnly(t *testing.T) {
	bbos := []domain.BboSample{
		{Bid: 10, Ask: 12, Time: 0},
		{Bid: 11, Ask: 13, Time: 5},
	}

	got := Aggregate(venue, domain.Res15s, 0, bbos, nil)

	if got.Time != 0 || got.Resolution != domain.Res15s || got.Venue != venue {
		t.Fatalf("unexpected bar header: %+v", got)
	}
	if got.OHLCV == nil {
		t.Fatal("OHLCV = nil, want values")
	}
	want := domain.OHLCV{Open: 11, High: 13, Low: 10, Close: 12, Volume: 0}
	if *got.OHLCV != want {
		t.Errorf("OHLCV = %+v, want %+v", *got.OHLCV, want)
	}
}

func TestAggregate_NoActivity(t *testing.T) {
	got := Aggregate(venue, domain.Res1m, 60_000, nil, nil)

	if got.OHLCV != nil {
		t.Errorf("OHLCV = %+v, want nil", *got.OHLCV)
	}
	if got.Time != 60_000 {
		t.Errorf("Time = %d, want 60000", got.Time)
	}
	if !got.IsEmpty() {
		t.Error("IsEmpty() = false, want true")
	}
}

func TestAggregate_TradesWithoutBboStayEmpty(t *testing.T) {
	trades := []domain.TradeSample{{Side: domain.SideBuy, Price: 10, Quantity: 2, Time: 1}}

	got := Aggregate(venue, domain.Res15s, 0, nil, trades)
	if got.OHLCV != nil {
		t.Errorf("OHLCV = %+v, want nil when no BBO samples", *got.OHLCV)
	}
}

func TestAggregate_Volume(t *testing.T) {
	bbos := []domain.BboSample{{Bid: 10, Ask: 12, Time: 1_000}}
	trades := []domain.TradeSample{
		{Side: domain.SideBuy, Price: 11, Quantity: 2, Time: 1_000},
		{Side: domain.SideSell, Price: 10.5, Quantity: 4, Time: 2_000},
	}

	got := Aggregate(venue, domain.Res15s, 0, bbos, trades)
	if got.OHLCV == nil {
		t.Fatal("OHLCV = nil")
	}
	if got.OHLCV.Volume != 64 {
		t.Errorf("Volume = %v, want 64", got.OHLCV.Volume)
	}
}

func TestAggregate_IgnoresTicksBeforeBucket(t *testing.T) {
	bbos := []domain.BboSample{
		{Bid: 1, Ask: 100, Time: 14_999},
		{Bid: 10, Ask: 12, Time: 15_000},
	}
	trades := []domain.TradeSample{
		{Side: domain.SideBuy, Price: 50, Quantity: 1, Time: 14_000},
		{Side: domain.SideBuy, Price: 11, Quantity: 1, Time: 15_500},
	}

	got := Aggregate(venue, domain.Res15s, 15_000, bbos, trades)
	if got.OHLCV == nil {
		t.Fatal("OHLCV = nil")
	}
	want := domain.OHLCV{Open: 11, High: 12, Low: 10, Close: 11, Volume: 11}
	if *got.OHLCV != want {
		t.Errorf("OHLCV = %+v, want %+v", *got.OHLCV, want)
	}
}

func TestRolling(t *testing.T) {
	now := RollingWindow.Milliseconds() + 10_000
	bbos := []domain.BboSample{
		{Bid: 1, Ask: 2, Time: 5_000}, // older than 24h
		{Bid: 20, Ask: 22, Time: 10_000},
		{Bid: 21, Ask: 25, Time: now},
	}

	got := Rolling(venue, now, bbos, nil)
	if got.Resolution != domain.Res24h {
		t.Errorf("Resolution = %s, want 24h", got.Resolution)
	}
	if got.Time != 10_000 {
		t.Errorf("Time = %d, want 10000", got.Time)
	}
	if got.OHLCV == nil {
		t.Fatal("OHLCV = nil")
	}
	want := domain.OHLCV{Open: 21, High: 25, Low: 20, Close: 23}
	if *got.OHLCV != want {
		t.Errorf("OHLCV = %+v, want %+v", *got.OHLCV, want)
	}
}
