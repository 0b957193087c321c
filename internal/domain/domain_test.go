package domain

import "testing"

func TestResolution_BucketStart(t *testing.T) {
	tests := []struct {
		res  Resolution
		ms   int64
		want int64
	}{
		{Res15s, 0, 0},
		{Res15s, 14_999, 0},
		{Res15s, 15_000, 15_000},
		{Res1m, 119_999, 60_000},
		{Res1h, 3_600_000 + 1, 3_600_000},
		{Res1d, 86_400_000*3 + 5, 86_400_000 * 3},
	}

	for _, tt := range tests {
		if got := tt.res.BucketStart(tt.ms); got != tt.want {
			t.Errorf("%s.BucketStart(%d) = %d, want %d", tt.res, tt.ms, got, tt.want)
		}
	}
}

func TestParseResolution(t *testing.T) {
	for _, r := range WindowResolutions {
		if _, err := ParseResolution(string(r)); err != nil {
			t.Errorf("ParseResolution(%q) error = %v", r, err)
		}
	}
	if _, err := ParseResolution("2m"); err == nil {
		t.Error("ParseResolution(\"2m\") expected error")
	}
}

func TestWindowResolutions_IncludesRolling(t *testing.T) {
	if len(WindowResolutions) != len(BarResolutions)+1 {
		t.Fatalf("len(WindowResolutions) = %d, want %d", len(WindowResolutions), len(BarResolutions)+1)
	}
	if WindowResolutions[len(WindowResolutions)-1] != Res24h {
		t.Errorf("last window resolution = %s, want %s", WindowResolutions[len(WindowResolutions)-1], Res24h)
	}
	for _, r := range BarResolutions {
		if r == Res24h {
			t.Error("BarResolutions must not contain 24h")
		}
	}
}

func TestParseVenueKey(t *testing.T) {
	key := VenueKey{Base: "0x1::aptos_coin::AptosCoin", Quote: "0xa::usdc::USDC"}

	got, err := ParseVenueKey(key.String())
	if err != nil {
		t.Fatalf("ParseVenueKey() error = %v", err)
	}
	if got != key {
		t.Errorf("ParseVenueKey() = %+v, want %+v", got, key)
	}

	for _, bad := range []string{"", "nodash", "-quote", "base-"} {
		if _, err := ParseVenueKey(bad); err == nil {
			t.Errorf("ParseVenueKey(%q) expected error", bad)
		}
	}
}

func TestFill_Visible(t *testing.T) {
	for seq := uint64(0); seq < 6; seq++ {
		f := &Fill{EventHeader: EventHeader{SequenceNumber: seq}}
		if want := seq%2 == 0; f.Visible() != want {
			t.Errorf("Fill{seq=%d}.Visible() = %v, want %v", seq, f.Visible(), want)
		}
	}
}

func TestOrderBook_Best(t *testing.T) {
	book := &OrderBook{
		Bids: []Level{{Price: 10, Quantity: 1}, {Price: 9, Quantity: 2}},
		Asks: []Level{{Price: 12, Quantity: 1}},
		Time: 1000,
	}
	bbo, ok := book.Best()
	if !ok {
		t.Fatal("Best() ok = false, want true")
	}
	if bbo.Bid != 10 || bbo.Ask != 12 || bbo.Time != 1000 {
		t.Errorf("Best() = %+v", bbo)
	}
	if bbo.Mid() != 11 {
		t.Errorf("Mid() = %v, want 11", bbo.Mid())
	}

	oneSided := &OrderBook{Bids: []Level{{Price: 10, Quantity: 1}}}
	if _, ok := oneSided.Best(); ok {
		t.Error("Best() on one-sided book ok = true, want false")
	}

	var nilBook *OrderBook
	if _, ok := nilBook.Best(); ok {
		t.Error("Best() on nil book ok = true, want false")
	}
}

type countingVisitor struct {
	swaps, adds, removes, fills int
}

func (v *countingVisitor) VisitSwap(*Swap)                       { v.swaps++ }
func (v *countingVisitor) VisitAddLiquidity(*AddLiquidity)       { v.adds++ }
func (v *countingVisitor) VisitRemoveLiquidity(*RemoveLiquidity) { v.removes++ }
func (v *countingVisitor) VisitFill(*Fill)                       { v.fills++ }

func TestEvent_Accept(t *testing.T) {
	events := []Event{&Swap{}, &AddLiquidity{}, &RemoveLiquidity{}, &Fill{}, &Fill{}}
	v := &countingVisitor{}
	for _, e := range events {
		e.Accept(v)
	}
	if v.swaps != 1 || v.adds != 1 || v.removes != 1 || v.fills != 2 {
		t.Errorf("visitor counts = %+v", *v)
	}
}
