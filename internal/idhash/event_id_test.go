package idhash

import (
	"testing"

	"market-feed/internal/domain"
)

var testVenue = domain.VenueKey{Base: "0x1::aptos_coin::AptosCoin", Quote: "0xa::usdc::USDC"}

func TestComputeEventID_Determinism(t *testing.T) {
	results := make([]string, 10)
	for i := 0; i < 10; i++ {
		results[i] = ComputeEventID(testVenue, "TRADE", 42)
	}

	for i := 1; i < len(results); i++ {
		if results[i] != results[0] {
			t.Errorf("ComputeEventID() not deterministic: results[%d] = %s, results[0] = %s", i, results[i], results[0])
		}
	}
}

func TestComputeEventID_Distinct(t *testing.T) {
	other := domain.VenueKey{Base: testVenue.Quote, Quote: testVenue.Base}

	tests := []struct {
		name string
		a    string
		b    string
	}{
		{"different sequence", ComputeEventID(testVenue, "TRADE", 2), ComputeEventID(testVenue, "TRADE", 4)},
		{"different topic", ComputeEventID(testVenue, "TRADE", 2), ComputeEventID(testVenue, "LAST_TRADE_PRICE", 2)},
		{"different venue", ComputeEventID(testVenue, "TRADE", 2), ComputeEventID(other, "TRADE", 2)},
		{"bar vs event", ComputeBarID(testVenue, domain.Res1m, 60000), ComputeEventID(testVenue, "1m", 60000)},
		{"snapshot vs event", ComputeSnapshotID(testVenue, "ORDERBOOK", 5), ComputeEventID(testVenue, "ORDERBOOK", 5)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.a == tt.b {
				t.Errorf("expected distinct IDs, both = %s", tt.a)
			}
		})
	}
}

func TestComputeBarID_Determinism(t *testing.T) {
	a := ComputeBarID(testVenue, domain.Res15s, 1_700_000_010_000)
	b := ComputeBarID(testVenue, domain.Res15s, 1_700_000_010_000)
	if a != b {
		t.Errorf("ComputeBarID() not deterministic: %s != %s", a, b)
	}
	if a == "" {
		t.Error("ComputeBarID() returned empty string")
	}
}
