package domain

import (
	"fmt"
	"strings"
)

// VenueKind distinguishes order-book markets from liquidity pools.
type VenueKind string

const (
	VenueMarket VenueKind = "market"
	VenuePool   VenueKind = "pool"
)

// IsValid checks if the kind is a known value.
func (k VenueKind) IsValid() bool {
	return k == VenueMarket || k == VenuePool
}

// VenueKey identifies a market or pool by its (base, quote) coin types.
// For pools Base is the X coin and Quote the Y coin.
type VenueKey struct {
	Base  string `json:"baseCoinType"`
	Quote string `json:"quoteCoinType"`
}

// String renders the key as "{base}-{quote}", the form used for cursor records
// and window list names.
func (k VenueKey) String() string {
	return k.Base + "-" + k.Quote
}

// IsZero reports whether both coin types are empty.
func (k VenueKey) IsZero() bool {
	return k.Base == "" && k.Quote == ""
}

// ParseVenueKey parses "{base}-{quote}". Move type tags never contain '-',
// so the first dash is the separator.
func ParseVenueKey(s string) (VenueKey, error) {
	base, quote, ok := strings.Cut(s, "-")
	if !ok || base == "" || quote == "" {
		return VenueKey{}, fmt.Errorf("invalid venue key %q", s)
	}
	return VenueKey{Base: base, Quote: quote}, nil
}

// Venue is one configured market or pool.
type Venue struct {
	Key           VenueKey
	Kind          VenueKind
	BaseDecimals  int32 // decimals of the base (X) coin
	QuoteDecimals int32 // decimals of the quote (Y) coin
	LPDecimals    int32 // decimals of the pool's LP coin; zero for markets
}
