package venue

import (
	"math"
	"math/big"

	"github.com/shopspring/decimal"

	"market-feed/internal/domain"
)

// Scale converts an atomic amount to whole units of a coin with the given decimals.
func Scale(au uint64, decimals int32) float64 {
	return atomic(au).Shift(-decimals).InexactFloat64()
}

// TradeFromFill renders a visible fill as a trade. Fill prices are quote
// atomic units per whole base coin.
func TradeFromFill(v domain.Venue, f *domain.Fill) domain.Trade {
	price := atomic(f.Price).Shift(-v.QuoteDecimals)
	qty := atomic(f.BaseQty).Shift(-v.BaseDecimals)

	return domain.Trade{
		Venue:    v.Key,
		Sequence: f.SequenceNumber,
		Side:     f.Side(),
		Price:    price.InexactFloat64(),
		Quantity: qty.InexactFloat64(),
		Value:    price.Mul(qty).InexactFloat64(),
		Time:     f.Timestamp,
	}
}

// quoteAtomic returns the quote atomic amount of a fill of baseQty at price,
// saturating at math.MaxUint64.
func quoteAtomic(price, baseQty uint64, baseDecimals int32) uint64 {
	q := atomic(price).Mul(atomic(baseQty)).Shift(-baseDecimals).Floor().BigInt()
	if !q.IsUint64() {
		return math.MaxUint64
	}
	return q.Uint64()
}

func atomic(au uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(au), 0)
}
