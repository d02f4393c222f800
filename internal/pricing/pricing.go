// Package pricing derives display prices and projections for binary-outcome
// markets. Every outcome trades as a complementary YES/NO pair whose prices
// sum to one, so one side's price is always implied by the other side's book.
//
// All functions are pure: no state, no caching. Callers recompute from
// current store contents on every read.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/predikt/tradeclient/internal/types"
)

var one = decimal.NewFromInt(1)

// Implied returns the implied price for a side given the best resting buy on
// the complementary side: implied = 1 - oppositeBest.
//
// ok is false when the opposite book is empty. A market order cannot be
// priced in that case and must not be submitted; "unavailable" is a distinct
// state, never 0 or 0.5.
func Implied(oppositeBest decimal.Decimal, hasOpposite bool) (decimal.Decimal, bool) {
	if !hasOpposite {
		return decimal.Decimal{}, false
	}
	return one.Sub(oppositeBest), true
}

// LastTradedPair derives a consistent last-traded pair from raw inputs that
// may disagree or be missing. If the yes value is present it wins and no is
// recomputed as 1-yes, which enforces the sum-to-one invariant even when the
// backend reports both sides independently. Nil inputs yield nil outputs.
func LastTradedPair(raw *types.LastTradedPrices) (yes, no *decimal.Decimal) {
	if raw == nil {
		return nil, nil
	}
	switch {
	case raw.Yes != nil:
		y := *raw.Yes
		n := one.Sub(y)
		return &y, &n
	case raw.No != nil:
		n := *raw.No
		y := one.Sub(n)
		return &y, &n
	default:
		return nil, nil
	}
}

// ContractsFromDollars converts a dollar amount into (possibly fractional)
// contracts at the given price. Returns zero when the price is not positive.
func ContractsFromDollars(dollars, price decimal.Decimal) decimal.Decimal {
	if !price.IsPositive() {
		return decimal.Zero
	}
	return dollars.Div(price)
}

// DollarsFromContracts converts a contract count into its dollar cost at the
// given price.
func DollarsFromContracts(contracts, price decimal.Decimal) decimal.Decimal {
	return contracts.Mul(price)
}

// WholeContracts floors a fractional contract amount to the whole number of
// contracts the market actually trades in.
func WholeContracts(contracts decimal.Decimal) int64 {
	return contracts.Floor().IntPart()
}

// NetProfitIfWin is the profit over cost when the side wins:
// contracts*(1-price). Each winning contract redeems for exactly one unit.
func NetProfitIfWin(contracts, price decimal.Decimal) decimal.Decimal {
	return contracts.Mul(one.Sub(price))
}

// Payout is the face-value redemption when the side wins: contracts * 1.
func Payout(contracts decimal.Decimal) decimal.Decimal {
	return contracts.Mul(one)
}
