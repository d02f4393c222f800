// Package position maintains the client's view of the user's holdings.
//
// The backend is authoritative; this is a read-through cache refreshed on a
// poll timer and invalidated after every own-order submission or
// cancellation. Quantities are always non-negative: there are no shorts,
// reducing exposure means buying the complementary outcome.
package position

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/predikt/tradeclient/internal/pricing"
	"github.com/predikt/tradeclient/internal/types"
)

// Fetcher is the positions endpoint the tracker refreshes from.
type Fetcher interface {
	Positions(ctx context.Context, marketID int64) ([]types.Position, error)
}

// Tracker caches positions for one market.
type Tracker struct {
	mu        sync.RWMutex
	fetcher   Fetcher
	marketID  int64
	positions []types.Position
	stale     bool
}

// NewTracker creates a tracker that starts stale.
func NewTracker(fetcher Fetcher, marketID int64) *Tracker {
	return &Tracker{fetcher: fetcher, marketID: marketID, stale: true}
}

// Refresh replaces the cache from the backend.
func (t *Tracker) Refresh(ctx context.Context) error {
	positions, err := t.fetcher.Positions(ctx, t.marketID)
	if err != nil {
		return err
	}
	t.Replace(positions)
	return nil
}

// Replace substitutes the cache wholesale with positions the caller fetched
// itself, letting it decide whether a response is still worth applying.
func (t *Tracker) Replace(positions []types.Position) {
	t.mu.Lock()
	t.positions = positions
	t.stale = false
	t.mu.Unlock()
}

// Invalidate marks the cache stale. Called after the user's own order
// submissions and cancellations.
func (t *Tracker) Invalidate() {
	t.mu.Lock()
	t.stale = true
	t.mu.Unlock()
}

// Stale reports whether the cache needs a refresh.
func (t *Tracker) Stale() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.stale
}

// Get returns the position for one (outcome name, side), if held.
func (t *Tracker) Get(outcomeName string, side types.Side) (types.Position, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, p := range t.positions {
		if p.OutcomeName == outcomeName && p.Outcome == side && p.Quantity.IsPositive() {
			return p, true
		}
	}
	return types.Position{}, false
}

// All returns a copy of the cached positions.
func (t *Tracker) All() []types.Position {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]types.Position, len(t.positions))
	copy(out, t.positions)
	return out
}

// CurrentValue is quantity * implied price. ok is false when no implied
// price is available, which is distinct from a value of zero.
func CurrentValue(p types.Position, impliedPrice decimal.Decimal, hasPrice bool) (decimal.Decimal, bool) {
	if !hasPrice {
		return decimal.Decimal{}, false
	}
	return p.Quantity.Mul(impliedPrice), true
}

// ProfitLoss is current value minus cost basis, none when value is none.
func ProfitLoss(p types.Position, impliedPrice decimal.Decimal, hasPrice bool) (decimal.Decimal, bool) {
	value, ok := CurrentValue(p, impliedPrice, hasPrice)
	if !ok {
		return decimal.Decimal{}, false
	}
	return value.Sub(p.TotalCost), true
}

// PayoutIfRight is the face-value redemption if the side wins, independent
// of the current market price.
func PayoutIfRight(p types.Position) decimal.Decimal {
	return pricing.Payout(p.Quantity)
}
