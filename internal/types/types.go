package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// SHARED TYPES - wire contract + domain types, avoid import cycles
// ═══════════════════════════════════════════════════════════════════════════════

// Side is one half of an outcome's YES/NO pair.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// Opposite returns the complementary side.
func (s Side) Opposite() Side {
	if s == SideYes {
		return SideNo
	}
	return SideYes
}

// Valid reports whether s is one of the two known sides.
func (s Side) Valid() bool {
	return s == SideYes || s == SideNo
}

// OrderType is the execution style of an order.
type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)

// Outcome status values as sent by the backend.
const (
	OutcomeStatusOpen     = "open"
	OutcomeStatusResolved = "resolved"
)

// BookEntry is one resting buy order. Sells never appear independently:
// selling YES is modeled as buying NO, so the book only stores buys.
//
// Price and Quantity arrive as either JSON numbers or fixed-point strings
// depending on the serializer; decimal.Decimal unmarshals both identically.
type BookEntry struct {
	Price    decimal.Decimal `json:"price"`
	Quantity decimal.Decimal `json:"quantity"`
	OrderID  *int64          `json:"order_id,omitempty"`
	UserID   *int64          `json:"user_id,omitempty"`
}

// OrderBook is the REST order-book payload for one (outcome name, side).
type OrderBook struct {
	MarketID    int64       `json:"market_id"`
	OutcomeName string      `json:"outcome_name"`
	Outcome     Side        `json:"outcome"`
	Buys        []BookEntry `json:"buys"`
	Sells       []BookEntry `json:"sells"`
}

// MarketOutcome is one named alternative within a market.
type MarketOutcome struct {
	ID                int64   `json:"id"`
	MarketID          int64   `json:"market_id"`
	Name              string  `json:"name"`
	Status            string  `json:"status"`
	ResolutionOutcome *string `json:"resolution_outcome"`
}

// LastTradedPrices carries the most recent trade price per side. Either or
// both may be absent.
type LastTradedPrices struct {
	Yes *decimal.Decimal `json:"yes"`
	No  *decimal.Decimal `json:"no"`
}

// Market is the market document from GET /markets/{id}.
type Market struct {
	ID                 int64             `json:"id"`
	Title              string            `json:"title"`
	Description        *string           `json:"description"`
	Status             string            `json:"status"`
	ResolutionDeadline *time.Time        `json:"resolution_deadline"`
	ResolutionOutcome  *string           `json:"resolution_outcome"`
	Outcomes           []string          `json:"outcomes"`
	OutcomesDetailed   []MarketOutcome   `json:"outcomes_detailed"`
	LastTradedPrices   *LastTradedPrices `json:"last_traded_prices"`
}

// OutcomeResolved reports whether the named outcome has been resolved.
// Trading is permanently disabled for resolved outcomes.
func (m *Market) OutcomeResolved(outcomeName string) bool {
	for _, o := range m.OutcomesDetailed {
		if o.Name == outcomeName {
			return o.Status == OutcomeStatusResolved
		}
	}
	return false
}

// OrderRequest is the POST /trading/orders payload. Side is always "buy":
// reducing exposure is expressed as buying the complementary outcome.
type OrderRequest struct {
	MarketID    int64           `json:"market_id"`
	Side        string          `json:"side"`
	OutcomeName string          `json:"outcome_name"`
	Outcome     Side            `json:"outcome"`
	Quantity    int64           `json:"quantity"`
	OrderType   OrderType       `json:"order_type"`
	Price       decimal.Decimal `json:"price"`
}

// Order is the backend's order record.
type Order struct {
	ID             int64           `json:"id"`
	MarketID       int64           `json:"market_id"`
	UserID         int64           `json:"user_id"`
	Side           string          `json:"side"`
	OutcomeName    string          `json:"outcome_name"`
	Outcome        Side            `json:"outcome"`
	Price          decimal.Decimal `json:"price"`
	Quantity       decimal.Decimal `json:"quantity"`
	FilledQuantity decimal.Decimal `json:"filled_quantity"`
	OrderType      OrderType       `json:"order_type"`
	Status         string          `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	FilledAt       *time.Time      `json:"filled_at"`
}

// Position is the backend's view of a holding. The backend is authoritative;
// the client treats this as a read-through cache.
type Position struct {
	ID            int64            `json:"id"`
	UserID        int64            `json:"user_id"`
	MarketID      int64            `json:"market_id"`
	OutcomeName   string           `json:"outcome_name"`
	Outcome       Side             `json:"outcome"`
	Quantity      decimal.Decimal  `json:"quantity"`
	AveragePrice  decimal.Decimal  `json:"average_price"`
	TotalCost     decimal.Decimal  `json:"total_cost"`
	CurrentValue  *decimal.Decimal `json:"current_value"`
	ProfitLoss    *decimal.Decimal `json:"profit_loss"`
	PayoutIfRight *decimal.Decimal `json:"payout_if_right"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// PortfolioSummary is the GET /portfolio/summary payload.
type PortfolioSummary struct {
	TotalPositions    int             `json:"total_positions"`
	TotalCurrentValue decimal.Decimal `json:"total_current_value"`
	TotalProfitLoss   decimal.Decimal `json:"total_profit_loss"`
	TotalInvested     decimal.Decimal `json:"total_invested"`
	AvailableCash     decimal.Decimal `json:"available_cash"`
	LockedInBets      decimal.Decimal `json:"locked_in_bets"`
	TotalValue        decimal.Decimal `json:"total_value"`
}

// Trade is one of the caller's own fills from my-trades.
type Trade struct {
	ID          int64           `json:"id"`
	MarketID    int64           `json:"market_id"`
	OutcomeName string          `json:"outcome_name"`
	Outcome     Side            `json:"outcome"`
	Price       decimal.Decimal `json:"price"`
	Quantity    decimal.Decimal `json:"quantity"`
	CreatedAt   time.Time       `json:"created_at"`
}
