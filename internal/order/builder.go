// Package order converts user intent into validated order payloads.
//
// The builder is an explicit state machine:
//
//	Editing -> PendingConfirmation -> Submitting   (market orders)
//	Editing -> Submitting                          (limit orders)
//
// Submitting resolves to either a placed order or an error, and the builder
// returns to Editing: inputs are preserved on failure and cleared on
// success. A discarded confirmation is never reused; the estimate is
// re-derived on the next attempt because the book may have moved.
package order

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/predikt/tradeclient/internal/pricing"
	"github.com/predikt/tradeclient/internal/types"
)

// State of the builder's submission flow.
type State int

const (
	StateEditing State = iota
	StatePendingConfirmation
	StateSubmitting
)

func (s State) String() string {
	switch s {
	case StatePendingConfirmation:
		return "pending_confirmation"
	case StateSubmitting:
		return "submitting"
	default:
		return "editing"
	}
}

// InputMode selects how the amount field is interpreted.
type InputMode int

const (
	ModeDollars InputMode = iota
	ModeContracts
)

// BookView is the read side of the order-book store the builder prices from.
type BookView interface {
	BestPrice(outcomeName string, side types.Side) (decimal.Decimal, bool)
}

// Poster submits the finished payload.
type Poster interface {
	PlaceOrder(ctx context.Context, req types.OrderRequest) (*types.Order, error)
}

// PendingOrder holds a market-order payload awaiting confirmation.
// EstimatedPrice exists purely for the confirmation display: the wire payload
// carries price 0 and the backend sets the authoritative price at match
// time, so the executed price may diverge if the book moves.
type PendingOrder struct {
	Request        types.OrderRequest
	EstimatedPrice decimal.Decimal
}

// NetProfitIfWin is the profit shown in the confirmation dialog.
func (p *PendingOrder) NetProfitIfWin() decimal.Decimal {
	contracts := decimal.NewFromInt(p.Request.Quantity)
	return pricing.NetProfitIfWin(contracts, p.EstimatedPrice)
}

// EstimatedCost is contracts * estimated price.
func (p *PendingOrder) EstimatedCost() decimal.Decimal {
	contracts := decimal.NewFromInt(p.Request.Quantity)
	return pricing.DollarsFromContracts(contracts, p.EstimatedPrice)
}

// Builder assembles one order attempt for a single (market, outcome name).
type Builder struct {
	mu          sync.Mutex
	marketID    int64
	outcomeName string
	books       BookView
	resolved    func() bool

	state      State
	outcome    types.Side
	orderType  types.OrderType
	mode       InputMode
	amount     decimal.Decimal
	amountSet  bool
	limitPrice decimal.Decimal
	limitSet   bool
	pending    *PendingOrder
	attempted  *types.OrderRequest

	onPlaced func(*types.Order)
}

// NewBuilder creates a builder in editing state. Defaults match the trading
// form: market order, dollar-mode input, buying YES.
func NewBuilder(marketID int64, outcomeName string, books BookView) *Builder {
	return &Builder{
		marketID:    marketID,
		outcomeName: outcomeName,
		books:       books,
		outcome:     types.SideYes,
		orderType:   types.OrderTypeMarket,
		mode:        ModeDollars,
	}
}

// SetResolvedCheck installs the resolved-outcome guard. When it reports
// true, every submission entry point refuses regardless of book state.
func (b *Builder) SetResolvedCheck(fn func() bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resolved = fn
}

// OnPlaced registers a callback invoked after a successful submission, after
// inputs are cleared. The caller refreshes positions and the book view.
func (b *Builder) OnPlaced(fn func(*types.Order)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onPlaced = fn
}

// State returns the current submission state.
func (b *Builder) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// SetOutcome selects which side is being bought.
func (b *Builder) SetOutcome(side types.Side) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.outcome = side
}

// SetOrderType switches between limit and market.
func (b *Builder) SetOrderType(t types.OrderType) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.orderType = t
}

// SetLimitPrice sets the resting price for a limit order.
func (b *Builder) SetLimitPrice(price decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.limitPrice = price
	b.limitSet = true
}

// SetAmount sets the entered amount, interpreted per the current input mode.
func (b *Builder) SetAmount(amount decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.amount = amount
	b.amountSet = true
}

// Amount returns the current entered amount and the mode it is expressed in.
func (b *Builder) Amount() (decimal.Decimal, InputMode) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.amount, b.mode
}

// EstimatedPrice is the price the form displays: the implied price from the
// opposite side's book for market orders, the entered limit price otherwise.
func (b *Builder) EstimatedPrice() (decimal.Decimal, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.estimatedPrice()
}

func (b *Builder) estimatedPrice() (decimal.Decimal, bool) {
	if b.orderType == types.OrderTypeLimit {
		if !b.limitSet {
			return decimal.Decimal{}, false
		}
		return b.limitPrice, true
	}
	best, ok := b.books.BestPrice(b.outcomeName, b.outcome.Opposite())
	return pricing.Implied(best, ok)
}

// SwitchMode toggles between dollar and contract input. The entered value is
// converted once at the price current at the moment of the switch and then
// frozen; it is not re-derived when the book moves afterwards. Without a
// price or an entered amount the mode flips with no conversion.
func (b *Builder) SwitchMode(mode InputMode) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if mode == b.mode {
		return
	}

	price, ok := b.estimatedPrice()
	if b.amountSet && ok && price.IsPositive() {
		if mode == ModeContracts {
			b.amount = pricing.ContractsFromDollars(b.amount, price).Round(2)
		} else {
			b.amount = pricing.DollarsFromContracts(b.amount, price).Round(2)
		}
	}
	b.mode = mode
}

// contracts resolves the entered amount to a whole contract count, flooring
// fractional input. Dollar-mode input needs a price to convert with.
func (b *Builder) contracts() (int64, error) {
	if !b.amountSet || !b.amount.IsPositive() {
		return 0, &ValidationError{Reason: "amount must be greater than zero"}
	}

	raw := b.amount
	if b.mode == ModeDollars {
		price, ok := b.estimatedPrice()
		if !ok || !price.IsPositive() {
			return 0, &ValidationError{Reason: "cannot determine price for dollar conversion"}
		}
		raw = pricing.ContractsFromDollars(b.amount, price)
	}

	n := pricing.WholeContracts(raw)
	if n < 1 {
		return 0, &ValidationError{Reason: "must buy at least 1 contract"}
	}
	return n, nil
}

func (b *Builder) guardResolved() error {
	if b.resolved != nil && b.resolved() {
		return &ValidationError{Reason: "outcome has been resolved; trading is disabled"}
	}
	return nil
}

// Propose validates a market order and moves to PendingConfirmation,
// returning the payload plus its display estimate. All checks happen before
// any network call: an empty opposite book fails here, never at the wire.
func (b *Builder) Propose() (*PendingOrder, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateEditing {
		return nil, fmt.Errorf("order: cannot propose while %s", b.state)
	}
	if b.orderType != types.OrderTypeMarket {
		return nil, &ValidationError{Reason: "only market orders require confirmation"}
	}
	if err := b.guardResolved(); err != nil {
		return nil, err
	}

	best, ok := b.books.BestPrice(b.outcomeName, b.outcome.Opposite())
	implied, ok := pricing.Implied(best, ok)
	if !ok {
		return nil, &UnavailableLiquidityError{Outcome: b.outcome}
	}

	quantity, err := b.contracts()
	if err != nil {
		return nil, err
	}

	b.pending = &PendingOrder{
		Request: types.OrderRequest{
			MarketID:    b.marketID,
			Side:        "buy",
			OutcomeName: b.outcomeName,
			Outcome:     b.outcome,
			Quantity:    quantity,
			OrderType:   types.OrderTypeMarket,
			Price:       decimal.Zero,
		},
		EstimatedPrice: implied,
	}
	b.state = StatePendingConfirmation
	return b.pending, nil
}

// LastAttempt returns the request of the current or most recent submission
// attempt. ok is false when the latest Confirm/Submit never assembled a
// request, i.e. it failed validation before reaching the network.
func (b *Builder) LastAttempt() (types.OrderRequest, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.attempted == nil {
		return types.OrderRequest{}, false
	}
	return *b.attempted, true
}

// CancelConfirmation discards the pending order and returns to editing. A
// later retry re-derives the estimate from the book as it then stands.
func (b *Builder) CancelConfirmation() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StatePendingConfirmation {
		b.pending = nil
		b.state = StateEditing
	}
}

// Confirm submits the pending market order. Confirming with nothing pending
// is an illegal transition and returns an error without side effects.
func (b *Builder) Confirm(ctx context.Context, poster Poster) (*types.Order, error) {
	b.mu.Lock()
	b.attempted = nil
	if b.state != StatePendingConfirmation || b.pending == nil {
		b.mu.Unlock()
		return nil, fmt.Errorf("order: no order pending confirmation")
	}
	req := b.pending.Request
	b.attempted = &req
	b.pending = nil
	b.state = StateSubmitting
	b.mu.Unlock()

	return b.submit(ctx, poster, req)
}

// Submit validates and submits a limit order directly, skipping
// confirmation. Market orders must go through Propose/Confirm.
func (b *Builder) Submit(ctx context.Context, poster Poster) (*types.Order, error) {
	b.mu.Lock()
	b.attempted = nil
	if b.state != StateEditing {
		b.mu.Unlock()
		return nil, fmt.Errorf("order: cannot submit while %s", b.state)
	}
	if b.orderType != types.OrderTypeLimit {
		b.mu.Unlock()
		return nil, &ValidationError{Reason: "market orders require confirmation"}
	}
	if err := b.guardResolved(); err != nil {
		b.mu.Unlock()
		return nil, err
	}
	if !b.limitSet || !b.limitPrice.IsPositive() || b.limitPrice.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		b.mu.Unlock()
		return nil, &ValidationError{Reason: "price must be between 0 and 1"}
	}

	quantity, err := b.contracts()
	if err != nil {
		b.mu.Unlock()
		return nil, err
	}

	req := types.OrderRequest{
		MarketID:    b.marketID,
		Side:        "buy",
		OutcomeName: b.outcomeName,
		Outcome:     b.outcome,
		Quantity:    quantity,
		OrderType:   types.OrderTypeLimit,
		Price:       b.limitPrice,
	}
	b.attempted = &req
	b.state = StateSubmitting
	b.mu.Unlock()

	return b.submit(ctx, poster, req)
}

func (b *Builder) submit(ctx context.Context, poster Poster, req types.OrderRequest) (*types.Order, error) {
	placed, err := poster.PlaceOrder(ctx, req)

	b.mu.Lock()
	b.state = StateEditing
	if err != nil {
		// Inputs stay as entered so the user can correct and retry.
		b.mu.Unlock()
		return nil, err
	}
	b.amount = decimal.Decimal{}
	b.amountSet = false
	b.limitPrice = decimal.Decimal{}
	b.limitSet = false
	fn := b.onPlaced
	b.mu.Unlock()

	if fn != nil {
		fn(placed)
	}
	return placed, nil
}
