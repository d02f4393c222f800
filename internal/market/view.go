package market

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/predikt/tradeclient/internal/api"
	"github.com/predikt/tradeclient/internal/book"
	"github.com/predikt/tradeclient/internal/order"
	"github.com/predikt/tradeclient/internal/position"
	"github.com/predikt/tradeclient/internal/pricing"
	"github.com/predikt/tradeclient/internal/realtime"
	"github.com/predikt/tradeclient/internal/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// MARKET VIEW - one open market session
// ═══════════════════════════════════════════════════════════════════════════════
//
// Ties the realtime channel, the book store, the position tracker and the
// order builder together for a single market. Three mutation sources
// interleave: the poll timer, channel pushes, and user actions. Every write
// into the store goes through the per-key version guard, and anything that
// lands after Close() is dropped instead of applied.
//
// ═══════════════════════════════════════════════════════════════════════════════

const defaultPollInterval = 5 * time.Second

// Backend is the slice of the REST client the view consumes.
type Backend interface {
	GetMarket(ctx context.Context, marketID int64) (*types.Market, error)
	GetOrderBook(ctx context.Context, marketID int64, outcomeName string, side types.Side) (*types.OrderBook, error)
	PlaceOrder(ctx context.Context, req types.OrderRequest) (*types.Order, error)
	CancelOrder(ctx context.Context, orderID int64) error
	Positions(ctx context.Context, marketID int64) ([]types.Position, error)
	MyTrades(ctx context.Context, marketID int64) ([]types.Trade, error)
}

// Loading carries the independent in-flight flags. Concurrent fetches must
// not visually block each other, so there is no single global flag.
type Loading struct {
	Market     bool
	Book       bool
	Positions  bool
	Trades     bool
	Submitting bool
}

// View is one open market session.
type View struct {
	mu sync.Mutex

	backend  Backend
	marketID int64

	store   *book.Store
	channel *realtime.Channel
	tracker *position.Tracker
	builder *order.Builder

	market      *types.Market
	trades      []types.Trade
	outcomeName string
	loading     Loading

	pollInterval time.Duration
	closed       bool
	stopCh       chan struct{}
	wg           sync.WaitGroup

	onOrderPlaced []func(types.OrderRequest, *types.Order)
	onOrderFailed []func(types.OrderRequest, error)
}

// Option configures a View.
type Option func(*View)

// WithPollInterval overrides the 5s REST poll cadence.
func WithPollInterval(d time.Duration) Option {
	return func(v *View) { v.pollInterval = d }
}

// NewView creates a closed-over session for one market. channel may be built
// by the caller so tests can point it at a local server.
func NewView(backend Backend, channel *realtime.Channel, marketID int64, opts ...Option) *View {
	v := &View{
		backend:      backend,
		marketID:     marketID,
		store:        book.NewStore(),
		channel:      channel,
		outcomeName:  "default",
		pollInterval: defaultPollInterval,
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(v)
	}
	v.tracker = position.NewTracker(backend, marketID)
	v.rebuildBuilder()
	return v
}

// OnOrderPlaced registers a hook for successful submissions (journal,
// notifier). Hooks run after positions are invalidated.
func (v *View) OnOrderPlaced(fn func(types.OrderRequest, *types.Order)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onOrderPlaced = append(v.onOrderPlaced, fn)
}

// OnOrderFailed registers a hook for failed submissions.
func (v *View) OnOrderFailed(fn func(types.OrderRequest, error)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.onOrderFailed = append(v.onOrderFailed, fn)
}

// Open fetches the market document and both initial books, subscribes the
// realtime channel, and starts the poll loop.
func (v *View) Open(ctx context.Context) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return fmt.Errorf("market: view closed")
	}
	v.loading.Market = true
	v.mu.Unlock()

	market, err := v.backend.GetMarket(ctx, v.marketID)

	v.mu.Lock()
	v.loading.Market = false
	if v.closed {
		v.mu.Unlock()
		return fmt.Errorf("market: view closed")
	}
	if err != nil {
		v.mu.Unlock()
		return err
	}
	v.market = market
	// Markets with named outcomes open on the first one.
	if len(market.Outcomes) > 0 {
		v.outcomeName = market.Outcomes[0]
	}
	v.rebuildBuilder()
	name := v.outcomeName
	v.mu.Unlock()

	if err := v.fetchBooks(ctx, name); err != nil {
		log.Warn().Err(err).Int64("market_id", v.marketID).Msg("Initial book fetch failed")
	}
	if err := v.refreshPositions(ctx); err != nil {
		log.Warn().Err(err).Msg("Initial position fetch failed")
	}

	if err := v.channel.Open(); err != nil {
		return err
	}

	v.wg.Add(2)
	go v.consumeUpdates()
	go v.pollLoop()
	return nil
}

// Close synchronously stops the channel and the poll timer. Idempotent.
// In-flight REST responses are not cancelled; they are dropped on arrival.
func (v *View) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	close(v.stopCh)
	v.mu.Unlock()

	v.channel.Close()
	v.wg.Wait()
}

// Market returns the cached market document.
func (v *View) Market() *types.Market {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.market
}

// Books exposes the store for read paths (best price, derived asks).
func (v *View) Books() *book.Store { return v.store }

// Positions exposes the position tracker.
func (v *View) Positions() *position.Tracker { return v.tracker }

// Builder returns the order builder for the selected outcome name.
func (v *View) Builder() *order.Builder {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.builder
}

// LoadingState returns a snapshot of the in-flight flags.
func (v *View) LoadingState() Loading {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.loading
}

// Trades returns the cached own-trade history, newest as served.
func (v *View) Trades() []types.Trade {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]types.Trade, len(v.trades))
	copy(out, v.trades)
	return out
}

// OutcomeName returns the selected outcome name.
func (v *View) OutcomeName() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.outcomeName
}

// SelectOutcome switches the session to another named outcome and refetches
// both of its books.
func (v *View) SelectOutcome(ctx context.Context, name string) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return fmt.Errorf("market: view closed")
	}
	v.outcomeName = name
	v.rebuildBuilder()
	v.mu.Unlock()
	return v.fetchBooks(ctx, name)
}

// LastTraded returns the consistent last-traded pair for the market, with
// the complementary side derived so the two always sum to one.
func (v *View) LastTraded() (yes, no *decimal.Decimal) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.market == nil {
		return nil, nil
	}
	return pricing.LastTradedPair(v.market.LastTradedPrices)
}

// ImpliedPrice returns the display price for one side of the selected
// outcome, derived from the opposite side's book.
func (v *View) ImpliedPrice(side types.Side) (decimal.Decimal, bool) {
	v.mu.Lock()
	name := v.outcomeName
	v.mu.Unlock()
	best, ok := v.store.BestPrice(name, side.Opposite())
	return pricing.Implied(best, ok)
}

// CancelOrder cancels a resting order and invalidates positions.
func (v *View) CancelOrder(ctx context.Context, orderID int64) error {
	if err := v.backend.CancelOrder(ctx, orderID); err != nil {
		return err
	}
	v.tracker.Invalidate()
	return nil
}

// rebuildBuilder wires a fresh builder for the selected outcome name.
// Caller holds v.mu.
func (v *View) rebuildBuilder() {
	name := v.outcomeName
	b := order.NewBuilder(v.marketID, name, v.store)
	b.SetResolvedCheck(func() bool {
		v.mu.Lock()
		defer v.mu.Unlock()
		return v.market != nil && v.market.OutcomeResolved(name)
	})
	b.OnPlaced(func(placed *types.Order) {
		v.tracker.Invalidate()
	})
	v.builder = b
}

// SubmitLimit submits a limit order through the builder and runs the
// placement hooks.
func (v *View) SubmitLimit(ctx context.Context) (*types.Order, error) {
	return v.submit(ctx, func(b *order.Builder) (*types.Order, error) {
		return b.Submit(ctx, v.backend)
	})
}

// ConfirmMarket confirms the pending market order and runs the hooks.
func (v *View) ConfirmMarket(ctx context.Context) (*types.Order, error) {
	return v.submit(ctx, func(b *order.Builder) (*types.Order, error) {
		return b.Confirm(ctx, v.backend)
	})
}

func (v *View) submit(ctx context.Context, run func(*order.Builder) (*types.Order, error)) (*types.Order, error) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil, fmt.Errorf("market: view closed")
	}
	b := v.builder
	v.loading.Submitting = true
	v.mu.Unlock()

	placed, err := run(b)

	v.mu.Lock()
	v.loading.Submitting = false
	placedHooks := v.onOrderPlaced
	failedHooks := v.onOrderFailed
	name := v.outcomeName
	v.mu.Unlock()

	if err != nil {
		// Hooks get the request that actually went to the wire; validation
		// failures never assembled one, so fall back to the bare identifiers.
		req, ok := b.LastAttempt()
		if !ok {
			req = types.OrderRequest{MarketID: v.marketID, OutcomeName: name}
		}
		for _, fn := range failedHooks {
			fn(req, err)
		}
		return nil, err
	}

	req := types.OrderRequest{
		MarketID:    placed.MarketID,
		Side:        placed.Side,
		OutcomeName: placed.OutcomeName,
		Outcome:     placed.Outcome,
		Quantity:    placed.Quantity.IntPart(),
		OrderType:   placed.OrderType,
		Price:       placed.Price,
	}
	for _, fn := range placedHooks {
		fn(req, placed)
	}

	// The caller's fill may have moved both books and positions.
	if err := v.fetchBooks(ctx, name); err != nil {
		log.Warn().Err(err).Msg("Book refresh after order failed")
	}
	if err := v.refreshPositions(ctx); err != nil {
		log.Warn().Err(err).Msg("Position refresh after order failed")
	}
	return placed, nil
}

// fetchBooks pulls both sides of one outcome's book over REST. Versions are
// reserved before the requests go out so a slow response cannot overwrite a
// push that arrived while it was in flight.
func (v *View) fetchBooks(ctx context.Context, outcomeName string) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return fmt.Errorf("market: view closed")
	}
	v.loading.Book = true
	v.mu.Unlock()
	defer func() {
		v.mu.Lock()
		v.loading.Book = false
		v.mu.Unlock()
	}()

	for _, side := range []types.Side{types.SideYes, types.SideNo} {
		version := v.store.NextVersion()
		ob, err := v.backend.GetOrderBook(ctx, v.marketID, outcomeName, side)
		if err != nil {
			return err
		}
		v.mu.Lock()
		stale := v.closed
		v.mu.Unlock()
		if stale {
			return nil
		}
		v.store.Replace(outcomeName, side, ob.Buys, version)
	}
	return nil
}

// refreshPositions fetches positions itself rather than going through
// tracker.Refresh so a response that lands after Close() can be dropped
// instead of applied.
func (v *View) refreshPositions(ctx context.Context) error {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return nil
	}
	v.loading.Positions = true
	v.mu.Unlock()

	positions, err := v.backend.Positions(ctx, v.marketID)

	v.mu.Lock()
	v.loading.Positions = false
	stale := v.closed
	v.mu.Unlock()
	if err != nil {
		return err
	}
	if stale {
		return nil
	}
	v.tracker.Replace(positions)
	return nil
}

func (v *View) refreshTrades(ctx context.Context) {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.loading.Trades = true
	v.mu.Unlock()

	trades, err := v.backend.MyTrades(ctx, v.marketID)

	v.mu.Lock()
	defer v.mu.Unlock()
	v.loading.Trades = false
	if v.closed || err != nil {
		return
	}
	v.trades = trades
}

// consumeUpdates applies channel frames to the store. Each frame fully
// replaces one (outcome name, side) list; reordering is handled by the
// store's version guard.
func (v *View) consumeUpdates() {
	defer v.wg.Done()
	for {
		select {
		case <-v.stopCh:
			return
		case update, ok := <-v.channel.Updates():
			if !ok {
				return
			}
			v.mu.Lock()
			closed := v.closed
			v.mu.Unlock()
			if closed {
				return
			}
			version := v.store.NextVersion()
			v.store.Replace(update.OutcomeName, update.Outcome, update.Buys, version)
		}
	}
}

// pollLoop refreshes positions and trade history on a fixed interval. The
// book itself arrives over the channel; polling only covers what has no push
// feed.
func (v *View) pollLoop() {
	defer v.wg.Done()
	ticker := time.NewTicker(v.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-v.stopCh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), v.pollInterval)
			if err := v.refreshPositions(ctx); err != nil {
				log.Debug().Err(err).Msg("Position poll failed")
			}
			v.refreshTrades(ctx)
			cancel()
		}
	}
}

// Ensure the concrete REST client satisfies Backend.
var _ Backend = (*api.Client)(nil)
