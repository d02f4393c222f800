package market

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predikt/tradeclient/internal/order"
	"github.com/predikt/tradeclient/internal/realtime"
	"github.com/predikt/tradeclient/internal/types"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// fakeBackend implements Backend in memory.
type fakeBackend struct {
	mu        sync.Mutex
	market    types.Market
	books     map[string][]types.BookEntry // "name/side"
	positions []types.Position
	trades    []types.Trade
	placed    []types.OrderRequest
	placeErr  error
	cancelled []int64

	// When set, Positions signals entry then parks until the gate closes,
	// simulating a slow in-flight response.
	positionsGate    chan struct{}
	positionsEntered chan struct{}
}

func (f *fakeBackend) GetMarket(_ context.Context, _ int64) (*types.Market, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m := f.market
	return &m, nil
}

func (f *fakeBackend) GetOrderBook(_ context.Context, marketID int64, name string, side types.Side) (*types.OrderBook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return &types.OrderBook{
		MarketID:    marketID,
		OutcomeName: name,
		Outcome:     side,
		Buys:        f.books[name+"/"+string(side)],
	}, nil
}

func (f *fakeBackend) PlaceOrder(_ context.Context, req types.OrderRequest) (*types.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.placeErr != nil {
		return nil, f.placeErr
	}
	f.placed = append(f.placed, req)
	return &types.Order{
		ID:          int64(len(f.placed)),
		MarketID:    req.MarketID,
		Side:        req.Side,
		OutcomeName: req.OutcomeName,
		Outcome:     req.Outcome,
		Price:       req.Price,
		Quantity:    decimal.NewFromInt(req.Quantity),
		OrderType:   req.OrderType,
		Status:      "open",
	}, nil
}

func (f *fakeBackend) CancelOrder(_ context.Context, orderID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, orderID)
	return nil
}

func (f *fakeBackend) Positions(_ context.Context, _ int64) ([]types.Position, error) {
	f.mu.Lock()
	gate := f.positionsGate
	entered := f.positionsEntered
	f.mu.Unlock()
	if gate != nil {
		entered <- struct{}{}
		<-gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.positions, nil
}

func (f *fakeBackend) MyTrades(_ context.Context, _ int64) ([]types.Trade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.trades, nil
}

// testChannelServer upgrades every request and hands the conn over.
func testChannelServer(t *testing.T) (*httptest.Server, chan *websocket.Conn) {
	upgrader := websocket.Upgrader{}
	conns := make(chan *websocket.Conn, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conns <- conn
	}))
	t.Cleanup(srv.Close)
	return srv, conns
}

func newTestView(t *testing.T, backend *fakeBackend) (*View, chan *websocket.Conn) {
	srv, conns := testChannelServer(t)
	channel := realtime.New("ws"+strings.TrimPrefix(srv.URL, "http"), 1, "tok")
	view := NewView(backend, channel, 1, WithPollInterval(20*time.Millisecond))
	return view, conns
}

func defaultBackend() *fakeBackend {
	return &fakeBackend{
		market: types.Market{
			ID:       1,
			Title:    "Will it rain?",
			Status:   "open",
			Outcomes: []string{"default"},
			OutcomesDetailed: []types.MarketOutcome{
				{ID: 1, MarketID: 1, Name: "default", Status: types.OutcomeStatusOpen},
			},
		},
		books: map[string][]types.BookEntry{
			"default/yes": {{Price: dec("0.60"), Quantity: dec("10")}},
		},
	}
}

func TestOpen_SeedsBooksAndImpliedPrices(t *testing.T) {
	backend := defaultBackend()
	view, _ := newTestView(t, backend)
	require.NoError(t, view.Open(context.Background()))
	defer view.Close()

	// yesBuys=[0.60], noBuys=[]: YES is unpriceable, NO implies 0.40.
	_, ok := view.ImpliedPrice(types.SideYes)
	assert.False(t, ok)

	no, ok := view.ImpliedPrice(types.SideNo)
	require.True(t, ok)
	assert.True(t, no.Equal(dec("0.40")))
}

func TestChannelFrame_ReplacesOneSideOnly(t *testing.T) {
	backend := defaultBackend()
	backend.books["default/no"] = []types.BookEntry{{Price: dec("0.30"), Quantity: dec("2")}}
	view, conns := newTestView(t, backend)
	require.NoError(t, view.Open(context.Background()))
	defer view.Close()

	conn := <-conns
	frame := `{
		"type": "orderbook_update",
		"market_id": 1,
		"outcome_name": "default",
		"outcome": "yes",
		"buys": [{"price": 0.75, "quantity": 1}],
		"sells": []
	}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))

	require.Eventually(t, func() bool {
		best, ok := view.Books().BestPrice("default", types.SideYes)
		return ok && best.Equal(dec("0.75"))
	}, 2*time.Second, 5*time.Millisecond)

	// The NO list is untouched.
	best, ok := view.Books().BestPrice("default", types.SideNo)
	require.True(t, ok)
	assert.True(t, best.Equal(dec("0.30")))
}

func TestMarketOrderFlow_EndToEnd(t *testing.T) {
	backend := defaultBackend()
	view, _ := newTestView(t, backend)
	require.NoError(t, view.Open(context.Background()))
	defer view.Close()

	var placedHook []types.OrderRequest
	view.OnOrderPlaced(func(req types.OrderRequest, _ *types.Order) {
		placedHook = append(placedHook, req)
	})

	b := view.Builder()
	b.SetOutcome(types.SideNo) // matches against the resting YES buys
	b.SetAmount(dec("10"))     // dollars at implied 0.40

	pending, err := b.Propose()
	require.NoError(t, err)
	assert.True(t, pending.EstimatedPrice.Equal(dec("0.40")))
	assert.Equal(t, int64(25), pending.Request.Quantity)

	placed, err := view.ConfirmMarket(context.Background())
	require.NoError(t, err)
	require.NotNil(t, placed)

	require.Len(t, backend.placed, 1)
	assert.True(t, backend.placed[0].Price.IsZero())
	require.Len(t, placedHook, 1)
	assert.Equal(t, int64(25), placedHook[0].Quantity)
}

func TestResolvedOutcome_BlocksTrading(t *testing.T) {
	backend := defaultBackend()
	backend.market.OutcomesDetailed[0].Status = types.OutcomeStatusResolved
	view, _ := newTestView(t, backend)
	require.NoError(t, view.Open(context.Background()))
	defer view.Close()

	b := view.Builder()
	b.SetOutcome(types.SideNo)
	b.SetAmount(dec("10"))

	_, err := b.Propose()
	var validation *order.ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Empty(t, backend.placed)
}

func TestPollLoop_RefreshesPositions(t *testing.T) {
	backend := defaultBackend()
	view, _ := newTestView(t, backend)
	require.NoError(t, view.Open(context.Background()))
	defer view.Close()

	backend.mu.Lock()
	backend.positions = []types.Position{
		{OutcomeName: "default", Outcome: types.SideYes, Quantity: dec("5")},
	}
	backend.mu.Unlock()

	require.Eventually(t, func() bool {
		_, ok := view.Positions().Get("default", types.SideYes)
		return ok
	}, 2*time.Second, 10*time.Millisecond)
}

func TestClose_StopsSessionAndRejectsWork(t *testing.T) {
	backend := defaultBackend()
	view, _ := newTestView(t, backend)
	require.NoError(t, view.Open(context.Background()))

	view.Close()
	view.Close() // idempotent

	require.Error(t, view.SelectOutcome(context.Background(), "default"))
	_, err := view.SubmitLimit(context.Background())
	require.Error(t, err)
}

func TestOrderFailedHook_CarriesAttemptedRequest(t *testing.T) {
	backend := defaultBackend()
	backend.placeErr = errors.New("insufficient balance")
	view, _ := newTestView(t, backend)
	require.NoError(t, view.Open(context.Background()))
	defer view.Close()

	var failed []types.OrderRequest
	view.OnOrderFailed(func(req types.OrderRequest, _ error) {
		failed = append(failed, req)
	})

	b := view.Builder()
	b.SetOutcome(types.SideNo)
	b.SetAmount(dec("10")) // dollars at implied 0.40

	_, err := b.Propose()
	require.NoError(t, err)
	_, err = view.ConfirmMarket(context.Background())
	require.Error(t, err)

	// The journal and notifier need the full rejected payload, not just the
	// market id.
	require.Len(t, failed, 1)
	assert.Equal(t, int64(25), failed[0].Quantity)
	assert.Equal(t, types.SideNo, failed[0].Outcome)
	assert.Equal(t, types.OrderTypeMarket, failed[0].OrderType)
	assert.Equal(t, "default", failed[0].OutcomeName)
}

func TestClose_DropsLatePositionsResponse(t *testing.T) {
	backend := defaultBackend()
	view, _ := newTestView(t, backend)
	require.NoError(t, view.Open(context.Background()))

	gate := make(chan struct{})
	entered := make(chan struct{}, 1)
	backend.mu.Lock()
	backend.positionsGate = gate
	backend.positionsEntered = entered
	backend.mu.Unlock()

	// Wait for a poll fetch to park on the gate, then make the eventual
	// response carry a position.
	<-entered
	backend.mu.Lock()
	backend.positions = []types.Position{
		{OutcomeName: "default", Outcome: types.SideYes, Quantity: dec("5")},
	}
	backend.mu.Unlock()

	done := make(chan struct{})
	go func() {
		view.Close()
		close(done)
	}()
	// Release the gate only once Close has marked the view closed, so the
	// parked response is guaranteed to land late.
	for view.SelectOutcome(context.Background(), "default") == nil {
		time.Sleep(time.Millisecond)
	}
	close(gate)
	<-done

	// The response landed after Close and must not be applied.
	_, ok := view.Positions().Get("default", types.SideYes)
	assert.False(t, ok)
}

func TestCancelOrder_InvalidatesPositions(t *testing.T) {
	backend := defaultBackend()
	view, _ := newTestView(t, backend)
	require.NoError(t, view.Open(context.Background()))
	defer view.Close()

	require.NoError(t, view.CancelOrder(context.Background(), 31))
	assert.Equal(t, []int64{31}, backend.cancelled)
	assert.True(t, view.Positions().Stale())
}

func TestLastTraded_DerivesComplement(t *testing.T) {
	backend := defaultBackend()
	yes := dec("0.62")
	backend.market.LastTradedPrices = &types.LastTradedPrices{Yes: &yes}
	view, _ := newTestView(t, backend)
	require.NoError(t, view.Open(context.Background()))
	defer view.Close()

	gotYes, gotNo := view.LastTraded()
	require.NotNil(t, gotYes)
	require.NotNil(t, gotNo)
	assert.True(t, gotYes.Add(*gotNo).Equal(decimal.NewFromInt(1)))
}
