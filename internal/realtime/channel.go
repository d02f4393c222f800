package realtime

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/predikt/tradeclient/internal/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// REALTIME CHANNEL - one live websocket per open market view
// ═══════════════════════════════════════════════════════════════════════════════
//
// Dials /ws/{marketID}?token=... and dispatches orderbook_update frames.
// Each frame is a full replace of one (outcome name, side) book, so no
// ordering guarantee is needed from the transport.
//
// Abnormal closes trigger a bounded reconnect: at most 5 attempts with a
// linearly growing delay, each one re-issuing the full handshake. An
// explicit Close() suppresses reconnection and error logging entirely and
// surfaces its own terminal state, distinct from exhaustion.
//
// ═══════════════════════════════════════════════════════════════════════════════

const (
	maxReconnectAttempts = 5
	reconnectBaseDelay   = 1 * time.Second
	updateBuffer         = 256
)

// State is the channel's connection state as surfaced to the caller.
type State int

const (
	StateConnecting State = iota
	StateConnected
	// StateDisconnected is terminal: reconnect attempts are exhausted and the
	// channel will not dial again. Never surfaced for a deliberate Close.
	StateDisconnected
	// StateClosed is terminal: the caller closed the channel. Not a failure.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "disconnected"
	}
}

// BookUpdate is the one frame type this client consumes. Sells arrive on the
// wire but are unused: asks are always derived from the opposite side's buys.
type BookUpdate struct {
	MarketID    int64             `json:"market_id"`
	OutcomeName string            `json:"outcome_name"`
	Outcome     types.Side        `json:"outcome"`
	Buys        []types.BookEntry `json:"buys"`
	Sells       []types.BookEntry `json:"sells"`
}

type frame struct {
	Type string `json:"type"`
}

// Channel maintains one live connection for one market.
type Channel struct {
	mu        sync.Mutex
	baseURL   string
	marketID  int64
	token     string
	dialer    *websocket.Dialer
	baseDelay time.Duration

	conn     *websocket.Conn
	opened   bool
	closed   bool // explicit Close(), never treated as a failure
	attempts int

	updates chan BookUpdate
	stopCh  chan struct{}
	onState func(State)
}

// New creates a channel for one market. baseURL is the websocket origin,
// e.g. "ws://localhost:8000".
func New(baseURL string, marketID int64, token string) *Channel {
	return &Channel{
		baseURL:   baseURL,
		marketID:  marketID,
		token:     token,
		dialer:    websocket.DefaultDialer,
		baseDelay: reconnectBaseDelay,
		updates:   make(chan BookUpdate, updateBuffer),
		stopCh:    make(chan struct{}),
	}
}

// Updates returns the stream of parsed book frames. Frames are dropped
// rather than blocking the read loop when the consumer falls behind.
func (c *Channel) Updates() <-chan BookUpdate {
	return c.updates
}

// OnState registers a state callback. Set before Open.
func (c *Channel) OnState(fn func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}

// Open dials the handshake and starts the read loop. Opening a channel that
// is already open or pending is a no-op; opening a closed channel is an error.
func (c *Channel) Open() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("realtime: channel closed")
	}
	if c.opened {
		c.mu.Unlock()
		return nil
	}
	c.opened = true
	c.mu.Unlock()

	c.notify(StateConnecting)
	if err := c.dial(); err != nil {
		c.mu.Lock()
		c.opened = false
		c.mu.Unlock()
		return err
	}
	go c.readLoop()
	return nil
}

// Close tears the connection down and suppresses any further reconnection.
// Safe to call more than once.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	conn := c.conn
	c.conn = nil
	close(c.stopCh)
	c.mu.Unlock()

	if conn != nil {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}
	c.notify(StateClosed)
}

func (c *Channel) endpoint() string {
	return fmt.Sprintf("%s/ws/%d?token=%s", c.baseURL, c.marketID, url.QueryEscape(c.token))
}

func (c *Channel) dial() error {
	conn, _, err := c.dialer.Dial(c.endpoint(), nil)
	if err != nil {
		return fmt.Errorf("realtime: dial market %d: %w", c.marketID, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return fmt.Errorf("realtime: channel closed")
	}
	c.conn = conn
	c.attempts = 0
	c.mu.Unlock()

	log.Info().Int64("market_id", c.marketID).Msg("🔌 Realtime channel connected")
	c.notify(StateConnected)
	return nil
}

func (c *Channel) readLoop() {
	for {
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn == nil {
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			deliberate := c.closed
			c.conn = nil
			c.mu.Unlock()

			if deliberate {
				return
			}
			log.Warn().Err(err).Int64("market_id", c.marketID).Msg("Realtime read error")
			conn.Close()
			c.reconnect()
			return
		}

		c.handleMessage(message)
	}
}

// reconnect re-dials the full handshake with the original market id and
// token. Delay grows linearly with the attempt number; after the attempts
// are exhausted the terminal disconnected state is surfaced instead of
// retrying forever.
func (c *Channel) reconnect() {
	for {
		c.mu.Lock()
		c.attempts++
		attempt := c.attempts
		c.mu.Unlock()

		if attempt > maxReconnectAttempts {
			log.Error().Int64("market_id", c.marketID).Msg("Realtime reconnect attempts exhausted")
			c.notify(StateDisconnected)
			return
		}

		delay := time.Duration(attempt) * c.baseDelay
		log.Info().
			Int("attempt", attempt).
			Dur("delay", delay).
			Int64("market_id", c.marketID).
			Msg("Reconnecting realtime channel")

		select {
		case <-c.stopCh:
			return
		case <-time.After(delay):
		}

		c.notify(StateConnecting)
		if err := c.dial(); err != nil {
			c.mu.Lock()
			deliberate := c.closed
			c.mu.Unlock()
			if deliberate {
				return
			}
			log.Warn().Err(err).Int("attempt", attempt).Msg("Reconnect failed")
			continue
		}

		go c.readLoop()
		return
	}
}

// handleMessage parses one frame. Parse failures are per-frame: a malformed
// message is logged and skipped, never torn down over.
func (c *Channel) handleMessage(data []byte) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		log.Debug().Err(err).Msg("Unparseable realtime frame")
		return
	}
	if f.Type != "orderbook_update" {
		return
	}

	var update BookUpdate
	if err := json.Unmarshal(data, &update); err != nil {
		log.Debug().Err(err).Msg("Malformed orderbook_update frame")
		return
	}
	if !update.Outcome.Valid() {
		return
	}
	if update.OutcomeName == "" {
		update.OutcomeName = "default"
	}

	select {
	case c.updates <- update:
	default:
		// Consumer is behind; the next full-replace frame supersedes this one.
	}
}

func (c *Channel) notify(s State) {
	c.mu.Lock()
	fn := c.onState
	c.mu.Unlock()
	if fn != nil {
		fn(s)
	}
}
