package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predikt/tradeclient/internal/types"
)

var upgrader = websocket.Upgrader{}

// wsServer is a scriptable websocket endpoint.
type wsServer struct {
	t  *testing.T
	mu sync.Mutex

	dials  int
	reject bool
	tokens []string
	paths  []string
	conns  chan *websocket.Conn
}

func newWSServer(t *testing.T) (*wsServer, *httptest.Server) {
	s := &wsServer{t: t, conns: make(chan *websocket.Conn, 16)}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.dials++
		s.tokens = append(s.tokens, r.URL.Query().Get("token"))
		s.paths = append(s.paths, r.URL.Path)
		reject := s.reject
		s.mu.Unlock()

		if reject {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.conns <- conn
	}))
	t.Cleanup(srv.Close)
	return s, srv
}

func (s *wsServer) dialCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

func (s *wsServer) accept(t *testing.T) *websocket.Conn {
	select {
	case conn := <-s.conns:
		return conn
	case <-time.After(2 * time.Second):
		t.Fatal("no connection arrived")
		return nil
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestOpen_HandshakeCarriesMarketAndToken(t *testing.T) {
	server, srv := newWSServer(t)

	c := New(wsURL(srv), 42, "secret token")
	require.NoError(t, c.Open())
	defer c.Close()
	server.accept(t)

	server.mu.Lock()
	defer server.mu.Unlock()
	require.Len(t, server.paths, 1)
	assert.Equal(t, "/ws/42", server.paths[0])
	assert.Equal(t, "secret token", server.tokens[0])
}

func TestOpen_Idempotent(t *testing.T) {
	server, srv := newWSServer(t)

	c := New(wsURL(srv), 1, "tok")
	require.NoError(t, c.Open())
	defer c.Close()
	server.accept(t)

	require.NoError(t, c.Open())
	require.NoError(t, c.Open())

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, server.dialCount(), "re-open while live must be a no-op")
}

func TestUpdates_DispatchesBookFrames(t *testing.T) {
	server, srv := newWSServer(t)

	c := New(wsURL(srv), 1, "tok")
	require.NoError(t, c.Open())
	defer c.Close()
	conn := server.accept(t)

	frame := `{
		"type": "orderbook_update",
		"market_id": 1,
		"outcome_name": "default",
		"outcome": "yes",
		"buys": [{"price": "0.60", "quantity": 10}],
		"sells": []
	}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))

	select {
	case update := <-c.Updates():
		assert.Equal(t, "default", update.OutcomeName)
		assert.Equal(t, types.SideYes, update.Outcome)
		require.Len(t, update.Buys, 1)
		assert.Equal(t, "0.6", update.Buys[0].Price.String())
	case <-time.After(2 * time.Second):
		t.Fatal("no update dispatched")
	}
}

func TestUpdates_ParseFailureDoesNotTearDown(t *testing.T) {
	server, srv := newWSServer(t)

	c := New(wsURL(srv), 1, "tok")
	require.NoError(t, c.Open())
	defer c.Close()
	conn := server.accept(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json at all")))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"trade"}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"orderbook_update","outcome_name":"default","outcome":"no","buys":[],"sells":[]}`)))

	select {
	case update := <-c.Updates():
		assert.Equal(t, types.SideNo, update.Outcome)
	case <-time.After(2 * time.Second):
		t.Fatal("frame after parse failure was not delivered")
	}
	assert.Equal(t, 1, server.dialCount(), "parse failures must not trigger reconnects")
}

func TestClose_SuppressesReconnect(t *testing.T) {
	server, srv := newWSServer(t)

	c := New(wsURL(srv), 1, "tok")
	c.baseDelay = time.Millisecond

	var states []State
	var stateMu sync.Mutex
	c.OnState(func(s State) {
		stateMu.Lock()
		states = append(states, s)
		stateMu.Unlock()
	})

	require.NoError(t, c.Open())
	server.accept(t)

	c.Close()
	c.Close() // idempotent

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, server.dialCount(), "deliberate close must issue zero reconnect attempts")

	// A deliberate close surfaces its own terminal state; the failure state
	// is reserved for reconnect exhaustion.
	stateMu.Lock()
	defer stateMu.Unlock()
	assert.Equal(t, StateClosed, states[len(states)-1])
	assert.NotContains(t, states, StateDisconnected)
}

func TestReconnect_BoundedAndTerminal(t *testing.T) {
	server, srv := newWSServer(t)

	c := New(wsURL(srv), 1, "tok")
	c.baseDelay = time.Millisecond

	terminal := make(chan struct{})
	c.OnState(func(s State) {
		if s == StateDisconnected {
			close(terminal)
		}
	})

	require.NoError(t, c.Open())
	conn := server.accept(t)

	// Refuse all redials, then kill the live connection. The client must
	// give up after the attempt cap instead of retrying forever.
	server.mu.Lock()
	server.reject = true
	server.mu.Unlock()
	conn.Close()

	select {
	case <-terminal:
	case <-time.After(5 * time.Second):
		t.Fatal("terminal disconnected state never surfaced")
	}

	// Initial dial plus exactly maxReconnectAttempts redials.
	assert.Equal(t, 1+maxReconnectAttempts, server.dialCount())
}

func TestOpen_AfterCloseFails(t *testing.T) {
	_, srv := newWSServer(t)
	c := New(wsURL(srv), 1, "tok")
	c.Close()
	assert.Error(t, c.Open())
}
