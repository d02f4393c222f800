package book

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/predikt/tradeclient/internal/types"
)

// ═══════════════════════════════════════════════════════════════════════════════
// ORDER BOOK STORE - local mirror of the server's buy-side books
// ═══════════════════════════════════════════════════════════════════════════════
//
// One store per market. Keyed by (outcome name, side); each key holds the
// resting buy orders for that side. Asks are never stored: they are derived
// on read from the opposite side's buys (ask = 1 - oppositeBuy.price).
//
// REST polls and websocket pushes both write here with full-replace
// semantics. A per-key monotonic version makes last-write-wins safe under
// reordering: a response that started before a newer write is discarded.
//
// ═══════════════════════════════════════════════════════════════════════════════

var one = decimal.NewFromInt(1)

type key struct {
	outcomeName string
	side        types.Side
}

// Store mirrors the buy-side order books for one market.
type Store struct {
	mu       sync.RWMutex
	books    map[key][]types.BookEntry
	versions map[key]uint64
	clock    uint64
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		books:    make(map[key][]types.BookEntry),
		versions: make(map[key]uint64),
	}
}

// NextVersion reserves an apply version. Callers take one at the moment a
// fetch or frame is initiated, so a late response cannot clobber state
// written by anything that started after it.
func (s *Store) NextVersion() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock++
	return s.clock
}

// Replace swaps the entry list for one (outcome name, side) wholesale.
// Entries with non-positive quantity or a price outside (0,1) are dropped.
// Returns false when version is older than the last applied write for the
// key, in which case nothing changes.
func (s *Store) Replace(outcomeName string, side types.Side, entries []types.BookEntry, version uint64) bool {
	cleaned := make([]types.BookEntry, 0, len(entries))
	for _, e := range entries {
		if !e.Quantity.IsPositive() {
			continue
		}
		if !e.Price.IsPositive() || e.Price.GreaterThanOrEqual(one) {
			continue
		}
		cleaned = append(cleaned, e)
	}

	// Best bid first. Ties keep arrival order.
	sort.SliceStable(cleaned, func(i, j int) bool {
		return cleaned[i].Price.GreaterThan(cleaned[j].Price)
	})

	k := key{outcomeName, side}

	s.mu.Lock()
	defer s.mu.Unlock()
	if version < s.versions[k] {
		return false
	}
	s.versions[k] = version
	s.books[k] = cleaned
	return true
}

// Get returns a copy of the buy entries for one side, best price first.
func (s *Store) Get(outcomeName string, side types.Side) []types.BookEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.books[key{outcomeName, side}]
	out := make([]types.BookEntry, len(entries))
	copy(out, entries)
	return out
}

// BestPrice returns the highest resting buy price for a side. ok is false
// when the side has no orders; an empty book is distinct from a zero price.
func (s *Store) BestPrice(outcomeName string, side types.Side) (decimal.Decimal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.books[key{outcomeName, side}]
	if len(entries) == 0 {
		return decimal.Decimal{}, false
	}
	return entries[0].Price, true
}

// DerivedAsks computes the ask view for a side from the opposite side's
// buys: ask.price = 1 - oppositeBuy.price, quantity and ownership unchanged.
// Returned best (lowest) ask first.
func (s *Store) DerivedAsks(outcomeName string, side types.Side) []types.BookEntry {
	opposite := s.Get(outcomeName, side.Opposite())
	asks := make([]types.BookEntry, 0, len(opposite))
	for _, b := range opposite {
		asks = append(asks, types.BookEntry{
			Price:    one.Sub(b.Price),
			Quantity: b.Quantity,
			OrderID:  b.OrderID,
			UserID:   b.UserID,
		})
	}
	// Opposite buys are sorted descending, so derived asks come out ascending.
	return asks
}
