package store

import (
	"context"
	"sync"
	"time"

	"stonks-go/src/models"
)

// MemoryStore is an in-process TrailStore. It backs tests and runs without
// DATABASE_URL; trailing peaks then survive cycles but not restarts.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]models.TrailState
	trades []ClosedTrade
}

// ClosedTrade is one entry of the in-memory trade log
type ClosedTrade struct {
	Symbol     string
	Side       models.Side
	Quantity   float64
	EntryPrice float64
	ExitPrice  float64
	Reason     string
	ClosedAt   time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]models.TrailState)}
}

// Get loads the trailing state for a symbol
func (s *MemoryStore) Get(_ context.Context, symbol string) (models.TrailState, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.states[symbol]
	return state, ok, nil
}

// Put stores the trailing state for a symbol
func (s *MemoryStore) Put(_ context.Context, symbol string, state models.TrailState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[symbol] = state
	return nil
}

// Delete removes the trailing state for a symbol
func (s *MemoryStore) Delete(_ context.Context, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, symbol)
	return nil
}

// LogClosedTrade appends one trade to the in-memory log
func (s *MemoryStore) LogClosedTrade(_ context.Context, pos models.Position, reason string, closedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, ClosedTrade{
		Symbol:     pos.Ticker,
		Side:       pos.Side,
		Quantity:   pos.Quantity,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  pos.CurrentPrice,
		Reason:     reason,
		ClosedAt:   closedAt,
	})
	return nil
}

// ClosedTrades returns a copy of the trade log
func (s *MemoryStore) ClosedTrades() []ClosedTrade {
	s.mu.RLock()
	defer s.mu.RUnlock()
	trades := make([]ClosedTrade, len(s.trades))
	copy(trades, s.trades)
	return trades
}
