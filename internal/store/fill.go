package store

import (
	"sync"

	"github.com/efreitasn/crossmargin/internal/domain"
)

// FillStore is a thread-safe in-memory store for fills, keyed by perp
// market. Fills are append-only and chronological.
type FillStore struct {
	mu    sync.RWMutex
	fills map[domain.MarketID][]domain.Fill
}

// NewFillStore creates an empty FillStore.
func NewFillStore() *FillStore {
	return &FillStore{
		fills: make(map[domain.MarketID][]domain.Fill),
	}
}

// Append adds fills to the market's chronological list.
func (s *FillStore) Append(market domain.MarketID, fills ...domain.Fill) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fills[market] = append(s.fills[market], fills...)
}

// GetByMarket returns all fills for a market in chronological order.
// Returns an empty slice if the market has none.
func (s *FillStore) GetByMarket(market domain.MarketID) []domain.Fill {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Fill, len(s.fills[market]))
	copy(result, s.fills[market])
	return result
}
