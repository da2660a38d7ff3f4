// Package oracle defines the price-feed collaborator the venue reads during
// a cache refresh, plus an in-memory feed whose prices are set explicitly.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/efreitasn/crossmargin/internal/domain"
)

// ErrNoPrice is returned when a feed has never published for an oracle.
var ErrNoPrice = errors.New("no_price")

// Feed reads the current price published at an oracle address.
type Feed interface {
	Price(ctx context.Context, oracle domain.Key) (domain.Price, error)
}

// Stub is a thread-safe in-memory Feed.
type Stub struct {
	mu     sync.RWMutex
	prices map[domain.Key]domain.Price
}

// NewStub creates an empty Stub.
func NewStub() *Stub {
	return &Stub{prices: make(map[domain.Key]domain.Price)}
}

// Set publishes price at oracle.
func (s *Stub) Set(oracle domain.Key, price domain.Price) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[oracle] = price
}

// Price implements Feed.
func (s *Stub) Price(ctx context.Context, oracle domain.Key) (domain.Price, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.prices[oracle]
	if !ok {
		return 0, fmt.Errorf("oracle %s: %w", oracle, ErrNoPrice)
	}
	return p, nil
}
