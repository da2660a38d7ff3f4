// Package spot is the boundary to the external spot exchange. The venue
// never looks inside a delegated open-orders account; it only asks for the
// quantities that account declares.
package spot

import (
	"sync"

	"github.com/efreitasn/crossmargin/internal/domain"
)

// Holdings are the quantities an external open-orders account declares,
// in native units. Totals include amounts locked in resting orders, and
// only totals back collateral.
type Holdings struct {
	BaseTotal  int64
	QuoteTotal int64
}

// IsZero reports whether the delegated position is fully closed.
func (h Holdings) IsZero() bool {
	return h.BaseTotal == 0 && h.QuoteTotal == 0
}

// Valuer answers the valuation query for a delegation reference.
type Valuer interface {
	Holdings(market domain.MarketID, ref domain.Key) (Holdings, error)
}

// Ledger is an in-memory Valuer. Unknown references report zero holdings.
type Ledger struct {
	mu       sync.RWMutex
	holdings map[ledgerKey]Holdings
}

type ledgerKey struct {
	market domain.MarketID
	ref    domain.Key
}

// NewLedger creates an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{holdings: make(map[ledgerKey]Holdings)}
}

// Set records the declared holdings of ref on market.
func (l *Ledger) Set(market domain.MarketID, ref domain.Key, h Holdings) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if h.IsZero() {
		delete(l.holdings, ledgerKey{market, ref})
		return
	}
	l.holdings[ledgerKey{market, ref}] = h
}

// Holdings implements Valuer.
func (l *Ledger) Holdings(market domain.MarketID, ref domain.Key) (Holdings, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.holdings[ledgerKey{market, ref}], nil
}
