package venue

import (
	"github.com/shopspring/decimal"

	"github.com/efreitasn/crossmargin/internal/domain"
	"github.com/efreitasn/crossmargin/internal/engine"
)

// Stats summarises recent trading on a perp market.
type Stats struct {
	Market domain.MarketID
	// Window is how many sequence steps back Price looks.
	Window        uint64
	FillsInWindow int
	// Price is the VWAP of the fills in the window, falling back to the
	// last fill's price. Invalid when the market never traded.
	Price        decimal.NullDecimal
	LastFillSeq  *uint64
	IndexPrice   decimal.NullDecimal // oracle price of one lot; invalid when stale
	Funding      int64
	OpenInterest int64
}

// Stats computes the reference price of a perp market as the VWAP of its
// fills over the last window sequence steps.
func (v *Venue) Stats(market domain.MarketID, window uint64) (Stats, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	desc, book, err := v.perpMarket(market)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{
		Market:       market,
		Window:       window,
		Funding:      book.Funding(),
		OpenInterest: book.OpenInterest(),
	}
	if snap, err := v.view().Asset(desc.Base); err == nil {
		st.IndexPrice = decimal.NewNullDecimal(snap.Price.Decimal().Mul(decimal.NewFromInt(desc.BaseLotSize)))
	}

	fills := v.fills.GetByMarket(market)
	if len(fills) == 0 {
		return st, nil
	}
	last := fills[len(fills)-1]
	st.LastFillSeq = &last.Sequence

	now := v.clock.Now()
	var notional, qty int64
	for i := len(fills) - 1; i >= 0; i-- {
		f := fills[i]
		if now-f.Sequence > window {
			break
		}
		notional += f.Price * f.Quantity
		qty += f.Quantity
		st.FillsInWindow++
	}
	if qty > 0 {
		st.Price = decimal.NewNullDecimal(decimal.NewFromInt(notional).Div(decimal.NewFromInt(qty)))
	} else {
		st.Price = decimal.NewNullDecimal(decimal.NewFromInt(last.Price))
	}
	return st, nil
}

// Quote is the estimated outcome of a market order.
type Quote struct {
	Market        domain.MarketID
	Side          domain.Side
	Requested     int64
	Available     int64
	FullyFillable bool
	AveragePrice  decimal.NullDecimal // invalid when the opposite side is empty
	Notional      int64
	Levels        []engine.PriceLevel
}

// Quote walks the book as a market order of side and quantity would,
// without placing anything.
func (v *Venue) Quote(market domain.MarketID, side domain.Side, quantity int64) (Quote, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if quantity <= 0 {
		return Quote{}, &domain.ValidationError{Message: "quantity must be > 0"}
	}
	_, book, err := v.perpMarket(market)
	if err != nil {
		return Quote{}, err
	}
	sim := book.Simulate(side, quantity, domain.Key{})
	q := Quote{
		Market:        market,
		Side:          side,
		Requested:     quantity,
		Available:     sim.Filled,
		FullyFillable: sim.Filled == quantity,
		Notional:      sim.Notional,
		Levels:        sim.Levels,
	}
	if sim.Filled > 0 {
		q.AveragePrice = decimal.NewNullDecimal(decimal.NewFromInt(sim.Notional).Div(decimal.NewFromInt(sim.Filled)))
	}
	return q, nil
}
