package engine

import (
	"fmt"

	"github.com/efreitasn/crossmargin/internal/domain"
)

// Order is an incoming request to the matching engine.
type Order struct {
	Owner    domain.Key
	ClientID uint64
	Side     domain.Side
	Kind     domain.OrderKind
	Price    int64 // limit, quote native per lot; unused for market orders
	Quantity int64 // lots
}

// Match is one execution against a resting maker order.
type Match struct {
	MakerOrderID  uint64
	Maker         domain.Key
	MakerClientID uint64
	Price         int64
	Quantity      int64
	MakerDone     bool // the maker order left the book
}

// Outcome reports what Submit did with an order.
type Outcome struct {
	OrderID   uint64
	Matches   []Match
	Filled    int64
	Rested    int64
	Cancelled int64
	Steps     int
}

// Submit runs the matching algorithm for o. Opposing orders are consumed
// best price first, oldest first within a price, always at the maker's
// price. Resting orders of the same owner are skipped without losing
// their place. A resting-capable remainder is inserted behind every
// existing order at its price; any other remainder is discarded.
//
// Each visited opposing order costs one step. A budget of zero means no
// limit. Submit either succeeds or leaves the book exactly as it found it.
func (b *Book) Submit(o Order, budget int) (Outcome, error) {
	if o.Quantity <= 0 {
		return Outcome{}, &domain.ValidationError{Message: "quantity must be > 0"}
	}
	if o.Kind.HasLimit() && o.Price <= 0 {
		return Outcome{}, &domain.ValidationError{Message: "price must be > 0"}
	}

	if o.Kind == domain.OrderKindPostOnly && b.crosses(o) {
		return Outcome{}, fmt.Errorf("post-only order at %d: %w", o.Price, domain.ErrWouldTakeLiquidity)
	}

	cp := b.Checkpoint()
	out, err := b.match(o, budget)
	if err != nil {
		b.Restore(cp)
		return Outcome{}, err
	}
	return out, nil
}

func (b *Book) match(o Order, budget int) (Outcome, error) {
	out := Outcome{OrderID: b.nextSeq}
	b.nextSeq++

	remaining := o.Quantity
	opposite := b.side(o.Side.Opposite())

	var pivot *Entry
	for remaining > 0 {
		var (
			maker Entry
			found bool
		)
		visit := func(e Entry) bool {
			if !b.acceptable(o, e.Price) {
				return false
			}
			out.Steps++
			if budget > 0 && out.Steps > budget {
				return false
			}
			if e.Owner == o.Owner {
				return true
			}
			maker, found = e, true
			return false
		}
		if pivot == nil {
			opposite.Ascend(visit)
		} else {
			opposite.AscendGreaterOrEqual(*pivot, visit)
		}
		if budget > 0 && out.Steps > budget {
			return Outcome{}, fmt.Errorf("order needs more than %d steps: %w", budget, domain.ErrBudgetExceeded)
		}
		if !found {
			break
		}

		qty := min(remaining, maker.Remaining)
		remaining -= qty
		out.Filled += qty

		maker.Remaining -= qty
		done := maker.Remaining == 0
		if done {
			b.remove(maker)
		} else {
			b.insert(maker)
		}
		out.Matches = append(out.Matches, Match{
			MakerOrderID:  maker.Seq,
			Maker:         maker.Owner,
			MakerClientID: maker.ClientID,
			Price:         maker.Price,
			Quantity:      qty,
			MakerDone:     done,
		})
		pivot = &maker
	}

	if remaining == 0 {
		return out, nil
	}
	if !o.Kind.Rests() {
		out.Cancelled = remaining
		return out, nil
	}
	if b.Len() >= b.maxOrders {
		return Outcome{}, fmt.Errorf("perp market %d holds %d orders: %w", b.market, b.maxOrders, domain.ErrBookFull)
	}
	b.insert(Entry{
		Price:     o.Price,
		Seq:       out.OrderID,
		Owner:     o.Owner,
		ClientID:  o.ClientID,
		Side:      o.Side,
		Remaining: remaining,
	})
	out.Rested = remaining
	return out, nil
}

// acceptable reports whether an opposing order at price satisfies o's limit.
func (b *Book) acceptable(o Order, price int64) bool {
	switch o.Kind {
	case domain.OrderKindMarket:
		return true
	case domain.OrderKindLimit, domain.OrderKindImmediateOrCancel, domain.OrderKindPostOnly:
		if o.Side == domain.SideBid {
			return price <= o.Price
		}
		return price >= o.Price
	}
	return false
}

// crosses reports whether o would execute against any opposing order.
// Orders of o's owner are skipped as they are when matching.
func (b *Book) crosses(o Order) bool {
	crossed := false
	b.side(o.Side.Opposite()).Ascend(func(e Entry) bool {
		if !b.acceptable(o, e.Price) {
			return false
		}
		if e.Owner == o.Owner {
			return true
		}
		crossed = true
		return false
	})
	return crossed
}

// Cancel removes a resting order. It fails with domain.ErrNotFound when
// the order already filled or was cancelled.
func (b *Book) Cancel(orderID uint64) (Entry, error) {
	e, ok := b.Lookup(orderID)
	if !ok {
		return Entry{}, fmt.Errorf("order %d: %w", orderID, domain.ErrNotFound)
	}
	b.remove(e)
	return e, nil
}

// Simulation is the result of a read-only walk of one side of the book.
type Simulation struct {
	Filled   int64
	Notional int64 // sum of price * quantity over the walked levels
	Levels   []PriceLevel
}

// Simulate walks the side an order of side and quantity would take from,
// skipping orders owned by owner, without changing the book.
func (b *Book) Simulate(side domain.Side, quantity int64, owner domain.Key) Simulation {
	var sim Simulation
	remaining := quantity
	b.side(side.Opposite()).Ascend(func(e Entry) bool {
		if remaining <= 0 {
			return false
		}
		if e.Owner == owner {
			return true
		}
		qty := min(remaining, e.Remaining)
		remaining -= qty
		sim.Filled += qty
		sim.Notional += e.Price * qty

		if n := len(sim.Levels); n > 0 && sim.Levels[n-1].Price == e.Price {
			sim.Levels[n-1].TotalQuantity += qty
			sim.Levels[n-1].OrderCount++
		} else {
			sim.Levels = append(sim.Levels, PriceLevel{Price: e.Price, TotalQuantity: qty, OrderCount: 1})
		}
		return remaining > 0
	})
	return sim
}
