package account

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/crossmargin/internal/domain"
)

// AddOrder registers a resting order of quantity lots at price. It fails
// with domain.ErrTooManyOpenOrders when every slot is taken.
func (p *PerpAccount) AddOrder(orderID, clientID uint64, side domain.Side, price, quantity int64) error {
	for i := range p.Orders {
		if p.Orders[i].InUse {
			continue
		}
		p.Orders[i] = OpenOrder{OrderID: orderID, ClientID: clientID, Side: side, InUse: true}
		p.Reserve(side, price, quantity)
		return nil
	}
	return fmt.Errorf("order %d: %w", orderID, domain.ErrTooManyOpenOrders)
}

// Reserve adds quantity lots at price to the open-order aggregates without
// taking a slot. The pre-trade check uses it on a scratch copy to value a
// hypothetical order.
func (p *PerpAccount) Reserve(side domain.Side, price, quantity int64) {
	if side == domain.SideBid {
		p.BidsQuantity += quantity
		p.BidsQuote += quantity * price
		return
	}
	p.AsksQuantity += quantity
	p.AsksQuote += quantity * price
}

func (p *PerpAccount) release(side domain.Side, price, quantity int64) {
	p.Reserve(side, price, -quantity)
}

// RemoveOrder drops the slot of orderID and releases its remaining
// quantity from the aggregates. It reports whether the order was found.
func (p *PerpAccount) RemoveOrder(orderID uint64, price, remaining int64) bool {
	i, ok := p.findOrder(orderID)
	if !ok {
		return false
	}
	p.release(p.Orders[i].Side, price, remaining)
	p.Orders[i] = OpenOrder{}
	return true
}

// Order returns the open order with orderID.
func (p *PerpAccount) Order(orderID uint64) (OpenOrder, bool) {
	i, ok := p.findOrder(orderID)
	if !ok {
		return OpenOrder{}, false
	}
	return p.Orders[i], true
}

// OrderByClientID returns the first open order tagged with clientID.
func (p *PerpAccount) OrderByClientID(clientID uint64) (OpenOrder, bool) {
	for _, o := range p.Orders {
		if o.InUse && o.ClientID == clientID {
			return o, true
		}
	}
	return OpenOrder{}, false
}

// OpenOrders returns the number of occupied order slots.
func (p *PerpAccount) OpenOrders() int {
	n := 0
	for _, o := range p.Orders {
		if o.InUse {
			n++
		}
	}
	return n
}

func (p *PerpAccount) findOrder(orderID uint64) (int, bool) {
	for i, o := range p.Orders {
		if o.InUse && o.OrderID == orderID {
			return i, true
		}
	}
	return 0, false
}

// ApplyFill moves the position by quantity lots bought (bid) or sold (ask)
// at price quote native per lot.
func (p *PerpAccount) ApplyFill(side domain.Side, price, quantity int64) {
	p.BasePosition += side.Sign() * quantity
	p.QuotePosition -= side.Sign() * quantity * price
}

// FillMaker applies a fill against one of the account's resting orders.
// When done is set the order left the book and its slot is freed.
func (p *PerpAccount) FillMaker(orderID uint64, side domain.Side, price, quantity int64, done bool) {
	p.ApplyFill(side, price, quantity)
	p.release(side, price, quantity)
	if !done {
		return
	}
	if i, ok := p.findOrder(orderID); ok {
		p.Orders[i] = OpenOrder{}
	}
}

// SettleFunding charges the funding accrued since the last settlement
// against the quote position. It must run before BasePosition changes.
func (p *PerpAccount) SettleFunding(cumulative int64) {
	if p.BasePosition != 0 {
		owed := unsettledFunding(p.BasePosition, cumulative-p.SettledFunding)
		p.QuotePosition -= owed.IntPart()
	}
	p.SettledFunding = cumulative
}

func unsettledFunding(base, delta int64) decimal.Decimal {
	return decimal.NewFromInt(base).Mul(domain.FundingDecimal(delta))
}
