package venue

import (
	"context"
	"fmt"

	"github.com/efreitasn/crossmargin/internal/domain"
)

// CancelPerpOrder removes one of owner's resting orders from the book and
// from the account's open-order slots together. It fails with
// domain.ErrNotFound if the order already filled, was cancelled, or belongs
// to someone else.
func (v *Venue) CancelPerpOrder(ctx context.Context, owner domain.Key, market domain.MarketID, orderID uint64) (CancelResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return CancelResult{}, err
	}
	res, err := v.cancel(owner, market, orderID)
	if err != nil {
		return CancelResult{}, v.reject("cancel_perp_order", err,
			"owner", owner.String(), "market", market, "order_id", orderID)
	}
	v.log.Info("perp order cancelled", "owner", owner.String(), "market", market,
		"order_id", orderID, "cancelled", res.Cancelled)
	return res, nil
}

// CancelPerpOrderByClientID cancels the resting order owner tagged with
// clientID.
func (v *Venue) CancelPerpOrderByClientID(ctx context.Context, owner domain.Key, market domain.MarketID, clientID uint64) (CancelResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return CancelResult{}, err
	}
	acct, err := v.accounts.Get(owner)
	if err != nil {
		return CancelResult{}, v.reject("cancel_perp_order", err)
	}
	if _, err := v.reg.PerpMarket(market); err != nil {
		return CancelResult{}, v.reject("cancel_perp_order", err)
	}
	o, ok := acct.Perp(market).OrderByClientID(clientID)
	if !ok {
		return CancelResult{}, v.reject("cancel_perp_order",
			fmt.Errorf("client id %d: %w", clientID, domain.ErrNotFound), "owner", owner.String())
	}
	res, err := v.cancel(owner, market, o.OrderID)
	if err != nil {
		return CancelResult{}, v.reject("cancel_perp_order", err, "owner", owner.String())
	}
	v.log.Info("perp order cancelled", "owner", owner.String(), "market", market,
		"order_id", o.OrderID, "client_id", clientID, "cancelled", res.Cancelled)
	return res, nil
}

func (v *Venue) cancel(owner domain.Key, market domain.MarketID, orderID uint64) (CancelResult, error) {
	acct, err := v.accounts.Get(owner)
	if err != nil {
		return CancelResult{}, err
	}
	_, book, err := v.perpMarket(market)
	if err != nil {
		return CancelResult{}, err
	}
	e, ok := book.Lookup(orderID)
	if !ok || e.Owner != owner {
		return CancelResult{}, fmt.Errorf("order %d: %w", orderID, domain.ErrNotFound)
	}
	p := acct.Perp(market)
	if _, ok := p.Order(orderID); !ok {
		return CancelResult{}, fmt.Errorf("order %d has no open-order slot: %w", orderID, domain.ErrNotFound)
	}

	if _, err := book.Cancel(orderID); err != nil {
		return CancelResult{}, err
	}
	p.RemoveOrder(orderID, e.Price, e.Remaining)
	return CancelResult{
		OrderID:   orderID,
		ClientID:  e.ClientID,
		Side:      e.Side,
		Price:     e.Price,
		Cancelled: e.Remaining,
	}, nil
}
