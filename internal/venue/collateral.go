package venue

import (
	"context"
	"fmt"

	"github.com/efreitasn/crossmargin/internal/domain"
)

// Deposit credits amount native units of asset to owner. It needs no
// valuation and therefore never fails on staleness.
func (v *Venue) Deposit(ctx context.Context, owner domain.Key, asset domain.AssetID, amount int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	acct, err := v.accounts.Get(owner)
	if err != nil {
		return v.reject("deposit", err, "owner", owner.String())
	}
	if _, err := v.reg.Asset(asset); err != nil {
		return v.reject("deposit", err, "owner", owner.String())
	}
	dep, bor := v.cache.Indexes(asset)
	flow, err := acct.Deposit(asset, amount, dep, bor)
	if err != nil {
		return v.reject("deposit", err, "owner", owner.String())
	}
	v.cache.RecordFlow(asset, flow.DepositUnits, flow.BorrowUnits)
	v.log.Info("deposit", "owner", owner.String(), "asset", asset, "amount", amount)
	return nil
}

// Withdraw debits amount native units of asset from owner. The withdrawal
// is valued on a copy of the account first; if the copy would end up below
// its maintenance requirement nothing changes and
// domain.ErrInsufficientCollateral is returned.
func (v *Venue) Withdraw(ctx context.Context, owner domain.Key, asset domain.AssetID, amount int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	acct, err := v.accounts.Get(owner)
	if err != nil {
		return v.reject("withdraw", err, "owner", owner.String())
	}
	if _, err := v.reg.Asset(asset); err != nil {
		return v.reject("withdraw", err, "owner", owner.String())
	}
	view := v.view()
	snap, err := view.Asset(asset)
	if err != nil {
		return v.reject("withdraw", err, "owner", owner.String())
	}

	scratch := *acct
	flow, err := scratch.Withdraw(asset, amount, snap.DepositIndex, snap.BorrowIndex)
	if err != nil {
		return v.reject("withdraw", err, "owner", owner.String())
	}
	report, err := scratch.Margin(v.reg, view, v.valuer)
	if err != nil {
		return v.reject("withdraw", err, "owner", owner.String())
	}
	if report.MaintHealth().IsNegative() {
		err := fmt.Errorf("withdrawing %d of asset %d leaves equity %s under requirement %s: %w",
			amount, asset, report.Equity, report.MaintRequirement, domain.ErrInsufficientCollateral)
		return v.reject("withdraw", err, "owner", owner.String())
	}

	*acct = scratch
	v.cache.RecordFlow(asset, flow.DepositUnits, flow.BorrowUnits)
	v.log.Info("withdrawal", "owner", owner.String(), "asset", asset, "amount", amount)
	return nil
}

// AcquireBasketSlot records that owner holds a position on spot market
// through the external open-orders account ref. It fails with
// domain.ErrBasketFull when every slot is taken.
func (v *Venue) AcquireBasketSlot(owner domain.Key, market domain.MarketID, ref domain.Key) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	acct, err := v.accounts.Get(owner)
	if err != nil {
		return 0, v.reject("acquire_basket_slot", err)
	}
	if _, err := v.reg.SpotMarket(market); err != nil {
		return 0, v.reject("acquire_basket_slot", err)
	}
	if ref.IsZero() {
		return 0, v.reject("acquire_basket_slot", &domain.ValidationError{Message: "delegation must be set"})
	}
	slot, err := acct.AcquireBasketSlot(market, ref)
	if err != nil {
		return 0, v.reject("acquire_basket_slot", err, "owner", owner.String(), "market", market)
	}
	v.log.Info("basket slot acquired", "owner", owner.String(), "market", market, "slot", slot)
	return slot, nil
}

// ReleaseBasketSlot clears owner's slot for market once the external
// position it references values to zero. Releasing an empty slot is a
// no-op; releasing a slot that still holds value fails with
// domain.ErrBasketSlotInUse.
func (v *Venue) ReleaseBasketSlot(owner domain.Key, market domain.MarketID) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	acct, err := v.accounts.Get(owner)
	if err != nil {
		return v.reject("release_basket_slot", err)
	}
	slot, ok := acct.BasketSlot(market)
	if !ok {
		return nil
	}
	h, err := v.valuer.Holdings(market, slot.Delegation)
	if err != nil {
		return v.reject("release_basket_slot", fmt.Errorf("valuing spot market %d: %w", market, err))
	}
	if !h.IsZero() {
		return v.reject("release_basket_slot",
			fmt.Errorf("spot market %d still holds value: %w", market, domain.ErrBasketSlotInUse),
			"owner", owner.String())
	}
	acct.ReleaseBasketSlot(market)
	v.log.Info("basket slot released", "owner", owner.String(), "market", market)
	return nil
}
