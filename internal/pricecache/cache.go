// Package pricecache keeps the most recently refreshed price, interest
// indexes and funding per asset and perp market. Margin decisions read only
// from here, and only through a View that enforces the staleness bound.
package pricecache

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/crossmargin/internal/domain"
	"github.com/efreitasn/crossmargin/internal/registry"
)

// AssetSnapshot is the cached state of one collateral asset.
type AssetSnapshot struct {
	Price        domain.Price
	DepositIndex domain.Index
	BorrowIndex  domain.Index
	// Bank totals in index units, used for utilisation.
	TotalDeposits int64
	TotalBorrows  int64
	Sequence      uint64
	Valid         bool
}

// PerpSnapshot is the cached state of one perp market.
type PerpSnapshot struct {
	Funding  int64 // cumulative, quote native per lot scaled by FundingScale
	Sequence uint64
	Valid    bool
}

// Cache is the fixed-size price cache record.
type Cache struct {
	Assets [domain.MaxTokens]AssetSnapshot
	Perps  [domain.MaxPairs]PerpSnapshot
}

// New returns a cache with every asset at unit indexes and nothing priced.
func New() *Cache {
	c := &Cache{}
	for i := range c.Assets {
		c.Assets[i].DepositIndex = domain.IndexOne
		c.Assets[i].BorrowIndex = domain.IndexOne
	}
	return c
}

// RefreshAsset accrues interest since the previous refresh, then stores
// price and stamps now.
func (c *Cache) RefreshAsset(id domain.AssetID, desc registry.AssetDescriptor, price domain.Price, now uint64) {
	s := &c.Assets[id]
	if s.Valid && now > s.Sequence {
		accrue(s, desc, now-s.Sequence)
	}
	s.Price = price
	s.Sequence = now
	s.Valid = true
}

// RefreshPerp stores the market's cumulative funding and stamps now.
func (c *Cache) RefreshPerp(id domain.MarketID, funding int64, now uint64) {
	c.Perps[id] = PerpSnapshot{Funding: funding, Sequence: now, Valid: true}
}

// Indexes returns the last known interest indexes for id regardless of age.
// Deposits use it: crediting collateral needs no valuation.
func (c *Cache) Indexes(id domain.AssetID) (deposit, borrow domain.Index) {
	s := c.Assets[id]
	return s.DepositIndex, s.BorrowIndex
}

// RecordFlow adjusts the bank totals of id by the given index-unit deltas.
func (c *Cache) RecordFlow(id domain.AssetID, depositUnits, borrowUnits int64) {
	c.Assets[id].TotalDeposits += depositUnits
	c.Assets[id].TotalBorrows += borrowUnits
}

// View binds the cache to the current global sequence and staleness bound.
func (c *Cache) View(now, bound uint64) View {
	return View{cache: c, now: now, bound: bound}
}

// View is a read-only, staleness-checked window on a Cache.
type View struct {
	cache *Cache
	now   uint64
	bound uint64
}

// Asset returns the snapshot for id, or domain.ErrStale when it was never
// refreshed or is older than the bound.
func (v View) Asset(id domain.AssetID) (AssetSnapshot, error) {
	if int(id) >= len(v.cache.Assets) {
		return AssetSnapshot{}, fmt.Errorf("asset %d: %w", id, domain.ErrUnknownAsset)
	}
	s := v.cache.Assets[id]
	if !v.fresh(s.Valid, s.Sequence) {
		return AssetSnapshot{}, fmt.Errorf("asset %d: %w", id, domain.ErrStale)
	}
	return s, nil
}

// Perp returns the snapshot for id, or domain.ErrStale.
func (v View) Perp(id domain.MarketID) (PerpSnapshot, error) {
	if int(id) >= len(v.cache.Perps) {
		return PerpSnapshot{}, fmt.Errorf("perp market %d: %w", id, domain.ErrUnknownMarket)
	}
	s := v.cache.Perps[id]
	if !v.fresh(s.Valid, s.Sequence) {
		return PerpSnapshot{}, fmt.Errorf("perp market %d: %w", id, domain.ErrStale)
	}
	return s, nil
}

func (v View) fresh(valid bool, seq uint64) bool {
	if !valid || seq > v.now {
		return false
	}
	return v.now-seq <= v.bound
}

// BorrowRate returns the annual borrow rate at the given utilisation:
// linear up to OptimalRate at OptimalUtil, then linear up to MaxRate.
func BorrowRate(desc registry.AssetDescriptor, util decimal.Decimal) decimal.Decimal {
	optUtil := desc.OptimalUtil.Decimal()
	optRate := desc.OptimalRate.Decimal()
	if util.LessThanOrEqual(optUtil) {
		if optUtil.IsZero() {
			return optRate
		}
		return optRate.Mul(util).Div(optUtil)
	}
	extraUtil := util.Sub(optUtil)
	slope := desc.MaxRate.Decimal().Sub(optRate).Div(decimal.NewFromInt(1).Sub(optUtil))
	return optRate.Add(slope.Mul(extraUtil))
}

func accrue(s *AssetSnapshot, desc registry.AssetDescriptor, steps uint64) {
	if s.TotalBorrows == 0 || s.TotalDeposits == 0 {
		return
	}
	deposits := decimal.NewFromInt(s.TotalDeposits).Mul(s.DepositIndex.Decimal())
	borrows := decimal.NewFromInt(s.TotalBorrows).Mul(s.BorrowIndex.Decimal())
	one := decimal.NewFromInt(1)
	util := borrows.Div(deposits)
	if util.GreaterThan(one) {
		util = one
	}
	perStep := BorrowRate(desc, util).
		Mul(decimal.NewFromInt(int64(steps))).
		Div(decimal.NewFromInt(domain.StepsPerYear))
	s.BorrowIndex = domain.IndexFromDecimal(s.BorrowIndex.Decimal().Mul(one.Add(perStep)))
	s.DepositIndex = domain.IndexFromDecimal(s.DepositIndex.Decimal().Mul(one.Add(perStep.Mul(util))))
}
