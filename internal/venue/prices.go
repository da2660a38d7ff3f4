package venue

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/crossmargin/internal/domain"
	"github.com/efreitasn/crossmargin/internal/metrics"
	"github.com/efreitasn/crossmargin/internal/registry"
)

// RefreshPrices re-reads the oracle of every listed asset and snapshots the
// funding of every listed perp market, stamping the current sequence. All
// feeds are read before anything is written, so a failing feed leaves the
// cache untouched.
func (v *Venue) RefreshPrices(ctx context.Context, assets []domain.AssetID, perps []domain.MarketID) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	type quote struct {
		id    domain.AssetID
		desc  registry.AssetDescriptor
		price domain.Price
	}
	quotes := make([]quote, 0, len(assets))
	for _, id := range assets {
		desc, err := v.reg.Asset(id)
		if err != nil {
			return v.reject("refresh_prices", err)
		}
		if id == domain.QuoteAsset {
			quotes = append(quotes, quote{id, desc, domain.PriceOne})
			continue
		}
		key, err := v.reg.OracleKey(desc.Oracle)
		if err != nil {
			return v.reject("refresh_prices", err)
		}
		price, err := v.feed.Price(ctx, key)
		if err != nil {
			return v.reject("refresh_prices", fmt.Errorf("reading oracle for asset %d: %w", id, err))
		}
		if price <= 0 {
			return v.reject("refresh_prices", &domain.ValidationError{
				Message: fmt.Sprintf("oracle for asset %d published non-positive price %d", id, price),
			})
		}
		quotes = append(quotes, quote{id, desc, price})
	}

	fundings := make([]int64, len(perps))
	for i, id := range perps {
		_, book, err := v.perpMarket(id)
		if err != nil {
			return v.reject("refresh_prices", err)
		}
		fundings[i] = book.Funding()
	}

	now := v.clock.Now()
	for _, q := range quotes {
		v.cache.RefreshAsset(q.id, q.desc, q.price, now)
	}
	for i, id := range perps {
		v.cache.RefreshPerp(id, fundings[i], now)
	}
	metrics.ObserveRefresh("asset", len(quotes))
	metrics.ObserveRefresh("perp", len(perps))
	v.log.Debug("prices refreshed", "assets", len(quotes), "perps", len(perps), "sequence", now)
	return nil
}

// UpdateFunding accrues funding on a perp market from its book against the
// cached oracle price of its base asset, and returns the new cumulative
// funding. Accounts pick it up when their position next changes.
func (v *Venue) UpdateFunding(ctx context.Context, market domain.MarketID) (int64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return 0, err
	}
	desc, book, err := v.perpMarket(market)
	if err != nil {
		return 0, v.reject("update_funding", err)
	}
	snap, err := v.view().Asset(desc.Base)
	if err != nil {
		return 0, v.reject("update_funding", err, "market", market)
	}
	index := snap.Price.Decimal().Mul(decimal.NewFromInt(desc.BaseLotSize))
	funding := book.UpdateFunding(index, v.clock.Now(), desc.MaxFundingRate)
	v.log.Info("funding updated", "market", market, "funding", funding)
	return funding, nil
}
