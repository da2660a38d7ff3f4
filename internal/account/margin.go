package account

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/crossmargin/internal/domain"
	"github.com/efreitasn/crossmargin/internal/pricecache"
	"github.com/efreitasn/crossmargin/internal/registry"
	"github.com/efreitasn/crossmargin/internal/spot"
)

// Prices is the staleness-checked read side of the price cache.
type Prices interface {
	Asset(id domain.AssetID) (pricecache.AssetSnapshot, error)
	Perp(id domain.MarketID) (pricecache.PerpSnapshot, error)
}

// Report is the outcome of a margin computation, in quote native units.
// Health at a level is Equity minus the requirement at that level.
type Report struct {
	Equity           decimal.Decimal
	InitRequirement  decimal.Decimal
	MaintRequirement decimal.Decimal
}

// MaintHealth is Equity - MaintRequirement. Below zero the account is
// liquidatable.
func (r Report) MaintHealth() decimal.Decimal {
	return r.Equity.Sub(r.MaintRequirement)
}

// InitHealth is Equity - InitRequirement.
func (r Report) InitHealth() decimal.Decimal {
	return r.Equity.Sub(r.InitRequirement)
}

type weights struct {
	asset decimal.Decimal
	liab  decimal.Decimal
}

func (w weights) apply(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return v.Mul(w.liab)
	}
	return v.Mul(w.asset)
}

// Margin values every balance, basket delegation and perp position of the
// account. Any snapshot it needs that is stale fails the whole computation.
func (a *Account) Margin(reg *registry.Registry, prices Prices, valuer spot.Valuer) (Report, error) {
	equity := decimal.Zero
	maintH := decimal.Zero
	initH := decimal.Zero

	for i := 0; i < int(reg.NumAssets); i++ {
		id := domain.AssetID(i)
		if a.Deposits[id] == 0 && a.Borrows[id] == 0 {
			continue
		}
		snap, err := prices.Asset(id)
		if err != nil {
			return Report{}, err
		}
		desc := reg.Assets[id]
		value := a.Native(id, snap.DepositIndex, snap.BorrowIndex).Mul(snap.Price.Decimal())
		equity = equity.Add(value)
		maintH = maintH.Add(maintWeights(desc).apply(value))
		initH = initH.Add(initWeights(desc).apply(value))
	}

	for _, slot := range a.Basket {
		if !slot.InUse {
			continue
		}
		market, err := reg.SpotMarket(slot.Market)
		if err != nil {
			return Report{}, err
		}
		h, err := valuer.Holdings(slot.Market, slot.Delegation)
		if err != nil {
			return Report{}, fmt.Errorf("valuing spot market %d: %w", slot.Market, err)
		}
		snap, err := prices.Asset(market.Base)
		if err != nil {
			return Report{}, err
		}
		desc := reg.Assets[market.Base]
		base := decimal.NewFromInt(h.BaseTotal).Mul(snap.Price.Decimal())
		quote := decimal.NewFromInt(h.QuoteTotal)
		equity = equity.Add(base).Add(quote)
		maintH = maintH.Add(maintWeights(desc).apply(base)).Add(quote)
		initH = initH.Add(initWeights(desc).apply(base)).Add(quote)
	}

	for i := 0; i < int(reg.NumPerpMarkets); i++ {
		id := domain.MarketID(i)
		p := &a.Perps[id]
		if p.idle() {
			continue
		}
		desc := reg.PerpMarkets[id]
		fund, err := prices.Perp(id)
		if err != nil {
			return Report{}, err
		}
		snap, err := prices.Asset(desc.Base)
		if err != nil {
			return Report{}, err
		}
		lotPrice := snap.Price.Decimal().Mul(decimal.NewFromInt(desc.BaseLotSize))
		owed := unsettledFunding(p.BasePosition, fund.Funding-p.SettledFunding)

		value := decimal.NewFromInt(p.BasePosition).Mul(lotPrice).Add(decimal.NewFromInt(p.QuotePosition))
		equity = equity.Add(value).Sub(owed)
		maintH = maintH.Add(p.worstCase(lotPrice, weights{desc.MaintAssetWeight.Decimal(), desc.MaintLiabWeight.Decimal()})).Sub(owed)
		initH = initH.Add(p.worstCase(lotPrice, weights{desc.InitAssetWeight.Decimal(), desc.InitLiabWeight.Decimal()})).Sub(owed)
	}

	return Report{
		Equity:           equity,
		MaintRequirement: equity.Sub(maintH),
		InitRequirement:  equity.Sub(initH),
	}, nil
}

// worstCase returns the weighted value of the position assuming either all
// resting bids or all resting asks execute, whichever is worse.
func (p *PerpAccount) worstCase(lotPrice decimal.Decimal, w weights) decimal.Decimal {
	scenario := func(base, quote int64) decimal.Decimal {
		return w.apply(decimal.NewFromInt(base).Mul(lotPrice)).Add(decimal.NewFromInt(quote))
	}
	long := scenario(p.BasePosition+p.BidsQuantity, p.QuotePosition-p.BidsQuote)
	short := scenario(p.BasePosition-p.AsksQuantity, p.QuotePosition+p.AsksQuote)
	return decimal.Min(long, short)
}

func maintWeights(d registry.AssetDescriptor) weights {
	return weights{d.MaintAssetWeight.Decimal(), d.MaintLiabWeight.Decimal()}
}

func initWeights(d registry.AssetDescriptor) weights {
	return weights{d.InitAssetWeight.Decimal(), d.InitLiabWeight.Decimal()}
}
