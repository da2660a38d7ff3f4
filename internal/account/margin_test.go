package account

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/crossmargin/internal/domain"
	"github.com/efreitasn/crossmargin/internal/pricecache"
	"github.com/efreitasn/crossmargin/internal/registry"
	"github.com/efreitasn/crossmargin/internal/spot"
)

var admin = domain.KeyFromString("admin")

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func ratio(s string) domain.Ratio {
	return domain.RatioFromDecimal(decimal.RequireFromString(s))
}

// fixture lists BTC (asset 1) at 100 quote per native unit, one spot
// market and one perp market over it, and refreshes everything at
// sequence 10.
type fixture struct {
	reg    *registry.Registry
	cache  *pricecache.Cache
	ledger *spot.Ledger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := registry.New(admin, domain.KeyFromString("usdc"), 6)
	oracle, err := reg.AddOracle(admin, domain.KeyFromString("btc-oracle"))
	if err != nil {
		t.Fatal(err)
	}
	btc, err := reg.AddAsset(admin, registry.AssetDescriptor{
		Mint:             domain.KeyFromString("btc"),
		Oracle:           oracle,
		HasOracle:        true,
		Decimals:         8,
		MaintAssetWeight: ratio("0.9"),
		InitAssetWeight:  ratio("0.8"),
		MaintLiabWeight:  ratio("1.1"),
		InitLiabWeight:   ratio("1.2"),
		OptimalUtil:      ratio("0.5"),
		OptimalRate:      ratio("0.1"),
		MaxRate:          ratio("1"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := reg.AddSpotMarket(admin, registry.SpotMarketDescriptor{
		External: domain.KeyFromString("btc-usdc-spot"),
		Base:     btc,
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.AddPerpMarket(admin, registry.PerpMarketDescriptor{
		Base:             btc,
		BaseLotSize:      1,
		TickSize:         1,
		MaintAssetWeight: ratio("0.95"),
		InitAssetWeight:  ratio("0.9"),
		MaintLiabWeight:  ratio("1.05"),
		InitLiabWeight:   ratio("1.1"),
		MaxFundingRate:   ratio("0.05"),
	}); err != nil {
		t.Fatal(err)
	}

	c := pricecache.New()
	c.RefreshAsset(domain.QuoteAsset, reg.Assets[0], domain.PriceOne, 10)
	c.RefreshAsset(btc, reg.Assets[btc], 100*domain.PriceOne, 10)
	c.RefreshPerp(0, 0, 10)
	return &fixture{reg: reg, cache: c, ledger: spot.NewLedger()}
}

func (f *fixture) margin(t *testing.T, a *Account) Report {
	t.Helper()
	r, err := a.Margin(f.reg, f.cache.View(10, 5), f.ledger)
	if err != nil {
		t.Fatalf("Margin: %v", err)
	}
	return r
}

func assertDec(t *testing.T, name string, got decimal.Decimal, want int64) {
	t.Helper()
	if !got.Equal(dec(want)) {
		t.Errorf("%s = %s, want %d", name, got, want)
	}
}

func TestMargin_Empty(t *testing.T) {
	f := newFixture(t)
	r := f.margin(t, New(owner))
	assertDec(t, "equity", r.Equity, 0)
	assertDec(t, "maint requirement", r.MaintRequirement, 0)
}

func TestMargin_WeightsCollateral(t *testing.T) {
	f := newFixture(t)
	a := New(owner)
	mustDeposit(t, a, 0, 1000)
	mustDeposit(t, a, 1, 5)

	r := f.margin(t, a)
	assertDec(t, "equity", r.Equity, 1500)
	assertDec(t, "maint requirement", r.MaintRequirement, 50)
	assertDec(t, "init requirement", r.InitRequirement, 100)
	assertDec(t, "maint health", r.MaintHealth(), 1450)
}

func TestMargin_BorrowUsesLiabilityWeight(t *testing.T) {
	f := newFixture(t)
	a := New(owner)
	mustDeposit(t, a, 0, 1000)
	if _, err := a.Withdraw(1, 2, domain.IndexOne, domain.IndexOne); err != nil {
		t.Fatal(err)
	}

	r := f.margin(t, a)
	assertDec(t, "equity", r.Equity, 800)
	// 1000 - 200*1.1
	assertDec(t, "maint health", r.MaintHealth(), 780)
	assertDec(t, "init health", r.InitHealth(), 760)
}

func TestMargin_BasketValuesDelegation(t *testing.T) {
	f := newFixture(t)
	a := New(owner)
	ref := domain.KeyFromString("oo-1")
	if _, err := a.AcquireBasketSlot(0, ref); err != nil {
		t.Fatal(err)
	}
	f.ledger.Set(0, ref, spot.Holdings{BaseTotal: 2, QuoteTotal: 50})

	r := f.margin(t, a)
	assertDec(t, "equity", r.Equity, 250)
	assertDec(t, "maint health", r.MaintHealth(), 230)
}

func TestMargin_PerpWorstCase(t *testing.T) {
	f := newFixture(t)
	a := New(owner)
	mustDeposit(t, a, 0, 1000)
	p := a.Perp(0)
	p.ApplyFill(domain.SideBid, 75, 2)

	r := f.margin(t, a)
	assertDec(t, "equity", r.Equity, 1050)
	assertDec(t, "maint health", r.MaintHealth(), 1040)

	// All asks filled leaves 1 long at quote -40: 95-40 = 55.
	if err := p.AddOrder(1, 0, domain.SideAsk, 110, 1); err != nil {
		t.Fatal(err)
	}
	assertDec(t, "maint health with ask", f.margin(t, a).MaintHealth(), 1040)

	// All bids filled leaves 5 long at quote -450: 475-450 = 25.
	if err := p.AddOrder(2, 0, domain.SideBid, 100, 3); err != nil {
		t.Fatal(err)
	}
	r = f.margin(t, a)
	assertDec(t, "maint health with bid", r.MaintHealth(), 1025)
	assertDec(t, "equity with orders", r.Equity, 1050)
}

func TestMargin_ShortPerp(t *testing.T) {
	f := newFixture(t)
	a := New(owner)
	a.Perp(0).ApplyFill(domain.SideAsk, 100, 2)

	r := f.margin(t, a)
	assertDec(t, "equity", r.Equity, 0)
	assertDec(t, "maint health", r.MaintHealth(), -10)
}

func TestMargin_UnsettledFunding(t *testing.T) {
	f := newFixture(t)
	a := New(owner)
	mustDeposit(t, a, 0, 1000)
	a.Perp(0).ApplyFill(domain.SideBid, 100, 2)
	f.cache.RefreshPerp(0, 5*domain.FundingScale, 10)

	r := f.margin(t, a)
	assertDec(t, "equity", r.Equity, 990)

	a.Perp(0).SettleFunding(5 * domain.FundingScale)
	assertDec(t, "equity after settle", f.margin(t, a).Equity, 990)
}

func TestMargin_StaleSnapshotFails(t *testing.T) {
	f := newFixture(t)
	a := New(owner)
	mustDeposit(t, a, 1, 1)

	_, err := a.Margin(f.reg, f.cache.View(16, 5), f.ledger)
	if !errors.Is(err, domain.ErrStale) {
		t.Fatalf("err = %v, want ErrStale", err)
	}
	if _, err := a.Margin(f.reg, f.cache.View(15, 5), f.ledger); err != nil {
		t.Fatalf("at the bound: %v", err)
	}
}

func TestMargin_IgnoresUnusedStaleEntries(t *testing.T) {
	f := newFixture(t)
	a := New(owner)
	mustDeposit(t, a, 0, 1)
	f.cache.RefreshAsset(0, f.reg.Assets[0], domain.PriceOne, 100)

	// BTC and the perp are stale at 100 but the account does not touch them.
	if _, err := a.Margin(f.reg, f.cache.View(100, 5), f.ledger); err != nil {
		t.Fatalf("Margin: %v", err)
	}
}
