package venue

import (
	"context"
	"fmt"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/exp/zapslog"

	"github.com/efreitasn/crossmargin/internal/clock"
	"github.com/efreitasn/crossmargin/internal/domain"
	"github.com/efreitasn/crossmargin/internal/oracle"
	"github.com/efreitasn/crossmargin/internal/registry"
	"github.com/efreitasn/crossmargin/internal/spot"
)

var (
	admin     = domain.KeyFromString("admin")
	alice     = domain.KeyFromString("alice")
	bob       = domain.KeyFromString("bob")
	carol     = domain.KeyFromString("carol")
	btcOracle = domain.KeyFromString("btc-oracle")
)

const numSpotMarkets = domain.MaxNumInMarginBasket + 1

func ratio(s string) domain.Ratio {
	return domain.RatioFromDecimal(decimal.RequireFromString(s))
}

type harness struct {
	v      *Venue
	feed   *oracle.Stub
	ledger *spot.Ledger
	btc    domain.AssetID
	perp   domain.MarketID
}

// newHarness lists BTC at 10,000 quote per native unit, numSpotMarkets
// spot markets over it, and one perp market with a lot of one native unit
// and a tick of 1. Every cache entry is fresh at sequence 0.
func newHarness(t *testing.T, opts ...func(*Config)) *harness {
	t.Helper()
	cfg := Config{
		Admin:          admin,
		QuoteMint:      domain.KeyFromString("usdc"),
		QuoteDecimals:  6,
		StalenessBound: 10,
		MaxBookOrders:  64,
		StepBudget:     256,
	}
	for _, o := range opts {
		o(&cfg)
	}
	h := &harness{feed: oracle.NewStub(), ledger: spot.NewLedger()}
	log := slog.New(zapslog.NewHandler(zap.NewNop().Core()))
	h.v = New(cfg, h.feed, h.ledger, clock.New(0), log)

	oid, err := h.v.AddOracle(admin, btcOracle)
	require.NoError(t, err)
	h.feed.Set(btcOracle, 10_000*domain.PriceOne)
	h.btc, err = h.v.AddAsset(admin, registry.AssetDescriptor{
		Mint:             domain.KeyFromString("btc"),
		Oracle:           oid,
		HasOracle:        true,
		Decimals:         8,
		MaintAssetWeight: ratio("0.9"),
		InitAssetWeight:  ratio("0.8"),
		MaintLiabWeight:  ratio("1.1"),
		InitLiabWeight:   ratio("1.2"),
		OptimalUtil:      ratio("0.7"),
		OptimalRate:      ratio("0.06"),
		MaxRate:          ratio("1.5"),
	})
	require.NoError(t, err)
	for i := 0; i < numSpotMarkets; i++ {
		_, err := h.v.AddSpotMarket(admin, registry.SpotMarketDescriptor{
			External: domain.KeyFromString(fmt.Sprintf("spot-%d", i)),
			Base:     h.btc,
		})
		require.NoError(t, err)
	}
	h.perp, err = h.v.AddPerpMarket(admin, perpDescriptor(h.btc, 1))
	require.NoError(t, err)
	h.refresh(t)
	return h
}

func perpDescriptor(base domain.AssetID, tick int64) registry.PerpMarketDescriptor {
	return registry.PerpMarketDescriptor{
		Base:             base,
		BaseLotSize:      1,
		TickSize:         tick,
		MaintAssetWeight: ratio("0.95"),
		InitAssetWeight:  ratio("0.9"),
		MaintLiabWeight:  ratio("1.05"),
		InitLiabWeight:   ratio("1.1"),
		MaxFundingRate:   ratio("0.05"),
	}
}

func (h *harness) refresh(t *testing.T) {
	t.Helper()
	require.NoError(t, h.v.RefreshPrices(context.Background(),
		[]domain.AssetID{domain.QuoteAsset, h.btc}, []domain.MarketID{h.perp}))
}

func (h *harness) open(t *testing.T, owner domain.Key, quote int64) {
	t.Helper()
	require.NoError(t, h.v.OpenAccount(owner))
	if quote > 0 {
		require.NoError(t, h.v.Deposit(context.Background(), owner, domain.QuoteAsset, quote))
	}
}

func (h *harness) place(owner domain.Key, side domain.Side, kind domain.OrderKind, price, qty int64) (PlaceResult, error) {
	return h.v.PlacePerpOrder(context.Background(), PlaceOrderRequest{
		Owner:    owner,
		Market:   h.perp,
		Side:     side,
		Kind:     kind,
		Price:    price,
		Quantity: qty,
	})
}

func (h *harness) mustPlace(t *testing.T, owner domain.Key, side domain.Side, price, qty int64) PlaceResult {
	t.Helper()
	res, err := h.place(owner, side, domain.OrderKindLimit, price, qty)
	require.NoError(t, err)
	return res
}

func (h *harness) perpOf(t *testing.T, owner domain.Key) (base, quote int64, open int) {
	t.Helper()
	a, err := h.v.Account(owner)
	require.NoError(t, err)
	p := a.Perps[h.perp]
	return p.BasePosition, p.QuotePosition, p.OpenOrders()
}

func (h *harness) accountBytes(t *testing.T, owner domain.Key) []byte {
	t.Helper()
	a, err := h.v.Account(owner)
	require.NoError(t, err)
	b, err := a.MarshalBinary()
	require.NoError(t, err)
	return b
}

func (h *harness) bookBytes(t *testing.T) []byte {
	t.Helper()
	book, err := h.v.books.Get(h.perp)
	require.NoError(t, err)
	b, err := book.MarshalBinary()
	require.NoError(t, err)
	return b
}

func TestAdmin_RequiresPrivilege(t *testing.T) {
	h := newHarness(t)
	_, err := h.v.AddOracle(alice, domain.KeyFromString("x"))
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	_, err = h.v.AddPerpMarket(alice, registry.PerpMarketDescriptor{Base: h.btc, BaseLotSize: 1, TickSize: 1})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	reg := h.v.Registry()
	assert.EqualValues(t, 1, reg.NumPerpMarkets)
	assert.EqualValues(t, 1, reg.NumOracles)
}

func TestAdmin_MarketNeedsPricedBase(t *testing.T) {
	h := newHarness(t)
	_, err := h.v.AddPerpMarket(admin, registry.PerpMarketDescriptor{
		Base: domain.QuoteAsset, BaseLotSize: 1, TickSize: 1,
		MaintAssetWeight: domain.RatioOne, InitAssetWeight: domain.RatioOne,
		MaintLiabWeight: domain.RatioOne, InitLiabWeight: domain.RatioOne,
	})
	assert.ErrorIs(t, err, domain.ErrUnknownAsset)
	_, err = h.v.Depth(1, 5)
	assert.ErrorIs(t, err, domain.ErrUnknownMarket)
}

func TestOpenAccount(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.v.OpenAccount(alice))
	assert.ErrorIs(t, h.v.OpenAccount(alice), domain.ErrAccountExists)

	var ve *domain.ValidationError
	assert.ErrorAs(t, h.v.OpenAccount(domain.Key{}), &ve)

	_, err := h.v.Account(bob)
	assert.ErrorIs(t, err, domain.ErrAccountNotFound)
}

func TestRefreshPrices_FailingFeedLeavesCacheUntouched(t *testing.T) {
	h := newHarness(t)
	h.open(t, alice, 1000)
	h.v.AdvanceSequence(5)

	missing := oracle.NewStub()
	h.v.feed = missing
	err := h.v.RefreshPrices(context.Background(), []domain.AssetID{domain.QuoteAsset, h.btc}, nil)
	assert.ErrorIs(t, err, oracle.ErrNoPrice)

	// The quote asset was not restamped: six more steps make it stale.
	h.v.AdvanceSequence(6)
	_, err = h.v.Margin(alice)
	assert.ErrorIs(t, err, domain.ErrStale)
}

func TestRefreshPrices_UnknownIDs(t *testing.T) {
	h := newHarness(t)
	err := h.v.RefreshPrices(context.Background(), []domain.AssetID{9}, nil)
	assert.ErrorIs(t, err, domain.ErrUnknownAsset)
	err = h.v.RefreshPrices(context.Background(), nil, []domain.MarketID{4})
	assert.ErrorIs(t, err, domain.ErrUnknownMarket)
}

func TestConcreteScenario(t *testing.T) {
	h := newHarness(t)
	h.open(t, alice, 10_000)
	h.open(t, bob, 10_000)

	res := h.mustPlace(t, alice, domain.SideBid, 10_000, 1)
	assert.Equal(t, int64(1), res.Rested)
	assert.Equal(t, domain.OrderStatusPending, res.Status)
	base, quote, open := h.perpOf(t, alice)
	assert.Equal(t, int64(0), base)
	assert.Equal(t, int64(0), quote)
	assert.Equal(t, 1, open)

	res, err := h.place(bob, domain.SideAsk, domain.OrderKindLimit, 9_000, 1)
	require.NoError(t, err)
	require.Len(t, res.Fills, 1)
	assert.Equal(t, int64(10_000), res.Fills[0].Price)
	assert.Equal(t, domain.OrderStatusFilled, res.Status)

	base, quote, open = h.perpOf(t, alice)
	assert.Equal(t, int64(1), base)
	assert.Equal(t, int64(-10_000), quote)
	assert.Equal(t, 0, open)
	base, quote, _ = h.perpOf(t, bob)
	assert.Equal(t, int64(-1), base)
	assert.Equal(t, int64(10_000), quote)

	depth, err := h.v.Depth(h.perp, 10)
	require.NoError(t, err)
	assert.Empty(t, depth.Bids)
	assert.Empty(t, depth.Asks)
	assert.Equal(t, int64(2), depth.OpenInterest)

	fills, err := h.v.Fills(h.perp)
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.Equal(t, alice, fills[0].Maker)
	assert.Equal(t, bob, fills[0].Taker)
	assert.NotEmpty(t, fills[0].FillID)
}
