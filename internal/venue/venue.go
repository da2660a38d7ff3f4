// Package venue is the request surface of the cross-margined venue. Every
// exported operation runs to completion under one lock and either commits
// all of its changes or none of them.
package venue

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/crossmargin/internal/account"
	"github.com/efreitasn/crossmargin/internal/clock"
	"github.com/efreitasn/crossmargin/internal/domain"
	"github.com/efreitasn/crossmargin/internal/engine"
	"github.com/efreitasn/crossmargin/internal/metrics"
	"github.com/efreitasn/crossmargin/internal/oracle"
	"github.com/efreitasn/crossmargin/internal/pricecache"
	"github.com/efreitasn/crossmargin/internal/registry"
	"github.com/efreitasn/crossmargin/internal/spot"
	"github.com/efreitasn/crossmargin/internal/store"
)

// Config holds the venue parameters that are fixed for a process.
type Config struct {
	Admin         domain.Key
	QuoteMint     domain.Key
	QuoteDecimals uint8

	// StalenessBound is the oldest, in sequence steps, a cache entry may be
	// and still back a margin decision.
	StalenessBound uint64
	// MaxBookOrders is the resting-order capacity of every perp book.
	MaxBookOrders int
	// StepBudget bounds the matching work of one order. The process always
	// sets it; zero disables the bound.
	StepBudget int
}

// Venue owns every piece of venue state.
type Venue struct {
	mu  sync.Mutex
	cfg Config
	log *slog.Logger

	reg      *registry.Registry
	cache    *pricecache.Cache
	clock    *clock.Clock
	books    *engine.BookManager
	accounts *store.AccountStore
	fills    *store.FillStore

	feed   oracle.Feed
	valuer spot.Valuer
}

// New creates an empty venue whose only asset is the quote asset.
func New(cfg Config, feed oracle.Feed, valuer spot.Valuer, clk *clock.Clock, log *slog.Logger) *Venue {
	return &Venue{
		cfg:      cfg,
		log:      log,
		reg:      registry.New(cfg.Admin, cfg.QuoteMint, cfg.QuoteDecimals),
		cache:    pricecache.New(),
		clock:    clk,
		books:    engine.NewBookManager(),
		accounts: store.NewAccountStore(),
		fills:    store.NewFillStore(),
		feed:     feed,
		valuer:   valuer,
	}
}

func (v *Venue) view() pricecache.View {
	return v.cache.View(v.clock.Now(), v.cfg.StalenessBound)
}

func (v *Venue) reject(op string, err error, attrs ...any) error {
	metrics.ObserveRejection(op, err)
	v.log.Debug(op+" rejected", append(attrs, "error", err)...)
	return err
}

// AddOracle binds a new oracle address.
func (v *Venue) AddOracle(caller, key domain.Key) (domain.OracleID, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	id, err := v.reg.AddOracle(caller, key)
	if err != nil {
		return 0, v.reject("add_oracle", err)
	}
	v.log.Info("oracle added", "oracle_id", id, "key", key.String())
	return id, nil
}

// AddAsset lists a collateral asset.
func (v *Venue) AddAsset(caller domain.Key, desc registry.AssetDescriptor) (domain.AssetID, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	id, err := v.reg.AddAsset(caller, desc)
	if err != nil {
		return 0, v.reject("add_asset", err)
	}
	v.log.Info("asset added", "asset_id", id, "mint", desc.Mint.String())
	return id, nil
}

// AddSpotMarket lists a spot market matched on the external exchange.
func (v *Venue) AddSpotMarket(caller domain.Key, desc registry.SpotMarketDescriptor) (domain.MarketID, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	id, err := v.reg.AddSpotMarket(caller, desc)
	if err != nil {
		return 0, v.reject("add_spot_market", err)
	}
	v.log.Info("spot market added", "market_id", id, "base", desc.Base)
	return id, nil
}

// AddPerpMarket lists a perp market and creates its empty book.
func (v *Venue) AddPerpMarket(caller domain.Key, desc registry.PerpMarketDescriptor) (domain.MarketID, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	id, err := v.reg.AddPerpMarket(caller, desc)
	if err != nil {
		return 0, v.reject("add_perp_market", err)
	}
	v.books.Add(engine.NewBook(id, v.cfg.MaxBookOrders, v.clock.Now()))
	v.log.Info("perp market added", "market_id", id, "base", desc.Base,
		"base_lot_size", desc.BaseLotSize, "tick_size", desc.TickSize)
	return id, nil
}

// Registry returns a copy of the group configuration.
func (v *Venue) Registry() registry.Registry {
	v.mu.Lock()
	defer v.mu.Unlock()
	return *v.reg
}

// OpenAccount creates an empty margin account for owner.
func (v *Venue) OpenAccount(owner domain.Key) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if owner.IsZero() {
		return v.reject("open_account", &domain.ValidationError{Message: "owner must be set"})
	}
	if err := v.accounts.Create(account.New(owner)); err != nil {
		return v.reject("open_account", err, "owner", owner.String())
	}
	v.log.Info("account opened", "owner", owner.String())
	return nil
}

// Account returns a copy of owner's account.
func (v *Venue) Account(owner domain.Key) (account.Account, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	a, err := v.accounts.Get(owner)
	if err != nil {
		return account.Account{}, err
	}
	return *a, nil
}

// Margin computes owner's margin report from the cache.
func (v *Venue) Margin(owner domain.Key) (account.Report, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	a, err := v.accounts.Get(owner)
	if err != nil {
		return account.Report{}, err
	}
	return a.Margin(v.reg, v.view(), v.valuer)
}

// Snapshot is an account together with its native balances and, when
// every price it needs is fresh, its margin report.
type Snapshot struct {
	Account  account.Account
	Balances []decimal.Decimal // by asset id
	Margin   *account.Report
	// MarginErr is why Margin is nil.
	MarginErr error
}

// Snapshot returns owner's account as of the last cached indexes. A stale
// price does not fail the call; it leaves Margin unset.
func (v *Venue) Snapshot(owner domain.Key) (Snapshot, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	a, err := v.accounts.Get(owner)
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{Account: *a, Balances: make([]decimal.Decimal, v.reg.NumAssets)}
	for i := range snap.Balances {
		dep, bor := v.cache.Indexes(domain.AssetID(i))
		snap.Balances[i] = a.Native(domain.AssetID(i), dep, bor)
	}
	report, err := a.Margin(v.reg, v.view(), v.valuer)
	if err != nil {
		snap.MarginErr = err
	} else {
		snap.Margin = &report
	}
	return snap, nil
}

// Depth is an aggregated view of one perp book.
type Depth struct {
	Market       domain.MarketID
	Bids         []engine.PriceLevel
	Asks         []engine.PriceLevel
	Funding      int64
	OpenInterest int64
}

// Depth returns up to levels aggregated price levels per side.
func (v *Venue) Depth(market domain.MarketID, levels int) (Depth, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	book, err := v.books.Get(market)
	if err != nil {
		return Depth{}, err
	}
	return Depth{
		Market:       market,
		Bids:         book.TopBids(levels),
		Asks:         book.TopAsks(levels),
		Funding:      book.Funding(),
		OpenInterest: book.OpenInterest(),
	}, nil
}

// Fills returns the fill log of a perp market, oldest first.
func (v *Venue) Fills(market domain.MarketID) ([]domain.Fill, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if _, err := v.books.Get(market); err != nil {
		return nil, err
	}
	return v.fills.GetByMarket(market), nil
}

// Now returns the global sequence.
func (v *Venue) Now() uint64 {
	return v.clock.Now()
}

// AdvanceSequence moves the global sequence forward by n steps.
func (v *Venue) AdvanceSequence(n uint64) uint64 {
	if n == 0 {
		return v.clock.Now()
	}
	return v.clock.Advance(n)
}

func (v *Venue) perpMarket(market domain.MarketID) (registry.PerpMarketDescriptor, *engine.Book, error) {
	desc, err := v.reg.PerpMarket(market)
	if err != nil {
		return desc, nil, err
	}
	book, err := v.books.Get(market)
	if err != nil {
		return desc, nil, fmt.Errorf("perp market %d has no book: %w", market, err)
	}
	return desc, book, nil
}
