// Package registry holds the venue's group configuration: the catalogue of
// collateral assets, their oracle bindings, and the listed spot and perp
// markets. Lists only grow; an index handed out once identifies the same
// entry for the life of the venue.
package registry

import (
	"fmt"

	"github.com/efreitasn/crossmargin/internal/domain"
)

// AssetDescriptor describes one collateral asset.
type AssetDescriptor struct {
	Mint      domain.Key
	Oracle    domain.OracleID
	HasOracle bool
	Decimals  uint8

	MaintAssetWeight domain.Ratio
	InitAssetWeight  domain.Ratio
	MaintLiabWeight  domain.Ratio
	InitLiabWeight   domain.Ratio

	// Annual borrow rate curve: OptimalRate at OptimalUtil, MaxRate at 100%.
	OptimalUtil domain.Ratio
	OptimalRate domain.Ratio
	MaxRate     domain.Ratio
}

// SpotMarketDescriptor describes a spot market whose matching happens on
// an external exchange. Its margin weights are those of its base asset.
type SpotMarketDescriptor struct {
	External domain.Key
	Base     domain.AssetID
}

// PerpMarketDescriptor describes a perpetual-futures market.
type PerpMarketDescriptor struct {
	Base        domain.AssetID
	BaseLotSize int64 // base native units per lot
	TickSize    int64 // quote native units per lot; order prices are multiples of it

	MaintAssetWeight domain.Ratio
	InitAssetWeight  domain.Ratio
	MaintLiabWeight  domain.Ratio
	InitLiabWeight   domain.Ratio

	MaxFundingRate domain.Ratio // per day
}

// Registry is the fixed-size group configuration record.
type Registry struct {
	Admin domain.Key

	NumOracles     uint16
	NumAssets      uint16
	NumSpotMarkets uint16
	NumPerpMarkets uint16

	Oracles     [domain.MaxPairs]domain.Key
	Assets      [domain.MaxTokens]AssetDescriptor
	SpotMarkets [domain.MaxPairs]SpotMarketDescriptor
	PerpMarkets [domain.MaxPairs]PerpMarketDescriptor
}

// New bootstraps a registry whose asset 0 is the quote asset.
func New(admin, quoteMint domain.Key, quoteDecimals uint8) *Registry {
	r := &Registry{Admin: admin, NumAssets: 1}
	r.Assets[domain.QuoteAsset] = AssetDescriptor{
		Mint:             quoteMint,
		Decimals:         quoteDecimals,
		MaintAssetWeight: domain.RatioOne,
		InitAssetWeight:  domain.RatioOne,
		MaintLiabWeight:  domain.RatioOne,
		InitLiabWeight:   domain.RatioOne,
	}
	return r
}

func (r *Registry) authorize(caller domain.Key) error {
	if caller != r.Admin {
		return domain.ErrUnauthorized
	}
	return nil
}

// AddOracle binds a new oracle source and returns its id.
func (r *Registry) AddOracle(caller, oracle domain.Key) (domain.OracleID, error) {
	if err := r.authorize(caller); err != nil {
		return 0, err
	}
	if int(r.NumOracles) >= len(r.Oracles) {
		return 0, fmt.Errorf("oracles: %w", domain.ErrRegistryFull)
	}
	if oracle.IsZero() {
		return 0, &domain.ValidationError{Message: "oracle key must be set"}
	}
	id := domain.OracleID(r.NumOracles)
	r.Oracles[id] = oracle
	r.NumOracles++
	return id, nil
}

// AddAsset appends a collateral asset. Its oracle must already be bound.
func (r *Registry) AddAsset(caller domain.Key, desc AssetDescriptor) (domain.AssetID, error) {
	if err := r.authorize(caller); err != nil {
		return 0, err
	}
	if int(r.NumAssets) >= len(r.Assets) {
		return 0, fmt.Errorf("assets: %w", domain.ErrRegistryFull)
	}
	if !desc.HasOracle || desc.Oracle >= domain.OracleID(r.NumOracles) {
		return 0, fmt.Errorf("asset oracle %d: %w", desc.Oracle, domain.ErrUnknownOracle)
	}
	if err := validateWeights(desc.MaintAssetWeight, desc.InitAssetWeight, desc.MaintLiabWeight, desc.InitLiabWeight); err != nil {
		return 0, err
	}
	if desc.OptimalUtil <= 0 || desc.OptimalUtil >= domain.RatioOne {
		return 0, &domain.ValidationError{Message: "optimal_util must be in (0, 1)"}
	}
	if desc.OptimalRate < 0 || desc.MaxRate < desc.OptimalRate {
		return 0, &domain.ValidationError{Message: "rates must satisfy 0 <= optimal_rate <= max_rate"}
	}
	id := domain.AssetID(r.NumAssets)
	r.Assets[id] = desc
	r.NumAssets++
	return id, nil
}

// AddSpotMarket lists a spot market over an already priced base asset.
func (r *Registry) AddSpotMarket(caller domain.Key, desc SpotMarketDescriptor) (domain.MarketID, error) {
	if err := r.authorize(caller); err != nil {
		return 0, err
	}
	if int(r.NumSpotMarkets) >= len(r.SpotMarkets) {
		return 0, fmt.Errorf("spot markets: %w", domain.ErrRegistryFull)
	}
	if err := r.requirePriced(desc.Base); err != nil {
		return 0, err
	}
	if desc.External.IsZero() {
		return 0, &domain.ValidationError{Message: "external market key must be set"}
	}
	id := domain.MarketID(r.NumSpotMarkets)
	r.SpotMarkets[id] = desc
	r.NumSpotMarkets++
	return id, nil
}

// AddPerpMarket lists a perp market over an already priced base asset.
func (r *Registry) AddPerpMarket(caller domain.Key, desc PerpMarketDescriptor) (domain.MarketID, error) {
	if err := r.authorize(caller); err != nil {
		return 0, err
	}
	if int(r.NumPerpMarkets) >= len(r.PerpMarkets) {
		return 0, fmt.Errorf("perp markets: %w", domain.ErrRegistryFull)
	}
	if err := r.requirePriced(desc.Base); err != nil {
		return 0, err
	}
	if desc.BaseLotSize <= 0 || desc.TickSize <= 0 {
		return 0, &domain.ValidationError{Message: "base_lot_size and tick_size must be positive"}
	}
	if err := validateWeights(desc.MaintAssetWeight, desc.InitAssetWeight, desc.MaintLiabWeight, desc.InitLiabWeight); err != nil {
		return 0, err
	}
	if desc.MaxFundingRate < 0 {
		return 0, &domain.ValidationError{Message: "max_funding_rate must be >= 0"}
	}
	id := domain.MarketID(r.NumPerpMarkets)
	r.PerpMarkets[id] = desc
	r.NumPerpMarkets++
	return id, nil
}

// requirePriced fails unless id is a non-quote asset with an oracle binding.
func (r *Registry) requirePriced(id domain.AssetID) error {
	if id == domain.QuoteAsset || id >= domain.AssetID(r.NumAssets) {
		return fmt.Errorf("base asset %d: %w", id, domain.ErrUnknownAsset)
	}
	if !r.Assets[id].HasOracle {
		return fmt.Errorf("base asset %d: %w", id, domain.ErrUnknownOracle)
	}
	return nil
}

func validateWeights(maintAsset, initAsset, maintLiab, initLiab domain.Ratio) error {
	if !(0 <= initAsset && initAsset <= maintAsset && maintAsset <= domain.RatioOne) {
		return &domain.ValidationError{Message: "asset weights must satisfy 0 <= init <= maint <= 1"}
	}
	if !(domain.RatioOne <= maintLiab && maintLiab <= initLiab) {
		return &domain.ValidationError{Message: "liability weights must satisfy 1 <= maint <= init"}
	}
	return nil
}

// Asset returns the descriptor for id.
func (r *Registry) Asset(id domain.AssetID) (AssetDescriptor, error) {
	if id >= domain.AssetID(r.NumAssets) {
		return AssetDescriptor{}, fmt.Errorf("asset %d: %w", id, domain.ErrUnknownAsset)
	}
	return r.Assets[id], nil
}

// SpotMarket returns the descriptor for id.
func (r *Registry) SpotMarket(id domain.MarketID) (SpotMarketDescriptor, error) {
	if id >= domain.MarketID(r.NumSpotMarkets) {
		return SpotMarketDescriptor{}, fmt.Errorf("spot market %d: %w", id, domain.ErrUnknownMarket)
	}
	return r.SpotMarkets[id], nil
}

// PerpMarket returns the descriptor for id.
func (r *Registry) PerpMarket(id domain.MarketID) (PerpMarketDescriptor, error) {
	if id >= domain.MarketID(r.NumPerpMarkets) {
		return PerpMarketDescriptor{}, fmt.Errorf("perp market %d: %w", id, domain.ErrUnknownMarket)
	}
	return r.PerpMarkets[id], nil
}

// OracleKey returns the oracle address bound to id.
func (r *Registry) OracleKey(id domain.OracleID) (domain.Key, error) {
	if id >= domain.OracleID(r.NumOracles) {
		return domain.Key{}, fmt.Errorf("oracle %d: %w", id, domain.ErrUnknownOracle)
	}
	return r.Oracles[id], nil
}
