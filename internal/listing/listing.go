// Package listing bootstraps a venue from a YAML file that names its
// oracles, assets and markets. Entries refer to each other by name; ids are
// assigned in file order as the registry would assign them.
package listing

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/efreitasn/crossmargin/internal/domain"
	"github.com/efreitasn/crossmargin/internal/registry"
)

// File is the on-disk listing.
type File struct {
	// Quote names the quote asset, which the venue always lists as asset 0.
	Quote       string       `yaml:"quote"`
	Oracles     []Oracle     `yaml:"oracles"`
	Assets      []Asset      `yaml:"assets"`
	SpotMarkets []SpotMarket `yaml:"spot_markets"`
	PerpMarkets []PerpMarket `yaml:"perp_markets"`
}

// Oracle is a price feed address. Key defaults to the name; Price, when
// set, is published to the feed before the first refresh.
type Oracle struct {
	Name  string          `yaml:"name"`
	Key   string          `yaml:"key"`
	Price decimal.Decimal `yaml:"price"`
}

// Weights are the margin weights shared by assets and perp markets.
type Weights struct {
	MaintAsset decimal.Decimal `yaml:"maint_asset"`
	InitAsset  decimal.Decimal `yaml:"init_asset"`
	MaintLiab  decimal.Decimal `yaml:"maint_liab"`
	InitLiab   decimal.Decimal `yaml:"init_liab"`
}

type Asset struct {
	Name        string          `yaml:"name"`
	Mint        string          `yaml:"mint"`
	Oracle      string          `yaml:"oracle"`
	Decimals    uint8           `yaml:"decimals"`
	Weights     Weights         `yaml:"weights"`
	OptimalUtil decimal.Decimal `yaml:"optimal_util"`
	OptimalRate decimal.Decimal `yaml:"optimal_rate"`
	MaxRate     decimal.Decimal `yaml:"max_rate"`
}

type SpotMarket struct {
	Name     string `yaml:"name"`
	External string `yaml:"external"`
	Base     string `yaml:"base"`
}

type PerpMarket struct {
	Name           string          `yaml:"name"`
	Base           string          `yaml:"base"`
	BaseLotSize    int64           `yaml:"base_lot_size"`
	TickSize       int64           `yaml:"tick_size"`
	Weights        Weights         `yaml:"weights"`
	MaxFundingRate decimal.Decimal `yaml:"max_funding_rate"`
}

// Load reads and validates a listing file. Unknown fields are errors.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes and validates a listing document.
func Parse(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decoding listing: %w", err)
	}
	if f.Quote == "" {
		f.Quote = "quote"
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("invalid listing: %w", err)
	}
	return &f, nil
}

// Validate checks that names are set and unique per section and that every
// reference resolves to an earlier entry.
func (f *File) Validate() error {
	oracles := make(map[string]bool, len(f.Oracles))
	for i, o := range f.Oracles {
		if o.Name == "" {
			return fmt.Errorf("oracle %d has no name", i)
		}
		if oracles[o.Name] {
			return fmt.Errorf("oracle %q listed twice", o.Name)
		}
		if o.Key != "" {
			if _, err := domain.ParseKey(o.Key); err != nil {
				return fmt.Errorf("oracle %q: %w", o.Name, err)
			}
		}
		if o.Price.IsNegative() {
			return fmt.Errorf("oracle %q has a negative price", o.Name)
		}
		oracles[o.Name] = true
	}

	assets := map[string]bool{f.Quote: true}
	for i, a := range f.Assets {
		if a.Name == "" {
			return fmt.Errorf("asset %d has no name", i)
		}
		if assets[a.Name] {
			return fmt.Errorf("asset %q listed twice", a.Name)
		}
		if !oracles[a.Oracle] {
			return fmt.Errorf("asset %q: unknown oracle %q", a.Name, a.Oracle)
		}
		if a.Mint != "" {
			if _, err := domain.ParseKey(a.Mint); err != nil {
				return fmt.Errorf("asset %q: %w", a.Name, err)
			}
		}
		assets[a.Name] = true
	}

	spots := make(map[string]bool, len(f.SpotMarkets))
	for i, m := range f.SpotMarkets {
		if m.Name == "" {
			return fmt.Errorf("spot market %d has no name", i)
		}
		if spots[m.Name] {
			return fmt.Errorf("spot market %q listed twice", m.Name)
		}
		if m.Base == f.Quote || !assets[m.Base] {
			return fmt.Errorf("spot market %q: base %q must be a listed non-quote asset", m.Name, m.Base)
		}
		if m.External != "" {
			if _, err := domain.ParseKey(m.External); err != nil {
				return fmt.Errorf("spot market %q: %w", m.Name, err)
			}
		}
		spots[m.Name] = true
	}

	perps := make(map[string]bool, len(f.PerpMarkets))
	for i, m := range f.PerpMarkets {
		if m.Name == "" {
			return fmt.Errorf("perp market %d has no name", i)
		}
		if perps[m.Name] {
			return fmt.Errorf("perp market %q listed twice", m.Name)
		}
		if m.Base == f.Quote || !assets[m.Base] {
			return fmt.Errorf("perp market %q: base %q must be a listed non-quote asset", m.Name, m.Base)
		}
		perps[m.Name] = true
	}
	return nil
}

// Lister is the part of the venue a listing is applied through.
type Lister interface {
	AddOracle(caller, key domain.Key) (domain.OracleID, error)
	AddAsset(caller domain.Key, desc registry.AssetDescriptor) (domain.AssetID, error)
	AddSpotMarket(caller domain.Key, desc registry.SpotMarketDescriptor) (domain.MarketID, error)
	AddPerpMarket(caller domain.Key, desc registry.PerpMarketDescriptor) (domain.MarketID, error)
	RefreshPrices(ctx context.Context, assets []domain.AssetID, perps []domain.MarketID) error
}

// PriceSetter publishes seed prices. oracle.Stub implements it.
type PriceSetter interface {
	Set(oracle domain.Key, price domain.Price)
}

// Result maps listing names to the ids the venue assigned.
type Result struct {
	Oracles     map[string]domain.OracleID
	Assets      map[string]domain.AssetID
	SpotMarkets map[string]domain.MarketID
	PerpMarkets map[string]domain.MarketID
}

// Apply lists everything in f as admin, seeds oracle prices into prices
// when it is non-nil, and refreshes every listed asset and perp market so
// the venue starts with a fresh cache. v must not have listed anything
// beyond its quote asset.
func Apply(ctx context.Context, v Lister, admin domain.Key, f *File, prices PriceSetter) (Result, error) {
	res := Result{
		Oracles:     make(map[string]domain.OracleID, len(f.Oracles)),
		Assets:      map[string]domain.AssetID{f.Quote: domain.QuoteAsset},
		SpotMarkets: make(map[string]domain.MarketID, len(f.SpotMarkets)),
		PerpMarkets: make(map[string]domain.MarketID, len(f.PerpMarkets)),
	}

	for _, o := range f.Oracles {
		key := keyOrName(o.Key, o.Name)
		id, err := v.AddOracle(admin, key)
		if err != nil {
			return res, fmt.Errorf("oracle %q: %w", o.Name, err)
		}
		res.Oracles[o.Name] = id
		if prices != nil && o.Price.IsPositive() {
			prices.Set(key, domain.PriceFromDecimal(o.Price))
		}
	}

	for _, a := range f.Assets {
		id, err := v.AddAsset(admin, registry.AssetDescriptor{
			Mint:             keyOrName(a.Mint, a.Name),
			Oracle:           res.Oracles[a.Oracle],
			HasOracle:        true,
			Decimals:         a.Decimals,
			MaintAssetWeight: domain.RatioFromDecimal(a.Weights.MaintAsset),
			InitAssetWeight:  domain.RatioFromDecimal(a.Weights.InitAsset),
			MaintLiabWeight:  domain.RatioFromDecimal(a.Weights.MaintLiab),
			InitLiabWeight:   domain.RatioFromDecimal(a.Weights.InitLiab),
			OptimalUtil:      domain.RatioFromDecimal(a.OptimalUtil),
			OptimalRate:      domain.RatioFromDecimal(a.OptimalRate),
			MaxRate:          domain.RatioFromDecimal(a.MaxRate),
		})
		if err != nil {
			return res, fmt.Errorf("asset %q: %w", a.Name, err)
		}
		res.Assets[a.Name] = id
	}

	for _, m := range f.SpotMarkets {
		id, err := v.AddSpotMarket(admin, registry.SpotMarketDescriptor{
			External: keyOrName(m.External, m.Name),
			Base:     res.Assets[m.Base],
		})
		if err != nil {
			return res, fmt.Errorf("spot market %q: %w", m.Name, err)
		}
		res.SpotMarkets[m.Name] = id
	}

	for _, m := range f.PerpMarkets {
		id, err := v.AddPerpMarket(admin, registry.PerpMarketDescriptor{
			Base:             res.Assets[m.Base],
			BaseLotSize:      m.BaseLotSize,
			TickSize:         m.TickSize,
			MaintAssetWeight: domain.RatioFromDecimal(m.Weights.MaintAsset),
			InitAssetWeight:  domain.RatioFromDecimal(m.Weights.InitAsset),
			MaintLiabWeight:  domain.RatioFromDecimal(m.Weights.MaintLiab),
			InitLiabWeight:   domain.RatioFromDecimal(m.Weights.InitLiab),
			MaxFundingRate:   domain.RatioFromDecimal(m.MaxFundingRate),
		})
		if err != nil {
			return res, fmt.Errorf("perp market %q: %w", m.Name, err)
		}
		res.PerpMarkets[m.Name] = id
	}

	if prices == nil {
		return res, nil
	}
	assets := make([]domain.AssetID, 0, len(res.Assets))
	for i := 0; i < len(res.Assets); i++ {
		assets = append(assets, domain.AssetID(i))
	}
	perps := make([]domain.MarketID, 0, len(res.PerpMarkets))
	for i := 0; i < len(res.PerpMarkets); i++ {
		perps = append(perps, domain.MarketID(i))
	}
	if err := v.RefreshPrices(ctx, assets, perps); err != nil {
		return res, fmt.Errorf("initial refresh: %w", err)
	}
	return res, nil
}

// keyOrName parses hex when given and otherwise derives a readable key from
// the entry name. Validate has already rejected malformed hex.
func keyOrName(hexKey, name string) domain.Key {
	if hexKey == "" {
		return domain.KeyFromString(name)
	}
	return domain.MustParseKey(hexKey)
}
