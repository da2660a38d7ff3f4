package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Stable identifiers assigned by the registry at append time.
type (
	AssetID  uint16
	MarketID uint16
	OracleID uint16
)

// QuoteAsset is the settlement asset every price is expressed in.
const QuoteAsset AssetID = 0

// Capacities. These are part of the persisted layout and cannot change
// without a migration.
const (
	MaxTokens            = 16
	MaxPairs             = 15
	MaxNumInMarginBasket = 9
	MaxPerpOpenOrders    = 32
)

// Fixed-point scales.
const (
	PriceScale   = 1_000_000
	RatioScale   = 1_000_000
	IndexScale   = 1_000_000_000_000
	FundingScale = 1_000_000
)

// StepsPerDay and StepsPerYear convert annual and daily rates into
// per-sequence-step rates. One step is half a second.
const (
	StepsPerDay  = 2 * 60 * 60 * 24
	StepsPerYear = StepsPerDay * 365
)

var (
	priceScaleD   = decimal.NewFromInt(PriceScale)
	ratioScaleD   = decimal.NewFromInt(RatioScale)
	indexScaleD   = decimal.NewFromInt(IndexScale)
	fundingScaleD = decimal.NewFromInt(FundingScale)
)

// Price is quote native units per base native unit, scaled by PriceScale.
type Price int64

// PriceOne is the price of the quote asset in itself.
const PriceOne Price = PriceScale

// Decimal returns the unscaled price.
func (p Price) Decimal() decimal.Decimal {
	return decimal.NewFromInt(int64(p)).Div(priceScaleD)
}

// PriceFromDecimal scales d into a Price, truncating extra precision.
func PriceFromDecimal(d decimal.Decimal) Price {
	return Price(d.Mul(priceScaleD).IntPart())
}

// Ratio is a weight, utilisation or rate scaled by RatioScale.
type Ratio int64

// RatioOne is 1.0.
const RatioOne Ratio = RatioScale

// Decimal returns the unscaled ratio.
func (r Ratio) Decimal() decimal.Decimal {
	return decimal.NewFromInt(int64(r)).Div(ratioScaleD)
}

// RatioFromDecimal scales d into a Ratio.
func RatioFromDecimal(d decimal.Decimal) Ratio {
	return Ratio(d.Mul(ratioScaleD).IntPart())
}

// Index is an interest accrual index scaled by IndexScale.
type Index int64

// IndexOne is the index of a freshly listed asset.
const IndexOne Index = IndexScale

// Decimal returns the unscaled index.
func (i Index) Decimal() decimal.Decimal {
	return decimal.NewFromInt(int64(i)).Div(indexScaleD)
}

// IndexFromDecimal scales d into an Index.
func IndexFromDecimal(d decimal.Decimal) Index {
	return Index(d.Mul(indexScaleD).IntPart())
}

// FundingDecimal converts a cumulative funding value (quote native per
// lot, scaled by FundingScale) into its unscaled form.
func FundingDecimal(f int64) decimal.Decimal {
	return decimal.NewFromInt(f).Div(fundingScaleD)
}

// FundingFromDecimal scales d into a cumulative funding value.
func FundingFromDecimal(d decimal.Decimal) int64 {
	return d.Mul(fundingScaleD).IntPart()
}

// ParseFixed parses a decimal string such as "0.95" into a value scaled by
// scale. It rejects inputs with more precision than the scale holds.
func ParseFixed(s string, scale int64) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, &ValidationError{Message: fmt.Sprintf("invalid number %q", s)}
	}
	scaled := d.Mul(decimal.NewFromInt(scale))
	if !scaled.Equal(scaled.Truncate(0)) {
		return 0, &ValidationError{Message: fmt.Sprintf("%q has more precision than 1/%d", s, scale)}
	}
	return scaled.IntPart(), nil
}

// FormatFixed renders a scaled value as a decimal string.
func FormatFixed(v, scale int64) string {
	return decimal.NewFromInt(v).Div(decimal.NewFromInt(scale)).String()
}
