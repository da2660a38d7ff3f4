package engine

import (
	"github.com/shopspring/decimal"

	"github.com/efreitasn/crossmargin/internal/domain"
)

// FundingDiff returns the premium of the book over index, clamped to
// ±maxRate. A one-sided book is pinned to the clamp on its side; an empty
// book pays nothing.
func (b *Book) FundingDiff(index decimal.Decimal, maxRate domain.Ratio) decimal.Decimal {
	limit := maxRate.Decimal()
	bid, hasBid := b.BestBid()
	ask, hasAsk := b.BestAsk()
	switch {
	case hasBid && hasAsk:
		if !index.IsPositive() {
			return decimal.Zero
		}
		mid := decimal.NewFromInt(bid.Price).Add(decimal.NewFromInt(ask.Price)).Div(decimal.NewFromInt(2))
		diff := mid.Sub(index).Div(index)
		return decimal.Min(decimal.Max(diff, limit.Neg()), limit)
	case hasBid:
		return limit
	case hasAsk:
		return limit.Neg()
	default:
		return decimal.Zero
	}
}

// UpdateFunding accrues funding for the steps since the previous update.
// index is the oracle price of one lot in quote native units; maxRate is a
// per-day clamp. Longs pay shorts while the book trades above index.
func (b *Book) UpdateFunding(index decimal.Decimal, now uint64, maxRate domain.Ratio) int64 {
	if now <= b.fundingSeq {
		return b.funding
	}
	elapsed := decimal.NewFromInt(int64(now - b.fundingSeq))
	delta := b.FundingDiff(index, maxRate).
		Mul(index).
		Mul(elapsed).
		Div(decimal.NewFromInt(domain.StepsPerDay))
	b.funding += domain.FundingFromDecimal(delta)
	b.fundingSeq = now
	return b.funding
}
