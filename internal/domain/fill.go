package domain

// Fill is one match between a resting maker order and an incoming taker
// order. Price is always the maker's price.
type Fill struct {
	FillID       string
	Market       MarketID
	MakerOrderID uint64
	TakerOrderID uint64
	Maker        Key
	Taker        Key
	TakerSide    Side
	Price        int64 // quote native units per base lot
	Quantity     int64 // lots
	Sequence     uint64
}
