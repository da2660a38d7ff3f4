package domain

import "fmt"

// Side indicates whether an order buys (bid) or sells (ask) the contract.
type Side uint8

const (
	SideBid Side = iota
	SideAsk
)

// String returns "bid" or "ask".
func (s Side) String() string {
	switch s {
	case SideBid:
		return "bid"
	case SideAsk:
		return "ask"
	}
	return fmt.Sprintf("side(%d)", uint8(s))
}

// Opposite returns the side an order of this side matches against.
func (s Side) Opposite() Side {
	if s == SideBid {
		return SideAsk
	}
	return SideBid
}

// Sign is +1 for bids and -1 for asks.
func (s Side) Sign() int64 {
	if s == SideBid {
		return 1
	}
	return -1
}

// ParseSide converts "bid"/"ask" into a Side.
func ParseSide(s string) (Side, error) {
	switch s {
	case "bid":
		return SideBid, nil
	case "ask":
		return SideAsk, nil
	}
	return 0, &ValidationError{Message: "side must be 'bid' or 'ask'"}
}

// OrderKind is the time-in-force flavour of a perp order.
type OrderKind uint8

const (
	// OrderKindLimit matches what it can and rests the remainder.
	OrderKindLimit OrderKind = iota
	// OrderKindImmediateOrCancel matches up to its limit and discards the remainder.
	OrderKindImmediateOrCancel
	// OrderKindPostOnly rests only; it is rejected if it would take liquidity.
	OrderKindPostOnly
	// OrderKindMarket matches at any price and discards the remainder.
	OrderKindMarket
)

// String returns the wire name of the kind.
func (k OrderKind) String() string {
	switch k {
	case OrderKindLimit:
		return "limit"
	case OrderKindImmediateOrCancel:
		return "ioc"
	case OrderKindPostOnly:
		return "post_only"
	case OrderKindMarket:
		return "market"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Rests reports whether an unfilled remainder of this kind stays on the book.
func (k OrderKind) Rests() bool {
	switch k {
	case OrderKindLimit, OrderKindPostOnly:
		return true
	case OrderKindImmediateOrCancel, OrderKindMarket:
		return false
	}
	return false
}

// HasLimit reports whether the kind carries a limit price.
func (k OrderKind) HasLimit() bool {
	return k != OrderKindMarket
}

// ParseOrderKind converts a wire name into an OrderKind.
func ParseOrderKind(s string) (OrderKind, error) {
	switch s {
	case "limit":
		return OrderKindLimit, nil
	case "ioc":
		return OrderKindImmediateOrCancel, nil
	case "post_only":
		return OrderKindPostOnly, nil
	case "market":
		return OrderKindMarket, nil
	}
	return 0, &ValidationError{
		Message: fmt.Sprintf("Unknown order kind: %s. Must be one of: limit, ioc, post_only, market", s),
	}
}

// OrderStatus summarises what happened to a submitted order.
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "pending"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
)

// StatusOf derives the status of an order from its quantities. An order
// that filled partially and had its remainder discarded is reported as
// cancelled; Filled tells the caller how much executed.
func StatusOf(quantity, filled, rested int64) OrderStatus {
	switch {
	case filled == quantity:
		return OrderStatusFilled
	case rested > 0 && filled > 0:
		return OrderStatusPartiallyFilled
	case rested > 0:
		return OrderStatusPending
	default:
		return OrderStatusCancelled
	}
}
