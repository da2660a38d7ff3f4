package domain

import "errors"

// Sentinel errors for domain-level error handling.
// The handler layer maps these to HTTP status codes.
var (
	ErrStale                  = errors.New("stale")
	ErrInsufficientCollateral = errors.New("insufficient_collateral")
	ErrMarginExceeded         = errors.New("margin_exceeded")
	ErrBasketFull             = errors.New("basket_full")
	ErrBasketSlotInUse        = errors.New("basket_slot_in_use")
	ErrTooManyOpenOrders      = errors.New("too_many_open_orders")
	ErrBookFull               = errors.New("book_full")
	ErrNotFound               = errors.New("not_found")
	ErrBudgetExceeded         = errors.New("budget_exceeded")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrWouldTakeLiquidity     = errors.New("would_take_liquidity")
	ErrUnknownAsset           = errors.New("unknown_asset")
	ErrUnknownOracle          = errors.New("unknown_oracle")
	ErrUnknownMarket          = errors.New("unknown_market")
	ErrRegistryFull           = errors.New("registry_full")
	ErrAccountExists          = errors.New("account_exists")
	ErrAccountNotFound        = errors.New("account_not_found")
)

// ValidationError represents a request validation failure.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
