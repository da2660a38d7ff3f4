// Package account implements the per-user margin ledger: collateral held
// against interest indexes, the bounded margin basket of spot delegations,
// and one perp position with its open-order slots per perp market.
package account

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/crossmargin/internal/domain"
)

// BasketSlot records a delegation to an external spot open-orders account.
// The venue never owns what Delegation points at; it only values it.
type BasketSlot struct {
	Market     domain.MarketID
	Delegation domain.Key
	InUse      bool
}

// OpenOrder links a client-assigned id to a resting order in the book.
type OpenOrder struct {
	OrderID  uint64
	ClientID uint64
	Side     domain.Side
	InUse    bool
}

// PerpAccount is an account's state in one perp market.
type PerpAccount struct {
	BasePosition   int64 // lots, signed
	QuotePosition  int64 // quote native, signed
	SettledFunding int64 // market cumulative funding at the last settlement

	// Aggregates over the resting orders in Orders.
	BidsQuantity int64
	AsksQuantity int64
	BidsQuote    int64
	AsksQuote    int64

	Orders [domain.MaxPerpOpenOrders]OpenOrder
}

// Account is the fixed-size margin ledger record of one owner.
type Account struct {
	Owner domain.Key

	// Collateral in index units. At most one of the two is non-zero per asset.
	Deposits [domain.MaxTokens]int64
	Borrows  [domain.MaxTokens]int64

	Basket [domain.MaxNumInMarginBasket]BasketSlot
	Perps  [domain.MaxPairs]PerpAccount
}

// Flow is the change in bank totals, in index units, caused by a deposit
// or withdrawal.
type Flow struct {
	DepositUnits int64
	BorrowUnits  int64
}

// New creates an empty account for owner.
func New(owner domain.Key) *Account {
	return &Account{Owner: owner}
}

// Native returns the signed native balance of asset id at the given indexes.
func (a *Account) Native(id domain.AssetID, deposit, borrow domain.Index) decimal.Decimal {
	dep := decimal.NewFromInt(a.Deposits[id]).Mul(deposit.Decimal())
	bor := decimal.NewFromInt(a.Borrows[id]).Mul(borrow.Decimal())
	return dep.Sub(bor)
}

// Deposit credits amount native units of asset id, repaying any borrow
// first.
func (a *Account) Deposit(id domain.AssetID, amount int64, deposit, borrow domain.Index) (Flow, error) {
	if amount <= 0 {
		return Flow{}, &domain.ValidationError{Message: "amount must be > 0"}
	}
	var f Flow
	amt := decimal.NewFromInt(amount)
	if a.Borrows[id] > 0 {
		owed := decimal.NewFromInt(a.Borrows[id]).Mul(borrow.Decimal())
		if amt.LessThan(owed) {
			units := amt.Div(borrow.Decimal()).IntPart()
			a.Borrows[id] -= units
			f.BorrowUnits = -units
			return f, nil
		}
		f.BorrowUnits = -a.Borrows[id]
		a.Borrows[id] = 0
		amt = amt.Sub(owed)
	}
	units := amt.Div(deposit.Decimal()).IntPart()
	a.Deposits[id] += units
	f.DepositUnits = units
	return f, nil
}

// Withdraw debits amount native units of asset id. Whatever the deposit
// does not cover becomes a borrow; the caller decides whether the account
// may carry it.
func (a *Account) Withdraw(id domain.AssetID, amount int64, deposit, borrow domain.Index) (Flow, error) {
	if amount <= 0 {
		return Flow{}, &domain.ValidationError{Message: "amount must be > 0"}
	}
	var f Flow
	amt := decimal.NewFromInt(amount)
	held := decimal.NewFromInt(a.Deposits[id]).Mul(deposit.Decimal())
	if amt.LessThanOrEqual(held) {
		units := amt.Div(deposit.Decimal()).Ceil().IntPart()
		if units > a.Deposits[id] {
			units = a.Deposits[id]
		}
		a.Deposits[id] -= units
		f.DepositUnits = -units
		return f, nil
	}
	f.DepositUnits = -a.Deposits[id]
	a.Deposits[id] = 0
	units := amt.Sub(held).Div(borrow.Decimal()).Ceil().IntPart()
	a.Borrows[id] += units
	f.BorrowUnits = units
	return f, nil
}

// AcquireBasketSlot returns the slot already holding market, or claims a
// free one for it. A full basket fails with domain.ErrBasketFull and leaves
// every slot untouched.
func (a *Account) AcquireBasketSlot(market domain.MarketID, ref domain.Key) (int, error) {
	free := -1
	for i := range a.Basket {
		s := &a.Basket[i]
		if s.InUse && s.Market == market {
			return i, nil
		}
		if !s.InUse && free < 0 {
			free = i
		}
	}
	if free < 0 {
		return 0, fmt.Errorf("spot market %d: %w", market, domain.ErrBasketFull)
	}
	a.Basket[free] = BasketSlot{Market: market, Delegation: ref, InUse: true}
	return free, nil
}

// BasketSlot returns the occupied slot for market, if any.
func (a *Account) BasketSlot(market domain.MarketID) (BasketSlot, bool) {
	for _, s := range a.Basket {
		if s.InUse && s.Market == market {
			return s, true
		}
	}
	return BasketSlot{}, false
}

// ReleaseBasketSlot clears the slot for market. It reports whether a slot
// was cleared; releasing an empty slot is a no-op.
func (a *Account) ReleaseBasketSlot(market domain.MarketID) bool {
	for i := range a.Basket {
		if a.Basket[i].InUse && a.Basket[i].Market == market {
			a.Basket[i] = BasketSlot{}
			return true
		}
	}
	return false
}

// BasketLen returns the number of occupied basket slots.
func (a *Account) BasketLen() int {
	n := 0
	for _, s := range a.Basket {
		if s.InUse {
			n++
		}
	}
	return n
}

// IsEmpty reports whether the account holds nothing at all.
func (a *Account) IsEmpty() bool {
	for i := range a.Deposits {
		if a.Deposits[i] != 0 || a.Borrows[i] != 0 {
			return false
		}
	}
	if a.BasketLen() > 0 {
		return false
	}
	for i := range a.Perps {
		if !a.Perps[i].idle() {
			return false
		}
	}
	return true
}

// Perp returns the perp account for market.
func (a *Account) Perp(market domain.MarketID) *PerpAccount {
	return &a.Perps[market]
}

func (p *PerpAccount) idle() bool {
	return p.BasePosition == 0 && p.QuotePosition == 0 &&
		p.BidsQuantity == 0 && p.AsksQuantity == 0
}
