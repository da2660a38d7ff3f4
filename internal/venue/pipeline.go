package venue

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"

	"github.com/efreitasn/crossmargin/internal/account"
	"github.com/efreitasn/crossmargin/internal/domain"
	"github.com/efreitasn/crossmargin/internal/engine"
	"github.com/efreitasn/crossmargin/internal/metrics"
	"github.com/efreitasn/crossmargin/internal/registry"
)

// PlaceOrderRequest is the input of PlacePerpOrder.
type PlaceOrderRequest struct {
	Owner    domain.Key
	Market   domain.MarketID
	Side     domain.Side
	Kind     domain.OrderKind
	Price    int64 // quote native per lot; ignored for market orders
	Quantity int64 // lots
	ClientID uint64
}

// PlaceResult reports what happened to a placed order.
type PlaceResult struct {
	OrderID   uint64
	Fills     []domain.Fill
	Filled    int64
	Rested    int64
	Cancelled int64
	Status    domain.OrderStatus
}

// CancelResult describes a cancelled resting order.
type CancelResult struct {
	OrderID   uint64
	ClientID  uint64
	Side      domain.Side
	Price     int64
	Cancelled int64
}

// PlacePerpOrder validates, margin-checks, matches and settles one order.
//
// The order is rejected with domain.ErrStale if the market's funding or its
// base price is outside the staleness bound, and with
// domain.ErrMarginExceeded if filling it in the worst case would leave the
// account under its maintenance requirement while making it less healthy.
// Any failure after matching has begun restores the book and every touched
// account to their state before the call.
func (v *Venue) PlacePerpOrder(ctx context.Context, req PlaceOrderRequest) (PlaceResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return PlaceResult{}, err
	}
	res, err := v.placePerpOrder(req)
	if err != nil {
		return PlaceResult{}, v.reject("place_perp_order", err,
			"owner", req.Owner.String(), "market", req.Market, "side", req.Side.String(), "kind", req.Kind.String())
	}
	metrics.ObserveOrder(req.Market, req.Kind, res.Status)
	metrics.ObserveFills(req.Market, res.Fills)
	v.log.Info("perp order placed",
		"owner", req.Owner.String(),
		"market", req.Market,
		"order_id", res.OrderID,
		"side", req.Side.String(),
		"kind", req.Kind.String(),
		"filled", res.Filled,
		"rested", res.Rested,
		"status", string(res.Status),
	)
	return res, nil
}

func (v *Venue) placePerpOrder(req PlaceOrderRequest) (PlaceResult, error) {
	acct, err := v.accounts.Get(req.Owner)
	if err != nil {
		return PlaceResult{}, err
	}
	desc, book, err := v.perpMarket(req.Market)
	if err != nil {
		return PlaceResult{}, err
	}
	if err := validateOrder(req, desc); err != nil {
		return PlaceResult{}, err
	}

	view := v.view()
	if _, err := view.Perp(req.Market); err != nil {
		return PlaceResult{}, err
	}
	if _, err := view.Asset(desc.Base); err != nil {
		return PlaceResult{}, err
	}
	if err := v.checkMargin(acct, req, book); err != nil {
		return PlaceResult{}, err
	}

	cp := book.Checkpoint()
	out, err := book.Submit(engine.Order{
		Owner:    req.Owner,
		ClientID: req.ClientID,
		Side:     req.Side,
		Kind:     req.Kind,
		Price:    req.Price,
		Quantity: req.Quantity,
	}, v.cfg.StepBudget)
	if err != nil {
		return PlaceResult{}, err
	}

	// Submit has committed to the book. From here on any failure must put
	// the book and every account it touched back.
	s := newSettlement(book, req.Market, cp)
	if err := s.apply(v, acct, req, out); err != nil {
		s.rollback()
		return PlaceResult{}, err
	}
	book.AdjustOpenInterest(s.openInterestDelta())
	metrics.SetOpenInterest(req.Market, book.OpenInterest())

	fills := make([]domain.Fill, 0, len(out.Matches))
	now := v.clock.Now()
	for _, m := range out.Matches {
		fills = append(fills, domain.Fill{
			FillID:       uuid.New().String(),
			Market:       req.Market,
			MakerOrderID: m.MakerOrderID,
			TakerOrderID: out.OrderID,
			Maker:        m.Maker,
			Taker:        req.Owner,
			TakerSide:    req.Side,
			Price:        m.Price,
			Quantity:     m.Quantity,
			Sequence:     now,
		})
	}
	v.fills.Append(req.Market, fills...)

	return PlaceResult{
		OrderID:   out.OrderID,
		Fills:     fills,
		Filled:    out.Filled,
		Rested:    out.Rested,
		Cancelled: out.Cancelled,
		Status:    domain.StatusOf(req.Quantity, out.Filled, out.Rested),
	}, nil
}

func validateOrder(req PlaceOrderRequest, desc registry.PerpMarketDescriptor) error {
	if req.Quantity <= 0 {
		return &domain.ValidationError{Message: "quantity must be > 0"}
	}
	switch req.Kind {
	case domain.OrderKindLimit, domain.OrderKindImmediateOrCancel, domain.OrderKindPostOnly:
		if req.Price <= 0 {
			return &domain.ValidationError{Message: "price must be > 0"}
		}
		if req.Price%desc.TickSize != 0 {
			return &domain.ValidationError{
				Message: fmt.Sprintf("price %d is not a multiple of tick size %d", req.Price, desc.TickSize),
			}
		}
		if req.Quantity > math.MaxInt64/req.Price {
			return &domain.ValidationError{Message: "price * quantity overflows"}
		}
	case domain.OrderKindMarket:
	default:
		return &domain.ValidationError{Message: fmt.Sprintf("unknown order kind %d", req.Kind)}
	}
	return nil
}

// checkMargin values the account as if the whole order rested on top of
// its existing orders. A limit order is priced at its limit; a market order
// at the levels it would walk through.
func (v *Venue) checkMargin(acct *account.Account, req PlaceOrderRequest, book *engine.Book) error {
	view := v.view()
	pre, err := acct.Margin(v.reg, view, v.valuer)
	if err != nil {
		return err
	}

	scratch := *acct
	p := scratch.Perp(req.Market)
	if req.Kind == domain.OrderKindMarket {
		sim := book.Simulate(req.Side, req.Quantity, req.Owner)
		for _, level := range sim.Levels {
			p.Reserve(req.Side, level.Price, level.TotalQuantity)
		}
	} else {
		p.Reserve(req.Side, req.Price, req.Quantity)
	}
	post, err := scratch.Margin(v.reg, view, v.valuer)
	if err != nil {
		return err
	}

	health := post.MaintHealth()
	if health.IsNegative() && health.LessThan(pre.MaintHealth()) {
		return fmt.Errorf("order leaves maintenance health at %s: %w", health, domain.ErrMarginExceeded)
	}
	return nil
}

// settlement applies one order's matches to accounts while remembering how
// to undo them.
type settlement struct {
	book       *engine.Book
	market     domain.MarketID
	checkpoint engine.Checkpoint
	saved      map[domain.Key]account.Account
	touched    map[domain.Key]*account.Account
}

func newSettlement(book *engine.Book, market domain.MarketID, cp engine.Checkpoint) *settlement {
	return &settlement{
		book:       book,
		market:     market,
		checkpoint: cp,
		saved:      make(map[domain.Key]account.Account),
		touched:    make(map[domain.Key]*account.Account),
	}
}

// touch snapshots a before its first change and settles its funding so the
// position can move.
func (s *settlement) touch(a *account.Account) *account.PerpAccount {
	if _, ok := s.saved[a.Owner]; !ok {
		s.saved[a.Owner] = *a
		s.touched[a.Owner] = a
		a.Perp(s.market).SettleFunding(s.book.Funding())
	}
	return a.Perp(s.market)
}

func (s *settlement) apply(v *Venue, taker *account.Account, req PlaceOrderRequest, out engine.Outcome) error {
	tp := s.touch(taker)
	for _, m := range out.Matches {
		maker, err := v.accounts.Get(m.Maker)
		if err != nil {
			return fmt.Errorf("maker of order %d: %w", m.MakerOrderID, err)
		}
		mp := s.touch(maker)
		mp.FillMaker(m.MakerOrderID, req.Side.Opposite(), m.Price, m.Quantity, m.MakerDone)
		tp.ApplyFill(req.Side, m.Price, m.Quantity)
	}
	if out.Rested > 0 {
		if err := tp.AddOrder(out.OrderID, req.ClientID, req.Side, req.Price, out.Rested); err != nil {
			return err
		}
	}
	return nil
}

func (s *settlement) rollback() {
	s.book.Restore(s.checkpoint)
	for owner, before := range s.saved {
		*s.touched[owner] = before
	}
}

func (s *settlement) openInterestDelta() int64 {
	var delta int64
	for owner, a := range s.touched {
		before := s.saved[owner].Perps[s.market].BasePosition
		after := a.Perps[s.market].BasePosition
		delta += abs(after) - abs(before)
	}
	return delta
}

func abs(x int64) int64 {
	if x < 0 {
		return -x
	}
	return x
}
