package handler

import (
	"net/http"

	"github.com/efreitasn/crossmargin/internal/account"
	"github.com/efreitasn/crossmargin/internal/domain"
	"github.com/efreitasn/crossmargin/internal/venue"
)

// AccountHandler handles HTTP requests for margin account endpoints.
type AccountHandler struct {
	venue *venue.Venue
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(v *venue.Venue) *AccountHandler {
	return &AccountHandler{venue: v}
}

type openAccountRequest struct {
	Owner domain.Key `json:"owner" validate:"required"`
}

type amountRequest struct {
	Asset  domain.AssetID `json:"asset"`
	Amount int64          `json:"amount" validate:"gt=0"`
}

type basketRequest struct {
	Market     domain.MarketID `json:"market"`
	Delegation domain.Key      `json:"delegation" validate:"required"`
}

type balanceResponse struct {
	Asset  domain.AssetID `json:"asset"`
	Native string         `json:"native"`
}

type basketSlotResponse struct {
	Slot       int             `json:"slot"`
	Market     domain.MarketID `json:"market"`
	Delegation domain.Key      `json:"delegation"`
}

type openOrderResponse struct {
	OrderID  uint64 `json:"order_id"`
	ClientID uint64 `json:"client_id"`
	Side     string `json:"side"`
}

type perpPositionResponse struct {
	Market         domain.MarketID     `json:"market"`
	BasePosition   int64               `json:"base_position"`
	QuotePosition  int64               `json:"quote_position"`
	SettledFunding string              `json:"settled_funding"`
	BidsQuantity   int64               `json:"bids_quantity"`
	AsksQuantity   int64               `json:"asks_quantity"`
	OpenOrders     []openOrderResponse `json:"open_orders"`
}

type marginResponse struct {
	Equity           string `json:"equity"`
	InitRequirement  string `json:"init_requirement"`
	MaintRequirement string `json:"maint_requirement"`
	InitHealth       string `json:"init_health"`
	MaintHealth      string `json:"maint_health"`
}

// accountResponse always carries balances; margin is null when a price the
// account needs is stale, and margin_error says why.
type accountResponse struct {
	Owner       domain.Key             `json:"owner"`
	Balances    []balanceResponse      `json:"balances"`
	Basket      []basketSlotResponse   `json:"basket"`
	Perps       []perpPositionResponse `json:"perps"`
	Margin      *marginResponse        `json:"margin"`
	MarginError string                 `json:"margin_error,omitempty"`
}

// Open handles POST /accounts.
func (h *AccountHandler) Open(w http.ResponseWriter, r *http.Request) {
	var req openAccountRequest
	if !bind(w, r, &req) {
		return
	}
	if err := h.venue.OpenAccount(req.Owner); err != nil {
		writeVenueError(w, err)
		return
	}
	h.write(w, http.StatusCreated, req.Owner)
}

// Get handles GET /accounts/{owner}.
func (h *AccountHandler) Get(w http.ResponseWriter, r *http.Request) {
	owner, ok := keyParam(w, r, "owner")
	if !ok {
		return
	}
	h.write(w, http.StatusOK, owner)
}

// Deposit handles POST /accounts/{owner}/deposits.
func (h *AccountHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	owner, ok := keyParam(w, r, "owner")
	if !ok {
		return
	}
	var req amountRequest
	if !bind(w, r, &req) {
		return
	}
	if err := h.venue.Deposit(r.Context(), owner, req.Asset, req.Amount); err != nil {
		writeVenueError(w, err)
		return
	}
	h.write(w, http.StatusOK, owner)
}

// Withdraw handles POST /accounts/{owner}/withdrawals.
func (h *AccountHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	owner, ok := keyParam(w, r, "owner")
	if !ok {
		return
	}
	var req amountRequest
	if !bind(w, r, &req) {
		return
	}
	if err := h.venue.Withdraw(r.Context(), owner, req.Asset, req.Amount); err != nil {
		writeVenueError(w, err)
		return
	}
	h.write(w, http.StatusOK, owner)
}

// AcquireBasketSlot handles POST /accounts/{owner}/basket.
func (h *AccountHandler) AcquireBasketSlot(w http.ResponseWriter, r *http.Request) {
	owner, ok := keyParam(w, r, "owner")
	if !ok {
		return
	}
	var req basketRequest
	if !bind(w, r, &req) {
		return
	}
	slot, err := h.venue.AcquireBasketSlot(owner, req.Market, req.Delegation)
	if err != nil {
		writeVenueError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, basketSlotResponse{Slot: slot, Market: req.Market, Delegation: req.Delegation})
}

// ReleaseBasketSlot handles DELETE /accounts/{owner}/basket/{market}.
func (h *AccountHandler) ReleaseBasketSlot(w http.ResponseWriter, r *http.Request) {
	owner, ok := keyParam(w, r, "owner")
	if !ok {
		return
	}
	market, ok := marketParam(w, r)
	if !ok {
		return
	}
	if err := h.venue.ReleaseBasketSlot(owner, market); err != nil {
		writeVenueError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *AccountHandler) write(w http.ResponseWriter, status int, owner domain.Key) {
	snap, err := h.venue.Snapshot(owner)
	if err != nil {
		writeVenueError(w, err)
		return
	}
	WriteJSON(w, status, buildAccountResponse(snap))
}

func buildAccountResponse(snap venue.Snapshot) accountResponse {
	a := snap.Account
	resp := accountResponse{
		Owner:    a.Owner,
		Balances: []balanceResponse{},
		Basket:   []basketSlotResponse{},
		Perps:    []perpPositionResponse{},
	}
	for i, b := range snap.Balances {
		if b.IsZero() {
			continue
		}
		resp.Balances = append(resp.Balances, balanceResponse{Asset: domain.AssetID(i), Native: b.String()})
	}
	for i, s := range a.Basket {
		if s.InUse {
			resp.Basket = append(resp.Basket, basketSlotResponse{Slot: i, Market: s.Market, Delegation: s.Delegation})
		}
	}
	for i := range a.Perps {
		p := &a.Perps[i]
		if p.BasePosition == 0 && p.QuotePosition == 0 && p.OpenOrders() == 0 {
			continue
		}
		resp.Perps = append(resp.Perps, buildPerpResponse(domain.MarketID(i), p))
	}
	if snap.Margin != nil {
		resp.Margin = buildMarginResponse(*snap.Margin)
	} else if snap.MarginErr != nil {
		resp.MarginError = snap.MarginErr.Error()
	}
	return resp
}

func buildPerpResponse(market domain.MarketID, p *account.PerpAccount) perpPositionResponse {
	out := perpPositionResponse{
		Market:         market,
		BasePosition:   p.BasePosition,
		QuotePosition:  p.QuotePosition,
		SettledFunding: domain.FundingDecimal(p.SettledFunding).String(),
		BidsQuantity:   p.BidsQuantity,
		AsksQuantity:   p.AsksQuantity,
		OpenOrders:     []openOrderResponse{},
	}
	for _, o := range p.Orders {
		if o.InUse {
			out.OpenOrders = append(out.OpenOrders, openOrderResponse{
				OrderID: o.OrderID, ClientID: o.ClientID, Side: o.Side.String(),
			})
		}
	}
	return out
}

func buildMarginResponse(r account.Report) *marginResponse {
	return &marginResponse{
		Equity:           r.Equity.String(),
		InitRequirement:  r.InitRequirement.String(),
		MaintRequirement: r.MaintRequirement.String(),
		InitHealth:       r.InitHealth().String(),
		MaintHealth:      r.MaintHealth().String(),
	}
}
