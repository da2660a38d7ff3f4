package handler

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/crossmargin/internal/domain"
	"github.com/efreitasn/crossmargin/internal/venue"
)

// OrderHandler handles HTTP requests for perp order endpoints.
type OrderHandler struct {
	venue *venue.Venue
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(v *venue.Venue) *OrderHandler {
	return &OrderHandler{venue: v}
}

// placeOrderRequest is the JSON request body for POST /accounts/{owner}/perp-orders.
// Kind defaults to limit; price is ignored for market orders.
type placeOrderRequest struct {
	Market   domain.MarketID `json:"market"`
	Side     string          `json:"side" validate:"required,oneof=bid ask"`
	Kind     string          `json:"kind" validate:"omitempty,oneof=limit ioc post_only market"`
	Price    int64           `json:"price" validate:"gte=0"`
	Quantity int64           `json:"quantity" validate:"gt=0"`
	ClientID uint64          `json:"client_id"`
}

// placeOrderResponse is the JSON response for a placed order. order_id is
// present even when nothing rested, so fills can be tied to it.
type placeOrderResponse struct {
	OrderID           uint64          `json:"order_id"`
	Market            domain.MarketID `json:"market"`
	Side              string          `json:"side"`
	Kind              string          `json:"kind"`
	Price             *int64          `json:"price"`
	Quantity          int64           `json:"quantity"`
	ClientID          uint64          `json:"client_id"`
	FilledQuantity    int64           `json:"filled_quantity"`
	RemainingQuantity int64           `json:"remaining_quantity"`
	CancelledQuantity int64           `json:"cancelled_quantity"`
	Status            string          `json:"status"`
	AveragePrice      *string         `json:"average_price"`
	Fills             []fillResponse  `json:"fills"`
}

type cancelOrderResponse struct {
	OrderID           uint64          `json:"order_id"`
	ClientID          uint64          `json:"client_id"`
	Market            domain.MarketID `json:"market"`
	Side              string          `json:"side"`
	Price             int64           `json:"price"`
	CancelledQuantity int64           `json:"cancelled_quantity"`
	Status            string          `json:"status"`
}

// PlaceOrder handles POST /accounts/{owner}/perp-orders.
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	owner, ok := keyParam(w, r, "owner")
	if !ok {
		return
	}
	var req placeOrderRequest
	if !bind(w, r, &req) {
		return
	}
	side, err := domain.ParseSide(req.Side)
	if err != nil {
		writeVenueError(w, err)
		return
	}
	kind := domain.OrderKindLimit
	if req.Kind != "" {
		if kind, err = domain.ParseOrderKind(req.Kind); err != nil {
			writeVenueError(w, err)
			return
		}
	}

	res, err := h.venue.PlacePerpOrder(r.Context(), venue.PlaceOrderRequest{
		Owner:    owner,
		Market:   req.Market,
		Side:     side,
		Kind:     kind,
		Price:    req.Price,
		Quantity: req.Quantity,
		ClientID: req.ClientID,
	})
	if err != nil {
		writeVenueError(w, err)
		return
	}

	resp := placeOrderResponse{
		OrderID:           res.OrderID,
		Market:            req.Market,
		Side:              side.String(),
		Kind:              kind.String(),
		Quantity:          req.Quantity,
		ClientID:          req.ClientID,
		FilledQuantity:    res.Filled,
		RemainingQuantity: res.Rested,
		CancelledQuantity: res.Cancelled,
		Status:            string(res.Status),
		AveragePrice:      averagePrice(res.Fills),
		Fills:             fillResponses(res.Fills),
	}
	if kind.HasLimit() {
		resp.Price = &req.Price
	}
	WriteJSON(w, http.StatusCreated, resp)
}

// CancelOrder handles DELETE /accounts/{owner}/perp-orders/{market}/{order_id}.
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	owner, ok := keyParam(w, r, "owner")
	if !ok {
		return
	}
	market, ok := marketParam(w, r)
	if !ok {
		return
	}
	orderID, ok := uintParam(w, r, "order_id", 64)
	if !ok {
		return
	}
	res, err := h.venue.CancelPerpOrder(r.Context(), owner, market, orderID)
	if err != nil {
		writeVenueError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildCancelResponse(market, res))
}

// CancelOrderByClientID handles
// DELETE /accounts/{owner}/perp-orders/{market}/client/{client_id}.
func (h *OrderHandler) CancelOrderByClientID(w http.ResponseWriter, r *http.Request) {
	owner, ok := keyParam(w, r, "owner")
	if !ok {
		return
	}
	market, ok := marketParam(w, r)
	if !ok {
		return
	}
	clientID, ok := uintParam(w, r, "client_id", 64)
	if !ok {
		return
	}
	res, err := h.venue.CancelPerpOrderByClientID(r.Context(), owner, market, clientID)
	if err != nil {
		writeVenueError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, buildCancelResponse(market, res))
}

func buildCancelResponse(market domain.MarketID, res venue.CancelResult) cancelOrderResponse {
	return cancelOrderResponse{
		OrderID:           res.OrderID,
		ClientID:          res.ClientID,
		Market:            market,
		Side:              res.Side.String(),
		Price:             res.Price,
		CancelledQuantity: res.Cancelled,
		Status:            string(domain.OrderStatusCancelled),
	}
}

// averagePrice is the quantity-weighted fill price, or nil without fills.
func averagePrice(fills []domain.Fill) *string {
	var qty, notional int64
	for _, f := range fills {
		qty += f.Quantity
		notional += f.Price * f.Quantity
	}
	if qty == 0 {
		return nil
	}
	avg := decimal.NewFromInt(notional).Div(decimal.NewFromInt(qty)).String()
	return &avg
}
