package handler

import (
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/crossmargin/internal/domain"
	"github.com/efreitasn/crossmargin/internal/engine"
	"github.com/efreitasn/crossmargin/internal/venue"
)

const (
	defaultBookDepth = 10
	maxBookDepth     = 100

	// defaultStatsWindow is one minute at the default sequence interval.
	defaultStatsWindow = 120
)

// MarketHandler handles HTTP requests for prices and perp market data.
type MarketHandler struct {
	venue *venue.Venue
}

// NewMarketHandler creates a new MarketHandler.
func NewMarketHandler(v *venue.Venue) *MarketHandler {
	return &MarketHandler{venue: v}
}

type refreshRequest struct {
	Assets      []domain.AssetID  `json:"assets"`
	PerpMarkets []domain.MarketID `json:"perp_markets"`
}

type refreshResponse struct {
	Sequence uint64 `json:"sequence"`
}

type fundingResponse struct {
	Market  domain.MarketID `json:"market"`
	Funding string          `json:"funding"`
}

type levelResponse struct {
	Price         int64 `json:"price"`
	TotalQuantity int64 `json:"total_quantity"`
	OrderCount    int   `json:"order_count"`
}

type bookResponse struct {
	Market       domain.MarketID `json:"market"`
	Bids         []levelResponse `json:"bids"`
	Asks         []levelResponse `json:"asks"`
	Spread       *int64          `json:"spread"`
	Funding      string          `json:"funding"`
	OpenInterest int64           `json:"open_interest"`
}

type fillResponse struct {
	FillID       string `json:"fill_id"`
	MakerOrderID uint64 `json:"maker_order_id"`
	TakerOrderID uint64 `json:"taker_order_id"`
	Maker        string `json:"maker"`
	Taker        string `json:"taker"`
	TakerSide    string `json:"taker_side"`
	Price        int64  `json:"price"`
	Quantity     int64  `json:"quantity"`
	Sequence     uint64 `json:"sequence"`
}

type statsResponse struct {
	Market        domain.MarketID `json:"market"`
	Window        uint64          `json:"window"`
	FillsInWindow int             `json:"fills_in_window"`
	Price         *string         `json:"price"`
	LastFillSeq   *uint64         `json:"last_fill_sequence"`
	IndexPrice    *string         `json:"index_price"`
	Funding       string          `json:"funding"`
	OpenInterest  int64           `json:"open_interest"`
}

type quoteResponse struct {
	Market            domain.MarketID `json:"market"`
	Side              string          `json:"side"`
	QuantityRequested int64           `json:"quantity_requested"`
	QuantityAvailable int64           `json:"quantity_available"`
	FullyFillable     bool            `json:"fully_fillable"`
	EstimatedAvgPrice *string         `json:"estimated_average_price"`
	EstimatedTotal    int64           `json:"estimated_total"`
	PriceLevels       []levelResponse `json:"price_levels"`
}

func marketParam(w http.ResponseWriter, r *http.Request) (domain.MarketID, bool) {
	n, ok := uintParam(w, r, "market", 16)
	return domain.MarketID(n), ok
}

// RefreshPrices handles POST /prices/refresh.
func (h *MarketHandler) RefreshPrices(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !bind(w, r, &req) {
		return
	}
	if err := h.venue.RefreshPrices(r.Context(), req.Assets, req.PerpMarkets); err != nil {
		writeVenueError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, refreshResponse{Sequence: h.venue.Now()})
}

// UpdateFunding handles POST /perp-markets/{market}/funding.
func (h *MarketHandler) UpdateFunding(w http.ResponseWriter, r *http.Request) {
	market, ok := marketParam(w, r)
	if !ok {
		return
	}
	funding, err := h.venue.UpdateFunding(r.Context(), market)
	if err != nil {
		writeVenueError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, fundingResponse{
		Market:  market,
		Funding: domain.FundingDecimal(funding).String(),
	})
}

// GetBook handles GET /perp-markets/{market}/book?depth=n.
func (h *MarketHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	market, ok := marketParam(w, r)
	if !ok {
		return
	}
	depth := defaultBookDepth
	if raw := r.URL.Query().Get("depth"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxBookDepth {
			WriteError(w, http.StatusBadRequest, "validation_error",
				"depth must be an integer between 1 and "+strconv.Itoa(maxBookDepth))
			return
		}
		depth = n
	}

	d, err := h.venue.Depth(market, depth)
	if err != nil {
		writeVenueError(w, err)
		return
	}
	resp := bookResponse{
		Market:       market,
		Bids:         levels(d.Bids),
		Asks:         levels(d.Asks),
		Funding:      domain.FundingDecimal(d.Funding).String(),
		OpenInterest: d.OpenInterest,
	}
	if len(d.Bids) > 0 && len(d.Asks) > 0 {
		spread := d.Asks[0].Price - d.Bids[0].Price
		resp.Spread = &spread
	}
	WriteJSON(w, http.StatusOK, resp)
}

// GetFills handles GET /perp-markets/{market}/fills.
func (h *MarketHandler) GetFills(w http.ResponseWriter, r *http.Request) {
	market, ok := marketParam(w, r)
	if !ok {
		return
	}
	fills, err := h.venue.Fills(market)
	if err != nil {
		writeVenueError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]any{"fills": fillResponses(fills)})
}

func levels(in []engine.PriceLevel) []levelResponse {
	out := make([]levelResponse, len(in))
	for i, l := range in {
		out[i] = levelResponse{Price: l.Price, TotalQuantity: l.TotalQuantity, OrderCount: l.OrderCount}
	}
	return out
}

func fillResponses(fills []domain.Fill) []fillResponse {
	out := make([]fillResponse, len(fills))
	for i, f := range fills {
		out[i] = fillResponse{
			FillID:       f.FillID,
			MakerOrderID: f.MakerOrderID,
			TakerOrderID: f.TakerOrderID,
			Maker:        f.Maker.String(),
			Taker:        f.Taker.String(),
			TakerSide:    f.TakerSide.String(),
			Price:        f.Price,
			Quantity:     f.Quantity,
			Sequence:     f.Sequence,
		}
	}
	return out
}

// GetStats handles GET /perp-markets/{market}/stats?window=n.
func (h *MarketHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	market, ok := marketParam(w, r)
	if !ok {
		return
	}
	window := uint64(defaultStatsWindow)
	if raw := r.URL.Query().Get("window"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "window must be a non-negative integer")
			return
		}
		window = n
	}

	st, err := h.venue.Stats(market, window)
	if err != nil {
		writeVenueError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, statsResponse{
		Market:        market,
		Window:        st.Window,
		FillsInWindow: st.FillsInWindow,
		Price:         nullString(st.Price),
		LastFillSeq:   st.LastFillSeq,
		IndexPrice:    nullString(st.IndexPrice),
		Funding:       domain.FundingDecimal(st.Funding).String(),
		OpenInterest:  st.OpenInterest,
	})
}

// GetQuote handles GET /perp-markets/{market}/quote?side=bid&quantity=n.
func (h *MarketHandler) GetQuote(w http.ResponseWriter, r *http.Request) {
	market, ok := marketParam(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	side, err := domain.ParseSide(q.Get("side"))
	if err != nil {
		writeVenueError(w, err)
		return
	}
	quantity, err := strconv.ParseInt(q.Get("quantity"), 10, 64)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", "quantity must be an integer")
		return
	}

	quote, err := h.venue.Quote(market, side, quantity)
	if err != nil {
		writeVenueError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, quoteResponse{
		Market:            market,
		Side:              side.String(),
		QuantityRequested: quote.Requested,
		QuantityAvailable: quote.Available,
		FullyFillable:     quote.FullyFillable,
		EstimatedAvgPrice: nullString(quote.AveragePrice),
		EstimatedTotal:    quote.Notional,
		PriceLevels:       levels(quote.Levels),
	})
}

func nullString(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.String()
	return &s
}
