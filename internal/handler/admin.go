package handler

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/crossmargin/internal/domain"
	"github.com/efreitasn/crossmargin/internal/registry"
	"github.com/efreitasn/crossmargin/internal/venue"
)

// AdminHeader carries the caller key of admin requests.
const AdminHeader = "X-Admin-Key"

// AdminHandler handles HTTP requests that change the registry.
type AdminHandler struct {
	venue *venue.Venue
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(v *venue.Venue) *AdminHandler {
	return &AdminHandler{venue: v}
}

type addOracleRequest struct {
	Key domain.Key `json:"key" validate:"required"`
}

// weights is shared by asset and perp market requests. Missing weights
// decode as zero and are rejected by the registry.
type weights struct {
	MaintAssetWeight decimal.Decimal `json:"maint_asset_weight"`
	InitAssetWeight  decimal.Decimal `json:"init_asset_weight"`
	MaintLiabWeight  decimal.Decimal `json:"maint_liab_weight"`
	InitLiabWeight   decimal.Decimal `json:"init_liab_weight"`
}

type addAssetRequest struct {
	Mint     domain.Key      `json:"mint" validate:"required"`
	Oracle   domain.OracleID `json:"oracle"`
	Decimals uint8           `json:"decimals" validate:"lte=18"`
	weights
	OptimalUtil decimal.Decimal `json:"optimal_util"`
	OptimalRate decimal.Decimal `json:"optimal_rate"`
	MaxRate     decimal.Decimal `json:"max_rate"`
}

type addSpotMarketRequest struct {
	External domain.Key     `json:"external" validate:"required"`
	Base     domain.AssetID `json:"base" validate:"gt=0"`
}

type addPerpMarketRequest struct {
	Base        domain.AssetID `json:"base" validate:"gt=0"`
	BaseLotSize int64          `json:"base_lot_size" validate:"gt=0"`
	TickSize    int64          `json:"tick_size" validate:"gt=0"`
	weights
	MaxFundingRate decimal.Decimal `json:"max_funding_rate"`
}

type idResponse struct {
	ID uint16 `json:"id"`
}

type assetResponse struct {
	ID               domain.AssetID `json:"id"`
	Mint             domain.Key     `json:"mint"`
	Oracle           *uint16        `json:"oracle"`
	Decimals         uint8          `json:"decimals"`
	MaintAssetWeight string         `json:"maint_asset_weight"`
	InitAssetWeight  string         `json:"init_asset_weight"`
	MaintLiabWeight  string         `json:"maint_liab_weight"`
	InitLiabWeight   string         `json:"init_liab_weight"`
}

type spotMarketResponse struct {
	ID       domain.MarketID `json:"id"`
	External domain.Key      `json:"external"`
	Base     domain.AssetID  `json:"base"`
}

type perpMarketResponse struct {
	ID             domain.MarketID `json:"id"`
	Base           domain.AssetID  `json:"base"`
	BaseLotSize    int64           `json:"base_lot_size"`
	TickSize       int64           `json:"tick_size"`
	MaxFundingRate string          `json:"max_funding_rate"`
}

type registryResponse struct {
	Admin       domain.Key           `json:"admin"`
	Oracles     []domain.Key         `json:"oracles"`
	Assets      []assetResponse      `json:"assets"`
	SpotMarkets []spotMarketResponse `json:"spot_markets"`
	PerpMarkets []perpMarketResponse `json:"perp_markets"`
}

// caller reads the admin key header. The venue decides whether it is the
// admin.
func caller(w http.ResponseWriter, r *http.Request) (domain.Key, bool) {
	raw := r.Header.Get(AdminHeader)
	if raw == "" {
		WriteError(w, http.StatusForbidden, domain.ErrUnauthorized.Error(), AdminHeader+" header is required")
		return domain.Key{}, false
	}
	k, err := domain.ParseKey(raw)
	if err != nil {
		writeVenueError(w, err)
		return k, false
	}
	return k, true
}

// GetRegistry handles GET /admin/registry.
func (h *AdminHandler) GetRegistry(w http.ResponseWriter, r *http.Request) {
	reg := h.venue.Registry()
	resp := registryResponse{
		Admin:       reg.Admin,
		Oracles:     append([]domain.Key{}, reg.Oracles[:reg.NumOracles]...),
		Assets:      make([]assetResponse, 0, reg.NumAssets),
		SpotMarkets: make([]spotMarketResponse, 0, reg.NumSpotMarkets),
		PerpMarkets: make([]perpMarketResponse, 0, reg.NumPerpMarkets),
	}
	for i, a := range reg.Assets[:reg.NumAssets] {
		ar := assetResponse{
			ID:               domain.AssetID(i),
			Mint:             a.Mint,
			Decimals:         a.Decimals,
			MaintAssetWeight: a.MaintAssetWeight.Decimal().String(),
			InitAssetWeight:  a.InitAssetWeight.Decimal().String(),
			MaintLiabWeight:  a.MaintLiabWeight.Decimal().String(),
			InitLiabWeight:   a.InitLiabWeight.Decimal().String(),
		}
		if a.HasOracle {
			id := uint16(a.Oracle)
			ar.Oracle = &id
		}
		resp.Assets = append(resp.Assets, ar)
	}
	for i, m := range reg.SpotMarkets[:reg.NumSpotMarkets] {
		resp.SpotMarkets = append(resp.SpotMarkets, spotMarketResponse{
			ID: domain.MarketID(i), External: m.External, Base: m.Base,
		})
	}
	for i, m := range reg.PerpMarkets[:reg.NumPerpMarkets] {
		resp.PerpMarkets = append(resp.PerpMarkets, perpMarketResponse{
			ID:             domain.MarketID(i),
			Base:           m.Base,
			BaseLotSize:    m.BaseLotSize,
			TickSize:       m.TickSize,
			MaxFundingRate: m.MaxFundingRate.Decimal().String(),
		})
	}
	WriteJSON(w, http.StatusOK, resp)
}

// AddOracle handles POST /admin/oracles.
func (h *AdminHandler) AddOracle(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req addOracleRequest
	if !bind(w, r, &req) {
		return
	}
	id, err := h.venue.AddOracle(who, req.Key)
	if err != nil {
		writeVenueError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, idResponse{ID: uint16(id)})
}

// AddAsset handles POST /admin/assets.
func (h *AdminHandler) AddAsset(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req addAssetRequest
	if !bind(w, r, &req) {
		return
	}
	id, err := h.venue.AddAsset(who, registry.AssetDescriptor{
		Mint:             req.Mint,
		Oracle:           req.Oracle,
		HasOracle:        true,
		Decimals:         req.Decimals,
		MaintAssetWeight: domain.RatioFromDecimal(req.MaintAssetWeight),
		InitAssetWeight:  domain.RatioFromDecimal(req.InitAssetWeight),
		MaintLiabWeight:  domain.RatioFromDecimal(req.MaintLiabWeight),
		InitLiabWeight:   domain.RatioFromDecimal(req.InitLiabWeight),
		OptimalUtil:      domain.RatioFromDecimal(req.OptimalUtil),
		OptimalRate:      domain.RatioFromDecimal(req.OptimalRate),
		MaxRate:          domain.RatioFromDecimal(req.MaxRate),
	})
	if err != nil {
		writeVenueError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, idResponse{ID: uint16(id)})
}

// AddSpotMarket handles POST /admin/spot-markets.
func (h *AdminHandler) AddSpotMarket(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req addSpotMarketRequest
	if !bind(w, r, &req) {
		return
	}
	id, err := h.venue.AddSpotMarket(who, registry.SpotMarketDescriptor{External: req.External, Base: req.Base})
	if err != nil {
		writeVenueError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, idResponse{ID: uint16(id)})
}

// AddPerpMarket handles POST /admin/perp-markets.
func (h *AdminHandler) AddPerpMarket(w http.ResponseWriter, r *http.Request) {
	who, ok := caller(w, r)
	if !ok {
		return
	}
	var req addPerpMarketRequest
	if !bind(w, r, &req) {
		return
	}
	id, err := h.venue.AddPerpMarket(who, registry.PerpMarketDescriptor{
		Base:             req.Base,
		BaseLotSize:      req.BaseLotSize,
		TickSize:         req.TickSize,
		MaintAssetWeight: domain.RatioFromDecimal(req.MaintAssetWeight),
		InitAssetWeight:  domain.RatioFromDecimal(req.InitAssetWeight),
		MaintLiabWeight:  domain.RatioFromDecimal(req.MaintLiabWeight),
		InitLiabWeight:   domain.RatioFromDecimal(req.InitLiabWeight),
		MaxFundingRate:   domain.RatioFromDecimal(req.MaxFundingRate),
	})
	if err != nil {
		writeVenueError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, idResponse{ID: uint16(id)})
}
