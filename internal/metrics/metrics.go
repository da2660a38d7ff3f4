// Package metrics exposes venue activity as Prometheus series.
package metrics

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/efreitasn/crossmargin/internal/domain"
)

var (
	ordersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crossmargin",
			Subsystem: "perp",
			Name:      "orders_total",
			Help:      "Perp orders processed, by outcome",
		},
		[]string{"market", "kind", "status"},
	)

	fillsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crossmargin",
			Subsystem: "perp",
			Name:      "fills_total",
			Help:      "Fills executed",
		},
		[]string{"market"},
	)

	lotsTraded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crossmargin",
			Subsystem: "perp",
			Name:      "lots_traded_total",
			Help:      "Lots executed across all fills",
		},
		[]string{"market"},
	)

	openInterest = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "crossmargin",
			Subsystem: "perp",
			Name:      "open_interest_lots",
			Help:      "Sum of absolute positions in the market",
		},
		[]string{"market"},
	)

	rejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crossmargin",
			Subsystem: "venue",
			Name:      "rejections_total",
			Help:      "Requests rejected, by operation and reason",
		},
		[]string{"operation", "reason"},
	)

	refreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crossmargin",
			Subsystem: "cache",
			Name:      "refreshes_total",
			Help:      "Price cache entries refreshed",
		},
		[]string{"kind"},
	)
)

func market(id domain.MarketID) string {
	return strconv.Itoa(int(id))
}

// ObserveOrder counts a processed order.
func ObserveOrder(id domain.MarketID, kind domain.OrderKind, status domain.OrderStatus) {
	ordersTotal.WithLabelValues(market(id), kind.String(), string(status)).Inc()
}

// ObserveFills counts the fills of one order and the lots they moved.
func ObserveFills(id domain.MarketID, fills []domain.Fill) {
	if len(fills) == 0 {
		return
	}
	var lots int64
	for _, f := range fills {
		lots += f.Quantity
	}
	fillsTotal.WithLabelValues(market(id)).Add(float64(len(fills)))
	lotsTraded.WithLabelValues(market(id)).Add(float64(lots))
}

// SetOpenInterest publishes the open interest of a market.
func SetOpenInterest(id domain.MarketID, lots int64) {
	openInterest.WithLabelValues(market(id)).Set(float64(lots))
}

// ObserveRejection counts a failed operation under the reason err maps to.
func ObserveRejection(operation string, err error) {
	rejectionsTotal.WithLabelValues(operation, Reason(err)).Inc()
}

// ObserveRefresh counts refreshed cache entries of a kind ("asset" or "perp").
func ObserveRefresh(kind string, n int) {
	refreshesTotal.WithLabelValues(kind).Add(float64(n))
}

var reasons = []error{
	domain.ErrStale,
	domain.ErrInsufficientCollateral,
	domain.ErrMarginExceeded,
	domain.ErrBasketFull,
	domain.ErrBasketSlotInUse,
	domain.ErrTooManyOpenOrders,
	domain.ErrBookFull,
	domain.ErrNotFound,
	domain.ErrBudgetExceeded,
	domain.ErrUnauthorized,
	domain.ErrWouldTakeLiquidity,
	domain.ErrUnknownAsset,
	domain.ErrUnknownOracle,
	domain.ErrUnknownMarket,
	domain.ErrRegistryFull,
	domain.ErrAccountExists,
	domain.ErrAccountNotFound,
}

// Reason returns a bounded label for err: the message of the domain
// sentinel it wraps, "validation", or "internal".
func Reason(err error) string {
	for _, r := range reasons {
		if errors.Is(err, r) {
			return r.Error()
		}
	}
	var ve *domain.ValidationError
	if errors.As(err, &ve) {
		return "validation"
	}
	return "internal"
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
