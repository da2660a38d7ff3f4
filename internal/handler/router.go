package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/efreitasn/crossmargin/internal/metrics"
	"github.com/efreitasn/crossmargin/internal/venue"
)

// NewRouter creates a chi router with all routes registered, request ids,
// request logging, and Content-Type validation middleware.
func NewRouter(v *venue.Venue, logger *slog.Logger) chi.Router {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(requestID)
	r.Use(requestLogging(logger))
	r.Use(contentTypeJSON)

	adminH := NewAdminHandler(v)
	marketH := NewMarketHandler(v)
	accountH := NewAccountHandler(v)
	orderH := NewOrderHandler(v)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]any{"status": "ok", "sequence": v.Now()})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/admin", func(r chi.Router) {
		r.Get("/registry", adminH.GetRegistry)
		r.Post("/oracles", adminH.AddOracle)
		r.Post("/assets", adminH.AddAsset)
		r.Post("/spot-markets", adminH.AddSpotMarket)
		r.Post("/perp-markets", adminH.AddPerpMarket)
	})

	r.Post("/prices/refresh", marketH.RefreshPrices)
	r.Route("/perp-markets/{market}", func(r chi.Router) {
		r.Post("/funding", marketH.UpdateFunding)
		r.Get("/book", marketH.GetBook)
		r.Get("/fills", marketH.GetFills)
		r.Get("/stats", marketH.GetStats)
		r.Get("/quote", marketH.GetQuote)
	})

	r.Post("/accounts", accountH.Open)
	r.Route("/accounts/{owner}", func(r chi.Router) {
		r.Get("/", accountH.Get)
		r.Post("/deposits", accountH.Deposit)
		r.Post("/withdrawals", accountH.Withdraw)
		r.Post("/basket", accountH.AcquireBasketSlot)
		r.Delete("/basket/{market}", accountH.ReleaseBasketSlot)
		r.Post("/perp-orders", orderH.PlaceOrder)
		r.Delete("/perp-orders/{market}/{order_id}", orderH.CancelOrder)
		r.Delete("/perp-orders/{market}/client/{client_id}", orderH.CancelOrderByClientID)
	})

	return r
}

type ctxKey struct{}

// requestID tags every request with an id, reusing X-Request-ID when the
// caller supplies one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

// RequestID returns the id requestID attached to ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// requestLogging returns middleware that logs each request's method, path,
// status code, and duration using slog.
func requestLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request",
				slog.String("request_id", RequestID(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// contentTypeJSON is middleware that validates Content-Type for POST, PUT, and
// PATCH requests that carry a body. If the Content-Type header doesn't start
// with "application/json", it returns 400 Bad Request before the handler runs.
func contentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hasBody := r.ContentLength != 0
		if hasBody && (r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch) {
			ct := r.Header.Get("Content-Type")
			if ct == "" || !strings.HasPrefix(ct, "application/json") {
				WriteError(w, http.StatusBadRequest, "invalid_request",
					"Content-Type must be application/json")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}
