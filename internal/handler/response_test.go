package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/efreitasn/crossmargin/internal/domain"
	"github.com/efreitasn/crossmargin/internal/oracle"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	if got := w.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q, want %q", got, "application/json")
	}
	var resp errorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	return resp
}

func TestWriteVenueError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"stale", fmt.Errorf("asset 1: %w", domain.ErrStale), http.StatusConflict, "stale"},
		{"basket full", domain.ErrBasketFull, http.StatusConflict, "basket_full"},
		{"basket slot in use", domain.ErrBasketSlotInUse, http.StatusConflict, "basket_slot_in_use"},
		{"too many open orders", domain.ErrTooManyOpenOrders, http.StatusConflict, "too_many_open_orders"},
		{"book full", domain.ErrBookFull, http.StatusConflict, "book_full"},
		{"would take liquidity", domain.ErrWouldTakeLiquidity, http.StatusConflict, "would_take_liquidity"},
		{"account exists", domain.ErrAccountExists, http.StatusConflict, "account_exists"},
		{"registry full", domain.ErrRegistryFull, http.StatusConflict, "registry_full"},
		{"margin exceeded", domain.ErrMarginExceeded, http.StatusUnprocessableEntity, "margin_exceeded"},
		{"insufficient collateral", domain.ErrInsufficientCollateral, http.StatusUnprocessableEntity, "insufficient_collateral"},
		{"budget exceeded", domain.ErrBudgetExceeded, http.StatusUnprocessableEntity, "budget_exceeded"},
		{"not found", domain.ErrNotFound, http.StatusNotFound, "not_found"},
		{"account not found", domain.ErrAccountNotFound, http.StatusNotFound, "account_not_found"},
		{"unknown asset", domain.ErrUnknownAsset, http.StatusNotFound, "unknown_asset"},
		{"unknown oracle", domain.ErrUnknownOracle, http.StatusNotFound, "unknown_oracle"},
		{"unknown market", domain.ErrUnknownMarket, http.StatusNotFound, "unknown_market"},
		{"unauthorized", domain.ErrUnauthorized, http.StatusForbidden, "unauthorized"},
		{"oracle down", fmt.Errorf("reading oracle: %w", oracle.ErrNoPrice), http.StatusBadGateway, "no_price"},
		{"validation", &domain.ValidationError{Message: "bad"}, http.StatusBadRequest, "validation_error"},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeVenueError(w, tt.err)

			if w.Code != tt.status {
				t.Errorf("status code = %d, want %d", w.Code, tt.status)
			}
			if resp := decodeError(t, w); resp.Error != tt.code {
				t.Errorf("error = %q, want %q", resp.Error, tt.code)
			}
		})
	}

	t.Run("wrapped message is kept", func(t *testing.T) {
		w := httptest.NewRecorder()
		writeVenueError(w, fmt.Errorf("asset 3: %w", domain.ErrStale))

		if resp := decodeError(t, w); resp.Message != "asset 3: stale" {
			t.Errorf("message = %q, want %q", resp.Message, "asset 3: stale")
		}
	})

	t.Run("internal errors are not leaked", func(t *testing.T) {
		w := httptest.NewRecorder()
		writeVenueError(w, errors.New("badger: txn too big"))

		if resp := decodeError(t, w); strings.Contains(resp.Message, "badger") {
			t.Errorf("message = %q leaks the cause", resp.Message)
		}
	})
}

func TestBind(t *testing.T) {
	type req struct {
		Amount int64  `json:"amount" validate:"gt=0"`
		Side   string `json:"side" validate:"required,oneof=bid ask"`
	}

	newRequest := func(body, contentType string) *http.Request {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		if contentType != "" {
			r.Header.Set("Content-Type", contentType)
		}
		return r
	}

	t.Run("accepts a valid body", func(t *testing.T) {
		w := httptest.NewRecorder()

		var v req
		if !bind(w, newRequest(`{"amount":5,"side":"bid"}`, "application/json; charset=utf-8"), &v) {
			t.Fatalf("bind failed: %s", w.Body.String())
		}
		if v.Amount != 5 || v.Side != "bid" {
			t.Errorf("got %+v", v)
		}
	})

	t.Run("reports fields by json name", func(t *testing.T) {
		w := httptest.NewRecorder()

		var v req
		if bind(w, newRequest(`{"amount":0,"side":"up"}`, "application/json"), &v) {
			t.Fatal("expected bind to fail")
		}
		if w.Code != http.StatusBadRequest {
			t.Errorf("status code = %d, want %d", w.Code, http.StatusBadRequest)
		}
		resp := decodeError(t, w)
		if resp.Error != "validation_error" {
			t.Errorf("error = %q, want validation_error", resp.Error)
		}
		if !strings.Contains(resp.Message, "amount") || !strings.Contains(resp.Message, "side") {
			t.Errorf("message = %q, should name amount and side", resp.Message)
		}
	})

	rejected := []struct {
		name        string
		body        string
		contentType string
	}{
		{"missing content type", `{"amount":5,"side":"bid"}`, ""},
		{"wrong content type", `{"amount":5,"side":"bid"}`, "text/plain"},
		{"malformed JSON", `{invalid json}`, "application/json"},
		{"unknown field", `{"amount":5,"side":"bid","leverage":10}`, "application/json"},
		{"empty body", ``, "application/json"},
	}
	for _, tt := range rejected {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()

			var v req
			if bind(w, newRequest(tt.body, tt.contentType), &v) {
				t.Fatal("expected bind to fail")
			}
			if w.Code != http.StatusBadRequest {
				t.Errorf("status code = %d, want %d", w.Code, http.StatusBadRequest)
			}
			if resp := decodeError(t, w); resp.Error != "invalid_request" {
				t.Errorf("error = %q, want invalid_request", resp.Error)
			}
		})
	}
}

func withURLParam(r *http.Request, name, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(name, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestKeyParam(t *testing.T) {
	owner := domain.KeyFromString("alice")

	t.Run("decodes a hex key", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := withURLParam(httptest.NewRequest(http.MethodGet, "/", nil), "owner", owner.String())

		k, ok := keyParam(w, r, "owner")
		if !ok {
			t.Fatalf("keyParam failed: %s", w.Body.String())
		}
		if k != owner {
			t.Errorf("key = %s, want %s", k, owner)
		}
	})

	t.Run("rejects a short key", func(t *testing.T) {
		w := httptest.NewRecorder()
		r := withURLParam(httptest.NewRequest(http.MethodGet, "/", nil), "owner", "abcd")

		if _, ok := keyParam(w, r, "owner"); ok {
			t.Fatal("expected keyParam to fail")
		}
		resp := decodeError(t, w)
		if w.Code != http.StatusBadRequest || resp.Error != "validation_error" {
			t.Errorf("got %d %q, want 400 validation_error", w.Code, resp.Error)
		}
		if !strings.HasPrefix(resp.Message, "owner:") {
			t.Errorf("message = %q, should name the parameter", resp.Message)
		}
	})
}

func TestUintParam(t *testing.T) {
	tests := []struct {
		value string
		bits  int
		want  uint64
		ok    bool
	}{
		{"7", 16, 7, true},
		{"65535", 16, 65535, true},
		{"65536", 16, 0, false},
		{"-1", 64, 0, false},
		{"seven", 64, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := withURLParam(httptest.NewRequest(http.MethodGet, "/", nil), "market", tt.value)

			got, ok := uintParam(w, r, "market", tt.bits)
			if ok != tt.ok || got != tt.want {
				t.Errorf("uintParam(%q) = %d, %v, want %d, %v", tt.value, got, ok, tt.want, tt.ok)
			}
			if !ok && w.Code != http.StatusBadRequest {
				t.Errorf("status code = %d, want %d", w.Code, http.StatusBadRequest)
			}
		})
	}
}
