package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/efreitasn/crossmargin/internal/domain"
	"github.com/efreitasn/crossmargin/internal/oracle"
)

// WriteJSON writes a JSON response with the given status code and data.
// Sets Content-Type to application/json before writing the status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data) // Write error intentionally ignored in response helper
}

// errorResponse is the standard error response format.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteError writes a standard error response with the given status code,
// error code, and human-readable message.
func WriteError(w http.ResponseWriter, status int, errorCode, message string) {
	WriteJSON(w, status, errorResponse{
		Error:   errorCode,
		Message: message,
	})
}

// ParseJSON decodes the request body as JSON into v.
// It validates that the Content-Type header is application/json and
// returns an error for missing/incorrect content type or malformed JSON.
func ParseJSON(r *http.Request, v any) error {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(ct, "application/json") {
		return fmt.Errorf("Request body must be valid JSON with Content-Type: application/json")
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("Request body must be valid JSON with Content-Type: application/json")
	}

	return nil
}

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// bind parses and validates a request body, writing a 400 on failure.
func bind(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := ParseJSON(r, v); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return false
	}
	if err := validate.Struct(v); err != nil {
		var fields validator.ValidationErrors
		if !errors.As(err, &fields) {
			WriteError(w, http.StatusBadRequest, "validation_error", err.Error())
			return false
		}
		msgs := make([]string, 0, len(fields))
		for _, f := range fields {
			if f.Param() != "" {
				msgs = append(msgs, fmt.Sprintf("%s must satisfy %s=%s", f.Field(), f.Tag(), f.Param()))
			} else {
				msgs = append(msgs, fmt.Sprintf("%s must satisfy %s", f.Field(), f.Tag()))
			}
		}
		WriteError(w, http.StatusBadRequest, "validation_error", strings.Join(msgs, "; "))
		return false
	}
	return true
}

// keyParam reads a hex key from the URL path.
func keyParam(w http.ResponseWriter, r *http.Request, name string) (domain.Key, bool) {
	k, err := domain.ParseKey(chi.URLParam(r, name))
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", fmt.Sprintf("%s: %v", name, err))
		return k, false
	}
	return k, true
}

// uintParam reads an unsigned integer of the given bit size from the URL path.
func uintParam(w http.ResponseWriter, r *http.Request, name string, bits int) (uint64, bool) {
	n, err := strconv.ParseUint(chi.URLParam(r, name), 10, bits)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", fmt.Sprintf("%s must be an unsigned integer", name))
		return 0, false
	}
	return n, true
}

// errorStatuses maps sentinel errors to HTTP statuses. The sentinel's text
// is the error code of the response.
var errorStatuses = []struct {
	err    error
	status int
}{
	{domain.ErrStale, http.StatusConflict},
	{domain.ErrBasketFull, http.StatusConflict},
	{domain.ErrBasketSlotInUse, http.StatusConflict},
	{domain.ErrTooManyOpenOrders, http.StatusConflict},
	{domain.ErrBookFull, http.StatusConflict},
	{domain.ErrWouldTakeLiquidity, http.StatusConflict},
	{domain.ErrAccountExists, http.StatusConflict},
	{domain.ErrRegistryFull, http.StatusConflict},
	{domain.ErrInsufficientCollateral, http.StatusUnprocessableEntity},
	{domain.ErrMarginExceeded, http.StatusUnprocessableEntity},
	{domain.ErrBudgetExceeded, http.StatusUnprocessableEntity},
	{domain.ErrNotFound, http.StatusNotFound},
	{domain.ErrAccountNotFound, http.StatusNotFound},
	{domain.ErrUnknownAsset, http.StatusNotFound},
	{domain.ErrUnknownOracle, http.StatusNotFound},
	{domain.ErrUnknownMarket, http.StatusNotFound},
	{domain.ErrUnauthorized, http.StatusForbidden},
	{oracle.ErrNoPrice, http.StatusBadGateway},
}

// writeVenueError maps a venue error to an HTTP response.
func writeVenueError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		WriteError(w, http.StatusBadRequest, "validation_error", validationErr.Message)
		return
	}
	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			WriteError(w, e.status, e.err.Error(), err.Error())
			return
		}
	}
	WriteError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
}
