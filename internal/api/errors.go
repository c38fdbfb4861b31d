package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"warehouseservice/internal/product"
	"warehouseservice/internal/purchase"
)

// statusClientClosedRequest is reported when the caller went away before the
// request finished. net/http has no constant for it.
const statusClientClosedRequest = 499

type jsonError struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func WriteJSONError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, jsonError{Error: code, Details: details})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps domain errors to an HTTP status and an error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest, "client_closed_request"
	case errors.Is(err, product.ErrInvalidQuantity):
		return http.StatusBadRequest, "invalid_quantity"
	case errors.Is(err, product.ErrInvalidProduct):
		return http.StatusBadRequest, "invalid_product"
	case errors.Is(err, product.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, product.ErrInsufficientStock):
		return http.StatusConflict, "insufficient_stock"
	case errors.Is(err, product.ErrStaleVersion):
		return http.StatusConflict, "stale_version"
	case errors.Is(err, purchase.ErrPurchaseRejected):
		return http.StatusConflict, "purchase_rejected"
	case errors.Is(err, purchase.ErrConfirmationTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "confirmation_timeout"
	case errors.Is(err, product.ErrTransport):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	WriteJSONError(w, status, code, err.Error())
}
