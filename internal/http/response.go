package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/M-a-K-s-1-M/neshopify-sub000/internal/domain"
	"github.com/M-a-K-s-1-M/neshopify-sub000/internal/service"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
	OrderID string `json:"order_id,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// writeServiceError maps domain error kinds to HTTP responses. Unclassified errors are
// logged and reported as a generic 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	var orphan *service.OrphanOrderError
	if errors.As(err, &orphan) {
		respondJSON(w, http.StatusServiceUnavailable, ErrorResponse{
			Error:   "payment provider is unavailable, please try again later",
			Code:    "payment_unavailable",
			OrderID: orphan.OrderID.String(),
		})
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		respondError(w, http.StatusNotFound, "not_found", notFoundMessage(err))
	case errors.Is(err, domain.ErrInvalidState):
		respondError(w, http.StatusBadRequest, invalidStateCode(err), invalidStateMessage(err))
	case errors.Is(err, domain.ErrUnauthenticated):
		respondError(w, http.StatusUnauthorized, "unauthenticated", "missing tenant or shopper identity")
	case errors.Is(err, domain.ErrUnauthorized):
		respondError(w, http.StatusForbidden, "forbidden", "insufficient role")
	case errors.Is(err, domain.ErrExternalServiceUnavailable):
		respondError(w, http.StatusServiceUnavailable, "service_unavailable", "payment provider is unavailable, please try again later")
	case errors.Is(err, domain.ErrSignatureInvalid):
		respondError(w, http.StatusBadRequest, "invalid_signature", "invalid signature")
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "timeout", "request timed out")
	default:
		log.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

var notFoundMessages = []error{
	domain.ErrOrderNotFound,
	domain.ErrItemNotFound,
	domain.ErrProductNotFound,
	domain.ErrCartNotFound,
}

func notFoundMessage(err error) string {
	for _, known := range notFoundMessages {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return "not found"
}

var invalidStateCodes = []struct {
	err  error
	code string
}{
	{domain.ErrCartEmpty, "cart_empty"},
	{domain.ErrMixedCurrency, "mixed_currency"},
	{domain.ErrInvalidQuantity, "invalid_quantity"},
	{domain.ErrProductUnavailable, "product_unavailable"},
	{domain.ErrUnknownStatus, "invalid_status"},
	{domain.ErrUnknownPayment, "invalid_payment_status"},
	{domain.ErrNothingToUpdate, "nothing_to_update"},
	{domain.ErrCheckoutInProgress, "checkout_in_progress"},
}

func invalidStateCode(err error) string {
	for _, c := range invalidStateCodes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "invalid_state"
}

func invalidStateMessage(err error) string {
	for _, c := range invalidStateCodes {
		if errors.Is(err, c.err) {
			return c.err.Error()
		}
	}
	return err.Error()
}
