package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/fjod/storefront/internal/access"
	"github.com/fjod/storefront/internal/cart"
	"github.com/fjod/storefront/internal/catalog"
	catalogrepo "github.com/fjod/storefront/internal/catalog/repository"
	"github.com/fjod/storefront/internal/checkout"
	"github.com/fjod/storefront/internal/orders/repository"
	"github.com/fjod/storefront/internal/payment"
	"go.uber.org/zap"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("failed to encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

func respondErrorDetails(w http.ResponseWriter, status int, code, message, details string) {
	respondJSON(w, status, ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	})
}

type errorMapping struct {
	target error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{cart.ErrInvalidQuantity, http.StatusBadRequest, "invalid_quantity"},
	{cart.ErrInsufficientStock, http.StatusConflict, "insufficient_stock"},
	{cart.ErrLineNotFound, http.StatusNotFound, "line_not_found"},
	{cart.ErrStoreClosed, http.StatusServiceUnavailable, "cart_unavailable"},
	{catalog.ErrProductNotFound, http.StatusNotFound, "product_not_found"},
	{catalog.ErrCatalogUnavailable, http.StatusBadGateway, "catalog_unavailable"},
	{catalogrepo.ErrUnknownCategory, http.StatusUnprocessableEntity, "unknown_category"},
	{checkout.ErrCheckoutNotFound, http.StatusNotFound, "checkout_not_found"},
	{checkout.ErrEmptyCart, http.StatusConflict, "empty_cart"},
	{checkout.ErrIllegalTransition, http.StatusConflict, "illegal_transition"},
	{checkout.ErrCheckoutCompleted, http.StatusConflict, "checkout_completed"},
	{checkout.ErrUnknownCoupon, http.StatusUnprocessableEntity, "unknown_coupon"},
	{checkout.ErrUnknownShippingMethod, http.StatusUnprocessableEntity, "unknown_shipping_method"},
	{checkout.ErrNoPayment, http.StatusConflict, "no_payment"},
	{checkout.ErrCartChanged, http.StatusConflict, "cart_changed"},
	{payment.ErrProcessorUnavailable, http.StatusBadGateway, "processor_unavailable"},
	{payment.ErrInvalidAmount, http.StatusUnprocessableEntity, "invalid_amount"},
	{payment.ErrPaymentCancelled, http.StatusConflict, "payment_cancelled"},
	{repository.ErrOrderNotFound, http.StatusNotFound, "order_not_found"},
	{repository.ErrStatusConflict, http.StatusConflict, "order_status_conflict"},
	{access.ErrInvalidToken, http.StatusUnauthorized, "invalid_token"},
	{access.ErrSessionEnded, http.StatusUnauthorized, "session_ended"},
	{context.DeadlineExceeded, http.StatusGatewayTimeout, "timeout"},
}

// handleError maps a service error to a response. Errors it does not know
// are logged and hidden behind a 500.
func handleError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *checkout.ValidationError
	if errors.As(err, &verr) {
		respondErrorDetails(w, http.StatusUnprocessableEntity, "validation_failed", verr.Error(), strings.Join(verr.Fields, ","))
		return
	}

	// every verification failure looks the same to the caller
	if errors.Is(err, payment.ErrVerificationFailed) || errors.Is(err, checkout.ErrOrderMismatch) {
		respondError(w, http.StatusBadRequest, "verification_failed", payment.ErrVerificationFailed.Error())
		return
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			respondError(w, m.status, m.code, m.target.Error())
			return
		}
	}

	loggerFrom(r.Context()).Error("unhandled request error",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err))
	respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}
