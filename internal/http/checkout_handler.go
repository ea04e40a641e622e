package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/checkout"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/payment"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Checkouts drives checkout sessions.
type Checkouts interface {
	Start(ctx context.Context, user domain.User, cartKey string) (*checkout.Session, error)
	Get(userID, id string) (*checkout.Session, error)
	SubmitAddress(userID, id string, addr checkout.Address) (*checkout.Session, error)
	Back(userID, id string) (*checkout.Session, error)
	ApplyCoupon(userID, id, code string) (*checkout.Session, error)
	RemoveCoupon(userID, id string) (*checkout.Session, error)
	SelectShipping(userID, id string, method checkout.ShippingMethod) (*checkout.Session, error)
	Quote(ctx context.Context, userID, id string) (checkout.Breakdown, error)
	BeginPayment(ctx context.Context, userID, id string) (*domain.PendingOrder, error)
	ConfirmPayment(ctx context.Context, userID, id, orderID, paymentID, signature string) (*checkout.Session, error)
	CancelPayment(ctx context.Context, userID, id string) error
}

// Payments is the part of the payment bridge the widget flow needs.
type Payments interface {
	Order(ctx context.Context, orderID string) (*domain.PendingOrder, error)
	Open(ctx context.Context, orderID string) error
	Fail(ctx context.Context, orderID, reason string) error
	WidgetOptions(order *domain.PendingOrder, prefill payment.Prefill) payment.WidgetOptions
}

type CheckoutHandler struct {
	checkouts Checkouts
	payments  Payments
	timeout   time.Duration
}

func NewCheckoutHandler(checkouts Checkouts, payments Payments, timeout time.Duration) *CheckoutHandler {
	return &CheckoutHandler{
		checkouts: checkouts,
		payments:  payments,
		timeout:   timeout,
	}
}

type CheckoutResponseDTO struct {
	Checkout *checkout.Session  `json:"checkout"`
	Quote    checkout.Breakdown `json:"quote"`
}

type CouponRequestDTO struct {
	Code string `json:"code"`
}

type ShippingRequestDTO struct {
	Method checkout.ShippingMethod `json:"method"`
}

type PaymentResponseDTO struct {
	Order  *domain.PendingOrder  `json:"order"`
	Widget payment.WidgetOptions `json:"widget"`
}

type VerifyPaymentRequestDTO struct {
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id"`
	Signature string `json:"signature"`
}

type VerifyPaymentResponseDTO struct {
	Verified bool              `json:"verified"`
	Checkout *checkout.Session `json:"checkout"`
}

type PaymentFailedRequestDTO struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

// POST /api/v1/checkout
func (h *CheckoutHandler) Start(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	user, _ := UserFromContext(r.Context())
	s, err := h.checkouts.Start(ctx, *user, user.ID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	h.respondCheckout(ctx, w, r, http.StatusCreated, s)
}

// GET /api/v1/checkout/{id}
func (h *CheckoutHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	user, _ := UserFromContext(r.Context())
	s, err := h.checkouts.Get(user.ID, chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	h.respondCheckout(ctx, w, r, http.StatusOK, s)
}

// PUT /api/v1/checkout/{id}/address
func (h *CheckoutHandler) SubmitAddress(w http.ResponseWriter, r *http.Request) {
	var addr checkout.Address
	if !decodeJSON(w, r, &addr) {
		return
	}
	h.step(w, r, func(userID, id string) (*checkout.Session, error) {
		return h.checkouts.SubmitAddress(userID, id, addr)
	})
}

// POST /api/v1/checkout/{id}/back
func (h *CheckoutHandler) Back(w http.ResponseWriter, r *http.Request) {
	h.step(w, r, h.checkouts.Back)
}

// PUT /api/v1/checkout/{id}/coupon
func (h *CheckoutHandler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	var req CouponRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	h.step(w, r, func(userID, id string) (*checkout.Session, error) {
		return h.checkouts.ApplyCoupon(userID, id, req.Code)
	})
}

// DELETE /api/v1/checkout/{id}/coupon
func (h *CheckoutHandler) RemoveCoupon(w http.ResponseWriter, r *http.Request) {
	h.step(w, r, h.checkouts.RemoveCoupon)
}

// PUT /api/v1/checkout/{id}/shipping
func (h *CheckoutHandler) SelectShipping(w http.ResponseWriter, r *http.Request) {
	var req ShippingRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	h.step(w, r, func(userID, id string) (*checkout.Session, error) {
		return h.checkouts.SelectShipping(userID, id, checkout.ShippingMethod(strings.ToLower(string(req.Method))))
	})
}

// POST /api/v1/checkout/{id}/payment
func (h *CheckoutHandler) BeginPayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	user, _ := UserFromContext(r.Context())
	id := chi.URLParam(r, "id")

	order, err := h.checkouts.BeginPayment(ctx, user.ID, id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	s, err := h.checkouts.Get(user.ID, id)
	if err != nil {
		handleError(w, r, err)
		return
	}
	if err := h.payments.Open(ctx, order.ID); err != nil {
		handleError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, PaymentResponseDTO{
		Order: order,
		Widget: h.payments.WidgetOptions(order, payment.Prefill{
			Name:    s.Address.FullName,
			Email:   s.Address.Email,
			Contact: s.Address.Phone,
		}),
	})
}

// POST /api/v1/checkout/{id}/payment/verify
func (h *CheckoutHandler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req VerifyPaymentRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.OrderID == "" || req.PaymentID == "" || req.Signature == "" {
		respondError(w, http.StatusBadRequest, "missing_fields", "order_id, payment_id and signature are required")
		return
	}

	user, _ := UserFromContext(r.Context())
	s, err := h.checkouts.ConfirmPayment(ctx, user.ID, chi.URLParam(r, "id"), req.OrderID, req.PaymentID, req.Signature)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, VerifyPaymentResponseDTO{Verified: true, Checkout: s})
}

// POST /api/v1/checkout/{id}/payment/cancel
func (h *CheckoutHandler) CancelPayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	user, _ := UserFromContext(r.Context())
	err := h.checkouts.CancelPayment(ctx, user.ID, chi.URLParam(r, "id"))
	if err != nil && !errors.Is(err, payment.ErrPaymentCancelled) {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"cancelled": true})
}

// POST /api/v1/checkout/{id}/payment/fail
func (h *CheckoutHandler) PaymentFailed(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req PaymentFailedRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}

	user, _ := UserFromContext(r.Context())
	s, err := h.checkouts.Get(user.ID, chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	if s.OrderID == "" || s.OrderID != req.OrderID {
		respondError(w, http.StatusUnprocessableEntity, "order_mismatch", "order does not belong to this checkout")
		return
	}
	if err := h.payments.Fail(ctx, req.OrderID, req.Reason); err != nil {
		handleError(w, r, err)
		return
	}

	order, err := h.payments.Order(ctx, req.OrderID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (h *CheckoutHandler) step(w http.ResponseWriter, r *http.Request, fn func(userID, id string) (*checkout.Session, error)) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	user, _ := UserFromContext(r.Context())
	s, err := fn(user.ID, chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	h.respondCheckout(ctx, w, r, http.StatusOK, s)
}

func (h *CheckoutHandler) respondCheckout(ctx context.Context, w http.ResponseWriter, r *http.Request, status int, s *checkout.Session) {
	q, err := h.checkouts.Quote(ctx, s.UserID, s.ID)
	if err != nil {
		// the session itself is fine; the quote is recomputed on the next read
		loggerFrom(r.Context()).Warn("quote unavailable", zap.String("checkout_id", s.ID), zap.Error(err))
	}
	respondJSON(w, status, CheckoutResponseDTO{Checkout: s, Quote: q})
}
