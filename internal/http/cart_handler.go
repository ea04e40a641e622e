package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/cart"
	"github.com/go-chi/chi/v5"
)

// Carts hands out the resident cart for a key.
type Carts interface {
	Get(ctx context.Context, key string) (*cart.Store, error)
}

type CartHandler struct {
	carts   Carts
	catalog Catalog
	timeout time.Duration
}

func NewCartHandler(carts Carts, catalog Catalog, timeout time.Duration) *CartHandler {
	return &CartHandler{
		carts:   carts,
		catalog: catalog,
		timeout: timeout,
	}
}

type AddItemRequestDTO struct {
	ProductID string `json:"product_id"`
	Quantity  *int   `json:"quantity,omitempty"`
}

type UpdateQuantityRequestDTO struct {
	Quantity *int `json:"quantity"`
}

// store resolves the caller's cart, answering 401 when there is no cart key.
func (h *CartHandler) store(ctx context.Context, w http.ResponseWriter, r *http.Request) (*cart.Store, bool) {
	key, ok := cartKey(r)
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "sign in or send "+HeaderCartSession)
		return nil, false
	}
	s, err := h.carts.Get(ctx, key)
	if err != nil {
		handleError(w, r, err)
		return nil, false
	}
	return s, true
}

// mutate applies fn to the caller's cart. A cart evicted between lookup and
// write is fetched again once so the change lands on the resident store.
func (h *CartHandler) mutate(ctx context.Context, w http.ResponseWriter, r *http.Request, fn func(*cart.Store) error) (*cart.Store, bool) {
	s, ok := h.store(ctx, w, r)
	if !ok {
		return nil, false
	}
	err := fn(s)
	if errors.Is(err, cart.ErrStoreClosed) {
		if s, ok = h.store(ctx, w, r); !ok {
			return nil, false
		}
		err = fn(s)
	}
	if err != nil {
		handleError(w, r, err)
		return nil, false
	}
	return s, true
}

// GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	s, ok := h.store(ctx, w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, s.View())
}

// POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddItemRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	req.ProductID = strings.TrimSpace(req.ProductID)
	if req.ProductID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
		return
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}

	if _, ok := cartKey(r); !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "sign in or send "+HeaderCartSession)
		return
	}
	product, err := h.catalog.GetProduct(ctx, req.ProductID)
	if err != nil {
		handleError(w, r, err)
		return
	}
	s, ok := h.mutate(ctx, w, r, func(s *cart.Store) error {
		return s.Add(*product, quantity)
	})
	if !ok {
		return
	}

	respondJSON(w, http.StatusCreated, s.View())
}

// PUT /api/v1/cart/items/{product_id}
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req UpdateQuantityRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Quantity == nil {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity is required")
		return
	}

	if _, ok := cartKey(r); !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "sign in or send "+HeaderCartSession)
		return
	}
	productID := chi.URLParam(r, "product_id")
	quantity := *req.Quantity

	var update func(*cart.Store) error
	if quantity <= 0 {
		update = func(s *cart.Store) error { return s.Remove(productID) }
	} else {
		// stock is checked against the catalog, not the copy held in the line
		product, err := h.catalog.GetProduct(ctx, productID)
		if err != nil {
			handleError(w, r, err)
			return
		}
		update = func(s *cart.Store) error { return s.UpdateQuantity(*product, quantity) }
	}
	s, ok := h.mutate(ctx, w, r, update)
	if !ok {
		return
	}

	respondJSON(w, http.StatusOK, s.View())
}

// DELETE /api/v1/cart/items/{product_id}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID := chi.URLParam(r, "product_id")
	s, ok := h.mutate(ctx, w, r, func(s *cart.Store) error {
		return s.Remove(productID)
	})
	if !ok {
		return
	}

	respondJSON(w, http.StatusOK, s.View())
}

// DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	s, ok := h.mutate(ctx, w, r, (*cart.Store).Clear)
	if !ok {
		return
	}

	respondJSON(w, http.StatusOK, s.View())
}
