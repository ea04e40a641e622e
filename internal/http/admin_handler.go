package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CatalogAdmin changes the catalog source of record.
type CatalogAdmin interface {
	UpsertProduct(ctx context.Context, p domain.Product) error
	DeleteProduct(ctx context.Context, id string) error
}

type AdminHandler struct {
	catalog Catalog
	admin   CatalogAdmin
	orders  Payments
	timeout time.Duration
}

func NewAdminHandler(catalog Catalog, admin CatalogAdmin, orders Payments, timeout time.Duration) *AdminHandler {
	return &AdminHandler{
		catalog: catalog,
		admin:   admin,
		orders:  orders,
		timeout: timeout,
	}
}

type ProductRequestDTO struct {
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Price         decimal.Decimal `json:"price"`
	ImageURL      string          `json:"image_url"`
	StockQuantity int             `json:"stock_quantity"`
	CategoryID    string          `json:"category_id"`
}

func (p ProductRequestDTO) invalidFields() []string {
	var fields []string
	if strings.TrimSpace(p.Name) == "" {
		fields = append(fields, "name")
	}
	if p.Price.IsNegative() {
		fields = append(fields, "price")
	}
	if p.StockQuantity < 0 {
		fields = append(fields, "stock_quantity")
	}
	if strings.TrimSpace(p.CategoryID) == "" {
		fields = append(fields, "category_id")
	}
	return fields
}

// PUT /api/v1/admin/products/{id}
func (h *AdminHandler) UpsertProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req ProductRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if fields := req.invalidFields(); len(fields) > 0 {
		respondErrorDetails(w, http.StatusUnprocessableEntity, "validation_failed", "invalid product", strings.Join(fields, ","))
		return
	}

	p := domain.Product{
		ID:            chi.URLParam(r, "id"),
		Name:          strings.TrimSpace(req.Name),
		Description:   req.Description,
		Price:         req.Price,
		ImageURL:      req.ImageURL,
		StockQuantity: req.StockQuantity,
		CategoryID:    req.CategoryID,
	}
	if err := h.admin.UpsertProduct(ctx, p); err != nil {
		handleError(w, r, err)
		return
	}
	h.clearCache(ctx, r)

	respondJSON(w, http.StatusOK, p)
}

// DELETE /api/v1/admin/products/{id}
func (h *AdminHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.admin.DeleteProduct(ctx, chi.URLParam(r, "id")); err != nil {
		handleError(w, r, err)
		return
	}
	h.clearCache(ctx, r)

	w.WriteHeader(http.StatusNoContent)
}

// POST /api/v1/admin/cache/clear
func (h *AdminHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if err := h.catalog.ClearCache(ctx); err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"cleared": true})
}

// GET /api/v1/admin/orders/{id}
func (h *AdminHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	order, err := h.orders.Order(ctx, chi.URLParam(r, "id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

func (h *AdminHandler) clearCache(ctx context.Context, r *http.Request) {
	if err := h.catalog.ClearCache(ctx); err != nil {
		loggerFrom(r.Context()).Error("failed to clear catalog cache", zap.Error(err))
	}
}
