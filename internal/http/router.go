package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

const maxRequestBodySize = 1 << 20 // 1MB

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

type RouterConfig struct {
	Catalog      Catalog
	CatalogAdmin CatalogAdmin
	Carts        Carts
	Checkouts    Checkouts
	Payments     Payments
	Gate         Gate
	Sessions     SessionTracker
	JWTSecret    []byte
	Timeout      time.Duration
	Health       map[string]HealthCheck
	Log          *zap.Logger
}

func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}

	products := NewProductHandler(cfg.Catalog, cfg.Timeout)
	carts := NewCartHandler(cfg.Carts, cfg.Catalog, cfg.Timeout)
	checkouts := NewCheckoutHandler(cfg.Checkouts, cfg.Payments, cfg.Timeout)
	sessions := NewSessionHandler(cfg.Sessions)
	admin := NewAdminHandler(cfg.Catalog, cfg.CatalogAdmin, cfg.Payments, cfg.Timeout)

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(cfg.Log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestSize(maxRequestBodySize))
	r.Use(middleware.Compress(5))

	r.Get("/health", healthHandler(cfg.Health, cfg.Timeout))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(SessionMiddleware(cfg.JWTSecret, cfg.Sessions))

		r.Get("/categories", products.Categories)
		r.Route("/products", func(r chi.Router) {
			r.Get("/", products.List)
			r.Get("/{id}", products.Get)
		})

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", carts.GetCart)
			r.Delete("/", carts.ClearCart)
			r.Post("/items", carts.AddItem)
			r.Put("/items/{product_id}", carts.UpdateQuantity)
			r.Delete("/items/{product_id}", carts.RemoveItem)
		})

		r.Group(func(r chi.Router) {
			r.Use(RequireUser)

			r.Post("/session/signout", sessions.SignOut)

			r.Route("/checkout", func(r chi.Router) {
				r.Post("/", checkouts.Start)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", checkouts.Get)
					r.Put("/address", checkouts.SubmitAddress)
					r.Post("/back", checkouts.Back)
					r.Put("/coupon", checkouts.ApplyCoupon)
					r.Delete("/coupon", checkouts.RemoveCoupon)
					r.Put("/shipping", checkouts.SelectShipping)
					r.Post("/payment", checkouts.BeginPayment)
					r.Post("/payment/verify", checkouts.VerifyPayment)
					r.Post("/payment/cancel", checkouts.CancelPayment)
					r.Post("/payment/fail", checkouts.PaymentFailed)
				})
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(RequireAdmin(cfg.Gate))

			r.Put("/products/{id}", admin.UpsertProduct)
			r.Delete("/products/{id}", admin.DeleteProduct)
			r.Post("/cache/clear", admin.ClearCache)
			r.Get("/orders/{id}", admin.GetOrder)
		})
	})

	return r
}

func healthHandler(checks map[string]HealthCheck, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		status := http.StatusOK
		report := map[string]string{"status": "ok"}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				report["status"] = "degraded"
				report[name] = err.Error()
				continue
			}
			report[name] = "ok"
		}
		respondJSON(w, status, report)
	}
}
