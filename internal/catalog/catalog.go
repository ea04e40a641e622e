package catalog

import (
	"context"
	"errors"

	"github.com/fjod/storefront/internal/domain"
)

var (
	ErrProductNotFound    = errors.New("product not found")
	ErrCatalogUnavailable = errors.New("catalog unavailable")
	ErrCacheMiss          = errors.New("cache miss")
)

// Source is the backing product store.
type Source interface {
	ListProducts(ctx context.Context, categoryID string) ([]domain.Product, error)
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)
	// SearchProducts matches term as a case-insensitive substring of the name, ordered by name.
	SearchProducts(ctx context.Context, term string) ([]domain.Product, error)
}

// Cache stores encoded query results keyed by query shape.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Clear(ctx context.Context) error
}
