package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/pkg/circuitbreaker"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const defaultTimeout = 5 * time.Second

// Accessor serves catalog reads from the cache, then the source, then static
// fallback data when the source fails or times out.
type Accessor struct {
	source  Source
	cache   Cache
	sfg     singleflight.Group // coalesces concurrent misses for the same key
	breaker *circuitbreaker.Breaker[any]
	timeout time.Duration
	log     *zap.Logger
}

func NewAccessor(source Source, cache Cache, timeout time.Duration, log *zap.Logger) *Accessor {
	if cache == nil {
		cache = NewMemoryCache(0)
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	cfg := circuitbreaker.DefaultConfig()
	cfg.Ignore = func(err error) bool { return errors.Is(err, ErrProductNotFound) }
	return &Accessor{
		source:  source,
		cache:   cache,
		breaker: circuitbreaker.New[any]("catalog", cfg, log),
		timeout: timeout,
		log:     log,
	}
}

func (a *Accessor) ListProducts(ctx context.Context, categoryID string) ([]domain.Product, error) {
	key := "products:all"
	if categoryID != "" {
		key = "products:category:" + categoryID
	}
	products, err := cached(ctx, a, key, func(ctx context.Context) ([]domain.Product, error) {
		return a.source.ListProducts(ctx, categoryID)
	})
	if err != nil {
		a.log.Warn("catalog list products failed, serving fallback",
			zap.String("category_id", categoryID), zap.Error(err))
		return fallbackList(categoryID), nil
	}
	return products, nil
}

func (a *Accessor) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	product, err := cached(ctx, a, "product:"+id, func(ctx context.Context) (*domain.Product, error) {
		return a.source.GetProduct(ctx, id)
	})
	if err == nil {
		return product, nil
	}
	if errors.Is(err, ErrProductNotFound) {
		return nil, ErrProductNotFound
	}

	a.log.Warn("catalog get product failed, trying fallback", zap.String("product_id", id), zap.Error(err))
	if p, ok := fallbackGet(id); ok {
		return p, nil
	}
	return nil, fmt.Errorf("get product %s: %w", id, ErrCatalogUnavailable)
}

func (a *Accessor) ListCategories(ctx context.Context) ([]domain.Category, error) {
	categories, err := cached(ctx, a, "categories", a.source.ListCategories)
	if err != nil {
		a.log.Warn("catalog list categories failed, serving fallback", zap.Error(err))
		return fallbackCategoryList(), nil
	}
	return categories, nil
}

// SearchProducts is never cached; results depend on free-form input.
func (a *Accessor) SearchProducts(ctx context.Context, term string) ([]domain.Product, error) {
	products, err := call(ctx, a, func(ctx context.Context) ([]domain.Product, error) {
		return a.source.SearchProducts(ctx, term)
	})
	if err != nil {
		a.log.Warn("catalog search failed, serving fallback", zap.String("term", term), zap.Error(err))
		return fallbackSearch(term), nil
	}
	return products, nil
}

// ClearCache drops every cached query result, e.g. after an admin edit.
func (a *Accessor) ClearCache(ctx context.Context) error {
	if err := a.cache.Clear(ctx); err != nil {
		return fmt.Errorf("clear catalog cache: %w", err)
	}
	a.log.Info("catalog cache cleared")
	return nil
}

// call runs fn against the source under the accessor timeout and breaker.
func call[T any](ctx context.Context, a *Accessor, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	v, err := a.breaker.Execute(func() (any, error) {
		callCtx, cancel := context.WithTimeout(ctx, a.timeout)
		defer cancel()
		return fn(callCtx)
	})
	if err != nil {
		return zero, err
	}
	return v.(T), nil
}

func cached[T any](ctx context.Context, a *Accessor, key string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	data, err := a.cache.Get(ctx, key)
	if err == nil {
		var v T
		if errDecode := json.Unmarshal(data, &v); errDecode == nil {
			return v, nil
		}
		a.log.Warn("catalog cache entry undecodable", zap.String("key", key))
	} else if !errors.Is(err, ErrCacheMiss) {
		a.log.Warn("catalog cache get error", zap.String("key", key), zap.Error(err))
	}

	v, err, _ := a.sfg.Do(key, func() (interface{}, error) {
		res, errCall := call(ctx, a, fn)
		if errCall != nil {
			return nil, errCall
		}
		if encoded, errEncode := json.Marshal(res); errEncode == nil {
			if errSet := a.cache.Set(ctx, key, encoded); errSet != nil {
				a.log.Warn("catalog cache set error", zap.String("key", key), zap.Error(errSet))
			}
		}
		return res, nil
	})
	if err != nil {
		return zero, err
	}
	return v.(T), nil
}
