package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/storefront/internal/catalog"
	"github.com/fjod/storefront/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// ProductLookup resolves snapshot lines back into products.
type ProductLookup interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
}

// Registry owns the resident cart of every active cart key.
type Registry struct {
	snapshots SnapshotStore
	products  ProductLookup
	debounce  time.Duration
	log       *zap.Logger

	mu     sync.Mutex
	stores map[string]*Store
	// evicting holds keys whose last snapshot is still being written.
	evicting map[string]chan struct{}
	sfg      singleflight.Group
}

func NewRegistry(snapshots SnapshotStore, products ProductLookup, debounce time.Duration, log *zap.Logger) *Registry {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		snapshots: snapshots,
		products:  products,
		debounce:  debounce,
		log:       log,
		stores:    make(map[string]*Store),
		evicting:  make(map[string]chan struct{}),
	}
}

// Get returns the cart for key, hydrating it from its snapshot on first access.
func (r *Registry) Get(ctx context.Context, key string) (*Store, error) {
	if s := r.resident(key); s != nil {
		return s, nil
	}

	v, err, _ := r.sfg.Do(key, func() (interface{}, error) {
		if s := r.resident(key); s != nil {
			return s, nil
		}
		s, err := r.hydrate(ctx, key)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.stores[key] = s
		r.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Store), nil
}

// Evict flushes the cart for key and drops it from memory. A Get for the same
// key waits for the flush before loading the snapshot.
func (r *Registry) Evict(key string) {
	r.mu.Lock()
	s, ok := r.stores[key]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.stores, key)
	done := make(chan struct{})
	r.evicting[key] = done
	r.mu.Unlock()

	s.Close()

	r.mu.Lock()
	delete(r.evicting, key)
	r.mu.Unlock()
	close(done)
}

// Reset empties the cart for key whether or not it is resident.
func (r *Registry) Reset(ctx context.Context, key string) error {
	if s := r.resident(key); s != nil {
		err := s.Clear()
		if err == nil {
			s.Flush()
			return nil
		}
		if !errors.Is(err, ErrStoreClosed) {
			return err
		}
	}
	if err := r.awaitEviction(ctx, key); err != nil {
		return err
	}
	if err := r.snapshots.Delete(ctx, key); err != nil {
		return fmt.Errorf("delete cart snapshot: %w", err)
	}
	return nil
}

// Close flushes every resident cart.
func (r *Registry) Close() {
	r.mu.Lock()
	stores := r.stores
	r.stores = make(map[string]*Store)
	r.mu.Unlock()

	for _, s := range stores {
		s.Close()
	}
}

func (r *Registry) resident(key string) *Store {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stores[key]
}

func (r *Registry) awaitEviction(ctx context.Context, key string) error {
	r.mu.Lock()
	done, ok := r.evicting[key]
	r.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Registry) hydrate(ctx context.Context, key string) (*Store, error) {
	if err := r.awaitEviction(ctx, key); err != nil {
		return nil, err
	}
	s := NewStore(key, r.snapshots, r.debounce, r.log)

	saved, err := r.snapshots.Load(ctx, key)
	if errors.Is(err, ErrNoSnapshot) {
		return s, nil
	}
	if err != nil {
		r.log.Error("failed to load cart snapshot, starting empty", zap.String("cart_key", key), zap.Error(err))
		return s, nil
	}

	lines := make([]domain.CartLine, 0, len(saved))
	adjusted := false
	for _, sl := range saved {
		if sl.Quantity <= 0 {
			adjusted = true
			continue
		}
		p, err := r.products.GetProduct(ctx, sl.ProductID)
		if errors.Is(err, catalog.ErrProductNotFound) {
			r.log.Info("dropping cart line for removed product",
				zap.String("cart_key", key), zap.String("product_id", sl.ProductID))
			adjusted = true
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("hydrate cart %s: %w", key, err)
		}

		qty := sl.Quantity
		if qty > p.StockQuantity {
			r.log.Info("capping cart line to available stock",
				zap.String("cart_key", key),
				zap.String("product_id", sl.ProductID),
				zap.Int("saved", sl.Quantity),
				zap.Int("stock", p.StockQuantity))
			qty = p.StockQuantity
			adjusted = true
		}
		if qty == 0 {
			continue
		}
		lines = append(lines, domain.CartLine{Product: *p, Quantity: qty})
	}

	s.restore(lines)
	if adjusted {
		s.schedule()
	}
	return s, nil
}
