package catalog

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fjod/storefront/internal/domain"
)

type mockSource struct {
	mu         sync.Mutex
	products   []domain.Product
	categories []domain.Category
	err        error
	delay      time.Duration
	calls      atomic.Int32
}

func (m *mockSource) wait(ctx context.Context) error {
	m.calls.Add(1)
	if m.delay > 0 {
		select {
		case <-time.After(m.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

func (m *mockSource) setErr(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

func (m *mockSource) ListProducts(ctx context.Context, categoryID string) ([]domain.Product, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	var out []domain.Product
	for _, p := range m.products {
		if categoryID == "" || p.CategoryID == categoryID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockSource) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	for i := range m.products {
		if m.products[i].ID == id {
			p := m.products[i]
			return &p, nil
		}
	}
	return nil, ErrProductNotFound
}

func (m *mockSource) ListCategories(ctx context.Context) ([]domain.Category, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	return m.categories, nil
}

func (m *mockSource) SearchProducts(ctx context.Context, _ string) ([]domain.Product, error) {
	if err := m.wait(ctx); err != nil {
		return nil, err
	}
	return m.products, nil
}
