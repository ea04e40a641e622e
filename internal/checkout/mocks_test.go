package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/fjod/storefront/internal/cart"
	"github.com/fjod/storefront/internal/domain"
)

var (
	errVerification = errors.New("payment verification failed")
	errCancelled    = errors.New("payment cancelled")
	errProcessor    = errors.New("processor unavailable")
)

type fakeCarts struct {
	mu     sync.Mutex
	stores map[string]*cart.Store
	resets []string
}

func newFakeCarts() *fakeCarts {
	return &fakeCarts{stores: make(map[string]*cart.Store)}
}

func (f *fakeCarts) Get(_ context.Context, key string) (*cart.Store, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.stores[key]
	if !ok {
		s = cart.NewStore(key, nil, 0, nil)
		f.stores[key] = s
	}
	return s, nil
}

func (f *fakeCarts) Reset(ctx context.Context, key string) error {
	s, _ := f.Get(ctx, key)
	if err := s.Clear(); err != nil {
		return err
	}
	f.mu.Lock()
	f.resets = append(f.resets, key)
	f.mu.Unlock()
	return nil
}

type mockBridge struct {
	mu        sync.Mutex
	orders    map[string]*domain.PendingOrder
	requests  []domain.OrderRequest
	createErr error
	verifyOK  bool
	cancelled []string
	failed    []string
}

func newMockBridge() *mockBridge {
	return &mockBridge{orders: make(map[string]*domain.PendingOrder), verifyOK: true}
}

func (m *mockBridge) CreateOrder(_ context.Context, req domain.OrderRequest) (*domain.PendingOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return nil, m.createErr
	}
	m.requests = append(m.requests, req)
	o := &domain.PendingOrder{
		ID:       fmt.Sprintf("order_%d", len(m.requests)),
		Receipt:  req.Receipt,
		UserID:   req.UserID,
		CartKey:  req.CartKey,
		Amount:   req.Amount,
		Currency: req.Currency,
		Status:   domain.OrderStatusCreated,
	}
	m.orders[o.ID] = o
	cp := *o
	return &cp, nil
}

func (m *mockBridge) Order(_ context.Context, id string) (*domain.PendingOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, errors.New("order not found")
	}
	cp := *o
	return &cp, nil
}

func (m *mockBridge) Verify(_ context.Context, orderID, _, signature string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok || !m.verifyOK || signature == "" {
		return errVerification
	}
	o.Status = domain.OrderStatusCompleted
	return nil
}

func (m *mockBridge) Cancel(_ context.Context, orderID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelled = append(m.cancelled, orderID)
	return errCancelled
}

func (m *mockBridge) Fail(_ context.Context, orderID, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok {
		return errors.New("order not found")
	}
	if o.Status.IsTerminal() {
		return fmt.Errorf("order %s already %s", orderID, o.Status)
	}
	o.Status = domain.OrderStatusFailed
	m.failed = append(m.failed, orderID)
	return nil
}

func (m *mockBridge) status(id string) domain.OrderStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders[id].Status
}

func (m *mockBridge) setStatus(id string, status domain.OrderStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[id].Status = status
}
