package payment

import (
	"context"
	"errors"
	"sync"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/orders/repository"
)

type memOrders struct {
	mu      sync.Mutex
	orders  map[string]*domain.PendingOrder
	outbox  []repository.OutboxMessage
	markErr error
}

func newMemOrders() *memOrders {
	return &memOrders{orders: make(map[string]*domain.PendingOrder)}
}

func (m *memOrders) CreateOrder(_ context.Context, order *domain.PendingOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.Receipt == order.Receipt {
			return repository.ErrDuplicateReceipt
		}
	}
	cp := *order
	m.orders[order.ID] = &cp
	return nil
}

func (m *memOrders) GetOrder(_ context.Context, id string) (*domain.PendingOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *memOrders) GetOrderByReceipt(_ context.Context, receipt string) (*domain.PendingOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orders {
		if o.Receipt == receipt {
			cp := *o
			return &cp, nil
		}
	}
	return nil, repository.ErrOrderNotFound
}

func (m *memOrders) UpdateStatus(_ context.Context, id string, to domain.OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return repository.ErrOrderNotFound
	}
	if !domain.CanTransitionTo(o.Status, to) {
		return repository.ErrStatusConflict
	}
	o.Status = to
	return nil
}

func (m *memOrders) MarkPaid(_ context.Context, id, paymentID string, event repository.OutboxMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markErr != nil {
		return m.markErr
	}
	o, ok := m.orders[id]
	if !ok {
		return repository.ErrOrderNotFound
	}
	if !domain.CanTransitionTo(o.Status, domain.OrderStatusCompleted) {
		return repository.ErrStatusConflict
	}
	o.Status = domain.OrderStatusCompleted
	o.PaymentID = paymentID
	m.outbox = append(m.outbox, event)
	return nil
}

func (m *memOrders) status(id string) domain.OrderStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders[id].Status
}

type fakeProcessor struct {
	mu       sync.Mutex
	calls    int
	lastAmt  int64
	receipts []string
	err      error
}

var errNetwork = errors.New("connection reset")

func (f *fakeProcessor) CreateOrder(_ context.Context, amountMinor int64, currency, receipt string, _ map[string]string) (*ProcessorOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	f.lastAmt = amountMinor
	f.receipts = append(f.receipts, receipt)
	return &ProcessorOrder{
		ID:       "order_" + receipt,
		Amount:   amountMinor,
		Currency: currency,
		Receipt:  receipt,
		Status:   "created",
	}, nil
}
