package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fjod/storefront/internal/access"
	"github.com/fjod/storefront/internal/cart"
	"github.com/fjod/storefront/internal/catalog"
	"github.com/fjod/storefront/internal/checkout"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/orders/repository"
	"github.com/fjod/storefront/internal/payment"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testJWTSecret     = "jwt-secret"
	testPaymentSecret = "payment-secret"

	timeoutForTests = 5 * time.Second
)

type fakeCatalog struct {
	mu       sync.Mutex
	products map[string]domain.Product
	cleared  int
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{products: map[string]domain.Product{
		"1": {ID: "1", Name: "Smartphone X", Price: decimal.RequireFromString("25.00"), StockQuantity: 10, CategoryID: "1"},
		"2": {ID: "2", Name: "Laptop Pro", Price: decimal.RequireFromString("60.00"), StockQuantity: 2, CategoryID: "1"},
		"3": {ID: "3", Name: "Yoga Mat", Price: decimal.RequireFromString("9.99"), StockQuantity: 0, CategoryID: "6"},
	}}
}

func (c *fakeCatalog) ListProducts(_ context.Context, categoryID string) ([]domain.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []domain.Product
	for _, id := range []string{"1", "2", "3"} {
		p, ok := c.products[id]
		if ok && (categoryID == "" || p.CategoryID == categoryID) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (c *fakeCatalog) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.products[id]
	if !ok {
		return nil, catalog.ErrProductNotFound
	}
	return &p, nil
}

func (c *fakeCatalog) ListCategories(context.Context) ([]domain.Category, error) {
	return []domain.Category{{ID: "1", Name: "Electronics"}, {ID: "6", Name: "Sports"}}, nil
}

func (c *fakeCatalog) SearchProducts(_ context.Context, term string) ([]domain.Product, error) {
	if term == "yoga" {
		p, _ := c.GetProduct(context.Background(), "3")
		return []domain.Product{*p}, nil
	}
	return nil, nil
}

func (c *fakeCatalog) ClearCache(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cleared++
	return nil
}

func (c *fakeCatalog) UpsertProduct(_ context.Context, p domain.Product) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[p.ID] = p
	return nil
}

func (c *fakeCatalog) DeleteProduct(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.products[id]; !ok {
		return catalog.ErrProductNotFound
	}
	delete(c.products, id)
	return nil
}

type memOrders struct {
	mu     sync.Mutex
	orders map[string]*domain.PendingOrder
}

func (m *memOrders) CreateOrder(_ context.Context, order *domain.PendingOrder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
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

func (m *memOrders) MarkPaid(_ context.Context, id, paymentID string, _ repository.OutboxMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return repository.ErrOrderNotFound
	}
	if !domain.CanTransitionTo(o.Status, domain.OrderStatusCompleted) {
		return repository.ErrStatusConflict
	}
	o.Status = domain.OrderStatusCompleted
	o.PaymentID = paymentID
	return nil
}

// newProcessor fakes the processor's order endpoint.
func newProcessor(t *testing.T) *httptest.Server {
	var mu sync.Mutex
	n := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Amount   int64  `json:"amount"`
			Currency string `json:"currency"`
			Receipt  string `json:"receipt"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		mu.Lock()
		n++
		id := fmt.Sprintf("order_%d", n)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id": id, "amount": body.Amount, "currency": body.Currency, "status": "created",
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

type testServer struct {
	handler  http.Handler
	catalog  *fakeCatalog
	carts    *cart.Registry
	orders   *memOrders
	sessions *access.Sessions
	redis    *miniredis.Miniredis
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := zap.NewNop()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	cat := newFakeCatalog()
	carts := cart.NewRegistry(cart.NewRedisSnapshotStore(rdb, time.Hour), cat, 10*time.Millisecond, log)
	t.Cleanup(carts.Close)

	proc := newProcessor(t)
	client, err := payment.NewClient(proc.URL, "rzp_test_key", testPaymentSecret, proc.Client(), log)
	require.NoError(t, err)
	orders := &memOrders{orders: make(map[string]*domain.PendingOrder)}
	bridge := payment.NewBridge(client, orders, payment.Config{
		KeyID:        "rzp_test_key",
		KeySecret:    testPaymentSecret,
		MerchantName: "MyStore",
	}, log)

	pricing := checkout.Pricing{
		Currency:              "INR",
		TaxRate:               decimal.RequireFromString("0.05"),
		FreeShippingThreshold: decimal.RequireFromString("50"),
		FlatShippingFee:       decimal.RequireFromString("40"),
		ExpressShippingFee:    decimal.RequireFromString("100"),
		Coupons: map[string]checkout.Coupon{
			"WELCOME10": {Percent: decimal.RequireFromString("0.10")},
		},
	}
	orch := checkout.NewOrchestrator(carts, bridge, pricing, log)

	sessions := access.NewSessions()
	sessions.Subscribe(func(ev access.Event) {
		if ev.Type == access.SignedOut && ev.LastSession {
			carts.Evict(ev.User.ID)
		}
	})

	h := NewRouter(RouterConfig{
		Catalog:      cat,
		CatalogAdmin: cat,
		Carts:        carts,
		Checkouts:    orch,
		Payments:     bridge,
		Gate:         access.NewGate([]string{"admin@example.com"}, nil, log),
		Sessions:     sessions,
		JWTSecret:    []byte(testJWTSecret),
		Timeout:      timeoutForTests,
		Log:          log,
	})

	return &testServer{handler: h, catalog: cat, carts: carts, orders: orders, sessions: sessions, redis: mr}
}

func tokenFor(t *testing.T, user domain.User) string {
	t.Helper()
	tok, err := access.IssueToken(user, []byte(testJWTSecret), time.Hour)
	require.NoError(t, err)
	return tok
}
