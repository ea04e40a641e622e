package checkout

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fjod/storefront/internal/cart"
	"github.com/fjod/storefront/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Carts gives access to shoppers' carts by key.
type Carts interface {
	Get(ctx context.Context, key string) (*cart.Store, error)
	Reset(ctx context.Context, key string) error
}

// PaymentBridge creates and settles processor orders.
type PaymentBridge interface {
	CreateOrder(ctx context.Context, req domain.OrderRequest) (*domain.PendingOrder, error)
	Order(ctx context.Context, orderID string) (*domain.PendingOrder, error)
	Verify(ctx context.Context, orderID, paymentID, signature string) error
	Cancel(ctx context.Context, orderID string) error
	Fail(ctx context.Context, orderID, reason string) error
}

const (
	// confirmedRetention keeps a completed checkout readable by the confirmation page.
	confirmedRetention = 15 * time.Minute
	idleExpiry         = 2 * time.Hour
	sweepInterval      = time.Minute
)

type entry struct {
	mu      sync.Mutex
	session Session
}

type openCheckout struct {
	id     string
	userID string
}

type Orchestrator struct {
	carts   Carts
	payment PaymentBridge
	pricing Pricing
	log     *zap.Logger
	now     func() time.Time

	mu        sync.RWMutex
	sessions  map[string]*entry
	open      map[string]openCheckout // by cart key
	lastSweep time.Time
}

func NewOrchestrator(carts Carts, payment PaymentBridge, pricing Pricing, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{
		carts:    carts,
		payment:  payment,
		pricing:  pricing,
		log:      log,
		now:      time.Now,
		sessions: make(map[string]*entry),
		open:     make(map[string]openCheckout),
	}
}

func (o *Orchestrator) Pricing() Pricing { return o.pricing }

// Start opens a checkout for the user's current cart, or returns the one
// already open for it.
func (o *Orchestrator) Start(ctx context.Context, user domain.User, cartKey string) (*Session, error) {
	store, err := o.carts.Get(ctx, cartKey)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if store.TotalItems() == 0 {
		return nil, ErrEmptyCart
	}

	now := o.now()
	o.mu.Lock()
	expired := o.sweepLocked(now)
	open, ok := o.open[cartKey]
	o.mu.Unlock()
	o.failOrders(ctx, expired)

	if ok && open.userID == user.ID {
		if s, err := o.Get(user.ID, open.id); err == nil && s.Step != StepConfirmation {
			o.log.Debug("resuming open checkout", zap.String("checkout_id", s.ID), zap.String("user_id", user.ID))
			return s, nil
		}
	}

	s := Session{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		CartKey:   cartKey,
		Step:      StepShipping,
		Address:   Address{FullName: user.Name, Email: user.Email},
		Shipping:  ShippingStandard,
		CreatedAt: now,
		UpdatedAt: now,
	}

	o.mu.Lock()
	o.sessions[s.ID] = &entry{session: s}
	o.open[cartKey] = openCheckout{id: s.ID, userID: user.ID}
	o.mu.Unlock()

	o.log.Info("checkout started", zap.String("checkout_id", s.ID), zap.String("user_id", user.ID))
	return &s, nil
}

func (o *Orchestrator) Get(userID, id string) (*Session, error) {
	var out Session
	err := o.with(userID, id, func(s *Session) error {
		out = *s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitAddress validates the address and advances Shipping to Payment.
func (o *Orchestrator) SubmitAddress(userID, id string, addr Address) (*Session, error) {
	return o.mutate(userID, id, func(s *Session) error {
		if !CanTransitionTo(s.Step, StepPayment) {
			return o.stepError(s)
		}
		if err := addr.Validate(); err != nil {
			return err
		}
		s.Address = addr
		s.Step = StepPayment
		return nil
	})
}

// Back returns from Payment to Shipping.
func (o *Orchestrator) Back(userID, id string) (*Session, error) {
	return o.mutate(userID, id, func(s *Session) error {
		if !CanTransitionTo(s.Step, StepShipping) {
			return o.stepError(s)
		}
		s.Step = StepShipping
		return nil
	})
}

func (o *Orchestrator) ApplyCoupon(userID, id, code string) (*Session, error) {
	return o.mutate(userID, id, func(s *Session) error {
		if s.Step == StepConfirmation {
			return ErrCheckoutCompleted
		}
		if _, ok := o.pricing.LookupCoupon(code); !ok {
			return ErrUnknownCoupon
		}
		s.Coupon = NormalizeCoupon(code)
		return nil
	})
}

func (o *Orchestrator) RemoveCoupon(userID, id string) (*Session, error) {
	return o.mutate(userID, id, func(s *Session) error {
		if s.Step == StepConfirmation {
			return ErrCheckoutCompleted
		}
		s.Coupon = ""
		return nil
	})
}

func (o *Orchestrator) SelectShipping(userID, id string, method ShippingMethod) (*Session, error) {
	return o.mutate(userID, id, func(s *Session) error {
		if s.Step == StepConfirmation {
			return ErrCheckoutCompleted
		}
		if !method.Valid() {
			return ErrUnknownShippingMethod
		}
		s.Shipping = method
		return nil
	})
}

// Quote prices the checkout against the cart as it is now.
func (o *Orchestrator) Quote(ctx context.Context, userID, id string) (Breakdown, error) {
	var b Breakdown
	err := o.with(userID, id, func(s *Session) error {
		var err error
		b, err = o.quoteLocked(ctx, s)
		return err
	})
	return b, err
}

// BeginPayment returns the live processor order for the checkout, creating one
// when there is none, it failed, or the total has changed since.
func (o *Orchestrator) BeginPayment(ctx context.Context, userID, id string) (*domain.PendingOrder, error) {
	var order *domain.PendingOrder
	_, err := o.mutate(userID, id, func(s *Session) error {
		if s.Step != StepPayment {
			return o.stepError(s)
		}
		b, err := o.quoteLocked(ctx, s)
		if err != nil {
			return err
		}
		if len(b.Lines) == 0 {
			return ErrEmptyCart
		}

		if s.OrderID != "" {
			existing, err := o.payment.Order(ctx, s.OrderID)
			if err != nil {
				return fmt.Errorf("load order %s: %w", s.OrderID, err)
			}
			if existing.Status != domain.OrderStatusFailed && existing.Amount.Equal(b.GrandTotal) {
				s.priced = b.Lines
				order = existing
				return nil
			}
			// one live order per checkout: the old widget must not capture
			if !existing.Status.IsTerminal() {
				if err := o.payment.Fail(ctx, existing.ID, "superseded by repriced order"); err != nil {
					return fmt.Errorf("retire order %s: %w", existing.ID, err)
				}
			}
		}

		s.Attempts++
		created, err := o.payment.CreateOrder(ctx, domain.OrderRequest{
			Amount:   b.GrandTotal,
			Currency: b.Currency,
			Receipt:  fmt.Sprintf("%s-%d", s.ID, s.Attempts),
			UserID:   s.UserID,
			CartKey:  s.CartKey,
			Notes: map[string]string{
				"checkout_id": s.ID,
				"user_id":     s.UserID,
			},
		})
		if err != nil {
			return err
		}
		s.OrderID = created.ID
		s.priced = b.Lines
		order = created
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// ConfirmPayment verifies the processor callback and completes the checkout.
func (o *Orchestrator) ConfirmPayment(ctx context.Context, userID, id, orderID, paymentID, signature string) (*Session, error) {
	var cartKey string
	s, err := o.mutate(userID, id, func(s *Session) error {
		if s.Step != StepPayment {
			return o.stepError(s)
		}
		if s.OrderID == "" {
			return ErrNoPayment
		}
		if orderID != s.OrderID {
			o.log.Warn("payment confirmation for foreign order",
				zap.String("checkout_id", s.ID), zap.String("order_id", orderID))
			return ErrOrderMismatch
		}
		if err := o.reconcile(ctx, s); err != nil {
			return err
		}
		if err := o.payment.Verify(ctx, orderID, paymentID, signature); err != nil {
			return err
		}
		s.PaymentID = paymentID
		s.Step = StepConfirmation
		cartKey = s.CartKey
		return nil
	})
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	if cur, ok := o.open[cartKey]; ok && cur.id == id {
		delete(o.open, cartKey)
	}
	o.mu.Unlock()

	if errReset := o.carts.Reset(ctx, cartKey); errReset != nil {
		o.log.Error("failed to clear cart after payment",
			zap.String("checkout_id", id), zap.String("cart_key", cartKey), zap.Error(errReset))
	}
	o.log.Info("checkout completed", zap.String("checkout_id", id), zap.String("order_id", orderID))
	return s, nil
}

// CancelPayment records that the shopper dismissed the payment widget. The
// checkout stays on the payment step and the order keeps its status.
func (o *Orchestrator) CancelPayment(ctx context.Context, userID, id string) error {
	return o.with(userID, id, func(s *Session) error {
		if s.Step != StepPayment {
			return o.stepError(s)
		}
		if s.OrderID == "" {
			return ErrNoPayment
		}
		return o.payment.Cancel(ctx, s.OrderID)
	})
}

// reconcile checks that the cart still matches what the live order charges for.
func (o *Orchestrator) reconcile(ctx context.Context, s *Session) error {
	order, err := o.payment.Order(ctx, s.OrderID)
	if err != nil {
		return fmt.Errorf("load order %s: %w", s.OrderID, err)
	}
	b, err := o.quoteLocked(ctx, s)
	if err != nil {
		return err
	}
	if b.GrandTotal.Equal(order.Amount) && sameLines(s.priced, b.Lines) {
		return nil
	}
	o.log.Warn("cart changed after payment started",
		zap.String("checkout_id", s.ID),
		zap.String("order_id", order.ID),
		zap.String("order_amount", order.Amount.String()),
		zap.String("cart_total", b.GrandTotal.String()))
	return ErrCartChanged
}

// sweepLocked drops expired checkouts and returns the orders they left open.
// Sessions busy in another call are left for the next sweep.
func (o *Orchestrator) sweepLocked(now time.Time) []string {
	if now.Sub(o.lastSweep) < sweepInterval {
		return nil
	}
	o.lastSweep = now

	var orders []string
	for id, e := range o.sessions {
		if !e.mu.TryLock() {
			continue
		}
		s := e.session
		e.mu.Unlock()

		ttl := idleExpiry
		if s.Step == StepConfirmation {
			ttl = confirmedRetention
		}
		if now.Sub(s.UpdatedAt) < ttl {
			continue
		}
		delete(o.sessions, id)
		if cur, ok := o.open[s.CartKey]; ok && cur.id == id {
			delete(o.open, s.CartKey)
		}
		if s.Step != StepConfirmation && s.OrderID != "" {
			orders = append(orders, s.OrderID)
		}
	}
	return orders
}

func (o *Orchestrator) failOrders(ctx context.Context, orderIDs []string) {
	for _, id := range orderIDs {
		if err := o.payment.Fail(ctx, id, "checkout expired"); err != nil {
			o.log.Warn("failed to retire order of expired checkout", zap.String("order_id", id), zap.Error(err))
		}
	}
}

func (o *Orchestrator) quoteLocked(ctx context.Context, s *Session) (Breakdown, error) {
	store, err := o.carts.Get(ctx, s.CartKey)
	if err != nil {
		return Breakdown{}, fmt.Errorf("load cart: %w", err)
	}
	return o.pricing.Quote(store.Lines(), s.Coupon, s.Shipping)
}

func (o *Orchestrator) stepError(s *Session) error {
	if s.Step == StepConfirmation {
		return ErrCheckoutCompleted
	}
	return fmt.Errorf("%w: at %s", ErrIllegalTransition, s.Step)
}

// with runs fn with the session locked. Sessions of other users are reported as missing.
func (o *Orchestrator) with(userID, id string, fn func(s *Session) error) error {
	o.mu.RLock()
	e, ok := o.sessions[id]
	o.mu.RUnlock()
	if !ok {
		return ErrCheckoutNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session.UserID != userID {
		return ErrCheckoutNotFound
	}
	return fn(&e.session)
}

// mutate runs fn on a working copy that replaces the session only when fn succeeds.
func (o *Orchestrator) mutate(userID, id string, fn func(s *Session) error) (*Session, error) {
	var out Session
	err := o.with(userID, id, func(s *Session) error {
		work := *s
		if err := fn(&work); err != nil {
			return err
		}
		work.UpdatedAt = o.now()
		*s = work
		out = work
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}
