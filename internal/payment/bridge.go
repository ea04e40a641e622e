package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/orders/repository"
	"go.uber.org/zap"
)

const defaultTimeout = 5 * time.Second

// Processor creates orders at the payment processor.
type Processor interface {
	CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string, notes map[string]string) (*ProcessorOrder, error)
}

type Config struct {
	KeyID        string
	KeySecret    string
	MerchantName string
	Timeout      time.Duration
}

type Prefill struct {
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Contact string `json:"contact,omitempty"`
}

// WidgetOptions is what the hosted payment widget needs to open.
type WidgetOptions struct {
	Key         string  `json:"key"`
	OrderID     string  `json:"order_id"`
	Amount      int64   `json:"amount"`
	Currency    string  `json:"currency"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Prefill     Prefill `json:"prefill"`
}

type Bridge struct {
	processor Processor
	orders    repository.OrderRepository
	cfg       Config
	log       *zap.Logger
	now       func() time.Time
}

func NewBridge(processor Processor, orders repository.OrderRepository, cfg Config, log *zap.Logger) *Bridge {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Bridge{
		processor: processor,
		orders:    orders,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
}

// CreateOrder returns the live order for req.Receipt, creating one at the
// processor when there is none or the previous attempt failed.
func (b *Bridge) CreateOrder(ctx context.Context, req domain.OrderRequest) (*domain.PendingOrder, error) {
	existing, err := b.orders.GetOrderByReceipt(ctx, req.Receipt)
	switch {
	case err == nil && existing.Status != domain.OrderStatusFailed:
		return existing, nil
	case err != nil && !errors.Is(err, repository.ErrOrderNotFound):
		return nil, fmt.Errorf("lookup receipt %s: %w", req.Receipt, err)
	}
	receipt := req.Receipt
	if existing != nil {
		// a failed order keeps its receipt; retries get a fresh one
		receipt = fmt.Sprintf("%s.r%d", req.Receipt, b.now().UnixNano())
	}

	amountMinor := MinorUnits(req.Amount)
	if amountMinor <= 0 {
		return nil, ErrInvalidAmount
	}

	callCtx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	po, err := b.processor.CreateOrder(callCtx, amountMinor, req.Currency, receipt, req.Notes)
	if err != nil {
		b.log.Error("processor order creation failed",
			zap.String("receipt", receipt),
			zap.Int64("amount_minor", amountMinor),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrProcessorUnavailable, err)
	}

	now := b.now().UTC()
	order := &domain.PendingOrder{
		ID:          po.ID,
		Receipt:     receipt,
		UserID:      req.UserID,
		CartKey:     req.CartKey,
		Amount:      req.Amount,
		AmountMinor: amountMinor,
		Currency:    req.Currency,
		Notes:       req.Notes,
		Status:      domain.OrderStatusCreated,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := b.orders.CreateOrder(ctx, order); err != nil {
		if errors.Is(err, repository.ErrDuplicateReceipt) {
			// lost a race with a concurrent attempt for the same receipt
			return b.orders.GetOrderByReceipt(ctx, receipt)
		}
		return nil, fmt.Errorf("record order %s: %w", po.ID, err)
	}

	b.log.Info("payment order created",
		zap.String("order_id", order.ID),
		zap.String("receipt", receipt),
		zap.Int64("amount_minor", amountMinor),
		zap.String("currency", order.Currency))
	return order, nil
}

func (b *Bridge) Order(ctx context.Context, orderID string) (*domain.PendingOrder, error) {
	return b.orders.GetOrder(ctx, orderID)
}

func (b *Bridge) WidgetOptions(order *domain.PendingOrder, prefill Prefill) WidgetOptions {
	return WidgetOptions{
		Key:         b.cfg.KeyID,
		OrderID:     order.ID,
		Amount:      order.AmountMinor,
		Currency:    order.Currency,
		Name:        b.cfg.MerchantName,
		Description: "Purchase from " + b.cfg.MerchantName,
		Prefill:     prefill,
	}
}

// Open marks the order pending once the widget has been launched for it.
func (b *Bridge) Open(ctx context.Context, orderID string) error {
	err := b.orders.UpdateStatus(ctx, orderID, domain.OrderStatusPending)
	if errors.Is(err, repository.ErrStatusConflict) {
		order, getErr := b.orders.GetOrder(ctx, orderID)
		if getErr == nil && order.Status == domain.OrderStatusPending {
			return nil
		}
	}
	return err
}

// Verify checks the processor's signature for a payment and completes the
// order. Every rejection returns ErrVerificationFailed.
func (b *Bridge) Verify(ctx context.Context, orderID, paymentID, signature string) error {
	log := b.log.With(zap.String("order_id", orderID), zap.String("payment_id", paymentID))

	order, err := b.orders.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			log.Warn("verification for unknown order")
		} else {
			log.Error("verification lookup failed", zap.Error(err))
		}
		return ErrVerificationFailed
	}

	rec := domain.PaymentVerificationRecord{
		OrderID:           orderID,
		PaymentID:         paymentID,
		Signature:         signature,
		ComputedSignature: Sign(orderID, paymentID, b.cfg.KeySecret),
	}
	rec.Verified = VerifySignature(rec.OrderID, rec.PaymentID, rec.Signature, b.cfg.KeySecret)
	if !rec.Verified {
		log.Warn("payment signature mismatch")
		return ErrVerificationFailed
	}

	switch order.Status {
	case domain.OrderStatusCompleted:
		if order.PaymentID == paymentID {
			return nil
		}
		log.Warn("order already paid by another payment", zap.String("paid_with", order.PaymentID))
		return ErrVerificationFailed
	case domain.OrderStatusFailed:
		log.Error("signed payment for a failed order")
		return ErrVerificationFailed
	}

	payload, err := json.Marshal(domain.OrderCompletedEvent{
		OrderID:     order.ID,
		UserID:      order.UserID,
		CartKey:     order.CartKey,
		PaymentID:   paymentID,
		Amount:      order.Amount,
		Currency:    order.Currency,
		CompletedAt: b.now().UTC(),
	})
	if err != nil {
		log.Error("encode order event", zap.Error(err))
		return ErrVerificationFailed
	}

	err = b.orders.MarkPaid(ctx, orderID, paymentID, repository.OutboxMessage{
		AggregateID: orderID,
		EventType:   domain.EventOrderCompleted,
		Payload:     payload,
	})
	if errors.Is(err, repository.ErrStatusConflict) {
		// a concurrent verify of the same payment may have won
		if current, getErr := b.orders.GetOrder(ctx, orderID); getErr == nil &&
			current.Status == domain.OrderStatusCompleted && current.PaymentID == paymentID {
			return nil
		}
	}
	if err != nil {
		log.Error("mark order paid", zap.Error(err))
		return ErrVerificationFailed
	}

	log.Info("payment verified")
	return nil
}

// Cancel records that the shopper dismissed the widget. The order stays as it is.
func (b *Bridge) Cancel(_ context.Context, orderID string) error {
	b.log.Info("payment cancelled by shopper", zap.String("order_id", orderID))
	return ErrPaymentCancelled
}

// Fail marks an order failed after the processor reported a failed payment.
func (b *Bridge) Fail(ctx context.Context, orderID, reason string) error {
	if err := b.orders.UpdateStatus(ctx, orderID, domain.OrderStatusFailed); err != nil {
		return fmt.Errorf("fail order %s: %w", orderID, err)
	}
	b.log.Warn("payment failed", zap.String("order_id", orderID), zap.String("reason", reason))
	return nil
}
