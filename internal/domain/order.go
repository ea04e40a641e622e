package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusCreated   OrderStatus = "created"
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusFailed    OrderStatus = "failed"
)

func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusFailed
}

func (s OrderStatus) String() string {
	return string(s)
}

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusCreated: {OrderStatusPending, OrderStatusCompleted, OrderStatusFailed},
	OrderStatusPending: {OrderStatusCompleted, OrderStatusFailed},
}

// CanTransitionTo reports whether an order may move from one status to the next.
// Orders only move forward; completed and failed are final.
func CanTransitionTo(from, to OrderStatus) bool {
	for _, s := range orderTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// PendingOrder is the local record of an order created at the payment processor.
type PendingOrder struct {
	ID          string            `json:"id"`
	Receipt     string            `json:"receipt"`
	UserID      string            `json:"user_id"`
	CartKey     string            `json:"cart_key"`
	Amount      decimal.Decimal   `json:"amount"`
	AmountMinor int64             `json:"amount_minor"`
	Currency    string            `json:"currency"`
	Notes       map[string]string `json:"notes,omitempty"`
	Status      OrderStatus       `json:"status"`
	PaymentID   string            `json:"payment_id,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

type PaymentVerificationRecord struct {
	OrderID           string
	PaymentID         string
	Signature         string
	ComputedSignature string
	Verified          bool
}

// OrderCompletedEvent is published once an order has been paid.
type OrderCompletedEvent struct {
	OrderID     string          `json:"order_id"`
	UserID      string          `json:"user_id"`
	CartKey     string          `json:"cart_key"`
	PaymentID   string          `json:"payment_id"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	CompletedAt time.Time       `json:"completed_at"`
}

const EventOrderCompleted = "order.completed"

// OutboxEvent is a row of the transactional outbox waiting to be published.
type OutboxEvent struct {
	ID          int64
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
	ProcessedAt *time.Time
}

// OrderRequest asks the payment processor for a new order.
type OrderRequest struct {
	Amount   decimal.Decimal
	Currency string
	// Receipt is unique per order attempt.
	Receipt string
	UserID  string
	CartKey string
	Notes   map[string]string
}
