package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fjod/storefront/internal/domain"
	"github.com/lib/pq"
)

const orderColumns = `id, receipt, user_id, cart_key, amount, amount_minor, currency, notes, status, payment_id, created_at, updated_at`

func (r *Repository) CreateOrder(ctx context.Context, order *domain.PendingOrder) error {
	notes := order.Notes
	if notes == nil {
		notes = map[string]string{}
	}
	notesJSON, err := json.Marshal(notes)
	if err != nil {
		return fmt.Errorf("failed to marshal order notes: %w", err)
	}

	query := `INSERT INTO pending_orders (id, receipt, user_id, cart_key, amount, amount_minor, currency, notes, status, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW(), NOW())`

	_, insertErr := r.db.ExecContext(ctx, query,
		order.ID,
		order.Receipt,
		order.UserID,
		order.CartKey,
		order.Amount,
		order.AmountMinor,
		order.Currency,
		notesJSON,
		order.Status)

	if insertErr != nil {
		var pqErr *pq.Error
		if errors.As(insertErr, &pqErr) && pqErr.Code == "23505" {
			return ErrDuplicateReceipt
		}
		return fmt.Errorf("insert order: %w", insertErr)
	}
	return nil
}

func (r *Repository) GetOrder(ctx context.Context, id string) (*domain.PendingOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM pending_orders WHERE id = $1`
	return r.scanOrder(r.db.QueryRowContext(ctx, query, id))
}

func (r *Repository) GetOrderByReceipt(ctx context.Context, receipt string) (*domain.PendingOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM pending_orders WHERE receipt = $1`
	return r.scanOrder(r.db.QueryRowContext(ctx, query, receipt))
}

// UpdateStatus moves an order forward. The current status is checked in the
// same statement, so concurrent updates cannot move an order backward.
func (r *Repository) UpdateStatus(ctx context.Context, id string, to domain.OrderStatus) error {
	query := `UPDATE pending_orders SET status = $1, updated_at = NOW()
	          WHERE id = $2 AND status = ANY($3)`

	res, err := r.db.ExecContext(ctx, query, to, id, pq.Array(sourcesOf(to)))
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	return r.checkUpdated(ctx, r.db, res, id)
}

// MarkPaid completes the order and queues event for publishing, atomically.
func (r *Repository) MarkPaid(ctx context.Context, id, paymentID string, event OutboxMessage) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	query := `UPDATE pending_orders SET status = $1, payment_id = $2, updated_at = NOW()
	          WHERE id = $3 AND status = ANY($4)`
	res, err := tx.ExecContext(ctx, query,
		domain.OrderStatusCompleted,
		paymentID,
		id,
		pq.Array(sourcesOf(domain.OrderStatusCompleted)))
	if err != nil {
		return fmt.Errorf("mark order paid: %w", err)
	}
	if err := r.checkUpdated(ctx, tx, res, id); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO outbox (aggregate_id, event_type, payload) VALUES ($1, $2, $3)`,
		event.AggregateID,
		event.EventType,
		event.Payload)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *Repository) checkUpdated(ctx context.Context, q queryer, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("read affected rows: %w", err)
	}
	if n > 0 {
		return nil
	}

	var status string
	err = q.QueryRowContext(ctx, `SELECT status FROM pending_orders WHERE id = $1`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrOrderNotFound
	}
	if err != nil {
		return fmt.Errorf("query order status: %w", err)
	}
	return fmt.Errorf("%w: order is %s", ErrStatusConflict, status)
}

func (r *Repository) scanOrder(row *sql.Row) (*domain.PendingOrder, error) {
	var order domain.PendingOrder
	var notesJSON []byte
	err := row.Scan(
		&order.ID,
		&order.Receipt,
		&order.UserID,
		&order.CartKey,
		&order.Amount,
		&order.AmountMinor,
		&order.Currency,
		&notesJSON,
		&order.Status,
		&order.PaymentID,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order: %w", err)
	}

	if len(notesJSON) > 0 {
		if err := json.Unmarshal(notesJSON, &order.Notes); err != nil {
			return nil, fmt.Errorf("unmarshal order notes: %w", err)
		}
	}
	return &order, nil
}

// sourcesOf lists the statuses an order may move to `to` from.
func sourcesOf(to domain.OrderStatus) []string {
	var out []string
	for _, from := range []domain.OrderStatus{
		domain.OrderStatusCreated,
		domain.OrderStatusPending,
		domain.OrderStatusCompleted,
		domain.OrderStatusFailed,
	} {
		if domain.CanTransitionTo(from, to) {
			out = append(out, string(from))
		}
	}
	return out
}
