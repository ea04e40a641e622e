package cart

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Resetter empties a cart by key.
type Resetter interface {
	Reset(ctx context.Context, key string) error
}

// Consumer clears carts once their order has been paid, on every instance.
type Consumer struct {
	reader  messageReader
	carts   Resetter
	log     *zap.Logger
	backoff time.Duration
}

func NewConsumer(carts Resetter, topic, groupID string, log *zap.Logger, brokers ...string) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MaxBytes: 10e6, // 10MB
	})
	return newConsumer(reader, carts, log)
}

func newConsumer(reader messageReader, carts Resetter, log *zap.Logger) *Consumer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Consumer{reader: reader, carts: carts, log: log, backoff: time.Second}
}

func (c *Consumer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		if err := c.consumeOne(ctx); err != nil && ctx.Err() == nil {
			c.log.Error("error reading message", zap.Error(err))
			select {
			case <-time.After(c.backoff):
			case <-ctx.Done():
				return
			}
		}
	}
}

func (c *Consumer) Close() {
	if err := c.reader.Close(); err != nil {
		c.log.Error("error closing reader", zap.Error(err))
	}
}

// consumeOne returns an error only when reading fails. Bad messages are logged and skipped.
func (c *Consumer) consumeOne(ctx context.Context) error {
	m, err := c.reader.ReadMessage(ctx)
	if err != nil {
		return err
	}

	if t := eventType(m); t != "" && t != domain.EventOrderCompleted {
		return nil
	}

	var ev domain.OrderCompletedEvent
	if err := json.Unmarshal(m.Value, &ev); err != nil {
		c.log.Warn("error parsing message", zap.Int64("offset", m.Offset), zap.Error(err))
		return nil
	}
	key := ev.CartKey
	if key == "" {
		key = ev.UserID
	}
	if key == "" {
		c.log.Warn("order event without cart key", zap.String("order_id", ev.OrderID))
		return nil
	}

	if err := c.carts.Reset(ctx, key); err != nil && !errors.Is(err, context.Canceled) {
		c.log.Error("failed to clear cart", zap.String("cart_key", key), zap.String("order_id", ev.OrderID), zap.Error(err))
		return nil
	}
	c.log.Info("cart cleared after payment", zap.String("cart_key", key), zap.String("order_id", ev.OrderID))
	return nil
}

func eventType(m kafka.Message) string {
	for _, h := range m.Headers {
		if h.Key == "event_type" {
			return string(h.Value)
		}
	}
	return ""
}
