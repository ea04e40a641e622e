package publisher

import (
	"context"
	"sync"

	"github.com/fjod/storefront/internal/domain"
	"github.com/segmentio/kafka-go"
)

type mockOutbox struct {
	mu        sync.Mutex
	events    []*domain.OutboxEvent
	processed []int64
	fetchErr  error
	markErr   error
}

func (m *mockOutbox) GetUnprocessedEvents(_ context.Context, limit int) ([]*domain.OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	var out []*domain.OutboxEvent
	for _, ev := range m.events {
		if ev.ProcessedAt == nil && len(out) < limit {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *mockOutbox) MarkEventAsProcessed(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markErr != nil {
		return m.markErr
	}
	m.processed = append(m.processed, id)
	for _, ev := range m.events {
		if ev.ID == id {
			now := ev.CreatedAt
			ev.ProcessedAt = &now
		}
	}
	return nil
}

func (m *mockOutbox) processedIDs() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.processed...)
}

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	failOn   string
	err      error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		if f.err != nil && string(m.Key) == f.failOn {
			return f.err
		}
		f.messages = append(f.messages, m)
	}
	return nil
}

func (f *fakeWriter) Close() error { return nil }
