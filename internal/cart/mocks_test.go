package cart

import (
	"context"
	"io"
	"sync"

	"github.com/fjod/storefront/internal/catalog"
	"github.com/fjod/storefront/internal/domain"
	"github.com/segmentio/kafka-go"
)

type memorySnapshots struct {
	mu      sync.Mutex
	data    map[string][]domain.SnapshotLine
	saves   int
	loadErr error
	saveErr error
}

func newMemorySnapshots() *memorySnapshots {
	return &memorySnapshots{data: make(map[string][]domain.SnapshotLine)}
}

func (m *memorySnapshots) Load(_ context.Context, key string) ([]domain.SnapshotLine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	lines, ok := m.data[key]
	if !ok {
		return nil, ErrNoSnapshot
	}
	return append([]domain.SnapshotLine(nil), lines...), nil
}

func (m *memorySnapshots) Save(_ context.Context, key string, lines []domain.SnapshotLine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	if len(lines) == 0 {
		delete(m.data, key)
		return nil
	}
	m.data[key] = append([]domain.SnapshotLine(nil), lines...)
	return nil
}

func (m *memorySnapshots) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memorySnapshots) get(key string) ([]domain.SnapshotLine, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lines, ok := m.data[key]
	return lines, ok
}

func (m *memorySnapshots) saveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

type mockProducts struct {
	mu       sync.Mutex
	products map[string]domain.Product
	err      error
}

func newMockProducts(products ...domain.Product) *mockProducts {
	m := &mockProducts{products: make(map[string]domain.Product)}
	for _, p := range products {
		m.products[p.ID] = p
	}
	return m
}

func (m *mockProducts) GetProduct(_ context.Context, id string) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.products[id]
	if !ok {
		return nil, catalog.ErrProductNotFound
	}
	return &p, nil
}

type fakeReader struct {
	messages chan kafka.Message
	closed   bool
}

func (f *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m, ok := <-f.messages:
		if !ok {
			return kafka.Message{}, io.EOF
		}
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (f *fakeReader) Close() error {
	f.closed = true
	return nil
}

type recordingResetter struct {
	mu   sync.Mutex
	keys []string
	done chan struct{}
}

func (r *recordingResetter) Reset(_ context.Context, key string) error {
	r.mu.Lock()
	r.keys = append(r.keys, key)
	r.mu.Unlock()
	if r.done != nil {
		r.done <- struct{}{}
	}
	return nil
}

func (r *recordingResetter) resetKeys() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.keys...)
}
