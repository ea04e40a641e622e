package cart

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrInvalidQuantity   = errors.New("quantity must be positive")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrLineNotFound      = errors.New("product not in cart")
	// ErrStoreClosed is returned by mutations on a cart that was evicted;
	// the caller should fetch the resident cart again.
	ErrStoreClosed = errors.New("cart store closed")
)

const (
	DefaultDebounce = 300 * time.Millisecond
	saveTimeout     = 5 * time.Second
)

// Store is one shopper's cart. Mutations are serialized; every successful
// mutation schedules a debounced snapshot write.
type Store struct {
	key       string
	snapshots SnapshotStore
	log       *zap.Logger

	mu     sync.Mutex
	lines  []domain.CartLine
	closed bool

	persister *Debouncer
}

// NewStore returns an empty cart. A nil snapshots store disables persistence.
func NewStore(key string, snapshots SnapshotStore, debounce time.Duration, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Store{key: key, snapshots: snapshots, log: log}
	if snapshots != nil {
		s.persister = NewDebouncer(debounce, s.persist)
	}
	return s
}

func (s *Store) Key() string { return s.key }

func (s *Store) Add(product domain.Product, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	if i := s.indexLocked(product.ID); i >= 0 {
		next := s.lines[i].Quantity + quantity
		if next > product.StockQuantity {
			return ErrInsufficientStock
		}
		s.lines[i] = domain.CartLine{Product: product, Quantity: next}
	} else {
		if quantity > product.StockQuantity {
			return ErrInsufficientStock
		}
		s.lines = append(s.lines, domain.CartLine{Product: product, Quantity: quantity})
	}
	s.schedule()
	return nil
}

// Remove deletes the line for productID if there is one.
func (s *Store) Remove(productID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	if s.removeLocked(productID) {
		s.schedule()
	}
	return nil
}

// UpdateQuantity sets the quantity of product's line, checking it against the
// stock of the product passed in and refreshing the stored product. Zero or
// less removes the line.
func (s *Store) UpdateQuantity(product domain.Product, quantity int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	if quantity <= 0 {
		if s.removeLocked(product.ID) {
			s.schedule()
		}
		return nil
	}

	i := s.indexLocked(product.ID)
	if i < 0 {
		return ErrLineNotFound
	}
	if quantity > product.StockQuantity {
		return ErrInsufficientStock
	}
	s.lines[i] = domain.CartLine{Product: product, Quantity: quantity}
	s.schedule()
	return nil
}

func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	s.lines = nil
	s.schedule()
	return nil
}

func (s *Store) Lines() []domain.CartLine {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.CartLine, len(s.lines))
	copy(out, s.lines)
	return out
}

func (s *Store) TotalItems() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return totalItems(s.lines)
}

func (s *Store) TotalPrice() decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return totalPrice(s.lines)
}

func (s *Store) View() domain.CartView {
	s.mu.Lock()
	defer s.mu.Unlock()

	lines := make([]domain.CartLine, len(s.lines))
	copy(lines, s.lines)
	return domain.CartView{
		Key:        s.key,
		Lines:      lines,
		TotalItems: totalItems(s.lines),
		TotalPrice: totalPrice(s.lines),
	}
}

func (s *Store) Snapshot() []domain.SnapshotLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return snapshotOf(s.lines)
}

// Flush writes a pending snapshot now.
func (s *Store) Flush() {
	if s.persister != nil {
		s.persister.Flush()
	}
}

// Close flushes and stops persistence. Later mutations fail with ErrStoreClosed.
func (s *Store) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	if s.persister != nil {
		s.persister.Close()
	}
}

// restore replaces the lines without scheduling a write.
func (s *Store) restore(lines []domain.CartLine) {
	s.mu.Lock()
	s.lines = lines
	s.mu.Unlock()
}

func (s *Store) schedule() {
	if s.persister != nil {
		s.persister.Schedule()
	}
}

func (s *Store) persist() {
	lines := s.Snapshot()

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := s.snapshots.Save(ctx, s.key, lines); err != nil {
		s.log.Error("failed to persist cart snapshot",
			zap.String("cart_key", s.key), zap.Int("lines", len(lines)), zap.Error(err))
	}
}

func (s *Store) indexLocked(productID string) int {
	for i := range s.lines {
		if s.lines[i].Product.ID == productID {
			return i
		}
	}
	return -1
}

func (s *Store) removeLocked(productID string) bool {
	i := s.indexLocked(productID)
	if i < 0 {
		return false
	}
	s.lines = append(s.lines[:i:i], s.lines[i+1:]...)
	return true
}

func totalItems(lines []domain.CartLine) int {
	n := 0
	for _, l := range lines {
		n += l.Quantity
	}
	return n
}

func totalPrice(lines []domain.CartLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Total())
	}
	return total
}

func snapshotOf(lines []domain.CartLine) []domain.SnapshotLine {
	out := make([]domain.SnapshotLine, len(lines))
	for i, l := range lines {
		out[i] = domain.SnapshotLine{ProductID: l.Product.ID, Quantity: l.Quantity}
	}
	return out
}
