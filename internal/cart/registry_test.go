package cart

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fjod/storefront/internal/catalog"
	"github.com/fjod/storefront/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_PersistenceRoundTrip(t *testing.T) {
	snaps := newMemorySnapshots()
	products := newMockProducts(
		product("a", "10.00", 5),
		product("b", "2.50", 10),
		product("c", "99.99", 1),
	)
	ctx := context.Background()

	r1 := NewRegistry(snaps, products, time.Hour, nil)
	s, err := r1.Get(ctx, "u1")
	require.NoError(t, err)
	require.NoError(t, s.Add(product("a", "10.00", 5), 2))
	require.NoError(t, s.Add(product("b", "2.50", 10), 4))
	require.NoError(t, s.Add(product("c", "99.99", 1), 1))
	want := s.View()
	r1.Close()

	r2 := NewRegistry(snaps, products, time.Hour, nil)
	defer r2.Close()
	restored, err := r2.Get(ctx, "u1")
	require.NoError(t, err)

	got := restored.View()
	require.Len(t, got.Lines, 3)
	for i := range want.Lines {
		assert.Equal(t, want.Lines[i].Product.ID, got.Lines[i].Product.ID)
		assert.Equal(t, want.Lines[i].Quantity, got.Lines[i].Quantity)
	}
	assert.Equal(t, want.TotalItems, got.TotalItems)
	assert.True(t, want.TotalPrice.Equal(got.TotalPrice))
}

func TestRegistry_GetReturnsSameStore(t *testing.T) {
	r := NewRegistry(newMemorySnapshots(), newMockProducts(), time.Hour, nil)
	defer r.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	stores := make([]*Store, 8)
	for i := range stores {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := r.Get(ctx, "u1")
			assert.NoError(t, err)
			stores[i] = s
		}(i)
	}
	wg.Wait()

	for _, s := range stores[1:] {
		assert.Same(t, stores[0], s)
	}
}

func TestRegistry_HydrationDropsAndCaps(t *testing.T) {
	snaps := newMemorySnapshots()
	snaps.data["u1"] = []domain.SnapshotLine{
		{ProductID: "gone", Quantity: 1},
		{ProductID: "low", Quantity: 5},
		{ProductID: "out", Quantity: 2},
		{ProductID: "ok", Quantity: 2},
	}
	products := newMockProducts(
		product("low", "1", 3),
		product("out", "1", 0),
		product("ok", "1", 9),
	)
	r := NewRegistry(snaps, products, time.Hour, nil)

	s, err := r.Get(context.Background(), "u1")
	require.NoError(t, err)

	assert.Equal(t, []domain.SnapshotLine{{ProductID: "low", Quantity: 3}, {ProductID: "ok", Quantity: 2}}, s.Snapshot())

	r.Close()
	saved, _ := snaps.get("u1")
	assert.Equal(t, []domain.SnapshotLine{{ProductID: "low", Quantity: 3}, {ProductID: "ok", Quantity: 2}}, saved,
		"adjusted snapshot is written back")
}

func TestRegistry_CatalogUnavailable(t *testing.T) {
	snaps := newMemorySnapshots()
	snaps.data["u1"] = []domain.SnapshotLine{{ProductID: "a", Quantity: 1}}
	products := newMockProducts()
	products.err = catalog.ErrCatalogUnavailable
	r := NewRegistry(snaps, products, time.Hour, nil)
	ctx := context.Background()

	_, err := r.Get(ctx, "u1")
	assert.ErrorIs(t, err, catalog.ErrCatalogUnavailable)

	_, stillSaved := snaps.get("u1")
	assert.True(t, stillSaved)

	products.mu.Lock()
	products.err = nil
	products.products["a"] = product("a", "1", 2)
	products.mu.Unlock()

	s, err := r.Get(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, s.TotalItems())
}

func TestRegistry_LoadErrorStartsEmpty(t *testing.T) {
	snaps := newMemorySnapshots()
	snaps.loadErr = errors.New("redis down")
	r := NewRegistry(snaps, newMockProducts(), time.Hour, nil)
	defer r.Close()

	s, err := r.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, s.Lines())
}

func TestRegistry_EvictFlushes(t *testing.T) {
	snaps := newMemorySnapshots()
	r := NewRegistry(snaps, newMockProducts(), time.Hour, nil)
	ctx := context.Background()

	s, err := r.Get(ctx, "u1")
	require.NoError(t, err)
	require.NoError(t, s.Add(product("a", "1", 3), 2))

	r.Evict("u1")
	saved, ok := snaps.get("u1")
	require.True(t, ok)
	assert.Equal(t, 2, saved[0].Quantity)

	again, err := r.Get(ctx, "u1")
	require.NoError(t, err)
	assert.NotSame(t, s, again)
}

func TestRegistry_EvictedStoreRejectsWrites(t *testing.T) {
	snaps := newMemorySnapshots()
	products := newMockProducts(product("a", "1", 5))
	r := NewRegistry(snaps, products, time.Hour, nil)
	defer r.Close()
	ctx := context.Background()

	held, err := r.Get(ctx, "u1")
	require.NoError(t, err)
	require.NoError(t, held.Add(product("a", "1", 5), 1))

	r.Evict("u1")
	// a request that fetched the store before eviction must not lose its write
	assert.ErrorIs(t, held.Add(product("a", "1", 5), 2), ErrStoreClosed)

	fresh, err := r.Get(ctx, "u1")
	require.NoError(t, err)
	assert.NotSame(t, held, fresh)
	assert.Equal(t, 1, fresh.TotalItems())

	require.NoError(t, fresh.Add(product("a", "1", 5), 2))
	fresh.Flush()
	saved, ok := snaps.get("u1")
	require.True(t, ok)
	assert.Equal(t, 3, saved[0].Quantity)
}

func TestRegistry_ResetAfterEvict(t *testing.T) {
	snaps := newMemorySnapshots()
	r := NewRegistry(snaps, newMockProducts(product("a", "1", 3)), time.Hour, nil)
	defer r.Close()
	ctx := context.Background()

	s, err := r.Get(ctx, "u1")
	require.NoError(t, err)
	require.NoError(t, s.Add(product("a", "1", 3), 1))
	r.Evict("u1")

	require.NoError(t, r.Reset(ctx, "u1"))
	_, ok := snaps.get("u1")
	assert.False(t, ok)
}

func TestRegistry_Reset(t *testing.T) {
	snaps := newMemorySnapshots()
	products := newMockProducts(product("a", "1", 3))
	r := NewRegistry(snaps, products, time.Hour, nil)
	defer r.Close()
	ctx := context.Background()

	// not resident: snapshot is deleted directly
	snaps.data["u2"] = []domain.SnapshotLine{{ProductID: "a", Quantity: 1}}
	require.NoError(t, r.Reset(ctx, "u2"))
	_, ok := snaps.get("u2")
	assert.False(t, ok)

	s, err := r.Get(ctx, "u1")
	require.NoError(t, err)
	require.NoError(t, s.Add(product("a", "1", 3), 1))
	s.Flush()

	require.NoError(t, r.Reset(ctx, "u1"))
	assert.Empty(t, s.Lines())
	_, ok = snaps.get("u1")
	assert.False(t, ok)
}
