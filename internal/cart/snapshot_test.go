package cart

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fjod/storefront/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*RedisSnapshotStore, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisSnapshotStore(client, 24*time.Hour), mr
}

func TestRedisSnapshotStore_WireFormat(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	lines := []domain.SnapshotLine{{ProductID: "1", Quantity: 2}, {ProductID: "3", Quantity: 1}}
	require.NoError(t, store.Save(ctx, "user-1", lines))

	raw, err := mr.Get("cart:user-1")
	require.NoError(t, err)
	assert.JSONEq(t, `[{"productId":"1","quantity":2},{"productId":"3","quantity":1}]`, raw)
	assert.Equal(t, 24*time.Hour, mr.TTL("cart:user-1"))

	got, err := store.Load(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, lines, got)
}

func TestRedisSnapshotStore_Missing(t *testing.T) {
	store, _ := setupTestRedis(t)

	_, err := store.Load(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestRedisSnapshotStore_EmptySaveDeletes(t *testing.T) {
	store, mr := setupTestRedis(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "u", []domain.SnapshotLine{{ProductID: "1", Quantity: 1}}))
	require.NoError(t, store.Save(ctx, "u", nil))
	assert.False(t, mr.Exists("cart:u"))
}

func TestRedisSnapshotStore_InvalidJSON(t *testing.T) {
	store, mr := setupTestRedis(t)
	require.NoError(t, mr.Set("cart:u", `[{"productId":`))

	_, err := store.Load(context.Background(), "u")
	assert.ErrorContains(t, err, "unmarshal cart snapshot failed")
}

func TestRegistry_WithRedis(t *testing.T) {
	store, mr := setupTestRedis(t)
	products := newMockProducts(product("1", "29999", 10))
	r := NewRegistry(store, products, 10*time.Millisecond, nil)
	ctx := context.Background()

	s, err := r.Get(ctx, "guest-abc")
	require.NoError(t, err)
	require.NoError(t, s.Add(product("1", "29999", 10), 2))

	assert.Eventually(t, func() bool { return mr.Exists("cart:guest-abc") }, time.Second, 5*time.Millisecond)
	r.Close()
}
