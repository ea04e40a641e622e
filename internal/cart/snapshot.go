package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/redis/go-redis/v9"
)

var ErrNoSnapshot = errors.New("no cart snapshot")

// SnapshotStore persists cart snapshots. Only this package writes them.
type SnapshotStore interface {
	Load(ctx context.Context, key string) ([]domain.SnapshotLine, error)
	// Save replaces the snapshot; an empty slice removes it.
	Save(ctx context.Context, key string, lines []domain.SnapshotLine) error
	Delete(ctx context.Context, key string) error
}

type RedisSnapshotStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSnapshotStore keeps snapshots for ttl after the last write; zero keeps them forever.
func NewRedisSnapshotStore(client *redis.Client, ttl time.Duration) *RedisSnapshotStore {
	return &RedisSnapshotStore{client: client, ttl: ttl}
}

func (r *RedisSnapshotStore) Load(ctx context.Context, key string) ([]domain.SnapshotLine, error) {
	data, err := r.client.Get(ctx, snapshotKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var lines []domain.SnapshotLine
	if err := json.Unmarshal(data, &lines); err != nil {
		return nil, fmt.Errorf("unmarshal cart snapshot failed: %w", err)
	}
	return lines, nil
}

func (r *RedisSnapshotStore) Save(ctx context.Context, key string, lines []domain.SnapshotLine) error {
	if len(lines) == 0 {
		return r.Delete(ctx, key)
	}
	data, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("marshal cart snapshot failed: %w", err)
	}
	if err := r.client.Set(ctx, snapshotKey(key), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisSnapshotStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, snapshotKey(key)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func snapshotKey(key string) string {
	return fmt.Sprintf("cart:%s", key)
}
