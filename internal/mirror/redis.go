package mirror

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisBackend keeps the guest collection in Redis instead of a local
// Badger file, for setups where several machines share one mirror.
type RedisBackend struct {
	rdb *redis.Client
}

func NewRedisBackend(addr string) (*RedisBackend, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisBackend{rdb: rdb}, nil
}

func (b *RedisBackend) Load(ctx context.Context) ([]byte, error) {
	data, err := b.rdb.Get(ctx, StorageKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (b *RedisBackend) Store(ctx context.Context, data []byte) error {
	return b.rdb.Set(ctx, StorageKey, data, 0).Err()
}

func (b *RedisBackend) Close() error {
	return b.rdb.Close()
}
