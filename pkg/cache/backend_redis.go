package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces all keys written by RedisBackend.
const DefaultRedisPrefix = "pwa"

// RedisBackend stores each generation as a Redis hash (request key ->
// encoded entry) and tracks generation names in a sorted set scored by
// creation time.
type RedisBackend struct {
	redis  *redis.Client
	prefix string
}

// NewRedisBackend creates a backend on an existing client.
func NewRedisBackend(redisClient *redis.Client, prefix string) *RedisBackend {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisBackend{redis: redisClient, prefix: prefix}
}

func (b *RedisBackend) namesKey() string {
	return b.prefix + ":generations"
}

func (b *RedisBackend) genKey(name string) string {
	return b.prefix + ":gen:" + name
}

func (b *RedisBackend) member(name string) redis.Z {
	return redis.Z{Score: float64(time.Now().UnixNano()), Member: name}
}

// CreateGeneration adds name to the generation set if absent.
func (b *RedisBackend) CreateGeneration(ctx context.Context, name string) error {
	if err := b.redis.ZAddNX(ctx, b.namesKey(), b.member(name)).Err(); err != nil {
		return fmt.Errorf("redis zadd: %w", err)
	}
	return nil
}

// HasGeneration reports whether name is in the generation set.
func (b *RedisBackend) HasGeneration(ctx context.Context, name string) (bool, error) {
	err := b.redis.ZScore(ctx, b.namesKey(), name).Err()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("redis zscore: %w", err)
	}
	return true, nil
}

// Generations returns the set ordered by creation score.
func (b *RedisBackend) Generations(ctx context.Context) ([]string, error) {
	names, err := b.redis.ZRange(ctx, b.namesKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis zrange: %w", err)
	}
	return names, nil
}

// DropGeneration deletes the generation hash and its set member.
func (b *RedisBackend) DropGeneration(ctx context.Context, name string) (bool, error) {
	var removed *redis.IntCmd
	_, err := b.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, b.genKey(name))
		removed = pipe.ZRem(ctx, b.namesKey(), name)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("redis drop generation: %w", err)
	}
	return removed.Val() > 0, nil
}

// Get reads one hash field, mapping redis.Nil to ErrCacheMiss.
func (b *RedisBackend) Get(ctx context.Context, generation, key string) ([]byte, error) {
	data, err := b.redis.HGet(ctx, b.genKey(generation), key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("redis hget: %w", err)
	}
	return data, nil
}

// Put writes one hash field and registers the generation.
func (b *RedisBackend) Put(ctx context.Context, generation, key string, value []byte) error {
	_, err := b.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAddNX(ctx, b.namesKey(), b.member(generation))
		pipe.HSet(ctx, b.genKey(generation), key, value)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis hset: %w", err)
	}
	return nil
}

// Delete removes one hash field, reporting whether it was present.
func (b *RedisBackend) Delete(ctx context.Context, generation, key string) (bool, error) {
	n, err := b.redis.HDel(ctx, b.genKey(generation), key).Result()
	if err != nil {
		return false, fmt.Errorf("redis hdel: %w", err)
	}
	return n > 0, nil
}

// Keys returns the hash fields of the generation.
func (b *RedisBackend) Keys(ctx context.Context, generation string) ([]string, error) {
	keys, err := b.redis.HKeys(ctx, b.genKey(generation)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hkeys: %w", err)
	}
	return keys, nil
}

// Close closes the underlying client.
func (b *RedisBackend) Close() error {
	return b.redis.Close()
}
