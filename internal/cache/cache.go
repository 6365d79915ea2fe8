package cache

import (
	"context"
	"errors"
	"time"
)

var ErrCacheMiss = errors.New("cache miss")

// Cache stores serialized values by key. Get returns ErrCacheMiss when the key
// is not present or expired.
// Incr increments the counter at key (starting from 0) and returns the new value.
// Counters never expire and are read with Get as a decimal string.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Incr(ctx context.Context, key string) (int64, error)
}

var (
	_ Cache = (*LocalCache)(nil)
	_ Cache = (*RedisCache)(nil)
	_ Cache = NoopCache{}
)

// NoopCache never stores anything.
type NoopCache struct{}

func (NoopCache) Get(context.Context, string) ([]byte, error) {
	return nil, ErrCacheMiss
}

func (NoopCache) Set(context.Context, string, []byte, time.Duration) error {
	return nil
}

func (NoopCache) Delete(context.Context, string) error {
	return nil
}

func (NoopCache) Incr(context.Context, string) (int64, error) {
	return 0, nil
}
