package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/coocood/freecache"
)

// LocalCache is an in-process cache, good enough for a single instance setup.
type LocalCache struct {
	cache *freecache.Cache
	// freecache has no atomic increment
	counterMutex sync.Mutex
}

// NewLocalCache creates the cache with the given size in bytes (min 512KB, see freecache).
func NewLocalCache(sizeBytes int) *LocalCache {
	return &LocalCache{
		cache: freecache.NewCache(sizeBytes),
	}
}

func (c *LocalCache) Get(_ context.Context, key string) ([]byte, error) {
	value, err := c.cache.Get([]byte(key))
	if err != nil {
		if errors.Is(err, freecache.ErrNotFound) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("local cache get [%s]: %w", key, err)
	}
	return value, nil
}

func (c *LocalCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.cache.Set([]byte(key), value, int(ttl.Seconds())); err != nil {
		return fmt.Errorf("local cache set [%s]: %w", key, err)
	}
	return nil
}

func (c *LocalCache) Delete(_ context.Context, key string) error {
	c.cache.Del([]byte(key))
	return nil
}

func (c *LocalCache) Incr(_ context.Context, key string) (int64, error) {
	c.counterMutex.Lock()
	defer c.counterMutex.Unlock()

	var counter int64
	value, err := c.cache.Get([]byte(key))
	switch {
	case err == nil:
		counter, err = strconv.ParseInt(string(value), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("local cache incr [%s], not a counter: %w", key, err)
		}
	case !errors.Is(err, freecache.ErrNotFound):
		return 0, fmt.Errorf("local cache incr [%s]: %w", key, err)
	}

	counter++
	// expire 0 -> the entry is only removed when evicted
	if err := c.cache.Set([]byte(key), []byte(strconv.FormatInt(counter, 10)), 0); err != nil {
		return 0, fmt.Errorf("local cache incr [%s]: %w", key, err)
	}
	return counter, nil
}

func (c *LocalCache) EntryCount() int64 {
	return c.cache.EntryCount()
}
