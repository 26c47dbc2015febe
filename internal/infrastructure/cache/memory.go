// Package cache provides the in-memory search result cache.
package cache

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/foodbase/etl/internal/domain"
)

// DefaultCleanupInterval is how often expired entries are swept
const DefaultCleanupInterval = 10 * time.Minute

// entry holds a JSON-encoded value and its expiry
type entry struct {
	payload   []byte
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// MemoryCache is a thread-safe in-memory cache with TTL support. Values are
// stored JSON-encoded and returned as json.RawMessage, so callers decode them
// into their own types and never share memory with another caller.
type MemoryCache struct {
	data  map[string]entry
	mutex sync.RWMutex

	hits   atomic.Int64
	misses atomic.Int64

	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemoryCache creates a new in-memory cache and starts its cleanup loop.
// A non-positive interval uses DefaultCleanupInterval.
func NewMemoryCache(cleanupInterval time.Duration) *MemoryCache {
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
	}
	cache := &MemoryCache{
		data: make(map[string]entry),
		stop: make(chan struct{}),
	}

	go cache.cleanupLoop(cleanupInterval)

	return cache
}

// Get returns the cached value for key as json.RawMessage
func (c *MemoryCache) Get(ctx context.Context, key string) (interface{}, error) {
	c.mutex.RLock()
	e, exists := c.data[key]
	c.mutex.RUnlock()

	if !exists || e.expired(time.Now()) {
		c.misses.Add(1)
		return nil, domain.ErrCacheMiss
	}

	c.hits.Add(1)
	out := make(json.RawMessage, len(e.payload))
	copy(out, e.payload)
	return out, nil
}

// Set stores value, JSON-encoded, for ttl
func (c *MemoryCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}

	c.mutex.Lock()
	c.data[key] = entry{payload: payload, expiresAt: time.Now().Add(ttl)}
	c.mutex.Unlock()
	return nil
}

// Delete removes a value from the cache
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	delete(c.data, key)
	return nil
}

// Exists checks if a key exists in the cache and is not expired
func (c *MemoryCache) Exists(ctx context.Context, key string) (bool, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	e, exists := c.data[key]
	return exists && !e.expired(time.Now()), nil
}

// Size returns the current number of entries, expired ones included until swept
func (c *MemoryCache) Size() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.data)
}

// Stats returns the hit and miss counts since creation
func (c *MemoryCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Clear removes all items from the cache
func (c *MemoryCache) Clear() {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.data = make(map[string]entry)
}

// Close stops the cleanup loop. The cache stays usable.
func (c *MemoryCache) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

// sweep removes expired entries and returns how many were removed
func (c *MemoryCache) sweep(now time.Time) int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	removed := 0
	for key, e := range c.data {
		if e.expired(now) {
			delete(c.data, key)
			removed++
		}
	}
	return removed
}

func (c *MemoryCache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case now := <-ticker.C:
			if n := c.sweep(now); n > 0 {
				log.Printf("[CACHE] Swept %d expired entries", n)
			}
		}
	}
}
