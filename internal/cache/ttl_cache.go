package cache

import (
	"log/slog"
	"sync"
	"time"
)

// CacheEntry represents a cached item with expiration time
type CacheEntry[V any] struct {
	Value     V
	ExpiresAt time.Time
}

// EvictFunc is called, outside the cache lock, for every entry removed by
// expiry, Delete or Clear.
type EvictFunc[V any] func(key string, value V)

// TTLCache is a thread-safe cache with sliding TTL. Reads through Get extend
// an entry's lifetime.
type TTLCache[V any] struct {
	items         map[string]*CacheEntry[V]
	mutex         sync.Mutex
	ttl           time.Duration
	onEvict       EvictFunc[V]
	now           func() time.Time
	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	stopOnce      sync.Once
}

// NewTTLCache creates a new TTL cache with specified TTL and cleanup interval.
// onEvict may be nil.
func NewTTLCache[V any](ttl, cleanupInterval time.Duration, onEvict EvictFunc[V]) *TTLCache[V] {
	cache := &TTLCache[V]{
		items:       make(map[string]*CacheEntry[V]),
		ttl:         ttl,
		onEvict:     onEvict,
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}

	cache.cleanupTicker = time.NewTicker(cleanupInterval)
	go cache.cleanupExpiredEntries()

	slog.Info("TTL cache initialized",
		"ttl", ttl.String(),
		"cleanup_interval", cleanupInterval.String())

	return cache
}

// Set stores a value in the cache with TTL
func (c *TTLCache[V]) Set(key string, value V) {
	c.mutex.Lock()
	expiresAt := c.now().Add(c.ttl)
	old, replaced := c.items[key]
	c.items[key] = &CacheEntry[V]{
		Value:     value,
		ExpiresAt: expiresAt,
	}
	c.mutex.Unlock()

	if replaced {
		c.evict(key, old.Value)
	}
	slog.Debug("Cache entry set",
		"key", key,
		"expires_at", expiresAt.Format(time.RFC3339))
}

// Get retrieves a value if it exists and hasn't expired, and extends its TTL
func (c *TTLCache[V]) Get(key string) (V, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	var zero V
	entry, exists := c.items[key]
	if !exists {
		return zero, false
	}

	now := c.now()
	if now.After(entry.ExpiresAt) {
		slog.Debug("Cache entry expired", "key", key)
		return zero, false
	}

	entry.ExpiresAt = now.Add(c.ttl)
	return entry.Value, true
}

// Delete removes a specific key from the cache
func (c *TTLCache[V]) Delete(key string) bool {
	c.mutex.Lock()
	entry, exists := c.items[key]
	delete(c.items, key)
	c.mutex.Unlock()

	if exists {
		c.evict(key, entry.Value)
		slog.Debug("Cache entry deleted", "key", key)
	}
	return exists
}

// ActiveSize returns the number of non-expired items in the cache
func (c *TTLCache[V]) ActiveSize() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.now()
	activeCount := 0
	for _, entry := range c.items {
		if !now.After(entry.ExpiresAt) {
			activeCount++
		}
	}
	return activeCount
}

// Clear removes all items from the cache
func (c *TTLCache[V]) Clear() {
	c.mutex.Lock()
	items := c.items
	c.items = make(map[string]*CacheEntry[V])
	c.mutex.Unlock()

	for key, entry := range items {
		c.evict(key, entry.Value)
	}
	slog.Info("Cache cleared", "removed_items", len(items))
}

// Stop stops the cleanup goroutine. Entries stay in place.
func (c *TTLCache[V]) Stop() {
	c.stopOnce.Do(func() {
		c.cleanupTicker.Stop()
		close(c.stopCleanup)
		slog.Info("TTL cache stopped")
	})
}

// cleanupExpiredEntries runs periodically to remove expired entries
func (c *TTLCache[V]) cleanupExpiredEntries() {
	for {
		select {
		case <-c.cleanupTicker.C:
			c.performCleanup()
		case <-c.stopCleanup:
			return
		}
	}
}

// performCleanup removes expired entries from the cache
func (c *TTLCache[V]) performCleanup() {
	c.mutex.Lock()
	now := c.now()
	expired := make(map[string]V)
	for key, entry := range c.items {
		if now.After(entry.ExpiresAt) {
			expired[key] = entry.Value
			delete(c.items, key)
		}
	}
	remaining := len(c.items)
	c.mutex.Unlock()

	for key, value := range expired {
		c.evict(key, value)
	}
	if len(expired) > 0 {
		slog.Debug("Cache cleanup completed",
			"expired_entries", len(expired),
			"remaining_entries", remaining)
	}
}

// GetStats returns cache statistics
func (c *TTLCache[V]) GetStats() map[string]interface{} {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.now()
	activeCount := 0
	expiredCount := 0

	for _, entry := range c.items {
		if now.After(entry.ExpiresAt) {
			expiredCount++
		} else {
			activeCount++
		}
	}

	return map[string]interface{}{
		"total_entries":   len(c.items),
		"active_entries":  activeCount,
		"expired_entries": expiredCount,
		"ttl_duration":    c.ttl.String(),
	}
}

func (c *TTLCache[V]) evict(key string, value V) {
	if c.onEvict != nil {
		c.onEvict(key, value)
	}
}
