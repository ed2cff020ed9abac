// Package seencache implements the friend relay's received-path dedup
// cache: a bounded, TTL'd set of message ids. It is deliberately two
// separate operations, Seen and Add, mirroring the original sidecar's
// MessageQueue (has_seen never inserts, add_message never checks) rather
// than a single check-and-insert call, since the relay needs to decide
// whether to drop *before* committing to having forwarded a message.
package seencache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

const (
	// DefaultSize bounds how many message ids are retained regardless of age.
	DefaultSize = 1000
	// DefaultTTL is how long an entry survives before Seen stops reporting it.
	DefaultTTL = 5 * time.Minute
)

// Cache is a bounded FIFO of message ids with a time-based eviction sweep.
type Cache struct {
	mu    sync.Mutex
	ttl   time.Duration
	lru   *lru.Cache
	times map[string]time.Time
	now   func() time.Time
}

// New returns a Cache holding at most size entries, each valid for ttl.
func New(size int, ttl time.Duration) *Cache {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{
		ttl:   ttl,
		times: make(map[string]time.Time),
		now:   time.Now,
	}
	l, _ := lru.NewWithEvict(size, func(key, _ interface{}) {
		delete(c.times, key.(string))
	}) // lru.New only errors on size <= 0, already guarded above
	c.lru = l
	return c
}

// Seen reports whether messageID has been recorded and has not yet expired.
// It evicts expired entries as a side effect but never inserts messageID.
func (c *Cache) Seen(messageID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictExpiredLocked()
	return c.lru.Contains(messageID)
}

// Add records messageID as seen, evicting the oldest entry if the cache is
// already at capacity (the underlying LRU handles that eviction itself).
func (c *Cache) Add(messageID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(messageID, struct{}{})
	c.times[messageID] = c.now()
}

func (c *Cache) evictExpiredLocked() {
	cutoff := c.now().Add(-c.ttl)
	for id, t := range c.times {
		if t.Before(cutoff) {
			c.lru.Remove(id)
			delete(c.times, id)
		}
	}
}

// Len reports the number of live (non-expired) entries, for tests.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictExpiredLocked()
	return c.lru.Len()
}
