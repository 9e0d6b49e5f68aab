// ABOUTME: Thread-safe TTL window for suppressing repeated events
// ABOUTME: Size-bounded with oldest-first eviction and an injectable clock

package dedupe

import (
	"container/list"
	"strings"
	"sync"
	"time"
)

// DefaultMaxSize bounds a Cache created with a non-positive size.
const DefaultMaxSize = 10000

type entry struct {
	seenAt  time.Time
	element *list.Element
}

// Cache remembers keys for ttl. A linked list in insertion order makes
// eviction O(1).
type Cache struct {
	mu      sync.Mutex
	seen    map[string]*entry
	order   *list.List // oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time

	done   chan struct{}
	closed bool
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New creates a cache remembering keys for ttl, holding at most maxSize
// keys. A background goroutine sweeps expired keys until Close.
func New(ttl time.Duration, maxSize int, opts ...Option) *Cache {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	c := &Cache{
		seen:    make(map[string]*entry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	go c.sweepLoop(sweepInterval(ttl))
	return c
}

func sweepInterval(ttl time.Duration) time.Duration {
	switch {
	case ttl <= 0:
		return time.Minute
	case ttl < time.Second:
		return time.Second
	case ttl > time.Minute:
		return time.Minute
	}
	return ttl
}

// Key joins event parts into a cache key.
func Key(parts ...string) string {
	return strings.Join(parts, "\x00")
}

// Seen reports whether key was marked within the window.
func (c *Cache) Seen(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.seen[key]
	return ok && c.live(e)
}

// CheckAndMark reports whether key was already seen within the window and
// marks it if not. The check and mark are atomic.
func (c *Cache) CheckAndMark(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.seen[key]; ok && c.live(e) {
		return true
	}
	c.markLocked(key)
	return false
}

// Forget removes key so the next CheckAndMark counts it again.
func (c *Cache) Forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.seen[key]; ok {
		c.order.Remove(e.element)
		delete(c.seen, key)
	}
}

// Len returns the number of remembered keys, including expired ones not
// yet swept.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

func (c *Cache) live(e *entry) bool {
	return c.now().Sub(e.seenAt) < c.ttl
}

// markLocked must be called with mu held.
func (c *Cache) markLocked(key string) {
	now := c.now()
	if e, ok := c.seen[key]; ok {
		e.seenAt = now
		c.order.MoveToBack(e.element)
		return
	}
	if len(c.seen) >= c.maxSize {
		if front := c.order.Front(); front != nil {
			oldest, _ := front.Value.(string)
			c.order.Remove(front)
			delete(c.seen, oldest)
		}
	}
	c.seen[key] = &entry{seenAt: now, element: c.order.PushBack(key)}
}

func (c *Cache) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.Sweep()
		case <-c.done:
			return
		}
	}
}

// Sweep drops expired keys.
func (c *Cache) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	// Entries are in mark order, so expiry stops at the first live one.
	for front := c.order.Front(); front != nil; front = c.order.Front() {
		key, _ := front.Value.(string)
		if c.live(c.seen[key]) {
			return
		}
		c.order.Remove(front)
		delete(c.seen, key)
	}
}

// Close stops the sweeper. Safe to call more than once.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
