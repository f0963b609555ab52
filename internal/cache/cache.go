package cache

import (
	"container/list"
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/i474232898/air-quality-forecast/internal/airquality"
)

const (
	DefaultTTL      = time.Hour
	DefaultCapacity = 256
)

// Collector fills the cache on a miss.
type Collector interface {
	Collect(ctx context.Context, loc airquality.Location) (airquality.Reading, error)
}

// Entry is a cached reading with its absolute expiry.
type Entry struct {
	Reading   airquality.Reading `json:"reading"`
	ExpiresAt time.Time          `json:"expires_at"`
}

// Shared is an optional second tier shared between processes.
type Shared interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, e Entry) error
}

// Options sizes the in-process tier.
type Options struct {
	TTL      time.Duration
	Capacity int
}

// Stats is a point-in-time view of cache counters.
type Stats struct {
	Entries    int   `json:"entries"`
	Capacity   int   `json:"capacity"`
	Hits       int64 `json:"hits"`
	SharedHits int64 `json:"shared_hits"`
	Misses     int64 `json:"misses"`
	Evictions  int64 `json:"evictions"`
}

type item struct {
	key   string
	entry Entry
}

// Cache serves the current reading per location from an LRU with TTL,
// falling back to the shared tier and then to an on-demand collect.
type Cache struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	ll       *list.List // front = most recently used
	items    map[string]*list.Element
	stats    Stats

	shared    Shared
	collector Collector
	now       func() time.Time
}

// New creates a Cache. shared may be nil.
func New(collector Collector, shared Shared, opts Options) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	return &Cache{
		ttl:       opts.TTL,
		capacity:  opts.Capacity,
		ll:        list.New(),
		items:     make(map[string]*list.Element),
		shared:    shared,
		collector: collector,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// GetCurrent returns a fresh reading for loc.
func (c *Cache) GetCurrent(ctx context.Context, loc airquality.Location) (airquality.Reading, error) {
	key := loc.Key()

	if r, ok := c.getLocal(key); ok {
		return r, nil
	}

	if c.shared != nil {
		e, ok, err := c.shared.Get(ctx, key)
		if err != nil {
			log.Printf("cache: shared tier get %s: %v", key, err)
		} else if ok && c.now().Before(e.ExpiresAt) {
			c.mu.Lock()
			c.stats.SharedHits++
			c.storeLocked(key, e)
			c.mu.Unlock()
			return e.Reading, nil
		}
	}

	c.mu.Lock()
	c.stats.Misses++
	c.mu.Unlock()

	r, err := c.collector.Collect(ctx, loc)
	if err != nil {
		return airquality.Reading{}, fmt.Errorf("collect current for %s: %w", key, err)
	}
	c.put(ctx, key, r)
	return r, nil
}

// Put caches r under its location key in both tiers.
func (c *Cache) Put(ctx context.Context, r airquality.Reading) {
	c.put(ctx, r.LocationKey, r)
}

// Accept lets the cache receive new readings from the collector.
func (c *Cache) Accept(ctx context.Context, r airquality.Reading) error {
	c.Put(ctx, r)
	return nil
}

// Stats returns the current counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Entries = c.ll.Len()
	s.Capacity = c.capacity
	return s
}

func (c *Cache) getLocal(key string) (airquality.Reading, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return airquality.Reading{}, false
	}
	it := el.Value.(*item)
	if !c.now().Before(it.entry.ExpiresAt) {
		c.ll.Remove(el)
		delete(c.items, key)
		return airquality.Reading{}, false
	}
	c.ll.MoveToFront(el)
	c.stats.Hits++
	return it.entry.Reading, true
}

func (c *Cache) put(ctx context.Context, key string, r airquality.Reading) {
	e := Entry{Reading: r, ExpiresAt: c.now().Add(c.ttl)}

	c.mu.Lock()
	c.storeLocked(key, e)
	c.mu.Unlock()

	if c.shared != nil {
		if err := c.shared.Set(ctx, key, e); err != nil {
			log.Printf("cache: shared tier set %s: %v", key, err)
		}
	}
}

func (c *Cache) storeLocked(key string, e Entry) {
	if el, ok := c.items[key]; ok {
		el.Value.(*item).entry = e
		c.ll.MoveToFront(el)
		return
	}
	c.items[key] = c.ll.PushFront(&item{key: key, entry: e})

	for c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		c.ll.Remove(oldest)
		delete(c.items, oldest.Value.(*item).key)
		c.stats.Evictions++
	}
}
