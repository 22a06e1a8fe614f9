package scoring

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/EternisAI/mailsift/pkg/email"
)

type cacheEntry struct {
	result email.ScoreResult
	seq    uint64
}

// Cache holds analysis results keyed by message ID for the lifetime of a
// session. A hit never re-invokes the scorer.
type Cache struct {
	mu         sync.RWMutex
	entries    map[string]cacheEntry
	seq        uint64
	maxEntries int
	group      singleflight.Group
}

// NewCache returns an empty cache. maxEntries bounds the cache size, with the
// oldest entry evicted on overflow; 0 means unbounded.
func NewCache(maxEntries int) *Cache {
	return &Cache{
		entries:    make(map[string]cacheEntry),
		maxEntries: maxEntries,
	}
}

func (c *Cache) Get(id string) (email.ScoreResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[id]
	return entry.result, ok
}

func (c *Cache) Put(id string, result email.ScoreResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seq++
	c.entries[id] = cacheEntry{result: result, seq: c.seq}

	if c.maxEntries > 0 && len(c.entries) > c.maxEntries {
		c.evictOldestLocked()
	}
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

// GetOrCompute returns the cached result for id, computing and storing it on a
// miss. Concurrent callers for the same uncached id collapse into a single
// compute call and all receive its result.
func (c *Cache) GetOrCompute(ctx context.Context, id string, compute func(ctx context.Context) (email.ScoreResult, error)) (email.ScoreResult, error) {
	if result, ok := c.Get(id); ok {
		return result, nil
	}

	ch := c.group.DoChan(id, func() (interface{}, error) {
		// Another flight may have stored the result between our miss and now.
		if result, ok := c.Get(id); ok {
			return result, nil
		}

		result, err := compute(ctx)
		if err != nil {
			return email.ScoreResult{}, err
		}

		c.Put(id, result)
		return result, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return email.ScoreResult{}, res.Err
		}
		return res.Val.(email.ScoreResult), nil
	case <-ctx.Done():
		return email.ScoreResult{}, ctx.Err()
	}
}

func (c *Cache) evictOldestLocked() {
	var (
		oldestID  string
		oldestSeq uint64
		found     bool
	)
	for id, entry := range c.entries {
		if !found || entry.seq < oldestSeq {
			oldestID = id
			oldestSeq = entry.seq
			found = true
		}
	}
	if found {
		delete(c.entries, oldestID)
	}
}
