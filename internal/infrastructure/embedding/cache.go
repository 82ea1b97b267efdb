package embedding

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
)

type cacheEntry struct {
	vector []float32
	seq    uint64
}

// Cache memoizes embeddings keyed by a digest of the input text. When the
// cache fills up, the older half of the entries is evicted in one sweep.
type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	max     int
	seq     uint64
}

func NewCache(maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = 1024
	}
	return &Cache{
		entries: make(map[string]cacheEntry, maxEntries),
		max:     maxEntries,
	}
}

func (c *Cache) Get(text string) ([]float32, bool) {
	key := cacheKey(text)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	return entry.vector, true
}

func (c *Cache) Put(text string, vector []float32) {
	key := cacheKey(text)

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.max {
		c.evictOldestHalf()
	}
	c.seq++
	c.entries[key] = cacheEntry{
		vector: append([]float32(nil), vector...),
		seq:    c.seq,
	}
}

func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) evictOldestHalf() {
	cutoff := c.seq - uint64(len(c.entries)/2)
	for key, entry := range c.entries {
		if entry.seq <= cutoff {
			delete(c.entries, key)
		}
	}
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
