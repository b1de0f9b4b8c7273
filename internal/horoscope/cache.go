package horoscope

import (
	"container/list"
	"sync"

	"github.com/hyperjump/horomatch/internal/models"
)

// LocationCache is an LRU cache of location search results keyed by query.
type LocationCache struct {
	capacity int
	entries  map[string]*list.Element
	lru      *list.List
	mu       sync.Mutex
}

type cacheEntry struct {
	query     string
	locations []models.Location
}

// NewLocationCache creates a cache holding up to capacity queries.
// A non-positive capacity disables caching.
func NewLocationCache(capacity int) *LocationCache {
	return &LocationCache{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		lru:      list.New(),
	}
}

// Get returns the cached locations for query if present.
func (c *LocationCache) Get(query string) ([]models.Location, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[query]; ok {
		c.lru.MoveToFront(elem)
		return elem.Value.(*cacheEntry).locations, true
	}
	return nil, false
}

// Set stores locations for query, evicting the least recently used entry if at capacity.
func (c *LocationCache) Set(query string, locations []models.Location) {
	if c.capacity <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[query]; ok {
		c.lru.MoveToFront(elem)
		elem.Value.(*cacheEntry).locations = locations
		return
	}

	c.entries[query] = c.lru.PushFront(&cacheEntry{query: query, locations: locations})
	if c.lru.Len() > c.capacity {
		if oldest := c.lru.Back(); oldest != nil {
			c.lru.Remove(oldest)
			delete(c.entries, oldest.Value.(*cacheEntry).query)
		}
	}
}

// Len returns the number of cached queries.
func (c *LocationCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
