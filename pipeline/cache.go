package pipeline

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"sort"
	"sync"
	"time"
)

// cacheEntry is one stored response and its expiry.
type cacheEntry struct {
	value   map[string]interface{}
	expires time.Time
}

// readCache is the pipeline's sha1-keyed read cache (spec.md §4.A):
// cacheable searchManga responses are stored under a digest of the
// query+variables, with a TTL, and can be bulk-invalidated by the
// search term they were served under: Pipeline.InvalidateTerm drops
// every cached response for that term in one call. Dispatching a
// mutation does not invalidate anything on its own.
type readCache struct {
	defaultTTL time.Duration

	mu      sync.Mutex
	entries map[string]cacheEntry
	byTerm  map[string]map[string]struct{} // term -> set of cache keys
}

func newReadCache(defaultTTL time.Duration) *readCache {
	if defaultTTL <= 0 {
		defaultTTL = 30 * time.Minute
	}
	return &readCache{
		defaultTTL: defaultTTL,
		entries:    make(map[string]cacheEntry),
		byTerm:     make(map[string]map[string]struct{}),
	}
}

func (c *readCache) get(key string) (map[string]interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return entry.value, true
}

func (c *readCache) set(key, term string, value map[string]interface{}, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = cacheEntry{value: value, expires: time.Now().Add(ttl)}

	if term == "" {
		return
	}
	keys, ok := c.byTerm[term]
	if !ok {
		keys = make(map[string]struct{})
		c.byTerm[term] = keys
	}
	keys[key] = struct{}{}
}

// invalidateTerm drops every cache entry registered under term.
func (c *readCache) invalidateTerm(term string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys, ok := c.byTerm[term]
	if !ok {
		return
	}
	for key := range keys {
		delete(c.entries, key)
	}
	delete(c.byTerm, term)
}

// cacheKeyFor computes the sha1 digest used as a cache key: the query
// text plus a stable (sorted-key) JSON encoding of its variables, so
// the same logical request always hashes to the same key regardless
// of map iteration order.
func cacheKeyFor(query string, variables map[string]interface{}) string {
	h := sha1.New()
	h.Write([]byte(query))
	h.Write([]byte{0})
	h.Write(stableJSON(variables))
	return hex.EncodeToString(h.Sum(nil))
}

// stableJSON encodes a map with its keys in sorted order, since
// encoding/json does not guarantee map key order is stable across
// Go versions for the purpose of a content-addressed cache key.
func stableJSON(m map[string]interface{}) []byte {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	ordered := make([]interface{}, 0, len(keys)*2)
	for _, k := range keys {
		ordered = append(ordered, k, m[k])
	}
	b, _ := json.Marshal(ordered)
	return b
}
