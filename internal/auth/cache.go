package auth

import (
	"sync"
	"time"
)

// identityCache maps verified tokens to identities with a TTL, so repeated
// requests skip signature verification.
type identityCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration

	// now is replaceable in tests.
	now func() time.Time
}

type cacheEntry struct {
	identity Identity
	expires  time.Time
}

func newIdentityCache(ttlSeconds int) *identityCache {
	if ttlSeconds <= 0 {
		ttlSeconds = 300
	}
	return &identityCache{
		entries: make(map[string]cacheEntry),
		ttl:     time.Duration(ttlSeconds) * time.Second,
		now:     time.Now,
	}
}

func (c *identityCache) get(token string) (Identity, bool) {
	c.mu.RLock()
	entry, ok := c.entries[token]
	c.mu.RUnlock()
	if !ok {
		return Identity{}, false
	}
	if c.now().After(entry.expires) {
		c.mu.Lock()
		delete(c.entries, token)
		c.mu.Unlock()
		return Identity{}, false
	}
	return entry.identity, true
}

func (c *identityCache) set(token string, id Identity) {
	c.mu.Lock()
	c.entries[token] = cacheEntry{identity: id, expires: c.now().Add(c.ttl)}
	c.mu.Unlock()
}
