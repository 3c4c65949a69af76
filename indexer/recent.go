package indexer

import (
	"sync"

	"github.com/decred/dcrd/lru"
)

// recentLogCache is a bounded, thread-safe membership set of recently
// applied log identifiers, guarding Apply against redelivery (spec.md
// section 4.K replay-from-checkpoint: a log at or before the checkpoint
// may legitimately arrive again from a reconnecting stream). Backed by
// decred/dcrd/lru's generic Cache, the teacher's dependency set already
// carries this module indirectly for exactly this kind of bounded
// recently-seen set.
type recentLogCache struct {
	mu    sync.Mutex
	cache *lru.Cache[logIdentifier]
}

func newRecentLogCache(limit uint) *recentLogCache {
	return &recentLogCache{cache: lru.New[logIdentifier](limit)}
}

func (c *recentLogCache) contains(id logIdentifier) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Contains(id)
}

func (c *recentLogCache) add(id logIdentifier) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Add(id)
}
