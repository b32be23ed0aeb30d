package multicast

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const dedupShards = 16

// DedupCache remembers every core identity a node has seen.
// Entries are never evicted.
type DedupCache struct {
	shards [dedupShards]dedupShard
}

type dedupShard struct {
	mu   sync.Mutex
	seen map[Identity]struct{}
}

// NewDedupCache creates an empty cache.
func NewDedupCache() *DedupCache {
	c := &DedupCache{}
	for i := range c.shards {
		c.shards[i].seen = make(map[Identity]struct{})
	}
	return c
}

// Observe records m and reports whether its identity was seen for the first time.
func (c *DedupCache) Observe(m Message) bool {
	id := m.Identity()
	s := c.shard(id)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen[id]; ok {
		return false
	}
	s.seen[id] = struct{}{}
	return true
}

// Seen reports whether m's identity was already observed, without recording it.
func (c *DedupCache) Seen(m Message) bool {
	id := m.Identity()
	s := c.shard(id)

	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.seen[id]
	return ok
}

// Len returns the number of distinct identities observed.
func (c *DedupCache) Len() int {
	n := 0
	for i := range c.shards {
		c.shards[i].mu.Lock()
		n += len(c.shards[i].seen)
		c.shards[i].mu.Unlock()
	}
	return n
}

func (c *DedupCache) shard(id Identity) *dedupShard {
	return &c.shards[xxhash.Sum64String(string(id))%dedupShards]
}
