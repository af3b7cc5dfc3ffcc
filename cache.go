package merkletree

import (
	"sync"

	"github.com/dgraph-io/ristretto/v2"
)

// dirtyNodeCache holds every node created or rehashed since the last
// flush. Every entry here is, by construction, not yet durable — it
// must never be evicted before flush() writes it out, so it is a
// plain mutex-guarded map rather than an admission-based cache (see
// DESIGN.md for why ristretto, used elsewhere in this package, is the
// wrong fit for this particular tier).
type dirtyNodeCache struct {
	mu    sync.RWMutex
	nodes map[Hash]*node
}

func newDirtyNodeCache() *dirtyNodeCache {
	return &dirtyNodeCache{nodes: make(map[Hash]*node)}
}

func (c *dirtyNodeCache) get(h Hash) (*node, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n, ok := c.nodes[h]
	return n, ok
}

func (c *dirtyNodeCache) put(n *node) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nodes[n.hash] = n
}

func (c *dirtyNodeCache) remove(h Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.nodes, h)
}

// move relocates a node from oldHash to newHash within the cache,
// used by updateNodeHash (spec.md §4.3 step 4).
func (c *dirtyNodeCache) move(oldHash, newHash Hash, n *node) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.nodes, oldHash)
	c.nodes[newHash] = n
}

func (c *dirtyNodeCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nodes = make(map[Hash]*node)
}

// snapshot returns every dirty node, for flush() and for update()'s
// cache-copy path.
func (c *dirtyNodeCache) snapshot() []*node {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*node, 0, len(c.nodes))
	for _, n := range c.nodes {
		out = append(out, n)
	}
	return out
}

func (c *dirtyNodeCache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.nodes)
}

// hangingTable is the level→hash map of spec.md §3. At most one
// hanging node per level, at levels 0 through depth; a level whose
// hanging node gained a sibling is cleared, so levels may have gaps
// (after three leaves, only levels 0 and 2 are set). Small and
// iterated in full on every flush, so a plain map rather than a cache
// is the natural fit here too.
type hangingTable struct {
	mu     sync.RWMutex
	levels map[uint32]Hash
}

func newHangingTable() *hangingTable {
	return &hangingTable{levels: make(map[uint32]Hash)}
}

func (h *hangingTable) get(level uint32) (Hash, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	v, ok := h.levels[level]
	return v, ok
}

func (h *hangingTable) set(level uint32, hash Hash) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.levels[level] = hash
}

func (h *hangingTable) clearLevel(level uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.levels, level)
}

// repoint updates the hanging entry at any level currently mapped to
// oldHash, stopping after the first match (spec.md §4.3 step 3: "at
// most one hanging node per level" makes the first match also the
// only possible match).
func (h *hangingTable) repoint(oldHash, newHash Hash) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for level, hash := range h.levels {
		if hash == oldHash {
			h.levels[level] = newHash
			return
		}
	}
}

func (h *hangingTable) clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.levels = make(map[uint32]Hash)
}

func (h *hangingTable) snapshot() map[uint32]Hash {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[uint32]Hash, len(h.levels))
	for k, v := range h.levels {
		out[k] = v
	}
	return out
}

// kvTier is a plain mutex-guarded string→[]byte map backing the
// pending and committed key-value tiers (spec.md §3's "Key→value
// map"). Entries here represent writes not yet durable; like
// dirtyNodeCache, they must survive until flush, so no eviction is
// acceptable.
type kvTier struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

func newKVTier() *kvTier {
	return &kvTier{entries: make(map[string][]byte)}
}

func (t *kvTier) get(key []byte) ([]byte, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.entries[string(key)]
	return v, ok
}

func (t *kvTier) put(key, value []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[string(key)] = value
}

// deleteIfEqual removes key only if its current value equals value —
// used by the commit worker to drop a pending entry after folding it
// into the committed tier, but only if nothing newer has queued behind
// it (spec.md §4.4 step 6).
func (t *kvTier) deleteIfEqual(key, value []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := string(key)
	if existing, ok := t.entries[k]; ok && string(existing) == string(value) {
		delete(t.entries, k)
	}
}

func (t *kvTier) clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[string][]byte)
}

func (t *kvTier) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

func (t *kvTier) snapshot() map[string][]byte {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string][]byte, len(t.entries))
	for k, v := range t.entries {
		out[k] = v
	}
	return out
}

// readThroughCaches are ristretto-backed look-aside caches in front of
// durable reads: once a node or key-value pair has been flushed, the
// next read for it is satisfied from RAM rather than the column
// family. Unlike the tiers above, eviction here is harmless — a miss
// just falls back to the durable store — so ristretto's admission
// policy (TinyLFU, cost-bounded) is a safe and idiomatic fit, grounded
// on github.com/dgraph-io/ristretto/v2 as declared in the pack's
// ShubhamNegi4-DaemonDB/go.mod.
type readThroughCaches struct {
	nodes *ristretto.Cache[string, *node]
	kv    *ristretto.Cache[string, []byte]
}

func newReadThroughCaches(cacheCost int64) (*readThroughCaches, error) {
	if cacheCost <= 0 {
		cacheCost = 32 << 20 // 32 MiB default budget per tier
	}
	nodes, err := ristretto.NewCache(&ristretto.Config[string, *node]{
		NumCounters: cacheCost / 100,
		MaxCost:     cacheCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	kv, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: cacheCost / 100,
		MaxCost:     cacheCost,
		BufferItems: 64,
	})
	if err != nil {
		nodes.Close()
		return nil, err
	}
	return &readThroughCaches{nodes: nodes, kv: kv}, nil
}

func (c *readThroughCaches) putNode(n *node) {
	c.nodes.Set(string(n.hash[:]), n, 1)
}

func (c *readThroughCaches) getNode(h Hash) (*node, bool) {
	return c.nodes.Get(string(h[:]))
}

func (c *readThroughCaches) putKV(key, value []byte) {
	c.kv.Set(string(key), value, int64(len(value))+1)
}

func (c *readThroughCaches) getKV(key []byte) ([]byte, bool) {
	return c.kv.Get(string(key))
}

// invalidateAll drops every cached entry — called from clear() and
// from update()'s snapshot-replace path, where durable state is
// swapped out from under the cache.
func (c *readThroughCaches) invalidateAll() {
	c.nodes.Clear()
	c.kv.Clear()
}

func (c *readThroughCaches) close() {
	c.nodes.Close()
	c.kv.Close()
}
