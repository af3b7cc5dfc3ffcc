package merkletree

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kocubinski/merkletree/kvengine"
	"github.com/kocubinski/merkletree/merkleerr"
)

// Clone flushes self, then asks the underlying engine for a
// filesystem-level checkpoint (hardlinks, not copy) at
// cfg.Prefix/newName, and opens a fresh Tree over it (spec.md §4.5).
// Any previously open tree registered under newName is closed first;
// any pre-existing directory at the target path is removed first.
func (t *Tree) Clone(newName string) (*Tree, error) {
	if err := t.checkOpen(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.waitPendingDrained(context.Background()); err != nil {
		return nil, err
	}
	if err := t.checkOpen(); err != nil {
		return nil, err
	}
	if err := t.flushLocked(); err != nil {
		return nil, err
	}

	destDir := filepath.Join(t.cfg.Prefix, newName)

	if existing := registry.lookup(newName); existing != nil {
		if err := existing.Close(); err != nil {
			return nil, fmt.Errorf("closing previously open tree %q: %w", newName, err)
		}
	}
	if err := os.RemoveAll(destDir); err != nil {
		return nil, fmt.Errorf("%w: removing existing clone target %s: %v", merkleerr.ErrIOFailure, destDir, err)
	}

	if err := t.engine.Checkpoint(destDir); err != nil {
		return nil, fmt.Errorf("%w: checkpoint to %s: %v", merkleerr.ErrIOFailure, destDir, err)
	}

	if err := registry.reserve(newName); err != nil {
		return nil, err
	}
	clone, err := openAt(newName, destDir, t.cfg)
	if err != nil {
		registry.release(newName)
		return nil, err
	}
	registry.commit(newName, clone)

	treesClonedTotal.Inc()
	t.log.Info().Str("clone", newName).Msg("cloned")
	return clone, nil
}

// Update fast-forwards self to match src, choosing among three cases
// (spec.md §4.5): src empty, on-disk roots already equal (cache-copy
// fast path), or genuinely divergent disk state (checkpoint replace).
//
// Both self's and src's write locks are held for the duration, in a
// fixed order keyed by tree name, matching the original MerkleTree's
// dual writeLock.lock() discipline: without src also locked, a Put
// landing on src between the cache-copy snapshot reads could copy a
// torn state into self that never existed in src. The fixed order
// avoids deadlock against a concurrent src.Update(t).
func (t *Tree) Update(src *Tree) error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	if err := src.checkOpen(); err != nil {
		return err
	}

	unlock := lockPairByName(t, src)
	defer unlock()

	if err := t.waitPendingDrained(context.Background()); err != nil {
		return err
	}
	if err := t.checkOpen(); err != nil {
		return err
	}

	srcRoot, err := src.RootHash()
	if err != nil {
		return err
	}

	if srcRoot == nil {
		selfRoot, err := t.RootHash()
		if err != nil {
			return err
		}
		if selfRoot == nil {
			return nil
		}
		return t.clearLocked()
	}

	srcOnDisk, err := src.RootHashOnDisk()
	if err != nil {
		return err
	}
	selfOnDisk, err := t.RootHashOnDisk()
	if err != nil {
		return err
	}
	if hashPtrEqual(srcOnDisk, selfOnDisk) {
		t.updateCacheCopyLocked(src)
		treesUpdatedWithoutCloneTotal.Inc()
		t.log.Info().Str("src", src.name).Msg("updated (cache-copy fast path)")
		return nil
	}

	if err := src.flushWhileLocked(); err != nil {
		return err
	}
	if err := t.updateCheckpointReplaceLocked(src); err != nil {
		return err
	}
	t.log.Info().Str("src", src.name).Msg("updated (checkpoint replace)")
	return nil
}

// lockPairByName locks both trees' write locks, in an order keyed by
// tree name rather than call order, so a concurrent t.Update(src) and
// src.Update(t) can never each hold one lock and wait on the other.
// Returns the matching unlock function. A tree updating from itself is
// a legal (if pointless) no-op call, so it locks mu only once.
func lockPairByName(t, src *Tree) func() {
	if t == src {
		t.mu.Lock()
		return t.mu.Unlock
	}
	first, second := t, src
	if src.name < t.name {
		first, second = src, t
	}
	first.mu.Lock()
	second.mu.Lock()
	return func() {
		second.mu.Unlock()
		first.mu.Unlock()
	}
}

// updateCacheCopyLocked implements spec.md §4.5 case 2: durable state
// is already identical, so only the RAM tiers need to move. Every node
// and cache entry is deep-copied — new structures with copied hash
// buffers — so later mutation of src never reaches back into self.
func (t *Tree) updateCacheCopyLocked(src *Tree) {
	t.dirty.clear()
	t.committed.clear()
	t.hanging.clear()

	for _, n := range src.dirty.snapshot() {
		t.dirty.put(cloneNode(n))
	}
	for k, v := range src.committed.snapshot() {
		vc := make([]byte, len(v))
		copy(vc, v)
		t.committed.put([]byte(k), vc)
	}
	for level, h := range src.hanging.snapshot() {
		t.hanging.set(level, h)
	}

	src.metaMu.RLock()
	rootHash, numLeaves, depth := src.rootHash, src.numLeaves, src.depth
	src.metaMu.RUnlock()

	t.metaMu.Lock()
	if rootHash != nil {
		h := *rootHash
		t.rootHash = &h
	} else {
		t.rootHash = nil
	}
	t.numLeaves = numLeaves
	t.depth = depth
	t.metaMu.Unlock()

	t.hasUnsavedChanges.Store(src.hasUnsavedChanges.Load())
	t.reportLeafCount()
}

func cloneNode(n *node) *node {
	cp := &node{hash: n.hash}
	if n.left != nil {
		h := *n.left
		cp.left = &h
	}
	if n.right != nil {
		h := *n.right
		cp.right = &h
	}
	if n.parent != nil {
		h := *n.parent
		cp.parent = &h
	}
	if n.pendingOldHash != nil {
		h := *n.pendingOldHash
		cp.pendingOldHash = &h
	}
	return cp
}

// updateCheckpointReplaceLocked implements spec.md §4.5 case 3: self's
// on-disk state diverges from src's, so self's engine handle is
// discarded entirely and replaced by a fresh checkpoint of src.
func (t *Tree) updateCheckpointReplaceLocked(src *Tree) error {
	if err := t.engine.Close(); err != nil {
		return fmt.Errorf("%w: closing engine before replace: %v", merkleerr.ErrIOFailure, err)
	}
	if err := os.RemoveAll(t.dir); err != nil {
		return fmt.Errorf("%w: removing %s before replace: %v", merkleerr.ErrIOFailure, t.dir, err)
	}
	if err := src.engine.Checkpoint(t.dir); err != nil {
		return fmt.Errorf("%w: checkpoint %s to %s: %v", merkleerr.ErrIOFailure, src.dir, t.dir, err)
	}

	engine, err := kvengine.Open(t.dir, []string{cfDefault, cfMetadata, cfNodes, cfKeyData})
	if err != nil {
		return fmt.Errorf("%w: reopening %s: %v", merkleerr.ErrIOFailure, t.dir, err)
	}
	t.engine = engine
	t.cfMeta = engine.CF(cfMetadata)
	t.cfNode = engine.CF(cfNodes)
	t.cfKV = engine.CF(cfKeyData)

	if err := t.loadMetadataLocked(); err != nil {
		return err
	}

	t.dirty.clear()
	t.committed.clear()
	t.pending.clear()
	t.readCache.invalidateAll()
	t.hasUnsavedChanges.Store(false)
	t.reportLeafCount()
	return nil
}
