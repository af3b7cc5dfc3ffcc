package merkletree

import (
	"context"
	"fmt"
	"sync"

	"github.com/kocubinski/merkletree/hashing"
	"github.com/kocubinski/merkletree/merkleerr"
)

// changeQueue is the unbounded FIFO pending-change queue of spec.md
// §4.4. It is a plain mutex+cond slice rather than a buffered channel
// because spec.md requires it to be genuinely unbounded — a channel
// would need an arbitrary capacity guess.
type changeQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []queueItem
	closed bool
}

type queueItem struct {
	key, value []byte
}

func newChangeQueue() *changeQueue {
	q := &changeQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *changeQueue) push(item queueItem) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.cond.Signal()
	q.mu.Unlock()
}

// popBlocking waits for an item or for close(); ok is false only once
// the queue is both closed and empty.
func (q *changeQueue) popBlocking() (item queueItem, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return queueItem{}, false
	}
	item = q.items[0]
	q.items = q.items[1:]
	return item, true
}

// drain discards every queued item without processing it (used by
// revert()).
func (q *changeQueue) drain() {
	q.mu.Lock()
	q.items = nil
	q.mu.Unlock()
}

func (q *changeQueue) stop() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
}

// pendingLatch is the one-shot, auto-resetting "pending processed"
// event of spec.md §5: writers wait on it, the commit worker signals
// it whenever the pending cache transitions to empty, and a fresh
// latch is installed immediately after each signal so later writers
// wait again. Grounded on the generation-based channel-recreation
// idiom in the teacher's CommitTree.reinitHasher/reinitSave
// (iavlx/commit.go), applied here to a broadcast notification instead
// of a work channel.
type pendingLatch struct {
	mu sync.Mutex
	ch chan struct{}
}

func newPendingLatch() *pendingLatch {
	return &pendingLatch{ch: make(chan struct{})}
}

func (l *pendingLatch) wait(ctx context.Context) error {
	l.mu.Lock()
	ch := l.ch
	l.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return merkleerr.ErrInterrupted
	}
}

func (l *pendingLatch) signal() {
	l.mu.Lock()
	close(l.ch)
	l.ch = make(chan struct{})
	l.mu.Unlock()
}

// Put accepts a new (key, value) write: it is appended to the pending
// queue and to the pending cache (spec.md §4.4 steps 1-3), both
// happening before this call returns. The commit worker folds it into
// the tree structure asynchronously.
func (t *Tree) Put(key, value []byte) error {
	if key == nil || value == nil {
		return fmt.Errorf("%w: put requires non-nil key and value", merkleerr.ErrInvalidArgument)
	}
	if err := t.checkOpen(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkOpen(); err != nil {
		return err
	}
	t.queue.push(queueItem{key: key, value: value})
	t.pending.put(key, value)
	t.hasUnsavedChanges.Store(true)
	return nil
}

// Get resolves a key against pending, then committed, then durable
// storage, in that order (spec.md §4.4's lookup order).
func (t *Tree) Get(key []byte) ([]byte, error) {
	if err := t.checkOpen(); err != nil {
		return nil, err
	}
	if v, ok := t.pending.get(key); ok {
		return v, nil
	}
	return t.GetCommitted(key)
}

// GetCommitted resolves a key against committed, then durable storage,
// skipping the pending tier.
func (t *Tree) GetCommitted(key []byte) ([]byte, error) {
	if err := t.checkOpen(); err != nil {
		return nil, err
	}
	if v, ok := t.committed.get(key); ok {
		return v, nil
	}
	return t.readDurableValue(key)
}

// Contains reports whether key resolves to a value in any tier
// (pending, committed, or durable); spec.md §6.3 treats honoring the
// RAM tiers here as acceptable even though the source only checked
// durable storage.
func (t *Tree) Contains(key []byte) (bool, error) {
	v, err := t.Get(key)
	if err != nil {
		return false, err
	}
	return v != nil, nil
}

func (t *Tree) readDurableValue(key []byte) ([]byte, error) {
	if v, ok := t.readCache.getKV(key); ok {
		return v, nil
	}
	v, err := t.cfKV.Get(key)
	if err != nil {
		return nil, fmt.Errorf("%w: reading key: %v", merkleerr.ErrIOFailure, err)
	}
	if v != nil {
		t.readCache.putKV(key, v)
	}
	return v, nil
}

// RootHash blocks until the pending cache has fully drained, then
// returns a copy of the current root hash (nil for an empty tree).
func (t *Tree) RootHash() (*Hash, error) {
	if err := t.checkOpen(); err != nil {
		return nil, err
	}
	if err := t.waitPendingDrained(context.Background()); err != nil {
		return nil, err
	}
	if err := t.checkOpen(); err != nil {
		return nil, err
	}
	t.metaMu.RLock()
	defer t.metaMu.RUnlock()
	if t.rootHash == nil {
		return nil, nil
	}
	h := *t.rootHash
	return &h, nil
}

// waitCommitSettled waits for the commit worker to either fully drain
// the pending tier or become poisoned — unlike waitPendingDrained, it
// never itself returns ErrPoisoned, since Revert is exactly the
// operation that must still run while poisoned in order to clear it.
func (t *Tree) waitCommitSettled(ctx context.Context) error {
	for t.pending.len() != 0 && !t.poisoned.Load() {
		if err := t.latch.wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (t *Tree) waitPendingDrained(ctx context.Context) error {
	for t.pending.len() != 0 {
		if t.poisoned.Load() {
			return merkleerr.ErrPoisoned
		}
		if err := t.latch.wait(ctx); err != nil {
			return err
		}
	}
	if t.poisoned.Load() {
		return merkleerr.ErrPoisoned
	}
	return nil
}

// startWorker launches the single background commit worker for this
// tree. It drains the pending queue in FIFO order for the lifetime of
// the tree; its stop condition is the queue being closed, which
// happens in Close.
func (t *Tree) startWorker() {
	t.workerDone = make(chan struct{})
	go func() {
		defer close(t.workerDone)
		for {
			item, ok := t.queue.popBlocking()
			if !ok {
				return
			}
			t.applyQueueItem(item)
		}
	}()
}

// applyQueueItem is spec.md §4.4's per-item commit-worker body. A
// failed apply marks the tree poisoned (spec.md §9's open question,
// resolved in SPEC_FULL.md §9 choice (b)) rather than halting the
// worker or requeuing indefinitely.
func (t *Tree) applyQueueItem(item queueItem) {
	defer t.maybeSignalDrained()

	oldValue, err := t.GetCommitted(item.key)
	if err != nil {
		t.poison(item, err)
		return
	}

	newHash := hashing.H256Pair(item.key, item.value)

	if oldValue != nil {
		oldHash := hashing.H256Pair(item.key, oldValue)
		if oldHash != newHash {
			if err := t.updateLeaf(oldHash, newHash); err != nil {
				t.poison(item, err)
				return
			}
		}
	} else {
		if err := t.addLeaf(newHash); err != nil {
			t.poison(item, err)
			return
		}
	}

	t.committed.put(item.key, item.value)
	t.pending.deleteIfEqual(item.key, item.value)
	t.reportLeafCount()
	t.log.Debug().Bytes("key", item.key).Msg("committed")
}

func (t *Tree) poison(item queueItem, err error) {
	t.poisoned.Store(true)
	t.log.Error().Err(err).Bytes("key", item.key).Msg("commit worker dropped item; tree poisoned")
	// Wake anyone blocked on the pending-processed latch immediately —
	// the stuck item's pending entry will never clear on its own, so
	// waiting for a real drain would hang forever. Waiters re-check
	// the poisoned flag on wake and return ErrPoisoned.
	t.latch.signal()
}

func (t *Tree) maybeSignalDrained() {
	if t.pending.len() == 0 {
		t.latch.signal()
	}
}

// Flush blocks until pending drains, then writes every dirty node,
// every committed key-value pair, and the full metadata record to
// durable storage in one atomic batch (spec.md §4.4).
func (t *Tree) Flush() error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.flushWhileLocked()
}

// flushWhileLocked is Flush's body, factored out so a caller that
// already holds t.mu — Update, draining src before a checkpoint
// replace — can invoke it without recursing on the non-reentrant lock.
func (t *Tree) flushWhileLocked() error {
	if err := t.waitPendingDrained(context.Background()); err != nil {
		return err
	}
	if err := t.checkOpen(); err != nil {
		return err
	}

	t.state.Store(int32(stateFlushing))
	defer t.state.Store(int32(stateOpen))

	return t.flushLocked()
}

// flushLocked assumes t.mu is held and the pending tier is drained.
func (t *Tree) flushLocked() error {
	batch := t.engine.NewBatch()

	t.metaMu.RLock()
	m := &metadata{rootHash: t.rootHash, numLeaves: t.numLeaves, depth: t.depth, hangingNodes: t.hanging.snapshot()}
	t.metaMu.RUnlock()
	writeMetadataBatch(batch, m)

	dirtyNodes := t.dirty.snapshot()
	for _, n := range dirtyNodes {
		batch.Set(cfNodes, n.hash[:], encodeNode(n))
		if n.pendingOldHash != nil {
			batch.Delete(cfNodes, n.pendingOldHash[:])
		}
	}

	committedEntries := t.committed.snapshot()
	for k, v := range committedEntries {
		batch.Set(cfKeyData, []byte(k), v)
	}

	if err := batch.Commit(); err != nil {
		batch.Discard()
		return fmt.Errorf("%w: flush: %v", merkleerr.ErrIOFailure, err)
	}

	for _, n := range dirtyNodes {
		clean := *n
		clean.pendingOldHash = nil
		t.readCache.putNode(&clean)
	}
	for k, v := range committedEntries {
		t.readCache.putKV([]byte(k), v)
	}

	t.dirty.clear()
	t.committed.clear()
	t.hasUnsavedChanges.Store(false)
	t.log.Info().Int("nodes", len(dirtyNodes)).Int("entries", len(committedEntries)).Msg("flush committed")
	return nil
}

// Revert discards every uncommitted and unflushed change: it clears
// the node cache, hanging-node table, committed and pending caches,
// drains the queue, then reloads metadata from disk (spec.md §4.4).
// If a commit is mid-flight it waits for the pending-processed event
// first.
func (t *Tree) Revert() error {
	if err := t.checkNotClosed(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.waitCommitSettled(context.Background()); err != nil {
		return err
	}

	t.dirty.clear()
	t.committed.clear()
	t.pending.clear()
	t.queue.drain()
	if err := t.loadMetadataLocked(); err != nil {
		return err
	}
	t.readCache.invalidateAll()
	t.hasUnsavedChanges.Store(false)
	t.poisoned.Store(false)
	t.log.Info().Msg("reverted")
	return nil
}

// Clear atomically range-deletes every column family, then resets
// every in-memory structure (spec.md §4.5).
func (t *Tree) Clear() error {
	if err := t.checkNotClosed(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	// Clear is, like Revert, a full reset of every in-memory and durable
	// structure — it must be usable to recover a poisoned tree, so it
	// waits for settlement rather than failing on the poisoned flag.
	if err := t.waitCommitSettled(context.Background()); err != nil {
		return err
	}
	return t.clearLocked()
}

// clearLocked assumes t.mu is held and the commit worker has settled.
// Factored out of Clear so Update's case-1 (src is empty) can reuse it
// without re-entering t.mu.
func (t *Tree) clearLocked() error {
	batch := t.engine.NewBatch()
	batch.DeleteRange(cfDefault, nil, nil)
	batch.DeleteRange(cfMetadata, nil, nil)
	batch.DeleteRange(cfNodes, nil, nil)
	batch.DeleteRange(cfKeyData, nil, nil)
	if err := batch.Commit(); err != nil {
		batch.Discard()
		return fmt.Errorf("%w: clear: %v", merkleerr.ErrIOFailure, err)
	}

	t.dirty.clear()
	t.hanging.clear()
	t.committed.clear()
	t.pending.clear()
	t.queue.drain()
	t.readCache.invalidateAll()

	t.metaMu.Lock()
	t.rootHash = nil
	t.numLeaves = 0
	t.depth = 0
	t.metaMu.Unlock()

	t.hasUnsavedChanges.Store(false)
	t.poisoned.Store(false)
	t.reportLeafCount()
	t.log.Info().Msg("cleared")
	return nil
}
