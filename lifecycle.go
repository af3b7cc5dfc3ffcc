package merkletree

import (
	"context"
	"fmt"

	"github.com/kocubinski/merkletree/merkleerr"
)

// Close flushes any settled pending changes, stops the commit worker,
// releases every cache and engine handle, and deregisters the tree
// from the process-wide registry. It is legal to call Close on a
// poisoned tree — Close does not require a clean commit state, it
// only requires that the worker eventually stop.
//
// After Close returns (successfully or not) the tree is unusable;
// every other method returns ErrTreeClosed. Close itself is idempotent
// — spec.md §4.7 carves close and is_closed out of the "any operation
// on Closed fails with TreeClosed" rule, so a second call is a no-op.
func (t *Tree) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if treeState(t.state.Load()) == stateClosed {
		return nil
	}

	// Let any in-flight commit either finish or poison rather than
	// racing the worker shutdown below; a poisoned tree still closes.
	_ = t.waitCommitSettled(context.Background())

	if !t.poisoned.Load() {
		t.state.Store(int32(stateFlushing))
		if err := t.flushLocked(); err != nil {
			t.log.Error().Err(err).Msg("flush during close failed")
		}
	}

	t.queue.stop()
	<-t.workerDone

	t.readCache.close()

	if err := t.engine.Close(); err != nil {
		t.state.Store(int32(stateClosed))
		registry.remove(t.name)
		return fmt.Errorf("%w: closing engine: %v", merkleerr.ErrIOFailure, err)
	}

	t.state.Store(int32(stateClosed))
	registry.remove(t.name)
	t.log.Info().Msg("tree closed")
	return nil
}
