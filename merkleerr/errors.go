// Package merkleerr defines the sentinel error kinds shared by the tree,
// its key-value tiers, and the corruption-guarded adjunct store.
package merkleerr

import "errors"

// Sentinel kinds. Callers should test with errors.Is, not string
// comparison; wrapped errors carry context via fmt.Errorf's %w.
var (
	// ErrInvalidArgument covers nil key/value, an updateLeaf call where
	// old == new, and other caller-supplied invariant violations.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound is returned when a node lookup by hash fails to
	// resolve where the algorithm required a hit. A missing user key is
	// not an error: key lookups return a nil value.
	ErrNotFound = errors.New("not found")

	// ErrTreeClosed is returned by any operation after close(), other
	// than Close itself and IsClosed — both of those are defined to
	// succeed (idempotently) on an already-closed tree.
	ErrTreeClosed = errors.New("tree closed")

	// ErrConflict is returned when opening a second instance of an
	// already-open tree name. Clone does not fail on an open target
	// name: it closes the tree open under that name first.
	ErrConflict = errors.New("conflict")

	// ErrIOFailure wraps an underlying KV engine or filesystem error.
	ErrIOFailure = errors.New("io failure")

	// ErrInterrupted is returned when a goroutine blocked on the
	// pending-processed latch is interrupted via context cancellation.
	ErrInterrupted = errors.New("interrupted")

	// ErrCorruptState covers node decode length mismatches and, in the
	// adjunct guarded store, digest mismatches on read.
	ErrCorruptState = errors.New("corrupt state")

	// ErrPoisoned is returned once the commit worker has dropped a
	// dequeued item after a failed apply; cleared by revert().
	ErrPoisoned = errors.New("tree poisoned")
)
