package merkletree

import (
	"fmt"
	"sync"

	"github.com/kocubinski/merkletree/merkleerr"
)

// treeRegistry enforces spec.md §3's "at most one live instance per
// tree name in the process" invariant and backs the shutdown hook of
// §4.6. Grounded on the resource/lifecycle redesign note in spec.md
// §9: "a process-scoped registry with explicit registration on open
// and deregistration on close. Weak references are not needed if
// close is reliable."
type treeRegistry struct {
	mu      sync.Mutex
	entries map[string]*Tree // nil value means "reservation in flight"
}

var registry = &treeRegistry{entries: make(map[string]*Tree)}

func (r *treeRegistry) reserve(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("%w: tree %q is already open", merkleerr.ErrConflict, name)
	}
	r.entries[name] = nil
	return nil
}

func (r *treeRegistry) release(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, name)
}

// lookup returns the currently-open tree registered under name, or
// nil if none is open (including if a reservation is still in
// flight).
func (r *treeRegistry) lookup(name string) *Tree {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entries[name]
}

func (r *treeRegistry) commit(name string, t *Tree) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = t
}

func (r *treeRegistry) remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, name)
}

func (r *treeRegistry) openTrees() []*Tree {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Tree, 0, len(r.entries))
	for _, t := range r.entries {
		if t != nil {
			out = append(out, t)
		}
	}
	return out
}

// Shutdown closes every currently open tree: flush, close column
// family handles, close the engine handle, deregister. Intended to be
// invoked from the host process's own shutdown path (signal handler,
// defer in main, test cleanup) — this package installs no signal
// handler of its own.
func Shutdown() {
	for _, t := range registry.openTrees() {
		_ = t.Close()
	}
}
