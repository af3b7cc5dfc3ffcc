// Package merkletree implements a persistent authenticated key-value
// store: a Merkle tree whose leaves are hashes of (key, value) pairs,
// backed by an embedded ordered key-value engine (package kvengine).
package merkletree

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/kocubinski/merkletree/kvengine"
	"github.com/kocubinski/merkletree/merkleerr"
)

// treeState is the state machine of spec.md §4.7.
type treeState int32

const (
	stateOpen treeState = iota
	stateFlushing
	stateClosed
)

// Config configures a tree Open call. There is no file-based or
// environment-variable config surface (spec.md §6.4) — every field
// here is passed explicitly by the caller.
type Config struct {
	// Prefix is the filesystem directory under which tree directories
	// are created, e.g. "merkleTree/". Defaults to DefaultPrefix.
	Prefix string

	// CacheCost bounds the cost budget of each ristretto read-through
	// cache. The key-value cache charges each entry its value length
	// plus one; the node cache charges one per node. Zero selects a
	// default.
	CacheCost int64

	// Logger, if nil, derives from the global zerolog logger.
	Logger *zerolog.Logger
}

// DefaultPrefix is spec.md §6.4's default path prefix.
const DefaultPrefix = "merkleTree/"

// Tree is one open handle to a persistent authenticated key-value
// store. At most one Tree per name may be open in the process at a
// time (enforced by the package-level registry in registry.go).
type Tree struct {
	name   string
	dir    string
	cfg    Config
	engine kvengine.Engine

	cfMeta kvengine.ColumnFamily
	cfNode kvengine.ColumnFamily
	cfKV   kvengine.ColumnFamily

	log zerolog.Logger

	// mu is the single write-serializing lock of spec.md §5. It
	// guards put, flush, clear, clone, update, revert, close. It does
	// not guard the commit worker's internal operations on the tiers
	// below — those have their own locks so the worker never blocks
	// behind an application thread holding mu for an unrelated reason.
	mu sync.Mutex

	// metaMu guards rootHash/numLeaves/depth. It is separate from mu
	// because the commit worker updates these fields on every drained
	// item without waiting on mu — spec.md §5 requires that holding mu
	// never blocks the worker.
	metaMu    sync.RWMutex
	rootHash  *Hash
	numLeaves uint32
	depth     uint32

	hanging   *hangingTable
	dirty     *dirtyNodeCache
	pending   *kvTier
	committed *kvTier
	readCache *readThroughCaches

	queue *changeQueue
	latch *pendingLatch

	hasUnsavedChanges atomic.Bool
	poisoned          atomic.Bool
	state             atomic.Int32

	workerDone chan struct{}

	cacheCost int64
}

// Open opens (or creates) the tree named name under cfg.Prefix,
// starts its commit worker, and registers it in the process-wide open
// registry. Opening a name that is already open fails with
// ErrConflict.
func Open(name string, cfg Config) (*Tree, error) {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	dir := filepath.Join(cfg.Prefix, name)

	if err := registry.reserve(name); err != nil {
		return nil, err
	}

	t, err := openAt(name, dir, cfg)
	if err != nil {
		registry.release(name)
		return nil, err
	}
	registry.commit(name, t)
	return t, nil
}

func openAt(name, dir string, cfg Config) (*Tree, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating tree directory %s: %v", merkleerr.ErrIOFailure, dir, err)
	}

	engine, err := kvengine.Open(dir, []string{cfDefault, cfMetadata, cfNodes, cfKeyData})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", merkleerr.ErrIOFailure, err)
	}

	logger := log.Logger
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	logger = logger.With().Str("tree", name).Logger()

	readCache, err := newReadThroughCaches(cfg.CacheCost)
	if err != nil {
		_ = engine.Close()
		return nil, fmt.Errorf("%w: building read cache: %v", merkleerr.ErrIOFailure, err)
	}

	t := &Tree{
		name:      name,
		dir:       dir,
		cfg:       cfg,
		engine:    engine,
		cfMeta:    engine.CF(cfMetadata),
		cfNode:    engine.CF(cfNodes),
		cfKV:      engine.CF(cfKeyData),
		log:       logger,
		hanging:   newHangingTable(),
		dirty:     newDirtyNodeCache(),
		pending:   newKVTier(),
		committed: newKVTier(),
		readCache: readCache,
		queue:     newChangeQueue(),
		latch:     newPendingLatch(),
		cacheCost: cfg.CacheCost,
	}
	t.state.Store(int32(stateOpen))

	if err := t.loadMetadataLocked(); err != nil {
		_ = engine.Close()
		return nil, err
	}

	t.startWorker()
	t.log.Info().Msg("tree opened")
	return t, nil
}

func (t *Tree) loadMetadataLocked() error {
	m, err := loadMetadata(t.cfMeta)
	if err != nil {
		return err
	}
	t.metaMu.Lock()
	t.rootHash = m.rootHash
	t.numLeaves = m.numLeaves
	t.depth = m.depth
	t.metaMu.Unlock()
	t.hanging.clear()
	for level, h := range m.hangingNodes {
		t.hanging.set(level, h)
	}
	return nil
}

func (t *Tree) checkOpen() error {
	if treeState(t.state.Load()) == stateClosed {
		return merkleerr.ErrTreeClosed
	}
	if t.poisoned.Load() {
		return merkleerr.ErrPoisoned
	}
	return nil
}

// checkNotClosed is the weaker precondition used by Revert and Clear:
// both must still run on a poisoned tree in order to clear the poison.
// Close, which must also run on a poisoned tree, checks the closed
// state itself, since it succeeds on an already-closed tree.
func (t *Tree) checkNotClosed() error {
	if treeState(t.state.Load()) == stateClosed {
		return merkleerr.ErrTreeClosed
	}
	return nil
}

// IsClosed reports whether Close has already completed. Legal to call
// after Close, unlike every other operation.
func (t *Tree) IsClosed() bool {
	return treeState(t.state.Load()) == stateClosed
}

// NumLeaves returns the number of leaves committed into the tree
// structure (not merely pending).
func (t *Tree) NumLeaves() uint32 {
	t.metaMu.RLock()
	defer t.metaMu.RUnlock()
	return t.numLeaves
}

// Depth returns the current tree depth (0 for an empty or single-leaf
// tree).
func (t *Tree) Depth() uint32 {
	t.metaMu.RLock()
	defer t.metaMu.RUnlock()
	return t.depth
}

// RootHashOnDisk reads the root hash directly from the metadata
// column family, bypassing the pending queue entirely. Unlike
// RootHash, it never blocks.
func (t *Tree) RootHashOnDisk() (*Hash, error) {
	if err := t.checkOpen(); err != nil {
		return nil, err
	}
	m, err := loadMetadata(t.cfMeta)
	if err != nil {
		return nil, err
	}
	return m.rootHash, nil
}

// Name returns the tree's registered name.
func (t *Tree) Name() string { return t.name }
