// Package kvengine names the capabilities the Merkle tree core requires
// of the underlying embedded ordered key-value engine: column families,
// atomic write batches, iteration, and filesystem-level checkpoints.
// The engine itself is treated as an external collaborator (spec.md §1)
// — this package only states the contract and provides one concrete
// adapter (PebbleEngine) over github.com/cockroachdb/pebble, with
// column families emulated as single-byte key-prefix namespaces over
// one shared store (see DESIGN.md for why this package binds directly
// to pebble rather than through a generic cosmos-db-style wrapper).
package kvengine

// Engine is one open handle to the underlying KV engine, covering all
// column families of a single tree directory.
type Engine interface {
	// CF returns the column family handle for name, creating its
	// namespace lazily on first use. Column families share one
	// write-ahead log and one set of atomic batches.
	CF(name string) ColumnFamily

	// NewBatch starts an atomic write batch spanning every column
	// family reachable through this engine.
	NewBatch() Batch

	// Checkpoint produces a filesystem-level snapshot of the entire
	// engine (all column families) at destDir via hardlinks. destDir
	// must not already exist.
	Checkpoint(destDir string) error

	// Close releases the underlying engine handle. Idempotent.
	Close() error
}

// ColumnFamily is one ordered namespace within an Engine.
type ColumnFamily interface {
	Get(key []byte) ([]byte, error)
	Has(key []byte) (bool, error)

	// Iterator scans [start, end) in ascending key order. A nil start
	// or end means "from the beginning" / "to the end" respectively.
	Iterator(start, end []byte) (Iterator, error)
}

// Batch accumulates writes across column families for one atomic
// commit to durable storage.
type Batch interface {
	Set(cf string, key, value []byte)
	Delete(cf string, key []byte)

	// DeleteRange deletes every key in [start, end) of cf. Used to
	// clear a column family (spec.md §4.5's clear()) and to wipe the
	// metadata CF before rewriting it on every flush (spec.md §4.4).
	DeleteRange(cf string, start, end []byte)

	// Commit writes the whole batch atomically and closes it.
	Commit() error

	// Discard abandons the batch without writing it.
	Discard()
}

// Iterator walks one column family's keys in order.
type Iterator interface {
	Valid() bool
	Next()
	Key() []byte
	Value() []byte
	Error() error
	Close() error
}
