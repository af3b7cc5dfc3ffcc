package kvengine

import (
	"bytes"
	"fmt"
	"os"

	"github.com/cockroachdb/pebble"
)

// cfTag is a one-byte column-family prefix. cockroachdb/pebble has no
// native notion of column families (unlike the RocksDB bindings that
// appear elsewhere in the dependency graph this module descends
// from); we emulate them the same way store-v2/main.go in the teacher
// repo namespaces per-store-key data over a single shared DB — by
// prefixing every key with a fixed tag before it reaches the engine.
type cfTag byte

const tagLen = 1

// PebbleEngine is the Engine adapter backed by a single
// *pebble.DB. All column families share the one DB, one WAL, and one
// set of atomic batches — exactly the sharing spec.md's "column
// family" glossary entry describes.
type PebbleEngine struct {
	db   *pebble.DB
	dir  string
	tags map[string]cfTag
	next cfTag
}

// Open opens (creating if absent) a PebbleEngine at dir, pre-declaring
// the given column family names. Declaring names up front keeps tag
// assignment deterministic across process restarts.
func Open(dir string, cfNames []string) (*PebbleEngine, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("%w: opening pebble at %s: %v", ErrIOWrap, dir, err)
	}
	e := &PebbleEngine{db: db, dir: dir, tags: make(map[string]cfTag, len(cfNames))}
	for _, name := range cfNames {
		e.declare(name)
	}
	return e, nil
}

// ErrIOWrap is the sentinel the kvengine package itself uses to tag
// engine-level I/O errors before merkletree rewraps them as
// merkleerr.ErrIOFailure.
var ErrIOWrap = fmt.Errorf("kvengine io error")

func (e *PebbleEngine) declare(name string) cfTag {
	if t, ok := e.tags[name]; ok {
		return t
	}
	e.next++
	t := e.next
	e.tags[name] = t
	return t
}

func (e *PebbleEngine) tagOf(name string) cfTag {
	if t, ok := e.tags[name]; ok {
		return t
	}
	return e.declare(name)
}

func (e *PebbleEngine) prefixedKey(name string, key []byte) []byte {
	out := make([]byte, tagLen+len(key))
	out[0] = byte(e.tagOf(name))
	copy(out[tagLen:], key)
	return out
}

func (e *PebbleEngine) CF(name string) ColumnFamily {
	return &pebbleCF{engine: e, name: name}
}

func (e *PebbleEngine) NewBatch() Batch {
	return &pebbleBatch{engine: e, batch: e.db.NewBatch()}
}

// Checkpoint produces a hardlink-based filesystem snapshot of the
// whole engine. destDir must not already exist.
func (e *PebbleEngine) Checkpoint(destDir string) error {
	if _, err := os.Stat(destDir); err == nil {
		return fmt.Errorf("%w: checkpoint destination %s already exists", ErrIOWrap, destDir)
	}
	if err := e.db.Checkpoint(destDir); err != nil {
		return fmt.Errorf("%w: checkpoint to %s: %v", ErrIOWrap, destDir, err)
	}
	return nil
}

func (e *PebbleEngine) Close() error {
	if e.db == nil {
		return nil
	}
	err := e.db.Close()
	e.db = nil
	return err
}

type pebbleCF struct {
	engine *PebbleEngine
	name   string
}

func (c *pebbleCF) Get(key []byte) ([]byte, error) {
	v, closer, err := c.engine.db.Get(c.engine.prefixedKey(c.name, key))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get: %v", ErrIOWrap, err)
	}
	out := bytes.Clone(v)
	_ = closer.Close()
	return out, nil
}

func (c *pebbleCF) Has(key []byte) (bool, error) {
	v, err := c.Get(key)
	return v != nil, err
}

func (c *pebbleCF) Iterator(start, end []byte) (Iterator, error) {
	tag := byte(c.engine.tagOf(c.name))
	lower := c.engine.prefixedKey(c.name, start)
	var upper []byte
	if end == nil {
		upper = []byte{tag + 1}
	} else {
		upper = c.engine.prefixedKey(c.name, end)
	}
	it, err := c.engine.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, fmt.Errorf("%w: new iterator: %v", ErrIOWrap, err)
	}
	it.First()
	return &pebbleIterator{it: it}, nil
}

type pebbleIterator struct {
	it *pebble.Iterator
}

func (i *pebbleIterator) Valid() bool { return i.it.Valid() }
func (i *pebbleIterator) Next()       { i.it.Next() }
func (i *pebbleIterator) Key() []byte {
	k := i.it.Key()
	return k[tagLen:]
}
func (i *pebbleIterator) Value() []byte { return bytes.Clone(i.it.Value()) }
func (i *pebbleIterator) Error() error   { return i.it.Error() }
func (i *pebbleIterator) Close() error   { return i.it.Close() }

type pebbleBatch struct {
	engine *PebbleEngine
	batch  *pebble.Batch
}

func (b *pebbleBatch) Set(cf string, key, value []byte) {
	_ = b.batch.Set(b.engine.prefixedKey(cf, key), value, nil)
}

func (b *pebbleBatch) Delete(cf string, key []byte) {
	_ = b.batch.Delete(b.engine.prefixedKey(cf, key), nil)
}

func (b *pebbleBatch) DeleteRange(cf string, start, end []byte) {
	tag := byte(b.engine.tagOf(cf))
	lower := b.engine.prefixedKey(cf, start)
	var upper []byte
	if end == nil {
		upper = []byte{tag + 1}
	} else {
		upper = b.engine.prefixedKey(cf, end)
	}
	_ = b.batch.DeleteRange(lower, upper, nil)
}

func (b *pebbleBatch) Commit() error {
	if err := b.batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("%w: batch commit: %v", ErrIOWrap, err)
	}
	_ = b.batch.Close()
	return nil
}

func (b *pebbleBatch) Discard() {
	_ = b.batch.Close()
}
