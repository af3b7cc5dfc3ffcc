// Package guardedkv implements the corruption-guarded key-value
// wrapper of spec.md §6.2: a single-column-family store that frames
// every value as value ∥ H224(value) and verifies the suffix on read.
// It is a sibling of the Merkle tree core, not part of its datapath —
// nothing in package merkletree imports this package.
package guardedkv

import (
	"bytes"
	"fmt"

	"github.com/kocubinski/merkletree/hashing"
	"github.com/kocubinski/merkletree/kvengine"
	"github.com/kocubinski/merkletree/merkleerr"
)

const digestLen = hashing.Size224

// Store is one guarded column family within an Engine.
type Store struct {
	cf kvengine.ColumnFamily
	cfName string
	engine kvengine.Engine
}

// Open wraps cfName within engine as a guarded store.
func Open(engine kvengine.Engine, cfName string) *Store {
	return &Store{cf: engine.CF(cfName), cfName: cfName, engine: engine}
}

func frame(value []byte) []byte {
	digest := hashing.H224(value)
	out := make([]byte, 0, len(value)+digestLen)
	out = append(out, value...)
	out = append(out, digest[:]...)
	return out
}

// unframe splits a stored blob back into its value, verifying the
// trailing digest. Per spec.md §9's redesign note, a mismatch is
// surfaced as ErrCorruptState rather than terminating the process —
// the source's exit(0)-on-mismatch behavior is rejected here; the host
// decides whether that's fatal.
func unframe(blob []byte) ([]byte, error) {
	if len(blob) < digestLen {
		return nil, fmt.Errorf("%w: guarded value shorter than digest (%d bytes)", merkleerr.ErrCorruptState, len(blob))
	}
	value := blob[:len(blob)-digestLen]
	wantDigest := blob[len(blob)-digestLen:]
	gotDigest := hashing.H224(value)
	if !bytes.Equal(gotDigest[:], wantDigest) {
		return nil, fmt.Errorf("%w: guarded value digest mismatch", merkleerr.ErrCorruptState)
	}
	return value, nil
}

// Put writes value under key, framed with its H224 digest, in one
// single-key batch.
func (s *Store) Put(key, value []byte) error {
	b := s.engine.NewBatch()
	b.Set(s.cfName, key, frame(value))
	if err := b.Commit(); err != nil {
		b.Discard()
		return fmt.Errorf("%w: guardedkv put: %v", merkleerr.ErrIOFailure, err)
	}
	return nil
}

// Get reads key, returning (nil, nil) if absent and ErrCorruptState if
// the stored digest doesn't match.
func (s *Store) Get(key []byte) ([]byte, error) {
	blob, err := s.cf.Get(key)
	if err != nil {
		return nil, fmt.Errorf("%w: guardedkv get: %v", merkleerr.ErrIOFailure, err)
	}
	if blob == nil {
		return nil, nil
	}
	return unframe(blob)
}

// Delete removes key.
func (s *Store) Delete(key []byte) error {
	b := s.engine.NewBatch()
	b.Delete(s.cfName, key)
	if err := b.Commit(); err != nil {
		b.Discard()
		return fmt.Errorf("%w: guardedkv delete: %v", merkleerr.ErrIOFailure, err)
	}
	return nil
}

// NewIterator scans [start, end) of keys, yielding unframed values.
// The returned GuardedIterator surfaces a digest mismatch through
// Error() rather than panicking mid-scan.
func (s *Store) NewIterator(start, end []byte) (*GuardedIterator, error) {
	it, err := s.cf.Iterator(start, end)
	if err != nil {
		return nil, fmt.Errorf("%w: guardedkv iterator: %v", merkleerr.ErrIOFailure, err)
	}
	g := &GuardedIterator{it: it}
	g.resolveValue()
	return g, nil
}

// GuardedIterator wraps a kvengine.Iterator, unframing each value.
type GuardedIterator struct {
	it  kvengine.Iterator
	err error
	val []byte
}

func (g *GuardedIterator) Valid() bool { return g.it.Valid() && g.err == nil }

func (g *GuardedIterator) Next() {
	g.it.Next()
	g.resolveValue()
}

func (g *GuardedIterator) resolveValue() {
	if !g.it.Valid() {
		g.val = nil
		return
	}
	v, err := unframe(g.it.Value())
	if err != nil {
		g.err = err
		g.val = nil
		return
	}
	g.val = v
}

func (g *GuardedIterator) Key() []byte   { return g.it.Key() }
func (g *GuardedIterator) Value() []byte { return g.val }
func (g *GuardedIterator) Error() error {
	if g.err != nil {
		return g.err
	}
	return g.it.Error()
}
func (g *GuardedIterator) Close() error { return g.it.Close() }

// GetAllKeys returns every key in the store's column family.
func (s *Store) GetAllKeys() ([][]byte, error) {
	it, err := s.NewIterator(nil, nil)
	if err != nil {
		return nil, err
	}
	it.resolveValue()
	defer it.Close()

	var keys [][]byte
	for ; it.Valid(); it.Next() {
		k := make([]byte, len(it.Key()))
		copy(k, it.Key())
		keys = append(keys, k)
	}
	if err := it.Error(); err != nil {
		return nil, err
	}
	return keys, nil
}

// Clone produces a filesystem checkpoint of src's underlying engine
// (all of its column families) at destDir (spec.md §6.2: "Clone uses
// a filesystem checkpoint"). dst is not read or written.
func Clone(src, dst *Store, destDir string) error {
	if err := src.engine.Checkpoint(destDir); err != nil {
		return fmt.Errorf("%w: guardedkv clone: %v", merkleerr.ErrIOFailure, err)
	}
	return nil
}

// Update copies the listed keys from src to dst in one atomic batch
// (spec.md §6.2: "Update applies a key list from src to dst in one
// atomic batch").
func Update(src, dst *Store, keys [][]byte) error {
	b := dst.engine.NewBatch()
	for _, k := range keys {
		blob, err := src.cf.Get(k)
		if err != nil {
			b.Discard()
			return fmt.Errorf("%w: guardedkv update read: %v", merkleerr.ErrIOFailure, err)
		}
		if blob == nil {
			b.Delete(dst.cfName, k)
			continue
		}
		b.Set(dst.cfName, k, blob)
	}
	if err := b.Commit(); err != nil {
		b.Discard()
		return fmt.Errorf("%w: guardedkv update: %v", merkleerr.ErrIOFailure, err)
	}
	return nil
}
