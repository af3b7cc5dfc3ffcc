package merkletree

import (
	"fmt"

	"github.com/kocubinski/merkletree/merkleerr"
)

// AllKeys returns every user key in the keyData column family
// (spec.md §6.3). It does not consult the pending or committed
// caches — like the source, it is a durable-state-only scan.
func (t *Tree) AllKeys() ([][]byte, error) {
	if err := t.checkOpen(); err != nil {
		return nil, err
	}
	it, err := t.cfKV.Iterator(nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: all_keys: %v", merkleerr.ErrIOFailure, err)
	}
	defer it.Close()

	var keys [][]byte
	for ; it.Valid(); it.Next() {
		k := make([]byte, len(it.Key()))
		copy(k, it.Key())
		keys = append(keys, k)
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("%w: all_keys: %v", merkleerr.ErrIOFailure, err)
	}
	return keys, nil
}

// AllValues returns every user value in the keyData column family, in
// the same order AllKeys returns keys.
func (t *Tree) AllValues() ([][]byte, error) {
	if err := t.checkOpen(); err != nil {
		return nil, err
	}
	it, err := t.cfKV.Iterator(nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: all_values: %v", merkleerr.ErrIOFailure, err)
	}
	defer it.Close()

	var values [][]byte
	for ; it.Valid(); it.Next() {
		v := make([]byte, len(it.Value()))
		copy(v, it.Value())
		values = append(values, v)
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("%w: all_values: %v", merkleerr.ErrIOFailure, err)
	}
	return values, nil
}

// KeysAndValues returns parallel key/value slices for the entire
// keyData column family.
func (t *Tree) KeysAndValues() ([][]byte, [][]byte, error) {
	if err := t.checkOpen(); err != nil {
		return nil, nil, err
	}
	it, err := t.cfKV.Iterator(nil, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: keys_and_values: %v", merkleerr.ErrIOFailure, err)
	}
	defer it.Close()

	var keys, values [][]byte
	for ; it.Valid(); it.Next() {
		k := make([]byte, len(it.Key()))
		copy(k, it.Key())
		v := make([]byte, len(it.Value()))
		copy(v, it.Value())
		keys = append(keys, k)
		values = append(values, v)
	}
	if err := it.Error(); err != nil {
		return nil, nil, fmt.Errorf("%w: keys_and_values: %v", merkleerr.ErrIOFailure, err)
	}
	return keys, values, nil
}

// AllNodes scans the nodes column family and decodes every entry.
// spec.md §6.3 requires a prior flush — a non-empty dirty cache means
// some nodes exist only in RAM and would be silently missing from this
// scan, so AllNodes refuses to run while one is outstanding.
func (t *Tree) AllNodes() ([]*node, error) {
	if err := t.checkOpen(); err != nil {
		return nil, err
	}
	if t.dirty.len() != 0 {
		return nil, fmt.Errorf("%w: all_nodes requires a prior flush; %d dirty node(s) outstanding",
			merkleerr.ErrInvalidArgument, t.dirty.len())
	}

	it, err := t.cfNode.Iterator(nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: all_nodes: %v", merkleerr.ErrIOFailure, err)
	}
	defer it.Close()

	var nodes []*node
	for ; it.Valid(); it.Next() {
		n, err := decodeNode(it.Value())
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("%w: all_nodes: %v", merkleerr.ErrIOFailure, err)
	}
	return nodes, nil
}
