package merkletree

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/kocubinski/merkletree/kvengine"
	"github.com/kocubinski/merkletree/merkleerr"
)

// Column family names (spec.md §6.1). cfDefault is declared but never
// written to by the core — it exists only so a fourth, unused column
// family is present on disk, matching the teacher's layout convention
// of reserving a default CF alongside purpose-built ones.
const (
	cfDefault  = "default"
	cfMetadata = "metaData"
	cfNodes    = "nodes"
	cfKeyData  = "keyData"
)

const (
	metaKeyRootHash   = "rootHash"
	metaKeyNumLeaves  = "numLeaves"
	metaKeyDepth      = "depth"
	metaHangingPrefix = "hangingNode"
)

func metaHangingKey(level uint32) string {
	return metaHangingPrefix + strconv.FormatUint(uint64(level), 10)
}

func isHangingKey(key string) (uint32, bool) {
	if !strings.HasPrefix(key, metaHangingPrefix) {
		return 0, false
	}
	n, err := strconv.ParseUint(key[len(metaHangingPrefix):], 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}

// metadata is the persisted anchor for the tree (spec.md §3's
// "Metadata record").
type metadata struct {
	rootHash     *Hash
	numLeaves    uint32
	depth        uint32
	hangingNodes map[uint32]Hash
}

func emptyMetadata() *metadata {
	return &metadata{hangingNodes: make(map[uint32]Hash)}
}

// loadMetadata reads the full metadata record from the metadata CF.
// A tree that has never been flushed yields emptyMetadata().
func loadMetadata(cf kvengine.ColumnFamily) (*metadata, error) {
	m := emptyMetadata()

	if v, err := cf.Get([]byte(metaKeyRootHash)); err != nil {
		return nil, fmt.Errorf("%w: reading rootHash: %v", merkleerr.ErrIOFailure, err)
	} else if v != nil {
		if len(v) != hashLen {
			return nil, fmt.Errorf("%w: rootHash length %d", merkleerr.ErrCorruptState, len(v))
		}
		var h Hash
		copy(h[:], v)
		m.rootHash = &h
	}

	if v, err := cf.Get([]byte(metaKeyNumLeaves)); err != nil {
		return nil, fmt.Errorf("%w: reading numLeaves: %v", merkleerr.ErrIOFailure, err)
	} else if v != nil {
		if len(v) != 4 {
			return nil, fmt.Errorf("%w: numLeaves length %d", merkleerr.ErrCorruptState, len(v))
		}
		m.numLeaves = binary.BigEndian.Uint32(v)
	}

	if v, err := cf.Get([]byte(metaKeyDepth)); err != nil {
		return nil, fmt.Errorf("%w: reading depth: %v", merkleerr.ErrIOFailure, err)
	} else if v != nil {
		if len(v) != 4 {
			return nil, fmt.Errorf("%w: depth length %d", merkleerr.ErrCorruptState, len(v))
		}
		m.depth = binary.BigEndian.Uint32(v)
	}

	it, err := cf.Iterator(nil, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: scanning metadata: %v", merkleerr.ErrIOFailure, err)
	}
	defer it.Close()
	for ; it.Valid(); it.Next() {
		level, ok := isHangingKey(string(it.Key()))
		if !ok {
			continue
		}
		v := it.Value()
		if len(v) != hashLen {
			return nil, fmt.Errorf("%w: hangingNode%d length %d", merkleerr.ErrCorruptState, level, len(v))
		}
		var h Hash
		copy(h[:], v)
		m.hangingNodes[level] = h
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("%w: %v", merkleerr.ErrIOFailure, err)
	}
	return m, nil
}

// writeMetadataBatch appends the full-rewrite metadata sequence
// (spec.md §4.4 step 1-2: delete everything, then write the new
// record) to an in-flight batch.
func writeMetadataBatch(b kvengine.Batch, m *metadata) {
	b.DeleteRange(cfMetadata, nil, nil)

	if m.rootHash != nil {
		b.Set(cfMetadata, []byte(metaKeyRootHash), m.rootHash[:])
	}

	numLeaves := make([]byte, 4)
	binary.BigEndian.PutUint32(numLeaves, m.numLeaves)
	b.Set(cfMetadata, []byte(metaKeyNumLeaves), numLeaves)

	depth := make([]byte, 4)
	binary.BigEndian.PutUint32(depth, m.depth)
	b.Set(cfMetadata, []byte(metaKeyDepth), depth)

	for level, h := range m.hangingNodes {
		hc := h
		b.Set(cfMetadata, []byte(metaHangingKey(level)), hc[:])
	}
}
