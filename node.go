package merkletree

import (
	"fmt"

	"github.com/kocubinski/merkletree/hashing"
	"github.com/kocubinski/merkletree/merkleerr"
)

// Hash is a 32-byte node digest, used both as node identity and as the
// map key into the node store.
type Hash = [hashing.Size256]byte

// hashLen is the on-disk width of every hash field in the node codec.
const hashLen = hashing.Size256

// node is one vertex of the tree. Parent/child links are hashes, not
// pointers — this is what makes the snapshot-based clone work
// (spec.md §9's "parent/child links live as 32-byte hashes, never as
// object references").
type node struct {
	hash  Hash
	left  *Hash
	right *Hash

	parent *Hash

	// pendingOldHash, once set, is the hash this node used to carry on
	// disk; it is scheduled for deletion in the same batch that writes
	// the node under its current hash.
	pendingOldHash *Hash
}

func (n *node) isLeaf() bool {
	return n.left == nil && n.right == nil
}

// oddArityHash computes H256(L', R') where an absent child is
// duplicated for the other side (spec.md §3's odd-arity rule).
func oddArityHash(left, right *Hash) Hash {
	switch {
	case left != nil && right != nil:
		return hashing.H256Pair(left[:], right[:])
	case left != nil:
		return hashing.H256Pair(left[:], left[:])
	case right != nil:
		return hashing.H256Pair(right[:], right[:])
	default:
		panic("oddArityHash: both children absent")
	}
}

// recomputeHash recomputes a non-leaf node's hash per the odd-arity
// rule. Leaves must never call this; their hash is supplied
// externally.
func (n *node) recomputeHash() Hash {
	return oddArityHash(n.left, n.right)
}

// addLeaf attaches child as this node's missing slot (left if absent,
// else right). It does not recompute this node's hash; the caller
// does that with recomputeHash. Fails with
// ErrCorruptState if both slots are already occupied — spec.md §9
// treats this as an internal invariant violation, not a reachable
// case for well-formed input.
func (n *node) addLeaf(child Hash) error {
	switch {
	case n.left == nil:
		h := child
		n.left = &h
	case n.right == nil:
		h := child
		n.right = &h
	default:
		return fmt.Errorf("%w: node already has two children", merkleerr.ErrCorruptState)
	}
	return nil
}

// updateLeafPointer rewrites whichever of left/right equals oldHash.
func (n *node) updateLeafPointer(oldHash, newHash Hash) {
	if n.left != nil && *n.left == oldHash {
		h := newHash
		n.left = &h
		return
	}
	if n.right != nil && *n.right == oldHash {
		h := newHash
		n.right = &h
		return
	}
}

// --- binary node codec (spec.md §4.1) ---
//
// hash:   32 B
// flags:  3 separate bytes, in order hasLeft, hasRight, hasParent
//         (not a packed bitfield — preserved for on-disk compatibility,
//         see SPEC_FULL.md §4.1 / DESIGN.md)
// left:   32 B if hasLeft
// right:  32 B if hasRight
// parent: 32 B if hasParent

func encodeNode(n *node) []byte {
	size := hashLen + 3
	if n.left != nil {
		size += hashLen
	}
	if n.right != nil {
		size += hashLen
	}
	if n.parent != nil {
		size += hashLen
	}
	buf := make([]byte, 0, size)
	buf = append(buf, n.hash[:]...)
	buf = append(buf, boolByte(n.left != nil), boolByte(n.right != nil), boolByte(n.parent != nil))
	if n.left != nil {
		buf = append(buf, n.left[:]...)
	}
	if n.right != nil {
		buf = append(buf, n.right[:]...)
	}
	if n.parent != nil {
		buf = append(buf, n.parent[:]...)
	}
	return buf
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func decodeNode(b []byte) (*node, error) {
	if len(b) < hashLen+3 {
		return nil, fmt.Errorf("%w: node blob too short (%d bytes)", merkleerr.ErrCorruptState, len(b))
	}
	n := &node{}
	copy(n.hash[:], b[:hashLen])
	hasLeft := b[hashLen] != 0
	hasRight := b[hashLen+1] != 0
	hasParent := b[hashLen+2] != 0

	want := hashLen + 3
	if hasLeft {
		want += hashLen
	}
	if hasRight {
		want += hashLen
	}
	if hasParent {
		want += hashLen
	}
	if len(b) != want {
		return nil, fmt.Errorf("%w: node blob length %d does not match flags (want %d)",
			merkleerr.ErrCorruptState, len(b), want)
	}

	off := hashLen + 3
	if hasLeft {
		var h Hash
		copy(h[:], b[off:off+hashLen])
		n.left = &h
		off += hashLen
	}
	if hasRight {
		var h Hash
		copy(h[:], b[off:off+hashLen])
		n.right = &h
		off += hashLen
	}
	if hasParent {
		var h Hash
		copy(h[:], b[off:off+hashLen])
		n.parent = &h
		off += hashLen
	}
	return n, nil
}

// nodesEqual is used by tests (round-trip law); not used on any hot
// path.
func nodesEqual(a, b *node) bool {
	if a.hash != b.hash {
		return false
	}
	if !hashPtrEqual(a.left, b.left) || !hashPtrEqual(a.right, b.right) || !hashPtrEqual(a.parent, b.parent) {
		return false
	}
	return true
}

func hashPtrEqual(a, b *Hash) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	if a == nil {
		return true
	}
	return *a == *b
}
