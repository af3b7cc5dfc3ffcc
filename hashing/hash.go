// Package hashing provides the two digest widths the tree needs:
// a 256-bit digest for node and leaf hashes, and a 224-bit digest used
// only by the corruption-guarded adjunct store (see package guardedkv).
package hashing

import "crypto/sha256"

// Size256 is the width, in bytes, of H256.
const Size256 = sha256.Size // 32

// Size224 is the width, in bytes, of H224.
const Size224 = sha256.Size224 // 28

// H256 hashes a single buffer to 32 bytes.
func H256(b []byte) [Size256]byte {
	return sha256.Sum256(b)
}

// H256Pair hashes the concatenation a || b to 32 bytes, without
// allocating the concatenated buffer.
func H256Pair(a, b []byte) [Size256]byte {
	h := sha256.New()
	h.Write(a)
	h.Write(b)
	var out [Size256]byte
	copy(out[:], h.Sum(nil))
	return out
}

// H224 hashes a single buffer to 28 bytes. Used only by guardedkv's
// corruption-detecting value framing.
func H224(b []byte) [Size224]byte {
	return sha256.Sum224(b)
}
