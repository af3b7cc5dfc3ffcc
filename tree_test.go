package merkletree

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kocubinski/merkletree/hashing"
)

func openTestTree(t *testing.T, name string) *Tree {
	t.Helper()
	dir := t.TempDir()
	tr, err := Open(name, Config{Prefix: dir})
	require.NoError(t, err)
	t.Cleanup(func() {
		if !tr.IsClosed() {
			_ = tr.Close()
		}
	})
	return tr
}

func openTestTreeAt(t *testing.T, prefix, name string) *Tree {
	t.Helper()
	tr, err := Open(name, Config{Prefix: prefix})
	require.NoError(t, err)
	t.Cleanup(func() {
		if !tr.IsClosed() {
			_ = tr.Close()
		}
	})
	return tr
}

func Test_EmptyTree(t *testing.T) {
	tr := openTestTree(t, "t1")
	root, err := tr.RootHash()
	require.NoError(t, err)
	require.Nil(t, root)
	require.Equal(t, uint32(0), tr.NumLeaves())
	require.Equal(t, uint32(0), tr.Depth())
}

func Test_SingleLeaf(t *testing.T) {
	tr := openTestTree(t, "t1")
	require.NoError(t, tr.Put([]byte("key1"), []byte("value1")))

	root, err := tr.RootHash()
	require.NoError(t, err)
	require.NotNil(t, root)

	want := hashing.H256Pair([]byte("key1"), []byte("value1"))
	require.Equal(t, want, *root)
	require.Equal(t, uint32(1), tr.NumLeaves())
	require.Equal(t, uint32(0), tr.Depth())
}

func Test_TwoLeaves(t *testing.T) {
	tr := openTestTree(t, "t1")
	require.NoError(t, tr.Put([]byte("k1"), []byte("v1")))
	require.NoError(t, tr.Put([]byte("k2"), []byte("v2")))

	root, err := tr.RootHash()
	require.NoError(t, err)

	l1 := hashing.H256Pair([]byte("k1"), []byte("v1"))
	l2 := hashing.H256Pair([]byte("k2"), []byte("v2"))
	want := hashing.H256Pair(l1[:], l2[:])

	require.Equal(t, want, *root)
	require.Equal(t, uint32(2), tr.NumLeaves())
	require.Equal(t, uint32(1), tr.Depth())
}

func Test_ThreeLeavesOddArity(t *testing.T) {
	tr := openTestTree(t, "t1")
	require.NoError(t, tr.Put([]byte("k1"), []byte("v1")))
	require.NoError(t, tr.Put([]byte("k2"), []byte("v2")))
	require.NoError(t, tr.Put([]byte("k3"), []byte("v3")))

	root, err := tr.RootHash()
	require.NoError(t, err)

	l1 := hashing.H256Pair([]byte("k1"), []byte("v1"))
	l2 := hashing.H256Pair([]byte("k2"), []byte("v2"))
	l3 := hashing.H256Pair([]byte("k3"), []byte("v3"))

	p12 := hashing.H256Pair(l1[:], l2[:])
	p3 := hashing.H256Pair(l3[:], l3[:])
	want := hashing.H256Pair(p12[:], p3[:])

	require.Equal(t, want, *root)
	require.Equal(t, uint32(3), tr.NumLeaves())
	require.Equal(t, uint32(2), tr.Depth())
}

func Test_UpdateExistingLeaf(t *testing.T) {
	tr := openTestTree(t, "t1")
	require.NoError(t, tr.Put([]byte("k1"), []byte("v1")))
	require.NoError(t, tr.Put([]byte("k2"), []byte("v2")))
	before, err := tr.RootHash()
	require.NoError(t, err)

	require.NoError(t, tr.Put([]byte("k1"), []byte("v1*")))
	after, err := tr.RootHash()
	require.NoError(t, err)

	require.NotEqual(t, *before, *after)
	require.Equal(t, uint32(2), tr.NumLeaves())

	l1 := hashing.H256Pair([]byte("k1"), []byte("v1*"))
	l2 := hashing.H256Pair([]byte("k2"), []byte("v2"))
	want := hashing.H256Pair(l1[:], l2[:])
	require.Equal(t, want, *after)
}

func Test_SameValuePutIsNoop(t *testing.T) {
	tr := openTestTree(t, "t1")
	require.NoError(t, tr.Put([]byte("k1"), []byte("v1")))
	first, err := tr.RootHash()
	require.NoError(t, err)

	require.NoError(t, tr.Put([]byte("k1"), []byte("v1")))
	second, err := tr.RootHash()
	require.NoError(t, err)

	require.Equal(t, *first, *second)
}

func Test_RevertDiscardsUnflushedPut(t *testing.T) {
	tr := openTestTree(t, "t1")
	require.NoError(t, tr.Put([]byte("k1"), []byte("v1")))
	require.NoError(t, tr.Flush())
	onDisk, err := tr.RootHashOnDisk()
	require.NoError(t, err)

	require.NoError(t, tr.Put([]byte("k2"), []byte("v2")))
	require.NoError(t, tr.Revert())

	v, err := tr.Get([]byte("k2"))
	require.NoError(t, err)
	require.Nil(t, v)

	root, err := tr.RootHash()
	require.NoError(t, err)
	require.Equal(t, *onDisk, *root)
}

func Test_FlushIsIdempotent(t *testing.T) {
	tr := openTestTree(t, "t1")
	require.NoError(t, tr.Put([]byte("k1"), []byte("v1")))
	require.NoError(t, tr.Flush())
	root1, err := tr.RootHash()
	require.NoError(t, err)

	require.NoError(t, tr.Flush())
	root2, err := tr.RootHash()
	require.NoError(t, err)

	require.Equal(t, *root1, *root2)
}

func Test_CloneDivergesFromSource(t *testing.T) {
	prefix := t.TempDir()
	t1 := openTestTreeAt(t, prefix, "t1")

	require.NoError(t, t1.Put([]byte("k1"), []byte("v1")))
	require.NoError(t, t1.Put([]byte("k2"), []byte("v2")))
	require.NoError(t, t1.Flush())

	t2, err := t1.Clone("t2")
	require.NoError(t, err)
	t.Cleanup(func() {
		if !t2.IsClosed() {
			_ = t2.Close()
		}
	})

	require.NoError(t, t1.Put([]byte("k3"), []byte("v3")))
	require.NoError(t, t1.Flush())

	r1, err := t1.RootHash()
	require.NoError(t, err)
	r2, err := t2.RootHash()
	require.NoError(t, err)
	require.NotEqual(t, *r1, *r2)

	v, err := t2.Get([]byte("k3"))
	require.NoError(t, err)
	require.Nil(t, v)
}

func Test_UpdateCacheCopyFastPath(t *testing.T) {
	prefix := t.TempDir()
	t1 := openTestTreeAt(t, prefix, "t1")

	require.NoError(t, t1.Put([]byte("k1"), []byte("v1")))
	require.NoError(t, t1.Put([]byte("k2"), []byte("v2")))
	require.NoError(t, t1.Flush())

	t2, err := t1.Clone("t2")
	require.NoError(t, err)
	t.Cleanup(func() {
		if !t2.IsClosed() {
			_ = t2.Close()
		}
	})

	require.NoError(t, t1.Put([]byte("k3"), []byte("v3")))
	require.NoError(t, t2.Put([]byte("k3"), []byte("v3")))
	// deliberately flushing neither tree: both on-disk roots still equal
	// the clone point, which is what selects the cache-copy fast path.

	before := testCounterValue(t, treesUpdatedWithoutCloneTotal)
	require.NoError(t, t2.Update(t1))
	after := testCounterValue(t, treesUpdatedWithoutCloneTotal)
	require.Equal(t, before+1, after)

	r1, err := t1.RootHash()
	require.NoError(t, err)
	r2, err := t2.RootHash()
	require.NoError(t, err)
	require.Equal(t, *r1, *r2)
}

func Test_DoubleOpenFails(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Base(t.Name())
	tr := openTestTreeAt(t, dir, name)

	_, err := Open(name, Config{Prefix: dir})
	require.Error(t, err)
	_ = tr
}
