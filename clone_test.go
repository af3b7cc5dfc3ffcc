package merkletree

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_UpdateCase1SrcEmptyClearsSelf(t *testing.T) {
	prefix := t.TempDir()
	dst := openTestTreeAt(t, prefix, "dst")
	src := openTestTreeAt(t, prefix, "src")

	require.NoError(t, dst.Put([]byte("k"), []byte("v")))
	require.NoError(t, dst.Flush())

	require.NoError(t, dst.Update(src))

	root, err := dst.RootHash()
	require.NoError(t, err)
	require.Nil(t, root)
	require.Equal(t, uint32(0), dst.NumLeaves())
}

func Test_UpdateCase1BothEmptyIsNoop(t *testing.T) {
	prefix := t.TempDir()
	dst := openTestTreeAt(t, prefix, "dst")
	src := openTestTreeAt(t, prefix, "src")

	require.NoError(t, dst.Update(src))

	root, err := dst.RootHash()
	require.NoError(t, err)
	require.Nil(t, root)
}

func Test_UpdateCase3ReplacesDivergedDisk(t *testing.T) {
	prefix := t.TempDir()
	src := openTestTreeAt(t, prefix, "src")
	dst := openTestTreeAt(t, prefix, "dst")

	require.NoError(t, src.Put([]byte("k1"), []byte("v1")))
	require.NoError(t, src.Flush())

	require.NoError(t, dst.Put([]byte("k2"), []byte("v2")))
	require.NoError(t, dst.Flush())

	before := testCounterValue(t, treesUpdatedWithoutCloneTotal)
	require.NoError(t, dst.Update(src))
	after := testCounterValue(t, treesUpdatedWithoutCloneTotal)
	require.Equal(t, before, after, "divergent disk state must take the checkpoint-replace path, not the fast path")

	srcRoot, err := src.RootHash()
	require.NoError(t, err)
	dstRoot, err := dst.RootHash()
	require.NoError(t, err)
	require.Equal(t, *srcRoot, *dstRoot)

	v, err := dst.Get([]byte("k1"))
	require.NoError(t, err)
	require.Equal(t, []byte("v1"), v)

	v2, err := dst.Get([]byte("k2"))
	require.NoError(t, err)
	require.Nil(t, v2)
}
