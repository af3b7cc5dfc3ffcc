package merkletree

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_ScanMethodsAfterFlush(t *testing.T) {
	tr := openTestTree(t, "t1")
	require.NoError(t, tr.Put([]byte("k1"), []byte("v1")))
	require.NoError(t, tr.Put([]byte("k2"), []byte("v2")))
	require.NoError(t, tr.Flush())

	keys, err := tr.AllKeys()
	require.NoError(t, err)
	require.ElementsMatch(t, [][]byte{[]byte("k1"), []byte("k2")}, keys)

	values, err := tr.AllValues()
	require.NoError(t, err)
	require.ElementsMatch(t, [][]byte{[]byte("v1"), []byte("v2")}, values)

	kk, vv, err := tr.KeysAndValues()
	require.NoError(t, err)
	require.Len(t, kk, 2)
	require.Len(t, vv, 2)

	nodes, err := tr.AllNodes()
	require.NoError(t, err)
	// two leaves plus one parent.
	require.Len(t, nodes, 3)
}

func Test_AllNodesRefusesWithUnflushedDirtyNodes(t *testing.T) {
	tr := openTestTree(t, "t1")
	require.NoError(t, tr.Put([]byte("k1"), []byte("v1")))
	_, err := tr.RootHash() // drains pending into the dirty cache, but no flush yet
	require.NoError(t, err)

	_, err = tr.AllNodes()
	require.Error(t, err)
}
