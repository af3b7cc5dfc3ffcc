package kvengine_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kocubinski/merkletree/kvengine"
)

func Test_ColumnFamiliesAreNamespaced(t *testing.T) {
	e, err := kvengine.Open(t.TempDir(), []string{"a", "b"})
	require.NoError(t, err)
	defer e.Close()

	batch := e.NewBatch()
	batch.Set("a", []byte("k"), []byte("a-value"))
	batch.Set("b", []byte("k"), []byte("b-value"))
	require.NoError(t, batch.Commit())

	va, err := e.CF("a").Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("a-value"), va)

	vb, err := e.CF("b").Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("b-value"), vb)
}

func Test_IteratorScansOnlyItsColumnFamily(t *testing.T) {
	e, err := kvengine.Open(t.TempDir(), []string{"a", "b"})
	require.NoError(t, err)
	defer e.Close()

	batch := e.NewBatch()
	batch.Set("a", []byte("k1"), []byte("v1"))
	batch.Set("a", []byte("k2"), []byte("v2"))
	batch.Set("b", []byte("k3"), []byte("v3"))
	require.NoError(t, batch.Commit())

	it, err := e.CF("a").Iterator(nil, nil)
	require.NoError(t, err)
	defer it.Close()

	var keys []string
	for ; it.Valid(); it.Next() {
		keys = append(keys, string(it.Key()))
	}
	require.NoError(t, it.Error())
	require.Equal(t, []string{"k1", "k2"}, keys)
}

func Test_DeleteRangeClearsColumnFamily(t *testing.T) {
	e, err := kvengine.Open(t.TempDir(), []string{"a"})
	require.NoError(t, err)
	defer e.Close()

	b := e.NewBatch()
	b.Set("a", []byte("k1"), []byte("v1"))
	b.Set("a", []byte("k2"), []byte("v2"))
	require.NoError(t, b.Commit())

	b2 := e.NewBatch()
	b2.DeleteRange("a", nil, nil)
	require.NoError(t, b2.Commit())

	has, err := e.CF("a").Has([]byte("k1"))
	require.NoError(t, err)
	require.False(t, has)
}

func Test_CheckpointOpensAsIndependentEngine(t *testing.T) {
	src := t.TempDir()
	e, err := kvengine.Open(src, []string{"a"})
	require.NoError(t, err)
	defer e.Close()

	b := e.NewBatch()
	b.Set("a", []byte("k"), []byte("v"))
	require.NoError(t, b.Commit())

	dest := src + "-checkpoint"
	require.NoError(t, e.Checkpoint(dest))

	clone, err := kvengine.Open(dest, []string{"a"})
	require.NoError(t, err)
	defer clone.Close()

	v, err := clone.CF("a").Get([]byte("k"))
	require.NoError(t, err)
	require.Equal(t, []byte("v"), v)
}
