package merkletree

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_RoundTripNodeCodec(t *testing.T) {
	left := Hash{1}
	right := Hash{2}
	parent := Hash{3}

	cases := []*node{
		{hash: Hash{9}},
		{hash: Hash{9}, left: &left},
		{hash: Hash{9}, left: &left, right: &right},
		{hash: Hash{9}, left: &left, right: &right, parent: &parent},
	}
	for _, n := range cases {
		blob := encodeNode(n)
		got, err := decodeNode(blob)
		require.NoError(t, err)
		require.True(t, nodesEqual(n, got))
		require.Equal(t, blob, encodeNode(got))
	}
}

func Test_DecodeRejectsShortBlob(t *testing.T) {
	_, err := decodeNode(make([]byte, hashLen))
	require.Error(t, err)
}

func Test_DecodeRejectsLengthMismatch(t *testing.T) {
	n := &node{hash: Hash{1}}
	blob := encodeNode(n)
	blob[hashLen] = 1 // claims hasLeft without appending the bytes
	_, err := decodeNode(blob)
	require.Error(t, err)
}

func Test_OddArityHashDuplicatesSingleChild(t *testing.T) {
	left := Hash{1}
	dup := oddArityHash(&left, nil)
	same := oddArityHash(&left, &left)
	require.Equal(t, same, dup)
}

func Test_OddArityHashPanicsOnNoChildren(t *testing.T) {
	require.Panics(t, func() { oddArityHash(nil, nil) })
}
