package hashing_test

import (
	"crypto/sha256"
	"testing"

	"github.com/kocubinski/merkletree/hashing"
	"github.com/stretchr/testify/require"
)

func Test_H256MatchesStdlib(t *testing.T) {
	want := sha256.Sum256([]byte("hello"))
	require.Equal(t, want, hashing.H256([]byte("hello")))
}

func Test_H256PairEqualsConcatenation(t *testing.T) {
	a, b := []byte("left"), []byte("right")
	want := sha256.Sum256(append(append([]byte{}, a...), b...))
	require.Equal(t, want, hashing.H256Pair(a, b))
}

func Test_H224Width(t *testing.T) {
	h := hashing.H224([]byte("value"))
	require.Len(t, h, hashing.Size224)
}
