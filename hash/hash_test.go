package hash

import (
	"bytes"
	"crypto/sha256"
	"strings"
	"testing"

	"github.com/calmh/syncit/block"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashEmptyFile(t *testing.T) {
	whole, chain, err := Hash(strings.NewReader(""))
	require.NoError(t, err)

	assert.Equal(t, block.Sha256(sha256.Sum256(nil)), whole)
	require.Len(t, chain.Blocks, 1)
	assert.EqualValues(t, 0, chain.Blocks[0].Len)
	assert.Equal(t, block.EmptyHash, chain.Blocks[0].Hash)
}

func TestHashSmallFile(t *testing.T) {
	whole, chain, err := Hash(strings.NewReader("test"))
	require.NoError(t, err)

	assert.Equal(t, block.Sha256(sha256.Sum256([]byte("test"))), whole)
	require.Len(t, chain.Blocks, 1)
	assert.EqualValues(t, 4, chain.Blocks[0].Len)
	assert.Equal(t, block.Sha256(sha256.Sum256([]byte("test"))), chain.Blocks[0].Hash)
}

func TestHashMultipleBlocksIndependent(t *testing.T) {
	block1 := bytes.Repeat([]byte{0xAA}, block.BlockSize)
	block2 := []byte("tail")
	data := append(append([]byte{}, block1...), block2...)

	whole, chain, err := Hash(bytes.NewReader(data))
	require.NoError(t, err)

	require.Len(t, chain.Blocks, 2)
	assert.Equal(t, block.Sha256(sha256.Sum256(block1)), chain.Blocks[0].Hash)
	assert.Equal(t, block.Sha256(sha256.Sum256(block2)), chain.Blocks[1].Hash)
	assert.NotEqual(t, chain.Blocks[0].Hash, chain.Blocks[1].Hash,
		"per-block hashes must be independent, not cumulative")
	assert.Equal(t, block.Sha256(sha256.Sum256(data)), whole)

	assert.EqualValues(t, 0, chain.Blocks[0].Offset)
	assert.EqualValues(t, block.BlockSize, chain.Blocks[1].Offset)
}

func TestHashIsDeterministic(t *testing.T) {
	data := []byte("repeat-hash-me")
	w1, c1, err := Hash(bytes.NewReader(data))
	require.NoError(t, err)
	w2, c2, err := Hash(bytes.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, w1, w2)
	assert.Equal(t, c1, c2)
}
