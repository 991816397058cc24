package synccontrol

import (
	"os"
	"testing"
	"time"

	"github.com/calmh/syncit/block"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestScenarioLocalNotExistCreate covers a brand-new file arriving as a
// rumor with no prior local entry.
func TestScenarioLocalNotExistCreate(t *testing.T) {
	h := newHarness(t)
	h.client.Data["test.txt"] = []byte("test")

	rumor := block.IndexFile{
		Filename: "test.txt",
		Kind:     block.KindFile,
		Detail: block.FileDetail{
			Gen:  1,
			Hash: sha("test"),
			BlockChain: &block.BlockChain{
				BlockSize: block.BlockSize,
				Blocks:    []block.Block{{Offset: 0, Len: 4, Hash: sha("test")}},
			},
		},
		UpdateTime: h.clock.Now(),
		UpdateBy:   "peerB",
	}

	err := h.ctrl.HandleRumors(h.ctx, "peerB", []block.IndexFile{rumor})
	require.NoError(t, err)

	content, ok := h.readFile("test.txt")
	require.True(t, ok)
	assert.Equal(t, "test", content)

	idx, ok := h.getIndex("test.txt")
	require.True(t, ok)
	assert.EqualValues(t, 1, idx.Detail.Gen)
	assert.Equal(t, sha("test"), idx.Detail.Hash)

	batches := h.drainRumors()
	require.Len(t, batches, 1)
	require.NotNil(t, batches[0].Except)
	assert.Equal(t, "peerB", *batches[0].Except)
	require.Len(t, batches[0].Rumors, 1)
	assert.Equal(t, "test.txt", batches[0].Rumors[0].Filename)
}

// TestScenarioLocalIsLatest covers a rumor whose generation is behind
// the local entry, which must be ignored entirely.
func TestScenarioLocalIsLatest(t *testing.T) {
	h := newHarness(t)
	h.writeFile("test.txt", "local-content")
	h.putIndex(block.NewFile("test.txt", block.KindFile, sha("local-content"), chainOf("local-content"), h.clock.Now(), "peerA").BumpContent(sha("local-content"), chainOf("local-content"), h.clock.Now(), "peerA"))

	rumor := block.IndexFile{
		Filename:   "test.txt",
		Kind:       block.KindFile,
		Detail:     block.FileDetail{Gen: 1, Hash: sha("remote"), BlockChain: ptrChain(chainOf("remote"))},
		UpdateTime: h.clock.Now(),
		UpdateBy:   "peerB",
	}

	err := h.ctrl.HandleRumors(h.ctx, "peerB", []block.IndexFile{rumor})
	require.NoError(t, err)

	content, _ := h.readFile("test.txt")
	assert.Equal(t, "local-content", content, "no file I/O should occur when local is newer")
	assert.Empty(t, h.drainRumors(), "no outbound rumor when local is newer")
}

// TestScenarioFastForwardDelta covers a remote rumor whose history
// includes the current local detail, taking the delta-download path.
func TestScenarioFastForwardDelta(t *testing.T) {
	h := newHarness(t)
	h.writeFile("test.txt", "old")

	local := block.NewFile("test.txt", block.KindFile, sha("old"), chainOf("old"), h.clock.Now(), "peerA")
	h.putIndex(local)

	h.client.Data["test.txt"] = []byte("new")

	remote := block.IndexFile{
		Filename: "test.txt",
		Kind:     block.KindFile,
		Detail: block.FileDetail{
			Gen:        2,
			Hash:       sha("new"),
			BlockChain: ptrChain(chainOf("new")),
		},
		PreviousDetails: []block.FileDetail{
			{Gen: 1, Hash: sha("old")},
		},
		UpdateTime: h.clock.Now(),
		UpdateBy:   "peerB",
	}

	err := h.ctrl.HandleRumors(h.ctx, "peerB", []block.IndexFile{remote})
	require.NoError(t, err)

	content, ok := h.readFile("test.txt")
	require.True(t, ok)
	assert.Equal(t, "new", content)

	batches := h.drainRumors()
	require.Len(t, batches, 1)
}

// TestScenarioEqualGenConflict covers two peers independently editing
// the same generation, resolved by timestamp with the loser preserved
// as a conflict file.
func TestScenarioEqualGenConflict(t *testing.T) {
	h := newHarness(t)
	h.writeFile("test.txt", "local-version")

	localTime := h.clock.Now()
	local := block.NewFile("test.txt", block.KindFile, sha("local-version"), chainOf("local-version"), localTime, "peerA")
	h.putIndex(local)

	h.client.Data["test.txt"] = []byte("remote-version")
	remoteTime := localTime.Add(1 * time.Second)

	remote := block.IndexFile{
		Filename:   "test.txt",
		Kind:       block.KindFile,
		Detail:     block.FileDetail{Gen: 1, Hash: sha("remote-version"), BlockChain: ptrChain(chainOf("remote-version"))},
		UpdateTime: remoteTime,
		UpdateBy:   "peerB",
	}

	err := h.ctrl.HandleRumors(h.ctx, "peerB", []block.IndexFile{remote})
	require.NoError(t, err)

	content, ok := h.readFile("test.txt")
	require.True(t, ok)
	assert.Equal(t, "remote-version", content)

	entries, err := os.ReadDir(h.dir)
	require.NoError(t, err)
	var conflictFound bool
	for _, e := range entries {
		if e.Name() != "test.txt" {
			conflictFound = true
			data, _ := h.readFile(e.Name())
			assert.Equal(t, "local-version", data)
		}
	}
	assert.True(t, conflictFound, "expected a .conflict file preserving local content")

	assert.Len(t, h.drainRumors(), 1)
}

// TestScenarioMissingBlockCancels covers a download source reporting it
// no longer has a requested block, which must cancel cleanly with no
// partial file or index entry left behind.
func TestScenarioMissingBlockCancels(t *testing.T) {
	h := newHarness(t)
	h.client.Missing["test.txt"] = true

	remote := block.IndexFile{
		Filename:   "test.txt",
		Kind:       block.KindFile,
		Detail:     block.FileDetail{Gen: 1, Hash: sha("test"), BlockChain: ptrChain(chainOf("test"))},
		UpdateTime: h.clock.Now(),
		UpdateBy:   "peerB",
	}

	err := h.ctrl.HandleRumors(h.ctx, "peerB", []block.IndexFile{remote})
	require.NoError(t, err)

	_, ok := h.readFile("test.txt")
	assert.False(t, ok, "no file should exist at the target path")

	_, ok = h.getIndex("test.txt")
	assert.False(t, ok, "no index entry should be created")

	assert.Empty(t, h.drainRumors())
}

// TestScenarioSyncAllEmptyDirDeletedPending covers a full rescan finding
// an indexed file now absent from disk, bumping it to deleted.
func TestScenarioSyncAllEmptyDirDeletedPending(t *testing.T) {
	h := newHarness(t)
	h.putIndex(block.NewFile("test.txt", block.KindFile, sha("x"), chainOf("x"), h.clock.Now(), "peerA"))

	err := h.ctrl.HandleSyncAll(h.ctx)
	require.NoError(t, err)

	idx, ok := h.getIndex("test.txt")
	require.True(t, ok)
	assert.True(t, idx.Detail.Deleted)
	assert.EqualValues(t, 2, idx.Detail.Gen)
	require.Len(t, idx.PreviousDetails, 1)
	assert.EqualValues(t, 1, idx.PreviousDetails[0].Gen)
	assert.Nil(t, idx.PreviousDetails[0].BlockChain)

	batches := h.drainRumors()
	require.Len(t, batches, 1)
	assert.Nil(t, batches[0].Except)
	require.Len(t, batches[0].Rumors, 1)
}

func ptrChain(c block.BlockChain) *block.BlockChain { return &c }
