package synccontrol

import (
	"context"
	"crypto/sha256"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/calmh/syncit/block"
	"github.com/calmh/syncit/indexstore"
	"github.com/calmh/syncit/internal/clock"
	"github.com/calmh/syncit/rumor"
	"github.com/calmh/syncit/transfer"
	"github.com/calmh/syncit/watchctrl"
	"github.com/stretchr/testify/require"
)

type harness struct {
	t       *testing.T
	dir     string
	store   *indexstore.DB
	client  *transfer.FakeClient
	sink    *rumor.ChanSink
	ctrl    *Controller
	ctx     context.Context
	clock   clock.Fixed
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()

	store, err := indexstore.Open(filepath.Join(t.TempDir(), "idx"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	client := transfer.NewFakeClient()
	sink := rumor.NewChanSink(16)
	fixed := clock.Fixed(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))

	ctrl, err := New(Config{
		Dir:      dir,
		DirID:    "dir1",
		PeerID:   "peerA",
		Store:    store,
		Watch:    watchctrl.Noop{},
		Sink:     sink,
		Download: client,
		Clock:    fixed,
	})
	require.NoError(t, err)

	return &harness{
		t: t, dir: dir, store: store, client: client, sink: sink, ctrl: ctrl,
		ctx: context.Background(), clock: fixed,
	}
}

func (h *harness) writeFile(name, content string) {
	h.t.Helper()
	require.NoError(h.t, os.WriteFile(filepath.Join(h.dir, name), []byte(content), 0o644))
}

func (h *harness) readFile(name string) (string, bool) {
	h.t.Helper()
	data, err := os.ReadFile(filepath.Join(h.dir, name))
	if os.IsNotExist(err) {
		return "", false
	}
	require.NoError(h.t, err)
	return string(data), true
}

func (h *harness) getIndex(name string) (block.IndexFile, bool) {
	h.t.Helper()
	g, err := h.store.Begin()
	require.NoError(h.t, err)
	defer g.Discard()

	f, err := g.Get(name)
	if err == indexstore.ErrNotFound {
		return block.IndexFile{}, false
	}
	require.NoError(h.t, err)
	return f, true
}

func (h *harness) putIndex(f block.IndexFile) {
	h.t.Helper()
	g, err := h.store.Begin()
	require.NoError(h.t, err)
	require.NoError(h.t, g.Create(f))
	require.NoError(h.t, g.Commit())
}

func (h *harness) drainRumors() []block.SendRumors {
	var out []block.SendRumors
	for {
		select {
		case r := <-h.sink.C():
			out = append(out, r)
		default:
			return out
		}
	}
}

func sha(s string) block.Sha256 {
	return block.Sha256(sha256.Sum256([]byte(s)))
}

func chainOf(data string) block.BlockChain {
	if len(data) == 0 {
		return block.BlockChain{BlockSize: block.BlockSize, Blocks: []block.Block{{Offset: 0, Len: 0, Hash: block.EmptyHash}}}
	}
	return block.BlockChain{BlockSize: block.BlockSize, Blocks: []block.Block{{Offset: 0, Len: uint64(len(data)), Hash: sha(data)}}}
}
