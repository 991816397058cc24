// Package synccontrol is the core of the engine: the Sync Controller
// event loop and the three handlers that reconcile local filesystem
// events, incoming rumors, and full rescans against the Index Store,
// driving block-level downloads to converge the local tree with remote
// peers.
package synccontrol

import (
	"context"
	"log/slog"

	"github.com/calmh/syncit/block"
	"github.com/calmh/syncit/indexstore"
	"github.com/calmh/syncit/internal/clock"
	"github.com/calmh/syncit/rumor"
	"github.com/calmh/syncit/syncevent"
	"github.com/calmh/syncit/transfer"
	"github.com/calmh/syncit/watchctrl"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
)

// cachedHash is the hash-skip optimization's LRU value: the file's
// (mtime, size) at the time it was last hashed, plus the result.
type cachedHash struct {
	modUnixNano int64
	size        int64
	hash        block.Sha256
	chain       block.BlockChain
}

// Config wires the Sync Controller to its capabilities.
type Config struct {
	Dir    string // the flat, non-recursive sync directory
	DirID  string
	PeerID string

	Store    *indexstore.DB
	Watch    watchctrl.Control
	Sink     rumor.Sink
	Download transfer.Client

	Clock clock.Clock
	Log   *slog.Logger

	// HashCacheSize bounds the sync-all rehash-skip cache (see
	// DESIGN.md). Zero selects a sane default.
	HashCacheSize int

	// BlockWriteParallelism bounds concurrent positional block writes
	// within one file sync. Zero selects a default of 4.
	BlockWriteParallelism int
}

// Controller is the top-level event loop.
type Controller struct {
	cfg       Config
	log       *slog.Logger
	hashCache *lru.Cache[string, cachedHash]
}

// New constructs a Controller from cfg, filling in defaults.
func New(cfg Config) (*Controller, error) {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real{}
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	if cfg.BlockWriteParallelism <= 0 {
		cfg.BlockWriteParallelism = 4
	}
	size := cfg.HashCacheSize
	if size <= 0 {
		size = 4096
	}
	cache, err := lru.New[string, cachedHash](size)
	if err != nil {
		return nil, errors.Wrap(err, "synccontrol: create hash cache")
	}
	return &Controller{cfg: cfg, log: cfg.Log, hashCache: cache}, nil
}

// Run drains events until the stream closes or ctx is canceled, pausing
// the watcher across every dispatch. A failure to pause the watch
// control is fatal and stops the loop; a failure to resume it and
// individual handler errors are logged and the loop continues.
func (c *Controller) Run(ctx context.Context, events <-chan syncevent.Event) error {
	for {
		var ev syncevent.Event
		var ok bool
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok = <-events:
			if !ok {
				return nil
			}
		}

		if err := c.cfg.Watch.Pause(ctx); err != nil {
			return errors.Wrap(err, "synccontrol: pause watch control")
		}

		if err := c.dispatch(ctx, ev); err != nil {
			c.log.Error("event handling failed", "kind", ev.Kind, "error", err)
		}

		if err := c.cfg.Watch.Resume(ctx); err != nil {
			// Best-effort: log but do not stop the loop.
			c.log.Error("resume watch control failed", "error", err)
		}
	}
}

func (c *Controller) dispatch(ctx context.Context, ev syncevent.Event) error {
	switch ev.Kind {
	case syncevent.KindWatch:
		return c.HandleWatchEvents(ctx, ev.WatchEvents)
	case syncevent.KindRumors:
		return c.HandleRumors(ctx, ev.SenderID, ev.RemoteIndex)
	case syncevent.KindSyncAll:
		return c.HandleSyncAll(ctx)
	default:
		return errors.Errorf("synccontrol: unknown event kind %v", ev.Kind)
	}
}
