package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/calmh/syncit/indexstore"
	"github.com/calmh/syncit/rumor"
	"github.com/calmh/syncit/syncevent"
	"github.com/calmh/syncit/synccontrol"
	"github.com/calmh/syncit/transfer"
	"github.com/calmh/syncit/watchctrl"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

// watchDebounce bounds how long a burst of filesystem events is
// coalesced into one Sync Controller dispatch.
const watchDebounce = 200 * time.Millisecond

// syncAllInterval is how often a full rescan runs even with no watcher
// activity, catching changes the watcher missed.
const syncAllInterval = 5 * time.Minute

func runAction(cctx *cli.Context) error {
	log, err := newLogger(cctx.String(logLevelFlag.Name))
	if err != nil {
		return err
	}

	dir := cctx.String(dirFlag.Name)
	dirID := cctx.String(dirIDFlag.Name)

	leveldbPath := cctx.String(leveldbPathFlag.Name)
	if leveldbPath == "" {
		leveldbPath = filepath.Join(dir, ".syncit", "index")
	}
	if err := os.MkdirAll(filepath.Dir(leveldbPath), 0o755); err != nil {
		return errors.Wrap(err, "syncitd: prepare leveldb path")
	}

	peerIDFile := cctx.String(peerIDFileFlag.Name)
	if peerIDFile == "" {
		peerIDFile = filepath.Join(filepath.Dir(leveldbPath), "peer-id")
	}
	peerID, err := loadOrCreatePeerID(peerIDFile)
	if err != nil {
		return err
	}
	log = log.With("peer_id", peerID, "dir_id", dirID)

	store, err := indexstore.Open(leveldbPath)
	if err != nil {
		return errors.Wrap(err, "syncitd: open index store")
	}
	defer store.Close()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "syncitd: create fsnotify watcher")
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return errors.Wrapf(err, "syncitd: watch %q", dir)
	}

	sink := rumor.NewChanSink(64)

	ctrl, err := synccontrol.New(synccontrol.Config{
		Dir:                   dir,
		DirID:                 dirID,
		PeerID:                peerID,
		Store:                 store,
		Watch:                 watchctrl.NewFsnotifyControl(watcher, dir),
		Sink:                  sink,
		Download:              transfer.NewLocalClient(dir, cctx.Int(blockParallelismFlag.Name)),
		Log:                   log,
		HashCacheSize:         cctx.Int(hashCacheSizeFlag.Name),
		BlockWriteParallelism: cctx.Int(blockParallelismFlag.Name),
	})
	if err != nil {
		return errors.Wrap(err, "syncitd: construct sync controller")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events := make(chan syncevent.Event)
	batcher := newWatchBatcher(dir, watchDebounce, events)
	go batcher.run(watcher, func(err error) {
		log.Error("watcher error", "error", err)
	})

	// The real peer transport (sending SendRumors batches over the wire
	// and answering DownloadBlockRequests from other peers) is not wired
	// in yet; until it is, outbound batches are logged rather than
	// silently dropped.
	go func() {
		for batch := range sink.C() {
			log.Info("would broadcast rumors", "dir_id", batch.DirID, "count", len(batch.Rumors), "except", batch.Except)
		}
	}()

	go func() {
		ticker := time.NewTicker(syncAllInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				select {
				case events <- syncevent.Event{Kind: syncevent.KindSyncAll}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	log.Info("syncitd starting", "dir", dir, "leveldb_path", leveldbPath)
	if err := ctrl.HandleSyncAll(ctx); err != nil {
		log.Error("initial sync-all failed", "error", err)
	}

	runErr := ctrl.Run(ctx, events)
	if errors.Is(runErr, context.Canceled) {
		log.Info("syncitd shutting down")
		return nil
	}
	return runErr
}

func newLogger(level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, errors.Wrapf(err, "syncitd: invalid log level %q", level)
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(h), nil
}
