// Command syncitd is the thin process bootstrap around the synccontrol
// engine. It wires a real fsnotify watcher, an on-disk index store, and
// a logging stand-in for the peer transport, then runs the Sync
// Controller loop until interrupted.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "syncitd",
		Usage: "peer-to-peer directory synchronization daemon",
		Flags: []cli.Flag{
			dirFlag,
			dirIDFlag,
			leveldbPathFlag,
			peerIDFileFlag,
			hashCacheSizeFlag,
			blockParallelismFlag,
			logLevelFlag,
		},
		Action: runAction,
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("syncitd exited with error", "error", err)
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	dirFlag = &cli.StringFlag{
		Name:     "dir",
		Usage:    "directory to keep synchronized",
		Required: true,
		EnvVars:  []string{"SYNCIT_DIR"},
	}
	dirIDFlag = &cli.StringFlag{
		Name:     "dir-id",
		Usage:    "identifier for this share, agreed upon with peers",
		Required: true,
		EnvVars:  []string{"SYNCIT_DIR_ID"},
	}
	leveldbPathFlag = &cli.StringFlag{
		Name:    "leveldb-path",
		Usage:   "path to the index store's on-disk goleveldb directory",
		EnvVars: []string{"SYNCIT_LEVELDB_PATH"},
	}
	peerIDFileFlag = &cli.StringFlag{
		Name:    "peer-id-file",
		Usage:   "path to a file holding this node's persisted peer id, generated on first run",
		EnvVars: []string{"SYNCIT_PEER_ID_FILE"},
	}
	hashCacheSizeFlag = &cli.IntFlag{
		Name:    "hash-cache-size",
		Usage:   "entries in the sync-all rehash-skip cache",
		Value:   4096,
		EnvVars: []string{"SYNCIT_HASH_CACHE_SIZE"},
	}
	blockParallelismFlag = &cli.IntFlag{
		Name:    "block-write-parallelism",
		Usage:   "bound on concurrent positional block writes within one file sync",
		Value:   4,
		EnvVars: []string{"SYNCIT_BLOCK_WRITE_PARALLELISM"},
	}
	logLevelFlag = &cli.StringFlag{
		Name:    "log-level",
		Usage:   "one of debug, info, warn, error",
		Value:   "info",
		EnvVars: []string{"SYNCIT_LOG_LEVEL"},
	}
)
