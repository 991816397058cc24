package synccontrol

import (
	"context"

	"github.com/calmh/syncit/block"
	"github.com/calmh/syncit/transfer"
	"golang.org/x/sync/errgroup"
)

// ErrCanceled is returned when a download is aborted because the source
// peer no longer has one of the requested blocks. It is benign: the
// caller must not mutate the target path and must not rebroadcast.
var ErrCanceled = errCanceled{}

type errCanceled struct{}

func (errCanceled) Error() string { return "synccontrol: download canceled by missing block" }

// fetchAndWrite requests reqs from client and writes each returned block
// into dst at its offset, fanning out concurrent writes bounded by
// parallelism and joining them before returning. If the client
// reports any block as unavailable (None), every remaining write is
// still drained from the channel (to avoid leaking the producer
// goroutine) but fetchAndWrite returns ErrCanceled and the caller must
// not rename dst into place.
func fetchAndWrite(ctx context.Context, client transfer.Client, reqs []block.DownloadBlockRequest, dst *tempFile, parallelism int) error {
	if len(reqs) == 0 {
		return nil
	}

	results, err := client.Download(ctx, reqs)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)

	var canceled bool
	for res := range results {
		if res.Block == nil {
			canceled = true
			continue
		}
		if canceled {
			continue
		}
		b := res.Block
		select {
		case <-gctx.Done():
			continue
		default:
		}
		g.Go(func() error {
			return dst.WriteAt(b.Data, int64(b.Offset))
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	if canceled {
		return ErrCanceled
	}
	return nil
}
