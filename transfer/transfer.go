// Package transfer is the block download boundary: given a list of
// DownloadBlockRequests, it returns a stream of optional blocks, where a
// missing block (a nil Block) signals the source peer no longer has
// that data. Requests fan out through a bounded golang.org/x/sync/errgroup
// pool rather than a raw sync.WaitGroup and channel.
package transfer

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/calmh/syncit/block"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// DownloadBlock is one fetched block's bytes.
type DownloadBlock struct {
	Offset uint64
	Data   []byte
}

// Result is one response item. Block is nil exactly when the source
// could not fulfil that request.
type Result struct {
	Block *DownloadBlock
}

// Client is the abstract download boundary. Ordering between requests
// and responses is not guaranteed; each Result describes its own block
// via Offset.
type Client interface {
	Download(ctx context.Context, reqs []block.DownloadBlockRequest) (<-chan Result, error)
}

// FakeClient is an in-memory Client for tests, with a channel-of-results
// streaming shape matching a real network client's.
type FakeClient struct {
	mu sync.Mutex
	// Data maps filename -> full file content the fake "peer" has.
	Data map[string][]byte
	// Missing, when set for a filename, causes every request for that
	// file to resolve to None (simulating an outdated source).
	Missing map[string]bool
}

// NewFakeClient returns an empty FakeClient.
func NewFakeClient() *FakeClient {
	return &FakeClient{Data: map[string][]byte{}, Missing: map[string]bool{}}
}

// Download implements Client.
func (c *FakeClient) Download(ctx context.Context, reqs []block.DownloadBlockRequest) (<-chan Result, error) {
	out := make(chan Result, len(reqs))
	go func() {
		defer close(out)
		c.mu.Lock()
		defer c.mu.Unlock()

		for _, req := range reqs {
			select {
			case <-ctx.Done():
				return
			default:
			}

			if c.Missing[req.Filename] {
				out <- Result{Block: nil}
				continue
			}
			data, ok := c.Data[req.Filename]
			if !ok || req.Offset+req.Len > uint64(len(data)) {
				out <- Result{Block: nil}
				continue
			}
			buf := make([]byte, req.Len)
			copy(buf, data[req.Offset:req.Offset+req.Len])
			out <- Result{Block: &DownloadBlock{Offset: req.Offset, Data: buf}}
		}
	}()
	return out, nil
}

// LocalClient serves block requests by reading files directly out of a
// peer directory on the same host, useful for loopback/single-host
// integration tests. It bounds concurrent reads with a goroutine pool.
type LocalClient struct {
	Dir         string
	Parallelism int
}

// NewLocalClient returns a LocalClient reading from dir, bounding
// concurrent reads to parallelism (minimum 1).
func NewLocalClient(dir string, parallelism int) *LocalClient {
	if parallelism < 1 {
		parallelism = 1
	}
	return &LocalClient{Dir: dir, Parallelism: parallelism}
}

// Download implements Client by reading each requested block positionally
// from the file under Dir/filename. A missing file or a read past EOF
// yields a nil block for that request rather than an error, since both
// just mean the source no longer has that data.
func (c *LocalClient) Download(ctx context.Context, reqs []block.DownloadBlockRequest) (<-chan Result, error) {
	out := make(chan Result, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.Parallelism)

	for _, req := range reqs {
		req := req
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			buf := make([]byte, req.Len)
			f, err := os.Open(filepath.Join(c.Dir, req.Filename))
			if err != nil {
				out <- Result{Block: nil}
				return nil
			}
			defer f.Close()

			n, err := f.ReadAt(buf, int64(req.Offset))
			if err != nil && uint64(n) != req.Len {
				out <- Result{Block: nil}
				return nil
			}
			out <- Result{Block: &DownloadBlock{Offset: req.Offset, Data: buf}}
			return nil
		})
	}

	go func() {
		err := g.Wait()
		close(out)
		if err != nil && !errors.Is(err, context.Canceled) {
			// Errors here are reserved for context cancellation;
			// per-request I/O failures already degrade to None above.
			_ = err
		}
	}()

	return out, nil
}
