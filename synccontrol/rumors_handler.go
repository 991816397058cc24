package synccontrol

import (
	"context"
	"path/filepath"

	"github.com/calmh/syncit/block"
	"github.com/calmh/syncit/indexstore"
	"github.com/pkg/errors"
)

// HandleRumors applies a batch of remote rumors, each in its own guard,
// and rebroadcasts the ones that mutated local state ("new") with
// except=sender to propagate gossip without echoing back to its origin.
func (c *Controller) HandleRumors(ctx context.Context, senderID string, remote []block.IndexFile) error {
	var newRumors []block.IndexFile

	for _, r := range remote {
		applied, isNew, err := c.applyOneRumor(ctx, r)
		if err != nil {
			return errors.Wrapf(err, "synccontrol: rumor %q", r.Filename)
		}
		if isNew {
			newRumors = append(newRumors, applied)
		}
	}

	if len(newRumors) == 0 {
		return nil
	}
	except := senderID
	return c.cfg.Sink.Send(ctx, block.SendRumors{DirID: c.cfg.DirID, Rumors: newRumors, Except: &except})
}

func (c *Controller) applyOneRumor(ctx context.Context, r block.IndexFile) (block.IndexFile, bool, error) {
	guard, err := c.cfg.Store.Begin()
	if err != nil {
		return block.IndexFile{}, false, err
	}
	defer guard.Discard()

	path := filepath.Join(c.cfg.Dir, r.Filename)

	local, err := guard.Get(r.Filename)
	switch {
	case errors.Is(err, indexstore.ErrNotFound):
		return c.applyRumorNoLocal(ctx, guard, r, path)
	case err != nil:
		return block.IndexFile{}, false, err
	}

	switch {
	case local.Detail.Gen < r.Detail.Gen:
		return c.applyRumorRemoteNewer(ctx, guard, local, r, path)
	case local.Detail.Gen == r.Detail.Gen:
		return c.applyRumorEqualGen(ctx, guard, local, r, path)
	default:
		// local.Detail.Gen > r.Detail.Gen: local is newer, ignore.
		return block.IndexFile{}, false, nil
	}
}

func (c *Controller) applyRumorNoLocal(ctx context.Context, guard *indexstore.Guard, r block.IndexFile, path string) (block.IndexFile, bool, error) {
	if r.Detail.Deleted {
		if err := guard.Create(r); err != nil {
			return block.IndexFile{}, false, err
		}
		if err := removeIgnoreNotFound(path); err != nil {
			return block.IndexFile{}, false, err
		}
		if err := guard.Commit(); err != nil {
			return block.IndexFile{}, false, err
		}
		return r, true, nil
	}

	if err := guard.Create(r); err != nil {
		return block.IndexFile{}, false, err
	}

	if r.Kind != block.KindSymlink {
		if err := c.downloadFull(ctx, r, path); err != nil {
			if errors.Is(err, ErrCanceled) {
				return block.IndexFile{}, false, nil
			}
			return block.IndexFile{}, false, err
		}
	}

	if err := guard.Commit(); err != nil {
		return block.IndexFile{}, false, err
	}
	return r, true, nil
}

func (c *Controller) applyRumorRemoteNewer(ctx context.Context, guard *indexstore.Guard, local, r block.IndexFile, path string) (block.IndexFile, bool, error) {
	if fastForwards(local, r) {
		return c.applyFastForward(ctx, guard, local, r, path)
	}
	return c.applyConflictAndReplace(ctx, guard, local, r, path)
}

// fastForwards reports whether r's history includes local's current
// detail, meaning r can be applied without creating a conflict copy.
func fastForwards(local, r block.IndexFile) bool {
	for _, d := range r.PreviousDetails {
		if d.Gen == local.Detail.Gen && d.Hash == local.Detail.Hash {
			return true
		}
	}
	return false
}

func (c *Controller) applyFastForward(ctx context.Context, guard *indexstore.Guard, local, r block.IndexFile, path string) (block.IndexFile, bool, error) {
	if r.Detail.Deleted {
		if err := removeIgnoreNotFound(path); err != nil {
			return block.IndexFile{}, false, err
		}
	} else if r.Kind != block.KindSymlink {
		localChain := block.BlockChain{}
		if local.Detail.BlockChain != nil {
			localChain = *local.Detail.BlockChain
		}
		if err := c.downloadDelta(ctx, r, path, localChain); err != nil {
			if errors.Is(err, ErrCanceled) {
				return block.IndexFile{}, false, nil
			}
			return block.IndexFile{}, false, err
		}
	}

	if err := guard.Update(r); err != nil {
		return block.IndexFile{}, false, err
	}
	if err := guard.Commit(); err != nil {
		return block.IndexFile{}, false, err
	}
	return r, true, nil
}

func (c *Controller) applyConflictAndReplace(ctx context.Context, guard *indexstore.Guard, local, r block.IndexFile, path string) (block.IndexFile, bool, error) {
	if !local.Detail.Deleted {
		if err := preserveConflict(c.cfg.Dir, r.Filename, path, c.cfg.Clock.Now()); err != nil {
			return block.IndexFile{}, false, err
		}
	}

	if r.Detail.Deleted {
		if err := removeIgnoreNotFound(path); err != nil {
			return block.IndexFile{}, false, err
		}
	} else if r.Kind != block.KindSymlink {
		if err := c.downloadFull(ctx, r, path); err != nil {
			if errors.Is(err, ErrCanceled) {
				return block.IndexFile{}, false, nil
			}
			return block.IndexFile{}, false, err
		}
	}

	if err := guard.Update(r); err != nil {
		return block.IndexFile{}, false, err
	}
	if err := guard.Commit(); err != nil {
		return block.IndexFile{}, false, err
	}
	return r, true, nil
}

func (c *Controller) applyRumorEqualGen(ctx context.Context, guard *indexstore.Guard, local, r block.IndexFile, path string) (block.IndexFile, bool, error) {
	if local.Detail.Equal(r.Detail) && local.Kind == r.Kind {
		return block.IndexFile{}, false, nil
	}

	switch {
	case r.UpdateTime.Before(local.UpdateTime):
		// Remote is stale; local wins.
		return block.IndexFile{}, false, nil
	case r.UpdateTime.After(local.UpdateTime):
		return c.applyConflictAndReplace(ctx, guard, local, r, path)
	default:
		// Equal timestamps, unequal content: unresolvable simultaneous
		// edit. Warn and ignore.
		c.log.Warn("simultaneous edit with equal timestamps, ignoring remote",
			"filename", r.Filename, "gen", r.Detail.Gen)
		return block.IndexFile{}, false, nil
	}
}

// downloadFull fetches every block of r's chain into a fresh temp file
// and renames it into place: used for new-file creation, and for the
// conflict / equal-gen-remote-newer paths which take no delta.
func (c *Controller) downloadFull(ctx context.Context, r block.IndexFile, path string) error {
	if r.Detail.BlockChain == nil {
		return nil
	}
	tmp, err := newTempFile(c.cfg.Dir)
	if err != nil {
		return err
	}
	defer tmp.Abort()

	if err := tmp.SetLen(int64(r.Detail.BlockChain.Size())); err != nil {
		return err
	}

	reqs := allRequests(c.cfg.DirID, r.Filename, *r.Detail.BlockChain)
	if err := fetchAndWrite(ctx, c.cfg.Download, reqs, tmp, c.cfg.BlockWriteParallelism); err != nil {
		return err
	}

	return tmp.RenameTo(path)
}

// downloadDelta copies the current file's bytes into a temp file,
// truncates it to remote's size, then overlays only the blocks that
// differ from local.
func (c *Controller) downloadDelta(ctx context.Context, r block.IndexFile, path string, local block.BlockChain) error {
	if r.Detail.BlockChain == nil {
		return nil
	}
	tmp, err := newTempFile(c.cfg.Dir)
	if err != nil {
		return err
	}
	defer tmp.Abort()

	if statExists(path) {
		if err := tmp.CopyFrom(path); err != nil {
			return err
		}
	}
	if err := tmp.SetLen(int64(r.Detail.BlockChain.Size())); err != nil {
		return err
	}

	reqs := diffRequests(c.cfg.DirID, r.Filename, local, *r.Detail.BlockChain)
	if err := fetchAndWrite(ctx, c.cfg.Download, reqs, tmp, c.cfg.BlockWriteParallelism); err != nil {
		return err
	}

	return tmp.RenameTo(path)
}
