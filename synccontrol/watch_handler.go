package synccontrol

import (
	"context"
	"path/filepath"

	"github.com/calmh/syncit/block"
	"github.com/calmh/syncit/indexstore"
	"github.com/calmh/syncit/syncevent"
	"github.com/pkg/errors"
)

// HandleWatchEvents processes a batch of raw filesystem deltas, one
// transactional guard per event so a mid-batch failure preserves
// earlier work. If an event fails, the batch stops there, but the
// rumors already produced by earlier events in the batch are still
// broadcast once at the end with except=nil — an event handling
// failure must not suppress gossip for changes that already committed.
func (c *Controller) HandleWatchEvents(ctx context.Context, events []syncevent.WatchEvent) error {
	var rumors []block.IndexFile

	for _, ev := range events {
		produced, err := c.handleOneWatchEvent(ctx, ev)
		if err != nil {
			c.log.Error("watch event handling failed, stopping batch early", "error", err)
			break
		}
		rumors = append(rumors, produced...)
	}

	if len(rumors) == 0 {
		return nil
	}
	return c.cfg.Sink.Send(ctx, block.SendRumors{DirID: c.cfg.DirID, Rumors: rumors})
}

func (c *Controller) handleOneWatchEvent(ctx context.Context, ev syncevent.WatchEvent) ([]block.IndexFile, error) {
	guard, err := c.cfg.Store.Begin()
	if err != nil {
		return nil, err
	}
	defer guard.Discard()

	var produced []block.IndexFile

	switch ev.Kind {
	case syncevent.WatchAdd, syncevent.WatchModify:
		f, ok, err := c.applyAddOrModify(guard, ev.Name)
		if err != nil {
			return nil, err
		}
		if ok {
			produced = append(produced, f)
		}

	case syncevent.WatchRename:
		fs, err := c.applyRename(guard, ev.Old, ev.New)
		if err != nil {
			return nil, err
		}
		produced = append(produced, fs...)

	case syncevent.WatchDelete:
		f, ok, err := c.applyDelete(guard, ev.Name)
		if err != nil {
			return nil, err
		}
		if ok {
			produced = append(produced, f)
		}

	default:
		return nil, errors.Errorf("synccontrol: unknown watch event kind %v", ev.Kind)
	}

	if err := guard.Commit(); err != nil {
		return nil, err
	}
	return produced, nil
}

// applyAddOrModify handles an Add or Modify watch event: a file that no
// longer exists on disk is bumped to deleted, a never-seen file is
// created at gen 1, and a file whose hash is unchanged since the last
// index entry is a no-op.
func (c *Controller) applyAddOrModify(guard *indexstore.Guard, name string) (block.IndexFile, bool, error) {
	path := filepath.Join(c.cfg.Dir, name)
	exists := statExists(path)

	idx, err := guard.Get(name)
	hasIdx := true
	if errors.Is(err, indexstore.ErrNotFound) {
		hasIdx = false
	} else if err != nil {
		return block.IndexFile{}, false, err
	}

	now := c.cfg.Clock.Now()

	if !exists {
		if !hasIdx || idx.Detail.Deleted {
			return block.IndexFile{}, false, nil
		}
		bumped := idx.BumpDeleted(now, c.cfg.PeerID)
		if err := guard.Update(bumped); err != nil {
			return block.IndexFile{}, false, err
		}
		return bumped, true, nil
	}

	sum, chain, err := hashPath(path)
	if err != nil {
		return block.IndexFile{}, false, err
	}

	if !hasIdx {
		f := block.NewFile(name, block.KindFile, sum, chain, now, c.cfg.PeerID)
		if err := guard.Create(f); err != nil {
			return block.IndexFile{}, false, err
		}
		return f, true, nil
	}

	if !idx.Detail.Deleted && idx.Detail.Hash == sum {
		return block.IndexFile{}, false, nil
	}

	bumped := idx.BumpContent(sum, chain, now, c.cfg.PeerID)
	if err := guard.Update(bumped); err != nil {
		return block.IndexFile{}, false, err
	}
	return bumped, true, nil
}

// applyRename handles a Rename watch event: if the new path exists on
// disk, the old name is retired (if tracked) and the new name is
// created or bumped from its current hash.
func (c *Controller) applyRename(guard *indexstore.Guard, oldName, newName string) ([]block.IndexFile, error) {
	now := c.cfg.Clock.Now()
	newPath := filepath.Join(c.cfg.Dir, newName)

	if statExists(newPath) {
		var produced []block.IndexFile

		oldIdx, err := guard.Get(oldName)
		switch {
		case errors.Is(err, indexstore.ErrNotFound):
			// nothing to retire
		case err != nil:
			return nil, err
		case !oldIdx.Detail.Deleted:
			bumped := oldIdx.BumpDeleted(now, c.cfg.PeerID)
			if err := guard.Update(bumped); err != nil {
				return nil, err
			}
			produced = append(produced, bumped)
		}

		sum, chain, err := hashPath(newPath)
		if err != nil {
			return nil, err
		}

		newIdx, err := guard.Get(newName)
		switch {
		case errors.Is(err, indexstore.ErrNotFound):
			f := block.NewFile(newName, block.KindFile, sum, chain, now, c.cfg.PeerID)
			if err := guard.Create(f); err != nil {
				return nil, err
			}
			produced = append(produced, f)
		case err != nil:
			return nil, err
		default:
			bumped := newIdx.BumpContent(sum, chain, now, c.cfg.PeerID)
			if err := guard.Update(bumped); err != nil {
				return nil, err
			}
			produced = append(produced, bumped)
		}

		return produced, nil
	}

	// New path missing: treated as a double-delete of both names (see
	// DESIGN.md Open Question 3).
	var produced []block.IndexFile
	for _, name := range []string{oldName, newName} {
		f, ok, err := c.applyDelete(guard, name)
		if err != nil {
			return nil, err
		}
		if ok {
			produced = append(produced, f)
		}
	}
	return produced, nil
}

// applyDelete handles a Delete watch event, bumping a tracked,
// not-already-deleted entry to deleted.
func (c *Controller) applyDelete(guard *indexstore.Guard, name string) (block.IndexFile, bool, error) {
	idx, err := guard.Get(name)
	if errors.Is(err, indexstore.ErrNotFound) {
		return block.IndexFile{}, false, nil
	}
	if err != nil {
		return block.IndexFile{}, false, err
	}
	if idx.Detail.Deleted {
		return block.IndexFile{}, false, nil
	}

	bumped := idx.BumpDeleted(c.cfg.Clock.Now(), c.cfg.PeerID)
	if err := guard.Update(bumped); err != nil {
		return block.IndexFile{}, false, err
	}
	return bumped, true, nil
}
