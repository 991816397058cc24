package synccontrol

import (
	"context"
	"os"
	"path/filepath"

	"github.com/calmh/syncit/block"
)

// HandleSyncAll runs a full reconciliation of the directory listing
// against the index, all within one transaction. Broadcasts
// unconditionally, even for an empty share.
func (c *Controller) HandleSyncAll(ctx context.Context) error {
	guard, err := c.cfg.Store.Begin()
	if err != nil {
		return err
	}
	defer guard.Discard()

	onDisk, err := c.listDiskEntries()
	if err != nil {
		return err
	}

	indexed, err := guard.ListAll()
	if err != nil {
		return err
	}
	indexByName := make(map[string]block.IndexFile, len(indexed))
	for _, f := range indexed {
		indexByName[f.Filename] = f
	}

	now := c.cfg.Clock.Now()

	// deleted: present in index non-deleted, absent from disk.
	for name, f := range indexByName {
		if f.Detail.Deleted {
			continue
		}
		if _, onDiskOK := onDisk[name]; onDiskOK {
			continue
		}
		bumped := f.BumpDeleted(now, c.cfg.PeerID)
		if err := guard.Update(bumped); err != nil {
			return err
		}
		indexByName[name] = bumped
	}

	for name := range onDisk {
		f, present := indexByName[name]

		switch {
		case !present, present && f.Detail.Deleted:
			// new: on disk, absent or deleted in the index.
			sum, chain, err := c.hashWithCache(name)
			if err != nil {
				return err
			}
			if !present {
				nf := block.NewFile(name, block.KindFile, sum, chain, now, c.cfg.PeerID)
				if err := guard.Create(nf); err != nil {
					return err
				}
				indexByName[name] = nf
			} else {
				bumped := f.BumpContent(sum, chain, now, c.cfg.PeerID)
				if err := guard.Update(bumped); err != nil {
					return err
				}
				indexByName[name] = bumped
			}

		default:
			// existing: on disk, present and non-deleted in the index.
			sum, chain, err := c.hashWithCache(name)
			if err != nil {
				return err
			}
			if sum == f.Detail.Hash {
				continue
			}
			bumped := f.BumpContent(sum, chain, now, c.cfg.PeerID)
			if err := guard.Update(bumped); err != nil {
				return err
			}
			indexByName[name] = bumped
		}
	}

	result := make([]block.IndexFile, 0, len(indexByName))
	for _, f := range indexByName {
		result = append(result, f)
	}

	if err := c.cfg.Sink.Send(ctx, block.SendRumors{DirID: c.cfg.DirID, Rumors: result}); err != nil {
		return err
	}

	return guard.Commit()
}

// listDiskEntries enumerates one-level directory entries, skipping
// sub-directories (directory-tree recursion is a non-goal). Entries that
// are not directories are not filtered by name.
func (c *Controller) listDiskEntries() (map[string]struct{}, error) {
	entries, err := os.ReadDir(c.cfg.Dir)
	if err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		out[e.Name()] = struct{}{}
	}
	return out, nil
}

// hashWithCache hashes the named file, skipping the read when the
// file's (mtime, size) match a cached result (see DESIGN.md).
func (c *Controller) hashWithCache(name string) (block.Sha256, block.BlockChain, error) {
	path := filepath.Join(c.cfg.Dir, name)
	fi, err := os.Stat(path)
	if err != nil {
		return block.Sha256{}, block.BlockChain{}, err
	}

	if cached, ok := c.hashCache.Get(name); ok {
		if cached.modUnixNano == fi.ModTime().UnixNano() && cached.size == fi.Size() {
			return cached.hash, cached.chain, nil
		}
	}

	sum, chain, err := hashPath(path)
	if err != nil {
		return block.Sha256{}, block.BlockChain{}, err
	}
	c.hashCache.Add(name, cachedHash{
		modUnixNano: fi.ModTime().UnixNano(),
		size:        fi.Size(),
		hash:        sum,
		chain:       chain,
	})
	return sum, chain, nil
}
