package synccontrol

import (
	"io"
	"os"
	"path/filepath"

	"github.com/calmh/syncit/block"
	"github.com/calmh/syncit/hash"
	"github.com/calmh/syncit/internal/randname"
	"github.com/pkg/errors"
)

// hashPath hashes the file at the given absolute path.
func hashPath(path string) (block.Sha256, block.BlockChain, error) {
	f, err := os.Open(path)
	if err != nil {
		return block.Sha256{}, block.BlockChain{}, err
	}
	defer f.Close()
	return hash.Hash(f)
}

// statExists reports whether path exists, treating any other stat error
// as "does not exist" (the caller isn't in a position to distinguish
// permission errors from absence and doesn't need to).
func statExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// removeIgnoreNotFound removes path, swallowing NotFound.
func removeIgnoreNotFound(path string) error {
	err := os.Remove(path)
	if err == nil || os.IsNotExist(err) {
		return nil
	}
	return err
}

// tempFile is a handle to a temp file created with a random 10-character
// name in dir, exclusively opened and unlinked by Abort unless
// explicitly Detach-ed before rename.
type tempFile struct {
	f        *os.File
	path     string
	detached bool
}

// newTempFile creates a new temp file in dir.
func newTempFile(dir string) (*tempFile, error) {
	name, err := randname.TempName()
	if err != nil {
		return nil, errors.Wrap(err, "synccontrol: generate temp name")
	}
	path := filepath.Join(dir, "."+name+".tmp")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, errors.Wrap(err, "synccontrol: create temp file")
	}
	return &tempFile{f: f, path: path}, nil
}

// SetLen sets the temp file's length.
func (t *tempFile) SetLen(n int64) error {
	return t.f.Truncate(n)
}

// WriteAt writes data at offset.
func (t *tempFile) WriteAt(data []byte, offset int64) error {
	_, err := t.f.WriteAt(data, offset)
	return err
}

// CopyFrom copies the entirety of src's current content into the temp
// file starting at offset 0. copy_file_range is Linux-specific and not
// exposed portably by the standard library, so a plain io.Copy is used.
func (t *tempFile) CopyFrom(srcPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close()

	if _, err := t.f.Seek(0, io.SeekStart); err != nil {
		return err
	}
	_, err = io.Copy(t.f, src)
	return err
}

// Detach marks the temp file as no longer owned for auto-cleanup; the
// caller takes responsibility for the path (about to rename it).
func (t *tempFile) Detach() error {
	t.detached = true
	return t.f.Close()
}

// Abort closes and unlinks the temp file. Safe to call after Detach
// (no-op).
func (t *tempFile) Abort() {
	if t.detached {
		return
	}
	_ = t.f.Close()
	_ = os.Remove(t.path)
}

// RenameTo detaches and renames the temp file to target, both within the
// same directory.
func (t *tempFile) RenameTo(target string) error {
	if err := t.Detach(); err != nil {
		return err
	}
	return os.Rename(t.path, target)
}
