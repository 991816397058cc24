package synccontrol

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/calmh/syncit/internal/clock"
)

// conflictPath builds "<original>.YYYY-MM-DD-HH-MM-SS.conflict"
// (timestamp in UTC+8), appending a "-N" disambiguator if a conflict
// file for the same second already exists, so two conflicts landing in
// the same second never overwrite one another.
func conflictPath(dir, name string, now time.Time) string {
	ts := clock.ConflictTimestamp(now)
	base := fmt.Sprintf("%s.%s.conflict", name, ts)
	candidate := filepath.Join(dir, base)
	if !statExists(candidate) {
		return candidate
	}
	for n := 1; ; n++ {
		base := fmt.Sprintf("%s.%s-%d.conflict", name, ts, n)
		candidate = filepath.Join(dir, base)
		if !statExists(candidate) {
			return candidate
		}
	}
}

// preserveConflict byte-copies the current content at srcPath into a new
// conflict file. A missing source (already deleted locally) is not an
// error: there is nothing to preserve.
func preserveConflict(dir, name string, srcPath string, now time.Time) error {
	src, err := os.Open(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer src.Close()

	dst, err := os.OpenFile(conflictPath(dir, name, now), os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return err
	}
	defer dst.Close()

	_, err = io.Copy(dst, src)
	return err
}
