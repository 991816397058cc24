// Package watchctrl is a pause/resume knob for the external filesystem
// watcher, which the sync controller holds across every event dispatch
// so handlers don't observe their own writes as further events.
package watchctrl

import (
	"context"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
)

// Control is the pause/resume contract the sync controller drives. If
// Pause fails the controller must surface the error and exit; Resume
// failure after a handler error is best-effort.
type Control interface {
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
}

// FsnotifyControl pauses an fsnotify.Watcher by removing its watch on
// dir, and resumes by re-adding it. This is the simplest pause mechanism
// fsnotify exposes (it has no native pause), and is adequate because the
// controller never leaves a pause window open across suspension points
// other than the handler's own I/O.
type FsnotifyControl struct {
	watcher *fsnotify.Watcher
	dir     string
}

// NewFsnotifyControl wraps an already-started watcher that is watching
// dir.
func NewFsnotifyControl(watcher *fsnotify.Watcher, dir string) *FsnotifyControl {
	return &FsnotifyControl{watcher: watcher, dir: dir}
}

func (c *FsnotifyControl) Pause(_ context.Context) error {
	if err := c.watcher.Remove(c.dir); err != nil {
		return errors.Wrap(err, "watchctrl: pause")
	}
	return nil
}

func (c *FsnotifyControl) Resume(_ context.Context) error {
	if err := c.watcher.Add(c.dir); err != nil {
		return errors.Wrap(err, "watchctrl: resume")
	}
	return nil
}

// Noop is a Control that never pauses anything, useful for tests and for
// a Sync-All-only bootstrap with no live watcher wired in yet.
type Noop struct{}

func (Noop) Pause(context.Context) error  { return nil }
func (Noop) Resume(context.Context) error { return nil }
