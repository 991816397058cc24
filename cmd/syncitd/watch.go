package main

import (
	"path/filepath"
	"time"

	"github.com/calmh/syncit/syncevent"
	"github.com/fsnotify/fsnotify"
)

// watchBatcher coalesces raw fsnotify.Events arriving within one
// debounce window, which opens at the first event after a flush, into
// one syncevent.Event{Kind: KindWatch}, so a burst of writes during a
// large copy produces one dispatch per window rather than one per event.
//
// fsnotify reports a rename as two independent events (a Rename on the
// old path, a Create on the new path) rather than syncevent's single
// WatchRename{Old,New}; batcher pairs a lone Rename with a same-window
// Create to reconstruct that, falling back to a bare delete if no
// matching Create shows up before the window closes.
type watchBatcher struct {
	dir      string
	debounce time.Duration
	out      chan<- syncevent.Event
}

func newWatchBatcher(dir string, debounce time.Duration, out chan<- syncevent.Event) *watchBatcher {
	return &watchBatcher{dir: dir, debounce: debounce, out: out}
}

// run drains watcher until its event or error channel closes, emitting
// batches on out. Errors from the watcher's error channel are logged and do not
// stop the loop; the watcher itself owns reconnection concerns, which
// are out of scope here.
func (b *watchBatcher) run(watcher *fsnotify.Watcher, errf func(error)) {
	var pending []syncevent.WatchEvent
	var renamedFrom string
	timer := time.NewTimer(b.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	timerActive := false

	flush := func() {
		if renamedFrom != "" {
			pending = append(pending, syncevent.WatchEvent{Kind: syncevent.WatchDelete, Name: renamedFrom})
			renamedFrom = ""
		}
		if len(pending) == 0 {
			return
		}
		b.out <- syncevent.Event{Kind: syncevent.KindWatch, WatchEvents: pending}
		pending = nil
	}

	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				flush()
				return
			}
			name, ok := b.relName(ev.Name)
			if !ok {
				continue
			}

			switch {
			case ev.Op&fsnotify.Create != 0:
				if renamedFrom != "" {
					pending = append(pending, syncevent.WatchEvent{Kind: syncevent.WatchRename, Old: renamedFrom, New: name})
					renamedFrom = ""
				} else {
					pending = append(pending, syncevent.WatchEvent{Kind: syncevent.WatchAdd, Name: name})
				}
			case ev.Op&fsnotify.Write != 0:
				pending = append(pending, syncevent.WatchEvent{Kind: syncevent.WatchModify, Name: name})
			case ev.Op&fsnotify.Remove != 0:
				pending = append(pending, syncevent.WatchEvent{Kind: syncevent.WatchDelete, Name: name})
			case ev.Op&fsnotify.Rename != 0:
				if renamedFrom != "" {
					pending = append(pending, syncevent.WatchEvent{Kind: syncevent.WatchDelete, Name: renamedFrom})
				}
				renamedFrom = name
			}

			if !timerActive {
				timer.Reset(b.debounce)
				timerActive = true
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				flush()
				return
			}
			errf(err)

		case <-timer.C:
			timerActive = false
			flush()
		}
	}
}

// relName reports the watched path's basename, rejecting anything not a
// direct child of dir (directory-tree recursion is a non-goal).
func (b *watchBatcher) relName(path string) (string, bool) {
	rel, err := filepath.Rel(b.dir, path)
	if err != nil || rel == "." || filepath.Dir(rel) != "." {
		return "", false
	}
	return rel, true
}
