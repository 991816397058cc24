// Package syncevent defines the Sync Controller's input event stream:
// watcher batches, remote rumor deliveries, and sync-all triggers.
package syncevent

import "github.com/calmh/syncit/block"

// WatchEventKind tags the four raw filesystem deltas the external
// watcher emits. Directory-tree recursion is a non-goal; names are flat,
// directory-relative, OS-encoded byte strings.
type WatchEventKind int

const (
	WatchAdd WatchEventKind = iota
	WatchModify
	WatchRename
	WatchDelete
)

// WatchEvent is one raw filesystem delta.
type WatchEvent struct {
	Kind WatchEventKind
	Name string // valid for Add, Modify, Delete
	Old  string // valid for Rename
	New  string // valid for Rename
}

// Kind tags which of the three Event variants is populated.
type Kind int

const (
	KindWatch Kind = iota
	KindRumors
	KindSyncAll
)

// Event is one item from the Sync Controller's input stream. Exactly one
// of the payload fields is meaningful, selected by Kind.
type Event struct {
	Kind Kind

	// KindWatch
	WatchEvents []WatchEvent

	// KindRumors
	SenderID    string
	RemoteIndex []block.IndexFile
}
