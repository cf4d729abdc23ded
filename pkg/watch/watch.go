// Package watch provides a minimal, platform-abstracted notification
// primitive: watch a directory for new entries, watch a file for
// appends/truncations, and receive descriptor-tagged events for either.
// It intentionally exposes nothing beyond this lowest-common-denominator
// surface — neither the Linux nor BSD kernel event backend reliably
// reports rename/remove/link events in a way that's consistent across
// platforms, so higher layers (see pkg/logcollector) re-derive state by
// re-scanning rather than trusting fine-grained OS events.
package watch

import "errors"

// ErrClosed indicates that a watcher has already been closed.
var ErrClosed = errors.New("watcher closed")

// Descriptor is an opaque, comparable, hashable handle identifying which
// watched directory or file produced an event. Its concrete type varies by
// backend (a kernel watch ID for inotify, a raw file descriptor for
// kqueue, a monotonic counter for the mock).
type Descriptor interface{}

// Event is a single notification delivered by a watcher. It carries only
// the descriptor of the watch that fired; watchers never interpret their
// own events beyond that, leaving translation to descriptor-specific
// meaning (directory rescan vs. file append/truncate) to the caller.
type Event struct {
	// Descriptor identifies the watch that produced this event.
	Descriptor Descriptor
}

// Watcher is the platform-abstracted notification interface. Implementations
// must be safe for concurrent use of ReadEvents/ReadEventsBlocking from a
// single reader goroutine alongside concurrent Watch* calls from others.
type Watcher interface {
	// WatchDirectory registers a watch on a directory, returning a
	// descriptor that will tag every subsequent event caused by an entry
	// being created inside it. Behavior for a path that is a symlink, not
	// a directory, or already watched is implementation-defined.
	WatchDirectory(path string) (Descriptor, error)

	// WatchFile registers a watch on a file, returning a descriptor that
	// will tag every subsequent event caused by that file being appended
	// to or truncated. Behavior for a path that is a symlink, not a
	// regular file, or already watched is implementation-defined.
	WatchFile(path string) (Descriptor, error)

	// ReadEvents returns any events that are immediately available without
	// blocking. It may return a nil or empty slice.
	ReadEvents() ([]Event, error)

	// ReadEventsBlocking blocks until at least one event is available (or
	// an error occurs) and returns all events available at that point.
	ReadEventsBlocking() ([]Event, error)

	// Close releases all underlying OS resources held by the watcher.
	// After Close, ReadEventsBlocking returns ErrClosed instead of
	// blocking; the other methods are not guaranteed to return ErrClosed.
	Close() error
}
