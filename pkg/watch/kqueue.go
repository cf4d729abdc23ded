//go:build freebsd || openbsd || netbsd || dragonfly || darwin

package watch

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/mutagen-io/monitoring/pkg/logging"
)

// watchEventMask is the set of vnode filter flags registered for every
// watch, directory or file alike — kqueue shares a single filter for both,
// unlike inotify's separate directory/file masks.
const watchEventMask = unix.NOTE_WRITE | unix.NOTE_EXTEND | unix.NOTE_DELETE | unix.NOTE_RENAME

// New creates a new BSD/Darwin kqueue-based watcher.
func New(logger *logging.Logger) (Watcher, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, fmt.Errorf("unable to create kqueue: %w", err)
	}

	closePipe := make([]int, 2)
	if err := unix.Pipe(closePipe); err != nil {
		unix.Close(kq)
		return nil, fmt.Errorf("unable to create close pipe: %w", err)
	}

	w := &kqueueWatcher{
		kq:        kq,
		closeRead: closePipe[0],
		closeWrite: closePipe[1],
		logger:    logger,
		fdFiles:   make(map[int]*os.File),
		events:    make(chan Event, 512),
		errs:      make(chan error, 1),
		done:      make(chan struct{}),
	}

	changes := make([]unix.Kevent_t, 1)
	unix.SetKevent(&changes[0], w.closeRead, unix.EVFILT_READ, unix.EV_ADD|unix.EV_ENABLE|unix.EV_ONESHOT)
	if _, err := unix.Kevent(kq, changes, nil, nil); err != nil {
		unix.Close(kq)
		unix.Close(closePipe[0])
		unix.Close(closePipe[1])
		return nil, fmt.Errorf("unable to register close pipe: %w", err)
	}

	go w.run()

	return w, nil
}

// kqueueWatcher implements Watcher using a raw kqueue EVFILT_VNODE filter
// on an open file descriptor per watched entity, with the descriptor
// itself serving as the Descriptor value, per spec.
type kqueueWatcher struct {
	kq                   int
	closeRead, closeWrite int
	logger               *logging.Logger

	mu      sync.Mutex
	fdFiles map[int]*os.File

	events chan Event
	errs   chan error
	done   chan struct{}
	closed bool
}

func (w *kqueueWatcher) addWatch(path string) (Descriptor, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open path for watching: %w", err)
	}

	fd := int(file.Fd())
	changes := make([]unix.Kevent_t, 1)
	unix.SetKevent(&changes[0], fd, unix.EVFILT_VNODE, unix.EV_ADD|unix.EV_ENABLE|unix.EV_CLEAR)
	changes[0].Fflags = watchEventMask
	if _, err := unix.Kevent(w.kq, changes, nil, nil); err != nil {
		file.Close()
		return nil, fmt.Errorf("unable to register kqueue watch: %w", err)
	}

	w.mu.Lock()
	w.fdFiles[fd] = file
	w.mu.Unlock()

	return fd, nil
}

// WatchDirectory implements Watcher.WatchDirectory.
func (w *kqueueWatcher) WatchDirectory(path string) (Descriptor, error) {
	return w.addWatch(path)
}

// WatchFile implements Watcher.WatchFile.
func (w *kqueueWatcher) WatchFile(path string) (Descriptor, error) {
	return w.addWatch(path)
}

// run is the background read loop translating kevents into descriptor
// tagged events.
func (w *kqueueWatcher) run() {
	eventBuffer := make([]unix.Kevent_t, 16)
	for {
		n, err := unix.Kevent(w.kq, nil, eventBuffer, nil)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			select {
			case <-w.done:
				return
			default:
			}
			select {
			case w.errs <- fmt.Errorf("kqueue read failed: %w", err):
			default:
			}
			return
		}

		for _, kevent := range eventBuffer[:n] {
			fd := int(kevent.Ident)
			if fd == w.closeRead {
				return
			}

			w.mu.Lock()
			_, known := w.fdFiles[fd]
			w.mu.Unlock()
			if !known {
				w.logger.Debugf("dropping event for unknown watch descriptor %d", fd)
				continue
			}

			select {
			case w.events <- Event{Descriptor: fd}:
			case <-w.done:
				return
			}
		}
	}
}

// ReadEvents implements Watcher.ReadEvents.
func (w *kqueueWatcher) ReadEvents() ([]Event, error) {
	var result []Event
	for {
		select {
		case e := <-w.events:
			result = append(result, e)
		case err := <-w.errs:
			return result, err
		default:
			return result, nil
		}
	}
}

// ReadEventsBlocking implements Watcher.ReadEventsBlocking.
func (w *kqueueWatcher) ReadEventsBlocking() ([]Event, error) {
	select {
	case e := <-w.events:
		result := []Event{e}
		more, err := w.ReadEvents()
		return append(result, more...), err
	case err := <-w.errs:
		return nil, err
	case <-w.done:
		return nil, ErrClosed
	}
}

// Close implements Watcher.Close.
func (w *kqueueWatcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	files := make([]*os.File, 0, len(w.fdFiles))
	for _, f := range w.fdFiles {
		files = append(files, f)
	}
	w.mu.Unlock()

	close(w.done)
	unix.Close(w.closeWrite)

	for _, f := range files {
		f.Close()
	}

	return unix.Close(w.kq)
}
