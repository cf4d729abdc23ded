//go:build linux

package watch

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/golang/groupcache/lru"
	"golang.org/x/sys/unix"

	"github.com/mutagen-io/monitoring/pkg/logging"
)

const (
	// inotifyEventHeaderSize is the size, in bytes, of the fixed portion of
	// a raw inotify_event structure (wd, mask, cookie, len).
	inotifyEventHeaderSize = unix.SizeofInotifyEvent

	// inotifyReadBufferSize is the size of the buffer used for each read
	// from the inotify file descriptor. It must be large enough to hold at
	// least one maximally-sized event (header plus NAME_MAX+1 name bytes).
	inotifyReadBufferSize = 64 * 1024

	// defaultMaximumWatches bounds the number of live inotify watches this
	// watcher will hold at once, evicting the earliest-added watch once the
	// bound is exceeded (watching an already-watched path does not refresh
	// its position). This keeps a collector that has
	// seen many historical files from exhausting the kernel's per-instance
	// inotify watch limit.
	defaultMaximumWatches = 8192
)

// New creates a new Linux inotify-based watcher.
func New(logger *logging.Logger) (Watcher, error) {
	fd, err := unix.InotifyInit1(unix.IN_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize inotify: %w", err)
	}

	w := &inotifyWatcher{
		fd:      fd,
		logger:  logger,
		wdPaths: make(map[int32]string),
		events:  make(chan Event, 512),
		errs:    make(chan error, 1),
		done:    make(chan struct{}),
	}
	w.evictor = lru.New(defaultMaximumWatches)
	w.evictor.OnEvicted = func(key lru.Key, _ interface{}) {
		path, ok := key.(string)
		if !ok {
			return
		}
		w.mu.Lock()
		wd, watched := w.paths[path]
		if watched {
			delete(w.paths, path)
			delete(w.wdPaths, wd)
		}
		w.mu.Unlock()
		if watched {
			if _, err := unix.InotifyRmWatch(w.fd, uint32(wd)); err != nil {
				logger.Warnf("unable to remove evicted watch for %s: %v", path, err)
			}
		}
	}
	w.paths = make(map[string]int32)

	go w.run()

	return w, nil
}

// inotifyWatcher implements Watcher using raw inotify syscalls, per
// spec's requirement of IN_CREATE|IN_DONT_FOLLOW on directories and
// IN_MODIFY|IN_DONT_FOLLOW on files, with the kernel-assigned watch
// descriptor as the Descriptor value.
type inotifyWatcher struct {
	fd     int
	logger *logging.Logger

	mu      sync.Mutex
	paths   map[string]int32
	wdPaths map[int32]string
	evictor *lru.Cache

	events chan Event
	errs   chan error
	done   chan struct{}
	closed bool
}

func (w *inotifyWatcher) addWatch(path string, mask uint32) (Descriptor, error) {
	w.mu.Lock()
	if existing, ok := w.paths[path]; ok {
		w.mu.Unlock()
		return int32(existing), nil
	}
	w.mu.Unlock()

	wd, err := unix.InotifyAddWatch(w.fd, path, mask)
	if err != nil {
		return nil, fmt.Errorf("unable to add inotify watch: %w", err)
	}

	w.mu.Lock()
	w.paths[path] = int32(wd)
	w.wdPaths[int32(wd)] = path
	w.mu.Unlock()
	w.evictor.Add(path, struct{}{})

	return int32(wd), nil
}

// WatchDirectory implements Watcher.WatchDirectory.
func (w *inotifyWatcher) WatchDirectory(path string) (Descriptor, error) {
	return w.addWatch(path, unix.IN_CREATE|unix.IN_DONT_FOLLOW)
}

// WatchFile implements Watcher.WatchFile.
func (w *inotifyWatcher) WatchFile(path string) (Descriptor, error) {
	return w.addWatch(path, unix.IN_MODIFY|unix.IN_DONT_FOLLOW)
}

// run is the background read loop that parses raw inotify events from the
// kernel and forwards descriptor-tagged events to the events channel.
func (w *inotifyWatcher) run() {
	buffer := make([]byte, inotifyReadBufferSize)
	for {
		n, err := unix.Read(w.fd, buffer)
		if err != nil {
			select {
			case <-w.done:
				return
			default:
			}
			select {
			case w.errs <- fmt.Errorf("inotify read failed: %w", err):
			default:
			}
			return
		}
		if n <= 0 {
			continue
		}

		offset := 0
		for offset+inotifyEventHeaderSize <= n {
			raw := (*unix.InotifyEvent)(unsafe.Pointer(&buffer[offset]))
			wd := raw.Wd
			nameLen := int(raw.Len)
			offset += inotifyEventHeaderSize + nameLen

			w.mu.Lock()
			_, known := w.wdPaths[wd]
			w.mu.Unlock()
			if !known {
				w.logger.Debugf("dropping event for unknown watch descriptor %d", wd)
				continue
			}

			select {
			case w.events <- Event{Descriptor: wd}:
			case <-w.done:
				return
			}
		}
	}
}

// ReadEvents implements Watcher.ReadEvents.
func (w *inotifyWatcher) ReadEvents() ([]Event, error) {
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
func (w *inotifyWatcher) ReadEventsBlocking() ([]Event, error) {
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
func (w *inotifyWatcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	w.mu.Unlock()

	close(w.done)
	return unix.Close(w.fd)
}
