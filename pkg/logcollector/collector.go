// Package logcollector tails every file beneath a root directory,
// converting watcher events into a lazy stream of log records annotated
// with the display path each line was read through. It handles file
// creation, appends, truncation, and symlinks both internal and external
// to the watched root.
package logcollector

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mutagen-io/monitoring/pkg/logging"
	"github.com/mutagen-io/monitoring/pkg/record"
	"github.com/mutagen-io/monitoring/pkg/watch"
)

// Collector produces a lazy, error-fallible sequence of LogRecords from
// every file beneath a root directory. It is not safe for concurrent use
// from more than one goroutine.
type Collector struct {
	root           string
	watcher        watch.Watcher
	rootDescriptor watch.Descriptor
	logger         *logging.Logger

	// watchedPaths maps every known display path to the descriptor of the
	// watchedFile it resolves to.
	watchedPaths map[string]watch.Descriptor
	// files maps a descriptor to its watchedFile.
	files map[watch.Descriptor]*watchedFile
	// canonicalDescriptor maps a canonical path to its descriptor, so a
	// second display path resolving to an already-tailed file is detected
	// without reopening it.
	canonicalDescriptor map[string]watch.Descriptor

	pending []record.LogRecord
}

// Open initializes a collector rooted at root, registering a watch on the
// root directory and treating every existing entry as a newly created
// file (tailing from EOF, not from the beginning).
func Open(root string, watcher watch.Watcher, logger *logging.Logger) (*Collector, error) {
	canonicalRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		return nil, fmt.Errorf("unable to canonicalize root path: %w", err)
	}

	rootDescriptor, err := watcher.WatchDirectory(canonicalRoot)
	if err != nil {
		return nil, fmt.Errorf("unable to watch root directory: %w", err)
	}

	c := &Collector{
		root:                canonicalRoot,
		watcher:             watcher,
		rootDescriptor:      rootDescriptor,
		logger:              logger,
		watchedPaths:        make(map[string]watch.Descriptor),
		files:               make(map[watch.Descriptor]*watchedFile),
		canonicalDescriptor: make(map[string]watch.Descriptor),
	}

	entries, err := os.ReadDir(canonicalRoot)
	if err != nil {
		return nil, fmt.Errorf("unable to enumerate root directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		displayPath := filepath.Join(canonicalRoot, entry.Name())
		if err := c.handleCreate(displayPath); err != nil {
			logger.Warnf("unable to tail existing entry %s: %v", displayPath, err)
		}
	}

	return c, nil
}

// isUnderRoot reports whether path lies at or beneath root.
func isUnderRoot(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// handleCreate implements the symlink-aware create-handling rules: a
// display path whose canonical target is already tailed is added as an
// alias rather than reopened; a display path whose canonical target lies
// inside the root is additionally registered as a second display path.
func (c *Collector) handleCreate(displayPath string) error {
	if _, known := c.watchedPaths[displayPath]; known {
		return nil
	}

	canonical, err := filepath.EvalSymlinks(displayPath)
	if err != nil {
		return fmt.Errorf("unable to resolve canonical path: %w", err)
	}

	if descriptor, ok := c.canonicalDescriptor[canonical]; ok {
		wf := c.files[descriptor]
		wf.addDisplayPath(displayPath)
		c.watchedPaths[displayPath] = descriptor
		return nil
	}

	handle, err := os.Open(canonical)
	if err != nil {
		return fmt.Errorf("unable to open file for tailing: %w", err)
	}

	info, err := handle.Stat()
	if err != nil {
		handle.Close()
		return fmt.Errorf("unable to stat file for tailing: %w", err)
	}
	if !info.Mode().IsRegular() {
		handle.Close()
		return nil
	}

	descriptor, err := c.watcher.WatchFile(canonical)
	if err != nil {
		handle.Close()
		return fmt.Errorf("unable to watch file: %w", err)
	}

	wf := &watchedFile{
		canonicalPath: canonical,
		descriptor:    descriptor,
		handle:        handle,
		position:      info.Size(),
	}
	wf.addDisplayPath(displayPath)
	if canonical != displayPath && isUnderRoot(c.root, canonical) {
		wf.addDisplayPath(canonical)
		c.watchedPaths[canonical] = descriptor
	}

	c.watchedPaths[displayPath] = descriptor
	c.files[descriptor] = wf
	c.canonicalDescriptor[canonical] = descriptor

	return nil
}

// rescanRoot enumerates the root directory and returns the display paths
// of every entry not yet in the watched-paths table.
func (c *Collector) rescanRoot() ([]string, error) {
	entries, err := os.ReadDir(c.root)
	if err != nil {
		return nil, fmt.Errorf("unable to rescan root directory: %w", err)
	}

	var fresh []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		displayPath := filepath.Join(c.root, entry.Name())
		if _, known := c.watchedPaths[displayPath]; !known {
			fresh = append(fresh, displayPath)
		}
	}
	return fresh, nil
}

// runIteration performs one iteration of the event loop: it blocks for
// events, translates them into logical actions, and appends every
// resulting record to c.pending.
func (c *Collector) runIteration() error {
	events, err := c.watcher.ReadEventsBlocking()
	if err != nil {
		return fmt.Errorf("watcher failed: %w", err)
	}

	var creates []string
	seenCreate := make(map[string]bool)
	toDrain := make(map[watch.Descriptor]*watchedFile)

	for _, event := range events {
		if event.Descriptor == c.rootDescriptor {
			fresh, err := c.rescanRoot()
			if err != nil {
				return err
			}
			for _, path := range fresh {
				if !seenCreate[path] {
					seenCreate[path] = true
					creates = append(creates, path)
				}
			}
			continue
		}

		wf, ok := c.files[event.Descriptor]
		if !ok {
			c.logger.Warnf("dropping event for unrecognized descriptor %v", event.Descriptor)
			continue
		}

		info, err := wf.handle.Stat()
		if err != nil {
			return fmt.Errorf("unable to stat tailed file: %w", err)
		}

		if wf.position <= info.Size() {
			toDrain[event.Descriptor] = wf
		} else {
			if err := wf.reseek(); err != nil {
				return fmt.Errorf("unable to reseek truncated file: %w", err)
			}
			toDrain[event.Descriptor] = wf
		}
	}

	// Create events are buffered until the end of the iteration so that
	// newly tailed files are opened only after every other read completes.
	for _, path := range creates {
		if err := c.handleCreate(path); err != nil {
			c.logger.Warnf("unable to handle create for %s: %v", path, err)
		}
	}

	for _, wf := range toDrain {
		lines, err := wf.drainLines()
		if err != nil {
			return fmt.Errorf("unable to drain tailed file %s: %w", wf.canonicalPath, err)
		}
		for _, line := range lines {
			for _, displayPath := range wf.displayPaths {
				c.pending = append(c.pending, record.LogRecord{
					Line:     line,
					Metadata: record.Metadata{"path": displayPath},
				})
			}
		}
	}

	// Create events are buffered until the end of the iteration so that
	// newly tailed files are opened only after every other read completes.
	for _, path := range creates {
		if err := c.handleCreate(path); err != nil {
			c.logger.Warnf("unable to handle create for %s: %v", path, err)
		}
	}

	return nil
}

// Next produces the next log record, blocking on underlying watcher
// events as needed. It returns a non-nil error only on an unrecoverable
// I/O or watcher failure; the collector is otherwise an infinite stream.
func (c *Collector) Next() (record.LogRecord, error) {
	for len(c.pending) == 0 {
		if err := c.runIteration(); err != nil {
			return record.LogRecord{}, err
		}
	}

	next := c.pending[0]
	c.pending = c.pending[1:]
	return next, nil
}

// Close releases the collector's watcher and every open tailed file
// handle.
func (c *Collector) Close() error {
	var firstErr error
	for _, wf := range c.files {
		if err := wf.handle.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := c.watcher.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
