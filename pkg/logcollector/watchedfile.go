package logcollector

import (
	"bytes"
	"io"
	"os"

	"github.com/mutagen-io/monitoring/pkg/watch"
)

// drainReadChunkSize is the size of each read performed while draining
// newly available bytes from a tailed file.
const drainReadChunkSize = 64 * 1024

// watchedFile is a live handle onto one tailed file: the canonical path
// used for watching and opening, the display paths it is externally known
// by, an open read handle with the offset of the next unread byte (reads
// use ReadAt at that offset, not the handle's own file offset), and a
// partial line carried between drain calls.
type watchedFile struct {
	canonicalPath string
	displayPaths  []string
	descriptor    watch.Descriptor

	handle   *os.File
	position int64
	buffer   []byte
}

// addDisplayPath appends a new alias to the display-path list if it is
// not already present.
func (w *watchedFile) addDisplayPath(path string) {
	for _, existing := range w.displayPaths {
		if existing == path {
			return
		}
	}
	w.displayPaths = append(w.displayPaths, path)
}

// reseek resets the read position to the start of the file and clears any
// partial line, as required after a truncation.
func (w *watchedFile) reseek() error {
	if _, err := w.handle.Seek(0, os.SEEK_SET); err != nil {
		return err
	}
	w.position = 0
	w.buffer = nil
	return nil
}

// drainLines reads every byte available past the file's current read
// position and splits off every complete (newline-terminated) line. A
// trailing partial line is retained in the buffer for the next call.
func (w *watchedFile) drainLines() ([]string, error) {
	chunk := make([]byte, drainReadChunkSize)
	var lines []string

	for {
		n, err := w.handle.ReadAt(chunk, w.position)
		if n > 0 {
			w.position += int64(n)
			w.buffer = append(w.buffer, chunk[:n]...)

			for {
				idx := bytes.IndexByte(w.buffer, '\n')
				if idx < 0 {
					break
				}
				lines = append(lines, string(w.buffer[:idx]))
				w.buffer = w.buffer[idx+1:]
			}
		}
		if err != nil {
			if err == io.EOF {
				break
			}
			return lines, err
		}
	}

	return lines, nil
}
