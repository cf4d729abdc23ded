//go:build linux || freebsd || openbsd || netbsd || dragonfly || darwin

package watch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mutagen-io/monitoring/pkg/logging"
)

// TestNativeWatcherDirectoryAndFileEvents exercises the platform's real
// Watcher backend (inotify or kqueue) against an actual directory, mirroring
// the lowest-common-denominator guarantee the mock backend also provides.
func TestNativeWatcherDirectoryAndFileEvents(t *testing.T) {
	directory := t.TempDir()

	w, err := New(logging.NewRootLogger(logging.LevelError))
	if err != nil {
		t.Fatal("unable to create watcher:", err)
	}
	defer w.Close()

	dirDescriptor, err := w.WatchDirectory(directory)
	if err != nil {
		t.Fatal("unable to watch directory:", err)
	}

	filePath := filepath.Join(directory, "pod_default_app_abc123.log")
	if err := os.WriteFile(filePath, []byte("first line\n"), 0600); err != nil {
		t.Fatal("unable to create test file:", err)
	}
	verifyWatchEvent(t, w, dirDescriptor)

	fileDescriptor, err := w.WatchFile(filePath)
	if err != nil {
		t.Fatal("unable to watch file:", err)
	}

	handle, err := os.OpenFile(filePath, os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		t.Fatal("unable to open test file for append:", err)
	}
	if _, err := handle.WriteString("second line\n"); err != nil {
		t.Fatal("unable to append to test file:", err)
	}
	handle.Close()

	verifyWatchEvent(t, w, fileDescriptor)
}
