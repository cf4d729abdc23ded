package must

import (
	"io"
	"os"

	"github.com/mutagen-io/monitoring/pkg/logging"
)

// Close closes c, logging a warning if the close fails. It's used at call
// sites where an error has already occurred and a secondary close failure
// wouldn't change the outcome.
func Close(c io.Closer, logger *logging.Logger) {
	if err := c.Close(); err != nil {
		logger.Warnf("unable to close: %s", err.Error())
	}
}

// OSRemove removes the named file, logging a warning on failure.
func OSRemove(name string, logger *logging.Logger) {
	if err := os.Remove(name); err != nil {
		logger.Warnf("unable to remove '%s': %s", name, err.Error())
	}
}

// IOCopy copies from src to dst, logging a warning on failure.
func IOCopy(dst io.Writer, src io.Reader, logger *logging.Logger) {
	if _, err := io.Copy(dst, src); err != nil {
		logger.Warnf("unable to copy from source to destination: %s", err.Error())
	}
}

// Encode invokes e's Encode method, logging a warning on failure.
func Encode(e interface {
	Encode(value any) error
}, value any, logger *logging.Logger) {
	if err := e.Encode(value); err != nil {
		logger.Warnf("unable to encode %v: %s", value, err.Error())
	}
}
