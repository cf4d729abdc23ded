// Package ingest implements the single-threaded loop that drains a
// collector's record stream and writes each record into a log store
// under an exclusive write lock.
package ingest

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/mutagen-io/monitoring/pkg/contextutil"
	"github.com/mutagen-io/monitoring/pkg/logging"
	"github.com/mutagen-io/monitoring/pkg/logstore"
	"github.com/mutagen-io/monitoring/pkg/record"
)

// rateLogInterval is how many records are ingested between periodic
// progress log lines.
const rateLogInterval = 10000

// Source is the subset of Collector's API the ingestion loop depends on.
type Source interface {
	Next() (record.LogRecord, error)
}

// Run drains source one record at a time, writing each into store. It
// terminates when ctx is cancelled (returning nil, a clean shutdown) or
// when either side produces the first error; there is no internal
// retry or restart, matching the store's and the collector's own
// recovery policy of propagating to a process supervisor.
func Run(ctx context.Context, source Source, store *logstore.Store, logger *logging.Logger) error {
	var count uint64
	for {
		if contextutil.IsCancelled(ctx) {
			return nil
		}

		r, err := source.Next()
		if err != nil {
			return fmt.Errorf("collector stream ended: %w", err)
		}

		if err := store.Write(r); err != nil {
			return fmt.Errorf("unable to write record: %w", err)
		}

		count++
		if count%rateLogInterval == 0 {
			logger.Debugf("ingested %s records", humanize.Comma(int64(count)))
		}
	}
}
