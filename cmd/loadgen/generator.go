package main

import (
	"fmt"
	"sync"
	"time"

	"github.com/mutagen-io/monitoring/pkg/logstore"
	"github.com/mutagen-io/monitoring/pkg/record"
)

// runGenerator writes synthetic records into store for the given
// duration, spreading totalEvents across streamCount streams according
// to dist. Each stream ticks at its own fixed rate so the aggregate rate
// approximates avgEventsPerSecond * streamCount.
func runGenerator(store *logstore.Store, duration time.Duration, streamCount, totalEvents uint32, dist distribution) error {
	perStream := dist.distribute(totalEvents, streamCount)

	var wg sync.WaitGroup
	errs := make(chan error, len(perStream))

	for i, count := range perStream {
		if count == 0 {
			continue
		}
		wg.Add(1)
		go func(stream int, count uint32) {
			defer wg.Done()
			if err := runStream(store, stream, duration, count); err != nil {
				errs <- err
			}
		}(i, count)
	}

	wg.Wait()
	close(errs)

	for err := range errs {
		return err
	}
	return nil
}

// runStream emits count events for one stream, evenly spaced across
// duration.
func runStream(store *logstore.Store, stream int, duration time.Duration, count uint32) error {
	eventsPerSecond := float64(count) / duration.Seconds()
	interval := time.Duration(float64(time.Second) / eventsPerSecond)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for i := uint32(0); i < count; i++ {
		<-ticker.C
		r := record.LogRecord{
			Line: fmt.Sprintf("synthetic event %d from stream %d", i, stream),
			Metadata: record.Metadata{
				"stream": fmt.Sprintf("%d", stream),
				"source": "loadgen",
			},
		}
		if err := store.Write(r); err != nil {
			return fmt.Errorf("unable to write synthetic event: %w", err)
		}
	}

	return nil
}
