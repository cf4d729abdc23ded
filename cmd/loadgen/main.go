// Command loadgen writes synthetic log records directly against a log
// store, bypassing the directory collector, for benchmarking the store
// under a configurable write rate.
package main

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/mutagen-io/monitoring/cmd"
	"github.com/mutagen-io/monitoring/pkg/logging"
	"github.com/mutagen-io/monitoring/pkg/logstore"
)

var rootConfiguration struct {
	dataDirectory      string
	avgEventsPerSecond uint32
	distributionName   string
	seconds            uint32
	streams            uint32
}

func rootMain(_ *cobra.Command, _ []string) {
	dist := distribution(rootConfiguration.distributionName)
	if dist != distributionUniform && dist != distributionLinear {
		cmd.Fatal(errors.Errorf("unrecognized distribution: %s", rootConfiguration.distributionName))
	}

	logger := logging.NewRootLogger(logging.LevelInfo)
	store, err := logstore.Open(rootConfiguration.dataDirectory, logger)
	if err != nil {
		cmd.Fatal(errors.Wrap(err, "unable to open log store"))
	}
	defer store.Close()

	totalEvents := rootConfiguration.avgEventsPerSecond * rootConfiguration.streams * rootConfiguration.seconds
	duration := time.Duration(rootConfiguration.seconds) * time.Second

	logger.Printf("generating %d events across %d streams over %s using %s distribution",
		totalEvents, rootConfiguration.streams, duration, dist)

	if err := runGenerator(store, duration, rootConfiguration.streams, totalEvents, dist); err != nil {
		cmd.Fatal(errors.Wrap(err, "load generation failed"))
	}
}

var rootCommand = &cobra.Command{
	Use:   "loadgen",
	Short: "loadgen writes synthetic records directly against a log store",
	Run:   rootMain,
}

func init() {
	flags := rootCommand.Flags()
	flags.StringVar(&rootConfiguration.dataDirectory, "database", "", "Path to the log store's data directory")
	flags.Uint32Var(&rootConfiguration.avgEventsPerSecond, "avg-events-per-second", 10, "Average events per second per stream")
	flags.StringVar(&rootConfiguration.distributionName, "distribution", "uniform", "Event distribution across streams (uniform or linear)")
	flags.Uint32Var(&rootConfiguration.seconds, "seconds", 10, "Duration to run for, in seconds")
	flags.Uint32Var(&rootConfiguration.streams, "streams", 1, "Number of concurrent streams")
	rootCommand.MarkFlagRequired("database")
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		os.Exit(1)
	}
}
