package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/mutagen-io/monitoring/cmd"
	"github.com/mutagen-io/monitoring/pkg/configuration"
	"github.com/mutagen-io/monitoring/pkg/httpapi"
	"github.com/mutagen-io/monitoring/pkg/ingest"
	"github.com/mutagen-io/monitoring/pkg/kubernetes"
	"github.com/mutagen-io/monitoring/pkg/logcollector"
	"github.com/mutagen-io/monitoring/pkg/logging"
	"github.com/mutagen-io/monitoring/pkg/logstore"
	"github.com/mutagen-io/monitoring/pkg/record"
	"github.com/mutagen-io/monitoring/pkg/watch"
)

var rootConfiguration struct {
	// configurationPath is the path to the YAML configuration file.
	configurationPath string
	// help indicates whether or not to show help information and exit.
	help bool
	// enrichKubernetes enables the pod metadata enricher.
	enrichKubernetes bool
}

// ingestSource is the subset of ingest.Source's dependency shared by a
// plain collector and a Kubernetes-enriched collector.
type ingestSource interface {
	Next() (record.LogRecord, error)
}

func rootMain(command *cobra.Command, _ []string) {
	if rootConfiguration.help {
		command.Help()
		return
	}

	path := rootConfiguration.configurationPath
	if path == "" {
		defaultPath, err := configuration.DefaultConfigurationPath()
		if err != nil {
			cmd.Fatal(errors.Wrap(err, "unable to compute default configuration path"))
		}
		path = defaultPath
	}

	config, err := configuration.Load(path)
	if err != nil {
		cmd.Fatal(errors.Wrap(err, "unable to load configuration"))
	}
	if err := config.Validate(); err != nil {
		cmd.Fatal(errors.Wrap(err, "invalid configuration"))
	}

	logger := logging.NewRootLogger(config.Level())

	watcher, err := watch.New(logger.Sublogger("watch"))
	if err != nil {
		cmd.Fatal(errors.Wrap(err, "unable to create watcher"))
	}

	collector, err := logcollector.Open(config.RootPath, watcher, logger.Sublogger("collector"))
	if err != nil {
		cmd.Fatal(errors.Wrap(err, "unable to start directory collector"))
	}
	defer collector.Close()

	store, err := logstore.Open(config.DataDirectory, logger.Sublogger("store"))
	if err != nil {
		cmd.Fatal(errors.Wrap(err, "unable to open log store"))
	}
	defer store.Close()

	var source ingestSource = collector
	if rootConfiguration.enrichKubernetes {
		apiClient, err := kubernetes.NewInClusterAPIClient()
		if err != nil {
			cmd.Fatal(errors.Wrap(err, "unable to create Kubernetes API client"))
		}
		source = kubernetes.NewEnricher(collector, apiClient, logger.Sublogger("kubernetes"))
	}

	server := httpapi.NewServer(config.ListenAddr, store, logger.Sublogger("api"))

	ingestCtx, stopIngest := context.WithCancel(context.Background())
	defer stopIngest()

	ingestDone := make(chan error, 1)
	go func() {
		ingestDone <- ingest.Run(ingestCtx, source, store, logger.Sublogger("ingest"))
	}()

	serveDone := make(chan error, 1)
	go func() {
		serveDone <- httpapi.Serve(server)
	}()

	signalReceived := make(chan os.Signal, 1)
	signal.Notify(signalReceived, cmd.TerminationSignals...)

	select {
	case <-signalReceived:
		logger.Printf("received termination signal, shutting down")
		stopIngest()
		ctx, cancel := context.WithTimeout(context.Background(), httpapi.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Warnf("error during HTTP server shutdown: %v", err)
		}
	case err := <-ingestDone:
		cmd.Fatal(errors.Wrap(err, "ingestion loop terminated"))
	case err := <-serveDone:
		if err != nil {
			cmd.Fatal(errors.Wrap(err, "HTTP server terminated"))
		}
	}
}

var rootCommand = &cobra.Command{
	Use:   "monitor",
	Short: "monitor tails a directory of container logs into a queryable store",
	Run:   rootMain,
}

func init() {
	flags := rootCommand.Flags()
	flags.BoolVarP(&rootConfiguration.help, "help", "h", false, "Show help information")
	flags.StringVarP(&rootConfiguration.configurationPath, "config", "c", "", "Path to the YAML configuration file")
	flags.BoolVar(&rootConfiguration.enrichKubernetes, "kubernetes-enrich", false, "Enrich records with Kubernetes pod labels")
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		os.Exit(1)
	}
}
