// Package kubernetes implements the metadata enricher collaborator: a
// post-processor over a collector's record stream that recognizes
// Kubernetes container log filenames and merges in pod labels looked up
// from the cluster.
package kubernetes

import (
	"path/filepath"

	k8slabels "k8s.io/apimachinery/pkg/labels"

	"github.com/mutagen-io/monitoring/pkg/logging"
	"github.com/mutagen-io/monitoring/pkg/record"
)

// PodLookup resolves the labels attached to a pod. Implementations
// typically call the Kubernetes API server, keyed by (namespace, name).
type PodLookup interface {
	Labels(namespace, podName string) (k8slabels.Set, error)
}

// Source is the subset of Collector's API the enricher wraps.
type Source interface {
	Next() (record.LogRecord, error)
}

// Enricher wraps a record source, replacing the "path" metadata label
// with parsed pod/namespace/container fields and merged pod labels for
// every record whose path matches the Kubernetes container log naming
// convention. Non-matching records pass through unchanged.
//
// A failed pod lookup is logged and the record passes through with its
// parsed identity fields but no merged labels, rather than aborting the
// stream — a single missing or unreachable pod record should not halt
// ingestion for every other container on the node.
type Enricher struct {
	source Source
	lookup PodLookup
	logger *logging.Logger
}

// NewEnricher constructs an Enricher wrapping source.
func NewEnricher(source Source, lookup PodLookup, logger *logging.Logger) *Enricher {
	return &Enricher{source: source, lookup: lookup, logger: logger}
}

// Next produces the next enriched record.
func (e *Enricher) Next() (record.LogRecord, error) {
	r, err := e.source.Next()
	if err != nil {
		return record.LogRecord{}, err
	}

	path, ok := r.Metadata["path"]
	if !ok {
		return r, nil
	}

	parsed, ok := parsePodLogFilename(filepath.Base(path))
	if !ok {
		return r, nil
	}

	metadata := r.Metadata.Clone()
	delete(metadata, "path")
	metadata["pod_name"] = parsed.podName
	metadata["namespace"] = parsed.namespace
	metadata["container_name"] = parsed.containerName
	metadata["container_id"] = parsed.containerID

	labels, err := e.lookup.Labels(parsed.namespace, parsed.podName)
	if err != nil {
		e.logger.Warnf("pod label lookup failed for %s/%s: %v", parsed.namespace, parsed.podName, err)
		return record.LogRecord{Line: r.Line, Metadata: metadata}, nil
	}
	for k, v := range labels {
		metadata[k] = v
	}

	return record.LogRecord{Line: r.Line, Metadata: metadata}, nil
}
