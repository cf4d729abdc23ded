package kubernetes

import (
	"errors"
	"testing"

	k8slabels "k8s.io/apimachinery/pkg/labels"

	"github.com/google/go-cmp/cmp"

	"github.com/mutagen-io/monitoring/pkg/logging"
	"github.com/mutagen-io/monitoring/pkg/record"
)

type fixedSource struct {
	records []record.LogRecord
	index   int
}

func (f *fixedSource) Next() (record.LogRecord, error) {
	if f.index >= len(f.records) {
		return record.LogRecord{}, errors.New("exhausted")
	}
	r := f.records[f.index]
	f.index++
	return r, nil
}

type fakeLookup struct {
	labels map[string]k8slabels.Set
	err    error
}

func (f *fakeLookup) Labels(namespace, podName string) (k8slabels.Set, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.labels[namespace+"/"+podName], nil
}

func TestEnricherMatchesConventionAndMergesLabels(t *testing.T) {
	source := &fixedSource{records: []record.LogRecord{
		{Line: "hello", Metadata: record.Metadata{"path": "/var/log/pods/web_default_app_abc123.log"}},
	}}
	lookup := &fakeLookup{labels: map[string]k8slabels.Set{
		"default/web": {"team": "payments"},
	}}

	e := NewEnricher(source, lookup, logging.NewRootLogger(logging.LevelError))
	r, err := e.Next()
	if err != nil {
		t.Fatal(err)
	}

	want := record.Metadata{
		"pod_name":       "web",
		"namespace":      "default",
		"container_name": "app",
		"container_id":   "abc123",
		"team":           "payments",
	}
	if diff := cmp.Diff(want, r.Metadata); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestEnricherPassesThroughNonMatchingPath(t *testing.T) {
	source := &fixedSource{records: []record.LogRecord{
		{Line: "hello", Metadata: record.Metadata{"path": "/var/log/random.log"}},
	}}
	e := NewEnricher(source, &fakeLookup{}, logging.NewRootLogger(logging.LevelError))

	r, err := e.Next()
	if err != nil {
		t.Fatal(err)
	}
	if r.Metadata["path"] != "/var/log/random.log" {
		t.Fatalf("expected unchanged path metadata, got %v", r.Metadata)
	}
}

func TestEnricherLogsAndPassesThroughOnLookupFailure(t *testing.T) {
	source := &fixedSource{records: []record.LogRecord{
		{Line: "hello", Metadata: record.Metadata{"path": "web_default_app_abc123.log"}},
	}}
	lookup := &fakeLookup{err: errors.New("pod api unreachable")}
	e := NewEnricher(source, lookup, logging.NewRootLogger(logging.LevelError))

	r, err := e.Next()
	if err != nil {
		t.Fatal("expected lookup failure to be absorbed, not propagated:", err)
	}
	if r.Metadata["pod_name"] != "web" {
		t.Fatalf("expected parsed identity fields to survive a failed lookup, got %v", r.Metadata)
	}
	if _, hasLabels := r.Metadata["team"]; hasLabels {
		t.Fatal("expected no merged labels on lookup failure")
	}
}
