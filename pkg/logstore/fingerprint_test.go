package logstore

import (
	"strings"
	"testing"

	"github.com/mutagen-io/monitoring/pkg/record"
)

func TestFingerprintOrderIndependent(t *testing.T) {
	a := record.Metadata{"a": "1", "b": "2"}
	b := record.Metadata{"b": "2", "a": "1"}
	if Fingerprint(a) != Fingerprint(b) {
		t.Fatal("fingerprint depends on map iteration order")
	}
}

func TestFingerprintEmptyMetadataIsAllZero(t *testing.T) {
	got := Fingerprint(record.Metadata{})
	want := strings.Repeat("0", 32) // MD5 of no pairs XOR-folds to all zero bytes
	if got != want {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestFingerprintDiffersOnDifferentMetadata(t *testing.T) {
	a := Fingerprint(record.Metadata{"a": "1"})
	b := Fingerprint(record.Metadata{"a": "2"})
	if a == b {
		t.Fatal("expected different metadata to produce different fingerprints")
	}
}
