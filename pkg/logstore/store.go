// Package logstore implements an append-only, content-addressed store for
// log lines. Lines are sharded by a fingerprint of their metadata, with
// one data file and one metadata sidecar per fingerprint, and an
// in-memory inverted index over (label, value) pairs rebuilt from the
// metadata sidecars on open.
package logstore

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/mutagen-io/monitoring/pkg/filesystem"
	"github.com/mutagen-io/monitoring/pkg/logging"
	"github.com/mutagen-io/monitoring/pkg/record"
)

// labelKey is the inverted index key: one (label name, label value) pair.
type labelKey struct {
	name  string
	value string
}

// Store is an append-only shard-per-fingerprint log store with an
// in-memory inverted index over metadata. A single process must own the
// store's directory; no lock file is used.
//
// Locking is coarse by design: one exclusive lock serializes every read
// and write. This sacrifices read
// concurrency in exchange for never needing a finer per-shard protocol.
type Store struct {
	directory string
	logger    *logging.Logger

	mu     sync.Mutex
	shards map[string]*shard
	index  map[labelKey]map[string]struct{}
}

// Open opens the store rooted at directory, which must already exist. It
// enumerates the directory's contents, opens every shard's data file, and
// rebuilds the inverted index from the metadata sidecars.
func Open(directory string, logger *logging.Logger) (*Store, error) {
	entries, err := os.ReadDir(directory)
	if err != nil {
		return nil, fmt.Errorf("unable to read store directory: %w", err)
	}

	s := &Store{
		directory: directory,
		logger:    logger,
		shards:    make(map[string]*shard),
		index:     make(map[labelKey]map[string]struct{}),
	}

	fingerprints := make(map[string]bool)
	for _, entry := range entries {
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("unable to stat directory entry: %w", err)
		}
		path := entry.Name()
		if !info.Mode().IsRegular() {
			return nil, &ErrInvalidDataFile{Path: path}
		}

		stem, ext, ok := splitExtension(path)
		if !ok || (ext != dataFileExtension && ext != metadataFileExtension) {
			return nil, &ErrInvalidDataFile{Path: path}
		}
		if stem == "" || !utf8.ValidString(stem) {
			return nil, &ErrInvalidDataFileName{Path: path}
		}
		fingerprints[stem] = true
	}

	for fingerprint := range fingerprints {
		sh, err := openShard(directory, fingerprint)
		if err != nil {
			return nil, err
		}
		s.shards[fingerprint] = sh

		metadata, err := readMetadataFile(directory, fingerprint)
		if err != nil {
			return nil, err
		}
		recomputed := Fingerprint(metadata)
		if recomputed != fingerprint {
			return nil, &ErrCorruptShard{
				Fingerprint: fingerprint,
				Err:         fmt.Errorf("metadata recomputes to a different fingerprint: %s", recomputed),
			}
		}
		for k, v := range metadata {
			s.addToIndex(labelKey{name: k, value: v}, fingerprint)
		}
	}

	return s, nil
}

func splitExtension(name string) (stem, ext string, ok bool) {
	idx := strings.LastIndexByte(name, '.')
	if idx < 0 || idx == len(name)-1 {
		return "", "", false
	}
	return name[:idx], name[idx+1:], true
}

func readMetadataFile(directory, fingerprint string) (record.Metadata, error) {
	data, err := os.ReadFile(metadataFilePath(directory, fingerprint))
	if err != nil {
		return nil, fmt.Errorf("unable to read metadata file: %w", err)
	}
	var metadata record.Metadata
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, &ErrCorruptShard{Fingerprint: fingerprint, Err: err}
	}
	return metadata, nil
}

func (s *Store) addToIndex(key labelKey, fingerprint string) {
	set, ok := s.index[key]
	if !ok {
		set = make(map[string]struct{})
		s.index[key] = set
	}
	set[fingerprint] = struct{}{}
}

// Write appends one record to the store, creating its shard and metadata
// sidecar on first use and updating the inverted index for every (label,
// value) pair in its metadata.
func (s *Store) Write(r record.LogRecord) error {
	if strings.IndexByte(r.Line, separatorByte) != -1 {
		return ErrLineContainsSeparator
	}

	fingerprint := Fingerprint(r.Metadata)

	s.mu.Lock()
	defer s.mu.Unlock()

	sh, ok := s.shards[fingerprint]
	if !ok {
		if err := s.writeMetadataFile(fingerprint, r.Metadata); err != nil {
			return err
		}
		var err error
		sh, err = createShard(s.directory, fingerprint)
		if err != nil {
			return err
		}
		s.shards[fingerprint] = sh
	}

	if err := sh.append(r.Line); err != nil {
		return err
	}

	for k, v := range r.Metadata {
		s.addToIndex(labelKey{name: k, value: v}, fingerprint)
	}

	return nil
}

// writeMetadataFile writes a fingerprint's metadata sidecar atomically (via
// a temporary file swapped into place with a rename), so a crash mid-write
// never leaves a truncated sidecar that Open would later reject as a
// corrupt shard.
func (s *Store) writeMetadataFile(fingerprint string, metadata record.Metadata) error {
	data, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("unable to marshal metadata: %w", err)
	}
	if err := filesystem.WriteFileAtomic(metadataFilePath(s.directory, fingerprint), data, 0600, s.logger); err != nil {
		return fmt.Errorf("unable to write metadata file: %w", err)
	}
	return nil
}

// Query returns every line whose metadata contains (label, value), or
// (nil, false) if no shard is indexed under that pair. Within a shard,
// lines are returned in insertion order; ordering across shards is
// unspecified.
func (s *Store) Query(label, value string) ([]string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.index[labelKey{name: label, value: value}]
	if !ok {
		return nil, false, nil
	}

	lines := []string{}
	for fingerprint := range set {
		sh, ok := s.shards[fingerprint]
		if !ok {
			return nil, false, fmt.Errorf("index references unknown shard %s", fingerprint)
		}
		shardLines, err := sh.readLines()
		if err != nil {
			return nil, false, err
		}
		lines = append(lines, shardLines...)
	}

	return lines, true, nil
}

// Close closes every shard's open data file handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for _, sh := range s.shards {
		if err := sh.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
