package logstore

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"unicode/utf8"
)

// separatorByte is the sentinel value delimiting lines within a shard's
// data file. It is never permitted to appear inside a stored line.
const separatorByte = 0x93

const (
	dataFileExtension     = "dat"
	metadataFileExtension = "json"
)

// shard is the live handle onto one fingerprint's on-disk data file. It is
// opened lazily on first write and then kept open for the lifetime of the
// store.
type shard struct {
	fingerprint string
	file        *os.File
	empty       bool
}

func dataFilePath(directory, fingerprint string) string {
	return filepath.Join(directory, fingerprint+"."+dataFileExtension)
}

func metadataFilePath(directory, fingerprint string) string {
	return filepath.Join(directory, fingerprint+"."+metadataFileExtension)
}

// openShard opens an already-existing shard data file for append and read.
func openShard(directory, fingerprint string) (*shard, error) {
	file, err := os.OpenFile(dataFilePath(directory, fingerprint), os.O_RDWR|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("unable to open shard data file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("unable to stat shard data file: %w", err)
	}
	return &shard{fingerprint: fingerprint, file: file, empty: info.Size() == 0}, nil
}

// createShard creates a new, empty shard data file.
func createShard(directory, fingerprint string) (*shard, error) {
	file, err := os.OpenFile(dataFilePath(directory, fingerprint), os.O_RDWR|os.O_CREATE|os.O_EXCL|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("unable to create shard data file: %w", err)
	}
	return &shard{fingerprint: fingerprint, file: file, empty: true}, nil
}

// append writes line to the shard, preceding it with the separator byte
// unless the shard is still empty (the first record in a shard carries no
// leading separator).
func (s *shard) append(line string) error {
	if bytes.IndexByte([]byte(line), separatorByte) != -1 {
		return ErrLineContainsSeparator
	}

	var err error
	if s.empty {
		_, err = s.file.WriteString(line)
	} else {
		_, err = s.file.Write(append([]byte{separatorByte}, line...))
	}
	if err != nil {
		return fmt.Errorf("unable to append to shard data file: %w", err)
	}
	s.empty = false
	return nil
}

// readLines reads the shard's entire data file from the start and splits
// it into lines on the separator byte, validating UTF-8 along the way.
func (s *shard) readLines() ([]string, error) {
	if _, err := s.file.Seek(0, os.SEEK_SET); err != nil {
		return nil, fmt.Errorf("unable to seek shard data file: %w", err)
	}

	data, err := io.ReadAll(s.file)
	if err != nil {
		return nil, fmt.Errorf("unable to read shard data file: %w", err)
	}
	if len(data) == 0 {
		return []string{}, nil
	}

	lines := make([]string, 0, bytes.Count(data, []byte{separatorByte})+1)
	for _, run := range bytes.Split(data, []byte{separatorByte}) {
		if !utf8.Valid(run) {
			return nil, &ErrCorruptShard{
				Fingerprint: s.fingerprint,
				Err:         fmt.Errorf("invalid UTF-8 in shard data"),
			}
		}
		lines = append(lines, string(run))
	}
	return lines, nil
}

func (s *shard) close() error {
	return s.file.Close()
}
