package configuration

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"

	"github.com/mutagen-io/monitoring/pkg/encoding"
	"github.com/mutagen-io/monitoring/pkg/logging"
)

// YAMLConfiguration is the on-disk YAML configuration object type,
// carrying the recognized options: the directory to tail, the directory
// the store persists shards into, the HTTP listen address, and the
// ambient log level.
type YAMLConfiguration struct {
	// RootPath is the directory the collector tails.
	RootPath string `yaml:"root_path" toml:"root_path"`
	// DataDirectory is the directory the store persists shards into. It
	// must already exist.
	DataDirectory string `yaml:"data_directory" toml:"data_directory"`
	// ListenAddr is the HTTP bind address for the read API.
	ListenAddr string `yaml:"listen_addr" toml:"listen_addr"`
	// LogLevel is the ambient logging verbosity. Defaults to "info" when
	// empty.
	LogLevel string `yaml:"log_level" toml:"log_level"`
}

// Load loads a configuration file from path, then applies any matching
// MONITOR_* overrides found in a local .env file (if present) — this
// lets a deployment override listen_addr or data_directory without
// editing the checked-in config file. Files named with a ".toml"
// extension are decoded as TOML; everything else is decoded as YAML.
func Load(path string) (*YAMLConfiguration, error) {
	result := &YAMLConfiguration{LogLevel: "info"}

	unmarshal := encoding.LoadAndUnmarshalYAML
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		unmarshal = encoding.LoadAndUnmarshalTOML
	}
	if err := unmarshal(path, result); err != nil {
		return nil, err
	}

	overrides, err := godotenv.Read()
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("unable to read .env overrides: %w", err)
	}

	if v, ok := overrides["MONITOR_ROOT_PATH"]; ok {
		result.RootPath = v
	}
	if v, ok := overrides["MONITOR_DATA_DIRECTORY"]; ok {
		result.DataDirectory = v
	}
	if v, ok := overrides["MONITOR_LISTEN_ADDR"]; ok {
		result.ListenAddr = v
	}
	if v, ok := overrides["MONITOR_LOG_LEVEL"]; ok {
		result.LogLevel = v
	}

	return result, nil
}

// Validate checks that every required option has been set.
func (c *YAMLConfiguration) Validate() error {
	if c.RootPath == "" {
		return fmt.Errorf("root_path must be set")
	}
	if c.DataDirectory == "" {
		return fmt.Errorf("data_directory must be set")
	}
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr must be set")
	}
	return nil
}

// Level parses LogLevel into a logging.Level, defaulting to LevelInfo for
// an empty or unrecognized value.
func (c *YAMLConfiguration) Level() logging.Level {
	if level, ok := logging.NameToLevel(c.LogLevel); ok {
		return level
	}
	return logging.LevelInfo
}
