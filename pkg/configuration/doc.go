// Package configuration loads the monitor daemon's YAML configuration
// file, recognizing root_path, data_directory, listen_addr, and an
// ambient log_level, with optional .env overrides for deployment-specific
// values.
package configuration
