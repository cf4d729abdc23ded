package configuration

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// defaultConfigurationName is the configuration file name looked for in
// the user's home directory when no explicit path is given on the
// command line.
const defaultConfigurationName = ".monitor.yml"

// DefaultConfigurationPath returns the path of the default YAML
// configuration file. It does not verify that the file exists.
func DefaultConfigurationPath() (string, error) {
	homeDirectoryPath, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "unable to compute path to home directory")
	}

	return filepath.Join(homeDirectoryPath, defaultConfigurationName), nil
}
