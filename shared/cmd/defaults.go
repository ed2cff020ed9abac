package cmd

import (
	"path/filepath"
	"runtime"

	"github.com/nadeemb53/lighthouse-privacy-sidecar/shared/fileutil"
)

// DefaultConfigPath is where the sidecar looks for its YAML configuration
// file when --config-file isn't given.
func DefaultConfigPath() string {
	home := fileutil.HomeDir()
	if home == "" {
		return ""
	}
	if runtime.GOOS == "darwin" {
		return filepath.Join(home, "Library", "lighthouse-privacy-sidecar", "config.yaml")
	} else if runtime.GOOS == "windows" {
		return filepath.Join(home, "AppData", "Local", "lighthouse-privacy-sidecar", "config.yaml")
	}
	return filepath.Join(home, ".lighthouse-privacy-sidecar", "config.yaml")
}
