package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir returns ~/.amannotes/logs, or a temp directory when the
// home directory cannot be resolved.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".amannotes", "logs")
	}
	return filepath.Join(home, ".amannotes", "logs")
}

// DefaultLogPath returns the default log file path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "amannotes.log")
}
