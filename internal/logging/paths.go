package logging

import (
	"os"
	"path/filepath"
)

// DefaultLogDir returns ~/.amankb/logs, or a temp directory when the home
// directory cannot be resolved.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".amankb", "logs")
	}
	return filepath.Join(home, ".amankb", "logs")
}

// DefaultLogPath returns the default server log path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "server.log")
}
