package logging

import (
	"os"
	"path/filepath"
)

// LogDir returns the log directory under the given data directory.
// An empty dataDir falls back to the temp directory.
func LogDir(dataDir string) string {
	if dataDir == "" {
		return filepath.Join(os.TempDir(), "unifind", "logs")
	}
	return filepath.Join(dataDir, "logs")
}

// LogPath returns the log file path under the given data directory.
func LogPath(dataDir string) string {
	return filepath.Join(LogDir(dataDir), "unifind.log")
}
