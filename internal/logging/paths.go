package logging

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultLogDir returns ~/.searchschema/logs, or a temp directory when the
// home directory is unknown.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".searchschema", "logs")
	}
	return filepath.Join(home, ".searchschema", "logs")
}

// DefaultLogPath returns the default log file of `searchschema serve`.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "searchschema.log")
}

// FindLogFile returns explicit when set and present, else the default log
// file if it exists.
func FindLogFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit, nil
		}
		return "", fmt.Errorf("log file not found: %s", explicit)
	}

	path := DefaultLogPath()
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}
	return "", fmt.Errorf("no log file found at %s; logs are written by `searchschema serve`", path)
}
