// Package paths provides centralized path resolution for voxtail.
// This package has NO internal imports (only stdlib) to avoid import cycles.
// All functions return errors to allow callers to log appropriately.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

// BaseDir returns the voxtail base directory (~/.voxtail).
func BaseDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".voxtail"), nil
}

// DataPath returns a path within the voxtail data directory (~/.voxtail/<subpath>).
func DataPath(subpath string) (string, error) {
	base, err := BaseDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, subpath), nil
}

// ConfigPath returns the active config path.
// Priority: ./voxtail.json (current dir) > ~/.voxtail/config.json
// Returns ("", nil) if no config exists - this is a valid state, not an error.
func ConfigPath() (string, error) {
	localPath := "voxtail.json"
	if _, err := os.Stat(localPath); err == nil {
		absPath, err := filepath.Abs(localPath)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		return absPath, nil
	}

	globalPath, err := DataPath("config.json")
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(globalPath); err == nil {
		return globalPath, nil
	}

	// No config found - valid state
	return "", nil
}

// DefaultConfigPath returns the default location for new configs (~/.voxtail/config.json).
func DefaultConfigPath() (string, error) {
	return DataPath("config.json")
}

// LedgerPath returns the processing history database path (~/.voxtail/history.db).
func LedgerPath() (string, error) {
	return DataPath("history.db")
}

// TranscriptLogDir returns the daily transcript log directory.
func TranscriptLogDir() (string, error) {
	return DataPath(filepath.Join("logs", "transcripts"))
}

// ModelsDir returns the default whisper model directory (~/.voxtail/models).
func ModelsDir() (string, error) {
	return DataPath("models")
}

// EnsureDir creates a directory if it doesn't exist.
// Uses 0750 permissions (owner: rwx, group: rx, other: none).
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0750); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", path, err)
	}
	return nil
}

// EnsureParentDir creates the parent directory of a file path if it doesn't exist.
func EnsureParentDir(filePath string) error {
	return EnsureDir(filepath.Dir(filePath))
}

// ExpandTilde expands a path that starts with ~ to the user's home directory.
// Returns the path unchanged if it doesn't start with ~.
func ExpandTilde(path string) (string, error) {
	if len(path) == 0 || path[0] != '~' {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	if len(path) == 1 {
		return home, nil
	}
	return filepath.Join(home, path[1:]), nil
}
