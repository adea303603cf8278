// Package state locates psat's files on disk: configuration, persisted
// settings and logs all live under one root directory.
package state

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// StateDirEnv overrides the root directory.
	StateDirEnv = "PSAT_STATE_DIR"

	xdgStateHomeEnv = "XDG_STATE_HOME"
	appName         = "psat"
)

var errEmptyPath = errors.New("empty path")

// RootDir returns the state root: $PSAT_STATE_DIR as given, else
// $XDG_STATE_HOME/psat, else psat under the user config directory.
func RootDir() (string, error) {
	if dir := strings.TrimSpace(os.Getenv(StateDirEnv)); dir != "" {
		return absolute(dir)
	}
	base := strings.TrimSpace(os.Getenv(xdgStateHomeEnv))
	if base == "" {
		var err error
		if base, err = os.UserConfigDir(); err != nil {
			return "", fmt.Errorf("locate state root: %w", err)
		}
	}
	dir, err := absolute(base)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appName), nil
}

// ConfigFile is the daemon configuration file.
func ConfigFile() (string, error) { return under("psat.yaml") }

// SettingsFile holds the persisted capacity and instrumentation settings.
func SettingsFile() (string, error) { return under("settings.yaml") }

// LogsDir is where file logging writes.
func LogsDir() (string, error) { return under("logs") }

// DefaultLogFile is the JSON log file used when file logging is on and no
// path is configured.
func DefaultLogFile() (string, error) { return under("logs", "psat.jsonl") }

func under(elem ...string) (string, error) {
	root, err := RootDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(append([]string{root}, elem...)...), nil
}

func absolute(p string) (string, error) {
	if p == "" {
		return "", errEmptyPath
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", p, err)
	}
	return abs, nil
}
