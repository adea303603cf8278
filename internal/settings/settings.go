// settings.go — Persisted user settings: tab capacity and instrumentation mode.
// Any change to these values forces a cold re-initialization of all tab state.
package settings

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/brennhill/psat-core/internal/state"
)

const (
	ModeSingle    = "single"
	ModeUnlimited = "unlimited"
)

// ErrInvalidMode is returned for an unknown tab capacity mode.
var ErrInvalidMode = errors.New("settings: invalid tab capacity mode")

// Settings is the persisted settings document.
type Settings struct {
	TabCapacityMode        string `yaml:"tab_capacity_mode" json:"tab_capacity_mode"`
	UseRichInstrumentation bool   `yaml:"use_rich_instrumentation" json:"use_rich_instrumentation"`
}

// Default returns the settings used when nothing is persisted.
func Default() Settings {
	return Settings{TabCapacityMode: ModeSingle}
}

// Validate rejects unknown capacity modes. An empty mode is normalized to
// the default.
func (s *Settings) Validate() error {
	switch s.TabCapacityMode {
	case "":
		s.TabCapacityMode = ModeSingle
	case ModeSingle, ModeUnlimited:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidMode, s.TabCapacityMode)
	}
	return nil
}

// Single reports whether only one tab accumulates state.
func (s Settings) Single() bool {
	return s.TabCapacityMode != ModeUnlimited
}

// Store persists settings.
type Store interface {
	Load(ctx context.Context) (Settings, error)
	Save(ctx context.Context, s Settings) error
}

// ============================================================================
// FileStore
// ============================================================================

// FileStore keeps settings in a YAML file.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a store at path. An empty path uses the state
// directory's settings.yaml.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		p, err := state.SettingsFile()
		if err != nil {
			return nil, fmt.Errorf("settings: resolve path: %w", err)
		}
		path = p
	}
	return &FileStore{path: path}, nil
}

// Path returns the backing file.
func (f *FileStore) Path() string { return f.path }

// Load reads the file. A missing file yields Default().
func (f *FileStore) Load(ctx context.Context) (Settings, error) {
	if err := ctx.Err(); err != nil {
		return Settings{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	// #nosec G304 -- path is resolved from the runtime state directory or operator config
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("settings: read %s: %w", f.path, err)
	}
	s := Default()
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("settings: parse %s: %w", f.path, err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Save writes the file atomically via a temp file and rename.
func (f *FileStore) Save(ctx context.Context, s Settings) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("settings: encode: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	// #nosec G301 -- runtime state directory should be user-readable for diagnostics
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("settings: mkdir: %w", err)
	}
	tmpPath := f.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o600); err != nil {
		return fmt.Errorf("settings: write: %w", err)
	}
	return os.Rename(tmpPath, f.path)
}

// ============================================================================
// MemoryStore
// ============================================================================

// MemoryStore keeps settings in memory.
type MemoryStore struct {
	mu sync.Mutex
	s  Settings
}

// NewMemoryStore returns a store seeded with initial.
func NewMemoryStore(initial Settings) *MemoryStore {
	return &MemoryStore{s: initial}
}

func (m *MemoryStore) Load(ctx context.Context) (Settings, error) {
	if err := ctx.Err(); err != nil {
		return Settings{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.s
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func (m *MemoryStore) Save(ctx context.Context, s Settings) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	m.s = s
	m.mu.Unlock()
	return nil
}
