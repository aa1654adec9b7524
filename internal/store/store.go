// Package store persists the last connected printer so it can be
// reconnected silently on the next start.
package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/chaz8081/struk/internal/ble"
)

// DefaultPath returns ~/.local/state/struk/printer.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "state", "struk", "printer.yaml")
}

// FileStore keeps the saved printer as a two-key YAML document. Writes go
// through a temp file and rename, so readers see either the old record or
// the new one, never a mix.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore returns a store backed by path. The file and its directory
// are created on first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (s *FileStore) Path() string { return s.path }

// Load returns the saved printer. A missing file, or a record lacking
// either key, reports ok=false.
func (s *FileStore) Load(_ context.Context) (ble.SavedPrinter, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return ble.SavedPrinter{}, false, nil
	}
	if err != nil {
		return ble.SavedPrinter{}, false, fmt.Errorf("store: read %s: %w", s.path, err)
	}

	var p ble.SavedPrinter
	if err := yaml.Unmarshal(data, &p); err != nil {
		return ble.SavedPrinter{}, false, fmt.Errorf("store: parse %s: %w", s.path, err)
	}
	if !p.Valid() {
		return ble.SavedPrinter{}, false, nil
	}
	return p, true, nil
}

// Save replaces the saved printer.
func (s *FileStore) Save(_ context.Context, p ble.SavedPrinter) error {
	if !p.Valid() {
		return fmt.Errorf("store: printer_name and printer_address are both required")
	}

	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("store: encode: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("store: create dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".printer-*.yaml")
	if err != nil {
		return fmt.Errorf("store: create temp: %w", err)
	}
	defer os.Remove(tmp.Name()) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("store: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("store: sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("store: close temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("store: replace %s: %w", s.path, err)
	}
	return nil
}

// Clear forgets the saved printer. Clearing an empty store is not an error.
func (s *FileStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("store: remove %s: %w", s.path, err)
	}
	return nil
}

var _ ble.Store = (*FileStore)(nil)
