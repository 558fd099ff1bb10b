package syncer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// Manifest records the outcome of one sync run for the upload stage.
type Manifest struct {
	// Modified lists leaderboards with changed source files.
	Modified []string `json:"modified"`
	// Converted lists leaderboards whose rebuild succeeded.
	Converted []string `json:"converted"`
	// ActuallyModified lists leaderboards whose table content changed.
	ActuallyModified []string `json:"actually_modified"`
	// Downloaded lists leaderboards whose remote table was pre-fetched.
	Downloaded []string `json:"downloaded"`
	Errors     int      `json:"errors"`
}

// NewManifest returns an empty manifest whose lists encode as [].
func NewManifest() *Manifest {
	return &Manifest{
		Modified:         []string{},
		Converted:        []string{},
		ActuallyModified: []string{},
		Downloaded:       []string{},
	}
}

func (m *Manifest) sort() {
	sort.Strings(m.Modified)
	sort.Strings(m.Converted)
	sort.Strings(m.ActuallyModified)
	sort.Strings(m.Downloaded)
}

// Write stores the manifest as indented JSON.
func (m *Manifest) Write(path string) error {
	m.sort()
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// ReadManifest loads the manifest at path.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w at %s", ErrNoManifest, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	m := NewManifest()
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("decode manifest %s: %w", path, err)
	}
	return m, nil
}
