package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/starford/postwriter/internal/apperr"
	"github.com/starford/postwriter/internal/models"
)

// File names inside the storage directory.
const (
	SnapshotFile     = "document.json"
	LegacyExportFile = "local-storage.json"
)

// FS implements Provider with a single JSON file in a directory.
type FS struct {
	root string // absolute path to the storage directory
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Path returns the absolute path of the snapshot file.
func (f *FS) Path() string {
	return filepath.Join(f.root, SnapshotFile)
}

// Load reads document.json. When it does not exist, a legacy
// local-storage.json dump is migrated if present.
func (f *FS) Load(_ context.Context) (*models.Snapshot, error) {
	data, err := os.ReadFile(f.Path())
	if errors.Is(err, os.ErrNotExist) {
		return f.loadLegacy()
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read snapshot: %w", err)
	}
	snap, err := decodeSnapshot(data)
	if err != nil {
		return nil, fmt.Errorf("storage: decode %s: %w", SnapshotFile, err)
	}
	return snap, nil
}

func (f *FS) loadLegacy() (*models.Snapshot, error) {
	data, err := os.ReadFile(filepath.Join(f.root, LegacyExportFile))
	if errors.Is(err, os.ErrNotExist) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read legacy dump: %w", err)
	}
	var kv map[string]string
	if err := json.Unmarshal(data, &kv); err != nil {
		// An unreadable dump recovers to the empty document.
		kv = nil
	}
	return DecodeLegacy(kv), nil
}

// Save atomically writes content: tmp file → fsync → rename.
func (f *FS) Save(_ context.Context, snap *models.Snapshot) error {
	content, err := encodeSnapshot(snap)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(f.root, ".postwriter-tmp-*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	// Clean up on any failure path.
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, f.Path()); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}

func encodeSnapshot(snap *models.Snapshot) ([]byte, error) {
	out := *snap
	out.Version = models.SnapshotVersion
	if out.Fields == nil {
		out.Fields = []models.Field{}
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("storage: encode snapshot: %w", err)
	}
	return append(data, '\n'), nil
}

func decodeSnapshot(data []byte) (*models.Snapshot, error) {
	snap := models.NewSnapshot()
	if err := json.Unmarshal(data, snap); err != nil {
		return nil, err
	}
	if snap.Version > models.SnapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}
	if snap.Fields == nil {
		snap.Fields = []models.Field{}
	}
	snap.Version = models.SnapshotVersion
	return snap, nil
}
