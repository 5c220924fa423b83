// Package testutil provides shared test helpers for setting up storage
// directories and document stores.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/starford/postwriter/internal/document"
	"github.com/starford/postwriter/internal/storage"
)

// TestDB creates a temporary SQLite provider that is automatically closed.
func TestDB(t *testing.T) *storage.SQLite {
	t.Helper()
	db, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "postwriter-test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestDir creates a temporary storage directory with a file provider.
func TestDir(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	fs, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, fs
}

// TestStore returns a loaded document store over a temporary directory.
func TestStore(t *testing.T) (*document.Store, *storage.FS) {
	t.Helper()
	_, fs := TestDir(t)
	s := document.New(fs, Logger())
	if err := s.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	return s, fs
}

// Logger returns a logger that discards output.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
