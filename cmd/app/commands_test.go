package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/postwriter/internal/storage"
)

func TestMigrate(t *testing.T) {
	dir := t.TempDir()
	fs, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	dump := filepath.Join(t.TempDir(), "local-storage.json")
	_ = os.WriteFile(dump, []byte(`{
		"yamlFields": "[{\"id\":1,\"label\":\"title\",\"type\":\"text\",\"value\":\"Hi\",\"order\":0}]",
		"markdownContent": "body"
	}`), 0o644)

	n, err := migrate(context.Background(), dump, fs)
	if err != nil || n != 1 {
		t.Fatalf("migrate = %d, %v", n, err)
	}
	snap, err := fs.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if snap.Body != "body" || len(snap.Fields) != 1 || snap.Fields[0].Label != "title" {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestMigrate_NotADump(t *testing.T) {
	fs, _ := storage.NewFS(t.TempDir())
	bad := filepath.Join(t.TempDir(), "bad.json")
	_ = os.WriteFile(bad, []byte(`[1, 2]`), 0o644)

	if _, err := migrate(context.Background(), bad, fs); err == nil {
		t.Error("expected error for non-object dump")
	}
	if _, err := migrate(context.Background(), filepath.Join(t.TempDir(), "missing.json"), fs); err == nil {
		t.Error("expected error for missing file")
	}
}
