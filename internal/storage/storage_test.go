package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/starford/postwriter/internal/apperr"
	"github.com/starford/postwriter/internal/models"
)

func tempFS(t *testing.T) *FS {
	t.Helper()
	fs, err := NewFS(t.TempDir())
	if err != nil {
		t.Fatalf("NewFS: %v", err)
	}
	return fs
}

func tempSQLite(t *testing.T) *SQLite {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "postwriter-test.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleSnapshot() *models.Snapshot {
	return &models.Snapshot{
		Version: models.SnapshotVersion,
		Fields: []models.Field{
			{ID: 3, Label: "title", Type: models.TypeText, Value: models.Scalar("Hello"), Order: 0},
			{ID: 5, Label: "tags", Type: models.TypeList, Value: models.List("a", "b"), Order: 1},
			{ID: 9, Label: "draft", Type: models.TypeBoolean, Value: models.Bool(true), Order: 2},
		},
		Body:         "# Hello\n",
		FieldsHidden: true,
	}
}

func assertSnapshot(t *testing.T, got, want *models.Snapshot) {
	t.Helper()
	if got.Body != want.Body || got.FieldsHidden != want.FieldsHidden {
		t.Errorf("snapshot = %+v, want %+v", got, want)
	}
	if len(got.Fields) != len(want.Fields) {
		t.Fatalf("len(fields) = %d, want %d", len(got.Fields), len(want.Fields))
	}
	for i := range want.Fields {
		g, w := got.Fields[i], want.Fields[i]
		if g.ID != w.ID || g.Label != w.Label || g.Type != w.Type || g.Order != w.Order || !g.Value.Equal(w.Value) {
			t.Errorf("field %d = %+v, want %+v", i, g, w)
		}
	}
}

func TestProviders_SaveAndLoad(t *testing.T) {
	providers := map[string]Provider{
		"fs":     tempFS(t),
		"sqlite": tempSQLite(t),
	}
	for name, p := range providers {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, err := p.Load(ctx); !errors.Is(err, apperr.ErrNotFound) {
				t.Fatalf("Load on empty store = %v, want ErrNotFound", err)
			}
			want := sampleSnapshot()
			if err := p.Save(ctx, want); err != nil {
				t.Fatalf("Save: %v", err)
			}
			got, err := p.Load(ctx)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			assertSnapshot(t, got, want)

			// Overwrite replaces everything.
			want.Body = "changed"
			want.Fields = want.Fields[:1]
			want.FieldsHidden = false
			if err := p.Save(ctx, want); err != nil {
				t.Fatalf("Save: %v", err)
			}
			got, _ = p.Load(ctx)
			assertSnapshot(t, got, want)
		})
	}
}

func TestFS_NoLeftoverTempFiles(t *testing.T) {
	s := tempFS(t)
	ctx := context.Background()
	_ = s.Save(ctx, sampleSnapshot())
	_ = s.Save(ctx, sampleSnapshot())

	matches, _ := filepath.Glob(filepath.Join(s.root, ".postwriter-tmp-*"))
	if len(matches) != 0 {
		t.Errorf("leftover temp files: %v", matches)
	}
}

func TestFS_CorruptSnapshot(t *testing.T) {
	s := tempFS(t)
	_ = os.WriteFile(s.Path(), []byte("{not json"), 0o644)
	if _, err := s.Load(context.Background()); err == nil {
		t.Error("expected error for corrupt snapshot")
	}
}

func TestFS_MigratesLegacyDump(t *testing.T) {
	s := tempFS(t)
	dump := `{
		"yamlFields": "[{\"id\":1700000000000,\"label\":\"title\",\"type\":\"text\",\"value\":\"Hi\",\"order\":0}]",
		"markdownContent": "body text",
		"yamlIsHidden": "true"
	}`
	_ = os.WriteFile(filepath.Join(s.root, LegacyExportFile), []byte(dump), 0o644)

	snap, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(snap.Fields) != 1 || snap.Fields[0].ID != 1700000000000 || snap.Fields[0].Label != "title" {
		t.Errorf("fields = %+v", snap.Fields)
	}
	if snap.Body != "body text" || !snap.FieldsHidden {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestNewFS_NonExistentDir(t *testing.T) {
	_, err := NewFS("/tmp/postwriter-does-not-exist-" + t.Name())
	if err == nil {
		t.Error("expected error for non-existent dir")
	}
}

func TestNewFS_FileNotDir(t *testing.T) {
	f, _ := os.CreateTemp("", "postwriter-test-*")
	_ = f.Close()
	defer os.Remove(f.Name())
	_, err := NewFS(f.Name())
	if err == nil {
		t.Error("expected error when root is a file")
	}
}

func TestDecodeLegacy_PartialKeys(t *testing.T) {
	cases := []struct {
		name   string
		kv     map[string]string
		fields int
		body   string
		hidden bool
	}{
		{"nothing", nil, 0, "", false},
		{"only body", map[string]string{"body": "x"}, 0, "x", false},
		{"only hidden", map[string]string{"fieldsHidden": "true"}, 0, "", true},
		{"garbage fields", map[string]string{"fields": "{{", "body": "b"}, 0, "b", false},
		{"garbage hidden", map[string]string{"fieldsHidden": "yes"}, 0, "", false},
		{
			"one bad entry skipped",
			map[string]string{"fields": `[{"id":1,"label":"a"},{"id":2,"type":"colour"}]`},
			1, "", false,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			snap := DecodeLegacy(tc.kv)
			if len(snap.Fields) != tc.fields || snap.Body != tc.body || snap.FieldsHidden != tc.hidden {
				t.Errorf("snapshot = %+v", snap)
			}
			if snap.Version != models.SnapshotVersion {
				t.Errorf("version = %d", snap.Version)
			}
		})
	}
}
