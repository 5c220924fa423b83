package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/postwriter/internal/apperr"
	"github.com/starford/postwriter/internal/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS documents (
	id            INTEGER PRIMARY KEY CHECK (id = 1),
	version       INTEGER NOT NULL,
	fields        TEXT NOT NULL DEFAULT '[]',
	body          TEXT NOT NULL DEFAULT '',
	fields_hidden INTEGER NOT NULL DEFAULT 0,
	updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

// SQLite implements Provider with a single-row table. Fields, body and the
// visibility flag are written together in one statement.
type SQLite struct {
	conn *sql.DB
}

// OpenSQLite opens (or creates) the SQLite database and applies the schema.
func OpenSQLite(dsn string) (*SQLite, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("storage: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("storage: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("storage: apply schema: %w", err)
	}
	return &SQLite{conn: conn}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.conn.Close()
}

// Load reads the stored document row.
func (s *SQLite) Load(ctx context.Context) (*models.Snapshot, error) {
	var (
		version int
		fields  string
		body    string
		hidden  bool
	)
	err := s.conn.QueryRowContext(ctx,
		`SELECT version, fields, body, fields_hidden FROM documents WHERE id = 1`,
	).Scan(&version, &fields, &body, &hidden)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: load document: %w", err)
	}
	if version > models.SnapshotVersion {
		return nil, fmt.Errorf("storage: unsupported snapshot version %d", version)
	}

	snap := models.NewSnapshot()
	if err := json.Unmarshal([]byte(fields), &snap.Fields); err != nil {
		return nil, fmt.Errorf("storage: decode fields: %w", err)
	}
	if snap.Fields == nil {
		snap.Fields = []models.Field{}
	}
	snap.Body = body
	snap.FieldsHidden = hidden
	return snap, nil
}

// Save upserts the document row.
func (s *SQLite) Save(ctx context.Context, snap *models.Snapshot) error {
	fs := snap.Fields
	if fs == nil {
		fs = []models.Field{}
	}
	fieldsJSON, err := json.Marshal(fs)
	if err != nil {
		return fmt.Errorf("storage: encode fields: %w", err)
	}
	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO documents (id, version, fields, body, fields_hidden, updated_at)
		VALUES (1, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			version       = excluded.version,
			fields        = excluded.fields,
			body          = excluded.body,
			fields_hidden = excluded.fields_hidden,
			updated_at    = excluded.updated_at
	`, models.SnapshotVersion, string(fieldsJSON), snap.Body, snap.FieldsHidden, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("storage: save document: %w", err)
	}
	return nil
}
