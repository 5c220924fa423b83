// Package storage persists the document snapshot.
package storage

import (
	"context"

	"github.com/starford/postwriter/internal/models"
)

// Provider is the interface for snapshot persistence.
type Provider interface {
	// Load returns the stored snapshot, or an error wrapping
	// apperr.ErrNotFound when nothing has been saved yet.
	Load(ctx context.Context) (*models.Snapshot, error)
	// Save atomically replaces the stored snapshot.
	Save(ctx context.Context, snap *models.Snapshot) error
}

// Drivers.
const (
	DriverFile   = "file"
	DriverSQLite = "sqlite"
)
