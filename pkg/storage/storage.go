// Package storage archives processed statement files per user.
package storage

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned for an unknown file id.
var ErrNotFound = errors.New("file not found")

// Outcome records what happened to an archived statement.
type Outcome string

const (
	OutcomeImported Outcome = "imported"
	OutcomeFailed   Outcome = "failed"
)

// Meta is what the caller knows about a processed statement.
type Meta struct {
	Outcome  Outcome `json:"outcome"`
	Type     string  `json:"type,omitempty"`
	ImportID int64   `json:"import_id,omitempty"`
	Summary  string  `json:"summary"`
}

// FileInfo contains metadata about an archived file
type FileInfo struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	Path      string    `json:"path"` // relative to the user's archive directory
	CreatedAt time.Time `json:"created_at"`
	Meta
}

// Storage defines the archive operations
type Storage interface {
	// Archive stores a processed statement with its outcome.
	Archive(ctx context.Context, userID uuid.UUID, filename string, r io.Reader, meta Meta) (*FileInfo, error)

	// List returns the user's archived files, oldest first.
	List(ctx context.Context, userID uuid.UUID) ([]*FileInfo, error)

	// GetInfo returns metadata for a file without opening it.
	GetInfo(ctx context.Context, userID uuid.UUID, fileID uuid.UUID) (*FileInfo, error)

	// GetReader opens an archived file.
	GetReader(ctx context.Context, userID uuid.UUID, fileID uuid.UUID) (io.ReadCloser, error)

	// Delete removes a file and its metadata.
	Delete(ctx context.Context, userID uuid.UUID, fileID uuid.UUID) error

	// Prune deletes every archived file created before cutoff and reports how many went.
	Prune(ctx context.Context, cutoff time.Time) (int, error)
}

// Config holds storage configuration
type Config struct {
	LocalPath string
}

// New creates the archive.
func New(cfg *Config) (Storage, error) {
	return NewLocalStorage(cfg.LocalPath)
}
