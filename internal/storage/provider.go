// Package storage is the durable Storage Layer: it loads, commits and
// snapshots notebooks, snippets and the recency list.
package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/snix/internal/models"
)

// Backend names accepted by Open.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// LockFileName is the advisory lock marker inside a store directory.
const LockFileName = ".snix.lock"

// Provider is the interface for persisted store state.
type Provider interface {
	// Load reads the full persisted state. Fails with apperr.ErrCorruptStore
	// when the representation cannot be parsed and apperr.ErrIO on access failure.
	Load(ctx context.Context) (*models.Snapshot, error)
	// Commit durably applies one logical change and returns the new state.
	// A crash mid-commit leaves either the old or the new state.
	Commit(ctx context.Context, delta models.Delta) (*models.Snapshot, error)
	// Snapshot returns the state as of the last completed commit or load. O(1).
	Snapshot() *models.Snapshot
	// Verify reports whether the on-disk state still matches the last commit.
	Verify(ctx context.Context) (bool, error)
	// Location is the path of the primary data file.
	Location() string
	// Close releases the advisory lock and any open handles.
	Close() error
}

// Open opens the store in dir with the named backend.
func Open(backend, dir string, logger *slog.Logger) (Provider, error) {
	switch backend {
	case "", BackendFile:
		return OpenFS(dir, logger)
	case BackendSQLite:
		return OpenSQLite(dir, logger)
	default:
		return nil, fmt.Errorf("storage: unknown backend %q", backend)
	}
}
