// Package backup writes timestamped backup files of the store to a sink
// and restores the store from them.
package backup

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/starford/snix/internal/apperr"
)

// Object describes one stored backup file.
type Object struct {
	Name    string
	Size    int64
	ModTime time.Time
}

// Sink stores backup files by name. Names are flat; a sink never sees a
// path separator.
type Sink interface {
	Put(ctx context.Context, name string, data []byte) error
	// Get returns apperr.ErrNotFound for a missing name.
	Get(ctx context.Context, name string) ([]byte, error)
	List(ctx context.Context) ([]Object, error)
	Delete(ctx context.Context, name string) error
	// Location describes where the files live, for logs and status output.
	Location() string
}

func checkName(name string) error {
	if name == "" || strings.HasPrefix(name, ".") ||
		strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return fmt.Errorf("%w: backup name %q", apperr.ErrInvalidInput, name)
	}
	return nil
}
