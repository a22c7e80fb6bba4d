package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/starford/snix/internal/apperr"
	"github.com/starford/snix/internal/checksum"
	"github.com/starford/snix/internal/lock"
	"github.com/starford/snix/internal/models"
)

const (
	dataFileName  = "snix.json"
	tmpPattern    = ".snix-tmp-*"
	storeFormat   = "snix-store"
	storeVersion  = 1
	tmpFilePrefix = ".snix-tmp-"
)

// fileState is the on-disk layout of the data file. Records are sorted by id
// so identical state always serializes to identical bytes.
type fileState struct {
	Format    string               `json:"format"`
	Version   int                  `json:"version"`
	Revision  uint64               `json:"revision"`
	Notebooks []models.Notebook    `json:"notebooks"`
	Snippets  []models.Snippet     `json:"snippets"`
	Recents   []models.RecentEntry `json:"recents"`
}

// FS implements Provider with a single JSON data file replaced atomically
// on every commit.
type FS struct {
	dir    string // absolute store directory
	path   string // data file
	lock   *lock.Lock
	logger *slog.Logger

	mu      sync.Mutex // guards file access and lastSum
	lastSum string     // checksum of the bytes last written or loaded; "" when absent
	current atomic.Pointer[models.Snapshot]
}

var _ Provider = (*FS)(nil)

// OpenFS opens (or creates) a file-backed store rooted at dir. The advisory
// lock is taken before any other file in dir is touched.
func OpenFS(dir string, logger *slog.Logger) (*FS, error) {
	if logger == nil {
		logger = slog.Default()
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("storage: mkdir: %w: %w", apperr.ErrIO, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w: %w", apperr.ErrIO, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s: %w", abs, apperr.ErrIO)
	}

	l, err := lock.Acquire(filepath.Join(abs, LockFileName))
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}

	f := &FS{
		dir:    abs,
		path:   filepath.Join(abs, dataFileName),
		lock:   l,
		logger: logger,
	}
	f.current.Store(models.EmptySnapshot())
	f.removeStaleTemps()
	return f, nil
}

// removeStaleTemps deletes temp files left behind by a crash mid-commit.
// Only called while holding the lock.
func (f *FS) removeStaleTemps() {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), tmpFilePrefix) {
			continue
		}
		p := filepath.Join(f.dir, e.Name())
		if err := os.Remove(p); err == nil {
			f.logger.Warn("storage: removed stale temp file", slog.String("path", p))
		}
	}
}

// Location returns the data file path.
func (f *FS) Location() string { return f.path }

// Load reads the data file. A missing file is an empty store.
func (f *FS) Load(ctx context.Context) (*models.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		snap := models.EmptySnapshot()
		f.lastSum = ""
		f.current.Store(snap)
		return snap, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w: %w", f.path, apperr.ErrIO, err)
	}

	snap, err := decodeState(data)
	if err != nil {
		return nil, fmt.Errorf("storage: load %s: %w", f.path, err)
	}
	f.lastSum = checksum.Sum(data)
	f.current.Store(snap)
	return snap, nil
}

// Commit applies delta to the current snapshot and atomically replaces the
// data file. The in-memory snapshot only advances after the rename succeeds.
func (f *FS) Commit(ctx context.Context, delta models.Delta) (*models.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	next := f.current.Load().Apply(delta)
	data, err := encodeState(next)
	if err != nil {
		return nil, fmt.Errorf("storage: encode: %w", err)
	}
	if err := f.writeAtomic(ctx, data); err != nil {
		return nil, err
	}
	f.lastSum = checksum.Sum(data)
	f.current.Store(next)
	return next, nil
}

// Snapshot returns the last committed state.
func (f *FS) Snapshot() *models.Snapshot {
	return f.current.Load()
}

// Verify re-reads the data file and compares it with the last commit.
func (f *FS) Verify(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return f.lastSum == "", nil
	}
	if err != nil {
		return false, fmt.Errorf("storage: read %s: %w: %w", f.path, apperr.ErrIO, err)
	}
	return checksum.Match(data, f.lastSum), nil
}

// Close releases the advisory lock.
func (f *FS) Close() error {
	return f.lock.Release()
}

// writeAtomic writes content: tmp file -> fsync -> rename -> fsync dir.
// A cancelled context aborts before the rename, leaving the old state.
func (f *FS) writeAtomic(ctx context.Context, content []byte) error {
	tmp, err := os.CreateTemp(f.dir, tmpPattern)
	if err != nil {
		return fmt.Errorf("storage: create temp: %w: %w", apperr.ErrIO, err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w: %w", apperr.ErrIO, err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w: %w", apperr.ErrIO, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w: %w", apperr.ErrIO, err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("storage: commit cancelled: %w", err)
	}
	if err := os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("storage: rename: %w: %w", apperr.ErrIO, err)
	}
	success = true
	syncDir(f.dir)
	return nil
}

// syncDir flushes the directory entry of a rename. Not every platform
// supports fsync on directories, so failures are ignored.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

func encodeState(s *models.Snapshot) ([]byte, error) {
	state := fileState{
		Format:    storeFormat,
		Version:   storeVersion,
		Revision:  s.Revision(),
		Notebooks: s.Notebooks(),
		Snippets:  s.Snippets(),
		Recents:   s.Recents(),
	}
	if state.Recents == nil {
		state.Recents = []models.RecentEntry{}
	}
	return json.MarshalIndent(state, "", "  ")
}

func decodeState(data []byte) (*models.Snapshot, error) {
	var state fileState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrCorruptStore, err)
	}
	if state.Format != storeFormat {
		return nil, fmt.Errorf("%w: unexpected format %q", apperr.ErrCorruptStore, state.Format)
	}
	if state.Version < 1 || state.Version > storeVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", apperr.ErrCorruptStore, state.Version)
	}
	snap := models.NewSnapshot(state.Revision, state.Notebooks, state.Snippets, state.Recents)
	if n, s := snap.Counts(); n != len(state.Notebooks) || s != len(state.Snippets) {
		return nil, fmt.Errorf("%w: duplicate record ids", apperr.ErrCorruptStore)
	}
	if err := snap.Check(); err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrCorruptStore, err)
	}
	return snap, nil
}
