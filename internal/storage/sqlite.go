package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/snix/internal/apperr"
	"github.com/starford/snix/internal/lock"
	"github.com/starford/snix/internal/models"
	"github.com/starford/snix/internal/storage/migrations"
)

const sqliteFileName = "snix.db"

// SQLite implements Provider on a SQLite database. Each Commit is one SQL
// transaction. The pool is limited to a single connection so that
// PRAGMA data_version only moves when another connection writes.
type SQLite struct {
	dir    string
	path   string
	conn   *sql.DB
	lock   *lock.Lock
	logger *slog.Logger
	schema uint

	mu          sync.Mutex
	dataVersion int64
	current     atomic.Pointer[models.Snapshot]
}

var _ Provider = (*SQLite)(nil)

// OpenSQLite opens (or creates) a SQLite-backed store in dir and applies
// pending schema migrations.
func OpenSQLite(dir string, logger *slog.Logger) (*SQLite, error) {
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
	l, err := lock.Acquire(filepath.Join(abs, LockFileName))
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}

	path := filepath.Join(abs, sqliteFileName)
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		_ = l.Release()
		return nil, fmt.Errorf("storage: open db: %w: %w", apperr.ErrIO, err)
	}
	conn.SetMaxOpenConns(1)
	if err := conn.Ping(); err != nil {
		conn.Close()
		_ = l.Release()
		return nil, fmt.Errorf("storage: ping: %w: %w", apperr.ErrIO, err)
	}
	if err := migrations.MigrateUp(conn); err != nil {
		conn.Close()
		_ = l.Release()
		return nil, fmt.Errorf("storage: migrate: %w: %w", apperr.ErrCorruptStore, err)
	}

	schema, err := migrations.Version(conn)
	if err != nil {
		conn.Close()
		_ = l.Release()
		return nil, fmt.Errorf("storage: schema: %w: %w", apperr.ErrCorruptStore, err)
	}
	logger.Debug("sqlite store opened", "path", path, "schema", schema)

	s := &SQLite{dir: abs, path: path, conn: conn, lock: l, logger: logger, schema: schema}
	s.current.Store(models.EmptySnapshot())
	return s, nil
}

// SchemaVersion returns the migration version the database was opened at.
func (s *SQLite) SchemaVersion() uint { return s.schema }

// Location returns the database file path.
func (s *SQLite) Location() string { return s.path }

// Load reads every table into a snapshot.
func (s *SQLite) Load(ctx context.Context) (*models.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	revision, err := s.readRevision(ctx)
	if err != nil {
		return nil, err
	}
	notebooks, err := s.loadNotebooks(ctx)
	if err != nil {
		return nil, err
	}
	snippets, err := s.loadSnippets(ctx)
	if err != nil {
		return nil, err
	}
	recents, err := s.loadRecents(ctx)
	if err != nil {
		return nil, err
	}
	version, err := s.readDataVersion(ctx)
	if err != nil {
		return nil, err
	}

	snap := models.NewSnapshot(revision, notebooks, snippets, recents)
	if err := snap.Check(); err != nil {
		return nil, fmt.Errorf("storage: load %s: %w: %w", s.path, apperr.ErrCorruptStore, err)
	}
	s.dataVersion = version
	s.current.Store(snap)
	return snap, nil
}

// Commit writes delta in one transaction.
func (s *SQLite) Commit(ctx context.Context, delta models.Delta) (*models.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current.Load().Apply(delta)

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("storage: begin tx: %w: %w", apperr.ErrIO, err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := applyDelta(ctx, tx, delta); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO meta(key, value) VALUES ('revision', ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		strconv.FormatUint(next.Revision(), 10)); err != nil {
		return nil, fmt.Errorf("storage: write revision: %w: %w", apperr.ErrIO, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("storage: commit cancelled: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("storage: commit tx: %w: %w", apperr.ErrIO, err)
	}
	s.current.Store(next)
	return next, nil
}

func applyDelta(ctx context.Context, tx *sql.Tx, d models.Delta) error {
	exec := func(what, query string, args ...any) error {
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("storage: %s: %w: %w", what, apperr.ErrIO, err)
		}
		return nil
	}

	if d.Reset {
		for _, table := range []string{"recents", "snippets", "notebooks"} {
			if err := exec("reset "+table, "DELETE FROM "+table); err != nil {
				return err
			}
		}
	}
	for _, id := range d.DeleteSnippets {
		if err := exec("delete snippet", `DELETE FROM snippets WHERE id = ?`, id); err != nil {
			return err
		}
	}
	for _, id := range d.DeleteNotebooks {
		if err := exec("delete notebook", `DELETE FROM notebooks WHERE id = ?`, id); err != nil {
			return err
		}
	}
	for _, n := range d.PutNotebooks {
		if err := exec("put notebook", `
			INSERT INTO notebooks (id, name, description, parent_id, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name,
				description = excluded.description,
				parent_id = excluded.parent_id,
				created_at = excluded.created_at,
				updated_at = excluded.updated_at`,
			n.ID, n.Name, n.Description, n.ParentID, formatTime(n.CreatedAt), formatTime(n.UpdatedAt),
		); err != nil {
			return err
		}
	}
	for _, sn := range d.PutSnippets {
		tags, err := json.Marshal(sn.Tags)
		if err != nil {
			return fmt.Errorf("storage: marshal tags: %w", err)
		}
		var accessed any
		if sn.LastAccessedAt != nil {
			accessed = formatTime(*sn.LastAccessedAt)
		}
		if err := exec("put snippet", `
			INSERT INTO snippets (id, notebook_id, title, description, body, language, tags,
				is_favorite, use_count, version, created_at, updated_at, last_accessed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				notebook_id = excluded.notebook_id,
				title = excluded.title,
				description = excluded.description,
				body = excluded.body,
				language = excluded.language,
				tags = excluded.tags,
				is_favorite = excluded.is_favorite,
				use_count = excluded.use_count,
				version = excluded.version,
				created_at = excluded.created_at,
				updated_at = excluded.updated_at,
				last_accessed_at = excluded.last_accessed_at`,
			sn.ID, sn.NotebookID, sn.Title, sn.Description, sn.Body, sn.Language, string(tags),
			sn.IsFavorite, sn.UseCount, sn.Version, formatTime(sn.CreatedAt), formatTime(sn.UpdatedAt), accessed,
		); err != nil {
			return err
		}
	}
	if d.SetRecents {
		if err := exec("clear recents", `DELETE FROM recents`); err != nil {
			return err
		}
		for i, r := range d.Recents {
			if err := exec("put recent", `INSERT INTO recents (position, snippet_id, accessed_at) VALUES (?, ?, ?)`,
				i, r.SnippetID, formatTime(r.AccessedAt)); err != nil {
				return err
			}
		}
	}
	return nil
}

// Snapshot returns the last committed state.
func (s *SQLite) Snapshot() *models.Snapshot {
	return s.current.Load()
}

// Verify reports whether no other connection has written since the last load.
func (s *SQLite) Verify(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.readDataVersion(ctx)
	if err != nil {
		return false, err
	}
	return v == s.dataVersion, nil
}

// Close closes the database and releases the lock.
func (s *SQLite) Close() error {
	dbErr := s.conn.Close()
	lockErr := s.lock.Release()
	if dbErr != nil {
		return fmt.Errorf("storage: close db: %w", dbErr)
	}
	return lockErr
}

func (s *SQLite) readRevision(ctx context.Context) (uint64, error) {
	var raw string
	err := s.conn.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = 'revision'`).Scan(&raw)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("storage: read revision: %w: %w", apperr.ErrIO, err)
	}
	rev, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("storage: revision %q: %w", raw, apperr.ErrCorruptStore)
	}
	return rev, nil
}

func (s *SQLite) readDataVersion(ctx context.Context) (int64, error) {
	var v int64
	if err := s.conn.QueryRowContext(ctx, `PRAGMA data_version`).Scan(&v); err != nil {
		return 0, fmt.Errorf("storage: data_version: %w: %w", apperr.ErrIO, err)
	}
	return v, nil
}

func (s *SQLite) loadNotebooks(ctx context.Context) ([]models.Notebook, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, name, description, parent_id, created_at, updated_at FROM notebooks ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("storage: query notebooks: %w: %w", apperr.ErrIO, err)
	}
	defer rows.Close()

	var out []models.Notebook
	for rows.Next() {
		var n models.Notebook
		var created, updated string
		if err := rows.Scan(&n.ID, &n.Name, &n.Description, &n.ParentID, &created, &updated); err != nil {
			return nil, fmt.Errorf("storage: scan notebook: %w: %w", apperr.ErrIO, err)
		}
		if n.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		if n.UpdatedAt, err = parseTime(updated); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: iterate notebooks: %w: %w", apperr.ErrIO, err)
	}
	return out, nil
}

func (s *SQLite) loadSnippets(ctx context.Context) ([]models.Snippet, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT id, notebook_id, title, description, body, language, tags, is_favorite,
			use_count, version, created_at, updated_at, last_accessed_at
		FROM snippets ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("storage: query snippets: %w: %w", apperr.ErrIO, err)
	}
	defer rows.Close()

	var out []models.Snippet
	for rows.Next() {
		var sn models.Snippet
		var tags, created, updated string
		var accessed sql.NullString
		if err := rows.Scan(&sn.ID, &sn.NotebookID, &sn.Title, &sn.Description, &sn.Body, &sn.Language,
			&tags, &sn.IsFavorite, &sn.UseCount, &sn.Version, &created, &updated, &accessed); err != nil {
			return nil, fmt.Errorf("storage: scan snippet: %w: %w", apperr.ErrIO, err)
		}
		if err := json.Unmarshal([]byte(tags), &sn.Tags); err != nil {
			return nil, fmt.Errorf("storage: snippet %s tags: %w: %w", sn.ID, apperr.ErrCorruptStore, err)
		}
		if sn.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		if sn.UpdatedAt, err = parseTime(updated); err != nil {
			return nil, err
		}
		if accessed.Valid {
			at, err := parseTime(accessed.String)
			if err != nil {
				return nil, err
			}
			sn.LastAccessedAt = &at
		}
		out = append(out, sn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: iterate snippets: %w: %w", apperr.ErrIO, err)
	}
	return out, nil
}

func (s *SQLite) loadRecents(ctx context.Context) ([]models.RecentEntry, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT snippet_id, accessed_at FROM recents ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("storage: query recents: %w: %w", apperr.ErrIO, err)
	}
	defer rows.Close()

	var out []models.RecentEntry
	for rows.Next() {
		var r models.RecentEntry
		var at string
		if err := rows.Scan(&r.SnippetID, &at); err != nil {
			return nil, fmt.Errorf("storage: scan recent: %w: %w", apperr.ErrIO, err)
		}
		if r.AccessedAt, err = parseTime(at); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: iterate recents: %w: %w", apperr.ErrIO, err)
	}
	return out, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("storage: timestamp %q: %w", s, apperr.ErrCorruptStore)
	}
	return t.UTC(), nil
}
