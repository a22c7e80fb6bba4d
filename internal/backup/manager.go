package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/starford/snix/internal/apperr"
	"github.com/starford/snix/internal/metrics"
	"github.com/starford/snix/internal/transfer"
)

const (
	namePrefix     = "backup-"
	autoPrefix     = "backup-auto-"
	nameExt        = ".snix.json"
	timestampStyle = "20060102-150405.000"
)

// Source is the store a manager backs up and restores.
type Source interface {
	BackupDocument() *transfer.Document
	Restore(ctx context.Context, doc *transfer.Document) error
}

// Options configure how backups are written and retained.
type Options struct {
	Compress   bool
	Passphrase string
	// WorkFactor is the scrypt cost (log2). Zero keeps the age default.
	WorkFactor int
	// Keep is the number of automatic backups RunAuto retains. Zero keeps all.
	Keep int
	Now  func() time.Time
}

// Info describes one backup. The counts come from the payload and are zero
// when it could not be read; Err then holds the reason.
type Info struct {
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	CreatedAt  time.Time `json:"created_at"`
	Auto       bool      `json:"auto"`
	Compressed bool      `json:"compressed"`
	Encrypted  bool      `json:"encrypted"`
	Notebooks  int       `json:"notebooks"`
	Snippets   int       `json:"snippets"`
	Revision   uint64    `json:"revision,omitempty"`
	Err        string    `json:"error,omitempty"`
}

// Manager creates, lists, prunes and restores backups.
type Manager struct {
	src    Source
	sink   Sink
	logger *slog.Logger
	opts   Options
}

// NewManager binds a source to a sink.
func NewManager(src Source, sink Sink, logger *slog.Logger, opts Options) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{src: src, sink: sink, logger: logger, opts: opts}
}

// Location is the sink location.
func (m *Manager) Location() string { return m.sink.Location() }

// Create writes a backup of the last committed state and returns its name.
func (m *Manager) Create(ctx context.Context) (Info, error) {
	return m.create(ctx, namePrefix)
}

func (m *Manager) create(ctx context.Context, prefix string) (_ Info, err error) {
	defer func() { metrics.Backup("create", err) }()

	doc := m.src.BackupDocument()
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}
	data, err := seal(doc, sealOptions{
		compress:   m.opts.Compress,
		passphrase: m.opts.Passphrase,
		workFactor: m.opts.WorkFactor,
	})
	if err != nil {
		return Info{}, err
	}
	created := m.opts.Now().UTC()
	name := m.fileName(prefix, created)
	if err := m.sink.Put(ctx, name, data); err != nil {
		return Info{}, err
	}
	info := describeName(name)
	info.Size = int64(len(data))
	info.Notebooks = len(doc.Notebooks)
	info.Snippets = len(doc.Snippets)
	info.Revision = doc.Revision
	m.logger.Info("backup created",
		slog.String("name", name),
		slog.String("location", m.sink.Location()),
		slog.Int("notebooks", info.Notebooks),
		slog.Int("snippets", info.Snippets))
	return info, nil
}

func (m *Manager) fileName(prefix string, t time.Time) string {
	var b strings.Builder
	b.WriteString(prefix)
	b.WriteString(t.Format(timestampStyle))
	b.WriteString(nameExt)
	if m.opts.Compress {
		b.WriteString(".zst")
	}
	if m.opts.Passphrase != "" {
		b.WriteString(".age")
	}
	return b.String()
}

// List returns the backups in the sink, newest first, with counts read from
// each payload. Files that are not backups are ignored.
func (m *Manager) List(ctx context.Context) ([]Info, error) {
	infos, err := m.names(ctx)
	if err != nil {
		return nil, err
	}
	for i := range infos {
		doc, err := m.Load(ctx, infos[i].Name)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			infos[i].Err = err.Error()
			continue
		}
		infos[i].Notebooks = len(doc.Notebooks)
		infos[i].Snippets = len(doc.Snippets)
		infos[i].Revision = doc.Revision
	}
	return infos, nil
}

// names lists backup files without reading them, newest first.
func (m *Manager) names(ctx context.Context) ([]Info, error) {
	objs, err := m.sink.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Info, 0, len(objs))
	for _, o := range objs {
		if !isBackupName(o.Name) {
			continue
		}
		info := describeName(o.Name)
		info.Size = o.Size
		if info.CreatedAt.IsZero() {
			info.CreatedAt = o.ModTime.UTC()
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].Name > out[j].Name
	})
	return out, nil
}

// Load reads and decodes one backup.
func (m *Manager) Load(ctx context.Context, name string) (*transfer.Document, error) {
	if !isBackupName(name) {
		return nil, fmt.Errorf("%w: %q is not a backup name", apperr.ErrInvalidInput, name)
	}
	data, err := m.sink.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	doc, err := open(data, m.opts.Passphrase)
	if err != nil {
		return nil, fmt.Errorf("backup %s: %w", name, err)
	}
	return doc, nil
}

// Restore replaces the store with the named backup. Any failure before the
// store commits leaves it untouched and wraps apperr.ErrRestoreAborted.
func (m *Manager) Restore(ctx context.Context, name string) (err error) {
	defer func() { metrics.Backup("restore", err) }()

	doc, err := m.Load(ctx, name)
	if err != nil {
		if errors.Is(err, apperr.ErrRestoreAborted) {
			return err
		}
		return fmt.Errorf("%w: %w", apperr.ErrRestoreAborted, err)
	}
	if err := m.src.Restore(ctx, doc); err != nil {
		return err
	}
	m.logger.Info("backup restored", slog.String("name", name), slog.String("summary", doc.Summary()))
	return nil
}

// Prune deletes all but the keep newest backups and returns the deleted
// names.
func (m *Manager) Prune(ctx context.Context, keep int) ([]string, error) {
	return m.prune(ctx, keep, false)
}

func (m *Manager) prune(ctx context.Context, keep int, autoOnly bool) (_ []string, err error) {
	defer func() { metrics.Backup("prune", err) }()
	if keep < 1 {
		return nil, fmt.Errorf("%w: keep must be at least 1", apperr.ErrInvalidInput)
	}
	infos, err := m.names(ctx)
	if err != nil {
		return nil, err
	}
	var deleted []string
	kept := 0
	for _, info := range infos {
		if autoOnly && !info.Auto {
			continue
		}
		if kept < keep {
			kept++
			continue
		}
		if err := m.sink.Delete(ctx, info.Name); err != nil {
			return deleted, err
		}
		deleted = append(deleted, info.Name)
	}
	if len(deleted) > 0 {
		m.logger.Info("backups pruned", slog.Int("deleted", len(deleted)), slog.Int("kept", kept))
	}
	return deleted, nil
}

// RunAuto writes an automatic backup every interval until ctx is done,
// pruning automatic backups beyond Options.Keep. Failures are logged and
// retried on the next tick.
func (m *Manager) RunAuto(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("%w: auto backup interval must be positive", apperr.ErrInvalidInput)
	}
	m.logger.Info("auto backup started",
		slog.String("location", m.sink.Location()),
		slog.Duration("interval", interval))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := m.create(ctx, autoPrefix); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				m.logger.Error("auto backup failed", slog.String("error", err.Error()))
				continue
			}
			if m.opts.Keep > 0 {
				if _, err := m.prune(ctx, m.opts.Keep, true); err != nil && ctx.Err() == nil {
					m.logger.Error("auto backup prune failed", slog.String("error", err.Error()))
				}
			}
		}
	}
}

func isBackupName(name string) bool {
	return strings.HasPrefix(name, namePrefix) && strings.Contains(name, nameExt) && checkName(name) == nil
}

// describeName recovers what the file name records: time, origin and
// envelope layers.
func describeName(name string) Info {
	info := Info{
		Name:       name,
		Auto:       strings.HasPrefix(name, autoPrefix),
		Compressed: strings.Contains(name, nameExt+".zst"),
		Encrypted:  strings.HasSuffix(name, ".age"),
	}
	stamp := strings.TrimPrefix(name, autoPrefix)
	if !info.Auto {
		stamp = strings.TrimPrefix(name, namePrefix)
	}
	if i := strings.Index(stamp, nameExt); i > 0 {
		if t, err := time.Parse(timestampStyle, stamp[:i]); err == nil {
			info.CreatedAt = t.UTC()
		}
	}
	return info
}
