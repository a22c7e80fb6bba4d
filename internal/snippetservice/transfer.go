package snippetservice

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/snix/internal/apperr"
	"github.com/starford/snix/internal/models"
	"github.com/starford/snix/internal/transfer"
)

// BackupDocument captures the last committed state as a backup document.
func (s *Service) BackupDocument() *transfer.Document {
	return transfer.FromSnapshot(s.store.Snapshot(), transfer.KindBackup, s.clock.Now())
}

// Export builds an export document of the selected records.
func (s *Service) Export(sel transfer.Selection) (*transfer.Document, error) {
	return transfer.Export(s.store.Snapshot(), sel, s.clock.Now())
}

// Import merges doc into the store in one commit.
func (s *Service) Import(ctx context.Context, doc *transfer.Document) (_ transfer.Report, err error) {
	defer func(started time.Time) { observe("import", started, err) }(time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()

	d, rep, err := transfer.Merge(s.store.Snapshot(), doc, s.ids.NewID, s.clock.Now())
	if err != nil {
		return rep, err
	}
	if d.Empty() {
		return rep, nil
	}
	if _, err := s.commit(ctx, d); err != nil {
		return transfer.Report{}, err
	}
	s.logger.Info("import finished",
		slog.Int("notebooks", rep.NotebooksCreated),
		slog.Int("snippets", rep.SnippetsCreated),
		slog.Int("renamed", rep.Renamed),
		slog.Int("skipped", rep.Skipped))
	s.notify(models.ChangeTree, "")
	return rep, nil
}

// Restore replaces the whole store with doc. An invalid document or a
// cancelled context fails with ErrRestoreAborted and leaves the store as it
// was.
func (s *Service) Restore(ctx context.Context, doc *transfer.Document) (err error) {
	defer func(started time.Time) { observe("restore", started, err) }(time.Now())
	if err := transfer.Validate(doc); err != nil {
		return fmt.Errorf("%w: %w", apperr.ErrRestoreAborted, err)
	}
	snap := doc.ToSnapshot()
	d := models.Delta{
		Reset:        true,
		PutNotebooks: snap.Notebooks(),
		PutSnippets:  snap.Snippets(),
		SetRecents:   true,
		Recents:      truncateRecents(snap.Recents(), s.recents.Capacity()),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", apperr.ErrRestoreAborted, err)
	}
	committed, err := s.store.Commit(ctx, d)
	if err != nil {
		return fmt.Errorf("%w: %w", apperr.ErrRestoreAborted, err)
	}
	s.rebuildFrom(committed, "restore")
	n, sn := committed.Counts()
	s.logger.Info("restore finished",
		slog.Uint64("revision", committed.Revision()),
		slog.Int("notebooks", n),
		slog.Int("snippets", sn))
	s.notify(models.ChangeTree, "")
	return nil
}

func truncateRecents(list []models.RecentEntry, n int) []models.RecentEntry {
	if len(list) > n {
		return list[:n]
	}
	return list
}
