package snippetservice

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/starford/snix/internal/models"
)

// SnippetInput holds the fields of a new snippet.
type SnippetInput struct {
	NotebookID  string   `json:"notebook_id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Body        string   `json:"body"`
	Language    string   `json:"language"`
	Tags        []string `json:"tags"`
	IsFavorite  bool     `json:"is_favorite"`
}

// Validate checks the same field limits that imports and restores apply.
func (in SnippetInput) Validate() error {
	return models.Snippet{
		NotebookID:  in.NotebookID,
		Title:       in.Title,
		Description: in.Description,
		Body:        in.Body,
		Language:    in.Language,
		Tags:        in.Tags,
	}.Validate()
}

// SnippetPatch changes the given snippet fields; nil fields are kept.
type SnippetPatch struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Body        *string   `json:"body"`
	Language    *string   `json:"language"`
	Tags        *[]string `json:"tags"`
	IsFavorite  *bool     `json:"is_favorite"`
}

// CreateSnippet adds a snippet to an existing notebook.
func (s *Service) CreateSnippet(ctx context.Context, in SnippetInput) (_ models.Snippet, err error) {
	defer func(started time.Time) { observe("create_snippet", started, err) }(time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()

	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Tags = models.NormalizeTags(in.Tags)
	if err := in.Validate(); err != nil {
		return models.Snippet{}, invalid(err)
	}
	if _, ok := s.index.Notebook(in.NotebookID); !ok {
		return models.Snippet{}, notFound("notebook", in.NotebookID)
	}

	now := s.clock.Now()
	sn := models.Snippet{
		ID:          s.ids.NewID(),
		NotebookID:  in.NotebookID,
		Title:       in.Title,
		Description: in.Description,
		Body:        in.Body,
		Language:    models.NormalizeLanguage(in.Language),
		Tags:        in.Tags,
		IsFavorite:  in.IsFavorite,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if _, err := s.commit(ctx, models.Delta{PutSnippets: []models.Snippet{sn}}); err != nil {
		return models.Snippet{}, err
	}
	s.notify(models.ChangeSnippet, sn.ID)
	return sn, nil
}

// UpdateSnippet applies patch. The version increases when the title, body
// or language changes.
func (s *Service) UpdateSnippet(ctx context.Context, id string, patch SnippetPatch) (_ models.Snippet, err error) {
	defer func(started time.Time) { observe("update_snippet", started, err) }(time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.index.Snippet(id)
	if !ok {
		return models.Snippet{}, notFound("snippet", id)
	}
	next := cur.Clone()
	if patch.Title != nil {
		next.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Description != nil {
		next.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.Body != nil {
		next.Body = *patch.Body
	}
	if patch.Language != nil {
		next.Language = models.NormalizeLanguage(*patch.Language)
	}
	if patch.Tags != nil {
		next.Tags = models.NormalizeTags(*patch.Tags)
	}
	if patch.IsFavorite != nil {
		next.IsFavorite = *patch.IsFavorite
	}
	if err := next.Validate(); err != nil {
		return models.Snippet{}, invalid(err)
	}

	contentChanged := next.Title != cur.Title || next.Body != cur.Body || next.Language != cur.Language
	if !contentChanged && next.Description == cur.Description &&
		next.IsFavorite == cur.IsFavorite && equalTags(next.Tags, cur.Tags) {
		return cur, nil
	}
	if contentChanged {
		next.Version++
	}
	next.UpdatedAt = s.clock.Now()
	if _, err := s.commit(ctx, models.Delta{PutSnippets: []models.Snippet{next}}); err != nil {
		return models.Snippet{}, err
	}
	s.notify(models.ChangeSnippet, id)
	return next, nil
}

// DeleteSnippet removes a snippet and its recency entry.
func (s *Service) DeleteSnippet(ctx context.Context, id string) (err error) {
	defer func(started time.Time) { observe("delete_snippet", started, err) }(time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index.Snippet(id); !ok {
		return notFound("snippet", id)
	}
	d := models.Delta{DeleteSnippets: []string{id}}
	if rest, changed := s.recents.Without(id); changed {
		d.SetRecents = true
		d.Recents = rest
	}
	if _, err := s.commit(ctx, d); err != nil {
		return err
	}
	s.notify(models.ChangeSnippet, id)
	return nil
}

// MoveSnippet moves a snippet to another notebook.
func (s *Service) MoveSnippet(ctx context.Context, id, notebookID string) (_ models.Snippet, err error) {
	defer func(started time.Time) { observe("move_snippet", started, err) }(time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()

	sn, ok := s.index.Snippet(id)
	if !ok {
		return models.Snippet{}, notFound("snippet", id)
	}
	if _, ok := s.index.Notebook(notebookID); !ok {
		return models.Snippet{}, notFound("notebook", notebookID)
	}
	if sn.NotebookID == notebookID {
		return sn, nil
	}
	sn.NotebookID = notebookID
	sn.UpdatedAt = s.clock.Now()
	if _, err := s.commit(ctx, models.Delta{PutSnippets: []models.Snippet{sn}}); err != nil {
		return models.Snippet{}, err
	}
	s.notify(models.ChangeSnippet, id)
	return sn, nil
}

// ToggleFavorite flips the favorite flag.
func (s *Service) ToggleFavorite(ctx context.Context, id string) (_ models.Snippet, err error) {
	defer func(started time.Time) { observe("toggle_favorite", started, err) }(time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()

	sn, ok := s.index.Snippet(id)
	if !ok {
		return models.Snippet{}, notFound("snippet", id)
	}
	sn.IsFavorite = !sn.IsFavorite
	sn.UpdatedAt = s.clock.Now()
	if _, err := s.commit(ctx, models.Delta{PutSnippets: []models.Snippet{sn}}); err != nil {
		return models.Snippet{}, err
	}
	s.notify(models.ChangeSnippet, id)
	return sn, nil
}

// RecordAccess marks a snippet as used: last_accessed_at and use_count are
// updated and it moves to the front of the recency list. Only ErrNotFound
// is reported; storage failures are logged and the snippet is returned
// unchanged.
func (s *Service) RecordAccess(ctx context.Context, id string) (_ models.Snippet, err error) {
	defer func(started time.Time) { observe("record_access", started, err) }(time.Now())
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.index.Snippet(id)
	if !ok {
		return models.Snippet{}, notFound("snippet", id)
	}

	at := s.clock.Now()
	if head, ok := s.recents.Head(); ok && !at.After(head.AccessedAt) {
		at = head.AccessedAt.Add(time.Microsecond)
	}
	next := cur.Clone()
	next.UseCount++
	next.LastAccessedAt = &at

	d := models.Delta{
		PutSnippets: []models.Snippet{next},
		SetRecents:  true,
		Recents:     s.recents.WithAccess(id, at),
	}
	if _, err := s.commit(ctx, d); err != nil {
		s.logger.Warn("record access failed",
			slog.String("snippet_id", id),
			slog.String("error", err.Error()))
		return cur, nil
	}
	s.notify(models.ChangeSnippet, id)
	return next, nil
}

func equalTags(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
