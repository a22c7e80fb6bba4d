package snippetservice

import (
	"sort"
	"time"

	"github.com/starford/snix/internal/index"
	"github.com/starford/snix/internal/metrics"
	"github.com/starford/snix/internal/models"
)

// GetSnippet returns a snippet by id.
func (s *Service) GetSnippet(id string) (models.Snippet, error) {
	sn, ok := s.index.Snippet(id)
	if !ok {
		return models.Snippet{}, notFound("snippet", id)
	}
	return sn, nil
}

// GetNotebook returns a notebook by id.
func (s *Service) GetNotebook(id string) (models.Notebook, error) {
	n, ok := s.index.Notebook(id)
	if !ok {
		return models.Notebook{}, notFound("notebook", id)
	}
	return n, nil
}

// Get resolves id to a snippet or a notebook; exactly one is non-nil.
func (s *Service) Get(id string) (*models.Snippet, *models.Notebook, error) {
	sn, n, ok := s.index.Get(id)
	if !ok {
		return nil, nil, notFound("record", id)
	}
	return sn, n, nil
}

// List returns the contents of a notebook, or the root notebooks when
// notebookID is empty.
func (s *Service) List(notebookID string) (index.Listing, error) {
	l, ok := s.index.List(notebookID)
	if !ok {
		return index.Listing{}, notFound("notebook", notebookID)
	}
	return l, nil
}

// Search ranks snippets against query; limit <= 0 means no limit.
func (s *Service) Search(query string, limit int) []index.Hit {
	defer metrics.ObserveSearch(time.Now())
	return s.index.Search(query, limit)
}

// ListFavorites returns favorite snippets in listing order.
func (s *Service) ListFavorites() []models.Snippet {
	return s.index.Favorites()
}

// ListRecents returns recently accessed snippets, most recent first;
// limit <= 0 means the whole list.
func (s *Service) ListRecents(limit int) []models.RecentSnippet {
	entries := s.recents.Entries()
	out := make([]models.RecentSnippet, 0, len(entries))
	for _, e := range entries {
		if limit > 0 && len(out) == limit {
			break
		}
		sn, ok := s.index.Snippet(e.SnippetID)
		if !ok {
			continue
		}
		out = append(out, models.RecentSnippet{Snippet: sn, AccessedAt: e.AccessedAt})
	}
	return out
}

// TagCount is a tag and the number of snippets carrying it.
type TagCount struct {
	Tag   string `json:"tag"`
	Count int    `json:"count"`
}

// Tags returns all tags, most used first.
func (s *Service) Tags() []TagCount {
	counts := s.index.Tags()
	out := make([]TagCount, 0, len(counts))
	for tag, n := range counts {
		out = append(out, TagCount{Tag: tag, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Tag < out[j].Tag
	})
	return out
}

// Path returns the breadcrumb from the root down to a notebook.
func (s *Service) Path(notebookID string) ([]models.Notebook, error) {
	p, ok := s.index.Path(notebookID)
	if !ok {
		return nil, notFound("notebook", notebookID)
	}
	return p, nil
}

// Stats describes the loaded store.
type Stats struct {
	index.Stats
	Revision uint64 `json:"revision"`
	Recents  int    `json:"recents"`
	Location string `json:"location"`
}

// Stats returns counts over the current state.
func (s *Service) Stats() Stats {
	return Stats{
		Stats:    s.index.Stats(),
		Revision: s.store.Snapshot().Revision(),
		Recents:  s.recents.Len(),
		Location: s.store.Location(),
	}
}
