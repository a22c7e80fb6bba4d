// Package transfer converts store state to and from the portable document
// used for backups, exports and imports.
package transfer

import (
	"fmt"
	"time"

	"github.com/starford/snix/internal/models"
)

// Document identification.
const (
	Format  = "snix"
	Version = 1

	KindBackup = "backup"
	KindExport = "export"
)

// Document is the portable serialized form of a store or a subset of it.
type Document struct {
	Format    string               `json:"format" yaml:"format"`
	Version   int                  `json:"version" yaml:"version"`
	Kind      string               `json:"kind" yaml:"kind"`
	CreatedAt time.Time            `json:"created_at" yaml:"created_at"`
	Revision  uint64               `json:"revision,omitempty" yaml:"revision,omitempty"`
	Notebooks []Notebook           `json:"notebooks" yaml:"notebooks"`
	Snippets  []Snippet            `json:"snippets" yaml:"snippets"`
	Recents   []Recent             `json:"recents,omitempty" yaml:"recents,omitempty"`
	Tags      map[string][]string  `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Notebook is the document form of models.Notebook.
type Notebook struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description,omitempty" yaml:"description,omitempty"`
	ParentID    string    `json:"parent_id,omitempty" yaml:"parent_id,omitempty"`
	CreatedAt   time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" yaml:"updated_at"`
}

// Snippet is the document form of models.Snippet.
type Snippet struct {
	ID             string     `json:"id" yaml:"id"`
	NotebookID     string     `json:"notebook_id" yaml:"notebook_id"`
	Title          string     `json:"title" yaml:"title"`
	Description    string     `json:"description,omitempty" yaml:"description,omitempty"`
	Body           string     `json:"body" yaml:"body"`
	Language       string     `json:"language,omitempty" yaml:"language,omitempty"`
	Tags           []string   `json:"tags,omitempty" yaml:"tags,omitempty"`
	IsFavorite     bool       `json:"is_favorite,omitempty" yaml:"is_favorite,omitempty"`
	UseCount       int        `json:"use_count,omitempty" yaml:"use_count,omitempty"`
	Version        int        `json:"version" yaml:"version"`
	CreatedAt      time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" yaml:"updated_at"`
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty" yaml:"last_accessed_at,omitempty"`
}

// Recent is one recency list entry.
type Recent struct {
	SnippetID  string    `json:"snippet_id" yaml:"snippet_id"`
	AccessedAt time.Time `json:"accessed_at" yaml:"accessed_at"`
}

// FromSnapshot captures the whole of snap as a document of the given kind.
func FromSnapshot(snap *models.Snapshot, kind string, now time.Time) *Document {
	doc := &Document{
		Format:    Format,
		Version:   Version,
		Kind:      kind,
		CreatedAt: now,
		Revision:  snap.Revision(),
		Notebooks: make([]Notebook, 0),
		Snippets:  make([]Snippet, 0),
	}
	for _, n := range snap.Notebooks() {
		doc.Notebooks = append(doc.Notebooks, notebookOut(n))
	}
	for _, s := range snap.Snippets() {
		doc.Snippets = append(doc.Snippets, snippetOut(s))
	}
	for _, r := range snap.Recents() {
		doc.Recents = append(doc.Recents, Recent(r))
	}
	doc.Tags = tagMap(doc.Snippets)
	return doc
}

// ToSnapshot converts the document into a snapshot. Duplicate ids collapse;
// call Validate first to reject them.
func (d *Document) ToSnapshot() *models.Snapshot {
	notebooks := make([]models.Notebook, 0, len(d.Notebooks))
	for _, n := range d.Notebooks {
		notebooks = append(notebooks, n.model())
	}
	snippets := make([]models.Snippet, 0, len(d.Snippets))
	for _, s := range d.Snippets {
		snippets = append(snippets, s.model())
	}
	recents := make([]models.RecentEntry, 0, len(d.Recents))
	for _, r := range d.Recents {
		recents = append(recents, models.RecentEntry(r))
	}
	return models.NewSnapshot(d.Revision, notebooks, snippets, recents)
}

// Summary is a one-line description used in listings and logs.
func (d *Document) Summary() string {
	return fmt.Sprintf("%s v%d: %d notebooks, %d snippets", d.Kind, d.Version, len(d.Notebooks), len(d.Snippets))
}

func notebookOut(n models.Notebook) Notebook {
	return Notebook{
		ID:          n.ID,
		Name:        n.Name,
		Description: n.Description,
		ParentID:    n.ParentID,
		CreatedAt:   n.CreatedAt,
		UpdatedAt:   n.UpdatedAt,
	}
}

func (n Notebook) model() models.Notebook {
	return models.Notebook{
		ID:          n.ID,
		Name:        n.Name,
		Description: n.Description,
		ParentID:    n.ParentID,
		CreatedAt:   n.CreatedAt.UTC(),
		UpdatedAt:   n.UpdatedAt.UTC(),
	}
}

func snippetOut(s models.Snippet) Snippet {
	s = s.Clone()
	return Snippet{
		ID:             s.ID,
		NotebookID:     s.NotebookID,
		Title:          s.Title,
		Description:    s.Description,
		Body:           s.Body,
		Language:       s.Language,
		Tags:           s.Tags,
		IsFavorite:     s.IsFavorite,
		UseCount:       s.UseCount,
		Version:        s.Version,
		CreatedAt:      s.CreatedAt,
		UpdatedAt:      s.UpdatedAt,
		LastAccessedAt: s.LastAccessedAt,
	}
}

func (s Snippet) model() models.Snippet {
	out := models.Snippet{
		ID:          s.ID,
		NotebookID:  s.NotebookID,
		Title:       s.Title,
		Description: s.Description,
		Body:        s.Body,
		Language:    models.NormalizeLanguage(s.Language),
		Tags:        models.NormalizeTags(s.Tags),
		IsFavorite:  s.IsFavorite,
		UseCount:    s.UseCount,
		Version:     max(s.Version, 1),
		CreatedAt:   s.CreatedAt.UTC(),
		UpdatedAt:   s.UpdatedAt.UTC(),
	}
	if s.LastAccessedAt != nil {
		t := s.LastAccessedAt.UTC()
		out.LastAccessedAt = &t
	}
	return out
}

// tagMap indexes snippet ids by tag.
func tagMap(snippets []Snippet) map[string][]string {
	out := make(map[string][]string)
	for _, s := range snippets {
		for _, t := range s.Tags {
			out[t] = append(out[t], s.ID)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
