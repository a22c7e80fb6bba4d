package transfer

import (
	"fmt"
	"time"

	"github.com/starford/snix/internal/apperr"
	"github.com/starford/snix/internal/models"
)

// Selection narrows an export. The zero value exports everything.
type Selection struct {
	// NotebookIDs limits snippets to these notebooks and their descendants.
	// Ancestors are included so the structure can be rebuilt on import.
	NotebookIDs   []string `json:"notebook_ids,omitempty"`
	FavoritesOnly bool     `json:"favorites_only,omitempty"`
	// Tags keeps snippets carrying at least one of the tags.
	Tags       []string `json:"tags,omitempty"`
	OmitBodies bool     `json:"omit_bodies,omitempty"`
}

// Export builds an export document of the selected part of snap.
func Export(snap *models.Snapshot, sel Selection, now time.Time) (*Document, error) {
	doc := &Document{
		Format:    Format,
		Version:   Version,
		Kind:      KindExport,
		CreatedAt: now,
		Revision:  snap.Revision(),
		Notebooks: make([]Notebook, 0),
		Snippets:  make([]Snippet, 0),
	}

	all := snap.Notebooks()
	keepNotebook := make(map[string]bool, len(all))
	holdsSnippets := make(map[string]bool, len(all))
	if len(sel.NotebookIDs) == 0 {
		for _, n := range all {
			keepNotebook[n.ID] = true
			holdsSnippets[n.ID] = true
		}
	} else {
		children := make(map[string][]string)
		for _, n := range all {
			children[n.ParentID] = append(children[n.ParentID], n.ID)
		}
		for _, id := range sel.NotebookIDs {
			if _, ok := snap.Notebook(id); !ok {
				return nil, fmt.Errorf("export notebook %s: %w", id, apperr.ErrNotFound)
			}
			queue := []string{id}
			for len(queue) > 0 {
				cur := queue[0]
				queue = queue[1:]
				keepNotebook[cur] = true
				holdsSnippets[cur] = true
				queue = append(queue, children[cur]...)
			}
			for n, _ := snap.Notebook(id); n.ParentID != ""; n, _ = snap.Notebook(n.ParentID) {
				keepNotebook[n.ParentID] = true
			}
		}
	}
	for _, n := range all {
		if keepNotebook[n.ID] {
			doc.Notebooks = append(doc.Notebooks, notebookOut(n))
		}
	}

	tags := models.NormalizeTags(sel.Tags)
	included := make(map[string]bool)
	for _, s := range snap.Snippets() {
		if !holdsSnippets[s.NotebookID] {
			continue
		}
		if sel.FavoritesOnly && !s.IsFavorite {
			continue
		}
		if len(tags) > 0 && !hasAnyTag(s, tags) {
			continue
		}
		out := snippetOut(s)
		if sel.OmitBodies {
			out.Body = ""
		}
		doc.Snippets = append(doc.Snippets, out)
		included[s.ID] = true
	}
	for _, r := range snap.Recents() {
		if included[r.SnippetID] {
			doc.Recents = append(doc.Recents, Recent(r))
		}
	}
	doc.Tags = tagMap(doc.Snippets)
	return doc, nil
}

func hasAnyTag(s models.Snippet, tags []string) bool {
	for _, t := range tags {
		if s.HasTag(t) {
			return true
		}
	}
	return false
}
