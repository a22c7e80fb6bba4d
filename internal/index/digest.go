package index

import (
	"encoding/json"
	"sort"

	"github.com/starford/snix/internal/checksum"
	"github.com/starford/snix/internal/models"
)

// Stats summarizes the indexed state.
type Stats struct {
	Notebooks int `json:"notebooks"`
	Snippets  int `json:"snippets"`
	Favorites int `json:"favorites"`
	Tags      int `json:"tags"`
	Tokens    int `json:"tokens"`
}

// Stats returns counts over the indexed state.
func (ix *Index) Stats() Stats {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	st := Stats{
		Notebooks: len(ix.notebooks),
		Snippets:  len(ix.snippets),
		Tags:      len(ix.tags),
		Tokens:    len(ix.vocab),
	}
	for _, e := range ix.entries {
		if e.snippet.IsFavorite {
			st.Favorites++
		}
	}
	return st
}

type digestState struct {
	Notebooks []models.Notebook   `json:"notebooks"`
	Snippets  []models.Snippet    `json:"snippets"`
	Children  map[string][]string `json:"children"`
	Tokens    map[string][]string `json:"tokens"`
	Tags      map[string][]string `json:"tags"`
}

// Digest is a checksum of the records and every derived structure. An index
// built incrementally and one rebuilt from the same snapshot have equal
// digests.
func (ix *Index) Digest() string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	st := digestState{
		Notebooks: make([]models.Notebook, 0, len(ix.notebooks)),
		Snippets:  make([]models.Snippet, 0, len(ix.snippets)),
		Children:  flatten(ix.children),
		Tokens:    flatten(ix.tokens),
		Tags:      flatten(ix.tags),
	}
	for _, n := range ix.notebooks {
		st.Notebooks = append(st.Notebooks, n)
	}
	sort.Slice(st.Notebooks, func(i, j int) bool { return st.Notebooks[i].ID < st.Notebooks[j].ID })
	for _, e := range ix.snippets {
		st.Snippets = append(st.Snippets, e.snippet)
	}
	sort.Slice(st.Snippets, func(i, j int) bool { return st.Snippets[i].ID < st.Snippets[j].ID })

	// encoding/json sorts map keys, so the output is canonical.
	data, err := json.Marshal(st)
	if err != nil {
		return ""
	}
	return checksum.Sum(data)
}

func flatten(m map[string]map[string]struct{}) map[string][]string {
	out := make(map[string][]string, len(m))
	for k, set := range m {
		if len(set) == 0 {
			continue
		}
		out[k] = setKeys(set)
	}
	return out
}
