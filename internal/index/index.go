// Package index is the in-memory Index Layer: O(1) lookups, ordered
// listings and weighted fuzzy search over a store snapshot. It is a cache
// that can always be discarded and rebuilt from storage.
package index

import (
	"fmt"
	"sort"
	"sync"

	"github.com/starford/snix/internal/apperr"
	"github.com/starford/snix/internal/models"
)

const excerptLen = 200

// Listing is the content of one notebook (or of the root).
type Listing struct {
	Notebook  *models.Notebook  `json:"notebook,omitempty"`
	Notebooks []models.Notebook `json:"notebooks"`
	Snippets  []models.Snippet  `json:"snippets"`
}

type entry struct {
	snippet     models.Snippet
	pos         int      // position in Index.entries
	title       string   // lower-cased
	description string   // lower-cased
	body        string   // lower-cased
	excerpt     string   // first excerptLen runes of the body
	tokens      []string // distinct body tokens
}

// Index holds derived lookup structures. Safe for concurrent readers; Apply
// and Rebuild take the write lock.
type Index struct {
	mu      sync.RWMutex
	weights Weights

	notebooks  map[string]models.Notebook
	children   map[string]map[string]struct{} // parent id ("" for root) -> notebook ids
	byNotebook map[string]map[string]struct{} // notebook id -> snippet ids

	snippets map[string]*entry
	entries  []*entry // flat list scored by Search

	tokens map[string]map[string]struct{} // body token -> snippet ids
	vocab  []string                       // sorted keys of tokens
	tags   map[string]map[string]struct{} // tag -> snippet ids
}

// New returns an empty index using weights for search scoring.
func New(weights Weights) *Index {
	ix := &Index{weights: weights}
	ix.reset()
	return ix
}

func (ix *Index) reset() {
	ix.notebooks = make(map[string]models.Notebook)
	ix.children = make(map[string]map[string]struct{})
	ix.byNotebook = make(map[string]map[string]struct{})
	ix.snippets = make(map[string]*entry)
	ix.entries = nil
	ix.tokens = make(map[string]map[string]struct{})
	ix.vocab = nil
	ix.tags = make(map[string]map[string]struct{})
}

// Weights returns the scoring weights in use.
func (ix *Index) Weights() Weights {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.weights
}

// Rebuild discards everything and indexes snap from scratch.
func (ix *Index) Rebuild(snap *models.Snapshot) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.reset()
	for _, n := range snap.Notebooks() {
		ix.putNotebook(n)
	}
	snippets := snap.Snippets()
	ix.entries = make([]*entry, 0, len(snippets))
	for _, s := range snippets {
		ix.putSnippet(s)
	}
}

// Apply updates the index incrementally with a committed delta. It fails
// with apperr.ErrIndexStale when the delta does not fit the indexed state;
// the caller must then Rebuild.
func (ix *Index) Apply(d models.Delta) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if d.Reset {
		ix.reset()
	}
	for _, id := range d.DeleteSnippets {
		if _, ok := ix.snippets[id]; !ok {
			return fmt.Errorf("index: delete unknown snippet %s: %w", id, apperr.ErrIndexStale)
		}
		ix.removeSnippet(id)
	}
	for _, id := range d.DeleteNotebooks {
		if _, ok := ix.notebooks[id]; !ok {
			return fmt.Errorf("index: delete unknown notebook %s: %w", id, apperr.ErrIndexStale)
		}
		if len(ix.children[id]) > 0 || len(ix.byNotebook[id]) > 0 {
			return fmt.Errorf("index: delete non-empty notebook %s: %w", id, apperr.ErrIndexStale)
		}
		ix.removeNotebook(id)
	}
	for _, n := range d.PutNotebooks {
		if n.ParentID != "" {
			if _, ok := ix.notebooks[n.ParentID]; !ok && !containsNotebook(d.PutNotebooks, n.ParentID) {
				return fmt.Errorf("index: notebook %s has unknown parent %s: %w", n.ID, n.ParentID, apperr.ErrIndexStale)
			}
		}
		ix.putNotebook(n)
	}
	for _, s := range d.PutSnippets {
		if _, ok := ix.notebooks[s.NotebookID]; !ok {
			return fmt.Errorf("index: snippet %s has unknown notebook %s: %w", s.ID, s.NotebookID, apperr.ErrIndexStale)
		}
		ix.putSnippet(s)
	}
	return nil
}

func containsNotebook(list []models.Notebook, id string) bool {
	for _, n := range list {
		if n.ID == id {
			return true
		}
	}
	return false
}

func (ix *Index) putNotebook(n models.Notebook) {
	if old, ok := ix.notebooks[n.ID]; ok && old.ParentID != n.ParentID {
		removeFromSet(ix.children, old.ParentID, n.ID)
	}
	ix.notebooks[n.ID] = n
	addToSet(ix.children, n.ParentID, n.ID)
}

func (ix *Index) removeNotebook(id string) {
	n := ix.notebooks[id]
	removeFromSet(ix.children, n.ParentID, id)
	delete(ix.notebooks, id)
	delete(ix.children, id)
	delete(ix.byNotebook, id)
}

func (ix *Index) putSnippet(s models.Snippet) {
	s = s.Clone()
	if old, ok := ix.snippets[s.ID]; ok {
		ix.unlinkSnippet(old)
		old.snippet = s
		ix.fill(old)
		ix.linkSnippet(old)
		return
	}
	e := &entry{snippet: s, pos: len(ix.entries)}
	ix.fill(e)
	ix.entries = append(ix.entries, e)
	ix.snippets[s.ID] = e
	ix.linkSnippet(e)
}

func (ix *Index) removeSnippet(id string) {
	e := ix.snippets[id]
	ix.unlinkSnippet(e)
	last := len(ix.entries) - 1
	if e.pos != last {
		moved := ix.entries[last]
		ix.entries[e.pos] = moved
		moved.pos = e.pos
	}
	ix.entries[last] = nil
	ix.entries = ix.entries[:last]
	delete(ix.snippets, id)
}

func (ix *Index) fill(e *entry) {
	e.title = lower(e.snippet.Title)
	e.description = lower(e.snippet.Description)
	e.body = lower(e.snippet.Body)
	e.excerpt = excerpt(e.snippet.Body, excerptLen)
	e.tokens = Tokenize(e.snippet.Body)
}

// linkSnippet registers e in the notebook, token and tag maps.
func (ix *Index) linkSnippet(e *entry) {
	id := e.snippet.ID
	addToSet(ix.byNotebook, e.snippet.NotebookID, id)
	for _, tok := range e.tokens {
		if _, known := ix.tokens[tok]; !known {
			ix.vocab = insertSorted(ix.vocab, tok)
		}
		addToSet(ix.tokens, tok, id)
	}
	for _, tag := range e.snippet.Tags {
		addToSet(ix.tags, tag, id)
	}
}

func (ix *Index) unlinkSnippet(e *entry) {
	id := e.snippet.ID
	removeFromSet(ix.byNotebook, e.snippet.NotebookID, id)
	for _, tok := range e.tokens {
		if removeFromSet(ix.tokens, tok, id) {
			ix.vocab = removeSorted(ix.vocab, tok)
		}
	}
	for _, tag := range e.snippet.Tags {
		removeFromSet(ix.tags, tag, id)
	}
}

// Notebook returns the notebook with the given id. O(1).
func (ix *Index) Notebook(id string) (models.Notebook, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	n, ok := ix.notebooks[id]
	return n, ok
}

// Snippet returns a copy of the snippet with the given id. O(1).
func (ix *Index) Snippet(id string) (models.Snippet, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	e, ok := ix.snippets[id]
	if !ok {
		return models.Snippet{}, false
	}
	return e.snippet.Clone(), true
}

// Get resolves id to either a snippet or a notebook. O(1).
func (ix *Index) Get(id string) (*models.Snippet, *models.Notebook, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if e, ok := ix.snippets[id]; ok {
		s := e.snippet.Clone()
		return &s, nil, true
	}
	if n, ok := ix.notebooks[id]; ok {
		return nil, &n, true
	}
	return nil, nil, false
}

// List returns the children of notebookID in listing order; an empty id
// lists the root notebooks. The bool is false for an unknown notebook.
func (ix *Index) List(notebookID string) (Listing, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	var out Listing
	if notebookID != "" {
		n, ok := ix.notebooks[notebookID]
		if !ok {
			return Listing{}, false
		}
		out.Notebook = &n
	}

	out.Notebooks = make([]models.Notebook, 0, len(ix.children[notebookID]))
	for id := range ix.children[notebookID] {
		out.Notebooks = append(out.Notebooks, ix.notebooks[id])
	}
	sortNotebooks(out.Notebooks)

	out.Snippets = make([]models.Snippet, 0, len(ix.byNotebook[notebookID]))
	for id := range ix.byNotebook[notebookID] {
		out.Snippets = append(out.Snippets, ix.snippets[id].snippet.Clone())
	}
	sortSnippets(out.Snippets)
	return out, true
}

// ChildNamed finds the child of parentID whose name matches name after
// normalization.
func (ix *Index) ChildNamed(parentID, name string) (models.Notebook, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	key := models.NameKey(name)
	for id := range ix.children[parentID] {
		if n := ix.notebooks[id]; models.NameKey(n.Name) == key {
			return n, true
		}
	}
	return models.Notebook{}, false
}

// IsAncestor reports whether ancestorID appears on the parent chain of id
// (id itself included).
func (ix *Index) IsAncestor(ancestorID, id string) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	for cur := id; cur != ""; {
		if cur == ancestorID {
			return true
		}
		n, ok := ix.notebooks[cur]
		if !ok {
			return false
		}
		cur = n.ParentID
	}
	return false
}

// Path returns the notebooks from the root down to id.
func (ix *Index) Path(id string) ([]models.Notebook, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	var rev []models.Notebook
	for cur := id; cur != ""; {
		n, ok := ix.notebooks[cur]
		if !ok {
			return nil, false
		}
		rev = append(rev, n)
		cur = n.ParentID
	}
	out := make([]models.Notebook, len(rev))
	for i, n := range rev {
		out[len(rev)-1-i] = n
	}
	return out, true
}

// Descendants returns every notebook below id (children before their own
// children) and every snippet contained in id or below it.
func (ix *Index) Descendants(id string) (notebooks []string, snippets []string) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	queue := []string{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for sid := range ix.byNotebook[cur] {
			snippets = append(snippets, sid)
		}
		kids := setKeys(ix.children[cur])
		notebooks = append(notebooks, kids...)
		queue = append(queue, kids...)
	}
	sort.Strings(snippets)
	return notebooks, snippets
}

// Favorites returns all favorite snippets in listing order.
func (ix *Index) Favorites() []models.Snippet {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]models.Snippet, 0)
	for _, e := range ix.entries {
		if e.snippet.IsFavorite {
			out = append(out, e.snippet.Clone())
		}
	}
	sortSnippets(out)
	return out
}

// All returns every snippet in listing order.
func (ix *Index) All() []models.Snippet {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.allLocked()
}

func (ix *Index) allLocked() []models.Snippet {
	out := make([]models.Snippet, 0, len(ix.entries))
	for _, e := range ix.entries {
		out = append(out, e.snippet.Clone())
	}
	sortSnippets(out)
	return out
}

// Tags returns every tag with the number of snippets carrying it.
func (ix *Index) Tags() map[string]int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make(map[string]int, len(ix.tags))
	for tag, ids := range ix.tags {
		out[tag] = len(ids)
	}
	return out
}

// Counts returns the number of indexed notebooks and snippets.
func (ix *Index) Counts() (notebooks, snippets int) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.notebooks), len(ix.snippets)
}

func addToSet(m map[string]map[string]struct{}, key, id string) {
	set, ok := m[key]
	if !ok {
		set = make(map[string]struct{})
		m[key] = set
	}
	set[id] = struct{}{}
}

// removeFromSet deletes id from m[key] and reports whether the set became
// empty (and was dropped).
func removeFromSet(m map[string]map[string]struct{}, key, id string) bool {
	set, ok := m[key]
	if !ok {
		return false
	}
	delete(set, id)
	if len(set) == 0 {
		delete(m, key)
		return true
	}
	return false
}

func setKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func insertSorted(list []string, s string) []string {
	i := sort.SearchStrings(list, s)
	if i < len(list) && list[i] == s {
		return list
	}
	list = append(list, "")
	copy(list[i+1:], list[i:])
	list[i] = s
	return list
}

func removeSorted(list []string, s string) []string {
	i := sort.SearchStrings(list, s)
	if i >= len(list) || list[i] != s {
		return list
	}
	return append(list[:i], list[i+1:]...)
}
