package models

import (
	"fmt"
	"sort"
)

// Delta describes one logical change to persisted state.
// Apply order is: reset, snippet deletes, notebook deletes, notebook puts,
// snippet puts, recents.
type Delta struct {
	Reset           bool          `json:"reset,omitempty"`
	DeleteSnippets  []string      `json:"delete_snippets,omitempty"`
	DeleteNotebooks []string      `json:"delete_notebooks,omitempty"`
	PutNotebooks    []Notebook    `json:"put_notebooks,omitempty"`
	PutSnippets     []Snippet     `json:"put_snippets,omitempty"`
	SetRecents      bool          `json:"set_recents,omitempty"`
	Recents         []RecentEntry `json:"recents,omitempty"`
}

// Empty reports whether the delta changes nothing.
func (d Delta) Empty() bool {
	return !d.Reset && !d.SetRecents &&
		len(d.DeleteSnippets) == 0 && len(d.DeleteNotebooks) == 0 &&
		len(d.PutNotebooks) == 0 && len(d.PutSnippets) == 0
}

// Snapshot is an immutable point-in-time copy of persisted state.
// It is never modified after construction, so sharing a *Snapshot is safe.
type Snapshot struct {
	revision  uint64
	notebooks map[string]Notebook
	snippets  map[string]Snippet
	recents   []RecentEntry
}

// EmptySnapshot returns a snapshot of a fresh store.
func EmptySnapshot() *Snapshot {
	return &Snapshot{
		notebooks: map[string]Notebook{},
		snippets:  map[string]Snippet{},
	}
}

// NewSnapshot builds a snapshot from record slices. Later duplicates of an id
// replace earlier ones; use Check or the transfer validator to reject them.
func NewSnapshot(revision uint64, notebooks []Notebook, snippets []Snippet, recents []RecentEntry) *Snapshot {
	s := &Snapshot{
		revision:  revision,
		notebooks: make(map[string]Notebook, len(notebooks)),
		snippets:  make(map[string]Snippet, len(snippets)),
		recents:   append([]RecentEntry(nil), recents...),
	}
	for _, n := range notebooks {
		s.notebooks[n.ID] = n
	}
	for _, sn := range snippets {
		s.snippets[sn.ID] = sn.Clone()
	}
	return s
}

// Revision is incremented by every applied delta.
func (s *Snapshot) Revision() uint64 { return s.revision }

// Notebook returns the notebook with the given id.
func (s *Snapshot) Notebook(id string) (Notebook, bool) {
	n, ok := s.notebooks[id]
	return n, ok
}

// Snippet returns a copy of the snippet with the given id.
func (s *Snapshot) Snippet(id string) (Snippet, bool) {
	sn, ok := s.snippets[id]
	if !ok {
		return Snippet{}, false
	}
	return sn.Clone(), true
}

// Notebooks returns all notebooks ordered by id.
func (s *Snapshot) Notebooks() []Notebook {
	out := make([]Notebook, 0, len(s.notebooks))
	for _, n := range s.notebooks {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Snippets returns copies of all snippets ordered by id.
func (s *Snapshot) Snippets() []Snippet {
	out := make([]Snippet, 0, len(s.snippets))
	for _, sn := range s.snippets {
		out = append(out, sn.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Recents returns the persisted recency list, most recent first.
func (s *Snapshot) Recents() []RecentEntry {
	return append([]RecentEntry(nil), s.recents...)
}

// Counts returns the number of notebooks and snippets.
func (s *Snapshot) Counts() (notebooks, snippets int) {
	return len(s.notebooks), len(s.snippets)
}

// Apply returns a new snapshot with d applied. The receiver is unchanged.
func (s *Snapshot) Apply(d Delta) *Snapshot {
	next := &Snapshot{revision: s.revision + 1}
	if d.Reset {
		next.notebooks = make(map[string]Notebook, len(d.PutNotebooks))
		next.snippets = make(map[string]Snippet, len(d.PutSnippets))
	} else {
		next.notebooks = make(map[string]Notebook, len(s.notebooks)+len(d.PutNotebooks))
		for id, n := range s.notebooks {
			next.notebooks[id] = n
		}
		next.snippets = make(map[string]Snippet, len(s.snippets)+len(d.PutSnippets))
		for id, sn := range s.snippets {
			next.snippets[id] = sn
		}
		next.recents = s.recents
	}
	for _, id := range d.DeleteSnippets {
		delete(next.snippets, id)
	}
	for _, id := range d.DeleteNotebooks {
		delete(next.notebooks, id)
	}
	for _, n := range d.PutNotebooks {
		next.notebooks[n.ID] = n
	}
	for _, sn := range d.PutSnippets {
		next.snippets[sn.ID] = sn.Clone()
	}
	if d.SetRecents {
		next.recents = append([]RecentEntry(nil), d.Recents...)
	}
	return next
}

// Check verifies structural integrity: every parent and notebook reference
// resolves, the notebook graph is acyclic, sibling names are unique and the
// recency list references existing snippets without duplicates.
func (s *Snapshot) Check() error {
	siblings := make(map[string]map[string]string, len(s.notebooks))
	for _, n := range s.Notebooks() {
		if n.ID == "" {
			return fmt.Errorf("notebook with empty id")
		}
		if n.ParentID != "" {
			if _, ok := s.notebooks[n.ParentID]; !ok {
				return fmt.Errorf("notebook %s: parent %s does not exist", n.ID, n.ParentID)
			}
		}
		names := siblings[n.ParentID]
		if names == nil {
			names = make(map[string]string)
			siblings[n.ParentID] = names
		}
		key := NameKey(n.Name)
		if other, dup := names[key]; dup {
			return fmt.Errorf("notebooks %s and %s share the name %q", other, n.ID, n.Name)
		}
		names[key] = n.ID
	}

	for id := range s.notebooks {
		seen := map[string]struct{}{id: {}}
		cur := s.notebooks[id].ParentID
		for cur != "" {
			if _, loop := seen[cur]; loop {
				return fmt.Errorf("notebook %s is its own ancestor", id)
			}
			seen[cur] = struct{}{}
			cur = s.notebooks[cur].ParentID
		}
	}

	for _, sn := range s.Snippets() {
		if sn.ID == "" {
			return fmt.Errorf("snippet with empty id")
		}
		if _, ok := s.notebooks[sn.NotebookID]; !ok {
			return fmt.Errorf("snippet %s: notebook %s does not exist", sn.ID, sn.NotebookID)
		}
	}

	seen := make(map[string]struct{}, len(s.recents))
	for _, r := range s.recents {
		if _, ok := s.snippets[r.SnippetID]; !ok {
			return fmt.Errorf("recent entry references missing snippet %s", r.SnippetID)
		}
		if _, dup := seen[r.SnippetID]; dup {
			return fmt.Errorf("recent entry %s appears twice", r.SnippetID)
		}
		seen[r.SnippetID] = struct{}{}
	}
	return nil
}
