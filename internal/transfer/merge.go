package transfer

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/starford/snix/internal/apperr"
	"github.com/starford/snix/internal/models"
)

// importSuffix marks a notebook renamed to avoid a sibling name clash.
const importSuffix = " (imported)"

// Report summarizes an import.
type Report struct {
	NotebooksCreated int     `json:"notebooks_created"`
	SnippetsCreated  int     `json:"snippets_created"`
	Renamed          int     `json:"renamed"`
	Skipped          int     `json:"skipped"`
	Notices          []error `json:"-"`
}

// Messages returns the notices as strings.
func (r Report) Messages() []string {
	out := make([]string, 0, len(r.Notices))
	for _, n := range r.Notices {
		out = append(out, n.Error())
	}
	return out
}

// Merge plans the import of doc into snap. Records whose id is taken get a
// fresh id from newID and references to them are rewritten; notebooks whose
// name clashes with a sibling get a suffix; snippets whose notebook cannot
// be resolved are skipped, as are records outside the field limits. The
// returned delta adds records only.
func Merge(snap *models.Snapshot, doc *Document, newID func() string, now time.Time) (models.Delta, Report, error) {
	var rep Report
	if doc == nil {
		return models.Delta{}, rep, fmt.Errorf("%w: empty document", apperr.ErrInvalidInput)
	}
	if doc.Format != Format || doc.Version < 1 || doc.Version > Version {
		return models.Delta{}, rep, fmt.Errorf("%w: %w", apperr.ErrInvalidInput, ErrUnsupported)
	}

	m := &merger{
		snap:     snap,
		newID:    newID,
		now:      now,
		rep:      &rep,
		ids:      make(map[string]string),
		used:     make(map[string]bool),
		siblings: make(map[string]map[string]bool),
	}
	for _, n := range snap.Notebooks() {
		m.siblingNames(n.ParentID)[models.NameKey(n.Name)] = true
	}

	var d models.Delta
	for _, n := range parentsFirst(doc.Notebooks) {
		if nb, ok := m.notebook(n); ok {
			d.PutNotebooks = append(d.PutNotebooks, nb)
		}
	}
	for _, s := range doc.Snippets {
		if sn, ok := m.snippet(s); ok {
			d.PutSnippets = append(d.PutSnippets, sn)
		}
	}
	rep.NotebooksCreated = len(d.PutNotebooks)
	rep.SnippetsCreated = len(d.PutSnippets)
	return d, rep, nil
}

type merger struct {
	snap     *models.Snapshot
	newID    func() string
	now      time.Time
	rep      *Report
	ids      map[string]string          // document notebook id -> stored id
	used     map[string]bool            // ids assigned during this merge
	siblings map[string]map[string]bool // parent id -> taken name keys
}

func (m *merger) siblingNames(parent string) map[string]bool {
	names, ok := m.siblings[parent]
	if !ok {
		names = make(map[string]bool)
		m.siblings[parent] = names
	}
	return names
}

func (m *merger) taken(id string) bool {
	_, nb := m.snap.Notebook(id)
	_, sn := m.snap.Snippet(id)
	return nb || sn || m.used[id]
}

// claim returns id, or a fresh id when id is empty or already taken.
func (m *merger) claim(kind, id string) string {
	if id != "" && !m.taken(id) {
		m.used[id] = true
		return id
	}
	fresh := m.newID()
	for m.taken(fresh) {
		fresh = m.newID()
	}
	m.used[fresh] = true
	if id != "" {
		m.rep.Renamed++
		m.rep.Notices = append(m.rep.Notices, fmt.Errorf("%s %s imported as %s: %w", kind, id, fresh, apperr.ErrImportRenamed))
	}
	return fresh
}

func (m *merger) notebook(n Notebook) (models.Notebook, bool) {
	name := strings.TrimSpace(n.Name)
	if name == "" {
		m.skip("notebook %s has no name", n.ID)
		return models.Notebook{}, false
	}
	parent, ok := m.ids[n.ParentID]
	if !ok {
		// Parents outside the document may already be in the store;
		// otherwise the notebook lands at the root.
		if _, exists := m.snap.Notebook(n.ParentID); !exists {
			parent = ""
		} else {
			parent = n.ParentID
		}
	}

	nb := n.model()
	nb.Name = name
	nb.ParentID = parent
	if err := nb.Validate(); err != nil {
		m.skip("notebook %s: %v", n.ID, err)
		return models.Notebook{}, false
	}
	nb.ID = m.claim("notebook", n.ID)
	nb.Name = m.freeName(parent, name)
	if nb.CreatedAt.IsZero() {
		nb.CreatedAt = m.now
	}
	if nb.UpdatedAt.IsZero() {
		nb.UpdatedAt = m.now
	}
	if n.ID != "" {
		m.ids[n.ID] = nb.ID
	}
	return nb, true
}

// freeName returns name, suffixed until no sibling under parent uses it.
// The name is shortened so the suffixed result stays within MaxNameLength.
func (m *merger) freeName(parent, name string) string {
	names := m.siblingNames(parent)
	candidate := name
	for i := 1; names[models.NameKey(candidate)]; i++ {
		suffix := importSuffix
		if i > 1 {
			suffix = fmt.Sprintf(" (imported %d)", i)
		}
		candidate = withSuffix(name, suffix)
	}
	names[models.NameKey(candidate)] = true
	return candidate
}

func withSuffix(name, suffix string) string {
	r := []rune(name)
	if room := models.MaxNameLength - utf8.RuneCountInString(suffix); len(r) > room {
		r = r[:room]
	}
	return strings.TrimSpace(string(r)) + suffix
}

func (m *merger) snippet(s Snippet) (models.Snippet, bool) {
	if strings.TrimSpace(s.Title) == "" {
		m.skip("snippet %s has no title", s.ID)
		return models.Snippet{}, false
	}
	notebook, ok := m.ids[s.NotebookID]
	if !ok {
		if _, exists := m.snap.Notebook(s.NotebookID); !exists || s.NotebookID == "" {
			m.skip("snippet %s: notebook %s not found", s.ID, s.NotebookID)
			return models.Snippet{}, false
		}
		notebook = s.NotebookID
	}

	sn := s.model()
	sn.NotebookID = notebook
	sn.Title = strings.TrimSpace(sn.Title)
	if err := sn.Validate(); err != nil {
		m.skip("snippet %s: %v", s.ID, err)
		return models.Snippet{}, false
	}
	sn.ID = m.claim("snippet", s.ID)
	if sn.CreatedAt.IsZero() {
		sn.CreatedAt = m.now
	}
	if sn.UpdatedAt.IsZero() {
		sn.UpdatedAt = m.now
	}
	return sn, true
}

func (m *merger) skip(format string, args ...any) {
	m.rep.Skipped++
	m.rep.Notices = append(m.rep.Notices, fmt.Errorf("skipped: "+format, args...))
}

// parentsFirst orders notebooks so that every parent precedes its children.
// Notebooks caught in a cycle come last with their parent cleared.
func parentsFirst(list []Notebook) []Notebook {
	inDoc := make(map[string]bool, len(list))
	for _, n := range list {
		inDoc[n.ID] = true
	}
	placed := make(map[string]bool, len(list))
	out := make([]Notebook, 0, len(list))
	pending := list
	for len(pending) > 0 {
		var next []Notebook
		for _, n := range pending {
			if n.ParentID == "" || !inDoc[n.ParentID] || placed[n.ParentID] {
				out = append(out, n)
				placed[n.ID] = true
			} else {
				next = append(next, n)
			}
		}
		if len(next) == len(pending) {
			for _, n := range next {
				n.ParentID = ""
				out = append(out, n)
			}
			break
		}
		pending = next
	}
	return out
}
