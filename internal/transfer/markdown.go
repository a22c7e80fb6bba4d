package transfer

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/starford/snix/internal/models"
	"github.com/starford/snix/internal/parser"
)

// NotebookFile holds notebook metadata inside each vault directory.
const NotebookFile = ".notebook.yaml"

type notebookMeta struct {
	ID          string    `yaml:"id"`
	Name        string    `yaml:"name"`
	Description string    `yaml:"description,omitempty"`
	CreatedAt   time.Time `yaml:"created_at,omitempty"`
	UpdatedAt   time.Time `yaml:"updated_at,omitempty"`
}

// WriteMarkdown writes doc as a directory tree: one directory per notebook
// and one Markdown file per snippet, with YAML frontmatter and the body in a
// fenced block.
func WriteMarkdown(dir string, doc *Document) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	children := make(map[string][]Notebook)
	for _, n := range doc.Notebooks {
		children[n.ParentID] = append(children[n.ParentID], n)
	}
	snippets := make(map[string][]Snippet)
	for _, s := range doc.Snippets {
		snippets[s.NotebookID] = append(snippets[s.NotebookID], s)
	}

	var write func(parentDir, parentID string) error
	write = func(parentDir, parentID string) error {
		kids := children[parentID]
		sort.Slice(kids, func(i, j int) bool { return kids[i].Name < kids[j].Name })
		taken := make(map[string]bool)
		for _, n := range kids {
			nbDir := filepath.Join(parentDir, uniqueName(taken, safeName(n.Name), ""))
			if err := os.MkdirAll(nbDir, 0o755); err != nil {
				return err
			}
			meta, err := yaml.Marshal(notebookMeta{
				ID: n.ID, Name: n.Name, Description: n.Description,
				CreatedAt: n.CreatedAt, UpdatedAt: n.UpdatedAt,
			})
			if err != nil {
				return err
			}
			if err := os.WriteFile(filepath.Join(nbDir, NotebookFile), meta, 0o644); err != nil {
				return err
			}
			if err := writeSnippets(nbDir, snippets[n.ID]); err != nil {
				return err
			}
			if err := write(nbDir, n.ID); err != nil {
				return err
			}
		}
		return nil
	}
	return write(dir, "")
}

func writeSnippets(dir string, list []Snippet) error {
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	taken := make(map[string]bool)
	for _, s := range list {
		data, err := parser.RenderSnippet(s.model())
		if err != nil {
			return fmt.Errorf("render snippet %s: %w", s.ID, err)
		}
		name := uniqueName(taken, safeName(s.Title), ".md")
		if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
			return err
		}
	}
	return nil
}

// ReadMarkdown builds an export document from a directory tree written by
// WriteMarkdown or by hand. Directories without metadata become notebooks
// named after the directory; Markdown files in the top directory land in a
// notebook named after it.
func ReadMarkdown(dir string, newID func() string, now time.Time) (*Document, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	doc := &Document{
		Format: Format, Version: Version, Kind: KindExport, CreatedAt: now,
		Notebooks: make([]Notebook, 0), Snippets: make([]Snippet, 0),
	}
	dirIDs := make(map[string]string) // directory -> notebook id

	// notebookFor returns the notebook of directory p, creating it on demand.
	var notebookFor func(p string) (string, error)
	notebookFor = func(p string) (string, error) {
		if id, ok := dirIDs[p]; ok {
			return id, nil
		}
		parent := ""
		if p != dir {
			var err error
			if filepath.Dir(p) != dir || hasMarkdown(dir) {
				parent, err = notebookFor(filepath.Dir(p))
				if err != nil {
					return "", err
				}
			}
		}
		n := Notebook{Name: filepath.Base(p), ParentID: parent, CreatedAt: now, UpdatedAt: now}
		data, err := os.ReadFile(filepath.Join(p, NotebookFile))
		switch {
		case err == nil:
			var meta notebookMeta
			if err := yaml.Unmarshal(data, &meta); err != nil {
				return "", fmt.Errorf("%s: %w", filepath.Join(p, NotebookFile), err)
			}
			n.ID, n.Description = meta.ID, meta.Description
			if meta.Name != "" {
				n.Name = meta.Name
			}
			if !meta.CreatedAt.IsZero() {
				n.CreatedAt = meta.CreatedAt
			}
			if !meta.UpdatedAt.IsZero() {
				n.UpdatedAt = meta.UpdatedAt
			}
		case !errors.Is(err, fs.ErrNotExist):
			return "", err
		}
		if n.ID == "" {
			n.ID = newID()
		}
		dirIDs[p] = n.ID
		doc.Notebooks = append(doc.Notebooks, n)
		return n.ID, nil
	}

	err = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if strings.HasPrefix(d.Name(), ".") && p != dir {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if p != dir {
				_, err := notebookFor(p)
				return err
			}
			return nil
		}
		if !strings.EqualFold(filepath.Ext(p), ".md") {
			return nil
		}
		nbID, err := notebookFor(filepath.Dir(p))
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		r, err := parser.Parse(data)
		if err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
		s := Snippet{
			ID:          r.Meta.ID,
			NotebookID:  nbID,
			Title:       r.Title,
			Description: r.Meta.Description,
			Body:        r.Body,
			Language:    r.Language,
			Tags:        models.NormalizeTags(r.Meta.Tags),
			IsFavorite:  r.Meta.Favorite,
			Version:     1,
			CreatedAt:   r.Meta.CreatedAt,
			UpdatedAt:   r.Meta.UpdatedAt,
		}
		if s.ID == "" {
			s.ID = newID()
		}
		if s.Title == "" {
			s.Title = strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
		}
		if s.CreatedAt.IsZero() {
			s.CreatedAt = now
		}
		if s.UpdatedAt.IsZero() {
			s.UpdatedAt = now
		}
		doc.Snippets = append(doc.Snippets, s)
		return nil
	})
	if err != nil {
		return nil, err
	}
	doc.Tags = tagMap(doc.Snippets)
	return doc, nil
}

// hasMarkdown reports whether dir directly contains Markdown files.
func hasMarkdown(dir string) bool {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(filepath.Ext(e.Name()), ".md") {
			return true
		}
	}
	return false
}

// safeName turns a title into a portable file name.
func safeName(s string) string {
	s = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', 0:
			return '-'
		}
		return r
	}, strings.TrimSpace(s))
	s = strings.Trim(s, ". ")
	if s == "" {
		return "untitled"
	}
	return s
}

func uniqueName(taken map[string]bool, base, ext string) string {
	name := base + ext
	for i := 2; taken[strings.ToLower(name)]; i++ {
		name = fmt.Sprintf("%s-%d%s", base, i, ext)
	}
	taken[strings.ToLower(name)] = true
	return name
}
