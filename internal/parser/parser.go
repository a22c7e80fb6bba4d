// Package parser reads and writes the Markdown form of a snippet: YAML
// frontmatter followed by an optional heading and one fenced code block.
package parser

import (
	"bytes"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/starford/snix/internal/models"
)

// Meta is the frontmatter of a snippet file.
type Meta struct {
	ID          string    `yaml:"id,omitempty"`
	Title       string    `yaml:"title,omitempty"`
	Description string    `yaml:"description,omitempty"`
	Language    string    `yaml:"language,omitempty"`
	Tags        []string  `yaml:"tags,omitempty"`
	Favorite    bool      `yaml:"favorite,omitempty"`
	CreatedAt   time.Time `yaml:"created_at,omitempty"`
	UpdatedAt   time.Time `yaml:"updated_at,omitempty"`
}

// Result holds the output of parsing a snippet file.
type Result struct {
	Meta           Meta
	HasFrontmatter bool
	Title          string // frontmatter title, else the first H1
	Language       string // frontmatter language, else the fence info string
	Body           string // content of the first fenced block, else the whole body
}

// Parse extracts frontmatter, title and code from raw Markdown bytes.
func Parse(data []byte) (*Result, error) {
	meta, ok, body := splitFrontmatter(data)

	code, lang, fenced := unwrapFence(body)
	if !fenced {
		code = strings.TrimSpace(body)
	}
	r := &Result{
		Meta:           meta,
		HasFrontmatter: ok,
		Title:          deriveTitle(meta, body),
		Language:       meta.Language,
		Body:           code,
	}
	if r.Language == "" {
		r.Language = lang
	}
	return r, nil
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the Markdown body. If no frontmatter is found the entire content is body.
func splitFrontmatter(data []byte) (Meta, bool, string) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return Meta{}, false, string(data)
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return Meta{}, false, string(data)
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var meta Meta
	if err := yaml.Unmarshal(yamlBlock, &meta); err != nil {
		// Invalid YAML: treat everything as body.
		return Meta{}, false, string(data)
	}
	return meta, true, body
}

// unwrapFence returns the content and info string of the first fenced code
// block in body.
func unwrapFence(body string) (code, lang string, ok bool) {
	lines := strings.Split(body, "\n")
	start := -1
	var fence string
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if n := countLeading(trimmed, '`'); n >= 3 {
			start = i
			fence = trimmed[:n]
			lang = strings.TrimSpace(trimmed[n:])
			break
		}
	}
	if start < 0 {
		return "", "", false
	}
	for j := start + 1; j < len(lines); j++ {
		if strings.TrimSpace(lines[j]) == fence {
			return strings.Join(lines[start+1:j], "\n"), lang, true
		}
	}
	// Unclosed fence runs to the end of the file.
	return strings.TrimRight(strings.Join(lines[start+1:], "\n"), "\n"), lang, true
}

// deriveTitle returns the frontmatter title if present, otherwise the first
// H1 heading, otherwise empty string.
func deriveTitle(meta Meta, body string) string {
	if meta.Title != "" {
		return meta.Title
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") {
			break
		}
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}

// Render writes meta as frontmatter, the title as a heading and code as a
// fenced block tagged with meta.Language.
func Render(meta Meta, code string) ([]byte, error) {
	fm, err := yaml.Marshal(meta)
	if err != nil {
		return nil, err
	}
	fence := strings.Repeat("`", max(3, longestRun(code, '`')+1))

	var b bytes.Buffer
	b.WriteString("---\n")
	b.Write(fm)
	b.WriteString("---\n")
	if meta.Title != "" {
		b.WriteString("# " + meta.Title + "\n\n")
	}
	b.WriteString(fence + meta.Language + "\n")
	b.WriteString(code)
	if code != "" && !strings.HasSuffix(code, "\n") {
		b.WriteString("\n")
	}
	b.WriteString(fence + "\n")
	return b.Bytes(), nil
}

func countLeading(s string, c byte) int {
	n := 0
	for n < len(s) && s[n] == c {
		n++
	}
	return n
}

func longestRun(s string, c byte) int {
	best, cur := 0, 0
	for i := 0; i < len(s); i++ {
		if s[i] == c {
			cur++
			best = max(best, cur)
		} else {
			cur = 0
		}
	}
	return best
}

// RenderSnippet renders s as a Markdown file.
func RenderSnippet(s models.Snippet) ([]byte, error) {
	return Render(Meta{
		ID:          s.ID,
		Title:       s.Title,
		Description: s.Description,
		Language:    s.Language,
		Tags:        s.Tags,
		Favorite:    s.IsFavorite,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}, s.Body)
}
