package parser

import (
	"strings"
	"testing"
	"time"
)

func TestParse_FrontmatterAndFence(t *testing.T) {
	input := []byte("---\ntitle: Hello\nlanguage: go\ntags:\n  - go\n  - cli\nfavorite: true\n---\n# Hello\n\n```go\nfmt.Println(\"hi\")\n```\n")
	r, err := Parse(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !r.HasFrontmatter {
		t.Fatal("frontmatter not detected")
	}
	if r.Title != "Hello" {
		t.Errorf("title = %q, want %q", r.Title, "Hello")
	}
	if len(r.Meta.Tags) != 2 || r.Meta.Tags[0] != "go" || r.Meta.Tags[1] != "cli" {
		t.Errorf("tags = %v, want [go cli]", r.Meta.Tags)
	}
	if !r.Meta.Favorite {
		t.Error("favorite lost")
	}
	if r.Body != `fmt.Println("hi")` {
		t.Errorf("body = %q", r.Body)
	}
}

func TestParse_NoFrontmatter(t *testing.T) {
	input := []byte("# Just a heading\n\n```sh\nls -la\n```\n")
	r, err := Parse(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.HasFrontmatter {
		t.Error("expected no frontmatter")
	}
	if r.Title != "Just a heading" {
		t.Errorf("title = %q, want %q", r.Title, "Just a heading")
	}
	if r.Language != "sh" || r.Body != "ls -la" {
		t.Errorf("language = %q, body = %q", r.Language, r.Body)
	}
}

func TestParse_InvalidYAMLFallback(t *testing.T) {
	input := []byte("---\n: invalid: yaml: {{{\n---\nBody\n")
	r, err := Parse(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.HasFrontmatter {
		t.Errorf("expected no frontmatter on invalid YAML")
	}
	if !strings.Contains(r.Body, "Body") {
		t.Errorf("body = %q", r.Body)
	}
}

func TestParse_UnfencedBody(t *testing.T) {
	r, err := Parse([]byte("---\ntitle: Note\n---\nplain text\n"))
	if err != nil {
		t.Fatal(err)
	}
	if r.Body != "plain text" {
		t.Errorf("body = %q", r.Body)
	}
}

func TestDeriveTitle_FrontmatterOverH1(t *testing.T) {
	if got := deriveTitle(Meta{Title: "FM"}, "# H1\n"); got != "FM" {
		t.Errorf("title = %q, want FM", got)
	}
}

func TestDeriveTitle_IgnoresHeadingsInsideCode(t *testing.T) {
	if got := deriveTitle(Meta{}, "```sh\n# comment\n```\n"); got != "" {
		t.Errorf("title = %q, want empty", got)
	}
}

func TestRender_RoundTrip(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	meta := Meta{
		ID: "sn-1", Title: "Fences", Language: "markdown",
		Tags: []string{"docs"}, CreatedAt: created, UpdatedAt: created,
	}
	code := "Use ```go\nblocks\n``` inline"
	data, err := Render(meta, code)
	if err != nil {
		t.Fatal(err)
	}
	r, err := Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	if r.Body != code {
		t.Errorf("body = %q, want %q", r.Body, code)
	}
	if r.Meta.ID != "sn-1" || r.Title != "Fences" || r.Language != "markdown" {
		t.Errorf("meta = %+v", r.Meta)
	}
	if !r.Meta.CreatedAt.Equal(created) {
		t.Errorf("created_at = %v", r.Meta.CreatedAt)
	}
}
