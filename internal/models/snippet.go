package models

import (
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

// Snippet is a single stored text artifact belonging to exactly one notebook.
type Snippet struct {
	ID             string     `json:"id"`
	NotebookID     string     `json:"notebook_id"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	Body           string     `json:"body"`
	Language       string     `json:"language,omitempty"`
	Tags           []string   `json:"tags"`
	IsFavorite     bool       `json:"is_favorite"`
	UseCount       int        `json:"use_count"`
	Version        int        `json:"version"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	LastAccessedAt *time.Time `json:"last_accessed_at"`
}

// Clone returns a deep copy that shares no mutable state with s.
func (s Snippet) Clone() Snippet {
	out := s
	if s.Tags != nil {
		out.Tags = append([]string(nil), s.Tags...)
	}
	if s.LastAccessedAt != nil {
		t := *s.LastAccessedAt
		out.LastAccessedAt = &t
	}
	return out
}

// HasTag reports whether the snippet carries tag (already normalized).
func (s Snippet) HasTag(tag string) bool {
	for _, t := range s.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// NormalizeTags trims, lower-cases, de-duplicates and sorts tags.
// A leading '#' is dropped. The result is never nil.
func NormalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(t), "#"))
		if utf8.ValidString(t) {
			t = strings.ToLower(t)
		}
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// RecentEntry records one access in the recency list.
type RecentEntry struct {
	SnippetID  string    `json:"snippet_id"`
	AccessedAt time.Time `json:"accessed_at"`
}

// RecentSnippet pairs a snippet with the time it entered the recency list.
type RecentSnippet struct {
	Snippet    Snippet   `json:"snippet"`
	AccessedAt time.Time `json:"accessed_at"`
}
