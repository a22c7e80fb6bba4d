package index

import (
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sahilm/fuzzy"

	"github.com/starford/snix/internal/models"
)

// Weights are the per-signal scores summed for each query token.
type Weights struct {
	TitleExact     int `yaml:"title_exact" json:"title_exact"`
	TitleSubstring int `yaml:"title_substring" json:"title_substring"`
	TitleFuzzy     int `yaml:"title_fuzzy" json:"title_fuzzy"`
	BodySubstring  int `yaml:"body_substring" json:"body_substring"`
	BodyFuzzy      int `yaml:"body_fuzzy" json:"body_fuzzy"`
	Description    int `yaml:"description" json:"description"`
	Tag            int `yaml:"tag" json:"tag"`
	TagSubstring   int `yaml:"tag_substring" json:"tag_substring"`
}

// DefaultWeights rank title hits well above body hits.
func DefaultWeights() Weights {
	return Weights{
		TitleExact:     20,
		TitleSubstring: 10,
		TitleFuzzy:     6,
		BodySubstring:  3,
		BodyFuzzy:      1,
		Description:    4,
		Tag:            8,
		TagSubstring:   4,
	}
}

// Hit is one ranked search result.
type Hit struct {
	Snippet models.Snippet `json:"snippet"`
	Score   int            `json:"score"`
	Excerpt string         `json:"excerpt"`
}

// minFuzzyLen is the shortest token that is matched as a subsequence.
const minFuzzyLen = 2

// titleSource exposes entry titles to the fuzzy matcher.
type titleSource []*entry

func (t titleSource) String(i int) string { return t[i].title }
func (t titleSource) Len() int            { return len(t) }

// Search ranks snippets against query. Every plain token must hit the
// title, description, body or tags; "#tag" tokens filter on the tag. An
// empty query returns every snippet in listing order. limit <= 0 means no
// limit. The excerpt of a hit is the first body line holding a term.
func (ix *Index) Search(query string, limit int) []Hit {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	terms, tagFilters := parseQuery(query)
	if len(terms) == 0 && len(tagFilters) == 0 {
		all := ix.allLocked()
		hits := make([]Hit, 0, len(all))
		for _, s := range all {
			hits = append(hits, Hit{Snippet: s, Excerpt: ix.snippets[s.ID].excerpt})
		}
		return truncate(hits, limit)
	}

	candidates := ix.candidates(tagFilters)
	scores := make(map[*entry]int, len(candidates))
	for _, e := range candidates {
		scores[e] = 0
	}

	for _, term := range terms {
		titleFuzzy := ix.titleFuzzyHits(term, candidates)
		bodyFuzzy := ix.bodyFuzzyHits(term)
		for e, score := range scores {
			points := 0
			switch {
			case strings.Contains(e.title, term):
				points += ix.weights.TitleSubstring
			case titleFuzzy[e]:
				points += ix.weights.TitleFuzzy
			}
			switch {
			case strings.Contains(e.body, term):
				points += ix.weights.BodySubstring
			case bodyFuzzy[e.snippet.ID]:
				points += ix.weights.BodyFuzzy
			}
			if strings.Contains(e.description, term) {
				points += ix.weights.Description
			}
			switch {
			case e.snippet.HasTag(term):
				points += ix.weights.Tag
			case tagContains(e.snippet.Tags, term):
				points += ix.weights.TagSubstring
			}
			if points == 0 {
				delete(scores, e)
				continue
			}
			scores[e] = score + points
		}
	}

	whole := strings.Join(terms, " ")
	hits := make([]Hit, 0, len(scores))
	for e, score := range scores {
		if whole != "" && normalizeTitle(e.title) == whole {
			score += ix.weights.TitleExact
		}
		hits = append(hits, Hit{Snippet: e.snippet.Clone(), Score: score})
	}
	sortHits(hits)
	hits = truncate(hits, limit)
	for i := range hits {
		e := ix.snippets[hits[i].Snippet.ID]
		if line, ok := matchingLine(e.snippet.Body, terms); ok {
			hits[i].Excerpt = line
		} else {
			hits[i].Excerpt = e.excerpt
		}
	}
	return hits
}

func tagContains(tags []string, term string) bool {
	for _, tag := range tags {
		if strings.Contains(tag, term) {
			return true
		}
	}
	return false
}

// matchingLine returns "Line N: text" for the first body line holding any
// of terms.
func matchingLine(body string, terms []string) (string, bool) {
	if len(terms) == 0 {
		return "", false
	}
	for i, line := range strings.Split(body, "\n") {
		l := lower(line)
		for _, term := range terms {
			if strings.Contains(l, term) {
				return fmt.Sprintf("Line %d: %s", i+1, excerpt(strings.TrimSpace(line), excerptLen)), true
			}
		}
	}
	return "", false
}

// candidates returns the entries carrying every tag in filters, or all
// entries when there are none.
func (ix *Index) candidates(filters []string) []*entry {
	if len(filters) == 0 {
		return ix.entries
	}
	out := make([]*entry, 0)
	for id := range ix.tags[filters[0]] {
		e := ix.snippets[id]
		ok := true
		for _, tag := range filters[1:] {
			if !e.snippet.HasTag(tag) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, e)
		}
	}
	return out
}

func (ix *Index) titleFuzzyHits(term string, entries []*entry) map[*entry]bool {
	if utf8.RuneCountInString(term) < minFuzzyLen {
		return nil
	}
	matches := fuzzy.FindFrom(term, titleSource(entries))
	out := make(map[*entry]bool, len(matches))
	for _, m := range matches {
		out[entries[m.Index]] = true
	}
	return out
}

// bodyFuzzyHits returns ids of snippets whose body holds a token the term
// matches as a subsequence.
func (ix *Index) bodyFuzzyHits(term string) map[string]bool {
	if utf8.RuneCountInString(term) < minFuzzyLen {
		return nil
	}
	out := make(map[string]bool)
	for _, m := range fuzzy.Find(term, ix.vocab) {
		for id := range ix.tokens[m.Str] {
			out[id] = true
		}
	}
	return out
}

// parseQuery splits a query into plain search terms and "#tag" filters.
func parseQuery(query string) (terms, tags []string) {
	for _, field := range strings.Fields(query) {
		if strings.HasPrefix(field, "#") {
			if tag := models.NormalizeTags([]string{field}); len(tag) == 1 {
				tags = append(tags, tag[0])
			}
			continue
		}
		terms = append(terms, Tokenize(field)...)
	}
	return terms, tags
}

// Tokenize lower-cases s and splits it into distinct runs of letters and
// digits, in order of first appearance.
func Tokenize(s string) []string {
	fields := strings.FieldsFunc(lower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]struct{}, len(fields))
	out := fields[:0]
	for _, f := range fields {
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

func normalizeTitle(title string) string {
	return strings.Join(Tokenize(title), " ")
}

func lower(s string) string { return strings.ToLower(s) }

func excerpt(body string, n int) string {
	if utf8.RuneCountInString(body) <= n {
		return body
	}
	r := []rune(body)
	return string(r[:n])
}

func truncate(hits []Hit, limit int) []Hit {
	if limit > 0 && len(hits) > limit {
		return hits[:limit]
	}
	return hits
}

// sortHits orders by score, then most recently accessed (never accessed
// last), then id.
func sortHits(hits []Hit) {
	sort.Slice(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if c := compareAccess(a.Snippet, b.Snippet); c != 0 {
			return c < 0
		}
		return a.Snippet.ID < b.Snippet.ID
	})
}

func compareAccess(a, b models.Snippet) int {
	switch {
	case a.LastAccessedAt == nil && b.LastAccessedAt == nil:
		return 0
	case a.LastAccessedAt == nil:
		return 1
	case b.LastAccessedAt == nil:
		return -1
	case a.LastAccessedAt.After(*b.LastAccessedAt):
		return -1
	case b.LastAccessedAt.After(*a.LastAccessedAt):
		return 1
	}
	return 0
}

// sortSnippets is listing order: favorites, then updated_at desc, then id.
func sortSnippets(list []models.Snippet) {
	sort.Slice(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.IsFavorite != b.IsFavorite {
			return a.IsFavorite
		}
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return a.ID < b.ID
	})
}

func sortNotebooks(list []models.Notebook) {
	sort.Slice(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return a.ID < b.ID
	})
}
