package transfer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/starford/snix/internal/apperr"
	"github.com/starford/snix/internal/models"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func sampleSnapshot() *models.Snapshot {
	accessed := now.Add(time.Hour)
	return models.NewSnapshot(7,
		[]models.Notebook{
			{ID: "nb-py", Name: "Python", CreatedAt: now, UpdatedAt: now},
			{ID: "nb-ml", Name: "ML", ParentID: "nb-py", Description: "models", CreatedAt: now, UpdatedAt: now},
			{ID: "nb-sh", Name: "Shell", CreatedAt: now, UpdatedAt: now},
		},
		[]models.Snippet{
			{ID: "s1", NotebookID: "nb-ml", Title: "TensorFlow 2 quickstart", Body: "import tensorflow as tf",
				Language: "python", Tags: []string{"ml", "tf"}, IsFavorite: true, UseCount: 3, Version: 2,
				CreatedAt: now, UpdatedAt: now, LastAccessedAt: &accessed},
			{ID: "s2", NotebookID: "nb-sh", Title: "List files", Body: "ls -la",
				Language: "bash", Tags: []string{}, Version: 1, CreatedAt: now, UpdatedAt: now},
			{ID: "s3", NotebookID: "nb-py", Title: "Venv", Body: "python -m venv .venv",
				Language: "python", Tags: []string{"setup"}, Version: 1, CreatedAt: now, UpdatedAt: now},
		},
		[]models.RecentEntry{{SnippetID: "s1", AccessedAt: accessed}},
	)
}

// sameState compares two snapshots record by record.
func sameState(t *testing.T, got, want *models.Snapshot) {
	t.Helper()
	if !reflect.DeepEqual(got.Notebooks(), want.Notebooks()) {
		t.Errorf("notebooks differ:\n got %+v\nwant %+v", got.Notebooks(), want.Notebooks())
	}
	gs, ws := got.Snippets(), want.Snippets()
	if len(gs) != len(ws) {
		t.Fatalf("snippet count = %d, want %d", len(gs), len(ws))
	}
	for i := range ws {
		g, w := gs[i], ws[i]
		if g.ID != w.ID || g.NotebookID != w.NotebookID || g.Title != w.Title || g.Body != w.Body ||
			g.Language != w.Language || g.IsFavorite != w.IsFavorite || g.UseCount != w.UseCount ||
			g.Version != w.Version || !g.CreatedAt.Equal(w.CreatedAt) || !g.UpdatedAt.Equal(w.UpdatedAt) ||
			strings.Join(g.Tags, ",") != strings.Join(w.Tags, ",") {
			t.Errorf("snippet %s differs:\n got %+v\nwant %+v", w.ID, g, w)
		}
		if (g.LastAccessedAt == nil) != (w.LastAccessedAt == nil) ||
			(w.LastAccessedAt != nil && !g.LastAccessedAt.Equal(*w.LastAccessedAt)) {
			t.Errorf("snippet %s last access differs", w.ID)
		}
	}
	if len(got.Recents()) != len(want.Recents()) {
		t.Errorf("recents = %v, want %v", got.Recents(), want.Recents())
	}
}

func TestDocument_RoundTripPreservesState(t *testing.T) {
	for _, enc := range []Encoding{JSON, YAML} {
		t.Run(string(enc), func(t *testing.T) {
			snap := sampleSnapshot()
			data, err := Marshal(FromSnapshot(snap, KindBackup, now), enc)
			if err != nil {
				t.Fatal(err)
			}
			doc, err := Unmarshal(data)
			if err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if err := Validate(doc); err != nil {
				t.Fatalf("Validate: %v", err)
			}
			if doc.Kind != KindBackup || doc.Revision != 7 {
				t.Errorf("kind = %q, revision = %d", doc.Kind, doc.Revision)
			}
			sameState(t, doc.ToSnapshot(), snap)
		})
	}
}

func TestUnmarshal_RejectsForeignDocuments(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"other format", `{"format":"notes","version":1}`},
		{"newer version", `{"format":"snix","version":2}`},
		{"yaml other format", "format: notes\nversion: 1\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Unmarshal([]byte(tt.data)); !errors.Is(err, ErrUnsupported) {
				t.Fatalf("err = %v, want ErrUnsupported", err)
			}
		})
	}
	if _, err := Unmarshal([]byte(`{"format":`)); err == nil {
		t.Error("truncated JSON accepted")
	}
}

func TestValidate_Failures(t *testing.T) {
	base := func() *Document { return FromSnapshot(sampleSnapshot(), KindBackup, now) }
	tests := []struct {
		name   string
		mutate func(d *Document)
	}{
		{"duplicate id", func(d *Document) { d.Snippets[1].ID = d.Snippets[0].ID }},
		{"snippet reuses notebook id", func(d *Document) { d.Snippets[0].ID = "nb-py" }},
		{"dangling notebook", func(d *Document) { d.Snippets[0].NotebookID = "gone" }},
		{"dangling parent", func(d *Document) { d.Notebooks[1].ParentID = "gone" }},
		{"cycle", func(d *Document) {
			for i := range d.Notebooks {
				if d.Notebooks[i].ID == "nb-py" {
					d.Notebooks[i].ParentID = "nb-ml"
				}
			}
		}},
		{"sibling clash", func(d *Document) {
			for i := range d.Notebooks {
				if d.Notebooks[i].ID == "nb-sh" {
					d.Notebooks[i].Name = "python"
				}
			}
		}},
		{"recent without snippet", func(d *Document) { d.Recents = append(d.Recents, Recent{SnippetID: "gone"}) }},
		{"empty title", func(d *Document) { d.Snippets[0].Title = " " }},
		{"long title", func(d *Document) { d.Snippets[0].Title = strings.Repeat("t", models.MaxTitleLength+1) }},
		{"long notebook name", func(d *Document) { d.Notebooks[0].Name = strings.Repeat("n", 5000) }},
		{"large body", func(d *Document) { d.Snippets[0].Body = strings.Repeat("b", models.MaxBodyBytes+1) }},
		{"too many tags", func(d *Document) {
			d.Snippets[0].Tags = nil
			for i := 0; i <= models.MaxTags; i++ {
				d.Snippets[0].Tags = append(d.Snippets[0].Tags, fmt.Sprintf("t%d", i))
			}
		}},
		{"invalid utf-8 body", func(d *Document) { d.Snippets[0].Body = "a\xffb" }},
		{"invalid utf-8 name", func(d *Document) { d.Notebooks[2].Name = "Sh\xffell" }},
		{"wrong version", func(d *Document) { d.Version = 9 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := base()
			tt.mutate(doc)
			if err := Validate(doc); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestExport_Selection(t *testing.T) {
	snap := sampleSnapshot()

	doc, err := Export(snap, Selection{NotebookIDs: []string{"nb-ml"}}, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Notebooks) != 2 {
		t.Errorf("notebooks = %+v, want nb-ml and its ancestor", doc.Notebooks)
	}
	if len(doc.Snippets) != 1 || doc.Snippets[0].ID != "s1" {
		t.Errorf("snippets = %+v, want only s1", doc.Snippets)
	}
	if err := Validate(doc); err != nil {
		t.Errorf("selected export is not self-contained: %v", err)
	}

	doc, err = Export(snap, Selection{FavoritesOnly: true, OmitBodies: true}, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Snippets) != 1 || doc.Snippets[0].Body != "" {
		t.Errorf("favorites export = %+v", doc.Snippets)
	}

	doc, err = Export(snap, Selection{Tags: []string{"#Setup"}}, now)
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Snippets) != 1 || doc.Snippets[0].ID != "s3" {
		t.Errorf("tag export = %+v", doc.Snippets)
	}
	if len(doc.Recents) != 0 {
		t.Errorf("recents of excluded snippets exported: %v", doc.Recents)
	}

	if _, err := Export(snap, Selection{NotebookIDs: []string{"gone"}}, now); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func counter(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func TestMerge_IntoEmptyStoreKeepsIDs(t *testing.T) {
	doc := FromSnapshot(sampleSnapshot(), KindExport, now)
	d, rep, err := Merge(models.EmptySnapshot(), doc, counter("new"), now)
	if err != nil {
		t.Fatal(err)
	}
	if rep.NotebooksCreated != 3 || rep.SnippetsCreated != 3 || rep.Renamed != 0 || rep.Skipped != 0 {
		t.Errorf("report = %+v", rep)
	}
	merged := models.EmptySnapshot().Apply(d)
	if err := merged.Check(); err != nil {
		t.Fatalf("merged state invalid: %v", err)
	}
	if _, ok := merged.Snippet("s1"); !ok {
		t.Error("id not preserved")
	}
}

func TestMerge_CollisionsAreRenamed(t *testing.T) {
	snap := sampleSnapshot()
	doc := FromSnapshot(snap, KindExport, now)
	d, rep, err := Merge(snap, doc, counter("new"), now)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Renamed != 6 {
		t.Errorf("renamed = %d, want 6", rep.Renamed)
	}
	for _, n := range rep.Notices {
		if !errors.Is(n, apperr.ErrImportRenamed) {
			t.Errorf("notice %v is not ErrImportRenamed", n)
		}
	}
	merged := snap.Apply(d)
	if err := merged.Check(); err != nil {
		t.Fatalf("merged state invalid: %v", err)
	}
	if n, s := merged.Counts(); n != 6 || s != 6 {
		t.Errorf("counts = %d, %d", n, s)
	}

	var names []string
	for _, n := range d.PutNotebooks {
		names = append(names, n.Name)
	}
	joined := strings.Join(names, "|")
	if !strings.Contains(joined, "Python (imported)") || !strings.Contains(joined, "Shell (imported)") {
		t.Errorf("names = %v", names)
	}
	for _, n := range d.PutNotebooks {
		if n.Name == "ML" && n.ParentID == "nb-py" {
			t.Error("imported child attached to the existing parent")
		}
	}

	// A second import of the same document picks the next suffix.
	merged2 := merged.Apply(mustMerge(t, merged, doc))
	found := false
	for _, n := range merged2.Notebooks() {
		if n.Name == "Python (imported 2)" {
			found = true
		}
	}
	if !found {
		t.Error("second import did not get a numbered suffix")
	}
}

func mustMerge(t *testing.T, snap *models.Snapshot, doc *Document) models.Delta {
	t.Helper()
	d, _, err := Merge(snap, doc, counter("again"), now)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func TestMerge_SkipsOrphans(t *testing.T) {
	doc := &Document{
		Format: Format, Version: Version,
		Notebooks: []Notebook{{ID: "a", Name: "A"}},
		Snippets: []Snippet{
			{ID: "ok", NotebookID: "a", Title: "kept"},
			{ID: "orphan", NotebookID: "missing", Title: "dropped"},
		},
	}
	d, rep, err := Merge(models.EmptySnapshot(), doc, counter("new"), now)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Skipped != 1 || len(d.PutSnippets) != 1 || d.PutSnippets[0].ID != "ok" {
		t.Errorf("report = %+v, snippets = %+v", rep, d.PutSnippets)
	}
	if d.PutSnippets[0].CreatedAt.IsZero() {
		t.Error("missing timestamps not filled")
	}
}

func TestMerge_SkipsRecordsOutsideLimits(t *testing.T) {
	doc := &Document{
		Format: Format, Version: Version,
		Notebooks: []Notebook{
			{ID: "a", Name: "A"},
			{ID: "long", Name: strings.Repeat("n", 5000)},
			{ID: "bad", Name: "B\xffad"},
		},
		Snippets: []Snippet{
			{ID: "ok", NotebookID: "a", Title: "kept", Body: "fine"},
			{ID: "title", NotebookID: "a", Title: strings.Repeat("t", 5000)},
			{ID: "body", NotebookID: "a", Title: "big", Body: strings.Repeat("b", 3<<20)},
			{ID: "utf8", NotebookID: "a", Title: "bytes", Body: "a\xffb"},
			{ID: "tag", NotebookID: "a", Title: "tagged", Tags: []string{"ok", "\xfe"}},
		},
	}
	d, rep, err := Merge(models.EmptySnapshot(), doc, counter("new"), now)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Skipped != 6 || rep.NotebooksCreated != 1 || rep.SnippetsCreated != 1 {
		t.Errorf("report = %+v", rep)
	}
	if len(d.PutSnippets) != 1 || d.PutSnippets[0].ID != "ok" {
		t.Errorf("snippets = %+v", d.PutSnippets)
	}
	if len(rep.Notices) != 6 {
		t.Errorf("notices = %v", rep.Messages())
	}
}

func TestMerge_ParentFromStore(t *testing.T) {
	snap := sampleSnapshot()
	doc := &Document{
		Format: Format, Version: Version,
		Notebooks: []Notebook{
			{ID: "nb-new", Name: "Pandas", ParentID: "nb-py"},
			{ID: "nb-lost", Name: "Lost", ParentID: "nowhere"},
		},
	}
	d, rep, err := Merge(snap, doc, counter("new"), now)
	if err != nil {
		t.Fatal(err)
	}
	if rep.NotebooksCreated != 2 {
		t.Fatalf("report = %+v", rep)
	}
	parents := map[string]string{}
	for _, n := range d.PutNotebooks {
		parents[n.ID] = n.ParentID
	}
	if parents["nb-new"] != "nb-py" {
		t.Errorf("parent = %q, want the stored nb-py", parents["nb-new"])
	}
	if parents["nb-lost"] != "" {
		t.Errorf("unknown parent kept: %q", parents["nb-lost"])
	}
	if err := snap.Apply(d).Check(); err != nil {
		t.Fatalf("merged state invalid: %v", err)
	}
}

func TestMerge_RenamedLongNameFitsLimit(t *testing.T) {
	long := strings.Repeat("x", models.MaxNameLength)
	snap := models.NewSnapshot(1, []models.Notebook{{ID: "nb", Name: long, CreatedAt: now, UpdatedAt: now}}, nil, nil)
	doc := &Document{Format: Format, Version: Version, Notebooks: []Notebook{{ID: "other", Name: long}}}
	d, _, err := Merge(snap, doc, counter("new"), now)
	if err != nil {
		t.Fatal(err)
	}
	if len(d.PutNotebooks) != 1 {
		t.Fatalf("notebooks = %+v", d.PutNotebooks)
	}
	got := d.PutNotebooks[0]
	if !strings.HasSuffix(got.Name, importSuffix) {
		t.Errorf("name = %q", got.Name)
	}
	if err := got.Validate(); err != nil {
		t.Errorf("renamed notebook invalid: %v", err)
	}
}

func TestMerge_RejectsForeignDocument(t *testing.T) {
	_, _, err := Merge(models.EmptySnapshot(), &Document{Format: "other", Version: 1}, counter("x"), now)
	if !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestMarkdown_RoundTrip(t *testing.T) {
	snap := sampleSnapshot()
	dir := t.TempDir()
	if err := WriteMarkdown(dir, FromSnapshot(snap, KindExport, now)); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(dir, "Python", "ML", "TensorFlow 2 quickstart.md")); err != nil {
		t.Fatalf("expected nested snippet file: %v", err)
	}

	doc, err := ReadMarkdown(dir, counter("md"), now)
	if err != nil {
		t.Fatal(err)
	}
	if err := Validate(doc); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	got := doc.ToSnapshot()
	for _, want := range snap.Snippets() {
		s, ok := got.Snippet(want.ID)
		if !ok {
			t.Errorf("snippet %s missing", want.ID)
			continue
		}
		if s.Title != want.Title || s.Body != want.Body || s.NotebookID != want.NotebookID ||
			s.Language != want.Language || s.IsFavorite != want.IsFavorite {
			t.Errorf("snippet %s = %+v, want %+v", want.ID, s, want)
		}
	}
	if n, _ := got.Notebook("nb-ml"); n.ParentID != "nb-py" || n.Description != "models" {
		t.Errorf("notebook nb-ml = %+v", n)
	}
}

func TestReadMarkdown_PlainDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "git"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "git", "undo.md"), []byte("```bash\ngit reset --soft HEAD~1\n```\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	doc, err := ReadMarkdown(dir, counter("md"), now)
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Notebooks) != 1 || doc.Notebooks[0].Name != "git" || doc.Notebooks[0].ParentID != "" {
		t.Fatalf("notebooks = %+v", doc.Notebooks)
	}
	if len(doc.Snippets) != 1 {
		t.Fatalf("snippets = %+v", doc.Snippets)
	}
	s := doc.Snippets[0]
	if s.Title != "undo" || s.Language != "bash" || s.Body != "git reset --soft HEAD~1" {
		t.Errorf("snippet = %+v", s)
	}
}
