package snippetservice_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/snix/internal/apperr"
	"github.com/starford/snix/internal/index"
	"github.com/starford/snix/internal/snippetservice"
	"github.com/starford/snix/internal/testutil"
	"github.com/starford/snix/internal/transfer"
)

func seed(t *testing.T, svc *snippetservice.Service) {
	t.Helper()
	ctx := context.Background()
	py := testutil.MustNotebook(t, svc, "Python", "")
	ml := testutil.MustNotebook(t, svc, "ML", py.ID)
	s1 := testutil.MustSnippet(t, svc, ml.ID, "TensorFlow 2 quickstart", "import tensorflow as tf")
	sh := testutil.MustNotebook(t, svc, "Shell", "")
	s2 := testutil.MustSnippet(t, svc, sh.ID, "Release notes", "upgraded to tf2")
	if _, err := svc.ToggleFavorite(ctx, s2.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.RecordAccess(ctx, s1.ID); err != nil {
		t.Fatal(err)
	}
}

func hitIDs(hits []index.Hit) string {
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.Snippet.ID
	}
	return strings.Join(ids, ",")
}

func TestBackupRestore_SameQueryResults(t *testing.T) {
	src, _ := testutil.TestService(t)
	seed(t, src)
	data, err := transfer.Marshal(src.BackupDocument(), transfer.JSON)
	if err != nil {
		t.Fatal(err)
	}

	dst, _ := testutil.TestService(t)
	testutil.MustNotebook(t, dst, "Will be replaced", "")
	doc, err := transfer.Unmarshal(data)
	if err != nil {
		t.Fatal(err)
	}
	if err := dst.Restore(context.Background(), doc); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	for _, q := range []string{"", "tf2", "python", "#nothing", "notes"} {
		if got, want := hitIDs(dst.Search(q, 0)), hitIDs(src.Search(q, 0)); got != want {
			t.Errorf("Search(%q) = %s, want %s", q, got, want)
		}
	}
	if got, want := len(dst.ListFavorites()), len(src.ListFavorites()); got != want {
		t.Errorf("favorites = %d, want %d", got, want)
	}
	if r := dst.ListRecents(0); len(r) != 1 || r[0].Snippet.Title != "TensorFlow 2 quickstart" {
		t.Errorf("recents = %+v", r)
	}
	root, _ := dst.List("")
	for _, n := range root.Notebooks {
		if n.Name == "Will be replaced" {
			t.Error("restore kept a notebook that was not in the backup")
		}
	}
}

func TestRestore_InvalidDocumentLeavesStoreUntouched(t *testing.T) {
	svc, store := testutil.TestService(t)
	seed(t, svc)
	before := store.Snapshot().Revision()

	doc := svc.BackupDocument()
	doc.Snippets[0].NotebookID = "gone"
	err := svc.Restore(context.Background(), doc)
	if !errors.Is(err, apperr.ErrRestoreAborted) {
		t.Fatalf("err = %v, want ErrRestoreAborted", err)
	}
	if store.Snapshot().Revision() != before {
		t.Error("aborted restore committed")
	}
	if hits := svc.Search("tf2", 0); len(hits) != 2 {
		t.Errorf("index changed by aborted restore: %d hits", len(hits))
	}
}

func TestRestore_RejectsRecordsOutsideLimits(t *testing.T) {
	svc, store := testutil.TestService(t)
	seed(t, svc)
	before := store.Snapshot().Revision()

	for name, mutate := range map[string]func(d *transfer.Document){
		"long name":     func(d *transfer.Document) { d.Notebooks[0].Name = strings.Repeat("n", 5000) },
		"large body":    func(d *transfer.Document) { d.Snippets[0].Body = strings.Repeat("b", 3<<20) },
		"invalid utf-8": func(d *transfer.Document) { d.Snippets[0].Body = "a\xffb" },
	} {
		doc := svc.BackupDocument()
		mutate(doc)
		if err := svc.Restore(context.Background(), doc); !errors.Is(err, apperr.ErrRestoreAborted) {
			t.Errorf("%s: err = %v, want ErrRestoreAborted", name, err)
		}
	}
	if store.Snapshot().Revision() != before {
		t.Error("rejected restore committed")
	}
}

func TestImport_SkipsRecordsOutsideLimits(t *testing.T) {
	svc, store := testutil.TestService(t)
	ctx := context.Background()
	doc := &transfer.Document{
		Format: transfer.Format, Version: transfer.Version,
		Notebooks: []transfer.Notebook{
			{ID: "a", Name: "A"},
			{ID: "long", Name: strings.Repeat("n", 5000)},
		},
		Snippets: []transfer.Snippet{
			{ID: "ok", NotebookID: "a", Title: "kept"},
			{ID: "title", NotebookID: "a", Title: strings.Repeat("t", 5000)},
			{ID: "body", NotebookID: "a", Title: "big", Body: strings.Repeat("b", 3<<20)},
			{ID: "bytes", NotebookID: "a", Title: "bytes", Body: "a\xffb"},
		},
	}
	rep, err := svc.Import(ctx, doc)
	if err != nil {
		t.Fatal(err)
	}
	if rep.NotebooksCreated != 1 || rep.SnippetsCreated != 1 || rep.Skipped != 4 {
		t.Errorf("report = %+v", rep)
	}
	if _, err := svc.CreateNotebook(ctx, snippetservice.NotebookInput{Name: strings.Repeat("n", 5000)}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("CreateNotebook: err = %v, want ErrInvalidInput", err)
	}

	// Whatever was imported survives a reload byte for byte.
	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	fresh := index.New(index.DefaultWeights())
	fresh.Rebuild(loaded)
	if got, want := hitIDs(svc.Search("", 0)), hitIDs(fresh.Search("", 0)); got != want {
		t.Errorf("reloaded = %s, want %s", want, got)
	}
}

func TestRestore_Cancelled(t *testing.T) {
	svc, store := testutil.TestService(t)
	seed(t, svc)
	before := store.Snapshot().Revision()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := svc.Restore(ctx, svc.BackupDocument())
	if !errors.Is(err, apperr.ErrRestoreAborted) || !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want ErrRestoreAborted wrapping context.Canceled", err)
	}
	if store.Snapshot().Revision() != before {
		t.Error("cancelled restore committed")
	}
}

func TestExportImport(t *testing.T) {
	src, _ := testutil.TestService(t)
	seed(t, src)
	doc, err := src.Export(transfer.Selection{})
	if err != nil {
		t.Fatal(err)
	}

	// Into an empty store: ids survive and queries match.
	dst, _ := testutil.TestService(t)
	rep, err := dst.Import(context.Background(), doc)
	if err != nil {
		t.Fatal(err)
	}
	if rep.NotebooksCreated != 3 || rep.SnippetsCreated != 2 || rep.Renamed != 0 {
		t.Errorf("report = %+v", rep)
	}
	if got, want := hitIDs(dst.Search("tf2", 0)), hitIDs(src.Search("tf2", 0)); got != want {
		t.Errorf("tf2 = %s, want %s", got, want)
	}

	// Into itself: everything collides and is renamed.
	self := src
	rep, err = self.Import(context.Background(), doc)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Renamed != 5 || len(rep.Notices) != 5 {
		t.Errorf("self import report = %+v", rep)
	}
	if _, err := self.Import(context.Background(), &transfer.Document{Format: "other"}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
	if st := self.Stats(); st.Notebooks != 6 || st.Snippets != 4 {
		t.Errorf("stats after self import = %+v", st)
	}
}

func TestExport_UnknownNotebook(t *testing.T) {
	svc, _ := testutil.TestService(t)
	if _, err := svc.Export(transfer.Selection{NotebookIDs: []string{"gone"}}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestReconcile_ExternalEdit(t *testing.T) {
	dir, store := testutil.TestStore(t)
	svc := testutil.ServiceOver(t, store)
	nb := testutil.MustNotebook(t, svc, "N", "")
	s := testutil.MustSnippet(t, svc, nb.ID, "Original title", "body")
	ctx := context.Background()

	changed, err := svc.Reconcile(ctx)
	if err != nil || changed {
		t.Fatalf("Reconcile on a clean store = %v, %v", changed, err)
	}

	editDataFile(t, dir, "Original title", "Edited elsewhere")
	changed, err = svc.Reconcile(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !changed {
		t.Fatal("divergence not detected")
	}
	got, _ := svc.GetSnippet(s.ID)
	if got.Title != "Edited elsewhere" {
		t.Errorf("title = %q", got.Title)
	}
}

func TestWatch_ReloadsAfterExternalEdit(t *testing.T) {
	dir, store := testutil.TestStore(t)
	svc := testutil.ServiceOver(t, store)
	nb := testutil.MustNotebook(t, svc, "N", "")
	testutil.MustSnippet(t, svc, nb.ID, "Original title", "body")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- svc.Watch(ctx) }()
	time.Sleep(100 * time.Millisecond)

	editDataFile(t, dir, "Original title", "Edited elsewhere")
	testutil.Eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return len(svc.Search("edited", 0)) > 0
	}, "watcher did not reload the edited store")

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch returned %v", err)
	}
}

func editDataFile(t *testing.T, dir, from, to string) {
	t.Helper()
	path := filepath.Join(dir, "snix.json")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(strings.Replace(string(data), from, to, 1)), 0o644); err != nil {
		t.Fatal(err)
	}
}
