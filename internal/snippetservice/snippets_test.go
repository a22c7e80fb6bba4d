package snippetservice_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/starford/snix/internal/apperr"
	"github.com/starford/snix/internal/index"
	"github.com/starford/snix/internal/models"
	"github.com/starford/snix/internal/recent"
	"github.com/starford/snix/internal/snippetservice"
	"github.com/starford/snix/internal/storage"
	"github.com/starford/snix/internal/testutil"
	"github.com/starford/snix/internal/transfer"
)

func ptr[T any](v T) *T { return &v }

func TestCreateSnippet_Validation(t *testing.T) {
	svc, _ := testutil.TestService(t)
	ctx := context.Background()
	nb := testutil.MustNotebook(t, svc, "Go", "")

	if _, err := svc.CreateSnippet(ctx, snippetservice.SnippetInput{NotebookID: "missing", Title: "x"}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	for name, in := range map[string]snippetservice.SnippetInput{
		"blank title":       {NotebookID: nb.ID, Title: " "},
		"long title":        {NotebookID: nb.ID, Title: strings.Repeat("t", models.MaxTitleLength+1)},
		"large body":        {NotebookID: nb.ID, Title: "big", Body: strings.Repeat("b", models.MaxBodyBytes+1)},
		"invalid utf-8":     {NotebookID: nb.ID, Title: "bytes", Body: "a\xffb"},
		"invalid utf-8 tag": {NotebookID: nb.ID, Title: "tag", Tags: []string{"\xfe"}},
	} {
		if _, err := svc.CreateSnippet(ctx, in); !errors.Is(err, apperr.ErrInvalidInput) {
			t.Errorf("%s: err = %v, want ErrInvalidInput", name, err)
		}
	}
	if _, err := svc.CreateNotebook(ctx, snippetservice.NotebookInput{Name: "N\xffb"}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("notebook name: err = %v, want ErrInvalidInput", err)
	}

	s, err := svc.CreateSnippet(ctx, snippetservice.SnippetInput{
		NotebookID: nb.ID, Title: " errgroup ", Body: "g, ctx := errgroup.WithContext(ctx)",
		Language: "Golang", Tags: []string{"#Concurrency", "go", "GO"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if s.Title != "errgroup" || s.Language != "go" || s.Version != 1 {
		t.Errorf("snippet = %+v", s)
	}
	if len(s.Tags) != 2 || s.Tags[0] != "concurrency" || s.Tags[1] != "go" {
		t.Errorf("tags = %v", s.Tags)
	}
	got, err := svc.GetSnippet(s.ID)
	if err != nil || got.Body != s.Body {
		t.Errorf("GetSnippet = %+v, %v", got, err)
	}
	if _, err := svc.UpdateSnippet(ctx, s.ID, snippetservice.SnippetPatch{Body: ptr("x\xc3")}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("update: err = %v, want ErrInvalidInput", err)
	}
}

func TestUpdateSnippet_VersionAndPatch(t *testing.T) {
	svc, _ := testutil.TestService(t)
	ctx := context.Background()
	nb := testutil.MustNotebook(t, svc, "Go", "")
	s := testutil.MustSnippet(t, svc, nb.ID, "hello", "fmt.Println(1)")

	tagged, err := svc.UpdateSnippet(ctx, s.ID, snippetservice.SnippetPatch{Tags: &[]string{"basics"}})
	if err != nil {
		t.Fatal(err)
	}
	if tagged.Version != 1 || len(tagged.Tags) != 1 {
		t.Errorf("metadata-only patch = %+v", tagged)
	}

	edited, err := svc.UpdateSnippet(ctx, s.ID, snippetservice.SnippetPatch{Body: ptr("fmt.Println(2)")})
	if err != nil {
		t.Fatal(err)
	}
	if edited.Version != 2 || edited.Title != "hello" || len(edited.Tags) != 1 {
		t.Errorf("edited = %+v", edited)
	}
	if !edited.UpdatedAt.After(s.UpdatedAt) {
		t.Error("updated_at not advanced")
	}

	unchanged, err := svc.UpdateSnippet(ctx, s.ID, snippetservice.SnippetPatch{Title: ptr("hello")})
	if err != nil {
		t.Fatal(err)
	}
	if unchanged.Version != 2 || !unchanged.UpdatedAt.Equal(edited.UpdatedAt) {
		t.Errorf("no-op patch changed the snippet: %+v", unchanged)
	}

	if _, err := svc.UpdateSnippet(ctx, s.ID, snippetservice.SnippetPatch{Title: ptr("")}); !errors.Is(err, apperr.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
	if _, err := svc.UpdateSnippet(ctx, "missing", snippetservice.SnippetPatch{}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestMoveFavoriteDelete(t *testing.T) {
	svc, _ := testutil.TestService(t)
	ctx := context.Background()
	a := testutil.MustNotebook(t, svc, "A", "")
	b := testutil.MustNotebook(t, svc, "B", "")
	s := testutil.MustSnippet(t, svc, a.ID, "snippet", "body")

	moved, err := svc.MoveSnippet(ctx, s.ID, b.ID)
	if err != nil || moved.NotebookID != b.ID {
		t.Fatalf("MoveSnippet = %+v, %v", moved, err)
	}
	if _, err := svc.MoveSnippet(ctx, s.ID, "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if l, _ := svc.List(a.ID); len(l.Snippets) != 0 {
		t.Errorf("old notebook still lists the snippet")
	}

	fav, err := svc.ToggleFavorite(ctx, s.ID)
	if err != nil || !fav.IsFavorite {
		t.Fatalf("ToggleFavorite = %+v, %v", fav, err)
	}
	if favs := svc.ListFavorites(); len(favs) != 1 {
		t.Errorf("favorites = %+v", favs)
	}
	if unfav, _ := svc.ToggleFavorite(ctx, s.ID); unfav.IsFavorite {
		t.Error("second toggle did not clear the flag")
	}

	if _, err := svc.RecordAccess(ctx, s.ID); err != nil {
		t.Fatal(err)
	}
	if err := svc.DeleteSnippet(ctx, s.ID); err != nil {
		t.Fatal(err)
	}
	if err := svc.DeleteSnippet(ctx, s.ID); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second delete: err = %v, want ErrNotFound", err)
	}
	if r := svc.ListRecents(0); len(r) != 0 {
		t.Errorf("deleted snippet still in recents: %+v", r)
	}
	if hits := svc.Search("snippet", 0); len(hits) != 0 {
		t.Errorf("deleted snippet still searchable")
	}
}

func TestRecordAccess_BoundedRecents(t *testing.T) {
	clock := testutil.NewStubClock()
	clock.Step = 0 // frozen: ordering must still be strict
	svc, _ := testutil.TestService(t, snippetservice.WithClock(clock))
	ctx := context.Background()
	nb := testutil.MustNotebook(t, svc, "N", "")

	const total = recent.DefaultCapacity + 1
	ids := make([]string, total)
	for i := range ids {
		ids[i] = testutil.MustSnippet(t, svc, nb.ID, fmt.Sprintf("s%02d", i), "").ID
	}
	for _, id := range ids {
		if _, err := svc.RecordAccess(ctx, id); err != nil {
			t.Fatal(err)
		}
	}

	got := svc.ListRecents(0)
	if len(got) != recent.DefaultCapacity {
		t.Fatalf("recents = %d, want %d", len(got), recent.DefaultCapacity)
	}
	if got[0].Snippet.ID != ids[total-1] {
		t.Errorf("head = %s, want %s", got[0].Snippet.ID, ids[total-1])
	}
	for _, r := range got {
		if r.Snippet.ID == ids[0] {
			t.Error("oldest access not evicted")
		}
	}
	for i := 1; i < len(got); i++ {
		if !got[i-1].AccessedAt.After(got[i].AccessedAt) {
			t.Fatalf("recents not strictly ordered at %d", i)
		}
	}

	again, err := svc.RecordAccess(ctx, ids[10])
	if err != nil {
		t.Fatal(err)
	}
	if again.UseCount != 2 || again.LastAccessedAt == nil || !again.LastAccessedAt.After(got[0].AccessedAt) {
		t.Errorf("re-access = %+v", again)
	}
	if _, err := svc.RecordAccess(ctx, "missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

// flakyStore fails commits on demand.
type flakyStore struct {
	storage.Provider
	mu   sync.Mutex
	fail bool
}

func (f *flakyStore) setFail(v bool) {
	f.mu.Lock()
	f.fail = v
	f.mu.Unlock()
}

func (f *flakyStore) Commit(ctx context.Context, d models.Delta) (*models.Snapshot, error) {
	f.mu.Lock()
	fail := f.fail
	f.mu.Unlock()
	if fail {
		return nil, fmt.Errorf("disk full: %w", apperr.ErrIO)
	}
	return f.Provider.Commit(ctx, d)
}

func TestRecordAccess_StorageFailureIsSwallowed(t *testing.T) {
	_, inner := testutil.TestStore(t)
	store := &flakyStore{Provider: inner}
	svc := testutil.ServiceOver(t, store)
	ctx := context.Background()
	nb := testutil.MustNotebook(t, svc, "N", "")
	s := testutil.MustSnippet(t, svc, nb.ID, "t", "b")

	store.setFail(true)
	got, err := svc.RecordAccess(ctx, s.ID)
	if err != nil {
		t.Fatalf("RecordAccess returned %v", err)
	}
	if got.UseCount != 0 || len(svc.ListRecents(0)) != 0 {
		t.Errorf("failed access changed state: %+v", got)
	}

	// Other mutations do report the failure and leave the index untouched.
	if _, err := svc.ToggleFavorite(ctx, s.ID); !errors.Is(err, apperr.ErrIO) {
		t.Errorf("err = %v, want ErrIO", err)
	}
	if cur, _ := svc.GetSnippet(s.ID); cur.IsFavorite {
		t.Error("index updated despite failed commit")
	}
}

func TestIncrementalIndexMatchesRebuild(t *testing.T) {
	_, store := testutil.TestStore(t)
	idx := index.New(index.DefaultWeights())
	svc := snippetservice.New(store, idx,
		snippetservice.WithClock(testutil.NewStubClock()),
		snippetservice.WithIDGenerator(&testutil.StubIDGenerator{}),
		snippetservice.WithLogger(testutil.Logger()))
	ctx := context.Background()
	if err := svc.Load(ctx); err != nil {
		t.Fatal(err)
	}

	py := testutil.MustNotebook(t, svc, "Python", "")
	ml := testutil.MustNotebook(t, svc, "ML", py.ID)
	sh := testutil.MustNotebook(t, svc, "Shell", "")
	s1 := testutil.MustSnippet(t, svc, ml.ID, "TensorFlow 2 quickstart", "import tensorflow as tf")
	s2 := testutil.MustSnippet(t, svc, sh.ID, "Release notes", "upgraded to tf2")
	s3 := testutil.MustSnippet(t, svc, py.ID, "venv", "python -m venv .venv")
	scratch := testutil.MustNotebook(t, svc, "Scratch", "")
	testutil.MustSnippet(t, svc, scratch.ID, "draft", "tf2 draft")
	backup := svc.BackupDocument()
	steps := []func() error{
		func() error { return svc.Restore(ctx, backup) },
		func() error { _, err := svc.UpdateSnippet(ctx, s1.ID, snippetservice.SnippetPatch{Tags: &[]string{"ml"}}); return err },
		func() error { _, err := svc.MoveSnippet(ctx, s3.ID, sh.ID); return err },
		func() error { _, err := svc.RecordAccess(ctx, s2.ID); return err },
		func() error { _, err := svc.ToggleFavorite(ctx, s2.ID); return err },
		func() error { _, err := svc.MoveNotebook(ctx, ml.ID, sh.ID); return err },
		func() error { _, err := svc.RenameNotebook(ctx, py.ID, "Py"); return err },
		func() error { _, err := svc.DeleteNotebook(ctx, py.ID, snippetservice.Reject); return err },
		func() error { return svc.DeleteSnippet(ctx, s3.ID) },
		func() error { _, err := svc.DeleteNotebook(ctx, scratch.ID, snippetservice.Cascade); return err },
		func() error {
			_, err := svc.Import(ctx, &transfer.Document{
				Format: transfer.Format, Version: transfer.Version,
				Notebooks: []transfer.Notebook{{ID: "imp", Name: "Imported", ParentID: sh.ID}},
				Snippets:  []transfer.Snippet{{ID: "imp-s", NotebookID: "imp", Title: "Kubectl", Description: "rollout", Tags: []string{"k8s"}}},
			})
			return err
		},
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	fresh := index.New(index.DefaultWeights())
	fresh.Rebuild(loaded)
	if idx.Digest() != fresh.Digest() {
		t.Error("incrementally maintained index differs from a rebuild of storage")
	}

	hits := svc.Search("tf2", 0)
	if len(hits) != 2 || hits[0].Snippet.ID != s1.ID || hits[1].Snippet.ID != s2.ID {
		t.Errorf("tf2 ranking = %+v", hits)
	}
}

func TestStatePersistsAcrossRestart(t *testing.T) {
	dir, store := testutil.TestStore(t)
	ids := &testutil.StubIDGenerator{}
	svc := testutil.ServiceOver(t, store, snippetservice.WithIDGenerator(ids))
	ctx := context.Background()
	nb := testutil.MustNotebook(t, svc, "N", "")
	s := testutil.MustSnippet(t, svc, nb.ID, "kept", "body")
	if _, err := svc.RecordAccess(ctx, s.ID); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := storage.OpenFS(dir, testutil.Logger())
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	svc2 := testutil.ServiceOver(t, reopened, snippetservice.WithIDGenerator(ids))
	got, err := svc2.GetSnippet(s.ID)
	if err != nil || got.UseCount != 1 {
		t.Fatalf("GetSnippet = %+v, %v", got, err)
	}
	if r := svc2.ListRecents(0); len(r) != 1 || r[0].Snippet.ID != s.ID {
		t.Errorf("recents = %+v", r)
	}
	if st := svc2.Stats(); st.Notebooks != 1 || st.Snippets != 1 || st.Recents != 1 {
		t.Errorf("stats = %+v", st)
	}
}

func TestChangeHook(t *testing.T) {
	var mu sync.Mutex
	var events []string
	svc, store := testutil.TestService(t, snippetservice.WithChangeHook(func(c models.Change) {
		mu.Lock()
		events = append(events, fmt.Sprintf("%s:%s@%d", c.Kind, c.ID, c.Revision))
		mu.Unlock()
	}))
	ctx := context.Background()
	nb := testutil.MustNotebook(t, svc, "N", "")
	s := testutil.MustSnippet(t, svc, nb.ID, "t", "")
	if _, err := svc.DeleteNotebook(ctx, nb.ID, snippetservice.Cascade); err != nil {
		t.Fatal(err)
	}
	rev := store.Snapshot().Revision()

	mu.Lock()
	defer mu.Unlock()
	want := []string{
		fmt.Sprintf("%s:%s@%d", models.ChangeNotebook, nb.ID, rev-2),
		fmt.Sprintf("%s:%s@%d", models.ChangeSnippet, s.ID, rev-1),
		fmt.Sprintf("%s:%s@%d", models.ChangeTree, nb.ID, rev),
	}
	if strings.Join(events, " ") != strings.Join(want, " ") {
		t.Errorf("events = %v, want %v", events, want)
	}
}
