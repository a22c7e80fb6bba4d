package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/starford/snix/internal/snippetservice"
	"github.com/starford/snix/internal/testutil"
)

func TestPrintTree(t *testing.T) {
	svc, _ := testutil.TestService(t)
	py := testutil.MustNotebook(t, svc, "Python", "")
	ml := testutil.MustNotebook(t, svc, "ML", py.ID)
	s, err := svc.CreateSnippet(context.Background(), snippetservice.SnippetInput{
		NotebookID: ml.ID, Title: "Quickstart", Language: "python", Tags: []string{"tf"}, IsFavorite: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := printTree(&buf, svc, "", 0, true); err != nil {
		t.Fatal(err)
	}
	want := "Python/  [" + py.ID + "]\n" +
		"  ML/  [" + ml.ID + "]\n" +
		"    Quickstart  [" + s.ID + "]  python  #tf  *\n"
	if buf.String() != want {
		t.Errorf("tree =\n%s\nwant\n%s", buf.String(), want)
	}

	buf.Reset()
	if err := printTree(&buf, svc, "", 0, false); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "Quickstart") {
		t.Errorf("notebooks-only tree lists snippets:\n%s", buf.String())
	}

	if err := printTree(&buf, svc, "missing", 0, true); err == nil {
		t.Error("expected error for unknown notebook")
	}
}

func TestFirstLine(t *testing.T) {
	if got := firstLine("  git log --oneline\ngit status"); got != "git log --oneline" {
		t.Errorf("firstLine = %q", got)
	}
}
