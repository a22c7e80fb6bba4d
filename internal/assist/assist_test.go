package assist

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/starford/snix/internal/apperr"
	"github.com/starford/snix/internal/models"
)

type fakeReader map[string]models.Snippet

func (f fakeReader) GetSnippet(id string) (models.Snippet, error) {
	s, ok := f[id]
	if !ok {
		return models.Snippet{}, apperr.ErrNotFound
	}
	return s, nil
}

type fakeGenerator struct {
	models []string
	model  string
	system string
	prompt string
}

func (f *fakeGenerator) Generate(_ context.Context, model, system, prompt string) (string, error) {
	f.model, f.system, f.prompt = model, system, prompt
	return "  it prints hello \n", nil
}

func (f *fakeGenerator) Models(context.Context) ([]string, error) { return f.models, nil }

var hello = models.Snippet{ID: "s1", Title: "Hello", Language: "go", Body: "fmt.Println(\"hello\")\n"}

func TestAsk(t *testing.T) {
	gen := &fakeGenerator{models: []string{"llama3", "mistral"}}
	a := New(fakeReader{"s1": hello}, gen, "", nil)

	ans, err := a.Ask(context.Background(), "s1", " what does it print? ")
	if err != nil {
		t.Fatal(err)
	}
	if ans.Text != "it prints hello" || ans.Model != "llama3" || ans.SnippetID != "s1" {
		t.Errorf("answer = %+v", ans)
	}
	if gen.prompt != "what does it print?" {
		t.Errorf("prompt = %q", gen.prompt)
	}
	if !strings.Contains(gen.system, "go code snippet titled 'Hello'") ||
		!strings.Contains(gen.system, "```go\nfmt.Println(\"hello\")\n```") {
		t.Errorf("system prompt = %q", gen.system)
	}
}

func TestAsk_Errors(t *testing.T) {
	a := New(fakeReader{"s1": hello}, &fakeGenerator{}, "", nil)
	if _, err := a.Ask(context.Background(), "missing", "q"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing snippet: %v", err)
	}
	if _, err := a.Ask(context.Background(), "s1", "q"); !errors.Is(err, ErrNoModels) {
		t.Errorf("no models: %v", err)
	}
	gen := &fakeGenerator{}
	if _, err := New(fakeReader{"s1": hello}, gen, "phi3", nil).Ask(context.Background(), "s1", ""); err != nil {
		t.Fatal(err)
	}
	if gen.model != "phi3" || gen.prompt == "" {
		t.Errorf("model = %q, prompt = %q", gen.model, gen.prompt)
	}
}

func TestSystemPrompt_PlainText(t *testing.T) {
	p := SystemPrompt(models.Snippet{Title: "Notes", Body: "remember", Description: "todo list"})
	if !strings.Contains(p, "a text code snippet") || !strings.Contains(p, "describes it as: todo list") {
		t.Errorf("prompt = %q", p)
	}
}

func TestOllamaGenerator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			json.NewEncoder(w).Encode(map[string]any{"models": []map[string]any{{"name": "llama3:latest"}}})
		case "/api/generate":
			var req map[string]any
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if req["system"] == "" || req["stream"] != false {
				http.Error(w, "bad request", http.StatusBadRequest)
				return
			}
			json.NewEncoder(w).Encode(map[string]any{"model": req["model"], "response": "answer", "done": true})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	gen, err := NewOllama(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	names, err := gen.Models(context.Background())
	if err != nil || len(names) != 1 || names[0] != "llama3:latest" {
		t.Fatalf("models = %v, %v", names, err)
	}
	text, err := gen.Generate(context.Background(), "llama3", "system", "prompt")
	if err != nil || text != "answer" {
		t.Errorf("generate = %q, %v", text, err)
	}
}
