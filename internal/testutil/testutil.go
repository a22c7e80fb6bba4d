// Package testutil provides shared test helpers for setting up stores and services.
package testutil

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/starford/snix/internal/index"
	"github.com/starford/snix/internal/models"
	"github.com/starford/snix/internal/snippetservice"
	"github.com/starford/snix/internal/storage"
)

// Epoch is the first time returned by a StubClock.
var Epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// StubClock returns Epoch, then advances by Step on every call.
type StubClock struct {
	mu   sync.Mutex
	Step time.Duration
	next time.Time
}

// NewStubClock starts at Epoch and advances by one second per call.
func NewStubClock() *StubClock {
	return &StubClock{Step: time.Second, next: Epoch}
}

// Now returns the current stub time and advances it.
func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.next
	c.next = c.next.Add(c.Step)
	return t
}

// Set makes the next call to Now return t.
func (c *StubClock) Set(t time.Time) {
	c.mu.Lock()
	c.next = t
	c.mu.Unlock()
}

// StubIDGenerator returns "id-1", "id-2", ...
type StubIDGenerator struct {
	mu sync.Mutex
	n  int
}

// NewID returns the next sequential id.
func (g *StubIDGenerator) NewID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("id-%d", g.n)
}

// Logger discards everything below error.
func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// TestStore opens a file-backed store in a temporary directory.
func TestStore(t *testing.T) (string, storage.Provider) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.OpenFS(dir, Logger())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return dir, store
}

// TestService returns a loaded service over a fresh store with a stub clock
// and sequential ids. Extra options are applied last.
func TestService(t *testing.T, opts ...snippetservice.Option) (*snippetservice.Service, storage.Provider) {
	t.Helper()
	_, store := TestStore(t)
	return ServiceOver(t, store, opts...), store
}

// ServiceOver builds and loads a service over an existing store.
func ServiceOver(t *testing.T, store storage.Provider, opts ...snippetservice.Option) *snippetservice.Service {
	t.Helper()
	all := append([]snippetservice.Option{
		snippetservice.WithClock(NewStubClock()),
		snippetservice.WithIDGenerator(&StubIDGenerator{}),
		snippetservice.WithLogger(Logger()),
	}, opts...)
	svc := snippetservice.New(store, index.New(index.DefaultWeights()), all...)
	if err := svc.Load(context.Background()); err != nil {
		t.Fatal(err)
	}
	return svc
}

// MustNotebook creates a notebook or fails the test.
func MustNotebook(t *testing.T, svc *snippetservice.Service, name, parent string) models.Notebook {
	t.Helper()
	n, err := svc.CreateNotebook(context.Background(), snippetservice.NotebookInput{Name: name, ParentID: parent})
	if err != nil {
		t.Fatalf("CreateNotebook(%q): %v", name, err)
	}
	return n
}

// MustSnippet creates a snippet or fails the test.
func MustSnippet(t *testing.T, svc *snippetservice.Service, notebook, title, body string) models.Snippet {
	t.Helper()
	s, err := svc.CreateSnippet(context.Background(), snippetservice.SnippetInput{
		NotebookID: notebook, Title: title, Body: body,
	})
	if err != nil {
		t.Fatalf("CreateSnippet(%q): %v", title, err)
	}
	return s
}

// Eventually polls fn every tick until it returns true or timeout elapses.
func Eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Fatal(msg)
}
