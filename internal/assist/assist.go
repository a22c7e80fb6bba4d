// Package assist asks a local LLM about a stored snippet.
package assist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/starford/snix/internal/models"
)

// ErrNoModels is returned when the generator has no model installed.
var ErrNoModels = errors.New("assist: no models installed, run 'ollama pull <model>'")

// Reader is the read-only view of the store the assistant needs. It never
// records access.
type Reader interface {
	GetSnippet(id string) (models.Snippet, error)
}

// Generator produces a completion for a system prompt and a user prompt.
type Generator interface {
	Generate(ctx context.Context, model, system, prompt string) (string, error)
	Models(ctx context.Context) ([]string, error)
}

// Answer is one completed exchange.
type Answer struct {
	SnippetID string        `json:"snippet_id"`
	Model     string        `json:"model"`
	Text      string        `json:"text"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Assistant binds a reader to a generator.
type Assistant struct {
	reader Reader
	gen    Generator
	model  string
	logger *slog.Logger
}

// New returns an assistant. An empty model picks the first installed one.
func New(reader Reader, gen Generator, model string, logger *slog.Logger) *Assistant {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assistant{reader: reader, gen: gen, model: model, logger: logger}
}

// Ask answers question about the snippet with the given id.
func (a *Assistant) Ask(ctx context.Context, snippetID, question string) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		question = "Explain what this snippet does."
	}
	s, err := a.reader.GetSnippet(snippetID)
	if err != nil {
		return Answer{}, err
	}
	model, err := a.pickModel(ctx)
	if err != nil {
		return Answer{}, err
	}

	started := time.Now()
	text, err := a.gen.Generate(ctx, model, SystemPrompt(s), question)
	if err != nil {
		return Answer{}, fmt.Errorf("assist: generate: %w", err)
	}
	ans := Answer{SnippetID: s.ID, Model: model, Text: strings.TrimSpace(text), Elapsed: time.Since(started)}
	a.logger.Info("assist answered",
		slog.String("snippet", s.ID),
		slog.String("model", model),
		slog.Duration("elapsed", ans.Elapsed))
	return ans, nil
}

func (a *Assistant) pickModel(ctx context.Context) (string, error) {
	if a.model != "" {
		return a.model, nil
	}
	names, err := a.gen.Models(ctx)
	if err != nil {
		return "", fmt.Errorf("assist: list models: %w", err)
	}
	if len(names) == 0 {
		return "", ErrNoModels
	}
	return names[0], nil
}

// SystemPrompt frames the conversation around one snippet.
func SystemPrompt(s models.Snippet) string {
	lang := s.Language
	if lang == "" {
		lang = "text"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "You are a helpful AI assistant specializing in code analysis and development. "+
		"You are currently working with a %s code snippet titled '%s'.", lang, s.Title)
	if s.Description != "" {
		fmt.Fprintf(&b, " Its author describes it as: %s", s.Description)
	}
	fmt.Fprintf(&b, "\nHere is the code snippet:\n```%s\n%s\n```\n\n", lang, strings.TrimRight(s.Body, "\n"))
	b.WriteString("Please provide helpful analysis, suggestions, explanations, or answer questions about this code. " +
		"When discussing the code, be specific and reference particular parts when relevant.")
	return b.String()
}
