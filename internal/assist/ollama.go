package assist

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
)

// Sampling options sent with every request.
const (
	temperature = 0.7
	numPredict  = 2048
	topK        = 40
	topP        = 0.9
)

// OllamaGenerator talks to a local Ollama server.
type OllamaGenerator struct {
	client *api.Client
}

// NewOllama connects to host, or to OLLAMA_HOST when host is empty.
func NewOllama(host string) (*OllamaGenerator, error) {
	if host == "" {
		client, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama client: %w", err)
		}
		return &OllamaGenerator{client: client}, nil
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("parse ollama host: %w", err)
	}
	return &OllamaGenerator{client: api.NewClient(u, http.DefaultClient)}, nil
}

// Generate runs one non-streaming completion.
func (g *OllamaGenerator) Generate(ctx context.Context, model, system, prompt string) (string, error) {
	stream := false
	req := &api.GenerateRequest{
		Model:  model,
		System: system,
		Prompt: prompt,
		Stream: &stream,
		Options: map[string]any{
			"temperature": temperature,
			"num_predict": numPredict,
			"top_k":       topK,
			"top_p":       topP,
		},
	}
	var b strings.Builder
	err := g.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		b.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", err
	}
	return b.String(), nil
}

// Models lists the installed model names.
func (g *OllamaGenerator) Models(ctx context.Context) ([]string, error) {
	resp, err := g.client.List(ctx)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		names = append(names, m.Name)
	}
	return names, nil
}
