// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes read-only snix tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/snix/internal/index"
	"github.com/starford/snix/internal/models"
	"github.com/starford/snix/internal/parser"
	"github.com/starford/snix/internal/snippetservice"
)

const (
	formatURI    = "snix://snippet-format"
	defaultLimit = 20
	maxToolLimit = 200
)

// Reader is the query surface the tools use. None of its methods mutate the
// store.
type Reader interface {
	GetSnippet(id string) (models.Snippet, error)
	List(notebookID string) (index.Listing, error)
	Path(notebookID string) ([]models.Notebook, error)
	Search(query string, limit int) []index.Hit
	ListFavorites() []models.Snippet
	ListRecents(limit int) []models.RecentSnippet
	Tags() []snippetservice.TagCount
}

// Server wraps the MCP server with snix tools.
type Server struct {
	mcp    *server.MCPServer
	reader Reader
}

// New creates a new MCP server with all snix tools registered.
func New(reader Reader, version string) *Server {
	s := &Server{reader: reader}

	s.mcp = server.NewMCPServer(
		"snix",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_snippets",
		mcp.WithDescription("Ranked search over snippet titles, bodies and tags. "+
			"Every word must match; #tag words filter by tag."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 20)")),
	), s.searchSnippets)

	s.mcp.AddTool(mcp.NewTool("read_snippet",
		mcp.WithDescription("Read one snippet as Markdown with YAML frontmatter and a fenced body."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Snippet id")),
	), s.readSnippet)

	s.mcp.AddTool(mcp.NewTool("list_notebook",
		mcp.WithDescription("List the notebooks and snippets directly inside a notebook."),
		mcp.WithString("id", mcp.Description("Notebook id (empty for the root)")),
	), s.listNotebook)

	s.mcp.AddTool(mcp.NewTool("list_favorites",
		mcp.WithDescription("List favorite snippets."),
	), s.listFavorites)

	s.mcp.AddTool(mcp.NewTool("list_recents",
		mcp.WithDescription("List recently opened snippets, most recent first."),
		mcp.WithNumber("limit", mcp.Description("Maximum number of entries (default 20)")),
	), s.listRecents)

	s.mcp.AddTool(mcp.NewTool("list_tags",
		mcp.WithDescription("List tags with the number of snippets carrying each."),
	), s.listTags)

	s.mcp.AddTool(mcp.NewTool("get_snippet_format",
		mcp.WithDescription("Returns how snippets are rendered and how search queries work."),
	), s.getSnippetFormat)

	// Resource: snippet format contract.
	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Snippet Format",
			mcp.WithResourceDescription("Rendered snippet layout and search syntax."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func limitArg(req mcp.CallToolRequest) int {
	n := req.GetInt("limit", defaultLimit)
	if n <= 0 {
		return defaultLimit
	}
	return min(n, maxToolLimit)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

// searchHit is a compact search result without the body.
type searchHit struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Language string   `json:"language,omitempty"`
	Tags     []string `json:"tags,omitempty"`
	Score    int      `json:"score"`
	Excerpt  string   `json:"excerpt"`
}

func (s *Server) searchSnippets(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	hits := s.reader.Search(query, limitArg(req))
	out := make([]searchHit, 0, len(hits))
	for _, h := range hits {
		out = append(out, searchHit{
			ID:       h.Snippet.ID,
			Title:    h.Snippet.Title,
			Language: h.Snippet.Language,
			Tags:     h.Snippet.Tags,
			Score:    h.Score,
			Excerpt:  h.Excerpt,
		})
	}
	return jsonResult(out)
}

func (s *Server) readSnippet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	sn, err := s.reader.GetSnippet(id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	data, err := parser.RenderSnippet(sn)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func (s *Server) listNotebook(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("id", "")
	l, err := s.reader.List(id)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}

	var b strings.Builder
	if id != "" {
		path, err := s.reader.Path(id)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		names := make([]string, len(path))
		for i, n := range path {
			names[i] = n.Name
		}
		fmt.Fprintf(&b, "# %s\n", strings.Join(names, " / "))
	} else {
		b.WriteString("# /\n")
	}
	for _, n := range l.Notebooks {
		fmt.Fprintf(&b, "notebook %s  %s/\n", n.ID, n.Name)
	}
	for _, sn := range l.Snippets {
		fav := ""
		if sn.IsFavorite {
			fav = " *"
		}
		fmt.Fprintf(&b, "snippet  %s  %s%s\n", sn.ID, sn.Title, fav)
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) listFavorites(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	favs := s.reader.ListFavorites()
	if len(favs) == 0 {
		return mcp.NewToolResultText("no favorites"), nil
	}
	lines := make([]string, len(favs))
	for i, sn := range favs {
		lines[i] = sn.ID + "  " + sn.Title
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) listRecents(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	recents := s.reader.ListRecents(limitArg(req))
	if len(recents) == 0 {
		return mcp.NewToolResultText("no recent snippets"), nil
	}
	lines := make([]string, len(recents))
	for i, r := range recents {
		lines[i] = fmt.Sprintf("%s  %s  (%s)", r.Snippet.ID, r.Snippet.Title, r.AccessedAt.Format("2006-01-02 15:04"))
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) listTags(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.reader.Tags())
}

func (s *Server) getSnippetFormat(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(SnippetFormatContract), nil
}

func (s *Server) readFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     SnippetFormatContract,
		},
	}, nil
}
