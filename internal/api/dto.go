package api

import (
	"github.com/starford/snix/internal/index"
	"github.com/starford/snix/internal/models"
	"github.com/starford/snix/internal/snippetservice"
)

// CreateNotebookRequest is the request body for creating a notebook.
type CreateNotebookRequest = snippetservice.NotebookInput

// UpdateNotebookRequest renames or re-describes a notebook.
type UpdateNotebookRequest = snippetservice.NotebookPatch

// CreateSnippetRequest is the request body for creating a snippet.
type CreateSnippetRequest = snippetservice.SnippetInput

// UpdateSnippetRequest changes the given snippet fields.
type UpdateSnippetRequest = snippetservice.SnippetPatch

// MoveRequest reparents a notebook or moves a snippet. An empty target moves
// a notebook to the root.
type MoveRequest struct {
	Target string `json:"target" example:"nb-1"`
}

// AskRequest is a question about one snippet.
type AskRequest struct {
	Question string `json:"question" example:"What does this do?"`
}

// NotebookListing is a notebook with its breadcrumb and direct children.
type NotebookListing struct {
	Notebook  *models.Notebook  `json:"notebook,omitempty"`
	Path      []models.Notebook `json:"path" validate:"required"`
	Notebooks []models.Notebook `json:"notebooks" validate:"required"`
	Snippets  []models.Snippet  `json:"snippets" validate:"required"`
}

// SnippetDetail is a snippet with the path of its notebook.
type SnippetDetail struct {
	models.Snippet
	Path []models.Notebook `json:"path" validate:"required"`
}

// SearchResponse wraps ranked search hits.
type SearchResponse struct {
	Results []index.Hit `json:"results" validate:"required"`
	Total   int         `json:"total" example:"3"`
}

// ImportResponse reports what an import created.
type ImportResponse struct {
	NotebooksCreated int      `json:"notebooks_created"`
	SnippetsCreated  int      `json:"snippets_created"`
	Renamed          int      `json:"renamed"`
	Skipped          int      `json:"skipped"`
	Notices          []string `json:"notices"`
}
