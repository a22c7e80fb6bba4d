package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/snix/internal/assist"
	"github.com/starford/snix/internal/backup"
	"github.com/starford/snix/internal/index"
	"github.com/starford/snix/internal/models"
	"github.com/starford/snix/internal/snippetservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc     *snippetservice.Service
	backups *backup.Manager
	assist  *assist.Assistant
}

// NewHandler creates a new Handler. backups and assistant may be nil.
func NewHandler(svc *snippetservice.Service, backups *backup.Manager, assistant *assist.Assistant) *Handler {
	return &Handler{svc: svc, backups: backups, assist: assistant}
}

func (h *Handler) listing(w http.ResponseWriter, r *http.Request, id string) {
	l, err := h.svc.List(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := NotebookListing{
		Notebook:  l.Notebook,
		Path:      []models.Notebook{},
		Notebooks: l.Notebooks,
		Snippets:  l.Snippets,
	}
	if resp.Notebooks == nil {
		resp.Notebooks = []models.Notebook{}
	}
	if resp.Snippets == nil {
		resp.Snippets = []models.Snippet{}
	}
	if id != "" {
		if resp.Path, err = h.svc.Path(id); err != nil {
			writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListRoot handles GET /api/notebooks.
//
//	@Summary		List root notebooks and root snippets
//	@Tags			notebooks
//	@Produce		json
//	@Success		200		{object}	NotebookListing
//	@Security		BearerAuth
//	@Router			/notebooks [get]
func (h *Handler) ListRoot(w http.ResponseWriter, r *http.Request) {
	h.listing(w, r, "")
}

// GetNotebook handles GET /api/notebooks/{id}.
//
//	@Summary		Get a notebook with its breadcrumb and children
//	@Tags			notebooks
//	@Produce		json
//	@Param			id		path		string	true	"Notebook id"
//	@Success		200		{object}	NotebookListing
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notebooks/{id} [get]
func (h *Handler) GetNotebook(w http.ResponseWriter, r *http.Request) {
	h.listing(w, r, chi.URLParam(r, "id"))
}

// CreateNotebook handles POST /api/notebooks.
//
//	@Summary		Create a notebook
//	@Tags			notebooks
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateNotebookRequest	true	"Notebook to create"
//	@Success		201		{object}	models.Notebook
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notebooks [post]
func (h *Handler) CreateNotebook(w http.ResponseWriter, r *http.Request) {
	var req CreateNotebookRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	n, err := h.svc.CreateNotebook(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

// UpdateNotebook handles PATCH /api/notebooks/{id}.
func (h *Handler) UpdateNotebook(w http.ResponseWriter, r *http.Request) {
	var req UpdateNotebookRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	n, err := h.svc.UpdateNotebook(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// MoveNotebook handles POST /api/notebooks/{id}/move.
func (h *Handler) MoveNotebook(w http.ResponseWriter, r *http.Request) {
	var req MoveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	n, err := h.svc.MoveNotebook(r.Context(), chi.URLParam(r, "id"), req.Target)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// DeleteNotebook handles DELETE /api/notebooks/{id}?policy=reject|cascade.
//
//	@Summary		Delete a notebook
//	@Tags			notebooks
//	@Param			id		path		string	true	"Notebook id"
//	@Param			policy	query		string	true	"Delete policy"	Enums(reject, cascade)
//	@Success		200		{object}	snippetservice.DeleteResult
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notebooks/{id} [delete]
func (h *Handler) DeleteNotebook(w http.ResponseWriter, r *http.Request) {
	policy, err := snippetservice.ParsePolicy(r.URL.Query().Get("policy"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.svc.DeleteNotebook(r.Context(), chi.URLParam(r, "id"), policy)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetSnippet handles GET /api/snippets/{id}. Reading does not count as an
// access; clients call POST /api/snippets/{id}/access when a snippet is
// opened.
//
//	@Summary		Get a snippet
//	@Tags			snippets
//	@Produce		json
//	@Param			id		path		string	true	"Snippet id"
//	@Success		200		{object}	SnippetDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/snippets/{id} [get]
func (h *Handler) GetSnippet(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.GetSnippet(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	path, err := h.svc.Path(s.NotebookID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SnippetDetail{Snippet: s, Path: path})
}

// CreateSnippet handles POST /api/snippets.
//
//	@Summary		Create a snippet
//	@Tags			snippets
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateSnippetRequest	true	"Snippet to create"
//	@Success		201		{object}	models.Snippet
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/snippets [post]
func (h *Handler) CreateSnippet(w http.ResponseWriter, r *http.Request) {
	var req CreateSnippetRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s, err := h.svc.CreateSnippet(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, s)
}

// UpdateSnippet handles PATCH /api/snippets/{id}.
func (h *Handler) UpdateSnippet(w http.ResponseWriter, r *http.Request) {
	var req UpdateSnippetRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s, err := h.svc.UpdateSnippet(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// DeleteSnippet handles DELETE /api/snippets/{id}.
func (h *Handler) DeleteSnippet(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteSnippet(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MoveSnippet handles POST /api/snippets/{id}/move.
func (h *Handler) MoveSnippet(w http.ResponseWriter, r *http.Request) {
	var req MoveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	s, err := h.svc.MoveSnippet(r.Context(), chi.URLParam(r, "id"), req.Target)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// ToggleFavorite handles POST /api/snippets/{id}/favorite.
func (h *Handler) ToggleFavorite(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.ToggleFavorite(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// RecordAccess handles POST /api/snippets/{id}/access.
func (h *Handler) RecordAccess(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.RecordAccess(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// Ask handles POST /api/snippets/{id}/ask.
func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	var req AskRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	ans, err := h.assist.Ask(r.Context(), chi.URLParam(r, "id"), req.Question)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ans)
}

// Search handles GET /api/search.
//
//	@Summary		Ranked search over titles, bodies and tags
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	false	"Search query; #tag filters by tag"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	hits := h.svc.Search(r.URL.Query().Get("q"), queryInt(r, "limit"))
	if hits == nil {
		hits = []index.Hit{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: hits, Total: len(hits)})
}

// Favorites handles GET /api/favorites.
func (h *Handler) Favorites(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"snippets": h.svc.ListFavorites()})
}

// Recents handles GET /api/recents.
func (h *Handler) Recents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"recents": h.svc.ListRecents(queryInt(r, "limit"))})
}

// Tags handles GET /api/tags.
func (h *Handler) Tags(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tags": h.svc.Tags()})
}

// Stats handles GET /api/stats.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Stats())
}
