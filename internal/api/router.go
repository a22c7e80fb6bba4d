package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/snix/internal/assist"
	"github.com/starford/snix/internal/backup"
	"github.com/starford/snix/internal/snippetservice"
)

// RouterOptions carries the optional collaborators of the API.
type RouterOptions struct {
	AuthEnabled bool
	Token       string
	// Events, if non-nil, is mounted at GET /events inside the auth group.
	Events http.Handler
	// Backups enables the /backups routes.
	Backups *backup.Manager
	// Assist enables POST /snippets/{id}/ask.
	Assist *assist.Assistant
}

// NewRouter creates a chi router with all API routes mounted.
func NewRouter(svc *snippetservice.Service, opts RouterOptions) chi.Router {
	h := NewHandler(svc, opts.Backups, opts.Assist)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(opts.AuthEnabled, opts.Token))

	// Notebooks.
	r.Get("/notebooks", h.ListRoot)
	r.Post("/notebooks", h.CreateNotebook)
	r.Get("/notebooks/{id}", h.GetNotebook)
	r.Patch("/notebooks/{id}", h.UpdateNotebook)
	r.Post("/notebooks/{id}/move", h.MoveNotebook)
	r.Delete("/notebooks/{id}", h.DeleteNotebook)

	// Snippets.
	r.Post("/snippets", h.CreateSnippet)
	r.Get("/snippets/{id}", h.GetSnippet)
	r.Patch("/snippets/{id}", h.UpdateSnippet)
	r.Delete("/snippets/{id}", h.DeleteSnippet)
	r.Post("/snippets/{id}/move", h.MoveSnippet)
	r.Post("/snippets/{id}/favorite", h.ToggleFavorite)
	r.Post("/snippets/{id}/access", h.RecordAccess)
	if opts.Assist != nil {
		r.Post("/snippets/{id}/ask", h.Ask)
	}

	// Queries.
	r.Get("/search", h.Search)
	r.Get("/favorites", h.Favorites)
	r.Get("/recents", h.Recents)
	r.Get("/tags", h.Tags)
	r.Get("/stats", h.Stats)

	// Transfer.
	r.Get("/export", h.Export)
	r.Post("/import", h.Import)
	if opts.Backups != nil {
		r.Get("/backups", h.ListBackups)
		r.Post("/backups", h.CreateBackup)
		r.Post("/backups/prune", h.PruneBackups)
		r.Post("/backups/{name}/restore", h.RestoreBackup)
	}

	// SSE endpoint (protected by same auth middleware).
	if opts.Events != nil {
		r.Get("/events", opts.Events.ServeHTTP)
	}

	return r
}
