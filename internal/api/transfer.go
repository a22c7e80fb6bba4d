package api

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/snix/internal/transfer"
)

// maxImportBytes bounds an uploaded import document.
const maxImportBytes = 64 << 20

// Export handles GET /api/export.
//
//	@Summary		Export a document of the selected notebooks and snippets
//	@Tags			transfer
//	@Produce		json
//	@Param			notebook	query		[]string	false	"Notebook ids, with descendants"
//	@Param			favorites	query		bool		false	"Favorites only"
//	@Param			tag			query		[]string	false	"Keep snippets with any of these tags"
//	@Param			bodies		query		bool		false	"Include bodies (default true)"
//	@Param			format		query		string		false	"Encoding"	Enums(json, yaml)
//	@Success		200			{object}	transfer.Document
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/export [get]
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	enc, err := transfer.ParseEncoding(q.Get("format"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	sel := transfer.Selection{
		NotebookIDs:   q["notebook"],
		FavoritesOnly: queryBool(r, "favorites"),
		Tags:          q["tag"],
		OmitBodies:    q.Get("bodies") != "" && !queryBool(r, "bodies"),
	}
	doc, err := h.svc.Export(sel)
	if err != nil {
		writeError(w, r, err)
		return
	}
	data, err := transfer.Marshal(doc, enc)
	if err != nil {
		writeError(w, r, err)
		return
	}
	contentType := "application/json; charset=utf-8"
	if enc == transfer.YAML {
		contentType = "application/yaml; charset=utf-8"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="snix-export.%s"`, enc))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Import handles POST /api/import. The document is either the raw request
// body (JSON or YAML) or the "file" field of a multipart form.
//
//	@Summary		Merge a document into the store
//	@Tags			transfer
//	@Accept			json
//	@Produce		json
//	@Success		200		{object}	ImportResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/import [post]
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImportBytes)

	var src io.Reader = r.Body
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxImportBytes); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
			return
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
			return
		}
		defer file.Close()
		src = file
	}

	doc, err := transfer.Decode(src)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	rep, err := h.svc.Import(r.Context(), doc)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ImportResponse{
		NotebooksCreated: rep.NotebooksCreated,
		SnippetsCreated:  rep.SnippetsCreated,
		Renamed:          rep.Renamed,
		Skipped:          rep.Skipped,
		Notices:          rep.Messages(),
	})
}

// ListBackups handles GET /api/backups.
func (h *Handler) ListBackups(w http.ResponseWriter, r *http.Request) {
	list, err := h.backups.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"location": h.backups.Location(),
		"backups":  list,
	})
}

// CreateBackup handles POST /api/backups.
func (h *Handler) CreateBackup(w http.ResponseWriter, r *http.Request) {
	info, err := h.backups.Create(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

// RestoreBackup handles POST /api/backups/{name}/restore.
//
//	@Summary		Replace the store with a backup
//	@Tags			backups
//	@Param			name	path		string	true	"Backup file name"
//	@Success		200		{object}	snippetservice.Stats
//	@Failure		404		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/backups/{name}/restore [post]
func (h *Handler) RestoreBackup(w http.ResponseWriter, r *http.Request) {
	if err := h.backups.Restore(r.Context(), chi.URLParam(r, "name")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Stats())
}

// PruneBackups handles POST /api/backups/prune?keep=N.
func (h *Handler) PruneBackups(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.backups.Prune(r.Context(), queryInt(r, "keep"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if deleted == nil {
		deleted = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}
