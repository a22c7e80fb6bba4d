package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/starford/snix/internal/apperr"
	"github.com/starford/snix/internal/backup"
	"github.com/starford/snix/internal/transfer"
)

// maxBodyBytes bounds JSON request bodies; a snippet body alone may be 1 MiB.
const maxBodyBytes = 4 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// statusFor maps the error taxonomy to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrRestoreAborted), errors.Is(err, backup.ErrPassphrase):
		return http.StatusUnprocessableEntity
	case errors.Is(err, apperr.ErrDuplicateName),
		errors.Is(err, apperr.ErrCycleDetected),
		errors.Is(err, apperr.ErrNotEmpty):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrInvalidInput), errors.Is(err, transfer.ErrUnsupported):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrStoreLocked):
		return http.StatusLocked
	}
	return http.StatusInternalServerError
}

// writeError answers with the mapped status. Unexpected errors are logged
// and hidden from the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()))
		writeJSON(w, status, errorBody("internal error"))
		return
	}
	writeJSON(w, status, errorBody(err.Error()))
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

// queryInt reads a non-negative integer parameter, 0 when absent or malformed.
func queryInt(r *http.Request, name string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func queryBool(r *http.Request, name string) bool {
	b, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return b
}
