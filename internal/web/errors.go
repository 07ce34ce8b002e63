package web

// errors.go maps engine errors onto HTTP statuses and writes uniform
// JSON bodies. Technical detail is logged server-side with the request
// ID; the client sees the error message and nothing else.

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/chunkstream/chunkstream/internal/core"
	"github.com/chunkstream/chunkstream/internal/logging"
)

// ErrorResponse is the JSON body for all error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

// statusForError maps an engine error to an HTTP status code.
func statusForError(err error) int {
	switch {
	case errors.Is(err, core.ErrUnknownTable):
		return http.StatusNotFound
	case errors.Is(err, core.ErrInvalidTimeFormat),
		errors.Is(err, core.ErrInvalidConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrQueryFailure):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs the error and writes its JSON representation with
// the mapped status.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)

	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
	)

	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

// respondBadRequest is for parameter errors that never reach the engine.
func (s *Server) respondBadRequest(w http.ResponseWriter, r *http.Request, msg string) {
	logging.FromContext(r.Context()).Warn("bad request",
		"path", r.URL.Path,
		"error", msg,
	)
	writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: msg})
}

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
