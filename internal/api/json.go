package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/folio/internal/apperr"
)

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

// statusOf maps domain errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, apperr.ErrNotFound), errors.Is(err, apperr.ErrProfileNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrRunInProgress), errors.Is(err, apperr.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrProfileMisconfigured):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrNotPublishable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, apperr.ErrUploadFailed):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// writeError logs unexpected failures and writes the error body. Internal
// errors are not echoed to the client.
func writeError(w http.ResponseWriter, op string, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, status, errorBody("internal error"))
		return
	}
	writeJSON(w, status, errorBody(err.Error()))
}
