package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/zatekoja/dearteddy/backend/internal/infrastructure/observability"
	apperrors "github.com/zatekoja/dearteddy/backend/pkg/errors"
)

// UserIDHeader carries the authenticated user's id. Authentication itself
// happens upstream of this service.
const UserIDHeader = "X-User-ID"

func respondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondWithJSON(w, statusCode, map[string]string{
		"error": message,
	})
}

// statusForError maps application error types to HTTP status codes
func statusForError(err error) int {
	switch apperrors.TypeOf(err) {
	case apperrors.ErrorTypeNotFound:
		return http.StatusNotFound
	case apperrors.ErrorTypeValidation:
		return http.StatusBadRequest
	case apperrors.ErrorTypeInvalidState:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondWithAppError writes err using its mapped status. Internal failures are
// logged and reported with a generic message.
func respondWithAppError(w http.ResponseWriter, r *http.Request, err error, fallbackMessage string) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		observability.LoggerFromContext(r.Context()).Error().
			Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg(fallbackMessage)
		respondWithError(w, status, fallbackMessage)
		return
	}

	message := err.Error()
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	respondWithError(w, status, message)
}

func userIDFromRequest(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(UserIDHeader))
}
