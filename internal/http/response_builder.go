package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"fintrack/internal/auth"
	"fintrack/internal/core"
	applog "fintrack/internal/log"
	"fintrack/internal/repository"
)

// errorBody is the JSON shape of every non-2xx response.
type errorBody struct {
	Message string           `json:"message"`
	Errors  core.FieldErrors `json:"errors,omitempty"`
}

// writeJSON encodes v before touching the response, so an unencodable
// value becomes a 500 instead of a success status with an empty body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		slog.Error("Failed to encode response", applog.FieldError, err, "status", status)
		status = http.StatusInternalServerError
		body = []byte(`{"message":"Failed to encode response"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Message: message})
}

func writeUnauthorized(w http.ResponseWriter) {
	writeMessage(w, http.StatusUnauthorized, "Unauthorized")
}

// respondError maps err to a response. Validation failures answer 400 with
// badRequest as the message; unexpected failures answer 500 with failure
// and are logged.
func respondError(w http.ResponseWriter, r *http.Request, err error, badRequest, failure string) {
	var verr *core.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorBody{Message: badRequest, Errors: verr.Fields})
	case errors.Is(err, auth.ErrUnauthenticated):
		writeUnauthorized(w)
	case errors.Is(err, auth.ErrForbidden):
		writeMessage(w, http.StatusForbidden, "Forbidden")
	case errors.Is(err, repository.ErrNotFound):
		writeMessage(w, http.StatusNotFound, "Not found")
	default:
		applog.FromContext(r.Context()).ErrorContext(r.Context(), failure,
			applog.FieldError, err,
			applog.FieldErrorType, applog.ErrorTypeInternal,
			applog.FieldMethod, r.Method,
			applog.FieldPath, r.URL.Path)
		writeMessage(w, http.StatusInternalServerError, failure)
	}
}
