// Package httperr renders engine errors as JSON API error bodies.
package httperr

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/aloneinabyss/lovelace"
	"github.com/aloneinabyss/lovelace/observability"
)

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Timestamp time.Time `json:"timestamp"`
	Status    int       `json:"status"`
	Error     string    `json:"error"`
	ErrorCode string    `json:"errorCode"`
	Message   string    `json:"message"`
	Path      string    `json:"path"`
}

// StatusOf maps an engine error kind to an HTTP status.
func StatusOf(err error) int {
	switch lovelace.KindOf(err) {
	case lovelace.KindValidation:
		return http.StatusBadRequest
	case lovelace.KindAuthentication:
		return http.StatusUnauthorized
	case lovelace.KindForbidden:
		return http.StatusForbidden
	case lovelace.KindNotFound:
		return http.StatusNotFound
	case lovelace.KindConflict:
		return http.StatusConflict
	case lovelace.KindRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Write classifies err and writes it. Internal errors are logged and their detail is
// replaced by a generic message.
func Write(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusOf(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		observability.FromContext(r.Context()).ErrorContext(r.Context(), "request failed", "error", err)
		message = "internal server error"
		if code := lovelace.CodeOf(err); code != lovelace.CodeInternalError {
			message = "service temporarily unavailable"
		}
	}
	WriteStatus(w, r, status, lovelace.CodeOf(err), message)
}

// WriteStatus writes an error body with an explicit status and code.
func WriteStatus(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	WriteJSON(w, status, ErrorResponse{
		Timestamp: time.Now().UTC(),
		Status:    status,
		Error:     http.StatusText(status),
		ErrorCode: code,
		Message:   message,
		Path:      r.URL.Path,
	})
}

func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
