// Package handler contains the HTTP layer: request parsing, response
// writing, and nothing else. Business rules live in the service layer;
// handlers translate between HTTP and domain types in both directions.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/agamify/agamify/internal/apperror"
)

// Response is the envelope every API endpoint answers with:
//
//	{"success": true,  "data": {...}}
//	{"success": false, "error": "Repository already imported"}
//
// The frontend always knows what fields to expect regardless of status
// code. Data, Error, and Message are omitted when empty.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// writeJSON sends a JSON response. Headers and status code MUST be set
// before the first body write — after that they are silently ignored.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		if err := json.NewEncoder(w).Encode(body); err != nil {
			// Headers are already gone out; logging is all that's left.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// writeSuccess sends a success envelope with the given payload.
func writeSuccess(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Response{Success: true, Data: data})
}

// writeMessage sends a success envelope carrying only a human message.
func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Response{Success: true, Message: message})
}

// writeError maps a domain error to its HTTP status code and sends the
// failure envelope. This is the ONE place the apperror taxonomy meets HTTP:
//
//	ErrValidation      → 400
//	ErrUnauthenticated → 401
//	ErrForbidden       → 403
//	ErrNotFound        → 404
//	ErrConflict        → 409
//	ErrUpstream        → 500, with the client-safe message
//	anything else      → 500, with a generic message
//
// The raw error text of unknown errors is never echoed to the client — it
// can carry SQL fragments, file paths, or upstream responses.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, apperror.ErrValidation):
			status = http.StatusBadRequest
		case errors.Is(err, apperror.ErrUnauthenticated):
			status = http.StatusUnauthorized
		case errors.Is(err, apperror.ErrForbidden):
			status = http.StatusForbidden
		case errors.Is(err, apperror.ErrNotFound):
			status = http.StatusNotFound
		case errors.Is(err, apperror.ErrConflict):
			status = http.StatusConflict
		}
		writeJSON(w, status, Response{Success: false, Error: appErr.Message})
		return
	}

	writeJSON(w, http.StatusInternalServerError, Response{
		Success: false,
		Error:   "Internal server error",
	})
}

// decodeBody parses a JSON request body into dst, translating parse
// failures into a 400-mapped validation error.
func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperror.ValidationFailed("body", "invalid JSON request body")
	}
	return nil
}
