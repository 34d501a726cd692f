// Package frontdoor holds what the HTTP entry points share: the handler
// registration shape and the JSON response helpers.
package frontdoor

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// MaxBodyBytes bounds request bodies. Handover notes are short free text.
const MaxBodyBytes = 1 << 20

// HandlerRegistration describes a route a frontdoor serves.
type HandlerRegistration struct {
	Path    string
	Method  string
	Handler http.HandlerFunc
}

// WriteJSON writes payload with the given status.
func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// ErrorBody is the generic error response.
type ErrorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// WriteError writes {"error": message}.
func WriteError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorBody{Error: message})
}

// DecodeJSON reads a size-limited JSON body into v.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil && err != io.EOF {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// Recover turns a panic in the rest of the handler into a 500 carrying
// message and the panic value as details. Use as: defer frontdoor.Recover(w, logger, "...")
func Recover(w http.ResponseWriter, logger *slog.Logger, message string) {
	rec := recover()
	if rec == nil {
		return
	}
	details := fmt.Sprint(rec)
	if err, ok := rec.(error); ok {
		details = err.Error()
	}
	logger.Error(message, slog.String("panic", details))
	WriteJSON(w, http.StatusInternalServerError, ErrorBody{Error: message, Details: details})
}
