// Package httputil provides shared helpers for the control API's JSON
// responses.
package httputil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// WriteJSON writes data as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// WriteError writes the control API's error shape: a machine-readable
// code plus a human-readable message.
func WriteError(w http.ResponseWriter, status int, errCode, message string) {
	WriteJSON(w, status, map[string]string{
		"error":   errCode,
		"message": message,
	})
}

// WriteCreated writes a 201 with the created resource.
func WriteCreated(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusCreated, data)
}

// WriteOK writes a 200 with data.
func WriteOK(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, data)
}

// WriteNoContent writes a 204.
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// WriteBadRequest writes a 400 error response.
func WriteBadRequest(w http.ResponseWriter, errCode, message string) {
	WriteError(w, http.StatusBadRequest, errCode, message)
}

// WriteNotFound writes a 404 error response.
func WriteNotFound(w http.ResponseWriter, errCode, message string) {
	WriteError(w, http.StatusNotFound, errCode, message)
}

// WriteMethodNotAllowed writes a 405 error response.
func WriteMethodNotAllowed(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", message)
}

// DecodeJSON decodes a request body into v, capping the read at
// maxBytes and rejecting unknown fields so typos in payloads surface
// as 400s instead of silently-ignored settings.
func DecodeJSON(r *http.Request, v any, maxBytes int64) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}
