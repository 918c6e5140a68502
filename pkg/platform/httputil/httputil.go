// Package httputil holds the JSON response helpers shared by HTTP handlers.
package httputil

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// WriteJSON encodes v with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes an error body. Server errors never echo the description,
// which may carry upstream details.
func WriteError(w http.ResponseWriter, status int, code, description string) {
	resp := ErrorResponse{Error: code}
	if status < http.StatusInternalServerError {
		resp.ErrorDescription = description
	}
	WriteJSON(w, status, resp)
}
