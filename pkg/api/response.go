package api

import (
	"encoding/json"
	"net/http"
	"time"
)

// errorResponse is the body written for all failed requests.
type errorResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{
		Status:    "error",
		Timestamp: time.Now().UTC(),
		Error:     message,
	})
}

func badRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, message)
}

func unauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, message)
}

func conflict(w http.ResponseWriter, message string) {
	writeError(w, http.StatusConflict, message)
}

func notFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, message)
}

func internalServerError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, message)
}

// decodeJSONBody decodes a JSON request body into the provided pointer.
// Returns false after writing an error response if decoding fails.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		badRequest(w, "Invalid request body")
		return false
	}
	return true
}
