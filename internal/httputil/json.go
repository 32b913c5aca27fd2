package httputil

import (
	"encoding/json"
	"net/http"
)

// ErrorBody is the envelope every error response uses.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail carries a machine-readable code, a generic human message, and
// optional detail strings. Details is always present in the payload, never
// null.
type ErrorDetail struct {
	Code    string   `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details"`
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Error writes the standard error envelope.
func Error(w http.ResponseWriter, status int, code, message string, details ...string) {
	if details == nil {
		details = []string{}
	}
	JSON(w, status, ErrorBody{Error: ErrorDetail{
		Code:    code,
		Message: message,
		Details: details,
	}})
}
