package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/scan-admission/internal/types"
)

// ErrorResponse is the wire shape for every failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	json.NewEncoder(w).Encode(ErrorResponse{Success: false, Error: message})
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// parseJSONBody parses JSON request body.
func parseJSONBody(r *http.Request, v interface{}) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// mapServiceError maps service errors to HTTP status codes and the
// user-facing message.
func mapServiceError(err error) (int, string) {
	var serviceErr *types.ServiceError
	if errors.As(err, &serviceErr) {
		switch serviceErr.Code {
		case "INVALID_SCAN_TYPE", "INVALID_PURCHASE":
			return http.StatusBadRequest, serviceErr.Message
		case "PROFILE_NOT_FOUND":
			return http.StatusNotFound, serviceErr.Message
		case "PURCHASE_REJECTED":
			return http.StatusBadRequest, serviceErr.Message
		case "UNAUTHENTICATED":
			return http.StatusUnauthorized, serviceErr.Message
		case "PERSISTENCE_FAILURE":
			return http.StatusInternalServerError, serviceErr.Message
		default:
			return http.StatusInternalServerError, "An internal error occurred"
		}
	}

	return http.StatusInternalServerError, "An internal error occurred"
}
