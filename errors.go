package main

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/example/authgate/internal/auth"
)

// APIError represents a structured API error response
type APIError struct {
	Code    string `json:"error_code"`
	Message string `json:"error_message"`
	Details string `json:"details,omitempty"`
}

// writeError writes a structured error response
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(APIError{
		Code:    code,
		Message: message,
	})
}

// writeSuccess writes a success response
func writeSuccess(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, map[string]interface{}{
		"success": true,
		"data":    data,
	})
}

// writeAuthError maps core error kinds onto protocol responses. Every
// credential-verification failure already arrives normalized as
// ErrAuthenticationFailed, so the body is uniform regardless of cause.
func writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrAuthenticationFailed),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrInvalidSignature),
		errors.Is(err, auth.ErrMalformedToken),
		errors.Is(err, auth.ErrMalformedKey):
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid credentials")
	case errors.Is(err, auth.ErrConflict):
		writeError(w, http.StatusConflict, "CONFLICT", "Username or email already registered")
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, http.StatusForbidden, "FORBIDDEN", "Not authorized for this resource")
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Resource not found")
	default:
		log.Printf("internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}
