package domain

import (
	"encoding/json"
	"errors"
	"net/http"
)

// ErrorCode represents a specific error condition.
type ErrorCode string

const (
	ErrUnauthorized        ErrorCode = "Unauthorized"        // HTTP 401, session-level problem, client must re-authenticate
	ErrBadRequest          ErrorCode = "BadRequest"          // HTTP 400, e.g., malformed query parameters
	ErrNotFound            ErrorCode = "NotFound"            // HTTP 404
	ErrUpstreamUnavailable ErrorCode = "UpstreamUnavailable" // HTTP 502, backend or webhook target unreachable
	ErrInternal            ErrorCode = "InternalServerError" // HTTP 500
)

// Sentinel errors shared across layers. They are wrapped with fmt.Errorf("%w")
// so callers can match with errors.Is.
var (
	// ErrCacheMiss is returned by cache stores when a key is absent or its entry is stale.
	ErrCacheMiss = errors.New("entry not found in cache")

	// ErrChannelUninitialized is returned when a caller subscribes to the
	// recalculation channel before a connection has been established.
	ErrChannelUninitialized = errors.New("recalculation channel is not initialized")

	// ErrSessionInvalid indicates the bearer token was rejected by the identity
	// provider. It escalates to a sign-in redirect, never to a retry.
	ErrSessionInvalid = errors.New("session token is invalid or expired")
)

// ErrorResponse is the standard error format returned to clients as JSON.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
	// Redirect carries the sign-in location on 401 responses so the dashboard
	// can navigate instead of retrying.
	Redirect string `json:"redirect,omitempty"`
}

// NewErrorResponse creates a new ErrorResponse struct.
func NewErrorResponse(code ErrorCode, message string, details string) ErrorResponse {
	return ErrorResponse{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// WithRedirect returns a copy of the response carrying a navigation target.
func (er ErrorResponse) WithRedirect(location string) ErrorResponse {
	er.Redirect = location
	return er
}

// WriteJSON sends an ErrorResponse as JSON with the given HTTP status code.
func (er ErrorResponse) WriteJSON(w http.ResponseWriter, httpStatusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatusCode)
	json.NewEncoder(w).Encode(er) // Best effort, error from Encode is not typically handled here.
}
