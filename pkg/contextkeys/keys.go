package contextkeys

// contextKey is an unexported type for context keys to avoid collisions.
type contextKey string

const (
	// RequestIDKey is the context key for storing and retrieving a request ID.
	RequestIDKey contextKey = "request_id"

	// UserIDKey is the context key for storing and retrieving the authenticated user ID.
	UserIDKey contextKey = "user_id"

	// SessionTokenKey is the context key carrying the raw bearer token of the
	// current session. Backend requests issued on behalf of the user reuse it.
	SessionTokenKey contextKey = "session_token"

	// AuthUserContextKey is the context key for storing the entire AuthenticatedUser struct.
	AuthUserContextKey contextKey = "auth_user_context"
)

// String makes contextKey satisfy fmt.Stringer to help with debugging/logging of keys themselves.
func (c contextKey) String() string {
	return string(c)
}
