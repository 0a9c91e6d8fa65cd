package domain

import "time"

// AuthenticatedUser is the validated identity attached to a request after the
// session middleware has verified the bearer token.
type AuthenticatedUser struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`

	// Token is the raw bearer credential, kept so downstream backend calls can
	// be issued on the user's behalf. It is never serialized to clients.
	Token string `json:"-"`
}
