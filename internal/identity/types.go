package identity

import (
	"time"
)

// MetadataRoleKey is the user metadata field that caches the profile role.
const MetadataRoleKey = "role"

// Metadata is the string-valued user metadata kept by the auth provider.
type Metadata map[string]string

// Role returns the cached role claim, or "" when absent.
func (m Metadata) Role() string {
	if m == nil {
		return ""
	}
	return m[MetadataRoleKey]
}

// Clone returns an independent copy of m.
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// User is the identity behind a session.
type User struct {
	ID       string   `json:"id"`
	Email    string   `json:"email"`
	Metadata Metadata `json:"user_metadata"`
}

// Session is an authenticated token pair plus its user.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         User      `json:"user"`
}

// Expired reports whether the access token is past its expiry.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// EventKind names an auth state transition.
type EventKind string

const (
	SignedIn        EventKind = "SIGNED_IN"
	SignedOut       EventKind = "SIGNED_OUT"
	SessionRestored EventKind = "INITIAL_SESSION"
	TokenRefreshed  EventKind = "TOKEN_REFRESHED"
)

// Event is published whenever a user's auth state changes. Session is nil
// for SignedOut.
type Event struct {
	Kind    EventKind
	UserID  string
	Session *Session
}
