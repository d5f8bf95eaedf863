package api

import "time"

const (
	// sessionDuration is the absolute lifetime of a login session.
	sessionDuration = 24 * time.Hour

	// sessionIdleTimeout logs a session out after this much inactivity.
	sessionIdleTimeout = 2 * time.Hour
)

// SessionStore holds server-side login sessions keyed by opaque token. The
// default implementation is in-memory; anything satisfying the interface
// can stand in, including the fakes the tests use.
type SessionStore interface {
	// Get returns the live session for a token. Sessions past their expiry
	// or idle timeout are reported as absent.
	Get(token string) (AuthSession, bool)
	// Put stores or replaces the session under token.
	Put(token string, session AuthSession)
	// Delete drops the session if present.
	Delete(token string)
}

// AuthSession is the server-side record behind a session cookie.
type AuthSession struct {
	CreatedAt      time.Time `json:"created_at"`
	ExpiresAt      time.Time `json:"expires_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
}
