package api

import (
	"context"
	"net/http"
	"strings"
	"time"
)

const sessionCookieName = "roarinca_session"

type sessionCtxKey struct{}

// AuthMiddleware rejects requests without a live session and stores the
// session on the request context for handlers that want its metadata.
func (a *API) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, ok := a.sessionFromCookie(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		ctx := context.WithValue(r.Context(), sessionCtxKey{}, session)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (a *API) sessionFromCookie(r *http.Request) (AuthSession, bool) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return AuthSession{}, false
	}
	session, ok := a.sessions.Get(cookie.Value)
	if !ok {
		return AuthSession{}, false
	}

	// Slide the idle window.
	session.LastAccessedAt = time.Now()
	a.sessions.Put(cookie.Value, session)
	return session, true
}

func sessionFromContext(ctx context.Context) (AuthSession, bool) {
	session, ok := ctx.Value(sessionCtxKey{}).(AuthSession)
	return session, ok
}

// sessionCookie builds the session cookie. An empty value produces the
// deletion form with MaxAge -1 and an expiry in the past.
func sessionCookie(r *http.Request, value string, expiresAt time.Time) *http.Cookie {
	c := &http.Cookie{
		Name:     sessionCookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   requestIsSecure(r),
		SameSite: http.SameSiteLaxMode,
		Expires:  expiresAt,
	}
	if value == "" {
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
	}
	return c
}

func writeSessionCookie(w http.ResponseWriter, r *http.Request, token string, expiresAt time.Time) {
	http.SetCookie(w, sessionCookie(r, token, expiresAt))
}

func clearSessionCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, sessionCookie(r, "", time.Time{}))
}

// requestIsSecure reports whether the request travelled over TLS, either on
// our own listener or at a forwarding proxy.
func requestIsSecure(r *http.Request) bool {
	switch {
	case r.TLS != nil:
		return true
	case strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https"):
		return true
	default:
		return strings.Contains(strings.ToLower(r.Header.Get("Forwarded")), "proto=https")
	}
}
