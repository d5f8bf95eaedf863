package api

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/roarinpenguin/roarinca/internal/uuid"
)

const (
	csrfCookieName = "roarinca_csrf"
	csrfHeaderName = "X-CSRF-Token"
)

func isSafeMethod(method string) bool {
	return method == http.MethodGet || method == http.MethodHead || method == http.MethodOptions
}

// CSRFMiddleware enforces double-submit cookie protection on mutating
// requests that ride a session cookie. The SPA reads the non-HttpOnly
// CSRF cookie and echoes it in the X-CSRF-Token header; the two must
// match for the request to proceed.
func (a *API) CSRFMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isSafeMethod(r.Method) {
			next.ServeHTTP(w, r)
			return
		}

		// Without a session cookie there is no ambient credential for a
		// cross-site request to ride on, so there is nothing to forge.
		// Login and setup fall through here and authenticate on their own.
		if _, err := r.Cookie(sessionCookieName); err != nil {
			next.ServeHTTP(w, r)
			return
		}

		cookie, err := r.Cookie(csrfCookieName)
		if err != nil || cookie.Value == "" {
			writeError(w, http.StatusForbidden, "missing CSRF token")
			return
		}
		if subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(r.Header.Get(csrfHeaderName))) != 1 {
			writeError(w, http.StatusForbidden, "invalid CSRF token")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// csrfCookie builds the double-submit cookie. HttpOnly stays false on
// purpose: the browser-side code must be able to read the value to echo
// it back as a header.
func csrfCookie(r *http.Request, value string, maxAge int) *http.Cookie {
	c := &http.Cookie{
		Name:     csrfCookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: false,
		Secure:   requestIsSecure(r),
		SameSite: http.SameSiteLaxMode,
	}
	if maxAge < 0 {
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
	}
	return c
}

// issueCSRFCookie hands out a fresh token alongside a new session.
func issueCSRFCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, csrfCookie(r, uuid.New(), 0))
}

// dropCSRFCookie expires the token cookie when the session ends.
func dropCSRFCookie(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, csrfCookie(r, "", -1))
}
