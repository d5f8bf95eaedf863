package api

import (
	"crypto/subtle"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/roarinpenguin/roarinca/internal/uuid"
)

// Setup handles POST /auth/setup. It consumes the one-time setup token
// printed at first start and stores the admin passphrase.
func (a *API) Setup(w http.ResponseWriter, r *http.Request) {
	// Rate-limit setup before any expensive work: global burst, then per IP.
	clientIP := a.clientIP(r)
	if blocked, retryAfter := a.setupGlobalLimiter.check(); blocked {
		a.audit.logFailure(AuditSetupRateLimited, r, "global limit reached")
		writeRateLimited(w, retryAfter)
		return
	}
	if blocked, retryAfter := a.setupIPLimiter.check(clientIP); blocked {
		a.audit.logFailure(AuditSetupRateLimited, r, "per-ip limit reached",
			slog.String("client_ip", clientIP))
		writeRateLimited(w, retryAfter)
		return
	}

	req, ok := decodeJSON[SetupRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}
	if req.Passphrase == "" {
		writeError(w, http.StatusBadRequest, "passphrase is required")
		return
	}
	if len(req.Passphrase) < minPassphraseLength {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("passphrase must be at least %d characters", minPassphraseLength))
		return
	}

	configured, err := a.adminConfigured()
	if err != nil {
		a.writeInternalError(w, err)
		return
	}
	if configured {
		writeError(w, http.StatusConflict, "admin passphrase is already configured")
		return
	}

	countSetupRequest := func() {
		a.setupIPLimiter.record(clientIP)
		a.setupGlobalLimiter.record()
	}

	if subtle.ConstantTimeCompare([]byte(req.SetupToken), []byte(a.setupToken)) != 1 {
		countSetupRequest()
		a.audit.logFailure(AuditLoginFailure, r, "invalid setup token")
		writeError(w, http.StatusForbidden, "invalid setup token")
		return
	}

	// Count the request before the KDF runs.
	countSetupRequest()

	if err := a.saveAdminRecord(req.Passphrase); err != nil {
		a.writeInternalError(w, err)
		return
	}

	expiresAt := a.createSession(w, r)
	a.recordAudit(r, AuditAdminSetup, "admin", "", "", "")
	writeJSON(w, http.StatusCreated, SessionResponse{
		Authenticated: true,
		ExpiresAt:     expiresAt,
	})
}

// Login handles POST /auth/login: verify the passphrase and mint a session.
func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[LoginRequest](w, r, maxAuthBodySize)
	if !ok {
		return
	}
	if req.Passphrase == "" {
		writeError(w, http.StatusBadRequest, "passphrase is required")
		return
	}

	// Check rate limits before any expensive work: global burst, then per IP.
	clientIP := a.clientIP(r)
	if blocked, retryAfter := a.loginGlobalLimiter.check(); blocked {
		a.audit.logFailure(AuditLoginRateLimited, r, "global limit reached")
		writeRateLimited(w, retryAfter)
		return
	}
	if blocked, retryAfter := a.loginIPLimiter.check(clientIP); blocked {
		a.audit.logFailure(AuditLoginRateLimited, r, "per-ip limit reached",
			slog.String("client_ip", clientIP))
		writeRateLimited(w, retryAfter)
		return
	}

	countLoginFailure := func() {
		a.loginGlobalLimiter.record()
		a.loginIPLimiter.record(clientIP)
	}

	configured, err := a.adminConfigured()
	if err != nil {
		a.writeInternalError(w, err)
		return
	}
	if !configured {
		writeError(w, http.StatusConflict, "admin setup required")
		return
	}

	match, err := a.verifyAdminPassphrase(req.Passphrase)
	if err != nil {
		a.writeInternalError(w, err)
		return
	}
	if !match {
		countLoginFailure()
		a.recordAudit(r, AuditLoginFailure, "", "", "", "invalid passphrase")
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	// Login succeeded: clear rate-limit state.
	a.loginIPLimiter.reset(clientIP)

	expiresAt := a.createSession(w, r)
	a.recordAudit(r, AuditLoginSuccess, "admin", "", "", "")
	writeJSON(w, http.StatusOK, SessionResponse{
		Authenticated: true,
		ExpiresAt:     expiresAt,
	})
}

// Logout handles POST /auth/logout. It tolerates requests without a live
// session so a stale browser tab can always clear its cookies.
func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	var hadSession bool
	cookie, err := r.Cookie(sessionCookieName)
	if err == nil && cookie.Value != "" {
		_, hadSession = a.sessions.Get(cookie.Value)
		a.sessions.Delete(cookie.Value)
	}
	clearSessionCookie(w, r)
	dropCSRFCookie(w, r)
	if hadSession {
		a.recordAudit(r, AuditLogout, "admin", "", "", "")
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

// SessionInfo handles GET /auth/session.
func (a *API) SessionInfo(w http.ResponseWriter, r *http.Request) {
	session, ok := sessionFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	writeJSON(w, http.StatusOK, SessionResponse{
		Authenticated: true,
		ExpiresAt:     session.ExpiresAt,
	})
}

func (a *API) createSession(w http.ResponseWriter, r *http.Request) time.Time {
	token := uuid.New()
	now := time.Now()
	expiresAt := now.Add(a.sessionTTL)
	a.sessions.Put(token, AuthSession{
		CreatedAt:      now,
		ExpiresAt:      expiresAt,
		LastAccessedAt: now,
	})
	writeSessionCookie(w, r, token, expiresAt)
	issueCSRFCookie(w, r)
	return expiresAt
}
