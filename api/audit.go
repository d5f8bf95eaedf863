package api

import (
	"log/slog"
	"net/http"
	"time"
)

// AuditEvent names a security-relevant action. The same value appears in
// the structured log line, the persistent trail, and webhook payloads.
type AuditEvent string

const (
	AuditAdminSetup          AuditEvent = "admin_setup"
	AuditLoginSuccess        AuditEvent = "login_success"
	AuditLoginFailure        AuditEvent = "login_failure"
	AuditLoginRateLimited    AuditEvent = "login_rate_limited"
	AuditSetupRateLimited    AuditEvent = "setup_rate_limited"
	AuditLogout              AuditEvent = "logout"
	AuditCASettingsSaved     AuditEvent = "ca_settings_saved"
	AuditCAInitialized       AuditEvent = "ca_initialized"
	AuditRequestCreated      AuditEvent = "request_created"
	AuditRequestDeleted      AuditEvent = "request_deleted"
	AuditCSRSigned           AuditEvent = "csr_signed"
	AuditCertImported        AuditEvent = "cert_imported"
	AuditCertDeleted         AuditEvent = "cert_deleted"
	AuditPrivateKeyAccessed  AuditEvent = "private_key_accessed"
	AuditPKCS12Exported      AuditEvent = "pkcs12_exported"
	AuditTrailExported       AuditEvent = "audit_trail_exported"
)

// auditLogger emits one structured line per security event and counts the
// event toward the in-process anomaly detector.
type auditLogger struct {
	logger  *slog.Logger
	metrics *metricsCollector
}

func newAuditLogger(logger *slog.Logger) *auditLogger {
	return &auditLogger{logger: logger.With("component", "audit")}
}

func (al *auditLogger) log(event AuditEvent, r *http.Request, attrs ...slog.Attr) {
	all := make([]slog.Attr, 0, len(attrs)+3)
	all = append(all,
		slog.String("event", string(event)),
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("timestamp", time.Now().UTC().Format(time.RFC3339)))
	all = append(all, attrs...)

	al.logger.LogAttrs(r.Context(), slog.LevelInfo, "audit", all...)
	if al.metrics != nil {
		al.metrics.recordEvent(event)
	}
}

// logFailure tags an event with why it was rejected.
func (al *auditLogger) logFailure(event AuditEvent, r *http.Request, reason string, extra ...slog.Attr) {
	al.log(event, r, append([]slog.Attr{slog.String("reason", reason)}, extra...)...)
}

// recordAudit is the single entry point handlers use: it emits the
// structured log line, appends to the persistent hash chain, and mirrors
// the event to the configured webhook. Chain persistence failures are
// logged, not surfaced, so a full audit store never blocks CA operations.
func (a *API) recordAudit(r *http.Request, event AuditEvent, actor, targetType, targetID, detail string) {
	attrs := []slog.Attr{
		slog.String("actor", actor),
	}
	if targetID != "" {
		attrs = append(attrs, slog.String(targetType, targetID))
	}
	if detail != "" {
		attrs = append(attrs, slog.String("detail", detail))
	}
	a.audit.log(event, r, attrs...)

	remoteAddr := a.clientIP(r)
	entry, err := a.appendAuditEntry(event, actor, targetType, targetID, detail, remoteAddr)
	if err != nil {
		a.logger.Error("audit append failed",
			slog.String("event", string(event)),
			slog.Any("error", err))
		return
	}

	if a.webhook != nil {
		a.webhook.enqueue(auditWebhookEvent{
			ID:         entry.ID,
			Event:      string(event),
			Actor:      actor,
			TargetType: targetType,
			TargetID:   targetID,
			Detail:     detail,
			RemoteAddr: remoteAddr,
			CreatedAt:  entry.CreatedAt,
		})
	}
}
