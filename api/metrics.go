package api

import (
	"sync"
	"time"
)

// AlertType distinguishes which detector fired.
type AlertType string

const (
	AlertLoginFailureSpike AlertType = "login_failure_spike"
	AlertBulkKeyAccess     AlertType = "bulk_key_access"
)

// AlertEvent describes an anomaly that tripped a threshold.
type AlertEvent struct {
	Type      AlertType `json:"type"`
	Message   string    `json:"message"`
	Count     int       `json:"count"`
	Threshold int       `json:"threshold"`
	Timestamp time.Time `json:"timestamp"`
}

// AlertFunc receives every alert. The default sink logs at Warn level;
// deployments that want paging wire their own through WithAlertFunc.
type AlertFunc func(AlertEvent)

const (
	loginSpikeSpan      = 1 * time.Minute
	loginSpikeThreshold = 50
	keyAccessSpan       = 5 * time.Minute
	keyAccessThreshold  = 10
)

// window counts events over a sliding span and reports threshold hits.
type window struct {
	mu        sync.Mutex
	events    []time.Time
	span      time.Duration
	threshold int
}

// observe records one event at now, drops entries that slid out of the
// span, and reports whether the threshold was reached. On a hit the
// window resets so a sustained spike raises one alert, not one per event.
func (w *window) observe(now time.Time) (int, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := now.Add(-w.span)
	kept := w.events[:0]
	for _, ts := range w.events {
		if !ts.Before(cutoff) {
			kept = append(kept, ts)
		}
	}
	w.events = append(kept, now)

	if len(w.events) >= w.threshold {
		count := len(w.events)
		w.events = w.events[:0]
		return count, true
	}
	return len(w.events), false
}

// metricsCollector watches the audit event stream for anomalies. Login
// failures feed one window; private key downloads and PKCS#12 exports
// share another, since both put key material in someone's hands.
type metricsCollector struct {
	logins  window
	keyUse  window
	alertFn AlertFunc
}

func newMetricsCollector(alertFn AlertFunc) *metricsCollector {
	return &metricsCollector{
		logins:  window{span: loginSpikeSpan, threshold: loginSpikeThreshold},
		keyUse:  window{span: keyAccessSpan, threshold: keyAccessThreshold},
		alertFn: alertFn,
	}
}

// recordEvent feeds one audit event into the relevant window, if any.
func (m *metricsCollector) recordEvent(event AuditEvent) {
	if m == nil || m.alertFn == nil {
		return
	}
	now := time.Now()

	switch event {
	case AuditLoginFailure:
		if count, hit := m.logins.observe(now); hit {
			m.alert(AlertLoginFailureSpike, "login failure rate exceeds threshold",
				count, m.logins.threshold, now)
		}
	case AuditPrivateKeyAccessed, AuditPKCS12Exported:
		if count, hit := m.keyUse.observe(now); hit {
			m.alert(AlertBulkKeyAccess, "private key access rate exceeds threshold",
				count, m.keyUse.threshold, now)
		}
	}
}

func (m *metricsCollector) alert(kind AlertType, msg string, count, threshold int, now time.Time) {
	m.alertFn(AlertEvent{
		Type:      kind,
		Message:   msg,
		Count:     count,
		Threshold: threshold,
		Timestamp: now,
	})
}
