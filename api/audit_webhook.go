package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	// webhookQueueSize bounds the number of events waiting for delivery.
	webhookQueueSize = 1024

	webhookClientTimeout = 10 * time.Second
	webhookRetryDelay    = time.Second
	webhookUserAgent     = "RoarinCA-Audit-Webhook/1.0"
)

// auditWebhookEvent is the JSON document POSTed for each audit entry. It
// mirrors the persisted entry minus the chain fields, which only make sense
// inside the local trail.
type auditWebhookEvent struct {
	ID         string `json:"id"`
	Event      string `json:"event"`
	Actor      string `json:"actor,omitempty"`
	TargetType string `json:"target_type,omitempty"`
	TargetID   string `json:"target_id,omitempty"`
	Detail     string `json:"detail,omitempty"`
	RemoteAddr string `json:"remote_addr,omitempty"`
	CreatedAt  string `json:"created_at"`
}

// auditWebhook forwards audit entries to an external HTTP endpoint from a
// single background goroutine. Delivery is best effort: the queue is bounded
// and overflow is dropped, so a slow endpoint can never stall audit writes.
type auditWebhook struct {
	url    string
	hdrKey string
	hdrVal string
	client *http.Client
	events chan auditWebhookEvent
	wg     sync.WaitGroup
}

// newAuditWebhook starts a dispatcher for the given endpoint. authHeader is
// an optional extra request header in "Name: Value" form, typically
// "Authorization: Bearer <token>".
func newAuditWebhook(url, authHeader string) *auditWebhook {
	w := &auditWebhook{
		url:    url,
		client: &http.Client{Timeout: webhookClientTimeout},
		events: make(chan auditWebhookEvent, webhookQueueSize),
	}
	if name, value, ok := strings.Cut(authHeader, ":"); ok {
		w.hdrKey = strings.TrimSpace(name)
		w.hdrVal = strings.TrimSpace(value)
	}
	w.wg.Add(1)
	go w.loop()
	return w
}

// enqueue hands an event to the background sender without ever blocking.
func (w *auditWebhook) enqueue(evt auditWebhookEvent) {
	select {
	case w.events <- evt:
	default:
		slog.Warn("audit webhook: queue full, event dropped", "event", evt.Event)
	}
}

// close drains everything already queued, then stops the sender.
func (w *auditWebhook) close() {
	close(w.events)
	w.wg.Wait()
}

func (w *auditWebhook) loop() {
	defer w.wg.Done()
	for evt := range w.events {
		w.deliver(evt)
	}
}

// deliver sends one event, retrying once after a short pause if the first
// attempt failed in a way a retry could fix.
func (w *auditWebhook) deliver(evt auditWebhookEvent) {
	body, err := json.Marshal(evt)
	if err != nil {
		slog.Warn("audit webhook: marshal failed, event dropped", "error", err)
		return
	}
	if w.post(body) {
		time.Sleep(webhookRetryDelay)
		w.post(body)
	}
}

// post makes a single delivery attempt and reports whether it is worth
// retrying. Transport errors and 5xx responses are transient; anything in
// the 4xx range means the endpoint rejected the event and a second attempt
// would get the same answer.
func (w *auditWebhook) post(body []byte) (retry bool) {
	req, err := http.NewRequest(http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		slog.Warn("audit webhook: building request failed", "error", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", webhookUserAgent)
	if w.hdrKey != "" {
		req.Header.Set(w.hdrKey, w.hdrVal)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		slog.Warn("audit webhook: delivery failed", "error", err)
		return true
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode < 300:
		return false
	case resp.StatusCode >= 500:
		slog.Warn("audit webhook: endpoint returned server error", "status", resp.StatusCode)
		return true
	default:
		slog.Warn("audit webhook: endpoint rejected event", "status", resp.StatusCode)
		return false
	}
}
