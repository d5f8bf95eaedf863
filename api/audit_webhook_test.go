package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// webhookSink collects deliveries and answers each attempt with the next
// status in sequence, repeating the last one.
type webhookSink struct {
	srv      *httptest.Server
	attempts atomic.Int32

	mu     sync.Mutex
	bodies [][]byte
	header http.Header
}

func newWebhookSink(t *testing.T, statuses ...int) *webhookSink {
	t.Helper()
	s := &webhookSink{}
	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := int(s.attempts.Add(1))
		body, _ := io.ReadAll(r.Body)
		s.mu.Lock()
		s.bodies = append(s.bodies, body)
		s.header = r.Header.Clone()
		s.mu.Unlock()

		status := http.StatusOK
		if len(statuses) > 0 {
			i := min(n, len(statuses)) - 1
			status = statuses[i]
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *webhookSink) lastBody() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.bodies) == 0 {
		return nil
	}
	return s.bodies[len(s.bodies)-1]
}

func (s *webhookSink) lastHeader() http.Header {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.header
}

func TestAuditWebhook_DeliversPayload(t *testing.T) {
	sink := newWebhookSink(t)

	wh := newAuditWebhook(sink.srv.URL, "")
	wh.enqueue(auditWebhookEvent{
		ID:         "entry-42",
		Event:      "pkcs12_exported",
		Actor:      "admin",
		TargetType: "certificate",
		TargetID:   "cert-1",
		Detail:     "server.example.com",
		RemoteAddr: "10.0.0.1",
		CreatedAt:  "2025-06-15T12:00:00Z",
	})
	wh.close()

	body := sink.lastBody()
	require.NotEmpty(t, body)

	var got map[string]any
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, "entry-42", got["id"])
	assert.Equal(t, "pkcs12_exported", got["event"])
	assert.Equal(t, "admin", got["actor"])
	assert.Equal(t, "certificate", got["target_type"])
	assert.Equal(t, "cert-1", got["target_id"])
	assert.Equal(t, "server.example.com", got["detail"])
	assert.Equal(t, "10.0.0.1", got["remote_addr"])
	assert.Equal(t, "2025-06-15T12:00:00Z", got["created_at"])
}

func TestAuditWebhook_RequestHeaders(t *testing.T) {
	sink := newWebhookSink(t)

	wh := newAuditWebhook(sink.srv.URL, "Authorization: Bearer my-token-123")
	wh.enqueue(auditWebhookEvent{Event: "test_event", CreatedAt: "2025-01-01T00:00:00Z"})
	wh.close()

	h := sink.lastHeader()
	require.NotNil(t, h)
	assert.Equal(t, "Bearer my-token-123", h.Get("Authorization"))
	assert.Equal(t, "application/json", h.Get("Content-Type"))
	assert.Equal(t, webhookUserAgent, h.Get("User-Agent"))
}

func TestAuditWebhook_MalformedAuthHeaderIgnored(t *testing.T) {
	sink := newWebhookSink(t)

	// No colon, so there is no header name to set.
	wh := newAuditWebhook(sink.srv.URL, "just-a-token")
	wh.enqueue(auditWebhookEvent{Event: "test_event", CreatedAt: "2025-01-01T00:00:00Z"})
	wh.close()

	assert.Equal(t, int32(1), sink.attempts.Load())
	assert.Empty(t, sink.lastHeader().Get("just-a-token"))
}

func TestAuditWebhook_RetriesServerError(t *testing.T) {
	sink := newWebhookSink(t, http.StatusInternalServerError, http.StatusOK)

	wh := newAuditWebhook(sink.srv.URL, "")
	wh.enqueue(auditWebhookEvent{Event: "test_event", CreatedAt: "2025-01-01T00:00:00Z"})
	wh.close()

	assert.Equal(t, int32(2), sink.attempts.Load(), "5xx should be retried exactly once")
}

func TestAuditWebhook_NoRetryOnClientError(t *testing.T) {
	sink := newWebhookSink(t, http.StatusBadRequest)

	wh := newAuditWebhook(sink.srv.URL, "")
	wh.enqueue(auditWebhookEvent{Event: "test_event", CreatedAt: "2025-01-01T00:00:00Z"})
	wh.close()

	assert.Equal(t, int32(1), sink.attempts.Load(), "4xx means the payload is bad; retrying cannot help")
}

func TestAuditWebhook_EnqueueNeverBlocks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Hold every request until the client gives up, so the queue backs up.
		<-r.Context().Done()
	}))
	defer srv.Close()

	wh := &auditWebhook{
		url:    srv.URL,
		client: &http.Client{Timeout: 100 * time.Millisecond},
		events: make(chan auditWebhookEvent, 2),
	}
	wh.wg.Add(1)
	go wh.loop()

	// Overflow a tiny queue; every call must return immediately.
	for i := 0; i < 10; i++ {
		wh.enqueue(auditWebhookEvent{Event: "flood", CreatedAt: "2025-01-01T00:00:00Z"})
	}

	close(wh.events)
	// No wg.Wait: draining the backlog takes retry-delay seconds per event
	// and proves nothing beyond what the enqueue calls above already did.
}

func TestAuditWebhook_CloseDrainsQueue(t *testing.T) {
	sink := newWebhookSink(t)

	wh := newAuditWebhook(sink.srv.URL, "")
	for i := 0; i < 5; i++ {
		wh.enqueue(auditWebhookEvent{Event: "drain_test", CreatedAt: "2025-01-01T00:00:00Z"})
	}
	wh.close()

	assert.Equal(t, int32(5), sink.attempts.Load(), "close must deliver everything already queued")
}
