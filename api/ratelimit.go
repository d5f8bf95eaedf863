package api

import (
	"math"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Login and setup both run the Argon2id KDF, which makes them the most
// expensive handlers in the API and the natural target for guessing scripts.
// Two mechanisms throttle them: a per-client backoff limiter keyed on IP,
// and an unkeyed sliding-window limiter that catches distributed bursts no
// single client would trip.

// backoffPolicy describes when a keyed limiter starts blocking and how the
// lockout grows. After threshold attempts the lockout starts at base and
// doubles per additional attempt up to max. Entries idle for longer than
// expiry are forgotten.
type backoffPolicy struct {
	threshold int
	base      time.Duration
	max       time.Duration
	expiry    time.Duration
}

// delayFor returns the lockout duration after the given attempt count.
func (p backoffPolicy) delayFor(count int) time.Duration {
	d := p.base
	for i := p.threshold; i < count; i++ {
		d *= 2
		if d >= p.max {
			return p.max
		}
	}
	return d
}

var (
	// Failed logins per source IP. Successful login resets the key.
	loginIPPolicy = backoffPolicy{
		threshold: 20,
		base:      time.Minute,
		max:       30 * time.Minute,
		expiry:    time.Hour,
	}

	// Setup requests per source IP. Every request counts regardless of
	// outcome because each one costs a KDF run.
	setupIPPolicy = backoffPolicy{
		threshold: 5,
		base:      5 * time.Minute,
		max:       time.Hour,
		expiry:    time.Hour,
	}
)

type backoffEntry struct {
	count       int
	lastSeen    time.Time
	lockedUntil time.Time
}

// backoffLimiter tracks attempts per key and enforces the policy's
// exponential lockout.
type backoffLimiter struct {
	mu      sync.Mutex
	policy  backoffPolicy
	entries map[string]*backoffEntry
}

func newBackoffLimiter(p backoffPolicy) *backoffLimiter {
	return &backoffLimiter{
		policy:  p,
		entries: make(map[string]*backoffEntry),
	}
}

// check reports whether the key is currently locked out and for how much
// longer. Idle entries past the policy expiry are dropped on the way.
func (l *backoffLimiter) check(key string) (blocked bool, retryAfter time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		return false, 0
	}
	if time.Since(e.lastSeen) > l.policy.expiry {
		delete(l.entries, key)
		return false, 0
	}
	if until := time.Until(e.lockedUntil); until > 0 {
		return true, until
	}
	return false, 0
}

// record counts one attempt against the key and extends the lockout once
// the threshold is reached.
func (l *backoffLimiter) record(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		e = &backoffEntry{}
		l.entries[key] = e
	}
	e.count++
	e.lastSeen = time.Now()
	if e.count >= l.policy.threshold {
		e.lockedUntil = e.lastSeen.Add(l.policy.delayFor(e.count))
	}
}

// reset forgets the key, clearing any lockout.
func (l *backoffLimiter) reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
}

// windowPolicy locks an endpoint for lockout once threshold events land
// inside a sliding span.
type windowPolicy struct {
	span      time.Duration
	threshold int
	lockout   time.Duration
}

var (
	loginGlobalPolicy = windowPolicy{span: time.Minute, threshold: 100, lockout: 5 * time.Minute}
	setupGlobalPolicy = windowPolicy{span: time.Minute, threshold: 50, lockout: 5 * time.Minute}
)

// windowLimiter counts events across all clients. It is the backstop for
// guessing spread over many source addresses.
type windowLimiter struct {
	mu          sync.Mutex
	policy      windowPolicy
	stamps      []time.Time
	lockedUntil time.Time
}

func newWindowLimiter(p windowPolicy) *windowLimiter {
	return &windowLimiter{policy: p}
}

func (l *windowLimiter) check() (blocked bool, retryAfter time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if until := time.Until(l.lockedUntil); until > 0 {
		return true, until
	}
	return false, 0
}

func (l *windowLimiter) record() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-l.policy.span)
	kept := l.stamps[:0]
	for _, ts := range l.stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	l.stamps = append(kept, now)

	if len(l.stamps) >= l.policy.threshold {
		l.lockedUntil = now.Add(l.policy.lockout)
	}
}

// writeRateLimited sends a 429 with a Retry-After hint rounded up to whole
// seconds, never less than one.
func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	secs := int(math.Ceil(retryAfter.Seconds()))
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	writeError(w, http.StatusTooManyRequests, "too many requests; try again later")
}

// clientIP decides which address to attribute the request to for rate
// limiting and the audit trail. Forwarding headers are believed only when
// the direct peer is inside the configured trusted-proxy set; with no set
// configured the socket address always wins, so an untrusted client cannot
// pick its own identity by sending X-Forwarded-For.
func (a *API) clientIP(r *http.Request) string {
	peer, ok := normalizeIP(r.RemoteAddr)
	if !ok {
		return ""
	}
	if !a.trustedPeer(peer) {
		return peer
	}
	if ip := forwardedClientIP(r); ip != "" {
		return ip
	}
	return peer
}

func (a *API) trustedPeer(peer string) bool {
	if len(a.trustedProxies) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(peer)
	if err != nil {
		return false
	}
	for _, pfx := range a.trustedProxies {
		if pfx.Contains(addr) {
			return true
		}
	}
	return false
}

// forwardedClientIP reads proxy-supplied headers in precedence order:
// X-Forwarded-For first (leftmost valid entry is the original client),
// then RFC 7239 Forwarded, then X-Real-IP.
func forwardedClientIP(r *http.Request) string {
	for _, part := range strings.Split(r.Header.Get("X-Forwarded-For"), ",") {
		if ip, ok := normalizeIP(part); ok {
			return ip
		}
	}
	for _, elem := range strings.Split(r.Header.Get("Forwarded"), ",") {
		for _, param := range strings.Split(elem, ";") {
			name, value, ok := strings.Cut(strings.TrimSpace(param), "=")
			if !ok || !strings.EqualFold(name, "for") {
				continue
			}
			if ip, ok := normalizeIP(value); ok {
				return ip
			}
		}
	}
	if ip, ok := normalizeIP(r.Header.Get("X-Real-IP")); ok {
		return ip
	}
	return ""
}

// normalizeIP extracts a canonical bare address from the forms addresses
// arrive in: host:port, bracketed IPv6, RFC 7239 quoted values, and
// zone-qualified link-local addresses. IPv4-mapped IPv6 is unmapped so the
// same client hashes to one limiter key regardless of socket family.
func normalizeIP(raw string) (string, bool) {
	s := strings.Trim(strings.TrimSpace(raw), `"`)
	if s == "" {
		return "", false
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	if i := strings.IndexByte(s, '%'); i >= 0 {
		s = s[:i]
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return "", false
	}
	return addr.Unmap().String(), true
}
