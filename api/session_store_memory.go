package api

import (
	"sync"
	"time"
)

// sweepInterval is how often the in-memory store drops expired sessions
// that were never touched again after expiry.
const sweepInterval = 10 * time.Minute

// MemorySessionStore keeps sessions in a map guarded by an RWMutex. A
// restart logs everyone out, which is acceptable for a single-admin CA.
type MemorySessionStore struct {
	mu          sync.RWMutex
	data        map[string]AuthSession
	idleTimeout time.Duration
	stop        chan struct{}
	stopOnce    sync.Once
}

var _ SessionStore = (*MemorySessionStore)(nil)

// NewMemorySessionStore starts the store and its background sweeper. An
// idleTimeout of 0 turns idle expiry off; absolute expiry always applies.
func NewMemorySessionStore(idleTimeout time.Duration) *MemorySessionStore {
	s := &MemorySessionStore{
		data:        make(map[string]AuthSession),
		idleTimeout: idleTimeout,
		stop:        make(chan struct{}),
	}
	go s.sweep()
	return s
}

func (s *MemorySessionStore) Get(token string) (AuthSession, bool) {
	s.mu.RLock()
	session, ok := s.data[token]
	s.mu.RUnlock()
	if !ok {
		return AuthSession{}, false
	}
	if s.stale(session, time.Now()) {
		s.Delete(token)
		return AuthSession{}, false
	}
	return session, true
}

func (s *MemorySessionStore) Put(token string, session AuthSession) {
	s.mu.Lock()
	s.data[token] = session
	s.mu.Unlock()
}

func (s *MemorySessionStore) Delete(token string) {
	s.mu.Lock()
	delete(s.data, token)
	s.mu.Unlock()
}

// Close stops the background sweeper.
func (s *MemorySessionStore) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *MemorySessionStore) stale(session AuthSession, now time.Time) bool {
	if now.After(session.ExpiresAt) {
		return true
	}
	return s.idleTimeout > 0 && now.Sub(session.LastAccessedAt) > s.idleTimeout
}

// sweep periodically removes sessions that expired but were never read
// again, so abandoned logins do not accumulate.
func (s *MemorySessionStore) sweep() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.mu.Lock()
			for token, session := range s.data {
				if s.stale(session, now) {
					delete(s.data, token)
				}
			}
			s.mu.Unlock()
		}
	}
}
