package bridge

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// sessionStore is the mutex-guarded token map described in spec.md §4.8/§5:
// opaque UUID tokens with the TTL given to newSessionStore (10 minutes by
// default, via config.SessionTTL), pruned on every verification.
type sessionStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	tokens  map[string]time.Time
	poisoned bool
}

func newSessionStore(ttl time.Duration) *sessionStore {
	return &sessionStore{ttl: ttl, tokens: make(map[string]time.Time)}
}

// Issue mints a new session token and returns it with its expiry.
func (s *sessionStore) Issue() (token string, expiresAt time.Time) {
	s.mu.Lock()
	defer func() {
		if r := recover(); r != nil {
			s.poisoned = true
		}
		s.mu.Unlock()
	}()
	token = uuid.NewString()
	expiresAt = time.Now().Add(s.ttl)
	s.tokens[token] = expiresAt
	return token, expiresAt
}

// Verify prunes expired tokens and reports whether token is a live session.
// A poisoned lock degrades to a hard reject, per spec.md §5.
func (s *sessionStore) Verify(token string) bool {
	s.mu.Lock()
	defer func() {
		if r := recover(); r != nil {
			s.poisoned = true
		}
		s.mu.Unlock()
	}()
	if s.poisoned {
		return false
	}
	now := time.Now()
	for t, exp := range s.tokens {
		if now.After(exp) {
			delete(s.tokens, t)
		}
	}
	exp, ok := s.tokens[token]
	if !ok {
		return false
	}
	return now.Before(exp)
}
