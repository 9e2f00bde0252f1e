package vault

import (
	"sync"
	"time"
)

// SessionRegistry scopes vaults to conversation sessions so that
// multi-turn conversations keep referring to the same tokenized
// account. Sessions idle past the TTL are evicted by Sweep; explicit
// invalidation covers session end and underlying data changes.
type SessionRegistry struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[string]*sessionEntry
}

type sessionEntry struct {
	vault    *Vault
	lastUsed time.Time
}

func NewSessionRegistry(ttl time.Duration) *SessionRegistry {
	return &SessionRegistry{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]*sessionEntry),
	}
}

// Get returns the vault for a session, creating one if needed, and
// refreshes its idle timer.
func (r *SessionRegistry) Get(sessionKey string) *Vault {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if e, ok := r.sessions[sessionKey]; ok && now.Sub(e.lastUsed) < r.ttl {
		e.lastUsed = now
		return e.vault
	}
	e := &sessionEntry{vault: New(), lastUsed: now}
	r.sessions[sessionKey] = e
	return e.vault
}

// Invalidate drops a session's vault immediately.
func (r *SessionRegistry) Invalidate(sessionKey string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionKey)
}

// Sweep evicts sessions idle past the TTL and returns how many were
// removed.
func (r *SessionRegistry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	removed := 0
	for key, e := range r.sessions {
		if now.Sub(e.lastUsed) >= r.ttl {
			delete(r.sessions, key)
			removed++
		}
	}
	return removed
}

func (r *SessionRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
