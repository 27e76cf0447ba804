// Package registry holds the live-identity tables for both transports.
//
// The tables are the only in-memory state shared between sessions. A single
// mutex makes Register, Unregister and IsTaken appear atomic with respect to
// each other; critical sections are brief and never perform I/O. Delivery
// writes happen on snapshots taken outside the lock.
package registry

import (
	"strings"
	"sync"
)

// RegisterResult is the outcome of a registration attempt.
type RegisterResult int

const (
	Accepted RegisterResult = iota
	RejectedDuplicate
	RejectedEmpty
)

// Registry maps identities to live sessions, one table per transport.
// At most one live session per identity exists across both tables.
type Registry struct {
	mu     sync.Mutex
	framed map[string]Session
	push   map[string]Session
}

func New() *Registry {
	return &Registry{
		framed: make(map[string]Session),
		push:   make(map[string]Session),
	}
}

func (r *Registry) table(t Transport) map[string]Session {
	if t == TransportPush {
		return r.push
	}
	return r.framed
}

// Register claims identity for s. Empty or whitespace identities and
// identities already live on either transport are rejected.
func (r *Registry) Register(identity string, s Session) RegisterResult {
	if strings.TrimSpace(identity) == "" {
		return RejectedEmpty
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.framed[identity]; ok {
		return RejectedDuplicate
	}
	if _, ok := r.push[identity]; ok {
		return RejectedDuplicate
	}
	r.table(s.Transport())[identity] = s
	return Accepted
}

// Unregister removes identity only while s is still the registered session.
// This guards a late disconnect cleanup racing a re-registration under the
// same identity.
func (r *Registry) Unregister(identity string, s Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	tbl := r.table(s.Transport())
	if cur, ok := tbl[identity]; ok && cur == s {
		delete(tbl, identity)
		return true
	}
	return false
}

// IsTaken reports whether identity is live on either transport.
func (r *Registry) IsTaken(identity string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.framed[identity]; ok {
		return true
	}
	_, ok := r.push[identity]
	return ok
}

// Get returns the live session for identity, consulting both transports.
func (r *Registry) Get(identity string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.framed[identity]; ok {
		return s, true
	}
	s, ok := r.push[identity]
	return s, ok
}

// Snapshot returns every live session across both transports. The slice is
// safe to iterate without the lock.
func (r *Registry) Snapshot() []Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Session, 0, len(r.framed)+len(r.push))
	for _, s := range r.framed {
		out = append(out, s)
	}
	for _, s := range r.push {
		out = append(out, s)
	}
	return out
}

// FramedSnapshot returns the framed-transport sessions only. The zombie
// sweeper scans these; push liveness is driven by the transport's own close
// events.
func (r *Registry) FramedSnapshot() []Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Session, 0, len(r.framed))
	for _, s := range r.framed {
		out = append(out, s)
	}
	return out
}

// Count returns the number of live sessions across both transports.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.framed) + len(r.push)
}

// CloseAll terminates every live session. Used during shutdown; sessions
// remove themselves from the tables via their disconnect cleanup.
func (r *Registry) CloseAll() {
	for _, s := range r.Snapshot() {
		_ = s.Close()
	}
}
