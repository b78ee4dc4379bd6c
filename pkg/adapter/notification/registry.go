package notification

import (
	"sync"
	"sync/atomic"

	"github.com/retroproto/msnpd/internal/logger"
	"github.com/retroproto/msnpd/internal/protocol/msnp"
)

// Registry is the process-wide map of authenticated sessions keyed by
// normalized identity.
//
// Admits and removes are serialized under a single mutex; lookups and
// snapshots are lock-free reads of an immutable map pointer swapped under
// the mutex. At most one session per identity is registered at any instant:
// a second successful authentication displaces the first.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session

	snapshot atomic.Pointer[map[string]*Session]

	epoch atomic.Uint64
}

// PresenceEntry is one row of a point-in-time presence snapshot.
type PresenceEntry struct {
	Identity    string
	Status      msnp.Status
	DisplayName string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	r := &Registry{sessions: make(map[string]*Session)}
	empty := map[string]*Session{}
	r.snapshot.Store(&empty)
	return r
}

// NextEpoch returns a fresh connection epoch. Epochs increment on every
// accept and let fan-out detect stale writers.
func (r *Registry) NextEpoch() uint64 {
	return r.epoch.Add(1)
}

// Admit installs s as the session for identity. If another session is
// already registered for the identity it is displaced: it receives
// "OUT OTH", its writer drains and closes, and it is returned so the caller
// can record the event. Displacement is atomic with respect to concurrent
// admits.
func (r *Registry) Admit(identity string, s *Session) (displaced *Session) {
	r.mu.Lock()
	if existing, ok := r.sessions[identity]; ok && existing != s {
		displaced = existing
	}
	r.sessions[identity] = s
	r.publishLocked()
	r.mu.Unlock()

	if displaced != nil {
		logger.Info("session displaced by newer login",
			"identity", identity, "old_address", displaced.RemoteAddr())
		displaced.CloseWith("OUT OTH\r\n")
	}
	return displaced
}

// Remove drops s from the registry if it is still the registered session
// for its identity. Idempotent; returns true when s was the current
// registration (the caller then owes peers an offline notification).
func (r *Registry) Remove(s *Session) bool {
	identity := s.Identity()
	if identity == "" {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.sessions[identity]
	if !ok || current != s {
		return false
	}
	delete(r.sessions, identity)
	r.publishLocked()
	return true
}

// Lookup returns the active session for identity, if any. Lock-free.
func (r *Registry) Lookup(identity string) (*Session, bool) {
	snap := *r.snapshot.Load()
	s, ok := snap[identity]
	return s, ok
}

// Snapshot returns the current identity → session map. The map is immutable;
// callers must not modify it.
func (r *Registry) Snapshot() map[string]*Session {
	return *r.snapshot.Load()
}

// Presences returns a stable point-in-time copy of (identity, status,
// display name) for every registered session, for bulk fan-out.
func (r *Registry) Presences() []PresenceEntry {
	snap := *r.snapshot.Load()
	entries := make([]PresenceEntry, 0, len(snap))
	for identity, s := range snap {
		entries = append(entries, PresenceEntry{
			Identity:    identity,
			Status:      s.Status(),
			DisplayName: s.DisplayName(),
		})
	}
	return entries
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	return len(*r.snapshot.Load())
}

// publishLocked swaps in a fresh immutable snapshot. Caller holds r.mu.
func (r *Registry) publishLocked() {
	snap := make(map[string]*Session, len(r.sessions))
	for k, v := range r.sessions {
		snap[k] = v
	}
	r.snapshot.Store(&snap)
}
