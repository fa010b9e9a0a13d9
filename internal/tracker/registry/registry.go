package registry

import (
	"sort"
	"sync"
	"time"

	"bus-tracker/internal/tracker/domain"
	"bus-tracker/internal/tracker/session"
)

// Registry tracks every live transport session, its declared role and
// identity, keyed by the session's connection handle. It replaces the
// process-wide connection tables of the legacy servers with an explicit
// lifecycle owned by the transport-accepting code.
type Registry struct {
	mu       sync.RWMutex
	sessions map[uint64]*session.Session
	seq      uint64
}

func New() *Registry {
	return &Registry{sessions: make(map[uint64]*session.Session)}
}

// Register binds a role and identity to the session. Re-registration with the
// same role is idempotent (the normal "ensure registered" path after a
// reconnect); a role change is rejected with ErrRoleConflict.
func (r *Registry) Register(s *session.Session, role domain.Role, identity string) error {
	if !role.Valid() {
		return domain.ErrInvalidRole
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev := s.Role(); prev != domain.RoleUnregistered && prev != role {
		return domain.ErrRoleConflict
	}

	if _, known := r.sessions[s.ID()]; !known {
		r.seq++
	}
	s.SetRegistration(role, identity, r.seq)
	s.Touch()
	r.sessions[s.ID()] = s

	return nil
}

// Unregister removes the session and closes it. Idempotent. It reports the
// role and identity the session held so the caller can clean up driver state.
func (r *Registry) Unregister(s *session.Session) (domain.Role, string, bool) {
	r.mu.Lock()
	_, existed := r.sessions[s.ID()]
	delete(r.sessions, s.ID())
	r.mu.Unlock()

	role, identity := s.Role(), s.Identity()
	s.Close()

	return role, identity, existed
}

// Touch refreshes the session's liveness timestamp.
func (r *Registry) Touch(s *session.Session) {
	s.Touch()
}

// SessionsByRole returns a point-in-time snapshot of all sessions holding the
// role, ordered by registration time.
func (r *Registry) SessionsByRole(role domain.Role) []*session.Session {
	r.mu.RLock()
	out := make([]*session.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		if s.Role() == role {
			out = append(out, s)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Seq() < out[j].Seq() })
	return out
}

// Stale returns sessions whose last liveness update is older than cutoff.
// The caller unregisters them; the registry itself never removes sessions on
// its own.
func (r *Registry) Stale(cutoff time.Time) []*session.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*session.Session
	for _, s := range r.sessions {
		if s.LastSeen().Before(cutoff) {
			out = append(out, s)
		}
	}
	return out
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
