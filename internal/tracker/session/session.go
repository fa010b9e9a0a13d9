package session

import (
	"sync"
	"time"

	"bus-tracker/internal/tracker/domain"
)

// Conn is the minimal transport surface a session needs. The production
// implementation wraps a gorilla websocket connection; tests use fakes.
type Conn interface {
	WriteJSON(v any) error
	Close() error
}

// Session owns one transport connection for its lifetime. All outbound
// traffic goes through a buffered queue drained by a single writer goroutine,
// so a slow or broken consumer never blocks the code that enqueues.
type Session struct {
	id   uint64
	conn Conn

	mu       sync.RWMutex
	role     domain.Role
	identity string
	seq      uint64
	lastSeen time.Time

	out       chan any
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a session around conn with the given outbound queue size.
func New(id uint64, conn Conn, buffer int) *Session {
	if buffer <= 0 {
		buffer = 32
	}
	return &Session{
		id:       id,
		conn:     conn,
		lastSeen: time.Now(),
		out:      make(chan any, buffer),
		done:     make(chan struct{}),
	}
}

// ID is the opaque connection handle the registry keys on.
func (s *Session) ID() uint64 { return s.id }

// Start launches the writer goroutine. onDead is invoked exactly once when a
// write fails; it must be safe to call from the writer goroutine.
func (s *Session) Start(onDead func(*Session)) {
	go func() {
		for {
			select {
			case <-s.done:
				return
			case msg := <-s.out:
				if err := s.conn.WriteJSON(msg); err != nil {
					s.Close()
					if onDead != nil {
						onDead(s)
					}
					return
				}
			}
		}
	}()
}

// Enqueue places msg on the outbound queue without blocking. A full queue
// means the consumer is too slow to keep up and returns ErrSlowConsumer; the
// caller treats that as a disconnect.
func (s *Session) Enqueue(msg any) error {
	select {
	case <-s.done:
		return domain.ErrTransportFailure
	default:
	}
	select {
	case s.out <- msg:
		return nil
	default:
		return domain.ErrSlowConsumer
	}
}

// Close stops the writer and closes the transport. Idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		_ = s.conn.Close()
	})
}

// Done is closed when the session is shut down.
func (s *Session) Done() <-chan struct{} { return s.done }

// SetRegistration records the first (or idempotent repeat) registration.
// seq is assigned by the registry and fixes snapshot ordering.
func (s *Session) SetRegistration(role domain.Role, identity string, seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.role = role
	s.identity = identity
	if s.seq == 0 {
		s.seq = seq
	}
}

// Role returns the declared role, RoleUnregistered before registration.
func (s *Session) Role() domain.Role {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.role
}

// Identity returns the registered identity (vehicle or rider id).
func (s *Session) Identity() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity
}

// Seq is the registration sequence number, 0 before registration.
func (s *Session) Seq() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.seq
}

// Touch updates the liveness timestamp.
func (s *Session) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = time.Now()
}

// LastSeen returns the last liveness timestamp.
func (s *Session) LastSeen() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastSeen
}
