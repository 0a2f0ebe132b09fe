package core

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// SessionState tracks the lifecycle of one connection.
type SessionState int32

const (
	// StateConnecting is the initial state before authentication.
	StateConnecting SessionState = iota
	// StateAuthenticated means a credential resolved to a known identity.
	StateAuthenticated
	// StateActive means the session is registered and accepting events.
	StateActive
	// StateClosed is terminal.
	StateClosed
)

const sessionEventBuffer = 32

// Session is the per-connection handle the core routes events to.
// It owns exactly one user identity binding for its lifetime and is
// destroyed on disconnect.
type Session struct {
	// ID identifies this physical connection; the presence registry uses
	// it to tell a stale disconnect from a fresh reconnect.
	ID string

	userID atomic.Int64
	name   atomic.Value // string

	state  atomic.Int32
	events chan *Event

	closeOnce sync.Once
	done      chan struct{}
}

// NewSession constructs a session in the connecting state.
func NewSession() *Session {
	s := &Session{
		ID:     uuid.NewString(),
		events: make(chan *Event, sessionEventBuffer),
		done:   make(chan struct{}),
	}
	s.state.Store(int32(StateConnecting))
	return s
}

// Bind attaches the authenticated identity. Only valid while connecting.
func (s *Session) Bind(userID int64, name string) bool {
	if !s.state.CompareAndSwap(int32(StateConnecting), int32(StateAuthenticated)) {
		return false
	}
	s.userID.Store(userID)
	s.name.Store(name)
	return true
}

// Activate moves an authenticated session into the active state.
func (s *Session) Activate() bool {
	return s.state.CompareAndSwap(int32(StateAuthenticated), int32(StateActive))
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	return SessionState(s.state.Load())
}

// UserID returns the bound identity, or zero before authentication.
func (s *Session) UserID() int64 {
	return s.userID.Load()
}

// Name returns the bound display name, or empty before authentication.
func (s *Session) Name() string {
	if v := s.name.Load(); v != nil {
		return v.(string)
	}
	return ""
}

// Events exposes the outbound event stream for the connection writer.
func (s *Session) Events() <-chan *Event {
	return s.events
}

// Done is closed when the session transitions to closed.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Send queues an event for the connection writer without blocking the
// caller. A slow consumer drops events rather than stalling the router;
// returns false when dropped or when the session is closed.
func (s *Session) Send(ev *Event) bool {
	if s.State() == StateClosed {
		return false
	}
	select {
	case s.events <- ev:
		return true
	default:
		return false
	}
}

// Close transitions to closed exactly once. Safe to call from any
// goroutine and idempotent; the registry unregister that must follow is
// the caller's responsibility (see Registry.Unregister).
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosed))
		close(s.done)
	})
}
