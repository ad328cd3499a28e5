package core

import (
	"sync"
	"sync/atomic"
)

// Phase is the flight phase the executor is in, published for the monitor.
type Phase int32

const (
	PhaseGround Phase = iota
	PhaseAirborne
	PhaseLanding
)

func (p Phase) String() string {
	switch p {
	case PhaseAirborne:
		return "airborne"
	case PhaseLanding:
		return "landing"
	default:
		return "ground"
	}
}

// Reason explains why a mission ended.
type Reason struct {
	// Kind is one of the sentinel errors, nil when the mission completed.
	Kind    error
	Message string
}

// Completed is the reason recorded when every action ran.
var Completed = Reason{Message: "mission completed"}

func (r Reason) Error() string {
	if r.Kind == nil {
		return r.Message
	}
	return r.Kind.Error() + ": " + r.Message
}

// Session carries the mission-active flag shared by the executor and the
// monitor. The flag goes from active to inactive exactly once.
type Session struct {
	active atomic.Bool
	phase  atomic.Int32
	done   chan struct{}

	mu     sync.Mutex
	reason Reason
}

// NewSession returns an active session.
func NewSession() *Session {
	s := &Session{done: make(chan struct{})}
	s.active.Store(true)
	return s
}

// Active reports whether the mission is still running.
func (s *Session) Active() bool {
	return s.active.Load()
}

// End deactivates the session. Only the first call has an effect; it
// returns true for that call.
func (s *Session) End(r Reason) bool {
	if !s.active.CompareAndSwap(true, false) {
		return false
	}
	s.mu.Lock()
	s.reason = r
	s.mu.Unlock()
	close(s.done)
	return true
}

// Done is closed when the session ends.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Reason returns why the session ended. It is the zero value while active.
func (s *Session) Reason() Reason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// SetPhase publishes the flight phase.
func (s *Session) SetPhase(p Phase) {
	s.phase.Store(int32(p))
}

// Phase returns the last published flight phase.
func (s *Session) Phase() Phase {
	return Phase(s.phase.Load())
}
