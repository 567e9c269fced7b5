/*
Package plugin is the plugin manager (C7): it authenticates plugin
sessions over the pluginrpc bidi stream, tracks granted capabilities,
relays qualifying bus events outbound, and applies inbound plugin
requests (chat send, scene switch, status, shutdown).
*/
package plugin

import (
	"sync"
	"time"

	"github.com/maowbot/maowbot/internal/domain/model"
)

// sessionState is the per-session authentication state machine:
// New -> (Hello) -> {Authenticated | Rejected}.
type sessionState int

const (
	stateNew sessionState = iota
	stateAuthenticated
	stateRejected
)

// outboundQueueSize bounds each session's relay mailbox. Overflow forces
// a ForceDisconnect rather than blocking the relay loop, so one slow
// plugin can't stall delivery to every other session.
const outboundQueueSize = 256

// session is the in-memory PluginSession record (id, declared name,
// state, capabilities, enabled flag) plus its outbound mailbox; the
// mailbox and mutex are manager-internal plumbing.
type session struct {
	mu sync.RWMutex

	id           string
	declaredName string
	state        sessionState
	caps         model.CapabilitySet
	enabled      bool

	outbound chan any // *pluginrpc.ServerFrame, sent by the manager's relay loop
	disconnect chan any // 1-buffered side channel so a ForceDisconnect always gets through even when outbound is full
	closed   bool
}

func newSession(id string) *session {
	return &session{
		id:         id,
		state:      stateNew,
		caps:       model.NewCapabilitySet(),
		enabled:    true,
		outbound:   make(chan any, outboundQueueSize),
		disconnect: make(chan any, 1),
	}
}

func (s *session) isAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == stateAuthenticated
}

func (s *session) authenticate(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = stateAuthenticated
	s.declaredName = name
}

func (s *session) reject() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = stateRejected
}

func (s *session) grant(caps []model.Capability) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range caps {
		s.caps.Add(c)
	}
}

func (s *session) has(cap model.Capability) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.caps.Has(cap)
}

func (s *session) name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.declaredName
}

func (s *session) isEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.enabled && s.state == stateAuthenticated
}

// offer attempts a non-blocking send to the session's outbound mailbox.
// It reports false if the mailbox is full (the caller should then force
// a disconnect) or if the session's channel is already closed.
func (s *session) offer(frame any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.outbound <- frame:
		return true
	default:
		return false
	}
}

func (s *session) closeMailbox() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.outbound)
}

// forceDisconnect queues reason on the priority disconnect channel (which
// is never subject to the outbound mailbox's backpressure) and closes the
// mailbox so writeLoop exits once it's delivered.
func (s *session) forceDisconnect(frame any) {
	select {
	case s.disconnect <- frame:
	default:
	}
	s.closeMailbox()
}

// info is a point-in-time snapshot for ListSessions.
type info struct {
	ID      string
	Name    string
	Caps    []model.Capability
	Enabled bool
}

func (s *session) snapshot() info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return info{ID: s.id, Name: s.declaredName, Caps: s.caps.List(), Enabled: s.enabled}
}

// uptime is how long the manager has been running, for StatusResponse.
func uptime(start time.Time) float64 {
	return time.Since(start).Seconds()
}
