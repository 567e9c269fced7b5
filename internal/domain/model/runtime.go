package model

import (
	"context"
	"sync/atomic"
	"time"
)

// ConnectionState is the platform runtime's lifecycle state, per the core
// spec's state machine:
//
//	Disconnected -> Connecting -> {Connected | Reconnecting} -> Connected ... -> Stopping -> Disconnected
type ConnectionState int32

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
	Reconnecting
	Stopping
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Reconnecting:
		return "Reconnecting"
	case Stopping:
		return "Stopping"
	default:
		return "Unknown"
	}
}

// RuntimeStats are monotonically increasing counters for one runtime.
type RuntimeStats struct {
	Sent     uint64
	Received uint64
	Errors   uint64
}

// RuntimeKey uniquely identifies one platform runtime.
type RuntimeKey struct {
	Platform string
	Account  string
}

// RuntimeOptions are the per-runtime knobs the core spec's connect
// operation accepts, persisted alongside each autostart entry.
type RuntimeOptions struct {
	// AutoReconnect, when false, stops the runtime instead of retrying
	// with backoff after a connect failure or dropped connection.
	AutoReconnect bool
	// EnableIncoming, when false, keeps the reader running but discards
	// chat events before they reach the bus, for bot-only accounts on a
	// platform that also has a broadcaster account connected.
	EnableIncoming bool
}

// DefaultRuntimeOptions is what every runtime gets unless an autostart
// entry (or an explicit Start caller) overrides it.
func DefaultRuntimeOptions() RuntimeOptions {
	return RuntimeOptions{AutoReconnect: true, EnableIncoming: true}
}

// RuntimeHandle is the in-memory record the platform manager (C4) keeps
// for one live (platform, account) connection. Fields touched from
// multiple goroutines are atomics; the struct itself is otherwise
// immutable after construction other than via those atomics.
type RuntimeHandle struct {
	Key         RuntimeKey
	StartedAt   time.Time
	state       atomic.Int32
	sent        atomic.Uint64
	received    atomic.Uint64
	errs        atomic.Uint64
	Cancel      context.CancelFunc
	cancelCause context.CancelCauseFunc
}

// NewRuntimeHandle creates a handle in the Disconnected state.
func NewRuntimeHandle(key RuntimeKey, cancel context.CancelFunc) *RuntimeHandle {
	h := &RuntimeHandle{Key: key, StartedAt: time.Now(), Cancel: cancel}
	h.state.Store(int32(Disconnected))
	return h
}

func (h *RuntimeHandle) State() ConnectionState { return ConnectionState(h.state.Load()) }
func (h *RuntimeHandle) SetState(s ConnectionState) { h.state.Store(int32(s)) }

func (h *RuntimeHandle) IncSent()     { h.sent.Add(1) }
func (h *RuntimeHandle) IncReceived() { h.received.Add(1) }
func (h *RuntimeHandle) IncErrors()   { h.errs.Add(1) }

func (h *RuntimeHandle) Stats() RuntimeStats {
	return RuntimeStats{
		Sent:     h.sent.Load(),
		Received: h.received.Load(),
		Errors:   h.errs.Load(),
	}
}

// UptimeSeconds returns seconds since the handle was created.
func (h *RuntimeHandle) UptimeSeconds() int64 {
	return int64(time.Since(h.StartedAt).Seconds())
}

// RuntimeSummary is the read-only snapshot returned by list_active.
type RuntimeSummary struct {
	Platform      string
	Account       string
	UptimeSeconds int64
	State         ConnectionState
	Stats         RuntimeStats
}
