// Package platform hosts the platform runtime (C3) and platform manager
// (C4): one actor per connected (platform, account) pair, and the
// registry that starts, stops, and routes outbound sends to them.
package platform

import (
	"context"

	"github.com/maowbot/maowbot/internal/domain/event"
)

// OutboundMessage is a send request handed to a runtime's writer loop.
type OutboundMessage struct {
	Channel string
	Text    string
	// Result, if non-nil, receives the send error (nil on success) once
	// the connector's Send has returned, for callers that want to wait.
	Result chan<- error
}

// Connector is what a platform-specific package (twitchirc, discord,
// vrchat, obs, eventsub) implements to plug into the runtime actor.
// Connect and the reader loop are expected to return promptly when ctx
// is canceled; Runtime treats any other return as a connection failure
// to be retried with backoff.
type Connector interface {
	// Connect establishes the underlying transport connection. It does
	// not start reading; Run does.
	Connect(ctx context.Context) error

	// Run reads from the connection until it closes or ctx is canceled,
	// emitting normalized events onto out. Run owns the connection for
	// its duration; it returns when the connection drops.
	Run(ctx context.Context, out chan<- event.BotEvent) error

	// Send writes an outbound chat message.
	Send(ctx context.Context, channel, text string) error

	// Close releases the underlying connection. Safe to call multiple
	// times.
	Close() error
}

// ConnectorFactory builds a fresh Connector for one reconnect attempt.
// A new Connector is built on every reconnect rather than reusing one,
// mirroring how the teacher's per-session objects are always
// reconstructed rather than reset in place.
type ConnectorFactory func(ctx context.Context) (Connector, error)
