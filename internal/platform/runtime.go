package platform

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/maowbot/maowbot/internal/domain/event"
	"github.com/maowbot/maowbot/internal/domain/model"
)

const (
	backoffInitial = time.Second
	backoffFactor  = 2
	backoffCap     = 60 * time.Second
	backoffJitter  = 0.25
)

// runtime drives one (platform,account) connector through
// connect -> run -> (drop -> backoff -> reconnect)* -> stop.
type runtime struct {
	handle    *model.RuntimeHandle
	factory   ConnectorFactory
	log       *slog.Logger
	outbox    chan OutboundMessage
	eventsOut chan<- event.BotEvent

	// autoReconnect and enableIncoming are the per-runtime knobs from
	// model.RuntimeOptions: autoReconnect false stops the actor instead
	// of retrying after a drop; enableIncoming false keeps the reader
	// running (so the account stays authenticated) but discards chat
	// events before they reach the bus, for bot-only accounts sharing a
	// platform with a broadcaster account.
	autoReconnect  bool
	enableIncoming bool

	mu   sync.Mutex
	conn Connector
}

func newRuntime(handle *model.RuntimeHandle, factory ConnectorFactory, eventsOut chan<- event.BotEvent, log *slog.Logger, opts model.RuntimeOptions) *runtime {
	return &runtime{
		handle:         handle,
		factory:        factory,
		log:            log,
		outbox:         make(chan OutboundMessage, 64),
		eventsOut:      eventsOut,
		autoReconnect:  opts.AutoReconnect,
		enableIncoming: opts.EnableIncoming,
	}
}

// loop is the actor body: it owns handle.Cancel's context and runs until
// that context is canceled by Manager.Stop.
func (r *runtime) loop(ctx context.Context) {
	backoff := backoffInitial

	for {
		if ctx.Err() != nil {
			r.handle.SetState(model.Disconnected)
			return
		}

		r.handle.SetState(model.Connecting)
		conn, err := r.factory(ctx)
		if err != nil {
			r.handle.IncErrors()
			r.log.Warn("PLATFORM_CONNECT_FAILED",
				"platform", r.handle.Key.Platform, "account", r.handle.Key.Account, "error", err)
			if !r.retry(ctx, &backoff) {
				return
			}
			continue
		}
		if err := conn.Connect(ctx); err != nil {
			r.handle.IncErrors()
			r.log.Warn("PLATFORM_HANDSHAKE_FAILED",
				"platform", r.handle.Key.Platform, "account", r.handle.Key.Account, "error", err)
			conn.Close()
			if !r.retry(ctx, &backoff) {
				return
			}
			continue
		}

		r.mu.Lock()
		r.conn = conn
		r.mu.Unlock()

		r.handle.SetState(model.Connected)
		r.log.Info("PLATFORM_CONNECTED", "platform", r.handle.Key.Platform, "account", r.handle.Key.Account)
		backoff = backoffInitial

		r.runConnected(ctx, conn)

		r.mu.Lock()
		r.conn = nil
		r.mu.Unlock()
		conn.Close()

		if ctx.Err() != nil {
			r.handle.SetState(model.Disconnected)
			return
		}

		r.handle.SetState(model.Reconnecting)
		if !r.retry(ctx, &backoff) {
			return
		}
	}
}

// retry reports whether the actor should attempt another connect after a
// drop or failed attempt: false when autoReconnect is disabled (leaving
// the handle Disconnected) or when ctx is canceled while backing off.
func (r *runtime) retry(ctx context.Context, backoff *time.Duration) bool {
	if !r.autoReconnect {
		r.handle.SetState(model.Disconnected)
		return false
	}
	return r.sleepBackoff(ctx, backoff)
}

// runConnected pumps reads and writes until the connection drops or ctx
// is canceled.
func (r *runtime) runConnected(ctx context.Context, conn Connector) {
	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	readErr := make(chan error, 1)
	go func() {
		readErr <- conn.Run(connCtx, r.countedEvents(connCtx))
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-readErr:
			if err != nil {
				r.handle.IncErrors()
				r.log.Warn("PLATFORM_READ_LOOP_EXIT",
					"platform", r.handle.Key.Platform, "account", r.handle.Key.Account, "error", err)
			}
			return
		case out := <-r.outbox:
			err := conn.Send(ctx, out.Channel, out.Text)
			if err != nil {
				r.handle.IncErrors()
			} else {
				r.handle.IncSent()
			}
			if out.Result != nil {
				out.Result <- err
			}
		}
	}
}

// countedEvents wraps eventsOut so every delivered event also increments
// the handle's received counter, without the connector needing to know
// about stats bookkeeping. The forwarding goroutine exits when ctx (the
// current connection's lifetime) is canceled, so no goroutine survives
// past its connection attempt.
//
// When enableIncoming is false the reader still runs (so the account
// stays connected and authenticated) but chat events are discarded here,
// after the connector produces them and before they reach the bus. This
// is how a bot-only account shares a platform with a broadcaster account
// without duplicating chat into the pipeline.
func (r *runtime) countedEvents(ctx context.Context) chan<- event.BotEvent {
	relay := make(chan event.BotEvent)
	go func() {
		for {
			select {
			case ev := <-relay:
				r.handle.IncReceived()
				if !r.enableIncoming && ev.EventType() == event.TypeChatMessage {
					r.log.Debug("PLATFORM_INCOMING_DISCARDED",
						"platform", r.handle.Key.Platform, "account", r.handle.Key.Account)
					continue
				}
				select {
				case r.eventsOut <- ev:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return relay
}

// sleepBackoff waits out the current backoff (with jitter), doubling it
// for next time up to backoffCap. Returns false if ctx was canceled
// while waiting.
func (r *runtime) sleepBackoff(ctx context.Context, backoff *time.Duration) bool {
	d := *backoff
	jitter := time.Duration(float64(d) * backoffJitter * (rand.Float64()*2 - 1))
	wait := d + jitter
	if wait < 0 {
		wait = d
	}

	select {
	case <-time.After(wait):
	case <-ctx.Done():
		return false
	}

	next := time.Duration(float64(*backoff) * backoffFactor)
	if next > backoffCap {
		next = backoffCap
	}
	*backoff = next
	return ctx.Err() == nil
}

// send enqueues an outbound message and waits for the writer's result.
// While the runtime is not connected the message stays in the outbox
// until a connection takes it or ctx ends; there is no not-connected error.
func (r *runtime) send(ctx context.Context, channel, text string) error {
	result := make(chan error, 1)
	select {
	case r.outbox <- OutboundMessage{Channel: channel, Text: text, Result: result}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
