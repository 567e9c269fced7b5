/*
Package eventbus is the in-process publish/subscribe backbone every
other component dispatches events through.

Key properties:
  - Topics are event types (event.BotEvent.EventType()); subscribing to a
    type delivers every matching event regardless of platform.
  - Delivery never drops an event. A slow subscriber applies backpressure
    all the way to the publisher: Publish blocks until the subscriber's
    mailbox has room. This is the one deliberate inversion from the
    per-user Cell pattern this package is otherwise modeled on, which
    drops on a full mailbox to protect throughput instead.
  - Transport is watermill's in-process gochannel implementation, wrapped
    so callers only ever see event.BotEvent, never raw messages.
*/
package eventbus

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/maowbot/maowbot/internal/domain/event"
	"github.com/maowbot/maowbot/internal/errs"
)

// Bus is the shared event distribution point. Zero value is not usable;
// construct with New.
type Bus struct {
	gc     *gochannel.GoChannel
	log    *slog.Logger
	buffer int
	mu     sync.RWMutex
	closed bool
	doneCh chan struct{}
}

// New builds a Bus. mailboxBuffer bounds how many unconsumed events a
// single subscriber may queue before Publish blocks; it does not bound
// how many events the bus accepts overall.
func New(log *slog.Logger, mailboxBuffer int) *Bus {
	if log == nil {
		log = slog.Default()
	}
	gc := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer:            int64(mailboxBuffer),
		Persistent:                     false,
		BlockPublishUntilSubscriberAck: true,
	}, watermill.NewSlogLogger(log))

	return &Bus{
		gc:     gc,
		log:    log,
		buffer: mailboxBuffer,
		doneCh: make(chan struct{}),
	}
}

// Publish delivers ev to every subscriber of ev.EventType(). It blocks
// until the event has been handed to each subscriber's mailbox; it never
// silently drops.
func (b *Bus) Publish(ctx context.Context, ev event.BotEvent) error {
	if ev == nil {
		return errs.New(errs.InvalidInput, "eventbus: cannot publish nil event")
	}
	if b.IsShutdown() {
		return errs.New(errs.Conflict, "eventbus: publish after shutdown")
	}

	raw, err := encode(ev)
	if err != nil {
		return err
	}

	msg := message.NewMessage(watermill.NewUUID(), raw)
	msg.SetContext(ctx)

	if err := b.gc.Publish(ev.EventType(), msg); err != nil {
		return errs.Wrap(errs.Platform, err, "eventbus: publish")
	}
	return nil
}

// Subscribe returns a channel of decoded events for the given event type.
// The channel is closed when ctx is canceled or the bus is shut down.
func (b *Bus) Subscribe(ctx context.Context, eventType string) (<-chan event.BotEvent, error) {
	if b.IsShutdown() {
		return nil, errs.New(errs.Conflict, "eventbus: subscribe after shutdown")
	}

	raw, err := b.gc.Subscribe(ctx, eventType)
	if err != nil {
		return nil, errs.Wrap(errs.Platform, err, "eventbus: subscribe")
	}

	out := make(chan event.BotEvent, b.buffer)
	go func() {
		defer close(out)
		for msg := range raw {
			// Publish waits for this ack, and this goroutine takes the next
			// message only after forwarding the previous one, so a full out
			// channel holds the publisher back.
			msg.Ack()
			ev, err := decode(msg.Payload)
			if err != nil {
				b.log.Error("EVENTBUS_DECODE_FAILED", "event_type", eventType, "error", err)
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// Shutdown closes the underlying transport. Subsequent Publish/Subscribe
// calls fail with a Conflict error.
func (b *Bus) Shutdown() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	close(b.doneCh)
	b.mu.Unlock()

	if err := b.gc.Close(); err != nil {
		return errs.Wrap(errs.Platform, err, "eventbus: shutdown")
	}
	return nil
}

// IsShutdown reports whether Shutdown has been called.
func (b *Bus) IsShutdown() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}

// ShutdownSignal returns a channel closed when Shutdown is called, for
// callers that want to select on bus lifecycle alongside their own work.
func (b *Bus) ShutdownSignal() <-chan struct{} {
	return b.doneCh
}
