package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maowbot/maowbot/internal/domain/event"
)

func TestBus_DeliversInPublishOrder(t *testing.T) {
	bus := New(nil, 8)
	defer bus.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := bus.Subscribe(ctx, event.TypeChatMessage)
	require.NoError(t, err)

	for i := range 5 {
		msg := &event.ChatMessage{
			PlatformName: event.PlatformTwitchIRC,
			Channel:      "#test",
			UserID:       "u1",
			UserName:     "user",
			Text:         string(rune('a' + i)),
			Timestamp:    time.Now(),
		}
		require.NoError(t, bus.Publish(ctx, msg))
	}

	for i := range 5 {
		select {
		case ev := <-sub:
			cm, ok := ev.(*event.ChatMessage)
			require.True(t, ok)
			assert.Equal(t, string(rune('a'+i)), cm.Text)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}

// TestBus_PublishBlocksOnFullMailbox pins the bus's defining invariant: a
// slow subscriber must apply backpressure to the publisher rather than
// have events silently dropped.
func TestBus_PublishBlocksOnFullMailbox(t *testing.T) {
	// A zero-buffer mailbox plus the one in-flight slot the subscriber
	// goroutine itself holds while blocked forwarding to the caller's
	// channel gives exactly one publish of headroom before Publish
	// blocks.
	bus := New(nil, 0)
	defer bus.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := bus.Subscribe(ctx, event.TypeTick)
	require.NoError(t, err)

	publish := func() chan error {
		done := make(chan error, 1)
		go func() {
			done <- bus.Publish(ctx, &event.Tick{At: time.Now()})
		}()
		return done
	}

	// First publish fills the one-slot mailbox and returns once consumed
	// from the underlying transport buffer.
	require.NoError(t, <-publish())

	// Second publish should block until the first event is drained by
	// the subscriber goroutine reading from `sub`.
	second := publish()

	select {
	case <-second:
		t.Fatalf("second publish returned before subscriber drained the mailbox")
	case <-time.After(150 * time.Millisecond):
		// expected: still blocked
	}

	select {
	case <-sub:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting to drain first event")
	}

	select {
	case err := <-second:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("publish did not unblock after drain")
	}

	select {
	case <-sub:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting to drain second event")
	}
}

func TestBus_PublishNilEventRejected(t *testing.T) {
	bus := New(nil, 4)
	defer bus.Shutdown()

	err := bus.Publish(context.Background(), nil)
	require.Error(t, err)
}

func TestBus_PublishAfterShutdownFails(t *testing.T) {
	bus := New(nil, 4)
	require.NoError(t, bus.Shutdown())
	assert.True(t, bus.IsShutdown())

	err := bus.Publish(context.Background(), &event.Tick{At: time.Now()})
	require.Error(t, err)
}
