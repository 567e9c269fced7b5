package plugin

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/metadata"

	"github.com/maowbot/maowbot/internal/domain/event"
	"github.com/maowbot/maowbot/internal/eventbus"
	"github.com/maowbot/maowbot/internal/pluginrpc"
)

// fakeStream is a minimal grpc.ServerStream + pluginrpc.PluginService_StartSessionServer
// stand-in that exchanges frames over Go channels instead of a real
// network connection, so StartSession can be exercised directly.
type fakeStream struct {
	ctx context.Context

	mu   sync.Mutex
	in   []*pluginrpc.ClientFrame
	out  []*pluginrpc.ServerFrame
	sent chan *pluginrpc.ServerFrame
}

func newFakeStream(ctx context.Context) *fakeStream {
	return &fakeStream{ctx: ctx, sent: make(chan *pluginrpc.ServerFrame, 64)}
}

func (f *fakeStream) enqueue(frames ...*pluginrpc.ClientFrame) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.in = append(f.in, frames...)
}

func (f *fakeStream) Send(m *pluginrpc.ServerFrame) error {
	f.mu.Lock()
	f.out = append(f.out, m)
	f.mu.Unlock()
	f.sent <- m
	return nil
}

func (f *fakeStream) Recv() (*pluginrpc.ClientFrame, error) {
	for {
		f.mu.Lock()
		if len(f.in) > 0 {
			next := f.in[0]
			f.in = f.in[1:]
			f.mu.Unlock()
			return next, nil
		}
		f.mu.Unlock()

		select {
		case <-f.ctx.Done():
			return nil, f.ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

func (f *fakeStream) SetHeader(metadata.MD) error  { return nil }
func (f *fakeStream) SendHeader(metadata.MD) error  { return nil }
func (f *fakeStream) SetTrailer(metadata.MD)        {}
func (f *fakeStream) Context() context.Context      { return f.ctx }
func (f *fakeStream) SendMsg(m any) error           { return nil }
func (f *fakeStream) RecvMsg(m any) error           { return nil }

func (f *fakeStream) waitForType(t *testing.T, typ string) *pluginrpc.ServerFrame {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case frame := <-f.sent:
			if frame.Type == typ {
				return frame
			}
		case <-deadline:
			t.Fatalf("timed out waiting for frame type %q", typ)
			return nil
		}
	}
}

func runSession(ctx context.Context, m *Manager, stream *fakeStream) chan error {
	done := make(chan error, 1)
	go func() { done <- m.StartSession(stream) }()
	return done
}

func TestManager_HelloWithCorrectPassphraseWelcomes(t *testing.T) {
	bus := eventbus.New(nil, 16)
	defer bus.Shutdown()
	m := NewManager(bus, "secret", "MaowBot", nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream := newFakeStream(ctx)
	stream.enqueue(&pluginrpc.ClientFrame{Type: pluginrpc.ClientFrameHello, Hello: &pluginrpc.Hello{PluginName: "p1", Passphrase: "secret"}})

	runSession(ctx, m, stream)

	frame := stream.waitForType(t, pluginrpc.ServerFrameWelcome)
	require.NotNil(t, frame.Welcome)
	assert.Equal(t, "MaowBot", frame.Welcome.BotName)
}

func TestManager_HelloWithWrongPassphraseRejectsAndTerminates(t *testing.T) {
	bus := eventbus.New(nil, 16)
	defer bus.Shutdown()
	m := NewManager(bus, "secret", "MaowBot", nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream := newFakeStream(ctx)
	stream.enqueue(&pluginrpc.ClientFrame{Type: pluginrpc.ClientFrameHello, Hello: &pluginrpc.Hello{PluginName: "p1", Passphrase: "wrong"}})

	done := runSession(ctx, m, stream)

	frame := stream.waitForType(t, pluginrpc.ServerFrameAuthError)
	require.NotNil(t, frame.AuthError)
	assert.Equal(t, "Invalid passphrase", frame.AuthError.Reason)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("session did not terminate after rejected hello")
	}
}

func TestManager_RequestCapsDeniesChatModeration(t *testing.T) {
	bus := eventbus.New(nil, 16)
	defer bus.Shutdown()
	m := NewManager(bus, "secret", "MaowBot", nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream := newFakeStream(ctx)
	stream.enqueue(
		&pluginrpc.ClientFrame{Type: pluginrpc.ClientFrameHello, Hello: &pluginrpc.Hello{PluginName: "p1", Passphrase: "secret"}},
		&pluginrpc.ClientFrame{Type: pluginrpc.ClientFrameRequestCaps, RequestCaps: &pluginrpc.RequestCaps{Requested: []string{"SendChat", "ChatModeration"}}},
	)
	runSession(ctx, m, stream)

	stream.waitForType(t, pluginrpc.ServerFrameWelcome)
	frame := stream.waitForType(t, pluginrpc.ServerFrameCapabilityResponse)
	require.NotNil(t, frame.CapabilityResponse)
	assert.Equal(t, []string{"SendChat"}, frame.CapabilityResponse.Granted)
	assert.Equal(t, []string{"ChatModeration"}, frame.CapabilityResponse.Denied)
}

func TestManager_SendChatWithoutCapabilityIsIgnored(t *testing.T) {
	bus := eventbus.New(nil, 16)
	defer bus.Shutdown()
	m := NewManager(bus, "secret", "MaowBot", nil)

	chatEvents, err := bus.Subscribe(context.Background(), event.TypeChatMessage)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream := newFakeStream(ctx)
	stream.enqueue(
		&pluginrpc.ClientFrame{Type: pluginrpc.ClientFrameHello, Hello: &pluginrpc.Hello{PluginName: "p1", Passphrase: "secret"}},
		&pluginrpc.ClientFrame{Type: pluginrpc.ClientFrameSendChat, SendChat: &pluginrpc.SendChat{Channel: "#x", Text: "hi"}},
	)
	runSession(ctx, m, stream)
	stream.waitForType(t, pluginrpc.ServerFrameWelcome)

	select {
	case <-chatEvents:
		t.Fatal("expected no chat event without SendChat capability")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestManager_SendChatWithCapabilityPublishesEvent(t *testing.T) {
	bus := eventbus.New(nil, 16)
	defer bus.Shutdown()
	m := NewManager(bus, "secret", "MaowBot", nil)

	chatEvents, err := bus.Subscribe(context.Background(), event.TypeChatMessage)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stream := newFakeStream(ctx)
	stream.enqueue(
		&pluginrpc.ClientFrame{Type: pluginrpc.ClientFrameHello, Hello: &pluginrpc.Hello{PluginName: "p1", Passphrase: "secret"}},
		&pluginrpc.ClientFrame{Type: pluginrpc.ClientFrameRequestCaps, RequestCaps: &pluginrpc.RequestCaps{Requested: []string{"SendChat"}}},
		&pluginrpc.ClientFrame{Type: pluginrpc.ClientFrameSendChat, SendChat: &pluginrpc.SendChat{Channel: "#x", Text: "hi"}},
	)
	runSession(ctx, m, stream)
	stream.waitForType(t, pluginrpc.ServerFrameWelcome)
	stream.waitForType(t, pluginrpc.ServerFrameCapabilityResponse)

	select {
	case ev := <-chatEvents:
		cm, ok := ev.(*event.ChatMessage)
		require.True(t, ok)
		assert.Equal(t, "hi", cm.Text)
		assert.Equal(t, "p1", cm.UserName)
	case <-time.After(time.Second):
		t.Fatal("expected a relayed chat event")
	}
}
