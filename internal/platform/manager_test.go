package platform

import (
	"context"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maowbot/maowbot/internal/credential"
	"github.com/maowbot/maowbot/internal/domain/event"
	"github.com/maowbot/maowbot/internal/domain/model"
	"github.com/maowbot/maowbot/internal/eventbus"
)

// fakeConnector connects instantly and emits one ChatMessage, then blocks
// on ctx until canceled.
type fakeConnector struct {
	connectCalls atomic.Int32
	sent         chan string
}

func (f *fakeConnector) Connect(ctx context.Context) error {
	f.connectCalls.Add(1)
	return nil
}

func (f *fakeConnector) Run(ctx context.Context, out chan<- event.BotEvent) error {
	select {
	case out <- &event.ChatMessage{PlatformName: event.PlatformTwitchIRC, Text: "hello"}:
	case <-ctx.Done():
		return ctx.Err()
	}
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeConnector) Send(ctx context.Context, channel, text string) error {
	if f.sent != nil {
		f.sent <- text
	}
	return nil
}

func (f *fakeConnector) Close() error { return nil }

func newTestManager(t *testing.T, factory ConnectorFactory) (*Manager, *eventbus.Bus) {
	t.Helper()
	bus := eventbus.New(slog.Default(), 8)
	t.Cleanup(func() { bus.Shutdown() })

	repo := newFakeCredRepo()
	store, err := credential.NewForTest(repo)
	require.NoError(t, err)

	mgr := NewManager(bus, store, map[string]func(*model.PlatformCredential) ConnectorFactory{
		"twitch_irc": func(*model.PlatformCredential) ConnectorFactory {
			return factory
		},
	}, slog.Default())
	return mgr, bus
}

func TestManager_StartPublishesEvents(t *testing.T) {
	conn := &fakeConnector{}
	mgr, bus := newTestManager(t, func(ctx context.Context) (Connector, error) { return conn, nil })

	require.NoError(t, mgr.Start(context.Background(), "twitch_irc", "acct1", "cred1", model.DefaultRuntimeOptions()))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	sub, err := bus.Subscribe(ctx, event.TypeChatMessage)
	require.NoError(t, err)

	select {
	case ev := <-sub:
		cm := ev.(*event.ChatMessage)
		assert.Equal(t, "hello", cm.Text)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published event")
	}

	require.NoError(t, mgr.Stop("twitch_irc", "acct1"))
}

func TestManager_Send_RoutesToConnector(t *testing.T) {
	conn := &fakeConnector{sent: make(chan string, 1)}
	mgr, _ := newTestManager(t, func(ctx context.Context) (Connector, error) { return conn, nil })
	require.NoError(t, mgr.Start(context.Background(), "twitch_irc", "acct1", "cred1", model.DefaultRuntimeOptions()))

	// Give the actor a moment to reach Connected before sending.
	require.Eventually(t, func() bool {
		for _, s := range mgr.ListActive() {
			if s.State == model.Connected {
				return true
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, mgr.Send(context.Background(), "twitch_irc", "acct1", "#chan", "hi"))
	select {
	case text := <-conn.sent:
		assert.Equal(t, "hi", text)
	case <-time.After(time.Second):
		t.Fatal("connector never received send")
	}
}

func TestManager_Start_EnableIncomingFalseDiscardsChat(t *testing.T) {
	conn := &fakeConnector{}
	mgr, bus := newTestManager(t, func(ctx context.Context) (Connector, error) { return conn, nil })

	require.NoError(t, mgr.Start(context.Background(), "twitch_irc", "acct1", "cred1",
		model.RuntimeOptions{AutoReconnect: true, EnableIncoming: false}))

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	sub, err := bus.Subscribe(ctx, event.TypeChatMessage)
	require.NoError(t, err)

	select {
	case ev := <-sub:
		t.Fatalf("expected chat message to be discarded, got %v", ev)
	case <-ctx.Done():
	}

	require.NoError(t, mgr.Stop("twitch_irc", "acct1"))
}

func TestManager_Send_UnknownRuntimeFails(t *testing.T) {
	mgr, _ := newTestManager(t, func(ctx context.Context) (Connector, error) { return &fakeConnector{}, nil })
	err := mgr.Send(context.Background(), "twitch_irc", "nope", "#chan", "hi")
	require.Error(t, err)
}
