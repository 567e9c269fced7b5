package plugin

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maowbot/maowbot/internal/domain/event"
	"github.com/maowbot/maowbot/internal/domain/model"
	"github.com/maowbot/maowbot/internal/eventbus"
	"github.com/maowbot/maowbot/internal/platform/obs"
	"github.com/maowbot/maowbot/internal/pluginrpc"
)

// Manager is the plugin manager (C7). It implements
// pluginrpc.PluginServiceServer; each StartSession call runs the full
// lifetime of one plugin's stream.
type Manager struct {
	bus        *eventbus.Bus
	passphrase string
	botName    string
	obs        obs.SceneSwitcher // nil if no OBS integration is configured
	log        *slog.Logger

	start time.Time

	mu       sync.RWMutex
	sessions map[string]*session
}

// Option customizes a Manager at construction time.
type Option func(*Manager)

// WithSceneSwitcher wires an OBS integration for SwitchScene requests.
// Without it, SwitchScene always fails with Auth (no capability can ever
// be honored).
func WithSceneSwitcher(s obs.SceneSwitcher) Option {
	return func(m *Manager) { m.obs = s }
}

// NewManager builds a plugin manager. passphrase is the shared secret
// every Hello must present; botName is echoed back in Welcome.
func NewManager(bus *eventbus.Bus, passphrase, botName string, log *slog.Logger, opts ...Option) *Manager {
	if log == nil {
		log = slog.Default()
	}
	m := &Manager{
		bus:        bus,
		passphrase: passphrase,
		botName:    botName,
		log:        log,
		start:      time.Now(),
		sessions:   make(map[string]*session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

var _ pluginrpc.PluginServiceServer = (*Manager)(nil)

// StartSession runs one plugin connection end to end: relay goroutine,
// inbound frame loop, and cleanup. It returns once the stream ends for
// any reason.
func (m *Manager) StartSession(stream pluginrpc.PluginService_StartSessionServer) error {
	ctx := stream.Context()
	sess := newSession(uuid.NewString())

	m.mu.Lock()
	m.sessions[sess.id] = sess
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		delete(m.sessions, sess.id)
		m.mu.Unlock()
		sess.closeMailbox()
	}()

	relayCtx, cancelRelay := context.WithCancel(ctx)
	defer cancelRelay()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.relayLoop(relayCtx, sess)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		m.writeLoop(ctx, stream, sess)
	}()

	err := m.readLoop(ctx, stream, sess)
	cancelRelay()
	sess.closeMailbox()
	wg.Wait()
	return err
}

// readLoop consumes inbound ClientFrames until the stream ends or a
// fatal auth failure terminates the session.
func (m *Manager) readLoop(ctx context.Context, stream pluginrpc.PluginService_StartSessionServer, sess *session) error {
	for {
		frame, err := stream.Recv()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		terminate, err := m.handle(ctx, sess, frame, stream)
		if err != nil {
			return err
		}
		if terminate {
			return nil
		}
	}
}

// handle applies one inbound frame's policy, per the C7 state table.
// Before authentication only Hello is honored; everything else is
// ignored. Returns terminate=true when the session must end (failed
// Hello or Shutdown request).
func (m *Manager) handle(ctx context.Context, sess *session, frame *pluginrpc.ClientFrame, stream pluginrpc.PluginService_StartSessionServer) (bool, error) {
	if !sess.isAuthenticated() {
		if frame.Type != pluginrpc.ClientFrameHello || frame.Hello == nil {
			return false, nil
		}
		return m.handleHello(sess, frame.Hello, stream)
	}

	switch frame.Type {
	case pluginrpc.ClientFrameRequestStatus:
		return false, m.handleRequestStatus(stream)
	case pluginrpc.ClientFrameRequestCaps:
		return false, m.handleRequestCaps(sess, frame.RequestCaps, stream)
	case pluginrpc.ClientFrameSwitchScene:
		return false, m.handleSwitchScene(ctx, sess, frame.SwitchScene, stream)
	case pluginrpc.ClientFrameSendChat:
		return false, m.handleSendChat(ctx, sess, frame.SendChat, stream)
	case pluginrpc.ClientFrameLogMessage:
		m.handleLogMessage(sess, frame.LogMessage)
		return false, nil
	case pluginrpc.ClientFrameShutdown:
		return true, m.bus.Shutdown()
	default:
		return false, nil
	}
}

func (m *Manager) handleHello(sess *session, hello *pluginrpc.Hello, stream pluginrpc.PluginService_StartSessionServer) (bool, error) {
	if hello.Passphrase != m.passphrase {
		sess.reject()
		_ = stream.Send(&pluginrpc.ServerFrame{
			Type:      pluginrpc.ServerFrameAuthError,
			AuthError: &pluginrpc.AuthError{Reason: "Invalid passphrase"},
		})
		return true, nil
	}

	sess.authenticate(hello.PluginName)
	m.log.Info("PLUGIN_SESSION_AUTHENTICATED", "session_id", sess.id, "plugin_name", hello.PluginName)
	return false, stream.Send(&pluginrpc.ServerFrame{
		Type:    pluginrpc.ServerFrameWelcome,
		Welcome: &pluginrpc.Welcome{BotName: m.botName},
	})
}

func (m *Manager) handleRequestStatus(stream pluginrpc.PluginService_StartSessionServer) error {
	m.mu.RLock()
	names := make([]string, 0, len(m.sessions))
	for _, s := range m.sessions {
		if s.isAuthenticated() {
			names = append(names, s.name())
		}
	}
	m.mu.RUnlock()

	return stream.Send(&pluginrpc.ServerFrame{
		Type: pluginrpc.ServerFrameStatusResponse,
		StatusResponse: &pluginrpc.StatusResponse{
			ConnectedPlugins: names,
			ServerUptime:     uptime(m.start),
		},
	})
}

func (m *Manager) handleRequestCaps(sess *session, req *pluginrpc.RequestCaps, stream pluginrpc.PluginService_StartSessionServer) error {
	var granted, denied []string
	var toGrant []model.Capability
	for _, raw := range req.Requested {
		cap := model.Capability(raw)
		if cap == model.CapChatModeration {
			denied = append(denied, raw)
			continue
		}
		toGrant = append(toGrant, cap)
		granted = append(granted, raw)
	}
	sess.grant(toGrant)

	return stream.Send(&pluginrpc.ServerFrame{
		Type:               pluginrpc.ServerFrameCapabilityResponse,
		CapabilityResponse: &pluginrpc.CapabilityResponse{Granted: granted, Denied: denied},
	})
}

func (m *Manager) handleSwitchScene(ctx context.Context, sess *session, req *pluginrpc.SwitchScene, stream pluginrpc.PluginService_StartSessionServer) error {
	if !sess.has(model.CapSceneManagement) {
		return stream.Send(&pluginrpc.ServerFrame{
			Type:      pluginrpc.ServerFrameAuthError,
			AuthError: &pluginrpc.AuthError{Reason: "No SceneManagement capability"},
		})
	}
	if m.obs == nil {
		return stream.Send(&pluginrpc.ServerFrame{
			Type:      pluginrpc.ServerFrameAuthError,
			AuthError: &pluginrpc.AuthError{Reason: "No OBS integration configured"},
		})
	}
	if err := m.obs.SetCurrentScene(ctx, req.SceneName); err != nil {
		m.log.Error("PLUGIN_SWITCH_SCENE_FAILED", "session_id", sess.id, "error", err)
	}
	return nil
}

func (m *Manager) handleSendChat(ctx context.Context, sess *session, req *pluginrpc.SendChat, stream pluginrpc.PluginService_StartSessionServer) error {
	if !sess.has(model.CapSendChat) {
		return stream.Send(&pluginrpc.ServerFrame{
			Type:      pluginrpc.ServerFrameAuthError,
			AuthError: &pluginrpc.AuthError{Reason: "No SendChat capability"},
		})
	}
	return m.bus.Publish(ctx, &event.ChatMessage{
		PlatformName: event.PlatformPlugin,
		Channel:      req.Channel,
		UserName:     sess.name(),
		Text:         req.Text,
		Timestamp:    time.Now(),
	})
}

func (m *Manager) handleLogMessage(sess *session, msg *pluginrpc.LogMessage) {
	m.log.Info("PLUGIN_LOG", "session_id", sess.id, "plugin_name", sess.name(), "text", msg.Text)
}

// writeLoop drains sess's outbound mailbox onto the wire until it's
// closed or the stream's context ends.
func (m *Manager) writeLoop(ctx context.Context, stream pluginrpc.PluginService_StartSessionServer, sess *session) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-sess.disconnect:
			if sf, ok := frame.(*pluginrpc.ServerFrame); ok {
				_ = stream.Send(sf)
			}
			return
		case frame, ok := <-sess.outbound:
			if !ok {
				return
			}
			sf, ok := frame.(*pluginrpc.ServerFrame)
			if !ok {
				continue
			}
			if err := stream.Send(sf); err != nil {
				return
			}
		}
	}
}

// relayLoop subscribes to the bus and forwards qualifying events to
// sess's mailbox while it's enabled and holds ReceiveChatEvents. A full
// mailbox forces disconnect rather than blocking, so one slow plugin
// cannot stall the bus.
func (m *Manager) relayLoop(ctx context.Context, sess *session) {
	chatEvents, err := m.bus.Subscribe(ctx, event.TypeChatMessage)
	if err != nil {
		return
	}
	ticks, err := m.bus.Subscribe(ctx, event.TypeTick)
	if err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-chatEvents:
			if !ok {
				return
			}
			m.forward(sess, ev)
		case ev, ok := <-ticks:
			if !ok {
				return
			}
			m.forward(sess, ev)
		}
	}
}

func (m *Manager) forward(sess *session, ev event.BotEvent) {
	if !sess.isEnabled() || !sess.has(model.CapReceiveChatEvents) {
		return
	}

	var frame *pluginrpc.ServerFrame
	switch e := ev.(type) {
	case *event.ChatMessage:
		frame = &pluginrpc.ServerFrame{
			Type: pluginrpc.ServerFrameChatMessage,
			ChatMessage: &pluginrpc.ChatMessage{
				Platform: string(e.PlatformName),
				Channel:  e.Channel,
				User:     e.UserName,
				Text:     e.Text,
			},
		}
	case *event.Tick:
		frame = &pluginrpc.ServerFrame{Type: pluginrpc.ServerFrameTick, Tick: &pluginrpc.Tick{}}
	default:
		return
	}

	if sess.offer(frame) {
		return
	}

	m.log.Warn("PLUGIN_SESSION_SLOW_CONSUMER", "session_id", sess.id, "plugin_name", sess.name())
	sess.forceDisconnect(&pluginrpc.ServerFrame{
		Type:            pluginrpc.ServerFrameForceDisconnect,
		ForceDisconnect: &pluginrpc.ForceDisconnect{Reason: "slow consumer"},
	})
}

// ListSessions returns a snapshot of every currently tracked session,
// for operator-facing status surfaces.
func (m *Manager) ListSessions() []info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]info, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.snapshot())
	}
	return out
}
