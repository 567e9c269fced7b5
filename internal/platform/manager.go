package platform

import (
	"context"
	"log/slog"
	"sync"

	"github.com/maowbot/maowbot/internal/credential"
	"github.com/maowbot/maowbot/internal/domain/event"
	"github.com/maowbot/maowbot/internal/domain/model"
	"github.com/maowbot/maowbot/internal/errs"
	"github.com/maowbot/maowbot/internal/eventbus"
)

// Manager is the platform manager (C4): one runtime per (platform,
// account), started and stopped on demand, routing credential hand-off
// and outbound sends.
type Manager struct {
	bus   *eventbus.Bus
	creds *credential.Store
	log   *slog.Logger

	factories map[string]func(cred *model.PlatformCredential) ConnectorFactory

	mu       sync.RWMutex
	runtimes map[model.RuntimeKey]*runtime
}

// NewManager builds a Manager. factories maps a platform name to a
// function producing a fresh ConnectorFactory for a given credential;
// platform subpackages (twitchirc, discord, vrchat, obs, eventsub)
// register themselves here at wiring time.
func NewManager(bus *eventbus.Bus, creds *credential.Store, factories map[string]func(*model.PlatformCredential) ConnectorFactory, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		bus:       bus,
		creds:     creds,
		log:       log,
		factories: factories,
		runtimes:  make(map[model.RuntimeKey]*runtime),
	}
}

// Start begins a runtime for (platform,account), authenticated with
// credentialID. opts carries the per-runtime auto_reconnect/enable_incoming
// knobs. It's a no-op if that runtime is already running.
func (m *Manager) Start(ctx context.Context, platform, account, credentialID string, opts model.RuntimeOptions) error {
	key := model.RuntimeKey{Platform: platform, Account: account}

	m.mu.Lock()
	if _, exists := m.runtimes[key]; exists {
		m.mu.Unlock()
		return nil
	}

	mk, ok := m.factories[platform]
	if !ok {
		m.mu.Unlock()
		return errs.Newf(errs.Platform, "platform manager: no connector registered for %q", platform)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	handle := model.NewRuntimeHandle(key, cancel)

	cred, err := m.creds.EnsureValid(ctx, credentialID)
	if err != nil {
		m.mu.Unlock()
		return errs.Wrap(errs.Auth, err, "platform manager: resolve credential")
	}

	eventsOut := make(chan event.BotEvent)
	rt := newRuntime(handle, mk(cred), eventsOut, m.log, opts)
	m.runtimes[key] = rt
	m.mu.Unlock()

	go m.pumpEvents(runCtx, eventsOut)
	go rt.loop(runCtx)

	return nil
}

// pumpEvents republishes events a runtime produces onto the shared bus.
func (m *Manager) pumpEvents(ctx context.Context, in <-chan event.BotEvent) {
	for {
		select {
		case ev, ok := <-in:
			if !ok {
				return
			}
			if err := m.bus.Publish(ctx, ev); err != nil {
				m.log.Error("PLATFORM_EVENT_PUBLISH_FAILED", "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// Stop cancels the runtime for (platform,account), if any.
func (m *Manager) Stop(platform, account string) error {
	key := model.RuntimeKey{Platform: platform, Account: account}

	m.mu.Lock()
	rt, ok := m.runtimes[key]
	if ok {
		delete(m.runtimes, key)
	}
	m.mu.Unlock()

	if !ok {
		return errs.Newf(errs.NotFound, "platform manager: no runtime for %s/%s", platform, account)
	}
	rt.handle.SetState(model.Stopping)
	rt.handle.Cancel()
	return nil
}

// Send routes an outbound chat message to the given runtime.
func (m *Manager) Send(ctx context.Context, platform, account, channel, text string) error {
	rt, err := m.get(platform, account)
	if err != nil {
		return err
	}
	return rt.send(ctx, channel, text)
}

// ListActive returns a stats snapshot for every running runtime.
func (m *Manager) ListActive() []model.RuntimeSummary {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.RuntimeSummary, 0, len(m.runtimes))
	for key, rt := range m.runtimes {
		out = append(out, model.RuntimeSummary{
			Platform:      key.Platform,
			Account:       key.Account,
			UptimeSeconds: rt.handle.UptimeSeconds(),
			State:         rt.handle.State(),
			Stats:         rt.handle.Stats(),
		})
	}
	return out
}

func (m *Manager) get(platform, account string) (*runtime, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rt, ok := m.runtimes[model.RuntimeKey{Platform: platform, Account: account}]
	if !ok {
		return nil, errs.Newf(errs.NotFound, "platform manager: no runtime for %s/%s", platform, account)
	}
	return rt, nil
}
