/*
Package registry is the event handler registry (C5): register/unregister
handlers by ID, and look them up either by exact (platform,event_type)
or by matching against a concrete event.

Lookups return priority-sorted copies so callers never hold the
registry's internal lock while invoking handlers.
*/
package registry

import (
	"sort"
	"sync"

	"github.com/maowbot/maowbot/internal/domain/event"
	"github.com/maowbot/maowbot/internal/domain/model"
	"github.com/maowbot/maowbot/internal/errs"
)

// Registry is the handler registry (C5).
type Registry struct {
	mu    sync.RWMutex
	byID  map[string]*model.HandlerRegistration
	nextSeq uint64
}

// New builds an empty Registry.
func New() *Registry {
	return &Registry{byID: make(map[string]*model.HandlerRegistration)}
}

// Register adds a handler. Returns errs.Conflict if reg.ID is already
// registered.
func (r *Registry) Register(reg model.HandlerRegistration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[reg.ID]; exists {
		return errs.Newf(errs.Conflict, "registry: handler %q already registered", reg.ID)
	}

	r.nextSeq++
	reg.InsertionSeq = r.nextSeq
	if reg.Platforms == nil {
		reg.Platforms = map[event.Platform]struct{}{}
	}
	if reg.EventTypes == nil {
		reg.EventTypes = map[string]struct{}{}
	}
	stored := reg
	r.byID[reg.ID] = &stored
	return nil
}

// Unregister removes a handler by ID. Returns errs.NotFound if absent.
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return errs.Newf(errs.NotFound, "registry: handler %q not found", id)
	}
	delete(r.byID, id)
	return nil
}

// SetEnabled toggles a handler's enabled flag without unregistering it.
func (r *Registry) SetEnabled(id string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	reg, ok := r.byID[id]
	if !ok {
		return errs.Newf(errs.NotFound, "registry: handler %q not found", id)
	}
	reg.Enabled = enabled
	return nil
}

// GetFor returns every enabled handler registered for (platform,
// eventType), priority order ascending (lower number runs first), ties
// broken by registration order.
func (r *Registry) GetFor(platform event.Platform, eventType string) []model.HandlerRegistration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []model.HandlerRegistration
	for _, reg := range r.byID {
		if !reg.Enabled {
			continue
		}
		if reg.MatchesPlatform(platform) && reg.MatchesEventType(eventType) {
			out = append(out, *reg)
		}
	}
	sortByPriority(out)
	return out
}

// GetForEvent returns every enabled handler whose registration matches
// ev's platform and event type.
func (r *Registry) GetForEvent(ev event.BotEvent) []model.HandlerRegistration {
	return r.GetFor(ev.Platform(), ev.EventType())
}

// List returns every registered handler, regardless of enabled state.
func (r *Registry) List() []model.HandlerInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.HandlerInfo, 0, len(r.byID))
	for _, reg := range r.byID {
		out = append(out, model.HandlerInfo{
			ID:       reg.ID,
			Name:     reg.Name,
			Priority: reg.Priority,
			Enabled:  reg.Enabled,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func sortByPriority(regs []model.HandlerRegistration) {
	sort.SliceStable(regs, func(i, j int) bool {
		if regs[i].Priority != regs[j].Priority {
			return regs[i].Priority < regs[j].Priority
		}
		return regs[i].InsertionSeq < regs[j].InsertionSeq
	})
}
