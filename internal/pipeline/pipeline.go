package pipeline

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/maowbot/maowbot/internal/domain/event"
	"github.com/maowbot/maowbot/internal/domain/model"
	"github.com/maowbot/maowbot/internal/errs"
	"github.com/maowbot/maowbot/internal/registry"
)

// HandlerFunc is the runnable handler the Pipeline looks up by ID in its
// handler map. The registry itself only tracks registrations;
// something upstream (the app's wiring code) maps handler IDs to actual
// callables and supplies that mapping here.
type HandlerFunc func(ctx context.Context, ev event.BotEvent) error

// compiledPipeline is a PipelineDefinition with its filter tree already
// compiled, so Evaluate never pays regex/composite-construction cost per
// event.
type compiledPipeline struct {
	def     model.PipelineDefinition
	filters []Filter
}

// Pipeline is the event pipeline (C6): an ordered set of
// platform/event-type-scoped filter chains, each naming the handlers to
// run on a match.
type Pipeline struct {
	reg      *registry.Registry
	handlers map[string]HandlerFunc
	log      *slog.Logger

	mu        sync.RWMutex
	pipelines []compiledPipeline
}

// New builds a Pipeline. reg resolves handler metadata (priority,
// enabled) for handlers named by a PipelineDefinition's HandlerIDs;
// handlers maps handler ID to the actual callable.
func New(reg *registry.Registry, handlers map[string]HandlerFunc, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{reg: reg, handlers: handlers, log: log}
}

// AddDefinition compiles and installs a PipelineDefinition.
func (p *Pipeline) AddDefinition(def model.PipelineDefinition) error {
	filters := make([]Filter, 0, len(def.Filters))
	for _, spec := range def.Filters {
		f, err := Compile(spec)
		if err != nil {
			return err
		}
		filters = append(filters, f)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.pipelines = append(p.pipelines, compiledPipeline{def: def, filters: filters})
	return nil
}

// RemoveDefinition drops the first installed definition with the given
// ID. Returns errs.NotFound if none match.
func (p *Pipeline) RemoveDefinition(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, cp := range p.pipelines {
		if cp.def.ID == id {
			p.pipelines = append(p.pipelines[:i], p.pipelines[i+1:]...)
			return nil
		}
	}
	return errs.Newf(errs.NotFound, "pipeline: definition %q not found", id)
}

// Evaluate runs every installed pipeline whose platform/event-type scope
// matches ev, in filter order, dispatching to each matching pipeline's
// handlers on a filter pass. StopOnMatch on a pipeline definition halts
// evaluation of subsequent pipelines once that one matches.
func (p *Pipeline) Evaluate(ctx context.Context, ev event.BotEvent) error {
	p.mu.RLock()
	pipelines := make([]compiledPipeline, len(p.pipelines))
	copy(pipelines, p.pipelines)
	p.mu.RUnlock()

	for _, cp := range pipelines {
		if !scopeMatches(cp.def, ev) {
			continue
		}
		if !evaluateFilters(cp, ev) {
			continue
		}

		if err := p.dispatch(ctx, cp.def, ev); err != nil {
			p.log.Error("PIPELINE_DISPATCH_FAILED", "pipeline_id", cp.def.ID, "error", err)
		}

		if cp.def.StopOnMatch {
			return nil
		}
	}
	return nil
}

func scopeMatches(def model.PipelineDefinition, ev event.BotEvent) bool {
	if len(def.Platforms) > 0 {
		if _, ok := def.Platforms[string(ev.Platform())]; !ok {
			return false
		}
	}
	if len(def.EventTypes) > 0 {
		if _, ok := def.EventTypes[ev.EventType()]; !ok {
			return false
		}
	}
	return true
}

func evaluateFilters(cp compiledPipeline, ev event.BotEvent) bool {
	if len(cp.filters) == 0 {
		return true
	}
	if cp.def.RequireAll {
		for _, f := range cp.filters {
			if !f.Apply(ev) {
				return false
			}
		}
		return true
	}
	for _, f := range cp.filters {
		if f.Apply(ev) {
			return true
		}
	}
	return false
}

// dispatch resolves def's handler IDs against the registry (for
// priority/enabled state) and the handler map (for the callable), in
// priority order.
func (p *Pipeline) dispatch(ctx context.Context, def model.PipelineDefinition, ev event.BotEvent) error {
	type resolved struct {
		id       string
		priority int
		seq      uint64
	}
	var candidates []resolved

	for _, id := range def.HandlerIDs {
		for _, reg := range p.reg.List() {
			if reg.ID != id {
				continue
			}
			if !reg.Enabled {
				break
			}
			candidates = append(candidates, resolved{id: id, priority: reg.Priority})
			break
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].priority < candidates[j].priority })

	var firstErr error
	for _, c := range candidates {
		fn, ok := p.handlers[c.id]
		if !ok {
			continue
		}
		if err := fn(ctx, ev); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
