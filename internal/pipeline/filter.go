/*
Package pipeline is the event pipeline (C6): a filter chain compiled
from a model.FilterSpec tree, plus the pipeline evaluator that runs a
pipeline's filters and, on pass, dispatches to its handler list.
*/
package pipeline

import (
	"regexp"
	"time"

	"github.com/maowbot/maowbot/internal/domain/event"
	"github.com/maowbot/maowbot/internal/domain/model"
	"github.com/maowbot/maowbot/internal/errs"
)

// Filter evaluates a single predicate against an event.
type Filter interface {
	Apply(ev event.BotEvent) bool
}

// Compile turns a declarative model.FilterSpec into an evaluable Filter.
func Compile(spec model.FilterSpec) (Filter, error) {
	switch spec.Kind {
	case model.FilterPlatform:
		return platformFilter{platforms: toPlatformSet(spec.Platforms)}, nil
	case model.FilterChannel:
		return channelFilter{channels: toSet(spec.Channels)}, nil
	case model.FilterUserRole:
		return userRoleFilter{roles: spec.Roles, anyRole: spec.AnyRole}, nil
	case model.FilterMessagePattern:
		return compileMessagePattern(spec)
	case model.FilterTimeWindow:
		return compileTimeWindow(spec)
	case model.FilterComposite:
		return compileComposite(spec)
	default:
		return nil, errs.Newf(errs.InvalidInput, "pipeline: unknown filter kind %q", spec.Kind)
	}
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func toPlatformSet(values []string) map[event.Platform]struct{} {
	set := make(map[event.Platform]struct{}, len(values))
	for _, v := range values {
		set[event.Platform(v)] = struct{}{}
	}
	return set
}

// platformFilter passes events whose platform is in the configured set.
type platformFilter struct {
	platforms map[event.Platform]struct{}
}

func (f platformFilter) Apply(ev event.BotEvent) bool {
	_, ok := f.platforms[ev.Platform()]
	return ok
}

// channelFilter passes ChatMessage events in one of the configured
// channels; every other event type is rejected, matching the original's
// "only ChatMessage carries a channel" rule.
type channelFilter struct {
	channels map[string]struct{}
}

func (f channelFilter) Apply(ev event.BotEvent) bool {
	cm, ok := ev.(*event.ChatMessage)
	if !ok {
		return false
	}
	_, ok = f.channels[cm.Channel]
	return ok
}

// userRoleFilter passes ChatMessage events whose "roles" metadata
// (comma-separated, set by the platform connector) satisfies the
// configured role requirement.
type userRoleFilter struct {
	roles   []string
	anyRole bool
}

func (f userRoleFilter) Apply(ev event.BotEvent) bool {
	cm, ok := ev.(*event.ChatMessage)
	if !ok {
		return false
	}
	have := parseRoles(cm.Metadata["roles"])
	if len(f.roles) == 0 {
		return true
	}
	matched := 0
	for _, want := range f.roles {
		if _, ok := have[want]; ok {
			matched++
			if f.anyRole {
				return true
			}
		}
	}
	if f.anyRole {
		return false
	}
	return matched == len(f.roles)
}

func parseRoles(raw string) map[string]struct{} {
	out := map[string]struct{}{}
	if raw == "" {
		return out
	}
	start := 0
	for i := 0; i <= len(raw); i++ {
		if i == len(raw) || raw[i] == ',' {
			if i > start {
				out[raw[start:i]] = struct{}{}
			}
			start = i + 1
		}
	}
	return out
}

// messagePatternFilter passes ChatMessage events whose text matches the
// configured regex patterns (any-of or all-of).
type messagePatternFilter struct {
	patterns []*regexp.Regexp
	anyOf    bool
}

func compileMessagePattern(spec model.FilterSpec) (Filter, error) {
	compiled := make([]*regexp.Regexp, 0, len(spec.Patterns))
	for _, p := range spec.Patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, errs.Wrapf(errs.InvalidInput, err, "pipeline: invalid message pattern %q", p)
		}
		compiled = append(compiled, re)
	}
	return messagePatternFilter{patterns: compiled, anyOf: spec.AnyPattern}, nil
}

func (f messagePatternFilter) Apply(ev event.BotEvent) bool {
	cm, ok := ev.(*event.ChatMessage)
	if !ok {
		return false
	}
	matches := 0
	for _, p := range f.patterns {
		if p.MatchString(cm.Text) {
			matches++
		}
	}
	if f.anyOf {
		return matches > 0
	}
	return matches == len(f.patterns)
}

// timeWindowFilter passes events that occur within [startHour, endHour)
// local to timezone, wrapping around midnight when startHour > endHour.
type timeWindowFilter struct {
	startHour int
	endHour   int
	loc       *time.Location
}

func compileTimeWindow(spec model.FilterSpec) (Filter, error) {
	tz := spec.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, errs.Wrapf(errs.InvalidInput, err, "pipeline: invalid timezone %q", tz)
	}
	return timeWindowFilter{startHour: spec.StartHour, endHour: spec.EndHour, loc: loc}, nil
}

func (f timeWindowFilter) Apply(ev event.BotEvent) bool {
	hour := ev.OccurredAt().In(f.loc).Hour()
	if f.startHour <= f.endHour {
		return hour >= f.startHour && hour < f.endHour
	}
	return hour >= f.startHour || hour < f.endHour
}

// compositeFilter combines child filters with AND or OR semantics. An
// empty composite always passes, matching the original's "no filters
// configured" default.
type compositeFilter struct {
	children  []Filter
	requireAll bool
}

func compileComposite(spec model.FilterSpec) (Filter, error) {
	children := make([]Filter, 0, len(spec.Children))
	for _, child := range spec.Children {
		f, err := Compile(child)
		if err != nil {
			return nil, err
		}
		children = append(children, f)
	}
	return compositeFilter{children: children, requireAll: spec.AllOf}, nil
}

func (f compositeFilter) Apply(ev event.BotEvent) bool {
	if len(f.children) == 0 {
		return true
	}
	if f.requireAll {
		for _, c := range f.children {
			if !c.Apply(ev) {
				return false
			}
		}
		return true
	}
	for _, c := range f.children {
		if c.Apply(ev) {
			return true
		}
	}
	return false
}
