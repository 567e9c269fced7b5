package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maowbot/maowbot/internal/domain/event"
	"github.com/maowbot/maowbot/internal/domain/model"
	"github.com/maowbot/maowbot/internal/registry"
)

func TestPipeline_Evaluate_DispatchesOnMatch(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register(model.HandlerRegistration{ID: "greet", Enabled: true, Priority: 1}))

	var called int
	handlers := map[string]HandlerFunc{
		"greet": func(ctx context.Context, ev event.BotEvent) error {
			called++
			return nil
		},
	}

	p := New(reg, handlers, nil)
	require.NoError(t, p.AddDefinition(model.PipelineDefinition{
		ID:         "p1",
		Platforms:  map[string]struct{}{"twitch_irc": {}},
		EventTypes: map[string]struct{}{event.TypeChatMessage: {}},
		HandlerIDs: []string{"greet"},
	}))

	err := p.Evaluate(context.Background(), &event.ChatMessage{PlatformName: event.PlatformTwitchIRC, Text: "hi"})
	require.NoError(t, err)
	assert.Equal(t, 1, called)
}

func TestPipeline_Evaluate_SkipsNonMatchingScope(t *testing.T) {
	reg := registry.New()
	var called int
	handlers := map[string]HandlerFunc{
		"h": func(ctx context.Context, ev event.BotEvent) error { called++; return nil },
	}
	require.NoError(t, reg.Register(model.HandlerRegistration{ID: "h", Enabled: true}))

	p := New(reg, handlers, nil)
	require.NoError(t, p.AddDefinition(model.PipelineDefinition{
		ID:         "p1",
		Platforms:  map[string]struct{}{"discord": {}},
		HandlerIDs: []string{"h"},
	}))

	require.NoError(t, p.Evaluate(context.Background(), &event.ChatMessage{PlatformName: event.PlatformTwitchIRC}))
	assert.Equal(t, 0, called)
}

func TestPipeline_StopOnMatch_HaltsLaterPipelines(t *testing.T) {
	reg := registry.New()
	var order []string
	handlers := map[string]HandlerFunc{
		"first":  func(ctx context.Context, ev event.BotEvent) error { order = append(order, "first"); return nil },
		"second": func(ctx context.Context, ev event.BotEvent) error { order = append(order, "second"); return nil },
	}
	require.NoError(t, reg.Register(model.HandlerRegistration{ID: "first", Enabled: true}))
	require.NoError(t, reg.Register(model.HandlerRegistration{ID: "second", Enabled: true}))

	p := New(reg, handlers, nil)
	require.NoError(t, p.AddDefinition(model.PipelineDefinition{ID: "p1", HandlerIDs: []string{"first"}, StopOnMatch: true}))
	require.NoError(t, p.AddDefinition(model.PipelineDefinition{ID: "p2", HandlerIDs: []string{"second"}}))

	require.NoError(t, p.Evaluate(context.Background(), &event.Tick{}))
	assert.Equal(t, []string{"first"}, order)
}

func TestPipeline_RemoveDefinition(t *testing.T) {
	p := New(registry.New(), nil, nil)
	require.NoError(t, p.AddDefinition(model.PipelineDefinition{ID: "p1"}))
	require.NoError(t, p.RemoveDefinition("p1"))
	require.Error(t, p.RemoveDefinition("p1"))
}
