package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maowbot/maowbot/internal/domain/event"
	"github.com/maowbot/maowbot/internal/domain/model"
)

func reg(id string, priority int) model.HandlerRegistration {
	return model.HandlerRegistration{
		ID:         id,
		Name:       id,
		Platforms:  map[event.Platform]struct{}{event.PlatformTwitchIRC: {}},
		EventTypes: map[string]struct{}{event.TypeChatMessage: {}},
		Priority:   priority,
		Enabled:    true,
	}
}

func TestRegistry_RegisterDuplicateFails(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(reg("h1", 10)))
	err := r.Register(reg("h1", 5))
	require.Error(t, err)
}

func TestRegistry_GetFor_SortsByPriorityThenInsertion(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(reg("low-priority-first", 20)))
	require.NoError(t, r.Register(reg("high-priority", 5)))
	require.NoError(t, r.Register(reg("same-priority-a", 5)))
	require.NoError(t, r.Register(reg("same-priority-b", 5)))

	got := r.GetFor(event.PlatformTwitchIRC, event.TypeChatMessage)
	ids := make([]string, len(got))
	for i, h := range got {
		ids[i] = h.ID
	}
	assert.Equal(t, []string{"high-priority", "same-priority-a", "same-priority-b", "low-priority-first"}, ids)
}

func TestRegistry_Unregister(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(reg("h1", 1)))
	require.NoError(t, r.Unregister("h1"))
	require.Error(t, r.Unregister("h1"))

	got := r.GetFor(event.PlatformTwitchIRC, event.TypeChatMessage)
	assert.Empty(t, got)
}

func TestRegistry_SetEnabled_ExcludesFromGetFor(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(reg("h1", 1)))
	require.NoError(t, r.SetEnabled("h1", false))
	assert.Empty(t, r.GetFor(event.PlatformTwitchIRC, event.TypeChatMessage))

	require.NoError(t, r.SetEnabled("h1", true))
	assert.Len(t, r.GetFor(event.PlatformTwitchIRC, event.TypeChatMessage), 1)
}

func TestRegistry_GetForEvent_MatchesPlatformAndType(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(reg("h1", 1)))

	ev := &event.ChatMessage{PlatformName: event.PlatformTwitchIRC}
	matches := r.GetForEvent(ev)
	assert.Len(t, matches, 1)

	other := &event.ChatMessage{PlatformName: event.PlatformDiscord}
	assert.Empty(t, r.GetForEvent(other))
}

func TestRegistry_EmptyPlatformsMatchesAny(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(model.HandlerRegistration{
		ID: "global", EventTypes: map[string]struct{}{event.TypeChatMessage: {}}, Enabled: true,
	}))

	assert.Len(t, r.GetFor(event.PlatformDiscord, event.TypeChatMessage), 1)
	assert.Len(t, r.GetFor(event.PlatformTwitchIRC, event.TypeChatMessage), 1)
}

func TestRegistry_List_ReturnsAllRegardlessOfEnabled(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(reg("h1", 1)))
	require.NoError(t, r.SetEnabled("h1", false))
	require.NoError(t, r.Register(reg("h2", 2)))

	list := r.List()
	assert.Len(t, list, 2)
}
