package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maowbot/maowbot/internal/domain/event"
	"github.com/maowbot/maowbot/internal/domain/model"
)

func TestPlatformFilter(t *testing.T) {
	f, err := Compile(model.FilterSpec{Kind: model.FilterPlatform, Platforms: []string{"twitch_irc"}})
	require.NoError(t, err)

	assert.True(t, f.Apply(&event.ChatMessage{PlatformName: event.PlatformTwitchIRC}))
	assert.False(t, f.Apply(&event.ChatMessage{PlatformName: event.PlatformDiscord}))
}

func TestChannelFilter(t *testing.T) {
	f, err := Compile(model.FilterSpec{Kind: model.FilterChannel, Channels: []string{"#foo"}})
	require.NoError(t, err)

	assert.True(t, f.Apply(&event.ChatMessage{Channel: "#foo"}))
	assert.False(t, f.Apply(&event.ChatMessage{Channel: "#bar"}))
	assert.False(t, f.Apply(&event.Tick{}))
}

func TestUserRoleFilter_AllOf(t *testing.T) {
	f, err := Compile(model.FilterSpec{Kind: model.FilterUserRole, Roles: []string{"mod", "vip"}, AnyRole: false})
	require.NoError(t, err)

	assert.True(t, f.Apply(&event.ChatMessage{Metadata: map[string]string{"roles": "mod,vip,subscriber"}}))
	assert.False(t, f.Apply(&event.ChatMessage{Metadata: map[string]string{"roles": "mod"}}))
}

func TestUserRoleFilter_AnyOf(t *testing.T) {
	f, err := Compile(model.FilterSpec{Kind: model.FilterUserRole, Roles: []string{"mod", "vip"}, AnyRole: true})
	require.NoError(t, err)

	assert.True(t, f.Apply(&event.ChatMessage{Metadata: map[string]string{"roles": "vip"}}))
	assert.False(t, f.Apply(&event.ChatMessage{Metadata: map[string]string{"roles": "subscriber"}}))
}

func TestMessagePatternFilter(t *testing.T) {
	f, err := Compile(model.FilterSpec{Kind: model.FilterMessagePattern, Patterns: []string{"^!hello"}, AnyPattern: false})
	require.NoError(t, err)

	assert.True(t, f.Apply(&event.ChatMessage{Text: "!hello world"}))
	assert.False(t, f.Apply(&event.ChatMessage{Text: "hi there"}))
}

func TestTimeWindowFilter_WrapsAroundMidnight(t *testing.T) {
	f, err := Compile(model.FilterSpec{Kind: model.FilterTimeWindow, StartHour: 22, EndHour: 6, Timezone: "UTC"})
	require.NoError(t, err)

	night := time.Date(2026, 1, 1, 23, 0, 0, 0, time.UTC)
	day := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, f.Apply(&event.Tick{At: night}))
	assert.False(t, f.Apply(&event.Tick{At: day}))
}

func TestCompositeFilter_AndOr(t *testing.T) {
	platform, err := Compile(model.FilterSpec{Kind: model.FilterPlatform, Platforms: []string{"twitch_irc"}})
	require.NoError(t, err)
	channel, err := Compile(model.FilterSpec{Kind: model.FilterChannel, Channels: []string{"#foo"}})
	require.NoError(t, err)

	and := compositeFilter{children: []Filter{platform, channel}, requireAll: true}
	assert.True(t, and.Apply(&event.ChatMessage{PlatformName: event.PlatformTwitchIRC, Channel: "#foo"}))
	assert.False(t, and.Apply(&event.ChatMessage{PlatformName: event.PlatformTwitchIRC, Channel: "#bar"}))

	or := compositeFilter{children: []Filter{platform, channel}, requireAll: false}
	assert.True(t, or.Apply(&event.ChatMessage{PlatformName: event.PlatformDiscord, Channel: "#foo"}))
}

func TestCompositeFilter_EmptyAlwaysPasses(t *testing.T) {
	c := compositeFilter{}
	assert.True(t, c.Apply(&event.Tick{}))
}
