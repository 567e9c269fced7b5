package twitchirc

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine_PrivmsgWithTags(t *testing.T) {
	line := "@badges=broadcaster/1;display-name=SomeUser;mod=0;subscriber=1;user-id=1234 :someuser!someuser@someuser.tmi.twitch.tv PRIVMSG #somechannel :hello world"

	msg := parseLine(line)
	require.Equal(t, "PRIVMSG", msg.command)
	require.Equal(t, []string{"#somechannel"}, msg.params)
	assert.Equal(t, "hello world", msg.trailer)
	assert.Equal(t, "1234", tagValue(msg.tags, "user-id"))
	assert.Equal(t, "SomeUser", tagValue(msg.tags, "display-name"))
}

func TestParseRoles(t *testing.T) {
	roles := parseRoles("@badges=broadcaster/1,subscriber/12;mod=0;vip=1;subscriber=1")
	assert.Contains(t, roles, "broadcaster")
	assert.Contains(t, roles, "subscriber")
	assert.Contains(t, roles, "vip")
	assert.NotContains(t, roles, "mod")
}

func TestToChatMessage(t *testing.T) {
	c := &Connector{log: slog.Default()}
	msg := parseLine("@user-id=42;display-name=Viewer :viewer!viewer@viewer.tmi.twitch.tv PRIVMSG #chan :gg")
	ev := c.toChatMessage(msg)
	require.NotNil(t, ev)
	assert.Equal(t, "#chan", ev.Channel)
	assert.Equal(t, "42", ev.UserID)
	assert.Equal(t, "Viewer", ev.UserName)
	assert.Equal(t, "gg", ev.Text)
}

func TestToChatMessage_DropsWhenUserIDMissing(t *testing.T) {
	c := &Connector{log: slog.Default()}
	msg := parseLine(":viewer!viewer@viewer.tmi.twitch.tv PRIVMSG #chan :gg")
	assert.Nil(t, c.toChatMessage(msg))
}

func TestParseLine_Ping(t *testing.T) {
	msg := parseLine("PING :tmi.twitch.tv")
	assert.Equal(t, "PING", msg.command)
	assert.Equal(t, "tmi.twitch.tv", msg.trailer)
}
