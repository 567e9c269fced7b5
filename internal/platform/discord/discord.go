// Package discord implements platform.Connector for Discord using
// bwmarrin/discordgo's gateway session.
package discord

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/maowbot/maowbot/internal/domain/event"
	"github.com/maowbot/maowbot/internal/domain/model"
	"github.com/maowbot/maowbot/internal/errs"
	"github.com/maowbot/maowbot/internal/platform"
)

// Connector is a platform.Connector backed by a discordgo.Session.
type Connector struct {
	cred    *model.PlatformCredential
	session *discordgo.Session
	relay   chan<- event.BotEvent
}

// New builds a platform.ConnectorFactory bound to cred, for registration
// under the "discord" key.
func New(cred *model.PlatformCredential) platform.ConnectorFactory {
	return func(ctx context.Context) (platform.Connector, error) {
		return &Connector{cred: cred}, nil
	}
}

func (c *Connector) Connect(ctx context.Context) error {
	session, err := discordgo.New("Bot " + c.cred.PrimaryToken)
	if err != nil {
		return errs.Wrap(errs.Platform, err, "discord: create session")
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsMessageContent

	c.session = session
	session.AddHandler(c.onMessageCreate)

	if err := session.Open(); err != nil {
		return errs.Wrap(errs.Platform, err, "discord: open gateway")
	}
	return nil
}

func (c *Connector) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}
	if c.relay == nil {
		return
	}
	c.relay <- &event.ChatMessage{
		PlatformName: event.PlatformDiscord,
		Channel:      m.ChannelID,
		UserID:       m.Author.ID,
		UserName:     m.Author.Username,
		Text:         m.Content,
		Timestamp:    time.Now(),
	}
}

func (c *Connector) Run(ctx context.Context, out chan<- event.BotEvent) error {
	c.relay = out
	<-ctx.Done()
	return ctx.Err()
}

func (c *Connector) Send(ctx context.Context, channel, text string) error {
	_, err := c.session.ChannelMessageSend(channel, text)
	if err != nil {
		return errs.Wrap(errs.Platform, err, "discord: send message")
	}
	return nil
}

func (c *Connector) Close() error {
	if c.session == nil {
		return nil
	}
	return c.session.Close()
}
