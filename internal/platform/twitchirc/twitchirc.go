/*
Package twitchirc implements platform.Connector for Twitch IRC over a
plain TLS socket. There is no grounded third-party IRC client in this
module's retrieval pack, so the wire protocol (PASS/NICK/CAP REQ/JOIN/
PRIVMSG, tag-prefixed lines) is hand-rolled against stdlib net/tls,
following the same capability negotiation and line shape as the
original Rust client.
*/
package twitchirc

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maowbot/maowbot/internal/domain/event"
	"github.com/maowbot/maowbot/internal/domain/model"
	"github.com/maowbot/maowbot/internal/errs"
	"github.com/maowbot/maowbot/internal/platform"
)

const ircAddr = "irc.chat.twitch.tv:6697"

const capabilities = "twitch.tv/commands twitch.tv/tags twitch.tv/membership"

// Connector is a platform.Connector for one Twitch IRC account.
type Connector struct {
	cred    *model.PlatformCredential
	channel string
	log     *slog.Logger

	conn   *tls.Conn
	reader *bufio.Reader
}

// New builds a platform.ConnectorFactory bound to cred, for registration
// with platform.Manager under the "twitch_irc" key. channel is the chat
// channel to join (e.g. "#mychannel").
func New(cred *model.PlatformCredential, channel string, log *slog.Logger) platform.ConnectorFactory {
	if log == nil {
		log = slog.Default()
	}
	return func(ctx context.Context) (platform.Connector, error) {
		return &Connector{cred: cred, channel: channel, log: log}, nil
	}
}

func (c *Connector) Connect(ctx context.Context) error {
	dialer := &tls.Dialer{Config: &tls.Config{MinVersion: tls.VersionTLS12}}
	conn, err := dialer.DialContext(ctx, "tcp", ircAddr)
	if err != nil {
		return errs.Wrap(errs.Platform, err, "twitchirc: dial")
	}
	tlsConn, ok := conn.(*tls.Conn)
	if !ok {
		conn.Close()
		return errs.New(errs.Platform, "twitchirc: dial did not return a tls.Conn")
	}

	c.conn = tlsConn
	c.reader = bufio.NewReader(tlsConn)

	token := c.cred.PrimaryToken
	if !strings.HasPrefix(token, "oauth:") {
		token = "oauth:" + token
	}
	if err := c.writeLine("PASS " + token); err != nil {
		return err
	}
	if err := c.writeLine(fmt.Sprintf("NICK %s", strings.ToLower(c.cred.UserName))); err != nil {
		return err
	}
	if err := c.writeLine("CAP REQ :" + capabilities); err != nil {
		return err
	}
	if err := c.writeLine("JOIN " + c.channel); err != nil {
		return err
	}
	return nil
}

func (c *Connector) writeLine(line string) error {
	_, err := c.conn.Write([]byte(line + "\r\n"))
	if err != nil {
		return errs.Wrap(errs.Io, err, "twitchirc: write")
	}
	return nil
}

func (c *Connector) Run(ctx context.Context, out chan<- event.BotEvent) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		for {
			line, err := c.reader.ReadString('\n')
			if err != nil {
				readErr <- err
				return
			}
			select {
			case lines <- strings.TrimRight(line, "\r\n"):
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return errs.Wrap(errs.Io, err, "twitchirc: read")
		case line := <-lines:
			if line == "" {
				continue
			}
			msg := parseLine(line)
			switch msg.command {
			case "PING":
				c.writeLine("PONG :tmi.twitch.tv")
			case "PRIVMSG":
				if ev := c.toChatMessage(msg); ev != nil {
					select {
					case out <- ev:
					case <-ctx.Done():
						return ctx.Err()
					}
				}
			}
		}
	}
}

func (c *Connector) Send(ctx context.Context, channel, text string) error {
	return c.writeLine(fmt.Sprintf("PRIVMSG %s :%s", channel, text))
}

func (c *Connector) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// parsedMsg is the subset of an IRC line this connector acts on.
type parsedMsg struct {
	tags    string
	prefix  string
	command string
	params  []string
	trailer string
}

func parseLine(line string) parsedMsg {
	var msg parsedMsg
	rest := line

	if strings.HasPrefix(rest, "@") {
		if sp := strings.IndexByte(rest, ' '); sp >= 0 {
			msg.tags = rest[:sp]
			rest = rest[sp+1:]
		}
	}
	if strings.HasPrefix(rest, ":") {
		if sp := strings.IndexByte(rest, ' '); sp >= 0 {
			msg.prefix = strings.TrimPrefix(rest[:sp], ":")
			rest = rest[sp+1:]
		}
	}

	if idx := strings.Index(rest, " :"); idx >= 0 {
		msg.trailer = rest[idx+2:]
		rest = rest[:idx]
	}

	fields := strings.Fields(rest)
	if len(fields) > 0 {
		msg.command = fields[0]
		msg.params = fields[1:]
	}
	return msg
}

func tagValue(tags, key string) string {
	for _, kv := range strings.Split(strings.TrimPrefix(tags, "@"), ";") {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) == 2 && parts[0] == key {
			return parts[1]
		}
	}
	return ""
}

func parseRoles(tags string) []string {
	var roles []string
	if badges := tagValue(tags, "badges"); badges != "" {
		for _, part := range strings.Split(badges, ",") {
			if badge, _, ok := strings.Cut(part, "/"); ok {
				roles = append(roles, badge)
			}
		}
	}
	if tagValue(tags, "mod") == "1" {
		roles = append(roles, "mod")
	}
	if tagValue(tags, "vip") == "1" {
		roles = append(roles, "vip")
	}
	if tagValue(tags, "subscriber") == "1" {
		roles = append(roles, "subscriber")
	}
	return roles
}

// toChatMessage converts a parsed PRIVMSG into a ChatMessage, dropping it
// if Twitch didn't tag it with the user's numeric id: every ChatMessage
// must carry a non-empty UserID, and a tagless line (malformed relay,
// stripped CAP REQ, etc.) can't satisfy that.
func (c *Connector) toChatMessage(msg parsedMsg) *event.ChatMessage {
	if len(msg.params) == 0 {
		return nil
	}
	channel := msg.params[0]
	userID := tagValue(msg.tags, "user-id")
	if userID == "" {
		c.log.Debug("twitchirc: dropping PRIVMSG with no user-id tag", "channel", channel)
		return nil
	}
	displayName := tagValue(msg.tags, "display-name")
	if displayName == "" {
		if name, _, ok := strings.Cut(msg.prefix, "!"); ok {
			displayName = name
		}
	}

	meta := map[string]string{}
	if roles := parseRoles(msg.tags); len(roles) > 0 {
		meta["roles"] = strings.Join(roles, ",")
	}

	return &event.ChatMessage{
		PlatformName: event.PlatformTwitchIRC,
		Channel:      channel,
		UserID:       userID,
		UserName:     displayName,
		Text:         msg.trailer,
		Timestamp:    time.Now(),
		Metadata:     meta,
	}
}
