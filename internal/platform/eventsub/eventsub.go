/*
Package eventsub implements platform.Connector for Twitch EventSub's
WebSocket transport: a welcome message carries a session ID, which the
caller must separately register with Twitch's Helix API for each
subscription type (channel-points redemptions, etc.); this connector
only owns the socket and the notification decode.
*/
package eventsub

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/maowbot/maowbot/internal/domain/event"
	"github.com/maowbot/maowbot/internal/domain/model"
	"github.com/maowbot/maowbot/internal/errs"
	"github.com/maowbot/maowbot/internal/platform"
)

const defaultWSURL = "wss://eventsub.wss.twitch.tv/ws"

type envelope struct {
	Metadata struct {
		MessageType      string `json:"message_type"`
		SubscriptionType string `json:"subscription_type"`
	} `json:"metadata"`
	Payload struct {
		Session *struct {
			ID string `json:"id"`
		} `json:"session"`
		Subscription *struct {
			Type string `json:"type"`
		} `json:"subscription"`
		Event json.RawMessage `json:"event"`
	} `json:"payload"`
}

// Connector is a platform.Connector for the Twitch EventSub WebSocket.
type Connector struct {
	cred *model.PlatformCredential
	conn *websocket.Conn

	// SessionID is set once the welcome message arrives; the caller
	// (wiring code that owns the Helix client) reads this to create
	// subscriptions against the transport:websocket session.
	SessionID string
}

// New builds a platform.ConnectorFactory bound to cred, for registration
// under the "twitch_eventsub" key.
func New(cred *model.PlatformCredential) platform.ConnectorFactory {
	return func(ctx context.Context) (platform.Connector, error) {
		return &Connector{cred: cred}, nil
	}
}

func (c *Connector) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, defaultWSURL, nil)
	if err != nil {
		return errs.Wrap(errs.Platform, err, "eventsub: dial")
	}
	c.conn = conn

	var welcome envelope
	if err := conn.ReadJSON(&welcome); err != nil {
		conn.Close()
		return errs.Wrap(errs.Platform, err, "eventsub: read welcome")
	}
	if welcome.Metadata.MessageType != "session_welcome" || welcome.Payload.Session == nil {
		conn.Close()
		return errs.New(errs.Platform, "eventsub: unexpected first message, expected session_welcome")
	}
	c.SessionID = welcome.Payload.Session.ID
	return nil
}

func (c *Connector) Run(ctx context.Context, out chan<- event.BotEvent) error {
	go func() {
		<-ctx.Done()
		c.conn.Close()
	}()

	for {
		var env envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errs.Wrap(errs.Io, err, "eventsub: read frame")
		}

		switch env.Metadata.MessageType {
		case "notification":
			if env.Payload.Subscription == nil {
				continue
			}
			var payload map[string]any
			_ = json.Unmarshal(env.Payload.Event, &payload)

			ev := &event.TwitchEventSub{
				Variant: env.Payload.Subscription.Type,
				Payload: payload,
				At:      time.Now(),
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
		case "session_keepalive", "session_reconnect":
			// no normalized event; the runtime's own reconnect/backoff
			// loop handles connection churn.
		}
	}
}

// Send is unsupported: EventSub is receive-only.
func (c *Connector) Send(ctx context.Context, channel, text string) error {
	return errs.New(errs.InvalidInput, "eventsub: connector is receive-only")
}

func (c *Connector) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
