package eventbus

import (
	"encoding/json"

	"github.com/maowbot/maowbot/internal/domain/event"
	"github.com/maowbot/maowbot/internal/errs"
)

// envelope is the wire form an event.BotEvent is marshaled to before it
// crosses the watermill transport. The concrete Go type is not
// preserved by encoding/json on its own, so the event type string
// doubles as a discriminator for decode.
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func encode(ev event.BotEvent) ([]byte, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, errs.Wrap(errs.Parse, err, "marshal event payload")
	}
	env := envelope{Type: ev.EventType(), Payload: payload}
	out, err := json.Marshal(env)
	if err != nil {
		return nil, errs.Wrap(errs.Parse, err, "marshal event envelope")
	}
	return out, nil
}

func decode(raw []byte) (event.BotEvent, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errs.Wrap(errs.Parse, err, "unmarshal event envelope")
	}

	switch env.Type {
	case event.TypeChatMessage:
		var m event.ChatMessage
		if err := json.Unmarshal(env.Payload, &m); err != nil {
			return nil, errs.Wrap(errs.Parse, err, "unmarshal chat_message payload")
		}
		return &m, nil
	case event.TypeTick:
		var t event.Tick
		if err := json.Unmarshal(env.Payload, &t); err != nil {
			return nil, errs.Wrap(errs.Parse, err, "unmarshal tick payload")
		}
		return &t, nil
	case event.TypeSystemMessage:
		var s event.SystemMessage
		if err := json.Unmarshal(env.Payload, &s); err != nil {
			return nil, errs.Wrap(errs.Parse, err, "unmarshal system_message payload")
		}
		return &s, nil
	case event.TypeTwitchEventSub:
		var tv event.TwitchEventSub
		if err := json.Unmarshal(env.Payload, &tv); err != nil {
			return nil, errs.Wrap(errs.Parse, err, "unmarshal twitch_eventsub payload")
		}
		return &tv, nil
	default:
		return nil, errs.Newf(errs.Parse, "eventbus: unknown event type %q", env.Type)
	}
}
