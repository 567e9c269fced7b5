// Package event defines BotEvent, the tagged union that flows over the
// event bus (C1), the platform manager (C4), the pipeline (C6), and the
// plugin relay (C7).
//
// Per the design notes, handlers declare the event_type strings they care
// about rather than re-matching on the concrete Go type in every handler;
// BotEvent.EventType and BotEvent.Platform are the stable accessors that
// make that possible.
package event

import "time"

// Platform identifies a connected chat/streaming platform.
type Platform string

const (
	PlatformTwitchIRC      Platform = "twitch_irc"
	PlatformTwitchEventSub Platform = "twitch_eventsub"
	PlatformDiscord        Platform = "discord"
	PlatformVRChat         Platform = "vrchat"
	PlatformOBS            Platform = "obs"
	PlatformPlugin         Platform = "plugin"
)

// Stable wire keys for BotEvent.EventType(). These never change shape once
// published; platform-specific nuance lives in the variant's own fields.
const (
	TypeChatMessage    = "chat_message"
	TypeTick           = "tick"
	TypeSystemMessage  = "system_message"
	TypeTwitchEventSub = "twitch_eventsub"
)

// BotEvent is the common interface every normalized event implements.
type BotEvent interface {
	// EventType returns the stable wire key for this event's variant.
	EventType() string
	// Platform returns the originating platform, or "" for events (like
	// Tick) that have no single platform origin.
	Platform() Platform
	// OccurredAt is when the event was produced, not when it is observed
	// by any particular subscriber.
	OccurredAt() time.Time
}

// ChatMessage is a normalized inbound or relayed chat message.
type ChatMessage struct {
	PlatformName Platform
	Channel      string
	UserID       string
	UserName     string
	Text         string
	Timestamp    time.Time
	Metadata     map[string]string
}

func (ChatMessage) EventType() string           { return TypeChatMessage }
func (e ChatMessage) Platform() Platform        { return e.PlatformName }
func (e ChatMessage) OccurredAt() time.Time     { return e.Timestamp }

// Tick is a periodic heartbeat event with no platform of origin, used by
// handlers that need to run on a wall-clock cadence without owning their
// own timer.
type Tick struct {
	At time.Time
}

func (Tick) EventType() string       { return TypeTick }
func (Tick) Platform() Platform      { return "" }
func (t Tick) OccurredAt() time.Time { return t.At }

// SystemMessage carries an operator-facing or diagnostic notice through
// the same pipe as chat traffic (e.g. "plugin X disconnected").
type SystemMessage struct {
	Text string
	At   time.Time
}

func (SystemMessage) EventType() string       { return TypeSystemMessage }
func (SystemMessage) Platform() Platform      { return "" }
func (s SystemMessage) OccurredAt() time.Time { return s.At }

// TwitchEventSub carries a raw EventSub notification. Variant is the
// EventSub subscription type (e.g. "channel.channel_points_custom_reward_
// redemption.add"); Payload is the decoded JSON body, kept as a map so
// handlers that only care about a few fields don't need a full schema.
type TwitchEventSub struct {
	Variant string
	Payload map[string]any
	At      time.Time
}

func (TwitchEventSub) EventType() string       { return TypeTwitchEventSub }
func (TwitchEventSub) Platform() Platform      { return PlatformTwitchEventSub }
func (e TwitchEventSub) OccurredAt() time.Time { return e.At }

// ChannelPointsRedemptionVariant is the EventSub subscription type
// recognized by the redeem dispatcher (C10).
const ChannelPointsRedemptionVariant = "channel.channel_points_custom_reward_redemption.add"

// RedemptionPayload is the subset of the EventSub redemption payload the
// core understands; other fields pass through untouched in the raw map.
type RedemptionPayload struct {
	RewardID   string
	RewardName string
	UserID     string
	UserName   string
	UserInput  string
}

// ParseRedemptionPayload extracts the fields dispatch (C10) needs from a
// raw EventSub payload map. Missing fields are left as the zero value;
// callers decide whether that's fatal.
func ParseRedemptionPayload(payload map[string]any) RedemptionPayload {
	get := func(k string) string {
		if v, ok := payload[k].(string); ok {
			return v
		}
		return ""
	}
	reward, _ := payload["reward"].(map[string]any)
	rewardID, rewardName := "", ""
	if reward != nil {
		if v, ok := reward["id"].(string); ok {
			rewardID = v
		}
		if v, ok := reward["title"].(string); ok {
			rewardName = v
		}
	}
	return RedemptionPayload{
		RewardID:   rewardID,
		RewardName: rewardName,
		UserID:     get("user_id"),
		UserName:   get("user_name"),
		UserInput:  get("user_input"),
	}
}
