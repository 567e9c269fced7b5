package model

// ChatMessageRecord is the persisted form of an inbound chat message, kept
// for moderation history, analysis, and the maintenance task's monthly
// archive/compaction cycle.
type ChatMessageRecord struct {
	MessageID             string
	Platform              string
	Channel               string
	UserID                string
	Text                  string
	TimestampEpochSeconds int64
	Metadata              map[string]string
}
