package domain

import "time"

// Message is a single chat message as received from the platform.
// Immutable once constructed.
type Message struct {
	ID                 string
	ChannelID          string
	AuthorID           string
	AuthorName         string
	Content            string
	Timestamp          time.Time
	FromSupportChannel bool
	Bot                bool
}

// Reaction is an emoji reaction added to a message.
type Reaction struct {
	MessageID string
	ChannelID string
	UserID    string
	UserName  string
	Emoji     string
	Bot       bool
}

// ReplyKind selects the rendering used by the channel adapter.
type ReplyKind string

const (
	ReplyAnswer     ReplyKind = "answer"
	ReplyHint       ReplyKind = "hint"
	ReplyEscalation ReplyKind = "escalation"
)

// Reply is the platform-agnostic shape of an outbound bot response.
// The channel adapter owns the concrete rendering (embeds, colors).
type Reply struct {
	Kind         ReplyKind
	Title        string
	Body         string
	Category     string
	DocsLink     string
	WithFeedback bool
}
