package domain

import "context"

// ChatChannel is the chat-platform boundary consumed by the triage engine.
// Implementations render Reply values and answer history queries; the
// engine never touches platform types directly.
type ChatChannel interface {
	// BotID returns the bot's own user ID so handlers can skip self-traffic.
	BotID() string

	// Reply posts a reply to the given message and returns the ID of the
	// emitted message.
	Reply(ctx context.Context, channelID, messageID string, r Reply) (string, error)

	AddReaction(ctx context.Context, channelID, messageID, emoji string) error
	ClearReactions(ctx context.Context, channelID, messageID string) error

	// History returns up to limit messages from the channel. When afterID is
	// non-empty only messages posted strictly after it are returned.
	History(ctx context.Context, channelID, afterID string, limit int) ([]Message, error)

	FetchMessage(ctx context.Context, channelID, messageID string) (*Message, error)
}

// MessageBus routes inbound platform events to the triage engine.
type MessageBus interface {
	Publish(msg Message)
	PublishReaction(r Reaction)
	Subscribe() <-chan Message
	SubscribeReactions() <-chan Reaction
	Close()
}
