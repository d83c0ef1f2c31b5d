// Package bus carries inbound platform traffic (messages and reactions)
// from the channel adapter to the triage coordinator.
package bus

import (
	"log/slog"
	"sync"
	"time"

	"supportbot/internal/domain"
)

const publishTimeout = 10 * time.Second

// InMemoryBus is a Go-channel based message bus for in-process delivery.
type InMemoryBus struct {
	messages  chan domain.Message
	reactions chan domain.Reaction
	mu        sync.RWMutex
	closed    bool
	logger    *slog.Logger
}

// New creates a bus with the given per-stream buffer size.
func New(bufferSize int, logger *slog.Logger) *InMemoryBus {
	if bufferSize <= 0 {
		bufferSize = 100
	}
	return &InMemoryBus{
		messages:  make(chan domain.Message, bufferSize),
		reactions: make(chan domain.Reaction, bufferSize),
		logger:    logger,
	}
}

// Publish delivers an inbound message. Blocks up to 10 seconds when the bus
// is full instead of dropping.
func (b *InMemoryBus) Publish(msg domain.Message) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.logger.Warn("attempted to publish to closed bus")
		return
	}

	select {
	case b.messages <- msg:
	default:
		b.logger.Warn("message bus full, waiting...", "user", msg.AuthorName)
		timer := time.NewTimer(publishTimeout)
		defer timer.Stop()
		select {
		case b.messages <- msg:
			b.logger.Info("message delivered after wait", "user", msg.AuthorName)
		case <-timer.C:
			b.logger.Error("message dropped: bus full for 10s",
				"user", msg.AuthorName,
				"message", msg.ID,
			)
		}
	}
}

// PublishReaction delivers a reaction. Reactions are best-effort: a full bus
// drops them immediately, since a lost reaction only delays feedback.
func (b *InMemoryBus) PublishReaction(r domain.Reaction) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		b.logger.Warn("attempted to publish reaction to closed bus")
		return
	}

	select {
	case b.reactions <- r:
	default:
		b.logger.Warn("reaction bus full, dropping", "message", r.MessageID, "emoji", r.Emoji)
	}
}

func (b *InMemoryBus) Subscribe() <-chan domain.Message {
	return b.messages
}

func (b *InMemoryBus) SubscribeReactions() <-chan domain.Reaction {
	return b.reactions
}

func (b *InMemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.closed {
		b.closed = true
		close(b.messages)
		close(b.reactions)
	}
}
