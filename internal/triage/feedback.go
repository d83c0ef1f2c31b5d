package triage

import (
	"sync"

	"supportbot/internal/metrics"
)

// PendingReply holds everything needed to act on feedback for one posted
// answer, keyed by the ID of the bot's reply message.
type PendingReply struct {
	UserID     string
	UserName   string
	Question   string
	FAQID      string
	Confidence float64

	// ChannelID and MessageID locate the user's original question, so an
	// escalation can reply to it rather than to the bot's own answer.
	ChannelID string
	MessageID string
}

// Tracker remembers posted answers that are still awaiting a feedback
// reaction. Resolve hands out each entry at most once, so a burst of
// reactions on the same reply produces a single escalation.
type Tracker struct {
	mu      sync.Mutex
	pending map[string]PendingReply
}

func NewTracker() *Tracker {
	return &Tracker{pending: make(map[string]PendingReply)}
}

// Register records a posted reply as awaiting feedback.
func (t *Tracker) Register(replyID string, p PendingReply) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending[replyID] = p
	metrics.PendingFeedback.Set(int64(len(t.pending)))
}

// Resolve removes and returns the entry for replyID. The second return is
// false when the reply is unknown or was already resolved.
func (t *Tracker) Resolve(replyID string) (PendingReply, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.pending[replyID]
	if ok {
		delete(t.pending, replyID)
		metrics.PendingFeedback.Set(int64(len(t.pending)))
	}
	return p, ok
}

// ResolveFor is Resolve restricted to the user who asked the question.
// Reactions from anyone else leave the entry live.
func (t *Tracker) ResolveFor(replyID, userID string) (PendingReply, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.pending[replyID]
	if !ok || p.UserID != userID {
		return PendingReply{}, false
	}
	delete(t.pending, replyID)
	metrics.PendingFeedback.Set(int64(len(t.pending)))
	return p, true
}

// Len reports how many replies are still awaiting feedback.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}
