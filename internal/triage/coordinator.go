// Package triage is the decision core of the support bot: it admits
// messages through the security guard, matches them against the FAQ set,
// waits out the response delay, and posts answers, hints, or escalations.
package triage

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"supportbot/internal/domain"
	"supportbot/internal/guard"
	"supportbot/internal/metrics"
)

const (
	thumbsUp   = "👍"
	thumbsDown = "👎"

	defaultConcurrency   = 4
	defaultLookbackLimit = 20

	escalationBody = "Hey team! 👋 User needs help with this question."
)

// Matcher is the FAQ matching chain consumed by the coordinator.
type Matcher interface {
	Match(ctx context.Context, text string) (domain.MatchResult, error)
	MatchDeterministic(ctx context.Context, text string) (domain.MatchResult, error)
}

// Coordinator runs the triage pipeline for every support-channel message:
// guard → match → classify → delayed reply with a team-preemption check.
// Each message is handled on its own goroutine; a semaphore bounds the
// active triage work, but never the response delay.
type Coordinator struct {
	channel  domain.ChatChannel
	bus      domain.MessageBus
	guard    *guard.Guard
	matcher  Matcher
	feedback *Tracker
	recorder domain.EventRecorder
	logger   *slog.Logger

	responseDelay time.Duration
	highThreshold float64
	lowThreshold  float64
	lookbackLimit int
	skipPatterns  []string
	team          map[string]bool
	concurrency   int
	sem           chan struct{}
}

// CoordinatorConfig carries all dependencies and tuning parameters.
type CoordinatorConfig struct {
	Channel  domain.ChatChannel
	Bus      domain.MessageBus
	Guard    *guard.Guard
	Matcher  Matcher
	Feedback *Tracker
	Recorder domain.EventRecorder
	Logger   *slog.Logger

	ResponseDelay time.Duration
	HighThreshold float64
	LowThreshold  float64
	LookbackLimit int
	SkipPatterns  []string
	TeamUsernames []string
	Concurrency   int
}

func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.LookbackLimit <= 0 {
		cfg.LookbackLimit = defaultLookbackLimit
	}
	team := make(map[string]bool, len(cfg.TeamUsernames))
	for _, name := range cfg.TeamUsernames {
		team[strings.ToLower(name)] = true
	}
	skip := make([]string, len(cfg.SkipPatterns))
	for i, p := range cfg.SkipPatterns {
		skip[i] = strings.ToLower(p)
	}
	return &Coordinator{
		channel:       cfg.Channel,
		bus:           cfg.Bus,
		guard:         cfg.Guard,
		matcher:       cfg.Matcher,
		feedback:      cfg.Feedback,
		recorder:      cfg.Recorder,
		logger:        cfg.Logger,
		responseDelay: cfg.ResponseDelay,
		highThreshold: cfg.HighThreshold,
		lowThreshold:  cfg.LowThreshold,
		lookbackLimit: cfg.LookbackLimit,
		skipPatterns:  skip,
		team:          team,
		concurrency:   cfg.Concurrency,
		sem:           make(chan struct{}, cfg.Concurrency),
	}
}

// Run consumes inbound messages and reactions until ctx is cancelled.
// Every message gets its own goroutine so an answer waiting out its delay
// never holds up intake; the semaphore inside Process bounds only the
// active triage work. Cancellation silently abandons any replies still
// waiting out their delay.
func (c *Coordinator) Run(ctx context.Context) {
	c.logger.Info("triage coordinator started",
		"delay", c.responseDelay, "concurrency", c.concurrency)

	messages := c.bus.Subscribe()
	reactions := c.bus.SubscribeReactions()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("triage coordinator stopping")
			return
		case msg, ok := <-messages:
			if !ok {
				c.logger.Info("message channel closed, coordinator stopping")
				return
			}
			go c.Process(ctx, msg)
		case r, ok := <-reactions:
			if !ok {
				c.logger.Info("reaction channel closed, coordinator stopping")
				return
			}
			go c.HandleReaction(ctx, r)
		}
	}
}

// acquire takes a semaphore slot, giving up on cancellation.
func (c *Coordinator) acquire(ctx context.Context) bool {
	select {
	case c.sem <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Coordinator) release() { <-c.sem }

// Process runs the full pipeline for one message. The semaphore bounds the
// matching and posting stages; the slot is released for the duration of the
// response delay, so any number of delayed answers can be in flight at once.
func (c *Coordinator) Process(ctx context.Context, msg domain.Message) {
	if msg.Bot || msg.AuthorID == c.channel.BotID() {
		return
	}
	if !msg.FromSupportChannel {
		return
	}
	metrics.MessagesTotal.Inc()

	if !c.acquire(ctx) {
		return
	}
	text, result, answer := c.triage(ctx, msg)
	c.release()
	if !answer {
		return
	}

	if !c.waitDelay(ctx) {
		return
	}

	if !c.acquire(ctx) {
		return
	}
	defer c.release()

	if c.teamResponded(ctx, msg) {
		c.logger.Info("team responded first, standing down",
			"user", msg.AuthorName, "faq", result.FAQ.ID)
		metrics.TeamFirst.Inc()
		c.recordSupport(ctx, domain.SupportEvent{
			User: msg.AuthorName, UserID: msg.AuthorID, Question: text,
			FAQID: result.FAQ.ID, Confidence: result.Confidence,
			Action: domain.ActionTeamFirst,
		})
		return
	}

	c.postAnswer(ctx, msg, text, result)
}

// triage is the bounded stage: guard, sanitize, match, classify, and any
// immediate effect (skip, retire, hint). It returns the sanitized text and
// match when a delayed high-confidence answer is still owed.
func (c *Coordinator) triage(ctx context.Context, msg domain.Message) (string, domain.MatchResult, bool) {
	// Team members are never triaged. A team message also means feedback on
	// the bot's latest answer is moot, so its reactions come off.
	if c.isTeamMember(msg.AuthorName) {
		c.retireLatestAnswer(ctx, msg.ChannelID)
		return "", domain.MatchResult{}, false
	}

	if pattern, ok := c.matchesSkipPattern(msg.Content); ok {
		c.logger.Debug("message matches skip pattern", "user", msg.AuthorName, "pattern", pattern)
		c.recordSupport(ctx, domain.SupportEvent{
			User: msg.AuthorName, UserID: msg.AuthorID,
			Question: guard.Sanitize(msg.Content, c.guard.MaxLen()),
			Action:   domain.ActionSkipped,
		})
		return "", domain.MatchResult{}, false
	}

	decision := c.guard.Admit(ctx, msg.AuthorID, msg.Content)
	text := guard.Sanitize(msg.Content, c.guard.MaxLen())
	if text == "" {
		return "", domain.MatchResult{}, false
	}

	matchStart := time.Now()
	var result domain.MatchResult
	var err error
	if decision.Degraded() {
		c.logger.Info("degraded processing, deterministic match only",
			"user", msg.AuthorName, "reason", decision.Kind)
		result, err = c.matcher.MatchDeterministic(ctx, text)
	} else {
		result, err = c.matcher.Match(ctx, text)
	}
	metrics.MatchLatency.Observe(time.Since(matchStart).Seconds())
	if err != nil {
		c.logger.Error("all match strategies failed", "user", msg.AuthorName, "err", err)
		return "", domain.MatchResult{}, false
	}

	action := c.Classify(result.Confidence)
	if action == domain.ActionIgnored || !result.Matched() {
		c.recordSupport(ctx, domain.SupportEvent{
			User: msg.AuthorName, UserID: msg.AuthorID, Question: text,
			Confidence: result.Confidence, Action: domain.ActionIgnored,
		})
		return "", domain.MatchResult{}, false
	}

	// Medium confidence: quick pointer right away, the team still owns the
	// question. Only high-confidence answers wait out the delay.
	if action == domain.ActionPartialHint {
		c.postHint(ctx, msg, text, result)
		return "", domain.MatchResult{}, false
	}

	c.logger.Info("FAQ matched, waiting before responding",
		"user", msg.AuthorName, "faq", result.FAQ.ID,
		"confidence", result.Confidence, "strategy", result.Strategy)
	return text, result, true
}

// Classify maps a match confidence to the action the pipeline will take.
func (c *Coordinator) Classify(confidence float64) string {
	switch {
	case confidence >= c.highThreshold:
		return domain.ActionAutoResponded
	case confidence >= c.lowThreshold:
		return domain.ActionPartialHint
	default:
		return domain.ActionIgnored
	}
}

// HandleReaction resolves feedback on a posted answer. Thumbs down raises an
// escalation on the user's original question; thumbs up just closes the loop.
func (c *Coordinator) HandleReaction(ctx context.Context, r domain.Reaction) {
	if r.Bot {
		return
	}
	if r.Emoji != thumbsUp && r.Emoji != thumbsDown {
		return
	}
	p, ok := c.feedback.ResolveFor(r.MessageID, r.UserID)
	if !ok {
		return
	}
	metrics.FeedbackTotal.Inc()

	feedback := domain.FeedbackThumbsUp
	escalated := false
	if r.Emoji == thumbsDown {
		feedback = domain.FeedbackThumbsDown
		escalated = true

		// The escalation replies to the user's question, so it must still
		// exist; a deleted question leaves the team nothing to act on.
		original, err := c.channel.FetchMessage(ctx, p.ChannelID, p.MessageID)
		if err != nil {
			c.logger.Error("cannot escalate, original question unavailable",
				"user", p.UserName, "message", p.MessageID, "err", err)
			return
		}
		metrics.Escalations.Inc()
		if _, err := c.channel.Reply(ctx, original.ChannelID, original.ID, domain.Reply{
			Kind: domain.ReplyEscalation,
			Body: escalationBody,
		}); err != nil {
			c.logger.Error("cannot post escalation", "user", p.UserName, "err", err)
		}
	}

	c.logger.Info("feedback received",
		"user", p.UserName, "faq", p.FAQID, "feedback", feedback, "escalated", escalated)
	c.recordSupport(ctx, domain.SupportEvent{
		User: p.UserName, UserID: p.UserID, Question: p.Question,
		FAQID: p.FAQID, Confidence: p.Confidence,
		Action: domain.ActionFeedbackReceived, Feedback: feedback, Escalated: escalated,
	})
}

// waitDelay sleeps for the configured response delay. Returns false when the
// context is cancelled first.
func (c *Coordinator) waitDelay(ctx context.Context) bool {
	if c.responseDelay <= 0 {
		return true
	}
	timer := time.NewTimer(c.responseDelay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// teamResponded reports whether a team member posted in the channel after
// the user's message. A failed history lookup counts as no response so a
// platform hiccup cannot permanently silence the bot.
func (c *Coordinator) teamResponded(ctx context.Context, msg domain.Message) bool {
	history, err := c.channel.History(ctx, msg.ChannelID, msg.ID, c.lookbackLimit)
	if err != nil {
		c.logger.Warn("history lookup failed, assuming no team response", "err", err)
		return false
	}
	for _, m := range history {
		if c.isTeamMember(m.AuthorName) {
			return true
		}
	}
	return false
}

func (c *Coordinator) postAnswer(ctx context.Context, msg domain.Message, text string, result domain.MatchResult) {
	reply := domain.Reply{
		Kind:         domain.ReplyAnswer,
		Body:         result.FAQ.Answer,
		Category:     result.FAQ.Category,
		DocsLink:     result.FAQ.DocsLink,
		WithFeedback: true,
	}
	replyID, err := c.channel.Reply(ctx, msg.ChannelID, msg.ID, reply)
	if err != nil {
		c.logger.Error("cannot post answer", "user", msg.AuthorName, "faq", result.FAQ.ID, "err", err)
		return
	}

	for _, emoji := range []string{thumbsUp, thumbsDown} {
		if err := c.channel.AddReaction(ctx, msg.ChannelID, replyID, emoji); err != nil {
			c.logger.Warn("cannot add feedback reaction", "emoji", emoji, "err", err)
		}
	}
	c.feedback.Register(replyID, PendingReply{
		UserID: msg.AuthorID, UserName: msg.AuthorName,
		Question: text, FAQID: result.FAQ.ID, Confidence: result.Confidence,
		ChannelID: msg.ChannelID, MessageID: msg.ID,
	})

	metrics.AutoResponses.Inc()
	c.recordSupport(ctx, domain.SupportEvent{
		User: msg.AuthorName, UserID: msg.AuthorID, Question: text,
		FAQID: result.FAQ.ID, Confidence: result.Confidence,
		Action: domain.ActionAutoResponded,
	})
}

func (c *Coordinator) postHint(ctx context.Context, msg domain.Message, text string, result domain.MatchResult) {
	body := fmt.Sprintf("I noticed you might be asking about **%s**. Here are some helpful links:", result.FAQ.Category)
	reply := domain.Reply{
		Kind:     domain.ReplyHint,
		Body:     body,
		Category: result.FAQ.Category,
		DocsLink: result.FAQ.DocsLink,
	}
	if _, err := c.channel.Reply(ctx, msg.ChannelID, msg.ID, reply); err != nil {
		c.logger.Error("cannot post hint", "user", msg.AuthorName, "faq", result.FAQ.ID, "err", err)
		return
	}

	metrics.PartialHints.Inc()
	c.recordSupport(ctx, domain.SupportEvent{
		User: msg.AuthorName, UserID: msg.AuthorID, Question: text,
		FAQID: result.FAQ.ID, Confidence: result.Confidence,
		Action: domain.ActionPartialHint,
	})
}

// retireLatestAnswer clears the feedback reactions from the bot's most
// recent answer once a team member has taken over the thread.
func (c *Coordinator) retireLatestAnswer(ctx context.Context, channelID string) {
	history, err := c.channel.History(ctx, channelID, "", 10)
	if err != nil {
		c.logger.Warn("history lookup failed", "err", err)
		return
	}
	for _, m := range history {
		if m.AuthorID != c.channel.BotID() {
			continue
		}
		if _, ok := c.feedback.Resolve(m.ID); !ok {
			continue
		}
		if err := c.channel.ClearReactions(ctx, channelID, m.ID); err != nil {
			c.logger.Warn("cannot clear reactions", "message", m.ID, "err", err)
		}
		return
	}
}

func (c *Coordinator) isTeamMember(name string) bool {
	return c.team[strings.ToLower(name)]
}

func (c *Coordinator) matchesSkipPattern(content string) (string, bool) {
	lower := strings.ToLower(content)
	for _, p := range c.skipPatterns {
		if strings.Contains(lower, p) {
			return p, true
		}
	}
	return "", false
}

func (c *Coordinator) recordSupport(ctx context.Context, ev domain.SupportEvent) {
	if c.recorder == nil {
		return
	}
	if err := c.recorder.RecordSupport(ctx, ev); err != nil {
		c.logger.Warn("cannot record support event", "action", ev.Action, "err", err)
	}
}
