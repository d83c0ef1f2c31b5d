package domain

import "context"

// Support event actions, one per terminal triage outcome.
const (
	ActionAutoResponded    = "auto_responded"
	ActionPartialHint      = "partial_hint"
	ActionIgnored          = "ignored"
	ActionSkipped          = "skipped"
	ActionTeamFirst        = "team_first"
	ActionFeedbackReceived = "feedback_received"
)

// User feedback values for feedback_received events.
const (
	FeedbackThumbsUp   = "thumbs_up"
	FeedbackThumbsDown = "thumbs_down"
)

// SupportEvent is an append-only record of a triage outcome.
// The engine only ever writes these; nothing reads them back at runtime.
type SupportEvent struct {
	User       string
	UserID     string
	Question   string
	FAQID      string
	Confidence float64
	Action     string
	Feedback   string
	Escalated  bool
}

// Security event kinds.
const (
	SecurityRateLimited   = "rate_limited"
	SecuritySuspicious    = "suspicious_input"
	SecurityInvalidOutput = "invalid_output"
)

// SecurityEvent records a guard denial or a rejected semantic result.
type SecurityEvent struct {
	Kind    string
	UserID  string
	Details string
}

// EventRecorder is the write-only sink for engine events.
type EventRecorder interface {
	RecordSupport(ctx context.Context, ev SupportEvent) error
	RecordSecurity(ctx context.Context, ev SecurityEvent) error
}
