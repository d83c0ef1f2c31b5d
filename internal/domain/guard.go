package domain

import "time"

// DecisionKind classifies the guard's admission verdict.
type DecisionKind string

const (
	DecisionAllow       DecisionKind = "allow"
	DecisionRateLimited DecisionKind = "rate_limited"
	DecisionSuspicious  DecisionKind = "suspicious"
)

// Decision is the guard's verdict for one (user, message) pair.
// A denial downgrades the matching strategy; it never drops the message.
type Decision struct {
	Kind       DecisionKind
	RetryAfter time.Duration // set for rate_limited
	Pattern    string        // matched literal substring for suspicious
}

// Degraded reports whether the coordinator must fall back to the
// deterministic matcher for this message.
func (d Decision) Degraded() bool { return d.Kind != DecisionAllow }

func Allowed() Decision { return Decision{Kind: DecisionAllow} }

func RateLimited(retryAfter time.Duration) Decision {
	return Decision{Kind: DecisionRateLimited, RetryAfter: retryAfter}
}

func Suspicious(pattern string) Decision {
	return Decision{Kind: DecisionSuspicious, Pattern: pattern}
}
