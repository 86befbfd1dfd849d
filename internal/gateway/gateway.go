package gateway

import (
	"context"
	"strings"
)

// Outcome classifies a gateway call. Rate-limited outcomes are the only
// ones the manager retries; everything else is terminal for the caller.
type Outcome string

const (
	OutcomeSuccess     Outcome = "success"
	OutcomeFailure     Outcome = "failure"
	OutcomeRateLimited Outcome = "rate_limited"
)

// Request is one synchronous invocation of the external code-generation
// agent. Calls may run for minutes; cancellation goes through ctx.
type Request struct {
	Model   string
	Prompt  string
	WorkDir string
}

// Result is the gateway's classified response. Text carries the agent's
// final output on success; Reason explains failures.
type Result struct {
	Outcome Outcome
	Text    string
	Reason  string
}

type Gateway interface {
	Invoke(ctx context.Context, req Request) (*Result, error)
}

// rateLimitMarkers are the substrings that identify a rate-limit or
// overload response from the agent CLI.
var rateLimitMarkers = []string{
	"rate limit",
	"rate_limit",
	"overloaded",
	"usage limit",
	"429",
	"too many requests",
}

// IsRateLimited classifies an error or result message as a transient
// rate-limit/overload outcome.
func IsRateLimited(msg string) bool {
	lower := strings.ToLower(msg)
	for _, marker := range rateLimitMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
