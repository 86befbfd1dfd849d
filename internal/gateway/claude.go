package gateway

import (
	"context"
	"log/slog"

	claudeagent "github.com/kazz187/claude-agent-sdk-go"
)

// ClaudeGateway invokes the Claude agent synchronously. The call blocks
// until the agent finishes; there is no mid-call cancellation beyond ctx.
type ClaudeGateway struct{}

func NewClaudeGateway() *ClaudeGateway {
	return &ClaudeGateway{}
}

func (g *ClaudeGateway) Invoke(ctx context.Context, req Request) (*Result, error) {
	opts := &claudeagent.ClaudeAgentOptions{
		Cwd:            req.WorkDir,
		Model:          req.Model,
		PermissionMode: claudeagent.PermissionModeBypassPermissions,
	}

	slog.Debug("invoking agent", "model", req.Model, "work_dir", req.WorkDir, "prompt_bytes", len(req.Prompt))

	result, err := claudeagent.RunQuerySync(ctx, req.Prompt, opts)
	if err != nil {
		if IsRateLimited(err.Error()) {
			return &Result{Outcome: OutcomeRateLimited, Reason: err.Error()}, nil
		}
		return &Result{Outcome: OutcomeFailure, Reason: err.Error()}, nil
	}
	if result == nil || result.Result == nil {
		return &Result{Outcome: OutcomeFailure, Reason: "agent returned no result"}, nil
	}
	if result.Result.IsError {
		reason := result.Result.Result
		if reason == "" {
			reason = "agent returned an error"
		}
		if IsRateLimited(reason) {
			return &Result{Outcome: OutcomeRateLimited, Reason: reason}, nil
		}
		return &Result{Outcome: OutcomeFailure, Reason: reason}, nil
	}
	return &Result{Outcome: OutcomeSuccess, Text: result.Result.Result}, nil
}
