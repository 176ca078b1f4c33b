// Package driver runs single trajectories: the alternating
// generation/tool loop that turns one prompt into one terminal
// trajectory under the token and turn budgets.
package driver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/grove-rl/grove/internal/interaction"
	"github.com/grove-rl/grove/internal/models"
	"github.com/grove-rl/grove/internal/runtime"
	"github.com/grove-rl/grove/internal/tool"
)

// toolRetries is how many extra attempts a timed-out tool call gets.
// Unregistered and internal failures are never retried.
const toolRetries = 1

// Driver rolls out trajectories against a generator and a tool
// bridge. Safe for concurrent use; all rollout state lives on the
// stack of Run.
type Driver struct {
	gen      runtime.Generator
	tok      runtime.Tokenizer
	tools    tool.Invoker
	budget   models.Budget
	sampling runtime.SamplingParams
	guide    interaction.Guide
}

// New creates a Driver. The sampling parameters apply to every
// generation turn; MaxNewTokens is overridden per turn by the
// remaining response budget.
func New(gen runtime.Generator, tok runtime.Tokenizer, tools tool.Invoker, budget models.Budget, sampling runtime.SamplingParams) *Driver {
	return &Driver{gen: gen, tok: tok, tools: tools, budget: budget, sampling: sampling}
}

// WithGuide attaches a turn-level interaction guide. Candidate final
// answers are reviewed by the guide; rejected answers get a feedback
// turn injected and the rollout continues. Returns d for chaining.
func (d *Driver) WithGuide(g interaction.Guide) *Driver {
	d.guide = g
	return d
}

// Run rolls out one trajectory for the prompt. The prompt must already
// be tokenized. Tool failures terminate the trajectory with a
// scoreable status; only infrastructure errors are returned as errors.
func (d *Driver) Run(ctx context.Context, prompt models.Prompt) (*models.Trajectory, error) {
	if len(prompt.Tokens) == 0 {
		return nil, fmt.Errorf("prompt %s has no tokens", prompt.ID)
	}
	if len(prompt.Tokens) > d.budget.MaxPromptTokens {
		return nil, models.NewRunError(models.ErrPromptOversized,
			"prompt %s is %d tokens, budget is %d", prompt.ID, len(prompt.Tokens), d.budget.MaxPromptTokens)
	}

	traj := &models.Trajectory{
		ID:           uuid.NewString(),
		PromptID:     prompt.ID,
		PromptTokens: prompt.Tokens,
		StartedAt:    time.Now().UTC(),
	}

	contextIDs := make([]int, len(prompt.Tokens))
	copy(contextIDs, prompt.Tokens)

	if d.guide != nil {
		d.guide.Begin(traj.ID, prompt.GroundTruth)
		defer d.guide.End(traj.ID)
	}

	for traj.Status == "" {
		remaining := d.budget.MaxResponseTokens - len(traj.ResponseTokens)
		if remaining <= 0 {
			traj.Status = models.StatusTruncatedLength
			break
		}
		if traj.NumTurns() >= d.budget.MaxTurns {
			traj.Status = models.StatusTruncatedTurns
			break
		}

		sampling := d.sampling
		sampling.MaxNewTokens = remaining
		span, err := d.gen.Generate(ctx, runtime.GenerateRequest{TokenIDs: contextIDs, Sampling: sampling})
		if err != nil {
			return nil, fmt.Errorf("trajectory %s: generating turn %d: %w", traj.ID, traj.NumTurns()+1, err)
		}

		// The runtime is asked for at most `remaining` tokens; clamp
		// anyway so the budget invariant holds even against a
		// misbehaving runtime.
		tokens, logProbs := span.TokenIDs, span.LogProbs
		if len(tokens) > remaining {
			tokens, logProbs = tokens[:remaining], logProbs[:remaining]
		}

		call, parseErr := ExtractToolCall(span.Text)
		traj.Turns = append(traj.Turns, models.NewGenerationTurn(span.Text, tokens, logProbs, call))
		traj.ResponseTokens = append(traj.ResponseTokens, tokens...)
		traj.ResponseLogProbs = append(traj.ResponseLogProbs, logProbs...)
		for range tokens {
			traj.ResponseMask = append(traj.ResponseMask, 1)
		}
		contextIDs = append(contextIDs, tokens...)

		if span.FinishReason == runtime.FinishLength || len(traj.ResponseTokens) >= d.budget.MaxResponseTokens {
			// Budget exhausted mid-turn. The partial span is kept and
			// the trajectory is still scored.
			traj.Status = models.StatusTruncatedLength
			break
		}

		if parseErr != nil {
			failure := &models.ToolFailure{Reason: models.FailureInternal, Message: parseErr.Error()}
			traj.Turns = append(traj.Turns, models.NewToolTurn(models.ToolCall{}, nil, failure, nil, false))
			traj.Status = models.StatusToolFailed
			break
		}
		if call == nil {
			if d.guide == nil {
				traj.Status = models.StatusCompleted
				break
			}
			verdict := d.guide.Review(traj.ID, span.Text, traj.ResponseText())
			if verdict.Accept {
				traj.Status = models.StatusCompleted
				break
			}
			fbTokens, err := d.tok.Encode(ctx, wrapFeedback(verdict.Feedback))
			if err != nil {
				return nil, fmt.Errorf("trajectory %s: encoding feedback: %w", traj.ID, err)
			}
			remaining = d.budget.MaxResponseTokens - len(traj.ResponseTokens)
			if len(fbTokens) > remaining {
				fbTokens = fbTokens[:remaining]
			}
			traj.Turns = append(traj.Turns, models.NewFeedbackTurn(verdict.Feedback, fbTokens))
			traj.ResponseTokens = append(traj.ResponseTokens, fbTokens...)
			for range fbTokens {
				// Injected tokens carry placeholder log probs and are
				// masked out of the loss, like tool output.
				traj.ResponseLogProbs = append(traj.ResponseLogProbs, 0.0)
				traj.ResponseMask = append(traj.ResponseMask, 0)
			}
			contextIDs = append(contextIDs, fbTokens...)
			continue
		}

		result, failure, retried := d.invokeWithRetry(ctx, traj.ID, *call)
		if failure != nil {
			traj.Turns = append(traj.Turns, models.NewToolTurn(*call, nil, failure, nil, retried))
			traj.Status = models.StatusToolFailed
			break
		}

		toolTokens, err := d.tok.Encode(ctx, wrapToolResponse(result.Text))
		if err != nil {
			return nil, fmt.Errorf("trajectory %s: encoding tool result: %w", traj.ID, err)
		}
		remaining = d.budget.MaxResponseTokens - len(traj.ResponseTokens)
		if len(toolTokens) > remaining {
			toolTokens = toolTokens[:remaining]
		}

		traj.Turns = append(traj.Turns, models.NewToolTurn(*call, result, nil, toolTokens, retried))
		traj.ResponseTokens = append(traj.ResponseTokens, toolTokens...)
		for range toolTokens {
			// Placeholder log probs keep the arrays index-aligned; the
			// mask keeps these tokens out of the loss.
			traj.ResponseLogProbs = append(traj.ResponseLogProbs, 0.0)
			traj.ResponseMask = append(traj.ResponseMask, 0)
		}
		contextIDs = append(contextIDs, toolTokens...)
	}

	traj.EndedAt = time.Now().UTC()
	slog.Debug("trajectory finished",
		"id", traj.ID,
		"prompt_id", traj.PromptID,
		"status", traj.Status,
		"turns", traj.NumTurns(),
		"response_tokens", len(traj.ResponseTokens))
	return traj, nil
}

// invokeWithRetry invokes a tool, retrying timeouts once. Unregistered
// and internal failures fail immediately.
func (d *Driver) invokeWithRetry(ctx context.Context, sessionID string, call models.ToolCall) (*models.ToolResult, *models.ToolFailure, bool) {
	result, failure := d.tools.Invoke(ctx, sessionID, call)
	if failure == nil || failure.Reason != models.FailureTimeout {
		return result, failure, false
	}

	for attempt := 0; attempt < toolRetries; attempt++ {
		slog.Debug("retrying timed-out tool call", "tool", call.Name, "trajectory", sessionID)
		result, failure = d.tools.Invoke(ctx, sessionID, call)
		if failure == nil || failure.Reason != models.FailureTimeout {
			return result, failure, true
		}
	}
	return nil, failure, true
}
