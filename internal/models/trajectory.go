package models

import (
	"strings"
	"time"
)

// TerminalStatus identifies how a trajectory reached its terminal state.
type TerminalStatus string

const (
	// StatusCompleted means the model emitted a final answer.
	StatusCompleted TerminalStatus = "completed"
	// StatusTruncatedLength means the token budget was exhausted mid-turn.
	// The partial span is kept.
	StatusTruncatedLength TerminalStatus = "truncated_length"
	// StatusTruncatedTurns means the turn-count limit was reached.
	StatusTruncatedTurns TerminalStatus = "truncated_turns"
	// StatusToolFailed means a tool call failed un-retryably. The
	// trajectory is still scored.
	StatusToolFailed TerminalStatus = "tool_failed"
)

// Budget bounds a single trajectory rollout.
type Budget struct {
	MaxPromptTokens   int
	MaxResponseTokens int
	MaxTurns          int
}

// Total returns the combined prompt+response token bound.
func (b Budget) Total() int {
	return b.MaxPromptTokens + b.MaxResponseTokens
}

// Trajectory is one complete multi-turn rollout for one prompt.
// It is immutable once Status is set and lives for exactly one
// training step.
//
// ResponseTokens holds all tokens appended after the prompt, in order.
// ResponseMask marks model-generated tokens with 1 and tool-result
// tokens with 0; only masked-in tokens participate in the loss.
// ResponseLogProbs is index-aligned with ResponseTokens; entries for
// tool tokens are zero placeholders.
type Trajectory struct {
	ID               string         `json:"id"`
	PromptID         string         `json:"prompt_id"`
	Turns            []Turn         `json:"turns"`
	PromptTokens     []int          `json:"prompt_tokens"`
	ResponseTokens   []int          `json:"response_tokens"`
	ResponseLogProbs []float64      `json:"response_log_probs"`
	ResponseMask     []int          `json:"response_mask"`
	Status           TerminalStatus `json:"status"`
	StartedAt        time.Time      `json:"started_at"`
	EndedAt          time.Time      `json:"ended_at"`
}

// TokenCount returns the total prompt+response token count.
func (t *Trajectory) TokenCount() int {
	return len(t.PromptTokens) + len(t.ResponseTokens)
}

// NumTurns returns the number of generation turns.
func (t *Trajectory) NumTurns() int {
	n := 0
	for _, turn := range t.Turns {
		if turn.Kind == TurnGeneration {
			n++
		}
	}
	return n
}

// Terminal reports whether the trajectory has reached a terminal state.
func (t *Trajectory) Terminal() bool {
	return t.Status != ""
}

// ResponseText returns the concatenated model-generated text across
// all generation turns, used as the scoring input.
func (t *Trajectory) ResponseText() string {
	var sb strings.Builder
	for _, turn := range t.Turns {
		if turn.Kind == TurnGeneration && turn.Generation != nil {
			sb.WriteString(turn.Generation.Text)
		}
	}
	return sb.String()
}

// ToolTurns returns the tool call/result log in order.
func (t *Trajectory) ToolTurns() []ToolTurn {
	var out []ToolTurn
	for _, turn := range t.Turns {
		if turn.Kind == TurnTool && turn.Tool != nil {
			out = append(out, *turn.Tool)
		}
	}
	return out
}

// ToolFailed reports whether any tool turn ended in a failure.
func (t *Trajectory) ToolFailed() bool {
	for _, tt := range t.ToolTurns() {
		if tt.Failure != nil {
			return true
		}
	}
	return false
}
