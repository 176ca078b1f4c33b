package models

import "encoding/json"

// TurnKind discriminates between turn types.
type TurnKind string

const (
	TurnGeneration TurnKind = "generation"
	TurnTool       TurnKind = "tool"
	TurnFeedback   TurnKind = "feedback"
)

// Turn is a single entry in a trajectory. Exactly one of Generation,
// Tool, or Feedback is set, matching Kind.
type Turn struct {
	Kind       TurnKind        `json:"kind"`
	Generation *GenerationTurn `json:"generation,omitempty"`
	Tool       *ToolTurn       `json:"tool,omitempty"`
	Feedback   *FeedbackTurn   `json:"feedback,omitempty"`
}

// GenerationTurn holds one model-produced token span.
type GenerationTurn struct {
	Text     string    `json:"text"`
	Tokens   []int     `json:"tokens"`
	LogProbs []float64 `json:"log_probs"`
	ToolCall *ToolCall `json:"tool_call,omitempty"`
}

// ToolTurn holds a tool-call request and its result or failure.
// Tokens is the tokenized result text as re-inserted into the context.
type ToolTurn struct {
	Call    ToolCall     `json:"call"`
	Result  *ToolResult  `json:"result,omitempty"`
	Failure *ToolFailure `json:"failure,omitempty"`
	Tokens  []int        `json:"tokens,omitempty"`
	Retried bool         `json:"retried,omitempty"`
}

// FeedbackTurn holds a guidance message injected between generation
// turns. Tokens is the tokenized message as re-inserted into the
// context; like tool output, these tokens are masked out of the loss.
type FeedbackTurn struct {
	Text   string `json:"text"`
	Tokens []int  `json:"tokens,omitempty"`
}

// ToolCall is a structured tool request emitted mid-generation.
type ToolCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResult is a successful tool invocation output.
type ToolResult struct {
	Text string `json:"text"`
}

// FailureReason identifies why a tool invocation failed.
type FailureReason string

const (
	FailureUnregistered FailureReason = "unregistered"
	FailureTimeout      FailureReason = "timeout"
	FailureInternal     FailureReason = "internal"
)

// ToolFailure is a typed tool invocation failure. It is a valid
// environment outcome, not a system error.
type ToolFailure struct {
	Reason  FailureReason `json:"reason"`
	Message string        `json:"message"`
}

// NewGenerationTurn creates a Turn wrapping a generated span.
func NewGenerationTurn(text string, tokens []int, logProbs []float64, call *ToolCall) Turn {
	return Turn{
		Kind: TurnGeneration,
		Generation: &GenerationTurn{
			Text:     text,
			Tokens:   tokens,
			LogProbs: logProbs,
			ToolCall: call,
		},
	}
}

// NewFeedbackTurn creates a Turn wrapping an injected guidance message.
func NewFeedbackTurn(text string, tokens []int) Turn {
	return Turn{
		Kind:     TurnFeedback,
		Feedback: &FeedbackTurn{Text: text, Tokens: tokens},
	}
}

// NewToolTurn creates a Turn wrapping a tool invocation outcome.
func NewToolTurn(call ToolCall, result *ToolResult, failure *ToolFailure, tokens []int, retried bool) Turn {
	return Turn{
		Kind: TurnTool,
		Tool: &ToolTurn{
			Call:    call,
			Result:  result,
			Failure: failure,
			Tokens:  tokens,
			Retried: retried,
		},
	}
}
