// Package runtime defines the narrow interfaces through which the
// orchestration core consumes the model-runtime collaborator: sampling
// generations from the current policy, scoring token log-probabilities
// under the frozen reference policy, and applying optimizer steps.
// The runtime owns parameter sharding, the tokenizer, and
// backpropagation; none of that leaks through these interfaces.
package runtime

import "context"

// SamplingParams configure one generation request.
type SamplingParams struct {
	Temperature  float64 `json:"temperature"`
	TopP         float64 `json:"top_p"`
	MaxNewTokens int     `json:"max_new_tokens"`
}

// FinishReason reports why a generation span ended.
type FinishReason string

const (
	// FinishStop means the model stopped on its own.
	FinishStop FinishReason = "stop"
	// FinishLength means the span hit max_new_tokens.
	FinishLength FinishReason = "length"
)

// GenerateRequest asks for one generation span continuing the given
// token context.
type GenerateRequest struct {
	TokenIDs []int          `json:"token_ids"`
	Sampling SamplingParams `json:"sampling_params"`
}

// TokenSpan is one generated span with per-token log-probabilities
// under the sampling policy.
type TokenSpan struct {
	Text         string       `json:"text"`
	TokenIDs     []int        `json:"token_ids"`
	LogProbs     []float64    `json:"log_probs"`
	FinishReason FinishReason `json:"finish_reason"`
}

// Generator samples generation spans from the current policy.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*TokenSpan, error)
}

// Tokenizer encodes text into token IDs. Used to re-insert tool
// results into the context and to measure prompt budgets.
type Tokenizer interface {
	Encode(ctx context.Context, text string) ([]int, error)
}

// ReferenceModel recomputes token-level log-probabilities under the
// frozen reference policy. Reference weights are never updated.
type ReferenceModel interface {
	LogProbs(ctx context.Context, promptIDs, responseIDs []int) ([]float64, error)
}

// TrainSequence is one trajectory's contribution to a training batch.
// ResponseMask marks which response tokens participate in the loss.
type TrainSequence struct {
	PromptIDs    []int     `json:"prompt_ids"`
	ResponseIDs  []int     `json:"response_ids"`
	ResponseMask []int     `json:"response_mask"`
	OldLogProbs  []float64 `json:"old_log_probs"`
	RefLogProbs  []float64 `json:"ref_log_probs"`
	Advantage    float64   `json:"advantage"`
}

// TrainBatch is one mini-batch handed to the optimizer. The loss
// fields are the orchestrator-side estimates, logged for parity checks
// against the runtime's own computation.
type TrainBatch struct {
	Sequences    []TrainSequence `json:"sequences"`
	KLCoef       float64         `json:"kl_coef"`
	EntropyCoef  float64         `json:"entropy_coef"`
	PGLoss       float64         `json:"pg_loss"`
	KLLoss       float64         `json:"kl_loss"`
	Entropy      float64         `json:"entropy"`
	Loss         float64         `json:"loss"`
	MicroBatches int             `json:"micro_batches"`
}

// Optimizer applies one gradient step per mini-batch. Failures are
// infrastructure errors and abort the run.
type Optimizer interface {
	Step(ctx context.Context, batch TrainBatch) error
}

// Checkpointer requests a policy checkpoint. The runtime owns the
// snapshot contents and storage medium; the core only decides when.
type Checkpointer interface {
	Save(ctx context.Context, step int) error
}
