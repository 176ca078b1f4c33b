package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/grove-rl/grove/internal/models"
)

// Client talks to the model runtime over its HTTP JSON API. It
// implements Generator, Tokenizer, ReferenceModel, Optimizer, and
// Checkpointer.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a Client from the runtime configuration.
func NewClient(cfg models.RuntimeConfig) (*Client, error) {
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, models.NewRunError(models.ErrConfigInvalid, "invalid runtime base_url %q: %v", cfg.BaseURL, err)
	}
	timeout := time.Duration(cfg.RequestTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return models.NewRunError(models.ErrRuntimeUnavailable, "%s: %v", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return models.NewRunError(models.ErrRuntimeUnavailable, "%s: status %d: %s", path, resp.StatusCode, truncateBody(data))
	}

	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decoding %s response: %w", path, err)
		}
	}
	return nil
}

func truncateBody(b []byte) string {
	const limit = 512
	if len(b) > limit {
		return string(b[:limit]) + "..."
	}
	return string(b)
}

// Generate samples one generation span from the current policy.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (*TokenSpan, error) {
	var span TokenSpan
	if err := c.post(ctx, "/v1/generate", req, &span); err != nil {
		return nil, err
	}
	if len(span.TokenIDs) != len(span.LogProbs) {
		return nil, fmt.Errorf("generate: %d tokens but %d log probs", len(span.TokenIDs), len(span.LogProbs))
	}
	return &span, nil
}

type encodeRequest struct {
	Text string `json:"text"`
}

type encodeResponse struct {
	TokenIDs []int `json:"token_ids"`
}

// Encode tokenizes text with the runtime's tokenizer.
func (c *Client) Encode(ctx context.Context, text string) ([]int, error) {
	var resp encodeResponse
	if err := c.post(ctx, "/v1/tokenize", encodeRequest{Text: text}, &resp); err != nil {
		return nil, err
	}
	return resp.TokenIDs, nil
}

type refLogProbsRequest struct {
	PromptIDs   []int `json:"prompt_ids"`
	ResponseIDs []int `json:"response_ids"`
}

type refLogProbsResponse struct {
	LogProbs []float64 `json:"log_probs"`
}

// LogProbs scores response tokens under the frozen reference policy.
func (c *Client) LogProbs(ctx context.Context, promptIDs, responseIDs []int) ([]float64, error) {
	req := refLogProbsRequest{PromptIDs: promptIDs, ResponseIDs: responseIDs}
	var resp refLogProbsResponse
	if err := c.post(ctx, "/v1/ref_logprobs", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.LogProbs) != len(responseIDs) {
		return nil, fmt.Errorf("ref_logprobs: %d response tokens but %d log probs", len(responseIDs), len(resp.LogProbs))
	}
	return resp.LogProbs, nil
}

// Step applies one optimizer step over a mini-batch.
func (c *Client) Step(ctx context.Context, batch TrainBatch) error {
	if err := c.post(ctx, "/v1/train_step", batch, nil); err != nil {
		return models.NewRunError(models.ErrOptimizerStep, "%v", err)
	}
	return nil
}

type checkpointRequest struct {
	Step int `json:"step"`
}

// Save requests a policy checkpoint at the given step.
func (c *Client) Save(ctx context.Context, step int) error {
	if err := c.post(ctx, "/v1/checkpoint", checkpointRequest{Step: step}, nil); err != nil {
		return models.NewRunError(models.ErrCheckpointFailed, "step %d: %v", step, err)
	}
	return nil
}
