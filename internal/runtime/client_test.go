package runtime_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/grove-rl/grove/internal/models"
	"github.com/grove-rl/grove/internal/runtime"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *runtime.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := runtime.NewClient(models.RuntimeConfig{BaseURL: srv.URL, RequestTimeoutSec: 5})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return c
}

func TestGenerate(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/generate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req runtime.GenerateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if req.Sampling.MaxNewTokens != 100 {
			t.Errorf("expected max_new_tokens 100, got %d", req.Sampling.MaxNewTokens)
		}
		json.NewEncoder(w).Encode(runtime.TokenSpan{
			Text:         "hello",
			TokenIDs:     []int{1, 2},
			LogProbs:     []float64{-0.1, -0.2},
			FinishReason: runtime.FinishStop,
		})
	})

	span, err := c.Generate(context.Background(), runtime.GenerateRequest{
		TokenIDs: []int{10, 11},
		Sampling: runtime.SamplingParams{Temperature: 1.0, TopP: 1.0, MaxNewTokens: 100},
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if span.Text != "hello" || len(span.TokenIDs) != 2 {
		t.Errorf("unexpected span: %+v", span)
	}
}

func TestGenerateRejectsMisalignedLogProbs(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(runtime.TokenSpan{
			TokenIDs: []int{1, 2, 3},
			LogProbs: []float64{-0.1},
		})
	})

	if _, err := c.Generate(context.Background(), runtime.GenerateRequest{}); err == nil {
		t.Fatal("expected error for token/logprob length mismatch")
	}
}

func TestLogProbsLengthCheck(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string][]float64{"log_probs": {-0.5, -0.5}})
	})

	got, err := c.LogProbs(context.Background(), []int{1}, []int{2, 3})
	if err != nil {
		t.Fatalf("LogProbs failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 log probs, got %d", len(got))
	}

	if _, err := c.LogProbs(context.Background(), []int{1}, []int{2, 3, 4}); err == nil {
		t.Fatal("expected error for length mismatch")
	}
}

func TestStepErrorType(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "cuda out of memory", http.StatusInternalServerError)
	})

	err := c.Step(context.Background(), runtime.TrainBatch{})
	if err == nil {
		t.Fatal("expected error from failing train step")
	}
	var runErr *models.RunError
	if !errors.As(err, &runErr) || runErr.Type != models.ErrOptimizerStep {
		t.Errorf("expected optimizer_step_failed error, got %v", err)
	}
}

func TestSaveErrorType(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "disk full", http.StatusInternalServerError)
	})

	err := c.Save(context.Background(), 5)
	var runErr *models.RunError
	if !errors.As(err, &runErr) || runErr.Type != models.ErrCheckpointFailed {
		t.Errorf("expected checkpoint_failed error, got %v", err)
	}
}
