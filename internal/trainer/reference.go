// Package trainer turns scored trajectories into policy updates:
// reference log-probability evaluation, loss estimation, and optimizer
// step dispatch.
package trainer

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/grove-rl/grove/internal/models"
	"github.com/grove-rl/grove/internal/runtime"
)

// ReferenceEvaluator scores every trajectory's response tokens under
// the frozen reference policy, bounded to a fixed number of in-flight
// requests.
type ReferenceEvaluator struct {
	ref         runtime.ReferenceModel
	concurrency int
}

// NewReferenceEvaluator creates an evaluator. Concurrency below 1 is
// treated as 1.
func NewReferenceEvaluator(ref runtime.ReferenceModel, concurrency int) *ReferenceEvaluator {
	if concurrency < 1 {
		concurrency = 1
	}
	return &ReferenceEvaluator{ref: ref, concurrency: concurrency}
}

// Evaluate returns reference log probs keyed by trajectory ID,
// index-aligned with each trajectory's response tokens.
func (e *ReferenceEvaluator) Evaluate(ctx context.Context, groups []models.PromptGroup) (map[string][]float64, error) {
	out := make(map[string][]float64)
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)

	for gi := range groups {
		for ti := range groups[gi].Trajectories {
			traj := &groups[gi].Trajectories[ti]
			g.Go(func() error {
				logProbs, err := e.ref.LogProbs(ctx, traj.PromptTokens, traj.ResponseTokens)
				if err != nil {
					return fmt.Errorf("reference eval for trajectory %s: %w", traj.ID, err)
				}
				if len(logProbs) != len(traj.ResponseTokens) {
					return fmt.Errorf("reference eval for trajectory %s: got %d log probs for %d tokens",
						traj.ID, len(logProbs), len(traj.ResponseTokens))
				}
				mu.Lock()
				out[traj.ID] = logProbs
				mu.Unlock()
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
