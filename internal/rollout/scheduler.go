// Package rollout fans trajectory sampling out across prompts. Each
// prompt in a batch gets n independent trajectories; concurrency is
// bounded globally, not per prompt.
package rollout

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/grove-rl/grove/internal/models"
)

// TrajectoryRunner rolls out a single trajectory for a prompt.
type TrajectoryRunner interface {
	Run(ctx context.Context, prompt models.Prompt) (*models.Trajectory, error)
}

// Mode selects how trajectories are interleaved across prompts.
type Mode string

const (
	// ModeAsync interleaves trajectories from all prompt groups.
	ModeAsync Mode = "async"
	// ModeSync completes each prompt group before starting the next.
	ModeSync Mode = "sync"
)

// Scheduler materializes complete prompt groups. A step either yields
// every group fully populated or fails; there are no partial groups.
type Scheduler struct {
	runner        TrajectoryRunner
	n             int
	mode          Mode
	maxConcurrent int64
}

// New creates a Scheduler sampling n trajectories per prompt with at
// most maxConcurrent in flight.
func New(runner TrajectoryRunner, n int, mode Mode, maxConcurrent int) (*Scheduler, error) {
	if n < 1 {
		return nil, fmt.Errorf("group size must be at least 1, got %d", n)
	}
	if maxConcurrent < 1 {
		return nil, fmt.Errorf("max concurrency must be at least 1, got %d", maxConcurrent)
	}
	if mode != ModeAsync && mode != ModeSync {
		return nil, fmt.Errorf("unknown rollout mode %q", mode)
	}
	return &Scheduler{runner: runner, n: n, mode: mode, maxConcurrent: int64(maxConcurrent)}, nil
}

// Rollout samples n trajectories for every prompt in the batch. Any
// infrastructure error cancels the remaining work and fails the whole
// step.
func (s *Scheduler) Rollout(ctx context.Context, prompts []models.Prompt) ([]models.PromptGroup, error) {
	if len(prompts) == 0 {
		return nil, fmt.Errorf("rollout needs at least one prompt")
	}

	start := time.Now()
	groups := make([]models.PromptGroup, len(prompts))
	for i, p := range prompts {
		groups[i] = models.PromptGroup{
			Prompt:       p,
			Trajectories: make([]models.Trajectory, s.n),
		}
	}

	sem := semaphore.NewWeighted(s.maxConcurrent)

	if s.mode == ModeSync {
		for i := range groups {
			if err := s.fillGroup(ctx, sem, &groups[i]); err != nil {
				return nil, err
			}
		}
	} else {
		g, ctx := errgroup.WithContext(ctx)
		for i := range groups {
			for j := 0; j < s.n; j++ {
				g.Go(s.sampleOne(ctx, sem, &groups[i], j))
			}
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	slog.Info("rollout complete",
		"prompts", len(prompts),
		"trajectories", len(prompts)*s.n,
		"mode", s.mode,
		"duration", time.Since(start).Round(time.Millisecond))
	return groups, nil
}

func (s *Scheduler) fillGroup(ctx context.Context, sem *semaphore.Weighted, group *models.PromptGroup) error {
	g, ctx := errgroup.WithContext(ctx)
	for j := 0; j < s.n; j++ {
		g.Go(s.sampleOne(ctx, sem, group, j))
	}
	return g.Wait()
}

func (s *Scheduler) sampleOne(ctx context.Context, sem *semaphore.Weighted, group *models.PromptGroup, slot int) func() error {
	return func() error {
		if err := sem.Acquire(ctx, 1); err != nil {
			return err
		}
		defer sem.Release(1)

		traj, err := s.runner.Run(ctx, group.Prompt)
		if err != nil {
			return fmt.Errorf("prompt %s sample %d: %w", group.Prompt.ID, slot, err)
		}
		// Each goroutine owns exactly one slot; no lock needed.
		group.Trajectories[slot] = *traj
		return nil
	}
}
