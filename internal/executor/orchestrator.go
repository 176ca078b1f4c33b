// Package executor drives the training run: batch preparation,
// rollout, scoring, reference evaluation, policy updates, and the
// evaluation and checkpoint cadences.
package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/grove-rl/grove/internal/dataset"
	"github.com/grove-rl/grove/internal/grpo"
	"github.com/grove-rl/grove/internal/models"
	"github.com/grove-rl/grove/internal/reward"
	"github.com/grove-rl/grove/internal/runtime"
)

// RolloutScheduler materializes prompt groups for a batch of prompts.
type RolloutScheduler interface {
	Rollout(ctx context.Context, prompts []models.Prompt) ([]models.PromptGroup, error)
}

// ReferenceEvaluator scores response tokens under the reference policy.
type ReferenceEvaluator interface {
	Evaluate(ctx context.Context, groups []models.PromptGroup) (map[string][]float64, error)
}

// PolicyUpdater applies one policy update over scored groups.
type PolicyUpdater interface {
	Update(ctx context.Context, groups []models.PromptGroup, advantages map[string]models.AdvantageRecord, refLogProbs map[string][]float64) (models.UpdateMetrics, error)
}

// Orchestrator owns the training loop. All collaborators are wired
// once at setup; the orchestrator itself holds no model state.
type Orchestrator struct {
	cfg          models.TrainConfig
	tok          runtime.Tokenizer
	trainBatcher *dataset.Batcher
	valPrompts   []models.Prompt
	scheduler    RolloutScheduler
	evalSched    RolloutScheduler
	scorer       *reward.GroupScorer
	refEval      ReferenceEvaluator
	updater      PolicyUpdater
	checkpointer runtime.Checkpointer
}

// Collaborators bundles everything an Orchestrator needs. EvalSched
// may be nil when no validation set is configured.
type Collaborators struct {
	Tokenizer    runtime.Tokenizer
	TrainBatcher *dataset.Batcher
	ValPrompts   []models.Prompt
	Scheduler    RolloutScheduler
	EvalSched    RolloutScheduler
	Scorer       *reward.GroupScorer
	RefEval      ReferenceEvaluator
	Updater      PolicyUpdater
	Checkpointer runtime.Checkpointer
}

// New creates an Orchestrator.
func New(cfg models.TrainConfig, c Collaborators) *Orchestrator {
	return &Orchestrator{
		cfg:          cfg,
		tok:          c.Tokenizer,
		trainBatcher: c.TrainBatcher,
		valPrompts:   c.ValPrompts,
		scheduler:    c.Scheduler,
		evalSched:    c.EvalSched,
		scorer:       c.Scorer,
		refEval:      c.RefEval,
		updater:      c.Updater,
		checkpointer: c.Checkpointer,
	}
}

// Run executes the full training loop. The returned RunResult is also
// written to the run directory; a non-nil error means the run aborted
// before completing every step.
func (o *Orchestrator) Run(ctx context.Context) (*models.RunResult, error) {
	startTime := time.Now()

	runName := startTime.Format("2006-01-02__15-04-05")
	if o.cfg.Name != nil {
		runName = *o.cfg.Name
	}
	runDir := filepath.Join(o.cfg.RunsDir, runName)

	if _, err := os.Stat(runDir); err == nil {
		return nil, fmt.Errorf("run directory already exists: %s (will not overwrite existing results)", runDir)
	}
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return nil, fmt.Errorf("creating run directory: %w", err)
	}

	cfgJSON, _ := json.MarshalIndent(o.cfg, "", "  ")
	os.WriteFile(filepath.Join(runDir, "config.json"), cfgJSON, 0644)

	result := &models.RunResult{
		RunName:    runName,
		TotalSteps: o.cfg.Trainer.TotalSteps,
		StartedAt:  startTime,
	}

	var runErr error
	for step := 0; step < o.cfg.Trainer.TotalSteps; step++ {
		metrics, err := o.runStep(ctx, step)
		if err != nil {
			slog.Error("training step failed, aborting run", "step", step, "error", err)
			result.Aborted = true
			runErr = fmt.Errorf("step %d: %w", step, err)
			break
		}

		result.Steps = append(result.Steps, *metrics)
		result.CompletedSteps = step + 1
		result.FinalMeanReward = metrics.MeanReward

		o.writeStepResult(runDir, metrics)
		slog.Info("training step complete",
			"step", step,
			"mean_reward", metrics.MeanReward,
			"loss", metrics.Update.Loss,
			"truncation_rate", metrics.TruncationRate,
			"duration_sec", metrics.DurationSec)
	}

	result.EndedAt = time.Now()
	result.TotalDurationSec = result.EndedAt.Sub(result.StartedAt).Seconds()

	resultJSON, _ := json.MarshalIndent(result, "", "  ")
	os.WriteFile(filepath.Join(runDir, "result.json"), resultJSON, 0644)

	return result, runErr
}

// runStep executes one training step: prepare, rollout, score and
// reference-evaluate in parallel, update, then run the eval and
// checkpoint cadences.
func (o *Orchestrator) runStep(ctx context.Context, step int) (*models.StepMetrics, error) {
	stepStart := time.Now()

	prompts, err := o.preparePrompts(ctx, o.trainBatcher.Next())
	if err != nil {
		return nil, err
	}

	groups, err := o.scheduler.Rollout(ctx, prompts)
	if err != nil {
		return nil, fmt.Errorf("rollout: %w", err)
	}

	advantages := make(map[string]models.AdvantageRecord)
	allRewards := make([]models.RewardRecord, 0, len(groups)*o.cfg.Rollout.N)
	scoringFailures := 0
	var refLogProbs map[string][]float64

	// Scoring is CPU-bound and reference evaluation is network-bound;
	// run them side by side.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for i := range groups {
			records, failures := o.scorer.ScoreGroup(gctx, &groups[i])
			scoringFailures += failures
			allRewards = append(allRewards, records...)

			advs, err := grpo.Estimate(records)
			if err != nil {
				return fmt.Errorf("advantages for prompt %s: %w", groups[i].Prompt.ID, err)
			}
			for _, a := range advs {
				advantages[a.TrajectoryID] = a
			}
		}
		return nil
	})
	g.Go(func() error {
		var err error
		refLogProbs, err = o.refEval.Evaluate(gctx, groups)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	update, err := o.updater.Update(ctx, groups, advantages, refLogProbs)
	if err != nil {
		return nil, fmt.Errorf("policy update: %w", err)
	}

	metrics := o.aggregateStep(step, groups, allRewards, advantages, scoringFailures, update)

	if o.evalSched != nil && o.cfg.Trainer.TestFreq > 0 && step%o.cfg.Trainer.TestFreq == 0 {
		evalReward, err := o.runEval(ctx)
		if err != nil {
			return nil, fmt.Errorf("evaluation: %w", err)
		}
		metrics.EvalMeanReward = &evalReward
		slog.Info("evaluation complete", "step", step, "eval_mean_reward", evalReward)
	}

	if o.checkpointer != nil && o.cfg.Trainer.SaveFreq > 0 && step%o.cfg.Trainer.SaveFreq == 0 {
		if err := o.checkpointer.Save(ctx, step); err != nil {
			return nil, err
		}
		metrics.Checkpointed = true
	}

	metrics.DurationSec = time.Since(stepStart).Seconds()
	return metrics, nil
}

// preparePrompts tokenizes a batch and applies the prompt truncation
// policy.
func (o *Orchestrator) preparePrompts(ctx context.Context, prompts []models.Prompt) ([]models.Prompt, error) {
	budget := o.cfg.Data.MaxPromptTokens
	for i := range prompts {
		tokens, err := o.tok.Encode(ctx, prompts[i].Text)
		if err != nil {
			return nil, fmt.Errorf("tokenizing prompt %s: %w", prompts[i].ID, err)
		}
		if len(tokens) > budget {
			switch o.cfg.Data.Truncation {
			case models.TruncationLeft:
				tokens = tokens[len(tokens)-budget:]
			case models.TruncationRight:
				tokens = tokens[:budget]
			default:
				return nil, models.NewRunError(models.ErrPromptOversized,
					"prompt %s is %d tokens, budget is %d", prompts[i].ID, len(tokens), budget)
			}
		}
		prompts[i].Tokens = tokens
	}
	return prompts, nil
}

// runEval rolls out the validation set greedily and returns the mean
// reward. Evaluation never feeds the optimizer.
func (o *Orchestrator) runEval(ctx context.Context) (float64, error) {
	prompts, err := o.preparePrompts(ctx, clonePrompts(o.valPrompts))
	if err != nil {
		return 0, err
	}

	groups, err := o.evalSched.Rollout(ctx, prompts)
	if err != nil {
		return 0, err
	}

	total := 0.0
	count := 0
	for i := range groups {
		records, _ := o.scorer.ScoreGroup(ctx, &groups[i])
		for _, r := range records {
			total += r.Reward
			count++
		}
	}
	if count == 0 {
		return 0, nil
	}
	return total / float64(count), nil
}

func (o *Orchestrator) aggregateStep(
	step int,
	groups []models.PromptGroup,
	rewards []models.RewardRecord,
	advantages map[string]models.AdvantageRecord,
	scoringFailures int,
	update models.UpdateMetrics,
) *models.StepMetrics {
	total := 0
	truncated := 0
	toolFailed := 0
	for _, g := range groups {
		for _, traj := range g.Trajectories {
			total++
			if strings.HasPrefix(string(traj.Status), "truncated") {
				truncated++
			}
			if traj.Status == models.StatusToolFailed {
				toolFailed++
			}
		}
	}

	meanReward := 0.0
	for _, r := range rewards {
		meanReward += r.Reward
	}
	if len(rewards) > 0 {
		meanReward /= float64(len(rewards))
	}

	meanAbsAdv := 0.0
	for _, a := range advantages {
		meanAbsAdv += math.Abs(a.Advantage)
	}
	if len(advantages) > 0 {
		meanAbsAdv /= float64(len(advantages))
	}

	m := &models.StepMetrics{
		Step:             step,
		Trajectories:     total,
		MeanReward:       meanReward,
		MeanAbsAdvantage: meanAbsAdv,
		ScoringFailures:  scoringFailures,
		Update:           update,
	}
	if total > 0 {
		m.TruncationRate = float64(truncated) / float64(total)
		m.ToolFailureRate = float64(toolFailed) / float64(total)
	}
	return m
}

func (o *Orchestrator) writeStepResult(runDir string, metrics *models.StepMetrics) {
	stepDir := filepath.Join(runDir, fmt.Sprintf("step_%04d", metrics.Step))
	os.MkdirAll(stepDir, 0755)
	metricsJSON, _ := json.MarshalIndent(metrics, "", "  ")
	os.WriteFile(filepath.Join(stepDir, "result.json"), metricsJSON, 0644)
}

func clonePrompts(in []models.Prompt) []models.Prompt {
	out := make([]models.Prompt, len(in))
	copy(out, in)
	return out
}
