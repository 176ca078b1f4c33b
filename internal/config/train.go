package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/grove-rl/grove/internal/models"
)

// DefaultTrainConfig returns a TrainConfig with default values.
func DefaultTrainConfig() models.TrainConfig {
	return models.TrainConfig{
		RunsDir:   "runs",
		ToolsPath: "tools.toml",
		Data: models.DataConfig{
			TrainBatchSize:    8,
			MaxPromptTokens:   1024,
			MaxResponseTokens: 4096,
			Truncation:        models.TruncationError,
		},
		Rollout: models.RolloutConfig{
			N:             4,
			Mode:          models.RolloutAsync,
			MaxTurns:      16,
			MaxConcurrent: 32,
			Temperature:   1.0,
			TopP:          1.0,
		},
		Algorithm: models.AlgorithmConfig{
			Estimator:     "grpo",
			UseKLInReward: false,
			KLLoss:        true,
			KLLossCoef:    0.001,
			KLEstimator:   "low_var_kl",
			EntropyCoeff:  0.0,
		},
		Trainer: models.TrainerConfig{
			TotalSteps:     100,
			MiniBatchSize:  8,
			MicroBatchSize: 2,
			TestFreq:       -1,
			SaveFreq:       -1,
			RefConcurrent:  8,
		},
		Runtime: models.RuntimeConfig{
			BaseURL:           "http://localhost:8000",
			RequestTimeoutSec: 600,
		},
		Reward: models.RewardConfig{
			Name: "repo_exploration",
		},
		Sandbox: models.SandboxConfig{
			Provider:     "local",
			RegistryPath: "registry.json",
			CPUs:         1,
			Memory:       "2G",
		},
	}
}

// LoadTrainConfig loads and parses a train.yaml file.
func LoadTrainConfig(path string) (models.TrainConfig, error) {
	cfg := DefaultTrainConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading train config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing train config: %w", err)
	}

	applyTrainDefaults(&cfg)

	if err := ValidateTrainConfig(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// applyTrainDefaults restores defaults for fields an explicit zero or
// empty value would otherwise clobber.
func applyTrainDefaults(cfg *models.TrainConfig) {
	if cfg.RunsDir == "" {
		cfg.RunsDir = "runs"
	}
	if cfg.ToolsPath == "" {
		cfg.ToolsPath = "tools.toml"
	}
	if cfg.Data.Truncation == "" {
		cfg.Data.Truncation = models.TruncationError
	}
	if cfg.Rollout.Mode == "" {
		cfg.Rollout.Mode = models.RolloutAsync
	}
	if cfg.Rollout.MaxConcurrent == 0 {
		cfg.Rollout.MaxConcurrent = 32
	}
	if cfg.Trainer.RefConcurrent == 0 {
		cfg.Trainer.RefConcurrent = 8
	}
	if cfg.Runtime.RequestTimeoutSec == 0 {
		cfg.Runtime.RequestTimeoutSec = 600
	}
	if cfg.Sandbox.Provider == "" {
		cfg.Sandbox.Provider = "local"
	}
}

// ValidateTrainConfig checks cross-field constraints. Violations are
// configuration errors, surfaced before any step runs.
func ValidateTrainConfig(cfg models.TrainConfig) error {
	if cfg.Data.TrainPath == "" {
		return models.NewRunError(models.ErrConfigInvalid, "data.train_path is required")
	}
	if cfg.Data.TrainBatchSize <= 0 {
		return models.NewRunError(models.ErrConfigInvalid, "data.train_batch_size must be positive, got %d", cfg.Data.TrainBatchSize)
	}
	if cfg.Data.MaxPromptTokens <= 0 || cfg.Data.MaxResponseTokens <= 0 {
		return models.NewRunError(models.ErrConfigInvalid, "data token budgets must be positive")
	}
	switch cfg.Data.Truncation {
	case models.TruncationError, models.TruncationLeft, models.TruncationRight:
	default:
		return models.NewRunError(models.ErrConfigInvalid, "data.truncation must be one of error|left|right, got %q", cfg.Data.Truncation)
	}
	if cfg.Rollout.N < 1 {
		return models.NewRunError(models.ErrConfigInvalid, "rollout.n must be at least 1, got %d", cfg.Rollout.N)
	}
	switch cfg.Rollout.Mode {
	case models.RolloutSync, models.RolloutAsync:
	default:
		return models.NewRunError(models.ErrConfigInvalid, "rollout.mode must be sync or async, got %q", cfg.Rollout.Mode)
	}
	if cfg.Rollout.MaxTurns < 1 {
		return models.NewRunError(models.ErrConfigInvalid, "rollout.max_turns must be at least 1, got %d", cfg.Rollout.MaxTurns)
	}
	if cfg.Algorithm.Estimator != "grpo" {
		return models.NewRunError(models.ErrConfigInvalid, "algorithm.estimator: only grpo is supported, got %q", cfg.Algorithm.Estimator)
	}
	if cfg.Trainer.TotalSteps <= 0 {
		return models.NewRunError(models.ErrConfigInvalid, "trainer.total_steps must be positive, got %d", cfg.Trainer.TotalSteps)
	}
	if cfg.Trainer.MiniBatchSize <= 0 {
		return models.NewRunError(models.ErrConfigInvalid, "trainer.mini_batch_size must be positive, got %d", cfg.Trainer.MiniBatchSize)
	}
	if cfg.Trainer.MicroBatchSize <= 0 {
		return models.NewRunError(models.ErrConfigInvalid, "trainer.micro_batch_size must be positive, got %d", cfg.Trainer.MicroBatchSize)
	}
	// Mini-batches must evenly partition the step's trajectories.
	total := cfg.TrajectoriesPerStep()
	if total%cfg.Trainer.MiniBatchSize != 0 {
		return models.NewRunError(models.ErrConfigInvalid,
			"trainer.mini_batch_size %d does not evenly divide %d trajectories per step (train_batch_size %d x rollout.n %d)",
			cfg.Trainer.MiniBatchSize, total, cfg.Data.TrainBatchSize, cfg.Rollout.N)
	}
	if cfg.Runtime.BaseURL == "" {
		return models.NewRunError(models.ErrConfigInvalid, "runtime.base_url is required")
	}
	if cfg.Reward.Name == "" {
		return models.NewRunError(models.ErrConfigInvalid, "reward.name is required")
	}
	return nil
}
