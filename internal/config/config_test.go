package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/grove-rl/grove/internal/config"
	"github.com/grove-rl/grove/internal/models"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "train.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadTrainConfig(t *testing.T) {
	trainYAML := `name: repo-explore-grpo
data:
  train_path: data/train.jsonl
  train_batch_size: 2
  max_prompt_tokens: 512
  max_response_tokens: 2048
  truncation: error
rollout:
  n: 4
  mode: async
  max_turns: 8
algorithm:
  kl_loss: true
  kl_loss_coef: 0.001
trainer:
  total_steps: 10
  mini_batch_size: 8
  micro_batch_size: 2
  test_freq: 5
  save_freq: -1
runtime:
  base_url: http://localhost:8000
`

	cfg, err := config.LoadTrainConfig(writeConfig(t, trainYAML))
	if err != nil {
		t.Fatalf("LoadTrainConfig failed: %v", err)
	}

	if cfg.Name == nil || *cfg.Name != "repo-explore-grpo" {
		t.Errorf("expected name repo-explore-grpo, got %v", cfg.Name)
	}
	if cfg.Data.MaxPromptTokens != 512 {
		t.Errorf("expected max_prompt_tokens 512, got %d", cfg.Data.MaxPromptTokens)
	}
	if cfg.Rollout.N != 4 {
		t.Errorf("expected rollout n 4, got %d", cfg.Rollout.N)
	}
	if cfg.Algorithm.KLLossCoef != 0.001 {
		t.Errorf("expected kl_loss_coef 0.001, got %f", cfg.Algorithm.KLLossCoef)
	}
	if cfg.Trainer.SaveFreq != -1 {
		t.Errorf("expected save_freq -1, got %d", cfg.Trainer.SaveFreq)
	}

	// Defaults fill in unspecified sections.
	if cfg.Rollout.MaxConcurrent != 32 {
		t.Errorf("expected default max_concurrent 32, got %d", cfg.Rollout.MaxConcurrent)
	}
	if cfg.Reward.Name != "repo_exploration" {
		t.Errorf("expected default reward name, got %s", cfg.Reward.Name)
	}
	if cfg.TrajectoriesPerStep() != 8 {
		t.Errorf("expected 8 trajectories per step, got %d", cfg.TrajectoriesPerStep())
	}
}

func TestValidateTrainConfig(t *testing.T) {
	valid := func() models.TrainConfig {
		cfg := config.DefaultTrainConfig()
		cfg.Data.TrainPath = "data/train.jsonl"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*models.TrainConfig)
		wantErr string
	}{
		{
			name:   "valid defaults",
			mutate: func(cfg *models.TrainConfig) {},
		},
		{
			name:    "missing train path",
			mutate:  func(cfg *models.TrainConfig) { cfg.Data.TrainPath = "" },
			wantErr: "train_path",
		},
		{
			name:    "bad truncation policy",
			mutate:  func(cfg *models.TrainConfig) { cfg.Data.Truncation = "middle" },
			wantErr: "truncation",
		},
		{
			name:    "zero group size",
			mutate:  func(cfg *models.TrainConfig) { cfg.Rollout.N = 0 },
			wantErr: "rollout.n",
		},
		{
			name: "mini batch does not divide step",
			mutate: func(cfg *models.TrainConfig) {
				cfg.Data.TrainBatchSize = 3
				cfg.Rollout.N = 4
				cfg.Trainer.MiniBatchSize = 5
			},
			wantErr: "evenly divide",
		},
		{
			name:    "unsupported estimator",
			mutate:  func(cfg *models.TrainConfig) { cfg.Algorithm.Estimator = "gae" },
			wantErr: "estimator",
		},
		{
			name:    "bad rollout mode",
			mutate:  func(cfg *models.TrainConfig) { cfg.Rollout.Mode = "eager" },
			wantErr: "rollout.mode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := config.ValidateTrainConfig(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("expected valid config, got %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %q", tt.wantErr, err.Error())
			}
			var runErr *models.RunError
			if !errors.As(err, &runErr) || runErr.Type != models.ErrConfigInvalid {
				t.Errorf("expected config_invalid run error, got %v", err)
			}
		})
	}
}

func TestLoadToolsConfig(t *testing.T) {
	toolsTOML := `[[tools]]
name = "bash"
kind = "bash"
description = "Execute bash commands in the workspace"
timeout_sec = 30.0
max_output_bytes = 8000
allowed_commands = ["ls", "find", "grep", "cat"]

[[tools]]
name = "read_file"
kind = "read_file"

[[tools]]
name = "todo"
kind = "todo"
`

	fsys := fstest.MapFS{
		"tools.toml": &fstest.MapFile{Data: []byte(toolsTOML)},
	}

	cfg, err := config.LoadToolsConfig(fsys, "tools.toml")
	if err != nil {
		t.Fatalf("LoadToolsConfig failed: %v", err)
	}

	if len(cfg.Tools) != 3 {
		t.Fatalf("expected 3 tools, got %d", len(cfg.Tools))
	}

	bash := cfg.Tools[0]
	if bash.Kind != models.ToolKindBash {
		t.Errorf("expected bash kind, got %s", bash.Kind)
	}
	if bash.MaxOutputBytes != 8000 {
		t.Errorf("expected max_output_bytes 8000, got %d", bash.MaxOutputBytes)
	}
	if len(bash.AllowedCommands) != 4 {
		t.Errorf("expected 4 allowed commands, got %d", len(bash.AllowedCommands))
	}

	// Defaults applied where omitted.
	if cfg.Tools[1].TimeoutSec != 30.0 {
		t.Errorf("expected default timeout 30, got %f", cfg.Tools[1].TimeoutSec)
	}
	if cfg.Tools[1].MaxOutputBytes != 10000 {
		t.Errorf("expected default max output, got %d", cfg.Tools[1].MaxOutputBytes)
	}
}

func TestLoadToolsConfigRejectsUnknownKind(t *testing.T) {
	fsys := fstest.MapFS{
		"tools.toml": &fstest.MapFile{Data: []byte(`[[tools]]
name = "browser"
kind = "browser"
`)},
	}

	if _, err := config.LoadToolsConfig(fsys, "tools.toml"); err == nil {
		t.Fatal("expected error for unknown tool kind")
	}
}

func TestLoadToolsConfigRejectsDuplicateNames(t *testing.T) {
	fsys := fstest.MapFS{
		"tools.toml": &fstest.MapFile{Data: []byte(`[[tools]]
name = "bash"
kind = "bash"

[[tools]]
name = "bash"
kind = "bash"
`)},
	}

	if _, err := config.LoadToolsConfig(fsys, "tools.toml"); err == nil {
		t.Fatal("expected error for duplicate tool names")
	}
}
