package executor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/grove-rl/grove/internal/config"
	"github.com/grove-rl/grove/internal/dataset"
	"github.com/grove-rl/grove/internal/driver"
	"github.com/grove-rl/grove/internal/interaction"
	"github.com/grove-rl/grove/internal/models"
	"github.com/grove-rl/grove/internal/reward"
	"github.com/grove-rl/grove/internal/rollout"
	"github.com/grove-rl/grove/internal/runtime"
	"github.com/grove-rl/grove/internal/sandbox"
	"github.com/grove-rl/grove/internal/sandbox/docker"
	"github.com/grove-rl/grove/internal/sandbox/local"
	"github.com/grove-rl/grove/internal/sandbox/modal"
	"github.com/grove-rl/grove/internal/tool"
	"github.com/grove-rl/grove/internal/trainer"
	"github.com/grove-rl/grove/internal/util"
	"github.com/grove-rl/grove/internal/workspace"
)

// RunFromConfig loads a train config file, wires every component, and
// executes the training run. The sandbox is destroyed on return.
func RunFromConfig(ctx context.Context, configPath string) (*models.RunResult, error) {
	cfg, err := config.LoadTrainConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading train config: %w", err)
	}
	configureLogging(cfg.LogLevel)

	client, err := runtime.NewClient(cfg.Runtime)
	if err != nil {
		return nil, err
	}

	sb, err := createSandbox(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := sb.Destroy(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("destroying sandbox failed", "sandbox", sb.ID(), "error", err)
		}
	}()

	toolsDir := filepath.Dir(cfg.ToolsPath)
	toolsCfg, err := config.LoadToolsConfig(os.DirFS(toolsDir), filepath.Base(cfg.ToolsPath))
	if err != nil {
		return nil, fmt.Errorf("loading tools config: %w", err)
	}
	bridge, err := tool.NewBridge(&toolsCfg, sb)
	if err != nil {
		return nil, fmt.Errorf("building tool bridge: %w", err)
	}

	trainPrompts, err := dataset.LoadFromPath(cfg.Data.TrainPath)
	if err != nil {
		return nil, err
	}
	batcher, err := dataset.NewBatcher(trainPrompts, cfg.Data.TrainBatchSize)
	if err != nil {
		return nil, err
	}

	var valPrompts []models.Prompt
	if cfg.Data.ValPath != "" {
		valPrompts, err = dataset.LoadFromPath(cfg.Data.ValPath)
		if err != nil {
			return nil, err
		}
	}

	sampling := runtime.SamplingParams{
		Temperature: cfg.Rollout.Temperature,
		TopP:        cfg.Rollout.TopP,
	}
	trainDriver := driver.New(client, client, bridge, cfg.Budget(), sampling)
	if cfg.Rollout.Interaction != "" {
		guide, err := interaction.Lookup(cfg.Rollout.Interaction)
		if err != nil {
			return nil, err
		}
		trainDriver.WithGuide(guide)
	}
	scheduler, err := rollout.New(trainDriver, cfg.Rollout.N, rollout.Mode(cfg.Rollout.Mode), cfg.Rollout.MaxConcurrent)
	if err != nil {
		return nil, err
	}

	// Evaluation samples greedily, once per prompt.
	var evalSched RolloutScheduler
	if len(valPrompts) > 0 {
		evalDriver := driver.New(client, client, bridge, cfg.Budget(), runtime.SamplingParams{Temperature: 0, TopP: 1.0})
		evalSched, err = rollout.New(evalDriver, 1, rollout.ModeAsync, cfg.Rollout.MaxConcurrent)
		if err != nil {
			return nil, err
		}
	}

	scorer, err := reward.Lookup(cfg.Reward.Name)
	if err != nil {
		return nil, err
	}

	orchestrator := New(cfg, Collaborators{
		Tokenizer:    client,
		TrainBatcher: batcher,
		ValPrompts:   valPrompts,
		Scheduler:    scheduler,
		EvalSched:    evalSched,
		Scorer:       reward.NewGroupScorer(scorer),
		RefEval:      trainer.NewReferenceEvaluator(client, cfg.Trainer.RefConcurrent),
		Updater:      trainer.NewPolicyUpdater(client, cfg.Algorithm, cfg.Trainer),
		Checkpointer: client,
	})

	return orchestrator.Run(ctx)
}

func configureLogging(level string) {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

// createSandbox resolves the configured workspace and boots one
// sandbox for the run. All trajectories share it.
func createSandbox(ctx context.Context, cfg models.TrainConfig) (sandbox.Sandbox, error) {
	reg, err := workspace.LoadRegistry(cfg.Sandbox.RegistryPath)
	if err != nil {
		return nil, models.NewRunError(models.ErrWorkspaceResolve, "%v", err)
	}
	if _, err := reg.Find(cfg.Sandbox.Workspace); err != nil {
		return nil, models.NewRunError(models.ErrWorkspaceResolve, "%v", err)
	}

	resolver, err := workspace.NewResolver()
	if err != nil {
		return nil, models.NewRunError(models.ErrWorkspaceResolve, "%v", err)
	}
	resolved, err := resolver.Resolve(ctx, reg)
	if err != nil {
		return nil, models.NewRunError(models.ErrWorkspaceResolve, "%v", err)
	}

	var workspaceDir string
	for _, w := range resolved {
		if w.Name == cfg.Sandbox.Workspace {
			workspaceDir = w.Dir
			break
		}
	}

	var provider sandbox.Provider
	switch cfg.Sandbox.Provider {
	case "local":
		provider = local.NewProvider()
	case "docker":
		provider = docker.NewProvider()
	case "modal":
		provider, err = modal.NewProvider(modal.ProviderConfig{
			AppName: cfg.Sandbox.AppName,
			Regions: cfg.Sandbox.Regions,
			Verbose: cfg.Sandbox.Verbose,
		})
		if err != nil {
			return nil, models.NewRunError(models.ErrSandboxCreate, "%v", err)
		}
	default:
		return nil, models.NewRunError(models.ErrConfigInvalid, "unsupported sandbox provider: %s", cfg.Sandbox.Provider)
	}

	memoryMB := 0
	if cfg.Sandbox.Memory != "" {
		memoryMB, err = util.ParseMemory(cfg.Sandbox.Memory)
		if err != nil {
			return nil, models.NewRunError(models.ErrConfigInvalid, "sandbox memory: %v", err)
		}
	}

	sb, err := provider.Create(ctx, sandbox.CreateOptions{
		Name:         "grove-" + cfg.Sandbox.Workspace,
		ImageRef:     cfg.Sandbox.Image,
		WorkspaceDir: workspaceDir,
		CPUs:         cfg.Sandbox.CPUs,
		MemoryMB:     memoryMB,
	})
	if err != nil {
		return nil, models.NewRunError(models.ErrSandboxCreate, "%v", err)
	}

	slog.Info("sandbox ready",
		"provider", provider.Name(),
		"sandbox", sb.ID(),
		"workspace", cfg.Sandbox.Workspace)
	return sb, nil
}
