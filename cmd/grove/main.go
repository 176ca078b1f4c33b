package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/grove-rl/grove/internal/executor"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: grove <train.yaml>")
		os.Exit(1)
	}

	configPath := os.Args[1]

	// Setup context with manual signal handling
	ctx, cancel := context.WithCancel(context.Background())

	// Listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	defer func() {
		signal.Stop(sigChan)
		cancel()
	}()

	go func() {
		sig := <-sigChan
		slog.Info("interrupt received, shutting down gracefully...", "signal", sig)
		cancel()
	}()

	result, err := executor.RunFromConfig(ctx, configPath)
	if err != nil {
		slog.Error("training run failed", "error", err)
		if result == nil {
			os.Exit(1)
		}
	}

	// Print summary
	fmt.Printf("\nRun: %s\n", result.RunName)
	fmt.Printf("Completed steps: %d/%d\n", result.CompletedSteps, result.TotalSteps)
	fmt.Printf("Final mean reward: %.4f\n", result.FinalMeanReward)
	fmt.Printf("Duration: %.2fs\n", result.TotalDurationSec)

	if result.Aborted {
		os.Exit(1)
	}
}
