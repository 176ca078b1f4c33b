// Package tool implements the registry and dispatch layer between
// trajectory generation and the concrete tool executors. Executor
// outcomes are mapped into the typed failure taxonomy the trajectory
// driver acts on; only programming errors surface as Go errors.
package tool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/grove-rl/grove/internal/models"
	"github.com/grove-rl/grove/internal/sandbox"
)

// Executor runs a single tool kind. Implementations return the raw
// output text or an error; the bridge classifies errors and enforces
// timeouts and output limits.
type Executor interface {
	Run(ctx context.Context, sessionID string, args []byte) (string, error)
}

// Invoker is the surface the trajectory driver depends on.
type Invoker interface {
	Invoke(ctx context.Context, sessionID string, call models.ToolCall) (*models.ToolResult, *models.ToolFailure)
}

type registeredTool struct {
	desc models.ToolDescriptor
	exec Executor
}

// Bridge dispatches tool calls to registered executors. It is safe for
// concurrent use once built.
type Bridge struct {
	tools map[string]registeredTool
}

// NewBridge builds a Bridge from the tools manifest, backing the
// workspace tools (bash, read_file, file_edit) with the given sandbox.
// Descriptors must already be validated.
func NewBridge(cfg *models.ToolsConfig, sb sandbox.Sandbox) (*Bridge, error) {
	b := &Bridge{tools: make(map[string]registeredTool)}
	for _, desc := range cfg.Tools {
		var exec Executor
		switch desc.Kind {
		case models.ToolKindBash:
			exec = &bashExecutor{sandbox: sb, allowed: desc.AllowedCommands}
		case models.ToolKindReadFile:
			exec = &readFileExecutor{sandbox: sb}
		case models.ToolKindFileEdit:
			exec = &fileEditExecutor{sandbox: sb}
		case models.ToolKindTodo:
			exec = newTodoExecutor()
		default:
			return nil, fmt.Errorf("tool %s: no executor for kind %s", desc.Name, desc.Kind)
		}
		b.tools[desc.Name] = registeredTool{desc: desc, exec: exec}
	}
	return b, nil
}

// Invoke runs one tool call. It never returns a Go error: every
// outcome is either a result or a typed failure the trajectory can
// carry. Unregistered tools fail immediately without consuming the
// tool's timeout.
func (b *Bridge) Invoke(ctx context.Context, sessionID string, call models.ToolCall) (result *models.ToolResult, failure *models.ToolFailure) {
	reg, ok := b.tools[call.Name]
	if !ok {
		return nil, &models.ToolFailure{
			Reason:  models.FailureUnregistered,
			Message: fmt.Sprintf("tool %q is not registered", call.Name),
		}
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("tool executor panicked", "tool", call.Name, "panic", r)
			result = nil
			failure = &models.ToolFailure{
				Reason:  models.FailureInternal,
				Message: fmt.Sprintf("tool %s panicked: %v", call.Name, r),
			}
		}
	}()

	timeout := time.Duration(reg.desc.TimeoutSec * float64(time.Second))
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := reg.exec.Run(execCtx, sessionID, call.Arguments)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, &models.ToolFailure{
				Reason:  models.FailureTimeout,
				Message: fmt.Sprintf("tool %s timed out after %s", call.Name, timeout),
			}
		}
		return nil, &models.ToolFailure{
			Reason:  models.FailureInternal,
			Message: err.Error(),
		}
	}

	if reg.desc.MaxOutputBytes > 0 && len(out) > reg.desc.MaxOutputBytes {
		// Back up to a rune boundary so the cut never produces
		// invalid UTF-8 for the tokenizer.
		n := reg.desc.MaxOutputBytes
		for n > 0 && !utf8.RuneStart(out[n]) {
			n--
		}
		out = out[:n] + "\n... [output truncated]"
	}
	return &models.ToolResult{Text: out}, nil
}
