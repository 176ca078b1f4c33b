package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/grove-rl/grove/internal/sandbox"
)

type bashArgs struct {
	Command string `json:"command"`
}

// bashExecutor runs shell commands inside the run's sandbox. When an
// allowlist is configured, the command's first word must match one of
// the allowed command names.
type bashExecutor struct {
	sandbox sandbox.Sandbox
	allowed []string
}

func (e *bashExecutor) Run(ctx context.Context, sessionID string, args []byte) (string, error) {
	var a bashArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", fmt.Errorf("invalid bash arguments: %w", err)
	}
	if strings.TrimSpace(a.Command) == "" {
		return "", fmt.Errorf("bash: command is required")
	}
	if err := e.checkAllowed(a.Command); err != nil {
		return "", err
	}

	var stdout, stderr bytes.Buffer
	exitCode, err := e.sandbox.Exec(ctx, a.Command, &stdout, &stderr, sandbox.ExecOptions{})
	if err != nil {
		return "", fmt.Errorf("bash: %w", err)
	}

	return formatExecOutput(stdout.String(), stderr.String(), exitCode), nil
}

func (e *bashExecutor) checkAllowed(command string) error {
	if len(e.allowed) == 0 {
		return nil
	}
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return fmt.Errorf("bash: command is required")
	}
	for _, name := range e.allowed {
		if fields[0] == name {
			return nil
		}
	}
	return fmt.Errorf("bash: command %q is not in the allowed list", fields[0])
}

// formatExecOutput renders command output the way the model sees it.
// Stderr and nonzero exit codes are included so the model can react to
// failing commands instead of treating them as tool failures.
func formatExecOutput(stdout, stderr string, exitCode int) string {
	var sb strings.Builder
	sb.WriteString(stdout)
	if stderr != "" {
		if sb.Len() > 0 && !strings.HasSuffix(stdout, "\n") {
			sb.WriteString("\n")
		}
		sb.WriteString("stderr:\n")
		sb.WriteString(stderr)
	}
	if exitCode != 0 {
		if sb.Len() > 0 && !strings.HasSuffix(sb.String(), "\n") {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "exit code: %d", exitCode)
	}
	if sb.Len() == 0 {
		return "(no output)"
	}
	return sb.String()
}
