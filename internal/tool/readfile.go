package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/grove-rl/grove/internal/sandbox"
)

type readFileArgs struct {
	Path   string `json:"path"`
	Offset int    `json:"offset,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// readFileExecutor reads files relative to the sandbox workspace.
// Paths must stay inside the workspace; absolute paths and parent
// traversal are rejected.
type readFileExecutor struct {
	sandbox sandbox.Sandbox
}

func (e *readFileExecutor) Run(ctx context.Context, sessionID string, args []byte) (string, error) {
	var a readFileArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", fmt.Errorf("invalid read_file arguments: %w", err)
	}
	if a.Path == "" {
		return "", fmt.Errorf("read_file: path is required")
	}
	if path.IsAbs(a.Path) {
		return "", fmt.Errorf("read_file: path must be relative to the workspace")
	}
	clean := path.Clean(a.Path)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("read_file: path escapes the workspace")
	}
	if a.Offset < 0 || a.Limit < 0 {
		return "", fmt.Errorf("read_file: offset and limit must be non-negative")
	}

	cmd := fmt.Sprintf("cat -- %q", clean)
	if a.Offset > 0 || a.Limit > 0 {
		limit := a.Limit
		if limit == 0 {
			limit = 2000
		}
		cmd = fmt.Sprintf("tail -n +%d -- %q | head -n %d", a.Offset+1, clean, limit)
	}

	var stdout, stderr bytes.Buffer
	exitCode, err := e.sandbox.Exec(ctx, cmd, &stdout, &stderr, sandbox.ExecOptions{})
	if err != nil {
		return "", fmt.Errorf("read_file: %w", err)
	}
	if exitCode != 0 {
		return "", fmt.Errorf("read_file %s: %s", clean, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
