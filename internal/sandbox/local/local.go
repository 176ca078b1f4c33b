package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/grove-rl/grove/internal/sandbox"
)

// Provider implements the local host sandbox provider. Commands run
// directly on the host with the workspace directory as the working
// directory; there is no isolation beyond the directory boundary.
type Provider struct{}

// NewProvider creates a new local provider.
func NewProvider() *Provider {
	return &Provider{}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "local"
}

// Create creates a local sandbox rooted at the workspace directory.
func (p *Provider) Create(ctx context.Context, opts sandbox.CreateOptions) (sandbox.Sandbox, error) {
	if opts.WorkspaceDir == "" {
		return nil, fmt.Errorf("local sandbox requires a workspace directory")
	}
	info, err := os.Stat(opts.WorkspaceDir)
	if err != nil {
		return nil, fmt.Errorf("stat workspace: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace is not a directory: %s", opts.WorkspaceDir)
	}

	id := opts.Name
	if id == "" {
		id = fmt.Sprintf("local-%d", time.Now().UnixNano())
	}

	return &LocalSandbox{
		id:      id,
		workDir: opts.WorkspaceDir,
		env:     opts.Env,
	}, nil
}

// LocalSandbox executes commands on the host via bash.
type LocalSandbox struct {
	id      string
	workDir string
	env     map[string]string
}

// ID returns the sandbox identifier.
func (s *LocalSandbox) ID() string {
	return s.id
}

// CopyTo copies a local file or directory into the workspace.
func (s *LocalSandbox) CopyTo(ctx context.Context, src, dst string) error {
	cmd := exec.CommandContext(ctx, "cp", "-r", src, dst)
	cmd.Dir = s.workDir
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("copying into workspace: %w: %s", err, out)
	}
	return nil
}

// Exec executes a command through bash in the workspace directory.
func (s *LocalSandbox) Exec(ctx context.Context, cmd string, stdout, stderr io.Writer, opts sandbox.ExecOptions) (int, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	execCmd := exec.CommandContext(ctx, "bash", "-c", cmd)
	execCmd.Dir = s.workDir
	if opts.WorkDir != "" {
		execCmd.Dir = opts.WorkDir
	}
	execCmd.Stdout = stdout
	execCmd.Stderr = stderr

	execCmd.Env = os.Environ()
	for k, v := range s.env {
		execCmd.Env = append(execCmd.Env, fmt.Sprintf("%s=%s", k, v))
	}
	for k, v := range opts.Env {
		execCmd.Env = append(execCmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	err := execCmd.Run()
	if err != nil {
		// Deadline kills surface as ExitError too; check the context first.
		if ctx.Err() == context.DeadlineExceeded {
			return -1, fmt.Errorf("command timed out: %w", context.DeadlineExceeded)
		}
		if exitErr, ok := err.(*exec.ExitError); ok {
			return exitErr.ExitCode(), nil
		}
		return -1, fmt.Errorf("executing command: %w", err)
	}

	return 0, nil
}

// Destroy is a no-op: the workspace directory is owned by the
// workspace resolver, not the sandbox.
func (s *LocalSandbox) Destroy(ctx context.Context) error {
	return nil
}

// Cost returns 0; host execution is free.
func (s *LocalSandbox) Cost() float64 {
	return 0
}
