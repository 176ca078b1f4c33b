package docker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/grove-rl/grove/internal/sandbox"
)

// Provider implements the Docker sandbox provider.
type Provider struct{}

// NewProvider creates a new Docker provider.
func NewProvider() *Provider {
	return &Provider{}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "docker"
}

// Create starts a long-running container from the configured image and
// seeds the workspace directory into it at /workspace.
func (p *Provider) Create(ctx context.Context, opts sandbox.CreateOptions) (sandbox.Sandbox, error) {
	if opts.ImageRef == "" {
		return nil, fmt.Errorf("docker sandbox requires an image reference")
	}

	containerID := opts.Name
	if containerID == "" {
		containerID = fmt.Sprintf("grove-%d", time.Now().UnixNano())
	}

	args := []string{"run", "-d", "--name", containerID}
	if opts.CPUs > 0 {
		args = append(args, "--cpus", fmt.Sprintf("%d", opts.CPUs))
	}
	if opts.MemoryMB > 0 {
		args = append(args, "--memory", fmt.Sprintf("%dm", opts.MemoryMB))
	}
	for k, v := range opts.Env {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, v))
	}
	args = append(args, opts.ImageRef, "sleep", "infinity")

	cmd := exec.CommandContext(ctx, "docker", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("creating docker container: %w: %s", err, stderr.String())
	}

	sb := &DockerSandbox{containerID: containerID}

	if opts.WorkspaceDir != "" {
		if err := sb.CopyTo(ctx, opts.WorkspaceDir, "/workspace"); err != nil {
			sb.Destroy(context.Background())
			return nil, fmt.Errorf("seeding workspace: %w", err)
		}
	}

	return sb, nil
}

// DockerSandbox represents a running Docker container.
type DockerSandbox struct {
	containerID string
}

// ID returns the container ID.
func (s *DockerSandbox) ID() string {
	return s.containerID
}

// CopyTo copies a local file or directory into the container.
func (s *DockerSandbox) CopyTo(ctx context.Context, src, dst string) error {
	mkdirCmd := exec.CommandContext(ctx, "docker", "exec", s.containerID, "mkdir", "-p", dst)
	if err := mkdirCmd.Run(); err != nil {
		return fmt.Errorf("creating directory %s: %w", dst, err)
	}

	cmd := exec.CommandContext(ctx, "docker", "cp", src+"/.", fmt.Sprintf("%s:%s", s.containerID, dst))
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("copying to container: %w: %s", err, stderr.String())
	}
	return nil
}

// Exec executes a command in the container.
func (s *DockerSandbox) Exec(ctx context.Context, cmd string, stdout, stderr io.Writer, opts sandbox.ExecOptions) (int, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	args := []string{"exec"}
	for k, v := range opts.Env {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, v))
	}
	if opts.WorkDir != "" {
		args = append(args, "-w", opts.WorkDir)
	}
	args = append(args, s.containerID, "bash", "-c", cmd)

	execCmd := exec.CommandContext(ctx, "docker", args...)
	execCmd.Stdout = stdout
	execCmd.Stderr = stderr

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

// Destroy force-removes the container.
func (s *DockerSandbox) Destroy(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "docker", "rm", "-f", s.containerID)
	if err := cmd.Run(); err != nil {
		if !strings.Contains(err.Error(), "No such container") {
			return fmt.Errorf("removing container: %w", err)
		}
	}
	return nil
}

// Cost returns 0; local Docker is free.
func (s *DockerSandbox) Cost() float64 {
	return 0
}
