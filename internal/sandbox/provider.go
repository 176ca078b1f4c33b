package sandbox

import (
	"context"
	"io"
	"time"
)

// Sandbox is an isolated workspace in which tool commands execute.
// Sandboxes are created once per run and shared by concurrent
// trajectories; Exec must be safe for concurrent use.
type Sandbox interface {
	// ID returns the unique identifier for this sandbox.
	ID() string

	// CopyTo copies a local file or directory into the sandbox.
	CopyTo(ctx context.Context, src, dst string) error

	// Exec executes a command in the sandbox, streaming stdout and
	// stderr to the provided writers. Returns the exit code or an
	// error on infrastructure failure.
	Exec(ctx context.Context, cmd string, stdout, stderr io.Writer, opts ExecOptions) (int, error)

	// Destroy removes the sandbox and cleans up all resources.
	Destroy(ctx context.Context) error

	// Cost returns the cost incurred by this sandbox.
	Cost() float64
}

// ExecOptions configures command execution.
type ExecOptions struct {
	Env     map[string]string
	Timeout time.Duration
	WorkDir string
}

// Provider is a factory for creating sandboxes.
type Provider interface {
	// Name returns the provider name (e.g. "local", "docker", "modal").
	Name() string

	// Create creates and starts a new sandbox.
	Create(ctx context.Context, opts CreateOptions) (Sandbox, error)
}

// CreateOptions configures sandbox creation.
type CreateOptions struct {
	// Name is a human-readable identifier; providers may generate one.
	Name string
	// ImageRef is the container image for docker/modal providers.
	ImageRef string
	// WorkspaceDir is the host path of the resolved workspace. The
	// local provider executes directly inside it; container providers
	// seed it into the sandbox.
	WorkspaceDir string
	CPUs         int
	MemoryMB     int
	Env          map[string]string
}
