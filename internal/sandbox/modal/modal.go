package modal

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/modal-labs/libmodal/modal-go"

	"github.com/grove-rl/grove/internal/sandbox"
)

// ProviderConfig holds Modal-specific configuration.
type ProviderConfig struct {
	// AppName is the Modal app to use. If empty, a unique name is generated.
	AppName string
	// Regions specifies the Modal regions (e.g. "us-east", "us-west").
	Regions []string
	// Verbose enables detailed sandbox logging.
	Verbose bool
}

// Provider implements the Modal sandbox provider using Modal Sandboxes.
// Images come from a registry reference; there is no build phase.
type Provider struct {
	client *modal.Client
	config ProviderConfig
}

// NewProvider creates a new Modal provider.
func NewProvider(config ProviderConfig) (*Provider, error) {
	slog.Debug("initializing modal client")
	client, err := modal.NewClient()
	if err != nil {
		return nil, fmt.Errorf("creating modal client: %w", err)
	}
	return &Provider{client: client, config: config}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "modal"
}

// Create creates and starts a Modal sandbox and seeds the workspace
// directory into it at /workspace.
func (p *Provider) Create(ctx context.Context, opts sandbox.CreateOptions) (sandbox.Sandbox, error) {
	if opts.ImageRef == "" {
		return nil, fmt.Errorf("modal sandbox requires an image reference")
	}

	appName := opts.Name
	if appName == "" {
		appName = p.config.AppName
	}
	if appName == "" {
		appName = fmt.Sprintf("grove-%d", time.Now().UnixNano())
	}

	slog.Debug("creating modal app", "name", appName)
	app, err := p.client.Apps.FromName(ctx, appName, &modal.AppFromNameParams{
		CreateIfMissing: true,
	})
	if err != nil {
		return nil, fmt.Errorf("creating modal app: %w", err)
	}

	image := p.client.Images.FromRegistry(opts.ImageRef, nil)

	cpuCount := opts.CPUs
	if cpuCount <= 0 {
		cpuCount = 1
	}
	memoryMiB := opts.MemoryMB
	if memoryMiB <= 0 {
		memoryMiB = 2048
	}

	envVars := make(map[string]string)
	for k, v := range opts.Env {
		envVars[k] = v
	}

	slog.Debug("creating modal sandbox",
		"app", appName,
		"image", opts.ImageRef,
		"cpus", cpuCount,
		"memory_mib", memoryMiB,
		"regions", p.config.Regions)

	sb, err := p.client.Sandboxes.Create(ctx, app, image, &modal.SandboxCreateParams{
		CPU:       float64(cpuCount),
		MemoryMiB: memoryMiB,
		Env:       envVars,
		Timeout:   24 * time.Hour, // Maximum allowed
		Verbose:   p.config.Verbose,
		Regions:   p.config.Regions,
	})
	if err != nil {
		return nil, fmt.Errorf("creating modal sandbox: %w", err)
	}

	slog.Debug("modal sandbox created", "sandbox_id", sb.SandboxID)

	ms := &ModalSandbox{
		sandbox:   sb,
		appName:   appName,
		startTime: time.Now(),
		cpuCount:  cpuCount,
		memoryMiB: memoryMiB,
	}

	if opts.WorkspaceDir != "" {
		if err := ms.CopyTo(ctx, opts.WorkspaceDir, "/workspace"); err != nil {
			ms.Destroy(context.Background())
			return nil, fmt.Errorf("seeding workspace: %w", err)
		}
	}

	return ms, nil
}

// ModalSandbox represents a running Modal sandbox.
type ModalSandbox struct {
	sandbox   *modal.Sandbox
	appName   string
	startTime time.Time
	cpuCount  int
	memoryMiB int
}

// ID returns the sandbox ID.
func (s *ModalSandbox) ID() string {
	return s.sandbox.SandboxID
}

// CopyTo copies a local file or directory into the sandbox.
func (s *ModalSandbox) CopyTo(ctx context.Context, src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	dstDir := filepath.Dir(dst)
	if dstDir != "/" && dstDir != "." {
		if _, err := s.execSimple(ctx, fmt.Sprintf("mkdir -p %q", dstDir)); err != nil {
			return fmt.Errorf("creating directory %s: %w", dstDir, err)
		}
	}

	if info.IsDir() {
		return s.copyDirTo(ctx, src, dst)
	}
	return s.copyFileTo(ctx, src, dst)
}

func (s *ModalSandbox) copyFileTo(ctx context.Context, src, dst string) error {
	content, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("reading source file: %w", err)
	}

	f, err := s.sandbox.Open(ctx, dst, "w")
	if err != nil {
		return fmt.Errorf("opening destination file: %w", err)
	}

	if _, err := f.Write(content); err != nil {
		f.Close()
		return fmt.Errorf("writing to destination: %w", err)
	}
	if err := f.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flushing file: %w", err)
	}
	return f.Close()
}

func (s *ModalSandbox) copyDirTo(ctx context.Context, src, dst string) error {
	return filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		relPath, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		dstPath := filepath.Join(dst, relPath)

		if info.IsDir() {
			_, err := s.execSimple(ctx, fmt.Sprintf("mkdir -p %q", dstPath))
			return err
		}
		return s.copyFileTo(ctx, path, dstPath)
	})
}

// execSimple runs a command discarding output and returns the exit code.
func (s *ModalSandbox) execSimple(ctx context.Context, cmd string) (int, error) {
	process, err := s.sandbox.Exec(ctx, []string{"bash", "-c", cmd}, &modal.SandboxExecParams{})
	if err != nil {
		return -1, err
	}
	io.Copy(io.Discard, process.Stdout)
	io.Copy(io.Discard, process.Stderr)
	return process.Wait(ctx)
}

// Exec executes a command in the sandbox.
func (s *ModalSandbox) Exec(ctx context.Context, cmd string, stdout, stderr io.Writer, opts sandbox.ExecOptions) (int, error) {
	execParams := &modal.SandboxExecParams{
		Env: opts.Env,
	}
	if opts.Timeout > 0 {
		execParams.Timeout = opts.Timeout
	}
	if opts.WorkDir != "" {
		execParams.Workdir = opts.WorkDir
	}

	process, err := s.sandbox.Exec(ctx, []string{"bash", "-c", cmd}, execParams)
	if err != nil {
		return -1, fmt.Errorf("executing command: %w", err)
	}

	done := make(chan struct{}, 2)
	go func() {
		if stdout != nil {
			io.Copy(stdout, process.Stdout)
		} else {
			io.Copy(io.Discard, process.Stdout)
		}
		done <- struct{}{}
	}()
	go func() {
		if stderr != nil {
			io.Copy(stderr, process.Stderr)
		} else {
			io.Copy(io.Discard, process.Stderr)
		}
		done <- struct{}{}
	}()

	// Streams must be fully consumed before Wait
	<-done
	<-done

	exitCode, err := process.Wait(ctx)
	if err != nil {
		return -1, fmt.Errorf("waiting for process: %w", err)
	}
	return exitCode, nil
}

// Destroy terminates the sandbox and stops its app.
func (s *ModalSandbox) Destroy(ctx context.Context) error {
	slog.Debug("destroying modal sandbox", "sandbox_id", s.sandbox.SandboxID, "app", s.appName)

	if err := s.sandbox.Terminate(ctx); err != nil {
		if !strings.Contains(err.Error(), "already terminated") &&
			!strings.Contains(err.Error(), "not found") {
			return fmt.Errorf("terminating sandbox: %w", err)
		}
	}

	if err := s.stopApp(ctx); err != nil {
		return fmt.Errorf("stopping app: %w", err)
	}
	return nil
}

// stopApp stops the Modal app using the modal CLI. The modal-go SDK
// does not expose AppStop on the public API.
func (s *ModalSandbox) stopApp(ctx context.Context) error {
	modalPath, err := exec.LookPath("modal")
	if err != nil {
		return fmt.Errorf("modal CLI not found: required to clean up apps, install with: pip install modal")
	}

	cmd := exec.CommandContext(ctx, modalPath, "app", "stop", s.appName)
	output, err := cmd.CombinedOutput()
	if err != nil {
		outStr := string(output)
		if strings.Contains(outStr, "already stopped") ||
			strings.Contains(outStr, "not found") ||
			strings.Contains(outStr, "Could not find") {
			return nil
		}
		return fmt.Errorf("modal app stop failed: %s", outStr)
	}
	return nil
}

// Cost returns the approximate cost incurred by this sandbox.
// Modal pricing (approximate, as of 2024):
// - CPU: ~$0.000463 per CPU-second
// - Memory: ~$0.000058 per GiB-second
func (s *ModalSandbox) Cost() float64 {
	duration := time.Since(s.startTime).Seconds()
	cpuCost := duration * float64(s.cpuCount) * 0.000463
	memoryCost := duration * (float64(s.memoryMiB) / 1024.0) * 0.000058
	return cpuCost + memoryCost
}
