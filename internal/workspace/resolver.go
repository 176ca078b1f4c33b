package workspace

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Resolver resolves workspaces by cloning git repositories under a
// process-local base directory.
type Resolver struct {
	baseDir string
}

// NewResolver creates a Resolver. The base directory is created under
// os.TempDir() with a timestamp prefix.
func NewResolver() (*Resolver, error) {
	baseDir := filepath.Join(os.TempDir(), fmt.Sprintf("grove-workspaces-%d", time.Now().Unix()))
	slog.Debug("creating workspace resolver base directory", "path", baseDir)
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("creating base directory: %w", err)
	}
	return &Resolver{baseDir: baseDir}, nil
}

// BaseDir returns the base directory where repositories are cloned.
func (r *Resolver) BaseDir() string {
	return r.baseDir
}

// Resolve resolves every workspace in the registry by cloning the
// necessary repositories. Repositories are deduplicated by
// (git_url, git_commit_id) to avoid redundant clones.
func (r *Resolver) Resolve(ctx context.Context, reg *Registry) ([]Workspace, error) {
	groups := make(map[cloneKey][]Entry)
	for _, e := range reg.Workspaces {
		key := cloneKey{GitURL: e.GitURL, GitCommitID: e.GitCommitID}
		groups[key] = append(groups[key], e)
	}

	slog.Debug("resolving workspace registry",
		"registry", reg.Name,
		"unique_repos", len(groups),
		"total_workspaces", len(reg.Workspaces))

	clones := make(map[cloneKey]string)
	var clonesMu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	for key := range groups {
		g.Go(func() error {
			clonePath, err := r.cloneRepo(ctx, key)
			if err != nil {
				return fmt.Errorf("cloning %s: %w", key.GitURL, err)
			}
			clonesMu.Lock()
			clones[key] = clonePath
			clonesMu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []Workspace
	for _, e := range reg.Workspaces {
		key := cloneKey{GitURL: e.GitURL, GitCommitID: e.GitCommitID}
		dir := clones[key]
		if e.Path != "" {
			dir = filepath.Join(dir, e.Path)
		}
		if _, err := os.Stat(dir); err != nil {
			return nil, fmt.Errorf("workspace %s: path %s not found after clone: %w", e.Name, dir, err)
		}
		out = append(out, Workspace{
			Name:        e.Name,
			Dir:         dir,
			GitCommitID: e.GitCommitID,
		})
	}

	slog.Debug("resolved all workspaces", "count", len(out))
	return out, nil
}

// cloneRepo clones a repository to baseDir. For specific commits, it
// does a full clone then checks out the commit. For HEAD, it does a
// shallow clone.
func (r *Resolver) cloneRepo(ctx context.Context, key cloneKey) (string, error) {
	clonePath := filepath.Join(r.baseDir, r.cloneDirName(key))

	// Already cloned; idempotent
	if _, err := os.Stat(clonePath); err == nil {
		slog.Debug("repository already cloned", "url", key.GitURL, "path", clonePath)
		return clonePath, nil
	}

	if key.GitCommitID == "" {
		slog.Debug("cloning repository (shallow)", "url", key.GitURL, "dest", clonePath)
		cmd := exec.CommandContext(ctx, "git", "clone", "--depth", "1", key.GitURL, clonePath)
		if out, err := cmd.CombinedOutput(); err != nil {
			return "", fmt.Errorf("git clone: %w: %s", err, out)
		}
	} else {
		slog.Debug("cloning repository (full)", "url", key.GitURL, "commit", key.GitCommitID, "dest", clonePath)
		cmd := exec.CommandContext(ctx, "git", "clone", key.GitURL, clonePath)
		if out, err := cmd.CombinedOutput(); err != nil {
			return "", fmt.Errorf("git clone: %w: %s", err, out)
		}

		cmd = exec.CommandContext(ctx, "git", "checkout", key.GitCommitID)
		cmd.Dir = clonePath
		if out, err := cmd.CombinedOutput(); err != nil {
			return "", fmt.Errorf("git checkout %s: %w: %s", key.GitCommitID, err, out)
		}
	}

	return clonePath, nil
}

// cloneDirName generates a unique, filesystem-safe directory name for
// a clone key.
func (r *Resolver) cloneDirName(key cloneKey) string {
	h := sha256.Sum256([]byte(key.GitURL))
	urlHash := fmt.Sprintf("%x", h[:8])

	commitPart := "HEAD"
	if key.GitCommitID != "" {
		commitPart = key.GitCommitID
		if len(commitPart) > 12 {
			commitPart = commitPart[:12]
		}
	}

	repoName := filepath.Base(strings.TrimSuffix(key.GitURL, ".git"))
	return fmt.Sprintf("%s-%s-%s", repoName, urlHash, commitPart)
}
