package workspace_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grove-rl/grove/internal/workspace"
)

func writeRegistry(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "registry.json")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing registry: %v", err)
	}
	return path
}

func TestLoadRegistry(t *testing.T) {
	path := writeRegistry(t, `{
  "name": "exploration",
  "version": "1.0",
  "workspaces": [
    {"name": "hyperswitch", "git_url": "https://example.com/hyperswitch.git", "git_commit_id": "abc123"},
    {"name": "subdir", "git_url": "https://example.com/mono.git", "path": "services/api"}
  ]
}`)

	reg, err := workspace.LoadRegistry(path)
	if err != nil {
		t.Fatalf("LoadRegistry failed: %v", err)
	}

	if reg.Name != "exploration" {
		t.Errorf("expected name exploration, got %s", reg.Name)
	}
	if len(reg.Workspaces) != 2 {
		t.Fatalf("expected 2 workspaces, got %d", len(reg.Workspaces))
	}

	e, err := reg.Find("hyperswitch")
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if e.GitCommitID != "abc123" {
		t.Errorf("expected commit abc123, got %s", e.GitCommitID)
	}

	if _, err := reg.Find("missing"); err == nil {
		t.Error("expected error for missing workspace")
	}
}

func TestLoadRegistryValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "empty workspaces",
			content: `{"name": "x", "workspaces": []}`,
			wantErr: "no workspaces",
		},
		{
			name:    "missing name",
			content: `{"name": "x", "workspaces": [{"git_url": "https://example.com/r.git"}]}`,
			wantErr: "name is required",
		},
		{
			name:    "missing git url",
			content: `{"name": "x", "workspaces": [{"name": "r"}]}`,
			wantErr: "git_url is required",
		},
		{
			name: "duplicate names",
			content: `{"name": "x", "workspaces": [
				{"name": "r", "git_url": "https://example.com/a.git"},
				{"name": "r", "git_url": "https://example.com/b.git"}
			]}`,
			wantErr: "duplicate workspace name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := workspace.LoadRegistry(writeRegistry(t, tt.content))
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %q", tt.wantErr, err.Error())
			}
		})
	}
}
