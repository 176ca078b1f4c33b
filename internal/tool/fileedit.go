package tool

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"path"
	"strconv"
	"strings"

	"github.com/grove-rl/grove/internal/sandbox"
)

const (
	// maxEditFileBytes caps the size of files the editor will touch.
	maxEditFileBytes = 10 * 1024 * 1024

	// writeChunkBytes is the base64 payload size per shell append.
	// Must be a multiple of 4 so every chunk decodes standalone.
	writeChunkBytes = 128 * 1024
)

type fileEditArgs struct {
	Filepath  string `json:"filepath"`
	OldString string `json:"old_string"`
	NewString string `json:"new_string"`
}

// fileEditExecutor replaces the first occurrence of a string in a
// workspace file, keeping a .bak copy of the original. Paths follow
// the same workspace discipline as read_file. Recoverable mistakes
// (missing file, string not found) are reported back to the model as
// tool output rather than failing the trajectory.
type fileEditExecutor struct {
	sandbox sandbox.Sandbox
}

func (e *fileEditExecutor) Run(ctx context.Context, sessionID string, args []byte) (string, error) {
	var a fileEditArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", fmt.Errorf("invalid file_edit arguments: %w", err)
	}
	if a.Filepath == "" {
		return "", fmt.Errorf("file_edit: filepath is required")
	}
	if a.OldString == "" {
		return "", fmt.Errorf("file_edit: old_string is required")
	}
	if path.IsAbs(a.Filepath) {
		return "", fmt.Errorf("file_edit: filepath must be relative to the workspace")
	}
	clean := path.Clean(a.Filepath)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("file_edit: filepath escapes the workspace")
	}

	sizeOut, exitCode, err := e.run(ctx, fmt.Sprintf("wc -c < %q", clean))
	if err != nil {
		return "", fmt.Errorf("file_edit: %w", err)
	}
	if exitCode != 0 {
		return fmt.Sprintf("Error: File not found: %s", clean), nil
	}
	size, err := strconv.Atoi(strings.TrimSpace(sizeOut))
	if err != nil {
		return "", fmt.Errorf("file_edit %s: unreadable size %q", clean, strings.TrimSpace(sizeOut))
	}
	if size > maxEditFileBytes {
		return fmt.Sprintf("Error: File too large: %d bytes (limit %d)", size, maxEditFileBytes), nil
	}

	encoded, exitCode, err := e.run(ctx, fmt.Sprintf("base64 -- %q", clean))
	if err != nil {
		return "", fmt.Errorf("file_edit: %w", err)
	}
	if exitCode != 0 {
		return fmt.Sprintf("Error: File not found: %s", clean), nil
	}
	raw, err := base64.StdEncoding.DecodeString(strings.Map(dropSpace, encoded))
	if err != nil {
		return "", fmt.Errorf("file_edit %s: decoding content: %w", clean, err)
	}
	content := string(raw)

	if !strings.Contains(content, a.OldString) {
		return "Error: String not found in file", nil
	}
	edited := strings.Replace(content, a.OldString, a.NewString, 1)

	backup := clean + ".bak"
	if err := e.mustRun(ctx, fmt.Sprintf("cp -- %q %q", clean, backup)); err != nil {
		return "", fmt.Errorf("file_edit %s: backup: %w", clean, err)
	}
	if err := e.writeFile(ctx, clean, edited); err != nil {
		return "", fmt.Errorf("file_edit %s: %w", clean, err)
	}

	return fmt.Sprintf("Successfully edited %s\nReplaced 1 occurrence\nBackup: %s", clean, backup), nil
}

// writeFile stages the new content under a temp name and renames it
// into place. Content travels as base64 chunks so arbitrary bytes
// never hit shell quoting or argument length limits.
func (e *fileEditExecutor) writeFile(ctx context.Context, name, content string) error {
	tmp := name + ".tmp"
	if err := e.mustRun(ctx, fmt.Sprintf(": > %q", tmp)); err != nil {
		return err
	}
	encoded := base64.StdEncoding.EncodeToString([]byte(content))
	for len(encoded) > 0 {
		n := min(len(encoded), writeChunkBytes)
		cmd := fmt.Sprintf("printf %%s %q | base64 -d >> %q", encoded[:n], tmp)
		if err := e.mustRun(ctx, cmd); err != nil {
			return err
		}
		encoded = encoded[n:]
	}
	return e.mustRun(ctx, fmt.Sprintf("mv -- %q %q", tmp, name))
}

func (e *fileEditExecutor) run(ctx context.Context, cmd string) (string, int, error) {
	var stdout, stderr bytes.Buffer
	exitCode, err := e.sandbox.Exec(ctx, cmd, &stdout, &stderr, sandbox.ExecOptions{})
	if err != nil {
		return "", 0, err
	}
	return stdout.String(), exitCode, nil
}

func (e *fileEditExecutor) mustRun(ctx context.Context, cmd string) error {
	var stdout, stderr bytes.Buffer
	exitCode, err := e.sandbox.Exec(ctx, cmd, &stdout, &stderr, sandbox.ExecOptions{})
	if err != nil {
		return err
	}
	if exitCode != 0 {
		return fmt.Errorf("command failed: %s", strings.TrimSpace(stderr.String()))
	}
	return nil
}

func dropSpace(r rune) rune {
	if r == '\n' || r == '\r' || r == ' ' || r == '\t' {
		return -1
	}
	return r
}
