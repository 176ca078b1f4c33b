package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/grove-rl/grove/internal/models"
	"github.com/grove-rl/grove/internal/sandbox"
)

// fakeSandbox scripts Exec behavior for bridge tests.
type fakeSandbox struct {
	stdout   string
	stderr   string
	exitCode int
	err      error
	delay    time.Duration
	lastCmd  string
}

func (f *fakeSandbox) ID() string                                        { return "fake" }
func (f *fakeSandbox) CopyTo(ctx context.Context, src, dst string) error { return nil }
func (f *fakeSandbox) Destroy(ctx context.Context) error                 { return nil }
func (f *fakeSandbox) Cost() float64                                     { return 0 }

func (f *fakeSandbox) Exec(ctx context.Context, cmd string, stdout, stderr io.Writer, opts sandbox.ExecOptions) (int, error) {
	f.lastCmd = cmd
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return -1, fmt.Errorf("command timed out: %w", ctx.Err())
		}
	}
	if f.err != nil {
		return -1, f.err
	}
	io.WriteString(stdout, f.stdout)
	io.WriteString(stderr, f.stderr)
	return f.exitCode, nil
}

func newTestBridge(t *testing.T, sb sandbox.Sandbox, tools ...models.ToolDescriptor) *Bridge {
	t.Helper()
	b, err := NewBridge(&models.ToolsConfig{Tools: tools}, sb)
	if err != nil {
		t.Fatalf("NewBridge failed: %v", err)
	}
	return b
}

func bashCall(command string) models.ToolCall {
	args, _ := json.Marshal(map[string]string{"command": command})
	return models.ToolCall{Name: "bash", Arguments: args}
}

func TestInvokeBash(t *testing.T) {
	sb := &fakeSandbox{stdout: "main.go\nREADME.md\n"}
	b := newTestBridge(t, sb, models.ToolDescriptor{
		Name: "bash", Kind: models.ToolKindBash, TimeoutSec: 5, MaxOutputBytes: 10000,
	})

	result, failure := b.Invoke(context.Background(), "s1", bashCall("ls"))
	if failure != nil {
		t.Fatalf("unexpected failure: %+v", failure)
	}
	if !strings.Contains(result.Text, "main.go") {
		t.Errorf("unexpected result text: %q", result.Text)
	}
}

func TestInvokeUnregistered(t *testing.T) {
	b := newTestBridge(t, &fakeSandbox{})

	result, failure := b.Invoke(context.Background(), "s1", models.ToolCall{Name: "nope", Arguments: []byte("{}")})
	if result != nil {
		t.Fatal("expected no result for unregistered tool")
	}
	if failure == nil || failure.Reason != models.FailureUnregistered {
		t.Fatalf("expected unregistered failure, got %+v", failure)
	}
}

func TestInvokeTimeout(t *testing.T) {
	sb := &fakeSandbox{delay: time.Second}
	b := newTestBridge(t, sb, models.ToolDescriptor{
		Name: "bash", Kind: models.ToolKindBash, TimeoutSec: 0.05, MaxOutputBytes: 10000,
	})

	_, failure := b.Invoke(context.Background(), "s1", bashCall("sleep 10"))
	if failure == nil || failure.Reason != models.FailureTimeout {
		t.Fatalf("expected timeout failure, got %+v", failure)
	}
}

func TestInvokeInternalFailure(t *testing.T) {
	sb := &fakeSandbox{err: fmt.Errorf("exec transport broke")}
	b := newTestBridge(t, sb, models.ToolDescriptor{
		Name: "bash", Kind: models.ToolKindBash, TimeoutSec: 5, MaxOutputBytes: 10000,
	})

	_, failure := b.Invoke(context.Background(), "s1", bashCall("ls"))
	if failure == nil || failure.Reason != models.FailureInternal {
		t.Fatalf("expected internal failure, got %+v", failure)
	}
}

func TestInvokeTruncatesOutput(t *testing.T) {
	sb := &fakeSandbox{stdout: strings.Repeat("a", 100)}
	b := newTestBridge(t, sb, models.ToolDescriptor{
		Name: "bash", Kind: models.ToolKindBash, TimeoutSec: 5, MaxOutputBytes: 20,
	})

	result, failure := b.Invoke(context.Background(), "s1", bashCall("yes"))
	if failure != nil {
		t.Fatalf("unexpected failure: %+v", failure)
	}
	if !strings.Contains(result.Text, "[output truncated]") {
		t.Errorf("expected truncation marker, got %q", result.Text)
	}
	if len(result.Text) > 20+len("\n... [output truncated]") {
		t.Errorf("output not truncated: %d bytes", len(result.Text))
	}
}

func TestInvokeTruncatesOnRuneBoundary(t *testing.T) {
	// 20 two-byte runes; a 21-byte cap lands mid-rune.
	sb := &fakeSandbox{stdout: strings.Repeat("é", 20)}
	b := newTestBridge(t, sb, models.ToolDescriptor{
		Name: "bash", Kind: models.ToolKindBash, TimeoutSec: 5, MaxOutputBytes: 21,
	})

	result, failure := b.Invoke(context.Background(), "s1", bashCall("cat notes.txt"))
	if failure != nil {
		t.Fatalf("unexpected failure: %+v", failure)
	}
	if !utf8.ValidString(result.Text) {
		t.Fatalf("truncated output is not valid UTF-8: %q", result.Text)
	}
	if !strings.HasPrefix(result.Text, strings.Repeat("é", 10)) {
		t.Errorf("unexpected truncation point: %q", result.Text)
	}
	if !strings.Contains(result.Text, "[output truncated]") {
		t.Errorf("expected truncation marker, got %q", result.Text)
	}
}

func TestBashAllowlist(t *testing.T) {
	sb := &fakeSandbox{stdout: "ok"}
	b := newTestBridge(t, sb, models.ToolDescriptor{
		Name: "bash", Kind: models.ToolKindBash, TimeoutSec: 5,
		MaxOutputBytes: 10000, AllowedCommands: []string{"ls", "cat", "grep"},
	})

	if _, failure := b.Invoke(context.Background(), "s1", bashCall("ls -la")); failure != nil {
		t.Errorf("allowed command rejected: %+v", failure)
	}

	_, failure := b.Invoke(context.Background(), "s1", bashCall("rm -rf /"))
	if failure == nil || failure.Reason != models.FailureInternal {
		t.Fatalf("expected internal failure for disallowed command, got %+v", failure)
	}
	if !strings.Contains(failure.Message, "not in the allowed list") {
		t.Errorf("unexpected failure message: %q", failure.Message)
	}
}

func TestBashMalformedArguments(t *testing.T) {
	b := newTestBridge(t, &fakeSandbox{}, models.ToolDescriptor{
		Name: "bash", Kind: models.ToolKindBash, TimeoutSec: 5, MaxOutputBytes: 10000,
	})

	_, failure := b.Invoke(context.Background(), "s1", models.ToolCall{Name: "bash", Arguments: []byte(`{"command": 42}`)})
	if failure == nil || failure.Reason != models.FailureInternal {
		t.Fatalf("expected internal failure for malformed args, got %+v", failure)
	}
}

func TestReadFileRejectsEscapes(t *testing.T) {
	b := newTestBridge(t, &fakeSandbox{}, models.ToolDescriptor{
		Name: "read_file", Kind: models.ToolKindReadFile, TimeoutSec: 5, MaxOutputBytes: 10000,
	})

	for _, p := range []string{"/etc/passwd", "../secrets", "a/../../b"} {
		args, _ := json.Marshal(map[string]string{"path": p})
		_, failure := b.Invoke(context.Background(), "s1", models.ToolCall{Name: "read_file", Arguments: args})
		if failure == nil {
			t.Errorf("expected failure for path %q", p)
		}
	}
}

func TestReadFileOffsetLimit(t *testing.T) {
	sb := &fakeSandbox{stdout: "line3\nline4\n"}
	b := newTestBridge(t, sb, models.ToolDescriptor{
		Name: "read_file", Kind: models.ToolKindReadFile, TimeoutSec: 5, MaxOutputBytes: 10000,
	})

	args, _ := json.Marshal(map[string]any{"path": "src/main.rs", "offset": 2, "limit": 2})
	result, failure := b.Invoke(context.Background(), "s1", models.ToolCall{Name: "read_file", Arguments: args})
	if failure != nil {
		t.Fatalf("unexpected failure: %+v", failure)
	}
	if result.Text != "line3\nline4\n" {
		t.Errorf("unexpected result: %q", result.Text)
	}
	if !strings.Contains(sb.lastCmd, "tail -n +3") || !strings.Contains(sb.lastCmd, "head -n 2") {
		t.Errorf("unexpected command: %q", sb.lastCmd)
	}
}

func TestTodoSessionsAreIsolated(t *testing.T) {
	b := newTestBridge(t, &fakeSandbox{}, models.ToolDescriptor{
		Name: "todo", Kind: models.ToolKindTodo, TimeoutSec: 5, MaxOutputBytes: 10000,
	})

	call := func(sessionID string, args map[string]any) (*models.ToolResult, *models.ToolFailure) {
		raw, _ := json.Marshal(args)
		return b.Invoke(context.Background(), sessionID, models.ToolCall{Name: "todo", Arguments: raw})
	}

	if _, failure := call("s1", map[string]any{"action": "add", "content": "explore src"}); failure != nil {
		t.Fatalf("add failed: %+v", failure)
	}
	if _, failure := call("s1", map[string]any{"action": "complete", "index": 1}); failure != nil {
		t.Fatalf("complete failed: %+v", failure)
	}

	result, failure := call("s2", map[string]any{"action": "list"})
	if failure != nil {
		t.Fatalf("list failed: %+v", failure)
	}
	if result.Text != "no items" {
		t.Errorf("session s2 saw s1 items: %q", result.Text)
	}

	result, _ = call("s1", map[string]any{"action": "list"})
	if !strings.Contains(result.Text, "[x] explore src") {
		t.Errorf("expected completed item, got %q", result.Text)
	}
}

func TestFormatExecOutput(t *testing.T) {
	tests := []struct {
		name     string
		stdout   string
		stderr   string
		exitCode int
		want     string
	}{
		{"stdout only", "hello\n", "", 0, "hello\n"},
		{"empty", "", "", 0, "(no output)"},
		{"exit code", "", "not found\n", 1, "stderr:\nnot found\nexit code: 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatExecOutput(tt.stdout, tt.stderr, tt.exitCode); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
