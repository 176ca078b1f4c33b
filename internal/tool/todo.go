package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

type todoArgs struct {
	Action  string `json:"action"`
	Content string `json:"content,omitempty"`
	Index   int    `json:"index,omitempty"`
}

type todoItem struct {
	Content string
	Done    bool
}

// todoExecutor keeps a per-session task list in memory. Sessions are
// keyed by trajectory, so concurrent trajectories never see each
// other's lists.
type todoExecutor struct {
	mu    sync.Mutex
	lists map[string][]todoItem
}

func newTodoExecutor() *todoExecutor {
	return &todoExecutor{lists: make(map[string][]todoItem)}
}

func (e *todoExecutor) Run(ctx context.Context, sessionID string, args []byte) (string, error) {
	var a todoArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return "", fmt.Errorf("invalid todo arguments: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	list := e.lists[sessionID]
	switch a.Action {
	case "add":
		if strings.TrimSpace(a.Content) == "" {
			return "", fmt.Errorf("todo add: content is required")
		}
		list = append(list, todoItem{Content: a.Content})
		e.lists[sessionID] = list
		return fmt.Sprintf("added item %d: %s", len(list), a.Content), nil
	case "complete":
		if a.Index < 1 || a.Index > len(list) {
			return "", fmt.Errorf("todo complete: index %d out of range (1-%d)", a.Index, len(list))
		}
		list[a.Index-1].Done = true
		return fmt.Sprintf("completed item %d: %s", a.Index, list[a.Index-1].Content), nil
	case "list":
		if len(list) == 0 {
			return "no items", nil
		}
		var sb strings.Builder
		for i, item := range list {
			mark := " "
			if item.Done {
				mark = "x"
			}
			fmt.Fprintf(&sb, "%d. [%s] %s\n", i+1, mark, item.Content)
		}
		return strings.TrimSuffix(sb.String(), "\n"), nil
	default:
		return "", fmt.Errorf("todo: unknown action %q (want add, complete, or list)", a.Action)
	}
}
