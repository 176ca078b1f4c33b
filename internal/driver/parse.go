package driver

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/grove-rl/grove/internal/models"
)

const (
	toolCallOpen  = "<tool_call>"
	toolCallClose = "</tool_call>"

	toolResponseOpen  = "<tool_response>"
	toolResponseClose = "</tool_response>"

	feedbackOpen  = "<feedback>"
	feedbackClose = "</feedback>"
)

// ExtractToolCall scans a generated span for a tool-call block. A span
// with no block means the model produced a final answer; a present but
// malformed block is an error the caller records as a tool failure.
func ExtractToolCall(text string) (*models.ToolCall, error) {
	start := strings.Index(text, toolCallOpen)
	if start < 0 {
		return nil, nil
	}

	rest := text[start+len(toolCallOpen):]
	end := strings.Index(rest, toolCallClose)
	if end < 0 {
		return nil, fmt.Errorf("tool call block is not closed")
	}

	payload := strings.TrimSpace(rest[:end])
	var call models.ToolCall
	if err := json.Unmarshal([]byte(payload), &call); err != nil {
		return nil, fmt.Errorf("tool call is not valid JSON: %w", err)
	}
	if call.Name == "" {
		return nil, fmt.Errorf("tool call has no name")
	}
	if len(call.Arguments) == 0 {
		call.Arguments = json.RawMessage("{}")
	}
	return &call, nil
}

// wrapToolResponse renders a tool result the way it is fed back into
// the model context.
func wrapToolResponse(text string) string {
	return "\n" + toolResponseOpen + "\n" + text + "\n" + toolResponseClose + "\n"
}

// wrapFeedback renders an interaction guidance message for insertion
// into the model context.
func wrapFeedback(text string) string {
	return "\n" + feedbackOpen + "\n" + text + "\n" + feedbackClose + "\n"
}
