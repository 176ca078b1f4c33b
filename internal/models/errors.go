package models

import "fmt"

// ErrorType identifies the category of a fatal run error. Tool and
// scoring failures are not represented here: they are recovered
// locally and recorded on the trajectory or reward record instead.
type ErrorType string

const (
	// Configuration and batch assembly
	ErrConfigInvalid   ErrorType = "config_invalid"
	ErrDatasetInvalid  ErrorType = "dataset_invalid"
	ErrPromptOversized ErrorType = "prompt_oversized"

	// Infrastructure; these abort the step and the process
	ErrRuntimeUnavailable ErrorType = "runtime_unavailable"
	ErrOptimizerStep      ErrorType = "optimizer_step_failed"
	ErrCheckpointFailed   ErrorType = "checkpoint_failed"

	// Setup phase
	ErrWorkspaceResolve ErrorType = "workspace_resolve_failed"
	ErrSandboxCreate    ErrorType = "sandbox_create_failed"

	// Catch-all
	ErrInternalError ErrorType = "internal_error"
)

// RunError is a fatal error carrying its category.
type RunError struct {
	Type    ErrorType
	Message string
}

func (e *RunError) Error() string {
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// NewRunError creates a RunError with a formatted message.
func NewRunError(t ErrorType, format string, args ...any) *RunError {
	return &RunError{Type: t, Message: fmt.Sprintf(format, args...)}
}
