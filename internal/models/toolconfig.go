package models

// ToolKind is the closed set of tool capability kinds. New kinds are
// added here and given an executor in internal/tool.
type ToolKind string

const (
	ToolKindBash     ToolKind = "bash"
	ToolKindReadFile ToolKind = "read_file"
	ToolKindFileEdit ToolKind = "file_edit"
	ToolKindTodo     ToolKind = "todo"
)

// KnownToolKinds lists every kind the bridge can execute.
var KnownToolKinds = []ToolKind{ToolKindBash, ToolKindReadFile, ToolKindFileEdit, ToolKindTodo}

// ToolDescriptor declares one tool capability from tools.toml.
// Descriptors are validated at load time and immutable afterward.
type ToolDescriptor struct {
	Name            string   `toml:"name" json:"name"`
	Kind            ToolKind `toml:"kind" json:"kind"`
	Description     string   `toml:"description,omitempty" json:"description,omitempty"`
	TimeoutSec      float64  `toml:"timeout_sec" json:"timeout_sec"`
	MaxOutputBytes  int      `toml:"max_output_bytes" json:"max_output_bytes"`
	AllowedCommands []string `toml:"allowed_commands,omitempty" json:"allowed_commands,omitempty"`
}

// ToolsConfig is the parsed tools.toml registry manifest.
type ToolsConfig struct {
	Tools []ToolDescriptor `toml:"tools" json:"tools"`
}
