package workspace

// Entry declares one exploration workspace in a registry.json file: a
// git repository the agent explores during rollouts.
type Entry struct {
	Name        string `json:"name"`
	GitURL      string `json:"git_url"`
	GitCommitID string `json:"git_commit_id,omitempty"` // empty = HEAD
	Path        string `json:"path,omitempty"`          // empty = repo root
}

// Registry is the parsed registry.json workspace manifest.
type Registry struct {
	Name       string  `json:"name"`
	Version    string  `json:"version,omitempty"`
	Workspaces []Entry `json:"workspaces"`
}

// Workspace is a resolved, locally checked-out workspace.
type Workspace struct {
	Name        string
	Dir         string
	GitCommitID string
}

// cloneKey uniquely identifies a git repository at a specific commit.
type cloneKey struct {
	GitURL      string
	GitCommitID string // empty means HEAD
}
