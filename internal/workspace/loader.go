package workspace

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadRegistry loads a registry.json workspace manifest from a local
// filesystem path and validates it.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading registry file: %w", err)
	}

	var reg Registry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("parsing registry JSON: %w", err)
	}

	if len(reg.Workspaces) == 0 {
		return nil, fmt.Errorf("registry %s declares no workspaces", path)
	}

	seen := make(map[string]bool, len(reg.Workspaces))
	for i, e := range reg.Workspaces {
		if e.Name == "" {
			return nil, fmt.Errorf("workspace[%d]: name is required", i)
		}
		if seen[e.Name] {
			return nil, fmt.Errorf("duplicate workspace name %q", e.Name)
		}
		seen[e.Name] = true
		if e.GitURL == "" {
			return nil, fmt.Errorf("workspace %q: git_url is required", e.Name)
		}
	}

	return &reg, nil
}

// Find returns the entry with the given name.
func (r *Registry) Find(name string) (*Entry, error) {
	for i := range r.Workspaces {
		if r.Workspaces[i].Name == name {
			return &r.Workspaces[i], nil
		}
	}
	return nil, fmt.Errorf("workspace %q not found in registry %s", name, r.Name)
}
