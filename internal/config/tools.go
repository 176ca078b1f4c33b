package config

import (
	"fmt"
	"io/fs"
	"slices"

	"github.com/BurntSushi/toml"

	"github.com/grove-rl/grove/internal/models"
)

const (
	defaultToolTimeoutSec     = 30.0
	defaultToolMaxOutputBytes = 10000
)

// LoadToolsConfig loads and parses a tools.toml registry manifest from
// the given filesystem. Every descriptor is validated at load time;
// the bridge treats the result as immutable.
func LoadToolsConfig(fsys fs.FS, name string) (models.ToolsConfig, error) {
	var cfg models.ToolsConfig

	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return cfg, fmt.Errorf("reading %s: %w", name, err)
	}

	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return cfg, fmt.Errorf("parsing %s: %w", name, err)
	}

	if len(cfg.Tools) == 0 {
		return cfg, models.NewRunError(models.ErrConfigInvalid, "%s declares no tools", name)
	}

	seen := make(map[string]bool, len(cfg.Tools))
	for i := range cfg.Tools {
		d := &cfg.Tools[i]
		if d.Name == "" {
			return cfg, models.NewRunError(models.ErrConfigInvalid, "tools[%d]: name is required", i)
		}
		if seen[d.Name] {
			return cfg, models.NewRunError(models.ErrConfigInvalid, "duplicate tool name %q", d.Name)
		}
		seen[d.Name] = true

		if !slices.Contains(models.KnownToolKinds, d.Kind) {
			return cfg, models.NewRunError(models.ErrConfigInvalid, "tool %q: unknown kind %q", d.Name, d.Kind)
		}
		if d.TimeoutSec == 0 {
			d.TimeoutSec = defaultToolTimeoutSec
		}
		if d.TimeoutSec < 0 {
			return cfg, models.NewRunError(models.ErrConfigInvalid, "tool %q: timeout_sec must be positive", d.Name)
		}
		if d.MaxOutputBytes == 0 {
			d.MaxOutputBytes = defaultToolMaxOutputBytes
		}
	}

	return cfg, nil
}
