package reward

import (
	"context"
	"strings"
)

func init() {
	Register(&repoExploration{})
}

// repoExploration scores repository-exploration trajectories with a
// keyword and length heuristic: 40% for tool-usage evidence, 30% for
// analysis vocabulary, 30% for completeness of the final writeup.
type repoExploration struct{}

func (r *repoExploration) Name() string { return "repo_exploration" }

func (r *repoExploration) Score(ctx context.Context, rec Record) (float64, map[string]float64, error) {
	response := strings.TrimSpace(rec.Response)
	if len(response) < 50 {
		return 0.0, map[string]float64{"too_short": 0.0}, nil
	}

	lower := strings.ToLower(response)
	breakdown := make(map[string]float64)
	score := 0.0

	add := func(component string, points float64, words ...string) {
		for _, w := range words {
			if strings.Contains(lower, w) {
				breakdown[component] = points
				score += points
				return
			}
		}
	}

	add("planning", 0.15, "todo", "task", "plan", "list")
	add("commands", 0.15, "ls", "bash", "command", "directory", "execute", "pwd", "find")
	add("reading", 0.10, "read", "file", "examine", "code", "analyze")

	add("structure", 0.10, "structure", "architecture", "organize", "system")
	add("depth", 0.10, "understand", "analyze", "explore", "investigate")
	add("design", 0.10, "implement", "pattern", "design", "method")

	var completeness float64
	switch {
	case len(response) >= 500:
		completeness = 0.30
	case len(response) >= 300:
		completeness = 0.20
	case len(response) >= 150:
		completeness = 0.10
	}
	if completeness > 0 {
		breakdown["completeness"] = completeness
		score += completeness
	}

	if score > 1.0 {
		score = 1.0
	}
	return score, breakdown, nil
}
