package models

// Prompt is one dataset record: the task text plus the ground truth
// consumed by reward scoring. Tokens is populated during batch
// preparation, after the truncation policy has been applied.
type Prompt struct {
	ID          string `json:"id"`
	Text        string `json:"prompt"`
	GroundTruth string `json:"ground_truth"`
	DataSource  string `json:"data_source,omitempty"`
	Tokens      []int  `json:"-"`
}

// PromptGroup is one prompt plus its n sampled trajectories. All
// trajectories in a group share the same prompt and are scored and
// advantaged relative to each other only.
type PromptGroup struct {
	Prompt       Prompt
	Trajectories []Trajectory
}

// Size returns the number of trajectories in the group.
func (g *PromptGroup) Size() int {
	return len(g.Trajectories)
}
