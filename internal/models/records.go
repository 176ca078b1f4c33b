package models

import "time"

// RewardRecord is the scoring outcome for one trajectory. Produced
// once per trajectory, read-only afterward.
type RewardRecord struct {
	TrajectoryID string             `json:"trajectory_id"`
	Reward       float64            `json:"reward"`
	Breakdown    map[string]float64 `json:"breakdown,omitempty"`
	ScoreFailed  bool               `json:"score_failed,omitempty"`
}

// AdvantageRecord is the group-relative advantage for one trajectory.
// Derived purely from a group's RewardRecords, recomputed every step,
// never persisted across steps.
type AdvantageRecord struct {
	TrajectoryID string  `json:"trajectory_id"`
	Advantage    float64 `json:"advantage"`
	Baseline     float64 `json:"baseline"`
	GroupStd     float64 `json:"group_std"`
}

// UpdateMetrics are the loss components of one policy update.
type UpdateMetrics struct {
	PGLoss  float64 `json:"pg_loss"`
	KL      float64 `json:"kl"`
	Entropy float64 `json:"entropy"`
	Loss    float64 `json:"loss"`
}

// StepMetrics aggregates one training step.
type StepMetrics struct {
	Step             int           `json:"step"`
	Trajectories     int           `json:"trajectories"`
	MeanReward       float64       `json:"mean_reward"`
	MeanAbsAdvantage float64       `json:"mean_abs_advantage"`
	TruncationRate   float64       `json:"truncation_rate"`
	ToolFailureRate  float64       `json:"tool_failure_rate"`
	ScoringFailures  int           `json:"scoring_failures"`
	Update           UpdateMetrics `json:"update"`
	EvalMeanReward   *float64      `json:"eval_mean_reward,omitempty"`
	Checkpointed     bool          `json:"checkpointed,omitempty"`
	DurationSec      float64       `json:"duration_sec"`
}

// RunResult summarizes a full training run.
type RunResult struct {
	RunName          string        `json:"run_name"`
	TotalSteps       int           `json:"total_steps"`
	CompletedSteps   int           `json:"completed_steps"`
	Aborted          bool          `json:"aborted"`
	FinalMeanReward  float64       `json:"final_mean_reward"`
	StartedAt        time.Time     `json:"started_at"`
	EndedAt          time.Time     `json:"ended_at"`
	TotalDurationSec float64       `json:"total_duration_sec"`
	Steps            []StepMetrics `json:"steps"`
}
