// Package grpo computes group-relative advantages: each trajectory's
// reward is normalized against the statistics of its own prompt group
// only. There is no value model and no cross-group normalization.
package grpo

import (
	"fmt"
	"math"

	"github.com/grove-rl/grove/internal/models"
)

// Epsilon guards the normalization against tiny group variance.
const Epsilon = 1e-6

// Estimate computes advantages for one prompt group from its reward
// records. The group baseline is the reward mean; the scale is the
// population standard deviation. A zero-variance group yields exactly
// zero advantages for every member.
func Estimate(records []models.RewardRecord) ([]models.AdvantageRecord, error) {
	n := len(records)
	if n == 0 {
		return nil, fmt.Errorf("cannot estimate advantages for an empty group")
	}

	mean := 0.0
	for _, r := range records {
		mean += r.Reward
	}
	mean /= float64(n)

	variance := 0.0
	for _, r := range records {
		d := r.Reward - mean
		variance += d * d
	}
	variance /= float64(n)
	std := math.Sqrt(variance)

	out := make([]models.AdvantageRecord, n)
	for i, r := range records {
		adv := 0.0
		if std > 0 {
			adv = (r.Reward - mean) / (std + Epsilon)
		}
		out[i] = models.AdvantageRecord{
			TrajectoryID: r.TrajectoryID,
			Advantage:    adv,
			Baseline:     mean,
			GroupStd:     std,
		}
	}
	return out, nil
}
