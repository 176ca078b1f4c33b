// Package reward scores terminal trajectories. Scorers are pure
// functions of the trajectory and its prompt metadata; they are looked
// up by name from a process-wide registry populated at init time.
package reward

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/grove-rl/grove/internal/models"
)

// SentinelReward is assigned when scoring a trajectory fails. It is a
// finite penalty so group statistics stay well defined.
const SentinelReward = -1.0

// Record is the read-only view a scorer receives.
type Record struct {
	TrajectoryID string
	PromptID     string
	Prompt       string
	GroundTruth  string
	DataSource   string
	Response     string
	Turns        []models.Turn
	Status       models.TerminalStatus
}

// Scorer maps one terminal trajectory to a scalar reward, optionally
// with a component breakdown. Scorers must be deterministic: the same
// record always yields the same reward.
type Scorer interface {
	Name() string
	Score(ctx context.Context, rec Record) (float64, map[string]float64, error)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Scorer)
)

// Register adds a scorer to the registry. It panics on duplicate
// names; registration happens at init time only.
func Register(s Scorer) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[s.Name()]; exists {
		panic(fmt.Sprintf("reward scorer %q registered twice", s.Name()))
	}
	registry[s.Name()] = s
}

// Lookup returns the scorer registered under name.
func Lookup(name string) (Scorer, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	s, ok := registry[name]
	if !ok {
		return nil, models.NewRunError(models.ErrConfigInvalid,
			"unknown reward function %q (registered: %v)", name, registeredNames())
	}
	return s, nil
}

func registeredNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GroupScorer scores whole prompt groups, absorbing scorer failures
// into sentinel rewards so one bad trajectory never aborts a step.
type GroupScorer struct {
	scorer Scorer
}

// NewGroupScorer wraps a scorer for group-level use.
func NewGroupScorer(s Scorer) *GroupScorer {
	return &GroupScorer{scorer: s}
}

// ScoreGroup scores every trajectory in the group in order. The
// returned records are index-aligned with the group's trajectories;
// the failure count reports how many received the sentinel.
func (g *GroupScorer) ScoreGroup(ctx context.Context, group *models.PromptGroup) ([]models.RewardRecord, int) {
	records := make([]models.RewardRecord, len(group.Trajectories))
	failures := 0
	for i := range group.Trajectories {
		traj := &group.Trajectories[i]
		rec := Record{
			TrajectoryID: traj.ID,
			PromptID:     group.Prompt.ID,
			Prompt:       group.Prompt.Text,
			GroundTruth:  group.Prompt.GroundTruth,
			DataSource:   group.Prompt.DataSource,
			Response:     traj.ResponseText(),
			Turns:        traj.Turns,
			Status:       traj.Status,
		}

		reward, breakdown, err := g.scoreOne(ctx, rec)
		if err != nil {
			slog.Warn("reward scoring failed, assigning sentinel",
				"trajectory", traj.ID, "scorer", g.scorer.Name(), "error", err)
			records[i] = models.RewardRecord{TrajectoryID: traj.ID, Reward: SentinelReward, ScoreFailed: true}
			failures++
			continue
		}
		records[i] = models.RewardRecord{TrajectoryID: traj.ID, Reward: reward, Breakdown: breakdown}
	}
	return records, failures
}

// scoreOne shields the step from panicking scorers.
func (g *GroupScorer) scoreOne(ctx context.Context, rec Record) (reward float64, breakdown map[string]float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("scorer %s panicked: %v", g.scorer.Name(), r)
		}
	}()
	return g.scorer.Score(ctx, rec)
}
