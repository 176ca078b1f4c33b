package reward

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/grove-rl/grove/internal/models"
)

type fakeScorer struct {
	name    string
	scoreFn func(rec Record) (float64, error)
}

func (f *fakeScorer) Name() string { return f.name }

func (f *fakeScorer) Score(ctx context.Context, rec Record) (float64, map[string]float64, error) {
	score, err := f.scoreFn(rec)
	return score, nil, err
}

func groupOf(n int) *models.PromptGroup {
	g := &models.PromptGroup{Prompt: models.Prompt{ID: "p1", Text: "explore"}}
	for i := 0; i < n; i++ {
		g.Trajectories = append(g.Trajectories, models.Trajectory{
			ID:     fmt.Sprintf("t%d", i),
			Status: models.StatusCompleted,
		})
	}
	return g
}

func TestLookup(t *testing.T) {
	if _, err := Lookup("repo_exploration"); err != nil {
		t.Errorf("expected repo_exploration to be registered: %v", err)
	}
	if _, err := Lookup("nope"); err == nil {
		t.Error("expected error for unknown scorer")
	}
}

func TestScoreGroupAligned(t *testing.T) {
	s := &fakeScorer{name: "fixed", scoreFn: func(rec Record) (float64, error) {
		if rec.TrajectoryID == "t1" {
			return 0.8, nil
		}
		return 0.2, nil
	}}

	records, failures := NewGroupScorer(s).ScoreGroup(context.Background(), groupOf(3))
	if failures != 0 {
		t.Errorf("expected no failures, got %d", failures)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	if records[1].TrajectoryID != "t1" || records[1].Reward != 0.8 {
		t.Errorf("records not index-aligned with trajectories: %+v", records[1])
	}
}

func TestScoreGroupSentinelOnError(t *testing.T) {
	s := &fakeScorer{name: "flaky", scoreFn: func(rec Record) (float64, error) {
		if rec.TrajectoryID == "t0" {
			return 0, fmt.Errorf("parse failure")
		}
		return 0.5, nil
	}}

	records, failures := NewGroupScorer(s).ScoreGroup(context.Background(), groupOf(2))
	if failures != 1 {
		t.Fatalf("expected 1 failure, got %d", failures)
	}
	if records[0].Reward != SentinelReward || !records[0].ScoreFailed {
		t.Errorf("expected sentinel for failed trajectory, got %+v", records[0])
	}
	if records[1].Reward != 0.5 || records[1].ScoreFailed {
		t.Errorf("healthy trajectory affected by neighbor failure: %+v", records[1])
	}
}

func TestScoreGroupRecoversPanic(t *testing.T) {
	s := &fakeScorer{name: "panicky", scoreFn: func(rec Record) (float64, error) {
		panic("index out of range")
	}}

	records, failures := NewGroupScorer(s).ScoreGroup(context.Background(), groupOf(1))
	if failures != 1 || records[0].Reward != SentinelReward {
		t.Errorf("expected sentinel after panic, got %+v", records[0])
	}
}

func TestRepoExplorationScoring(t *testing.T) {
	scorer := &repoExploration{}

	score := func(response string) float64 {
		s, _, err := scorer.Score(context.Background(), Record{Response: response})
		if err != nil {
			t.Fatalf("Score failed: %v", err)
		}
		return s
	}

	if got := score("short"); got != 0 {
		t.Errorf("expected 0 for short response, got %f", got)
	}

	rich := "First I made a plan and a todo list. Then I used bash commands like ls and find " +
		"to explore the directory structure and read every file of interest. The architecture " +
		"follows a layered design pattern. " + strings.Repeat("More analysis of the system. ", 15)
	if got := score(rich); got != 1.0 {
		t.Errorf("expected full score for rich response, got %f", got)
	}

	// Same input, same reward.
	if score(rich) != score(rich) {
		t.Error("scoring must be deterministic")
	}

	partial := strings.Repeat("x", 160)
	if got := score(partial); got != 0.10 {
		t.Errorf("expected 0.10 for keyword-free medium response, got %f", got)
	}
}
