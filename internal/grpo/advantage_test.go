package grpo

import (
	"fmt"
	"math"
	"testing"

	"github.com/grove-rl/grove/internal/models"
)

func rewards(vals ...float64) []models.RewardRecord {
	out := make([]models.RewardRecord, len(vals))
	for i, v := range vals {
		out[i] = models.RewardRecord{TrajectoryID: fmt.Sprintf("t%d", i), Reward: v}
	}
	return out
}

func TestEstimateZeroVariance(t *testing.T) {
	advs, err := Estimate(rewards(1, 1, 1, 1))
	if err != nil {
		t.Fatalf("Estimate failed: %v", err)
	}
	for _, a := range advs {
		if a.Advantage != 0 {
			t.Errorf("identical rewards must yield exactly zero advantage, got %f", a.Advantage)
		}
		if a.Baseline != 1 || a.GroupStd != 0 {
			t.Errorf("unexpected stats: %+v", a)
		}
	}
}

func TestEstimateSymmetricPair(t *testing.T) {
	advs, err := Estimate(rewards(0, 1))
	if err != nil {
		t.Fatalf("Estimate failed: %v", err)
	}
	// mean 0.5, population std 0.5; advantages near -1 and +1.
	if math.Abs(advs[0].Advantage+1) > 1e-4 || math.Abs(advs[1].Advantage-1) > 1e-4 {
		t.Errorf("expected approximately -1/+1, got %f/%f", advs[0].Advantage, advs[1].Advantage)
	}
	if advs[0].Advantage+advs[1].Advantage > 1e-9 {
		t.Errorf("advantages should sum to zero, got %f", advs[0].Advantage+advs[1].Advantage)
	}
}

func TestEstimateBinarySplit(t *testing.T) {
	advs, err := Estimate(rewards(1, 1, 0, 0))
	if err != nil {
		t.Fatalf("Estimate failed: %v", err)
	}
	for i, want := range []float64{1, 1, -1, -1} {
		if math.Abs(advs[i].Advantage-want) > 1e-4 {
			t.Errorf("advs[%d] = %f, want approximately %f", i, advs[i].Advantage, want)
		}
	}
}

func TestEstimateProperties(t *testing.T) {
	records := rewards(0.3, 0.7, 0.1, 0.9, 0.5)
	advs, err := Estimate(records)
	if err != nil {
		t.Fatalf("Estimate failed: %v", err)
	}

	if len(advs) != len(records) {
		t.Fatalf("expected %d advantages, got %d", len(records), len(advs))
	}
	for i, a := range advs {
		if a.TrajectoryID != records[i].TrajectoryID {
			t.Errorf("advantage %d not aligned with its reward record", i)
		}
		if math.IsNaN(a.Advantage) || math.IsInf(a.Advantage, 0) {
			t.Errorf("advantage %d is not finite: %f", i, a.Advantage)
		}
	}

	// Higher reward, higher advantage.
	for i := range advs {
		for j := range advs {
			if records[i].Reward > records[j].Reward && advs[i].Advantage <= advs[j].Advantage {
				t.Errorf("ordering violated: reward %f -> adv %f vs reward %f -> adv %f",
					records[i].Reward, advs[i].Advantage, records[j].Reward, advs[j].Advantage)
			}
		}
	}
}

func TestEstimateEmptyGroup(t *testing.T) {
	if _, err := Estimate(nil); err == nil {
		t.Fatal("expected error for empty group")
	}
}
