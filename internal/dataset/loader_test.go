package dataset_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/grove-rl/grove/internal/dataset"
	"github.com/grove-rl/grove/internal/models"
)

func writeDataset(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "train.jsonl")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing dataset: %v", err)
	}
	return path
}

func TestLoadFromPath(t *testing.T) {
	path := writeDataset(t, `{"id": "q1", "prompt": "Explore the repository structure.", "ground_truth": "repository_overview_analysis", "data_source": "repo_exploration"}
{"prompt": "Read the tool system code.", "ground_truth": "tools_architecture_analysis"}

{"prompt": "Examine configuration files.", "ground_truth": "configuration_system_analysis"}
`)

	prompts, err := dataset.LoadFromPath(path)
	if err != nil {
		t.Fatalf("LoadFromPath failed: %v", err)
	}

	if len(prompts) != 3 {
		t.Fatalf("expected 3 prompts, got %d", len(prompts))
	}
	if prompts[0].ID != "q1" {
		t.Errorf("expected explicit id q1, got %s", prompts[0].ID)
	}
	if prompts[1].ID != "train-0002" {
		t.Errorf("expected derived id train-0002, got %s", prompts[1].ID)
	}
	if prompts[0].GroundTruth != "repository_overview_analysis" {
		t.Errorf("unexpected ground truth: %s", prompts[0].GroundTruth)
	}
}

func TestLoadFromPathRejectsMissingPrompt(t *testing.T) {
	path := writeDataset(t, `{"ground_truth": "x"}`)
	if _, err := dataset.LoadFromPath(path); err == nil {
		t.Fatal("expected error for record without prompt")
	}
}

func TestLoadFromPathRejectsEmptyFile(t *testing.T) {
	path := writeDataset(t, "\n\n")
	if _, err := dataset.LoadFromPath(path); err == nil {
		t.Fatal("expected error for empty dataset")
	}
}

func TestBatcherCycles(t *testing.T) {
	prompts := []models.Prompt{
		{ID: "a", Text: "a"},
		{ID: "b", Text: "b"},
		{ID: "c", Text: "c"},
	}

	b, err := dataset.NewBatcher(prompts, 2)
	if err != nil {
		t.Fatalf("NewBatcher failed: %v", err)
	}

	ids := func(batch []models.Prompt) string {
		s := ""
		for _, p := range batch {
			s += p.ID
		}
		return s
	}

	if got := ids(b.Next()); got != "ab" {
		t.Errorf("expected batch ab, got %s", got)
	}
	if got := ids(b.Next()); got != "ca" {
		t.Errorf("expected wrapped batch ca, got %s", got)
	}
	if got := ids(b.Next()); got != "bc" {
		t.Errorf("expected batch bc, got %s", got)
	}
}

func TestBatcherRejectsBadInput(t *testing.T) {
	if _, err := dataset.NewBatcher(nil, 2); err == nil {
		t.Error("expected error for empty dataset")
	}
	if _, err := dataset.NewBatcher([]models.Prompt{{ID: "a"}}, 0); err == nil {
		t.Error("expected error for zero batch size")
	}
}
