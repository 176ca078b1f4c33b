package dataset

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/grove-rl/grove/internal/models"
)

// LoadFromPath loads prompts from a JSONL file, one record per line.
// Records without an explicit id get one derived from the file name
// and line number.
func LoadFromPath(path string) ([]models.Prompt, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening dataset: %w", err)
	}
	defer f.Close()

	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))

	var prompts []models.Prompt
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)

	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		var p models.Prompt
		if err := json.Unmarshal([]byte(text), &p); err != nil {
			return nil, models.NewRunError(models.ErrDatasetInvalid, "%s line %d: %v", path, line, err)
		}
		if p.Text == "" {
			return nil, models.NewRunError(models.ErrDatasetInvalid, "%s line %d: prompt is required", path, line)
		}
		if p.ID == "" {
			p.ID = fmt.Sprintf("%s-%04d", base, line)
		}
		prompts = append(prompts, p)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading dataset: %w", err)
	}

	if len(prompts) == 0 {
		return nil, models.NewRunError(models.ErrDatasetInvalid, "no prompts found in %s", path)
	}

	return prompts, nil
}

// Batcher hands out fixed-size prompt batches, cycling through the
// dataset across epochs. Not safe for concurrent use; the orchestrator
// pulls batches sequentially.
type Batcher struct {
	prompts   []models.Prompt
	batchSize int
	next      int
}

// NewBatcher creates a Batcher over the given prompts.
func NewBatcher(prompts []models.Prompt, batchSize int) (*Batcher, error) {
	if batchSize <= 0 {
		return nil, models.NewRunError(models.ErrConfigInvalid, "batch size must be positive, got %d", batchSize)
	}
	if len(prompts) == 0 {
		return nil, models.NewRunError(models.ErrDatasetInvalid, "cannot batch an empty dataset")
	}
	return &Batcher{prompts: prompts, batchSize: batchSize}, nil
}

// Len returns the total number of prompts.
func (b *Batcher) Len() int {
	return len(b.prompts)
}

// Next returns the next batch, wrapping around at the end of the
// dataset. Returned prompts are copies; callers may mutate them.
func (b *Batcher) Next() []models.Prompt {
	batch := make([]models.Prompt, 0, b.batchSize)
	for len(batch) < b.batchSize {
		batch = append(batch, b.prompts[b.next])
		b.next = (b.next + 1) % len(b.prompts)
	}
	return batch
}
