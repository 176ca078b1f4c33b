// Package interaction implements turn-level guidance for trajectory
// rollouts. When the model proposes a final answer, the configured
// guide reviews it and either accepts the trajectory or injects a
// feedback message so the model keeps working. Guides keep per-session
// state between reviews and are resolved by name from the run config,
// like reward scorers.
package interaction

import (
	"fmt"
	"sync"

	"github.com/grove-rl/grove/internal/models"
)

// Verdict is the outcome of one review. When Accept is false, Feedback
// is inserted into the trajectory context before the next generation
// turn.
type Verdict struct {
	Accept   bool
	Feedback string
}

// Guide reviews candidate final answers mid-rollout. Implementations
// must be safe for concurrent sessions; Begin and End bracket the
// per-trajectory state.
type Guide interface {
	Name() string
	Begin(sessionID, groundTruth string)
	// Review judges a candidate final answer. transcript is the full
	// generated text of the trajectory so far, answer the final span.
	Review(sessionID, answer, transcript string) Verdict
	End(sessionID string)
}

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Guide)
)

// Register makes a guide available by name. Guides register themselves
// from init; duplicate names are a programming error.
func Register(g Guide) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, exists := registry[g.Name()]; exists {
		panic(fmt.Sprintf("interaction guide %q registered twice", g.Name()))
	}
	registry[g.Name()] = g
}

// Lookup returns the guide registered under name.
func Lookup(name string) (Guide, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	g, ok := registry[name]
	if !ok {
		return nil, models.NewRunError(models.ErrConfigInvalid, "unknown interaction %q", name)
	}
	return g, nil
}
