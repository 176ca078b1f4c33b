package trainer

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/grove-rl/grove/internal/models"
	"github.com/grove-rl/grove/internal/runtime"
)

// PolicyUpdater assembles training sequences from scored trajectory
// groups and dispatches one optimizer step per mini-batch.
type PolicyUpdater struct {
	opt            runtime.Optimizer
	alg            models.AlgorithmConfig
	miniBatchSize  int
	microBatchSize int
}

// NewPolicyUpdater creates an updater from the algorithm and trainer
// configuration.
func NewPolicyUpdater(opt runtime.Optimizer, alg models.AlgorithmConfig, trainer models.TrainerConfig) *PolicyUpdater {
	return &PolicyUpdater{
		opt:            opt,
		alg:            alg,
		miniBatchSize:  trainer.MiniBatchSize,
		microBatchSize: trainer.MicroBatchSize,
	}
}

// Update runs one policy update over the step's trajectories.
// Advantages and reference log probs are keyed by trajectory ID; every
// trajectory must have both. The returned metrics are token-weighted
// over masked-in tokens only.
func (u *PolicyUpdater) Update(
	ctx context.Context,
	groups []models.PromptGroup,
	advantages map[string]models.AdvantageRecord,
	refLogProbs map[string][]float64,
) (models.UpdateMetrics, error) {
	sequences, err := u.assemble(groups, advantages, refLogProbs)
	if err != nil {
		return models.UpdateMetrics{}, err
	}
	if len(sequences)%u.miniBatchSize != 0 {
		return models.UpdateMetrics{}, models.NewRunError(models.ErrConfigInvalid,
			"%d trajectories do not divide into mini-batches of %d", len(sequences), u.miniBatchSize)
	}

	klCoef := 0.0
	if u.alg.KLLoss {
		klCoef = u.alg.KLLossCoef
	}

	var total lossAccumulator
	numBatches := len(sequences) / u.miniBatchSize
	for b := 0; b < numBatches; b++ {
		miniBatch := sequences[b*u.miniBatchSize : (b+1)*u.miniBatchSize]

		var acc lossAccumulator
		for _, seq := range miniBatch {
			acc.addSequence(seq, klCoef, u.alg.EntropyCoeff)
		}
		total.merge(acc)

		batch := runtime.TrainBatch{
			Sequences:    miniBatch,
			KLCoef:       klCoef,
			EntropyCoef:  u.alg.EntropyCoeff,
			PGLoss:       acc.mean(acc.pg),
			KLLoss:       acc.mean(acc.kl),
			Entropy:      acc.mean(acc.entropy),
			Loss:         acc.mean(acc.loss),
			MicroBatches: microBatchCount(len(miniBatch), u.microBatchSize),
		}
		if err := u.opt.Step(ctx, batch); err != nil {
			return models.UpdateMetrics{}, fmt.Errorf("mini-batch %d/%d: %w", b+1, numBatches, err)
		}
		slog.Debug("optimizer step applied",
			"mini_batch", b+1,
			"of", numBatches,
			"pg_loss", batch.PGLoss,
			"kl", batch.KLLoss,
			"loss", batch.Loss)
	}

	return models.UpdateMetrics{
		PGLoss:  total.mean(total.pg),
		KL:      total.mean(total.kl),
		Entropy: total.mean(total.entropy),
		Loss:    total.mean(total.loss),
	}, nil
}

// assemble flattens groups into training sequences, joining each
// trajectory with its advantage and reference log probs.
func (u *PolicyUpdater) assemble(
	groups []models.PromptGroup,
	advantages map[string]models.AdvantageRecord,
	refLogProbs map[string][]float64,
) ([]runtime.TrainSequence, error) {
	var out []runtime.TrainSequence
	for gi := range groups {
		for ti := range groups[gi].Trajectories {
			traj := &groups[gi].Trajectories[ti]

			adv, ok := advantages[traj.ID]
			if !ok {
				return nil, fmt.Errorf("trajectory %s has no advantage record", traj.ID)
			}
			ref, ok := refLogProbs[traj.ID]
			if !ok {
				return nil, fmt.Errorf("trajectory %s has no reference log probs", traj.ID)
			}
			if len(ref) != len(traj.ResponseTokens) {
				return nil, fmt.Errorf("trajectory %s: %d reference log probs for %d tokens",
					traj.ID, len(ref), len(traj.ResponseTokens))
			}

			out = append(out, runtime.TrainSequence{
				PromptIDs:    traj.PromptTokens,
				ResponseIDs:  traj.ResponseTokens,
				ResponseMask: traj.ResponseMask,
				OldLogProbs:  traj.ResponseLogProbs,
				RefLogProbs:  ref,
				Advantage:    adv.Advantage,
			})
		}
	}
	return out, nil
}

// lossAccumulator sums per-token loss components over masked-in
// tokens.
type lossAccumulator struct {
	pg, kl, entropy, loss float64
	tokens                int
}

func (a *lossAccumulator) addSequence(seq runtime.TrainSequence, klCoef, entCoef float64) {
	for i, m := range seq.ResponseMask {
		if m == 0 {
			continue
		}
		cur := seq.OldLogProbs[i]
		ref := seq.RefLogProbs[i]

		pg := -seq.Advantage * cur
		kl := klEstimate(cur, ref)
		ent := -cur

		a.pg += pg
		a.kl += kl
		a.entropy += ent
		a.loss += pg + klCoef*kl - entCoef*ent
		a.tokens++
	}
}

func (a *lossAccumulator) merge(other lossAccumulator) {
	a.pg += other.pg
	a.kl += other.kl
	a.entropy += other.entropy
	a.loss += other.loss
	a.tokens += other.tokens
}

func (a *lossAccumulator) mean(sum float64) float64 {
	if a.tokens == 0 {
		return 0
	}
	return sum / float64(a.tokens)
}

// klEstimate is the low-variance k3 estimator of KL(current || ref):
// exp(ref-cur) - (ref-cur) - 1. Always non-negative.
func klEstimate(cur, ref float64) float64 {
	d := ref - cur
	return math.Exp(d) - d - 1
}

func microBatchCount(miniBatchLen, microBatchSize int) int {
	if microBatchSize <= 0 || microBatchSize >= miniBatchLen {
		return 1
	}
	return (miniBatchLen + microBatchSize - 1) / microBatchSize
}
