package ppo

import (
	"math"

	"github.com/rs/zerolog"
)

const advantageEpsilon = 1e-8

// StepResult carries the losses and diagnostics of one minibatch update.
type StepResult struct {
	PolicyLoss   float64
	ValueLoss    float64
	EntropyBonus float64 // unweighted sum of per-head mean entropies
	TotalLoss    float64
	ClipFraction float64
	KL           float64
	GradNorm     float64
	ClipScale    float64

	// EarlyStop is set when the KL estimate exceeded 1.5*TargetKL; the
	// minibatch contributed no parameter update.
	EarlyStop bool
}

// Updater runs the clipped-PPO update for single minibatches: the
// surrogate losses, KL-gated early stopping, gradient-norm clipping, and
// the optimizer step.
type Updater struct {
	cfg    Config
	engine GradientEngine
	opt    Optimizer
	logger zerolog.Logger

	nonFinite int
}

func NewUpdater(cfg Config, engine GradientEngine, opt Optimizer, logger zerolog.Logger) *Updater {
	return &Updater{
		cfg:    cfg,
		engine: engine,
		opt:    opt,
		logger: logger.With().Str("component", "updater").Logger(),
	}
}

// Step updates the policy parameters from one minibatch. When the KL
// estimate exceeds the early-stop threshold the just-computed gradient is
// NOT applied and the caller must abandon the rest of the epoch.
func (u *Updater) Step(policy Policy, mb *Minibatch) StepResult {
	if u.cfg.NormalizeAdvantages {
		normalizeAdvantages(mb.Advantages)
	}

	res := u.losses(policy, mb)
	if !isFinite(res.TotalLoss) {
		u.nonFinite++
		u.logger.Warn().
			Int("consecutive", u.nonFinite).
			Float64("total_loss", res.TotalLoss).
			Msg("non-finite loss")
	} else {
		u.nonFinite = 0
	}

	if u.cfg.TargetKL > 0 && res.KL > 1.5*u.cfg.TargetKL {
		res.EarlyStop = true
		return res
	}

	params := policy.Parameters()
	grads := u.engine.Gradient(func() float64 {
		return u.totalLoss(policy, mb)
	}, params)

	res.GradNorm, res.ClipScale = clipGradients(grads, u.cfg.MaxGradNorm)
	u.opt.Apply(params, grads)
	return res
}

// losses computes the full loss decomposition plus gradient-free
// diagnostics for one minibatch at the policy's current parameters.
func (u *Updater) losses(policy Policy, mb *Minibatch) StepResult {
	logProbs, entropies, values := policy.Evaluate(mb.Obs, mb.Actions, mb.Masks)
	heads := policy.Heads()
	n := float64(mb.Len())
	eps := u.cfg.ClipEpsilon

	var res StepResult
	var entropyTerm float64
	for h := 0; h < heads; h++ {
		var lossSum, clipped, klSum, entSum float64
		for i := range mb.Advantages {
			logRatio := logProbs[i][h] - mb.OldLogProbs[i][h]
			ratio := math.Exp(logRatio)
			adv := mb.Advantages[i]

			// Pessimistic bound: whichever surrogate is worse wins.
			loss1 := -adv * ratio
			loss2 := -adv * clamp(ratio, 1-eps, 1+eps)
			lossSum += math.Max(loss1, loss2)

			if math.Abs(ratio-1) > eps {
				clipped++
			}
			klSum += (ratio - 1) - logRatio
			entSum += entropies[i][h]
		}
		// Composite heads: losses sum, clip fraction averages, KL takes
		// the most conservative head, entropy sums with per-head weights.
		res.PolicyLoss += lossSum / n
		res.ClipFraction += clipped / n
		if kl := klSum / n; h == 0 || kl > res.KL {
			res.KL = kl
		}
		res.EntropyBonus += entSum / n
		entropyTerm += u.cfg.entropyCoef(h) * entSum / n
	}
	res.ClipFraction /= float64(heads)

	res.ValueLoss = u.valueLoss(values, mb)
	res.TotalLoss = res.PolicyLoss - entropyTerm + u.cfg.ValueCoef*res.ValueLoss
	return res
}

// totalLoss is the differentiable scalar handed to the gradient engine;
// it must stay a pure function of the policy parameters and the
// minibatch.
func (u *Updater) totalLoss(policy Policy, mb *Minibatch) float64 {
	logProbs, entropies, values := policy.Evaluate(mb.Obs, mb.Actions, mb.Masks)
	heads := policy.Heads()
	n := float64(mb.Len())
	eps := u.cfg.ClipEpsilon

	var total float64
	for h := 0; h < heads; h++ {
		var lossSum, entSum float64
		for i := range mb.Advantages {
			ratio := math.Exp(logProbs[i][h] - mb.OldLogProbs[i][h])
			adv := mb.Advantages[i]
			lossSum += math.Max(-adv*ratio, -adv*clamp(ratio, 1-eps, 1+eps))
			entSum += entropies[i][h]
		}
		total += lossSum/n - u.cfg.entropyCoef(h)*entSum/n
	}
	return total + u.cfg.ValueCoef*u.valueLoss(values, mb)
}

func (u *Updater) valueLoss(values []float64, mb *Minibatch) float64 {
	n := float64(mb.Len())
	if !u.cfg.ClipValueLoss {
		var sum float64
		for i, v := range values {
			d := v - mb.Targets[i]
			sum += d * d
		}
		return sum / n
	}
	// Clipped variant: limit how far the new value may move from the
	// stored one, keep the worse of the two squared errors, halve.
	eps := u.cfg.ClipEpsilon
	var sum float64
	for i, v := range values {
		d := v - mb.Targets[i]
		clippedV := mb.OldValues[i] + clamp(v-mb.OldValues[i], -eps, eps)
		dc := clippedV - mb.Targets[i]
		sum += math.Max(d*d, dc*dc)
	}
	return 0.5 * sum / n
}

// clipGradients rescales every gradient group so the global L2 norm does
// not exceed maxNorm. A non-finite norm skips clipping rather than
// aborting the run. Returns the pre-clip norm and the applied scale.
func clipGradients(grads [][]float64, maxNorm float64) (norm, scale float64) {
	var sq float64
	for _, group := range grads {
		for _, g := range group {
			sq += g * g
		}
	}
	norm = math.Sqrt(sq)
	scale = 1
	if maxNorm <= 0 || !isFinite(norm) || norm <= maxNorm {
		return norm, scale
	}
	scale = maxNorm / norm
	for _, group := range grads {
		for i := range group {
			group[i] *= scale
		}
	}
	return norm, scale
}

// normalizeAdvantages standardizes advantages in place to zero mean and
// unit variance across the minibatch.
func normalizeAdvantages(adv []float64) {
	n := float64(len(adv))
	if n == 0 {
		return
	}
	var mean float64
	for _, a := range adv {
		mean += a
	}
	mean /= n
	var variance float64
	for _, a := range adv {
		d := a - mean
		variance += d * d
	}
	std := math.Sqrt(variance / n)
	for i := range adv {
		adv[i] = (adv[i] - mean) / (std + advantageEpsilon)
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
