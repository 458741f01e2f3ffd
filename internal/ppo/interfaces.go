package ppo

import "math/rand"

// Policy is the policy/value model the training loop drives. All slices
// returned by Act and Evaluate are indexed [sample][head] except values,
// which carry one estimate per sample.
//
// A policy must be deterministic given the same observation, action, mask
// and parameter snapshot; the only source of randomness is the rng passed
// to Act.
type Policy interface {
	// Heads reports the number of independent action heads.
	Heads() int

	// Act samples one action per head for every observation in the batch
	// and returns the actions, their log-probabilities, and the value
	// estimate of each observation. masks may be nil, and individual head
	// masks may be nil for unconstrained heads.
	Act(rng *rand.Rand, obs [][]float64, masks [][][]bool) (actions, logProbs [][]float64, values []float64)

	// Evaluate recomputes log-probabilities, entropies, and value
	// estimates at the stored actions. Actions are not re-sampled.
	Evaluate(obs, actions [][]float64, masks [][][]bool) (logProbs, entropies [][]float64, values []float64)

	// Parameters exposes the live parameter groups for in-place mutation
	// by the gradient engine and the optimizer.
	Parameters() [][]float64
}

// GradientEngine computes the gradient of a scalar loss with respect to
// the given parameter groups. loss must be a pure function of the
// parameters; the engine may perturb them during the call but restores
// them before returning.
type GradientEngine interface {
	Gradient(loss func() float64, params [][]float64) [][]float64
}

// Optimizer consumes gradients and mutates parameters in place.
type Optimizer interface {
	Apply(params, grads [][]float64)
	SetLearningRate(rate float64)
	LearningRate() float64
}

// Env is the vectorized environment contract. All batch slices are
// indexed by environment.
type Env interface {
	NumEnvs() int

	// Reset re-initializes the environments at the given indices; a nil
	// slice resets every environment.
	Reset(indices []int) error

	// Step advances every environment with the given per-head action
	// batch and returns one reward per environment.
	Step(actions [][]float64) ([]float64, error)

	Observe() [][]float64
	Terminated() []bool
	Truncated() []bool
}

// MaskedEnv is implemented by environments that constrain the set of
// valid actions per step. Masks are indexed [env][head][action].
type MaskedEnv interface {
	Env
	ValidActionMask() [][][]bool
}
