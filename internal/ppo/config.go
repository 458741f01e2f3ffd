package ppo

import (
	"errors"
	"fmt"
	"math"
)

// Config holds the hyperparameters of one training run. It is validated
// once up front and treated as immutable afterwards.
type Config struct {
	// TotalTransitions is the global transition budget; training stops
	// once this many transitions have been collected.
	TotalTransitions int

	NumEnvs          int
	TrajectoryLength int

	// BatchSize must evenly divide NumEnvs*TrajectoryLength.
	BatchSize int
	NumEpochs int

	Discount  float64
	GAELambda float64

	ClipEpsilon         float64
	ClipValueLoss       bool
	NormalizeAdvantages bool

	EntropyCoef float64
	// EntropyCoefs optionally overrides EntropyCoef per head; when set,
	// its length must match the policy's head count.
	EntropyCoefs []float64

	ValueCoef float64

	// MaxGradNorm caps the global L2 norm of the gradient; zero disables
	// clipping.
	MaxGradNorm float64

	// TargetKL gates early stopping: an epoch aborts once the KL
	// estimate exceeds 1.5*TargetKL. Zero disables early stopping.
	TargetKL float64

	LearningRate float64
	LRDecay      bool

	Seed int64
}

// Validate fails fast on configurations that would otherwise surface as
// corrupt training deep inside a run.
func (c Config) Validate() error {
	if c.TotalTransitions <= 0 {
		return errors.New("total transitions must be greater than zero")
	}
	if c.NumEnvs <= 0 {
		return errors.New("num envs must be greater than zero")
	}
	if c.TrajectoryLength <= 0 {
		return errors.New("trajectory length must be greater than zero")
	}
	if c.BatchSize <= 0 {
		return errors.New("batch size must be greater than zero")
	}
	if (c.NumEnvs*c.TrajectoryLength)%c.BatchSize != 0 {
		return fmt.Errorf("batch size %d does not divide window size %d",
			c.BatchSize, c.NumEnvs*c.TrajectoryLength)
	}
	if c.NumEpochs <= 0 {
		return errors.New("num epochs must be greater than zero")
	}
	if c.Discount <= 0 || c.Discount > 1 {
		return fmt.Errorf("discount %v outside (0, 1]", c.Discount)
	}
	if c.GAELambda < 0 || c.GAELambda > 1 {
		return fmt.Errorf("gae lambda %v outside [0, 1]", c.GAELambda)
	}
	if !isFinite(c.ClipEpsilon) || c.ClipEpsilon <= 0 {
		return fmt.Errorf("clip epsilon %v must be finite and positive", c.ClipEpsilon)
	}
	if !isFinite(c.EntropyCoef) {
		return fmt.Errorf("entropy coefficient %v is not finite", c.EntropyCoef)
	}
	for i, coef := range c.EntropyCoefs {
		if !isFinite(coef) {
			return fmt.Errorf("entropy coefficient for head %d is not finite", i)
		}
	}
	if !isFinite(c.ValueCoef) || c.ValueCoef < 0 {
		return fmt.Errorf("value coefficient %v must be finite and non-negative", c.ValueCoef)
	}
	if !isFinite(c.MaxGradNorm) || c.MaxGradNorm < 0 {
		return fmt.Errorf("max gradient norm %v must be finite and non-negative", c.MaxGradNorm)
	}
	if !isFinite(c.TargetKL) || c.TargetKL < 0 {
		return fmt.Errorf("target kl %v must be finite and non-negative", c.TargetKL)
	}
	if !isFinite(c.LearningRate) || c.LearningRate < 0 {
		return fmt.Errorf("learning rate %v must be finite and non-negative", c.LearningRate)
	}
	return nil
}

// WindowSize is the number of transitions in one collection window.
func (c Config) WindowSize() int {
	return c.NumEnvs * c.TrajectoryLength
}

// NumMinibatches is the number of minibatches per epoch.
func (c Config) NumMinibatches() int {
	return c.WindowSize() / c.BatchSize
}

func (c Config) entropyCoef(head int) float64 {
	if len(c.EntropyCoefs) > 0 {
		return c.EntropyCoefs[head]
	}
	return c.EntropyCoef
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
