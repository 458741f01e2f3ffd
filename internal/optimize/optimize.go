// Package optimize provides the gradient-descent optimizers that apply
// updates to live policy parameter groups.
package optimize

import "math"

// SGD is plain stochastic gradient descent.
type SGD struct {
	lr float64
}

func NewSGD(learningRate float64) *SGD {
	return &SGD{lr: learningRate}
}

func (s *SGD) Apply(params, grads [][]float64) {
	for g, group := range params {
		for i := range group {
			group[i] -= s.lr * grads[g][i]
		}
	}
}

func (s *SGD) SetLearningRate(rate float64) { s.lr = rate }
func (s *SGD) LearningRate() float64        { return s.lr }

// Adam keeps per-parameter first and second moment estimates with bias
// correction. Moment state is sized lazily on the first Apply and its
// lifecycle is exactly one training run.
type Adam struct {
	lr    float64
	beta1 float64
	beta2 float64
	eps   float64

	step int
	m    [][]float64
	v    [][]float64
}

func NewAdam(learningRate float64) *Adam {
	return &Adam{
		lr:    learningRate,
		beta1: 0.9,
		beta2: 0.999,
		eps:   1e-8,
	}
}

func (a *Adam) Apply(params, grads [][]float64) {
	if a.m == nil {
		a.m = make([][]float64, len(params))
		a.v = make([][]float64, len(params))
		for g, group := range params {
			a.m[g] = make([]float64, len(group))
			a.v[g] = make([]float64, len(group))
		}
	}
	a.step++
	correction1 := 1 - math.Pow(a.beta1, float64(a.step))
	correction2 := 1 - math.Pow(a.beta2, float64(a.step))

	for g, group := range params {
		for i := range group {
			grad := grads[g][i]
			a.m[g][i] = a.beta1*a.m[g][i] + (1-a.beta1)*grad
			a.v[g][i] = a.beta2*a.v[g][i] + (1-a.beta2)*grad*grad
			mHat := a.m[g][i] / correction1
			vHat := a.v[g][i] / correction2
			group[i] -= a.lr * mHat / (math.Sqrt(vHat) + a.eps)
		}
	}
}

func (a *Adam) SetLearningRate(rate float64) { a.lr = rate }
func (a *Adam) LearningRate() float64        { return a.lr }
