// Package envs provides the vectorized environments the trainer runs
// against.
package envs

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/spatial/r1"
)

const (
	gravity        = 9.81
	massCart       = 1.0
	massPole       = 0.1
	poleLength     = 0.5
	totalMass      = massCart + massPole
	poleMassLength = massPole * poleLength
	forceMax       = 10.0
	tau            = 0.02

	xThreshold     = 2.4
	thetaThreshold = 12.0 * math.Pi / 180.0
)

type cartPoleState struct {
	x        float64
	xDot     float64
	theta    float64
	thetaDot float64
}

// CartPole is a batch of independent cart-pole instances sharing one
// step clock each. An episode terminates when the pole falls or the cart
// leaves the track, and truncates at the step limit while the underlying
// process could continue.
type CartPole struct {
	states      []cartPoleState
	steps       []int
	terminated  []bool
	truncated   []bool
	maxSteps    int
	startBounds r1.Interval
	rng         *rand.Rand
}

// NewCartPole creates numEnvs instances with a per-episode step limit.
// All instances start reset.
func NewCartPole(numEnvs, maxSteps int, rng *rand.Rand) (*CartPole, error) {
	if numEnvs <= 0 {
		return nil, errors.New("num envs must be greater than zero")
	}
	if maxSteps <= 0 {
		return nil, errors.New("max steps must be greater than zero")
	}
	e := &CartPole{
		states:      make([]cartPoleState, numEnvs),
		steps:       make([]int, numEnvs),
		terminated:  make([]bool, numEnvs),
		truncated:   make([]bool, numEnvs),
		maxSteps:    maxSteps,
		startBounds: r1.Interval{Min: -0.05, Max: 0.05},
		rng:         rng,
	}
	if err := e.Reset(nil); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *CartPole) NumEnvs() int { return len(e.states) }

// ObsDim is the observation dimension, for policy construction.
func (e *CartPole) ObsDim() int { return 4 }

func (e *CartPole) Reset(indices []int) error {
	if indices == nil {
		indices = make([]int, len(e.states))
		for i := range indices {
			indices[i] = i
		}
	}
	for _, i := range indices {
		if i < 0 || i >= len(e.states) {
			return fmt.Errorf("reset index %d out of range", i)
		}
		e.states[i] = cartPoleState{
			x:        e.uniform(),
			xDot:     e.uniform(),
			theta:    e.uniform(),
			thetaDot: e.uniform(),
		}
		e.steps[i] = 0
		e.terminated[i] = false
		e.truncated[i] = false
	}
	return nil
}

func (e *CartPole) uniform() float64 {
	span := e.startBounds.Max - e.startBounds.Min
	return e.startBounds.Min + e.rng.Float64()*span
}

// Step advances every instance with a binary push action (head 0: 0 =
// left, 1 = right) and returns a reward of 1 per surviving step.
func (e *CartPole) Step(actions [][]float64) ([]float64, error) {
	if len(actions) != len(e.states) {
		return nil, fmt.Errorf("got %d actions for %d envs", len(actions), len(e.states))
	}
	rewards := make([]float64, len(e.states))
	for i := range e.states {
		force := forceMax
		if int(actions[i][0]) == 0 {
			force = -forceMax
		}
		s := &e.states[i]

		cosTheta := math.Cos(s.theta)
		sinTheta := math.Sin(s.theta)
		temp := (force + poleMassLength*s.thetaDot*s.thetaDot*sinTheta) / totalMass
		thetaAcc := (gravity*sinTheta - cosTheta*temp) /
			(poleLength * (4.0/3.0 - massPole*cosTheta*cosTheta/totalMass))
		xAcc := temp - poleMassLength*thetaAcc*cosTheta/totalMass

		s.x += tau * s.xDot
		s.xDot += tau * xAcc
		s.theta += tau * s.thetaDot
		s.thetaDot += tau * thetaAcc

		e.steps[i]++
		e.terminated[i] = math.Abs(s.x) > xThreshold || math.Abs(s.theta) > thetaThreshold
		e.truncated[i] = !e.terminated[i] && e.steps[i] >= e.maxSteps
		rewards[i] = 1
	}
	return rewards, nil
}

func (e *CartPole) Observe() [][]float64 {
	obs := make([][]float64, len(e.states))
	for i, s := range e.states {
		obs[i] = []float64{s.x, s.xDot, s.theta, s.thetaDot}
	}
	return obs
}

func (e *CartPole) Terminated() []bool {
	return append([]bool(nil), e.terminated...)
}

func (e *CartPole) Truncated() []bool {
	return append([]bool(nil), e.truncated...)
}
