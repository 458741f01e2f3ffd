package envs

import (
	"errors"
	"fmt"
	"math/rand"
)

// Chain actions, head 0.
const (
	chainLeft = iota
	chainStay
	chainRight
	chainActions
)

// Chain is a batch of short corridor tasks with a valid-action
// constraint: walking off either end is masked out rather than penalized.
// Reaching the right end terminates with reward 1; every other step
// costs a small penalty. It exists to exercise action-mask storage and
// reuse through collection and re-evaluation.
type Chain struct {
	length     int
	positions  []int
	steps      []int
	terminated []bool
	truncated  []bool
	maxSteps   int
	rng        *rand.Rand
}

func NewChain(numEnvs, length, maxSteps int, rng *rand.Rand) (*Chain, error) {
	if numEnvs <= 0 {
		return nil, errors.New("num envs must be greater than zero")
	}
	if length < 2 {
		return nil, errors.New("chain length must be at least 2")
	}
	if maxSteps <= 0 {
		return nil, errors.New("max steps must be greater than zero")
	}
	e := &Chain{
		length:     length,
		positions:  make([]int, numEnvs),
		steps:      make([]int, numEnvs),
		terminated: make([]bool, numEnvs),
		truncated:  make([]bool, numEnvs),
		maxSteps:   maxSteps,
		rng:        rng,
	}
	if err := e.Reset(nil); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Chain) NumEnvs() int { return len(e.positions) }

// ObsDim is the observation dimension: a one-hot position encoding.
func (e *Chain) ObsDim() int { return e.length }

// NumActions is the discrete action count of the single head.
func (e *Chain) NumActions() int { return chainActions }

func (e *Chain) Reset(indices []int) error {
	if indices == nil {
		indices = make([]int, len(e.positions))
		for i := range indices {
			indices[i] = i
		}
	}
	for _, i := range indices {
		if i < 0 || i >= len(e.positions) {
			return fmt.Errorf("reset index %d out of range", i)
		}
		e.positions[i] = 0
		e.steps[i] = 0
		e.terminated[i] = false
		e.truncated[i] = false
	}
	return nil
}

func (e *Chain) Step(actions [][]float64) ([]float64, error) {
	if len(actions) != len(e.positions) {
		return nil, fmt.Errorf("got %d actions for %d envs", len(actions), len(e.positions))
	}
	rewards := make([]float64, len(e.positions))
	for i := range e.positions {
		action := int(actions[i][0])
		if action < 0 || action >= chainActions {
			return nil, fmt.Errorf("env %d: action %d out of range", i, action)
		}
		switch action {
		case chainLeft:
			if e.positions[i] == 0 {
				return nil, fmt.Errorf("env %d: masked action %d taken at position 0", i, action)
			}
			e.positions[i]--
		case chainRight:
			if e.positions[i] == e.length-1 {
				return nil, fmt.Errorf("env %d: masked action %d taken at right end", i, action)
			}
			e.positions[i]++
		}
		e.steps[i]++
		if e.positions[i] == e.length-1 {
			e.terminated[i] = true
			rewards[i] = 1
		} else {
			e.terminated[i] = false
			rewards[i] = -0.01
		}
		e.truncated[i] = !e.terminated[i] && e.steps[i] >= e.maxSteps
	}
	return rewards, nil
}

func (e *Chain) Observe() [][]float64 {
	obs := make([][]float64, len(e.positions))
	for i, pos := range e.positions {
		row := make([]float64, e.length)
		row[pos] = 1
		obs[i] = row
	}
	return obs
}

func (e *Chain) Terminated() []bool {
	return append([]bool(nil), e.terminated...)
}

func (e *Chain) Truncated() []bool {
	return append([]bool(nil), e.truncated...)
}

// ValidActionMask reports, per environment, which moves stay on the
// chain. Indexed [env][head][action]; the chain has a single head.
func (e *Chain) ValidActionMask() [][][]bool {
	masks := make([][][]bool, len(e.positions))
	for i, pos := range e.positions {
		mask := make([]bool, chainActions)
		mask[chainStay] = true
		mask[chainLeft] = pos > 0
		mask[chainRight] = pos < e.length-1
		masks[i] = [][]bool{mask}
	}
	return masks
}
