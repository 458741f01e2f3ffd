package ppo

import (
	"errors"
	"fmt"
)

// Buffer is fixed-shape storage for one collection window of transitions
// across all parallel environments. Fields are parallel arrays over the
// flattened index t*numEnvs+env; every field is overwritten in place by
// each collection pass and the buffer is never resized mid-run.
type Buffer struct {
	numEnvs int
	steps   int

	Obs        [][]float64
	Actions    [][]float64 // one element per policy head
	LogProbs   [][]float64 // one element per policy head
	Rewards    []float64
	Terminated []bool
	Truncated  []bool
	Values     []float64
	NextValues []float64 // value estimate of the state following the transition
	Masks      [][][]bool
}

// NewBuffer allocates storage for numEnvs*steps transitions. The window
// size must be evenly divisible by batchSize; that is checked here, once,
// so the sampler can assume an exact partition.
func NewBuffer(numEnvs, steps, batchSize int) (*Buffer, error) {
	if numEnvs <= 0 {
		return nil, errors.New("num envs must be greater than zero")
	}
	if steps <= 0 {
		return nil, errors.New("steps must be greater than zero")
	}
	if batchSize <= 0 {
		return nil, errors.New("batch size must be greater than zero")
	}
	total := numEnvs * steps
	if total%batchSize != 0 {
		return nil, fmt.Errorf("batch size %d does not divide window size %d", batchSize, total)
	}
	return &Buffer{
		numEnvs:    numEnvs,
		steps:      steps,
		Obs:        make([][]float64, total),
		Actions:    make([][]float64, total),
		LogProbs:   make([][]float64, total),
		Rewards:    make([]float64, total),
		Terminated: make([]bool, total),
		Truncated:  make([]bool, total),
		Values:     make([]float64, total),
		NextValues: make([]float64, total),
		Masks:      make([][][]bool, total),
	}, nil
}

func (b *Buffer) NumEnvs() int { return b.numEnvs }
func (b *Buffer) Steps() int   { return b.steps }

// Len is the total number of transitions in one window.
func (b *Buffer) Len() int { return b.numEnvs * b.steps }

// Index maps an (env, step) pair to the flattened transition index.
func (b *Buffer) Index(env, t int) int { return t*b.numEnvs + env }

// setTransition overwrites one transition in place, reusing row storage
// across windows.
func (b *Buffer) setTransition(idx int, obs, action, logProbs []float64, reward float64,
	terminated, truncated bool, value, nextValue float64, mask [][]bool) {

	b.Obs[idx] = append(b.Obs[idx][:0], obs...)
	b.Actions[idx] = append(b.Actions[idx][:0], action...)
	b.LogProbs[idx] = append(b.LogProbs[idx][:0], logProbs...)
	b.Rewards[idx] = reward
	b.Terminated[idx] = terminated
	b.Truncated[idx] = truncated
	b.Values[idx] = value
	b.NextValues[idx] = nextValue
	b.Masks[idx] = copyMask(b.Masks[idx], mask)
}

func copyMask(dst, src [][]bool) [][]bool {
	if src == nil {
		return nil
	}
	if cap(dst) < len(src) {
		dst = make([][]bool, len(src))
	}
	dst = dst[:len(src)]
	for h, row := range src {
		dst[h] = append(dst[h][:0], row...)
	}
	return dst
}
