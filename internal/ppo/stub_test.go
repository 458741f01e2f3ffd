package ppo

import (
	"math/rand"
)

// stubPolicy has a single head and two parameters: a log-probability
// shift applied during Evaluate and a constant value estimate. With a
// zero shift the re-evaluated policy matches the collection policy
// exactly (ratio 1 everywhere).
type stubPolicy struct {
	params    []float64 // [logProbShift, value]
	entropy   float64
	actCalls  []int // batch size of every Act call
	evalCalls int
}

func newStubPolicy(shift, value float64) *stubPolicy {
	return &stubPolicy{params: []float64{shift, value}, entropy: 0.5}
}

func (p *stubPolicy) Heads() int { return 1 }

func (p *stubPolicy) Act(rng *rand.Rand, obs [][]float64, masks [][][]bool) (actions, logProbs [][]float64, values []float64) {
	p.actCalls = append(p.actCalls, len(obs))
	actions = make([][]float64, len(obs))
	logProbs = make([][]float64, len(obs))
	values = make([]float64, len(obs))
	for i := range obs {
		actions[i] = []float64{0}
		logProbs[i] = []float64{0}
		values[i] = p.params[1]
	}
	return actions, logProbs, values
}

func (p *stubPolicy) Evaluate(obs, actions [][]float64, masks [][][]bool) (logProbs, entropies [][]float64, values []float64) {
	p.evalCalls++
	logProbs = make([][]float64, len(obs))
	entropies = make([][]float64, len(obs))
	values = make([]float64, len(obs))
	for i := range obs {
		logProbs[i] = []float64{p.params[0]}
		entropies[i] = []float64{p.entropy}
		values[i] = p.params[1]
	}
	return logProbs, entropies, values
}

func (p *stubPolicy) Parameters() [][]float64 { return [][]float64{p.params} }

// zeroEngine counts Gradient calls and returns zero gradients.
type zeroEngine struct {
	calls int
}

func (e *zeroEngine) Gradient(loss func() float64, params [][]float64) [][]float64 {
	e.calls++
	grads := make([][]float64, len(params))
	for g, group := range params {
		grads[g] = make([]float64, len(group))
	}
	return grads
}

// scriptEnv is a deterministic vectorized environment whose episode
// boundaries follow a fixed schedule keyed by (env, step). Observations
// encode the env index and the global step so tests can verify exactly
// which state a transition was recorded from.
type scriptEnv struct {
	n        int
	step     int
	termAt   map[[2]int]bool
	truncAt  map[[2]int]bool
	lastTerm []bool
	lastTrun []bool
	resetLog [][]int
	masked   bool
}

func newScriptEnv(n int) *scriptEnv {
	return &scriptEnv{
		n:        n,
		termAt:   make(map[[2]int]bool),
		truncAt:  make(map[[2]int]bool),
		lastTerm: make([]bool, n),
		lastTrun: make([]bool, n),
	}
}

func (e *scriptEnv) NumEnvs() int { return e.n }

func (e *scriptEnv) Reset(indices []int) error {
	e.resetLog = append(e.resetLog, append([]int(nil), indices...))
	return nil
}

func (e *scriptEnv) Step(actions [][]float64) ([]float64, error) {
	e.step++
	rewards := make([]float64, e.n)
	for i := 0; i < e.n; i++ {
		rewards[i] = float64(i + 1)
		e.lastTerm[i] = e.termAt[[2]int{i, e.step}]
		e.lastTrun[i] = e.truncAt[[2]int{i, e.step}]
	}
	return rewards, nil
}

func (e *scriptEnv) Observe() [][]float64 {
	obs := make([][]float64, e.n)
	for i := 0; i < e.n; i++ {
		obs[i] = []float64{float64(i), float64(e.step)}
	}
	return obs
}

func (e *scriptEnv) Terminated() []bool { return append([]bool(nil), e.lastTerm...) }
func (e *scriptEnv) Truncated() []bool  { return append([]bool(nil), e.lastTrun...) }

func (e *scriptEnv) ValidActionMask() [][][]bool {
	if !e.masked {
		return nil
	}
	masks := make([][][]bool, e.n)
	for i := 0; i < e.n; i++ {
		// Action 1 is invalid on even steps; ties mask content to the
		// step it was observed at.
		masks[i] = [][]bool{{true, e.step%2 == 1}}
	}
	return masks
}
