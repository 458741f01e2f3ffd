// Package model implements the policy/value collaborator the training
// loop drives: a linear policy with a closed set of action-head variants
// and a linear value head, exposing its parameters as live groups for
// in-place gradient and optimizer mutation.
package model

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// HeadKind tags the closed set of action-head variants.
type HeadKind int

const (
	Discrete HeadKind = iota
	Continuous
)

// HeadSpec describes one action head. Discrete heads need NumActions;
// continuous heads emit a single scalar from a diagonal Gaussian.
type HeadSpec struct {
	Kind       HeadKind
	NumActions int
}

// maskedLogit is large enough to zero a masked action's probability but
// finite, so entropy terms stay well-defined.
const maskedLogit = -1e9

const log2Pi = 1.8378770664093453

type head struct {
	spec    HeadSpec
	weights []float64 // Discrete: NumActions x obsDim, row-major; Continuous: obsDim
	bias    []float64 // Discrete: NumActions; Continuous: 1
	logStd  []float64 // Continuous: 1
}

// Linear is a policy whose heads and value estimate are affine in the
// observation. Small, but it exercises the full training contract:
// masked discrete heads, Gaussian heads, and composite combinations.
type Linear struct {
	obsDim int
	heads  []head
	valueW []float64
	valueB []float64
	params [][]float64
}

// NewLinear constructs a policy for the given observation dimension and
// head layout. Invalid shapes are fatal here, before any environment
// interaction.
func NewLinear(obsDim int, specs []HeadSpec, rng *rand.Rand) (*Linear, error) {
	if obsDim <= 0 {
		return nil, errors.New("observation dimension must be greater than zero")
	}
	if len(specs) == 0 {
		return nil, errors.New("policy needs at least one action head")
	}
	p := &Linear{
		obsDim: obsDim,
		heads:  make([]head, len(specs)),
		valueW: make([]float64, obsDim),
		valueB: make([]float64, 1),
	}
	for i, spec := range specs {
		switch spec.Kind {
		case Discrete:
			if spec.NumActions < 2 {
				return nil, fmt.Errorf("head %d: discrete head needs at least 2 actions, got %d", i, spec.NumActions)
			}
			p.heads[i] = head{
				spec:    spec,
				weights: randomWeights(spec.NumActions*obsDim, rng),
				bias:    make([]float64, spec.NumActions),
			}
		case Continuous:
			p.heads[i] = head{
				spec:    spec,
				weights: randomWeights(obsDim, rng),
				bias:    make([]float64, 1),
				logStd:  make([]float64, 1),
			}
		default:
			return nil, fmt.Errorf("head %d: unknown head kind %d", i, spec.Kind)
		}
	}
	for _, h := range p.heads {
		p.params = append(p.params, h.weights, h.bias)
		if h.logStd != nil {
			p.params = append(p.params, h.logStd)
		}
	}
	p.params = append(p.params, p.valueW, p.valueB)
	return p, nil
}

func randomWeights(n int, rng *rand.Rand) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = rng.NormFloat64() * 0.01
	}
	return w
}

func (p *Linear) Heads() int { return len(p.heads) }

// Parameters exposes the live parameter groups.
func (p *Linear) Parameters() [][]float64 { return p.params }

// Act samples one action per head for every observation.
func (p *Linear) Act(rng *rand.Rand, obs [][]float64, masks [][][]bool) (actions, logProbs [][]float64, values []float64) {
	actions = make([][]float64, len(obs))
	logProbs = make([][]float64, len(obs))
	values = make([]float64, len(obs))
	for i, o := range obs {
		actions[i] = make([]float64, len(p.heads))
		logProbs[i] = make([]float64, len(p.heads))
		for hi := range p.heads {
			h := &p.heads[hi]
			mask := headMask(masks, i, hi)
			switch h.spec.Kind {
			case Discrete:
				probs, logits, logSum := h.distribution(o, mask)
				a := sampleCategorical(probs, rng)
				actions[i][hi] = float64(a)
				logProbs[i][hi] = logits[a] - logSum
			case Continuous:
				mean := h.affine(o)
				std := math.Exp(h.logStd[0])
				a := mean + std*rng.NormFloat64()
				actions[i][hi] = a
				logProbs[i][hi] = gaussianLogProb(a, mean, h.logStd[0])
			}
		}
		values[i] = p.value(o)
	}
	return actions, logProbs, values
}

// Evaluate recomputes log-probabilities, entropies, and values at the
// stored actions with the same masks used during collection. It is
// deterministic for a fixed parameter snapshot.
func (p *Linear) Evaluate(obs, actions [][]float64, masks [][][]bool) (logProbs, entropies [][]float64, values []float64) {
	logProbs = make([][]float64, len(obs))
	entropies = make([][]float64, len(obs))
	values = make([]float64, len(obs))
	for i, o := range obs {
		logProbs[i] = make([]float64, len(p.heads))
		entropies[i] = make([]float64, len(p.heads))
		for hi := range p.heads {
			h := &p.heads[hi]
			mask := headMask(masks, i, hi)
			switch h.spec.Kind {
			case Discrete:
				probs, logits, logSum := h.distribution(o, mask)
				a := int(actions[i][hi])
				logProbs[i][hi] = logits[a] - logSum
				var ent float64
				for k, prob := range probs {
					if prob > 0 {
						ent -= prob * (logits[k] - logSum)
					}
				}
				entropies[i][hi] = ent
			case Continuous:
				mean := h.affine(o)
				logProbs[i][hi] = gaussianLogProb(actions[i][hi], mean, h.logStd[0])
				entropies[i][hi] = 0.5 + 0.5*log2Pi + h.logStd[0]
			}
		}
		values[i] = p.value(o)
	}
	return logProbs, entropies, values
}

// distribution computes masked softmax probabilities together with the
// logits and their log-sum-exp, so callers derive exact log-probs.
func (h *head) distribution(obs []float64, mask []bool) (probs, logits []float64, logSum float64) {
	k := h.spec.NumActions
	w := mat.NewDense(k, len(obs), h.weights)
	var out mat.VecDense
	out.MulVec(w, mat.NewVecDense(len(obs), obs))

	logits = make([]float64, k)
	maxLogit := math.Inf(-1)
	for i := 0; i < k; i++ {
		logits[i] = out.AtVec(i) + h.bias[i]
		if mask != nil && !mask[i] {
			logits[i] = maskedLogit
		}
		if logits[i] > maxLogit {
			maxLogit = logits[i]
		}
	}

	probs = make([]float64, k)
	var sum float64
	for i, l := range logits {
		probs[i] = math.Exp(l - maxLogit)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	logSum = maxLogit + math.Log(sum)
	return probs, logits, logSum
}

func (h *head) affine(obs []float64) float64 {
	return mat.Dot(mat.NewVecDense(len(obs), h.weights), mat.NewVecDense(len(obs), obs)) + h.bias[0]
}

func (p *Linear) value(obs []float64) float64 {
	return mat.Dot(mat.NewVecDense(len(obs), p.valueW), mat.NewVecDense(len(obs), obs)) + p.valueB[0]
}

func gaussianLogProb(x, mean, logStd float64) float64 {
	z := (x - mean) / math.Exp(logStd)
	return -0.5*z*z - logStd - 0.5*log2Pi
}

func sampleCategorical(probs []float64, rng *rand.Rand) int {
	threshold := rng.Float64()
	var cumulative float64
	for i, prob := range probs {
		cumulative += prob
		if threshold <= cumulative {
			return i
		}
	}
	return len(probs) - 1
}

func headMask(masks [][][]bool, sample, head int) []bool {
	if masks == nil || masks[sample] == nil {
		return nil
	}
	return masks[sample][head]
}
