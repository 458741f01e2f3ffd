package ppo

import "math/rand"

// Minibatches partitions a fresh uniformly random permutation of
// [0, total) into contiguous chunks of batchSize. Every index appears in
// exactly one chunk. Callers regenerate the partition each epoch; no two
// epochs share a permutation because each call draws anew from rng.
func Minibatches(rng *rand.Rand, total, batchSize int) [][]int {
	perm := rng.Perm(total)
	chunks := make([][]int, 0, total/batchSize)
	for start := 0; start+batchSize <= total; start += batchSize {
		chunks = append(chunks, perm[start:start+batchSize])
	}
	return chunks
}

// Minibatch carries independent copies of the buffer rows selected by one
// sampler chunk. Copies, not views: advantage normalization mutates the
// minibatch in place and must not leak into the buffer or into sibling
// minibatches.
type Minibatch struct {
	Obs         [][]float64
	Actions     [][]float64
	OldLogProbs [][]float64
	Masks       [][][]bool
	OldValues   []float64
	Advantages  []float64
	Targets     []float64
}

// NewMinibatch gathers the transitions at the given flattened indices
// out of the buffer and the advantage/target arrays.
func NewMinibatch(buf *Buffer, advantages, targets []float64, indices []int) *Minibatch {
	mb := &Minibatch{
		Obs:         make([][]float64, len(indices)),
		Actions:     make([][]float64, len(indices)),
		OldLogProbs: make([][]float64, len(indices)),
		Masks:       make([][][]bool, len(indices)),
		OldValues:   make([]float64, len(indices)),
		Advantages:  make([]float64, len(indices)),
		Targets:     make([]float64, len(indices)),
	}
	for i, idx := range indices {
		mb.Obs[i] = append([]float64(nil), buf.Obs[idx]...)
		mb.Actions[i] = append([]float64(nil), buf.Actions[idx]...)
		mb.OldLogProbs[i] = append([]float64(nil), buf.LogProbs[idx]...)
		mb.Masks[i] = copyMask(nil, buf.Masks[idx])
		mb.OldValues[i] = buf.Values[idx]
		mb.Advantages[i] = advantages[idx]
		mb.Targets[i] = targets[idx]
	}
	return mb
}

// Len is the number of transitions in the minibatch.
func (mb *Minibatch) Len() int { return len(mb.Advantages) }
