package ppo

import (
	"fmt"
	"math/rand"

	"github.com/rs/zerolog"
)

// Collector fills a Buffer with one window of transitions per call. It
// carries per-environment episode accumulators across windows so episode
// statistics stay correct when an episode spans window boundaries.
type Collector struct {
	rng    *rand.Rand
	logger zerolog.Logger

	epReturns []float64
	epLengths []int
}

// CollectStats summarizes the episodes completed during one window.
type CollectStats struct {
	Episodes   int
	MeanReturn float64
	MeanLength float64
}

func NewCollector(rng *rand.Rand, logger zerolog.Logger) *Collector {
	return &Collector{
		rng:    rng,
		logger: logger.With().Str("component", "collector").Logger(),
	}
}

// Collect fills every field of buf with one full window of transitions
// and leaves env in a valid state for the next window. The environments
// must already be reset before the first call of a run.
func (c *Collector) Collect(env Env, policy Policy, buf *Buffer) (CollectStats, error) {
	n := buf.NumEnvs()
	if env.NumEnvs() != n {
		return CollectStats{}, fmt.Errorf("env count mismatch: buffer %d, env %d", n, env.NumEnvs())
	}
	if c.epReturns == nil {
		c.epReturns = make([]float64, n)
		c.epLengths = make([]int, n)
	}

	obs := copyRows(env.Observe())
	masks := observeMasks(env)
	actions, logProbs, values := policy.Act(c.rng, obs, masks)

	var stats CollectStats
	var sumReturn, sumLength float64

	for t := 0; t < buf.Steps(); t++ {
		rewards, err := env.Step(actions)
		if err != nil {
			return stats, fmt.Errorf("env step: %w", err)
		}
		terminated := env.Terminated()
		truncated := env.Truncated()

		// One-step-ahead query: the next state's value is the bootstrap
		// for the transition just taken.
		nextObs := copyRows(env.Observe())
		nextMasks := observeMasks(env)
		nextActions, nextLogProbs, nextValues := policy.Act(c.rng, nextObs, nextMasks)

		var done []int
		for e := 0; e < n; e++ {
			buf.setTransition(buf.Index(e, t), obs[e], actions[e], logProbs[e], rewards[e],
				terminated[e], truncated[e], values[e], nextValues[e], maskRow(masks, e))
			c.epReturns[e] += rewards[e]
			c.epLengths[e]++
			if terminated[e] || truncated[e] {
				done = append(done, e)
				stats.Episodes++
				sumReturn += c.epReturns[e]
				sumLength += float64(c.epLengths[e])
				c.epReturns[e] = 0
				c.epLengths[e] = 0
			}
		}

		// Reset only the finished environments and re-query the policy
		// for just those; the rest carry the freshly queried triple
		// forward unchanged.
		if len(done) > 0 {
			if err := env.Reset(done); err != nil {
				return stats, fmt.Errorf("env reset: %w", err)
			}
			freshObs := env.Observe()
			freshMasks := observeMasks(env)
			selObs := make([][]float64, len(done))
			var selMasks [][][]bool
			if freshMasks != nil {
				selMasks = make([][][]bool, len(done))
			}
			for i, e := range done {
				nextObs[e] = append(nextObs[e][:0], freshObs[e]...)
				selObs[i] = nextObs[e]
				if freshMasks != nil {
					nextMasks[e] = freshMasks[e]
					selMasks[i] = freshMasks[e]
				}
			}
			selActions, selLogProbs, selValues := policy.Act(c.rng, selObs, selMasks)
			for i, e := range done {
				nextActions[e] = selActions[i]
				nextLogProbs[e] = selLogProbs[i]
				nextValues[e] = selValues[i]
			}
		}

		obs, masks = nextObs, nextMasks
		actions, logProbs, values = nextActions, nextLogProbs, nextValues
	}

	if stats.Episodes > 0 {
		stats.MeanReturn = sumReturn / float64(stats.Episodes)
		stats.MeanLength = sumLength / float64(stats.Episodes)
	}
	c.logger.Debug().
		Int("episodes", stats.Episodes).
		Float64("mean_return", stats.MeanReturn).
		Msg("window collected")
	return stats, nil
}

func observeMasks(env Env) [][][]bool {
	masked, ok := env.(MaskedEnv)
	if !ok {
		return nil
	}
	return masked.ValidActionMask()
}

func maskRow(masks [][][]bool, env int) [][]bool {
	if masks == nil {
		return nil
	}
	return masks[env]
}

func copyRows(src [][]float64) [][]float64 {
	dst := make([][]float64, len(src))
	for i, row := range src {
		dst[i] = append([]float64(nil), row...)
	}
	return dst
}
