package ppo

// EstimateAdvantages runs generalized advantage estimation over one
// collected window and returns per-transition advantages and value
// regression targets. It is a pure function of the buffer's reward,
// value, and episode-boundary fields: recomputing it on an unmodified
// buffer yields bit-identical results.
//
// Termination zeroes the value bootstrap because a terminated episode
// has no continuation value. Truncation keeps the bootstrap (the episode
// did not actually end) but, like termination, stops the backward
// propagation of advantage across the boundary.
func EstimateAdvantages(buf *Buffer, discount, lambda float64) (advantages, targets []float64) {
	total := buf.Len()
	numEnvs := buf.NumEnvs()
	advantages = make([]float64, total)
	targets = make([]float64, total)

	for idx := 0; idx < total; idx++ {
		bootstrap := 0.0
		if !buf.Terminated[idx] {
			bootstrap = discount * buf.NextValues[idx]
		}
		advantages[idx] = buf.Rewards[idx] + bootstrap - buf.Values[idx]
	}

	// The recursion must walk time strictly in reverse; only the env
	// dimension is order-free.
	running := make([]float64, numEnvs)
	for t := buf.Steps() - 1; t >= 0; t-- {
		for e := 0; e < numEnvs; e++ {
			idx := t*numEnvs + e
			trace := lambda * discount
			if buf.Terminated[idx] || buf.Truncated[idx] {
				trace = 0
			}
			advantages[idx] += trace * running[e]
			running[e] = advantages[idx]
		}
	}

	for idx := 0; idx < total; idx++ {
		targets[idx] = advantages[idx] + buf.Values[idx]
	}
	return advantages, targets
}
