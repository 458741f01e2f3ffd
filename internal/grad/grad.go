// Package grad realizes the gradient-of-a-closure capability the
// training loop depends on: given a scalar loss that is a pure function
// of a set of live parameter groups, produce the gradient of that loss
// with respect to every parameter.
package grad

// CentralDifference approximates the gradient with symmetric finite
// differences. Parameters are perturbed in place during the call and
// restored to their exact original values before it returns.
type CentralDifference struct {
	// Step is the perturbation size; zero selects a default suited to
	// float64 loss evaluation.
	Step float64
}

// Gradient evaluates loss 2*len(params) times. The returned groups have
// the same shapes as params.
func (c CentralDifference) Gradient(loss func() float64, params [][]float64) [][]float64 {
	h := c.Step
	if h <= 0 {
		h = 1e-5
	}

	grads := make([][]float64, len(params))
	for g, group := range params {
		grads[g] = make([]float64, len(group))
		for i := range group {
			orig := group[i]
			group[i] = orig + h
			plus := loss()
			group[i] = orig - h
			minus := loss()
			group[i] = orig
			grads[g][i] = (plus - minus) / (2 * h)
		}
	}
	return grads
}
