package simulation

// Path is one realized portfolio value trajectory.
type Path struct {
	// Values holds the total portfolio value after each step, with Values[0]
	// being the initial value. Nil unless the caller asked to keep paths.
	Values   []float64
	Terminal float64
}

// SimulatePath advances a portfolio over a fixed number of steps, applying
// one correlated return vector per step to the per-instrument dollar
// allocations.
//
// With rebalancing enabled the allocation is reset to target weights after
// every step (instantaneous and costless); otherwise allocations drift with
// realized returns. Per-instrument step returns are clamped at -100%: the
// return model is normal and therefore unbounded below, but an instrument's
// value cannot go negative.
func SimulatePath(gen *CorrelatedReturnGenerator, targetWeights []float64, initialValue float64, steps int, rebalance, keepValues bool) Path {
	n := len(targetWeights)

	alloc := make([]float64, n)
	for i, w := range targetWeights {
		alloc[i] = w * initialValue
	}

	var values []float64
	if keepValues {
		values = make([]float64, 0, steps+1)
		values = append(values, initialValue)
	}

	returns := make([]float64, n)
	total := initialValue

	for step := 0; step < steps; step++ {
		gen.Next(returns)

		total = 0
		for i := range alloc {
			r := returns[i]
			if r < -1 {
				r = -1
			}
			alloc[i] *= 1 + r
			total += alloc[i]
		}

		if rebalance {
			for i, w := range targetWeights {
				alloc[i] = w * total
			}
		}

		if keepValues {
			values = append(values, total)
		}
	}

	return Path{Values: values, Terminal: total}
}
