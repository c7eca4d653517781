package environment

import "math"

// DivergenceGuard reports whether vals contains a non-finite entry or a
// magnitude exceeding maxVelocity*crashMultiplier, per spec.md §4.17's
// "positions/velocities non-finite or |v| > MaxVelocity*K for some large K".
// Environment implementations backed by physics.World call this against
// particle/body velocities each step and, on true, set themselves terminal
// with FinalFitness reporting the caller's configured penalty.
func DivergenceGuard(vals []float32, maxVelocity, crashMultiplier float32) bool {
	limit := maxVelocity * crashMultiplier
	for _, v := range vals {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return true
		}
		if absF32(v) > limit {
			return true
		}
	}
	return false
}

func absF32(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}

// AnyNaN reports whether vals contains a NaN — the cheaper check the
// evaluator runs on every observation/action vector every step, per
// spec.md §4.14's "any NaN in outputs or observations aborts the rollout".
func AnyNaN(vals []float32) bool {
	for _, v := range vals {
		if math.IsNaN(float64(v)) {
			return true
		}
	}
	return false
}
