package evolve

import (
	"math/rand"

	"github.com/evolvatron/evolvatron/neural"
)

// minWeightJitterFloor bounds weight-jitter's Gaussian sigma away from zero
// when |w| is tiny, per spec.md §4.7's "clamped to a minimum floor in
// practice".
const minWeightJitterFloor = 1e-3

// JitterWeights perturbs each weight independently with probability
// rates.WeightJitter, adding Gaussian noise sigma = JitterStddev*|w|
// (floored), per spec.md §4.7.
func JitterWeights(ind *neural.Individual, rates MutationRates, rng *rand.Rand) {
	for i, w := range ind.Weights {
		if rng.Float32() >= rates.WeightJitter {
			continue
		}
		sigma := rates.JitterStddev * absF(w)
		if sigma < minWeightJitterFloor {
			sigma = minWeightJitterFloor
		}
		ind.Weights[i] += float32(rng.NormFloat64()) * sigma
	}
}

// ResetWeight replaces one randomly chosen weight with a uniform [-1, 1]
// sample, with probability rates.WeightReset, per spec.md §4.7.
func ResetWeight(ind *neural.Individual, rates MutationRates, rng *rand.Rand) {
	if len(ind.Weights) == 0 || rng.Float32() >= rates.WeightReset {
		return
	}
	i := rng.Intn(len(ind.Weights))
	ind.Weights[i] = rng.Float32()*2 - 1
}

// ShrinkWeights scales every weight by ShrinkFactor with probability
// rates.WeightShrink, per spec.md §4.7.
func ShrinkWeights(ind *neural.Individual, rates MutationRates, rng *rand.Rand) {
	if rng.Float32() >= rates.WeightShrink {
		return
	}
	for i := range ind.Weights {
		ind.Weights[i] *= rates.ShrinkFactor
	}
}

// SwapActivation picks a non-bias node and uniformly chooses a new
// activation from that row's allowed bitmask, resetting its params to the
// activation's defaults, with probability rates.ActivationSwap.
func SwapActivation(ind *neural.Individual, t *neural.Topology, rates MutationRates, rng *rand.Rand) {
	if rng.Float32() >= rates.ActivationSwap {
		return
	}
	// Rows 2..R are eligible (row 0 is the constant bias node, row 1 is
	// inputs and carries no activation choice).
	if t.NumRows() < 3 {
		return
	}
	row := 2 + rng.Intn(t.NumRows()-2)
	start, count := t.NodeRange(row)
	node := start + rng.Intn(count)

	mask := t.AllowedActivationsPerRow[row]
	choices := allowedTags(mask)
	if len(choices) == 0 {
		return
	}
	tag := choices[rng.Intn(len(choices))]
	ind.Activations[node] = tag
	ind.NodeParams[node] = neural.DefaultParams(tag)
}

func allowedTags(mask neural.Mask) []neural.Tag {
	var out []neural.Tag
	for tag := neural.Tag(0); tag < 11; tag++ {
		if mask.Has(tag) {
			out = append(out, tag)
		}
	}
	return out
}

// paramJitterClampMin / Max bound node-param jitter, per spec.md §4.7.
const (
	paramJitterClampMin = -10
	paramJitterClampMax = 10
)

// JitterNodeParams adds Gaussian noise (sigma = ParamsStddev) to all params
// of nodes whose activation uses them, with probability rates.NodeParams,
// per spec.md §4.7.
func JitterNodeParams(ind *neural.Individual, rates MutationRates, rng *rand.Rand) {
	if rng.Float32() >= rates.NodeParams {
		return
	}
	for n, tag := range ind.Activations {
		if !usesParamsExported(tag) {
			continue
		}
		for p := range ind.NodeParams[n] {
			v := ind.NodeParams[n][p] + float32(rng.NormFloat64())*rates.ParamsStddev
			ind.NodeParams[n][p] = clampF(v, paramJitterClampMin, paramJitterClampMax)
		}
	}
}

func usesParamsExported(tag neural.Tag) bool {
	return tag == neural.LeakyReLU || tag == neural.ELU
}

func clampF(x, lo, hi float32) float32 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func absF(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}

// MutateWeights applies every weight- and activation-level mutation
// operator from spec.md §4.7 to ind, in the order they're documented.
func MutateWeights(ind *neural.Individual, t *neural.Topology, rates MutationRates, rng *rand.Rand) {
	JitterWeights(ind, rates, rng)
	ResetWeight(ind, rates, rng)
	ShrinkWeights(ind, rates, rng)
	SwapActivation(ind, t, rates, rng)
	JitterNodeParams(ind, rates, rng)
}
