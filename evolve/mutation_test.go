package evolve

import (
	"math/rand"
	"testing"
)

func TestJitterWeightsOnlyTouchesSampledProbability(t *testing.T) {
	_, individuals := buildChainTopology(t)
	rng := rand.New(rand.NewSource(1))
	ind := individuals[0]
	original := append([]float32(nil), ind.Weights...)

	rates := MutationRates{WeightJitter: 0, JitterStddev: 1}
	JitterWeights(ind, rates, rng)
	for i := range ind.Weights {
		if ind.Weights[i] != original[i] {
			t.Errorf("weight %d changed despite zero jitter probability", i)
		}
	}
}

func TestShrinkWeightsScalesEveryWeight(t *testing.T) {
	_, individuals := buildChainTopology(t)
	rng := rand.New(rand.NewSource(2))
	ind := individuals[0]
	original := append([]float32(nil), ind.Weights...)

	rates := MutationRates{WeightShrink: 1, ShrinkFactor: 0.5}
	ShrinkWeights(ind, rates, rng)
	for i := range ind.Weights {
		want := original[i] * 0.5
		if ind.Weights[i] != want {
			t.Errorf("weight %d = %f, want %f", i, ind.Weights[i], want)
		}
	}
}

func TestResetWeightStaysInUnitRange(t *testing.T) {
	_, individuals := buildChainTopology(t)
	rng := rand.New(rand.NewSource(3))
	ind := individuals[0]

	rates := MutationRates{WeightReset: 1}
	for i := 0; i < 50; i++ {
		ResetWeight(ind, rates, rng)
	}
	for _, w := range ind.Weights {
		if w < -1 || w > 1 {
			t.Errorf("reset weight out of [-1, 1]: %f", w)
		}
	}
}

func TestSwapActivationRespectsRowMask(t *testing.T) {
	topo, individuals := buildChainTopology(t)
	rng := rand.New(rand.NewSource(4))
	ind := individuals[0]

	rates := MutationRates{ActivationSwap: 1}
	for i := 0; i < 50; i++ {
		SwapActivation(ind, topo, rates, rng)
	}
	for row := 2; row < topo.NumRows(); row++ {
		start, count := topo.NodeRange(row)
		mask := topo.AllowedActivationsPerRow[row]
		for n := start; n < start+count; n++ {
			if !mask.Has(ind.Activations[n]) {
				t.Errorf("node %d activation %v not in row %d's allowed mask", n, ind.Activations[n], row)
			}
		}
	}
}

func TestPruneWeakEdgesNeverDisconnectsOutputs(t *testing.T) {
	topo, individuals := buildChainTopology(t)
	rng := rand.New(rand.NewSource(5))

	for _, ind := range individuals {
		for i := range ind.Weights {
			ind.Weights[i] = 0.001 // force every edge below any reasonable threshold
		}
	}

	cfg := PruningConfig{Enabled: true, Threshold: 0.05, BaseRate: 1.0}
	PruneWeakEdges(topo, individuals, 0, cfg, rng)

	if err := topo.Validate(); err != nil {
		t.Fatalf("topology invalid after pruning: %v", err)
	}
	if !topo.OutputsReachableFromInputs() {
		t.Fatal("pruning disconnected an output from every input")
	}
	for i, ind := range individuals {
		if len(ind.Weights) != topo.EdgeCount() {
			t.Errorf("individual %d weight count %d != edge count %d after pruning", i, len(ind.Weights), topo.EdgeCount())
		}
	}
}

func TestPruneWeakEdgesDisabledIsNoop(t *testing.T) {
	topo, individuals := buildChainTopology(t)
	rng := rand.New(rand.NewSource(6))
	before := topo.EdgeCount()

	cfg := PruningConfig{Enabled: false}
	removed := PruneWeakEdges(topo, individuals, 0, cfg, rng)
	if removed != 0 || topo.EdgeCount() != before {
		t.Errorf("expected disabled pruning to be a no-op, removed=%d edges=%d (was %d)", removed, topo.EdgeCount(), before)
	}
}
