package neural

import (
	"math/rand"
	"testing"
)

// buildXORTopology returns a small 2-input, 3-hidden, 1-output topology
// wired fully forward, a reduced form of spec.md §8's XOR evolution scenario.
func buildXORTopology(t *testing.T) *Topology {
	t.Helper()
	b := NewBuilder(4)
	b.AddRow(2, AllMask)     // row 1: inputs
	b.AddRow(3, AllMask)     // row 2: hidden
	b.AddRow(1, OutputMask)  // row 3: output

	// node indices: 0 = bias, 1-2 = inputs, 3-5 = hidden, 6 = output
	for in := 1; in <= 2; in++ {
		for h := 3; h <= 5; h++ {
			b.AddEdge(in, h)
		}
	}
	b.AddEdge(0, 6) // bias -> output
	for h := 3; h <= 5; h++ {
		b.AddEdge(h, 6)
	}
	topo, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return topo
}

func TestForwardPassIsDeterministic(t *testing.T) {
	topo := buildXORTopology(t)
	rng := rand.New(rand.NewSource(42))
	ind := NewIndividual(topo, rng)

	eval1 := NewEvaluator(topo)
	eval2 := NewEvaluator(topo)

	out1, err := eval1.Forward(ind, []float32{1, 0})
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	out2, err := eval2.Forward(ind, []float32{1, 0})
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if len(out1) != len(out2) {
		t.Fatalf("output length mismatch: %d vs %d", len(out1), len(out2))
	}
	for i := range out1 {
		if out1[i] != out2[i] {
			t.Errorf("output %d differs across evaluators: %f vs %f", i, out1[i], out2[i])
		}
	}

	// Repeated calls on the same evaluator must also agree, despite reusing
	// the scratch buffer.
	out3, err := eval1.Forward(ind, []float32{1, 0})
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}
	for i := range out1 {
		if out1[i] != out3[i] {
			t.Errorf("repeated Forward call diverged at output %d", i)
		}
	}
}

func TestForwardRejectsWrongInputLength(t *testing.T) {
	topo := buildXORTopology(t)
	rng := rand.New(rand.NewSource(1))
	ind := NewIndividual(topo, rng)
	eval := NewEvaluator(topo)

	if _, err := eval.Forward(ind, []float32{1}); err == nil {
		t.Error("expected an error for mismatched input length")
	}
}

func TestTopologyValidateRejectsBackwardEdge(t *testing.T) {
	topo := &Topology{
		RowCounts:                []int{1, 2, 1},
		AllowedActivationsPerRow: []Mask{Bit(Linear), AllMask, OutputMask},
		MaxInDegree:              4,
		Edges:                    []Edge{{Src: 3, Dst: 1}}, // output -> input: invalid
	}
	if err := topo.Validate(); err == nil {
		t.Error("expected Validate to reject a non-forward edge")
	}
}

func TestTopologyValidateRejectsOutputActivationOutsideMask(t *testing.T) {
	topo := &Topology{
		RowCounts:                []int{1, 1, 1},
		AllowedActivationsPerRow: []Mask{Bit(Linear), AllMask, Bit(Sigmoid)},
		MaxInDegree:              4,
		Edges:                    []Edge{{Src: 1, Dst: 2}},
	}
	if err := topo.Validate(); err == nil {
		t.Error("expected Validate to reject an output row mask outside {Linear, Tanh}")
	}
}

func TestInOutDegree(t *testing.T) {
	topo := buildXORTopology(t)
	inDeg, outDeg := topo.InOutDegree()
	// Output node (6) should have in-degree 4: bias + 3 hidden.
	if inDeg[6] != 4 {
		t.Errorf("expected output node in-degree 4, got %d", inDeg[6])
	}
	// Each input node (1, 2) connects to all 3 hidden nodes.
	if outDeg[1] != 3 || outDeg[2] != 3 {
		t.Errorf("expected input out-degree 3, got %d and %d", outDeg[1], outDeg[2])
	}
}

func TestActiveNodesIncludesOnlyReachableNodes(t *testing.T) {
	topo := buildXORTopology(t)
	active := topo.ActiveNodes()
	// The bias node (0) feeds the output but is not reachable from any
	// input, so it lies on no input-to-output path.
	if active[0] {
		t.Error("bias node 0 is not reachable from the inputs and should not be active")
	}
	for n := 1; n < topo.NodeCount(); n++ {
		if !active[n] {
			t.Errorf("node %d expected reachable in fully-wired XOR topology", n)
		}
	}
}

func TestSortEdgesWithWeightsKeepsWeightsAligned(t *testing.T) {
	edges := []Edge{{Src: 2, Dst: 5}, {Src: 1, Dst: 3}, {Src: 1, Dst: 4}}
	weights := []float32{100, 200, 300} // weights[i] belongs to edges[i]

	sorted := SortEdgesWithWeights(edges, [][]float32{weights})

	for i, e := range sorted {
		switch {
		case e.Src == 2 && e.Dst == 5:
			if weights[i] != 100 {
				t.Errorf("weight for (2,5) misaligned: got %f", weights[i])
			}
		case e.Src == 1 && e.Dst == 3:
			if weights[i] != 200 {
				t.Errorf("weight for (1,3) misaligned: got %f", weights[i])
			}
		case e.Src == 1 && e.Dst == 4:
			if weights[i] != 300 {
				t.Errorf("weight for (1,4) misaligned: got %f", weights[i])
			}
		}
	}
	for i := 1; i < len(sorted); i++ {
		if sorted[i].Dst < sorted[i-1].Dst {
			t.Errorf("edges not sorted by destination: %v", sorted)
		}
	}
}

func TestCloneDoesNotAliasParent(t *testing.T) {
	topo := buildXORTopology(t)
	rng := rand.New(rand.NewSource(7))
	parent := NewIndividual(topo, rng)
	child := parent.Clone()

	child.Weights[0] += 1
	if parent.Weights[0] == child.Weights[0] {
		t.Error("mutating clone's weights affected parent")
	}
}
