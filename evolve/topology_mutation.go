package evolve

import (
	"math"
	"math/rand"

	"github.com/evolvatron/evolvatron/evolerr"
	"github.com/evolvatron/evolvatron/neural"
)

// edgeKey is the (src, dst) identity an edge's stable weight is matched
// against across a topology edit, per spec.md §4.5/§4.12.
type edgeKey struct{ Src, Dst int }

// rematchWeights rebuilds a weight array for newEdges (already in their
// final sorted order) by carrying over each individual's old weight for
// edges whose (src, dst) identity survives, and calling init for any edge
// that has no surviving match (a freshly added or redirected endpoint).
func rematchWeights(oldEdges []neural.Edge, oldWeights []float32, newEdges []neural.Edge, init func(i int, e neural.Edge) float32) []float32 {
	queues := make(map[edgeKey][]int, len(oldEdges))
	for i, e := range oldEdges {
		k := edgeKey{e.Src, e.Dst}
		queues[k] = append(queues[k], i)
	}
	out := make([]float32, len(newEdges))
	for i, e := range newEdges {
		k := edgeKey{e.Src, e.Dst}
		if q := queues[k]; len(q) > 0 {
			out[i] = oldWeights[q[0]]
			queues[k] = q[1:]
		} else {
			out[i] = init(i, e)
		}
	}
	return out
}

func glorotWeight(inDeg, outDeg []int, dst int, rng *rand.Rand) float32 {
	fanIn, fanOut := inDeg[dst], outDeg[dst]
	if fanIn < 1 {
		fanIn = 1
	}
	if fanOut < 1 {
		fanOut = 1
	}
	limit := math.Sqrt(6.0 / float64(fanIn+fanOut))
	return float32((rng.Float64()*2 - 1) * limit)
}

// sortedByDst returns a stably-sorted copy of edges, ordered by Dst.
func sortedByDst(edges []neural.Edge) []neural.Edge {
	out := append([]neural.Edge(nil), edges...)
	// insertion sort: topology edge lists are small (bounded by
	// max_in_degree * node_count), so this stays cheap and stable.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Dst < out[j-1].Dst; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// eliteWeightEpsilon is the magnitude below which an elite's weight on an
// edge is treated as "doesn't depend on it" for the deletion guard below.
const eliteWeightEpsilon = 1e-6

// protectedInit wraps base so individuals[i] for i < protected — the
// species' elite slots, always placed first in the slice passed to
// MutateTopology per regenerateSpecies — receive weight 0 for a
// structurally new edge instead of base's value. A zero weight leaves the
// edge functionally inert, so an elite's Forward output is unaffected by
// structure it never asked for (spec.md §4.10: "elites... copied unchanged
// into the next generation").
func protectedInit(protected int, base func(i int, e neural.Edge) float32) func(i int, e neural.Edge) float32 {
	return func(i int, e neural.Edge) float32 {
		if i < protected {
			return 0
		}
		return base(i, e)
	}
}

// protectedDependsOnEdge reports whether any of individuals[:protected]
// holds a non-negligible weight on edgeIdx, i.e. whether deleting that edge
// would actually change an elite's computed output.
func protectedDependsOnEdge(individuals []*neural.Individual, protected, edgeIdx int) bool {
	for i := 0; i < protected && i < len(individuals); i++ {
		if absF32(individuals[i].Weights[edgeIdx]) > eliteWeightEpsilon {
			return true
		}
	}
	return false
}

func parallelCount(edges []neural.Edge, src, dst int) int {
	n := 0
	for _, e := range edges {
		if e.Src == src && e.Dst == dst {
			n++
		}
	}
	return n
}

func inDegreeOf(edges []neural.Edge, dst int) int {
	n := 0
	for _, e := range edges {
		if e.Dst == dst {
			n++
		}
	}
	return n
}

// applyCandidate validates a candidate edge list (parallel <= 2, in-degree
// <= max, connectivity preserved) and, if valid, commits it to t, rebuilds
// row plans, and rematches every individual's weights. initFn supplies a
// weight for any edge with no identity match in the old list; its first
// argument is the index into individuals of the individual being rematched.
func applyCandidate(t *neural.Topology, individuals []*neural.Individual, maxInDegree int, candidate []neural.Edge, initFn func(i int, e neural.Edge) float32) (bool, evolerr.Kind) {
	inDeg := make(map[int]int)
	pairs := make(map[edgeKey]int)
	for _, e := range candidate {
		inDeg[e.Dst]++
		pairs[edgeKey{e.Src, e.Dst}]++
	}
	for _, n := range inDeg {
		if n > maxInDegree {
			return false, evolerr.DegreeExceeded
		}
	}
	for _, n := range pairs {
		if n > 2 {
			return false, evolerr.EdgeExists
		}
	}

	oldEdges := append([]neural.Edge(nil), t.Edges...)
	sorted := sortedByDst(candidate)

	savedEdges := t.Edges
	t.Edges = sorted
	connected := t.OutputsReachableFromInputs()
	if !connected {
		t.Edges = savedEdges
		return false, evolerr.WouldDisconnect
	}

	oldWeightsByIndividual := make([][]float32, len(individuals))
	for i, ind := range individuals {
		oldWeightsByIndividual[i] = ind.Weights
	}
	t.BuildRowPlans()
	for i, ind := range individuals {
		indIdx := i
		newWeights := rematchWeights(oldEdges, oldWeightsByIndividual[i], t.Edges, func(_ int, e neural.Edge) float32 {
			return initFn(indIdx, e)
		})
		ind.SetWeights(newWeights)
	}
	return true, 0
}

// TryEdgeAdd samples (row_src, row_dst) with row_src < row_dst and random
// endpoints, and adds the edge if it survives the guard rails, per
// spec.md §4.7.
func TryEdgeAdd(t *neural.Topology, individuals []*neural.Individual, protected, maxInDegree int, rng *rand.Rand) (bool, evolerr.Kind) {
	numRows := t.NumRows()
	if numRows < 2 {
		return false, evolerr.InvalidTopology
	}
	rowSrc := rng.Intn(numRows - 1)
	rowDst := rowSrc + 1 + rng.Intn(numRows-1-rowSrc)

	srcStart, srcCount := t.NodeRange(rowSrc)
	dstStart, dstCount := t.NodeRange(rowDst)
	src := srcStart + rng.Intn(srcCount)
	dst := dstStart + rng.Intn(dstCount)

	if parallelCount(t.Edges, src, dst) >= 2 {
		return false, evolerr.EdgeExists
	}

	candidate := append(append([]neural.Edge(nil), t.Edges...), neural.Edge{Src: src, Dst: dst})
	inDeg, outDeg := t.InOutDegree()
	return applyCandidate(t, individuals, maxInDegree, candidate, protectedInit(protected, func(i int, e neural.Edge) float32 {
		return glorotWeight(inDeg, outDeg, e.Dst, rng)
	}))
}

// TryEdgeDelete deletes a random edge iff connectivity survives and no
// protected (elite) individual depends on it, per spec.md §4.7/§4.8.
func TryEdgeDelete(t *neural.Topology, individuals []*neural.Individual, protected, maxInDegree int, rng *rand.Rand) (bool, evolerr.Kind) {
	if len(t.Edges) == 0 {
		return false, evolerr.InvalidTopology
	}
	victim := rng.Intn(len(t.Edges))
	if protectedDependsOnEdge(individuals, protected, victim) {
		return false, evolerr.EdgeExists
	}
	candidate := make([]neural.Edge, 0, len(t.Edges)-1)
	for i, e := range t.Edges {
		if i != victim {
			candidate = append(candidate, e)
		}
	}
	return applyCandidate(t, individuals, maxInDegree, candidate, func(i int, e neural.Edge) float32 { return 0 })
}

// TryEdgeRedirect replaces one endpoint of a random edge with a different
// node, respecting row ordering, per spec.md §4.7.
func TryEdgeRedirect(t *neural.Topology, individuals []*neural.Individual, protected, maxInDegree int, rng *rand.Rand) (bool, evolerr.Kind) {
	if len(t.Edges) == 0 {
		return false, evolerr.InvalidTopology
	}
	idx := rng.Intn(len(t.Edges))
	e := t.Edges[idx]
	if protectedDependsOnEdge(individuals, protected, idx) {
		return false, evolerr.EdgeExists
	}
	srcRow, dstRow := t.RowOf(e.Src), t.RowOf(e.Dst)

	newEdge := e
	if rng.Intn(2) == 0 {
		start, count := t.NodeRange(srcRow)
		newEdge.Src = start + rng.Intn(count)
	} else {
		start, count := t.NodeRange(dstRow)
		newEdge.Dst = start + rng.Intn(count)
	}
	if newEdge == e {
		return false, evolerr.EdgeExists
	}
	if parallelCount(t.Edges, newEdge.Src, newEdge.Dst) >= 2 {
		return false, evolerr.EdgeExists
	}

	candidate := append([]neural.Edge(nil), t.Edges...)
	candidate[idx] = newEdge
	inDeg, outDeg := t.InOutDegree()
	return applyCandidate(t, individuals, maxInDegree, candidate, protectedInit(protected, func(i int, ne neural.Edge) float32 {
		return glorotWeight(inDeg, outDeg, ne.Dst, rng)
	}))
}

// TryEdgeDuplicate adds a second parallel copy of an existing edge (<=2
// allowed), per spec.md §4.7.
func TryEdgeDuplicate(t *neural.Topology, individuals []*neural.Individual, maxInDegree int, rng *rand.Rand) (bool, evolerr.Kind) {
	if len(t.Edges) == 0 {
		return false, evolerr.InvalidTopology
	}
	idx := rng.Intn(len(t.Edges))
	e := t.Edges[idx]
	if parallelCount(t.Edges, e.Src, e.Dst) >= 2 {
		return false, evolerr.EdgeExists
	}
	candidate := append(append([]neural.Edge(nil), t.Edges...), e)

	// rematchWeights hands the first (src, dst) match the old weight and
	// falls through to init for any further copy, so the duplicate starts
	// independent of the original and can diverge under later jitter.
	return applyCandidate(t, individuals, maxInDegree, candidate, func(i int, ne neural.Edge) float32 {
		return 0
	})
}

// TryEdgeSwap exchanges the destinations of two edges, guarded by the DAG
// and in-degree constraints, per spec.md §4.7.
func TryEdgeSwap(t *neural.Topology, individuals []*neural.Individual, protected, maxInDegree int, rng *rand.Rand) (bool, evolerr.Kind) {
	if len(t.Edges) < 2 {
		return false, evolerr.InvalidTopology
	}
	a := rng.Intn(len(t.Edges))
	b := rng.Intn(len(t.Edges))
	if a == b {
		return false, evolerr.EdgeExists
	}
	if protectedDependsOnEdge(individuals, protected, a) || protectedDependsOnEdge(individuals, protected, b) {
		return false, evolerr.EdgeExists
	}
	ea, eb := t.Edges[a], t.Edges[b]
	newA := neural.Edge{Src: ea.Src, Dst: eb.Dst}
	newB := neural.Edge{Src: eb.Src, Dst: ea.Dst}
	if t.RowOf(newA.Src) >= t.RowOf(newA.Dst) || t.RowOf(newB.Src) >= t.RowOf(newB.Dst) {
		return false, evolerr.WouldCycle
	}
	candidate := append([]neural.Edge(nil), t.Edges...)
	candidate[a], candidate[b] = newA, newB
	inDeg, outDeg := t.InOutDegree()
	return applyCandidate(t, individuals, maxInDegree, candidate, protectedInit(protected, func(i int, ne neural.Edge) float32 {
		return glorotWeight(inDeg, outDeg, ne.Dst, rng)
	}))
}

// TryEdgeMerge collapses the two parallel copies of a random doubly-
// connected (src, dst) pair into one edge, summing weights, per spec.md
// §4.7/§9: the merge carries the edge's (src, dst) identity through the
// post-merge sort rather than a raw array index, so it survives
// build_row_plans' resort (the documented EdgeMerge failure mode).
func TryEdgeMerge(t *neural.Topology, individuals []*neural.Individual, maxInDegree int, rng *rand.Rand) (bool, evolerr.Kind) {
	var candidates []edgeKey
	for _, e := range t.Edges {
		k := edgeKey{e.Src, e.Dst}
		if parallelCount(t.Edges, e.Src, e.Dst) == 2 {
			candidates = append(candidates, k)
		}
	}
	if len(candidates) == 0 {
		return false, evolerr.InvalidTopology
	}
	target := candidates[rng.Intn(len(candidates))]

	candidate := make([]neural.Edge, 0, len(t.Edges)-1)
	kept := false
	for _, e := range t.Edges {
		if e.Src == target.Src && e.Dst == target.Dst {
			if kept {
				continue // drop the second copy
			}
			kept = true
		}
		candidate = append(candidate, e)
	}

	oldEdges := append([]neural.Edge(nil), t.Edges...)
	oldWeights := make([][]float32, len(individuals))
	for i, ind := range individuals {
		oldWeights[i] = append([]float32(nil), ind.Weights...)
	}

	ok, kind := applyCandidate(t, individuals, maxInDegree, candidate, func(i int, e neural.Edge) float32 { return 0 })
	if !ok {
		return false, kind
	}
	// applyCandidate's generic rematch already carried over the first
	// surviving copy's weight; add the second copy's weight back in.
	for i, ind := range individuals {
		sum := mergedWeightSum(oldEdges, oldWeights[i], target)
		for j, e := range t.Edges {
			if e.Src == target.Src && e.Dst == target.Dst {
				ind.Weights[j] = sum
			}
		}
	}
	return true, 0
}

func mergedWeightSum(oldEdges []neural.Edge, oldWeights []float32, key edgeKey) float32 {
	var sum float32
	for i, e := range oldEdges {
		if e.Src == key.Src && e.Dst == key.Dst {
			sum += oldWeights[i]
		}
	}
	return sum
}

// TryEdgeSplit deletes (a, b) and inserts an intermediate node m in a row
// strictly between row(a) and row(b), with new edges (a, m) and (m, b)
// initialized so the composition approximates the original weight, per
// spec.md §4.7.
func TryEdgeSplit(t *neural.Topology, individuals []*neural.Individual, protected, maxInDegree int, rng *rand.Rand) (bool, evolerr.Kind) {
	if len(t.Edges) == 0 {
		return false, evolerr.InvalidTopology
	}
	idx := rng.Intn(len(t.Edges))
	if protectedDependsOnEdge(individuals, protected, idx) {
		return false, evolerr.EdgeExists
	}
	e := t.Edges[idx]
	rowA, rowB := t.RowOf(e.Src), t.RowOf(e.Dst)
	if rowB-rowA < 2 {
		return false, evolerr.InvalidTopology // no intermediate row exists
	}
	midRow := rowA + 1 + rng.Intn(rowB-rowA-1)

	origWeights := make([]float32, len(individuals))
	for i, ind := range individuals {
		origWeights[i] = ind.Weights[idx]
	}

	// Remove the original edge first.
	remaining := make([]neural.Edge, 0, len(t.Edges)-1)
	for i, other := range t.Edges {
		if i != idx {
			remaining = append(remaining, other)
		}
	}
	t.Edges = remaining
	for _, ind := range individuals {
		w := make([]float32, len(ind.Weights)-1)
		c := 0
		for j, wv := range ind.Weights {
			if j != idx {
				w[c] = wv
				c++
			}
		}
		ind.SetWeights(w)
	}

	m := t.InsertNode(midRow)
	for _, ind := range individuals {
		ind.InsertNodeSlot(m, neural.Linear)
	}
	// InsertNode shifted every node index >= m; e's endpoints may have too.
	src, dst := e.Src, e.Dst
	if src >= m {
		src++
	}
	if dst >= m {
		dst++
	}

	// Append the two new edges and their per-individual weights, then sort
	// edges and every individual's weight array together by the same
	// permutation so array positions stay aligned with edge identity
	// (spec.md §9's EdgeMerge/build_row_plans pitfall applies here too).
	t.Edges = append(t.Edges, neural.Edge{Src: src, Dst: m}, neural.Edge{Src: m, Dst: dst})
	weightSets := make([][]float32, len(individuals))
	for i, ind := range individuals {
		// Approximate the original linear map a->b with a->m->b so the
		// product reconstructs the original weight to first order:
		// w_am = w_mb = sign(w)*sqrt(|w|).
		w := origWeights[i]
		half := sqrtApprox(absF32(w))
		if w < 0 {
			half = -half
		}
		weightSets[i] = append(ind.Weights, half, half)
	}
	t.Edges = neural.SortEdgesWithWeights(t.Edges, weightSets)
	t.RebuildPlansOnly()
	for i, ind := range individuals {
		ind.SetWeights(weightSets[i])
	}
	return true, 0
}

func sqrtApprox(x float32) float32 {
	if x <= 0 {
		return 0
	}
	return float32(math.Sqrt(float64(x)))
}

func absF32(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}

// MutateTopology attempts each topology-edit operator against its
// configured probability, applied once per species per generation — a
// species' Topology and every one of its individuals' weight arrays are
// shared and so must change together (see DESIGN.md's resolution of the
// "per-individual" topology-operator wording in spec.md §4.7 against the
// glossary's "individuals differ only by weights/biases/activations").
// individuals[:protected] are the species' elite clones (always placed
// first by regenerateSpecies): every operator either leaves their weights
// untouched, grows their array with a functionally-inert zero, or refuses
// to fire against an edge they depend on, so an elite's Forward output
// never changes as a side effect of the rest of the species evolving (see
// DESIGN.md's elite-preservation note). Returns the operators that
// actually fired.
func MutateTopology(t *neural.Topology, individuals []*neural.Individual, protected int, rates TopologyRates, maxInDegree int, rng *rand.Rand) []string {
	var applied []string
	try := func(name string, p float32, fn func() (bool, evolerr.Kind)) {
		if rng.Float32() >= p {
			return
		}
		if ok, _ := fn(); ok {
			applied = append(applied, name)
		}
	}
	try("EdgeAdd", rates.EdgeAdd, func() (bool, evolerr.Kind) { return TryEdgeAdd(t, individuals, protected, maxInDegree, rng) })
	try("EdgeDelete", rates.EdgeDelete, func() (bool, evolerr.Kind) { return TryEdgeDelete(t, individuals, protected, maxInDegree, rng) })
	try("EdgeSplit", rates.EdgeSplit, func() (bool, evolerr.Kind) { return TryEdgeSplit(t, individuals, protected, maxInDegree, rng) })
	try("EdgeRedirect", rates.EdgeRedirect, func() (bool, evolerr.Kind) { return TryEdgeRedirect(t, individuals, protected, maxInDegree, rng) })
	try("EdgeDuplicate", rates.EdgeDuplicate, func() (bool, evolerr.Kind) { return TryEdgeDuplicate(t, individuals, maxInDegree, rng) })
	try("EdgeMerge", rates.EdgeMerge, func() (bool, evolerr.Kind) { return TryEdgeMerge(t, individuals, maxInDegree, rng) })
	try("EdgeSwap", rates.EdgeSwap, func() (bool, evolerr.Kind) { return TryEdgeSwap(t, individuals, protected, maxInDegree, rng) })
	return applied
}
