package neural

import (
	"sort"

	"github.com/evolvatron/evolvatron/evolerr"
)

// Edge is a directed connection from a source node to a destination node in
// a higher row, identified by global node index. After BuildRowPlans sorts
// the edge list by destination, an edge's array index is its stable ID
// (spec.md §4.5): weight arrays are indexed by this same ID and any
// re-sort must permute weights in lockstep.
type Edge struct {
	Src, Dst int
}

// RowPlan is the compiled, contiguous (node_range, edge_range) for one row,
// per spec.md §3.
type RowPlan struct {
	NodeStart, NodeCount int
	EdgeStart, EdgeCount int
}

// Topology is the species-shared DAG description: row sizes, per-row
// allowed-activation bitmasks, the global in-degree cap, and the edge list.
// A Topology is shared by every individual in a species; individuals carry
// their own weights/biases/activations indexed against it.
type Topology struct {
	RowCounts               []int
	AllowedActivationsPerRow []Mask
	MaxInDegree             int
	Edges                   []Edge

	RowPlans []RowPlan

	nodeOffsets []int
}

// NodeCount is the total number of nodes across all rows.
func (t *Topology) NodeCount() int {
	total := 0
	for _, c := range t.RowCounts {
		total += c
	}
	return total
}

// EdgeCount is the number of edges (and so the required weight-array length).
func (t *Topology) EdgeCount() int { return len(t.Edges) }

// NumRows is the number of rows, including row 0 (the constant-bias row).
func (t *Topology) NumRows() int { return len(t.RowCounts) }

func (t *Topology) computeOffsets() {
	t.nodeOffsets = make([]int, len(t.RowCounts)+1)
	for r, c := range t.RowCounts {
		t.nodeOffsets[r+1] = t.nodeOffsets[r] + c
	}
}

// RowOf returns the row index containing global node index n.
func (t *Topology) RowOf(n int) int {
	// nodeOffsets is sorted ascending; find the row whose [start, start+count)
	// contains n via binary search over row-start boundaries.
	lo, hi := 0, len(t.RowCounts)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if t.nodeOffsets[mid] <= n {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}

// NodeRange returns the [start, start+count) global node index range for row.
func (t *Topology) NodeRange(row int) (start, count int) {
	return t.nodeOffsets[row], t.RowCounts[row]
}

// Validate checks the structural invariants of spec.md §4.5: non-empty
// rows, a single bias node in row 0, non-negative counts, only-forward
// edges, in-degree bounded by MaxInDegree, at most 2 parallel edges per
// (src, dst), and output-row activations restricted to {Linear, Tanh}.
func (t *Topology) Validate() error {
	if len(t.RowCounts) < 2 {
		return evolerr.New(evolerr.InvalidTopology, "topology must have at least a bias row and one output row")
	}
	if t.RowCounts[0] != 1 {
		return evolerr.New(evolerr.InvalidTopology, "row 0 (bias row) must have exactly 1 node")
	}
	for r, c := range t.RowCounts {
		if c <= 0 {
			return evolerr.New(evolerr.InvalidTopology, "row counts must be positive")
		}
		_ = r
	}
	if len(t.AllowedActivationsPerRow) != len(t.RowCounts) {
		return evolerr.New(evolerr.InvalidTopology, "allowed_activations_per_row must have one entry per row")
	}
	if t.MaxInDegree <= 0 {
		return evolerr.New(evolerr.InvalidTopology, "max_in_degree must be positive")
	}

	t.computeOffsets()

	outputRow := len(t.RowCounts) - 1
	if t.AllowedActivationsPerRow[outputRow]&^OutputMask != 0 {
		return evolerr.New(evolerr.InvalidTopology, "output row allows an activation outside {Linear, Tanh}")
	}

	total := t.NodeCount()
	inDegree := make([]int, total)
	pairCounts := make(map[Edge]int, len(t.Edges))

	for _, e := range t.Edges {
		if e.Src < 0 || e.Src >= total || e.Dst < 0 || e.Dst >= total {
			return evolerr.New(evolerr.InvalidTopology, "edge endpoint out of range")
		}
		if t.RowOf(e.Src) >= t.RowOf(e.Dst) {
			return evolerr.New(evolerr.InvalidTopology, "edge is not strictly forward (row(src) < row(dst) required)")
		}
		inDegree[e.Dst]++
		pairCounts[e]++
	}
	for _, d := range inDegree {
		if d > t.MaxInDegree {
			return evolerr.New(evolerr.InvalidTopology, "node exceeds max_in_degree")
		}
	}
	for _, n := range pairCounts {
		if n > 2 {
			return evolerr.New(evolerr.InvalidTopology, "more than 2 parallel edges between the same (src, dst)")
		}
	}
	return nil
}

// BuildRowPlans stable-sorts Edges by destination and fills RowPlans with
// contiguous (node_range, edge_range) entries, per spec.md §4.5. Must be
// called after Validate (which computes nodeOffsets) and again after any
// mutation that changes row counts or the edge list.
func (t *Topology) BuildRowPlans() {
	if t.nodeOffsets == nil {
		t.computeOffsets()
	}
	sort.SliceStable(t.Edges, func(i, j int) bool { return t.Edges[i].Dst < t.Edges[j].Dst })
	t.RebuildPlansOnly()
}

// RebuildPlansOnly recomputes RowPlans assuming t.Edges is already sorted
// by destination (callers that permute edges and a parallel weight array
// together — e.g. evolve's topology mutations — sort both themselves and
// then call this instead of BuildRowPlans, which would re-sort edges alone
// and desynchronize them from the weight array).
func (t *Topology) RebuildPlansOnly() {
	if t.nodeOffsets == nil {
		t.computeOffsets()
	}
	t.RowPlans = make([]RowPlan, len(t.RowCounts))
	edgeCursor := 0
	for r := range t.RowCounts {
		nodeStart, nodeCount := t.NodeRange(r)
		edgeStart := edgeCursor
		for edgeCursor < len(t.Edges) && t.Edges[edgeCursor].Dst < nodeStart+nodeCount {
			edgeCursor++
		}
		t.RowPlans[r] = RowPlan{
			NodeStart: nodeStart, NodeCount: nodeCount,
			EdgeStart: edgeStart, EdgeCount: edgeCursor - edgeStart,
		}
	}
}

// SortEdgesWithWeights stably sorts edges by destination, applying the same
// permutation to every slice in weightSets so per-individual weight arrays
// stay aligned with their edges. Returns the sorted edges.
func SortEdgesWithWeights(edges []Edge, weightSets [][]float32) []Edge {
	idx := make([]int, len(edges))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return edges[idx[a]].Dst < edges[idx[b]].Dst })

	sortedEdges := make([]Edge, len(edges))
	for i, j := range idx {
		sortedEdges[i] = edges[j]
	}
	for _, ws := range weightSets {
		if ws == nil {
			continue
		}
		sorted := make([]float32, len(ws))
		for i, j := range idx {
			sorted[i] = ws[j]
		}
		copy(ws, sorted)
	}
	return sortedEdges
}

// InOutDegree returns the in-degree and out-degree of every node, used by
// Glorot weight initialization (spec.md §4.7) and by mutation operators.
func (t *Topology) InOutDegree() (inDeg, outDeg []int) {
	total := t.NodeCount()
	inDeg = make([]int, total)
	outDeg = make([]int, total)
	for _, e := range t.Edges {
		inDeg[e.Dst]++
		outDeg[e.Src]++
	}
	return inDeg, outDeg
}

// ReachableFromInputs returns, via forward BFS from row 1 (the input row),
// the set of nodes reachable from at least one input.
func (t *Topology) ReachableFromInputs() []bool {
	total := t.NodeCount()
	reached := make([]bool, total)
	inStart, inCount := t.NodeRange(1)
	queue := make([]int, 0, inCount)
	for n := inStart; n < inStart+inCount; n++ {
		reached[n] = true
		queue = append(queue, n)
	}
	adj := t.forwardAdjacency()
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, dst := range adj[n] {
			if !reached[dst] {
				reached[dst] = true
				queue = append(queue, dst)
			}
		}
	}
	return reached
}

// ReachesOutputs returns, via backward BFS from the output row, the set of
// nodes that can reach at least one output.
func (t *Topology) ReachesOutputs() []bool {
	total := t.NodeCount()
	reaches := make([]bool, total)
	outRow := len(t.RowCounts) - 1
	outStart, outCount := t.NodeRange(outRow)
	queue := make([]int, 0, outCount)
	for n := outStart; n < outStart+outCount; n++ {
		reaches[n] = true
		queue = append(queue, n)
	}
	radj := t.backwardAdjacency()
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, src := range radj[n] {
			if !reaches[src] {
				reaches[src] = true
				queue = append(queue, src)
			}
		}
	}
	return reaches
}

func (t *Topology) forwardAdjacency() map[int][]int {
	adj := make(map[int][]int, t.NodeCount())
	for _, e := range t.Edges {
		adj[e.Src] = append(adj[e.Src], e.Dst)
	}
	return adj
}

func (t *Topology) backwardAdjacency() map[int][]int {
	adj := make(map[int][]int, t.NodeCount())
	for _, e := range t.Edges {
		adj[e.Dst] = append(adj[e.Dst], e.Src)
	}
	return adj
}

// AllOutputsReachable reports whether every input is reachable to at least
// one output — a diagnostic, not an enforced invariant (spec.md §3).
func (t *Topology) AllOutputsReachable() bool {
	toOutputs := t.ReachesOutputs()
	inStart, inCount := t.NodeRange(1)
	for n := inStart; n < inStart+inCount; n++ {
		if !toOutputs[n] {
			return false
		}
	}
	return true
}

// InsertNode grows row by one node, appended at the end of that row's
// range, and shifts every node index >= the insertion point (including
// every edge endpoint) up by one. Returns the new node's global index.
// Row 0 (bias) and the output row may not grow this way; callers enforce
// that restriction (EdgeSplit only targets existing hidden rows).
func (t *Topology) InsertNode(row int) int {
	insertAt := t.nodeOffsets[row] + t.RowCounts[row]
	t.RowCounts[row]++
	t.computeOffsets()

	for i := range t.Edges {
		if t.Edges[i].Src >= insertAt {
			t.Edges[i].Src++
		}
		if t.Edges[i].Dst >= insertAt {
			t.Edges[i].Dst++
		}
	}
	return insertAt
}

// CanDelete reports whether removing edge at index edgeIdx leaves every
// output node reachable from at least one input, per spec.md §4.8.
func (t *Topology) CanDelete(edgeIdx int) bool {
	saved := t.Edges[edgeIdx]
	t.Edges = append(t.Edges[:edgeIdx], t.Edges[edgeIdx+1:]...)
	ok := t.outputsStillReachable()
	// Reinsert at the same index to preserve caller-visible ordering; callers
	// performing a real deletion rebuild plans themselves afterward.
	t.Edges = append(t.Edges, Edge{})
	copy(t.Edges[edgeIdx+1:], t.Edges[edgeIdx:len(t.Edges)-1])
	t.Edges[edgeIdx] = saved
	return ok
}

// OutputsReachableFromInputs reports whether every output node is
// reachable from at least one input node, over the topology's current edge
// list (spec.md §4.8).
func (t *Topology) OutputsReachableFromInputs() bool {
	fromInputs := t.ReachableFromInputs()
	outRow := len(t.RowCounts) - 1
	outStart, outCount := t.NodeRange(outRow)
	for n := outStart; n < outStart+outCount; n++ {
		if !fromInputs[n] {
			return false
		}
	}
	return true
}

func (t *Topology) outputsStillReachable() bool { return t.OutputsReachableFromInputs() }

// ActiveNodes is the intersection of forward- and backward-reachable sets:
// nodes genuinely on some input-to-output path, per spec.md §4.8.
func (t *Topology) ActiveNodes() []bool {
	fromInputs := t.ReachableFromInputs()
	toOutputs := t.ReachesOutputs()
	active := make([]bool, len(fromInputs))
	for i := range active {
		active[i] = fromInputs[i] && toOutputs[i]
	}
	return active
}

// Builder incrementally constructs a Topology row by row, a convenience
// matching how species are grown during diversification (spec.md §4.12).
type Builder struct {
	rowCounts []int
	allowed   []Mask
	maxInDeg  int
	edges     []Edge
}

// NewBuilder starts a Builder with the mandatory single-node bias row.
func NewBuilder(maxInDegree int) *Builder {
	return &Builder{
		rowCounts: []int{1},
		allowed:   []Mask{Bit(Linear)},
		maxInDeg:  maxInDegree,
	}
}

// AddRow appends a row of count nodes allowing the given activation mask.
func (b *Builder) AddRow(count int, allowed Mask) *Builder {
	b.rowCounts = append(b.rowCounts, count)
	b.allowed = append(b.allowed, allowed)
	return b
}

// AddEdge appends an edge from global node src to global node dst.
func (b *Builder) AddEdge(src, dst int) *Builder {
	b.edges = append(b.edges, Edge{Src: src, Dst: dst})
	return b
}

// Build returns the assembled Topology with row plans compiled, or an
// error if Validate rejects the result.
func (b *Builder) Build() (*Topology, error) {
	t := &Topology{
		RowCounts:                append([]int(nil), b.rowCounts...),
		AllowedActivationsPerRow: append([]Mask(nil), b.allowed...),
		MaxInDegree:              b.maxInDeg,
		Edges:                    append([]Edge(nil), b.edges...),
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	t.BuildRowPlans()
	return t, nil
}
