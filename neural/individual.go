package neural

import (
	"math"
	"math/rand"
)

// Individual is one genome evaluated against a shared Topology: per-edge
// weights, per-node biases/activations/params, plus fitness and age
// bookkeeping (spec.md §3).
type Individual struct {
	Weights     []float32
	Biases      []float32
	Activations []Tag
	NodeParams  [][4]float32

	Fitness float32
	Age     uint32

	// ActiveNodes is an optional diagnostic bitset (spec.md §3); nil until
	// computed via RefreshActiveNodes.
	ActiveNodes []bool
}

// NewIndividual allocates a fresh Individual for topology with Glorot-
// uniform weights, zero biases, and every node set to the lowest-numbered
// activation tag its row's mask allows (Linear wherever the row permits
// it), per spec.md §4.7.
func NewIndividual(t *Topology, rng *rand.Rand) *Individual {
	nodeCount := t.NodeCount()
	ind := &Individual{
		Weights:     make([]float32, t.EdgeCount()),
		Biases:      make([]float32, nodeCount),
		Activations: make([]Tag, nodeCount),
		NodeParams:  make([][4]float32, nodeCount),
	}

	inDeg, outDeg := t.InOutDegree()
	for i, e := range t.Edges {
		fanIn := maxInt(inDeg[e.Dst], 1)
		fanOut := maxInt(outDeg[e.Dst], 1)
		limit := math.Sqrt(6.0 / float64(fanIn+fanOut))
		ind.Weights[i] = float32((rng.Float64()*2 - 1) * limit)
	}

	for row := range t.RowCounts {
		start, count := t.NodeRange(row)
		mask := t.AllowedActivationsPerRow[row]
		tag := firstAllowed(mask)
		for n := start; n < start+count; n++ {
			ind.Activations[n] = tag
			ind.NodeParams[n] = DefaultParams(tag)
			ind.Biases[n] = 0
		}
	}
	return ind
}

func firstAllowed(mask Mask) Tag {
	for tag := Tag(0); tag < numTags; tag++ {
		if mask.Has(tag) {
			return tag
		}
	}
	return Linear
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Clone deep-copies ind so mutation never aliases the parent's arrays
// (spec.md §3).
func (ind *Individual) Clone() *Individual {
	clone := &Individual{
		Weights:     append([]float32(nil), ind.Weights...),
		Biases:      append([]float32(nil), ind.Biases...),
		Activations: append([]Tag(nil), ind.Activations...),
		NodeParams:  append([][4]float32(nil), ind.NodeParams...),
		Fitness:     ind.Fitness,
		Age:         ind.Age,
	}
	if ind.ActiveNodes != nil {
		clone.ActiveNodes = append([]bool(nil), ind.ActiveNodes...)
	}
	return clone
}

// RefreshActiveNodes recomputes the diagnostic active-node bitset from t.
func (ind *Individual) RefreshActiveNodes(t *Topology) {
	ind.ActiveNodes = t.ActiveNodes()
}

// InsertNodeSlot inserts a new node at global index at (shifting every
// existing node at or beyond it up by one), with the given activation tag
// and its default params, bias 0. Used by topology.InsertNode's caller to
// keep an individual's per-node arrays aligned with a grown topology.
func (ind *Individual) InsertNodeSlot(at int, tag Tag) {
	ind.Biases = append(ind.Biases, 0)
	copy(ind.Biases[at+1:], ind.Biases[at:len(ind.Biases)-1])
	ind.Biases[at] = 0

	ind.Activations = append(ind.Activations, Linear)
	copy(ind.Activations[at+1:], ind.Activations[at:len(ind.Activations)-1])
	ind.Activations[at] = tag

	ind.NodeParams = append(ind.NodeParams, [4]float32{})
	copy(ind.NodeParams[at+1:], ind.NodeParams[at:len(ind.NodeParams)-1])
	ind.NodeParams[at] = DefaultParams(tag)
}

// SetWeights replaces ind's weight array wholesale — used after a topology
// edit rebuilds the edge list and matches surviving edges by identity.
func (ind *Individual) SetWeights(w []float32) { ind.Weights = w }
