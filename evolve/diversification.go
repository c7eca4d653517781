package evolve

import (
	"math/rand"
	"sort"

	"github.com/evolvatron/evolvatron/neural"
)

// diversificationRetries bounds the number of perturbation attempts before
// DiversifySpecies falls back to a non-perturbed clone, per spec.md §4.17.
const diversificationRetries = 8

// TopDiversificationParents ranks species by MedianFitness descending and
// returns up to n of them, per spec.md §4.12's "top-2 species by median
// fitness" rule (n need not be exactly 2: callers decide how many
// replacement slots to seed).
func TopDiversificationParents(pop *Population, n int) []*Species {
	ranked := append([]*Species(nil), pop.Species...)
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].MedianFitness > ranked[j].MedianFitness })
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// perturbResult is the intermediate state shared between topology
// perturbation and per-individual remapping: the new topology, the parent
// edges that survived translated into new node indices (in original parent
// order, alongside their index into parent.Edges), and the full node
// identity map.
type perturbResult struct {
	topology       *neural.Topology
	survivingEdges []neural.Edge
	origIdx        []int
	oldToNew       []int
}

// buildNodeMap maps each old global node index to its new global index
// under newRowCounts, or -1 if that node's row shrank past it. Row 0 (bias)
// and the output row never change size; only hidden rows (and, in
// principle, row 1) can drop nodes here.
func buildNodeMap(t *neural.Topology, newRowCounts []int) []int {
	newOffsets := make([]int, len(newRowCounts)+1)
	for r, c := range newRowCounts {
		newOffsets[r+1] = newOffsets[r] + c
	}
	oldToNew := make([]int, t.NodeCount())
	for r, oldCount := range t.RowCounts {
		oldStart, _ := t.NodeRange(r)
		newStart := newOffsets[r]
		newCount := newRowCounts[r]
		for i := 0; i < oldCount; i++ {
			if i < newCount {
				oldToNew[oldStart+i] = newStart + i
			} else {
				oldToNew[oldStart+i] = -1
			}
		}
	}
	return oldToNew
}

// perturbedRowCounts applies spec.md §4.12's per-row size jitter (+/-{0,1,2},
// clamped to [MinHiddenRowSize, MaxHiddenRowSize]) to every hidden row. Row 0
// (bias), row 1 (inputs), and the output row keep a fixed size.
func perturbedRowCounts(t *neural.Topology, cfg Config, rng *rand.Rand) []int {
	out := append([]int(nil), t.RowCounts...)
	last := len(out) - 1
	for r := 2; r < last; r++ {
		delta := rng.Intn(5) - 2
		n := out[r] + delta
		if n < cfg.MinHiddenRowSize {
			n = cfg.MinHiddenRowSize
		}
		if n > cfg.MaxHiddenRowSize {
			n = cfg.MaxHiddenRowSize
		}
		out[r] = n
	}
	return out
}

// perturbTopology builds a candidate child topology from parent: if perturb
// is false it's an identity clone (used as the bounded-retry fallback);
// otherwise hidden row sizes, one row's allowed-activation mask, and
// max_in_degree are jittered per spec.md §4.12. Edges whose endpoint was
// dropped by a row shrink are omitted; everything else carries its (src,
// dst) identity through to the new node indices so rematchWeights can later
// recover per-individual weights.
func perturbTopology(parent *neural.Topology, cfg Config, rng *rand.Rand, perturb bool) perturbResult {
	newRowCounts := append([]int(nil), parent.RowCounts...)
	if perturb {
		newRowCounts = perturbedRowCounts(parent, cfg, rng)
	}
	oldToNew := buildNodeMap(parent, newRowCounts)

	newAllowed := append([]neural.Mask(nil), parent.AllowedActivationsPerRow...)
	newMaxInDegree := parent.MaxInDegree
	if perturb {
		row := rng.Intn(len(newAllowed))
		bits := 1 + rng.Intn(3)
		mask := newAllowed[row]
		for b := 0; b < bits; b++ {
			mask ^= neural.Bit(neural.Tag(rng.Intn(11)))
		}
		if row == len(newAllowed)-1 {
			mask &= neural.OutputMask
		}
		if mask == 0 {
			mask = neural.Bit(neural.Linear)
		}
		newAllowed[row] = mask

		newMaxInDegree += rng.Intn(3) - 1
		if newMaxInDegree < 1 {
			newMaxInDegree = 1
		}
	}

	var survivingEdges []neural.Edge
	var origIdx []int
	for i, e := range parent.Edges {
		ns, nd := oldToNew[e.Src], oldToNew[e.Dst]
		if ns < 0 || nd < 0 {
			continue
		}
		survivingEdges = append(survivingEdges, neural.Edge{Src: ns, Dst: nd})
		origIdx = append(origIdx, i)
	}

	child := &neural.Topology{
		RowCounts:                newRowCounts,
		AllowedActivationsPerRow: newAllowed,
		MaxInDegree:              newMaxInDegree,
		Edges:                    append([]neural.Edge(nil), survivingEdges...),
	}

	return perturbResult{
		topology:       child,
		survivingEdges: survivingEdges,
		origIdx:        origIdx,
		oldToNew:       oldToNew,
	}
}

// remapIndividual builds one child individual from a parent individual under
// res's node/edge identity map: surviving nodes copy bias/activation/params,
// brand-new nodes get a random allowed activation (spec.md §4.12); surviving
// edges copy weight, brand-new edges get a Glorot draw.
func remapIndividual(base *neural.Individual, t *neural.Topology, res perturbResult, inDeg, outDeg []int, rng *rand.Rand) *neural.Individual {
	nodeCount := t.NodeCount()
	ind := &neural.Individual{
		Biases:      make([]float32, nodeCount),
		Activations: make([]neural.Tag, nodeCount),
		NodeParams:  make([][4]float32, nodeCount),
	}

	touched := make([]bool, nodeCount)
	for oldN, newN := range res.oldToNew {
		if newN < 0 {
			continue
		}
		ind.Biases[newN] = base.Biases[oldN]
		ind.Activations[newN] = base.Activations[oldN]
		ind.NodeParams[newN] = base.NodeParams[oldN]
		touched[newN] = true
	}
	for row := range t.RowCounts {
		start, count := t.NodeRange(row)
		mask := t.AllowedActivationsPerRow[row]
		for n := start; n < start+count; n++ {
			if touched[n] {
				continue
			}
			tag := randomAllowedTag(mask, rng)
			ind.Activations[n] = tag
			ind.NodeParams[n] = neural.DefaultParams(tag)
		}
	}

	oldWeights := make([]float32, len(res.origIdx))
	for i, oi := range res.origIdx {
		oldWeights[i] = base.Weights[oi]
	}
	ind.Weights = rematchWeights(res.survivingEdges, oldWeights, t.Edges, func(i int, e neural.Edge) float32 {
		return glorotWeight(inDeg, outDeg, e.Dst, rng)
	})
	return ind
}

func randomAllowedTag(mask neural.Mask, rng *rand.Rand) neural.Tag {
	choices := allowedTags(mask)
	if len(choices) == 0 {
		return neural.Linear
	}
	return choices[rng.Intn(len(choices))]
}

// tryDiversify attempts one perturb/no-perturb candidate and reports whether
// the resulting topology validated.
func tryDiversify(parent *Species, targetSize int, cfg Config, rng *rand.Rand, perturb bool) (*Species, bool) {
	res := perturbTopology(parent.Topology, cfg, rng, perturb)
	t := res.topology
	if err := t.Validate(); err != nil {
		return nil, false
	}
	t.BuildRowPlans()

	inDeg, outDeg := t.InOutDegree()
	individuals := make([]*neural.Individual, targetSize)
	for i := 0; i < targetSize; i++ {
		base := parent.Individuals[i%len(parent.Individuals)]
		individuals[i] = remapIndividual(base, t, res, inDeg, outDeg, rng)
	}

	if cfg.WeakEdgePruning.Enabled && cfg.WeakEdgePruning.AtSpeciesBirth {
		PruneWeakEdges(t, individuals, 0, cfg.WeakEdgePruning, rng)
	}
	return NewSpecies(t, individuals), true
}

// DiversifySpecies clones parent into a new species of targetSize
// individuals, attempting a perturbed topology edit up to
// diversificationRetries times before falling back to a non-perturbed clone
// (spec.md §4.12/§4.17: "species validation failures during diversification
// are rejected and the mutation retried a bounded number of times before
// falling back to a non-perturbed clone").
func DiversifySpecies(parent *Species, targetSize int, cfg Config, rng *rand.Rand) *Species {
	for attempt := 0; attempt < diversificationRetries; attempt++ {
		if sp, ok := tryDiversify(parent, targetSize, cfg, rng, true); ok {
			return sp
		}
	}
	sp, ok := tryDiversify(parent, targetSize, cfg, rng, false)
	if !ok {
		// An unperturbed clone of an already-valid topology cannot fail
		// Validate; this is unreachable in practice.
		return NewSpecies(parent.Topology, nil)
	}
	return sp
}
