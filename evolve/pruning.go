package evolve

import (
	"math/rand"

	"github.com/evolvatron/evolvatron/neural"
)

// PruneWeakEdges implements spec.md §4.9: for each edge, compute the mean
// absolute weight across individuals; if it falls below cfg.Threshold,
// delete with probability base_rate*(1 - mean_abs/threshold), gated by
// connectivity preservation and by individuals[:protected] (the species'
// elite clones) not actually depending on the edge — spec.md §4.10's
// "elites... copied unchanged" means pruning must not drop a connection an
// elite still uses, even if the species-wide mean is weak. Edges are
// considered in destination order and removal compacts every individual's
// weight array at the same index, so relative edge order (and therefore
// row-plan boundaries) never need a full resort. Returns the number of
// edges removed.
func PruneWeakEdges(t *neural.Topology, individuals []*neural.Individual, protected int, cfg PruningConfig, rng *rand.Rand) int {
	if !cfg.Enabled || len(individuals) == 0 {
		return 0
	}
	removed := 0
	idx := 0
	for idx < len(t.Edges) {
		meanAbs := meanAbsWeight(individuals, idx)
		if meanAbs >= cfg.Threshold {
			idx++
			continue
		}
		pDelete := cfg.BaseRate * (1 - meanAbs/cfg.Threshold)
		if rng.Float32() >= pDelete {
			idx++
			continue
		}
		if protectedDependsOnEdge(individuals, protected, idx) {
			idx++
			continue
		}
		if deleteEdgeAt(t, individuals, idx) {
			removed++
			// Do not advance idx: the next edge slid into this position.
			continue
		}
		idx++
	}
	return removed
}

func meanAbsWeight(individuals []*neural.Individual, edgeIdx int) float32 {
	var sum float32
	for _, ind := range individuals {
		sum += absF(ind.Weights[edgeIdx])
	}
	return sum / float32(len(individuals))
}

// deleteEdgeAt removes edge at idx iff connectivity survives (spec.md
// §4.8), compacting every individual's weight array at the same index.
func deleteEdgeAt(t *neural.Topology, individuals []*neural.Individual, idx int) bool {
	if !t.CanDelete(idx) {
		return false
	}
	t.Edges = append(t.Edges[:idx], t.Edges[idx+1:]...)
	t.RebuildPlansOnly()
	for _, ind := range individuals {
		ind.SetWeights(append(ind.Weights[:idx], ind.Weights[idx+1:]...))
	}
	return true
}
