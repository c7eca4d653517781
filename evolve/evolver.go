package evolve

import (
	"math/rand"

	"github.com/evolvatron/evolvatron/evolog"
	"github.com/evolvatron/evolvatron/neural"
)

// StepGeneration advances pop by one generation, per spec.md §4.13. Callers
// must score every individual's Fitness before calling this (the evaluator
// is environment-agnostic and lives outside this package, in the
// environment package). In order: refresh per-species stats, cull at most
// one stagnant species and replace it via diversification from a top-2
// parent, then regenerate every species' individual pool (elitism plus
// tournament-selected, mutated offspring), apply one species-level topology
// mutation pass, prune weak edges, and finally age everything by one
// generation. logger may be nil; culls and diversification events are
// reported at Debug/Info level.
func StepGeneration(pop *Population, cfg Config, rng *rand.Rand, logger evolog.Logger) {
	logger = evolog.OrNoop(logger)
	for _, sp := range pop.Species {
		sp.UpdateStats()
	}

	cullAndReplace(pop, cfg, rng, logger)

	for _, sp := range pop.Species {
		regenerateSpecies(sp, cfg, rng)
		sp.Age++
	}
	pop.Generation++
	logger.Debugf("generation %d complete: %d species", pop.Generation, len(pop.Species))
}

// cullAndReplace finds the single worst culling-eligible species (spec.md
// §4.11) and replaces it in place with a diversified clone of a top-2
// parent (spec.md §4.12). The replacement happens at the same slot, so the
// population never actually shrinks — spec.md §4.17's "empty population"
// failure mode cannot arise from this path. When the population is already
// at MinSpeciesCount, culling is skipped entirely: destroying a species'
// identity (even if immediately replaced) would otherwise bypass the floor
// the config is meant to enforce.
func cullAndReplace(pop *Population, cfg Config, rng *rand.Rand, logger evolog.Logger) {
	if len(pop.Species) <= cfg.MinSpeciesCount {
		return
	}
	best := pop.BestSpeciesMedian()
	worstIdx := -1
	var worstMedian float32
	for i, sp := range pop.Species {
		if !sp.EligibleForCulling(cfg, best) {
			continue
		}
		if worstIdx < 0 || sp.MedianFitness < worstMedian {
			worstIdx = i
			worstMedian = sp.MedianFitness
		}
	}
	if worstIdx < 0 {
		return
	}

	parents := TopDiversificationParents(pop, 2)
	if len(parents) == 0 {
		return
	}
	parent := parents[rng.Intn(len(parents))]
	logger.Infof("culling species %d (median %.4f, stagnant %d gens), diversifying from median %.4f",
		worstIdx, worstMedian, pop.Species[worstIdx].GensSinceImprovement, parent.MedianFitness)
	pop.Species[worstIdx] = DiversifySpecies(parent, cfg.IndividualsPerSpecies, cfg, rng)
}

// regenerateSpecies replaces sp's individual pool with elites plus
// tournament-selected, mutated offspring (spec.md §4.10), then applies one
// species-level topology mutation pass and weak-edge pruning (spec.md
// §4.7-§4.9). Topology edits operate once per species per generation, not
// per individual — see MutateTopology's doc comment for why.
func regenerateSpecies(sp *Species, cfg Config, rng *rand.Rand) {
	n := len(sp.Individuals)
	if n == 0 {
		return
	}
	elites := Elites(sp.Individuals, cfg.Elites)
	pool := ParentPool(sp.Individuals, cfg.ParentPoolPercentage)

	next := make([]*neural.Individual, 0, n)
	next = append(next, elites...)
	for len(next) < n {
		parent := Tournament(pool, cfg.TournamentSize, rng)
		child := parent.Clone()
		child.Age = 0
		child.Fitness = 0
		MutateWeights(child, sp.Topology, cfg.MutationRates, rng)
		next = append(next, child)
	}
	sp.Individuals = next

	// elites sit at next[:len(elites)]; MutateTopology/PruneWeakEdges treat
	// that prefix as protected so the fitness rank-1..rank-E individuals
	// carried over this generation are never resampled or disconnected by
	// the structural edit that keeps the rest of the species' arrays in
	// sync with sp.Topology (spec.md §8's elite-preservation invariant).
	MutateTopology(sp.Topology, sp.Individuals, len(elites), cfg.TopologyRates, sp.Topology.MaxInDegree, rng)

	if cfg.WeakEdgePruning.Enabled && cfg.WeakEdgePruning.DuringEvolution {
		PruneWeakEdges(sp.Topology, sp.Individuals, len(elites), cfg.WeakEdgePruning, rng)
	}

	for _, ind := range sp.Individuals {
		ind.Age++
	}
}
