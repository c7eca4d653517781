package evolve

import (
	"sort"

	"github.com/evolvatron/evolvatron/neural"
)

// fitnessHistoryLen is the rolling fitness ring-buffer length, per spec.md §3.
const fitnessHistoryLen = 10

// Species is a topology shared by a population of individuals, plus the
// rolling statistics the culler and diversification use (spec.md §3).
type Species struct {
	Topology    *neural.Topology
	Individuals []*neural.Individual

	Age                  int
	BestEver             float32
	GensSinceImprovement int

	fitnessHistory [fitnessHistoryLen]float32
	histCount      int
	histPos        int

	MedianFitness   float32
	FitnessVariance float32
}

// NewSpecies wraps a topology and its initial individuals into a Species
// with fresh (zeroed) statistics.
func NewSpecies(t *neural.Topology, individuals []*neural.Individual) *Species {
	return &Species{Topology: t, Individuals: individuals}
}

// pushFitnessSample records one generation's median fitness into the
// rolling ring, overwriting the oldest entry once full.
func (s *Species) pushFitnessSample(median float32) {
	s.fitnessHistory[s.histPos] = median
	s.histPos = (s.histPos + 1) % fitnessHistoryLen
	if s.histCount < fitnessHistoryLen {
		s.histCount++
	}
}

// UpdateStats recomputes median/variance from current individual fitnesses,
// pushes the median into the rolling history, and updates best_ever /
// gens_since_improvement, per spec.md §4.11.
func (s *Species) UpdateStats() {
	n := len(s.Individuals)
	if n == 0 {
		return
	}
	fitnesses := make([]float32, n)
	for i, ind := range s.Individuals {
		fitnesses[i] = ind.Fitness
	}
	sort.Slice(fitnesses, func(i, j int) bool { return fitnesses[i] < fitnesses[j] })
	median := fitnesses[n/2]
	if n%2 == 0 {
		median = (fitnesses[n/2-1] + fitnesses[n/2]) / 2
	}
	s.MedianFitness = median
	s.pushFitnessSample(median)

	var mean float32
	for i := 0; i < s.histCount; i++ {
		mean += s.fitnessHistory[i]
	}
	mean /= float32(s.histCount)
	var variance float32
	for i := 0; i < s.histCount; i++ {
		d := s.fitnessHistory[i] - mean
		variance += d * d
	}
	if s.histCount > 0 {
		variance /= float32(s.histCount)
	}
	s.FitnessVariance = variance

	best := fitnesses[n-1]
	if s.histCount == 1 || best > s.BestEver {
		s.BestEver = best
		s.GensSinceImprovement = 0
	} else {
		s.GensSinceImprovement++
	}
}

// EligibleForCulling reports whether s meets every one of spec.md §4.11's
// four culling-eligibility gates against the population's best species
// median.
func (s *Species) EligibleForCulling(cfg Config, bestSpeciesMedian float32) bool {
	return s.Age > cfg.GraceGenerations &&
		s.GensSinceImprovement >= cfg.StagnationThreshold &&
		s.MedianFitness < cfg.RelativePerformanceThreshold*bestSpeciesMedian &&
		s.FitnessVariance < cfg.SpeciesDiversityThreshold
}

// Population is the top-level evolutionary state: the list of species and
// the global generation counter (spec.md §3).
type Population struct {
	Species    []*Species
	Generation int
}

// NewPopulation wraps an initial species list into a Population at
// generation 0.
func NewPopulation(species []*Species) *Population {
	return &Population{Species: species}
}

// BestSpeciesMedian returns the maximum MedianFitness across all species.
func (p *Population) BestSpeciesMedian() float32 {
	best := float32(0)
	first := true
	for _, s := range p.Species {
		if first || s.MedianFitness > best {
			best = s.MedianFitness
			first = false
		}
	}
	return best
}

// Snapshot returns a read-only summary of current population state —
// generation, per-species age/best/median/variance — for test and
// diagnostic callers that should not hold onto internal slices.
type Snapshot struct {
	Generation int
	Species    []SpeciesSnapshot
}

// SpeciesSnapshot is one species' stats at snapshot time.
type SpeciesSnapshot struct {
	Age                  int
	BestEver             float32
	MedianFitness        float32
	FitnessVariance      float32
	GensSinceImprovement int
	IndividualCount      int
}

// Snapshot captures p's current stats without exposing mutable internals.
func (p *Population) Snapshot() Snapshot {
	snap := Snapshot{Generation: p.Generation, Species: make([]SpeciesSnapshot, len(p.Species))}
	for i, s := range p.Species {
		snap.Species[i] = SpeciesSnapshot{
			Age: s.Age, BestEver: s.BestEver, MedianFitness: s.MedianFitness,
			FitnessVariance: s.FitnessVariance, GensSinceImprovement: s.GensSinceImprovement,
			IndividualCount: len(s.Individuals),
		}
	}
	return snap
}
