// Package evolve implements the multi-species generational algorithm:
// tournament selection, elitism, stagnation-driven culling, topology
// diversification, weight/topology mutation, and weak-edge pruning
// (spec.md §4.7-§4.13).
package evolve

import "github.com/evolvatron/evolvatron/evolerr"

// MutationRates holds the per-operator probabilities for spec.md §4.7's
// weight- and activation-level mutations.
type MutationRates struct {
	WeightJitter   float32
	JitterStddev   float32
	WeightReset    float32
	WeightShrink   float32
	ShrinkFactor   float32
	ActivationSwap float32
	NodeParams     float32
	ParamsStddev   float32
}

// TopologyRates holds the per-operator probabilities for spec.md §4.7's
// topology-edit mutations.
type TopologyRates struct {
	EdgeAdd       float32
	EdgeDelete    float32
	EdgeSplit     float32
	EdgeRedirect  float32
	EdgeDuplicate float32
	EdgeMerge     float32
	EdgeSwap      float32
}

// PruningConfig holds spec.md §4.9's weak-edge pruning parameters.
type PruningConfig struct {
	Enabled       bool
	Threshold     float32
	BaseRate      float32
	AtSpeciesBirth bool
	DuringEvolution bool
}

// Config is the evolutionary-loop configuration named in spec.md §6.
type Config struct {
	SpeciesCount         int
	IndividualsPerSpecies int
	MinSpeciesCount      int
	Elites               int
	TournamentSize       int
	ParentPoolPercentage float32

	GraceGenerations            int
	StagnationThreshold         int
	SpeciesDiversityThreshold   float32
	RelativePerformanceThreshold float32

	MutationRates MutationRates
	TopologyRates TopologyRates
	WeakEdgePruning PruningConfig

	MaxInDegree int
	MinHiddenRowSize int
	MaxHiddenRowSize int
}

// DefaultConfig returns conservative evolutionary defaults.
func DefaultConfig() Config {
	return Config{
		SpeciesCount:          8,
		IndividualsPerSpecies: 32,
		MinSpeciesCount:       2,
		Elites:                2,
		TournamentSize:        3,
		ParentPoolPercentage:  0.4,

		GraceGenerations:              5,
		StagnationThreshold:           15,
		SpeciesDiversityThreshold:     1e-4,
		RelativePerformanceThreshold:  0.5,

		MutationRates: MutationRates{
			WeightJitter: 0.1, JitterStddev: 0.2,
			WeightReset: 0.02, WeightShrink: 0.01, ShrinkFactor: 0.9,
			ActivationSwap: 0.01, NodeParams: 0.05, ParamsStddev: 0.1,
		},
		TopologyRates: TopologyRates{
			EdgeAdd: 0.03, EdgeDelete: 0.02, EdgeSplit: 0.01,
			EdgeRedirect: 0.01, EdgeDuplicate: 0.01, EdgeMerge: 0.005, EdgeSwap: 0.01,
		},
		WeakEdgePruning: PruningConfig{
			Enabled: true, Threshold: 0.05, BaseRate: 0.1,
			AtSpeciesBirth: true, DuringEvolution: true,
		},

		MaxInDegree:      8,
		MinHiddenRowSize: 1,
		MaxHiddenRowSize: 64,
	}
}

// Validate rejects an incoherent configuration, per spec.md §7.
func (c Config) Validate() error {
	switch {
	case c.SpeciesCount <= 0:
		return evolerr.New(evolerr.IncoherentConfig, "species_count must be positive")
	case c.IndividualsPerSpecies <= 0:
		return evolerr.New(evolerr.IncoherentConfig, "individuals_per_species must be positive")
	case c.MinSpeciesCount <= 0 || c.MinSpeciesCount > c.SpeciesCount:
		return evolerr.New(evolerr.IncoherentConfig, "min_species_count must be in (0, species_count]")
	case c.Elites < 0 || c.Elites > c.IndividualsPerSpecies:
		return evolerr.New(evolerr.IncoherentConfig, "elites must be in [0, individuals_per_species]")
	case c.TournamentSize <= 0:
		return evolerr.New(evolerr.IncoherentConfig, "tournament_size must be positive")
	case c.ParentPoolPercentage <= 0 || c.ParentPoolPercentage > 1:
		return evolerr.New(evolerr.IncoherentConfig, "parent_pool_percentage must be in (0, 1]")
	case c.GraceGenerations < 0:
		return evolerr.New(evolerr.IncoherentConfig, "grace_generations must be non-negative")
	case c.StagnationThreshold < 0:
		return evolerr.New(evolerr.IncoherentConfig, "stagnation_threshold must be non-negative")
	case c.MaxInDegree <= 0:
		return evolerr.New(evolerr.IncoherentConfig, "max_in_degree must be positive")
	case c.MinHiddenRowSize <= 0 || c.MaxHiddenRowSize < c.MinHiddenRowSize:
		return evolerr.New(evolerr.IncoherentConfig, "hidden row size bounds must satisfy 0 < min <= max")
	}
	return nil
}
