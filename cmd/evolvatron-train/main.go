// Command evolvatron-train runs the multi-species evolutionary loop
// (spec.md §4.10-§4.13) against the XOR DatasetEnvironment worked scenario
// from spec.md §8, printing each generation's best species median fitness.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"

	"github.com/evolvatron/evolvatron/environment"
	"github.com/evolvatron/evolvatron/evolog"
	"github.com/evolvatron/evolvatron/evolve"
	"github.com/evolvatron/evolvatron/neural"
)

func main() {
	generations := flag.Int("generations", 100, "number of generations to run")
	seed := flag.Int64("seed", 42, "master RNG seed")
	debug := flag.Bool("debug", false, "enable debug-level logging")
	rollouts := flag.Int("rollouts", 1, "rollouts per individual per generation")
	flag.Parse()

	logger := evolog.New("train", *debug)

	if err := run(*generations, *seed, *rollouts, logger); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}

func run(generations int, seed int64, rollouts int, logger *evolog.Default) error {
	rng := rand.New(rand.NewSource(seed))

	cfg := evolve.DefaultConfig()
	topo, err := initialXORTopology()
	if err != nil {
		return fmt.Errorf("building initial topology: %w", err)
	}

	species := make([]*evolve.Species, cfg.SpeciesCount)
	for i := range species {
		individuals := make([]*neural.Individual, cfg.IndividualsPerSpecies)
		for j := range individuals {
			individuals[j] = neural.NewIndividual(topo, rng)
		}
		species[i] = evolve.NewSpecies(topo, individuals)
	}
	pop := evolve.NewPopulation(species)

	factory := environment.NewDatasetEnvironmentFactory(xorSamples())

	for gen := 0; gen < generations; gen++ {
		for speciesIdx, sp := range pop.Species {
			eval := environment.NewEvaluator(sp.Topology, factory, rollouts, -1000)
			if err := eval.EvaluateAll(context.Background(), uint32(speciesIdx), uint32(pop.Generation), sp.Individuals); err != nil {
				return fmt.Errorf("generation %d species %d: %w", gen, speciesIdx, err)
			}
		}
		best := pop.BestSpeciesMedian()
		logger.Infof("generation %d: best species median fitness %.6f", pop.Generation, best)

		evolve.StepGeneration(pop, cfg, rng, logger)
	}
	return nil
}

// initialXORTopology is a small, fully-wired 2-input, 4-hidden, 1-output
// topology, matching the shape spec.md §8's XOR scenario describes.
func initialXORTopology() (*neural.Topology, error) {
	b := neural.NewBuilder(4)
	b.AddRow(2, neural.AllMask)
	b.AddRow(4, neural.AllMask)
	b.AddRow(1, neural.OutputMask)
	for in := 1; in <= 2; in++ {
		for h := 3; h <= 6; h++ {
			b.AddEdge(in, h)
		}
	}
	b.AddEdge(0, 7)
	for h := 3; h <= 6; h++ {
		b.AddEdge(h, 7)
	}
	return b.Build()
}

func xorSamples() []environment.Sample {
	return []environment.Sample{
		{Inputs: []float32{0, 0}, Targets: []float32{0}},
		{Inputs: []float32{0, 1}, Targets: []float32{1}},
		{Inputs: []float32{1, 0}, Targets: []float32{1}},
		{Inputs: []float32{1, 1}, Targets: []float32{0}},
	}
}
