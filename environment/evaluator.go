package environment

import (
	"context"
	"runtime"
	"sort"

	channerics "github.com/niceyeti/channerics/channels"
	"golang.org/x/sync/errgroup"

	"github.com/evolvatron/evolvatron/neural"
)

// Aggregate reduces a rollout's K fitness samples to one scalar.
type Aggregate func(samples []float32) float32

// CVaR50 is the mean of the worst half of samples, per spec.md §4.14's
// "CVaR@50%" robustness aggregation: rewarding controllers whose worst-case
// rollouts are merely mediocre, not catastrophic, over ones that only do
// well on easy seeds.
func CVaR50(samples []float32) float32 {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]float32(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	k := (len(sorted) + 1) / 2
	var sum float32
	for i := 0; i < k; i++ {
		sum += sorted[i]
	}
	return sum / float32(k)
}

// Mean is the trivial aggregator spec.md §4.14 also permits.
func Mean(samples []float32) float32 {
	if len(samples) == 0 {
		return 0
	}
	var sum float32
	for _, s := range samples {
		sum += s
	}
	return sum / float32(len(samples))
}

// Evaluator drives K deterministic rollouts per individual against a shared
// Topology and aggregates them into a fitness score, per spec.md §4.14.
type Evaluator struct {
	Topology  *neural.Topology
	Factory   Factory
	Rollouts  int
	Penalty   float32
	Aggregate Aggregate
}

// NewEvaluator returns an Evaluator with CVaR50 aggregation by default.
func NewEvaluator(t *neural.Topology, factory Factory, rollouts int, penalty float32) *Evaluator {
	return &Evaluator{
		Topology:  t,
		Factory:   factory,
		Rollouts:  rollouts,
		Penalty:   penalty,
		Aggregate: CVaR50,
	}
}

// EvaluateIndividual runs Rollouts independent episodes for ind, fans their
// fitness samples in over one merged channel (mirroring the
// niceyeti-tabular reinforcement learner's episode fan-in), aggregates them,
// and assigns the result to ind.Fitness.
func (e *Evaluator) EvaluateIndividual(ind *neural.Individual, speciesID, individualID, generation uint32) float32 {
	done := make(chan struct{})
	defer close(done)

	workers := make([]<-chan float32, e.Rollouts)
	for r := 0; r < e.Rollouts; r++ {
		workers[r] = e.rolloutWorker(done, ind, speciesID, individualID, generation, uint32(r))
	}
	merged := channerics.Merge(done, workers...)

	samples := make([]float32, 0, e.Rollouts)
	for f := range merged {
		samples = append(samples, f)
	}
	fitness := e.Aggregate(samples)
	ind.Fitness = fitness
	return fitness
}

func (e *Evaluator) rolloutWorker(done <-chan struct{}, ind *neural.Individual, speciesID, individualID, generation, rollout uint32) <-chan float32 {
	out := make(chan float32, 1)
	go func() {
		defer close(out)
		env := e.Factory()
		forward := neural.NewEvaluator(e.Topology)
		seed := deriveSeed(speciesID, individualID, generation, rollout)
		fitness := runRollout(env, forward, ind, seed, e.Penalty)
		select {
		case out <- fitness:
		case <-done:
		}
	}()
	return out
}

// EvaluateAll scores every individual concurrently, bounded to GOMAXPROCS
// in flight at once via errgroup, per spec.md §5's "data-parallel across a
// task pool" concurrency model. speciesID and generation key every
// individual's rollout seeds alongside its slot index.
func (e *Evaluator) EvaluateAll(ctx context.Context, speciesID, generation uint32, individuals []*neural.Individual) error {
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, ind := range individuals {
		i, ind := i, ind
		g.Go(func() error {
			e.EvaluateIndividual(ind, speciesID, uint32(i), generation)
			return nil
		})
	}
	return g.Wait()
}

// runRollout drives one reset -> {observe, forward, step} loop until
// terminal or max_steps, per spec.md §4.14, aborting to penalty on any NaN
// in observations or actions (§4.17).
func runRollout(env Environment, forward *neural.Evaluator, ind *neural.Individual, seed uint64, penalty float32) float32 {
	env.Reset(seed)
	obs := make([]float32, env.InputCount())
	maxSteps := env.MaxSteps()
	for step := 0; step < maxSteps && !env.IsTerminal(); step++ {
		env.GetObservations(obs)
		if AnyNaN(obs) {
			return penalty
		}
		actions, err := forward.Forward(ind, obs)
		if err != nil || AnyNaN(actions) {
			return penalty
		}
		env.Step(actions)
	}
	fitness := env.FinalFitness()
	if AnyNaN([]float32{fitness}) {
		return penalty
	}
	return fitness
}
