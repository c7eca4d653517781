package environment

import "math/rand"

// Sample is one input/target pair in a DatasetEnvironment.
type Sample struct {
	Inputs  []float32
	Targets []float32
}

// DatasetEnvironment turns a fixed supervised dataset (e.g. XOR's four
// input/target pairs, spec.md §8's XOR-evolution scenario) into an
// Environment: one episode presents every sample once, in a seed-shuffled
// order, and FinalFitness is the negated total squared error so higher
// fitness means a better fit.
type DatasetEnvironment struct {
	samples []Sample
	order   []int
	idx     int
	total   float32
}

// NewDatasetEnvironmentFactory returns a Factory producing a fresh
// DatasetEnvironment over samples for every rollout.
func NewDatasetEnvironmentFactory(samples []Sample) Factory {
	return func() Environment {
		return &DatasetEnvironment{samples: samples}
	}
}

func (d *DatasetEnvironment) InputCount() int  { return len(d.samples[0].Inputs) }
func (d *DatasetEnvironment) OutputCount() int { return len(d.samples[0].Targets) }
func (d *DatasetEnvironment) MaxSteps() int    { return len(d.samples) }

func (d *DatasetEnvironment) Reset(seed uint64) {
	rng := rand.New(rand.NewSource(int64(seed)))
	d.order = rng.Perm(len(d.samples))
	d.idx = 0
	d.total = 0
}

func (d *DatasetEnvironment) GetObservations(buf []float32) {
	copy(buf, d.samples[d.order[d.idx]].Inputs)
}

func (d *DatasetEnvironment) Step(actions []float32) float32 {
	targets := d.samples[d.order[d.idx]].Targets
	var sqErr float32
	for i, a := range actions {
		diff := a - targets[i]
		sqErr += diff * diff
	}
	d.total += sqErr
	d.idx++
	return -sqErr
}

func (d *DatasetEnvironment) IsTerminal() bool { return d.idx >= len(d.samples) }

func (d *DatasetEnvironment) FinalFitness() float32 { return -d.total }
