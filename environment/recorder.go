package environment

// Recorder wraps an Environment and records every step's observations and
// actions, so tests can assert against the real rollout loop instead of a
// bespoke fake per test (SPEC_FULL.md's supplemented test-scaffold feature).
type Recorder struct {
	inner Environment

	Observations [][]float32
	Actions      [][]float32
	Rewards      []float32
}

// NewRecorder wraps inner. Recorder satisfies Environment itself, so it can
// be handed directly to Evaluator or driven by hand in a test.
func NewRecorder(inner Environment) *Recorder {
	return &Recorder{inner: inner}
}

func (r *Recorder) InputCount() int  { return r.inner.InputCount() }
func (r *Recorder) OutputCount() int { return r.inner.OutputCount() }
func (r *Recorder) MaxSteps() int    { return r.inner.MaxSteps() }

func (r *Recorder) Reset(seed uint64) {
	r.inner.Reset(seed)
	r.Observations = r.Observations[:0]
	r.Actions = r.Actions[:0]
	r.Rewards = r.Rewards[:0]
}

func (r *Recorder) GetObservations(buf []float32) {
	r.inner.GetObservations(buf)
	r.Observations = append(r.Observations, append([]float32(nil), buf...))
}

func (r *Recorder) Step(actions []float32) float32 {
	r.Actions = append(r.Actions, append([]float32(nil), actions...))
	reward := r.inner.Step(actions)
	r.Rewards = append(r.Rewards, reward)
	return reward
}

func (r *Recorder) IsTerminal() bool      { return r.inner.IsTerminal() }
func (r *Recorder) FinalFitness() float32 { return r.inner.FinalFitness() }
