package physics

// Stepper orchestrates the fixed-timestep substep sequence described in
// spec.md §4.1. Config is validated once at construction so Step itself
// never needs to report a config error.
type Stepper struct {
	cfg Config
}

// NewStepper validates cfg and returns a Stepper that runs it.
func NewStepper(cfg Config) (*Stepper, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Stepper{cfg: cfg}, nil
}

// Config returns the stepper's physics configuration.
func (s *Stepper) Config() Config { return s.cfg }

// Step advances world by one full step (config.Substeps substeps of
// config.Dt/Substeps each). The stepper is infallible given a world built
// with valid indices; it does not scrub NaNs — divergence detection is an
// environment-level concern (spec.md §4.1, §4.17).
func (s *Stepper) Step(w *World) {
	cfg := s.cfg
	dt := cfg.substepDt()

	if w.numColliders() > 0 {
		w.buildBroadphase()
	}

	for sub := 0; sub < cfg.Substeps; sub++ {
		s.substep(w, dt)
	}
}

func (s *Stepper) substep(w *World, dt float32) {
	cfg := s.cfg

	applyGravity(w, dt, cfg)
	snapshotPrev(w)
	integratePositions(w, dt)
	refreshGeoms(w)

	resetLambdas(w)
	for k := range w.particleContactLambdas {
		delete(w.particleContactLambdas, k)
	}

	for it := 0; it < cfg.XpbdIterations; it++ {
		solveRods(w, dt, cfg)
		solveAngles(w, dt, cfg)
		solveMotors(w, dt, cfg)
		solveParticleContacts(w, dt, cfg, w.particleContactLambdas)
	}

	buildContacts(w, dt, cfg)
	warmStartContacts(w)
	for i := range w.Joints {
		initJoint(w, &w.Joints[i])
	}
	for it := 0; it < cfg.XpbdIterations; it++ {
		solveContactsVelocity(w, it == 0)
		for i := range w.Joints {
			solveJointVelocity(w, &w.Joints[i], dt)
		}
	}
	for i := range w.Joints {
		solveJointPosition(w, &w.Joints[i])
	}

	stabilizeVelocities(w, dt, cfg)
	particleFriction(w, cfg)
	dampVelocities(w, dt, cfg)
	storeContactImpulses(w)
}
