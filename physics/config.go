package physics

import "github.com/evolvatron/evolvatron/evolerr"

// Config holds the physics tunables from spec.md §6's single config
// struct. Per-constraint compliance fields fall back to this Config's
// corresponding *Compliance field when zero (spec.md's "per-constraint if
// non-zero, else global" rule).
type Config struct {
	Dt             float32
	Substeps       int
	XpbdIterations int

	GravityX, GravityY float32

	ContactCompliance float32
	RodCompliance     float32
	AngleCompliance   float32
	MotorCompliance   float32

	FrictionMu float32
	Restitution float32

	VelocityStabilizationBeta float32
	GlobalDamping             float32
	AngularDamping            float32
	MaxVelocity               float32
}

// DefaultConfig returns the physics defaults used throughout spec.md's
// worked scenarios (dt = 1/240, single substep iteration counts tuned for
// the resting-contact test cases in §8).
func DefaultConfig() Config {
	return Config{
		Dt:             1.0 / 240.0,
		Substeps:       4,
		XpbdIterations: 8,

		GravityX: 0,
		GravityY: -9.81,

		ContactCompliance: 0,
		RodCompliance:     0,
		AngleCompliance:   0,
		MotorCompliance:   1e-6,

		FrictionMu:  0.5,
		Restitution: 0,

		VelocityStabilizationBeta: 0.2,
		GlobalDamping:             0.01,
		AngularDamping:            0.01,
		MaxVelocity:               50,
	}
}

// Validate rejects a non-positive dt/iteration count or a negative
// damping/friction/restitution value, surfaced as evolerr.IncoherentConfig
// (spec.md §7).
func (c Config) Validate() error {
	switch {
	case c.Dt <= 0:
		return evolerr.New(evolerr.IncoherentConfig, "dt must be positive")
	case c.Substeps <= 0:
		return evolerr.New(evolerr.IncoherentConfig, "substeps must be positive")
	case c.XpbdIterations <= 0:
		return evolerr.New(evolerr.IncoherentConfig, "xpbd_iterations must be positive")
	case c.FrictionMu < 0:
		return evolerr.New(evolerr.IncoherentConfig, "friction_mu must be non-negative")
	case c.Restitution < 0 || c.Restitution > 1:
		return evolerr.New(evolerr.IncoherentConfig, "restitution must be in [0, 1]")
	case c.GlobalDamping < 0 || c.AngularDamping < 0:
		return evolerr.New(evolerr.IncoherentConfig, "damping must be non-negative")
	case c.MaxVelocity <= 0:
		return evolerr.New(evolerr.IncoherentConfig, "max_velocity must be positive")
	case c.VelocityStabilizationBeta < 0 || c.VelocityStabilizationBeta > 1:
		return evolerr.New(evolerr.IncoherentConfig, "velocity_stabilization_beta must be in [0, 1]")
	}
	return nil
}

// substepDt is the fixed per-substep timestep, dt / substeps.
func (c Config) substepDt() float32 {
	return c.Dt / float32(c.Substeps)
}

func orGlobal(perConstraint, global float32) float32 {
	if perConstraint != 0 {
		return perConstraint
	}
	return global
}
