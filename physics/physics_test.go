package physics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evolvatron/evolvatron/vecmath"
)

// TestFallingParticleRestsOnOBBGround covers spec.md §8's falling-particle
// scenario: a single free particle drops onto a flat OBB "ground" box and
// comes to rest above it rather than penetrating.
func TestFallingParticleRestsOnOBBGround(t *testing.T) {
	cfg := DefaultConfig()
	stepper, err := NewStepper(cfg)
	if err != nil {
		t.Fatalf("NewStepper: %v", err)
	}

	w := NewWorld()
	groundHalfY := float32(0.5)
	w.AddOBBCollider(vecmath.OBB{
		Center: vecmath.Vec2{0, 0},
		XAxis:  vecmath.Vec2{1, 0},
		HalfX:  10,
		HalfY:  groundHalfY,
	})

	radius := float32(0.25)
	pi := w.AddParticle(vecmath.Vec2{0, 5}, 1.0, radius)

	for i := 0; i < 2000; i++ {
		stepper.Step(w)
	}

	restY := w.Particles.Pos(pi)[1]
	expected := groundHalfY + radius
	if restY < expected-0.05 {
		t.Errorf("particle penetrated ground: y = %f, want >= %f", restY, expected-0.05)
	}
	if restY > expected+0.5 {
		t.Errorf("particle did not settle near ground: y = %f, want near %f", restY, expected)
	}

	vy := w.Particles.Vel(pi)[1]
	if vy < -0.5 || vy > 0.5 {
		t.Errorf("particle should be near rest, vy = %f", vy)
	}
}

// TestRigidBodyRestsOnOBBGround covers spec.md §8's rigid-body scenario: a
// single dynamic body with one circular geom drops onto a flat OBB
// "ground" box and comes to rest above it, driving buildContacts/
// warmStartContacts/solveContactsVelocity through Stepper.Step end-to-end.
func TestRigidBodyRestsOnOBBGround(t *testing.T) {
	cfg := DefaultConfig()
	stepper, err := NewStepper(cfg)
	if err != nil {
		t.Fatalf("NewStepper: %v", err)
	}

	w := NewWorld()
	groundHalfY := float32(0.5)
	w.AddOBBCollider(vecmath.OBB{
		Center: vecmath.Vec2{0, 0},
		XAxis:  vecmath.Vec2{1, 0},
		HalfX:  10,
		HalfY:  groundHalfY,
	})

	geomRadius := float32(0.3)
	bi := w.AddRigidBody(vecmath.Vec2{0, 5}, 0, 1.0, 1.0)
	if _, err := w.AddGeom(bi, vecmath.Vec2{0, 0}, geomRadius); err != nil {
		t.Fatalf("AddGeom: %v", err)
	}

	for i := 0; i < 2000; i++ {
		stepper.Step(w)
	}

	body := &w.Bodies[bi]
	restY := body.Y
	expected := groundHalfY + geomRadius
	if restY < expected-0.05 {
		t.Errorf("body penetrated ground: y = %f, want >= %f", restY, expected-0.05)
	}
	if restY > expected+0.5 {
		t.Errorf("body did not settle near ground: y = %f, want near %f", restY, expected)
	}
	if body.VelY < -0.5 || body.VelY > 0.5 {
		t.Errorf("body should be near rest, vy = %f", body.VelY)
	}
}

// TestRevoluteJointHoldsAnchorsTogether covers spec.md §8's joint scenario:
// two bodies connected by a revolute joint should keep their world-space
// anchor points coincident under gravity, driving initJoint/
// solveJointVelocity/solveJointPosition end-to-end.
func TestRevoluteJointHoldsAnchorsTogether(t *testing.T) {
	cfg := DefaultConfig()
	stepper, err := NewStepper(cfg)
	if err != nil {
		t.Fatalf("NewStepper: %v", err)
	}

	w := NewWorld()
	anchorBody := w.AddRigidBody(vecmath.Vec2{0, 0}, 0, 0, 0) // static
	swingBody := w.AddRigidBody(vecmath.Vec2{1, 0}, 0, 1.0, 1.0)
	if _, err := w.AddGeom(anchorBody, vecmath.Vec2{0, 0}, 0.1); err != nil {
		t.Fatalf("AddGeom: %v", err)
	}
	if _, err := w.AddGeom(swingBody, vecmath.Vec2{0, 0}, 0.1); err != nil {
		t.Fatalf("AddGeom: %v", err)
	}

	_, err = w.AddRevoluteJoint(RevoluteJoint{
		BodyA:        anchorBody,
		BodyB:        swingBody,
		LocalAnchorA: vecmath.Vec2{0, 0},
		LocalAnchorB: vecmath.Vec2{-1, 0},
	})
	if err != nil {
		t.Fatalf("AddRevoluteJoint: %v", err)
	}

	for i := 0; i < 2000; i++ {
		stepper.Step(w)
	}

	a := &w.Bodies[anchorBody]
	b := &w.Bodies[swingBody]
	ra := vecmath.Rotate(vecmath.Vec2{0, 0}, a.Angle)
	rb := vecmath.Rotate(vecmath.Vec2{-1, 0}, b.Angle)
	anchorA := vecmath.Vec2{a.X, a.Y}.Add(ra)
	anchorB := vecmath.Vec2{b.X, b.Y}.Add(rb)
	gap := anchorB.Sub(anchorA).Len()
	if gap > 0.05 {
		t.Errorf("joint anchors drifted apart: gap = %f", gap)
	}
}

// TestLShapeHoldsRightAngle covers spec.md §8's L-shape scenario: two rods
// joined by a 90-degree angle constraint under gravity should settle back
// near its rest angle rather than folding flat.
func TestLShapeHoldsRightAngle(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AngleCompliance = 0
	stepper, err := NewStepper(cfg)
	if err != nil {
		t.Fatalf("NewStepper: %v", err)
	}

	w := NewWorld()
	// Fixed anchor, then two free particles forming an L: anchor -> mid -> tip.
	anchor := w.AddParticle(vecmath.Vec2{0, 0}, 0, 0.1)
	mid := w.AddParticle(vecmath.Vec2{1, 0}, 1.0, 0.1)
	tip := w.AddParticle(vecmath.Vec2{1, 1}, 1.0, 0.1)

	if _, err := w.AddRod(anchor, mid, 1.0, 0); err != nil {
		t.Fatalf("AddRod: %v", err)
	}
	if _, err := w.AddRod(mid, tip, 1.0, 0); err != nil {
		t.Fatalf("AddRod: %v", err)
	}
	const rightAngle = float32(1.5707963267948966) // pi/2
	if _, err := w.AddAngle(anchor, mid, tip, rightAngle, 0); err != nil {
		t.Fatalf("AddAngle: %v", err)
	}

	for i := 0; i < 2000; i++ {
		stepper.Step(w)
	}

	a := w.Particles.Pos(anchor)
	m := w.Particles.Pos(mid)
	tp := w.Particles.Pos(tip)

	u := a.Sub(m)
	v := tp.Sub(m)
	angle := vecmath.SignedAngle(u, v)
	got := angle
	if got < 0 {
		got = -got
	}
	if diff := got - rightAngle; diff > 0.1 || diff < -0.1 {
		t.Errorf("L-shape angle drifted from pi/2: got %f", got)
	}
}

// TestDeterministicReplay covers spec.md §5's determinism contract: two
// worlds built and stepped identically from the same inputs must end up
// bit-identical.
func TestDeterministicReplay(t *testing.T) {
	build := func() (*World, *Stepper) {
		cfg := DefaultConfig()
		stepper, err := NewStepper(cfg)
		if err != nil {
			t.Fatalf("NewStepper: %v", err)
		}
		w := NewWorld()
		w.AddOBBCollider(vecmath.OBB{Center: vecmath.Vec2{0, 0}, XAxis: vecmath.Vec2{1, 0}, HalfX: 10, HalfY: 0.5})
		w.AddParticle(vecmath.Vec2{0.3, 4}, 1.0, 0.2)
		w.AddParticle(vecmath.Vec2{-0.7, 6}, 1.0, 0.3)
		return w, stepper
	}

	w1, s1 := build()
	w2, s2 := build()

	for i := 0; i < 500; i++ {
		s1.Step(w1)
		s2.Step(w2)
	}

	for i := 0; i < w1.Particles.Len(); i++ {
		if w1.Particles.PosX[i] != w2.Particles.PosX[i] || w1.Particles.PosY[i] != w2.Particles.PosY[i] {
			t.Fatalf("particle %d diverged: (%f,%f) vs (%f,%f)", i,
				w1.Particles.PosX[i], w1.Particles.PosY[i], w2.Particles.PosX[i], w2.Particles.PosY[i])
		}
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate(), "default config should validate")

	bad := cfg
	bad.Dt = 0
	assert.Error(t, bad.Validate(), "expected error for zero dt")

	bad = cfg
	bad.Restitution = 1.5
	assert.Error(t, bad.Validate(), "expected error for out-of-range restitution")
}

func TestAddRodRejectsInvalidIndex(t *testing.T) {
	w := NewWorld()
	w.AddParticle(vecmath.Vec2{0, 0}, 1, 0.1)
	_, err := w.AddRod(0, 5, 1.0, 0)
	assert.Error(t, err, "expected error for out-of-range particle index")
}
