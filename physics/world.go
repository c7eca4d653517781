// Package physics implements the fixed-timestep XPBD particle solver and
// sequential-impulse rigid-body solver described in spec.md §3-§4. World
// state is a set of owning slices (structure-of-arrays for particles, plain
// slices of small value structs elsewhere) handed out as contiguous views —
// never a pointer-per-particle record in the hot loops — per spec.md §9's
// "Source patterns requiring re-architecture" guidance.
package physics

import (
	"github.com/evolvatron/evolvatron/evolerr"
	"github.com/evolvatron/evolvatron/vecmath"
)

// Particles is the structure-of-arrays store for all particles in a World.
// An index, once assigned, is stable for the World's lifetime, since
// particles are never removed.
type Particles struct {
	PosX, PosY         []float32
	VelX, VelY         []float32
	InvMass            []float32
	Radius             []float32
	ForceX, ForceY     []float32
	PrevPosX, PrevPosY []float32
}

// Len returns the number of particles.
func (p *Particles) Len() int { return len(p.PosX) }

func (p *Particles) add(pos vecmath.Vec2, invMass, radius float32) int {
	idx := len(p.PosX)
	p.PosX = append(p.PosX, pos[0])
	p.PosY = append(p.PosY, pos[1])
	p.VelX = append(p.VelX, 0)
	p.VelY = append(p.VelY, 0)
	p.InvMass = append(p.InvMass, invMass)
	p.Radius = append(p.Radius, radius)
	p.ForceX = append(p.ForceX, 0)
	p.ForceY = append(p.ForceY, 0)
	p.PrevPosX = append(p.PrevPosX, pos[0])
	p.PrevPosY = append(p.PrevPosY, pos[1])
	return idx
}

// Pos returns the position of particle i.
func (p *Particles) Pos(i int) vecmath.Vec2 { return vecmath.Vec2{p.PosX[i], p.PosY[i]} }

// Vel returns the velocity of particle i.
func (p *Particles) Vel(i int) vecmath.Vec2 { return vecmath.Vec2{p.VelX[i], p.VelY[i]} }

// Rod is a distance-equality constraint between two particles.
type Rod struct {
	I, J        int
	RestLength  float32
	Compliance  float32
	lambda      float32
}

// Angle is a signed interior-angle constraint at vertex J between edges to I and K.
type Angle struct {
	I, J, K    int
	Theta0     float32
	Compliance float32
	lambda     float32
}

// MotorAngle is a servo-target angle constraint; Target may change every step.
type MotorAngle struct {
	I, J, K    int
	Target     float32
	Compliance float32
	lambda     float32
}

// ColliderKind identifies which static-collider slice a contact refers to.
type ColliderKind int

const (
	ColliderCircle ColliderKind = iota
	ColliderCapsule
	ColliderOBB
)

// Geom is a rigid body's local-space circle collision surface plus its
// cached world-space position (refreshed each substep).
type Geom struct {
	LocalX, LocalY float32
	Radius         float32
	BodyIdx        int

	WorldX, WorldY float32
}

// RigidBody is a 2D rigid body; InvMass == 0 marks it static.
type RigidBody struct {
	X, Y           float32
	Angle          float32
	VelX, VelY     float32
	AngVel         float32
	PrevX, PrevY   float32
	PrevAngle      float32
	InvMass        float32
	InvInertia     float32
	GeomStart      int
	GeomCount      int
}

// Pos returns the body's position.
func (b *RigidBody) Pos() vecmath.Vec2 { return vecmath.Vec2{b.X, b.Y} }

// RevoluteJoint connects two bodies at local anchors, optionally limited
// and/or motorized, per spec.md §3.
type RevoluteJoint struct {
	BodyA, BodyB             int
	LocalAnchorA, LocalAnchorB vecmath.Vec2
	ReferenceAngle           float32
	EnableLimits             bool
	LowerAngle, UpperAngle   float32
	EnableMotor              bool
	MotorSpeed               float32
	MaxMotorTorque           float32

	// Derived per-step solver state (spec.md §3 "derived joint constraint").
	invK00, invK01, invK10, invK11 float32
	limitMass                      float32
	motorMass                      float32
	motorImpulse                   float32
	lowerImpulse                   float32
	upperImpulse                   float32
	anchorImpulse                  vecmath.Vec2
}

// contactKey identifies a warm-startable contact slot, per spec.md §3's
// cached-impulse table keyed by (body, geom, collider kind, collider index).
type contactKey struct {
	BodyIdx      int
	GeomIdx      int
	Kind         ColliderKind
	ColliderIdx  int
}

type cachedImpulse struct {
	Normal, Tangent float32
	seenThisFrame   bool
}

// Contact is one frame's body-vs-static-collider contact, per spec.md §3.
type Contact struct {
	BodyIdx        int
	Normal         vecmath.Vec2
	Tangent        vecmath.Vec2
	ContactPoint   vecmath.Vec2
	RToBody        vecmath.Vec2
	Separation     float32
	NormalMass     float32
	TangentMass    float32
	VelBias        float32
	NormalImpulse  float32
	TangentImpulse float32
	Friction       float32
	Restitution    float32
	GeomIdx        int
	ColliderKind   ColliderKind
	ColliderIdx    int
	Valid          bool

	// vInitialNormal is the normal relative velocity measured when the
	// contact was built, before any impulse this frame; restitution uses it
	// to raise vel_bias on the first velocity iteration (spec.md §4.3).
	vInitialNormal float32
}

// World owns all simulation state for the lifetime of a simulation run;
// callers must not mutate World state concurrently with a Step call
// (spec.md §5). World has no in-place reset method: particles, bodies,
// constraints and colliders are only ever appended.
type World struct {
	Particles Particles
	Rods      []Rod
	Angles    []Angle
	Motors    []MotorAngle

	Bodies []RigidBody
	Geoms  []Geom
	Joints []RevoluteJoint

	Circles  []vecmath.Circle
	Capsules []vecmath.Capsule
	OBBs     []vecmath.OBB

	contactCache map[contactKey]cachedImpulse
	contacts     []Contact // frame scratch, reused across steps

	particleContactLambdas map[particleContactKey]float32

	broadphase      *colliderGrid
	colliderScratch []colliderRef // reused by queryColliders across probes
}

// NewWorld returns an empty World ready to be populated.
func NewWorld() *World {
	return &World{
		contactCache:           make(map[contactKey]cachedImpulse),
		particleContactLambdas: make(map[particleContactKey]float32),
	}
}

// AddParticle appends a particle and returns its stable index.
func (w *World) AddParticle(pos vecmath.Vec2, invMass, radius float32) int {
	return w.Particles.add(pos, invMass, radius)
}

// AddRod appends a rod constraint between particles i and j.
func (w *World) AddRod(i, j int, restLength, compliance float32) (int, error) {
	if !w.validParticle(i) || !w.validParticle(j) {
		return -1, evolerr.New(evolerr.InvalidIndex, "AddRod: particle index out of range")
	}
	w.Rods = append(w.Rods, Rod{I: i, J: j, RestLength: restLength, Compliance: compliance})
	return len(w.Rods) - 1, nil
}

// AddAngle appends an interior-angle constraint at vertex j.
func (w *World) AddAngle(i, j, k int, theta0, compliance float32) (int, error) {
	if !w.validParticle(i) || !w.validParticle(j) || !w.validParticle(k) {
		return -1, evolerr.New(evolerr.InvalidIndex, "AddAngle: particle index out of range")
	}
	w.Angles = append(w.Angles, Angle{I: i, J: j, K: k, Theta0: theta0, Compliance: compliance})
	return len(w.Angles) - 1, nil
}

// AddMotorAngle appends a servo-target angle constraint at vertex j.
func (w *World) AddMotorAngle(i, j, k int, target, compliance float32) (int, error) {
	if !w.validParticle(i) || !w.validParticle(j) || !w.validParticle(k) {
		return -1, evolerr.New(evolerr.InvalidIndex, "AddMotorAngle: particle index out of range")
	}
	w.Motors = append(w.Motors, MotorAngle{I: i, J: j, K: k, Target: target, Compliance: compliance})
	return len(w.Motors) - 1, nil
}

// SetMotorTarget updates a motor's target angle; targets may change every step.
func (w *World) SetMotorTarget(motorIdx int, target float32) error {
	if motorIdx < 0 || motorIdx >= len(w.Motors) {
		return evolerr.New(evolerr.InvalidIndex, "SetMotorTarget: motor index out of range")
	}
	w.Motors[motorIdx].Target = target
	return nil
}

// AddRigidBody appends a rigid body and returns its stable index. invMass ==
// 0 marks the body static.
func (w *World) AddRigidBody(pos vecmath.Vec2, angle, invMass, invInertia float32) int {
	idx := len(w.Bodies)
	w.Bodies = append(w.Bodies, RigidBody{
		X: pos[0], Y: pos[1], Angle: angle,
		PrevX: pos[0], PrevY: pos[1], PrevAngle: angle,
		InvMass: invMass, InvInertia: invInertia,
		GeomStart: len(w.Geoms), GeomCount: 0,
	})
	return idx
}

// AddGeom attaches a local-space circle geom to a body. Geoms for a given
// body must be added contiguously (immediately after the body or after its
// prior geoms) since GeomStart/GeomCount describe a contiguous range.
func (w *World) AddGeom(bodyIdx int, local vecmath.Vec2, radius float32) (int, error) {
	if bodyIdx < 0 || bodyIdx >= len(w.Bodies) {
		return -1, evolerr.New(evolerr.InvalidIndex, "AddGeom: body index out of range")
	}
	b := &w.Bodies[bodyIdx]
	expected := b.GeomStart + b.GeomCount
	if expected != len(w.Geoms) {
		return -1, evolerr.New(evolerr.InvalidIndex, "AddGeom: geoms must be added contiguously per body")
	}
	idx := len(w.Geoms)
	w.Geoms = append(w.Geoms, Geom{LocalX: local[0], LocalY: local[1], Radius: radius, BodyIdx: bodyIdx})
	b.GeomCount++
	return idx, nil
}

// AddRevoluteJoint appends a revolute joint between two bodies.
func (w *World) AddRevoluteJoint(j RevoluteJoint) (int, error) {
	if j.BodyA < 0 || j.BodyA >= len(w.Bodies) || j.BodyB < 0 || j.BodyB >= len(w.Bodies) {
		return -1, evolerr.New(evolerr.InvalidIndex, "AddRevoluteJoint: body index out of range")
	}
	w.Joints = append(w.Joints, j)
	return len(w.Joints) - 1, nil
}

// AddCircleCollider appends a static circle collider.
func (w *World) AddCircleCollider(c vecmath.Circle) int {
	w.Circles = append(w.Circles, c)
	return len(w.Circles) - 1
}

// AddCapsuleCollider appends a static capsule collider.
func (w *World) AddCapsuleCollider(c vecmath.Capsule) int {
	w.Capsules = append(w.Capsules, c)
	return len(w.Capsules) - 1
}

// AddOBBCollider appends a static oriented-box collider.
func (w *World) AddOBBCollider(b vecmath.OBB) int {
	w.OBBs = append(w.OBBs, b)
	return len(w.OBBs) - 1
}

func (w *World) validParticle(i int) bool {
	return i >= 0 && i < w.Particles.Len()
}

// colliderSDF evaluates the signed distance and outward normal for probeRadius
// against collider (kind, idx).
func (w *World) colliderSDF(kind ColliderKind, idx int, p vecmath.Vec2, probeRadius float32) (phi float32, normal vecmath.Vec2) {
	switch kind {
	case ColliderCircle:
		return vecmath.CircleSDF(w.Circles[idx], p, probeRadius)
	case ColliderCapsule:
		return vecmath.CapsuleSDF(w.Capsules[idx], p, probeRadius)
	case ColliderOBB:
		return vecmath.OBBSDF(w.OBBs[idx], p, probeRadius)
	}
	return 0, vecmath.Vec2{0, 1}
}

func (w *World) numColliders() int {
	return len(w.Circles) + len(w.Capsules) + len(w.OBBs)
}

// forEachCollider calls fn for every static collider in the world.
func (w *World) forEachCollider(fn func(kind ColliderKind, idx int)) {
	for i := range w.Circles {
		fn(ColliderCircle, i)
	}
	for i := range w.Capsules {
		fn(ColliderCapsule, i)
	}
	for i := range w.OBBs {
		fn(ColliderOBB, i)
	}
}
