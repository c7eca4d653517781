package physics

import (
	"math"

	"github.com/evolvatron/evolvatron/vecmath"
)

// solveRods runs one XPBD pass over every rod constraint, per spec.md §4.2.
func solveRods(w *World, dt float32, cfg Config) {
	p := &w.Particles
	alphaScale := 1 / (dt * dt)
	for ri := range w.Rods {
		r := &w.Rods[ri]
		invMi, invMj := p.InvMass[r.I], p.InvMass[r.J]
		if invMi == 0 && invMj == 0 {
			continue
		}
		pi, pj := p.Pos(r.I), p.Pos(r.J)
		delta := pi.Sub(pj)
		dist := delta.Len()
		if dist < vecmath.Epsilon {
			continue
		}
		n := delta.Mul(1 / dist)
		c := dist - r.RestLength

		compliance := orGlobal(r.Compliance, cfg.RodCompliance)
		alpha := compliance * alphaScale
		wSum := invMi + invMj
		denom := wSum + alpha
		if denom < vecmath.Epsilon {
			continue
		}
		dLambda := -(c + alpha*r.lambda) / denom
		r.lambda += dLambda

		p.PosX[r.I] += invMi * dLambda * n[0]
		p.PosY[r.I] += invMi * dLambda * n[1]
		p.PosX[r.J] -= invMj * dLambda * n[0]
		p.PosY[r.J] -= invMj * dLambda * n[1]
	}
}

// angleGradients returns the signed angle theta = atan2(u×v, u·v) wrapped
// to (-pi, pi], and the coupled 2-D gradients ∂θ/∂u, ∂θ/∂v, per spec.md
// §4.2's coupled gradient formulation (decoupled perpendicular-only
// gradients are not conservative when combined with rods + contacts).
func angleGradients(u, v vecmath.Vec2) (theta float32, dThetaDU, dThetaDV vecmath.Vec2) {
	c := u.Dot(v)
	s := vecmath.Cross2D(u, v)
	theta = vecmath.WrapAngle(float32(math.Atan2(float64(s), float64(c))))

	den := u.Dot(u)*v.Dot(v) + vecmath.Epsilon
	perpV := vecmath.Perp(v)
	perpU := vecmath.Perp(u)

	dThetaDU = perpV.Mul(c).Sub(v.Mul(s)).Mul(1 / den)
	dThetaDV = perpU.Mul(c).Sub(u.Mul(s)).Mul(1 / den)
	return theta, dThetaDU, dThetaDV
}

// maxAngleLambdaStep caps |Δλ| for angle-like constraints, improving
// robustness for large initial angle error (spec.md §4.2).
const maxAngleLambdaStep = 10

func solveAngles(w *World, dt float32, cfg Config) {
	p := &w.Particles
	alphaScale := 1 / (dt * dt)
	for ai := range w.Angles {
		a := &w.Angles[ai]
		solveOneAngle(p, alphaScale, orGlobal(a.Compliance, cfg.AngleCompliance), a.I, a.J, a.K, a.Theta0, &a.lambda)
	}
}

func solveMotors(w *World, dt float32, cfg Config) {
	p := &w.Particles
	alphaScale := 1 / (dt * dt)
	for mi := range w.Motors {
		m := &w.Motors[mi]
		solveOneAngle(p, alphaScale, orGlobal(m.Compliance, cfg.MotorCompliance), m.I, m.J, m.K, m.Target, &m.lambda)
	}
}

// solveOneAngle runs one XPBD pass of a signed-angle-at-vertex-j constraint,
// shared by Angle and MotorAngle since both reduce to "θ equals a target"
// with the same coupled gradient.
func solveOneAngle(p *Particles, alphaScale, compliance float32, i, j, k int, target float32, lambda *float32) {
	invMi, invMj, invMk := p.InvMass[i], p.InvMass[j], p.InvMass[k]
	if invMi == 0 && invMj == 0 && invMk == 0 {
		return
	}
	pi, pj, pk := p.Pos(i), p.Pos(j), p.Pos(k)
	u := pi.Sub(pj)
	v := pk.Sub(pj)
	if u.Dot(u) < vecmath.Epsilon || v.Dot(v) < vecmath.Epsilon {
		return
	}

	theta, dU, dV := angleGradients(u, v)
	c := vecmath.WrapAngle(theta - target)

	// Gradient w.r.t. particle j is the negated sum of the edge gradients.
	dJ := dU.Add(dV).Mul(-1)

	wSum := invMi*dU.Dot(dU) + invMk*dV.Dot(dV) + invMj*dJ.Dot(dJ)
	alpha := compliance * alphaScale
	denom := wSum + alpha
	if denom < vecmath.Epsilon {
		return
	}
	dLambda := -(c + alpha*(*lambda)) / denom
	if dLambda > maxAngleLambdaStep {
		dLambda = maxAngleLambdaStep
	} else if dLambda < -maxAngleLambdaStep {
		dLambda = -maxAngleLambdaStep
	}
	*lambda += dLambda

	p.PosX[i] += invMi * dLambda * dU[0]
	p.PosY[i] += invMi * dLambda * dU[1]
	p.PosX[k] += invMk * dLambda * dV[0]
	p.PosY[k] += invMk * dLambda * dV[1]
	p.PosX[j] += invMj * dLambda * dJ[0]
	p.PosY[j] += invMj * dLambda * dJ[1]
}

// particleContactKey identifies a warm-startable particle-vs-collider XPBD
// lambda slot, local to a single substep (reset at substep start along with
// every other constraint's λ, per spec.md §3).
type particleContactKey struct {
	ParticleIdx int
	Kind        ColliderKind
	ColliderIdx int
}

// solveParticleContacts runs one XPBD pass of the one-sided particle-vs-
// static-collider penetration constraint, per spec.md §4.2.
func solveParticleContacts(w *World, dt float32, cfg Config, lambdas map[particleContactKey]float32) {
	p := &w.Particles
	alpha := cfg.ContactCompliance / (dt * dt)
	for pi := 0; pi < p.Len(); pi++ {
		invM := p.InvMass[pi]
		if invM == 0 {
			continue
		}
		radius := p.Radius[pi]

		w.colliderScratch = w.queryColliders(p.Pos(pi), radius+broadphaseMargin, w.colliderScratch)
		for _, ref := range w.colliderScratch {
			kind, idx := ref.Kind, ref.Idx
			pos := p.Pos(pi) // re-fetched: earlier candidates in this loop may have moved pi
			phi, n := w.colliderSDF(kind, idx, pos, radius)
			key := particleContactKey{pi, kind, idx}
			if phi >= 0 {
				delete(lambdas, key)
				continue
			}
			lambda := lambdas[key]

			denom := invM + alpha
			if denom < vecmath.Epsilon {
				continue
			}
			dLambda := -(phi + alpha*lambda) / denom
			lambda += dLambda
			lambdas[key] = lambda

			p.PosX[pi] += invM * dLambda * n[0]
			p.PosY[pi] += invM * dLambda * n[1]
		}
	}
}
