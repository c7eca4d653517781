package physics

import "github.com/evolvatron/evolvatron/vecmath"

// stabilizeVelocities rederives velocity from the position delta accrued
// this substep and blends it with the solved velocity, per spec.md §4.1
// step (9): v <- beta*(p - p_prev)/dt + (1-beta)*v, clamped to MaxVelocity.
func stabilizeVelocities(w *World, dt float32, cfg Config) {
	beta := cfg.VelocityStabilizationBeta
	invDt := 1 / dt

	p := &w.Particles
	for i := 0; i < p.Len(); i++ {
		if p.InvMass[i] == 0 {
			continue
		}
		derivedX := (p.PosX[i] - p.PrevPosX[i]) * invDt
		derivedY := (p.PosY[i] - p.PrevPosY[i]) * invDt
		vx := beta*derivedX + (1-beta)*p.VelX[i]
		vy := beta*derivedY + (1-beta)*p.VelY[i]
		p.VelX[i], p.VelY[i] = clampVelocity(vx, vy, cfg.MaxVelocity)
	}

	for i := range w.Bodies {
		b := &w.Bodies[i]
		if b.InvMass == 0 {
			continue
		}
		derivedX := (b.X - b.PrevX) * invDt
		derivedY := (b.Y - b.PrevY) * invDt
		vx := beta*derivedX + (1-beta)*b.VelX
		vy := beta*derivedY + (1-beta)*b.VelY
		b.VelX, b.VelY = clampVelocity(vx, vy, cfg.MaxVelocity)

		derivedAng := vecmath.WrapAngle(b.Angle-b.PrevAngle) * invDt
		b.AngVel = beta*derivedAng + (1-beta)*b.AngVel
	}
}

func clampVelocity(vx, vy, maxVel float32) (float32, float32) {
	speed := vecmath.Vec2{vx, vy}.Len()
	if speed <= maxVel || speed < vecmath.Epsilon {
		return vx, vy
	}
	scale := maxVel / speed
	return vx * scale, vy * scale
}

// particleFriction applies a velocity-level Coulomb-like tangential clamp
// to every particle using the most-penetrating collider's normal, per
// spec.md §4.1 step (10) / §4.4.
func particleFriction(w *World, cfg Config) {
	p := &w.Particles
	for i := 0; i < p.Len(); i++ {
		if p.InvMass[i] == 0 {
			continue
		}
		pos := p.Pos(i)
		radius := p.Radius[i]

		bestPhi := float32(0)
		haveContact := false
		var bestNormal vecmath.Vec2

		w.forEachCollider(func(kind ColliderKind, idx int) {
			phi, n := w.colliderSDF(kind, idx, pos, radius)
			if phi >= 0 {
				return
			}
			if !haveContact || phi < bestPhi {
				bestPhi = phi
				bestNormal = n
				haveContact = true
			}
		})
		if !haveContact {
			continue
		}

		v := p.Vel(i)
		vn := v.Dot(bestNormal)
		vNormal := bestNormal.Mul(vn)
		vTangent := v.Sub(vNormal)
		vtLen := vTangent.Len()
		if vtLen < vecmath.Epsilon {
			continue
		}
		shrink := clampMin0(1 - cfg.FrictionMu*absF(vn)/vtLen)
		newV := vNormal.Add(vTangent.Mul(shrink))
		p.VelX[i], p.VelY[i] = newV[0], newV[1]
	}
}

func absF(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}
