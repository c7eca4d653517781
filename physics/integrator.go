package physics

import "github.com/evolvatron/evolvatron/vecmath"

// applyGravity adds one substep of gravity acceleration to every dynamic
// particle and body's velocity, per spec.md §4.1 step (1).
func applyGravity(w *World, dt float32, cfg Config) {
	gx, gy := cfg.GravityX*dt, cfg.GravityY*dt
	p := &w.Particles
	for i := 0; i < p.Len(); i++ {
		if p.InvMass[i] == 0 {
			continue
		}
		p.VelX[i] += gx
		p.VelY[i] += gy
	}
	for i := range w.Bodies {
		b := &w.Bodies[i]
		if b.InvMass == 0 {
			continue
		}
		b.VelX += gx
		b.VelY += gy
	}
}

// snapshotPrev records pre-integration positions/angles for later use by
// velocity stabilization, per spec.md §4.1 step (2).
func snapshotPrev(w *World) {
	p := &w.Particles
	copy(p.PrevPosX, p.PosX)
	copy(p.PrevPosY, p.PosY)
	for i := range w.Bodies {
		b := &w.Bodies[i]
		b.PrevX, b.PrevY, b.PrevAngle = b.X, b.Y, b.Angle
	}
}

// integratePositions advances positions/angles by one substep of symplectic
// Euler: velocities (already updated by gravity/impulses) are applied to
// positions, per spec.md §4.1 step (3).
func integratePositions(w *World, dt float32) {
	p := &w.Particles
	for i := 0; i < p.Len(); i++ {
		p.PosX[i] += p.VelX[i] * dt
		p.PosY[i] += p.VelY[i] * dt
	}
	for i := range w.Bodies {
		b := &w.Bodies[i]
		b.X += b.VelX * dt
		b.Y += b.VelY * dt
		b.Angle = vecmath.WrapAngle(b.Angle + b.AngVel*dt)
	}
}

// refreshGeoms recomputes world-space geom centers from their owning body's
// current pose, per spec.md §4.1 step (4).
func refreshGeoms(w *World) {
	for i := range w.Geoms {
		g := &w.Geoms[i]
		b := &w.Bodies[g.BodyIdx]
		local := vecmath.Rotate(vecmath.Vec2{g.LocalX, g.LocalY}, b.Angle)
		g.WorldX = b.X + local[0]
		g.WorldY = b.Y + local[1]
	}
}

// resetLambdas zeroes every constraint's accumulated multiplier, per
// spec.md §4.1 step (5) ("reset XPBD λ to 0").
func resetLambdas(w *World) {
	for i := range w.Rods {
		w.Rods[i].lambda = 0
	}
	for i := range w.Angles {
		w.Angles[i].lambda = 0
	}
	for i := range w.Motors {
		w.Motors[i].lambda = 0
	}
}

// dampVelocities applies global linear and angular damping, per spec.md
// §4.4 / §4.1 step (11).
func dampVelocities(w *World, dt float32, cfg Config) {
	linFactor := clampMin0(1 - cfg.GlobalDamping*dt)
	angFactor := clampMin0(1 - cfg.AngularDamping*dt)

	p := &w.Particles
	for i := 0; i < p.Len(); i++ {
		p.VelX[i] *= linFactor
		p.VelY[i] *= linFactor
	}
	for i := range w.Bodies {
		b := &w.Bodies[i]
		b.VelX *= linFactor
		b.VelY *= linFactor
		b.AngVel *= angFactor
	}
}

func clampMin0(x float32) float32 {
	if x < 0 {
		return 0
	}
	return x
}
