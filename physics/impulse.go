package physics

import "github.com/evolvatron/evolvatron/vecmath"

// baumgarteFactor and penetrationSlop are the fixed constants spec.md §4.3
// uses for the contact-velocity bias, distinct from Config's general
// velocity-stabilization pass in §4.1 step (9).
const (
	baumgarteFactor = 0.2
	penetrationSlop = 0.01
)

// buildContacts rebuilds w.contacts from every body geom vs every static
// collider with phi < 0, per spec.md §4.3 steps 1-4.
func buildContacts(w *World, dt float32, cfg Config) {
	w.contacts = w.contacts[:0]

	for gi := range w.Geoms {
		g := &w.Geoms[gi]
		body := &w.Bodies[g.BodyIdx]
		pw := vecmath.Vec2{g.WorldX, g.WorldY}

		w.colliderScratch = w.queryColliders(pw, g.Radius+broadphaseMargin, w.colliderScratch)
		for _, ref := range w.colliderScratch {
			kind, ci := ref.Kind, ref.Idx
			phi, n := w.colliderSDF(kind, ci, pw, g.Radius)
			if phi >= 0 {
				continue
			}
			contactPoint := pw.Sub(n.Mul(g.Radius))
			r := contactPoint.Sub(body.Pos())
			t := vecmath.Perp(n)

			rxn := vecmath.Cross2D(r, n)
			rxt := vecmath.Cross2D(r, t)
			normalMass := safeInvMass(body.InvMass + body.InvInertia*rxn*rxn)
			tangentMass := safeInvMass(body.InvMass + body.InvInertia*rxt*rxt)

			velBias := baumgarteFactor / dt * clampMin0(-phi-penetrationSlop)

			relVel := bodyPointVelocity(body, r)
			vInitialNormal := relVel.Dot(n)

			key := contactKey{BodyIdx: g.BodyIdx, GeomIdx: gi, Kind: kind, ColliderIdx: ci}
			cached := w.contactCache[key]

			w.contacts = append(w.contacts, Contact{
				BodyIdx:        g.BodyIdx,
				Normal:         n,
				Tangent:        t,
				ContactPoint:   contactPoint,
				RToBody:        r,
				Separation:     phi,
				NormalMass:     normalMass,
				TangentMass:    tangentMass,
				VelBias:        velBias,
				NormalImpulse:  cached.Normal,
				TangentImpulse: cached.Tangent,
				Friction:       cfg.FrictionMu,
				Restitution:    cfg.Restitution,
				GeomIdx:        gi,
				ColliderKind:   kind,
				ColliderIdx:    ci,
				Valid:          true,
				vInitialNormal: vInitialNormal,
			})
		}
	}
}

func safeInvMass(x float32) float32 {
	if x < vecmath.Epsilon {
		return 0
	}
	return 1 / x
}

// bodyPointVelocity returns the linear velocity of the body point at offset
// r from its center of mass: v + ω × r, specialized to 2D as v + ω·perp(r).
func bodyPointVelocity(b *RigidBody, r vecmath.Vec2) vecmath.Vec2 {
	return vecmath.Vec2{b.VelX, b.VelY}.Add(vecmath.Perp(r).Mul(b.AngVel))
}

// applyBodyImpulse applies impulse magnitude j along direction d at offset r
// from body's center of mass, per spec.md §4.3's body velocity update rule.
func applyBodyImpulse(b *RigidBody, j float32, d, r vecmath.Vec2) {
	b.VelX += b.InvMass * j * d[0]
	b.VelY += b.InvMass * j * d[1]
	b.AngVel += b.InvInertia * j * vecmath.Cross2D(r, d)
}

// warmStartContacts applies each contact's cached impulse once, per
// spec.md §4.3 step 5.
func warmStartContacts(w *World) {
	for i := range w.contacts {
		c := &w.contacts[i]
		body := &w.Bodies[c.BodyIdx]
		applyBodyImpulse(body, c.NormalImpulse, c.Normal, c.RToBody)
		applyBodyImpulse(body, c.TangentImpulse, c.Tangent, c.RToBody)
	}
}

// solveContactsVelocity runs one friction-then-normal velocity iteration
// over every contact, per spec.md §4.3.
func solveContactsVelocity(w *World, firstIteration bool) {
	for i := range w.contacts {
		c := &w.contacts[i]
		body := &w.Bodies[c.BodyIdx]

		// Friction.
		relVel := bodyPointVelocity(body, c.RToBody)
		vt := relVel.Dot(c.Tangent)
		dLambdaT := -c.TangentMass * vt
		maxFriction := c.Friction * c.NormalImpulse
		newTangent := clampAbs(c.TangentImpulse+dLambdaT, maxFriction)
		appliedT := newTangent - c.TangentImpulse
		c.TangentImpulse = newTangent
		applyBodyImpulse(body, appliedT, c.Tangent, c.RToBody)

		// Normal.
		velBias := c.VelBias
		if firstIteration && c.Restitution > 0 {
			restBias := -c.Restitution * c.vInitialNormal
			if restBias > velBias {
				velBias = restBias
			}
		}
		relVel = bodyPointVelocity(body, c.RToBody)
		vn := relVel.Dot(c.Normal)
		dLambdaN := -c.NormalMass * (vn - velBias)
		newNormal := c.NormalImpulse + dLambdaN
		if newNormal < 0 {
			newNormal = 0
		}
		appliedN := newNormal - c.NormalImpulse
		c.NormalImpulse = newNormal
		applyBodyImpulse(body, appliedN, c.Normal, c.RToBody)
	}
}

func clampAbs(x, limit float32) float32 {
	if limit < 0 {
		limit = 0
	}
	if x > limit {
		return limit
	}
	if x < -limit {
		return -limit
	}
	return x
}

// storeContactImpulses writes each contact's final impulse back to the
// warm-start cache and evicts cache entries no contact touched this frame,
// per spec.md §4.3 step (and §4.1 step 12).
func storeContactImpulses(w *World) {
	next := make(map[contactKey]cachedImpulse, len(w.contacts))
	for i := range w.contacts {
		c := &w.contacts[i]
		key := contactKey{BodyIdx: c.BodyIdx, GeomIdx: c.GeomIdx, Kind: c.ColliderKind, ColliderIdx: c.ColliderIdx}
		next[key] = cachedImpulse{Normal: c.NormalImpulse, Tangent: c.TangentImpulse}
	}
	w.contactCache = next
}

// ---- Revolute joints ----

// initJoint computes the derived effective-mass terms for a revolute
// joint's velocity solve, per spec.md §4.3.
func initJoint(w *World, j *RevoluteJoint) {
	a, b := &w.Bodies[j.BodyA], &w.Bodies[j.BodyB]
	ra := vecmath.Rotate(j.LocalAnchorA, a.Angle)
	rb := vecmath.Rotate(j.LocalAnchorB, b.Angle)

	invSum := a.InvMass + b.InvMass
	// K = invSum*I + invIa * Ja*Ja^T + invIb * Jb*Jb^T, where Ja = perp(ra)
	// (skew(ra) applied to a unit impulse), same for Jb.
	k00 := invSum + a.InvInertia*ra[1]*ra[1] + b.InvInertia*rb[1]*rb[1]
	k01 := -a.InvInertia*ra[0]*ra[1] - b.InvInertia*rb[0]*rb[1]
	k11 := invSum + a.InvInertia*ra[0]*ra[0] + b.InvInertia*rb[0]*rb[0]

	det := k00*k11 - k01*k01
	if det > vecmath.Epsilon || det < -vecmath.Epsilon {
		invDet := 1 / det
		j.invK00 = k11 * invDet
		j.invK01 = -k01 * invDet
		j.invK10 = -k01 * invDet
		j.invK11 = k00 * invDet
	} else {
		j.invK00, j.invK01, j.invK10, j.invK11 = 0, 0, 0, 0
	}

	rotInertiaSum := a.InvInertia + b.InvInertia
	j.motorMass = safeInvMass(rotInertiaSum)
	j.limitMass = j.motorMass
}

// jointAnchors returns the current world-space anchor offsets from each
// body's center of mass.
func jointAnchors(w *World, j *RevoluteJoint) (ra, rb vecmath.Vec2) {
	a, b := &w.Bodies[j.BodyA], &w.Bodies[j.BodyB]
	return vecmath.Rotate(j.LocalAnchorA, a.Angle), vecmath.Rotate(j.LocalAnchorB, b.Angle)
}

// solveJointVelocity runs one velocity iteration for a single joint: motor,
// then angle limit, then anchor equality, per spec.md §4.3.
func solveJointVelocity(w *World, j *RevoluteJoint, dt float32) {
	a, b := &w.Bodies[j.BodyA], &w.Bodies[j.BodyB]

	if j.EnableMotor {
		cdot := b.AngVel - a.AngVel
		dImpulse := -j.motorMass * (cdot - j.MotorSpeed)
		maxImpulse := j.MaxMotorTorque * dt
		newImpulse := clampAbs(j.motorImpulse+dImpulse, maxImpulse)
		applied := newImpulse - j.motorImpulse
		j.motorImpulse = newImpulse
		a.AngVel -= a.InvInertia * applied
		b.AngVel += b.InvInertia * applied
	}

	if j.EnableLimits {
		theta := vecmath.WrapAngle(b.Angle - a.Angle - j.ReferenceAngle)
		cdot := b.AngVel - a.AngVel
		switch {
		case theta <= j.LowerAngle:
			c := theta - j.LowerAngle
			dImpulse := -j.limitMass * (cdot + minF(c, 0)/dt)
			newImpulse := j.lowerImpulse + dImpulse
			if newImpulse < 0 {
				newImpulse = 0
			}
			applied := newImpulse - j.lowerImpulse
			j.lowerImpulse = newImpulse
			a.AngVel -= a.InvInertia * applied
			b.AngVel += b.InvInertia * applied
		case theta >= j.UpperAngle:
			c := j.UpperAngle - theta
			dImpulse := -j.limitMass * (cdot - minF(c, 0)/dt)
			newImpulse := j.upperImpulse + dImpulse
			if newImpulse < 0 {
				newImpulse = 0
			}
			applied := newImpulse - j.upperImpulse
			j.upperImpulse = newImpulse
			a.AngVel += a.InvInertia * applied
			b.AngVel -= b.InvInertia * applied
		default:
			j.lowerImpulse = 0
			j.upperImpulse = 0
		}
	}

	ra, rb := jointAnchors(w, j)
	va := bodyPointVelocity(a, ra)
	vb := bodyPointVelocity(b, rb)
	cdot := vb.Sub(va)

	dx := -(j.invK00*cdot[0] + j.invK01*cdot[1])
	dy := -(j.invK10*cdot[0] + j.invK11*cdot[1])
	d := vecmath.Vec2{dx, dy}
	j.anchorImpulse = j.anchorImpulse.Add(d)

	a.VelX -= a.InvMass * d[0]
	a.VelY -= a.InvMass * d[1]
	a.AngVel -= a.InvInertia * vecmath.Cross2D(ra, d)
	b.VelX += b.InvMass * d[0]
	b.VelY += b.InvMass * d[1]
	b.AngVel += b.InvInertia * vecmath.Cross2D(rb, d)
}

func minF(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

const (
	jointAnchorCorrectionCap = 0.2
	jointLimitSlop           = 2.0 * 3.14159265 / 180.0
)

// solveJointPosition runs the single post-velocity position-correction pass
// for a joint: anchor drift (clamped) and angle-limit violation beyond a 2°
// slop, per spec.md §4.3.
func solveJointPosition(w *World, j *RevoluteJoint) {
	a, b := &w.Bodies[j.BodyA], &w.Bodies[j.BodyB]
	ra, rb := jointAnchors(w, j)

	anchorA := vecmath.Vec2{a.X, a.Y}.Add(ra)
	anchorB := vecmath.Vec2{b.X, b.Y}.Add(rb)
	c := anchorB.Sub(anchorA)
	if l := c.Len(); l > jointAnchorCorrectionCap {
		c = c.Mul(jointAnchorCorrectionCap / l)
	}

	invSum := a.InvMass + b.InvMass
	k00 := invSum + a.InvInertia*ra[1]*ra[1] + b.InvInertia*rb[1]*rb[1]
	k01 := -a.InvInertia*ra[0]*ra[1] - b.InvInertia*rb[0]*rb[1]
	k11 := invSum + a.InvInertia*ra[0]*ra[0] + b.InvInertia*rb[0]*rb[0]
	det := k00*k11 - k01*k01
	if det > -vecmath.Epsilon && det < vecmath.Epsilon {
		det = vecmath.Epsilon
	}
	invDet := 1 / det
	impX := -(k11*c[0] - k01*c[1]) * invDet
	impY := -(-k01*c[0] + k00*c[1]) * invDet
	imp := vecmath.Vec2{impX, impY}

	a.X -= a.InvMass * imp[0]
	a.Y -= a.InvMass * imp[1]
	a.Angle -= a.InvInertia * vecmath.Cross2D(ra, imp)
	b.X += b.InvMass * imp[0]
	b.Y += b.InvMass * imp[1]
	b.Angle += b.InvInertia * vecmath.Cross2D(rb, imp)

	if !j.EnableLimits {
		return
	}
	theta := vecmath.WrapAngle(b.Angle - a.Angle - j.ReferenceAngle)
	var violation float32
	if theta < j.LowerAngle-jointLimitSlop {
		violation = theta - (j.LowerAngle - jointLimitSlop)
	} else if theta > j.UpperAngle+jointLimitSlop {
		violation = theta - (j.UpperAngle + jointLimitSlop)
	} else {
		return
	}
	denom := a.InvInertia + b.InvInertia
	if denom < vecmath.Epsilon {
		return
	}
	angImpulse := -violation / denom
	a.Angle -= a.InvInertia * angImpulse
	b.Angle += b.InvInertia * angImpulse
}
