package vecmath

import "math"

// Circle is a static collider: center c, radius r.
type Circle struct {
	Center Vec2
	Radius float32
}

// Capsule is a static collider: a line segment of half-length HalfLen
// along AxisUnit centered at Center, thickened by Radius.
type Capsule struct {
	Center    Vec2
	AxisUnit  Vec2
	HalfLen   float32
	Radius    float32
}

// OBB is a static, axis-oriented (possibly rotated) box collider.
type OBB struct {
	Center   Vec2
	XAxis    Vec2 // unit vector for the local x axis; YAxis is Perp(XAxis)
	HalfX    float32
	HalfY    float32
}

// CircleSDF returns the signed distance between the surface of circle c and
// a probe circle of radius probeRadius (e.g. the probing particle/geom
// radius) centered at p, and the outward normal.
func CircleSDF(c Circle, p Vec2, probeRadius float32) (phi float32, normal Vec2) {
	d := p.Sub(c.Center)
	dist := d.Len()
	normal = SafeNormalize(d, Vec2{0, 1})
	phi = dist - c.Radius - probeRadius
	return phi, normal
}

// CapsuleSDF returns the signed distance from p to a capsule's surface and
// the outward normal, per spec.md §4.2: project onto the axis, clamp to
// [-HalfLen, HalfLen], measure from the closest axis point.
func CapsuleSDF(c Capsule, p Vec2, probeRadius float32) (phi float32, normal Vec2) {
	rel := p.Sub(c.Center)
	t := Clamp(rel.Dot(c.AxisUnit), -c.HalfLen, c.HalfLen)
	q := c.Center.Add(c.AxisUnit.Mul(t))
	d := p.Sub(q)
	dist := d.Len()
	normal = SafeNormalize(d, Perp(c.AxisUnit))
	phi = dist - c.Radius - probeRadius
	return phi, normal
}

// OBBSDF returns the signed distance from p to an oriented box's surface and
// the outward normal, per spec.md §4.2. Outside the box phi is the distance
// to the clamped nearest point; inside, phi is the negative distance to the
// nearest face (so phi < 0 throughout the interior).
func OBBSDF(b OBB, p Vec2, probeRadius float32) (phi float32, normal Vec2) {
	yAxis := Perp(b.XAxis)
	rel := p.Sub(b.Center)
	lx := rel.Dot(b.XAxis)
	ly := rel.Dot(yAxis)

	cx := Clamp(lx, -b.HalfX, b.HalfX)
	cy := Clamp(ly, -b.HalfY, b.HalfY)

	outsideX := lx < -b.HalfX || lx > b.HalfX
	outsideY := ly < -b.HalfY || ly > b.HalfY

	if outsideX || outsideY {
		dx, dy := lx-cx, ly-cy
		localDist := float32(math.Sqrt(float64(dx*dx + dy*dy)))
		localNormal := Vec2{dx, dy}
		if localDist < Epsilon {
			// Shouldn't happen when genuinely outside, but guard anyway.
			localNormal = Vec2{1, 0}
		} else {
			localNormal = localNormal.Mul(1 / localDist)
		}
		worldNormal := b.XAxis.Mul(localNormal[0]).Add(yAxis.Mul(localNormal[1]))
		return localDist - probeRadius, worldNormal
	}

	// Inside: distance to nearest face is min over the four face distances.
	distRight := b.HalfX - lx
	distLeft := b.HalfX + lx
	distTop := b.HalfY - ly
	distBottom := b.HalfY + ly

	minDist := distRight
	localNormal := Vec2{1, 0}
	if distLeft < minDist {
		minDist = distLeft
		localNormal = Vec2{-1, 0}
	}
	if distTop < minDist {
		minDist = distTop
		localNormal = Vec2{0, 1}
	}
	if distBottom < minDist {
		minDist = distBottom
		localNormal = Vec2{0, -1}
	}

	worldNormal := b.XAxis.Mul(localNormal[0]).Add(yAxis.Mul(localNormal[1]))
	return -minDist - probeRadius, worldNormal
}
