// Package vecmath provides the 2D vector algebra the physics core is built
// on. mgl32 ships Vec2/Vec3/Vec4 but its cross product, perpendicular, and
// angle helpers are specific to 3D; this package adds the 2D-specific forms
// on top of mgl32.Vec2 so the rest of the module can keep using mgl32's
// Add/Sub/Dot/Normalize instead of a hand-rolled vector type.
package vecmath

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Vec2 is an alias for mgl32's 2-vector so callers can use mgl32's own
// arithmetic (Add, Sub, Mul, Dot, Normalize, Len) alongside the helpers here.
type Vec2 = mgl32.Vec2

// Epsilon floors denominators that would otherwise divide by (near) zero,
// matching spec.md's "ε floor on denominators" requirement for the angle
// gradient and degenerate SDF cases.
const Epsilon = 1e-8

// Cross2D returns the scalar (z-component) of the 3D cross product of two
// 2D vectors treated as lying in the z=0 plane: a.x*b.y - a.y*b.x.
func Cross2D(a, b Vec2) float32 {
	return a[0]*b[1] - a[1]*b[0]
}

// Perp rotates v by +90 degrees: (x, y) -> (-y, x).
func Perp(v Vec2) Vec2 {
	return Vec2{-v[1], v[0]}
}

// Rotate rotates v by angle radians (counter-clockwise, right-handed), via
// mgl32's 2D rotation matrix.
func Rotate(v Vec2, angle float32) Vec2 {
	return mgl32.Rotate2D(angle).Mul2x1(v)
}

// SafeNormalize returns the unit vector along v, or fallback if v is
// degenerately short (below Epsilon), avoiding a NaN from a 0/0 division.
func SafeNormalize(v Vec2, fallback Vec2) Vec2 {
	l := v.Len()
	if l < Epsilon {
		return fallback
	}
	return v.Mul(1 / l)
}

// WrapAngle wraps theta into (-pi, pi].
func WrapAngle(theta float32) float32 {
	const twoPi = 2 * math.Pi
	theta = float32(math.Mod(float64(theta), twoPi))
	if theta > math.Pi {
		theta -= twoPi
	} else if theta <= -math.Pi {
		theta += twoPi
	}
	return theta
}

// SignedAngle returns the signed angle from u to v in (-pi, pi], via
// atan2(cross, dot) — the convention spec.md §4.2 uses for the Angle and
// MotorAngle constraints.
func SignedAngle(u, v Vec2) float32 {
	return float32(math.Atan2(float64(Cross2D(u, v)), float64(u.Dot(v))))
}

// Clamp clamps x to [lo, hi].
func Clamp(x, lo, hi float32) float32 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// ClampVec clamps each component of v to [lo, hi].
func ClampVec(v Vec2, lo, hi float32) Vec2 {
	return Vec2{Clamp(v[0], lo, hi), Clamp(v[1], lo, hi)}
}
