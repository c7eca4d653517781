package vecmath

import (
	"math"
	"testing"
)

func approxEqual(a, b, eps float32) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= eps
}

func TestCross2DAntisymmetric(t *testing.T) {
	a := Vec2{1, 0}
	b := Vec2{0, 1}
	if Cross2D(a, b) != 1 {
		t.Errorf("expected cross((1,0),(0,1)) = 1, got %f", Cross2D(a, b))
	}
	if Cross2D(b, a) != -1 {
		t.Errorf("expected cross((0,1),(1,0)) = -1, got %f", Cross2D(b, a))
	}
}

func TestPerpIsNinetyDegreeRotation(t *testing.T) {
	v := Vec2{1, 0}
	p := Perp(v)
	if !approxEqual(p[0], 0, 1e-6) || !approxEqual(p[1], 1, 1e-6) {
		t.Errorf("expected Perp((1,0)) = (0,1), got %v", p)
	}
}

func TestRotateFullCircleReturnsOriginal(t *testing.T) {
	v := Vec2{1, 2}
	r := Rotate(v, float32(2*math.Pi))
	if !approxEqual(r[0], v[0], 1e-4) || !approxEqual(r[1], v[1], 1e-4) {
		t.Errorf("rotating by 2*pi should return the original vector, got %v", r)
	}
}

func TestSafeNormalizeFallsBackOnDegenerateVector(t *testing.T) {
	fallback := Vec2{0, 1}
	n := SafeNormalize(Vec2{0, 0}, fallback)
	if n != fallback {
		t.Errorf("expected fallback for a zero vector, got %v", n)
	}

	n2 := SafeNormalize(Vec2{3, 4}, fallback)
	if !approxEqual(n2.Len(), 1, 1e-5) {
		t.Errorf("expected a unit vector, got length %f", n2.Len())
	}
}

func TestWrapAngleStaysInRange(t *testing.T) {
	cases := []float32{0, float32(math.Pi), float32(-math.Pi), float32(3 * math.Pi), float32(-3 * math.Pi)}
	for _, c := range cases {
		w := WrapAngle(c)
		if w <= -math.Pi || w > math.Pi+1e-5 {
			t.Errorf("WrapAngle(%f) = %f out of (-pi, pi]", c, w)
		}
	}
}

func TestSignedAngleMatchesKnownRightAngle(t *testing.T) {
	u := Vec2{1, 0}
	v := Vec2{0, 1}
	got := SignedAngle(u, v)
	want := float32(math.Pi / 2)
	if !approxEqual(got, want, 1e-5) {
		t.Errorf("expected signed angle pi/2, got %f", got)
	}
}

func TestCircleSDFOutsideIsPositive(t *testing.T) {
	c := Circle{Center: Vec2{0, 0}, Radius: 1}
	phi, normal := CircleSDF(c, Vec2{3, 0}, 0)
	if phi <= 0 {
		t.Errorf("expected positive phi outside the circle, got %f", phi)
	}
	if !approxEqual(normal[0], 1, 1e-5) || !approxEqual(normal[1], 0, 1e-5) {
		t.Errorf("expected outward normal (1,0), got %v", normal)
	}
}

func TestCircleSDFInsideIsNegative(t *testing.T) {
	c := Circle{Center: Vec2{0, 0}, Radius: 5}
	phi, _ := CircleSDF(c, Vec2{1, 0}, 0)
	if phi >= 0 {
		t.Errorf("expected negative phi inside the circle, got %f", phi)
	}
}

func TestOBBSDFFlatGroundUnderneathIsPenetrating(t *testing.T) {
	ground := OBB{Center: Vec2{0, 0}, XAxis: Vec2{1, 0}, HalfX: 10, HalfY: 0.5}
	phi, normal := OBBSDF(ground, Vec2{0, 0.3}, 0.25)
	if phi >= 0 {
		t.Errorf("expected penetration (phi < 0) for a probe embedded in the ground, got %f", phi)
	}
	if normal[1] <= 0 {
		t.Errorf("expected an upward-pointing normal from inside the ground slab, got %v", normal)
	}
}

func TestOBBSDFAboveGroundIsPositive(t *testing.T) {
	ground := OBB{Center: Vec2{0, 0}, XAxis: Vec2{1, 0}, HalfX: 10, HalfY: 0.5}
	phi, _ := OBBSDF(ground, Vec2{0, 5}, 0.25)
	if phi <= 0 {
		t.Errorf("expected clearance above the ground, got %f", phi)
	}
}

func TestCapsuleSDFAtMidpoint(t *testing.T) {
	capsule := Capsule{Center: Vec2{0, 0}, AxisUnit: Vec2{1, 0}, HalfLen: 2, Radius: 0.5}
	phi, _ := CapsuleSDF(capsule, Vec2{0, 3}, 0)
	want := float32(3 - 0.5)
	if !approxEqual(phi, want, 1e-4) {
		t.Errorf("expected phi = %f at the capsule's midpoint normal, got %f", want, phi)
	}
}
