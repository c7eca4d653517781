package physics

import (
	"testing"

	"github.com/evolvatron/evolvatron/vecmath"
)

func TestColliderGridQueryFindsOverlapping(t *testing.T) {
	g := newColliderGrid(2.0)

	refA := colliderRef{Kind: ColliderCircle, Idx: 0}
	refB := colliderRef{Kind: ColliderCircle, Idx: 1}

	g.insert(refA, vecmath.Vec2{0, 0}, vecmath.Vec2{1, 1})
	g.insert(refB, vecmath.Vec2{10, 10}, vecmath.Vec2{11, 11})

	res := g.query(vecmath.Vec2{-0.5, -0.5}, vecmath.Vec2{0.5, 0.5}, nil)
	if len(res) != 1 || res[0] != refA {
		t.Errorf("expected only refA near origin, got %v", res)
	}

	res2 := g.query(vecmath.Vec2{9.5, 9.5}, vecmath.Vec2{10.5, 10.5}, nil)
	if len(res2) != 1 || res2[0] != refB {
		t.Errorf("expected only refB near (10,10), got %v", res2)
	}
}

func TestColliderGridQueryDedups(t *testing.T) {
	g := newColliderGrid(1.0)
	ref := colliderRef{Kind: ColliderOBB, Idx: 3}
	// A wide insert spans many cells; a wide query should still return ref once.
	g.insert(ref, vecmath.Vec2{-5, -5}, vecmath.Vec2{5, 5})

	res := g.query(vecmath.Vec2{-4, -4}, vecmath.Vec2{4, 4}, nil)
	count := 0
	for _, r := range res {
		if r == ref {
			count++
		}
	}
	if count != 1 {
		t.Errorf("expected ref exactly once, got %d occurrences in %v", count, res)
	}
}

func TestQueryCollidersFallsBackBeforeBuild(t *testing.T) {
	w := NewWorld()
	w.AddCircleCollider(vecmath.Circle{Center: vecmath.Vec2{0, 0}, Radius: 1})
	w.AddOBBCollider(vecmath.OBB{Center: vecmath.Vec2{20, 20}, XAxis: vecmath.Vec2{1, 0}, HalfX: 1, HalfY: 1})

	// No buildBroadphase call yet: queryColliders must fall back to scanning
	// every collider rather than silently returning nothing.
	out := w.queryColliders(vecmath.Vec2{0, 0}, 0.1, nil)
	if len(out) != 2 {
		t.Fatalf("expected fallback to return all colliders, got %d", len(out))
	}
}

func TestQueryCollidersAfterBuildIsSpatiallyFiltered(t *testing.T) {
	w := NewWorld()
	w.AddCircleCollider(vecmath.Circle{Center: vecmath.Vec2{0, 0}, Radius: 1})
	w.AddOBBCollider(vecmath.OBB{Center: vecmath.Vec2{50, 50}, XAxis: vecmath.Vec2{1, 0}, HalfX: 1, HalfY: 1})

	w.buildBroadphase()

	out := w.queryColliders(vecmath.Vec2{0, 0}, 0.5, nil)
	if len(out) != 1 || out[0].Kind != ColliderCircle {
		t.Errorf("expected only the nearby circle, got %v", out)
	}
}
