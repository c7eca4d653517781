package physics

import (
	"math"

	"github.com/evolvatron/evolvatron/vecmath"
)

// colliderRef identifies one static collider by kind and slice index.
type colliderRef struct {
	Kind ColliderKind
	Idx  int
}

// colliderGrid is a 2D spatial hash over static colliders' bounding
// circles, adapted from the teacher's SpatialHashGrid (a 3D entity-AABB grid
// keyed by EntityId) down to 2D and re-keyed by collider identity. Static
// colliders never move once added, so the grid is built once per
// Stepper.Step rather than cleared and rebuilt every substep.
type colliderGrid struct {
	cellSize float32
	cells    map[int64][]colliderRef
}

func newColliderGrid(cellSize float32) *colliderGrid {
	return &colliderGrid{cellSize: cellSize, cells: make(map[int64][]colliderRef)}
}

func (g *colliderGrid) cellIndex(v float32) int {
	return int(math.Floor(float64(v / g.cellSize)))
}

// hashKey mirrors the teacher's large-prime XOR mix, dropped from 3 to 2
// dimensions.
func (g *colliderGrid) hashKey(x, y int) int64 {
	const p1 = 73856093
	const p2 = 19349663
	return int64(x)*p1 ^ int64(y)*p2
}

func (g *colliderGrid) insert(ref colliderRef, min, max vecmath.Vec2) {
	minX, maxX := g.cellIndex(min[0]), g.cellIndex(max[0])
	minY, maxY := g.cellIndex(min[1]), g.cellIndex(max[1])
	for x := minX; x <= maxX; x++ {
		for y := minY; y <= maxY; y++ {
			key := g.hashKey(x, y)
			g.cells[key] = append(g.cells[key], ref)
		}
	}
}

// query appends every collider whose cell overlaps [min, max] to out,
// deduplicated, and returns the extended slice.
func (g *colliderGrid) query(min, max vecmath.Vec2, out []colliderRef) []colliderRef {
	minX, maxX := g.cellIndex(min[0]), g.cellIndex(max[0])
	minY, maxY := g.cellIndex(min[1]), g.cellIndex(max[1])

	start := len(out)
	for x := minX; x <= maxX; x++ {
		for y := minY; y <= maxY; y++ {
			key := g.hashKey(x, y)
		next:
			for _, ref := range g.cells[key] {
				for i := start; i < len(out); i++ {
					if out[i] == ref {
						continue next
					}
				}
				out = append(out, ref)
			}
		}
	}
	return out
}

// colliderBoundRadius returns a conservative bounding radius around the
// collider's center — the SDF functions already do exact narrow-phase, so
// the broad-phase only needs to avoid false negatives.
func (w *World) colliderBoundRadius(kind ColliderKind, idx int) (center vecmath.Vec2, radius float32) {
	switch kind {
	case ColliderCircle:
		c := w.Circles[idx]
		return c.Center, c.Radius
	case ColliderCapsule:
		c := w.Capsules[idx]
		return c.Center, c.HalfLen + c.Radius
	case ColliderOBB:
		b := w.OBBs[idx]
		return b.Center, float32(math.Sqrt(float64(b.HalfX*b.HalfX + b.HalfY*b.HalfY)))
	}
	return vecmath.Vec2{}, 0
}

// buildBroadphase (re)builds w.broadphase from the current static collider
// set. Safe to call every Step: colliders are static, but rebuilding is
// O(numColliders) and far cheaper than the brute-force scans it replaces
// once a scene has more than a handful of colliders.
func (w *World) buildBroadphase() {
	if w.broadphase == nil {
		w.broadphase = newColliderGrid(broadphaseCellSize)
	} else {
		w.broadphase.cells = make(map[int64][]colliderRef, len(w.broadphase.cells))
	}
	w.forEachCollider(func(kind ColliderKind, idx int) {
		center, radius := w.colliderBoundRadius(kind, idx)
		min := vecmath.Vec2{center[0] - radius, center[1] - radius}
		max := vecmath.Vec2{center[0] + radius, center[1] + radius}
		w.broadphase.insert(colliderRef{Kind: kind, Idx: idx}, min, max)
	})
}

// broadphaseCellSize is a fixed default; scenes with wildly different
// collider scales would want this configurable, but spec.md's worked
// scenarios (§8) stay within a couple of meters, so one constant suffices.
const broadphaseCellSize = 2.0

// broadphaseMargin pads every probe so a query made before a particle/geom's
// final within-substep correction still finds colliders it could end up
// penetrating.
const broadphaseMargin = 0.5

// queryColliders appends every collider whose broad-phase cell overlaps a
// probe of the given center/radius to out (reusing its backing array across
// calls), falling back to every collider if the grid hasn't been built yet.
func (w *World) queryColliders(center vecmath.Vec2, radius float32, out []colliderRef) []colliderRef {
	out = out[:0]
	if w.broadphase == nil {
		w.forEachCollider(func(kind ColliderKind, idx int) {
			out = append(out, colliderRef{Kind: kind, Idx: idx})
		})
		return out
	}
	min := vecmath.Vec2{center[0] - radius, center[1] - radius}
	max := vecmath.Vec2{center[0] + radius, center[1] + radius}
	return w.broadphase.query(min, max, out)
}
