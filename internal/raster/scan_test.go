package raster

import (
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"voxelsmith.ai/internal/geom"
	"voxelsmith.ai/internal/mesh"
)

func TestFirstTrueIndex(t *testing.T) {
	for n := 0; n < 12; n++ {
		for k := 0; k <= n; k++ {
			got := firstTrueIndex(0, n, func(i int) bool { return i >= k })
			if got != k {
				t.Fatalf("n=%d k=%d got %d", n, k, got)
			}
		}
	}
	if got := firstTrueIndex(3, 3, func(int) bool { return true }); got != 3 {
		t.Fatalf("empty range returned %d", got)
	}
}

func collect(tr *mesh.Triangle, exhaustive bool) map[geom.IVec3]int {
	out := map[geom.IVec3]int{}
	for a := geom.AxisX; a <= geom.AxisZ; a++ {
		scanAxis(tr, a, exhaustive, func(h hit) { out[h.pos]++ })
	}
	return out
}

// The row search must never skip a hit the exhaustive scan finds, including
// for long thin slivers and triangles from non-convex, layered meshes.
func TestScanAxis_MatchesExhaustiveScan(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	rv := func(scale float64) r3.Vec {
		return r3.Vec{X: (rng.Float64() - 0.5) * scale, Y: (rng.Float64() - 0.5) * scale, Z: (rng.Float64() - 0.5) * scale}
	}
	var tris []mesh.Triangle
	for i := 0; i < 300; i++ {
		tris = append(tris, mesh.Triangle{Positions: [3]r3.Vec{rv(20), rv(20), rv(20)}})
	}
	// Slivers.
	for i := 0; i < 50; i++ {
		a := rv(20)
		b := r3.Add(a, rv(30))
		c := r3.Add(a, r3.Scale(0.02, rv(1)))
		tris = append(tris, mesh.Triangle{Positions: [3]r3.Vec{a, b, c}})
	}
	// A zig-zag strip: several layers crossing the same scan lines.
	for i := 0; i < 6; i++ {
		y := float64(i) * 1.3
		tris = append(tris,
			mesh.Triangle{Positions: [3]r3.Vec{{X: -8, Y: y, Z: -8}, {X: 8, Y: y + 0.6, Z: -8}, {X: 0, Y: y, Z: 8}}},
		)
	}

	for i := range tris {
		fast := collect(&tris[i], false)
		slow := collect(&tris[i], true)
		if len(fast) != len(slow) {
			t.Fatalf("triangle %d: optimized found %d cells, exhaustive %d", i, len(fast), len(slow))
		}
		for p, n := range slow {
			if fast[p] != n {
				t.Fatalf("triangle %d: cell %v optimized=%d exhaustive=%d", i, p, fast[p], n)
			}
		}
	}
}

func TestRayTriangle_AxisSpecializationMatchesCrossProduct(t *testing.T) {
	tr := mesh.Triangle{Positions: [3]r3.Vec{{X: 0.3, Y: 0.1, Z: 0.2}, {X: 4, Y: 1, Z: 0.5}, {X: 1, Y: 3.5, Z: 2.5}}}
	dirs := map[geom.Axis]r3.Vec{geom.AxisX: {X: 1}, geom.AxisY: {Y: 1}, geom.AxisZ: {Z: 1}}
	for axis, d := range dirs {
		rt := newRayTriangle(&tr, axis)
		want := r3.Cross(d, rt.e2)
		if rt.pvec != want {
			t.Fatalf("axis %v: pvec=%+v want %+v", axis, rt.pvec, want)
		}
	}
}
