package raster

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"voxelsmith.ai/internal/geom"
	"voxelsmith.ai/internal/mesh"
)

const (
	// Determinant guard; near-parallel rays and zero-area triangles miss.
	detEpsilon = 1e-7
	// Barycentric slack so lattice points on a shared edge are not lost to
	// rounding in both neighbours.
	edgeEpsilon = 1e-9
)

// rayTriangle is the part of Möller–Trumbore that depends only on the
// triangle and the (axis-aligned) ray direction.
type rayTriangle struct {
	axis geom.Axis
	v0   r3.Vec
	e1   r3.Vec
	e2   r3.Vec
	pvec r3.Vec
	inv  float64
	ok   bool
}

// newRayTriangle specializes the intersection for rays along +axis. With a
// unit axis direction d, pvec = d × e2 and the v term d · qvec collapse to
// closed forms.
func newRayTriangle(t *mesh.Triangle, axis geom.Axis) rayTriangle {
	rt := rayTriangle{
		axis: axis,
		v0:   t.Positions[0],
		e1:   r3.Sub(t.Positions[1], t.Positions[0]),
		e2:   r3.Sub(t.Positions[2], t.Positions[0]),
	}
	switch axis {
	case geom.AxisX:
		rt.pvec = r3.Vec{X: 0, Y: -rt.e2.Z, Z: rt.e2.Y}
	case geom.AxisY:
		rt.pvec = r3.Vec{X: rt.e2.Z, Y: 0, Z: -rt.e2.X}
	default:
		rt.pvec = r3.Vec{X: -rt.e2.Y, Y: rt.e2.X, Z: 0}
	}
	det := r3.Dot(rt.e1, rt.pvec)
	if math.Abs(det) < detEpsilon {
		return rt
	}
	rt.inv = 1 / det
	rt.ok = true
	return rt
}

// intersect returns the barycentric coordinates (u for vertex 1, v for
// vertex 2) of the ray from origin along +axis, and the distance along the
// ray. The values are returned for misses too; only the caller decides.
func (rt *rayTriangle) intersect(origin r3.Vec) (u, v, dist float64) {
	tvec := r3.Sub(origin, rt.v0)
	u = r3.Dot(tvec, rt.pvec) * rt.inv
	qvec := r3.Cross(tvec, rt.e1)
	v = mesh.Component(qvec, rt.axis) * rt.inv
	dist = r3.Dot(rt.e2, qvec) * rt.inv
	return u, v, dist
}

// constraints are the three barycentric inequalities f >= 0.
func constraints(u, v float64) [3]float64 {
	return [3]float64{u, v, 1 - u - v}
}

func inside(f [3]float64) bool {
	return f[0] >= -edgeEpsilon && f[1] >= -edgeEpsilon && f[2] >= -edgeEpsilon
}

// hit is one ray/triangle intersection.
type hit struct {
	pos  geom.IVec3
	u, v float64
}

// otherAxes returns the row axis and the scan axis for rays along a.
func otherAxes(a geom.Axis) (row, scan geom.Axis) {
	switch a {
	case geom.AxisX:
		return geom.AxisY, geom.AxisZ
	case geom.AxisY:
		return geom.AxisZ, geom.AxisX
	default:
		return geom.AxisX, geom.AxisY
	}
}

func vecWith(a geom.Axis, v r3.Vec, f float64) r3.Vec {
	switch a {
	case geom.AxisX:
		v.X = f
	case geom.AxisY:
		v.Y = f
	default:
		v.Z = f
	}
	return v
}

func cellBounds(t *mesh.Triangle) (lo, hi [3]int) {
	for a := geom.AxisX; a <= geom.AxisZ; a++ {
		mn, mx := math.Inf(1), math.Inf(-1)
		for _, p := range t.Positions {
			c := mesh.Component(p, a)
			mn = math.Min(mn, c)
			mx = math.Max(mx, c)
		}
		lo[a] = int(math.Floor(mn))
		hi[a] = int(math.Ceil(mx))
	}
	return lo, hi
}

// scanAxis casts one ray per lattice line parallel to axis through the
// triangle's cell bounds and calls emit for every hit. When exhaustive is
// false each row skips its leading misses with a binary search.
func scanAxis(t *mesh.Triangle, axis geom.Axis, exhaustive bool, emit func(hit)) {
	rt := newRayTriangle(t, axis)
	if !rt.ok {
		return
	}
	lo, hi := cellBounds(t)
	rowAxis, scanAx := otherAxes(axis)
	originA := float64(lo[axis] - 1)

	for r := lo[rowAxis]; r <= hi[rowAxis]; r++ {
		base := vecWith(axis, r3.Vec{}, originA)
		base = vecWith(rowAxis, base, float64(r))

		at := func(s int) (u, v, dist float64) {
			return rt.intersect(vecWith(scanAx, base, float64(s)))
		}

		start := lo[scanAx]
		end := hi[scanAx] + 1
		if !exhaustive && end-start > 1 {
			start = firstCandidate(at, start, end)
		}

		for s := start; s < end; s++ {
			u, v, dist := at(s)
			if !inside(constraints(u, v)) {
				continue
			}
			p := vecWith(scanAx, base, float64(s))
			p = vecWith(axis, p, originA+dist)
			emit(hit{
				pos: geom.IVec3{
					X: int(math.Round(p.X)),
					Y: int(math.Round(p.Y)),
					Z: int(math.Round(p.Z)),
				},
				u: u,
				v: v,
			})
		}
	}
}

// firstCandidate finds where the row's hit span can begin. Each barycentric
// constraint is affine along the row, so "inside, or already below zero on
// a constraint that only decreases" flips from false to true exactly once.
// Cells before the returned index cannot hit.
func firstCandidate(at func(int) (float64, float64, float64), start, end int) int {
	u0, v0, _ := at(start)
	u1, v1, _ := at(start + 1)
	f0 := constraints(u0, v0)
	f1 := constraints(u1, v1)
	var slope [3]float64
	for k := range slope {
		slope[k] = f1[k] - f0[k]
	}
	return firstTrueIndex(start, end, func(s int) bool {
		u, v, _ := at(s)
		f := constraints(u, v)
		if inside(f) {
			return true
		}
		for k := range f {
			if slope[k] < 0 && f[k] < -edgeEpsilon {
				return true
			}
		}
		return false
	})
}
