package raster

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"voxelsmith.ai/internal/colour"
	"voxelsmith.ai/internal/geom"
	"voxelsmith.ai/internal/mesh"
)

// splitmix is a tiny deterministic stream; one per triangle keeps sharded
// runs identical to sequential ones.
type splitmix struct{ s uint64 }

func (r *splitmix) next() uint64 {
	r.s += 0x9e3779b97f4a7c15
	z := r.s
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// offset returns a value in [-0.5, 0.5).
func (r *splitmix) offset() float64 {
	return float64(r.next()>>11)/(1<<53) - 0.5
}

// colourAt evaluates the material at barycentric weights (w0, w1, w2).
func colourAt(mat *mesh.Material, t *mesh.Triangle, w0, w1, w2 float64) colour.RGBA {
	if math.IsNaN(w0) || math.IsNaN(w1) || math.IsNaN(w2) {
		return colour.Error
	}
	switch mat.Kind {
	case mesh.MaterialSolid:
		return mat.Colour
	case mesh.MaterialColoured:
		c := colour.Blend3(t.Colours[0], t.Colours[1], t.Colours[2], float32(w0), float32(w1), float32(w2))
		if c.IsNaN() {
			return colour.Error
		}
		return c
	case mesh.MaterialTextured:
		if mat.Texture == nil {
			return colour.Error
		}
		uv := mesh.UV{
			U: w0*t.UVs[0].U + w1*t.UVs[1].U + w2*t.UVs[2].U,
			V: w0*t.UVs[0].V + w1*t.UVs[1].V + w2*t.UVs[2].V,
		}
		return mat.Texture.Sample(uv)
	default:
		return colour.Error
	}
}

// barycentric projects p onto the triangle's plane and returns weights
// clamped onto the triangle. Degenerate triangles produce NaN.
func barycentric(t *mesh.Triangle, p r3.Vec) (w0, w1, w2 float64) {
	a, b, c := t.Positions[0], t.Positions[1], t.Positions[2]
	v0 := r3.Sub(b, a)
	v1 := r3.Sub(c, a)
	v2 := r3.Sub(p, a)
	d00 := r3.Dot(v0, v0)
	d01 := r3.Dot(v0, v1)
	d11 := r3.Dot(v1, v1)
	d20 := r3.Dot(v2, v0)
	d21 := r3.Dot(v2, v1)
	denom := d00*d11 - d01*d01
	if denom == 0 {
		return math.NaN(), math.NaN(), math.NaN()
	}
	w1 = (d11*d20 - d01*d21) / denom
	w2 = (d00*d21 - d01*d20) / denom
	w0 = 1 - w1 - w2

	w0 = math.Max(w0, 0)
	w1 = math.Max(w1, 0)
	w2 = math.Max(w2, 0)
	sum := w0 + w1 + w2
	return w0 / sum, w1 / sum, w2 / sum
}

// sampleHit is the colour recorded for a hit: the primary sample, averaged
// with n jittered resamples inside the voxel cube.
func sampleHit(mat *mesh.Material, t *mesh.Triangle, h hit, n int, rng *splitmix) colour.RGBA {
	primary := colourAt(mat, t, 1-h.u-h.v, h.u, h.v)
	if n <= 0 || mat.Kind == mesh.MaterialSolid {
		return primary
	}
	sum := primary
	centre := r3.Vec{X: float64(h.pos.X), Y: float64(h.pos.Y), Z: float64(h.pos.Z)}
	for i := 0; i < n; i++ {
		p := r3.Add(centre, r3.Vec{X: rng.offset(), Y: rng.offset(), Z: rng.offset()})
		w0, w1, w2 := barycentric(t, p)
		sum = sum.Add(colourAt(mat, t, w0, w1, w2))
	}
	return sum.Scale(1 / float32(n+1))
}

func triangleSeed(seed int64, section, index int) splitmix {
	return splitmix{s: geom.Hash3(seed, section, index, 0)}
}
