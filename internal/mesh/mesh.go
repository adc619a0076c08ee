// Package mesh describes the triangle soup the rasterizer consumes.
//
// Geometry arrives grouped in sections; every section carries one material,
// which is either a solid colour, per-vertex colours or a texture.
package mesh

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"voxelsmith.ai/internal/colour"
	"voxelsmith.ai/internal/geom"
)

// Source is anything that can hand out triangle sections. Importers produce
// *Mesh values; callers with their own scene graph can implement it directly.
type Source interface {
	Sections() []Section
}

type MaterialKind int

const (
	MaterialSolid MaterialKind = iota
	MaterialColoured
	MaterialTextured
)

func (k MaterialKind) String() string {
	switch k {
	case MaterialSolid:
		return "solid"
	case MaterialColoured:
		return "coloured"
	case MaterialTextured:
		return "textured"
	default:
		return "unknown"
	}
}

// Material is a tagged union; Kind says which of the fields apply.
type Material struct {
	Kind MaterialKind
	Name string

	// MaterialSolid.
	Colour colour.RGBA
	// MaterialTextured. May be nil when the image could not be loaded; the
	// rasterizer then paints colour.Error.
	Texture *Texture
}

type UV struct {
	U, V float64
}

type Triangle struct {
	Positions [3]r3.Vec
	Normals   [3]r3.Vec
	// MaterialColoured only.
	Colours [3]colour.RGBA
	// MaterialTextured only.
	UVs [3]UV
}

type Section struct {
	Material  Material
	Triangles []Triangle
}

// Mesh is the in-memory Source.
type Mesh struct {
	sections []Section
}

func New(sections ...Section) *Mesh {
	return &Mesh{sections: sections}
}

func (m *Mesh) Sections() []Section { return m.sections }

func (m *Mesh) AddSection(s Section) { m.sections = append(m.sections, s) }

// TriangleCount sums the triangles of every section in src.
func TriangleCount(src Source) int {
	n := 0
	for _, s := range src.Sections() {
		n += len(s.Triangles)
	}
	return n
}

// Bounds is the float AABB of every vertex in src. ok is false for a mesh
// without triangles.
func Bounds(src Source) (b r3.Box, ok bool) {
	b.Min = r3.Vec{X: math.Inf(1), Y: math.Inf(1), Z: math.Inf(1)}
	b.Max = r3.Vec{X: math.Inf(-1), Y: math.Inf(-1), Z: math.Inf(-1)}
	for _, s := range src.Sections() {
		for _, t := range s.Triangles {
			for _, p := range t.Positions {
				b.Min = r3.Vec{X: math.Min(b.Min.X, p.X), Y: math.Min(b.Min.Y, p.Y), Z: math.Min(b.Min.Z, p.Z)}
				b.Max = r3.Vec{X: math.Max(b.Max.X, p.X), Y: math.Max(b.Max.Y, p.Y), Z: math.Max(b.Max.Z, p.Z)}
				ok = true
			}
		}
	}
	return b, ok
}

// Component returns the coordinate of v along a.
func Component(v r3.Vec, a geom.Axis) float64 {
	switch a {
	case geom.AxisX:
		return v.X
	case geom.AxisY:
		return v.Y
	default:
		return v.Z
	}
}

// Transformed returns a deep copy of src with every position mapped to
// p*scale + offset. Normals are copied unchanged (uniform scale).
func Transformed(src Source, scale float64, offset r3.Vec) *Mesh {
	in := src.Sections()
	out := make([]Section, len(in))
	for i, s := range in {
		tris := make([]Triangle, len(s.Triangles))
		for j, t := range s.Triangles {
			for k := range t.Positions {
				t.Positions[k] = r3.Add(r3.Scale(scale, t.Positions[k]), offset)
			}
			tris[j] = t
		}
		out[i] = Section{Material: s.Material, Triangles: tris}
	}
	return &Mesh{sections: out}
}
