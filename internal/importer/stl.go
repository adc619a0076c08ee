package importer

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"voxelsmith.ai/internal/mesh"
)

const (
	stlHeaderLen = 80
	stlFacetLen  = 50
	// Refuse absurd counts before allocating.
	stlMaxFacets = 1 << 26
)

// DecodeSTL reads a binary STL file into a single solid section.
func DecodeSTL(r io.Reader) (*mesh.Mesh, error) {
	br := bufio.NewReader(r)
	if _, err := io.CopyN(io.Discard, br, stlHeaderLen); err != nil {
		return nil, fmt.Errorf("%w: stl header: %v", ErrMalformed, err)
	}
	var n uint32
	if err := binary.Read(br, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("%w: stl facet count: %v", ErrMalformed, err)
	}
	if n > stlMaxFacets {
		return nil, fmt.Errorf("%w: stl facet count %d", ErrMalformed, n)
	}

	tris := make([]mesh.Triangle, 0, n)
	var rec [stlFacetLen]byte
	for i := uint32(0); i < n; i++ {
		if _, err := io.ReadFull(br, rec[:]); err != nil {
			return nil, fmt.Errorf("%w: stl facet %d: %v", ErrMalformed, i, err)
		}
		normal := stlVec(rec[0:12])
		var t mesh.Triangle
		for k := 0; k < 3; k++ {
			off := 12 + 12*k
			t.Positions[k] = stlVec(rec[off : off+12])
		}
		if r3.Norm(normal) == 0 {
			normal = faceNormal(t.Positions)
		}
		t.Normals = [3]r3.Vec{normal, normal, normal}
		tris = append(tris, t)
	}
	return mesh.New(mesh.Section{
		Material:  mesh.Material{Kind: mesh.MaterialSolid, Name: "stl", Colour: DefaultColour},
		Triangles: tris,
	}), nil
}

func stlVec(b []byte) r3.Vec {
	f := func(i int) float64 {
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:])))
	}
	return r3.Vec{X: f(0), Y: f(1), Z: f(2)}
}

func faceNormal(p [3]r3.Vec) r3.Vec {
	n := r3.Cross(r3.Sub(p[1], p[0]), r3.Sub(p[2], p[0]))
	if l := r3.Norm(n); l > 0 {
		return r3.Scale(1/l, n)
	}
	return r3.Vec{}
}
