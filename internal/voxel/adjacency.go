package voxel

import (
	"errors"
	"fmt"

	"voxelsmith.ai/internal/geom"
)

// AdjacencyMode selects which neighbours are recorded.
type AdjacencyMode int

const (
	// Cardinal records the 6 face neighbours.
	Cardinal AdjacencyMode = iota
	// Full records all 26 neighbours.
	Full
)

func (m AdjacencyMode) String() string {
	if m == Cardinal {
		return "cardinal"
	}
	return "full"
}

// ErrNotCardinal is returned by FaceVisibility on a cache built in Full mode.
var ErrNotCardinal = errors.New("voxel: face visibility requires a cardinal adjacency cache")

// NeighbourBit is the bit a neighbour at offset (dx,dy,dz) occupies, each
// component in {-1,0,1}. Cardinal and full caches share the layout.
func NeighbourBit(dx, dy, dz int) uint {
	return uint(9*(dx+1) + 3*(dy+1) + (dz+1))
}

// Face is one of the six cardinal faces of a cell.
type Face int

const (
	FaceUp Face = iota
	FaceDown
	FaceNorth
	FaceSouth
	FaceEast
	FaceWest
)

var AllFaces = [6]Face{FaceUp, FaceDown, FaceNorth, FaceSouth, FaceEast, FaceWest}

var faceNames = [6]string{"up", "down", "north", "south", "east", "west"}

func (f Face) String() string {
	if f < 0 || int(f) >= len(faceNames) {
		return fmt.Sprintf("face(%d)", int(f))
	}
	return faceNames[f]
}

// Offset is the direction the face points at.
func (f Face) Offset() geom.IVec3 {
	switch f {
	case FaceUp:
		return geom.IVec3{0, 1, 0}
	case FaceDown:
		return geom.IVec3{0, -1, 0}
	case FaceNorth:
		return geom.IVec3{0, 0, -1}
	case FaceSouth:
		return geom.IVec3{0, 0, 1}
	case FaceEast:
		return geom.IVec3{1, 0, 0}
	default:
		return geom.IVec3{-1, 0, 0}
	}
}

// Faces is a 6-bit set, bit i for Face(i).
type Faces uint8

const AllFacesVisible Faces = 1<<6 - 1

func (s Faces) Has(f Face) bool { return s&(1<<uint(f)) != 0 }

func (s Faces) Count() int {
	n := 0
	for _, f := range AllFaces {
		if s.Has(f) {
			n++
		}
	}
	return n
}

var fullOffsets = func() []geom.IVec3 {
	out := make([]geom.IVec3, 0, 26)
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			for dz := -1; dz <= 1; dz++ {
				if dx == 0 && dy == 0 && dz == 0 {
					continue
				}
				out = append(out, geom.IVec3{dx, dy, dz})
			}
		}
	}
	return out
}()

var cardinalOffsets = func() []geom.IVec3 {
	out := make([]geom.IVec3, 0, 6)
	for _, f := range AllFaces {
		out = append(out, f.Offset())
	}
	return out
}()

// Adjacency is an immutable snapshot of neighbour opacity. Rebuild it after
// mutating the grid it was built from.
type Adjacency struct {
	mode  AdjacencyMode
	masks map[geom.IVec3]uint32
}

// BuildAdjacency records, for every occupied voxel, which neighbours are
// opaque.
func BuildAdjacency(g *Grid, mode AdjacencyMode) *Adjacency {
	offsets := cardinalOffsets
	if mode == Full {
		offsets = fullOffsets
	}
	a := &Adjacency{
		mode:  mode,
		masks: make(map[geom.IVec3]uint32, g.Len()),
	}
	for p := range g.voxels {
		var mask uint32
		for _, o := range offsets {
			if g.IsOpaque(p.Add(o)) {
				mask |= 1 << NeighbourBit(o.X, o.Y, o.Z)
			}
		}
		a.masks[p] = mask
	}
	return a
}

func (a *Adjacency) Mode() AdjacencyMode { return a.mode }

// Neighbours is the raw neighbour mask; zero for positions that were not
// occupied at build time.
func (a *Adjacency) Neighbours(pos geom.IVec3) uint32 {
	return a.masks[pos]
}

// HasNeighbour reports whether the neighbour at offset (dx,dy,dz) was opaque.
func (a *Adjacency) HasNeighbour(pos geom.IVec3, dx, dy, dz int) bool {
	return a.masks[pos]&(1<<NeighbourBit(dx, dy, dz)) != 0
}

// FaceVisibility returns the faces of pos not covered by an opaque
// neighbour.
func (a *Adjacency) FaceVisibility(pos geom.IVec3) (Faces, error) {
	if a.mode != Cardinal {
		return 0, ErrNotCardinal
	}
	mask := a.masks[pos]
	var vis Faces
	for _, f := range AllFaces {
		o := f.Offset()
		if mask&(1<<NeighbourBit(o.X, o.Y, o.Z)) == 0 {
			vis |= 1 << uint(f)
		}
	}
	return vis, nil
}
