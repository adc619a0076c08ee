// Package voxel stores rasterized colour samples on the integer lattice and
// derives neighbour occupancy from them.
package voxel

import (
	"fmt"
	"sort"

	"voxelsmith.ai/internal/colour"
	"voxelsmith.ai/internal/geom"
)

// MergePolicy decides what happens when a sample lands on an occupied cell.
type MergePolicy int

const (
	MergeAverage MergePolicy = iota
	MergeReplace
	MergeKeep
)

func (p MergePolicy) String() string {
	switch p {
	case MergeAverage:
		return "average"
	case MergeReplace:
		return "replace"
	case MergeKeep:
		return "keep"
	default:
		return fmt.Sprintf("merge(%d)", int(p))
	}
}

func ParseMergePolicy(s string) (MergePolicy, error) {
	switch s {
	case "average", "":
		return MergeAverage, nil
	case "replace":
		return MergeReplace, nil
	case "keep":
		return MergeKeep, nil
	}
	return 0, fmt.Errorf("unknown merge policy %q", s)
}

type Voxel struct {
	Pos    geom.IVec3
	Colour colour.RGBA
	// MergeCount is the number of samples folded into Colour under
	// MergeAverage.
	MergeCount uint32
}

// Grid is a sparse voxel set. It is not safe for concurrent writers.
type Grid struct {
	voxels map[geom.IVec3]*Voxel

	boundsDirty bool
	bounds      geom.Bounds
}

func NewGrid() *Grid {
	return &Grid{
		voxels: map[geom.IVec3]*Voxel{},
		bounds: geom.EmptyBounds(),
	}
}

func (g *Grid) Len() int { return len(g.voxels) }

// AddVoxel inserts a sample, resolving collisions with policy.
func (g *Grid) AddVoxel(pos geom.IVec3, c colour.RGBA, policy MergePolicy) {
	g.addWeighted(pos, c, 1, policy)
}

func (g *Grid) addWeighted(pos geom.IVec3, c colour.RGBA, count uint32, policy MergePolicy) {
	v, ok := g.voxels[pos]
	if !ok {
		g.voxels[pos] = &Voxel{Pos: pos, Colour: c, MergeCount: count}
		g.boundsDirty = true
		return
	}
	switch policy {
	case MergeReplace:
		v.Colour = c
		v.MergeCount = 1
	case MergeKeep:
	default:
		// Running mean: (old*n + in*k) / (n+k).
		n := float32(v.MergeCount)
		k := float32(count)
		v.Colour = v.Colour.Scale(n).Add(c.Scale(k)).Scale(1 / (n + k))
		v.MergeCount += count
	}
	g.boundsDirty = true
}

// SetVoxel stores v as is, overwriting any voxel at v.Pos. It restores
// grids from snapshots.
func (g *Grid) SetVoxel(v Voxel) {
	if _, ok := g.voxels[v.Pos]; !ok {
		g.boundsDirty = true
	}
	cp := v
	g.voxels[v.Pos] = &cp
}

func (g *Grid) RemoveVoxel(pos geom.IVec3) bool {
	if _, ok := g.voxels[pos]; !ok {
		return false
	}
	delete(g.voxels, pos)
	g.boundsDirty = true
	return true
}

func (g *Grid) VoxelAt(pos geom.IVec3) (Voxel, bool) {
	v, ok := g.voxels[pos]
	if !ok {
		return Voxel{}, false
	}
	return *v, true
}

func (g *Grid) IsOccupied(pos geom.IVec3) bool {
	_, ok := g.voxels[pos]
	return ok
}

// IsOpaque reports an occupied cell with full alpha.
func (g *Grid) IsOpaque(pos geom.IVec3) bool {
	v, ok := g.voxels[pos]
	return ok && v.Colour.A == 1.0
}

// Bounds is recomputed lazily after any mutation.
func (g *Grid) Bounds() geom.Bounds {
	if g.boundsDirty {
		b := geom.EmptyBounds()
		for p := range g.voxels {
			b = b.Extend(p)
		}
		g.bounds = b
		g.boundsDirty = false
	}
	return g.bounds
}

// Voxels returns copies of every voxel ordered by y, z, x. The slice is a
// snapshot: later grid mutation does not affect it.
func (g *Grid) Voxels() []Voxel {
	out := make([]Voxel, 0, len(g.voxels))
	for _, v := range g.voxels {
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pos.Less(out[j].Pos) })
	return out
}

// Clone is a deep copy.
func (g *Grid) Clone() *Grid {
	out := &Grid{
		voxels:      make(map[geom.IVec3]*Voxel, len(g.voxels)),
		boundsDirty: g.boundsDirty,
		bounds:      g.bounds,
	}
	for p, v := range g.voxels {
		cp := *v
		out.voxels[p] = &cp
	}
	return out
}

// Merge folds other into g as if other's samples had been added after g's.
// Under MergeAverage the merge counts weight the two means.
func (g *Grid) Merge(other *Grid, policy MergePolicy) {
	for _, v := range other.Voxels() {
		n := v.MergeCount
		if n == 0 {
			n = 1
		}
		g.addWeighted(v.Pos, v.Colour, n, policy)
	}
}
