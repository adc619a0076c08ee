// Package geom holds the integer lattice types shared by the voxel, raster
// and assignment packages.
package geom

import (
	"fmt"
	"math"
)

// Axis names one of the three principal axes.
type Axis int

const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "x"
	case AxisY:
		return "y"
	case AxisZ:
		return "z"
	default:
		return fmt.Sprintf("axis(%d)", int(a))
	}
}

func (a Axis) Valid() bool { return a >= AxisX && a <= AxisZ }

// ParseAxis accepts "x", "y" or "z" (case-insensitive).
func ParseAxis(s string) (Axis, error) {
	switch s {
	case "x", "X":
		return AxisX, nil
	case "y", "Y":
		return AxisY, nil
	case "z", "Z":
		return AxisZ, nil
	}
	return 0, fmt.Errorf("unknown axis %q", s)
}

// IVec3 is a point on the integer voxel lattice.
type IVec3 struct {
	X, Y, Z int
}

func (v IVec3) Add(o IVec3) IVec3 { return IVec3{v.X + o.X, v.Y + o.Y, v.Z + o.Z} }
func (v IVec3) Sub(o IVec3) IVec3 { return IVec3{v.X - o.X, v.Y - o.Y, v.Z - o.Z} }

// Get returns the component along a.
func (v IVec3) Get(a Axis) int {
	switch a {
	case AxisX:
		return v.X
	case AxisY:
		return v.Y
	default:
		return v.Z
	}
}

func (v IVec3) Array() [3]int { return [3]int{v.X, v.Y, v.Z} }

func FromArray(a [3]int) IVec3 { return IVec3{a[0], a[1], a[2]} }

// Less orders positions by y, then z, then x. This is the layer order block
// structure formats store their cells in.
func (v IVec3) Less(o IVec3) bool {
	if v.Y != o.Y {
		return v.Y < o.Y
	}
	if v.Z != o.Z {
		return v.Z < o.Z
	}
	return v.X < o.X
}

// Bounds is an inclusive integer AABB.
type Bounds struct {
	Min IVec3
	Max IVec3
}

// EmptyBounds is the canonical bounds of nothing: Min above Max on every axis.
func EmptyBounds() Bounds {
	return Bounds{
		Min: IVec3{math.MaxInt, math.MaxInt, math.MaxInt},
		Max: IVec3{math.MinInt, math.MinInt, math.MinInt},
	}
}

func (b Bounds) IsEmpty() bool {
	return b.Min.X > b.Max.X || b.Min.Y > b.Max.Y || b.Min.Z > b.Max.Z
}

// Extend grows b to include p.
func (b Bounds) Extend(p IVec3) Bounds {
	b.Min = IVec3{min(b.Min.X, p.X), min(b.Min.Y, p.Y), min(b.Min.Z, p.Z)}
	b.Max = IVec3{max(b.Max.X, p.X), max(b.Max.Y, p.Y), max(b.Max.Z, p.Z)}
	return b
}

// Size is the number of cells along each axis; zero for empty bounds.
func (b Bounds) Size() IVec3 {
	if b.IsEmpty() {
		return IVec3{}
	}
	return b.Max.Sub(b.Min).Add(IVec3{1, 1, 1})
}

func (b Bounds) Contains(p IVec3) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X &&
		p.Y >= b.Min.Y && p.Y <= b.Max.Y &&
		p.Z >= b.Min.Z && p.Z <= b.Max.Z
}

// Grow expands the bounds by n cells on every side.
func (b Bounds) Grow(n int) Bounds {
	d := IVec3{n, n, n}
	return Bounds{Min: b.Min.Sub(d), Max: b.Max.Add(d)}
}
