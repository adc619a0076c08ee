package assign

import (
	"voxelsmith.ai/internal/geom"
	"voxelsmith.ai/internal/voxel"
)

const maxLight = 15

// lightField is sky light over a box: 15 enters from above, falls straight
// down without loss and drops by one per step sideways or upwards.
type lightField struct {
	b     geom.Bounds
	size  geom.IVec3
	level []int8
}

func (f *lightField) index(p geom.IVec3) int {
	q := p.Sub(f.b.Min)
	return q.X + f.size.X*(q.Z+f.size.Z*q.Y)
}

func (f *lightField) at(p geom.IVec3) int {
	if !f.b.Contains(p) {
		return maxLight
	}
	return int(f.level[f.index(p)])
}

func skyLight(grid *voxel.Grid) *lightField {
	b := grid.Bounds().Grow(1)
	f := &lightField{b: b, size: b.Size()}
	f.level = make([]int8, f.size.X*f.size.Y*f.size.Z)

	var queue []geom.IVec3
	for x := b.Min.X; x <= b.Max.X; x++ {
		for z := b.Min.Z; z <= b.Max.Z; z++ {
			p := geom.IVec3{X: x, Y: b.Max.Y, Z: z}
			f.level[f.index(p)] = maxLight
			queue = append(queue, p)
		}
	}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		l := int(f.level[f.index(p)])
		for _, face := range voxel.AllFaces {
			q := p.Add(face.Offset())
			if !b.Contains(q) || grid.IsOccupied(q) {
				continue
			}
			next := l - 1
			if face == voxel.FaceDown && l == maxLight {
				next = maxLight
			}
			if next <= int(f.level[f.index(q)]) {
				continue
			}
			f.level[f.index(q)] = int8(next)
			queue = append(queue, q)
		}
	}
	return f
}

// blockLight is the brightest empty cardinal neighbour of p.
func (f *lightField) blockLight(grid *voxel.Grid, p geom.IVec3) int {
	best := 0
	for _, face := range voxel.AllFaces {
		q := p.Add(face.Offset())
		if grid.IsOccupied(q) {
			continue
		}
		best = max(best, f.at(q))
	}
	return best
}

func exposed(grid *voxel.Grid, p geom.IVec3) bool {
	for _, face := range voxel.AllFaces {
		if !grid.IsOpaque(p.Add(face.Offset())) {
			return true
		}
	}
	return false
}

// relight swaps visible blocks left in the dark for the closest emissive
// block.
func relight(grid *voxel.Grid, slots []slot, emissive *matcher, threshold int) int {
	if len(slots) == 0 {
		return 0
	}
	field := skyLight(grid)
	n := 0
	for i := range slots {
		s := &slots[i]
		if !exposed(grid, s.voxel.Pos) {
			continue
		}
		if field.blockLight(grid, s.voxel.Pos) > threshold {
			continue
		}
		s.block = emissive.pick(s.colour, s.vis)
		n++
	}
	return n
}
