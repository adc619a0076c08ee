package assign

import (
	"math"

	"voxelsmith.ai/internal/colour"
	"voxelsmith.ai/internal/palette"
	"voxelsmith.ai/internal/voxel"
)

// matcher picks the closest block of one collection and memoizes the
// answer per (colour, visible faces).
type matcher struct {
	col        palette.Collection
	weight     float64
	contextual bool
	cache      map[uint64]int
}

func newMatcher(col palette.Collection, weight float64, contextual bool) *matcher {
	return &matcher{col: col, weight: weight, contextual: contextual, cache: map[uint64]int{}}
}

func cacheKey(c colour.RGBA, vis voxel.Faces) uint64 {
	return uint64(c.Hash())<<6 | uint64(vis&voxel.AllFacesVisible)
}

// candidate is the colour a block shows with the given faces visible and
// the mean std of those faces. No visible face means the whole colour.
func candidate(b *palette.Block, vis voxel.Faces, contextual bool) (colour.RGBA, float64) {
	if !contextual || vis == 0 {
		return b.Colour, 0
	}
	var sum colour.RGBA
	var std float64
	n := 0
	for _, f := range voxel.AllFaces {
		if !vis.Has(f) {
			continue
		}
		sum = sum.Add(b.Faces[f].Colour)
		std += b.Faces[f].Std
		n++
	}
	return sum.Scale(1 / float32(n)), std / float64(n)
}

func (m *matcher) pick(c colour.RGBA, vis voxel.Faces) *palette.Block {
	if !m.contextual {
		vis = voxel.AllFacesVisible
	}
	key := cacheKey(c, vis)
	if i, ok := m.cache[key]; ok {
		return m.col.At(i)
	}
	best, bestScore := 0, math.Inf(1)
	for i := 0; i < m.col.Len(); i++ {
		cc, std := candidate(m.col.At(i), vis, m.contextual)
		score := (1-m.weight)*colour.SqDistRGB(c, cc) + m.weight*std
		if score < bestScore {
			best, bestScore = i, score
		}
	}
	m.cache[key] = best
	return m.col.At(best)
}
