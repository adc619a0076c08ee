// Package assign chooses a palette block for every voxel of a grid.
package assign

import (
	"fmt"

	"voxelsmith.ai/internal/colour"
	"voxelsmith.ai/internal/geom"
	"voxelsmith.ai/internal/palette"
	"voxelsmith.ai/internal/progress"
	"voxelsmith.ai/internal/voxel"
)

const progressStage = "assign"

var down = geom.IVec3{Y: -1}
var up = geom.IVec3{Y: 1}

// slot is the per-voxel state the correction passes need.
type slot struct {
	voxel     voxel.Voxel
	colour    colour.RGBA
	vis       voxel.Faces
	block     *palette.Block
	fallable  bool
	supported bool
}

// MainCollection is the set of blocks Assign matches against: pal minus
// exclude. It fails on an unknown name or when nothing is left.
func MainCollection(pal *palette.Palette, exclude []string) (palette.Collection, error) {
	if pal == nil {
		return palette.Collection{}, ErrEmptyCollection
	}
	c, err := pal.Collection(exclude...)
	if err != nil {
		return palette.Collection{}, fmt.Errorf("assign: %w", err)
	}
	if c.Len() == 0 {
		return palette.Collection{}, ErrEmptyCollection
	}
	return c, nil
}

// Assign matches every voxel of grid against pal. adj must have been built
// from grid and be a cardinal cache when contextual averaging is on; it may
// be nil otherwise.
func Assign(grid *voxel.Grid, adj *voxel.Adjacency, pal *palette.Palette, cfg Config) (*BlockGrid, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	main, err := MainCollection(pal, cfg.Exclude)
	if err != nil {
		return nil, err
	}
	if cfg.ContextualAveraging && (adj == nil || adj.Mode() != voxel.Cardinal) {
		return nil, fmt.Errorf("assign: contextual averaging: %w", voxel.ErrNotCardinal)
	}
	rep := progress.OrNop(cfg.Progress)

	mainMatch := newMatcher(main, cfg.ErrorWeight, cfg.ContextualAveraging)
	voxels := grid.Voxels()
	slots := make([]slot, len(voxels))
	for i, v := range voxels {
		s := &slots[i]
		s.voxel = v
		s.colour = cfg.quantize(v.Pos, v.Colour)
		s.vis = voxel.AllFacesVisible
		if cfg.ContextualAveraging {
			if s.vis, err = adj.FaceVisibility(v.Pos); err != nil {
				return nil, err
			}
		}
		s.block = mainMatch.pick(s.colour, s.vis)
		s.fallable = pal.IsFallable(s.block.Name)
		s.supported = grid.IsOccupied(v.Pos.Add(down))
		rep.Progress(progressStage, i+1, len(voxels))
	}

	out := newBlockGrid(pal, len(slots))

	// Fallable pass.
	restricted := func(drop func(string) bool) *matcher {
		col := main.Filter(func(n string) bool { return !drop(n) })
		if col.Len() == 0 {
			return mainMatch
		}
		return newMatcher(col, cfg.ErrorWeight, cfg.ContextualAveraging)
	}
	falling := 0
	var noFallable *matcher
	for i := range slots {
		s := &slots[i]
		if !s.fallable {
			continue
		}
		replace := false
		switch cfg.Fallable {
		case FallableDoNothing:
			if !s.supported {
				falling++
			}
		case FallableReplaceFallable:
			replace = true
		case FallableReplaceFalling:
			replace = !s.supported
		}
		if replace {
			if noFallable == nil {
				noFallable = restricted(pal.IsFallable)
			}
			s.block = noFallable.pick(s.colour, s.vis)
		}
	}
	if falling > 0 {
		out.warnings = append(out.warnings, Warning{Kind: WarningFallingBlocks, Count: falling})
	}

	// Grass-top pass. The block above is looked up after the fallable pass
	// so replacements are seen.
	at := make(map[geom.IVec3]*slot, len(slots))
	for i := range slots {
		at[slots[i].voxel.Pos] = &slots[i]
	}
	var noGrass *matcher
	for i := range slots {
		s := &slots[i]
		if !pal.IsGrassLike(s.block.Name) {
			continue
		}
		above, ok := at[s.voxel.Pos.Add(up)]
		if !ok || pal.IsTransparent(above.block.Name) {
			continue
		}
		if noGrass == nil {
			noGrass = restricted(pal.IsGrassLike)
		}
		s.block = noGrass.pick(s.colour, s.vis)
	}

	if cfg.Lighting.Enabled {
		emissive := main.Filter(pal.IsEmissive)
		if emissive.Len() > 0 {
			out.relit = relight(grid, slots, newMatcher(emissive, cfg.ErrorWeight, cfg.ContextualAveraging), cfg.Lighting.Threshold)
		}
	}

	for i := range slots {
		s := &slots[i]
		out.set(Placement{Pos: s.voxel.Pos, Block: s.block.Name, Voxel: s.voxel})
	}
	return out, nil
}
