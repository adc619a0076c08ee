package assign

import (
	"sort"

	"voxelsmith.ai/internal/geom"
	"voxelsmith.ai/internal/palette"
	"voxelsmith.ai/internal/voxel"
)

const WarningFallingBlocks = "falling-blocks"

// Warning is a soft failure carried alongside an otherwise usable result.
type Warning struct {
	Kind  string
	Count int
}

// Placement is one voxel and the block chosen for it.
type Placement struct {
	Pos   geom.IVec3
	Block string
	Voxel voxel.Voxel
}

// BlockGrid maps voxel positions to block names.
type BlockGrid struct {
	placements []Placement
	index      map[geom.IVec3]int
	bounds     geom.Bounds
	palette    *palette.Palette
	warnings   []Warning
	relit      int
}

func newBlockGrid(pal *palette.Palette, n int) *BlockGrid {
	return &BlockGrid{
		placements: make([]Placement, 0, n),
		index:      make(map[geom.IVec3]int, n),
		bounds:     geom.EmptyBounds(),
		palette:    pal,
	}
}

// NewBlockGrid builds a grid directly from placements; later entries for
// the same position win.
func NewBlockGrid(pal *palette.Palette, ps []Placement) *BlockGrid {
	g := newBlockGrid(pal, len(ps))
	for _, p := range ps {
		g.set(p)
	}
	sort.Slice(g.placements, func(i, j int) bool {
		return g.placements[i].Pos.Less(g.placements[j].Pos)
	})
	for i, p := range g.placements {
		g.index[p.Pos] = i
	}
	return g
}

func (g *BlockGrid) set(p Placement) {
	if i, ok := g.index[p.Pos]; ok {
		g.placements[i] = p
		return
	}
	g.index[p.Pos] = len(g.placements)
	g.placements = append(g.placements, p)
	g.bounds = g.bounds.Extend(p.Pos)
}

func (g *BlockGrid) Len() int { return len(g.placements) }

// Blocks returns the placements in position order (y, then z, then x).
func (g *BlockGrid) Blocks() []Placement {
	return append([]Placement(nil), g.placements...)
}

func (g *BlockGrid) BlockAt(pos geom.IVec3) (string, bool) {
	i, ok := g.index[pos]
	if !ok {
		return "", false
	}
	return g.placements[i].Block, true
}

// BlocksUsed returns the distinct block names, sorted.
func (g *BlockGrid) BlocksUsed() []string {
	seen := map[string]bool{}
	var out []string
	for _, p := range g.placements {
		if !seen[p.Block] {
			seen[p.Block] = true
			out = append(out, p.Block)
		}
	}
	sort.Strings(out)
	return out
}

func (g *BlockGrid) Bounds() geom.Bounds { return g.bounds }

func (g *BlockGrid) Palette() *palette.Palette { return g.palette }

func (g *BlockGrid) Warnings() []Warning {
	return append([]Warning(nil), g.warnings...)
}

// Relit is the number of blocks the lighting pass swapped for emissive ones.
func (g *BlockGrid) Relit() int { return g.relit }
