package export

import (
	"encoding/json"
	"io"

	"voxelsmith.ai/internal/assign"
	"voxelsmith.ai/internal/encoding"
	"voxelsmith.ai/internal/geom"
)

// BlueprintDoc is a plain JSON block structure. Cells are listed in the
// same x + W*(z + L*y) order as the NBT formats and run-length encoded.
type BlueprintDoc struct {
	ID      string    `json:"id"`
	Author  string    `json:"author"`
	Version string    `json:"version"`
	AABB    [2][3]int `json:"aabb"`
	Palette []string  `json:"palette"`
	RLE     string    `json:"rle"`
	Blocks  int       `json:"blocks"`
}

const blueprintVersion = "1"

type Blueprint struct {
	Options
}

func (*Blueprint) Name() string      { return "blueprint" }
func (*Blueprint) Extension() string { return ".blueprint.json" }

func (e *Blueprint) Export(w io.Writer, g *assign.BlockGrid) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(e.doc(g))
}

func (e *Blueprint) doc(g *assign.BlockGrid) BlueprintDoc {
	v := newVolume(g)
	hi := v.origin.Add(v.size).Sub(geom.IVec3{X: 1, Y: 1, Z: 1})
	return BlueprintDoc{
		ID:      e.name(),
		Author:  e.Author,
		Version: blueprintVersion,
		AABB:    [2][3]int{v.origin.Array(), hi.Array()},
		Palette: v.palette,
		RLE:     encoding.EncodeRLE(v.ids),
		Blocks:  v.blocks,
	}
}
