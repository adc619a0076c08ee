package export

import (
	"fmt"
	"io"
	"slices"

	"voxelsmith.ai/internal/assign"
	"voxelsmith.ai/internal/encoding"
)

const litematicVersion = 5

type litematicFile struct {
	Version              int32                      `nbt:"Version"`
	MinecraftDataVersion int32                      `nbt:"MinecraftDataVersion"`
	Metadata             litematicMeta              `nbt:"Metadata"`
	Regions              map[string]litematicRegion `nbt:"Regions"`
}

type litematicMeta struct {
	Name          string `nbt:"Name"`
	Author        string `nbt:"Author"`
	Description   string `nbt:"Description"`
	RegionCount   int32  `nbt:"RegionCount"`
	TotalVolume   int32  `nbt:"TotalVolume"`
	TotalBlocks   int32  `nbt:"TotalBlocks"`
	TimeCreated   int64  `nbt:"TimeCreated"`
	TimeModified  int64  `nbt:"TimeModified"`
	EnclosingSize nbtVec `nbt:"EnclosingSize"`
}

type litematicRegion struct {
	Position          nbtVec           `nbt:"Position"`
	Size              nbtVec           `nbt:"Size"`
	BlockStatePalette []litematicState `nbt:"BlockStatePalette"`
	BlockStates       []int64          `nbt:"BlockStates"`
	TileEntities      []nbtEmpty       `nbt:"TileEntities"`
	Entities          []nbtEmpty       `nbt:"Entities"`
	PendingBlockTicks []nbtEmpty       `nbt:"PendingBlockTicks"`
	PendingFluidTicks []nbtEmpty       `nbt:"PendingFluidTicks"`
}

type litematicState struct {
	Name string `nbt:"Name"`
}

// Litematic writes Litematica schematics: one region, packed block states.
type Litematic struct {
	Options
}

func (*Litematic) Name() string      { return "litematic" }
func (*Litematic) Extension() string { return ".litematic" }

func (e *Litematic) Export(w io.Writer, g *assign.BlockGrid) error {
	f, err := e.file(g)
	if err != nil {
		return err
	}
	return writeGzipNBT(w, "", f)
}

func (e *Litematic) file(g *assign.BlockGrid) (litematicFile, error) {
	v := newVolume(g)
	packed, err := encoding.Pack(v.ids, max(len(v.palette), 2))
	if err != nil {
		return litematicFile{}, fmt.Errorf("litematic: %w", err)
	}
	// Litematica reads index 0 from the low bits of the first long.
	longs := encoding.Longs(packed)
	slices.Reverse(longs)

	states := make([]litematicState, len(v.palette))
	for i, name := range v.palette {
		states[i] = litematicState{Name: name}
	}
	size := nbtVec{X: int32(v.size.X), Y: int32(v.size.Y), Z: int32(v.size.Z)}
	now := e.now().UnixMilli()
	return litematicFile{
		Version:              litematicVersion,
		MinecraftDataVersion: DataVersion,
		Metadata: litematicMeta{
			Name:          e.name(),
			Author:        e.Author,
			RegionCount:   1,
			TotalVolume:   int32(len(v.ids)),
			TotalBlocks:   int32(v.blocks),
			TimeCreated:   now,
			TimeModified:  now,
			EnclosingSize: size,
		},
		Regions: map[string]litematicRegion{
			e.name(): {
				Size:              size,
				BlockStatePalette: states,
				BlockStates:       longs,
				TileEntities:      []nbtEmpty{},
				Entities:          []nbtEmpty{},
				PendingBlockTicks: []nbtEmpty{},
				PendingFluidTicks: []nbtEmpty{},
			},
		},
	}, nil
}
