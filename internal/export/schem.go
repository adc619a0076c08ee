package export

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"voxelsmith.ai/internal/assign"
)

const spongeVersion = 2

type schemFile struct {
	Version       int32            `nbt:"Version"`
	DataVersion   int32            `nbt:"DataVersion"`
	Width         int16            `nbt:"Width"`
	Height        int16            `nbt:"Height"`
	Length        int16            `nbt:"Length"`
	Offset        []int32          `nbt:"Offset"`
	PaletteMax    int32            `nbt:"PaletteMax"`
	Palette       map[string]int32 `nbt:"Palette"`
	BlockData     []byte           `nbt:"BlockData"`
	BlockEntities []nbtEmpty       `nbt:"BlockEntities"`
	Metadata      schemMeta        `nbt:"Metadata"`
}

type schemMeta struct {
	Name   string `nbt:"Name"`
	Author string `nbt:"Author"`
	Date   int64  `nbt:"Date"`
}

// Schem writes Sponge schematic v2 files as read by WorldEdit.
type Schem struct {
	Options
}

func (*Schem) Name() string      { return "schem" }
func (*Schem) Extension() string { return ".schem" }

func (e *Schem) Export(w io.Writer, g *assign.BlockGrid) error {
	// Width, Height and Length are NBT shorts.
	if s := g.Bounds().Size(); g.Len() > 0 && (s.X > math.MaxInt16 || s.Y > math.MaxInt16 || s.Z > math.MaxInt16) {
		return fmt.Errorf("%w: schem is limited to %d per side, got %dx%dx%d", ErrTooLarge, math.MaxInt16, s.X, s.Y, s.Z)
	}
	return writeGzipNBT(w, "Schematic", e.file(g))
}

func (e *Schem) file(g *assign.BlockGrid) schemFile {
	v := newVolume(g)
	pal := make(map[string]int32, len(v.palette))
	for i, name := range v.palette {
		pal[name] = int32(i)
	}
	data := make([]byte, 0, len(v.ids))
	for _, id := range v.ids {
		data = binary.AppendUvarint(data, uint64(id))
	}
	return schemFile{
		Version:       spongeVersion,
		DataVersion:   DataVersion,
		Width:         int16(v.size.X),
		Height:        int16(v.size.Y),
		Length:        int16(v.size.Z),
		Offset:        []int32{int32(v.origin.X), int32(v.origin.Y), int32(v.origin.Z)},
		PaletteMax:    int32(len(v.palette)),
		Palette:       pal,
		BlockData:     data,
		BlockEntities: []nbtEmpty{},
		Metadata: schemMeta{
			Name:   e.name(),
			Author: e.Author,
			Date:   e.now().UnixMilli(),
		},
	}
}
