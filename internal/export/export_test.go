package export

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"voxelsmith.ai/internal/assign"
	"voxelsmith.ai/internal/encoding"
	"voxelsmith.ai/internal/geom"
	"voxelsmith.ai/internal/palette"
)

const (
	stone = "minecraft:stone"
	dirt  = "minecraft:dirt"
)

var fixedNow = func() time.Time { return time.UnixMilli(1700000000000) }

func smallGrid() *assign.BlockGrid {
	return assign.NewBlockGrid(palette.Default(), []assign.Placement{
		{Pos: geom.IVec3{X: 2, Y: 5, Z: 7}, Block: stone},
		{Pos: geom.IVec3{X: 3, Y: 5, Z: 7}, Block: dirt},
		{Pos: geom.IVec3{X: 2, Y: 6, Z: 8}, Block: stone},
	})
}

// smallGrid in x + W*(z + L*y) order against the palette [air, dirt, stone].
var smallIDs = []uint32{2, 1, 0, 0, 0, 0, 2, 0}

// longIndex reads entry i of a Litematica long array.
func longIndex(longs []int64, stride, i int) uint32 {
	var v uint64
	for b := 0; b < stride; b++ {
		p := i*stride + b
		if uint64(longs[p/64])>>(p%64)&1 == 1 {
			v |= 1 << b
		}
	}
	return uint32(v)
}

func TestNew_Registry(t *testing.T) {
	for _, name := range Formats() {
		e, err := New(name, Options{})
		if err != nil || e.Name() != name {
			t.Fatalf("New(%q): %v", name, err)
		}
	}
	if e, err := New(" Litematic ", Options{}); err != nil || e.Extension() != ".litematic" {
		t.Fatalf("case-insensitive lookup failed: %v", err)
	}
	if _, err := New("obj", Options{}); !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("expected ErrUnknownFormat, got %v", err)
	}
}

func TestVolume_Order(t *testing.T) {
	v := newVolume(smallGrid())
	if v.size != (geom.IVec3{X: 2, Y: 2, Z: 2}) || v.origin != (geom.IVec3{X: 2, Y: 5, Z: 7}) {
		t.Fatalf("size=%+v origin=%+v", v.size, v.origin)
	}
	if len(v.palette) != 3 || v.palette[0] != Air || v.palette[1] != dirt || v.palette[2] != stone {
		t.Fatalf("palette: %v", v.palette)
	}
	for i, id := range smallIDs {
		if v.ids[i] != id {
			t.Fatalf("ids=%v want %v", v.ids, smallIDs)
		}
	}
	if v.blocks != 3 {
		t.Fatalf("blocks=%d", v.blocks)
	}
}

func TestLitematic_Export(t *testing.T) {
	var buf bytes.Buffer
	e := &Litematic{Options: Options{Name: "hut", Author: "me", Now: fixedNow}}
	if err := e.Export(&buf, smallGrid()); err != nil {
		t.Fatalf("export: %v", err)
	}
	var f litematicFile
	if _, err := readGzipNBT(&buf, &f); err != nil {
		t.Fatalf("read: %v", err)
	}
	if f.Version != litematicVersion || f.MinecraftDataVersion != DataVersion {
		t.Fatalf("versions: %d %d", f.Version, f.MinecraftDataVersion)
	}
	if f.Metadata.TotalBlocks != 3 || f.Metadata.TotalVolume != 8 || f.Metadata.TimeCreated != 1700000000000 || f.Metadata.Author != "me" {
		t.Fatalf("metadata: %+v", f.Metadata)
	}
	r, ok := f.Regions["hut"]
	if !ok {
		t.Fatalf("region missing: %v", f.Regions)
	}
	if r.Size != (nbtVec{X: 2, Y: 2, Z: 2}) || len(r.BlockStatePalette) != 3 || r.BlockStatePalette[0].Name != Air {
		t.Fatalf("region: %+v", r)
	}
	if len(r.BlockStates) != 1 || r.BlockStates[0] != 2|1<<2|2<<12 {
		t.Fatalf("block states: %v", r.BlockStates)
	}
}

func TestLitematic_MultiLongOrder(t *testing.T) {
	var ps []assign.Placement
	for x := 0; x < 40; x++ {
		block := stone
		if x == 35 {
			block = dirt
		}
		ps = append(ps, assign.Placement{Pos: geom.IVec3{X: x}, Block: block})
	}
	f, err := (&Litematic{}).file(assign.NewBlockGrid(palette.Default(), ps))
	if err != nil {
		t.Fatalf("file: %v", err)
	}
	r := f.Regions["voxelsmith"]
	if len(r.BlockStates) != 2 {
		t.Fatalf("expected 2 longs, got %d", len(r.BlockStates))
	}
	for x := 0; x < 40; x++ {
		want := uint32(2)
		if x == 35 {
			want = 1
		}
		if got := longIndex(r.BlockStates, 2, x); got != want {
			t.Fatalf("x=%d: got %d want %d", x, got, want)
		}
	}
}

func TestLitematic_EmptyGrid(t *testing.T) {
	f, err := (&Litematic{}).file(assign.NewBlockGrid(palette.Default(), nil))
	if err != nil {
		t.Fatalf("file: %v", err)
	}
	r := f.Regions["voxelsmith"]
	if r.Size != (nbtVec{X: 1, Y: 1, Z: 1}) || len(r.BlockStates) != 1 || r.BlockStates[0] != 0 {
		t.Fatalf("empty region: %+v", r)
	}
}

func TestSchem_Export(t *testing.T) {
	var buf bytes.Buffer
	if err := (&Schem{Options: Options{Now: fixedNow}}).Export(&buf, smallGrid()); err != nil {
		t.Fatalf("export: %v", err)
	}
	var f schemFile
	root, err := readGzipNBT(&buf, &f)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if root != "Schematic" || f.Version != spongeVersion {
		t.Fatalf("root=%q version=%d", root, f.Version)
	}
	if f.Width != 2 || f.Height != 2 || f.Length != 2 || f.PaletteMax != 3 {
		t.Fatalf("dims: %+v", f)
	}
	if f.Palette[Air] != 0 || f.Palette[dirt] != 1 || f.Palette[stone] != 2 {
		t.Fatalf("palette: %v", f.Palette)
	}
	if len(f.Offset) != 3 || f.Offset[0] != 2 || f.Offset[1] != 5 || f.Offset[2] != 7 {
		t.Fatalf("offset: %v", f.Offset)
	}
	var ids []uint32
	for data := f.BlockData; len(data) > 0; {
		v, n := binary.Uvarint(data)
		if n <= 0 {
			t.Fatalf("bad varint")
		}
		ids = append(ids, uint32(v))
		data = data[n:]
	}
	if len(ids) != len(smallIDs) {
		t.Fatalf("ids: %v", ids)
	}
	for i := range ids {
		if ids[i] != smallIDs[i] {
			t.Fatalf("ids=%v want %v", ids, smallIDs)
		}
	}
}

func TestSchem_RejectsOversizedSide(t *testing.T) {
	line := func(x int) *assign.BlockGrid {
		return assign.NewBlockGrid(palette.Default(), []assign.Placement{
			{Pos: geom.IVec3{X: 0}, Block: stone},
			{Pos: geom.IVec3{X: x}, Block: stone},
		})
	}
	e := &Schem{Options: Options{Now: fixedNow}}
	if err := e.Export(&bytes.Buffer{}, line(32767)); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("width 32768: expected ErrTooLarge, got %v", err)
	}

	var buf bytes.Buffer
	if err := e.Export(&buf, line(32766)); err != nil {
		t.Fatalf("width 32767: %v", err)
	}
	var f schemFile
	if _, err := readGzipNBT(&buf, &f); err != nil {
		t.Fatalf("read: %v", err)
	}
	if f.Width != 32767 || f.Height != 1 || f.Length != 1 {
		t.Fatalf("dims: %dx%dx%d", f.Width, f.Height, f.Length)
	}
}

func TestBlueprint_Export(t *testing.T) {
	var buf bytes.Buffer
	if err := (&Blueprint{Options: Options{Name: "hut"}}).Export(&buf, smallGrid()); err != nil {
		t.Fatalf("export: %v", err)
	}
	var doc BlueprintDoc
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("json: %v", err)
	}
	if doc.ID != "hut" || doc.Blocks != 3 || doc.AABB != [2][3]int{{2, 5, 7}, {3, 6, 8}} {
		t.Fatalf("doc: %+v", doc)
	}
	ids, err := encoding.DecodeRLE(doc.RLE, 8)
	if err != nil {
		t.Fatalf("rle: %v", err)
	}
	for i := range smallIDs {
		if ids[i] != smallIDs[i] {
			t.Fatalf("ids=%v want %v", ids, smallIDs)
		}
	}
}
