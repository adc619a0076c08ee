// Package snapshot stores rasterized voxel grids so a re-run with the same
// mesh and raster parameters can skip rasterization.
package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"

	"voxelsmith.ai/internal/colour"
	"voxelsmith.ai/internal/geom"
	"voxelsmith.ai/internal/voxel"
)

const Version = 1

// Ext is the file extension of voxel snapshots.
const Ext = ".vox.zst"

var ErrVersion = errors.New("snapshot: unsupported version")

// Header is written as a JSON line ahead of the gob body so tools can read
// it without decoding the grid.
type Header struct {
	Version int    `json:"version"`
	Key     string `json:"key"`
	Voxels  int    `json:"voxels"`
	Min     [3]int `json:"min"`
	Max     [3]int `json:"max"`
}

type SnapshotV1 struct {
	Header Header   `json:"header"`
	Params ParamsV1 `json:"params"`
	Voxels []VoxelV1
}

type ParamsV1 struct {
	ConstraintAxis string `json:"constraint_axis"`
	Size           int    `json:"size"`
	Multisample    int    `json:"multisample"`
	MergePolicy    string `json:"merge_policy"`
	Seed           int64  `json:"seed"`
}

type VoxelV1 struct {
	Pos   [3]int
	RGBA  [4]float32
	Count uint32
}

// FromGrid captures g in position order.
func FromGrid(key string, params ParamsV1, g *voxel.Grid) SnapshotV1 {
	vs := g.Voxels()
	b := g.Bounds()
	snap := SnapshotV1{
		Header: Header{
			Version: Version,
			Key:     key,
			Voxels:  len(vs),
			Min:     b.Min.Array(),
			Max:     b.Max.Array(),
		},
		Params: params,
		Voxels: make([]VoxelV1, len(vs)),
	}
	for i, v := range vs {
		snap.Voxels[i] = VoxelV1{
			Pos:   v.Pos.Array(),
			RGBA:  [4]float32{v.Colour.R, v.Colour.G, v.Colour.B, v.Colour.A},
			Count: v.MergeCount,
		}
	}
	return snap
}

// Grid rebuilds the voxel grid, merge counts included.
func (s SnapshotV1) Grid() *voxel.Grid {
	g := voxel.NewGrid()
	for _, v := range s.Voxels {
		g.SetVoxel(voxel.Voxel{
			Pos:        geom.FromArray(v.Pos),
			Colour:     colour.RGBA{R: v.RGBA[0], G: v.RGBA[1], B: v.RGBA[2], A: v.RGBA[3]},
			MergeCount: v.Count,
		})
	}
	return g
}

// Path is where the snapshot for key lives under dir.
func Path(dir, key string) string {
	name := key
	if len(name) > 32 {
		name = name[:32]
	}
	return filepath.Join(dir, name+Ext)
}

func WriteSnapshot(path string, snap SnapshotV1) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)
	if _, err := readHeader(br); err != nil {
		return snap, err
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	return snap, nil
}

// ReadHeader decodes only the leading header line.
func ReadHeader(path string) (Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return Header{}, err
	}
	defer dec.Close()
	return readHeader(bufio.NewReader(dec))
}

func readHeader(br *bufio.Reader) (Header, error) {
	var h Header
	line, err := br.ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("snapshot header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("snapshot header: %w", err)
	}
	if h.Version != Version {
		return h, fmt.Errorf("%w: %d", ErrVersion, h.Version)
	}
	return h, nil
}
