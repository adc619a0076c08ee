// Package export writes assigned block grids to structure files.
package export

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"voxelsmith.ai/internal/assign"
	"voxelsmith.ai/internal/geom"
)

// Air fills every cell of the bounding volume that holds no block.
const Air = "minecraft:air"

// DataVersion is the Minecraft data version written to NBT containers (1.17.1).
const DataVersion = 2730

var (
	ErrUnknownFormat = errors.New("export: unknown format")
	// ErrTooLarge is returned when a structure does not fit a format's
	// size fields.
	ErrTooLarge = errors.New("export: structure too large for format")
)

type Exporter interface {
	Name() string
	Extension() string
	Export(w io.Writer, g *assign.BlockGrid) error
}

// Options carries the metadata every format records.
type Options struct {
	Name   string
	Author string
	// Now defaults to time.Now.
	Now func() time.Time
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o Options) name() string {
	if o.Name == "" {
		return "voxelsmith"
	}
	return o.Name
}

var formats = map[string]func(Options) Exporter{
	"litematic": func(o Options) Exporter { return &Litematic{Options: o} },
	"schem":     func(o Options) Exporter { return &Schem{Options: o} },
	"blueprint": func(o Options) Exporter { return &Blueprint{Options: o} },
}

// New returns the exporter registered under format.
func New(format string, opts Options) (Exporter, error) {
	f, ok := formats[strings.ToLower(strings.TrimSpace(format))]
	if !ok {
		return nil, fmt.Errorf("%w %q (have %s)", ErrUnknownFormat, format, strings.Join(Formats(), ", "))
	}
	return f(opts), nil
}

func Formats() []string {
	out := make([]string, 0, len(formats))
	for k := range formats {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// volume is the dense form of a block grid: every cell of the bounds, air
// included, indexed x + W*(z + L*y).
type volume struct {
	origin  geom.IVec3
	size    geom.IVec3
	palette []string
	ids     []uint32
	blocks  int
}

func newVolume(g *assign.BlockGrid) volume {
	v := volume{palette: []string{Air}}
	b := g.Bounds()
	if g.Len() == 0 || b.IsEmpty() {
		v.size = geom.IVec3{X: 1, Y: 1, Z: 1}
		v.ids = make([]uint32, 1)
		return v
	}
	v.origin = b.Min
	v.size = b.Size()

	index := map[string]uint32{Air: 0}
	for _, name := range g.BlocksUsed() {
		if _, ok := index[name]; ok {
			continue
		}
		index[name] = uint32(len(v.palette))
		v.palette = append(v.palette, name)
	}
	v.ids = make([]uint32, v.size.X*v.size.Y*v.size.Z)
	for _, p := range g.Blocks() {
		v.ids[v.index(p.Pos.Sub(v.origin))] = index[p.Block]
		v.blocks++
	}
	return v
}

func (v volume) index(rel geom.IVec3) int {
	return rel.X + v.size.X*(rel.Z+v.size.Z*rel.Y)
}
