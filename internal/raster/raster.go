// Package raster turns triangle meshes into voxel grids by casting a ray
// along every lattice line, on all three axes, through each triangle.
package raster

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r3"

	"voxelsmith.ai/internal/geom"
	"voxelsmith.ai/internal/mesh"
	"voxelsmith.ai/internal/progress"
	"voxelsmith.ai/internal/voxel"
)

var (
	ErrInvalidSize = errors.New("raster: size must be at least 2")
	ErrInvalidAxis = errors.New("raster: constraint axis must be x, y or z")
)

const progressStage = "rasterize"

type Params struct {
	// ConstraintAxis is the axis the mesh is scaled to span Size voxels on.
	ConstraintAxis geom.Axis
	Size           int
	// Multisample is the number of extra jittered colour samples per hit.
	Multisample int
	MergePolicy voxel.MergePolicy
	// Workers > 1 rasterizes contiguous triangle shards in parallel.
	Workers int
	Seed    int64

	Progress progress.Reporter
}

func (p Params) Validate() error {
	if p.Size < 2 {
		return fmt.Errorf("%w (got %d)", ErrInvalidSize, p.Size)
	}
	if !p.ConstraintAxis.Valid() {
		return ErrInvalidAxis
	}
	if p.Multisample < 0 {
		return fmt.Errorf("raster: multisample must be >= 0 (got %d)", p.Multisample)
	}
	return nil
}

// Fit returns the uniform scale and offset that map src onto the lattice:
// centred on the origin, Size voxels along the constraint axis, shifted by
// half a voxel on that axis when Size is even.
//
// A mesh with no extent along the constraint axis cannot be fitted to
// Size; it is centred at scale 1 instead, so the result is one layer whose
// footprint follows the mesh's own units (a 100-unit plane gives about
// 100×100 voxels whatever Size is). Choose an axis the mesh spans to
// control resolution.
func Fit(src mesh.Source, axis geom.Axis, size int) (scale float64, offset r3.Vec, ok bool) {
	b, ok := mesh.Bounds(src)
	if !ok {
		return 0, r3.Vec{}, false
	}
	centre := r3.Scale(0.5, r3.Add(b.Min, b.Max))
	extent := mesh.Component(r3.Sub(b.Max, b.Min), axis)
	if extent <= 1e-12 {
		// Flat along the constraint axis: there is nothing to fit, keep the
		// mesh at unit scale in a single layer.
		return 1, r3.Scale(-1, centre), true
	}
	scale = float64(size-1) / extent
	offset = r3.Scale(-scale, centre)
	if size%2 == 0 {
		offset = vecWith(axis, offset, mesh.Component(offset, axis)+0.5)
	}
	return scale, offset, true
}

type triRef struct {
	section int
	index   int
}

// Process voxelizes src. The caller's mesh is never modified.
func Process(ctx context.Context, src mesh.Source, p Params) (*voxel.Grid, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	rep := progress.OrNop(p.Progress)

	scale, offset, ok := Fit(src, p.ConstraintAxis, p.Size)
	if !ok {
		return voxel.NewGrid(), nil
	}
	m := mesh.Transformed(src, scale, offset)
	sections := m.Sections()

	var refs []triRef
	for si, s := range sections {
		for ti := range s.Triangles {
			refs = append(refs, triRef{section: si, index: ti})
		}
	}
	total := len(refs)

	workers := p.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > total {
		workers = max(total, 1)
	}

	var done counter
	shards := make([]*voxel.Grid, workers)
	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		w := w
		lo := w * total / workers
		hi := (w + 1) * total / workers
		g.Go(func() error {
			grid := voxel.NewGrid()
			for i, ref := range refs[lo:hi] {
				if i%256 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				sec := &sections[ref.section]
				rasterizeTriangle(grid, &sec.Material, &sec.Triangles[ref.index], ref, p)
				rep.Progress(progressStage, done.inc(), total)
			}
			shards[w] = grid
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := shards[0]
	for _, s := range shards[1:] {
		out.Merge(s, p.MergePolicy)
	}
	return out, nil
}

func rasterizeTriangle(grid *voxel.Grid, mat *mesh.Material, t *mesh.Triangle, ref triRef, p Params) {
	rng := triangleSeed(p.Seed, ref.section, ref.index)
	emit := func(h hit) {
		grid.AddVoxel(h.pos, sampleHit(mat, t, h, p.Multisample, &rng), p.MergePolicy)
	}
	for a := geom.AxisX; a <= geom.AxisZ; a++ {
		scanAxis(t, a, false, emit)
	}
}
