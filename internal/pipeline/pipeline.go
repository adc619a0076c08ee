// Package pipeline runs one mesh-to-structure conversion end to end:
// import, voxelize (or reuse a snapshot), assign blocks, export, record.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"voxelsmith.ai/internal/assign"
	"voxelsmith.ai/internal/export"
	"voxelsmith.ai/internal/importer"
	"voxelsmith.ai/internal/mesh"
	"voxelsmith.ai/internal/palette"
	"voxelsmith.ai/internal/persistence/indexdb"
	"voxelsmith.ai/internal/persistence/runlog"
	"voxelsmith.ai/internal/persistence/snapshot"
	"voxelsmith.ai/internal/progress"
	"voxelsmith.ai/internal/protocol"
	"voxelsmith.ai/internal/raster"
	"voxelsmith.ai/internal/tuning"
	"voxelsmith.ai/internal/voxel"
)

// Stage names, as reported through progress and the run journal.
const (
	StageImport    = "import"
	StageRasterize = "rasterize"
	StageAdjacency = "adjacency"
	StageAssign    = "assign"
	StageExport    = "export"
	StagePublish   = "publish"
)

// WarningPublishFailed is reported when artifacts could not be uploaded.
// The local output is still complete.
const WarningPublishFailed = "publish-failed"

// RunRecorder receives every finished run. *indexdb.SQLiteIndex is one.
type RunRecorder interface {
	RecordRun(r indexdb.Run)
}

// ProgressHub streams progress for a run. *ws.Hub is one.
type ProgressHub interface {
	StartRun(runID string) progress.Reporter
	FinishRun(done protocol.DoneMsg)
}

// Publisher uploads run artifacts. *objstore.Publisher is one.
type Publisher interface {
	Publish(ctx context.Context, runID string, paths ...string) ([]string, error)
}

// Runner holds the long-lived collaborators of conversions. Every field is
// optional; a zero Runner converts without logging or persistence.
type Runner struct {
	Log     *log.Logger
	Index   RunRecorder
	Hub     ProgressHub
	Journal *runlog.Writer
	// Publisher, when set, receives the output and the snapshot of every
	// successful run.
	Publisher Publisher
	// SnapshotDir enables voxel snapshots keyed by input digest and raster
	// parameters.
	SnapshotDir string
	Now         func() time.Time
}

type Request struct {
	// Input is the mesh file. It may be empty when Mesh is set, in which
	// case snapshots are skipped.
	Input string
	Mesh  mesh.Source
	// Output defaults to Input with the exporter's extension.
	Output  string
	Palette *palette.Palette
	Tuning  tuning.Tuning
}

type Result struct {
	RunID          string
	Voxels         int
	Blocks         int
	DistinctBlocks int
	Relit          int
	Warnings       []assign.Warning
	Output         string
	OutputBytes    int64
	SnapshotPath   string
	SnapshotHit    bool
	Published      []string
	Grid           *assign.BlockGrid
	Elapsed        time.Duration
}

type run struct {
	*Runner
	id       string
	req      Request
	res      *Result
	rep      progress.Reporter
	digest   string
	started  time.Time
	exporter export.Exporter
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Runner) logf(format string, args ...any) {
	if r.Log != nil {
		r.Log.Printf(format, args...)
	}
}

// Run converts req. Warnings are soft failures and land in the result; any
// error aborts the run. Either way the run is recorded and a DONE message
// is sent to the hub.
func (r *Runner) Run(ctx context.Context, req Request) (res Result, err error) {
	rn := &run{Runner: r, id: uuid.NewString(), req: req, res: &res, started: r.now()}
	res.RunID = rn.id
	rn.rep = progress.NewLogReporter(r.Log)
	if r.Hub != nil {
		rn.rep = progress.Multi(rn.rep, r.Hub.StartRun(rn.id))
	}
	defer func() {
		res.Elapsed = r.now().Sub(rn.started)
		rn.finish(err)
	}()

	if err := rn.prepare(); err != nil {
		return res, err
	}
	var src mesh.Source
	if err := rn.stage(ctx, StageImport, func() (map[string]any, error) {
		var err error
		src, err = rn.load()
		if err != nil {
			return nil, err
		}
		return map[string]any{"triangles": mesh.TriangleCount(src)}, nil
	}); err != nil {
		return res, err
	}

	var grid *voxel.Grid
	if err := rn.stage(ctx, StageRasterize, func() (map[string]any, error) {
		var err error
		grid, err = rn.voxelize(ctx, src)
		if err != nil {
			return nil, err
		}
		res.Voxels = grid.Len()
		return map[string]any{"voxels": grid.Len(), "snapshot_hit": res.SnapshotHit}, nil
	}); err != nil {
		return res, err
	}

	cfg, _ := req.Tuning.AssignConfig()
	var adj *voxel.Adjacency
	if cfg.ContextualAveraging {
		if err := rn.stage(ctx, StageAdjacency, func() (map[string]any, error) {
			adj = voxel.BuildAdjacency(grid, voxel.Cardinal)
			return nil, nil
		}); err != nil {
			return res, err
		}
	}

	if err := rn.stage(ctx, StageAssign, func() (map[string]any, error) {
		cfg.Progress = rn.rep
		bg, err := assign.Assign(grid, adj, req.Palette, cfg)
		if err != nil {
			return nil, err
		}
		res.Grid = bg
		res.Blocks = bg.Len()
		res.DistinctBlocks = len(bg.BlocksUsed())
		res.Relit = bg.Relit()
		res.Warnings = bg.Warnings()
		for _, w := range res.Warnings {
			rn.journal(runlog.Event{Stage: StageAssign, Kind: runlog.KindWarning, Detail: map[string]any{"kind": w.Kind, "count": w.Count}})
			r.logf("run %s: warning %s (%d blocks)", rn.id, w.Kind, w.Count)
		}
		return map[string]any{"blocks": res.Blocks, "distinct": res.DistinctBlocks, "relit": res.Relit}, nil
	}); err != nil {
		return res, err
	}

	if err := rn.stage(ctx, StageExport, func() (map[string]any, error) {
		n, err := rn.write(res.Grid)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrExport, err)
		}
		res.OutputBytes = n
		return map[string]any{"bytes": n, "format": rn.exporter.Name()}, nil
	}); err != nil {
		return res, err
	}

	if r.Publisher != nil {
		if err := rn.stage(ctx, StagePublish, func() (map[string]any, error) {
			paths := []string{res.Output}
			if res.SnapshotPath != "" {
				if _, err := os.Stat(res.SnapshotPath); err == nil {
					paths = append(paths, res.SnapshotPath)
				}
			}
			keys, err := r.Publisher.Publish(ctx, rn.id, paths...)
			res.Published = keys
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				res.Warnings = append(res.Warnings, assign.Warning{Kind: WarningPublishFailed, Count: len(paths) - len(keys)})
				r.logf("run %s: publish: %v", rn.id, err)
			}
			return map[string]any{"keys": keys}, nil
		}); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (rn *run) prepare() error {
	if rn.req.Palette == nil {
		return fmt.Errorf("%w: no palette", ErrInvalidRequest)
	}
	if rn.req.Mesh == nil && strings.TrimSpace(rn.req.Input) == "" {
		return fmt.Errorf("%w: no input", ErrInvalidRequest)
	}
	if err := rn.req.Tuning.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTuning, err)
	}
	if _, err := assign.MainCollection(rn.req.Palette, rn.req.Tuning.Assign.Exclude); err != nil {
		return fmt.Errorf("%w: exclude: %w", ErrInvalidTuning, err)
	}
	ex, err := export.New(rn.req.Tuning.Export.Format, export.Options{
		Name:   rn.req.Tuning.Export.Name,
		Author: rn.req.Tuning.Export.Author,
		Now:    rn.Now,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTuning, err)
	}
	rn.exporter = ex

	out := strings.TrimSpace(rn.req.Output)
	if out == "" {
		if rn.req.Input == "" {
			return fmt.Errorf("%w: no output path", ErrInvalidRequest)
		}
		out = strings.TrimSuffix(rn.req.Input, filepath.Ext(rn.req.Input)) + ex.Extension()
	}
	rn.res.Output = out
	return nil
}

// stage runs fn between cancellation checks and journals its outcome.
func (rn *run) stage(ctx context.Context, name string, fn func() (map[string]any, error)) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t0 := time.Now()
	rn.journal(runlog.Event{Stage: name, Kind: runlog.KindStart})
	detail, err := fn()
	ev := runlog.Event{Stage: name, Kind: runlog.KindFinish, DurationMS: time.Since(t0).Milliseconds(), Detail: detail}
	if err != nil {
		ev.Kind = runlog.KindError
		ev.Detail = map[string]any{"error": err.Error()}
	}
	rn.journal(ev)
	if err != nil {
		return err
	}
	return ctx.Err()
}

func (rn *run) journal(e runlog.Event) {
	e.RunID = rn.id
	if err := rn.Journal.Write(e); err != nil {
		rn.logf("run %s: journal: %v", rn.id, err)
	}
}

func (rn *run) load() (mesh.Source, error) {
	if rn.req.Mesh != nil {
		return rn.req.Mesh, nil
	}
	imp, err := importer.Import(rn.req.Input, rn.Log)
	if err != nil {
		return nil, err
	}
	digest, err := inputDigest(imp.Files)
	if err != nil {
		return nil, err
	}
	rn.digest = digest
	return imp.Mesh, nil
}

// inputDigest covers the mesh file and every material library and texture
// it pulled in, so editing any of them changes the snapshot key.
func inputDigest(files []string) (string, error) {
	if len(files) == 1 {
		return fileDigest(files[0])
	}
	h := sha256.New()
	for i, f := range files {
		d, err := fileDigest(f)
		if err != nil {
			return "", err
		}
		if i == 0 {
			fmt.Fprintf(h, "%s\n", d)
			continue
		}
		fmt.Fprintf(h, "%s\x00%s\n", filepath.Base(f), d)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func fileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func snapshotParams(p raster.Params) snapshot.ParamsV1 {
	return snapshot.ParamsV1{
		ConstraintAxis: p.ConstraintAxis.String(),
		Size:           p.Size,
		Multisample:    p.Multisample,
		MergePolicy:    p.MergePolicy.String(),
		Seed:           p.Seed,
	}
}

// SnapshotKey identifies a voxel grid by its input and the parameters that
// shape it. Worker count is deliberately absent.
func SnapshotKey(inputDigest string, p snapshot.ParamsV1) string {
	b, _ := json.Marshal(p)
	h := sha256.New()
	h.Write([]byte(inputDigest))
	h.Write([]byte{'|'})
	h.Write(b)
	return hex.EncodeToString(h.Sum(nil))
}

func (rn *run) voxelize(ctx context.Context, src mesh.Source) (*voxel.Grid, error) {
	params, err := rn.req.Tuning.RasterParams()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTuning, err)
	}
	params.Progress = rn.rep
	sp := snapshotParams(params)

	var path, key string
	if rn.SnapshotDir != "" && rn.digest != "" {
		key = SnapshotKey(rn.digest, sp)
		path = snapshot.Path(rn.SnapshotDir, key)
		rn.res.SnapshotPath = path
		if snap, err := snapshot.ReadSnapshot(path); err == nil && snap.Header.Key == key {
			rn.res.SnapshotHit = true
			rn.logf("run %s: reusing snapshot %s (%s voxels)", rn.id, filepath.Base(path), humanize.Comma(int64(snap.Header.Voxels)))
			return snap.Grid(), nil
		} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
			rn.logf("run %s: snapshot %s unreadable: %v", rn.id, filepath.Base(path), err)
		}
	}

	grid, err := raster.Process(ctx, src, params)
	if err != nil {
		return nil, err
	}
	if path != "" {
		if err := os.MkdirAll(rn.SnapshotDir, 0o755); err == nil {
			err = snapshot.WriteSnapshot(path, snapshot.FromGrid(key, sp, grid))
		}
		if err != nil {
			rn.logf("run %s: write snapshot: %v", rn.id, err)
		}
	}
	return grid, nil
}

// write exports to a temp file beside the output and renames it into place.
func (rn *run) write(g *assign.BlockGrid) (int64, error) {
	out := rn.res.Output
	if dir := filepath.Dir(out); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, err
		}
	}
	tmp := out + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return 0, err
	}
	if err := rn.exporter.Export(f, g); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return 0, err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return 0, err
	}
	if err := os.Rename(tmp, out); err != nil {
		return 0, err
	}
	st, err := os.Stat(out)
	if err != nil {
		return 0, err
	}
	return st.Size(), nil
}

func (rn *run) finish(err error) {
	res := rn.res
	status := protocol.StatusOK
	if err != nil {
		status = protocol.StatusError
	}
	warnings := make([]protocol.WarningRef, 0, len(res.Warnings))
	for _, w := range res.Warnings {
		warnings = append(warnings, protocol.WarningRef{Kind: w.Kind, Count: w.Count})
	}

	if rn.Hub != nil {
		done := protocol.DoneMsg{
			RunID:          rn.id,
			Status:         status,
			Voxels:         res.Voxels,
			Blocks:         res.Blocks,
			DistinctBlocks: res.DistinctBlocks,
			Warnings:       warnings,
		}
		if err != nil {
			done.Code = Code(err)
			done.Message = err.Error()
		} else {
			done.Output = res.Output
		}
		rn.Hub.FinishRun(done)
	}

	if rn.Index != nil {
		r := indexdb.Run{
			ID:            rn.id,
			StartedAt:     rn.started,
			FinishedAt:    rn.started.Add(res.Elapsed),
			Input:         rn.req.Input,
			InputDigest:   rn.digest,
			Tuning:        rn.req.Tuning,
			Voxels:        res.Voxels,
			Blocks:        res.Blocks,
			DistinctBlock: res.DistinctBlocks,
			Warnings:      warnings,
			Output:        res.Output,
			Format:        rn.req.Tuning.Export.Format,
			SnapshotPath:  res.SnapshotPath,
			SnapshotHit:   res.SnapshotHit,
			Status:        status,
		}
		if rn.req.Palette != nil {
			r.PaletteDigest = rn.req.Palette.Digest
		}
		if err != nil {
			r.Error = err.Error()
		}
		rn.Index.RecordRun(r)
	}

	if err != nil {
		rn.logf("run %s failed after %s: %v", rn.id, res.Elapsed.Round(time.Millisecond), err)
		return
	}
	rn.logf("run %s: %s voxels -> %s blocks (%d distinct), wrote %s (%s) in %s",
		rn.id, humanize.Comma(int64(res.Voxels)), humanize.Comma(int64(res.Blocks)), res.DistinctBlocks,
		res.Output, humanize.Bytes(uint64(res.OutputBytes)), res.Elapsed.Round(time.Millisecond))
}
