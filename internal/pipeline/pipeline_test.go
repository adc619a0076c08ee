package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"gonum.org/v1/gonum/spatial/r3"

	"voxelsmith.ai/internal/assign"
	"voxelsmith.ai/internal/colour"
	"voxelsmith.ai/internal/mesh"
	"voxelsmith.ai/internal/palette"
	"voxelsmith.ai/internal/persistence/indexdb"
	"voxelsmith.ai/internal/persistence/runlog"
	"voxelsmith.ai/internal/progress"
	"voxelsmith.ai/internal/protocol"
	"voxelsmith.ai/internal/tuning"
)

const cubeOBJ = `v -1 -1 -1
v 1 -1 -1
v 1 1 -1
v -1 1 -1
v -1 -1 1
v 1 -1 1
v 1 1 1
v -1 1 1
f 1 4 3 2
f 5 6 7 8
f 1 2 6 5
f 4 8 7 3
f 1 5 8 4
f 2 3 7 6
`

type fakeHub struct {
	mu     sync.Mutex
	stages map[string]bool
	done   []protocol.DoneMsg
}

func (h *fakeHub) StartRun(string) progress.Reporter {
	return progress.Func(func(stage string, _, _ int) {
		h.mu.Lock()
		defer h.mu.Unlock()
		if h.stages == nil {
			h.stages = map[string]bool{}
		}
		h.stages[stage] = true
	})
}

func (h *fakeHub) FinishRun(d protocol.DoneMsg) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.done = append(h.done, d)
}

type fakeIndex struct {
	runs []indexdb.Run
}

func (f *fakeIndex) RecordRun(r indexdb.Run) { f.runs = append(f.runs, r) }

func smallTuning() tuning.Tuning {
	t := tuning.Defaults()
	t.Raster.Size = 8
	return t
}

func writeCube(t *testing.T, dir string) string {
	t.Helper()
	p := filepath.Join(dir, "cube.obj")
	if err := os.WriteFile(p, []byte(cubeOBJ), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestRunner_ConvertsAndReusesSnapshot(t *testing.T) {
	dir := t.TempDir()
	input := writeCube(t, dir)
	hub := &fakeHub{}
	idx := &fakeIndex{}
	journal := runlog.NewWriter(filepath.Join(dir, "journal"), "runs")
	r := &Runner{Hub: hub, Index: idx, Journal: journal, SnapshotDir: filepath.Join(dir, "snapshots")}
	req := Request{Input: input, Palette: palette.Default(), Tuning: smallTuning()}

	first, err := r.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.Voxels == 0 || first.Blocks != first.Voxels || first.DistinctBlocks == 0 {
		t.Fatalf("first result: %+v", first)
	}
	if first.SnapshotHit || first.SnapshotPath == "" {
		t.Fatalf("first run should write a snapshot: %+v", first)
	}
	if first.Output != filepath.Join(dir, "cube.litematic") {
		t.Fatalf("output path: %s", first.Output)
	}
	st, err := os.Stat(first.Output)
	if err != nil || st.Size() != first.OutputBytes || first.OutputBytes == 0 {
		t.Fatalf("output file: %v size=%d want %d", err, st.Size(), first.OutputBytes)
	}
	if _, err := os.Stat(first.Output + ".tmp"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("temp file left behind: %v", err)
	}

	second, err := r.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !second.SnapshotHit || second.Voxels != first.Voxels || second.Blocks != first.Blocks {
		t.Fatalf("second result: %+v", second)
	}
	if second.RunID == first.RunID {
		t.Fatalf("run ids must differ")
	}

	if len(hub.done) != 2 || hub.done[0].Status != protocol.StatusOK || hub.done[1].Output != first.Output {
		t.Fatalf("done messages: %+v", hub.done)
	}
	if !hub.stages[StageRasterize] || !hub.stages[StageAssign] {
		t.Fatalf("progress stages: %v", hub.stages)
	}
	if len(idx.runs) != 2 || !idx.runs[1].SnapshotHit || idx.runs[0].InputDigest == "" || idx.runs[0].PaletteDigest == "" {
		t.Fatalf("index runs: %+v", idx.runs)
	}

	if err := journal.Close(); err != nil {
		t.Fatalf("close journal: %v", err)
	}
	files, _ := filepath.Glob(filepath.Join(dir, "journal", "*.jsonl.zst"))
	var events []runlog.Event
	for _, f := range files {
		evs, err := runlog.ReadEvents(f)
		if err != nil {
			t.Fatalf("read journal: %v", err)
		}
		events = append(events, evs...)
	}
	finished := map[string]int{}
	for _, e := range events {
		if e.Kind == runlog.KindFinish {
			finished[e.Stage]++
		}
	}
	for _, s := range []string{StageImport, StageRasterize, StageAdjacency, StageAssign, StageExport} {
		if finished[s] != 2 {
			t.Fatalf("stage %s finished %d times, want 2 (%v)", s, finished[s], finished)
		}
	}
}

func TestRunner_MaterialEditInvalidatesSnapshot(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "cube.obj")
	mtl := filepath.Join(dir, "cube.mtl")
	if err := os.WriteFile(input, []byte("mtllib cube.mtl\nusemtl paint\n"+cubeOBJ), 0o644); err != nil {
		t.Fatal(err)
	}
	writeMTL := func(kd string) {
		t.Helper()
		if err := os.WriteFile(mtl, []byte("newmtl paint\nKd "+kd+"\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	r := &Runner{SnapshotDir: filepath.Join(dir, "snapshots")}
	req := Request{Input: input, Palette: palette.Default(), Tuning: smallTuning()}
	run := func() Result {
		t.Helper()
		res, err := r.Run(context.Background(), req)
		if err != nil {
			t.Fatalf("run: %v", err)
		}
		return res
	}

	writeMTL("1 0 0")
	first := run()
	if first.SnapshotHit {
		t.Fatalf("first run hit a snapshot")
	}
	if again := run(); !again.SnapshotHit {
		t.Fatalf("unchanged inputs should reuse the snapshot")
	}

	writeMTL("0 0 1")
	edited := run()
	if edited.SnapshotHit || edited.SnapshotPath == first.SnapshotPath {
		t.Fatalf("edited material reused snapshot %s", edited.SnapshotPath)
	}
}

func TestRunner_InMemoryMesh(t *testing.T) {
	dir := t.TempDir()
	red := colour.RGBA{R: 1, A: 1}
	tri := mesh.Triangle{Positions: [3]r3.Vec{{X: 0, Y: 0, Z: 0}, {X: 4, Y: 0, Z: 0}, {X: 0, Y: 4, Z: 0}}}
	m := mesh.New(mesh.Section{Material: mesh.Material{Kind: mesh.MaterialSolid, Colour: red}, Triangles: []mesh.Triangle{tri}})

	tu := smallTuning()
	tu.Export.Format = "schem"
	tu.Assign.ContextualAveraging = false
	out := filepath.Join(dir, "out", "tri.schem")
	res, err := (&Runner{SnapshotDir: dir}).Run(context.Background(), Request{Mesh: m, Output: out, Palette: palette.Default(), Tuning: tu})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.SnapshotPath != "" || res.SnapshotHit {
		t.Fatalf("in-memory meshes are not snapshotted: %+v", res)
	}
	if res.Output != out || res.Blocks == 0 {
		t.Fatalf("result: %+v", res)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("output: %v", err)
	}
}

func TestRunner_Failures(t *testing.T) {
	dir := t.TempDir()
	input := writeCube(t, dir)
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	badFormat := smallTuning()
	badFormat.Export.Format = "fbx"
	badSize := smallTuning()
	badSize.Raster.Size = 1
	unknownExclude := smallTuning()
	unknownExclude.Assign.Exclude = []string{"minecraft:no_such_block"}
	excludeAll := smallTuning()
	excludeAll.Assign.Exclude = palette.Default().Names()

	cases := []struct {
		name string
		ctx  context.Context
		req  Request
		code string
	}{
		{"cancelled", cancelled, Request{Input: input, Palette: palette.Default(), Tuning: smallTuning()}, protocol.ErrCancelled},
		{"unknown format", context.Background(), Request{Input: input, Palette: palette.Default(), Tuning: badFormat}, protocol.ErrInvalidConfig},
		{"bad size", context.Background(), Request{Input: input, Palette: palette.Default(), Tuning: badSize}, protocol.ErrInvalidConfig},
		{"unknown exclusion", context.Background(), Request{Input: input, Palette: palette.Default(), Tuning: unknownExclude}, protocol.ErrInvalidConfig},
		{"everything excluded", context.Background(), Request{Input: input, Palette: palette.Default(), Tuning: excludeAll}, protocol.ErrInvalidConfig},
		{"no palette", context.Background(), Request{Input: input, Tuning: smallTuning()}, protocol.ErrInvalidInput},
		{"missing input", context.Background(), Request{Input: filepath.Join(dir, "nope.obj"), Palette: palette.Default(), Tuning: smallTuning()}, protocol.ErrInvalidInput},
		{"bad extension", context.Background(), Request{Input: filepath.Join(dir, "cube.fbx"), Output: filepath.Join(dir, "x.litematic"), Palette: palette.Default(), Tuning: smallTuning()}, protocol.ErrInvalidInput},
	}
	_ = os.WriteFile(filepath.Join(dir, "cube.fbx"), []byte("x"), 0o644)

	for _, tc := range cases {
		hub := &fakeHub{}
		idx := &fakeIndex{}
		_, err := (&Runner{Hub: hub, Index: idx}).Run(tc.ctx, tc.req)
		if err == nil {
			t.Fatalf("%s: expected an error", tc.name)
		}
		if got := Code(err); got != tc.code {
			t.Fatalf("%s: code %s, want %s (%v)", tc.name, got, tc.code, err)
		}
		if len(hub.done) != 1 || hub.done[0].Status != protocol.StatusError || hub.done[0].Code != tc.code {
			t.Fatalf("%s: done: %+v", tc.name, hub.done)
		}
		if len(idx.runs) != 1 || idx.runs[0].Status != protocol.StatusError || idx.runs[0].Error == "" {
			t.Fatalf("%s: index: %+v", tc.name, idx.runs)
		}
		if hub.stages[StageRasterize] {
			t.Fatalf("%s: failed only after rasterizing", tc.name)
		}
	}
}

func TestCode(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("x: %w", context.DeadlineExceeded), protocol.ErrCancelled},
		{assign.ErrEmptyCollection, protocol.ErrEmptyPalette},
		{fmt.Errorf("%w: disk full", ErrExport), protocol.ErrExport},
		{errors.New("boom"), protocol.ErrInternal},
	}
	for _, tc := range cases {
		got := Code(tc.err)
		if got != tc.want {
			t.Fatalf("Code(%v) = %s, want %s", tc.err, got, tc.want)
		}
		if !protocol.IsKnownCode(got) {
			t.Fatalf("unknown code for %v", tc.err)
		}
	}
}

func TestSnapshotKey_TracksGridShape(t *testing.T) {
	tu := smallTuning()
	p, _ := tu.RasterParams()
	a := SnapshotKey("abc", snapshotParams(p))
	p.Size++
	b := SnapshotKey("abc", snapshotParams(p))
	p.Size--
	p.Workers = 8
	c := SnapshotKey("abc", snapshotParams(p))
	if a == b || a != c || strings.TrimSpace(a) == "" {
		t.Fatalf("keys: %s %s %s", a, b, c)
	}
}

type fakePublisher struct {
	paths []string
	fail  bool
}

func (p *fakePublisher) Publish(_ context.Context, runID string, paths ...string) ([]string, error) {
	p.paths = append(p.paths, paths...)
	if p.fail {
		return nil, errors.New("bucket unreachable")
	}
	keys := make([]string, len(paths))
	for i, lp := range paths {
		keys[i] = runID + "/" + filepath.Base(lp)
	}
	return keys, nil
}

func TestRunner_Publish(t *testing.T) {
	dir := t.TempDir()
	input := writeCube(t, dir)
	pub := &fakePublisher{}
	r := &Runner{Publisher: pub, SnapshotDir: filepath.Join(dir, "snapshots")}
	res, err := r.Run(context.Background(), Request{Input: input, Palette: palette.Default(), Tuning: smallTuning()})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(pub.paths) != 2 || pub.paths[0] != res.Output || pub.paths[1] != res.SnapshotPath {
		t.Fatalf("published paths: %v", pub.paths)
	}
	if len(res.Published) != 2 {
		t.Fatalf("keys: %v", res.Published)
	}

	failing := &fakePublisher{fail: true}
	r = &Runner{Publisher: failing}
	res, err = r.Run(context.Background(), Request{Input: input, Palette: palette.Default(), Tuning: smallTuning()})
	if err != nil {
		t.Fatalf("publish failure must not fail the run: %v", err)
	}
	found := false
	for _, w := range res.Warnings {
		if w.Kind == WarningPublishFailed && w.Count == 1 {
			found = true
		}
	}
	if !found {
		t.Fatalf("warnings: %+v", res.Warnings)
	}
}
