package indexdb

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"voxelsmith.ai/internal/palette"
)

func TestSQLiteIndex_RecordRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	idx.RecordRun(Run{
		ID:            "run-1",
		StartedAt:     start,
		FinishedAt:    start.Add(time.Second),
		Input:         "model.obj",
		InputDigest:   "abc",
		PaletteDigest: "def",
		Tuning:        map[string]int{"size": 80},
		Voxels:        120,
		Blocks:        120,
		DistinctBlock: 7,
		Warnings:      []string{"falling-blocks"},
		Output:        "model.litematic",
		Format:        "litematic",
		SnapshotHit:   true,
		Status:        "ok",
	})
	idx.RecordRun(Run{ID: "run-2", StartedAt: start.Add(time.Minute), FinishedAt: start.Add(time.Minute), Status: "error", Error: "boom"})
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()

	var (
		voxels   int
		distinct int
		tuning   string
		warnings string
		hit      int
	)
	row := db.QueryRow(`SELECT voxels,distinct_blocks,tuning_json,warnings_json,snapshot_hit FROM runs WHERE run_id='run-1'`)
	if err := row.Scan(&voxels, &distinct, &tuning, &warnings, &hit); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if voxels != 120 || distinct != 7 || tuning != `{"size":80}` || warnings != `["falling-blocks"]` || hit != 1 {
		t.Fatalf("row mismatch: %d %d %s %s %d", voxels, distinct, tuning, warnings, hit)
	}
}

func TestSQLiteIndex_RecentRunsAndPalettes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "index.db")
	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer func() { _ = idx.Close() }()

	ctx := context.Background()
	pal := palette.Default()
	if err := idx.UpsertPalette(ctx, pal); err != nil {
		t.Fatalf("UpsertPalette: %v", err)
	}
	// Upserting twice keeps one row.
	if err := idx.UpsertPalette(ctx, pal); err != nil {
		t.Fatalf("UpsertPalette: %v", err)
	}
	var n, blocks int
	if err := idx.db.QueryRow(`SELECT COUNT(*), MAX(blocks) FROM palettes`).Scan(&n, &blocks); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 || blocks != pal.Len() {
		t.Fatalf("palettes: n=%d blocks=%d", n, blocks)
	}

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		idx.RecordRun(Run{ID: id, StartedAt: base.Add(time.Duration(i) * time.Hour), Status: "ok"})
	}

	var runs []RunRow
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		runs, err = idx.RecentRuns(ctx, 2)
		if err != nil {
			t.Fatalf("RecentRuns: %v", err)
		}
		if len(runs) == 2 && runs[0].ID == "c" {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if len(runs) != 2 || runs[0].ID != "c" || runs[1].ID != "b" {
		t.Fatalf("recent runs: %+v", runs)
	}
}

func TestSQLiteIndex_DropsWhenFull(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.RecordRun(Run{ID: "1"})
	s.RecordRun(Run{ID: "2"})
	st := s.Stats()
	if st.DroppedTotal != 1 || st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("stats: %+v", st)
	}
	var nilIndex *SQLiteIndex
	nilIndex.RecordRun(Run{})
	if nilIndex.Stats() != (Stats{}) {
		t.Fatalf("nil index stats")
	}
}
