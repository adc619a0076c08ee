// Package indexdb keeps a queryable sqlite index of conversion runs and the
// palettes they used. Files on disk remain the source of truth.
package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"voxelsmith.ai/internal/palette"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropped atomic.Uint64
	failed  atomic.Uint64
}

type req struct {
	run Run
}

// Run is one conversion, as recorded when it finishes.
type Run struct {
	ID            string
	StartedAt     time.Time
	FinishedAt    time.Time
	Input         string
	InputDigest   string
	PaletteDigest string
	Tuning        any
	Voxels        int
	Blocks        int
	DistinctBlock int
	Warnings      any
	Output        string
	Format        string
	SnapshotPath  string
	SnapshotHit   bool
	Status        string
	Error         string
}

type Stats struct {
	QueueDepth    int
	QueueCapacity int
	DroppedTotal  uint64
	FailedTotal   uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 1024),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS palettes (
			digest TEXT PRIMARY KEY,
			names_digest TEXT NOT NULL,
			blocks INTEGER NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL,
			input TEXT NOT NULL,
			input_digest TEXT NOT NULL,
			palette_digest TEXT NOT NULL,
			tuning_json TEXT NOT NULL,
			voxels INTEGER NOT NULL,
			blocks INTEGER NOT NULL,
			distinct_blocks INTEGER NOT NULL,
			warnings_json TEXT NOT NULL,
			output TEXT NOT NULL,
			format TEXT NOT NULL,
			snapshot_path TEXT NOT NULL,
			snapshot_hit INTEGER NOT NULL,
			status TEXT NOT NULL,
			error TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_input_digest ON runs(input_digest, started_at);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:    len(s.ch),
		QueueCapacity: cap(s.ch),
		DroppedTotal:  s.dropped.Load(),
		FailedTotal:   s.failed.Load(),
	}
}

// RecordRun queues r for the writer goroutine. It never blocks; runs are
// dropped (and counted) when the queue is full.
func (s *SQLiteIndex) RecordRun(r Run) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{run: r}:
	default:
		s.dropped.Add(1)
	}
}

// UpsertPalette stores the palette synchronously, keyed by its digest.
func (s *SQLiteIndex) UpsertPalette(ctx context.Context, p *palette.Palette) error {
	if s == nil || p == nil {
		return nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO palettes(digest,names_digest,blocks,json,updated_at) VALUES(?,?,?,?,?)`,
		p.Digest, p.NamesDigest, p.Len(), string(b), time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}

// RunRow is a run as read back from the index.
type RunRow struct {
	ID            string
	StartedAt     string
	Input         string
	InputDigest   string
	PaletteDigest string
	Voxels        int
	Blocks        int
	Output        string
	Format        string
	SnapshotHit   bool
	Status        string
	Error         string
}

// RecentRuns lists up to limit runs, newest first.
func (s *SQLiteIndex) RecentRuns(ctx context.Context, limit int) ([]RunRow, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT run_id,started_at,input,input_digest,palette_digest,voxels,blocks,output,format,snapshot_hit,status,COALESCE(error,'')
		FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RunRow
	for rows.Next() {
		var r RunRow
		var hit int
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.Input, &r.InputDigest, &r.PaletteDigest, &r.Voxels, &r.Blocks, &r.Output, &r.Format, &hit, &r.Status, &r.Error); err != nil {
			return nil, err
		}
		r.SnapshotHit = hit != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()
	insertRun, err := s.db.Prepare(`INSERT OR REPLACE INTO runs(run_id,started_at,finished_at,input,input_digest,palette_digest,tuning_json,voxels,blocks,distinct_blocks,warnings_json,output,format,snapshot_path,snapshot_hit,status,error) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		for range s.ch {
			s.failed.Add(1)
		}
		return
	}
	defer insertRun.Close()

	for r := range s.ch {
		run := r.run
		tuningJSON, _ := json.Marshal(run.Tuning)
		warningsJSON, _ := json.Marshal(run.Warnings)
		hit := 0
		if run.SnapshotHit {
			hit = 1
		}
		var errText any
		if run.Error != "" {
			errText = run.Error
		}
		if _, err := insertRun.ExecContext(ctx,
			run.ID,
			run.StartedAt.UTC().Format(time.RFC3339Nano),
			run.FinishedAt.UTC().Format(time.RFC3339Nano),
			run.Input,
			run.InputDigest,
			run.PaletteDigest,
			string(tuningJSON),
			run.Voxels,
			run.Blocks,
			run.DistinctBlock,
			string(warningsJSON),
			run.Output,
			run.Format,
			run.SnapshotPath,
			hit,
			run.Status,
			errText,
		); err != nil {
			s.failed.Add(1)
		}
	}
}
