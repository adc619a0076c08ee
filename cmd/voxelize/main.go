package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"voxelsmith.ai/internal/palette"
	"voxelsmith.ai/internal/persistence/indexdb"
	"voxelsmith.ai/internal/persistence/objstore"
	"voxelsmith.ai/internal/persistence/runlog"
	"voxelsmith.ai/internal/pipeline"
	"voxelsmith.ai/internal/transport/mcp"
	"voxelsmith.ai/internal/transport/ws"
	"voxelsmith.ai/internal/tuning"
)

func main() {
	var (
		in          = flag.String("in", "", "input mesh (.obj or .stl)")
		out         = flag.String("out", "", "output file (default: input path with the format's extension)")
		tuningPath  = flag.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml (missing file: defaults)")
		palettePath = flag.String("palette", "", "palette atlas json (default: built-in)")
		dataDir     = flag.String("data", "./data", "runtime data directory (snapshots, run index, journal)")
		disableDB   = flag.Bool("disable_db", false, "disable the sqlite run index")
		noSnapshot  = flag.Bool("no_snapshot", false, "always rasterize; never read or write voxel snapshots")
		progAddr    = flag.String("progress_addr", "", "serve websocket progress on this address (empty to disable)")
		listRuns    = flag.Int("list_runs", 0, "print the N most recent runs from the index and exit")
		mcpListen   = flag.String("mcp_listen", "", "serve the JSON-RPC tool endpoint on this address (empty to disable)")
		mcpRoot     = flag.String("mcp_root", ".", "directory every tool call path is confined to")

		format  = flag.String("format", "", "override export.format (litematic, schem, blueprint)")
		size    = flag.Int("size", 0, "override raster.size")
		axis    = flag.String("axis", "", "override raster.constraint_axis (x, y, z)")
		workers = flag.Int("workers", 0, "override raster.workers")
		dither  = flag.String("dither", "", "override assign.dithering.mode (off, random, ordered)")
		name    = flag.String("name", "", "override export.name")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[voxelize] ", log.LstdFlags|log.Lmicroseconds)

	idx, err := openIndex(*dataDir, *disableDB)
	if err != nil {
		logger.Fatalf("open run index: %v", err)
	}
	if idx != nil {
		defer idx.Close()
	}

	if *listRuns > 0 {
		if idx == nil {
			logger.Fatalf("list_runs needs the run index")
		}
		if err := printRuns(idx, *listRuns); err != nil {
			logger.Fatalf("list runs: %v", err)
		}
		return
	}
	serveOnly := strings.TrimSpace(*in) == ""
	if serveOnly && strings.TrimSpace(*mcpListen) == "" {
		flag.Usage()
		os.Exit(2)
	}

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", *tuningPath)
		tune = tuning.Defaults()
	}
	applyOverrides(&tune, overrides{format: *format, size: *size, axis: *axis, workers: *workers, dither: *dither, name: *name})
	tune.Normalize()
	if err := tune.Validate(); err != nil {
		logger.Fatalf("tuning: %v", err)
	}

	pal := palette.Default()
	if p := strings.TrimSpace(*palettePath); p != "" {
		if pal, err = palette.Load(p); err != nil {
			logger.Fatalf("load palette: %v", err)
		}
	}
	logger.Printf("palette: %d blocks digest=%s", pal.Len(), short(pal.Digest))

	ctx, cancel := signalContext()
	defer cancel()

	if idx != nil {
		if err := idx.UpsertPalette(ctx, pal); err != nil {
			logger.Printf("run index: upsert palette: %v", err)
		}
	}

	journal := runlog.NewWriter(filepath.Join(*dataDir, "journal"), "runs")
	defer journal.Close()

	runner := &pipeline.Runner{Log: logger, Journal: journal}
	if idx != nil {
		runner.Index = idx
	}
	if !*noSnapshot {
		runner.SnapshotDir = filepath.Join(*dataDir, "snapshots")
	}
	pub, err := buildPublisher()
	if err != nil {
		logger.Fatalf("object store: %v", err)
	}
	if pub != nil {
		runner.Publisher = pub
		logger.Printf("publishing artifacts to %s", os.Getenv("VS_OBJSTORE_BUCKET"))
	}

	if addr := strings.TrimSpace(*progAddr); addr != "" {
		hub := ws.NewHub(logger)
		runner.Hub = hub
		mux := http.NewServeMux()
		mux.HandleFunc(ws.Path, hub.Handler())
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.Printf("progress stream on ws://%s%s", addr, ws.Path)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Printf("progress server: %v", err)
			}
		}()
		defer func() {
			ctx2, cancel2 := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel2()
			_ = srv.Shutdown(ctx2)
		}()
	}

	if addr := strings.TrimSpace(*mcpListen); addr != "" {
		cfg := mcp.Config{
			Converter:  runner,
			Palette:    pal,
			Tuning:     tune,
			Root:       *mcpRoot,
			HMACSecret: os.Getenv("VS_MCP_HMAC_SECRET"),
			Log:        logger,
		}
		if idx != nil {
			cfg.Runs = idx
		}
		ms, err := mcp.NewServer(cfg)
		if err != nil {
			logger.Fatalf("mcp: %v", err)
		}
		if cfg.HMACSecret == "" {
			logger.Printf("mcp: VS_MCP_HMAC_SECRET unset; requests are not authenticated")
		}
		srv := &http.Server{Addr: addr, Handler: ms.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.Printf("tool endpoint on http://%s%s", addr, mcp.Path)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Printf("mcp server: %v", err)
			}
		}()
		defer func() {
			ctx2, cancel2 := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel2()
			_ = srv.Shutdown(ctx2)
		}()
	}

	if serveOnly {
		<-ctx.Done()
		logger.Printf("shutting down")
		return
	}

	res, err := runner.Run(ctx, pipeline.Request{
		Input:   *in,
		Output:  *out,
		Palette: pal,
		Tuning:  tune,
	})
	if err != nil {
		logger.Printf("conversion failed (%s): %v", pipeline.Code(err), err)
		journal.Close()
		if idx != nil {
			idx.Close()
		}
		os.Exit(1)
	}
	fmt.Println(res.Output)
}

type overrides struct {
	format  string
	size    int
	axis    string
	workers int
	dither  string
	name    string
}

// applyOverrides copies every set flag over the loaded tuning.
func applyOverrides(t *tuning.Tuning, o overrides) {
	if o.format != "" {
		t.Export.Format = o.format
	}
	if o.size > 0 {
		t.Raster.Size = o.size
	}
	if o.axis != "" {
		t.Raster.ConstraintAxis = o.axis
	}
	if o.workers > 0 {
		t.Raster.Workers = o.workers
	}
	if o.dither != "" {
		t.Assign.Dithering.Mode = o.dither
	}
	if o.name != "" {
		t.Export.Name = o.name
	}
}

func openIndex(dataDir string, disable bool) (*indexdb.SQLiteIndex, error) {
	if disable {
		return nil, nil
	}
	switch strings.ToLower(strings.TrimSpace(os.Getenv("VS_INDEX_BACKEND"))) {
	case "none", "off", "disabled":
		return nil, nil
	case "", "sqlite":
	default:
		return nil, fmt.Errorf("unknown VS_INDEX_BACKEND %q", os.Getenv("VS_INDEX_BACKEND"))
	}
	dir := filepath.Join(dataDir, "index")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return indexdb.OpenSQLite(filepath.Join(dir, "runs.sqlite"))
}

// buildPublisher reads VS_OBJSTORE_*; an empty endpoint disables publishing.
func buildPublisher() (*objstore.Publisher, error) {
	endpoint := strings.TrimSpace(os.Getenv("VS_OBJSTORE_ENDPOINT"))
	if endpoint == "" {
		return nil, nil
	}
	c, err := objstore.New(objstore.Config{
		Endpoint:        endpoint,
		Bucket:          os.Getenv("VS_OBJSTORE_BUCKET"),
		Region:          os.Getenv("VS_OBJSTORE_REGION"),
		AccessKeyID:     os.Getenv("VS_OBJSTORE_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("VS_OBJSTORE_SECRET_ACCESS_KEY"),
	})
	if err != nil {
		return nil, err
	}
	return objstore.NewPublisher(c, os.Getenv("VS_OBJSTORE_PREFIX")), nil
}

func printRuns(idx *indexdb.SQLiteIndex, n int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rows, err := idx.RecentRuns(ctx, n)
	if err != nil {
		return err
	}
	for _, r := range rows {
		hit := ""
		if r.SnapshotHit {
			hit = " (snapshot)"
		}
		line := fmt.Sprintf("%s %s %-6s %s -> %s [%s] voxels=%d blocks=%d%s",
			r.StartedAt, short(r.ID), r.Status, r.Input, r.Output, r.Format, r.Voxels, r.Blocks, hit)
		if r.Error != "" {
			line += " error=" + r.Error
		}
		fmt.Println(line)
	}
	return nil
}

func short(s string) string {
	if len(s) > 8 {
		return s[:8]
	}
	return s
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
