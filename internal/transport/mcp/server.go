// Package mcp exposes conversions as tools over a small JSON-RPC 2.0
// endpoint in the Model Context Protocol style.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"voxelsmith.ai/internal/export"
	"voxelsmith.ai/internal/palette"
	"voxelsmith.ai/internal/persistence/indexdb"
	"voxelsmith.ai/internal/pipeline"
	"voxelsmith.ai/internal/tuning"
)

const (
	Path            = "/mcp"
	protocolVersion = "2024-11-05"

	toolConvert  = "voxelsmith.convert"
	toolFormats  = "voxelsmith.formats"
	toolPalette  = "voxelsmith.palette"
	toolListRuns = "voxelsmith.list_runs"
)

var errOutsideRoot = errors.New("path escapes the server root")

type Converter interface {
	Run(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

type RunLister interface {
	RecentRuns(ctx context.Context, limit int) ([]indexdb.RunRow, error)
}

type Config struct {
	Converter Converter
	// Runs may be nil; list_runs then fails.
	Runs    RunLister
	Palette *palette.Palette
	Tuning  tuning.Tuning
	// Root confines every input and output path.
	Root       string
	HMACSecret string
	Log        *log.Logger
}

type Server struct {
	cfg    Config
	secret []byte
	guard  *replayGuard
	// One conversion at a time; callers queue.
	busy chan struct{}
	now  func() time.Time
}

func NewServer(cfg Config) (*Server, error) {
	if cfg.Converter == nil {
		return nil, fmt.Errorf("mcp: nil converter")
	}
	if cfg.Palette == nil {
		return nil, fmt.Errorf("mcp: nil palette")
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("mcp: root: %w", err)
	}
	cfg.Root = root
	s := &Server{cfg: cfg, busy: make(chan struct{}, 1), now: time.Now}
	if strings.TrimSpace(cfg.HMACSecret) != "" {
		s.secret = []byte(cfg.HMACSecret)
		s.guard = newReplayGuard(0)
	}
	return s, nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(http.StatusOK)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc(Path, s.handleRPC)
	return mux
}

func (s *Server) handleRPC(rw http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		rw.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(rw, "bad body", http.StatusBadRequest)
		return
	}
	_ = r.Body.Close()

	if len(s.secret) > 0 {
		now := s.now()
		ar := verifyHMAC(r, body, s.secret, now)
		if ar.Status != 0 {
			if s.cfg.Log != nil {
				s.cfg.Log.Printf("mcp: rejected %s: %s", r.RemoteAddr, ar.Message)
			}
			http.Error(rw, ar.Message, ar.Status)
			return
		}
		if !s.guard.allow(ar.ClientID, ar.Nonce, now) {
			http.Error(rw, "replayed nonce", http.StatusUnauthorized)
			return
		}
	}

	req, err := parseRPCRequest(body)
	if err != nil {
		http.Error(rw, "bad jsonrpc request", http.StatusBadRequest)
		return
	}
	resp := s.dispatch(r.Context(), req)
	rw.Header().Set("content-type", "application/json")
	_ = json.NewEncoder(rw).Encode(resp)
}

func (s *Server) dispatch(ctx context.Context, req rpcRequest) rpcResponse {
	switch req.Method {
	case "initialize":
		return rpcOK(req.ID, map[string]any{
			"protocolVersion": protocolVersion,
			"serverInfo":      map[string]any{"name": "voxelsmith"},
			"capabilities":    map[string]any{"tools": map[string]any{"listChanged": false}},
		})
	case "tools/list":
		return rpcOK(req.ID, map[string]any{"tools": toolsList()})
	case "tools/call":
		var p struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if len(req.Params) == 0 {
			return rpcErr(req.ID, codeInvalidParams, "missing params", nil)
		}
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return rpcErr(req.ID, codeInvalidParams, "bad params", err.Error())
		}
		out, err := s.callTool(ctx, p.Name, p.Arguments)
		if err != nil {
			var te *toolError
			if errors.As(err, &te) {
				return rpcErr(req.ID, te.code, te.msg, te.data)
			}
			return rpcErr(req.ID, codeToolFailed, err.Error(), nil)
		}
		return rpcOK(req.ID, out)
	default:
		return rpcErr(req.ID, codeMethodNotFound, "method not found", nil)
	}
}

type toolError struct {
	code int
	msg  string
	data any
}

func (e *toolError) Error() string { return e.msg }

func badArgs(format string, args ...any) error {
	return &toolError{code: codeInvalidParams, msg: fmt.Sprintf(format, args...)}
}

func toolsList() []map[string]any {
	obj := func(props map[string]any, required ...string) map[string]any {
		m := map[string]any{"type": "object", "properties": props, "additionalProperties": false}
		if len(required) > 0 {
			m["required"] = required
		}
		return m
	}
	return []map[string]any{
		{
			"name":        toolConvert,
			"description": "Convert a mesh file under the server root into a block structure file.",
			"inputSchema": obj(map[string]any{
				"input":  map[string]any{"type": "string"},
				"output": map[string]any{"type": "string"},
				"format": map[string]any{"type": "string", "enum": export.Formats()},
				"size":   map[string]any{"type": "integer", "minimum": 2},
				"axis":   map[string]any{"type": "string", "enum": []string{"x", "y", "z"}},
				"dither": map[string]any{"type": "string", "enum": []string{"off", "random", "ordered"}},
			}, "input"),
		},
		{
			"name":        toolFormats,
			"description": "List the export formats.",
			"inputSchema": obj(map[string]any{}),
		},
		{
			"name":        toolPalette,
			"description": "Describe the block palette conversions use.",
			"inputSchema": obj(map[string]any{}),
		},
		{
			"name":        toolListRuns,
			"description": "List recent conversions, newest first.",
			"inputSchema": obj(map[string]any{"limit": map[string]any{"type": "integer", "minimum": 1}}),
		},
	}
}

type convertArgs struct {
	Input  string `json:"input"`
	Output string `json:"output"`
	Format string `json:"format"`
	Size   int    `json:"size"`
	Axis   string `json:"axis"`
	Dither string `json:"dither"`
}

type convertResult struct {
	RunID          string           `json:"run_id"`
	Voxels         int              `json:"voxels"`
	Blocks         int              `json:"blocks"`
	DistinctBlocks int              `json:"distinct_blocks"`
	Output         string           `json:"output"`
	OutputBytes    int64            `json:"output_bytes"`
	SnapshotHit    bool             `json:"snapshot_hit"`
	Warnings       []map[string]any `json:"warnings"`
	ElapsedMS      int64            `json:"elapsed_ms"`
}

func (s *Server) callTool(ctx context.Context, name string, args json.RawMessage) (any, error) {
	switch name {
	case toolFormats:
		return map[string]any{"formats": export.Formats()}, nil

	case toolPalette:
		pal := s.cfg.Palette
		return map[string]any{"digest": pal.Digest, "names_digest": pal.NamesDigest, "blocks": pal.Names()}, nil

	case toolListRuns:
		var p struct {
			Limit int `json:"limit"`
		}
		if len(args) > 0 {
			if err := json.Unmarshal(args, &p); err != nil {
				return nil, badArgs("bad arguments: %v", err)
			}
		}
		if s.cfg.Runs == nil {
			return nil, fmt.Errorf("run index disabled")
		}
		rows, err := s.cfg.Runs.RecentRuns(ctx, p.Limit)
		if err != nil {
			return nil, err
		}
		return map[string]any{"runs": rows}, nil

	case toolConvert:
		var a convertArgs
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, badArgs("bad arguments: %v", err)
		}
		return s.convert(ctx, a)

	default:
		return nil, &toolError{code: codeMethodNotFound, msg: "tool not found", data: map[string]any{"name": name}}
	}
}

func (s *Server) convert(ctx context.Context, a convertArgs) (any, error) {
	if strings.TrimSpace(a.Input) == "" {
		return nil, badArgs("missing input")
	}
	in, err := s.resolve(a.Input)
	if err != nil {
		return nil, badArgs("input: %v", err)
	}
	var out string
	if strings.TrimSpace(a.Output) != "" {
		if out, err = s.resolve(a.Output); err != nil {
			return nil, badArgs("output: %v", err)
		}
	}

	t := s.cfg.Tuning
	if a.Format != "" {
		t.Export.Format = a.Format
	}
	if a.Size > 0 {
		t.Raster.Size = a.Size
	}
	if a.Axis != "" {
		t.Raster.ConstraintAxis = a.Axis
	}
	if a.Dither != "" {
		t.Assign.Dithering.Mode = a.Dither
	}
	t.Normalize()

	select {
	case s.busy <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-s.busy }()

	res, err := s.cfg.Converter.Run(ctx, pipeline.Request{Input: in, Output: out, Palette: s.cfg.Palette, Tuning: t})
	if err != nil {
		return nil, &toolError{code: codeToolFailed, msg: err.Error(), data: map[string]any{"code": pipeline.Code(err), "run_id": res.RunID}}
	}
	warnings := make([]map[string]any, 0, len(res.Warnings))
	for _, w := range res.Warnings {
		warnings = append(warnings, map[string]any{"kind": w.Kind, "count": w.Count})
	}
	rel, _ := filepath.Rel(s.cfg.Root, res.Output)
	return convertResult{
		RunID:          res.RunID,
		Voxels:         res.Voxels,
		Blocks:         res.Blocks,
		DistinctBlocks: res.DistinctBlocks,
		Output:         filepath.ToSlash(rel),
		OutputBytes:    res.OutputBytes,
		SnapshotHit:    res.SnapshotHit,
		Warnings:       warnings,
		ElapsedMS:      res.Elapsed.Milliseconds(),
	}, nil
}

// resolve maps a slash-separated path relative to the root onto the file
// system, refusing anything that leaves the root.
func (s *Server) resolve(p string) (string, error) {
	p = strings.TrimSpace(p)
	if filepath.IsAbs(p) || strings.HasPrefix(p, "/") {
		return "", errOutsideRoot
	}
	full := filepath.Join(s.cfg.Root, filepath.FromSlash(p))
	rel, err := filepath.Rel(s.cfg.Root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errOutsideRoot
	}
	return full, nil
}
