package importer

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"log"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r3"

	"voxelsmith.ai/internal/colour"
	"voxelsmith.ai/internal/mesh"
)

type objVertex struct {
	pos, uv, normal int // -1 when absent
}

type objParser struct {
	fsys   fs.FS
	dir    string
	logger *log.Logger

	positions []r3.Vec
	colours   []colour.RGBA
	coloured  bool
	uvs       []mesh.UV
	normals   []r3.Vec

	materials map[string]*mtlMaterial
	current   string
	order     []string
	groups    map[string][]mesh.Triangle

	line int
	// read lists every side file opened successfully, in open order.
	read []string
}

// LoadOBJ reads name from fsys together with any material libraries and
// textures it references.
func LoadOBJ(fsys fs.FS, name string, logger *log.Logger) (*mesh.Mesh, error) {
	m, _, err := loadOBJ(fsys, name, logger)
	return m, err
}

// loadOBJ also returns the fsys paths of the material libraries and
// textures that were read.
func loadOBJ(fsys fs.FS, name string, logger *log.Logger) (*mesh.Mesh, []string, error) {
	f, err := fsys.Open(name)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	p := newOBJParser(fsys, path.Dir(name), logger)
	if err := p.parse(f); err != nil {
		return nil, nil, err
	}
	m := p.build()
	return m, p.read, nil
}

// DecodeOBJ parses Wavefront OBJ text. mtllib and map_Kd paths resolve
// against dir inside fsys; with a nil fsys materials are skipped and every
// section is painted DefaultColour or its vertex colours.
func DecodeOBJ(r io.Reader, fsys fs.FS, dir string, logger *log.Logger) (*mesh.Mesh, error) {
	p := newOBJParser(fsys, dir, logger)
	if err := p.parse(r); err != nil {
		return nil, err
	}
	return p.build(), nil
}

func newOBJParser(fsys fs.FS, dir string, logger *log.Logger) *objParser {
	return &objParser{
		fsys:      fsys,
		dir:       dir,
		logger:    logger,
		materials: map[string]*mtlMaterial{},
		groups:    map[string][]mesh.Triangle{},
	}
}

func (p *objParser) parse(r io.Reader) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		p.line++
		if err := p.statement(sc.Text()); err != nil {
			return fmt.Errorf("%w: line %d: %v", ErrMalformed, p.line, err)
		}
	}
	return sc.Err()
}

func (p *objParser) statement(line string) error {
	if i := strings.IndexByte(line, '#'); i >= 0 {
		line = line[:i]
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	args := fields[1:]
	switch fields[0] {
	case "v":
		if len(args) < 3 {
			return fmt.Errorf("v needs 3 coordinates")
		}
		f, err := parseFloats(args)
		if err != nil {
			return err
		}
		p.positions = append(p.positions, r3.Vec{X: f[0], Y: f[1], Z: f[2]})
		c := colour.White
		if len(f) >= 6 {
			c = colour.RGBA{R: float32(f[3]), G: float32(f[4]), B: float32(f[5]), A: 1}.Clamp()
			p.coloured = true
		}
		p.colours = append(p.colours, c)
	case "vt":
		if len(args) < 1 {
			return fmt.Errorf("vt needs a coordinate")
		}
		f, err := parseFloats(args)
		if err != nil {
			return err
		}
		uv := mesh.UV{U: f[0]}
		if len(f) > 1 {
			uv.V = f[1]
		}
		p.uvs = append(p.uvs, uv)
	case "vn":
		if len(args) < 3 {
			return fmt.Errorf("vn needs 3 components")
		}
		f, err := parseFloats(args)
		if err != nil {
			return err
		}
		p.normals = append(p.normals, r3.Unit(r3.Vec{X: f[0], Y: f[1], Z: f[2]}))
	case "f":
		return p.face(args)
	case "usemtl":
		p.current = strings.Join(args, " ")
	case "mtllib":
		for _, name := range args {
			p.loadMTL(name)
		}
	}
	// o, g, s, l, p and friends carry nothing we rasterize.
	return nil
}

func (p *objParser) face(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("face needs 3 vertices, got %d", len(args))
	}
	verts := make([]objVertex, len(args))
	for i, a := range args {
		v, err := p.vertex(a)
		if err != nil {
			return err
		}
		verts[i] = v
	}
	if _, ok := p.groups[p.current]; !ok {
		p.order = append(p.order, p.current)
	}
	// Fan triangulation.
	for i := 1; i+1 < len(verts); i++ {
		p.groups[p.current] = append(p.groups[p.current], p.triangle(verts[0], verts[i], verts[i+1]))
	}
	return nil
}

func (p *objParser) vertex(s string) (objVertex, error) {
	parts := strings.Split(s, "/")
	v := objVertex{pos: -1, uv: -1, normal: -1}
	var err error
	if v.pos, err = resolveIndex(parts[0], len(p.positions)); err != nil {
		return v, err
	}
	if len(parts) > 1 && parts[1] != "" {
		if v.uv, err = resolveIndex(parts[1], len(p.uvs)); err != nil {
			return v, err
		}
	}
	if len(parts) > 2 && parts[2] != "" {
		if v.normal, err = resolveIndex(parts[2], len(p.normals)); err != nil {
			return v, err
		}
	}
	return v, nil
}

func (p *objParser) triangle(a, b, c objVertex) mesh.Triangle {
	var t mesh.Triangle
	for k, v := range [3]objVertex{a, b, c} {
		t.Positions[k] = p.positions[v.pos]
		t.Colours[k] = p.colours[v.pos]
		if v.uv >= 0 {
			t.UVs[k] = p.uvs[v.uv]
		}
	}
	flat := faceNormal(t.Positions)
	for k, v := range [3]objVertex{a, b, c} {
		if v.normal >= 0 {
			t.Normals[k] = p.normals[v.normal]
		} else {
			t.Normals[k] = flat
		}
	}
	return t
}

// resolveIndex maps a 1-based (or negative, relative) OBJ index to a slice
// index.
func resolveIndex(s string, n int) (int, error) {
	i, err := strconv.Atoi(s)
	if err != nil {
		return -1, fmt.Errorf("bad index %q", s)
	}
	switch {
	case i > 0 && i <= n:
		return i - 1, nil
	case i < 0 && -i <= n:
		return n + i, nil
	}
	return -1, fmt.Errorf("index %d out of range (have %d)", i, n)
}

func parseFloats(args []string) ([]float64, error) {
	out := make([]float64, len(args))
	for i, a := range args {
		f, err := strconv.ParseFloat(a, 64)
		if err != nil {
			return nil, fmt.Errorf("bad number %q", a)
		}
		out[i] = f
	}
	return out, nil
}

func (p *objParser) open(name string) (fs.File, error) {
	if p.fsys == nil {
		return nil, fs.ErrNotExist
	}
	full := path.Clean(path.Join(p.dir, filepath.ToSlash(name)))
	if !fs.ValidPath(full) {
		return nil, fmt.Errorf("%s: %w", name, fs.ErrInvalid)
	}
	f, err := p.fsys.Open(full)
	if err == nil {
		p.read = append(p.read, full)
	}
	return f, err
}

func (p *objParser) logf(format string, args ...any) {
	if p.logger != nil {
		p.logger.Printf(format, args...)
	}
}

func (p *objParser) build() *mesh.Mesh {
	m := mesh.New()
	textures := map[string]*mesh.Texture{}
	for _, name := range p.order {
		mat := mesh.Material{Name: name, Kind: mesh.MaterialSolid, Colour: DefaultColour}
		mtl := p.materials[name]
		if name != "" && mtl == nil {
			p.logf("obj: material %q not defined, using default colour", name)
		}
		switch {
		case mtl != nil && mtl.texture != "":
			mat.Kind = mesh.MaterialTextured
			tex, seen := textures[mtl.texture]
			if !seen {
				tex = p.loadTexture(mtl.texture)
				textures[mtl.texture] = tex
			}
			mat.Texture = tex
		case p.coloured:
			mat.Kind = mesh.MaterialColoured
		case mtl != nil && mtl.hasKd:
			mat.Colour = mtl.kd
		}
		m.AddSection(mesh.Section{Material: mat, Triangles: p.groups[name]})
	}
	return m
}

// loadTexture returns nil when the image is missing or undecodable; the
// rasterizer paints such sections with colour.Error.
func (p *objParser) loadTexture(name string) *mesh.Texture {
	f, err := p.open(name)
	if err != nil {
		p.logf("obj: texture %s: %v", name, err)
		return nil
	}
	defer f.Close()
	tex, err := DecodeTexture(f)
	if err != nil {
		p.logf("obj: texture %s: %v", name, err)
		return nil
	}
	return tex
}
