package importer

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"voxelsmith.ai/internal/colour"
	"voxelsmith.ai/internal/mesh"
)

func pngBytes(t *testing.T, cols ...color.NRGBA) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, len(cols), 1))
	for i, c := range cols {
		img.SetNRGBA(i, 0, c)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestDecodeOBJ_FanTriangulation(t *testing.T) {
	src := `# quad and a triangle
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
f 1 2 3 4
f -4 -3 -2
`
	m, err := DecodeOBJ(strings.NewReader(src), nil, ".", nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(m.Sections()) != 1 || mesh.TriangleCount(m) != 3 {
		t.Fatalf("sections=%d triangles=%d", len(m.Sections()), mesh.TriangleCount(m))
	}
	s := m.Sections()[0]
	if s.Material.Kind != mesh.MaterialSolid || s.Material.Colour != DefaultColour {
		t.Fatalf("material: %+v", s.Material)
	}
	second := s.Triangles[1]
	if second.Positions[0].X != 0 || second.Positions[1].X != 1 || second.Positions[2].Y != 1 || second.Positions[2].X != 0 {
		t.Fatalf("fan order: %+v", second.Positions)
	}
	if n := s.Triangles[0].Normals[0]; n.Z != 1 {
		t.Fatalf("computed normal: %+v", n)
	}
}

func TestDecodeOBJ_BadIndex(t *testing.T) {
	cases := []string{
		"v 0 0 0\nv 1 0 0\nf 1 2 3\n",
		"v 0 0 0\nv 1 0 0\nv 0 1 0\nf 0 1 2\n",
		"v 0 0 0\nv 1 0 0\nv 0 1 0\nf 1 2\n",
		"v 0 x 0\n",
	}
	for _, src := range cases {
		if _, err := DecodeOBJ(strings.NewReader(src), nil, ".", nil); !errors.Is(err, ErrMalformed) {
			t.Fatalf("%q: expected ErrMalformed, got %v", src, err)
		}
	}
}

func TestLoadOBJ_Materials(t *testing.T) {
	fsys := fstest.MapFS{
		"models/box.obj": {Data: []byte(`mtllib box.mtl
v 0 0 0
v 1 0 0
v 0 1 0
vt 0 0
vt 1 0
vt 0 1
usemtl red
f 1 2 3
usemtl skin
f 1/1 2/2 3/3
usemtl lost
f 3 2 1
`)},
		"models/box.mtl": {Data: []byte(`newmtl red
Kd 1 0 0
d 0.5
newmtl skin
Kd 1 1 1
map_Kd -s 1 1 1 tex/skin.png
`)},
		"models/tex/skin.png": {Data: pngBytes(t, color.NRGBA{0, 255, 0, 255}, color.NRGBA{0, 0, 255, 255})},
	}
	m, err := LoadOBJ(fsys, "models/box.obj", nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	secs := m.Sections()
	if len(secs) != 3 {
		t.Fatalf("expected 3 sections, got %d", len(secs))
	}
	red := secs[0].Material
	if red.Name != "red" || red.Kind != mesh.MaterialSolid || red.Colour != (colour.RGBA{R: 1, A: 0.5}) {
		t.Fatalf("red: %+v", red)
	}
	skin := secs[1].Material
	if skin.Kind != mesh.MaterialTextured || skin.Texture == nil || skin.Texture.Width != 2 || skin.Texture.Height != 1 {
		t.Fatalf("skin: %+v", skin)
	}
	if got := secs[1].Triangles[0].UVs[1]; got.U != 1 || got.V != 0 {
		t.Fatalf("uv: %+v", got)
	}
	tex := *skin.Texture
	tex.Filter = mesh.FilterNearest
	if c := tex.Sample(mesh.UV{U: 0, V: 0}); c != (colour.RGBA{G: 1, A: 1}) {
		t.Fatalf("texel 0: %+v", c)
	}
	if secs[2].Material.Kind != mesh.MaterialSolid || secs[2].Material.Colour != DefaultColour {
		t.Fatalf("undefined material: %+v", secs[2].Material)
	}
}

func TestLoadOBJ_MissingTexture(t *testing.T) {
	fsys := fstest.MapFS{
		"a.obj": {Data: []byte("mtllib a.mtl\nv 0 0 0\nv 1 0 0\nv 0 1 0\nusemtl m\nf 1 2 3\n")},
		"a.mtl": {Data: []byte("newmtl m\nmap_Kd nope.png\n")},
	}
	m, err := LoadOBJ(fsys, "a.obj", nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	mat := m.Sections()[0].Material
	if mat.Kind != mesh.MaterialTextured || mat.Texture != nil {
		t.Fatalf("expected textured material without image, got %+v", mat)
	}
}

func TestDecodeOBJ_VertexColours(t *testing.T) {
	src := "v 0 0 0 1 0 0\nv 1 0 0 0 1 0\nv 0 1 0 0 0 2\nf 1 2 3\n"
	m, err := DecodeOBJ(strings.NewReader(src), nil, ".", nil)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	s := m.Sections()[0]
	if s.Material.Kind != mesh.MaterialColoured {
		t.Fatalf("kind: %v", s.Material.Kind)
	}
	if c := s.Triangles[0].Colours[2]; c != (colour.RGBA{B: 1, A: 1}) {
		t.Fatalf("clamped colour: %+v", c)
	}
}

func TestImport_ListsSideFiles(t *testing.T) {
	dir := t.TempDir()
	files := map[string][]byte{
		"box.obj":      []byte("mtllib box.mtl\nv 0 0 0\nv 1 0 0\nv 0 1 0\nvt 0 0\nusemtl skin\nf 1/1 2/1 3/1\n"),
		"box.mtl":      []byte("newmtl skin\nmap_Kd tex/skin.png\n"),
		"tex/skin.png": pngBytes(t, color.NRGBA{255, 0, 0, 255}),
	}
	for name, data := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, data, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	res, err := Import(filepath.Join(dir, "box.obj"), nil)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	want := []string{
		filepath.Join(dir, "box.obj"),
		filepath.Join(dir, "box.mtl"),
		filepath.Join(dir, "tex", "skin.png"),
	}
	if len(res.Files) != len(want) {
		t.Fatalf("files: %v", res.Files)
	}
	for i := range want {
		if res.Files[i] != want[i] {
			t.Fatalf("file %d: %s, want %s", i, res.Files[i], want[i])
		}
	}
	if res.Mesh.Sections()[0].Material.Texture == nil {
		t.Fatalf("texture not loaded")
	}
}
