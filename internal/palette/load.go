package palette

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"voxelsmith.ai/internal/colour"
)

//go:embed atlas/palette.schema.json
var schemaJSON string

//go:embed atlas/default.json
var defaultAtlas []byte

var compileSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource("palette.schema.json", bytes.NewReader([]byte(schemaJSON))); err != nil {
		return nil, err
	}
	return c.Compile("palette.schema.json")
})

type document struct {
	Version int        `json:"version"`
	Blocks  []blockDoc `json:"blocks"`
	Sets    setsDoc    `json:"sets"`
}

type blockDoc struct {
	Name   string             `json:"name"`
	Colour []float64          `json:"colour"`
	Faces  map[string]faceDoc `json:"faces,omitempty"`
}

type faceDoc struct {
	Colour []float64 `json:"colour"`
	Std    float64   `json:"std,omitempty"`
}

type setsDoc struct {
	Fallable    []string `json:"fallable,omitempty"`
	GrassLike   []string `json:"grass_like,omitempty"`
	Transparent []string `json:"transparent,omitempty"`
	Emissive    []string `json:"emissive,omitempty"`
}

// Default returns the built-in block atlas.
func Default() *Palette {
	p, err := Parse(defaultAtlas)
	if err != nil {
		panic(fmt.Sprintf("palette: built-in atlas: %v", err))
	}
	return p
}

func Load(path string) (*Palette, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

// Parse validates raw against the atlas schema and builds the palette.
func Parse(raw []byte) (*Palette, error) {
	schema, err := compileSchema()
	if err != nil {
		return nil, fmt.Errorf("palette schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("palette: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return nil, fmt.Errorf("palette: %w", err)
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("palette: %w", err)
	}
	blocks := make([]Block, 0, len(doc.Blocks))
	for _, bd := range doc.Blocks {
		blocks = append(blocks, bd.block())
	}
	p, err := New(blocks, Sets{
		Fallable:    doc.Sets.Fallable,
		GrassLike:   doc.Sets.GrassLike,
		Transparent: doc.Sets.Transparent,
		Emissive:    doc.Sets.Emissive,
	})
	if err != nil {
		return nil, err
	}
	p.Digest = sha256Hex(raw)
	return p, nil
}

func toRGBA(c []float64) colour.RGBA {
	out := colour.RGBA{A: 1}
	if len(c) >= 3 {
		out.R, out.G, out.B = float32(c[0]), float32(c[1]), float32(c[2])
	}
	if len(c) == 4 {
		out.A = float32(c[3])
	}
	return out
}

func fromRGBA(c colour.RGBA) []float64 {
	if c.A == 1 {
		return []float64{float64(c.R), float64(c.G), float64(c.B)}
	}
	return []float64{float64(c.R), float64(c.G), float64(c.B), float64(c.A)}
}

// block fills faces the document leaves out with the whole-block colour.
func (bd blockDoc) block() Block {
	b := Block{Name: bd.Name, Colour: toRGBA(bd.Colour)}
	for i, name := range FaceNames {
		f, ok := bd.Faces[name]
		if !ok {
			b.Faces[i] = FaceColour{Colour: b.Colour}
			continue
		}
		b.Faces[i] = FaceColour{Colour: toRGBA(f.Colour), Std: f.Std}
	}
	return b
}

func (p *Palette) document() document {
	doc := document{Version: 1}
	for _, b := range p.blocks {
		bd := blockDoc{Name: b.Name, Colour: fromRGBA(b.Colour), Faces: map[string]faceDoc{}}
		for i, f := range b.Faces {
			bd.Faces[FaceNames[i]] = faceDoc{Colour: fromRGBA(f.Colour), Std: f.Std}
		}
		doc.Blocks = append(doc.Blocks, bd)
	}
	collect := func(m map[string]bool) []string {
		var out []string
		for _, b := range p.blocks {
			if m[b.Name] {
				out = append(out, b.Name)
			}
		}
		return out
	}
	doc.Sets = setsDoc{
		Fallable:    collect(p.fallable),
		GrassLike:   collect(p.grassLike),
		Transparent: collect(p.transparent),
		Emissive:    collect(p.emissive),
	}
	return doc
}

// MarshalJSON writes the palette in atlas form; Parse reads it back.
func (p *Palette) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.document())
}
