// Package palette holds the block atlas colours are matched against: an
// ordered list of named blocks with a whole-block colour, optional per-face
// colours and named block sets.
package palette

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"voxelsmith.ai/internal/colour"
)

var (
	ErrUnknownBlock   = errors.New("palette: unknown block")
	ErrDuplicateBlock = errors.New("palette: duplicate block")
	ErrNoBlocks       = errors.New("palette: no blocks")
)

// FaceNames lists the faces in storage order: up, down, north, south, east,
// west. It matches voxel.Face.
var FaceNames = [6]string{"up", "down", "north", "south", "east", "west"}

type FaceColour struct {
	Colour colour.RGBA
	// Std is the colour standard deviation across the face texture.
	Std float64
}

type Block struct {
	Name   string
	Colour colour.RGBA
	Faces  [6]FaceColour
}

// Sets names blocks with special placement rules.
type Sets struct {
	Fallable    []string
	GrassLike   []string
	Transparent []string
	Emissive    []string
}

type Palette struct {
	blocks []Block
	index  map[string]int

	fallable    map[string]bool
	grassLike   map[string]bool
	transparent map[string]bool
	emissive    map[string]bool

	// Digest is the sha256 of the source document (or of the canonical
	// JSON form for palettes built in code).
	Digest string
	// NamesDigest covers only the ordered block names.
	NamesDigest string
}

// New builds a palette. Block order is kept; it breaks ties during matching.
func New(blocks []Block, sets Sets) (*Palette, error) {
	if len(blocks) == 0 {
		return nil, ErrNoBlocks
	}
	p := &Palette{
		blocks: append([]Block(nil), blocks...),
		index:  make(map[string]int, len(blocks)),
	}
	names := make([]string, 0, len(blocks))
	for i, b := range blocks {
		if b.Name == "" {
			return nil, fmt.Errorf("palette: block %d: empty name", i)
		}
		if _, dup := p.index[b.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateBlock, b.Name)
		}
		p.index[b.Name] = i
		names = append(names, b.Name)
	}
	var err error
	if p.fallable, err = p.set("fallable", sets.Fallable); err != nil {
		return nil, err
	}
	if p.grassLike, err = p.set("grass-like", sets.GrassLike); err != nil {
		return nil, err
	}
	if p.transparent, err = p.set("transparent", sets.Transparent); err != nil {
		return nil, err
	}
	if p.emissive, err = p.set("emissive", sets.Emissive); err != nil {
		return nil, err
	}
	namesJSON, _ := json.Marshal(names)
	p.NamesDigest = sha256Hex(namesJSON)
	docJSON, _ := json.Marshal(p.document())
	p.Digest = sha256Hex(docJSON)
	return p, nil
}

func (p *Palette) set(kind string, names []string) (map[string]bool, error) {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		if _, ok := p.index[n]; !ok {
			return nil, fmt.Errorf("%w: %q in %s set", ErrUnknownBlock, n, kind)
		}
		m[n] = true
	}
	return m, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func (p *Palette) Len() int { return len(p.blocks) }

// Blocks returns the blocks in palette order.
func (p *Palette) Blocks() []Block { return append([]Block(nil), p.blocks...) }

func (p *Palette) Block(name string) (Block, bool) {
	i, ok := p.index[name]
	if !ok {
		return Block{}, false
	}
	return p.blocks[i], true
}

func (p *Palette) Names() []string {
	out := make([]string, len(p.blocks))
	for i, b := range p.blocks {
		out[i] = b.Name
	}
	return out
}

func (p *Palette) IsFallable(name string) bool    { return p.fallable[name] }
func (p *Palette) IsGrassLike(name string) bool   { return p.grassLike[name] }
func (p *Palette) IsTransparent(name string) bool { return p.transparent[name] }
func (p *Palette) IsEmissive(name string) bool    { return p.emissive[name] }

// Collection is an ordered subset of a palette.
type Collection struct {
	pal *Palette
	idx []int
}

// Collection returns every block except the excluded names. Naming a block
// the palette does not have is an error; an empty result is not.
func (p *Palette) Collection(exclude ...string) (Collection, error) {
	skip := make(map[int]bool, len(exclude))
	for _, n := range exclude {
		i, ok := p.index[n]
		if !ok {
			return Collection{}, fmt.Errorf("%w: %q excluded", ErrUnknownBlock, n)
		}
		skip[i] = true
	}
	c := Collection{pal: p}
	for i := range p.blocks {
		if !skip[i] {
			c.idx = append(c.idx, i)
		}
	}
	return c, nil
}

// Filter keeps the blocks keep reports true for.
func (c Collection) Filter(keep func(name string) bool) Collection {
	out := Collection{pal: c.pal}
	for _, i := range c.idx {
		if keep(c.pal.blocks[i].Name) {
			out.idx = append(out.idx, i)
		}
	}
	return out
}

func (c Collection) Len() int { return len(c.idx) }

// At returns the i-th block of the collection in palette order.
func (c Collection) At(i int) *Block { return &c.pal.blocks[c.idx[i]] }

func (c Collection) Palette() *Palette { return c.pal }

func (c Collection) Names() []string {
	out := make([]string, len(c.idx))
	for k, i := range c.idx {
		out[k] = c.pal.blocks[i].Name
	}
	return out
}
