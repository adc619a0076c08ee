package importer

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"voxelsmith.ai/internal/colour"
)

type mtlMaterial struct {
	kd      colour.RGBA
	hasKd   bool
	texture string
}

func (p *objParser) loadMTL(name string) {
	f, err := p.open(name)
	if err != nil {
		p.logf("obj: mtllib %s: %v", name, err)
		return
	}
	defer f.Close()
	for k, v := range parseMTL(f) {
		p.materials[k] = v
	}
}

// parseMTL is lenient: unknown statements and unparsable values are skipped.
func parseMTL(r io.Reader) map[string]*mtlMaterial {
	out := map[string]*mtlMaterial{}
	var cur *mtlMaterial
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		if fields[0] == "newmtl" {
			cur = &mtlMaterial{kd: DefaultColour}
			out[strings.Join(fields[1:], " ")] = cur
			continue
		}
		if cur == nil {
			continue
		}
		switch fields[0] {
		case "Kd":
			if f, err := parseFloats(fields[1:]); err == nil && len(f) >= 3 {
				cur.kd = colour.RGBA{R: float32(f[0]), G: float32(f[1]), B: float32(f[2]), A: cur.kd.A}.Clamp()
				cur.hasKd = true
			}
		case "d":
			if len(fields) > 1 {
				if d, err := strconv.ParseFloat(fields[len(fields)-1], 64); err == nil {
					cur.kd.A = float32(d)
				}
			}
		case "Tr":
			if len(fields) > 1 {
				if tr, err := strconv.ParseFloat(fields[len(fields)-1], 64); err == nil {
					cur.kd.A = float32(1 - tr)
				}
			}
		case "map_Kd":
			// Options (-s, -o, ...) precede the file name.
			if len(fields) > 1 {
				cur.texture = fields[len(fields)-1]
			}
		}
	}
	return out
}
