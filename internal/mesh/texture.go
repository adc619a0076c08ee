package mesh

import (
	"math"

	"voxelsmith.ai/internal/colour"
)

type Filter int

const (
	FilterNearest Filter = iota
	FilterLinear
)

type Wrap int

const (
	WrapClamp Wrap = iota
	WrapRepeat
)

// Texture is a decoded RGBA8 image, row-major with the first row at the top.
type Texture struct {
	Width  int
	Height int
	Pix    []uint8
	Filter Filter
	Wrap   Wrap
}

func (t *Texture) texel(x, y int) colour.RGBA {
	x = t.address(x, t.Width)
	y = t.address(y, t.Height)
	i := 4 * (y*t.Width + x)
	return colour.FromRGBA8(t.Pix[i], t.Pix[i+1], t.Pix[i+2], t.Pix[i+3])
}

func (t *Texture) address(i, n int) int {
	if t.Wrap == WrapRepeat {
		i %= n
		if i < 0 {
			i += n
		}
		return i
	}
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// Sample looks up uv, with v pointing up (OBJ convention). Non-finite
// coordinates and empty textures yield colour.Error.
func (t *Texture) Sample(uv UV) colour.RGBA {
	if t == nil || t.Width <= 0 || t.Height <= 0 || len(t.Pix) < 4*t.Width*t.Height {
		return colour.Error
	}
	if !finite(uv.U) || !finite(uv.V) {
		return colour.Error
	}
	u, v := uv.U, uv.V
	if t.Wrap == WrapRepeat {
		u -= math.Floor(u)
		v -= math.Floor(v)
	} else {
		u = math.Min(math.Max(u, 0), 1)
		v = math.Min(math.Max(v, 0), 1)
	}
	fx := u * float64(t.Width-1)
	fy := (1 - v) * float64(t.Height-1)

	if t.Filter == FilterNearest {
		return t.texel(int(math.Round(fx)), int(math.Round(fy)))
	}

	x0 := int(math.Floor(fx))
	y0 := int(math.Floor(fy))
	tx := float32(fx - float64(x0))
	ty := float32(fy - float64(y0))
	c00 := t.texel(x0, y0)
	c10 := t.texel(x0+1, y0)
	c01 := t.texel(x0, y0+1)
	c11 := t.texel(x0+1, y0+1)
	top := c00.Scale(1 - tx).Add(c10.Scale(tx))
	bottom := c01.Scale(1 - tx).Add(c11.Scale(tx))
	return top.Scale(1 - ty).Add(bottom.Scale(ty))
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
