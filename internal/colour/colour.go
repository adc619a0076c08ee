// Package colour is the float RGBA type the voxel pipeline carries around.
// Channels are nominally in [0,1]; nothing here validates that.
package colour

import "math"

type RGBA struct {
	R, G, B, A float32
}

var (
	White = RGBA{1, 1, 1, 1}
	Black = RGBA{0, 0, 0, 1}
	// Error marks samples that could not be computed (NaN weights, missing
	// texture). It is deliberately loud.
	Error = RGBA{1, 0, 1, 1}
)

func FromRGBA8(r, g, b, a uint8) RGBA {
	return RGBA{float32(r) / 255, float32(g) / 255, float32(b) / 255, float32(a) / 255}
}

func (c RGBA) Add(o RGBA) RGBA {
	return RGBA{c.R + o.R, c.G + o.G, c.B + o.B, c.A + o.A}
}

func (c RGBA) Scale(f float32) RGBA {
	return RGBA{c.R * f, c.G * f, c.B * f, c.A * f}
}

// Offset adds d to the colour channels, leaving alpha alone.
func (c RGBA) Offset(d float32) RGBA {
	return RGBA{c.R + d, c.G + d, c.B + d, c.A}
}

func (c RGBA) IsNaN() bool {
	return isNaN(c.R) || isNaN(c.G) || isNaN(c.B) || isNaN(c.A)
}

func (c RGBA) Clamp() RGBA {
	return RGBA{clamp01(c.R), clamp01(c.G), clamp01(c.B), clamp01(c.A)}
}

// Blend3 is the barycentric combination w0*a + w1*b + w2*c.
func Blend3(a, b, c RGBA, w0, w1, w2 float32) RGBA {
	return a.Scale(w0).Add(b.Scale(w1)).Add(c.Scale(w2))
}

// Mean is the unweighted average; the zero colour for an empty input.
func Mean(cs []RGBA) RGBA {
	if len(cs) == 0 {
		return RGBA{}
	}
	var sum RGBA
	for _, c := range cs {
		sum = sum.Add(c)
	}
	return sum.Scale(1 / float32(len(cs)))
}

// SqDistRGB is the squared euclidean distance over r, g and b.
func SqDistRGB(a, b RGBA) float64 {
	dr := float64(a.R - b.R)
	dg := float64(a.G - b.G)
	db := float64(a.B - b.B)
	return dr*dr + dg*dg + db*db
}

// Bin snaps every channel to one of resolution levels and back onto the
// 8-bit grid, so 1.0 stays 1.0 for any resolution.
func (c RGBA) Bin(resolution int) RGBA {
	if resolution <= 0 || resolution >= 255 {
		return c.Quantize8()
	}
	r := float32(resolution)
	bin := func(v float32) float32 {
		v = clamp01(v)
		level := float32(math.Floor(float64(v * r)))
		return float32(math.Floor(float64(level*(255/r)))) / 255
	}
	return RGBA{bin(c.R), bin(c.G), bin(c.B), bin(c.A)}
}

// Quantize8 rounds every channel to the nearest 8-bit level.
func (c RGBA) Quantize8() RGBA {
	r, g, b, a := c.RGBA8()
	return FromRGBA8(r, g, b, a)
}

func (c RGBA) RGBA8() (r, g, b, a uint8) {
	return to8(c.R), to8(c.G), to8(c.B), to8(c.A)
}

// Hash packs the 8-bit levels into 32 bits. Colours that quantize to the same
// levels hash the same.
func (c RGBA) Hash() uint32 {
	r, g, b, a := c.RGBA8()
	return uint32(r)<<24 | uint32(g)<<16 | uint32(b)<<8 | uint32(a)
}

func to8(v float32) uint8 {
	return uint8(math.Round(float64(clamp01(v)) * 255))
}

func clamp01(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func isNaN(v float32) bool { return v != v }
