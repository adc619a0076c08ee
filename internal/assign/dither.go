package assign

import (
	"voxelsmith.ai/internal/colour"
	"voxelsmith.ai/internal/geom"
)

// bayer2 ranks the eight corners of a 2×2×2 cube.
var bayer2 = [2][2][2]int{
	{{0, 6}, {4, 3}},
	{{2, 5}, {7, 1}},
}

// bayer4 is the 4×4×4 threshold matrix, values 0..63: the low bit of each
// coordinate picks the coarse rank, the high bit the fine one.
var bayer4 = func() (m [4][4][4]int) {
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			for z := 0; z < 4; z++ {
				m[x][y][z] = 8*bayer2[x&1][y&1][z&1] + bayer2[x>>1][y>>1][z>>1]
			}
		}
	}
	return m
}()

// quantize bins c to the configured resolution and applies dithering. The
// result is always a binned colour so it can key the match cache.
func (c *Config) quantize(pos geom.IVec3, in colour.RGBA) colour.RGBA {
	q := in.Bin(c.Resolution)
	d, ok := c.dither(pos, q)
	if !ok {
		return q
	}
	return d.Clamp().Bin(c.Resolution)
}

// dither offsets the binned colour q for pos, before it is clamped and
// binned again. ok is false when dithering is off or has no magnitude.
func (c *Config) dither(pos geom.IVec3, q colour.RGBA) (colour.RGBA, bool) {
	m := float32(c.Dithering.Magnitude)
	if m == 0 {
		return q, false
	}
	switch c.Dithering.Mode {
	case DitherRandom:
		noise := func(ch int) float32 {
			return float32(geom.Unit3(c.Seed+int64(ch)*0x632be59bd9b4e019, pos.X, pos.Y, pos.Z)-0.5) * m
		}
		q.R += noise(0)
		q.G += noise(1)
		q.B += noise(2)
		return q, true
	case DitherOrdered:
		t := bayer4[geom.Mod(pos.X, 4)][geom.Mod(pos.Y, 4)][geom.Mod(pos.Z, 4)]
		return q.Offset((float32(t)/64 - 0.5) * m), true
	}
	return q, false
}
