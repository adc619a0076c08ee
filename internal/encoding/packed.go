package encoding

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/bits"
)

var (
	ErrPaletteTooSmall = errors.New("encoding: palette must have at least 2 entries")
	ErrStrideTooLarge  = errors.New("encoding: stride exceeds 32 bits")
	ErrIndexRange      = errors.New("encoding: index out of palette range")
	ErrPackedLength    = errors.New("encoding: packed buffer has the wrong length")
)

// Stride is the bits per index for a palette: ceil(log2(n)), at least 2.
func Stride(paletteSize int) (int, error) {
	if paletteSize < 2 {
		return 0, fmt.Errorf("%w (got %d)", ErrPaletteTooSmall, paletteSize)
	}
	s := bits.Len64(uint64(paletteSize - 1))
	if s < 2 {
		s = 2
	}
	if s > 32 {
		return 0, fmt.Errorf("%w (palette %d)", ErrStrideTooLarge, paletteSize)
	}
	return s, nil
}

// PackedLen is the byte length Pack produces for count indices.
func PackedLen(count, stride int) int {
	return paddedBits(count, stride) / 8
}

func paddedBits(count, stride int) int {
	total := count * stride
	return (total + 63) / 64 * 64
}

// Pack writes indices at a fixed stride into whole 64-bit words. The
// stream starts with zero padding, then holds the indices from last to
// first, each most-significant bit first. Read as one big-endian number,
// index i therefore sits at bits [i*stride, (i+1)*stride).
func Pack(indices []uint32, paletteSize int) ([]byte, error) {
	stride, err := Stride(paletteSize)
	if err != nil {
		return nil, err
	}
	padded := paddedBits(len(indices), stride)
	w := NewBitWriter(padded)
	for pad := padded - len(indices)*stride; pad > 0; {
		n := min(pad, 64)
		w.WriteBits(0, n)
		pad -= n
	}
	for i := len(indices) - 1; i >= 0; i-- {
		v := indices[i]
		if int64(v) >= int64(paletteSize) {
			return nil, fmt.Errorf("%w: index %d = %d, palette %d", ErrIndexRange, i, v, paletteSize)
		}
		w.WriteBits(uint64(v), stride)
	}
	return w.Bytes(), nil
}

// Unpack is the inverse of Pack.
func Unpack(buf []byte, count, paletteSize int) ([]uint32, error) {
	stride, err := Stride(paletteSize)
	if err != nil {
		return nil, err
	}
	padded := paddedBits(count, stride)
	if len(buf)*8 != padded {
		return nil, fmt.Errorf("%w: %d bytes for %d indices at stride %d", ErrPackedLength, len(buf), count, stride)
	}
	r := NewBitReader(buf)
	if err := r.Skip(padded - count*stride); err != nil {
		return nil, err
	}
	out := make([]uint32, count)
	for i := count - 1; i >= 0; i-- {
		v, err := r.ReadBits(stride)
		if err != nil {
			return nil, err
		}
		if v >= uint64(paletteSize) {
			return nil, fmt.Errorf("%w: index %d = %d, palette %d", ErrIndexRange, i, v, paletteSize)
		}
		out[i] = uint32(v)
	}
	return out, nil
}

// Words splits a packed buffer into big-endian [high, low] 32-bit pairs.
// len(buf) must be a multiple of 8.
func Words(buf []byte) [][2]uint32 {
	out := make([][2]uint32, 0, len(buf)/8)
	for i := 0; i+8 <= len(buf); i += 8 {
		out = append(out, [2]uint32{
			binary.BigEndian.Uint32(buf[i:]),
			binary.BigEndian.Uint32(buf[i+4:]),
		})
	}
	return out
}

// Longs reads a packed buffer as signed 64-bit values, first word first.
func Longs(buf []byte) []int64 {
	out := make([]int64, 0, len(buf)/8)
	for i := 0; i+8 <= len(buf); i += 8 {
		out = append(out, int64(binary.BigEndian.Uint64(buf[i:])))
	}
	return out
}
