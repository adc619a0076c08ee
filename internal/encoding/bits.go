package encoding

import (
	"errors"
	"fmt"
)

var ErrShortBuffer = errors.New("encoding: read past end of buffer")

// BitWriter appends bits most-significant first.
type BitWriter struct {
	buf   []byte
	nbits int
}

// NewBitWriter preallocates room for sizeBits bits.
func NewBitWriter(sizeBits int) *BitWriter {
	return &BitWriter{buf: make([]byte, 0, (sizeBits+7)/8)}
}

// WriteBits writes the low n bits of v, 0 <= n <= 64.
func (w *BitWriter) WriteBits(v uint64, n int) {
	for i := n - 1; i >= 0; i-- {
		if w.nbits%8 == 0 {
			w.buf = append(w.buf, 0)
		}
		if v>>uint(i)&1 == 1 {
			w.buf[len(w.buf)-1] |= 0x80 >> uint(w.nbits%8)
		}
		w.nbits++
	}
}

// Len is the number of bits written.
func (w *BitWriter) Len() int { return w.nbits }

// Bytes returns the written bits, zero-padded to a whole byte.
func (w *BitWriter) Bytes() []byte { return w.buf }

// BitReader reads bits most-significant first.
type BitReader struct {
	buf []byte
	pos int
}

func NewBitReader(buf []byte) *BitReader { return &BitReader{buf: buf} }

func (r *BitReader) ReadBits(n int) (uint64, error) {
	if r.pos+n > len(r.buf)*8 {
		return 0, fmt.Errorf("%w: want %d bits at %d", ErrShortBuffer, n, r.pos)
	}
	var v uint64
	for i := 0; i < n; i++ {
		bit := r.buf[r.pos/8] >> uint(7-r.pos%8) & 1
		v = v<<1 | uint64(bit)
		r.pos++
	}
	return v, nil
}

func (r *BitReader) Skip(n int) error {
	if r.pos+n > len(r.buf)*8 {
		return fmt.Errorf("%w: skip %d bits at %d", ErrShortBuffer, n, r.pos)
	}
	r.pos += n
	return nil
}

// Remaining is the number of unread bits.
func (r *BitReader) Remaining() int { return len(r.buf)*8 - r.pos }
