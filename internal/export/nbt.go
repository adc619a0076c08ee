package export

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/sandertv/gophertunnel/minecraft/nbt"
)

type nbtVec struct {
	X int32 `nbt:"x"`
	Y int32 `nbt:"y"`
	Z int32 `nbt:"z"`
}

type nbtEmpty struct{}

// writeGzipNBT encodes v as a big-endian NBT compound named root and
// gzips it into w.
func writeGzipNBT(w io.Writer, root string, v any) error {
	var buf bytes.Buffer
	if err := nbt.NewEncoderWithEncoding(&buf, nbt.BigEndian).Encode(v); err != nil {
		return fmt.Errorf("nbt: %w", err)
	}
	raw := buf.Bytes()
	// The encoder always writes an unnamed root: TAG_Compound, name length 0.
	if len(raw) < 3 || raw[0] != 0x0a || raw[1] != 0 || raw[2] != 0 {
		return fmt.Errorf("nbt: unexpected root header % x", raw[:min(3, len(raw))])
	}

	zw, err := gzip.NewWriterLevel(w, gzip.BestCompression)
	if err != nil {
		return err
	}
	header := append([]byte{0x0a, byte(len(root) >> 8), byte(len(root))}, root...)
	if _, err := zw.Write(header); err != nil {
		return err
	}
	if _, err := zw.Write(raw[3:]); err != nil {
		return err
	}
	return zw.Close()
}

// readGzipNBT is the inverse of writeGzipNBT. It returns the root name.
func readGzipNBT(r io.Reader, v any) (string, error) {
	zr, err := gzip.NewReader(r)
	if err != nil {
		return "", err
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return "", err
	}
	if len(raw) < 3 || raw[0] != 0x0a {
		return "", fmt.Errorf("nbt: not a compound")
	}
	n := int(raw[1])<<8 | int(raw[2])
	if len(raw) < 3+n {
		return "", fmt.Errorf("nbt: short root name")
	}
	root := string(raw[3 : 3+n])
	if err := nbt.UnmarshalEncoding(raw, v, nbt.BigEndian); err != nil {
		return root, fmt.Errorf("nbt: %w", err)
	}
	return root, nil
}
