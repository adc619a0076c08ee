package encoding

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
)

var ErrBadRLE = errors.New("encoding: malformed run-length data")

// EncodeRLE encodes palette indices as base64 of (index, run) uvarint pairs.
func EncodeRLE(ids []uint32) string {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte

	for i := 0; i < len(ids); {
		id := ids[i]
		run := 1
		for i+run < len(ids) && ids[i+run] == id {
			run++
		}
		n := binary.PutUvarint(tmp[:], uint64(id))
		buf.Write(tmp[:n])
		n = binary.PutUvarint(tmp[:], uint64(run))
		buf.Write(tmp[:n])
		i += run
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// DecodeRLE reverses EncodeRLE. It refuses to expand past limit entries.
func DecodeRLE(b64 string, limit int) ([]uint32, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRLE, err)
	}
	var out []uint32
	for i := 0; i < len(raw); {
		id, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("%w: bad varint at %d", ErrBadRLE, i)
		}
		i += n
		run, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("%w: bad varint at %d", ErrBadRLE, i)
		}
		i += n
		if id > 0xFFFFFFFF {
			return nil, fmt.Errorf("%w: index too large: %d", ErrBadRLE, id)
		}
		if run == 0 || run > uint64(limit-len(out)) {
			return nil, fmt.Errorf("%w: run of %d exceeds limit %d", ErrBadRLE, run, limit)
		}
		for k := uint64(0); k < run; k++ {
			out = append(out, uint32(id))
		}
	}
	return out, nil
}
