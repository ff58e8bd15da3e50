// Package encoding packs column data (surface blocks and heights) for the
// observer stream.
package encoding

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"
)

// Run is a value repeated Len times.
type Run struct {
	Value uint16
	Len   int
}

// Runs collapses vals into runs of equal values.
func Runs(vals []uint16) []Run {
	var out []Run
	for _, v := range vals {
		if n := len(out); n > 0 && out[n-1].Value == v {
			out[n-1].Len++
			continue
		}
		out = append(out, Run{Value: v, Len: 1})
	}
	return out
}

// EncodeRLE writes vals as base64 of uvarint (value, run length) pairs.
func EncodeRLE(vals []uint16) string {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte
	for _, r := range Runs(vals) {
		buf.Write(tmp[:binary.PutUvarint(tmp[:], uint64(r.Value))])
		buf.Write(tmp[:binary.PutUvarint(tmp[:], uint64(r.Len))])
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// DecodeRLE reverses EncodeRLE. limit > 0 caps the decoded length so a
// hostile run length cannot balloon memory.
func DecodeRLE(b64 string, limit int) ([]uint16, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	var out []uint16
	for i := 0; i < len(raw); {
		v, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		run, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		if v > 0xFFFF {
			return nil, fmt.Errorf("value too large: %d", v)
		}
		if run == 0 {
			return nil, fmt.Errorf("empty run at %d", i)
		}
		if limit > 0 && uint64(len(out))+run > uint64(limit) {
			return nil, fmt.Errorf("decoded length exceeds %d", limit)
		}
		for k := uint64(0); k < run; k++ {
			out = append(out, uint16(v))
		}
	}
	return out, nil
}
