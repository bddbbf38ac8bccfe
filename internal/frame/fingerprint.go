package frame

import (
	"encoding/binary"
	"math"
	"time"

	"github.com/zeebo/xxh3"
)

// Cell tags keep values of different types from hashing alike ("1" vs 1).
const (
	tagNull byte = iota
	tagString
	tagFloat
	tagInt
	tagBool
	tagTime
)

// Fingerprint hashes the frame's names, types and cells with xxh3. Frames with
// identical content produce identical fingerprints.
func (f *Frame) Fingerprint() uint64 {
	h := xxh3.New()
	var buf [9]byte
	for _, c := range f.cols {
		_, _ = h.WriteString(c.name)
		buf[0] = 0
		buf[1] = byte(c.dtype)
		_, _ = h.Write(buf[:2])
		for _, v := range c.values {
			switch x := v.(type) {
			case nil:
				buf[0] = tagNull
				_, _ = h.Write(buf[:1])
			case string:
				buf[0] = tagString
				binary.LittleEndian.PutUint64(buf[1:], uint64(len(x)))
				_, _ = h.Write(buf[:9])
				_, _ = h.WriteString(x)
			case float64:
				buf[0] = tagFloat
				binary.LittleEndian.PutUint64(buf[1:], math.Float64bits(x))
				_, _ = h.Write(buf[:9])
			case int64:
				buf[0] = tagInt
				binary.LittleEndian.PutUint64(buf[1:], uint64(x))
				_, _ = h.Write(buf[:9])
			case bool:
				buf[0] = tagBool
				buf[1] = 0
				if x {
					buf[1] = 1
				}
				_, _ = h.Write(buf[:2])
			case time.Time:
				buf[0] = tagTime
				binary.LittleEndian.PutUint64(buf[1:], uint64(x.UnixNano()))
				_, _ = h.Write(buf[:9])
			}
		}
	}
	return h.Sum64()
}
