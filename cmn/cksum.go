package cmn

import (
	"github.com/OneOfOne/xxhash"
)

// Checksum type names, mirrored after the teacher's CksumConf.Type values
// (cmn/config.go: conf.Type != cmn.ChecksumNone).
const (
	ChecksumNone   = "none"
	ChecksumXXHash = "xxhash"
)

// Cksum is a finalized checksum value: the algorithm name plus the digest.
type Cksum struct {
	Type  string
	Value uint64
}

// Equal reports whether two checksums are the same algorithm and value.
func (c Cksum) Equal(o Cksum) bool {
	return c.Type == o.Type && c.Value == o.Value
}

// Sum computes a one-shot checksum over buf, used for small per-chunk
// payloads where keeping a running hash object alive is unnecessary
// overhead.
func Sum(typ string, buf []byte) Cksum {
	if typ == ChecksumNone {
		return Cksum{Type: ChecksumNone}
	}
	h := xxhash.New64()
	h.Write(buf)
	return Cksum{Type: typ, Value: h.Sum64()}
}
