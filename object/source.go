package object

import (
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"

	"strubs/chunk"
	"strubs/cmn"
	"strubs/plan"
	"strubs/rs"
	"strubs/store"
	"strubs/volume"
)

// Source is the read pipeline of spec.md §4.6. It implements io.ReadCloser:
// the natural Go rendering of a pull-based, backpressured byte stream (see
// the package doc comment in service.go). Grounded on ais/tgtobj.go's
// getObjInfo normal-read path and ec/getjogger.go's restore-on-miss
// reconstruction path.
type Source struct {
	svc       *Service
	rec       *store.ObjectRecord
	requestID string

	k, m          int
	d             int64
	sliceDataSize int64
	chunkCount    int64

	files     []*os.File       // len k+m; nil entry means that slice is unavailable
	volumeID  []int            // volume id backing each slice index, for error reporting
	cursor    []int64          // next chunk index each file is positioned to read, -1 if unknown
	acquired  []*volume.Volume // volumes with an outstanding queue-depth admission, released on Close

	start, end int64 // [start, end) of the object this Source serves
	pos        int64

	pending []byte // undelivered bytes from the chunk-stripe currently decoded
	stripe  int64  // chunk index pending belongs to, -1 if none buffered
}

// OpenForRead opens every reachable slice file for id's object and
// prepares a Source over the whole object. Missing slice files are
// tolerated here, however many there are; they surface as a read error
// only if a later stripe actually needs them and reconstruction fails.
func OpenForRead(svc *Service, id string) (*Source, error) {
	if err := svc.checkAborted(); err != nil {
		return nil, err
	}
	rec, err := svc.Store.GetObjectByID(id)
	if err != nil {
		return nil, err
	}

	k, m := len(rec.DataVolumes), len(rec.ParityVolumes)
	d := plan.ChunkPayloadSize(rec.ChunkSize)
	sliceDataSize := plan.SliceDataSize(rec.Size, k)
	chunkCount := plan.ChunkCount(sliceDataSize, rec.ChunkSize)

	src := &Source{
		svc: svc, rec: rec,
		requestID: uuid.NewString(),
		k:         k, m: m,
		d:             d,
		sliceDataSize: sliceDataSize, chunkCount: chunkCount,
		files:  make([]*os.File, k+m),
		cursor: make([]int64, k+m),
		end:    rec.Size,
		stripe: -1,
	}
	for i := range src.cursor {
		src.cursor[i] = -1
	}

	allVolumes := append(append([]int(nil), rec.DataVolumes...), rec.ParityVolumes...)
	src.volumeID = allVolumes
	for i, volID := range allVolumes {
		vol := svc.Volumes.Get(volID)
		if vol == nil {
			continue
		}
		f, err := os.Open(vol.SliceFQN(id, i))
		if err != nil {
			continue // tolerated; reconstruction covers it if needed
		}
		if _, err := chunk.ReadFileHeader(f); err != nil {
			f.Close()
			continue
		}
		vol.Acquire()
		src.acquired = append(src.acquired, vol)
		src.files[i] = f
	}
	cmn.Infof("source: request %s opened object %s (%d/%d slices reachable)", src.requestID, id, len(src.acquired), k+m)
	return src, nil
}

// RequestID returns the correlation id generated for this read, surfaced
// for logging and priority-queue admission per spec.md §4.3's `requestId`.
func (src *Source) RequestID() string { return src.requestID }

// SetReadRange restricts Read to the half-open byte range [start, end) of
// the object, per spec.md §4.6's range-request support. Must be called
// before the first Read.
func (src *Source) SetReadRange(start, end int64) error {
	if start < 0 || end > src.rec.Size || start > end {
		return cmn.ErrRange
	}
	src.start, src.end, src.pos = start, end, start
	return nil
}

// Read implements io.Reader, decoding chunk stripes on demand and
// projecting them onto the requested byte range.
func (src *Source) Read(p []byte) (int, error) {
	if err := src.svc.checkAborted(); err != nil {
		return 0, err
	}
	if src.pos >= src.end {
		return 0, io.EOF
	}

	if len(src.pending) == 0 {
		// byte pos lives in data slice pos/sliceDataSize at offset
		// pos%sliceDataSize, i.e. in that slice's chunk (offset / d).
		chunkIdx := (src.pos % src.sliceDataSize) / src.d
		if err := src.loadStripe(chunkIdx); err != nil {
			return 0, err
		}
	}

	n := copy(p, src.pending)
	src.pending = src.pending[n:]
	src.pos += int64(n)
	return n, nil
}

// Close releases every open slice file and its volume admission.
func (src *Source) Close() error {
	for _, f := range src.files {
		if f != nil {
			f.Close()
		}
	}
	for _, vol := range src.acquired {
		vol.Release()
	}
	src.acquired = nil
	return nil
}

// loadStripe reads chunk index c from every slice, reconstructing missing
// or corrupt data shards via Reed-Solomon, and buffers into src.pending the
// bytes of the data slice holding src.pos, from src.pos to the end of that
// slice's chunk c (capped at src.end).
func (src *Source) loadStripe(c int64) error {
	shards := make([][]byte, src.k+src.m)

	for i := 0; i < src.k+src.m; i++ {
		buf, err := src.readSliceChunk(i, c)
		if err != nil {
			shards[i] = nil
			continue
		}
		if int64(len(buf)) < src.d {
			// the last chunk of a data slice is stored truncated to its
			// actual payload; RS needs every shard the same length, so
			// restore the zero padding the encoder saw.
			padded := make([]byte, src.d)
			copy(padded, buf)
			buf = padded
		}
		shards[i] = buf
	}

	needsRepair := false
	for i := 0; i < src.k; i++ {
		if shards[i] == nil {
			needsRepair = true
			break
		}
	}
	if needsRepair {
		engine, err := rs.New(src.k, src.m)
		if err != nil {
			return err
		}
		if err := engine.Reconstruct(shards); err != nil {
			return err
		}
	}

	// Concatenate the k data shards in slice order, then trim to the
	// stripe's actual payload length (the last stripe is short).
	stripeStart := c * src.d
	stripeLen := src.sliceDataSize - stripeStart
	if stripeLen > src.d {
		stripeLen = src.d
	}
	payload := make([]byte, 0, int64(src.k)*src.d)
	for i := 0; i < src.k; i++ {
		payload = append(payload, shards[i]...)
	}

	// Each data slice's c'th chunk covers object-relative bytes
	// [i*sliceDataSize + stripeStart, i*sliceDataSize + stripeStart + stripeLen)
	// for i in 0..k-1; take the span holding src.pos, from src.pos on, so
	// Read delivers bytes in object order.
	var out []byte
	for i := 0; i < src.k; i++ {
		lo := int64(i)*src.sliceDataSize + stripeStart
		hi := lo + stripeLen
		if hi > src.rec.Size {
			hi = src.rec.Size
		}
		if hi <= lo {
			continue
		}
		segLo, segHi := lo, hi
		if segLo < src.pos {
			segLo = src.pos
		}
		if segHi > src.end {
			segHi = src.end
		}
		if segLo >= segHi {
			continue
		}
		base := int64(i) * src.d
		out = append(out, payload[base+(segLo-lo):base+(segHi-lo)]...)
		break
	}

	src.pending = out
	src.stripe = c
	return nil
}

// readSliceChunk reads chunk c of slice sliceIdx. Chunks are variable
// length on disk (the last chunk of a slice may be short), so random
// access means scanning forward from a known position; src.cursor tracks
// each file's next unread chunk index so the common sequential-read case
// (front-to-back streaming) costs one ReadChunk per byte range, not a
// rescan from the slice's start.
func (src *Source) readSliceChunk(sliceIdx int, c int64) ([]byte, error) {
	f := src.files[sliceIdx]
	if f == nil {
		return nil, fmt.Errorf("%w: slice %d unavailable", cmn.ErrIO, sliceIdx)
	}
	if src.cursor[sliceIdx] == -1 || c < src.cursor[sliceIdx] {
		if _, err := f.Seek(int64(chunk.FileHeaderSize), io.SeekStart); err != nil {
			return nil, err
		}
		src.cursor[sliceIdx] = 0
	}
	for {
		payload, gotIdx, err := chunk.ReadChunk(f, src.cksumType(), src.d, sliceIdx, src.volumeID[sliceIdx])
		if err != nil {
			return nil, err
		}
		src.cursor[sliceIdx]++
		if int64(gotIdx) == c {
			return payload, nil
		}
		if src.cursor[sliceIdx] > src.chunkCount {
			return nil, fmt.Errorf("%w: chunk %d not found in slice %d", cmn.ErrIO, c, sliceIdx)
		}
	}
}

func (src *Source) cksumType() string {
	return cmn.GCO.Get().EC.Cksum
}
