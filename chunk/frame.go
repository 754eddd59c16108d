// Package chunk implements the on-disk slice framing: a fixed file header
// followed by a sequence of checksummed chunks, per spec.md §3/§4.2.
//
// The file header is placed outside chunk 0 (every chunk has the same
// payload capacity D = chunkSize - ChunkHeaderSize); this is the
// convention spec.md §9's Open Question asks implementers to fix and
// record, recorded here as FrameVersion.
package chunk

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"

	"strubs/cmn"
	"strubs/plan"
)

const (
	FileHeaderSize  = plan.FileHeaderSize
	ChunkHeaderSize = plan.ChunkHeaderSize

	fileMagic  uint32 = 0x53545242 // "STRB"
	chunkMagic uint32 = 0x43484b31 // "CHK1"

	FrameVersion uint8 = 1

	SliceKindData   uint8 = 0
	SliceKindParity uint8 = 1
)

// ObjectID is the 16-byte on-disk form of the object's 24-hex id, per
// spec.md §3's "objectId (16 bytes)" file-header field. STRUBS ids decode
// to 12 bytes; the remaining 4 are reserved and always zero.
type ObjectID [16]byte

// ParseObjectID decodes a 24-hex-character id into its on-disk form.
func ParseObjectID(hexID string) (ObjectID, error) {
	var id ObjectID
	if len(hexID) != 24 {
		return id, fmt.Errorf("object id %q: want 24 hex chars, got %d", hexID, len(hexID))
	}
	buf, err := hex.DecodeString(hexID)
	if err != nil {
		return id, fmt.Errorf("object id %q: %w", hexID, err)
	}
	copy(id[:12], buf)
	return id, nil
}

func (id ObjectID) Hex() string {
	return hex.EncodeToString(id[:12])
}

// FileHeader is the fixed-size header at the start of every slice file.
type FileHeader struct {
	Version       uint8
	ObjectID      ObjectID
	SliceIndex    uint16
	SliceKind     uint8
	K             uint8
	M             uint8
	ChunkSize     uint32
	SliceDataSize uint64
}

// ChunkHeader is the fixed-size header preceding every chunk's payload.
type ChunkHeader struct {
	ChunkIndex int32
	Length     int32
	Checksum   uint64
}

// WriteFileHeader emits h in the on-disk layout (FileHeaderSize bytes;
// bytes past the SliceDataSize field are reserved and left zero).
func WriteFileHeader(w io.Writer, h FileHeader) error {
	buf := make([]byte, FileHeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], fileMagic)
	buf[4] = h.Version
	copy(buf[8:24], h.ObjectID[:])
	binary.BigEndian.PutUint16(buf[24:26], h.SliceIndex)
	buf[26] = h.SliceKind
	buf[27] = h.K
	buf[28] = h.M
	binary.BigEndian.PutUint32(buf[30:34], h.ChunkSize)
	binary.BigEndian.PutUint64(buf[34:42], h.SliceDataSize)
	_, err := w.Write(buf)
	return err
}

// ReadFileHeader parses and validates a file header read from r, checking
// magic/version per spec.md §4.2's readFrame contract.
func ReadFileHeader(r io.Reader) (FileHeader, error) {
	var h FileHeader
	buf := make([]byte, FileHeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			return h, fmt.Errorf("%w: short file header", cmn.ErrIOShort)
		}
		return h, err
	}
	if magic := binary.BigEndian.Uint32(buf[0:4]); magic != fileMagic {
		return h, fmt.Errorf("%w: bad file header magic", cmn.ErrChecksum)
	}
	h.Version = buf[4]
	if h.Version != FrameVersion {
		return h, fmt.Errorf("%w: unsupported file header version %d", cmn.ErrChecksum, h.Version)
	}
	copy(h.ObjectID[:], buf[8:24])
	h.SliceIndex = binary.BigEndian.Uint16(buf[24:26])
	h.SliceKind = buf[26]
	h.K = buf[27]
	h.M = buf[28]
	h.ChunkSize = binary.BigEndian.Uint32(buf[30:34])
	h.SliceDataSize = binary.BigEndian.Uint64(buf[34:42])
	return h, nil
}

// D returns the payload capacity of every chunk for a slice framed with
// this file header's chunk size.
func (h FileHeader) D() int64 { return int64(h.ChunkSize) - ChunkHeaderSize }

func writeChunkHeader(w io.Writer, h ChunkHeader) error {
	buf := make([]byte, ChunkHeaderSize)
	binary.BigEndian.PutUint32(buf[0:4], chunkMagic)
	binary.BigEndian.PutUint32(buf[4:8], uint32(h.ChunkIndex))
	binary.BigEndian.PutUint32(buf[8:12], uint32(h.Length))
	binary.BigEndian.PutUint64(buf[12:20], h.Checksum)
	_, err := w.Write(buf)
	return err
}

func readChunkHeader(r io.Reader) (ChunkHeader, error) {
	var h ChunkHeader
	buf := make([]byte, ChunkHeaderSize)
	n, err := io.ReadFull(r, buf)
	if err != nil {
		if n == 0 && err == io.EOF {
			return h, io.EOF
		}
		return h, fmt.Errorf("%w: short chunk header", cmn.ErrIOShort)
	}
	if magic := binary.BigEndian.Uint32(buf[0:4]); magic != chunkMagic {
		return h, fmt.Errorf("%w: bad chunk header magic", cmn.ErrChecksum)
	}
	h.ChunkIndex = int32(binary.BigEndian.Uint32(buf[4:8]))
	h.Length = int32(binary.BigEndian.Uint32(buf[8:12]))
	h.Checksum = binary.BigEndian.Uint64(buf[12:20])
	return h, nil
}

// WriteChunk writes one chunk (header + payload) to w, checksumming
// payload with cksumType. payload may be shorter than D only for the last
// chunk of a slice, per spec.md §4.2.
func WriteChunk(w io.Writer, cksumType string, chunkIndex int32, payload []byte) error {
	sum := cmn.Sum(cksumType, payload)
	if err := writeChunkHeader(w, ChunkHeader{
		ChunkIndex: chunkIndex,
		Length:     int32(len(payload)),
		Checksum:   sum.Value,
	}); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// ReadChunk reads one chunk from r into a buffer of at most d bytes,
// verifying its checksum. Returns io.EOF when r has no more chunks.
func ReadChunk(r io.Reader, cksumType string, d int64, sliceIndex, volumeID int) ([]byte, int32, error) {
	hdr, err := readChunkHeader(r)
	if err != nil {
		if err == io.EOF {
			return nil, 0, io.EOF
		}
		return nil, 0, cmn.NewSliceError(err, sliceIndex, volumeID, int(hdr.ChunkIndex))
	}
	if int64(hdr.Length) > d || hdr.Length < 0 {
		return nil, 0, cmn.NewSliceError(
			fmt.Errorf("%w: chunk length %d exceeds capacity %d", cmn.ErrChecksum, hdr.Length, d),
			sliceIndex, volumeID, int(hdr.ChunkIndex))
	}
	payload := make([]byte, hdr.Length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, 0, cmn.NewSliceError(fmt.Errorf("%w: %v", cmn.ErrIOShort, err), sliceIndex, volumeID, int(hdr.ChunkIndex))
	}
	if cksumType != cmn.ChecksumNone {
		sum := cmn.Sum(cksumType, payload)
		if sum.Value != hdr.Checksum {
			return nil, 0, cmn.NewSliceError(cmn.ErrChecksum, sliceIndex, volumeID, int(hdr.ChunkIndex))
		}
	}
	return payload, hdr.ChunkIndex, nil
}
