package chunk_test

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"strubs/chunk"
	"strubs/cmn"
	"strubs/testutil"
)

func TestFileHeaderRoundTrip(t *testing.T) {
	id, err := chunk.ParseObjectID("0123456789abcdef01234567")
	testutil.CheckFatal(t, err)

	h := chunk.FileHeader{
		Version:       chunk.FrameVersion,
		ObjectID:      id,
		SliceIndex:    3,
		SliceKind:     chunk.SliceKindData,
		K:             4,
		M:             2,
		ChunkSize:     65536,
		SliceDataSize: 123456,
	}

	var buf bytes.Buffer
	testutil.CheckFatal(t, chunk.WriteFileHeader(&buf, h))
	testutil.Errorf(t, buf.Len() == chunk.FileHeaderSize, "header length = %d, want %d", buf.Len(), chunk.FileHeaderSize)

	got, err := chunk.ReadFileHeader(&buf)
	testutil.CheckFatal(t, err)
	testutil.Errorf(t, got == h, "round-tripped header = %+v, want %+v", got, h)
}

func TestChunkRoundTrip(t *testing.T) {
	payload := []byte("the quick brown fox jumps over the lazy dog")

	var buf bytes.Buffer
	testutil.CheckFatal(t, chunk.WriteChunk(&buf, cmn.ChecksumXXHash, 0, payload))

	got, idx, err := chunk.ReadChunk(&buf, cmn.ChecksumXXHash, int64(len(payload)), 0, 0)
	testutil.CheckFatal(t, err)
	testutil.Errorf(t, idx == 0, "chunk index = %d, want 0", idx)
	testutil.Errorf(t, bytes.Equal(got, payload), "payload mismatch: got %q want %q", got, payload)
}

func TestChunkChecksumMismatch(t *testing.T) {
	payload := []byte("corrupt me")
	var buf bytes.Buffer
	testutil.CheckFatal(t, chunk.WriteChunk(&buf, cmn.ChecksumXXHash, 1, payload))

	raw := buf.Bytes()
	raw[len(raw)-1] ^= 0xFF // flip last payload byte on disk

	_, _, err := chunk.ReadChunk(bytes.NewReader(raw), cmn.ChecksumXXHash, int64(len(payload)), 2, 5)
	testutil.Fatalf(t, cmn.IsChecksumErr(err), "want ECHECKSUM, got %v", err)

	var se *cmn.SliceError
	testutil.Fatalf(t, errors.As(err, &se), "want *cmn.SliceError, got %T", err)
	testutil.Errorf(t, se.SliceIndex == 2 && se.VolumeID == 5, "slice error coordinates = %d/%d, want 2/5", se.SliceIndex, se.VolumeID)
}

func TestReadChunkEOF(t *testing.T) {
	_, _, err := chunk.ReadChunk(bytes.NewReader(nil), cmn.ChecksumXXHash, 100, 0, 0)
	testutil.Fatalf(t, err == io.EOF, "want io.EOF, got %v", err)
}
