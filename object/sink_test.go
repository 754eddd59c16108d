package object_test

import (
	"bytes"
	"crypto/md5"
	"errors"
	"testing"

	"strubs/cmn"
	"strubs/ioshutdown"
	"strubs/object"
	"strubs/store"
	"strubs/testutil"
	"strubs/volume"
)

// newTestService wires an object.Service over k+m scratch volume
// directories and a fresh metadata store, with a small chunk size so
// multi-chunk/multi-stripe behavior is exercised without huge test
// payloads.
func newTestService(t *testing.T, k, m int, chunkSize int64) *object.Service {
	t.Helper()
	n := k + m
	vols := make([]volume.Volume, n)
	for i := 0; i < n; i++ {
		vols[i] = volume.Volume{ID: i, UUID: "v", MountPath: t.TempDir(), Priority: 0}
	}
	reg := volume.NewRegistry(vols)
	for i := 0; i < n; i++ {
		reg.Online(i)
	}

	st, err := store.Open(t.TempDir())
	testutil.CheckFatal(t, err)

	cmn.GCO.Put(&cmn.Config{
		EC: cmn.ECConf{
			DataSlices:   k,
			ParitySlices: m,
			ChunkSize:    chunkSize,
			Cksum:        cmn.ChecksumXXHash,
		},
	})

	return object.NewService(reg, st, &ioshutdown.Token{})
}

func writeObject(t *testing.T, svc *object.Service, data []byte) object.Result {
	t.Helper()
	sink, err := object.NewSink(svc, int64(len(data)))
	testutil.CheckFatal(t, err)

	const writeSize = 17 // deliberately not aligned to chunk/slice boundaries
	for off := 0; off < len(data); off += writeSize {
		end := off + writeSize
		if end > len(data) {
			end = len(data)
		}
		_, err := sink.Write(data[off:end])
		testutil.CheckFatal(t, err)
	}

	result, err := sink.End()
	testutil.CheckFatal(t, err)
	sum := md5.Sum(data)
	testutil.Errorf(t, bytes.Equal(result.MD5, sum[:]), "md5 mismatch")

	_, err = sink.Commit("", "obj", "/obj", "application/octet-stream")
	testutil.CheckFatal(t, err)
	return result
}

func TestSinkWriteCommitRoundTrip(t *testing.T) {
	svc := newTestService(t, 4, 2, 256)
	data := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog. "), 100) // > several stripes

	result := writeObject(t, svc, data)
	testutil.Errorf(t, result.Size == int64(len(data)), "size = %d, want %d", result.Size, len(data))

	rec, err := svc.Store.GetObjectByID(result.ID)
	testutil.CheckFatal(t, err)
	testutil.Errorf(t, rec.Size == int64(len(data)), "stored size mismatch")
	testutil.Errorf(t, len(rec.DataVolumes) == 4 && len(rec.ParityVolumes) == 2, "volume assignment mismatch")
}

func TestSinkRejectsSizeMismatch(t *testing.T) {
	svc := newTestService(t, 4, 2, 256)
	sink, err := object.NewSink(svc, 100)
	testutil.CheckFatal(t, err)

	_, err = sink.Write([]byte("too short"))
	testutil.CheckFatal(t, err)

	_, err = sink.End()
	testutil.Fatalf(t, err != nil, "want error when written bytes don't match declared size")
}

func TestDeleteIsIdempotent(t *testing.T) {
	svc := newTestService(t, 4, 2, 256)
	data := []byte("small object")
	result := writeObject(t, svc, data)

	testutil.CheckFatal(t, object.Delete(svc, result.ID))
	testutil.CheckFatal(t, object.Delete(svc, result.ID)) // spec.md testable property 5

	_, err := svc.Store.GetObjectByID(result.ID)
	testutil.Fatalf(t, errors.Is(err, cmn.ErrNotExist), "want ENOENT after delete, got %v", err)
}
