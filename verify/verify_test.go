package verify_test

import (
	"bytes"
	"os"
	"testing"

	"strubs/cmn"
	"strubs/ioshutdown"
	"strubs/object"
	"strubs/store"
	"strubs/testutil"
	"strubs/verify"
	"strubs/volume"
)

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
		Verify: cmn.VerifyConf{BatchSize: 25, ProgressEvery: 5},
	})

	return object.NewService(reg, st, &ioshutdown.Token{})
}

func writeObject(t *testing.T, svc *object.Service, data []byte) object.Result {
	t.Helper()
	sink, err := object.NewSink(svc, int64(len(data)))
	testutil.CheckFatal(t, err)
	_, err = sink.Write(data)
	testutil.CheckFatal(t, err)
	result, err := sink.End()
	testutil.CheckFatal(t, err)
	_, err = sink.Commit("", "obj", "/obj", "application/octet-stream")
	testutil.CheckFatal(t, err)
	return result
}

func TestVerifyCleanRunFindsNoErrors(t *testing.T) {
	svc := newTestService(t, 4, 2, 256)
	writeObject(t, svc, bytes.Repeat([]byte("clean data"), 100))

	job := verify.NewJob(svc)
	testutil.CheckFatal(t, job.Run())

	summary, err := svc.Store.GetLastVerify()
	testutil.CheckFatal(t, err)
	testutil.Fatalf(t, summary != nil, "want a last-verify summary after a run")
	testutil.Errorf(t, summary.ChecksumErrors == 0, "want no checksum errors, got %d", summary.ChecksumErrors)
	testutil.Errorf(t, summary.TotalErrors == 0, "want no total errors, got %d", summary.TotalErrors)

	_, resumed, err := svc.Store.GetVerifyStartedAt()
	testutil.CheckFatal(t, err)
	testutil.Errorf(t, !resumed, "verifyStartedAt should be cleared after a clean run")
}

func TestVerifyDetectsChecksumCorruption(t *testing.T) {
	svc := newTestService(t, 4, 2, 256)
	result := writeObject(t, svc, bytes.Repeat([]byte("corrupt me please"), 100))

	rec, err := svc.Store.GetObjectByID(result.ID)
	testutil.CheckFatal(t, err)
	vol := svc.Volumes.Get(rec.DataVolumes[0])
	path := vol.SliceFQN(result.ID, 0)

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	testutil.CheckFatal(t, err)
	var b [1]byte
	_, err = f.ReadAt(b[:], 100)
	testutil.CheckFatal(t, err)
	b[0] ^= 0xFF
	_, err = f.WriteAt(b[:], 100)
	testutil.CheckFatal(t, err)
	testutil.CheckFatal(t, f.Close())

	job := verify.NewJob(svc)
	testutil.CheckFatal(t, job.Run())

	summary, err := svc.Store.GetLastVerify()
	testutil.CheckFatal(t, err)
	testutil.Fatalf(t, summary != nil, "want a last-verify summary")
	testutil.Errorf(t, summary.ChecksumErrors > 0, "want at least one checksum error recorded")

	got, err := svc.Store.GetObjectByID(result.ID)
	testutil.CheckFatal(t, err)
	entry, ok := got.SliceErrors["0"]
	testutil.Fatalf(t, ok, "want a sliceErrors entry for the corrupted slice 0")
	testutil.Errorf(t, entry.Checksum, "want slice 0's error entry to have checksum=true")
}

func TestVerifyPreservesStartedAtAfterCancellation(t *testing.T) {
	svc := newTestService(t, 4, 2, 256)
	writeObject(t, svc, bytes.Repeat([]byte("a"), 10))
	writeObject(t, svc, bytes.Repeat([]byte("b"), 10))

	token := svc.Token
	token.Abort("simulated shutdown")

	job := verify.NewJob(svc)
	err := job.Run()
	testutil.Fatalf(t, err != nil, "want Run to return an error when the token is already aborted")

	startedAt, resumed, err := svc.Store.GetVerifyStartedAt()
	testutil.CheckFatal(t, err)
	testutil.Fatalf(t, resumed, "want verifyStartedAt preserved after cancellation")
	testutil.Errorf(t, !startedAt.IsZero(), "verifyStartedAt should be a real timestamp")
}
