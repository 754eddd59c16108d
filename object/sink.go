package object

import (
	"bufio"
	"crypto/md5"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"strubs/chunk"
	"strubs/cmn"
	"strubs/plan"
	"strubs/rs"
	"strubs/store"
	"strubs/volume"
)

// sinkHighWatermark is the buffered-but-unflushed byte threshold at which
// Write reports backpressure, per spec.md §4.4's write/drain contract.
// Grounded on the teacher's downloader package, which gates its own
// progress writes on a similar fixed byte threshold rather than a
// configurable one (cmd/downloader in the teacher lineage).
const sinkHighWatermark = 4 << 20

// Sink is the write pipeline of spec.md §4.4: createWithSize pre-creates
// K+M temp slice files and writes their file headers; Write spools the
// incoming byte stream to a local staging file while tracking a running
// MD5; End re-chunks the staging file into the K+M slice files, computing
// parity per stripe via the rs engine.
//
// Re-chunking from a fully-staged file rather than interleaving writes
// across K+M open files concurrently is grounded on ec/putjogger.go's
// generateSlicesToDisk/initializeSlices/finalizeSlices: the teacher
// likewise encodes EC shards by reading section windows of an
// already-written object file, not by fanning out the client's write
// calls directly to shard files.
type Sink struct {
	svc *Service

	id        string
	requestID string
	oid       chunk.ObjectID
	plan      plan.Plan

	cksumType string

	staging   *os.File
	stagingW  *bufio.Writer
	md5       hash.Hash
	written   int64
	declared  int64
	unflushed int64

	tempFiles       []*os.File
	tempPaths       []string
	finalPaths      []string
	acquiredVolumes []*volume.Volume

	OnDrain func()

	finished bool
	Result   Result
}

// Result is what a caller needs to commit a finished Sink.
type Result struct {
	ID            string
	Size          int64
	MD5           []byte
	ChunkSize     int64
	DataVolumes   []int
	ParityVolumes []int
}

// NewSink pre-creates K+M temp slice files for a declared-size write, per
// spec.md §4.4 step 1.
func NewSink(svc *Service, declaredSize int64) (*Sink, error) {
	if err := svc.checkAborted(); err != nil {
		return nil, err
	}
	conf := cmn.GCO.Get()
	k, m := conf.EC.DataSlices, conf.EC.ParitySlices

	p, err := plan.Compute(declaredSize, k, m, conf.EC.ChunkSize, svc.Volumes)
	if err != nil {
		return nil, err
	}

	id := store.NewObjectID()
	oid, err := chunk.ParseObjectID(id)
	if err != nil {
		return nil, err
	}

	staging, err := os.CreateTemp("", "strubs-stage-*")
	if err != nil {
		return nil, err
	}

	s := &Sink{
		svc:       svc,
		id:        id,
		requestID: uuid.NewString(),
		oid:       oid,
		plan:      p,
		cksumType: conf.EC.Cksum,
		staging:   staging,
		stagingW:  bufio.NewWriter(staging),
		md5:       md5.New(),
		declared:  declaredSize,
	}
	cmn.Infof("sink: request %s opening object %s (k=%d m=%d size=%d)", s.requestID, id, k, m, declaredSize)

	allVolumes := append(append([]int(nil), p.DataVolumes...), p.ParityVolumes...)
	for i, volID := range allVolumes {
		kind := chunk.SliceKindData
		if i >= k {
			kind = chunk.SliceKindParity
		}
		vol := svc.Volumes.Get(volID)
		if vol == nil {
			s.abortTempFiles()
			return nil, cmn.ErrNoVolumes
		}
		// Admission: a slice write counts against its volume's queue depth
		// (spec.md §4.2 step 1's "priority previously assigned to the
		// request"), released on Commit or Abort.
		vol.Acquire()
		s.acquiredVolumes = append(s.acquiredVolumes, vol)
		finalPath := vol.SliceFQN(id, i)
		tempPath := finalPath + volume.TempSuffix + id
		if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
			s.abortTempFiles()
			return nil, err
		}
		f, err := os.Create(tempPath)
		if err != nil {
			s.abortTempFiles()
			return nil, err
		}
		hdr := chunk.FileHeader{
			Version:       chunk.FrameVersion,
			ObjectID:      oid,
			SliceIndex:    uint16(i),
			SliceKind:     kind,
			K:             uint8(k),
			M:             uint8(m),
			ChunkSize:     uint32(p.ChunkSize),
			SliceDataSize: uint64(p.SliceDataSize),
		}
		if err := chunk.WriteFileHeader(f, hdr); err != nil {
			f.Close()
			s.abortTempFiles()
			return nil, err
		}
		s.tempFiles = append(s.tempFiles, f)
		s.tempPaths = append(s.tempPaths, tempPath)
		s.finalPaths = append(s.finalPaths, finalPath)
	}
	return s, nil
}

// ID returns the object id assigned at createWithSize time.
func (s *Sink) ID() string { return s.id }

// RequestID returns the correlation id generated for this write, surfaced
// for logging and priority-queue admission per spec.md §4.3's `requestId`.
func (s *Sink) RequestID() string { return s.requestID }

func (s *Sink) releaseVolumes() {
	for _, vol := range s.acquiredVolumes {
		vol.Release()
	}
	s.acquiredVolumes = nil
}

// Write appends p to the staging stream, per spec.md §4.4 step 2. It
// returns false when the unflushed byte count crosses sinkHighWatermark;
// OnDrain is invoked (synchronously, before Write returns) once the
// backing buffer has been flushed, satisfying the "no further write
// before drain" contract trivially.
func (s *Sink) Write(p []byte) (bool, error) {
	if err := s.svc.checkAborted(); err != nil {
		return false, err
	}
	if _, err := s.stagingW.Write(p); err != nil {
		return false, err
	}
	s.md5.Write(p)
	s.written += int64(len(p))
	s.unflushed += int64(len(p))

	if s.unflushed >= sinkHighWatermark {
		if err := s.stagingW.Flush(); err != nil {
			return false, err
		}
		s.unflushed = 0
		if s.OnDrain != nil {
			s.OnDrain()
		}
		return false, nil
	}
	return true, nil
}

// End closes the write side of the staging stream and re-chunks it into
// the K+M slice files, per spec.md §4.4 steps 2-3. It does not rename
// temp files into place or insert the metadata record -- that is Commit's
// job (spec.md §4.5).
func (s *Sink) End() (Result, error) {
	if s.written != s.declared {
		s.Abort()
		return Result{}, fmt.Errorf("%w: wrote %d bytes, declared %d", cmn.ErrIOShort, s.written, s.declared)
	}
	if err := s.stagingW.Flush(); err != nil {
		s.Abort()
		return Result{}, err
	}

	k, m := int(s.plan.K), int(s.plan.M)
	d := plan.ChunkPayloadSize(s.plan.ChunkSize)
	engine, err := rs.New(k, m)
	if err != nil {
		s.Abort()
		return Result{}, err
	}

	for c := int64(0); c < s.plan.ChunkCount; c++ {
		shards := make([][]byte, k)
		lengths := make([]int, k)
		for i := 0; i < k; i++ {
			buf, n, err := s.readShard(i, c, d)
			if err != nil {
				s.Abort()
				return Result{}, err
			}
			shards[i] = buf
			lengths[i] = n
		}
		parity, err := engine.Encode(shards)
		if err != nil {
			s.Abort()
			return Result{}, err
		}

		// Parity chunks are written at the stripe's chunk length under the
		// sliceDataSize layout (d, or less on the last stripe), so every
		// parity slice has size SliceSize. Every data shard is zero past
		// that length, so the dropped parity bytes are zero too and the
		// reader restores them by zero-padding. Data chunks are written at
		// their actual content length, so a data slice whose content ends
		// early is shorter than SliceSize.
		stripeLen := s.plan.SliceDataSize - c*d
		if stripeLen > d {
			stripeLen = d
		}
		if stripeLen < 0 {
			stripeLen = 0
		}

		// Fan the K+M chunk writes for this stripe out across goroutines --
		// each slice is a distinct file (and, in a real deployment, a
		// distinct volume), so the writes don't contend with each other.
		// Grounded on the teacher's concurrent-fan-out idiom for per-stripe
		// slice I/O (ec/putjogger.go's per-stripe goroutine dispatch),
		// generalized from cluster-wide transport to local goroutines via
		// golang.org/x/sync/errgroup.
		var g errgroup.Group
		for i := 0; i < k; i++ {
			i := i
			g.Go(func() error {
				return chunk.WriteChunk(s.tempFiles[i], s.cksumType, int32(c), shards[i][:lengths[i]])
			})
		}
		for j := 0; j < m; j++ {
			j := j
			g.Go(func() error {
				return chunk.WriteChunk(s.tempFiles[k+j], s.cksumType, int32(c), parity[j][:stripeLen])
			})
		}
		if err := g.Wait(); err != nil {
			s.Abort()
			return Result{}, err
		}
	}

	for _, f := range s.tempFiles {
		if err := f.Sync(); err != nil {
			s.Abort()
			return Result{}, err
		}
	}

	os.Remove(s.staging.Name())
	s.staging.Close()

	s.finished = true
	s.Result = Result{
		ID:            s.id,
		Size:          s.written,
		MD5:           s.md5.Sum(nil),
		ChunkSize:     s.plan.ChunkSize,
		DataVolumes:   s.plan.DataVolumes,
		ParityVolumes: s.plan.ParityVolumes,
	}
	return s.Result, nil
}

// readShard reads data slice i's chunk c into a d-byte buffer, zero-padded
// past the object's actual content -- the last chunk of the last data
// slice is the common case, but any slice may be shorter than
// SliceDataSize when fileSize isn't a multiple of k.
func (s *Sink) readShard(i int, c, d int64) (buf []byte, actualLen int, err error) {
	buf = make([]byte, d)
	offset := int64(i)*s.plan.SliceDataSize + c*d
	sliceRemaining := s.plan.SliceDataSize - c*d
	if sliceRemaining <= 0 {
		return buf, 0, nil
	}
	want := sliceRemaining
	if want > d {
		want = d
	}
	avail := s.declared - offset
	if avail < 0 {
		avail = 0
	}
	if avail < want {
		want = avail
	}
	if want <= 0 {
		return buf, 0, nil
	}
	if _, err := s.staging.ReadAt(buf[:want], offset); err != nil && err != io.EOF {
		return nil, 0, err
	}
	return buf, int(want), nil
}

// Commit renames the K+M temp files into place and inserts the metadata
// record, per spec.md §4.5's commit protocol (fsync, rename, insert); the
// fsync step is done by End.
func (s *Sink) Commit(containerID, name, path, mime string) (*store.ObjectRecord, error) {
	if !s.finished {
		return nil, fmt.Errorf("%w: commit before end", cmn.ErrCommit)
	}
	defer s.releaseVolumes()
	for _, f := range s.tempFiles {
		f.Close()
	}

	renamed := 0
	for i, tmp := range s.tempPaths {
		if err := os.Rename(tmp, s.finalPaths[i]); err != nil {
			// Roll back by deleting every file outright -- temp and
			// already-renamed alike -- per spec.md §4.5 step 2, rather
			// than renaming committed files back to temp names.
			for j := 0; j < renamed; j++ {
				os.Remove(s.finalPaths[j])
			}
			for j := renamed; j < len(s.tempPaths); j++ {
				os.Remove(s.tempPaths[j])
			}
			return nil, fmt.Errorf("%w: %v", cmn.ErrCommit, err)
		}
		renamed++
	}

	rec := &store.ObjectRecord{
		ID:            s.Result.ID,
		ContainerID:   containerID,
		Name:          name,
		Path:          path,
		Size:          s.Result.Size,
		Mime:          mime,
		MD5:           s.Result.MD5,
		ChunkSize:     s.Result.ChunkSize,
		DataVolumes:   s.Result.DataVolumes,
		ParityVolumes: s.Result.ParityVolumes,
	}
	if err := s.svc.Store.InsertObject(rec); err != nil {
		for _, p := range s.finalPaths {
			os.Remove(p)
		}
		return nil, err
	}
	return rec, nil
}

// Abort discards every temp file and the staging file. Safe to call after
// a partial End failure or when a client cancels mid-upload.
func (s *Sink) Abort() {
	s.releaseVolumes()
	for _, f := range s.tempFiles {
		f.Close()
	}
	for _, p := range s.tempPaths {
		os.Remove(p)
	}
	if s.staging != nil {
		s.staging.Close()
		os.Remove(s.staging.Name())
	}
}

func (s *Sink) abortTempFiles() {
	s.releaseVolumes()
	for _, f := range s.tempFiles {
		f.Close()
	}
	for _, p := range s.tempPaths {
		os.Remove(p)
	}
	s.staging.Close()
	os.Remove(s.staging.Name())
}
