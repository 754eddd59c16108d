// Package plan computes the on-disk shape of an object's storage: slice
// and chunk sizing and the volumes a write will land on. It is pure --
// no I/O -- generalized from the teacher's SliceSize helper
// (ec/putjogger.go) to also produce chunk counts and total slice size per
// spec.md §4.1.
package plan

import (
	"strubs/cmn"
)

// FileHeaderSize and ChunkHeaderSize are the fixed framing sizes from
// spec.md §3. Exported here because Plan.SliceSize depends on them;
// package chunk imports plan for these constants, not the other way around.
const (
	FileHeaderSize  = 64
	ChunkHeaderSize = 24
)

// Plan is the computed shape of one object's storage, per spec.md §3/§4.1.
type Plan struct {
	FileSize      int64
	K             int
	M             int
	ChunkSize     int64
	SliceDataSize int64
	ChunkCount    int64
	SliceSize     int64
	DataVolumes   []int
	ParityVolumes []int
}

// VolumeSelector is the narrow interface Compute uses to assign volumes,
// letting plan stay I/O-free and unit-testable in isolation (spec.md §9:
// "dependency injection in the source is a testing seam only").
type VolumeSelector interface {
	// Select returns n distinct online volume ids, ordered by the
	// registry's placement policy (queue depth, then free space, then
	// lowest id). Returns cmn.ErrNoVolumes if fewer than n are
	// available.
	Select(n int) ([]int, error)
}

// chunkPayloadSize returns D = chunkSize - ChunkHeaderSize, the payload
// capacity of every chunk under the header-outside-chunk convention this
// module uses (spec.md §9 Open Question, resolved in SPEC_FULL.md §3).
func chunkPayloadSize(chunkSize int64) int64 {
	return chunkSize - ChunkHeaderSize
}

// Compute derives a Plan for fileSize bytes split across k data and m
// parity slices framed with chunkSize chunks, then assigns k+m distinct
// volumes via sel.
func Compute(fileSize int64, k, m int, chunkSize int64, sel VolumeSelector) (Plan, error) {
	p := Plan{FileSize: fileSize, K: k, M: m, ChunkSize: chunkSize}

	if fileSize == 0 {
		p.SliceDataSize = 0
		p.ChunkCount = 0
		p.SliceSize = FileHeaderSize
	} else {
		d := chunkPayloadSize(chunkSize)
		p.SliceDataSize = SliceDataSize(fileSize, k)
		p.ChunkCount = ceilDiv(p.SliceDataSize, d)
		p.SliceSize = FileHeaderSize + p.SliceDataSize + p.ChunkCount*ChunkHeaderSize
	}

	ids, err := sel.Select(k + m)
	if err != nil {
		return Plan{}, err
	}
	p.DataVolumes = append([]int(nil), ids[:k]...)
	p.ParityVolumes = append([]int(nil), ids[k:]...)
	return p, nil
}

// SliceDataSize returns ceil(fileSize / k), the number of payload bytes
// each data slice carries. Exported so package object can recompute a
// Plan's shape from a persisted record without re-running volume
// selection.
func SliceDataSize(fileSize int64, k int) int64 {
	return ceilDiv(fileSize, int64(k))
}

// ChunkCount returns the number of chunks a slice of sliceDataSize bytes
// is framed into at chunkSize per chunk.
func ChunkCount(sliceDataSize, chunkSize int64) int64 {
	return ceilDiv(sliceDataSize, chunkPayloadSize(chunkSize))
}

// ChunkPayloadSize exports chunkPayloadSize for callers outside this
// package that need D without recomputing a whole Plan.
func ChunkPayloadSize(chunkSize int64) int64 {
	return chunkPayloadSize(chunkSize)
}

func ceilDiv(a, b int64) int64 {
	if a == 0 {
		return 0
	}
	return (a + b - 1) / b
}

// Validate checks that exactly k data and m parity volumes are assigned.
// Slice and chunk sizes are not checked.
func (p Plan) Validate() error {
	if len(p.DataVolumes) != p.K || len(p.ParityVolumes) != p.M {
		return cmn.ErrNoVolumes
	}
	return nil
}
