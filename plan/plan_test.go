package plan_test

import (
	"testing"

	"strubs/cmn"
	"strubs/plan"
	"strubs/testutil"
)

// fakeSelector hands out volume ids 0..n-1 in order, or fails if more
// than avail are requested -- enough to exercise plan.Compute without any
// real volume package dependency, per SPEC_FULL.md §4.1's note that plan
// takes VolumeSelector purely as a testing seam.
type fakeSelector struct{ avail int }

func (f fakeSelector) Select(n int) ([]int, error) {
	if n > f.avail {
		return nil, cmn.ErrNoVolumes
	}
	ids := make([]int, n)
	for i := range ids {
		ids[i] = i
	}
	return ids, nil
}

func TestCompute(t *testing.T) {
	tests := []struct {
		name              string
		fileSize          int64
		k, m              int
		chunkSize         int64
		wantSliceDataSize int64
		wantChunkCount    int64
		wantSliceSize     int64
	}{
		{
			"empty file",
			0, 4, 2, 65536,
			0, 0, plan.FileHeaderSize,
		},
		{
			"one byte",
			1, 4, 2, 65536,
			1, 1, plan.FileHeaderSize + 1 + plan.ChunkHeaderSize,
		},
		{
			"exact stripe",
			4 * (65536 - plan.ChunkHeaderSize), 4, 2, 65536,
			65536 - plan.ChunkHeaderSize, 1, plan.FileHeaderSize + (65536 - plan.ChunkHeaderSize) + plan.ChunkHeaderSize,
		},
		{
			"spans two chunks per slice",
			4*(65536-plan.ChunkHeaderSize) + 4, 4, 2, 65536,
			65536 - plan.ChunkHeaderSize + 1, 2, plan.FileHeaderSize + (65536 - plan.ChunkHeaderSize + 1) + 2*plan.ChunkHeaderSize,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p, err := plan.Compute(tc.fileSize, tc.k, tc.m, tc.chunkSize, fakeSelector{avail: tc.k + tc.m})
			testutil.CheckFatal(t, err)
			testutil.Errorf(t, p.SliceDataSize == tc.wantSliceDataSize,
				"sliceDataSize = %d, want %d", p.SliceDataSize, tc.wantSliceDataSize)
			testutil.Errorf(t, p.ChunkCount == tc.wantChunkCount,
				"chunkCount = %d, want %d", p.ChunkCount, tc.wantChunkCount)
			if tc.wantSliceSize != 0 {
				testutil.Errorf(t, p.SliceSize == tc.wantSliceSize,
					"sliceSize = %d, want %d", p.SliceSize, tc.wantSliceSize)
			}
			testutil.CheckFatal(t, p.Validate())
			testutil.Errorf(t, len(p.DataVolumes) == tc.k, "len(DataVolumes) = %d, want %d", len(p.DataVolumes), tc.k)
			testutil.Errorf(t, len(p.ParityVolumes) == tc.m, "len(ParityVolumes) = %d, want %d", len(p.ParityVolumes), tc.m)
		})
	}
}

func TestComputeNoVolumes(t *testing.T) {
	_, err := plan.Compute(1000, 4, 2, 65536, fakeSelector{avail: 5})
	testutil.Fatalf(t, err == cmn.ErrNoVolumes, "want ErrNoVolumes, got %v", err)
}
