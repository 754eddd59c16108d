package volume_test

import (
	"os"
	"path/filepath"
	"testing"

	"strubs/testutil"
	"strubs/volume"
)

func newTestRegistry(t *testing.T, n int) (*volume.Registry, []string) {
	dirs := make([]string, n)
	vols := make([]volume.Volume, n)
	for i := 0; i < n; i++ {
		dir := t.TempDir()
		dirs[i] = dir
		vols[i] = volume.Volume{ID: i, UUID: "uuid-" + string(rune('a'+i)), MountPath: dir, Priority: 0}
	}
	return volume.NewRegistry(vols), dirs
}

func TestSelectPrefersLowQueueDepth(t *testing.T) {
	reg, _ := newTestRegistry(t, 3)
	reg.Get(0).Acquire()
	reg.Get(0).Acquire()

	ids, err := reg.Select(2)
	testutil.CheckFatal(t, err)
	testutil.Errorf(t, len(ids) == 2, "want 2 ids, got %d", len(ids))
	for _, id := range ids {
		testutil.Errorf(t, id != 0, "volume 0 has highest queue depth and should not be first-chosen, got ids %v", ids)
	}
}

func TestSelectNotEnoughVolumes(t *testing.T) {
	reg, _ := newTestRegistry(t, 2)
	_, err := reg.Select(3)
	testutil.Fatalf(t, err != nil, "want ENOVOLUMES, got nil")
}

func TestSelectSkipsOffline(t *testing.T) {
	reg, _ := newTestRegistry(t, 3)
	reg.Offline(1)

	ids, err := reg.Select(2)
	testutil.CheckFatal(t, err)
	for _, id := range ids {
		testutil.Errorf(t, id != 1, "offline volume 1 should never be selected, got ids %v", ids)
	}
}

func TestSweepRemovesOrphanTempFiles(t *testing.T) {
	reg, dirs := newTestRegistry(t, 1)
	sub := filepath.Join(dirs[0], "ab", "cd")
	testutil.CheckFatal(t, os.MkdirAll(sub, 0o755))

	orphan := filepath.Join(sub, "abcd1234.0.tmp-xyz")
	keep := filepath.Join(sub, "abcd1234.0")
	testutil.CheckFatal(t, os.WriteFile(orphan, []byte("x"), 0o644))
	testutil.CheckFatal(t, os.WriteFile(keep, []byte("x"), 0o644))

	res := reg.Sweep()
	testutil.Errorf(t, res.OrphansRemoved == 1, "want 1 orphan removed, got %d", res.OrphansRemoved)

	_, err := os.Stat(orphan)
	testutil.Errorf(t, os.IsNotExist(err), "orphan temp file should have been removed")
	_, err = os.Stat(keep)
	testutil.Errorf(t, err == nil, "committed slice file should survive sweep")
}

func TestSliceFQNLayout(t *testing.T) {
	v := volume.Volume{ID: 0, MountPath: "/vol0"}
	got := v.SliceFQN("0123456789abcdef01234567", 3)
	want := "/vol0/01/23/0123456789abcdef01234567.3"
	testutil.Errorf(t, got == want, "SliceFQN = %q, want %q", got, want)
}
