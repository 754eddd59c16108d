// Package volume enumerates configured volumes (mounted block devices
// holding slice files), tracks per-volume liveness/free-space/queue depth,
// and assigns slice files to volumes during planning, per spec.md §2
// item 1 and §4.1.
package volume

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/atomic"

	"strubs/cmn"
)

// State is a volume's lifecycle state, per spec.md §3's Volume record.
type State int

const (
	Online State = iota
	Draining
	Offline
)

func (s State) String() string {
	switch s {
	case Online:
		return "online"
	case Draining:
		return "draining"
	case Offline:
		return "offline"
	default:
		return "unknown"
	}
}

// Volume is one configured mount root, generalized from the teacher's
// mountpath model (fs/fqn_test.go's mountpath-prefix matching) from "a
// content-type subtree under a mountpath" to "a whole volume root holding
// slice files."
type Volume struct {
	ID        int
	UUID      string
	MountPath string
	Priority  int

	state    atomic.Int32 // State
	queue    atomic.Int64 // in-flight I/O ops, for "prefer low queue depth"
	cksumErr atomic.Int64
	totalErr atomic.Int64
}

func (v *Volume) State() State       { return State(v.state.Load()) }
func (v *Volume) SetState(s State)   { v.state.Store(int32(s)) }
func (v *Volume) QueueDepth() int64  { return v.queue.Load() }
func (v *Volume) Acquire()           { v.queue.Inc() }
func (v *Volume) Release()           { v.queue.Dec() }
func (v *Volume) VerifyErrors() (checksum, total int64) {
	return v.cksumErr.Load(), v.totalErr.Load()
}

// RecordVerifyError increments the volume's verify-error counters, per
// spec.md §4.7 step 4: ECHECKSUM increments checksum, anything else
// increments total only.
func (v *Volume) RecordVerifyError(isChecksum bool) {
	v.totalErr.Inc()
	if isChecksum {
		v.cksumErr.Inc()
	}
}

// ResetVerifyCounters zeros both counters, per spec.md §4.7 step 1 (fresh
// run).
func (v *Volume) ResetVerifyCounters() {
	v.cksumErr.Store(0)
	v.totalErr.Store(0)
}

// SliceFQN returns the on-disk path for sliceIndex of objectID on this
// volume, per spec.md §3: {mountPath}/{id[0:2]}/{id[2:4]}/{id}.{index}.
func (v *Volume) SliceFQN(objectID string, sliceIndex int) string {
	return filepath.Join(v.MountPath, objectID[0:2], objectID[2:4], fmt.Sprintf("%s.%d", objectID, sliceIndex))
}

// Registry tracks every configured volume and assigns slices to volumes
// during planning (spec.md §4.1's volume-assignment algorithm).
type Registry struct {
	mu      sync.RWMutex
	volumes map[int]*Volume
}

// NewRegistry builds a registry from a list of (id, uuid, mountPath,
// priority) tuples, all initially Online.
func NewRegistry(vols []Volume) *Registry {
	r := &Registry{volumes: make(map[int]*Volume, len(vols))}
	for i := range vols {
		v := vols[i]
		r.volumes[v.ID] = &v
	}
	return r
}

// FromRoots builds the Volume list a Registry is constructed from out of
// the configured mount roots (spec.md §6's `volumes.roots`), creating each
// root directory if it doesn't yet exist and assigning it a fresh
// persistent id (index order) and uuid. Grounded on spec.md §3's Volume
// record shape; the teacher has no equivalent standalone function (its
// mountpath set is built into `fs`, which this module doesn't carry -- see
// DESIGN.md). `priority` is 0 for every volume; the admin CLI's `volumes`
// command lists it but does not change it.
func FromRoots(roots []string) ([]Volume, error) {
	vols := make([]Volume, len(roots))
	for i, root := range roots {
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, fmt.Errorf("volume %d (%s): %w", i, root, err)
		}
		vols[i] = Volume{
			ID:        i,
			UUID:      uuid.NewString(),
			MountPath: root,
			Priority:  0,
		}
	}
	return vols, nil
}

// Get returns the volume with the given id, or nil.
func (r *Registry) Get(id int) *Volume {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.volumes[id]
}

// All returns every registered volume, in id order.
func (r *Registry) All() []*Volume {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Volume, 0, len(r.volumes))
	for _, v := range r.volumes {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Select implements plan.VolumeSelector: picks n distinct online volumes
// preferring low queue depth, then most free space, then lowest id, per
// spec.md §4.1. Ties are not rotated between calls: equal volumes are
// always picked lowest id first.
func (r *Registry) Select(n int) ([]int, error) {
	r.mu.RLock()
	candidates := make([]*Volume, 0, len(r.volumes))
	for _, v := range r.volumes {
		if v.State() == Online {
			candidates = append(candidates, v)
		}
	}
	r.mu.RUnlock()

	if len(candidates) < n {
		return nil, cmn.ErrNoVolumes
	}

	type scored struct {
		v    *Volume
		free uint64
	}
	scoredList := make([]scored, len(candidates))
	for i, v := range candidates {
		free, _ := v.FreeBytes() // best effort; zero-value sorts last
		scoredList[i] = scored{v: v, free: free}
	}
	sort.Slice(scoredList, func(i, j int) bool {
		a, b := scoredList[i], scoredList[j]
		if a.v.QueueDepth() != b.v.QueueDepth() {
			return a.v.QueueDepth() < b.v.QueueDepth()
		}
		if a.free != b.free {
			return a.free > b.free
		}
		return a.v.ID < b.v.ID
	})

	ids := make([]int, n)
	for i := 0; i < n; i++ {
		ids[i] = scoredList[i].v.ID
	}
	return ids, nil
}

// Online marks volume id online (e.g. after it recovers), idempotent.
func (r *Registry) Online(id int) {
	if v := r.Get(id); v != nil {
		v.SetState(Online)
	}
}

// Drain marks volume id draining: still readable, no longer a placement
// target.
func (r *Registry) Drain(id int) {
	if v := r.Get(id); v != nil {
		v.SetState(Draining)
	}
}

// Offline marks volume id offline.
func (r *Registry) Offline(id int) {
	if v := r.Get(id); v != nil {
		v.SetState(Offline)
	}
}
