//go:build linux

package volume

import "syscall"

// FreeBytes stats the volume's filesystem for available space, used by
// the "least-full" placement tiebreaker (spec.md §4.1).
func (v *Volume) FreeBytes() (uint64, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(v.MountPath, &st); err != nil {
		return 0, err
	}
	return st.Bavail * uint64(st.Bsize), nil
}
