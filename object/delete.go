package object

import (
	"errors"
	"os"

	"strubs/cmn"
)

// Delete removes a committed object: every slice file, then the metadata
// record, per spec.md §4.5's delete protocol. Slice files are removed
// first so a crash mid-delete leaves an orphaned metadata record rather
// than unreachable slice files with no record pointing at them. The
// startup sweep does not detect such a record.
//
// Missing slice files and a missing metadata record are both tolerated:
// spec.md testable property 5 requires delete to be idempotent.
func Delete(svc *Service, id string) error {
	if err := svc.checkAborted(); err != nil {
		return err
	}
	rec, err := svc.Store.GetObjectByID(id)
	if err != nil {
		if errors.Is(err, cmn.ErrNotExist) {
			return nil
		}
		return err
	}

	allVolumes := append(append([]int(nil), rec.DataVolumes...), rec.ParityVolumes...)
	for i := len(allVolumes) - 1; i >= 0; i-- {
		vol := svc.Volumes.Get(allVolumes[i])
		if vol == nil {
			continue
		}
		if err := os.Remove(vol.SliceFQN(id, i)); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return svc.Store.DeleteObject(id)
}
