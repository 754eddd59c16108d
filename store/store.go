// Package store wraps the metadata document store consumed by the engine
// (spec.md §6's "Metadata store" collaborator interface). Grounded
// directly on the teacher-lineage pack's downloader/db.go, which persists
// its own small job store through the same github.com/sdomino/scribble
// driver -- a structural match for a "key-value-ish document store."
package store

import (
	"fmt"
	"os"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/sdomino/scribble"

	"strubs/cmn"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	collObjects    = "objects"
	collContainers = "containers"
	collVolumes    = "volumes"
	collConfig     = "runtimeConfig"

	keyVerifyStartedAt = "verifyStartedAt"
	keyLastVerify       = "lastVerify"
)

// SliceErrorEntry is the per-slice verification outcome recorded on an
// object, per spec.md §3: "sliceIndex → {checksum:bool} | {err:string}".
type SliceErrorEntry struct {
	Checksum bool   `json:"checksum,omitempty"`
	Err      string `json:"err,omitempty"`
}

// ObjectRecord is the Object record of spec.md §3.
type ObjectRecord struct {
	ID            string                     `json:"id"`
	ContainerID   string                     `json:"containerId,omitempty"`
	Name          string                     `json:"name"`
	Path          string                     `json:"path"`
	Size          int64                      `json:"size"`
	Mime          string                     `json:"mime,omitempty"`
	MD5           []byte                     `json:"md5"`
	ChunkSize     int64                      `json:"chunkSize"`
	DataVolumes   []int                      `json:"dataVolumes"`
	ParityVolumes []int                      `json:"parityVolumes"`
	SliceErrors   map[string]SliceErrorEntry `json:"sliceErrors,omitempty"`
	LastVerifiedAt *time.Time                `json:"lastVerifiedAt,omitempty"`
	IsContainer   bool                       `json:"isContainer,omitempty"`
}

// VolumeRecord is the Volume record of spec.md §3.
type VolumeRecord struct {
	ID            int    `json:"id"`
	UUID          string `json:"uuid"`
	MountPath     string `json:"mountPath"`
	Priority      int    `json:"priority"`
	VerifyChecksum int64 `json:"verifyChecksum"`
	VerifyTotal    int64 `json:"verifyTotal"`
	State         string `json:"state"`
}

// LastVerifySummary is the runtime-config `lastVerify` value, per
// spec.md §4.7 step 6.
type LastVerifySummary struct {
	StartedAt      time.Time `json:"startedAt"`
	FinishedAt     time.Time `json:"finishedAt"`
	ChecksumErrors int64     `json:"checksumErrors"`
	TotalErrors    int64     `json:"totalErrors"`
}

// Store implements every operation spec.md §6 lists for the metadata
// store collaborator.
type Store struct {
	mu     sync.Mutex // scribble serializes per-collection file writes; this keeps GetOrCreateContainer atomic
	driver *scribble.Driver
}

// Open creates (if needed) and opens a scribble-backed store rooted at dir.
func Open(dir string) (*Store, error) {
	driver, err := scribble.New(dir, nil)
	if err != nil {
		return nil, err
	}
	return &Store{driver: driver}, nil
}

func notFound(err error) bool {
	return err != nil && os.IsNotExist(err)
}

// GetObjectByID returns the object record for id, or cmn.ErrNotExist.
func (s *Store) GetObjectByID(id string) (*ObjectRecord, error) {
	var rec ObjectRecord
	if err := s.driver.Read(collObjects, id, &rec); err != nil {
		if notFound(err) {
			return nil, cmn.ErrNotExist
		}
		return nil, err
	}
	return &rec, nil
}

// GetObjectByPath scans the objects collection for a record whose Path
// matches. scribble has no secondary index, so this is a full-collection
// scan -- acceptable for the small document store spec.md §1 scopes the
// metadata database out of (it is an external collaborator; STRUBS does
// not own its performance characteristics).
func (s *Store) GetObjectByPath(path string) (*ObjectRecord, error) {
	names, err := s.driver.ReadAll(collObjects)
	if err != nil {
		if notFound(err) {
			return nil, cmn.ErrNotExist
		}
		return nil, err
	}
	for _, raw := range names {
		var rec ObjectRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			continue
		}
		if rec.Path == path {
			return &rec, nil
		}
	}
	return nil, cmn.ErrNotExist
}

// GetOrCreateContainer resolves pathComponents to a container id, creating
// intermediate container records as needed. Metadata-only, per spec.md §9:
// "not part of on-disk engine invariants."
func (s *Store) GetOrCreateContainer(pathComponents []string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	parentID := ""
	for _, name := range pathComponents {
		path := parentID + "/" + name
		rec, err := s.getContainerByPath(path)
		if err != nil && err != cmn.ErrNotExist {
			return "", err
		}
		if err == cmn.ErrNotExist {
			id := newContainerID()
			rec = &ObjectRecord{
				ID:          id,
				ContainerID: parentID,
				Name:        name,
				Path:        path,
				IsContainer: true,
			}
			if err := s.driver.Write(collContainers, id, rec); err != nil {
				return "", err
			}
		}
		parentID = rec.ID
	}
	return parentID, nil
}

func (s *Store) getContainerByPath(path string) (*ObjectRecord, error) {
	names, err := s.driver.ReadAll(collContainers)
	if err != nil {
		if notFound(err) {
			return nil, cmn.ErrNotExist
		}
		return nil, err
	}
	for _, raw := range names {
		var rec ObjectRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			continue
		}
		if rec.Path == path {
			return &rec, nil
		}
	}
	return nil, cmn.ErrNotExist
}

// InsertObject inserts rec as a single operation, per spec.md §4.5 commit
// step 3.
func (s *Store) InsertObject(rec *ObjectRecord) error {
	return s.driver.Write(collObjects, rec.ID, rec)
}

// DeleteObject removes the metadata record for id. Missing record is not
// an error, per spec.md §4.5 delete protocol / testable property 5
// (delete idempotence).
func (s *Store) DeleteObject(id string) error {
	if err := s.driver.Delete(collObjects, id); err != nil {
		if notFound(err) {
			return nil
		}
		return err
	}
	return nil
}

// FindObjectsNeedingVerification returns up to limit object records with
// lastVerifiedAt < startedAt (null treated as -infinity), per spec.md
// §4.7 step 2.
func (s *Store) FindObjectsNeedingVerification(startedAt time.Time, limit int) ([]*ObjectRecord, error) {
	names, err := s.driver.ReadAll(collObjects)
	if err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]*ObjectRecord, 0, limit)
	for _, raw := range names {
		if len(out) >= limit {
			break
		}
		var rec ObjectRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			continue
		}
		if rec.IsContainer {
			continue
		}
		if rec.LastVerifiedAt == nil || rec.LastVerifiedAt.Before(startedAt) {
			out = append(out, &rec)
		}
	}
	return out, nil
}

// UpdateObjectVerificationState persists the outcome of one verify pass
// over an object, per spec.md §4.7 step 5.
func (s *Store) UpdateObjectVerificationState(id string, lastVerifiedAt time.Time, sliceErrors map[string]SliceErrorEntry) error {
	rec, err := s.GetObjectByID(id)
	if err != nil {
		return err
	}
	rec.LastVerifiedAt = &lastVerifiedAt
	rec.SliceErrors = sliceErrors
	return s.driver.Write(collObjects, id, rec)
}

// SetVolumeVerifyErrors persists a volume's {checksum,total} verify-error
// counters, per spec.md §6.
func (s *Store) SetVolumeVerifyErrors(volumeID int, checksum, total int64) error {
	var rec VolumeRecord
	key := fmt.Sprintf("%d", volumeID)
	if err := s.driver.Read(collVolumes, key, &rec); err != nil && !notFound(err) {
		return err
	}
	rec.ID = volumeID
	rec.VerifyChecksum = checksum
	rec.VerifyTotal = total
	return s.driver.Write(collVolumes, key, rec)
}

// GetVolumeRecord returns the persisted Volume record for id, or a
// zero-valued record (with only ID set) if none has been written yet --
// the admin CLI's `volumes` command is this method's only caller, and a
// volume with no verify history yet is a normal state, not an error.
func (s *Store) GetVolumeRecord(id int) (*VolumeRecord, error) {
	var rec VolumeRecord
	key := fmt.Sprintf("%d", id)
	if err := s.driver.Read(collVolumes, key, &rec); err != nil {
		if notFound(err) {
			return &VolumeRecord{ID: id}, nil
		}
		return nil, err
	}
	return &rec, nil
}

// GetVerifyStartedAt returns the persisted verifyStartedAt run identity, or
// the zero time if unset, per spec.md §4.7's resumability contract.
func (s *Store) GetVerifyStartedAt() (time.Time, bool, error) {
	var v string
	if err := s.driver.Read(collConfig, keyVerifyStartedAt, &v); err != nil {
		if notFound(err) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}

// SetVerifyStartedAt persists the run identity.
func (s *Store) SetVerifyStartedAt(t time.Time) error {
	return s.driver.Write(collConfig, keyVerifyStartedAt, t.Format(time.RFC3339Nano))
}

// ClearVerifyStartedAt deletes the run identity, per spec.md §4.7 step 6
// ("Do not delete verifyStartedAt if the run was cancelled" -- callers
// only invoke this on clean batch exhaustion).
func (s *Store) ClearVerifyStartedAt() error {
	if err := s.driver.Delete(collConfig, keyVerifyStartedAt); err != nil && !notFound(err) {
		return err
	}
	return nil
}

// SetLastVerify persists the run summary, per spec.md §4.7 step 6.
func (s *Store) SetLastVerify(summary LastVerifySummary) error {
	return s.driver.Write(collConfig, keyLastVerify, summary)
}

// GetLastVerify returns the most recent run summary, if any.
func (s *Store) GetLastVerify() (*LastVerifySummary, error) {
	var summary LastVerifySummary
	if err := s.driver.Read(collConfig, keyLastVerify, &summary); err != nil {
		if notFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &summary, nil
}
