package world

import (
	"fmt"

	"langd/internal/fileset"
)

// Snapshot is a cheap, immutable read-only view of one World generation.
// Query handlers operate exclusively on Snapshots, never on the live World,
// so they never observe a partially applied mutation and can run
// concurrently with further ApplyChange calls.
type Snapshot struct {
	id       string
	registry *fileset.Registry
	overlays *OverlayTracker
	files    fileMap
	library  *LibraryData
	version  uint64
	cancel   *CancelToken
}

// ID returns this snapshot's unique trace id, for log correlation.
func (s *Snapshot) ID() string { return s.id }

// Version returns the World generation this snapshot was taken from.
func (s *Snapshot) Version() uint64 { return s.version }

// Cancel returns the cancellation token shared by this generation's snapshots.
func (s *Snapshot) Cancel() *CancelToken { return s.cancel }

// Library returns the currently loaded library index, or nil if none has
// been loaded yet.
func (s *Snapshot) Library() *LibraryData { return s.library }

// Registry returns the file registry. It is shared with the live World, so
// Lookup can return ids registered after this snapshot was taken; File
// reports such ids as absent from this snapshot.
func (s *Snapshot) Registry() *fileset.Registry { return s.registry }

// Overlays returns the overlay/subscription tracker.
func (s *Snapshot) Overlays() *OverlayTracker { return s.overlays }

// File returns the FileRecord for id as of this snapshot's generation.
func (s *Snapshot) File(id fileset.FileId) (*FileRecord, error) {
	rec, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("world: no such file in this snapshot: %d", id)
	}
	return rec, nil
}

// Files returns every FileRecord visible in this snapshot.
func (s *Snapshot) Files() []*FileRecord {
	out := make([]*FileRecord, 0, len(s.files))
	for _, rec := range s.files {
		out = append(out, rec)
	}
	return out
}
