package segment

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/downfa11-org/logrotor/pkg/disk"
	"github.com/downfa11-org/logrotor/pkg/types"
	"github.com/downfa11-org/logrotor/util"
)

var (
	// ErrNotFound is returned when a segment id no longer belongs to the stream.
	ErrNotFound = errors.New("segment not found")
	// ErrBusy is returned when a segment is being compressed.
	ErrBusy = errors.New("segment is being compressed")
	// ErrAlreadyCompressed marks a no-op compression request.
	ErrAlreadyCompressed = errors.New("segment already compressed")
)

// indexOf returns the position of id in m.rotated. metaMu must be held.
func (m *Manager) indexOf(id string) int {
	for i, s := range m.rotated {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// BeginCompression claims a rotated segment for compression and opens its
// contents. The reader stays valid across later renames of the file. The claim
// must be released with FinishCompression or AbortCompression.
func (m *Manager) BeginCompression(id string) (types.Segment, disk.ReaderAt, error) {
	m.metaMu.Lock()
	defer m.metaMu.Unlock()

	i := m.indexOf(id)
	if i < 0 {
		return types.Segment{}, nil, ErrNotFound
	}
	s := m.rotated[i]
	if s.Compressed {
		return *s, nil, ErrAlreadyCompressed
	}
	if _, ok := m.busy[id]; ok {
		return *s, nil, ErrBusy
	}

	r, err := m.fs.OpenReader(s.Path)
	if err != nil {
		return *s, nil, fmt.Errorf("open %s: %w", s.Path, err)
	}
	m.busy[id] = struct{}{}
	return *s, r, nil
}

// FinishCompression moves finished output at partialPath next to the segment's
// current sequence number and removes the plain file. On any failure the plain
// file is kept and the partial output is removed.
func (m *Manager) FinishCompression(id, partialPath, codec string, size int64) (types.Segment, error) {
	m.metaMu.Lock()
	defer m.metaMu.Unlock()

	delete(m.busy, id)
	i := m.indexOf(id)
	if i < 0 {
		m.removeQuiet(partialPath)
		return types.Segment{}, ErrNotFound
	}
	s := m.rotated[i]

	dst := disk.RotatedPath(m.Dir, m.Stream, s.Seq, codec)
	if err := m.fs.Rename(partialPath, dst); err != nil {
		m.removeQuiet(partialPath)
		return *s, fmt.Errorf("install %s: %w", dst, err)
	}
	if err := m.fs.Remove(s.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		m.removeQuiet(dst)
		return *s, fmt.Errorf("remove plain %s: %w", s.Path, err)
	}

	s.Path = dst
	s.Compressed = true
	s.Codec = codec
	s.Size = size
	return *s, nil
}

// AbortCompression releases a claim without touching the plain file.
func (m *Manager) AbortCompression(id string) {
	m.metaMu.Lock()
	delete(m.busy, id)
	m.metaMu.Unlock()
}

// Compressing reports whether id is claimed by a compression task.
func (m *Manager) Compressing(id string) bool {
	m.metaMu.RLock()
	defer m.metaMu.RUnlock()
	_, ok := m.busy[id]
	return ok
}

// Remove deletes a rotated segment and renumbers the newer-numbered ones down so
// the sequence stays contiguous. Segments being compressed are refused with ErrBusy.
//
// The victim is moved to a tombstone name before the gap is closed lowest
// first. A failed rename undoes the completed ones and restores the victim, so
// the listing is either fully updated or untouched. The tombstone is deleted
// only after renumbering succeeds.
func (m *Manager) Remove(id string) (types.Segment, error) {
	m.metaMu.Lock()
	defer m.metaMu.Unlock()

	i := m.indexOf(id)
	if i < 0 {
		return types.Segment{}, ErrNotFound
	}
	s := m.rotated[i]
	if _, ok := m.busy[id]; ok {
		return *s, ErrBusy
	}

	var done []renameOp
	tomb := disk.TombstonePath(m.Dir, m.Stream, id)
	switch err := m.fs.Rename(s.Path, tomb); {
	case errors.Is(err, fs.ErrNotExist):
		// already gone from disk, only the numbering needs repair
		tomb = ""
	case err != nil:
		return *s, fmt.Errorf("move %s aside: %w", s.Path, err)
	default:
		done = append(done, renameOp{from: s.Path, to: tomb})
	}

	rest := m.rotated[i+1:]
	for j, t := range rest {
		target := disk.RotatedPath(m.Dir, m.Stream, i+j+1, t.Codec)
		if err := m.fs.Rename(t.Path, target); err != nil {
			m.rollback(done)
			return *s, fmt.Errorf("renumber %s -> %s: %w", t.Path, target, err)
		}
		done = append(done, renameOp{from: t.Path, to: target})
	}

	// commit
	removed := *s
	for j, t := range rest {
		t.Seq = i + j + 1
		t.Path = disk.RotatedPath(m.Dir, m.Stream, t.Seq, t.Codec)
	}
	m.rotated = append(m.rotated[:i], rest...)

	if tomb != "" {
		if err := m.fs.Remove(tomb); err != nil && !errors.Is(err, fs.ErrNotExist) {
			// the listing is already consistent, reconcile reclaims the file
			return removed, fmt.Errorf("delete %s: %w", tomb, err)
		}
	}
	return removed, nil
}

func (m *Manager) removeQuiet(path string) {
	if err := m.fs.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		util.Warn("segment: remove %s: %v", path, err)
	}
}

// PartialPath is where compression output for segment id is staged.
func (m *Manager) PartialPath(id string) string {
	return disk.PartialPath(m.Dir, m.Stream, id)
}
