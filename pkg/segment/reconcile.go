package segment

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/downfa11-org/logrotor/pkg/disk"
	"github.com/downfa11-org/logrotor/pkg/types"
	"github.com/downfa11-org/logrotor/util"
	"github.com/google/uuid"
)

// reconcile rebuilds the rotated segment list from the directory.
//
// Leftover .next, partial compression and tombstone files are removed. When a sequence
// number has both a plain and a compressed file, the compressed one is complete
// (it is only renamed into place after fsync) and wins. Gaps left by an
// interrupted rename chain are closed by renumbering lowest first.
func (m *Manager) reconcile() error {
	entries, err := m.fs.ReadDir(m.Dir)
	if err != nil {
		return fmt.Errorf("read log directory %s: %w", m.Dir, err)
	}

	bySeq := make(map[int][]disk.Entry)
	for _, de := range entries {
		if de.IsDir() {
			continue
		}
		e, ok := disk.ParseName(m.Stream, de.Name())
		if !ok || e.Active {
			continue
		}
		if e.Leftover {
			path := filepath.Join(m.Dir, e.Name)
			if err := m.fs.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("remove leftover %s: %w", path, err)
			}
			util.Info("segment: removed leftover %s", path)
			continue
		}
		bySeq[e.Seq] = append(bySeq[e.Seq], e)
	}

	seqs := make([]int, 0, len(bySeq))
	for seq := range bySeq {
		seqs = append(seqs, seq)
	}
	sort.Ints(seqs)

	m.rotated = m.rotated[:0]
	for i, seq := range seqs {
		keep, err := m.pickDuplicate(bySeq[seq])
		if err != nil {
			return err
		}

		want := i + 1
		path := filepath.Join(m.Dir, keep.Name)
		if seq != want {
			target := disk.RotatedPath(m.Dir, m.Stream, want, keep.Codec)
			if err := m.fs.Rename(path, target); err != nil {
				return fmt.Errorf("renumber %s -> %s: %w", path, target, err)
			}
			util.Info("segment: renumbered %s -> %s", path, target)
			path = target
		}

		info, err := m.fs.Stat(path)
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}
		m.rotated = append(m.rotated, &types.Segment{
			ID:         uuid.NewString(),
			Stream:     m.Stream,
			Seq:        want,
			Path:       path,
			Size:       info.Size(),
			Compressed: keep.Codec != "",
			Codec:      keep.Codec,
			CreatedAt:  info.ModTime(),
			ClosedAt:   info.ModTime(),
		})
	}
	return nil
}

// pickDuplicate keeps one file per sequence number, preferring compressed output.
func (m *Manager) pickDuplicate(es []disk.Entry) (disk.Entry, error) {
	if len(es) == 1 {
		return es[0], nil
	}
	sort.Slice(es, func(i, j int) bool {
		// compressed first, then by name for a stable choice
		if (es[i].Codec != "") != (es[j].Codec != "") {
			return es[i].Codec != ""
		}
		return es[i].Name < es[j].Name
	})
	for _, e := range es[1:] {
		path := filepath.Join(m.Dir, e.Name)
		if err := m.fs.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return disk.Entry{}, fmt.Errorf("remove duplicate %s: %w", path, err)
		}
		util.Warn("segment: dropped duplicate %s in favor of %s", e.Name, es[0].Name)
	}
	return es[0], nil
}
