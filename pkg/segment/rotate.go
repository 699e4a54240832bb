package segment

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/downfa11-org/logrotor/pkg/disk"
	"github.com/downfa11-org/logrotor/pkg/types"
	"github.com/downfa11-org/logrotor/util"
	"github.com/google/uuid"
)

type renameOp struct {
	from, to string
}

// rotateLocked performs the rotation. appendMu must be held.
//
// Order: prepare <id>.log.next, shift rotated files highest seq first, move the
// active file to .1, then promote .next. Every completed rename is undone on
// failure, so the stream is either fully rotated or untouched.
func (m *Manager) rotateLocked(parent context.Context) (types.RotationEvent, error) {
	ctx, cancel := context.WithTimeout(parent, m.rotationTimeout)
	defer cancel()

	fail := func(err error) (types.RotationEvent, error) {
		util.Warn("segment: rotation of %s aborted: %v", m.Stream, err)
		return types.RotationEvent{}, types.NewStreamError("rotate", m.Stream, types.ErrRotation, err)
	}

	if err := m.app.Sync(); err != nil {
		return fail(err)
	}

	nextPath := disk.NextPath(m.Dir, m.Stream)
	if err := m.fs.Remove(nextPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fail(fmt.Errorf("remove stale %s: %w", nextPath, err))
	}
	next, err := m.fs.Create(nextPath)
	if err != nil {
		return fail(fmt.Errorf("create next segment: %w", err))
	}
	discardNext := func() {
		_ = next.Close()
		if err := m.fs.Remove(nextPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			util.Warn("segment: remove %s after failed rotation: %v", nextPath, err)
		}
	}

	m.metaMu.Lock()
	defer m.metaMu.Unlock()

	var done []renameOp
	apply := func(from, to string) error {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("rotation timed out: %w", err)
		}
		if err := m.fs.Rename(from, to); err != nil {
			return err
		}
		done = append(done, renameOp{from: from, to: to})
		return nil
	}
	abort := func(err error) (types.RotationEvent, error) {
		m.rollback(done)
		discardNext()
		return fail(err)
	}

	for i := len(m.rotated) - 1; i >= 0; i-- {
		s := m.rotated[i]
		if err := apply(s.Path, disk.RotatedPath(m.Dir, m.Stream, s.Seq+1, s.Codec)); err != nil {
			return abort(fmt.Errorf("shift segment %d: %w", s.Seq, err))
		}
	}

	activePath := m.active.Path
	firstPath := disk.RotatedPath(m.Dir, m.Stream, 1, "")
	if err := apply(activePath, firstPath); err != nil {
		return abort(fmt.Errorf("close active segment: %w", err))
	}
	if err := apply(nextPath, activePath); err != nil {
		return abort(fmt.Errorf("promote next segment: %w", err))
	}

	// commit
	now := m.now()
	old := m.active
	old.Seq = 1
	old.Path = firstPath
	old.Size = m.app.Size()
	old.ClosedAt = now

	for _, s := range m.rotated {
		s.Seq++
		s.Path = disk.RotatedPath(m.Dir, m.Stream, s.Seq, s.Codec)
	}
	closed := old
	m.rotated = append([]*types.Segment{&closed}, m.rotated...)

	m.active = types.Segment{
		ID:        uuid.NewString(),
		Stream:    m.Stream,
		Seq:       types.ActiveSeq,
		Path:      activePath,
		CreatedAt: now,
	}

	prev := m.app.swap(next)
	disk.Release(prev)
	if err := prev.Close(); err != nil {
		util.Warn("segment: close rotated file %s: %v", firstPath, err)
	}

	util.Debug("segment: rotated %s (%d bytes), %d rotated segments", m.Stream, old.Size, len(m.rotated))
	return types.RotationEvent{
		ID:     uuid.NewString(),
		Stream: m.Stream,
		Old:    old,
		New:    m.active,
		At:     now,
		Config: m.Config(),
	}, nil
}

// rollback reverses completed renames, newest first. metaMu must be held.
func (m *Manager) rollback(done []renameOp) {
	for i := len(done) - 1; i >= 0; i-- {
		op := done[i]
		if err := m.fs.Rename(op.to, op.from); err != nil {
			// reconcile on the next open repairs the numbering
			util.Error("segment: rollback %s -> %s failed: %v", op.to, op.from, err)
		}
	}
}
