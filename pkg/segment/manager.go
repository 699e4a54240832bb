// Package segment owns the on-disk segments of one log stream: appends to the
// active file, rotation with renumbering, and the hooks workers use to compress
// or delete rotated segments.
package segment

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/downfa11-org/logrotor/pkg/disk"
	"github.com/downfa11-org/logrotor/pkg/rotation"
	"github.com/downfa11-org/logrotor/pkg/types"
	"github.com/downfa11-org/logrotor/util"
	"github.com/google/uuid"
)

const defaultRotationTimeout = 5 * time.Second

// Options tunes a Manager. Zero values select the defaults.
type Options struct {
	FS              disk.FS
	Policy          rotation.Policy
	RotationTimeout time.Duration
	SyncWrites      bool
	Clock           func() time.Time
}

// Manager owns the segments of a single stream.
//
// appendMu serializes appends with rotation. metaMu guards the segment
// descriptors; rotation takes it for the rename phase so readers observe either
// the pre- or post-rotation set, and workers take it without ever touching appendMu.
type Manager struct {
	Stream string
	Dir    string

	fs              disk.FS
	policy          rotation.Policy
	rotationTimeout time.Duration
	now             func() time.Time
	cfg             atomic.Pointer[types.RetentionConfig]

	appendMu sync.Mutex
	app      *appender
	closed   bool

	metaMu  sync.RWMutex
	active  types.Segment
	rotated []*types.Segment // rotated[i].Seq == i+1
	busy    map[string]struct{}
}

// Open reconciles whatever a previous run left in dir and opens the active segment.
func Open(dir, stream string, cfg types.RetentionConfig, opts Options) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.FS == nil {
		opts.FS = disk.OSFS{}
	}
	if opts.Policy == nil {
		opts.Policy = rotation.Default{}
	}
	if opts.RotationTimeout <= 0 {
		opts.RotationTimeout = defaultRotationTimeout
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	m := &Manager{
		Stream:          stream,
		Dir:             dir,
		fs:              opts.FS,
		policy:          opts.Policy,
		rotationTimeout: opts.RotationTimeout,
		now:             opts.Clock,
		busy:            make(map[string]struct{}),
	}
	m.cfg.Store(&cfg)

	if err := m.fs.MkdirAll(dir); err != nil {
		return nil, types.NewStreamError("open", stream, types.ErrIO, fmt.Errorf("create log directory %s: %w", dir, err))
	}
	if err := m.reconcile(); err != nil {
		return nil, types.NewStreamError("open", stream, types.ErrIO, err)
	}
	if err := m.openActive(opts.SyncWrites); err != nil {
		return nil, types.NewStreamError("open", stream, types.ErrIO, err)
	}

	util.Debug("segment: opened stream %s in %s (%d rotated segments)", stream, dir, len(m.rotated))
	return m, nil
}

func (m *Manager) openActive(syncWrites bool) error {
	path := disk.ActivePath(m.Dir, m.Stream)
	f, err := m.fs.OpenAppend(path)
	if err != nil {
		return fmt.Errorf("open active segment %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("stat active segment %s: %w", path, err)
	}

	created := m.now()
	if info.Size() > 0 {
		created = info.ModTime()
	}
	m.active = types.Segment{
		ID:        uuid.NewString(),
		Stream:    m.Stream,
		Seq:       types.ActiveSeq,
		Path:      path,
		CreatedAt: created,
	}
	m.app = newAppender(f, info.Size(), syncWrites)
	return nil
}

// Config returns the limits currently in effect.
func (m *Manager) Config() types.RetentionConfig {
	return *m.cfg.Load()
}

// SetConfig installs new limits. They apply to the next rotation check and
// sweep; existing segments are never resized.
func (m *Manager) SetConfig(cfg types.RetentionConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	m.cfg.Store(&cfg)
	return nil
}

// Append writes p to the active segment and rotates when the policy says so.
// A non-nil event is returned when this append caused a rotation. When the write
// succeeds but the rotation fails, n is still reported alongside the error.
func (m *Manager) Append(ctx context.Context, p []byte) (int, *types.RotationEvent, error) {
	m.appendMu.Lock()
	defer m.appendMu.Unlock()

	if m.closed {
		return 0, nil, types.NewStreamError("append", m.Stream, types.ErrClosed, nil)
	}

	n, err := m.app.Append(p)
	if err != nil {
		return 0, nil, types.NewStreamError("append", m.Stream, types.ErrIO, err)
	}

	ev, err := m.maybeRotateLocked(ctx)
	return n, ev, err
}

// RotateIfDue runs the rotation check without writing, for age-based rolls of idle streams.
func (m *Manager) RotateIfDue(ctx context.Context) (*types.RotationEvent, error) {
	m.appendMu.Lock()
	defer m.appendMu.Unlock()

	if m.closed {
		return nil, nil
	}
	return m.maybeRotateLocked(ctx)
}

func (m *Manager) maybeRotateLocked(ctx context.Context) (*types.RotationEvent, error) {
	m.metaMu.RLock()
	created := m.active.CreatedAt
	m.metaMu.RUnlock()

	if !m.policy.ShouldRotate(m.app.Size(), m.now().Sub(created), m.Config()) {
		return nil, nil
	}
	ev, err := m.rotateLocked(ctx)
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

// Rotate closes the active segment unconditionally, even when it is empty.
func (m *Manager) Rotate(ctx context.Context) (types.RotationEvent, error) {
	m.appendMu.Lock()
	defer m.appendMu.Unlock()

	if m.closed {
		return types.RotationEvent{}, types.NewStreamError("rotate", m.Stream, types.ErrClosed, nil)
	}
	return m.rotateLocked(ctx)
}

// ForceRotate is Rotate under the name manual triggers use.
func (m *Manager) ForceRotate(ctx context.Context) (types.RotationEvent, error) {
	return m.Rotate(ctx)
}

// Active returns the active segment descriptor with its current size.
func (m *Manager) Active() types.Segment {
	m.metaMu.RLock()
	s := m.active
	m.metaMu.RUnlock()
	s.Size = m.app.Size()
	return s
}

// ListSegments returns the rotated segments, newest (seq 1) first.
func (m *Manager) ListSegments() []types.Segment {
	m.metaMu.RLock()
	defer m.metaMu.RUnlock()

	out := make([]types.Segment, len(m.rotated))
	for i, s := range m.rotated {
		out[i] = *s
	}
	return out
}

// TotalSize is a best-effort snapshot of the bytes held by the stream.
func (m *Manager) TotalSize() int64 {
	m.metaMu.RLock()
	var total int64
	for _, s := range m.rotated {
		total += s.Size
	}
	m.metaMu.RUnlock()
	return total + m.app.Size()
}

// Close flushes and closes the active segment. Further appends fail with ErrClosed.
func (m *Manager) Close() error {
	m.appendMu.Lock()
	defer m.appendMu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	if err := m.app.Close(); err != nil {
		return types.NewStreamError("close", m.Stream, types.ErrIO, err)
	}
	return nil
}
