// Package supervisor coordinates the log streams of a process: one segment
// manager per stream plus its compression and retention pipeline.
package supervisor

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/downfa11-org/logrotor/pkg/compress"
	"github.com/downfa11-org/logrotor/pkg/disk"
	"github.com/downfa11-org/logrotor/pkg/retention"
	"github.com/downfa11-org/logrotor/pkg/segment"
	"github.com/downfa11-org/logrotor/pkg/types"
	"github.com/downfa11-org/logrotor/util"
)

const (
	defaultMaintenanceInterval = 30 * time.Second
	defaultEventBufferSize     = 64
)

var streamIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Config carries the process-wide settings shared by every stream.
type Config struct {
	LogDir              string
	MaintenanceInterval time.Duration
	RotationTimeout     time.Duration
	CompressionTimeout  time.Duration
	EventBufferSize     int
	SyncWrites          bool
	Clock               func() time.Time
}

type Supervisor struct {
	cfg      Config
	fs       disk.FS
	observer types.Observer

	mu      sync.RWMutex
	streams map[string]*Stream
	closed  bool
}

func New(cfg Config, fs disk.FS, observers ...types.Observer) *Supervisor {
	if fs == nil {
		fs = disk.OSFS{}
	}
	if cfg.MaintenanceInterval <= 0 {
		cfg.MaintenanceInterval = defaultMaintenanceInterval
	}
	if cfg.EventBufferSize <= 0 {
		cfg.EventBufferSize = defaultEventBufferSize
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	var obs types.Observer = types.NopObserver{}
	if len(observers) > 0 {
		obs = types.Observers(observers)
	}
	return &Supervisor{
		cfg:      cfg,
		fs:       fs,
		observer: obs,
		streams:  make(map[string]*Stream),
	}
}

// Register opens stream id under LogDir/id.
func (s *Supervisor) Register(id string, rc types.RetentionConfig) (*Stream, error) {
	return s.RegisterPath(id, "", rc)
}

// RegisterPath opens stream id with its segments in dir. An empty dir means LogDir/id.
func (s *Supervisor) RegisterPath(id, dir string, rc types.RetentionConfig) (*Stream, error) {
	if !streamIDPattern.MatchString(id) {
		return nil, types.NewStreamError("register", id, types.ErrInvalidConfig, fmt.Errorf("stream id must match %s", streamIDPattern))
	}
	if err := rc.Validate(); err != nil {
		return nil, types.NewStreamError("register", id, types.ErrInvalidConfig, err)
	}
	if dir == "" {
		dir = filepath.Join(s.cfg.LogDir, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, types.NewStreamError("register", id, types.ErrClosed, nil)
	}
	if _, ok := s.streams[id]; ok {
		return nil, types.NewStreamError("register", id, types.ErrStreamExists, nil)
	}

	seg, err := segment.Open(dir, id, rc, segment.Options{
		FS:              s.fs,
		RotationTimeout: s.cfg.RotationTimeout,
		SyncWrites:      s.cfg.SyncWrites,
		Clock:           s.cfg.Clock,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	st := &Stream{
		id:       id,
		seg:      seg,
		worker:   compress.NewWorker(id, seg, s.fs, s.cfg.CompressionTimeout, s.observer),
		sweeper:  retention.NewSweeper(id, seg, s.observer, s.cfg.Clock),
		observer: s.observer,
		events:   make(chan types.RotationEvent, s.cfg.EventBufferSize),
		kick:     make(chan struct{}, 1),
		ctx:      ctx,
		cancel:   cancel,
	}
	st.start(s.cfg.MaintenanceInterval)

	s.streams[id] = st
	util.Info("supervisor: registered stream %s in %s (max_segment_size=%d, max_segment_count=%d, compress=%v)",
		id, dir, rc.MaxSegmentSize, rc.MaxSegmentCount, rc.Compress)
	return st, nil
}

// Deregister stops the stream's pipeline, deleting any partial compression
// output, and closes its active segment. Files on disk are kept.
func (s *Supervisor) Deregister(id string) error {
	s.mu.Lock()
	st, ok := s.streams[id]
	if ok {
		delete(s.streams, id)
	}
	s.mu.Unlock()

	if !ok {
		return unknown("deregister", id)
	}
	if err := st.stop(); err != nil {
		return err
	}
	util.Info("supervisor: deregistered stream %s", id)
	return nil
}

func (s *Supervisor) lookup(op, id string) (*Stream, error) {
	s.mu.RLock()
	st, ok := s.streams[id]
	s.mu.RUnlock()
	if !ok {
		return nil, unknown(op, id)
	}
	return st, nil
}

func unknown(op, id string) error {
	return types.NewStreamError(op, id, types.ErrUnknownStream, nil)
}

// Stream returns the registered stream id.
func (s *Supervisor) Stream(id string) (*Stream, error) {
	return s.lookup("stream", id)
}

// Write appends p to the active segment of id, rotating when a limit is reached.
func (s *Supervisor) Write(id string, p []byte) (int, error) {
	st, err := s.lookup("write", id)
	if err != nil {
		return 0, err
	}
	return st.write(p)
}

// UpdateConfig replaces the limits of id. Invalid limits are rejected and the
// previous ones stay in force; accepted ones apply from the next check on.
func (s *Supervisor) UpdateConfig(id string, rc types.RetentionConfig) error {
	st, err := s.lookup("update_config", id)
	if err != nil {
		return err
	}
	if err := st.seg.SetConfig(rc); err != nil {
		return types.NewStreamError("update_config", id, types.ErrInvalidConfig, err)
	}
	util.Info("supervisor: %s config updated (max_segment_size=%d, max_segment_count=%d, compress=%v)",
		id, rc.MaxSegmentSize, rc.MaxSegmentCount, rc.Compress)
	st.requestSweep()
	return nil
}

// TotalSpaceUsed is a best-effort byte count of the active and rotated segments of id.
func (s *Supervisor) TotalSpaceUsed(id string) (int64, error) {
	st, err := s.lookup("total_space_used", id)
	if err != nil {
		return 0, err
	}
	return st.TotalSize(), nil
}

func (s *Supervisor) ForceRotate(id string) (types.RotationEvent, error) {
	st, err := s.lookup("force_rotate", id)
	if err != nil {
		return types.RotationEvent{}, err
	}
	return st.forceRotate()
}

func (s *Supervisor) ListSegments(id string) ([]types.Segment, error) {
	st, err := s.lookup("list_segments", id)
	if err != nil {
		return nil, err
	}
	return st.seg.ListSegments(), nil
}

// Sweep runs a retention pass on id immediately.
func (s *Supervisor) Sweep(id string) (types.SweepResult, error) {
	st, err := s.lookup("sweep", id)
	if err != nil {
		return types.SweepResult{}, err
	}
	return st.sweeper.Sweep(st.ctx), nil
}

// Streams returns the registered stream ids in sorted order.
func (s *Supervisor) Streams() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.streams))
	for id := range s.streams {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Close deregisters every stream. Later registrations fail with ErrClosed.
func (s *Supervisor) Close() error {
	s.mu.Lock()
	s.closed = true
	streams := s.streams
	s.streams = make(map[string]*Stream)
	s.mu.Unlock()

	var firstErr error
	for id, st := range streams {
		if err := st.stop(); err != nil {
			util.Error("supervisor: close stream %s: %v", id, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
