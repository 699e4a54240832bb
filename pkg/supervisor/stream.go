package supervisor

import (
	"context"
	"sync"
	"time"

	"github.com/downfa11-org/logrotor/pkg/compress"
	"github.com/downfa11-org/logrotor/pkg/retention"
	"github.com/downfa11-org/logrotor/pkg/segment"
	"github.com/downfa11-org/logrotor/pkg/types"
	"github.com/downfa11-org/logrotor/util"
)

// Stream is one registered log stream and its background pipeline.
type Stream struct {
	id       string
	seg      *segment.Manager
	worker   *compress.Worker
	sweeper  *retention.Sweeper
	observer types.Observer

	events chan types.RotationEvent
	kick   chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (s *Stream) ID() string { return s.id }
func (s *Stream) Dir() string { return s.seg.Dir }

func (s *Stream) Config() types.RetentionConfig { return s.seg.Config() }

// TotalSize is the footprint of the active and rotated segments.
func (s *Stream) TotalSize() int64 { return s.seg.TotalSize() }

// Active returns the descriptor of the segment currently receiving writes.
func (s *Stream) Active() types.Segment { return s.seg.Active() }

// Segments returns the rotated segments, newest first.
func (s *Stream) Segments() []types.Segment { return s.seg.ListSegments() }

func (s *Stream) start(interval time.Duration) {
	s.wg.Add(3)
	go func() {
		defer s.wg.Done()
		s.worker.Run(s.ctx, s.events, func(res types.CompressionResult) {
			if !res.Skipped && res.Err == nil {
				s.requestSweep()
			}
		})
	}()
	go func() {
		defer s.wg.Done()
		s.sweeper.Run(s.ctx, s.kick, 0)
	}()
	go func() {
		defer s.wg.Done()
		s.maintain(interval)
	}()
}

// maintain catches up on whatever the event path missed: age rotation of idle
// streams, compression of segments whose event was dropped or failed, and
// timer-driven retention.
func (s *Stream) maintain(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			ev, err := s.seg.RotateIfDue(s.ctx)
			if err != nil {
				s.observer.OnError(s.id, err)
			} else if ev != nil {
				s.publish(*ev)
			}
			s.worker.CompressPending(s.ctx)
			s.requestSweep()
		}
	}
}

func (s *Stream) write(p []byte) (int, error) {
	n, ev, err := s.seg.Append(s.ctx, p)
	if ev != nil {
		s.publish(*ev)
	}
	if err != nil {
		s.observer.OnError(s.id, err)
	}
	return n, err
}

func (s *Stream) forceRotate() (types.RotationEvent, error) {
	ev, err := s.seg.ForceRotate(s.ctx)
	if err != nil {
		s.observer.OnError(s.id, err)
		return ev, err
	}
	s.publish(ev)
	return ev, nil
}

// publish hands a rotation to the compression worker and schedules a sweep.
// A full event queue drops the event; the maintenance tick compresses it later.
func (s *Stream) publish(ev types.RotationEvent) {
	s.observer.OnRotation(ev)
	select {
	case s.events <- ev:
	default:
		util.Warn("supervisor: %s event queue full, rotation %s left for the next maintenance tick", s.id, ev.ID)
	}
	s.requestSweep()
}

// requestSweep coalesces sweep requests; one pending request is enough.
func (s *Stream) requestSweep() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// stop cancels in-flight compression and sweeps, waits for the pipeline and
// closes the active segment.
func (s *Stream) stop() error {
	s.cancel()
	s.wg.Wait()
	return s.seg.Close()
}
