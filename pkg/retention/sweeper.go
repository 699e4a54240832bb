// Package retention bounds how many rotated segments a stream keeps.
package retention

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/downfa11-org/logrotor/pkg/segment"
	"github.com/downfa11-org/logrotor/pkg/types"
	"github.com/downfa11-org/logrotor/util"
)

// Target is the slice of a segment manager the sweeper needs.
type Target interface {
	ListSegments() []types.Segment
	Config() types.RetentionConfig
	Remove(id string) (types.Segment, error)
}

type Sweeper struct {
	stream   string
	target   Target
	observer types.Observer
	now      func() time.Time
}

func NewSweeper(stream string, target Target, observer types.Observer, clock func() time.Time) *Sweeper {
	if observer == nil {
		observer = types.NopObserver{}
	}
	if clock == nil {
		clock = time.Now
	}
	return &Sweeper{stream: stream, target: target, observer: observer, now: clock}
}

// Sweep deletes rotated segments numbered above MaxSegmentCount and, when
// MaxRotatedAge is set, those closed longer ago than that. Work proceeds from the
// oldest segment and stops at the first one being compressed, which is left
// for the pass that follows its compression. A failed delete does not stop the rest.
func (s *Sweeper) Sweep(ctx context.Context) types.SweepResult {
	cfg := s.target.Config()
	segs := s.target.ListSegments()
	now := s.now()
	res := types.SweepResult{Stream: s.stream}

sweep:
	for i := len(segs) - 1; i >= 0; i-- {
		seg := segs[i]
		overCount := seg.Seq > cfg.MaxSegmentCount
		expired := cfg.MaxRotatedAge > 0 && !seg.ClosedAt.IsZero() && now.Sub(seg.ClosedAt) > cfg.MaxRotatedAge
		if !overCount && !expired {
			// everything newer is both lower numbered and younger
			break
		}
		if ctx.Err() != nil {
			break
		}

		removed, err := s.target.Remove(seg.ID)
		switch {
		case errors.Is(err, segment.ErrBusy):
			// deleting newer segments first would break oldest-first order
			util.Debug("retention: %s seq %d is compressing, deferred", s.stream, seg.Seq)
			break sweep
		case errors.Is(err, segment.ErrNotFound):
			continue
		case err != nil:
			rerr := types.NewStreamError("sweep", s.stream, types.ErrRetention, fmt.Errorf("delete %s: %w", seg.Path, err))
			util.Warn("retention: %v", rerr)
			res.Errors = append(res.Errors, rerr)
			s.observer.OnError(s.stream, rerr)
			continue
		}

		util.Debug("retention: deleted %s", removed.Path)
		res.Deleted = append(res.Deleted, removed)
	}

	if len(res.Deleted) > 0 || len(res.Errors) > 0 {
		util.Info("retention: %s removed %d segments (%d failures)", s.stream, len(res.Deleted), len(res.Errors))
		s.observer.OnSweep(res)
	}
	return res
}

// Run sweeps whenever trigger fires and every interval (interval <= 0 disables the timer).
func (s *Sweeper) Run(ctx context.Context, trigger <-chan struct{}, interval time.Duration) {
	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-trigger:
			if !ok {
				return
			}
			s.Sweep(ctx)
		case <-tick:
			s.Sweep(ctx)
		}
	}
}
