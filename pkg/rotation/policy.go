// Package rotation decides when an active segment must be closed.
package rotation

import (
	"time"

	"github.com/downfa11-org/logrotor/pkg/types"
)

// ShouldRotate reports whether a segment of currentSize bytes and currentAge must be
// rotated under cfg. It is evaluated after a completed append, so a segment may
// exceed MaxSegmentSize by at most the length of the last write.
func ShouldRotate(currentSize int64, currentAge time.Duration, cfg types.RetentionConfig) bool {
	if cfg.MaxSegmentSize > 0 && currentSize >= cfg.MaxSegmentSize {
		return true
	}
	// age only rolls segments that hold data; an idle empty file stays put
	if cfg.MaxSegmentAge > 0 && currentSize > 0 && currentAge >= cfg.MaxSegmentAge {
		return true
	}
	return false
}

// Policy adapts ShouldRotate to an interface so callers can substitute their own rule.
type Policy interface {
	ShouldRotate(currentSize int64, currentAge time.Duration, cfg types.RetentionConfig) bool
}

// Default is the size-then-age policy.
type Default struct{}

func (Default) ShouldRotate(currentSize int64, currentAge time.Duration, cfg types.RetentionConfig) bool {
	return ShouldRotate(currentSize, currentAge, cfg)
}
