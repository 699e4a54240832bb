package types

import (
	"fmt"
	"time"
)

// ActiveSeq is the sequence number of the appendable segment.
const ActiveSeq = 0

// Segment describes a single on-disk segment file of a stream.
type Segment struct {
	ID         string    `json:"id"`
	Stream     string    `json:"stream"`
	Seq        int       `json:"seq"`
	Path       string    `json:"path"`
	Size       int64     `json:"size"`
	Compressed bool      `json:"compressed"`
	Codec      string    `json:"codec,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	ClosedAt   time.Time `json:"closed_at,omitempty"`
}

func (s Segment) IsActive() bool {
	return s.Seq == ActiveSeq
}

func (s Segment) String() string {
	state := "plain"
	if s.Compressed {
		state = s.Codec
	}
	if s.IsActive() {
		state = "active"
	}
	return fmt.Sprintf("%s#%d(%s, %dB)", s.Stream, s.Seq, state, s.Size)
}

// RotationEvent is emitted when the active segment of a stream is closed and renumbered.
type RotationEvent struct {
	ID     string          `json:"id"`
	Stream string          `json:"stream"`
	Old    Segment         `json:"old"`
	New    Segment         `json:"new"`
	At     time.Time       `json:"at"`
	Config RetentionConfig `json:"config"`
}

// SweepResult reports what a retention pass removed and what it could not.
type SweepResult struct {
	Stream  string    `json:"stream"`
	Deleted []Segment `json:"deleted"`
	Errors  []error   `json:"-"`
}

// DeletedIDs returns the ids of removed segments, oldest first.
func (r SweepResult) DeletedIDs() []string {
	ids := make([]string, 0, len(r.Deleted))
	for _, s := range r.Deleted {
		ids = append(ids, s.ID)
	}
	return ids
}

// CompressionResult reports the outcome of compressing one rotated segment.
type CompressionResult struct {
	Stream         string  `json:"stream"`
	Segment        Segment `json:"segment"`
	OriginalSize   int64   `json:"original_size"`
	CompressedSize int64   `json:"compressed_size"`
	Skipped        bool    `json:"skipped"`
	Err            error   `json:"-"`
}
