package types

import (
	"errors"
	"fmt"
)

var (
	ErrIO            = errors.New("io error")
	ErrRotation      = errors.New("rotation error")
	ErrCompression   = errors.New("compression error")
	ErrRetention     = errors.New("retention error")
	ErrInvalidConfig = errors.New("invalid config")
	ErrUnknownStream = errors.New("unknown stream")
	ErrStreamExists  = errors.New("stream already registered")
	ErrClosed        = errors.New("stream closed")
)

// StreamError ties a failure to the stream and operation that produced it.
// errors.Is matches both Kind and the wrapped cause.
type StreamError struct {
	Op     string
	Stream string
	Kind   error
	Err    error
}

func NewStreamError(op, stream string, kind, err error) *StreamError {
	return &StreamError{Op: op, Stream: stream, Kind: kind, Err: err}
}

func (e *StreamError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Stream, e.Kind)
	}
	return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Stream, e.Kind, e.Err)
}

func (e *StreamError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
