// Package compress compresses rotated segments off the append path.
package compress

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/downfa11-org/logrotor/pkg/disk"
	"github.com/downfa11-org/logrotor/pkg/segment"
	"github.com/downfa11-org/logrotor/pkg/types"
	"github.com/downfa11-org/logrotor/util"
)

const defaultTimeout = 2 * time.Minute

// Target is the slice of a segment manager the worker needs.
type Target interface {
	ListSegments() []types.Segment
	Config() types.RetentionConfig
	BeginCompression(id string) (types.Segment, disk.ReaderAt, error)
	FinishCompression(id, partialPath, codec string, size int64) (types.Segment, error)
	AbortCompression(id string)
	PartialPath(id string) string
}

// Worker compresses segments of one stream.
type Worker struct {
	stream   string
	target   Target
	fs       disk.FS
	timeout  time.Duration
	observer types.Observer
}

func NewWorker(stream string, target Target, fs disk.FS, timeout time.Duration, observer types.Observer) *Worker {
	if fs == nil {
		fs = disk.OSFS{}
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if observer == nil {
		observer = types.NopObserver{}
	}
	return &Worker{
		stream:   stream,
		target:   target,
		fs:       fs,
		timeout:  timeout,
		observer: observer,
	}
}

// Run consumes rotation events until ctx is cancelled or events is closed.
// after, when set, is called with each result.
func (w *Worker) Run(ctx context.Context, events <-chan types.RotationEvent, after func(types.CompressionResult)) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			res := w.HandleEvent(ctx, ev)
			if after != nil {
				after(res)
			}
		}
	}
}

// HandleEvent compresses the segment a rotation just closed, if the
// configuration in force at rotation time asks for it.
func (w *Worker) HandleEvent(ctx context.Context, ev types.RotationEvent) types.CompressionResult {
	if !ev.Config.Compress {
		return types.CompressionResult{Stream: w.stream, Segment: ev.Old, Skipped: true}
	}
	return w.Compress(ctx, ev.Old.ID, ev.Config.Codec())
}

// CompressPending retries every plain rotated segment under the current config.
func (w *Worker) CompressPending(ctx context.Context) []types.CompressionResult {
	cfg := w.target.Config()
	if !cfg.Compress {
		return nil
	}

	var results []types.CompressionResult
	for _, s := range w.target.ListSegments() {
		if s.Compressed {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		res := w.Compress(ctx, s.ID, cfg.Codec())
		if !res.Skipped {
			results = append(results, res)
		}
	}
	return results
}

// Compress replaces segment id with a codec-compressed copy. The sequence number
// is unchanged. Failures leave the plain segment in place.
func (w *Worker) Compress(parent context.Context, id, codec string) types.CompressionResult {
	res := types.CompressionResult{Stream: w.stream}

	seg, src, err := w.target.BeginCompression(id)
	res.Segment = seg
	switch {
	case errors.Is(err, segment.ErrAlreadyCompressed), errors.Is(err, segment.ErrNotFound), errors.Is(err, segment.ErrBusy):
		res.Skipped = true
		return res
	case err != nil:
		return w.failed(res, err)
	}
	res.OriginalSize = seg.Size

	ctx, cancel := context.WithTimeout(parent, w.timeout)
	defer cancel()

	partial := w.target.PartialPath(id)
	size, err := w.encode(ctx, src, partial, codec)
	if cerr := src.Close(); cerr != nil {
		util.Warn("compress: close source %s: %v", seg.Path, cerr)
	}
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		w.discard(partial)
		w.target.AbortCompression(id)
		return w.failed(res, err)
	}

	done, err := w.target.FinishCompression(id, partial, codec, size)
	if err != nil {
		return w.failed(res, err)
	}

	res.Segment = done
	res.CompressedSize = size
	util.Debug("compress: %s seq %d %d -> %d bytes (%s)", w.stream, done.Seq, res.OriginalSize, size, codec)
	w.observer.OnCompression(res)
	return res
}

func (w *Worker) encode(ctx context.Context, src disk.ReaderAt, partial, codec string) (int64, error) {
	f, err := w.fs.Create(partial)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", partial, err)
	}
	defer func() {
		if f != nil {
			_ = f.Close()
		}
	}()

	cw, err := util.NewCompressWriter(f, codec)
	if err != nil {
		return 0, err
	}
	in := &ctxReader{ctx: ctx, r: io.NewSectionReader(src, 0, int64(src.Len()))}
	if _, err := io.Copy(cw, in); err != nil {
		_ = cw.Close()
		return 0, fmt.Errorf("encode: %w", err)
	}
	if err := cw.Close(); err != nil {
		return 0, fmt.Errorf("finish %s stream: %w", codec, err)
	}
	if err := f.Sync(); err != nil {
		return 0, fmt.Errorf("fsync %s: %w", partial, err)
	}
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}

	cerr := f.Close()
	f = nil
	return info.Size(), cerr
}

func (w *Worker) discard(partial string) {
	if err := w.fs.Remove(partial); err != nil && !errors.Is(err, os.ErrNotExist) {
		util.Warn("compress: remove partial output %s: %v", partial, err)
	}
}

func (w *Worker) failed(res types.CompressionResult, err error) types.CompressionResult {
	res.Err = types.NewStreamError("compress", w.stream, types.ErrCompression, err)
	util.Warn("compress: %s seq %d kept uncompressed: %v", w.stream, res.Segment.Seq, err)
	w.observer.OnCompression(res)
	w.observer.OnError(w.stream, res.Err)
	return res
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
