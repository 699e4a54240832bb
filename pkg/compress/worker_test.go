package compress_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/downfa11-org/logrotor/pkg/compress"
	"github.com/downfa11-org/logrotor/pkg/disk"
	"github.com/downfa11-org/logrotor/pkg/disk/disktest"
	"github.com/downfa11-org/logrotor/pkg/segment"
	"github.com/downfa11-org/logrotor/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	types.NopObserver
	mu      sync.Mutex
	results []types.CompressionResult
	errs    []error
}

func (r *recorder) OnCompression(res types.CompressionResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

func (r *recorder) OnError(_ string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

var logLine = strings.Repeat("2026-10-14T08:00:00Z wiki.js GET /en/home 200 12ms\n", 64)

func setup(t *testing.T, fs disk.FS, cfg types.RetentionConfig) (*segment.Manager, types.RotationEvent) {
	t.Helper()
	m, err := segment.Open(t.TempDir(), "wiki", cfg, segment.Options{FS: fs})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	_, _, err = m.Append(context.Background(), []byte(logLine))
	require.NoError(t, err)
	ev, err := m.ForceRotate(context.Background())
	require.NoError(t, err)
	return m, ev
}

func content(t *testing.T, m *segment.Manager, seq int) string {
	t.Helper()
	r, err := m.OpenReader(seq)
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(data)
}

func TestCompressEachCodec(t *testing.T) {
	for codec, ext := range map[string]string{"gzip": ".gz", "zstd": ".zst", "lz4": ".lz4", "snappy": ".snappy"} {
		codec, ext := codec, ext
		t.Run(codec, func(t *testing.T) {
			cfg := types.RetentionConfig{MaxSegmentSize: 1 << 20, MaxSegmentCount: 3, Compress: true, CompressionType: codec}
			m, ev := setup(t, nil, cfg)
			obs := &recorder{}
			w := compress.NewWorker("wiki", m, nil, time.Second, obs)

			res := w.HandleEvent(context.Background(), ev)
			require.NoError(t, res.Err)
			assert.False(t, res.Skipped)
			assert.Equal(t, 1, res.Segment.Seq, "sequence number is preserved")
			assert.True(t, res.Segment.Compressed)
			assert.True(t, strings.HasSuffix(res.Segment.Path, "wiki.log.1"+ext))
			assert.Less(t, res.CompressedSize, res.OriginalSize)
			assert.Equal(t, int64(len(logLine)), res.OriginalSize)

			assert.NoFileExists(t, filepath.Join(m.Dir, "wiki.log.1"))
			assert.Equal(t, logLine, content(t, m, 1))
			require.Len(t, obs.results, 1)

			segs := m.ListSegments()
			require.Len(t, segs, 1)
			assert.Equal(t, res.CompressedSize, segs[0].Size)
		})
	}
}

func TestCompressIsIdempotent(t *testing.T) {
	cfg := types.RetentionConfig{MaxSegmentSize: 1 << 20, MaxSegmentCount: 3, Compress: true}
	m, ev := setup(t, nil, cfg)
	w := compress.NewWorker("wiki", m, nil, time.Second, nil)

	first := w.HandleEvent(context.Background(), ev)
	require.NoError(t, first.Err)

	second := w.HandleEvent(context.Background(), ev)
	assert.NoError(t, second.Err)
	assert.True(t, second.Skipped)
	assert.Equal(t, first.Segment.Path, m.ListSegments()[0].Path)
}

func TestCompressDisabledSkips(t *testing.T) {
	m, ev := setup(t, nil, types.RetentionConfig{MaxSegmentSize: 1 << 20, MaxSegmentCount: 3})
	w := compress.NewWorker("wiki", m, nil, time.Second, nil)

	res := w.HandleEvent(context.Background(), ev)
	assert.True(t, res.Skipped)
	assert.False(t, m.ListSegments()[0].Compressed)
	assert.Empty(t, w.CompressPending(context.Background()))
}

func TestCompressFailureKeepsPlainSegment(t *testing.T) {
	ffs := disktest.New()
	cfg := types.RetentionConfig{MaxSegmentSize: 1 << 20, MaxSegmentCount: 3, Compress: true}
	m, ev := setup(t, ffs, cfg)
	obs := &recorder{}
	w := compress.NewWorker("wiki", m, ffs, time.Second, obs)

	ffs.Fail("create", ".partial", disktest.ErrDiskFull, -1)
	res := w.HandleEvent(context.Background(), ev)
	require.Error(t, res.Err)
	assert.ErrorIs(t, res.Err, types.ErrCompression)
	assert.ErrorIs(t, res.Err, disktest.ErrDiskFull)

	segs := m.ListSegments()
	require.Len(t, segs, 1)
	assert.False(t, segs[0].Compressed)
	assert.False(t, m.Compressing(segs[0].ID))
	assert.FileExists(t, segs[0].Path)
	assert.Equal(t, logLine, content(t, m, 1))
	require.Len(t, obs.errs, 1)

	// a later catch-up pass retries successfully
	ffs.Heal()
	results := w.CompressPending(context.Background())
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.True(t, m.ListSegments()[0].Compressed)
}

func TestCompressInstallFailureRemovesPartial(t *testing.T) {
	ffs := disktest.New()
	cfg := types.RetentionConfig{MaxSegmentSize: 1 << 20, MaxSegmentCount: 3, Compress: true, CompressionType: "zstd"}
	m, ev := setup(t, ffs, cfg)
	w := compress.NewWorker("wiki", m, ffs, time.Second, nil)

	ffs.Fail("rename", ".partial", os.ErrPermission, 1)
	res := w.HandleEvent(context.Background(), ev)
	assert.ErrorIs(t, res.Err, types.ErrCompression)

	assert.NoFileExists(t, m.PartialPath(ev.Old.ID))
	assert.NoFileExists(t, filepath.Join(m.Dir, "wiki.log.1.zst"))
	assert.FileExists(t, filepath.Join(m.Dir, "wiki.log.1"))
	assert.False(t, m.ListSegments()[0].Compressed)
}

func TestCompressCancelledDeletesPartialOutput(t *testing.T) {
	cfg := types.RetentionConfig{MaxSegmentSize: 1 << 20, MaxSegmentCount: 3, Compress: true}
	m, ev := setup(t, nil, cfg)
	w := compress.NewWorker("wiki", m, nil, time.Second, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := w.HandleEvent(ctx, ev)
	assert.ErrorIs(t, res.Err, types.ErrCompression)
	assert.ErrorIs(t, res.Err, context.Canceled)

	assert.NoFileExists(t, m.PartialPath(ev.Old.ID))
	entries, err := os.ReadDir(m.Dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".partial"), "leftover %s", e.Name())
	}
	assert.Equal(t, logLine, content(t, m, 1))
	assert.False(t, m.Compressing(ev.Old.ID))
}

func TestCompressTimeoutMidEncodeDeletesPartialOutput(t *testing.T) {
	ffs := disktest.New()
	cfg := types.RetentionConfig{MaxSegmentSize: 1 << 20, MaxSegmentCount: 3, Compress: true}
	m, ev := setup(t, ffs, cfg)
	obs := &recorder{}
	w := compress.NewWorker("wiki", m, ffs, 50*time.Millisecond, obs)

	// the first chunk lands after the deadline, so the encoder is already running
	ffs.Slow("wiki.log.1", 200*time.Millisecond)
	creates := ffs.Calls("create")
	res := w.HandleEvent(context.Background(), ev)
	require.Error(t, res.Err)
	assert.ErrorIs(t, res.Err, types.ErrCompression)
	assert.ErrorIs(t, res.Err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, ffs.Calls("read"), 1)
	assert.Equal(t, creates+1, ffs.Calls("create"), "partial output was started")

	assert.NoFileExists(t, m.PartialPath(ev.Old.ID))
	assert.NoFileExists(t, filepath.Join(m.Dir, "wiki.log.1.gz"))
	assert.FileExists(t, filepath.Join(m.Dir, "wiki.log.1"))
	segs := m.ListSegments()
	require.Len(t, segs, 1)
	assert.False(t, segs[0].Compressed)
	assert.False(t, m.Compressing(ev.Old.ID))
	require.Len(t, obs.errs, 1)

	ffs.Heal()
	assert.Equal(t, logLine, content(t, m, 1))
}

func TestRunConsumesEvents(t *testing.T) {
	cfg := types.RetentionConfig{MaxSegmentSize: 1 << 20, MaxSegmentCount: 3, Compress: true, CompressionType: "lz4"}
	m, ev := setup(t, nil, cfg)
	w := compress.NewWorker("wiki", m, nil, time.Second, nil)

	events := make(chan types.RotationEvent, 1)
	done := make(chan types.CompressionResult, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	finished := make(chan struct{})
	go func() {
		defer close(finished)
		w.Run(ctx, events, func(res types.CompressionResult) { done <- res })
	}()

	events <- ev
	select {
	case res := <-done:
		require.NoError(t, res.Err)
		assert.Equal(t, "lz4", res.Segment.Codec)
	case <-time.After(5 * time.Second):
		t.Fatal("compression result not delivered")
	}

	close(events)
	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after channel close")
	}
}
