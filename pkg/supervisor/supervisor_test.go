package supervisor_test

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/downfa11-org/logrotor/pkg/supervisor"
	"github.com/downfa11-org/logrotor/pkg/types"
	"github.com/downfa11-org/logrotor/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSupervisor(t *testing.T, observers ...types.Observer) *supervisor.Supervisor {
	t.Helper()
	sup := supervisor.New(supervisor.Config{
		LogDir:              t.TempDir(),
		MaintenanceInterval: 20 * time.Millisecond,
	}, nil, observers...)
	t.Cleanup(func() { _ = sup.Close() })
	return sup
}

func dirNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func TestRotationCompressionAndRetention(t *testing.T) {
	sup := newSupervisor(t)
	st, err := sup.Register("wiki", types.RetentionConfig{MaxSegmentSize: 100, MaxSegmentCount: 2, Compress: true})
	require.NoError(t, err)

	_, err = sup.Write("wiki", bytes.Repeat([]byte("a"), 150))
	require.NoError(t, err)
	for _, b := range []string{"b", "c", "d"} {
		n, err := sup.Write("wiki", bytes.Repeat([]byte(b), 101))
		require.NoError(t, err)
		assert.Equal(t, 101, n)
	}

	require.Eventually(t, func() bool {
		segs, err := sup.ListSegments("wiki")
		if err != nil || len(segs) != 2 {
			return false
		}
		for _, s := range segs {
			if !s.Compressed {
				return false
			}
		}
		return true
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{"wiki.log", "wiki.log.1.gz", "wiki.log.2.gz"}, dirNames(t, st.Dir()))

	segs, err := sup.ListSegments("wiki")
	require.NoError(t, err)
	for i, want := range []string{"d", "c"} {
		assert.Equal(t, i+1, segs[i].Seq)

		f, err := os.Open(segs[i].Path)
		require.NoError(t, err)
		r, err := util.NewDecompressReader(f, util.CodecGzip)
		require.NoError(t, err)
		data, err := io.ReadAll(r)
		require.NoError(t, err)
		_ = r.Close()
		_ = f.Close()
		assert.Equal(t, bytes.Repeat([]byte(want), 101), data)
	}

	assert.Equal(t, int64(0), st.Active().Size)
}

func TestEmptyStreamUsesNoSpace(t *testing.T) {
	sup := newSupervisor(t)
	_, err := sup.Register("files", types.RetentionConfig{MaxSegmentSize: 100, MaxSegmentCount: 2})
	require.NoError(t, err)

	n, err := sup.Write("files", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	used, err := sup.TotalSpaceUsed("files")
	require.NoError(t, err)
	assert.Equal(t, int64(0), used)

	segs, err := sup.ListSegments("files")
	require.NoError(t, err)
	assert.Empty(t, segs)
}

func TestTotalSpaceUsed(t *testing.T) {
	sup := newSupervisor(t)
	_, err := sup.Register("files", types.RetentionConfig{MaxSegmentSize: 100, MaxSegmentCount: 5})
	require.NoError(t, err)

	_, err = sup.Write("files", make([]byte, 120))
	require.NoError(t, err)
	_, err = sup.Write("files", make([]byte, 30))
	require.NoError(t, err)

	used, err := sup.TotalSpaceUsed("files")
	require.NoError(t, err)
	assert.Equal(t, int64(150), used)
}

func TestUpdateConfigRejectsInvalid(t *testing.T) {
	sup := newSupervisor(t)
	prior := types.RetentionConfig{MaxSegmentSize: 100, MaxSegmentCount: 2}
	st, err := sup.Register("wiki", prior)
	require.NoError(t, err)

	tests := []types.RetentionConfig{
		{MaxSegmentSize: 100, MaxSegmentCount: -1},
		{MaxSegmentSize: 0, MaxSegmentCount: 2},
		{MaxSegmentSize: 100, MaxSegmentCount: 2, CompressionType: "brotli"},
	}
	for _, rc := range tests {
		err := sup.UpdateConfig("wiki", rc)
		assert.ErrorIs(t, err, types.ErrInvalidConfig)
		assert.Equal(t, prior, st.Config())
	}

	// prior limits still drive rotation
	_, err = sup.Write("wiki", make([]byte, 150))
	require.NoError(t, err)
	segs, err := sup.ListSegments("wiki")
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Equal(t, int64(150), segs[0].Size)
}

func TestUpdateConfigAppliesToLaterWrites(t *testing.T) {
	sup := newSupervisor(t)
	_, err := sup.Register("wiki", types.RetentionConfig{MaxSegmentSize: 1000, MaxSegmentCount: 10})
	require.NoError(t, err)

	_, err = sup.Write("wiki", make([]byte, 300))
	require.NoError(t, err)
	segs, _ := sup.ListSegments("wiki")
	assert.Empty(t, segs)

	require.NoError(t, sup.UpdateConfig("wiki", types.RetentionConfig{MaxSegmentSize: 200, MaxSegmentCount: 10}))
	_, err = sup.Write("wiki", make([]byte, 1))
	require.NoError(t, err)

	segs, _ = sup.ListSegments("wiki")
	require.Len(t, segs, 1)
	assert.Equal(t, int64(301), segs[0].Size)
}

func TestUnknownStream(t *testing.T) {
	sup := newSupervisor(t)

	_, err := sup.Write("nope", []byte("x"))
	assert.ErrorIs(t, err, types.ErrUnknownStream)
	_, err = sup.TotalSpaceUsed("nope")
	assert.ErrorIs(t, err, types.ErrUnknownStream)
	_, err = sup.ForceRotate("nope")
	assert.ErrorIs(t, err, types.ErrUnknownStream)
	_, err = sup.ListSegments("nope")
	assert.ErrorIs(t, err, types.ErrUnknownStream)
	_, err = sup.Sweep("nope")
	assert.ErrorIs(t, err, types.ErrUnknownStream)
	assert.ErrorIs(t, sup.UpdateConfig("nope", types.RetentionConfig{MaxSegmentSize: 1}), types.ErrUnknownStream)
	assert.ErrorIs(t, sup.Deregister("nope"), types.ErrUnknownStream)
}

func TestRegisterValidation(t *testing.T) {
	sup := newSupervisor(t)
	rc := types.RetentionConfig{MaxSegmentSize: 100, MaxSegmentCount: 1}

	for _, id := range []string{"", "../escape", "a/b", "dotted.name"} {
		_, err := sup.Register(id, rc)
		assert.ErrorIs(t, err, types.ErrInvalidConfig, "id %q", id)
	}

	_, err := sup.Register("db", types.RetentionConfig{MaxSegmentSize: 100, MaxSegmentCount: -1})
	assert.ErrorIs(t, err, types.ErrInvalidConfig)

	_, err = sup.Register("db", rc)
	require.NoError(t, err)
	_, err = sup.Register("db", rc)
	assert.ErrorIs(t, err, types.ErrStreamExists)
	assert.Equal(t, []string{"db"}, sup.Streams())
}

func TestRegisterPath(t *testing.T) {
	sup := newSupervisor(t)
	dir := filepath.Join(t.TempDir(), "volumes", "proxy")

	st, err := sup.RegisterPath("proxy", dir, types.RetentionConfig{MaxSegmentSize: 100, MaxSegmentCount: 1})
	require.NoError(t, err)
	assert.Equal(t, dir, st.Dir())
	assert.FileExists(t, filepath.Join(dir, "proxy.log"))
}

func TestForceRotate(t *testing.T) {
	sup := newSupervisor(t)
	_, err := sup.Register("wiki", types.RetentionConfig{MaxSegmentSize: 1 << 20, MaxSegmentCount: 3})
	require.NoError(t, err)

	_, err = sup.Write("wiki", []byte("hello"))
	require.NoError(t, err)
	ev, err := sup.ForceRotate("wiki")
	require.NoError(t, err)
	assert.Equal(t, "wiki", ev.Stream)
	assert.Equal(t, 1, ev.Old.Seq)
	assert.Equal(t, int64(5), ev.Old.Size)

	segs, err := sup.ListSegments("wiki")
	require.NoError(t, err)
	require.Len(t, segs, 1)
	assert.Equal(t, ev.Old.ID, segs[0].ID)
}

func TestDeregisterKeepsFiles(t *testing.T) {
	sup := newSupervisor(t)
	rc := types.RetentionConfig{MaxSegmentSize: 10, MaxSegmentCount: 5}
	st, err := sup.Register("db", rc)
	require.NoError(t, err)
	dir := st.Dir()

	_, err = sup.Write("db", []byte("0123456789"))
	require.NoError(t, err)
	require.NoError(t, sup.Deregister("db"))

	_, err = sup.Write("db", []byte("x"))
	assert.ErrorIs(t, err, types.ErrUnknownStream)
	assert.FileExists(t, filepath.Join(dir, "db.log.1"))

	st, err = sup.Register("db", rc)
	require.NoError(t, err)
	require.Len(t, st.Segments(), 1)
	assert.Equal(t, int64(10), st.Segments()[0].Size)
}

func TestParallelStreams(t *testing.T) {
	sup := newSupervisor(t)
	ids := []string{"wiki", "files", "db", "proxy"}
	for _, id := range ids {
		_, err := sup.Register(id, types.RetentionConfig{MaxSegmentSize: 50, MaxSegmentCount: 100})
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				for i := 0; i < 25; i++ {
					_, err := sup.Write(id, []byte("0123456789"))
					assert.NoError(t, err)
				}
			}(id)
		}
	}
	wg.Wait()

	for _, id := range ids {
		segs, err := sup.ListSegments(id)
		require.NoError(t, err)
		assert.Len(t, segs, 20, id)
		for i, s := range segs {
			assert.Equal(t, i+1, s.Seq)
			assert.Equal(t, int64(50), s.Size)
		}
		used, err := sup.TotalSpaceUsed(id)
		require.NoError(t, err)
		assert.Equal(t, int64(1000), used)
	}
}

type countingObserver struct {
	types.NopObserver
	rotations atomic.Int64
	sweeps    atomic.Int64
}

func (o *countingObserver) OnRotation(types.RotationEvent) { o.rotations.Add(1) }
func (o *countingObserver) OnSweep(types.SweepResult) { o.sweeps.Add(1) }

func TestObserverNotified(t *testing.T) {
	obs := &countingObserver{}
	sup := newSupervisor(t, obs)
	_, err := sup.Register("wiki", types.RetentionConfig{MaxSegmentSize: 10, MaxSegmentCount: 1})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := sup.Write("wiki", []byte("0123456789"))
		require.NoError(t, err)
	}

	assert.Equal(t, int64(3), obs.rotations.Load())
	require.Eventually(t, func() bool {
		segs, _ := sup.ListSegments("wiki")
		return len(segs) == 1 && obs.sweeps.Load() > 0
	}, 5*time.Second, 10*time.Millisecond)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestMaintenanceRotatesIdleStream(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)}
	sup := supervisor.New(supervisor.Config{
		LogDir:              t.TempDir(),
		MaintenanceInterval: 10 * time.Millisecond,
		Clock:               clock.Now,
	}, nil)
	defer sup.Close()

	_, err := sup.Register("proxy", types.RetentionConfig{MaxSegmentSize: 1 << 20, MaxSegmentCount: 3, MaxSegmentAge: time.Hour})
	require.NoError(t, err)
	_, err = sup.Write("proxy", []byte("GET / 200\n"))
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)
	require.Eventually(t, func() bool {
		segs, _ := sup.ListSegments("proxy")
		return len(segs) == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestCloseRejectsRegistration(t *testing.T) {
	sup := supervisor.New(supervisor.Config{LogDir: t.TempDir()}, nil)
	for i := 0; i < 3; i++ {
		_, err := sup.Register("s"+strconv.Itoa(i), types.RetentionConfig{MaxSegmentSize: 10})
		require.NoError(t, err)
	}
	require.NoError(t, sup.Close())
	assert.Empty(t, sup.Streams())

	_, err := sup.Register("late", types.RetentionConfig{MaxSegmentSize: 10})
	assert.True(t, errors.Is(err, types.ErrClosed))
}
