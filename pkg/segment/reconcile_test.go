package segment_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/downfa11-org/logrotor/pkg/segment"
	"github.com/downfa11-org/logrotor/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReconcileRepairsInterruptedState(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}

	gz := compressBytes(t, []byte("two"), "gzip")

	// crash after the shift but before the active file was renamed: seq 1 is a gap
	write("wiki.log", "active")
	write("wiki.log.next", "")
	write("wiki.log.2", "two")
	write("wiki.log.2.gz", string(gz))
	write("wiki.log.3", "three")
	write(".wiki.0d3f.partial", "garbage")
	write("db.log.1", "not ours")

	m, err := segment.Open(dir, "wiki", types.RetentionConfig{MaxSegmentSize: 100, MaxSegmentCount: 5}, segment.Options{})
	require.NoError(t, err)
	defer m.Close()

	segs := m.ListSegments()
	require.Len(t, segs, 2)
	assert.Equal(t, 1, segs[0].Seq)
	assert.True(t, segs[0].Compressed)
	assert.Equal(t, "gzip", segs[0].Codec)
	assert.Equal(t, filepath.Join(dir, "wiki.log.1.gz"), segs[0].Path)
	assert.Equal(t, 2, segs[1].Seq)
	assert.False(t, segs[1].Compressed)

	assert.Equal(t, "two", string(readAll(t, m, 1)))
	assert.Equal(t, "three", string(readAll(t, m, 2)))
	assert.Equal(t, "active", string(readAll(t, m, 0)))
	assert.Equal(t, int64(6), m.Active().Size)

	assert.NoFileExists(t, filepath.Join(dir, "wiki.log.next"))
	assert.NoFileExists(t, filepath.Join(dir, ".wiki.0d3f.partial"))
	assert.NoFileExists(t, filepath.Join(dir, "wiki.log.2.gz"))
	assert.NoFileExists(t, filepath.Join(dir, "wiki.log.3"))
	assert.FileExists(t, filepath.Join(dir, "db.log.1"))
}

func TestReconcileRecreatesMissingActive(t *testing.T) {
	dir := t.TempDir()
	// crash between moving the active file to .1 and promoting .next
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wiki.log.1"), []byte("closed"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "wiki.log.next"), nil, 0o644))

	m, err := segment.Open(dir, "wiki", types.RetentionConfig{MaxSegmentSize: 100, MaxSegmentCount: 5}, segment.Options{})
	require.NoError(t, err)
	defer m.Close()

	assert.FileExists(t, filepath.Join(dir, "wiki.log"))
	require.Len(t, m.ListSegments(), 1)
	assert.Equal(t, "closed", string(readAll(t, m, 1)))
	assert.Equal(t, int64(6), m.TotalSize())
}
