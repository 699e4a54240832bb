package segment

import (
	"errors"
	"fmt"
	"io"

	"github.com/downfa11-org/logrotor/pkg/disk"
	"github.com/downfa11-org/logrotor/util"
)

type segmentReader struct {
	io.Reader
	closers []io.Closer
}

func (r *segmentReader) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OpenReader returns the decoded contents of segment seq (0 for the active one).
func (m *Manager) OpenReader(seq int) (io.ReadCloser, error) {
	m.metaMu.RLock()
	path, codec := "", ""
	switch {
	case seq == 0:
		path = m.active.Path
	case seq > 0 && seq <= len(m.rotated):
		s := m.rotated[seq-1]
		path, codec = s.Path, s.Codec
	}
	if path == "" {
		m.metaMu.RUnlock()
		return nil, fmt.Errorf("%w: %s seq %d", ErrNotFound, m.Stream, seq)
	}
	// open under the read lock so a concurrent renumber cannot move the file away
	ra, err := m.fs.OpenReader(path)
	m.metaMu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	return newSegmentReader(ra, codec)
}

func newSegmentReader(ra disk.ReaderAt, codec string) (io.ReadCloser, error) {
	raw := io.NewSectionReader(ra, 0, int64(ra.Len()))
	dec, err := util.NewDecompressReader(raw, codec)
	if err != nil {
		_ = ra.Close()
		return nil, err
	}
	return &segmentReader{Reader: dec, closers: []io.Closer{ra, dec}}, nil
}
