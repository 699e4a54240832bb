package segment

import (
	"bufio"
	"fmt"
	"sync/atomic"

	"github.com/downfa11-org/logrotor/pkg/disk"
	"github.com/downfa11-org/logrotor/util"
)

// appender writes to the active segment. Callers serialize Append, swap and close;
// Size may be read concurrently.
type appender struct {
	file       disk.File
	writer     *bufio.Writer
	size       atomic.Int64
	syncWrites bool
}

func newAppender(f disk.File, size int64, syncWrites bool) *appender {
	a := &appender{
		file:       f,
		writer:     bufio.NewWriter(f),
		syncWrites: syncWrites,
	}
	a.size.Store(size)
	return a
}

// Append writes p and flushes it to the file before returning.
func (a *appender) Append(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	n, err := a.writer.Write(p)
	if err == nil {
		err = a.writer.Flush()
	}
	if err == nil && a.syncWrites {
		err = a.file.Sync()
	}
	if err != nil {
		a.recover()
		return 0, err
	}

	a.size.Add(int64(n))
	return n, nil
}

// recover drops a failed buffer and re-reads the real file size so the next
// append starts from what actually reached the disk.
func (a *appender) recover() {
	a.writer.Reset(a.file)
	info, err := a.file.Stat()
	if err != nil {
		util.Warn("appender: stat %s after failed write: %v", a.file.Name(), err)
		return
	}
	a.size.Store(info.Size())
}

func (a *appender) Size() int64 {
	return a.size.Load()
}

// Sync flushes buffered bytes and fsyncs the file.
func (a *appender) Sync() error {
	if err := a.writer.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	if err := a.file.Sync(); err != nil {
		return fmt.Errorf("fsync: %w", err)
	}
	return nil
}

// swap points the appender at a fresh empty file and returns the previous one.
func (a *appender) swap(f disk.File) disk.File {
	old := a.file
	a.file = f
	a.writer.Reset(f)
	a.size.Store(0)
	return old
}

func (a *appender) Close() error {
	if a.file == nil {
		return nil
	}
	err := a.Sync()
	if cerr := a.file.Close(); err == nil {
		err = cerr
	}
	a.file = nil
	return err
}
