// Package disktest provides a fault-injecting disk.FS for tests.
package disktest

import (
	"errors"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/downfa11-org/logrotor/pkg/disk"
)

// ErrDiskFull mimics ENOSPC.
var ErrDiskFull = errors.New("no space left on device")

// FaultFS wraps disk.OSFS and fails selected operations whose path contains a substring.
type FaultFS struct {
	disk.OSFS

	mu     sync.Mutex
	faults map[string]fault
	calls  map[string]int
	slow   slowRead
}

type slowRead struct {
	match string
	delay time.Duration
}

type fault struct {
	match string
	err   error
	// remaining failures; < 0 means forever
	times int
}

func New() *FaultFS {
	return &FaultFS{faults: map[string]fault{}, calls: map[string]int{}}
}

// Fail makes op ("create", "append", "rename", "remove", "reader") fail with err
// for paths containing match. times < 0 fails forever.
func (f *FaultFS) Fail(op, match string, err error, times int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults[op] = fault{match: match, err: err, times: times}
}

// Slow delays every ReadAt on readers opened for paths containing match.
// Each delayed read is counted as a "read" call.
func (f *FaultFS) Slow(match string, delay time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.slow = slowRead{match: match, delay: delay}
}

// Heal clears every injected fault and delay.
func (f *FaultFS) Heal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults = map[string]fault{}
	f.slow = slowRead{}
}

// Calls returns how many times op was invoked.
func (f *FaultFS) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *FaultFS) check(op, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++

	ft, ok := f.faults[op]
	if !ok || ft.times == 0 || !strings.Contains(path, ft.match) {
		return nil
	}
	if ft.times > 0 {
		ft.times--
		f.faults[op] = ft
	}
	return &os.PathError{Op: op, Path: path, Err: ft.err}
}

func (f *FaultFS) OpenAppend(path string) (disk.File, error) {
	if err := f.check("append", path); err != nil {
		return nil, err
	}
	return f.OSFS.OpenAppend(path)
}

func (f *FaultFS) Create(path string) (disk.File, error) {
	if err := f.check("create", path); err != nil {
		return nil, err
	}
	return f.OSFS.Create(path)
}

func (f *FaultFS) OpenReader(path string) (disk.ReaderAt, error) {
	if err := f.check("reader", path); err != nil {
		return nil, err
	}
	r, err := f.OSFS.OpenReader(path)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	slow := f.slow
	f.mu.Unlock()
	if slow.delay > 0 && strings.Contains(path, slow.match) {
		return &slowReader{ReaderAt: r, fs: f, delay: slow.delay}, nil
	}
	return r, nil
}

type slowReader struct {
	disk.ReaderAt
	fs    *FaultFS
	delay time.Duration
}

func (r *slowReader) ReadAt(p []byte, off int64) (int, error) {
	r.fs.mu.Lock()
	r.fs.calls["read"]++
	r.fs.mu.Unlock()

	time.Sleep(r.delay)
	return r.ReaderAt.ReadAt(p, off)
}

func (f *FaultFS) Rename(oldPath, newPath string) error {
	if err := f.check("rename", oldPath); err != nil {
		return err
	}
	return f.OSFS.Rename(oldPath, newPath)
}

func (f *FaultFS) Remove(path string) error {
	if err := f.check("remove", path); err != nil {
		return err
	}
	return f.OSFS.Remove(path)
}
