// Package disk holds the storage primitives the segment layer is built on.
// Single-file operations are assumed atomic; nothing here spans files.
package disk

import (
	"io"
	"os"

	"golang.org/x/exp/mmap"
)

// File is the writable handle returned for active and temporary segments.
type File interface {
	io.Writer
	io.Closer
	Sync() error
	Stat() (os.FileInfo, error)
	Name() string
}

// ReaderAt is a random-access view over a closed segment.
type ReaderAt interface {
	io.ReaderAt
	io.Closer
	Len() int
}

// FS is the set of storage operations a stream needs.
type FS interface {
	// OpenAppend opens path for appending, creating it when missing.
	OpenAppend(path string) (File, error)
	// Create creates a new file, failing if it already exists.
	Create(path string) (File, error)
	OpenReader(path string) (ReaderAt, error)
	Rename(oldPath, newPath string) error
	Remove(path string) error
	Stat(path string) (os.FileInfo, error)
	ReadDir(dir string) ([]os.DirEntry, error)
	MkdirAll(dir string) error
}

// OSFS implements FS on the local filesystem.
type OSFS struct{}

func (OSFS) OpenAppend(path string) (File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	adviseSequential(f)
	return f, nil
}

func (OSFS) Create(path string) (File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	adviseSequential(f)
	return f, nil
}

// OpenReader maps the file read-only.
func (OSFS) OpenReader(path string) (ReaderAt, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (OSFS) Rename(oldPath, newPath string) error {
	return os.Rename(oldPath, newPath)
}

func (OSFS) Remove(path string) error {
	return os.Remove(path)
}

func (OSFS) Stat(path string) (os.FileInfo, error) {
	return os.Stat(path)
}

func (OSFS) ReadDir(dir string) ([]os.DirEntry, error) {
	return os.ReadDir(dir)
}

func (OSFS) MkdirAll(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

// Release hints that a closed segment's cached pages are no longer needed.
func Release(f File) {
	if osf, ok := f.(*os.File); ok {
		adviseDontNeed(osf)
	}
}
