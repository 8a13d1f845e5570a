package store

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/absfs/absfs"
)

// backingFile is the random-access subset the store needs from an open
// file, satisfied directly by *os.File and, via the adapter below, by
// absfs.File.
type backingFile interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	Truncate(size int64) error
	Close() error
}

// dirInfo is the minimal directory entry shape the store needs, independent
// of which backingFS produced it.
type dirInfo struct {
	name  string
	isDir bool
}

// backingFS is the filesystem operations the store needs. osBackingFS
// satisfies it against the real host filesystem; absfsBackingFS satisfies
// it against any absfs.FileSystem (in particular absfs/memfs, used as an
// in-memory backing store in tests — spec.md's core never depends on disk
// durability, so an in-memory tree exercises the same read/modify/write
// path without touching the host).
type backingFS interface {
	OpenFile(name string, flag int, perm os.FileMode) (backingFile, error)
	Mkdir(name string, perm os.FileMode) error
	Remove(name string) error
	Rename(oldname, newname string) error
	Stat(name string) (os.FileInfo, error)
	Chmod(name string, mode os.FileMode) error
	Chtimes(name string, atime, mtime time.Time) error
	ReadDir(name string) ([]dirInfo, error)
}

// osBackingFS is the production backingFS: the real host filesystem.
type osBackingFS struct{}

func (osBackingFS) OpenFile(name string, flag int, perm os.FileMode) (backingFile, error) {
	return os.OpenFile(name, flag, perm)
}

func (osBackingFS) Mkdir(name string, perm os.FileMode) error { return os.Mkdir(name, perm) }
func (osBackingFS) Remove(name string) error                  { return os.Remove(name) }
func (osBackingFS) Rename(oldname, newname string) error      { return os.Rename(oldname, newname) }
func (osBackingFS) Stat(name string) (os.FileInfo, error)     { return os.Stat(name) }
func (osBackingFS) Chmod(name string, mode os.FileMode) error { return os.Chmod(name, mode) }
func (osBackingFS) Chtimes(name string, atime, mtime time.Time) error {
	return os.Chtimes(name, atime, mtime)
}

func (osBackingFS) ReadDir(name string) ([]dirInfo, error) {
	entries, err := os.ReadDir(name)
	if err != nil {
		return nil, err
	}
	out := make([]dirInfo, len(entries))
	for i, e := range entries {
		out[i] = dirInfo{name: e.Name(), isDir: e.IsDir()}
	}
	return out, nil
}

// absfsBackingFS adapts an absfs.FileSystem (e.g. absfs/memfs.FileSystem)
// to backingFS.
type absfsBackingFS struct {
	fs absfs.FileSystem
}

func newAbsfsBackingFS(fs absfs.FileSystem) *absfsBackingFS {
	return &absfsBackingFS{fs: fs}
}

func (a *absfsBackingFS) OpenFile(name string, flag int, perm os.FileMode) (backingFile, error) {
	f, err := a.fs.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return &seekFile{f: f}, nil
}

func (a *absfsBackingFS) Mkdir(name string, perm os.FileMode) error { return a.fs.Mkdir(name, perm) }
func (a *absfsBackingFS) Remove(name string) error                  { return a.fs.Remove(name) }
func (a *absfsBackingFS) Rename(oldname, newname string) error {
	return a.fs.Rename(oldname, newname)
}
func (a *absfsBackingFS) Stat(name string) (os.FileInfo, error) { return a.fs.Stat(name) }
func (a *absfsBackingFS) Chmod(name string, mode os.FileMode) error {
	return a.fs.Chmod(name, mode)
}
func (a *absfsBackingFS) Chtimes(name string, atime, mtime time.Time) error {
	return a.fs.Chtimes(name, atime, mtime)
}

func (a *absfsBackingFS) ReadDir(name string) ([]dirInfo, error) {
	dir, err := a.fs.Open(name)
	if err != nil {
		return nil, err
	}
	defer dir.Close()
	infos, err := dir.Readdir(-1)
	if err != nil && err.Error() != "EOF" {
		return nil, err
	}
	out := make([]dirInfo, len(infos))
	for i, fi := range infos {
		out[i] = dirInfo{name: fi.Name(), isDir: fi.IsDir()}
	}
	return out, nil
}

// seekFile adapts absfs.File's Seek-based I/O onto the ReadAt/WriteAt shape
// the store's read/modify/write loop uses. Each call holds the adapter's
// own mutex across its Seek and the following Read/Write, so two calls on
// the same seekFile never race for the file's seek position.
type seekFile struct {
	mu sync.Mutex
	f  absfs.File
}

func (s *seekFile) ReadAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.f.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	return s.f.Read(p)
}

func (s *seekFile) WriteAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.f.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}
	return s.f.Write(p)
}

func (s *seekFile) Truncate(size int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Truncate(size)
}

func (s *seekFile) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}
