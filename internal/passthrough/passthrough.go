// Package passthrough implements the Pass-through Store: a hostfs.Backend
// that talks directly to a real directory tree with no encryption at all,
// for mounts that mix encrypted and plain subtrees (spec.md §4.5).
package passthrough

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"

	"github.com/vaultfs/vaultfs/internal/hostfs"
)

// Store is a hostfs.Backend with identity path translation and no cipher
// involvement whatsoever.
type Store struct {
	Root string
}

// New builds a pass-through backend rooted at root.
func New(root string) *Store {
	return &Store{Root: root}
}

func (s *Store) real(virtual string) string {
	return filepath.Join(s.Root, filepath.FromSlash(virtual))
}

func (s *Store) Init() error {
	info, err := os.Stat(s.Root)
	if err != nil {
		return hostfs.New(hostfs.KindNotFound, "Init", s.Root, err)
	}
	if !info.IsDir() {
		return hostfs.New(hostfs.KindNotADirectory, "Init", s.Root, nil)
	}
	return nil
}

func (s *Store) Create(path string, mode uint32) (hostfs.Handle, error) {
	f, err := os.OpenFile(s.real(path), os.O_CREATE|os.O_TRUNC|os.O_RDWR, fs.FileMode(mode&0o777))
	if err != nil {
		return nil, mapOSError("Create", path, err)
	}
	return f, nil
}

func (s *Store) Open(path string, flags int) (hostfs.Handle, error) {
	f, err := os.OpenFile(s.real(path), flags, 0)
	if err != nil {
		return nil, mapOSError("Open", path, err)
	}
	return f, nil
}

func (s *Store) asFile(op, path string, h hostfs.Handle) (*os.File, error) {
	f, ok := h.(*os.File)
	if !ok {
		return nil, hostfs.New(hostfs.KindBadFD, op, path, nil)
	}
	return f, nil
}

func (s *Store) Read(path string, h hostfs.Handle, buf []byte, off int64) (int, error) {
	f, err := s.asFile("Read", path, h)
	if err != nil {
		return 0, err
	}
	n, err := f.ReadAt(buf, off)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, mapOSError("Read", path, err)
	}
	return n, nil
}

func (s *Store) Write(path string, h hostfs.Handle, buf []byte, off int64) (int, error) {
	f, err := s.asFile("Write", path, h)
	if err != nil {
		return 0, err
	}
	n, err := f.WriteAt(buf, off)
	if err != nil {
		return n, mapOSError("Write", path, err)
	}
	return n, nil
}

func (s *Store) Release(path string, h hostfs.Handle) error {
	f, err := s.asFile("Release", path, h)
	if err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return mapOSError("Release", path, err)
	}
	return nil
}

func (s *Store) Truncate(path string, size int64) error {
	if err := os.Truncate(s.real(path), size); err != nil {
		return mapOSError("Truncate", path, err)
	}
	return nil
}

func (s *Store) Ftruncate(path string, h hostfs.Handle, size int64) error {
	f, err := s.asFile("Ftruncate", path, h)
	if err != nil {
		return err
	}
	if err := f.Truncate(size); err != nil {
		return mapOSError("Ftruncate", path, err)
	}
	return nil
}

func (s *Store) Unlink(path string) error {
	if err := os.Remove(s.real(path)); err != nil {
		return mapOSError("Unlink", path, err)
	}
	return nil
}

func (s *Store) Mkdir(path string, mode uint32) error {
	if err := os.Mkdir(s.real(path), fs.FileMode(mode&0o777)); err != nil {
		return mapOSError("Mkdir", path, err)
	}
	return nil
}

func (s *Store) Rmdir(path string) error {
	real := s.real(path)
	entries, err := os.ReadDir(real)
	if err != nil {
		return mapOSError("Rmdir", path, err)
	}
	if len(entries) > 0 {
		return hostfs.New(hostfs.KindNotEmpty, "Rmdir", path, nil)
	}
	if err := os.Remove(real); err != nil {
		return mapOSError("Rmdir", path, err)
	}
	return nil
}

func (s *Store) Rename(oldpath, newpath string) error {
	if err := os.Rename(s.real(oldpath), s.real(newpath)); err != nil {
		return mapOSError("Rename", oldpath, err)
	}
	return nil
}

func (s *Store) Readdir(path string) ([]hostfs.DirEntry, error) {
	entries, err := os.ReadDir(s.real(path))
	if err != nil {
		return nil, mapOSError("Readdir", path, err)
	}
	out := make([]hostfs.DirEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, hostfs.DirEntry{Name: e.Name(), IsDir: e.IsDir()})
	}
	return out, nil
}

func (s *Store) Getattr(path string) (hostfs.Attr, error) {
	info, err := os.Stat(s.real(path))
	if err != nil {
		return hostfs.Attr{}, mapOSError("Getattr", path, err)
	}
	return hostfs.Attr{
		Size:    info.Size(),
		Mode:    uint32(info.Mode().Perm()),
		ModTime: info.ModTime(),
		IsDir:   info.IsDir(),
	}, nil
}

func (s *Store) Setattr(path string, req hostfs.SetAttrReq) error {
	real := s.real(path)
	if req.ValidMode && req.Mode != nil {
		if err := os.Chmod(real, fs.FileMode(*req.Mode&0o777)); err != nil {
			return mapOSError("Setattr", path, err)
		}
	}
	if req.ValidTime && req.ModTime != nil {
		if err := os.Chtimes(real, *req.ModTime, *req.ModTime); err != nil {
			return mapOSError("Setattr", path, err)
		}
	}
	if req.ValidSize && req.Size != nil {
		if err := os.Truncate(real, *req.Size); err != nil {
			return mapOSError("Setattr", path, err)
		}
	}
	return nil
}

func (s *Store) Access(path string, mode uint32) error {
	if _, err := os.Stat(s.real(path)); err != nil {
		return mapOSError("Access", path, err)
	}
	return nil
}

func (s *Store) Statfs(path string) (hostfs.StatfsResult, error) {
	return statfs(s.Root)
}

func mapOSError(op, path string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return hostfs.New(hostfs.KindNotFound, op, path, err)
	case errors.Is(err, fs.ErrExist):
		return hostfs.New(hostfs.KindExists, op, path, err)
	case errors.Is(err, fs.ErrPermission):
		return hostfs.New(hostfs.KindPermission, op, path, err)
	case errors.Is(err, syscall.EXDEV):
		return hostfs.New(hostfs.KindCrossDevice, op, path, err)
	default:
		return hostfs.New(hostfs.KindIO, op, path, err)
	}
}
