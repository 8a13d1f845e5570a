// Package store implements the Encrypted Store: a hostfs.Backend that keeps
// file bodies AES-256-CTR enciphered on a backing directory tree and path
// components name-encrypted with a fixed-nonce AES-256-GCM codec (spec.md
// §3, §4.1, §4.2). The backing tree is usually the real host filesystem,
// but any absfs.FileSystem can stand in (NewWithFS), which is how the test
// suite exercises the same code entirely in memory via absfs/memfs.
package store

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/absfs/absfs"

	"github.com/vaultfs/vaultfs/internal/cipher"
	"github.com/vaultfs/vaultfs/internal/hostfs"
)

// Store is a hostfs.Backend rooted at a directory in some backingFS. All
// file bodies under Root are stored in the on-disk format described by
// format.go; all path components are translated through a NameCodec before
// ever touching the backing tree.
type Store struct {
	Root      string
	BlockSize int64

	bc   *cipher.BodyCipher
	nc   *cipher.NameCodec
	fsys backingFS
}

// New builds a Store rooted at a real host directory. keys must come from
// cipher.DeriveKeys of the mount's master key; blockSize must be a positive
// multiple of AESBlock, defaulting to DefaultBlockSize when zero.
func New(root string, keys *cipher.Keys, blockSize int64) (*Store, error) {
	return newStore(root, osBackingFS{}, keys, blockSize)
}

// NewWithFS builds a Store rooted at root within an arbitrary
// absfs.FileSystem (e.g. absfs/memfs.NewFS() for a fully in-memory store).
func NewWithFS(root string, fsys absfs.FileSystem, keys *cipher.Keys, blockSize int64) (*Store, error) {
	return newStore(root, newAbsfsBackingFS(fsys), keys, blockSize)
}

func newStore(root string, fsys backingFS, keys *cipher.Keys, blockSize int64) (*Store, error) {
	bc, err := cipher.NewBodyCipher(keys.Body)
	if err != nil {
		return nil, err
	}
	nc, err := cipher.NewNameCodec(keys.Name)
	if err != nil {
		return nil, err
	}
	if blockSize == 0 {
		blockSize = DefaultBlockSize
	}
	if blockSize%AESBlock != 0 {
		return nil, hostfs.New(hostfs.KindInvalidArgument, "New", root, errors.New("block size must be a multiple of the AES block size"))
	}
	return &Store{Root: root, BlockSize: blockSize, bc: bc, nc: nc, fsys: fsys}, nil
}

// handle is the concrete type the Store hands back through hostfs.Handle.
type handle struct {
	mu   sync.Mutex
	f    backingFile
	h    *header
	path string
}

func (s *Store) realOSPath(virtual string) string {
	return filepath.Join(s.Root, filepath.FromSlash(realPath(s.nc, virtual)))
}

func (s *Store) Init() error {
	info, err := s.fsys.Stat(s.Root)
	if err != nil {
		return hostfs.New(hostfs.KindNotFound, "Init", s.Root, err)
	}
	if !info.IsDir() {
		return hostfs.New(hostfs.KindNotADirectory, "Init", s.Root, nil)
	}
	return nil
}

func (s *Store) Create(path string, mode uint32) (hostfs.Handle, error) {
	real := s.realOSPath(path)
	f, err := s.fsys.OpenFile(real, os.O_CREATE|os.O_TRUNC|os.O_RDWR, fs.FileMode(mode&0o777))
	if err != nil {
		return nil, mapOSError("Create", path, err)
	}
	h, err := newHeader()
	if err != nil {
		f.Close()
		return nil, hostfs.New(hostfs.KindIO, "Create", path, err)
	}
	if err := writeHeader(f, h); err != nil {
		f.Close()
		return nil, hostfs.New(hostfs.KindIO, "Create", path, err)
	}
	return &handle{f: f, h: h, path: path}, nil
}

func (s *Store) Open(path string, flags int) (hostfs.Handle, error) {
	real := s.realOSPath(path)
	f, err := s.fsys.OpenFile(real, flags, 0)
	if err != nil {
		return nil, mapOSError("Open", path, err)
	}
	hd, err := readHeader(f)
	if err != nil {
		f.Close()
		return nil, hostfs.New(hostfs.KindIO, "Open", path, err)
	}
	return &handle{f: f, h: hd, path: path}, nil
}

func (s *Store) Read(path string, hnd hostfs.Handle, buf []byte, off int64) (int, error) {
	hd, ok := hnd.(*handle)
	if !ok {
		return 0, hostfs.New(hostfs.KindBadFD, "Read", path, nil)
	}
	hd.mu.Lock()
	defer hd.mu.Unlock()

	if off < 0 {
		return 0, hostfs.New(hostfs.KindInvalidArgument, "Read", path, nil)
	}
	if off >= int64(hd.h.size) {
		return 0, nil
	}
	n, err := readBody(hd.f, s.bc, hd.h, buf, off, s.BlockSize)
	if err != nil {
		return n, hostfs.New(hostfs.KindIO, "Read", path, err)
	}
	return n, nil
}

func (s *Store) Write(path string, hnd hostfs.Handle, buf []byte, off int64) (int, error) {
	hd, ok := hnd.(*handle)
	if !ok {
		return 0, hostfs.New(hostfs.KindBadFD, "Write", path, nil)
	}
	hd.mu.Lock()
	defer hd.mu.Unlock()

	if off < 0 {
		return 0, hostfs.New(hostfs.KindInvalidArgument, "Write", path, nil)
	}
	// A write starting past the current end of file implicitly zero-fills
	// the intervening plaintext region (spec.md §4.2), including any whole
	// blocks the write itself never touches. Without this, those blocks
	// stay sparse on the backing store and later reads decrypt their
	// physical zeros into keystream garbage instead of plaintext zeros.
	if gap := off - int64(hd.h.size); gap > 0 {
		if _, err := writeBody(hd.f, s.bc, hd.h, make([]byte, gap), int64(hd.h.size), s.BlockSize); err != nil {
			return 0, hostfs.New(hostfs.KindIO, "Write", path, err)
		}
	}
	n, err := writeBody(hd.f, s.bc, hd.h, buf, off, s.BlockSize)
	if err != nil {
		return n, hostfs.New(hostfs.KindIO, "Write", path, err)
	}
	// Size field is committed last, after the body region has been written
	// (spec.md §5): writeBody has already issued its WriteAt calls above.
	// No sync is issued between the two steps.
	if err := writeSize(hd.f, hd.h.size); err != nil {
		return n, hostfs.New(hostfs.KindIO, "Write", path, err)
	}
	return n, nil
}

func (s *Store) Release(path string, hnd hostfs.Handle) error {
	hd, ok := hnd.(*handle)
	if !ok {
		return hostfs.New(hostfs.KindBadFD, "Release", path, nil)
	}
	hd.mu.Lock()
	defer hd.mu.Unlock()
	if err := hd.f.Close(); err != nil {
		return hostfs.New(hostfs.KindIO, "Release", path, err)
	}
	return nil
}

func (s *Store) truncateFile(f backingFile, hd *header, size int64) error {
	if size < 0 {
		return errors.New("negative size")
	}
	old := int64(hd.size)
	switch {
	case size < old:
		if err := f.Truncate(int64(META) + physicalBodyLen(size)); err != nil {
			return err
		}
		hd.size = uint64(size)
		return writeSize(f, hd.size)
	case size > old:
		zeros := make([]byte, size-old)
		if _, err := writeBody(f, s.bc, hd, zeros, old, DefaultBlockSize); err != nil {
			return err
		}
		return writeSize(f, hd.size)
	default:
		return nil
	}
}

func (s *Store) Truncate(path string, size int64) error {
	real := s.realOSPath(path)
	f, err := s.fsys.OpenFile(real, os.O_RDWR, 0)
	if err != nil {
		return mapOSError("Truncate", path, err)
	}
	defer f.Close()
	hd, err := readHeader(f)
	if err != nil {
		return hostfs.New(hostfs.KindIO, "Truncate", path, err)
	}
	if err := s.truncateFile(f, hd, size); err != nil {
		return hostfs.New(hostfs.KindIO, "Truncate", path, err)
	}
	return nil
}

func (s *Store) Ftruncate(path string, hnd hostfs.Handle, size int64) error {
	hd, ok := hnd.(*handle)
	if !ok {
		return hostfs.New(hostfs.KindBadFD, "Ftruncate", path, nil)
	}
	hd.mu.Lock()
	defer hd.mu.Unlock()
	if err := s.truncateFile(hd.f, hd.h, size); err != nil {
		return hostfs.New(hostfs.KindIO, "Ftruncate", path, err)
	}
	return nil
}

func (s *Store) Unlink(path string) error {
	if err := s.fsys.Remove(s.realOSPath(path)); err != nil {
		return mapOSError("Unlink", path, err)
	}
	return nil
}

func (s *Store) Mkdir(path string, mode uint32) error {
	if err := s.fsys.Mkdir(s.realOSPath(path), fs.FileMode(mode&0o777)); err != nil {
		return mapOSError("Mkdir", path, err)
	}
	return nil
}

func (s *Store) Rmdir(path string) error {
	real := s.realOSPath(path)
	entries, err := s.fsys.ReadDir(real)
	if err != nil {
		return mapOSError("Rmdir", path, err)
	}
	if len(entries) > 0 {
		return hostfs.New(hostfs.KindNotEmpty, "Rmdir", path, nil)
	}
	if err := s.fsys.Remove(real); err != nil {
		return mapOSError("Rmdir", path, err)
	}
	return nil
}

func (s *Store) Rename(oldpath, newpath string) error {
	if err := s.fsys.Rename(s.realOSPath(oldpath), s.realOSPath(newpath)); err != nil {
		return mapOSError("Rename", oldpath, err)
	}
	return nil
}

func (s *Store) Readdir(path string) ([]hostfs.DirEntry, error) {
	real := s.realOSPath(path)
	entries, err := s.fsys.ReadDir(real)
	if err != nil {
		return nil, mapOSError("Readdir", path, err)
	}
	out := make([]hostfs.DirEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, hostfs.DirEntry{
			Name:  virtualName(s.nc, e.name),
			IsDir: e.isDir,
		})
	}
	return out, nil
}

func (s *Store) Getattr(path string) (hostfs.Attr, error) {
	real := s.realOSPath(path)
	info, err := s.fsys.Stat(real)
	if err != nil {
		return hostfs.Attr{}, mapOSError("Getattr", path, err)
	}
	if info.IsDir() {
		return hostfs.Attr{Mode: uint32(info.Mode().Perm()), ModTime: info.ModTime(), IsDir: true}, nil
	}
	f, err := s.fsys.OpenFile(real, os.O_RDONLY, 0)
	if err != nil {
		return hostfs.Attr{}, mapOSError("Getattr", path, err)
	}
	defer f.Close()
	hd, err := readHeader(f)
	if err != nil {
		return hostfs.Attr{}, hostfs.New(hostfs.KindIO, "Getattr", path, err)
	}
	return hostfs.Attr{
		Size:    int64(hd.size),
		Mode:    uint32(info.Mode().Perm()),
		ModTime: info.ModTime(),
		IsDir:   false,
	}, nil
}

func (s *Store) Setattr(path string, req hostfs.SetAttrReq) error {
	real := s.realOSPath(path)
	if req.ValidMode && req.Mode != nil {
		if err := s.fsys.Chmod(real, fs.FileMode(*req.Mode&0o777)); err != nil {
			return mapOSError("Setattr", path, err)
		}
	}
	if req.ValidTime && req.ModTime != nil {
		if err := s.fsys.Chtimes(real, *req.ModTime, *req.ModTime); err != nil {
			return mapOSError("Setattr", path, err)
		}
	}
	if req.ValidSize && req.Size != nil {
		if err := s.Truncate(path, *req.Size); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Access(path string, mode uint32) error {
	if _, err := s.fsys.Stat(s.realOSPath(path)); err != nil {
		return mapOSError("Access", path, err)
	}
	return nil
}

func (s *Store) Statfs(path string) (hostfs.StatfsResult, error) {
	if _, ok := s.fsys.(osBackingFS); ok {
		return statfs(s.Root)
	}
	// An in-memory or otherwise non-OS backing filesystem has no real
	// statfs(2) to report; callers can still mount it, they just see a
	// zeroed result.
	return hostfs.StatfsResult{}, nil
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
		var pe *os.PathError
		if errors.As(err, &pe) {
			if pe.Err.Error() == "not a directory" {
				return hostfs.New(hostfs.KindNotADirectory, op, path, err)
			}
		}
		return hostfs.New(hostfs.KindIO, op, path, err)
	}
}
