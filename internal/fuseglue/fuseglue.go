// Package fuseglue wires dispatch.Dispatcher into a real kernel mount using
// go-fuse/v2's path-based FUSE frontend — the same frontend shape the
// gocryptfs lineage in this corpus uses for its own FUSE glue. Every
// FileSystem method here is a thin translation from a FUSE call and
// *fuse.Context into a Dispatcher call and back; no filesystem semantics
// live in this package.
package fuseglue

import (
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/hanwen/go-fuse/v2/fuse/nodefs"
	"github.com/hanwen/go-fuse/v2/fuse/pathfs"

	"github.com/vaultfs/vaultfs/internal/dispatch"
	"github.com/vaultfs/vaultfs/internal/hostfs"
)

// FileSystem adapts a dispatch.Dispatcher to pathfs.FileSystem. Methods the
// spec's core never defines a semantics for (symlinks, xattrs, hard links,
// device nodes) fall through to DefaultFileSystem's ENOSYS stubs.
type FileSystem struct {
	pathfs.FileSystem
	d *dispatch.Dispatcher
}

// New builds the FUSE-facing filesystem over d.
func New(d *dispatch.Dispatcher) *FileSystem {
	return &FileSystem{FileSystem: pathfs.NewDefaultFileSystem(), d: d}
}

func vpath(name string) string {
	if name == "" {
		return "/"
	}
	return "/" + name
}

func errnoOf(err error) fuse.Status {
	if err == nil {
		return fuse.OK
	}
	switch hostfs.KindOf(err) {
	case hostfs.KindNotFound:
		return fuse.ENOENT
	case hostfs.KindNotADirectory:
		return fuse.Status(syscall.ENOTDIR)
	case hostfs.KindExists:
		return fuse.Status(syscall.EEXIST)
	case hostfs.KindNotEmpty:
		return fuse.Status(syscall.ENOTEMPTY)
	case hostfs.KindPermission:
		return fuse.EPERM
	case hostfs.KindBadFD:
		return fuse.Status(syscall.EBADF)
	case hostfs.KindInvalidArgument:
		return fuse.EINVAL
	case hostfs.KindNoBackend:
		return fuse.ENOENT
	case hostfs.KindInvalidName:
		return fuse.EINVAL
	case hostfs.KindCrossDevice:
		return fuse.Status(syscall.EXDEV)
	default:
		return fuse.EIO
	}
}

func toFuseAttr(a hostfs.Attr, out *fuse.Attr) {
	out.Size = uint64(a.Size)
	out.Mode = a.Mode
	if a.IsDir {
		out.Mode |= fuse.S_IFDIR
	} else {
		out.Mode |= fuse.S_IFREG
	}
	sec := uint64(a.ModTime.Unix())
	out.Mtime = sec
	out.Atime = sec
	out.Ctime = sec
}

func (fs *FileSystem) GetAttr(name string, context *fuse.Context) (*fuse.Attr, fuse.Status) {
	attr, err := fs.d.Getattr(vpath(name))
	if err != nil {
		return nil, errnoOf(err)
	}
	out := &fuse.Attr{}
	toFuseAttr(attr, out)
	return out, fuse.OK
}

func (fs *FileSystem) Chmod(name string, mode uint32, context *fuse.Context) fuse.Status {
	return errnoOf(fs.d.Setattr(vpath(name), hostfs.SetAttrReq{Mode: &mode, ValidMode: true}))
}

func (fs *FileSystem) Chown(name string, uid uint32, gid uint32, context *fuse.Context) fuse.Status {
	// Ownership is not part of the core's data model (spec.md §4); accept
	// silently so chown(1) against the mount does not fail outright.
	return fuse.OK
}

func (fs *FileSystem) Utimens(name string, atime *time.Time, mtime *time.Time, context *fuse.Context) fuse.Status {
	if mtime == nil {
		return fuse.OK
	}
	return errnoOf(fs.d.Setattr(vpath(name), hostfs.SetAttrReq{ModTime: mtime, ValidTime: true}))
}

func (fs *FileSystem) Truncate(name string, size uint64, context *fuse.Context) fuse.Status {
	return errnoOf(fs.d.Truncate(vpath(name), int64(size)))
}

func (fs *FileSystem) Access(name string, mode uint32, context *fuse.Context) fuse.Status {
	return errnoOf(fs.d.Access(vpath(name), mode))
}

func (fs *FileSystem) Mkdir(name string, mode uint32, context *fuse.Context) fuse.Status {
	return errnoOf(fs.d.Mkdir(vpath(name), mode))
}

func (fs *FileSystem) Rmdir(name string, context *fuse.Context) fuse.Status {
	return errnoOf(fs.d.Rmdir(vpath(name)))
}

func (fs *FileSystem) Unlink(name string, context *fuse.Context) fuse.Status {
	return errnoOf(fs.d.Unlink(vpath(name)))
}

func (fs *FileSystem) Rename(oldName string, newName string, context *fuse.Context) fuse.Status {
	return errnoOf(fs.d.Rename(vpath(oldName), vpath(newName)))
}

func (fs *FileSystem) OpenDir(name string, context *fuse.Context) ([]fuse.DirEntry, fuse.Status) {
	entries, err := fs.d.Readdir(vpath(name))
	if err != nil {
		return nil, errnoOf(err)
	}
	out := make([]fuse.DirEntry, 0, len(entries))
	for _, e := range entries {
		mode := uint32(fuse.S_IFREG)
		if e.IsDir {
			mode = fuse.S_IFDIR
		}
		out = append(out, fuse.DirEntry{Name: e.Name, Mode: mode})
	}
	return out, fuse.OK
}

func (fs *FileSystem) Open(name string, flags uint32, context *fuse.Context) (nodefs.File, fuse.Status) {
	fd, err := fs.d.Open(vpath(name), int(flags))
	if err != nil {
		return nil, errnoOf(err)
	}
	return newFile(fs.d, fd), fuse.OK
}

func (fs *FileSystem) Create(name string, flags uint32, mode uint32, context *fuse.Context) (nodefs.File, fuse.Status) {
	fd, err := fs.d.Create(vpath(name), mode)
	if err != nil {
		return nil, errnoOf(err)
	}
	return newFile(fs.d, fd), fuse.OK
}

func (fs *FileSystem) StatFs(name string) *fuse.StatfsOut {
	res, err := fs.d.Statfs(vpath(name))
	if err != nil {
		return nil
	}
	return &fuse.StatfsOut{
		Kstatfs: fuse.Kstatfs{
			Bsize:   res.BlockSize,
			Blocks:  res.Blocks,
			Bfree:   res.BlocksFree,
			Bavail:  res.BlocksFree,
			Files:   res.Files,
			Ffree:   res.FilesFree,
			Namelen: res.NameLen,
		},
	}
}
