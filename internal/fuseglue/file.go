package fuseglue

import (
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/hanwen/go-fuse/v2/fuse/nodefs"

	"github.com/vaultfs/vaultfs/internal/dispatch"
)

// file adapts one dispatcher descriptor to nodefs.File.
type file struct {
	nodefs.File
	d  *dispatch.Dispatcher
	fd uint64
}

func newFile(d *dispatch.Dispatcher, fd uint64) nodefs.File {
	return &file{File: nodefs.NewDefaultFile(), d: d, fd: fd}
}

func (f *file) Read(buf []byte, off int64) (fuse.ReadResult, fuse.Status) {
	n, err := f.d.Read(f.fd, buf, off)
	if err != nil {
		return nil, errnoOf(err)
	}
	return fuse.ReadResultData(buf[:n]), fuse.OK
}

func (f *file) Write(data []byte, off int64) (uint32, fuse.Status) {
	n, err := f.d.Write(f.fd, data, off)
	if err != nil {
		return 0, errnoOf(err)
	}
	return uint32(n), fuse.OK
}

func (f *file) Truncate(size uint64) fuse.Status {
	return errnoOf(f.d.Ftruncate(f.fd, int64(size)))
}

func (f *file) Flush() fuse.Status {
	return fuse.OK
}

func (f *file) Release() {
	f.d.Release(f.fd)
}

func (f *file) Fsync(flags int) fuse.Status {
	return fuse.OK
}
