// Package dispatch implements the VFS Dispatcher: the single point every
// host-facing adapter (FUSE glue, CLI) calls into, which resolves virtual
// paths to a registered backend, tracks open handles, and serializes all
// backend calls through one cooperative task loop (spec.md §4.4, §5).
package dispatch

import (
	"time"

	"github.com/google/uuid"
	"github.com/pion/logging"

	"github.com/vaultfs/vaultfs/internal/handle"
	"github.com/vaultfs/vaultfs/internal/hostfs"
)

// Dispatcher routes host filesystem calls across a Registry of backends.
type Dispatcher struct {
	registry *Registry
	handles  *handle.Table
	jobs     chan job
	stopped  chan struct{}

	sessionID string
	log       logging.LeveledLogger
}

// New builds a Dispatcher over registry, logging under loggerFactory with
// a fresh per-mount session id correlating every log line this dispatcher
// emits for the lifetime of the mount.
func New(registry *Registry, loggerFactory logging.LoggerFactory) *Dispatcher {
	d := &Dispatcher{
		registry:  registry,
		handles:   handle.New(),
		jobs:      make(chan job, 64),
		stopped:   make(chan struct{}),
		sessionID: uuid.NewString(),
	}
	if loggerFactory != nil {
		d.log = loggerFactory.NewLogger("dispatch")
	}
	go func() {
		d.loop()
		close(d.stopped)
	}()
	return d
}

func (d *Dispatcher) logf(format string, args ...interface{}) {
	if d.log == nil {
		return
	}
	d.log.Debugf("[%s] "+format, append([]interface{}{d.sessionID}, args...)...)
}

func (d *Dispatcher) resolve(op, virtual string) (hostfs.Backend, string, error) {
	b, rel, err := d.registry.Resolve(virtual)
	if err != nil {
		d.logf("%s %s: no backend", op, virtual)
		return nil, "", err
	}
	return b, rel, nil
}

func (d *Dispatcher) resolveWithPrefix(op, virtual string) (hostfs.Backend, string, string, error) {
	b, rel, prefix, err := d.registry.ResolveWithPrefix(virtual)
	if err != nil {
		d.logf("%s %s: no backend", op, virtual)
		return nil, "", "", err
	}
	return b, rel, prefix, nil
}

// Open resolves virtual, opens it against the owning backend, and installs
// a new handle table entry, returning its descriptor.
func (d *Dispatcher) Open(virtual string, flags int) (fd uint64, rerr error) {
	d.run(func() {
		b, rel, err := d.resolve("Open", virtual)
		if err != nil {
			rerr = err
			return
		}
		native, err := b.Open(rel, flags)
		if err != nil {
			rerr = err
			return
		}
		fd = d.handles.Alloc(&handle.Entry{Native: native, VirtualPath: virtual, Flags: flags})
	})
	return fd, rerr
}

// Create resolves virtual, creates it against the owning backend, and
// installs a new handle table entry, returning its descriptor.
func (d *Dispatcher) Create(virtual string, mode uint32) (fd uint64, rerr error) {
	d.run(func() {
		b, rel, err := d.resolve("Create", virtual)
		if err != nil {
			rerr = err
			return
		}
		native, err := b.Create(rel, mode)
		if err != nil {
			rerr = err
			return
		}
		fd = d.handles.Alloc(&handle.Entry{Native: native, VirtualPath: virtual, Flags: 0})
	})
	return fd, rerr
}

// Read reads through an already-open descriptor, updating its statistics.
func (d *Dispatcher) Read(fd uint64, buf []byte, off int64) (n int, rerr error) {
	d.run(func() {
		e, err := d.handles.Get(fd)
		if err != nil {
			rerr = err
			return
		}
		b, rel, err := d.resolve("Read", e.VirtualPath)
		if err != nil {
			rerr = err
			return
		}
		start := time.Now()
		n, rerr = b.Read(rel, e.Native, buf, off)
		if rerr == nil {
			recordRead(&e.Stats, n, start, time.Now())
		}
	})
	return n, rerr
}

// Write writes through an already-open descriptor, updating its statistics.
func (d *Dispatcher) Write(fd uint64, buf []byte, off int64) (n int, rerr error) {
	d.run(func() {
		e, err := d.handles.Get(fd)
		if err != nil {
			rerr = err
			return
		}
		b, rel, err := d.resolve("Write", e.VirtualPath)
		if err != nil {
			rerr = err
			return
		}
		start := time.Now()
		n, rerr = b.Write(rel, e.Native, buf, off)
		if rerr == nil {
			recordWrite(&e.Stats, n, start, time.Now())
		}
	})
	return n, rerr
}

// Release closes fd and retires its handle table entry.
func (d *Dispatcher) Release(fd uint64) (rerr error) {
	d.run(func() {
		e, err := d.handles.Get(fd)
		if err != nil {
			rerr = err
			return
		}
		b, rel, err := d.resolve("Release", e.VirtualPath)
		if err != nil {
			rerr = err
			return
		}
		if err := b.Release(rel, e.Native); err != nil {
			rerr = err
			return
		}
		rerr = d.handles.Free(fd)
	})
	return rerr
}

// Stats returns a snapshot of fd's accumulated I/O statistics (property P9).
func (d *Dispatcher) Stats(fd uint64) (stats HandleStats, rerr error) {
	d.run(func() {
		e, err := d.handles.Get(fd)
		if err != nil {
			rerr = err
			return
		}
		stats = e.Stats
	})
	return stats, rerr
}

// Truncate resolves and truncates virtual without an open handle.
func (d *Dispatcher) Truncate(virtual string, size int64) (rerr error) {
	d.run(func() {
		b, rel, err := d.resolve("Truncate", virtual)
		if err != nil {
			rerr = err
			return
		}
		rerr = b.Truncate(rel, size)
	})
	return rerr
}

// Ftruncate truncates through an already-open descriptor.
func (d *Dispatcher) Ftruncate(fd uint64, size int64) (rerr error) {
	d.run(func() {
		e, err := d.handles.Get(fd)
		if err != nil {
			rerr = err
			return
		}
		b, rel, err := d.resolve("Ftruncate", e.VirtualPath)
		if err != nil {
			rerr = err
			return
		}
		rerr = b.Ftruncate(rel, e.Native, size)
	})
	return rerr
}

// Unlink removes a file.
func (d *Dispatcher) Unlink(virtual string) (rerr error) {
	d.run(func() {
		b, rel, err := d.resolve("Unlink", virtual)
		if err != nil {
			rerr = err
			return
		}
		rerr = b.Unlink(rel)
	})
	return rerr
}

// Mkdir creates a directory.
func (d *Dispatcher) Mkdir(virtual string, mode uint32) (rerr error) {
	d.run(func() {
		b, rel, err := d.resolve("Mkdir", virtual)
		if err != nil {
			rerr = err
			return
		}
		rerr = b.Mkdir(rel, mode)
	})
	return rerr
}

// Rmdir removes an empty directory.
func (d *Dispatcher) Rmdir(virtual string) (rerr error) {
	d.run(func() {
		b, rel, err := d.resolve("Rmdir", virtual)
		if err != nil {
			rerr = err
			return
		}
		rerr = b.Rmdir(rel)
	})
	return rerr
}

// Rename moves oldVirtual to newVirtual. The dispatcher never copies bytes
// between backends on a caller's behalf.
// Rename always calls the source path's own backend. When the destination
// falls under a different mount, the destination path is rebased onto the
// source mount's prefix and handed to the same backend call anyway, rather
// than rejected by the dispatcher: the backend is what's positioned to know
// whether it can satisfy a same-backend-different-subtree rename or must
// fail it itself (typically cross-device) (spec.md §4.4, §9).
func (d *Dispatcher) Rename(oldVirtual, newVirtual string) (rerr error) {
	d.run(func() {
		oldBackend, oldRel, oldPrefix, err := d.resolveWithPrefix("Rename", oldVirtual)
		if err != nil {
			rerr = err
			return
		}
		_, newRel, newPrefix, err := d.resolveWithPrefix("Rename", newVirtual)
		if err != nil {
			rerr = err
			return
		}
		if oldPrefix != newPrefix {
			newRel = RebaseOnPrefix(oldPrefix, newVirtual)
		}
		rerr = oldBackend.Rename(oldRel, newRel)
	})
	return rerr
}

// Readdir lists a directory's entries.
func (d *Dispatcher) Readdir(virtual string) (entries []hostfs.DirEntry, rerr error) {
	d.run(func() {
		b, rel, err := d.resolve("Readdir", virtual)
		if err != nil {
			rerr = err
			return
		}
		entries, rerr = b.Readdir(rel)
	})
	return entries, rerr
}

// Getattr returns metadata for a path.
func (d *Dispatcher) Getattr(virtual string) (attr hostfs.Attr, rerr error) {
	d.run(func() {
		b, rel, err := d.resolve("Getattr", virtual)
		if err != nil {
			rerr = err
			return
		}
		attr, rerr = b.Getattr(rel)
	})
	return attr, rerr
}

// Setattr changes metadata for a path.
func (d *Dispatcher) Setattr(virtual string, req hostfs.SetAttrReq) (rerr error) {
	d.run(func() {
		b, rel, err := d.resolve("Setattr", virtual)
		if err != nil {
			rerr = err
			return
		}
		rerr = b.Setattr(rel, req)
	})
	return rerr
}

// Access checks a path's accessibility.
func (d *Dispatcher) Access(virtual string, mode uint32) (rerr error) {
	d.run(func() {
		b, rel, err := d.resolve("Access", virtual)
		if err != nil {
			rerr = err
			return
		}
		rerr = b.Access(rel, mode)
	})
	return rerr
}

// Statfs reports backing filesystem statistics for the backend owning
// virtual.
func (d *Dispatcher) Statfs(virtual string) (res hostfs.StatfsResult, rerr error) {
	d.run(func() {
		b, rel, err := d.resolve("Statfs", virtual)
		if err != nil {
			rerr = err
			return
		}
		res, rerr = b.Statfs(rel)
	})
	return res, rerr
}
