// Package handle implements the Handle Table: the dispatcher's mapping from
// strictly-positive, monotonically-allocated file descriptors to the
// backend state behind them (spec.md §4.3).
package handle

import (
	"sync"
	"time"

	"github.com/vaultfs/vaultfs/internal/hostfs"
)

// Entry is everything the dispatcher remembers about one open handle.
type Entry struct {
	Native      hostfs.Handle
	VirtualPath string
	RealPrefix  string
	Flags       int
	Stats       Stats
}

// Stats accumulates per-handle I/O statistics for the dispatcher's stats
// surface (spec.md §3, §4.4, property P9): last-read/last-write byte counts
// and durations, cumulative read/write bytes and time, and op counts.
type Stats struct {
	ReadOps     uint64
	WriteOps    uint64
	ReadBytes   uint64 // cumulative
	WriteBytes  uint64 // cumulative
	LastReadAt  int64  // unix nanos, 0 if never read
	LastWriteAt int64

	LastReadBytes  int64
	LastWriteBytes int64
	LastReadDur    time.Duration
	LastWriteDur   time.Duration
	ReadTimeTotal  time.Duration
	WriteTimeTotal time.Duration
}

// Table allocates and tracks live descriptors. Descriptors are never reused
// while live; a freed descriptor number is retired, not recycled, so a stale
// caller referencing it after Release always gets bad-fd rather than
// silently hitting someone else's file.
type Table struct {
	mu      sync.Mutex
	next    uint64
	entries map[uint64]*Entry
}

// New builds an empty handle table.
func New() *Table {
	return &Table{next: 1, entries: make(map[uint64]*Entry)}
}

// Alloc installs entry under a fresh descriptor and returns it.
func (t *Table) Alloc(entry *Entry) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	fd := t.next
	t.next++
	t.entries[fd] = entry
	return fd
}

// Get returns the entry for fd, or hostfs.KindBadFD if it is unknown or has
// already been freed.
func (t *Table) Get(fd uint64) (*Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[fd]
	if !ok {
		return nil, hostfs.New(hostfs.KindBadFD, "Get", "", nil)
	}
	return e, nil
}

// Free retires fd. It is an error to free an unknown or already-freed fd.
func (t *Table) Free(fd uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[fd]; !ok {
		return hostfs.New(hostfs.KindBadFD, "Free", "", nil)
	}
	delete(t.entries, fd)
	return nil
}

// Len reports the number of live handles, for diagnostics.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
