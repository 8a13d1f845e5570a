package handle

import (
	"testing"

	"github.com/vaultfs/vaultfs/internal/hostfs"
)

func TestAllocGetFree(t *testing.T) {
	tbl := New()
	fd1 := tbl.Alloc(&Entry{VirtualPath: "/a"})
	fd2 := tbl.Alloc(&Entry{VirtualPath: "/b"})

	if fd1 == fd2 {
		t.Fatal("descriptors must be distinct")
	}
	if fd1 <= 0 || fd2 <= 0 {
		t.Fatal("descriptors must be strictly positive")
	}

	e, err := tbl.Get(fd1)
	if err != nil {
		t.Fatalf("Get(fd1): %v", err)
	}
	if e.VirtualPath != "/a" {
		t.Fatalf("Get(fd1).VirtualPath = %q, want /a", e.VirtualPath)
	}

	if err := tbl.Free(fd1); err != nil {
		t.Fatalf("Free(fd1): %v", err)
	}
	if _, err := tbl.Get(fd1); hostfs.KindOf(err) != hostfs.KindBadFD {
		t.Fatalf("Get after Free: want bad-fd, got %v", err)
	}
	if err := tbl.Free(fd1); hostfs.KindOf(err) != hostfs.KindBadFD {
		t.Fatalf("double Free: want bad-fd, got %v", err)
	}
}

func TestDescriptorsNeverReused(t *testing.T) {
	tbl := New()
	fd1 := tbl.Alloc(&Entry{VirtualPath: "/a"})
	tbl.Free(fd1)
	fd2 := tbl.Alloc(&Entry{VirtualPath: "/b"})
	if fd1 == fd2 {
		t.Fatal("a freed descriptor must not be handed out again")
	}
}

func TestUnknownDescriptorIsBadFD(t *testing.T) {
	tbl := New()
	if _, err := tbl.Get(999); hostfs.KindOf(err) != hostfs.KindBadFD {
		t.Fatalf("Get(unknown): want bad-fd, got %v", err)
	}
}
