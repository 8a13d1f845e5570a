package fuseglue

import (
	"bytes"
	"crypto/rand"
	"os"
	"testing"

	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/vaultfs/vaultfs/internal/cipher"
	"github.com/vaultfs/vaultfs/internal/dispatch"
	"github.com/vaultfs/vaultfs/internal/store"
)

func newTestFS(t *testing.T) *FileSystem {
	t.Helper()
	master := make([]byte, 32)
	if _, err := rand.Read(master); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	keys, err := cipher.DeriveKeys(master)
	if err != nil {
		t.Fatalf("DeriveKeys: %v", err)
	}
	s, err := store.New(t.TempDir(), keys, store.DefaultBlockSize)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	reg := dispatch.NewRegistry()
	if err := reg.Register("/", s); err != nil {
		t.Fatalf("Register: %v", err)
	}
	d := dispatch.New(reg, nil)
	t.Cleanup(d.Close)
	return New(d)
}

func TestCreateWriteReadViaFuseGlue(t *testing.T) {
	fs := newTestFS(t)

	nf, status := fs.Create("greeting.txt", fuse.O_ANYWRITE, 0o644, nil)
	if !status.Ok() {
		t.Fatalf("Create: %v", status)
	}
	data := []byte("hello from the kernel side")
	n, status := nf.Write(data, 0)
	if !status.Ok() {
		t.Fatalf("Write: %v", status)
	}
	if int(n) != len(data) {
		t.Fatalf("Write n = %d, want %d", n, len(data))
	}
	nf.Release()

	attr, status := fs.GetAttr("greeting.txt", nil)
	if !status.Ok() {
		t.Fatalf("GetAttr: %v", status)
	}
	if attr.Size != uint64(len(data)) {
		t.Fatalf("GetAttr.Size = %d, want %d", attr.Size, len(data))
	}

	rf, status := fs.Open("greeting.txt", uint32(os.O_RDONLY), nil)
	if !status.Ok() {
		t.Fatalf("Open: %v", status)
	}
	defer rf.Release()
	buf := make([]byte, len(data))
	res, status := rf.Read(buf, 0)
	if !status.Ok() {
		t.Fatalf("Read: %v", status)
	}
	got, status := res.Bytes(buf)
	if !status.Ok() {
		t.Fatalf("Bytes: %v", status)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("round trip mismatch: got %q want %q", got, data)
	}
}

func TestMkdirOpenDirRmdir(t *testing.T) {
	fs := newTestFS(t)

	if status := fs.Mkdir("sub", 0o755, nil); !status.Ok() {
		t.Fatalf("Mkdir: %v", status)
	}
	entries, status := fs.OpenDir("", nil)
	if !status.Ok() {
		t.Fatalf("OpenDir: %v", status)
	}
	if len(entries) != 1 || entries[0].Name != "sub" {
		t.Fatalf("OpenDir = %+v, want [sub]", entries)
	}
	if status := fs.Rmdir("sub", nil); !status.Ok() {
		t.Fatalf("Rmdir: %v", status)
	}
}

func TestGetAttrMissingIsENOENT(t *testing.T) {
	fs := newTestFS(t)
	_, status := fs.GetAttr("nope.txt", nil)
	if status != fuse.ENOENT {
		t.Fatalf("GetAttr on missing file: want ENOENT, got %v", status)
	}
}
