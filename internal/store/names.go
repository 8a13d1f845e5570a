package store

import (
	"path"
	"strings"

	"github.com/vaultfs/vaultfs/internal/cipher"
)

// realPath translates a virtual path (slash-separated, relative to the
// backend's mount prefix) into the backing on-disk path by encrypting each
// path component independently, so that only name-equality leaks across the
// tree (spec.md §4.1, §9).
func realPath(nc *cipher.NameCodec, virtual string) string {
	clean := path.Clean("/" + virtual)
	if clean == "/" {
		return "/"
	}
	parts := strings.Split(strings.TrimPrefix(clean, "/"), "/")
	for i, p := range parts {
		parts[i] = nc.EncodeComponent(p)
	}
	return "/" + strings.Join(parts, "/")
}

// virtualName decrypts a single backing directory entry name, for use when
// building Readdir results. A decode failure yields the "???" sentinel
// rather than an error, since one corrupt entry must not fail the whole
// listing.
func virtualName(nc *cipher.NameCodec, real string) string {
	v, err := nc.DecodeComponent(real)
	if err != nil {
		return "???"
	}
	return v
}
