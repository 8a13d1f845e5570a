package store

import (
	"encoding/binary"
	"fmt"

	"github.com/vaultfs/vaultfs/internal/cipher"
)

const (
	// META is the fixed on-disk header size: 8-byte size field + 16-byte nonce.
	META = 8 + cipher.NonceSize
	// AESBlock is the AES block size, re-exported here for readability in
	// the store package's arithmetic.
	AESBlock = cipher.AESBlock
	// DefaultBlockSize is the plaintext block size the read/modify/write
	// loop operates on, matching the CLI's fixed 64 KiB per spec.md §6.
	DefaultBlockSize = 64 * 1024
)

// header is the in-memory view of the on-disk META region of an encrypted
// file: plaintext size S and the per-file CTR nonce N (spec.md §3).
type header struct {
	size  uint64
	nonce []byte
}

// readHeader reads the META region of f. A file shorter than META,
// including an empty backing file that never went through Create, is
// reported as an error; readHeader never creates a header itself.
func readHeader(f backingFile) (*header, error) {
	buf := make([]byte, META)
	n, err := f.ReadAt(buf, 0)
	if err != nil && n < META {
		return nil, fmt.Errorf("store: read header: %w", err)
	}
	h := &header{
		size:  binary.BigEndian.Uint64(buf[:8]),
		nonce: append([]byte(nil), buf[8:META]...),
	}
	return h, nil
}

// writeHeader writes the full META region at the start of f.
func writeHeader(f backingFile, h *header) error {
	buf := make([]byte, META)
	binary.BigEndian.PutUint64(buf[:8], h.size)
	copy(buf[8:META], h.nonce)
	if _, err := f.WriteAt(buf, 0); err != nil {
		return fmt.Errorf("store: write header: %w", err)
	}
	return nil
}

// writeSize rewrites only the 8-byte size field, the last step of a write
// per the ordering guarantee in spec.md §5 ("the body is rewritten before
// the size field").
func writeSize(f backingFile, size uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, size)
	if _, err := f.WriteAt(buf, 0); err != nil {
		return fmt.Errorf("store: write size: %w", err)
	}
	return nil
}

// newHeader builds a fresh header with a random nonce and S=0.
func newHeader() (*header, error) {
	nonce, err := cipher.NewNonce()
	if err != nil {
		return nil, err
	}
	return &header{size: 0, nonce: nonce}, nil
}

// physicalBodyLen returns the expected body length on disk for a logical
// size S: ceil(S / AESBlock) * AESBlock.
func physicalBodyLen(size int64) int64 {
	if size <= 0 {
		return 0
	}
	rem := size % AESBlock
	if rem == 0 {
		return size
	}
	return size + (AESBlock - rem)
}

func ceilDiv(a, b int64) int64 {
	return (a + b - 1) / b
}
