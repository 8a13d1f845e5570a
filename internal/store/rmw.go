package store

import (
	"io"

	"github.com/vaultfs/vaultfs/internal/cipher"
)

// readBody implements the random-access read half of the core
// read/modify/write loop (spec.md §4.2). It copies at most len(out) bytes
// of plaintext starting at logical offset off into out, returning the
// number of bytes copied. Callers are responsible for clipping off/len to
// [0, S) beforehand.
func readBody(f backingFile, bc *cipher.BodyCipher, h *header, out []byte, off int64, blockSize int64) (int, error) {
	total := 0
	size := int64(h.size)

	for total < len(out) {
		absOff := off + int64(total)
		if absOff >= size {
			break
		}

		blockNo := absOff / blockSize
		blockStart := blockNo * blockSize
		blockEnd := blockStart + blockSize

		readEnd := off + int64(len(out))
		if readEnd > blockEnd {
			readEnd = blockEnd
		}
		if readEnd > size {
			readEnd = size
		}

		cipherLen := ceilDiv(readEnd-blockStart, AESBlock) * AESBlock
		if avail := size - blockStart; cipherLen > avail {
			cipherLen = ceilDiv(avail, AESBlock) * AESBlock
		}
		if cipherLen <= 0 {
			break
		}

		cipherStart := int64(META) + blockStart
		ciphertext := make([]byte, cipherLen)
		n, err := f.ReadAt(ciphertext, cipherStart)
		if err != nil && err != io.EOF {
			return total, err
		}

		plaintext := make([]byte, cipherLen)
		if n > 0 {
			counter := uint64(blockStart / AESBlock)
			if err := bc.XORBlocks(plaintext[:n], ciphertext[:n], h.nonce, counter); err != nil {
				return total, err
			}
		}
		// plaintext[n:] is left zero: a short backing read's missing tail
		// is treated as zeros in the output (spec.md §4.2 step 3).

		copyStart := absOff - blockStart
		copyEnd := readEnd - blockStart
		n2 := copy(out[total:total+int(copyEnd-copyStart)], plaintext[copyStart:copyEnd])
		total += n2
		if copyEnd >= blockSize || readEnd >= size {
			// advance to next block on the next loop iteration
		}
	}

	return total, nil
}

// writeBody implements the random-access write half of the core
// read/modify/write loop. It writes buf at logical offset off, growing the
// header's size field as needed, and returns the number of bytes accepted.
// The caller must persist the updated header's size field *after* this call
// returns (spec.md §5 ordering guarantee: body before size).
func writeBody(f backingFile, bc *cipher.BodyCipher, h *header, buf []byte, off int64, blockSize int64) (int, error) {
	written := 0
	oldSize := int64(h.size)
	newSize := off + int64(len(buf))
	if newSize < oldSize {
		newSize = oldSize
	}

	for written < len(buf) {
		absOff := off + int64(written)
		blockNo := absOff / blockSize
		blockStart := blockNo * blockSize
		blockEnd := blockStart + blockSize

		writeEnd := off + int64(len(buf))
		if writeEnd > blockEnd {
			writeEnd = blockEnd
		}

		existingBlockEnd := blockEnd
		if existingBlockEnd > oldSize {
			existingBlockEnd = oldSize
		}
		if existingBlockEnd < blockStart {
			existingBlockEnd = blockStart
		}

		needed := writeEnd - blockStart
		if existingBlockEnd-blockStart > needed {
			needed = existingBlockEnd - blockStart
		}
		neededAligned := ceilDiv(needed, AESBlock) * AESBlock
		if neededAligned == 0 {
			neededAligned = AESBlock
		}

		avail := oldSize - blockStart
		readLen := neededAligned
		if avail < readLen {
			readLen = avail
		}
		if readLen < 0 {
			readLen = 0
		}

		counter := uint64(blockStart / AESBlock)
		plaintext := make([]byte, neededAligned)
		if readLen > 0 {
			cipherStart := int64(META) + blockStart
			ciphertext := make([]byte, readLen)
			n, err := f.ReadAt(ciphertext, cipherStart)
			if err != nil && err != io.EOF {
				return written, err
			}
			if n > 0 {
				if err := bc.XORBlocks(plaintext[:n], ciphertext[:n], h.nonce, counter); err != nil {
					return written, err
				}
			}
		}

		copyStart := absOff - blockStart
		copyEnd := writeEnd - blockStart
		n := copy(plaintext[copyStart:copyEnd], buf[written:written+int(copyEnd-copyStart)])
		written += n

		ciphertextOut := make([]byte, neededAligned)
		if err := bc.XORBlocks(ciphertextOut, plaintext, h.nonce, counter); err != nil {
			return written, err
		}
		cipherStart := int64(META) + blockStart
		if _, err := f.WriteAt(ciphertextOut, cipherStart); err != nil {
			return written, err
		}
	}

	h.size = uint64(newSize)
	return written, nil
}
