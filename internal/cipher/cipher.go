// Package cipher implements the block cipher gadget: an AES-256-CTR stream
// over a per-file, per-block-counter IV for file bodies, and a fixed-nonce
// AES-256-GCM codec for path component names.
package cipher

import (
	"crypto/aes"
	gocipher "crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"golang.org/x/crypto/hkdf"
)

const (
	// AESBlock is the AES block size in bytes.
	AESBlock = 16
	// NonceSize is the per-file CTR nonce base stored in the file header.
	NonceSize = 16
	// gcmNonceSize is the AEAD nonce size used for deterministic name encryption.
	gcmNonceSize = 12
)

// Keys holds the two subkeys derived from the single user-supplied master
// key. Splitting via HKDF keeps the CTR body stream and the GCM name codec
// from ever sharing key material, even though both ultimately trace back to
// the same 256-bit secret the user supplies at mount time.
type Keys struct {
	Body []byte // 32 bytes, AES-256-CTR
	Name []byte // 32 bytes, AES-256-GCM
}

// DeriveKeys splits master (32 bytes) into independent body/name subkeys.
func DeriveKeys(master []byte) (*Keys, error) {
	if len(master) != 32 {
		return nil, fmt.Errorf("cipher: master key must be 32 bytes, got %d", len(master))
	}

	body, err := hkdfKey(master, "vaultfs/body/v1")
	if err != nil {
		return nil, fmt.Errorf("cipher: derive body key: %w", err)
	}
	name, err := hkdfKey(master, "vaultfs/name/v1")
	if err != nil {
		return nil, fmt.Errorf("cipher: derive name key: %w", err)
	}
	return &Keys{Body: body, Name: name}, nil
}

func hkdfKey(master []byte, info string) ([]byte, error) {
	r := hkdf.New(sha256.New, master, nil, []byte(info))
	key := make([]byte, 32)
	if _, err := r.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}

// BodyCipher implements the CTR stream cipher over file bodies.
type BodyCipher struct {
	block gocipher.Block
}

// NewBodyCipher builds the AES-256 block cipher used to derive per-counter
// keystreams for random-access body read/modify/write.
func NewBodyCipher(key []byte) (*BodyCipher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher: new body cipher: %w", err)
	}
	return &BodyCipher{block: block}, nil
}

// IVForCounter derives the 16-byte CTR IV for AES-block counter c given the
// file's 16-byte nonce. The high 8 bytes of the nonce are a fixed prefix;
// the low 8 bytes are added to c, wrapping modulo 2^64 (spec.md §4.1).
func IVForCounter(nonce []byte, counter uint64) ([]byte, error) {
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("cipher: nonce must be %d bytes, got %d", NonceSize, len(nonce))
	}
	iv := make([]byte, NonceSize)
	copy(iv[:8], nonce[:8])
	low := binary.BigEndian.Uint64(nonce[8:16])
	binary.BigEndian.PutUint64(iv[8:16], low+counter)
	return iv, nil
}

// Stream returns a keystream positioned at AES-block counter (the IV already
// encodes it); XOR-ing this stream in place deciphers or enciphers a region
// that starts exactly at that block boundary.
func (c *BodyCipher) Stream(nonce []byte, counter uint64) (gocipher.Stream, error) {
	iv, err := IVForCounter(nonce, counter)
	if err != nil {
		return nil, err
	}
	return gocipher.NewCTR(c.block, iv), nil
}

// XORBlocks deciphers (or enciphers; CTR is symmetric) a region that begins
// at AES-block counter, in place.
func (c *BodyCipher) XORBlocks(dst, src []byte, nonce []byte, counter uint64) error {
	stream, err := c.Stream(nonce, counter)
	if err != nil {
		return err
	}
	stream.XORKeyStream(dst, src)
	return nil
}

// NewNonce generates a fresh random 16-byte per-file nonce.
func NewNonce() ([]byte, error) {
	n := make([]byte, NonceSize)
	if _, err := rand.Read(n); err != nil {
		return nil, fmt.Errorf("cipher: generate nonce: %w", err)
	}
	return n, nil
}

// NameCodec encrypts and decrypts individual path components with
// AES-256-GCM under a fixed all-zero nonce, so lookups by name remain
// possible without a directory index (spec.md §4.1, §9).
type NameCodec struct {
	aead gocipher.AEAD
}

// NewNameCodec builds the deterministic name codec.
func NewNameCodec(key []byte) (*NameCodec, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cipher: new name cipher: %w", err)
	}
	aead, err := gocipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher: new GCM: %w", err)
	}
	return &NameCodec{aead: aead}, nil
}

var zeroNonce = make([]byte, gcmNonceSize)

// EncodeComponent enciphers a single path component and returns its
// URL-safe, unpadded base64 token. The token's on-disk/wire layout is
// tag (16 bytes) || ciphertext (spec.md §4.1, §6), not Go's native
// ciphertext||tag Seal output, so the format is bit-exact across
// implementations.
func (n *NameCodec) EncodeComponent(plain string) string {
	if plain == "" || plain == "." || plain == ".." {
		return plain
	}
	sealed := n.aead.Seal(nil, zeroNonce, []byte(plain), nil)
	tagStart := len(sealed) - n.aead.Overhead()
	reordered := make([]byte, len(sealed))
	// tag first, then ciphertext
	copy(reordered, sealed[tagStart:])
	copy(reordered[n.aead.Overhead():], sealed[:tagStart])
	return base64.RawURLEncoding.EncodeToString(reordered)
}

// ErrInvalidName is returned by DecodeComponent when the token is malformed
// or fails authentication.
var ErrInvalidName = fmt.Errorf("cipher: invalid name token")

// DecodeComponent reverses EncodeComponent, verifying the AEAD tag.
func (n *NameCodec) DecodeComponent(token string) (string, error) {
	if token == "" || token == "." || token == ".." {
		return token, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", ErrInvalidName
	}
	overhead := n.aead.Overhead()
	if len(raw) < overhead {
		return "", ErrInvalidName
	}
	tag, ciphertext := raw[:overhead], raw[overhead:]
	sealed := make([]byte, len(raw))
	copy(sealed, ciphertext)
	copy(sealed[len(ciphertext):], tag)
	plain, err := n.aead.Open(nil, zeroNonce, sealed, nil)
	if err != nil {
		return "", ErrInvalidName
	}
	return string(plain), nil
}
