// Package keymaterial handles the CLI-facing encoding of the mount master
// key: a hex-encoded symmetric secret (spec.md §6).
package keymaterial

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
)

// KeySize is the master key length in bytes cipher.DeriveKeys requires.
const KeySize = 32

var hexPattern = regexp.MustCompile(`^[0-9a-fA-F]+$`)

// ValidHexFormat reports whether s matches the CLI's cheap pre-check: hex
// digits only, even length. This is checked before attempting to decode, so
// the CLI can give the same exit-1 diagnostic the spec requires regardless
// of key size.
func ValidHexFormat(s string) bool {
	return len(s) > 0 && len(s)%2 == 0 && hexPattern.MatchString(s)
}

// ParseHexKey decodes a hex-encoded master key. It requires the decoded
// length to be exactly KeySize bytes, since the body and name subkeys are
// both derived from it via HKDF-SHA256 keyed on a 256-bit secret.
func ParseHexKey(s string) ([]byte, error) {
	if !ValidHexFormat(s) {
		return nil, fmt.Errorf("keymaterial: key must be a non-empty, even-length hex string")
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("keymaterial: invalid hex key: %w", err)
	}
	if len(raw) != KeySize {
		return nil, fmt.Errorf("keymaterial: key must decode to %d bytes, got %d", KeySize, len(raw))
	}
	return raw, nil
}

// GenerateHex returns a lowercase hex string of length random bytes, for
// the CLI's keygen subcommand.
func GenerateHex(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("keymaterial: length must be positive, got %d", length)
	}
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("keymaterial: generate key: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
