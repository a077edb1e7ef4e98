// Package swarm implements the fixed-size value types every other package
// addresses content with: hashes, references, addresses and chunks.
package swarm

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/WebFirstLanguage/swarmkit/pkg/constants"
)

// Hash is a Keccak-256 digest. The zero value is the all-zero sentinel.
type Hash [constants.HashSize]byte

// ZeroHash is the invalid/sentinel hash
var ZeroHash Hash

// NewHash copies b into a Hash
func NewHash(b []byte) (Hash, error) {
	var h Hash
	if len(b) != constants.HashSize {
		return h, NewValidationError(
			fmt.Sprintf("invalid hash size: got %d, want %d", len(b), constants.HashSize), nil)
	}
	copy(h[:], b)
	return h, nil
}

// ParseHexHash parses a 64-character hex string, with or without a 0x prefix
func ParseHexHash(s string) (Hash, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return ZeroHash, NewValidationError("invalid hex hash", err)
	}
	return NewHash(b)
}

// MustParseHexHash is ParseHexHash for constants and tests
func MustParseHexHash(s string) Hash {
	h, err := ParseHexHash(s)
	if err != nil {
		panic(err)
	}
	return h
}

// String returns the lowercase hex encoding
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Bytes returns a copy of the digest
func (h Hash) Bytes() []byte {
	out := make([]byte, constants.HashSize)
	copy(out, h[:])
	return out
}

// IsZero reports whether h is the sentinel value
func (h Hash) IsZero() bool {
	return h == ZeroHash
}

// Compare orders hashes lexicographically
func (h Hash) Compare(other Hash) int {
	return bytes.Compare(h[:], other[:])
}

// MarshalText implements encoding.TextMarshaler
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseHexHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

// Proximity returns the number of leading bits a and b share, capped at MaxPO
func Proximity(a, b Hash) uint8 {
	for i := 0; i < len(a); i++ {
		x := a[i] ^ b[i]
		if x == 0 {
			continue
		}
		po := uint8(i * 8)
		for mask := byte(0x80); mask != 0 && x&mask == 0; mask >>= 1 {
			po++
		}
		if po > constants.MaxPO {
			return constants.MaxPO
		}
		return po
	}
	return constants.MaxPO
}
