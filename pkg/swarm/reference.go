package swarm

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/WebFirstLanguage/swarmkit/pkg/constants"
)

// Reference points at uploaded content. A plain reference is a bare Hash;
// an encrypted reference appends the 32-byte decryption key. The length
// alone tells the two apart.
type Reference struct {
	hash Hash
	key  []byte
}

// NewReference builds a Reference from 32 or 64 bytes
func NewReference(b []byte) (Reference, error) {
	switch len(b) {
	case constants.HashSize:
		h, _ := NewHash(b)
		return Reference{hash: h}, nil
	case constants.EncryptedReferenceSize:
		h, _ := NewHash(b[:constants.HashSize])
		key := make([]byte, constants.HashSize)
		copy(key, b[constants.HashSize:])
		return Reference{hash: h, key: key}, nil
	default:
		return Reference{}, NewValidationError(
			fmt.Sprintf("invalid reference size: got %d, want %d or %d",
				len(b), constants.HashSize, constants.EncryptedReferenceSize), nil)
	}
}

// NewPlainReference wraps a hash
func NewPlainReference(h Hash) Reference {
	return Reference{hash: h}
}

// ParseHexReference parses the hex form of a plain or encrypted reference
func ParseHexReference(s string) (Reference, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return Reference{}, NewValidationError("invalid hex reference", err)
	}
	return NewReference(b)
}

// IsEncrypted reports whether the reference carries a decryption key
func (r Reference) IsEncrypted() bool {
	return r.key != nil
}

// Hash returns the chunk hash part
func (r Reference) Hash() Hash {
	return r.hash
}

// EncryptionKey returns a copy of the key, or nil for plain references
func (r Reference) EncryptionKey() []byte {
	if r.key == nil {
		return nil
	}
	out := make([]byte, len(r.key))
	copy(out, r.key)
	return out
}

// Bytes returns the 32 or 64 byte wire form
func (r Reference) Bytes() []byte {
	out := r.hash.Bytes()
	return append(out, r.key...)
}

// String returns the hex wire form
func (r Reference) String() string {
	return hex.EncodeToString(r.Bytes())
}

// Equal compares hash and key
func (r Reference) Equal(other Reference) bool {
	if r.hash != other.hash || len(r.key) != len(other.key) {
		return false
	}
	for i := range r.key {
		if r.key[i] != other.key[i] {
			return false
		}
	}
	return true
}

// MarshalText implements encoding.TextMarshaler
func (r Reference) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (r *Reference) UnmarshalText(text []byte) error {
	parsed, err := ParseHexReference(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
