// Package cborcanon provides the canonical CBOR encoding used for every
// record swarmkit persists: chunk store envelopes and bucket tracker
// snapshots. Encoding is deterministic (sorted keys, shortest integers) and
// decoding rejects duplicate keys and indefinite lengths, so a record has
// exactly one valid byte form.
package cborcanon

import (
	"bytes"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// CanonicalMode is the encoder for persisted records
var CanonicalMode cbor.EncMode

// StrictMode is the decoder for persisted records
var StrictMode cbor.DecMode

func init() {
	var err error
	CanonicalMode, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create canonical CBOR mode: %v", err))
	}

	StrictMode, err = cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create strict CBOR decode mode: %v", err))
	}
}

// Marshal encodes v into canonical CBOR
func Marshal(v any) ([]byte, error) {
	return CanonicalMode.Marshal(v)
}

// Unmarshal decodes CBOR data into v, rejecting duplicate keys and
// indefinite-length items
func Unmarshal(data []byte, v any) error {
	return StrictMode.Unmarshal(data, v)
}

// UnmarshalCanonical decodes data into v only if data is already in
// canonical form
func UnmarshalCanonical(data []byte, v any) error {
	if err := ValidateCanonical(data); err != nil {
		return err
	}
	return Unmarshal(data, v)
}

// CanonicalBytes re-encodes arbitrary CBOR in canonical form
func CanonicalBytes(data []byte) ([]byte, error) {
	var v any
	if err := Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("invalid CBOR: %w", err)
	}
	return Marshal(v)
}

// IsCanonical checks if the given CBOR bytes are in canonical form
func IsCanonical(data []byte) bool {
	canonical, err := CanonicalBytes(data)
	if err != nil {
		return false
	}
	return bytes.Equal(data, canonical)
}

// ValidateCanonical returns an error unless data is canonical CBOR
func ValidateCanonical(data []byte) error {
	if !IsCanonical(data) {
		return fmt.Errorf("data is not in canonical CBOR form")
	}
	return nil
}
