package swarm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
)

const testHashHex = "0aa0f7a7a4b5e0cca1e2f1d4b1f2a3c4d5e6f708192a3b4c5d6e7f8091a2b3c4"

func TestNewHash(t *testing.T) {
	valid := make([]byte, 32)
	for i := range valid {
		valid[i] = byte(i)
	}

	h, err := NewHash(valid)
	if err != nil {
		t.Fatalf("NewHash failed: %v", err)
	}
	if h[31] != 31 {
		t.Errorf("Hash content mismatch: got %x", h)
	}

	valid[0] = 0xff
	if h[0] != 0 {
		t.Error("Hash shares memory with its input")
	}

	for _, size := range []int{0, 16, 31, 33, 64} {
		t.Run(fmt.Sprintf("size_%d", size), func(t *testing.T) {
			_, err := NewHash(make([]byte, size))
			if !IsValidationError(err) {
				t.Errorf("Expected validation error for size %d, got %v", size, err)
			}
		})
	}
}

func TestParseHexHash(t *testing.T) {
	h, err := ParseHexHash(testHashHex)
	if err != nil {
		t.Fatalf("ParseHexHash failed: %v", err)
	}
	if h.String() != testHashHex {
		t.Errorf("String mismatch: got %s, want %s", h.String(), testHashHex)
	}

	prefixed, err := ParseHexHash("0x" + testHashHex)
	if err != nil {
		t.Fatalf("ParseHexHash with prefix failed: %v", err)
	}
	if prefixed != h {
		t.Error("0x prefix changed the parsed hash")
	}

	testCases := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"odd length", testHashHex[1:]},
		{"not hex", strings.Repeat("zz", 32)},
		{"too short", testHashHex[:62]},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := ParseHexHash(tc.input); !IsValidationError(err) {
				t.Errorf("Expected validation error, got %v", err)
			}
		})
	}
}

func TestHashZeroAndJSON(t *testing.T) {
	if !ZeroHash.IsZero() {
		t.Error("ZeroHash should be zero")
	}

	h := MustParseHexHash(testHashHex)
	if h.IsZero() {
		t.Error("Non-zero hash reported as zero")
	}

	data, err := json.Marshal(h)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != `"`+testHashHex+`"` {
		t.Errorf("Unexpected JSON: %s", data)
	}

	var decoded Hash
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded != h {
		t.Error("JSON round trip changed the hash")
	}
}

func TestReference(t *testing.T) {
	plain, err := ParseHexReference(testHashHex)
	if err != nil {
		t.Fatalf("Plain reference failed: %v", err)
	}
	if plain.IsEncrypted() {
		t.Error("32-byte reference reported as encrypted")
	}
	if plain.EncryptionKey() != nil {
		t.Error("Plain reference returned a key")
	}

	encHex := testHashHex + strings.Repeat("ab", 32)
	enc, err := ParseHexReference(encHex)
	if err != nil {
		t.Fatalf("Encrypted reference failed: %v", err)
	}
	if !enc.IsEncrypted() {
		t.Error("64-byte reference not reported as encrypted")
	}
	if enc.Hash() != plain.Hash() {
		t.Error("Encrypted reference hash part mismatch")
	}
	if enc.String() != encHex {
		t.Errorf("String mismatch: got %s", enc.String())
	}
	if enc.Equal(plain) {
		t.Error("Encrypted and plain references compare equal")
	}

	if _, err := NewReference(make([]byte, 48)); !IsValidationError(err) {
		t.Errorf("Expected validation error for 48 bytes, got %v", err)
	}
}

func TestParseAddress(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		wantPath string
	}{
		{"bare", testHashHex, ""},
		{"with path", testHashHex + "/index.html", "index.html"},
		{"nested path", testHashHex + "/a/b/c.txt", "a/b/c.txt"},
		{"scheme", "bzz://" + testHashHex + "/img.png", "img.png"},
		{"leading slash", "/" + testHashHex, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			addr, err := ParseAddress(tc.input)
			if err != nil {
				t.Fatalf("ParseAddress failed: %v", err)
			}
			if addr.Path != tc.wantPath {
				t.Errorf("Path mismatch: got %q, want %q", addr.Path, tc.wantPath)
			}
			if addr.Reference.Hash().String() != testHashHex {
				t.Errorf("Reference mismatch: got %s", addr.Reference)
			}
			if addr.HasPath() != (tc.wantPath != "") {
				t.Error("HasPath mismatch")
			}
		})
	}

	if _, err := ParseAddress(""); !IsValidationError(err) {
		t.Errorf("Expected validation error for empty address, got %v", err)
	}
	if _, err := ParseAddress("bzz://nothex/path"); !IsValidationError(err) {
		t.Errorf("Expected validation error for bad reference, got %v", err)
	}

	addr := NewAddress(NewPlainReference(MustParseHexHash(testHashHex)), "/docs/readme.md")
	if addr.String() != testHashHex+"/docs/readme.md" {
		t.Errorf("String mismatch: got %s", addr.String())
	}
}

func TestChunkImmutable(t *testing.T) {
	data := []byte{1, 2, 3}
	ch := NewChunk(MustParseHexHash(testHashHex), data)
	data[0] = 9

	if ch.Data()[0] != 1 {
		t.Error("Chunk shares memory with constructor input")
	}
	if ch.Size() != 3 {
		t.Errorf("Size mismatch: got %d", ch.Size())
	}
	if !ch.Equal(NewChunk(ch.Address(), []byte{1, 2, 3})) {
		t.Error("Equal chunks compare unequal")
	}
	if (Chunk{}).IsZero() != true {
		t.Error("Zero chunk not reported as zero")
	}
}

func TestProximity(t *testing.T) {
	a := Hash{}
	b := Hash{}
	if po := Proximity(a, b); po != 31 {
		t.Errorf("Identical hashes: got %d, want 31", po)
	}

	b[0] = 0x80
	if po := Proximity(a, b); po != 0 {
		t.Errorf("First bit differs: got %d, want 0", po)
	}

	b[0] = 0x01
	if po := Proximity(a, b); po != 7 {
		t.Errorf("Eighth bit differs: got %d, want 7", po)
	}

	b[0] = 0
	b[1] = 0x20
	if po := Proximity(a, b); po != 10 {
		t.Errorf("Eleventh bit differs: got %d, want 10", po)
	}
}

func TestErrorClassification(t *testing.T) {
	h := MustParseHexHash(testHashHex)
	cause := errors.New("boom")

	validation := NewValidationError("bad length", cause)
	integrity := NewIntegrityError("hash mismatch", &h, nil)
	notFound := NewNotFoundError("no chunk", &h)
	precondition := NewPreconditionError("wrong key", nil)

	if !IsValidationError(validation) || IsIntegrityError(validation) {
		t.Error("Validation error misclassified")
	}
	if !IsIntegrityError(integrity) || !errors.Is(integrity, ErrInvalidChunk) {
		t.Error("Integrity error misclassified")
	}
	if !IsNotFoundError(notFound) || !errors.Is(notFound, ErrNotFound) {
		t.Error("Not-found error misclassified")
	}
	if errors.Is(integrity, ErrNotFound) {
		t.Error("Integrity error must not look like not-found")
	}
	if !IsPreconditionError(precondition) {
		t.Error("Precondition error misclassified")
	}

	wrapped := fmt.Errorf("fetching: %w", notFound)
	if !IsNotFoundError(wrapped) {
		t.Error("Wrapped not-found error lost its classification")
	}

	if !errors.Is(validation, cause) {
		t.Error("Cause not unwrapped")
	}
	if !strings.Contains(integrity.Error(), testHashHex) {
		t.Errorf("Error message missing hash: %s", integrity.Error())
	}
}
