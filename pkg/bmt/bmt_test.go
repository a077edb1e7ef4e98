package bmt

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand"
	"testing"

	"golang.org/x/crypto/sha3"

	"github.com/WebFirstLanguage/swarmkit/pkg/constants"
	"github.com/WebFirstLanguage/swarmkit/pkg/swarm"
)

// referenceHash is a deliberately naive recursive BMT used as an oracle:
// hash 64-byte sections at the bottom, pair results upwards.
func referenceHash(span, data []byte) swarm.Hash {
	padded := make([]byte, constants.DataSize)
	copy(padded, data)

	var node func(offset, section int) []byte
	node = func(offset, section int) []byte {
		h := sha3.NewLegacyKeccak256()
		if section == 2*constants.SegmentSize {
			h.Write(padded[offset : offset+section])
			return h.Sum(nil)
		}
		half := section / 2
		h.Write(node(offset, half))
		h.Write(node(offset+half, half))
		return h.Sum(nil)
	}

	h := sha3.NewLegacyKeccak256()
	h.Write(span)
	h.Write(node(0, constants.DataSize))
	var out swarm.Hash
	copy(out[:], h.Sum(nil))
	return out
}

func randomData(t *testing.T, seed int64, n int) []byte {
	t.Helper()
	data := make([]byte, n)
	rand.New(rand.NewSource(seed)).Read(data)
	return data
}

func TestHashMatchesReference(t *testing.T) {
	lengths := []int{0, 1, 31, 32, 33, 63, 64, 65, 100, 1000, 2048, 4095, 4096}

	hasher := NewHasher()
	for _, n := range lengths {
		t.Run(fmt.Sprintf("len_%d", n), func(t *testing.T) {
			data := randomData(t, int64(n), n)
			span := NewSpan(uint64(n))

			got, err := hasher.Hash(span, data)
			if err != nil {
				t.Fatalf("Hash failed: %v", err)
			}

			want := referenceHash(span, data)
			if got != want {
				t.Errorf("Hash mismatch: got %s, want %s", got, want)
			}
		})
	}
}

func TestHashDeterministic(t *testing.T) {
	data := randomData(t, 42, 777)
	span := NewSpan(777)

	first, err := Sum(span, data)
	if err != nil {
		t.Fatalf("Sum failed: %v", err)
	}

	// Dirty the pooled hasher with unrelated data before hashing again
	if _, err := Sum(NewSpan(4096), randomData(t, 7, 4096)); err != nil {
		t.Fatalf("Sum failed: %v", err)
	}

	second, err := Sum(span, data)
	if err != nil {
		t.Fatalf("Sum failed: %v", err)
	}

	if first != second {
		t.Errorf("Hash not deterministic: %s != %s", first, second)
	}
}

func TestHasherReuse(t *testing.T) {
	reused := NewHasher()
	for i := 0; i < 5; i++ {
		n := 4096 >> i
		data := randomData(t, int64(i), n)
		span := NewSpan(uint64(n))

		got, err := reused.Hash(span, data)
		if err != nil {
			t.Fatalf("Hash failed: %v", err)
		}
		want, err := NewHasher().Hash(span, data)
		if err != nil {
			t.Fatalf("Hash failed: %v", err)
		}
		if got != want {
			t.Errorf("Round %d: reused hasher leaked state", i)
		}
	}
}

func TestZeroPaddingInvariance(t *testing.T) {
	data := randomData(t, 3, 100)
	padded := make([]byte, constants.DataSize)
	copy(padded, data)

	span := NewSpan(100)
	short, err := Sum(span, data)
	if err != nil {
		t.Fatalf("Sum failed: %v", err)
	}
	long, err := Sum(span, padded)
	if err != nil {
		t.Fatalf("Sum failed: %v", err)
	}
	if short != long {
		t.Error("Explicit zero padding changed the hash")
	}

	// Only the span distinguishes the two lengths
	other, err := Sum(NewSpan(constants.DataSize), padded)
	if err != nil {
		t.Fatalf("Sum failed: %v", err)
	}
	if other == short {
		t.Error("Different spans produced the same hash")
	}
}

func TestHashRejectsBadInput(t *testing.T) {
	hasher := NewHasher()

	_, err := hasher.Hash(NewSpan(0), make([]byte, constants.DataSize+1))
	if !errors.Is(err, ErrDataTooLong) {
		t.Errorf("Expected ErrDataTooLong, got %v", err)
	}
	if !swarm.IsPreconditionError(err) {
		t.Errorf("Oversized data should be a precondition error, got %v", err)
	}

	_, err = hasher.Hash(make([]byte, 7), nil)
	if !errors.Is(err, ErrInvalidSpan) {
		t.Errorf("Expected ErrInvalidSpan, got %v", err)
	}
}

func TestSpan(t *testing.T) {
	span := NewSpan(0x0102)
	if !bytes.Equal(span, []byte{0x02, 0x01, 0, 0, 0, 0, 0, 0}) {
		t.Errorf("Span is not little-endian: %x", span)
	}
	if LengthFromSpan(span) != 0x0102 {
		t.Errorf("LengthFromSpan mismatch: got %d", LengthFromSpan(span))
	}
}

func TestProofs(t *testing.T) {
	data := randomData(t, 11, 3000)
	span := NewSpan(3000)

	hasher := NewHasher()
	addr, err := hasher.Hash(span, data)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	for _, index := range []int{0, 1, 2, 63, 64, 93, 94, 127} {
		t.Run(fmt.Sprintf("segment_%d", index), func(t *testing.T) {
			proof, err := hasher.Proof(index)
			if err != nil {
				t.Fatalf("Proof failed: %v", err)
			}

			if len(proof.Siblings) != 7 {
				t.Errorf("Expected 7 siblings for a 128-leaf tree, got %d", len(proof.Siblings))
			}

			if !proof.Verify(addr) {
				t.Error("Proof did not verify against the chunk address")
			}
			if !hasher.VerifyProof(proof.Siblings, index, proof.Segment) {
				t.Error("Proof did not verify against the hasher root")
			}

			// Wrong position must fail unless both neighbours are identical padding
			if proof.Segment != proof.Siblings[0] && hasher.VerifyProof(proof.Siblings, index^1, proof.Segment) {
				t.Error("Proof verified at the wrong position")
			}

			// Tampered sibling must fail
			tampered := proof
			tampered.Siblings = append([]swarm.Hash(nil), proof.Siblings...)
			tampered.Siblings[3][0] ^= 0x01
			if tampered.Verify(addr) {
				t.Error("Tampered proof verified")
			}

			// Truncated proof must fail
			truncated := proof
			truncated.Siblings = proof.Siblings[:6]
			if truncated.Verify(addr) {
				t.Error("Truncated proof verified")
			}
		})
	}
}

func TestProofForSegment(t *testing.T) {
	data := bytes.Repeat([]byte{0}, 64)
	copy(data[32:], []byte("marker segment"))

	hasher := NewHasher()
	addr, err := hasher.Hash(NewSpan(64), data)
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	proof, err := hasher.ProofForSegment([]byte("marker segment"))
	if err != nil {
		t.Fatalf("ProofForSegment failed: %v", err)
	}
	if proof.SegmentIndex != 1 {
		t.Errorf("Expected segment index 1, got %d", proof.SegmentIndex)
	}
	if !proof.Verify(addr) {
		t.Error("Segment proof did not verify")
	}

	_, err = hasher.ProofForSegment([]byte("absent"))
	if !swarm.IsNotFoundError(err) {
		t.Errorf("Expected not-found for absent segment, got %v", err)
	}

	_, err = hasher.Proof(constants.SegmentsCount)
	if !swarm.IsNotFoundError(err) {
		t.Errorf("Expected not-found for out of range index, got %v", err)
	}
}

func TestProofBeforeHash(t *testing.T) {
	hasher := NewHasher()
	if _, err := hasher.Proof(0); !errors.Is(err, ErrNotHashed) {
		t.Errorf("Expected ErrNotHashed, got %v", err)
	}
	if _, err := hasher.Root(); !errors.Is(err, ErrNotHashed) {
		t.Errorf("Expected ErrNotHashed, got %v", err)
	}
	if hasher.VerifyProof(nil, 0, swarm.ZeroHash) {
		t.Error("VerifyProof succeeded before hashing")
	}
}

func BenchmarkHash(b *testing.B) {
	data := make([]byte, constants.DataSize)
	rand.New(rand.NewSource(1)).Read(data)
	span := NewSpan(constants.DataSize)
	hasher := NewHasher()

	b.ReportAllocs()
	b.SetBytes(constants.DataSize)
	for i := 0; i < b.N; i++ {
		if _, err := hasher.Hash(span, data); err != nil {
			b.Fatal(err)
		}
	}
}
