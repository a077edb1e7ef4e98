// Package bmt implements the Binary Merkle Tree chunk hash: a fixed
// 128-leaf Keccak-256 tree over the zero-padded 4 KiB payload, whose root
// is hashed together with the 8-byte span. It also produces and verifies
// inclusion proofs for single 32-byte segments.
package bmt

import (
	"encoding/binary"
	"fmt"
	"hash"
	"sync"

	"golang.org/x/crypto/sha3"

	"github.com/WebFirstLanguage/swarmkit/pkg/constants"
	"github.com/WebFirstLanguage/swarmkit/pkg/swarm"
)

var (
	// ErrDataTooLong is returned for payloads over constants.DataSize
	ErrDataTooLong = swarm.NewPreconditionError("data exceeds chunk size", nil)

	// ErrInvalidSpan is returned when the span is not exactly 8 bytes
	ErrInvalidSpan = swarm.NewValidationError("span must be 8 bytes", nil)

	// ErrNotHashed is returned when proofs are requested before Hash
	ErrNotHashed = swarm.NewPreconditionError("hasher has not hashed any data", nil)
)

// Hasher computes BMT hashes. Its node storage is a fixed arena sized for
// the 128-leaf tree and is reused across calls, so steady-state hashing
// does not allocate. A Hasher is not safe for concurrent use.
type Hasher struct {
	keccak hash.Hash

	leaves [constants.SegmentsCount]swarm.Hash
	arena  [constants.SegmentsCount]swarm.Hash
	layers [][]swarm.Hash

	span   [constants.SpanSize]byte
	root   swarm.Hash
	sum    swarm.Hash
	hashed bool
}

// NewHasher allocates a hasher and its arena
func NewHasher() *Hasher {
	return &Hasher{
		keccak: sha3.NewLegacyKeccak256(),
		layers: make([][]swarm.Hash, 0, 8),
	}
}

// Hash returns Keccak(span ‖ root) where root is the BMT root over data
// zero-padded to 4096 bytes.
func (h *Hasher) Hash(span, data []byte) (swarm.Hash, error) {
	if len(span) != constants.SpanSize {
		return swarm.ZeroHash, fmt.Errorf("%w: got %d bytes", ErrInvalidSpan, len(span))
	}
	if len(data) > constants.DataSize {
		return swarm.ZeroHash, fmt.Errorf("%w: got %d bytes", ErrDataTooLong, len(data))
	}

	clear(h.leaves[:])
	for i := 0; i*constants.SegmentSize < len(data); i++ {
		copy(h.leaves[i][:], data[i*constants.SegmentSize:])
	}

	h.build()

	copy(h.span[:], span)
	h.keccak.Reset()
	h.keccak.Write(h.span[:])
	h.keccak.Write(h.root[:])
	h.keccak.Sum(h.sum[:0])
	h.hashed = true

	return h.sum, nil
}

// Root returns the tree root of the last Hash call
func (h *Hasher) Root() (swarm.Hash, error) {
	if !h.hashed {
		return swarm.ZeroHash, ErrNotHashed
	}
	return h.root, nil
}

// build collapses the leaves layer by layer. A layer with an odd count
// carries its last node up unchanged.
func (h *Hasher) build() {
	layer := h.leaves[:]
	h.layers = append(h.layers[:0], layer)

	offset := 0
	for len(layer) > 1 {
		n := (len(layer) + 1) / 2
		next := h.arena[offset : offset+n]
		offset += n

		for i := 0; i < len(layer)/2; i++ {
			h.hashPair(&next[i], &layer[2*i], &layer[2*i+1])
		}
		if len(layer)%2 == 1 {
			next[n-1] = layer[len(layer)-1]
		}

		h.layers = append(h.layers, next)
		layer = next
	}

	h.root = layer[0]
}

func (h *Hasher) hashPair(dst, left, right *swarm.Hash) {
	h.keccak.Reset()
	h.keccak.Write(left[:])
	h.keccak.Write(right[:])
	h.keccak.Sum(dst[:0])
}

var hasherPool = sync.Pool{
	New: func() any { return NewHasher() },
}

// Sum hashes span and data with a pooled Hasher
func Sum(span, data []byte) (swarm.Hash, error) {
	h := hasherPool.Get().(*Hasher)
	defer hasherPool.Put(h)
	return h.Hash(span, data)
}

// NewSpan encodes a payload length as a little-endian span
func NewSpan(length uint64) []byte {
	span := make([]byte, constants.SpanSize)
	binary.LittleEndian.PutUint64(span, length)
	return span
}

// LengthFromSpan decodes a little-endian span
func LengthFromSpan(span []byte) uint64 {
	return binary.LittleEndian.Uint64(span)
}
