// Package cac implements content addressed chunks: span ‖ data framing
// whose address is the BMT hash of the two.
package cac

import (
	"fmt"

	"github.com/WebFirstLanguage/swarmkit/pkg/bmt"
	"github.com/WebFirstLanguage/swarmkit/pkg/constants"
	"github.com/WebFirstLanguage/swarmkit/pkg/swarm"
)

// ErrTooShort is returned for wire data without a full span
var ErrTooShort = swarm.NewValidationError("chunk shorter than span", nil)

// New frames data as a CAC whose span is len(data)
func New(data []byte) (swarm.Chunk, error) {
	return NewWithSpan(uint64(len(data)), data)
}

// NewWithSpan frames data under an explicit span. Intermediate chunks of a
// file tree carry the length of their whole subtree.
func NewWithSpan(span uint64, data []byte) (swarm.Chunk, error) {
	if len(data) > constants.DataSize {
		return swarm.Chunk{}, fmt.Errorf("%w: got %d bytes", bmt.ErrDataTooLong, len(data))
	}

	spanData := make([]byte, constants.SpanSize+len(data))
	copy(spanData, bmt.NewSpan(span))
	copy(spanData[constants.SpanSize:], data)

	addr, err := bmt.Sum(spanData[:constants.SpanSize], data)
	if err != nil {
		return swarm.Chunk{}, err
	}
	return swarm.NewChunk(addr, spanData), nil
}

// Hash returns the address of span ‖ data wire bytes
func Hash(spanData []byte) (swarm.Hash, error) {
	if err := checkSize(spanData); err != nil {
		return swarm.ZeroHash, err
	}
	return bmt.Sum(spanData[:constants.SpanSize], spanData[constants.SpanSize:])
}

// FromWire validates untrusted wire bytes against the address they were
// fetched under.
func FromWire(addr swarm.Hash, spanData []byte) (swarm.Chunk, error) {
	computed, err := Hash(spanData)
	if err != nil {
		return swarm.Chunk{}, err
	}
	if computed != addr {
		return swarm.Chunk{}, swarm.NewIntegrityError(
			fmt.Sprintf("content hash mismatch, computed %s", computed), &addr, nil)
	}
	return swarm.NewChunk(addr, spanData), nil
}

// Valid reports whether the chunk's address is the BMT hash of its bytes
func Valid(ch swarm.Chunk) bool {
	computed, err := Hash(ch.Data())
	return err == nil && computed == ch.Address()
}

// Span returns the length encoded in the chunk's span
func Span(ch swarm.Chunk) uint64 {
	if len(ch.Data()) < constants.SpanSize {
		return 0
	}
	return bmt.LengthFromSpan(ch.Data()[:constants.SpanSize])
}

// Payload returns the data after the span
func Payload(ch swarm.Chunk) []byte {
	if len(ch.Data()) < constants.SpanSize {
		return nil
	}
	return ch.Data()[constants.SpanSize:]
}

func checkSize(spanData []byte) error {
	if len(spanData) < constants.SpanSize {
		return fmt.Errorf("%w: got %d bytes", ErrTooShort, len(spanData))
	}
	if len(spanData) > constants.ChunkWithSpanSize {
		return fmt.Errorf("%w: got %d bytes", bmt.ErrDataTooLong, len(spanData)-constants.SpanSize)
	}
	return nil
}
