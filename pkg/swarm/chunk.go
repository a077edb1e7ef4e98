package swarm

import (
	"bytes"
	"fmt"
)

// ChunkType tells how a chunk's address relates to its bytes
type ChunkType uint8

// DO NOT CHANGE ORDER, values are persisted
const (
	ChunkTypeUnspecified ChunkType = iota
	ChunkTypeContentAddressed
	ChunkTypeSingleOwner
)

// String implements fmt.Stringer
func (ct ChunkType) String() string {
	switch ct {
	case ChunkTypeContentAddressed:
		return "CAC"
	case ChunkTypeSingleOwner:
		return "SOC"
	default:
		return "unspecified"
	}
}

// Chunk is an address and its wire bytes: span ‖ data for a CAC,
// identifier ‖ signature ‖ span ‖ data for a SOC. Chunks are never
// mutated after construction.
type Chunk struct {
	addr Hash
	data []byte
}

// NewChunk copies data so that callers cannot mutate the chunk afterwards
func NewChunk(addr Hash, data []byte) Chunk {
	cp := make([]byte, len(data))
	copy(cp, data)
	return Chunk{addr: addr, data: cp}
}

// Address returns the chunk hash
func (c Chunk) Address() Hash {
	return c.addr
}

// Data returns the wire bytes. The slice must be treated as read-only.
func (c Chunk) Data() []byte {
	return c.data
}

// Size returns the wire length
func (c Chunk) Size() int {
	return len(c.data)
}

// IsZero reports whether the chunk was never constructed
func (c Chunk) IsZero() bool {
	return c.addr.IsZero() && c.data == nil
}

// Equal compares address and bytes
func (c Chunk) Equal(other Chunk) bool {
	return c.addr == other.addr && bytes.Equal(c.data, other.data)
}

// String implements fmt.Stringer
func (c Chunk) String() string {
	return fmt.Sprintf("Address: %s Chunksize: %d", c.addr, len(c.data))
}
