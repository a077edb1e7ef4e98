// Package storage defines the chunk store consumed by feeds, replicas and
// redundancy, together with an in-memory store, a BadgerDB-backed store
// and a validating LRU read cache.
package storage

import (
	"context"
	"fmt"

	"github.com/WebFirstLanguage/swarmkit/pkg/cac"
	"github.com/WebFirstLanguage/swarmkit/pkg/soc"
	"github.com/WebFirstLanguage/swarmkit/pkg/swarm"
)

// ErrNotFound matches every chunk-not-found error through errors.Is
var ErrNotFound = swarm.ErrNotFound

// Getter retrieves chunks by address
type Getter interface {
	// Get returns the chunk stored at addr or a not-found error
	Get(ctx context.Context, addr swarm.Hash) (swarm.Chunk, error)
}

// Putter stores chunks
type Putter interface {
	// Put stores a valid CAC or SOC under its address
	Put(ctx context.Context, ch swarm.Chunk) error
}

// Store is a local chunk store
type Store interface {
	Getter
	Putter

	// Has reports whether a chunk is stored at addr
	Has(ctx context.Context, addr swarm.Hash) (bool, error)

	// Delete removes the chunk at addr; deleting an absent chunk is not an error
	Delete(ctx context.Context, addr swarm.Hash) error

	// Stats returns operation counters
	Stats() Stats

	// Close releases the store's resources
	Close() error
}

// Stats represents statistics about store operations
type Stats struct {
	TotalChunks     uint64 `cbor:"total_chunks"`     // Chunks currently stored
	TotalBytes      uint64 `cbor:"total_bytes"`      // Wire bytes currently stored
	SuccessfulGets  uint64 `cbor:"successful_gets"`  // Number of successful get operations
	FailedGets      uint64 `cbor:"failed_gets"`      // Number of failed get operations
	SuccessfulPuts  uint64 `cbor:"successful_puts"`  // Number of successful put operations
	FailedPuts      uint64 `cbor:"failed_puts"`      // Number of rejected put operations
	CacheHits       uint64 `cbor:"cache_hits"`       // Number of cache hits
	CacheMisses     uint64 `cbor:"cache_misses"`     // Number of cache misses
	IntegrityErrors uint64 `cbor:"integrity_errors"` // Number of integrity verification failures
}

// Validate classifies a chunk, returning an integrity error if it is
// neither a valid CAC nor a valid SOC at its address.
func Validate(ch swarm.Chunk) (swarm.ChunkType, error) {
	if cac.Valid(ch) {
		return swarm.ChunkTypeContentAddressed, nil
	}
	if soc.Valid(ch) {
		return swarm.ChunkTypeSingleOwner, nil
	}
	addr := ch.Address()
	return swarm.ChunkTypeUnspecified, swarm.NewIntegrityError(
		fmt.Sprintf("chunk of %d bytes is neither a valid CAC nor a valid SOC", ch.Size()), &addr, nil)
}

func notFound(addr swarm.Hash) error {
	return swarm.NewNotFoundError("chunk not found", &addr)
}
