package redundancy

import (
	"context"
	"fmt"

	"github.com/klauspost/reedsolomon"
	"golang.org/x/sync/errgroup"

	"github.com/WebFirstLanguage/swarmkit/pkg/cac"
	"github.com/WebFirstLanguage/swarmkit/pkg/constants"
	"github.com/WebFirstLanguage/swarmkit/pkg/storage"
	"github.com/WebFirstLanguage/swarmkit/pkg/swarm"
)

// maxParallelPuts bounds concurrent store writes of one encoder
const maxParallelPuts = 16

// ErrTooManyShards is returned when an intermediate chunk has no room left
// for another reference at the encoder's level
var ErrTooManyShards = swarm.NewPreconditionError("too many shards for redundancy level", nil)

// Encoder collects the children of one intermediate chunk and produces
// their parity chunks. Every shard is span ‖ data zero padded to a full
// chunk; a parity chunk is the CAC whose wire bytes are a parity shard.
type Encoder struct {
	level     Level
	encrypted bool
	putter    storage.Putter
	shards    [][]byte
	addrs     []swarm.Hash
}

// NewEncoder returns an encoder that stores parity chunks with putter
func NewEncoder(level Level, encrypted bool, putter storage.Putter) (*Encoder, error) {
	if !level.Valid() {
		return nil, swarm.NewValidationError(fmt.Sprintf("invalid redundancy level %d", uint8(level)), nil)
	}
	return &Encoder{level: level, encrypted: encrypted, putter: putter}, nil
}

// MaxShards returns how many children the encoder accepts
func (e *Encoder) MaxShards() int {
	if e.encrypted {
		return e.level.GetMaxEncShards()
	}
	return e.level.GetMaxShards()
}

// Add appends a child chunk
func (e *Encoder) Add(ch swarm.Chunk) error {
	if len(e.shards) >= e.MaxShards() {
		return fmt.Errorf("%w: %s allows %d", ErrTooManyShards, e.level, e.MaxShards())
	}
	if ch.Size() < constants.SpanSize || ch.Size() > constants.ChunkWithSpanSize {
		addr := ch.Address()
		return swarm.NewValidationError(
			fmt.Sprintf("shard %s has invalid size %d", addr, ch.Size()), nil)
	}

	shard := make([]byte, constants.ChunkWithSpanSize)
	copy(shard, ch.Data())
	e.shards = append(e.shards, shard)
	e.addrs = append(e.addrs, ch.Address())
	return nil
}

// Shards returns the number of children added
func (e *Encoder) Shards() int { return len(e.shards) }

// Parities returns the number of parity chunks Encode will produce
func (e *Encoder) Parities() int {
	if e.encrypted {
		return e.level.GetEncParities(len(e.shards))
	}
	return e.level.GetParities(len(e.shards))
}

// Encode computes the parity chunks, stores them and returns them in
// parity order. With no redundancy it returns nothing.
func (e *Encoder) Encode(ctx context.Context) ([]swarm.Chunk, error) {
	k, p := len(e.shards), e.Parities()
	if k == 0 {
		return nil, swarm.NewPreconditionError("no shards to encode", nil)
	}
	if p == 0 {
		return nil, nil
	}

	rs, err := reedsolomon.New(k, p)
	if err != nil {
		return nil, fmt.Errorf("failed to create reed-solomon encoder: %w", err)
	}

	all := make([][]byte, k+p)
	copy(all, e.shards)
	for i := k; i < k+p; i++ {
		all[i] = make([]byte, constants.ChunkWithSpanSize)
	}
	if err := rs.Encode(all); err != nil {
		return nil, fmt.Errorf("failed to encode parities: %w", err)
	}

	parities := make([]swarm.Chunk, p)
	for i := range parities {
		shard := all[k+i]
		addr, err := cac.Hash(shard)
		if err != nil {
			return nil, err
		}
		parities[i] = swarm.NewChunk(addr, shard)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelPuts)
	for _, ch := range parities {
		ch := ch
		g.Go(func() error {
			if err := e.putter.Put(gctx, ch); err != nil {
				return fmt.Errorf("failed to store parity chunk %s: %w", ch.Address(), err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return parities, nil
}

// References returns the child addresses followed by the parity addresses,
// the layout of a redundant intermediate chunk
func (e *Encoder) References(parities []swarm.Chunk) []swarm.Hash {
	refs := make([]swarm.Hash, 0, len(e.addrs)+len(parities))
	refs = append(refs, e.addrs...)
	for _, ch := range parities {
		refs = append(refs, ch.Address())
	}
	return refs
}
