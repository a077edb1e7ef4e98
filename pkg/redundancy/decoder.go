package redundancy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/reedsolomon"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/WebFirstLanguage/swarmkit/pkg/bmt"
	"github.com/WebFirstLanguage/swarmkit/pkg/cac"
	"github.com/WebFirstLanguage/swarmkit/pkg/constants"
	"github.com/WebFirstLanguage/swarmkit/pkg/storage"
	"github.com/WebFirstLanguage/swarmkit/pkg/swarm"
)

// ErrNotRecoverable is returned when fewer shards than data chunks survive
var ErrNotRecoverable = swarm.NewNotFoundError("not enough shards to recover", nil)

// Decoder restores the children of a redundant intermediate chunk from any
// shardCount of its data and parity chunks
type Decoder struct {
	getter     storage.Getter
	addrs      []swarm.Hash
	shardCount int
	log        *logrus.Logger
}

// NewDecoder creates a decoder. addrs lists the data chunk addresses
// followed by the parity addresses.
func NewDecoder(getter storage.Getter, addrs []swarm.Hash, shardCount int, logger *logrus.Logger) (*Decoder, error) {
	if shardCount <= 0 || shardCount > len(addrs) {
		return nil, swarm.NewValidationError(
			fmt.Sprintf("invalid shard count %d for %d references", shardCount, len(addrs)), nil)
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &Decoder{
		getter:     getter,
		addrs:      append([]swarm.Hash(nil), addrs...),
		shardCount: shardCount,
		log:        logger,
	}, nil
}

// fetchAll retrieves every shard concurrently. Missing or invalid shards
// are left nil.
func (d *Decoder) fetchAll(ctx context.Context) ([][]byte, error) {
	shards := make([][]byte, len(d.addrs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelPuts)
	for i, addr := range d.addrs {
		i, addr := i, addr
		g.Go(func() error {
			ch, err := d.getter.Get(gctx, addr)
			switch {
			case err == nil:
			case swarm.IsNotFoundError(err) || swarm.IsIntegrityError(err):
				d.log.WithFields(logrus.Fields{
					"shard": i,
					"addr":  addr.String(),
				}).WithError(err).Debug("shard unavailable")
				return nil
			default:
				return err
			}

			if ch.Address() != addr || !cac.Valid(ch) {
				d.log.WithFields(logrus.Fields{
					"shard": i,
					"addr":  addr.String(),
				}).Warn("discarding invalid shard")
				return nil
			}
			shards[i] = ch.Data()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return shards, nil
}

// Recover returns the data chunks in order, rebuilding missing ones from
// parities. Every rebuilt chunk is checked against its expected address.
func (d *Decoder) Recover(ctx context.Context) ([]swarm.Chunk, error) {
	fetched, err := d.fetchAll(ctx)
	if err != nil {
		return nil, err
	}

	k, p := d.shardCount, len(d.addrs)-d.shardCount
	present, missingData := 0, 0
	for i, shard := range fetched {
		if shard != nil {
			present++
		} else if i < k {
			missingData++
		}
	}

	chunks := make([]swarm.Chunk, k)
	if missingData == 0 {
		for i := range chunks {
			chunks[i] = swarm.NewChunk(d.addrs[i], fetched[i])
		}
		return chunks, nil
	}
	if present < k || p == 0 {
		return nil, fmt.Errorf("%w: %d of %d shards available, %d needed", ErrNotRecoverable, present, len(d.addrs), k)
	}

	padded := make([][]byte, len(fetched))
	for i, shard := range fetched {
		if shard == nil {
			continue
		}
		padded[i] = make([]byte, constants.ChunkWithSpanSize)
		copy(padded[i], shard)
	}

	rs, err := reedsolomon.New(k, p)
	if err != nil {
		return nil, fmt.Errorf("failed to create reed-solomon decoder: %w", err)
	}
	if err := rs.ReconstructData(padded); err != nil {
		return nil, fmt.Errorf("failed to reconstruct shards: %w", err)
	}

	for i := range chunks {
		if fetched[i] != nil {
			chunks[i] = swarm.NewChunk(d.addrs[i], fetched[i])
			continue
		}

		data := trimShard(padded[i])
		rebuilt, err := cac.FromWire(d.addrs[i], data)
		if err != nil {
			return nil, fmt.Errorf("rebuilt shard %d: %w", i, err)
		}
		chunks[i] = rebuilt
	}

	d.log.WithFields(logrus.Fields{
		"rebuilt": missingData,
		"present": present,
		"total":   len(d.addrs),
	}).Debug("recovered shards")
	return chunks, nil
}

// Recovered is Recover followed by storing each rebuilt chunk with putter
func (d *Decoder) Recovered(ctx context.Context, putter storage.Putter) ([]swarm.Chunk, error) {
	chunks, err := d.Recover(ctx)
	if err != nil {
		return nil, err
	}

	var errs []error
	for _, ch := range chunks {
		if err := putter.Put(ctx, ch); err != nil {
			errs = append(errs, fmt.Errorf("failed to store %s: %w", ch.Address(), err))
		}
	}
	return chunks, errors.Join(errs...)
}

var zeroSegment = make([]byte, constants.SegmentSize)

// trimShard cuts the zero padding off a rebuilt shard. A leaf carries its
// payload length in the span; an intermediate chunk holds references and
// no reference is all zeros.
func trimShard(shard []byte) []byte {
	span := bmt.LengthFromSpan(shard[:constants.SpanSize])
	if span <= constants.DataSize {
		return shard[:constants.SpanSize+int(span)]
	}

	end := len(shard)
	for end > constants.SpanSize && bytes.Equal(shard[end-constants.SegmentSize:end], zeroSegment) {
		end -= constants.SegmentSize
	}
	return shard[:end]
}
