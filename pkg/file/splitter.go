// Package file splits byte streams into Swarm chunk trees and joins them
// back.
//
// Leaves are content addressed chunks of up to 4 KiB. Each intermediate
// chunk holds the references of its children followed by the references of
// their parity chunks, and its span is the number of data bytes below it.
// A level that ends with a single node carries that node up instead of
// wrapping it, so every intermediate chunk has at least two children and
// a span above one chunk. The tree shape, and with it the number of
// references in every intermediate chunk, follows from the spans and the
// redundancy level alone.
package file

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/WebFirstLanguage/swarmkit/pkg/cac"
	"github.com/WebFirstLanguage/swarmkit/pkg/constants"
	"github.com/WebFirstLanguage/swarmkit/pkg/redundancy"
	"github.com/WebFirstLanguage/swarmkit/pkg/replicas"
	"github.com/WebFirstLanguage/swarmkit/pkg/storage"
	"github.com/WebFirstLanguage/swarmkit/pkg/swarm"
)

// Config holds splitter and joiner options
type Config struct {
	Level  redundancy.Level // Redundancy of intermediate chunks and the root
	Logger *logrus.Logger
}

// DefaultConfig returns a configuration without redundancy
func DefaultConfig() *Config {
	return &Config{Level: redundancy.NONE}
}

func (c *Config) logger() *logrus.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

// level collects the nodes of one tree height until they fill an
// intermediate chunk
type level struct {
	nodes []swarm.Chunk
	span  uint64
}

func (l *level) add(ch swarm.Chunk) {
	l.nodes = append(l.nodes, ch)
	l.span += cac.Span(ch)
}

// Splitter writes a byte stream into a putter as a chunk tree
type Splitter struct {
	putter    storage.Putter
	level     redundancy.Level
	maxShards int
	log       *logrus.Logger
}

// NewSplitter creates a splitter
func NewSplitter(putter storage.Putter, config *Config) (*Splitter, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if !config.Level.Valid() {
		return nil, swarm.NewValidationError(fmt.Sprintf("invalid redundancy level %d", uint8(config.Level)), nil)
	}
	return &Splitter{
		putter:    putter,
		level:     config.Level,
		maxShards: config.Level.GetMaxShards(),
		log:       config.logger(),
	}, nil
}

// Split reads r to the end and returns the root address of the stored
// tree. With redundancy the root is also stored as dispersed replicas.
func (s *Splitter) Split(ctx context.Context, r io.Reader) (swarm.Hash, error) {
	var (
		levels []*level
		buffer = make([]byte, constants.DataSize)
		total  uint64
	)

	for {
		n, err := io.ReadFull(r, buffer)
		eof := errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
		if err != nil && !eof {
			return swarm.ZeroHash, fmt.Errorf("failed to read at offset %d: %w", total, err)
		}

		// empty input still yields one empty leaf
		if n > 0 || total == 0 {
			leaf, err := cac.New(buffer[:n])
			if err != nil {
				return swarm.ZeroHash, err
			}
			if err := s.putter.Put(ctx, leaf); err != nil {
				return swarm.ZeroHash, fmt.Errorf("failed to store leaf at offset %d: %w", total, err)
			}
			total += uint64(n)

			if levels, err = s.push(ctx, levels, 0, leaf); err != nil {
				return swarm.ZeroHash, err
			}
		}
		if eof {
			break
		}
	}

	root, err := s.flush(ctx, levels)
	if err != nil {
		return swarm.ZeroHash, err
	}

	if s.level != redundancy.NONE {
		if err := replicas.Put(ctx, s.putter, root, s.level); err != nil {
			return swarm.ZeroHash, fmt.Errorf("failed to replicate root: %w", err)
		}
	}

	s.log.WithFields(logrus.Fields{
		"root":   root.Address().String(),
		"bytes":  total,
		"height": len(levels),
		"level":  s.level.String(),
	}).Debug("split complete")
	return root.Address(), nil
}

// SplitData splits an in-memory byte slice
func (s *Splitter) SplitData(ctx context.Context, data []byte) (swarm.Hash, error) {
	return s.Split(ctx, bytes.NewReader(data))
}

// push adds a node of height h, wrapping the level when it is full
func (s *Splitter) push(ctx context.Context, levels []*level, h int, ch swarm.Chunk) ([]*level, error) {
	if err := ctx.Err(); err != nil {
		return levels, err
	}
	if len(levels) == h {
		levels = append(levels, &level{})
	}

	lvl := levels[h]
	lvl.add(ch)
	if len(lvl.nodes) < s.maxShards {
		return levels, nil
	}

	parent, err := s.wrap(ctx, lvl)
	if err != nil {
		return levels, err
	}
	levels[h] = &level{}
	return s.push(ctx, levels, h+1, parent)
}

// wrap encodes the parities of a level's nodes and stores the intermediate
// chunk referencing them
func (s *Splitter) wrap(ctx context.Context, lvl *level) (swarm.Chunk, error) {
	enc, err := redundancy.NewEncoder(s.level, false, s.putter)
	if err != nil {
		return swarm.Chunk{}, err
	}
	for _, ch := range lvl.nodes {
		if err := enc.Add(ch); err != nil {
			return swarm.Chunk{}, err
		}
	}
	parities, err := enc.Encode(ctx)
	if err != nil {
		return swarm.Chunk{}, err
	}

	refs := enc.References(parities)
	payload := make([]byte, 0, len(refs)*constants.HashSize)
	for _, ref := range refs {
		payload = append(payload, ref[:]...)
	}

	ch, err := cac.NewWithSpan(lvl.span, payload)
	if err != nil {
		return swarm.Chunk{}, err
	}
	if err := s.putter.Put(ctx, ch); err != nil {
		return swarm.Chunk{}, fmt.Errorf("failed to store intermediate chunk: %w", err)
	}
	return ch, nil
}

// flush closes the partial levels bottom up and returns the root. A level
// left with a single node passes it up unwrapped.
func (s *Splitter) flush(ctx context.Context, levels []*level) (swarm.Chunk, error) {
	for h, lvl := range levels {
		var (
			node swarm.Chunk
			err  error
		)
		switch len(lvl.nodes) {
		case 0:
			continue
		case 1:
			node = lvl.nodes[0]
		default:
			if node, err = s.wrap(ctx, lvl); err != nil {
				return swarm.Chunk{}, err
			}
		}

		if h == len(levels)-1 {
			return node, nil
		}
		levels[h+1].add(node)
	}
	return swarm.Chunk{}, swarm.NewPreconditionError("no chunks to flush", nil)
}
