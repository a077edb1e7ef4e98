package file

import (
	"bytes"
	"context"
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

// Joiner reads chunk trees back into byte streams. Missing children of an
// intermediate chunk are rebuilt from its parities and a missing root is
// taken from its replicas.
type Joiner struct {
	getter    storage.Getter
	level     redundancy.Level
	maxShards uint64
	log       *logrus.Logger
}

// NewJoiner creates a joiner. The level must be the one the tree was split
// with.
func NewJoiner(getter storage.Getter, config *Config) (*Joiner, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if !config.Level.Valid() {
		return nil, swarm.NewValidationError(fmt.Sprintf("invalid redundancy level %d", uint8(config.Level)), nil)
	}
	return &Joiner{
		getter:    getter,
		level:     config.Level,
		maxShards: uint64(config.Level.GetMaxShards()),
		log:       config.logger(),
	}, nil
}

// Join writes the data under root to w and returns the number of bytes
// written
func (j *Joiner) Join(ctx context.Context, root swarm.Hash, w io.Writer) (uint64, error) {
	ch, err := replicas.Get(ctx, j.getter, root, j.level)
	if err != nil {
		return 0, err
	}
	if !cac.Valid(ch) {
		return 0, swarm.NewIntegrityError("root is not a content addressed chunk", &root, nil)
	}

	n, err := j.join(ctx, ch, w)
	if err != nil {
		return n, err
	}

	j.log.WithFields(logrus.Fields{
		"root":  root.String(),
		"bytes": n,
	}).Debug("join complete")
	return n, nil
}

// JoinData returns the data under root
func (j *Joiner) JoinData(ctx context.Context, root swarm.Hash) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := j.Join(ctx, root, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Size returns the data length under root without reading the tree
func (j *Joiner) Size(ctx context.Context, root swarm.Hash) (uint64, error) {
	ch, err := replicas.Get(ctx, j.getter, root, j.level)
	if err != nil {
		return 0, err
	}
	return cac.Span(ch), nil
}

// childSpan returns the data capacity of each child of an intermediate
// chunk with the given span
func (j *Joiner) childSpan(span uint64) uint64 {
	size := uint64(constants.DataSize)
	for size < (span-1)/j.maxShards+1 {
		size *= j.maxShards
	}
	return size
}

func (j *Joiner) join(ctx context.Context, ch swarm.Chunk, w io.Writer) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	addr := ch.Address()
	span, payload := cac.Span(ch), cac.Payload(ch)
	if span <= constants.DataSize {
		if uint64(len(payload)) != span {
			return 0, swarm.NewIntegrityError(
				fmt.Sprintf("leaf holds %d bytes, span says %d", len(payload), span), &addr, nil)
		}
		n, err := w.Write(payload)
		return uint64(n), err
	}

	childSpan := j.childSpan(span)
	shards := int((span-1)/childSpan + 1)
	parities := j.level.GetParities(shards)
	if len(payload) != (shards+parities)*constants.HashSize {
		return 0, swarm.NewIntegrityError(
			fmt.Sprintf("intermediate chunk holds %d bytes, expected %d references for span %d",
				len(payload), shards+parities, span), &addr, nil)
	}

	refs := make([]swarm.Hash, shards+parities)
	for i := range refs {
		copy(refs[i][:], payload[i*constants.HashSize:])
	}

	dec, err := redundancy.NewDecoder(j.getter, refs, shards, j.log)
	if err != nil {
		return 0, err
	}
	children, err := dec.Recover(ctx)
	if err != nil {
		return 0, fmt.Errorf("intermediate chunk %s: %w", addr, err)
	}

	var written uint64
	for i, child := range children {
		want := childSpan
		if i == len(children)-1 {
			want = span - childSpan*uint64(shards-1)
		}
		if got := cac.Span(child); got != want {
			childAddr := child.Address()
			return written, swarm.NewIntegrityError(
				fmt.Sprintf("child %d of %s spans %d bytes, expected %d", i, addr, got, want), &childAddr, nil)
		}

		n, err := j.join(ctx, child, w)
		written += n
		if err != nil {
			return written, err
		}
	}
	return written, nil
}
