package feed

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/WebFirstLanguage/swarmkit/pkg/identity"
	"github.com/WebFirstLanguage/swarmkit/pkg/soc"
	"github.com/WebFirstLanguage/swarmkit/pkg/storage"
)

// Updater publishes updates to the signer's feeds
type Updater struct {
	store  storage.Store
	signer identity.Signer
	clock  clock.Clock
	log    *logrus.Logger

	epochs    *EpochFinder
	sequences *SequenceFinder
}

// NewUpdater creates an updater writing to store. clk may be nil for the
// wall clock.
func NewUpdater(store storage.Store, signer identity.Signer, clk clock.Clock, config *Config) *Updater {
	if config == nil {
		config = DefaultConfig()
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Updater{
		store:     store,
		signer:    signer,
		clock:     clk,
		log:       config.logger(),
		epochs:    NewEpochFinder(store, config),
		sequences: NewSequenceFinder(store, config),
	}
}

// NextEpochChunk builds, without storing, the chunk of the next epoch
// update. The previous update is looked up at the current time; without
// one the update goes to the top level epoch containing now.
func (u *Updater) NextEpochChunk(ctx context.Context, topic Topic, payload []byte, hint *Epoch) (*soc.SOC, Epoch, error) {
	now := uint64(u.clock.Now().Unix())

	last, found, err := u.epochs.At(ctx, u.signer.Address(), topic, now, hint)
	if err != nil {
		return nil, Epoch{}, fmt.Errorf("failed to find last update: %w", err)
	}

	next := TopEpoch()
	if found {
		prev, ok := last.Index.(Epoch)
		if !ok {
			return nil, Epoch{}, fmt.Errorf("last update has %T index", last.Index)
		}
		if next, err = prev.Next(now); err != nil {
			return nil, Epoch{}, err
		}
	} else if !next.ContainsTime(now) {
		next = next.Right()
	}

	chunk, err := NewChunk(u.signer, topic, next, now, payload)
	if err != nil {
		return nil, Epoch{}, err
	}
	return chunk, next, nil
}

// UpdateEpoch publishes payload as the next epoch update
func (u *Updater) UpdateEpoch(ctx context.Context, topic Topic, payload []byte, hint *Epoch) (Epoch, error) {
	chunk, epoch, err := u.NextEpochChunk(ctx, topic, payload, hint)
	if err != nil {
		return Epoch{}, err
	}
	if err := u.put(ctx, topic, epoch, chunk); err != nil {
		return Epoch{}, err
	}
	return epoch, nil
}

// NextSequenceChunk builds, without storing, the chunk of the next
// sequence update
func (u *Updater) NextSequenceChunk(ctx context.Context, topic Topic, payload []byte, hint *Sequence) (*soc.SOC, Sequence, error) {
	last, found, err := u.sequences.Latest(ctx, u.signer.Address(), topic, hint)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to find last update: %w", err)
	}

	var next Sequence
	if found {
		prev, ok := last.Index.(Sequence)
		if !ok {
			return nil, 0, fmt.Errorf("last update has %T index", last.Index)
		}
		next = prev.Next()
	}

	chunk, err := NewChunk(u.signer, topic, next, uint64(u.clock.Now().Unix()), payload)
	if err != nil {
		return nil, 0, err
	}
	return chunk, next, nil
}

// UpdateSequence publishes payload as the next sequence update
func (u *Updater) UpdateSequence(ctx context.Context, topic Topic, payload []byte, hint *Sequence) (Sequence, error) {
	chunk, seq, err := u.NextSequenceChunk(ctx, topic, payload, hint)
	if err != nil {
		return 0, err
	}
	if err := u.put(ctx, topic, seq, chunk); err != nil {
		return 0, err
	}
	return seq, nil
}

func (u *Updater) put(ctx context.Context, topic Topic, idx Index, chunk *soc.SOC) error {
	if err := u.store.Put(ctx, chunk.Chunk()); err != nil {
		return fmt.Errorf("failed to store feed update %s: %w", idx, err)
	}

	u.log.WithFields(logrus.Fields{
		"owner":   u.signer.Address().Hex(),
		"topic":   topic.String(),
		"index":   idx.String(),
		"address": chunk.Address().String(),
	}).Info("feed updated")
	return nil
}
