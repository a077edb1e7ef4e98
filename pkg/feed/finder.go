package feed

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/WebFirstLanguage/swarmkit/pkg/constants"
	"github.com/WebFirstLanguage/swarmkit/pkg/storage"
	"github.com/WebFirstLanguage/swarmkit/pkg/swarm"
)

// Config configures finders and updaters
type Config struct {
	LookupTimeout      time.Duration  // Bound on one whole lookup, zero for none
	SequenceProbeLimit uint64         // Forward probes per sequence lookup
	Logger             *logrus.Logger // Debug output of lookup phases
}

// DefaultConfig returns the default feed configuration
func DefaultConfig() *Config {
	return &Config{
		LookupTimeout:      constants.DefaultLookupTimeout,
		SequenceProbeLimit: constants.DefaultSequenceProbeLimit,
	}
}

func (c *Config) logger() *logrus.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// fetcher loads and parses feed chunks from a store
type fetcher struct {
	getter storage.Getter
	config *Config
	log    *logrus.Logger
}

func newFetcher(getter storage.Getter, config *Config) fetcher {
	if config == nil {
		config = DefaultConfig()
	}
	if config.SequenceProbeLimit == 0 {
		withLimit := *config
		withLimit.SequenceProbeLimit = constants.DefaultSequenceProbeLimit
		config = &withLimit
	}
	return fetcher{getter: getter, config: config, log: config.logger()}
}

func (f fetcher) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if f.config.LookupTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, f.config.LookupTimeout)
}

// fetch returns the update at idx. found is false when nothing is stored
// there; a stored chunk that does not parse is an error.
func (f fetcher) fetch(ctx context.Context, owner common.Address, topic Topic, idx Index) (*Update, bool, error) {
	addr, err := Address(owner, topic, idx)
	if err != nil {
		return nil, false, err
	}

	ch, err := f.getter.Get(ctx, addr)
	if swarm.IsNotFoundError(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to fetch feed update %s: %w", idx, err)
	}

	update, err := ParseChunk(ch, owner, topic, idx)
	if err != nil {
		return nil, false, err
	}
	return update, true, nil
}

// EpochFinder looks up epoch feed updates by time
type EpochFinder struct {
	fetcher
}

// NewEpochFinder creates a finder reading from getter
func NewEpochFinder(getter storage.Getter, config *Config) *EpochFinder {
	return &EpochFinder{fetcher: newFetcher(getter, config)}
}

// At returns the update with the greatest timestamp not after at. hint,
// if known, is an epoch near the expected result and saves round trips.
// found is false when the feed has no update at or before at.
func (f *EpochFinder) At(ctx context.Context, owner common.Address, topic Topic, at uint64, hint *Epoch) (update *Update, found bool, err error) {
	if at >= MaxTime {
		return nil, false, swarm.NewValidationError(fmt.Sprintf("time %d outside the epoch tree", at), nil)
	}

	ctx, cancel := f.withTimeout(ctx)
	defer cancel()

	log := f.log.WithFields(logrus.Fields{
		"owner": owner.Hex(),
		"topic": topic.String(),
		"at":    at,
	})

	// Phase 1: climb from the hint to an epoch containing at, offline
	epoch := TopEpoch()
	if hint != nil {
		epoch = *hint
	}
	for !epoch.ContainsTime(at) {
		if epoch.Level() == constants.EpochMaxLevel {
			if epoch.IsLeft() {
				epoch = epoch.Right()
			} else {
				epoch = epoch.Left()
			}
			break
		}
		if epoch, err = epoch.Parent(); err != nil {
			return nil, false, err
		}
	}
	log.WithField("epoch", epoch.String()).Debug("lookup anchored")

	// Phase 2: move earlier until some update at or before at is found
	var fetches int
	for {
		update, found, err = f.fetch(ctx, owner, topic, epoch)
		fetches++
		if err != nil {
			return nil, false, err
		}
		if found && update.Timestamp <= at {
			break
		}

		if epoch.IsRight() {
			epoch = epoch.Left()
			continue
		}
		if epoch.Level() == constants.EpochMaxLevel {
			log.WithField("fetches", fetches).Debug("no update at or before time")
			return nil, false, nil
		}
		if epoch, err = epoch.Parent(); err != nil {
			return nil, false, err
		}
	}
	log.WithFields(logrus.Fields{
		"epoch":   epoch.String(),
		"fetches": fetches,
	}).Debug("lookup re-anchored")

	// Phase 3: descend towards at while children hold earlier-or-equal updates
	for epoch.Level() > 0 {
		target := at
		if !epoch.ContainsTime(target) {
			target = epoch.End() - 1
		}

		child, err := epoch.ChildAt(target)
		if err != nil {
			return nil, false, err
		}

		next, ok, err := f.fetch(ctx, owner, topic, child)
		fetches++
		if err != nil {
			return nil, false, err
		}
		if ok && next.Timestamp <= at {
			epoch, update = child, next
			continue
		}

		if child.IsRight() {
			sibling := child.Left()
			next, ok, err = f.fetch(ctx, owner, topic, sibling)
			fetches++
			if err != nil {
				return nil, false, err
			}
			if ok && next.Timestamp <= at {
				epoch, update = sibling, next
				continue
			}
		}
		break
	}

	log.WithFields(logrus.Fields{
		"epoch":     epoch.String(),
		"timestamp": update.Timestamp,
		"fetches":   fetches,
	}).Debug("lookup resolved")

	return update, true, nil
}

// SequenceFinder looks up the latest sequence feed update
type SequenceFinder struct {
	fetcher
}

// NewSequenceFinder creates a finder reading from getter
func NewSequenceFinder(getter storage.Getter, config *Config) *SequenceFinder {
	return &SequenceFinder{fetcher: newFetcher(getter, config)}
}

// Latest probes forward from hint (or 0) and returns the last update
// before the first gap. A hint past the last update falls back to probing
// from 0. found is false only when the feed has no update at 0. Probing
// SequenceProbeLimit updates without reaching a gap is ErrIndexExhausted.
func (f *SequenceFinder) Latest(ctx context.Context, owner common.Address, topic Topic, hint *Sequence) (*Update, bool, error) {
	ctx, cancel := f.withTimeout(ctx)
	defer cancel()

	var start Sequence
	if hint != nil {
		start = *hint
	}

	latest, next, err := f.probe(ctx, owner, topic, start)
	if err != nil {
		return nil, false, err
	}
	if latest == nil && start > 0 {
		f.log.WithFields(logrus.Fields{
			"owner": owner.Hex(),
			"topic": topic.String(),
			"hint":  start.String(),
		}).Debug("hint past the last update, probing from 0")

		if latest, next, err = f.probe(ctx, owner, topic, 0); err != nil {
			return nil, false, err
		}
	}

	f.log.WithFields(logrus.Fields{
		"owner": owner.Hex(),
		"topic": topic.String(),
		"found": latest != nil,
		"next":  next.String(),
	}).Debug("sequence lookup done")

	return latest, latest != nil, nil
}

// probe walks forward from idx to the first gap and returns the update
// before it, nil if idx itself is empty, and the first free index
func (f *SequenceFinder) probe(ctx context.Context, owner common.Address, topic Topic, idx Sequence) (*Update, Sequence, error) {
	start := idx

	var latest *Update
	for probes := uint64(0); probes < f.config.SequenceProbeLimit; probes++ {
		update, found, err := f.fetch(ctx, owner, topic, idx)
		if err != nil {
			return nil, idx, err
		}
		if !found {
			return latest, idx, nil
		}
		latest = update
		idx = idx.Next()
	}
	return nil, idx, fmt.Errorf("%w: %d updates from %s without a gap",
		ErrIndexExhausted, f.config.SequenceProbeLimit, start)
}
