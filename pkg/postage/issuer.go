package postage

import (
	"context"
	"fmt"
	"io"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	"github.com/WebFirstLanguage/swarmkit/pkg/constants"
	"github.com/WebFirstLanguage/swarmkit/pkg/identity"
	"github.com/WebFirstLanguage/swarmkit/pkg/swarm"
)

// ErrBucketFull is returned when a chunk's bucket has no capacity left
var ErrBucketFull = swarm.NewPreconditionError("postage bucket is full", nil)

// IssuerConfig configures an Issuer
type IssuerConfig struct {
	BatchID swarm.Hash
	Depth   uint8           // Batch depth, at least constants.MinBatchDepth
	Signer  identity.Signer // Batch owner
	Tracker *BucketTracker  // Existing utilization, nil for a fresh batch
	Clock   clock.Clock
	Logger  *logrus.Logger
}

// Issuer stamps chunks against one batch, tracking bucket utilization
type Issuer struct {
	batchID  swarm.Hash
	depth    uint8
	capacity uint32
	signer   identity.Signer
	tracker  *BucketTracker
	clock    clock.Clock
	log      *logrus.Logger
}

// NewIssuer creates an issuer for a batch
func NewIssuer(config IssuerConfig) (*Issuer, error) {
	if config.Depth < constants.MinBatchDepth {
		return nil, swarm.NewValidationError(
			fmt.Sprintf("batch depth %d below minimum %d", config.Depth, constants.MinBatchDepth), nil)
	}
	if config.Signer == nil {
		return nil, swarm.NewValidationError("issuer requires a signer", nil)
	}

	tracker := config.Tracker
	if tracker == nil {
		tracker = NewBucketTracker()
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.New()
	}
	logger := config.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	return &Issuer{
		batchID:  config.BatchID,
		depth:    config.Depth,
		capacity: BucketCapacity(config.Depth),
		signer:   config.Signer,
		tracker:  tracker,
		clock:    clk,
		log:      logger,
	}, nil
}

// Stamp takes the next slot in addr's bucket and signs a stamp for it
func (i *Issuer) Stamp(ctx context.Context, addr swarm.Hash) (*Stamp, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bucket := BucketID(addr)
	count, ok, err := i.tracker.TryIncrement(bucket, i.capacity)
	if err != nil {
		return nil, err
	}
	if !ok {
		i.log.WithFields(logrus.Fields{
			"batch":    i.batchID.String(),
			"bucket":   bucket,
			"capacity": i.capacity,
		}).Warn("bucket full")
		return nil, fmt.Errorf("%w: bucket %d holds %d chunks", ErrBucketFull, bucket, count)
	}

	index := IndexToUint64(bucket, count-1)
	timestamp := uint64(i.clock.Now().Unix())
	digest := Digest(addr, i.batchID, index, timestamp)
	sig, err := i.signer.Sign(digest[:])
	if err != nil {
		released := i.tracker.release(bucket, count)
		i.log.WithFields(logrus.Fields{
			"chunk":    addr.String(),
			"bucket":   bucket,
			"released": released,
		}).WithError(err).Warn("stamp signing failed")
		return nil, fmt.Errorf("failed to sign stamp for %s: %w", addr, err)
	}

	i.log.WithFields(logrus.Fields{
		"chunk":  addr.String(),
		"bucket": bucket,
		"index":  count - 1,
	}).Debug("chunk stamped")

	return NewStamp(i.batchID, bucket, count-1, timestamp, sig)
}

// Tracker returns the issuer's bucket tracker
func (i *Issuer) Tracker() *BucketTracker { return i.tracker }

// Depth returns the batch depth
func (i *Issuer) Depth() uint8 { return i.depth }

// Utilization returns the fullest bucket's count and the per-bucket capacity
func (i *Issuer) Utilization() (used, capacity uint32) {
	return i.tracker.MaxBucketCollisions(), i.capacity
}
