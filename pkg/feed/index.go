// Package feed implements mutable-by-owner feeds on top of single owner
// chunks. A feed is the sequence of SOCs an owner publishes under a topic;
// each update sits at the identifier Keccak(topic ‖ index), where the index
// is either a monotonic Sequence or a time based Epoch.
package feed

import (
	"fmt"

	"github.com/WebFirstLanguage/swarmkit/pkg/swarm"
)

// ErrIndexExhausted is returned when no further index can be derived,
// for example a second update within the same second at epoch level 0
var ErrIndexExhausted = swarm.NewPreconditionError("feed index exhausted", nil)

// Index is a feed index. Exactly two implementations exist, Sequence and
// Epoch; callers dispatch with a type switch.
type Index interface {
	fmt.Stringer

	// MarshalBinary returns the bytes hashed with the topic into the identifier
	MarshalBinary() ([]byte, error)

	isIndex()
}

// Next returns the index following idx for an update published at time at.
// Sequence indexes ignore at.
func Next(idx Index, at uint64) (Index, error) {
	switch i := idx.(type) {
	case Sequence:
		return i.Next(), nil
	case Epoch:
		return i.Next(at)
	default:
		return nil, swarm.NewValidationError(fmt.Sprintf("unknown feed index type %T", idx), nil)
	}
}

// Identifier returns Keccak(topic ‖ index binary), the SOC identifier of
// the update at idx
func Identifier(topic Topic, idx Index) (swarm.Hash, error) {
	b, err := idx.MarshalBinary()
	if err != nil {
		return swarm.ZeroHash, fmt.Errorf("failed to marshal feed index %s: %w", idx, err)
	}
	return keccak(topic[:], b), nil
}
