package feed

import (
	"encoding/binary"
	"fmt"

	"github.com/WebFirstLanguage/swarmkit/pkg/constants"
	"github.com/WebFirstLanguage/swarmkit/pkg/swarm"
)

// MaxTime is the first unix second outside the epoch tree
const MaxTime = uint64(1) << (constants.EpochMaxLevel + 1)

// Epoch is the interval [start, start+2^level) of unix seconds. Epochs
// form a binary tree: the two level-32 epochs at the top halve down to
// one-second epochs at level 0.
type Epoch struct {
	start uint64
	level uint8
}

func (Epoch) isIndex() {}

// NewEpoch returns the epoch at level containing start. start is
// truncated to a multiple of 2^level.
func NewEpoch(start uint64, level uint8) (Epoch, error) {
	if level > constants.EpochMaxLevel {
		return Epoch{}, swarm.NewValidationError(
			fmt.Sprintf("epoch level %d exceeds %d", level, constants.EpochMaxLevel), nil)
	}
	if start >= MaxTime {
		return Epoch{}, swarm.NewValidationError(
			fmt.Sprintf("epoch start %d outside the epoch tree", start), nil)
	}
	return Epoch{start: start >> level << level, level: level}, nil
}

// MustNewEpoch is NewEpoch for constant arguments
func MustNewEpoch(start uint64, level uint8) Epoch {
	e, err := NewEpoch(start, level)
	if err != nil {
		panic(err)
	}
	return e
}

// TopEpoch is the first level-32 epoch, where lookups and updaters start
func TopEpoch() Epoch {
	return Epoch{start: 0, level: constants.EpochMaxLevel}
}

// Start returns the first second of the epoch
func (e Epoch) Start() uint64 { return e.start }

// Level returns the epoch level
func (e Epoch) Level() uint8 { return e.level }

// Length returns 2^level
func (e Epoch) Length() uint64 { return uint64(1) << e.level }

// End returns the first second after the epoch
func (e Epoch) End() uint64 { return e.start + e.Length() }

// IsLeft reports whether the epoch is the earlier half of its parent
func (e Epoch) IsLeft() bool { return e.start&e.Length() == 0 }

// IsRight reports whether the epoch is the later half of its parent
func (e Epoch) IsRight() bool { return !e.IsLeft() }

// ContainsTime reports whether at falls in [start, start+length)
func (e Epoch) ContainsTime(at uint64) bool {
	return at >= e.start && at < e.End()
}

// Left returns the preceding epoch at the same level. For a right epoch
// this is its sibling; the first epoch of a level has no left and is
// returned unchanged.
func (e Epoch) Left() Epoch {
	if e.start < e.Length() {
		return e
	}
	return Epoch{start: e.start - e.Length(), level: e.level}
}

// Right returns the following epoch at the same level. The last epoch of a
// level has no right and is returned unchanged.
func (e Epoch) Right() Epoch {
	if e.End() >= MaxTime {
		return e
	}
	return Epoch{start: e.End(), level: e.level}
}

// Parent returns the enclosing epoch one level up
func (e Epoch) Parent() (Epoch, error) {
	if e.level == constants.EpochMaxLevel {
		return Epoch{}, fmt.Errorf("%w: epoch %s has no parent", ErrIndexExhausted, e)
	}
	level := e.level + 1
	return Epoch{start: e.start >> level << level, level: level}, nil
}

// ChildAt returns the half of the epoch that contains at
func (e Epoch) ChildAt(at uint64) (Epoch, error) {
	if e.level == 0 {
		return Epoch{}, fmt.Errorf("%w: epoch %s has no children", ErrIndexExhausted, e)
	}
	if !e.ContainsTime(at) {
		return Epoch{}, swarm.NewPreconditionError(
			fmt.Sprintf("time %d outside epoch %s", at, e), nil)
	}
	half := e.Length() >> 1
	return Epoch{start: e.start | (at & half), level: e.level - 1}, nil
}

// Next returns the epoch for an update published at time at after one
// published at e. While at stays inside e the next update goes one level
// down; otherwise it goes to the child of the lowest common ancestor of e
// and at that contains at.
func (e Epoch) Next(at uint64) (Epoch, error) {
	if e.ContainsTime(at) {
		return e.ChildAt(at)
	}
	if at >= MaxTime {
		return Epoch{}, swarm.NewValidationError(fmt.Sprintf("time %d outside the epoch tree", at), nil)
	}
	lca := LowestCommonAncestor(e.start, at)
	if !lca.ContainsTime(e.start) {
		// e and at lie in different top level epochs; lookups anchor on
		// the top level epoch itself, so the update goes there
		return lca, nil
	}
	return lca.ChildAt(at)
}

// LowestCommonAncestor returns the lowest epoch containing both t0 and t1.
// If the two are further apart than a top level epoch, the top level epoch
// containing t1 is returned.
func LowestCommonAncestor(t0, t1 uint64) Epoch {
	level := uint8(0)
	for level < constants.EpochMaxLevel && t0>>level != t1>>level {
		level++
	}
	return Epoch{start: t1 >> level << level, level: level}
}

// MarshalBinary returns Keccak(start as 8 big-endian bytes ‖ level)
func (e Epoch) MarshalBinary() ([]byte, error) {
	b := make([]byte, 9)
	binary.BigEndian.PutUint64(b, e.start)
	b[8] = e.level
	h := keccak(b)
	return h[:], nil
}

// String implements fmt.Stringer
func (e Epoch) String() string {
	return fmt.Sprintf("%d/%d", e.start, e.level)
}
