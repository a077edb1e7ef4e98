package bmt

import (
	"bytes"
	"fmt"

	"golang.org/x/crypto/sha3"

	"github.com/WebFirstLanguage/swarmkit/pkg/constants"
	"github.com/WebFirstLanguage/swarmkit/pkg/swarm"
)

// Proof shows that Segment sits at SegmentIndex of a chunk with the given
// span. Siblings run leaf to root; a node carried up unpaired contributes
// no entry for that layer.
type Proof struct {
	SegmentIndex int
	Segment      swarm.Hash
	Siblings     []swarm.Hash
	Span         [constants.SpanSize]byte
}

// Proof returns the inclusion proof for the segment at index
func (h *Hasher) Proof(index int) (Proof, error) {
	if !h.hashed {
		return Proof{}, ErrNotHashed
	}
	if index < 0 || index >= len(h.layers[0]) {
		return Proof{}, swarm.NewNotFoundError(fmt.Sprintf("segment %d not in tree", index), nil)
	}

	siblings := make([]swarm.Hash, 0, len(h.layers)-1)
	i := index
	for _, layer := range h.layers[:len(h.layers)-1] {
		if sib := i ^ 1; sib < len(layer) {
			siblings = append(siblings, layer[sib])
		}
		i /= 2
	}

	return Proof{
		SegmentIndex: index,
		Segment:      h.leaves[index],
		Siblings:     siblings,
		Span:         h.span,
	}, nil
}

// ProofForSegment finds the first leaf equal to segment (zero-padded to 32
// bytes) and returns its proof.
func (h *Hasher) ProofForSegment(segment []byte) (Proof, error) {
	if !h.hashed {
		return Proof{}, ErrNotHashed
	}
	if len(segment) > constants.SegmentSize {
		return Proof{}, swarm.NewValidationError(
			fmt.Sprintf("segment too long: got %d, want at most %d", len(segment), constants.SegmentSize), nil)
	}

	var leaf swarm.Hash
	copy(leaf[:], segment)
	for i := range h.leaves {
		if h.leaves[i] == leaf {
			return h.Proof(i)
		}
	}
	return Proof{}, swarm.NewNotFoundError("segment not in tree", nil)
}

// VerifyProof folds siblings onto leaf and compares with the current root
func (h *Hasher) VerifyProof(siblings []swarm.Hash, index int, leaf swarm.Hash) bool {
	if !h.hashed {
		return false
	}
	root, ok := RootFromProof(index, leaf, siblings)
	return ok && root == h.root
}

// RootFromProof rebuilds the tree root from a leaf and its siblings. At
// every layer the accumulated node is the left operand when the node index
// is even. ok is false if the proof has the wrong length for the tree.
func RootFromProof(index int, leaf swarm.Hash, siblings []swarm.Hash) (root swarm.Hash, ok bool) {
	if index < 0 || index >= constants.SegmentsCount {
		return swarm.ZeroHash, false
	}

	keccak := sha3.NewLegacyKeccak256()
	acc := leaf
	next := 0
	for width := constants.SegmentsCount; width > 1; width = (width + 1) / 2 {
		if sib := index ^ 1; sib < width {
			if next >= len(siblings) {
				return swarm.ZeroHash, false
			}
			keccak.Reset()
			if index%2 == 0 {
				keccak.Write(acc[:])
				keccak.Write(siblings[next][:])
			} else {
				keccak.Write(siblings[next][:])
				keccak.Write(acc[:])
			}
			keccak.Sum(acc[:0])
			next++
		}
		index /= 2
	}

	return acc, next == len(siblings)
}

// Verify checks the proof against a chunk address
func (p Proof) Verify(addr swarm.Hash) bool {
	root, ok := RootFromProof(p.SegmentIndex, p.Segment, p.Siblings)
	if !ok {
		return false
	}

	keccak := sha3.NewLegacyKeccak256()
	keccak.Write(p.Span[:])
	keccak.Write(root[:])
	return bytes.Equal(keccak.Sum(nil), addr[:])
}
