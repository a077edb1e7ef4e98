package postage

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/WebFirstLanguage/swarmkit/pkg/constants"
	"github.com/WebFirstLanguage/swarmkit/pkg/identity"
	"github.com/WebFirstLanguage/swarmkit/pkg/swarm"
)

// Stamp attaches a chunk to a postage batch:
//
//	batchID (32) ‖ bucket ‖ index (4 + 4) ‖ timestamp (8) ‖ signature (65)
//
// all integers big-endian.
type Stamp struct {
	batchID   swarm.Hash
	index     uint64
	timestamp uint64
	signature []byte
}

// NewStamp assembles a stamp from its fields
func NewStamp(batchID swarm.Hash, bucket, indexInBucket uint32, timestamp uint64, sig []byte) (*Stamp, error) {
	if len(sig) != constants.SignatureSize {
		return nil, swarm.NewValidationError(
			fmt.Sprintf("invalid stamp signature size: got %d, want %d", len(sig), constants.SignatureSize), nil)
	}
	return &Stamp{
		batchID:   batchID,
		index:     IndexToUint64(bucket, indexInBucket),
		timestamp: timestamp,
		signature: append([]byte(nil), sig...),
	}, nil
}

// IndexToUint64 packs a bucket and a position within it
func IndexToUint64(bucket, indexInBucket uint32) uint64 {
	return uint64(bucket)<<32 | uint64(indexInBucket)
}

// BatchID returns the batch the stamp draws on
func (s *Stamp) BatchID() swarm.Hash { return s.batchID }

// Index returns bucket<<32 | index in bucket
func (s *Stamp) Index() uint64 { return s.index }

// Bucket returns the bucket half of the index
func (s *Stamp) Bucket() uint32 { return uint32(s.index >> 32) }

// IndexInBucket returns the position half of the index
func (s *Stamp) IndexInBucket() uint32 { return uint32(s.index) }

// Timestamp returns the issue time in unix seconds
func (s *Stamp) Timestamp() uint64 { return s.timestamp }

// Signature returns a copy of the issuer's signature
func (s *Stamp) Signature() []byte { return append([]byte(nil), s.signature...) }

// MarshalBinary returns the wire encoding
func (s *Stamp) MarshalBinary() ([]byte, error) {
	buf := make([]byte, constants.StampSize)
	copy(buf, s.batchID[:])
	cursor := constants.BatchIDSize
	binary.BigEndian.PutUint64(buf[cursor:], s.index)
	cursor += constants.StampIndexSize
	binary.BigEndian.PutUint64(buf[cursor:], s.timestamp)
	cursor += constants.StampTimestampSize
	copy(buf[cursor:], s.signature)
	return buf, nil
}

// UnmarshalBinary parses the wire encoding
func (s *Stamp) UnmarshalBinary(data []byte) error {
	if len(data) != constants.StampSize {
		return swarm.NewValidationError(
			fmt.Sprintf("invalid stamp size: got %d, want %d", len(data), constants.StampSize), nil)
	}

	copy(s.batchID[:], data[:constants.BatchIDSize])
	cursor := constants.BatchIDSize
	s.index = binary.BigEndian.Uint64(data[cursor:])
	cursor += constants.StampIndexSize
	s.timestamp = binary.BigEndian.Uint64(data[cursor:])
	cursor += constants.StampTimestampSize
	s.signature = append([]byte(nil), data[cursor:]...)
	return nil
}

// ParseStamp is UnmarshalBinary into a new Stamp
func ParseStamp(data []byte) (*Stamp, error) {
	s := new(Stamp)
	if err := s.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return s, nil
}

// Digest returns Keccak(chunk ‖ batchID ‖ index ‖ timestamp), the message
// the batch owner signs
func Digest(chunkAddr, batchID swarm.Hash, index, timestamp uint64) swarm.Hash {
	var ints [16]byte
	binary.BigEndian.PutUint64(ints[:8], index)
	binary.BigEndian.PutUint64(ints[8:], timestamp)
	return identity.Keccak256(chunkAddr[:], batchID[:], ints[:])
}

// Owner recovers the address that signed the stamp for chunkAddr
func (s *Stamp) Owner(chunkAddr swarm.Hash) (common.Address, error) {
	digest := Digest(chunkAddr, s.batchID, s.index, s.timestamp)
	return identity.RecoverAddress(s.signature, digest[:])
}

// Verify checks that the stamp was issued for chunkAddr by owner and that
// its bucket is the chunk's bucket
func (s *Stamp) Verify(chunkAddr swarm.Hash, owner common.Address) error {
	if bucket := BucketID(chunkAddr); s.Bucket() != bucket {
		return swarm.NewIntegrityError(
			fmt.Sprintf("stamp bucket %d, chunk bucket %d", s.Bucket(), bucket), &chunkAddr, nil)
	}

	signer, err := s.Owner(chunkAddr)
	if err != nil {
		return err
	}
	if signer != owner {
		return swarm.NewIntegrityError(
			fmt.Sprintf("stamp signed by %s, batch owner is %s", signer.Hex(), owner.Hex()), &chunkAddr, nil)
	}
	return nil
}
