// Package soc implements single owner chunks. A SOC wraps a content
// addressed chunk under an identifier chosen by its owner and carries the
// owner's signature over both:
//
//	identifier (32) ‖ signature (65) ‖ span (8) ‖ data (≤4096)
//
// Its address is Keccak(identifier ‖ owner), so the owner can publish new
// content at an address that readers can derive in advance.
//
// A SOC is built in two steps: New declares the identifier, owner and inner
// chunk as an Unsigned value and Sign converts it into a SOC. Only the
// signed form can be serialized.
package soc

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/WebFirstLanguage/swarmkit/pkg/cac"
	"github.com/WebFirstLanguage/swarmkit/pkg/constants"
	"github.com/WebFirstLanguage/swarmkit/pkg/identity"
	"github.com/WebFirstLanguage/swarmkit/pkg/swarm"
)

// ReplicasOwner owns every dispersed replica. Its private key is public
// (0x01 followed by 31 zero bytes), so replica identifiers are constrained
// to the replicated chunk's address instead.
var ReplicasOwner = common.HexToAddress("dc5b20847f43d67928f49cd4f85d696b5a7617b5")

var (
	// ErrOwnerMismatch is returned when signing with a key that is not the declared owner
	ErrOwnerMismatch = swarm.NewPreconditionError("signer address does not match chunk owner", nil)

	// ErrInvalidSize is returned for wire data outside the SOC size bounds
	ErrInvalidSize = swarm.NewValidationError("invalid single owner chunk size", nil)
)

// Unsigned is a SOC before its owner has signed it
type Unsigned struct {
	id    swarm.Hash
	owner common.Address
	inner swarm.Chunk
}

// New declares a SOC. The inner chunk must be a valid CAC.
func New(id swarm.Hash, owner common.Address, inner swarm.Chunk) (*Unsigned, error) {
	if !cac.Valid(inner) {
		return nil, swarm.NewValidationError(
			fmt.Sprintf("inner chunk %s is not a valid content addressed chunk", inner.Address()), nil)
	}
	return &Unsigned{id: id, owner: owner, inner: inner}, nil
}

// ID returns the identifier
func (u *Unsigned) ID() swarm.Hash { return u.id }

// Owner returns the declared owner
func (u *Unsigned) Owner() common.Address { return u.owner }

// Address returns the address the SOC will have once signed
func (u *Unsigned) Address() swarm.Hash {
	return CreateAddress(u.id, u.owner)
}

// Sign signs the SOC digest. The signer must be the declared owner.
func (u *Unsigned) Sign(signer identity.Signer) (*SOC, error) {
	if signer.Address() != u.owner {
		return nil, fmt.Errorf("%w: signer %s, owner %s", ErrOwnerMismatch, signer.Address().Hex(), u.owner.Hex())
	}

	digest := Digest(u.id, u.inner.Address())
	sig, err := signer.Sign(digest[:])
	if err != nil {
		return nil, fmt.Errorf("failed to sign chunk %s: %w", u.Address(), err)
	}
	if len(sig) != constants.SignatureSize {
		return nil, swarm.NewValidationError(
			fmt.Sprintf("invalid signature size: got %d, want %d", len(sig), constants.SignatureSize), nil)
	}

	return &SOC{
		id:        u.id,
		owner:     u.owner,
		signature: sig,
		inner:     u.inner,
	}, nil
}

// SOC is a signed single owner chunk
type SOC struct {
	id        swarm.Hash
	owner     common.Address
	signature []byte
	inner     swarm.Chunk

	// claimed is the address the chunk was fetched under, if any
	claimed *swarm.Hash
}

// ID returns the identifier
func (s *SOC) ID() swarm.Hash { return s.id }

// Owner returns the owner address
func (s *SOC) Owner() common.Address { return s.owner }

// Signature returns a copy of the 65-byte signature
func (s *SOC) Signature() []byte {
	return append([]byte(nil), s.signature...)
}

// Inner returns the wrapped content addressed chunk
func (s *SOC) Inner() swarm.Chunk { return s.inner }

// Address returns Keccak(identifier ‖ owner)
func (s *SOC) Address() swarm.Hash {
	return CreateAddress(s.id, s.owner)
}

// Bytes returns the wire encoding
func (s *SOC) Bytes() []byte {
	inner := s.inner.Data()
	buf := make([]byte, 0, constants.IdentifierSize+constants.SignatureSize+len(inner))
	buf = append(buf, s.id[:]...)
	buf = append(buf, s.signature...)
	buf = append(buf, inner...)
	return buf
}

// Chunk returns the SOC as a storable chunk
func (s *SOC) Chunk() swarm.Chunk {
	return swarm.NewChunk(s.Address(), s.Bytes())
}

// Verify runs every validity check and reports the first that fails
func (s *SOC) Verify() error {
	addr := s.Address()
	if s.claimed != nil && *s.claimed != addr {
		return swarm.NewIntegrityError(
			fmt.Sprintf("address mismatch, derived %s", addr), s.claimed, nil)
	}

	digest := Digest(s.id, s.inner.Address())
	recovered, err := identity.RecoverAddress(s.signature, digest[:])
	if err != nil {
		return err
	}
	if recovered != s.owner {
		return swarm.NewIntegrityError(
			fmt.Sprintf("signature recovers to %s, owner is %s", recovered.Hex(), s.owner.Hex()), &addr, nil)
	}

	if s.owner == ReplicasOwner {
		innerAddr := s.inner.Address()
		if !bytes.Equal(innerAddr[1:], s.id[1:]) {
			return swarm.NewIntegrityError("replica identifier does not match inner chunk", &addr, nil)
		}
	}

	return nil
}

// Valid reports whether Verify passes
func (s *SOC) Valid() bool {
	return s.Verify() == nil
}

// FromChunk parses a chunk's wire bytes, remembering the chunk address so
// that Verify checks it.
func FromChunk(ch swarm.Chunk) (*SOC, error) {
	addr := ch.Address()
	return FromBytes(&addr, ch.Data())
}

// FromBytes parses wire bytes and recovers the owner from the signature.
// addr, when not nil, is the address the bytes were fetched under.
func FromBytes(addr *swarm.Hash, data []byte) (*SOC, error) {
	if len(data) < constants.SocMinChunkSize || len(data) > constants.SocMaxChunkSize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidSize, len(data))
	}

	var id swarm.Hash
	copy(id[:], data[:constants.IdentifierSize])
	cursor := constants.IdentifierSize

	sig := make([]byte, constants.SignatureSize)
	copy(sig, data[cursor:cursor+constants.SignatureSize])
	cursor += constants.SignatureSize

	spanData := data[cursor:]
	innerAddr, err := cac.Hash(spanData)
	if err != nil {
		return nil, err
	}

	digest := Digest(id, innerAddr)
	owner, err := identity.RecoverAddress(sig, digest[:])
	if err != nil {
		return nil, err
	}

	s := &SOC{
		id:        id,
		owner:     owner,
		signature: sig,
		inner:     swarm.NewChunk(innerAddr, spanData),
	}
	if addr != nil {
		claimed := *addr
		s.claimed = &claimed
	}
	return s, nil
}

// Valid reports whether ch is a well-formed SOC stored at its own address
func Valid(ch swarm.Chunk) bool {
	s, err := FromChunk(ch)
	if err != nil {
		return false
	}
	return s.Valid()
}

// CreateAddress returns Keccak(identifier ‖ owner)
func CreateAddress(id swarm.Hash, owner common.Address) swarm.Hash {
	return identity.Keccak256(id[:], owner[:])
}

// Digest returns Keccak(identifier ‖ inner address), the message the owner signs
func Digest(id, innerAddr swarm.Hash) swarm.Hash {
	return identity.Keccak256(id[:], innerAddr[:])
}
