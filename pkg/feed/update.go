package feed

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/WebFirstLanguage/swarmkit/pkg/cac"
	"github.com/WebFirstLanguage/swarmkit/pkg/constants"
	"github.com/WebFirstLanguage/swarmkit/pkg/identity"
	"github.com/WebFirstLanguage/swarmkit/pkg/soc"
	"github.com/WebFirstLanguage/swarmkit/pkg/swarm"
)

// Update is one parsed feed chunk
type Update struct {
	Owner     common.Address
	Topic     Topic
	Index     Index
	Timestamp uint64 // Unix seconds, epoch feeds only
	Payload   []byte
	Chunk     swarm.Chunk
}

// Address returns the SOC address of the update at idx
func Address(owner common.Address, topic Topic, idx Index) (swarm.Hash, error) {
	id, err := Identifier(topic, idx)
	if err != nil {
		return swarm.ZeroHash, err
	}
	return soc.CreateAddress(id, owner), nil
}

// NewChunk frames and signs the update at idx. Epoch updates carry an
// 8-byte big-endian timestamp before the payload; sequence updates carry
// the payload alone.
func NewChunk(signer identity.Signer, topic Topic, idx Index, timestamp uint64, payload []byte) (*soc.SOC, error) {
	var data []byte
	switch idx.(type) {
	case Epoch:
		data = make([]byte, constants.TimestampSize+len(payload))
		binary.BigEndian.PutUint64(data, timestamp)
		copy(data[constants.TimestampSize:], payload)
	case Sequence:
		data = payload
	default:
		return nil, swarm.NewValidationError(fmt.Sprintf("unknown feed index type %T", idx), nil)
	}

	inner, err := cac.New(data)
	if err != nil {
		return nil, fmt.Errorf("failed to frame feed update %s: %w", idx, err)
	}

	id, err := Identifier(topic, idx)
	if err != nil {
		return nil, err
	}

	unsigned, err := soc.New(id, signer.Address(), inner)
	if err != nil {
		return nil, err
	}
	return unsigned.Sign(signer)
}

// ParseChunk validates ch as the update of owner's feed at idx. A plain
// CAC is a validation error; a SOC that fails verification or belongs to
// another owner or index is an integrity error.
func ParseChunk(ch swarm.Chunk, owner common.Address, topic Topic, idx Index) (*Update, error) {
	addr := ch.Address()
	if cac.Valid(ch) {
		return nil, swarm.NewValidationError(
			fmt.Sprintf("expected feed chunk at %s, got a content addressed chunk", addr), nil)
	}

	s, err := soc.FromChunk(ch)
	if err != nil {
		return nil, err
	}
	if err := s.Verify(); err != nil {
		return nil, err
	}

	expected, err := Address(owner, topic, idx)
	if err != nil {
		return nil, err
	}
	if s.Address() != expected {
		return nil, swarm.NewIntegrityError(
			fmt.Sprintf("feed chunk is not the update of %s at index %s", owner.Hex(), idx), &addr, nil)
	}

	update := &Update{
		Owner: owner,
		Topic: topic,
		Index: idx,
		Chunk: ch,
	}

	payload := cac.Payload(s.Inner())
	switch idx.(type) {
	case Epoch:
		if len(payload) < constants.TimestampSize {
			return nil, swarm.NewValidationError(
				fmt.Sprintf("epoch feed payload too short for timestamp: %d bytes", len(payload)), nil)
		}
		update.Timestamp = binary.BigEndian.Uint64(payload)
		update.Payload = append([]byte(nil), payload[constants.TimestampSize:]...)
	default:
		update.Payload = append([]byte(nil), payload...)
	}

	return update, nil
}
