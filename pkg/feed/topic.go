package feed

import (
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/WebFirstLanguage/swarmkit/pkg/constants"
	"github.com/WebFirstLanguage/swarmkit/pkg/identity"
	"github.com/WebFirstLanguage/swarmkit/pkg/swarm"
)

// Topic names a feed within an owner's namespace
type Topic [constants.TopicSize]byte

// TopicFromString derives a topic from a human readable name. The name is
// NFC normalized first so that visually identical names map to one topic.
func TopicFromString(name string) Topic {
	return Topic(keccak([]byte(norm.NFC.String(name))))
}

// NewTopic wraps 32 raw bytes
func NewTopic(b []byte) (Topic, error) {
	var t Topic
	if len(b) != constants.TopicSize {
		return t, swarm.NewValidationError(
			fmt.Sprintf("invalid topic length: got %d, want %d", len(b), constants.TopicSize), nil)
	}
	copy(t[:], b)
	return t, nil
}

// ParseHexTopic parses a 64 character hex topic, with or without 0x prefix
func ParseHexTopic(s string) (Topic, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return Topic{}, swarm.NewValidationError("invalid topic hex", err)
	}
	return NewTopic(b)
}

// String returns the hex encoding
func (t Topic) String() string {
	return hex.EncodeToString(t[:])
}

func keccak(data ...[]byte) swarm.Hash {
	return identity.Keccak256(data...)
}
