package feed

import (
	"encoding/binary"
	"strconv"
)

// Sequence indexes updates 0, 1, 2, ...
type Sequence uint64

func (Sequence) isIndex() {}

// Next returns the following sequence number
func (s Sequence) Next() Sequence {
	return s + 1
}

// MarshalBinary encodes the counter as 8 big-endian bytes
func (s Sequence) MarshalBinary() ([]byte, error) {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(s))
	return b, nil
}

// String implements fmt.Stringer
func (s Sequence) String() string {
	return strconv.FormatUint(uint64(s), 10)
}
