// Package postage implements the client side of postage batches: the
// per-bucket collision tracker that bounds how many chunks a batch may
// stamp, the stamp wire format and a stamp issuer.
package postage

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/bits"
	"sort"
	"sync"

	"github.com/WebFirstLanguage/swarmkit/pkg/codec/cborcanon"
	"github.com/WebFirstLanguage/swarmkit/pkg/constants"
	"github.com/WebFirstLanguage/swarmkit/pkg/swarm"
)

// BucketID returns the bucket of a chunk address: its leading BucketDepth bits
func BucketID(addr swarm.Hash) uint32 {
	return binary.BigEndian.Uint32(addr[:4]) >> (32 - constants.BucketDepth)
}

// BucketCapacity returns the number of chunks each bucket of a batch of
// the given depth may hold
func BucketCapacity(batchDepth uint8) uint32 {
	if batchDepth <= constants.BucketDepth {
		return 1
	}
	return uint32(1) << (batchDepth - constants.BucketDepth)
}

// BucketTracker counts collisions per bucket. A reverse index from count
// to the set of buckets holding that count keeps the minimum and maximum
// available without scanning all buckets. Every mutation updates the
// counters, the index, the extremes and the total under one write lock.
type BucketTracker struct {
	mu           sync.RWMutex
	buckets      []uint32
	byCollisions map[uint32]map[uint32]struct{}
	min, max     uint32
	totalChunks  uint64
}

// NewBucketTracker returns a tracker with every bucket empty
func NewBucketTracker() *BucketTracker {
	t, _ := NewBucketTrackerFrom(make([]uint32, constants.BucketsCount))
	return t
}

// NewBucketTrackerFrom seeds a tracker with existing per-bucket counts
func NewBucketTrackerFrom(counts []uint32) (*BucketTracker, error) {
	if len(counts) != constants.BucketsCount {
		return nil, swarm.NewValidationError(
			fmt.Sprintf("invalid bucket count: got %d, want %d", len(counts), constants.BucketsCount), nil)
	}

	t := &BucketTracker{
		buckets:      make([]uint32, constants.BucketsCount),
		byCollisions: make(map[uint32]map[uint32]struct{}),
	}
	copy(t.buckets, counts)

	for id, count := range t.buckets {
		t.addToSet(count, uint32(id))
		t.totalChunks += uint64(count)
	}
	t.min = t.lowestCount()
	t.max = t.highestCount()
	return t, nil
}

func checkBucket(id uint32) error {
	if id >= constants.BucketsCount {
		return swarm.NewValidationError(
			fmt.Sprintf("bucket %d out of range [0, %d)", id, constants.BucketsCount), nil)
	}
	return nil
}

func (t *BucketTracker) addToSet(count, id uint32) {
	set, ok := t.byCollisions[count]
	if !ok {
		set = make(map[uint32]struct{})
		t.byCollisions[count] = set
	}
	set[id] = struct{}{}
}

func (t *BucketTracker) removeFromSet(count, id uint32) {
	set := t.byCollisions[count]
	delete(set, id)
	if len(set) == 0 {
		delete(t.byCollisions, count)
	}
}

func (t *BucketTracker) lowestCount() uint32 {
	first := true
	var lowest uint32
	for count := range t.byCollisions {
		if first || count < lowest {
			lowest, first = count, false
		}
	}
	return lowest
}

func (t *BucketTracker) highestCount() uint32 {
	var highest uint32
	for count := range t.byCollisions {
		if count > highest {
			highest = count
		}
	}
	return highest
}

// IncrementCollisions records one more chunk in bucket id and returns the
// bucket's new count
func (t *BucketTracker) IncrementCollisions(id uint32) (uint32, error) {
	if err := checkBucket(id); err != nil {
		return 0, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.buckets[id] == math.MaxUint32 {
		return t.buckets[id], swarm.NewPreconditionError(
			fmt.Sprintf("bucket %d holds the maximum count", id), nil)
	}
	return t.increment(id), nil
}

// TryIncrement increments bucket id only if it holds fewer than limit
// chunks. ok is false when the bucket is already at the limit.
func (t *BucketTracker) TryIncrement(id, limit uint32) (count uint32, ok bool, err error) {
	if err := checkBucket(id); err != nil {
		return 0, false, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.buckets[id] >= limit {
		return t.buckets[id], false, nil
	}
	return t.increment(id), true, nil
}

func (t *BucketTracker) increment(id uint32) uint32 {
	old := t.buckets[id]
	count := old + 1

	t.removeFromSet(old, id)
	t.addToSet(count, id)
	t.buckets[id] = count

	if count > t.max {
		t.max = count
	}
	if old == t.min {
		t.min = t.lowestCount()
	}
	t.totalChunks++
	return count
}

// release undoes the increment that brought bucket id to count. It does
// nothing once a later increment or a reset has changed the bucket.
func (t *BucketTracker) release(id, count uint32) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if count == 0 || t.buckets[id] != count {
		return false
	}

	t.removeFromSet(count, id)
	t.addToSet(count-1, id)
	t.buckets[id] = count - 1

	if count-1 < t.min {
		t.min = count - 1
	}
	if count == t.max {
		t.max = t.highestCount()
	}
	t.totalChunks--
	return true
}

// ResetBucketCollisions empties bucket id. The chunk total is kept.
func (t *BucketTracker) ResetBucketCollisions(id uint32) error {
	if err := checkBucket(id); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.removeFromSet(t.buckets[id], id)
	t.addToSet(0, id)
	t.buckets[id] = 0

	t.max = t.highestCount()
	t.min = 0
	return nil
}

// GetCollisions returns the count of bucket id
func (t *BucketTracker) GetCollisions(id uint32) (uint32, error) {
	if err := checkBucket(id); err != nil {
		return 0, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.buckets[id], nil
}

// GetBuckets returns a copy of all counts, indexed by bucket
func (t *BucketTracker) GetBuckets() []uint32 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]uint32, len(t.buckets))
	copy(out, t.buckets)
	return out
}

// GetBucketsByCollisions returns, for every count in use, the sorted ids
// of the buckets holding it
func (t *BucketTracker) GetBucketsByCollisions() map[uint32][]uint32 {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[uint32][]uint32, len(t.byCollisions))
	for count, set := range t.byCollisions {
		ids := make([]uint32, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		out[count] = ids
	}
	return out
}

// MinBucketCollisions returns the lowest count of any bucket
func (t *BucketTracker) MinBucketCollisions() uint32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.min
}

// MaxBucketCollisions returns the highest count of any bucket
func (t *BucketTracker) MaxBucketCollisions() uint32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.max
}

// TotalChunks returns the number of increments ever recorded
func (t *BucketTracker) TotalChunks() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.totalChunks
}

// RequiredBatchDepth returns the shallowest batch depth whose bucket
// capacity fits the fullest bucket
func (t *BucketTracker) RequiredBatchDepth() uint8 {
	fullest := t.MaxBucketCollisions()
	depth := constants.BucketDepth
	if fullest > 1 {
		depth += uint8(bits.Len32(fullest - 1))
	}
	if depth < constants.MinBatchDepth {
		depth = constants.MinBatchDepth
	}
	return depth
}

// IsFull reports whether some bucket has reached the capacity of a batch
// of the given depth
func (t *BucketTracker) IsFull(batchDepth uint8) bool {
	return t.MaxBucketCollisions() >= BucketCapacity(batchDepth)
}

// snapshot is the persisted form of a tracker
type snapshot struct {
	Buckets     []uint32 `cbor:"buckets"`
	TotalChunks uint64   `cbor:"total_chunks"`
}

// Snapshot encodes the tracker as canonical CBOR
func (t *BucketTracker) Snapshot() ([]byte, error) {
	t.mu.RLock()
	s := snapshot{
		Buckets:     make([]uint32, len(t.buckets)),
		TotalChunks: t.totalChunks,
	}
	copy(s.Buckets, t.buckets)
	t.mu.RUnlock()

	data, err := cborcanon.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode bucket snapshot: %w", err)
	}
	return data, nil
}

// RestoreBucketTracker rebuilds a tracker from Snapshot output
func RestoreBucketTracker(data []byte) (*BucketTracker, error) {
	var s snapshot
	if err := cborcanon.UnmarshalCanonical(data, &s); err != nil {
		return nil, swarm.NewValidationError("invalid bucket snapshot", err)
	}

	t, err := NewBucketTrackerFrom(s.Buckets)
	if err != nil {
		return nil, err
	}
	if s.TotalChunks < t.totalChunks {
		return nil, swarm.NewIntegrityError(
			fmt.Sprintf("snapshot total %d below bucket sum %d", s.TotalChunks, t.totalChunks), nil, nil)
	}
	t.totalChunks = s.TotalChunks
	return t, nil
}
