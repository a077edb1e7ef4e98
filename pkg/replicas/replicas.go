// Package replicas disperses copies of a content addressed chunk across
// the network as single owner chunks. Replica addresses are derived from
// the original chunk address alone, so a reader who lost the original can
// still find a copy, and replicas add no new chunk validation rules: the
// replica owner's key is public and the SOC replica rule ties each
// identifier to the wrapped chunk.
package replicas

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/WebFirstLanguage/swarmkit/pkg/cac"
	"github.com/WebFirstLanguage/swarmkit/pkg/identity"
	"github.com/WebFirstLanguage/swarmkit/pkg/redundancy"
	"github.com/WebFirstLanguage/swarmkit/pkg/soc"
	"github.com/WebFirstLanguage/swarmkit/pkg/storage"
	"github.com/WebFirstLanguage/swarmkit/pkg/swarm"
)

// maxDepth is the dispersion depth of the strongest level
const maxDepth = 4

var (
	// counts[d] replicas cover every neighbourhood of depth d
	counts = [maxDepth + 1]int{0, 2, 4, 8, 16}
	// sums[d] is the number of neighbourhoods of all depths up to d
	sums = [maxDepth + 1]int{0, 2, 6, 14, 30}

	signer = mustReplicaSigner()
)

func mustReplicaSigner() *identity.Identity {
	key := make([]byte, 32)
	key[0] = 1
	id, err := identity.FromBytes(key)
	if err != nil {
		panic(fmt.Sprintf("replica key: %v", err))
	}
	if id.Address() != soc.ReplicasOwner {
		panic("replica key does not match the replicas owner")
	}
	return id
}

// Replica is the identifier and address of one dispersed copy
type Replica struct {
	ID      swarm.Hash
	Address swarm.Hash
}

// neighbourhood returns the index of the replica's depth d neighbourhood
// among all neighbourhoods of depths 1 to maxDepth
func (r *Replica) neighbourhood(d uint8) int {
	return sums[d-1] + int(r.Address[0]>>(8-d))
}

// disperser orders candidate replicas so that every prefix of the result
// is spread as evenly as possible over the leading address bits
type disperser struct {
	queue [16]*Replica
	exist [30]bool
	sizes [maxDepth + 1]int
}

// add records r at the shallowest depth up to d where its neighbourhood is
// new. It returns 0 when r's depth d neighbourhood is already taken.
func (ds *disperser) add(r *Replica, d uint8) int {
	if d == 0 {
		return 0
	}
	nh := r.neighbourhood(d)
	if ds.exist[nh] {
		return 0
	}
	ds.exist[nh] = true

	depth := ds.add(r, d-1)
	if depth == 0 {
		ds.queue[ds.sizes[d-1]] = r
		ds.sizes[d-1]++
		depth = int(d)
	}
	return depth
}

func replicate(addr swarm.Hash, i uint8) *Replica {
	id := addr
	id[0] = i
	return &Replica{ID: id, Address: soc.CreateAddress(id, soc.ReplicasOwner)}
}

// Replicas returns the replicas of addr for a level, most dispersed first.
// The result can be shorter than the level's count in the unlikely case
// that 256 candidates do not reach every neighbourhood.
func Replicas(addr swarm.Hash, level redundancy.Level) []Replica {
	want := level.GetReplicaCount()
	if want == 0 {
		return nil
	}
	depth := uint8(level)

	ds := &disperser{sizes: counts}
	out := make([]Replica, 0, want)
	for i := 0; len(out) < want && i <= 0xff; i++ {
		r := replicate(addr, uint8(i))
		if ds.add(r, depth) == 0 {
			continue
		}
		for n := len(out); n < want && ds.queue[n] != nil; n++ {
			out = append(out, *ds.queue[n])
		}
	}
	return out
}

// Addresses returns the replica addresses of addr for a level
func Addresses(addr swarm.Hash, level redundancy.Level) []swarm.Hash {
	replicas := Replicas(addr, level)
	addrs := make([]swarm.Hash, len(replicas))
	for i, r := range replicas {
		addrs[i] = r.Address
	}
	return addrs
}

// NewReplica wraps ch as the replica with the given identifier
func NewReplica(ch swarm.Chunk, id swarm.Hash) (*soc.SOC, error) {
	unsigned, err := soc.New(id, soc.ReplicasOwner, ch)
	if err != nil {
		return nil, err
	}
	return unsigned.Sign(signer)
}

// Put stores every replica of a content addressed chunk
func Put(ctx context.Context, putter storage.Putter, ch swarm.Chunk, level redundancy.Level) error {
	if !cac.Valid(ch) {
		addr := ch.Address()
		return swarm.NewValidationError(fmt.Sprintf("cannot replicate %s: not a content addressed chunk", addr), nil)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, r := range Replicas(ch.Address(), level) {
		r := r
		g.Go(func() error {
			replica, err := NewReplica(ch, r.ID)
			if err != nil {
				return err
			}
			if err := putter.Put(gctx, replica.Chunk()); err != nil {
				return fmt.Errorf("failed to store replica %s: %w", r.Address, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// unwrap returns the chunk a fetched replica carries, if it is a genuine
// replica of addr
func unwrap(ch swarm.Chunk, addr swarm.Hash) (swarm.Chunk, bool) {
	s, err := soc.FromChunk(ch)
	if err != nil || s.Owner() != soc.ReplicasOwner || !s.Valid() {
		return swarm.Chunk{}, false
	}
	inner := s.Inner()
	if inner.Address() != addr {
		return swarm.Chunk{}, false
	}
	return inner, true
}

// Get retrieves the chunk at addr, falling back to its replicas when the
// original is missing or invalid. Replicas are requested in waves of
// increasing dispersion depth, each wave in parallel.
func Get(ctx context.Context, getter storage.Getter, addr swarm.Hash, level redundancy.Level) (swarm.Chunk, error) {
	var errs []error

	ch, err := getter.Get(ctx, addr)
	switch {
	case err == nil && cac.Valid(ch) && ch.Address() == addr:
		return ch, nil
	case err != nil && ctx.Err() != nil:
		return swarm.Chunk{}, err
	case err != nil && !swarm.IsNotFoundError(err) && !swarm.IsIntegrityError(err):
		errs = append(errs, err)
	}

	replicas := Replicas(addr, level)
	start := 0
	for depth := 1; depth <= maxDepth && start < len(replicas); depth++ {
		end := min(counts[depth], len(replicas))
		wave := replicas[start:end]
		start = end

		found := make([]swarm.Chunk, len(wave))
		failures := make([]error, len(wave))
		g, gctx := errgroup.WithContext(ctx)
		for i, r := range wave {
			i, r := i, r
			g.Go(func() error {
				fetched, err := getter.Get(gctx, r.Address)
				if err != nil {
					failures[i] = err
					return nil
				}
				if inner, ok := unwrap(fetched, addr); ok {
					found[i] = inner
				}
				return nil
			})
		}
		_ = g.Wait()

		if err := ctx.Err(); err != nil {
			return swarm.Chunk{}, err
		}
		for i, inner := range found {
			if !inner.IsZero() {
				return inner, nil
			}
			if err := failures[i]; err != nil && !swarm.IsNotFoundError(err) && !swarm.IsIntegrityError(err) {
				errs = append(errs, err)
			}
		}
	}

	notFound := swarm.NewNotFoundError(
		fmt.Sprintf("chunk and its %d replicas not found", len(replicas)), &addr)
	if len(errs) > 0 {
		return swarm.Chunk{}, errors.Join(append([]error{notFound}, errs...)...)
	}
	return swarm.Chunk{}, notFound
}
