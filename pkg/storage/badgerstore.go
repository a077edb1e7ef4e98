package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/WebFirstLanguage/swarmkit/pkg/codec/cborcanon"
	"github.com/WebFirstLanguage/swarmkit/pkg/constants"
	"github.com/WebFirstLanguage/swarmkit/pkg/swarm"
)

// chunkPrefix namespaces chunk records in the key space
var chunkPrefix = []byte("chunk/")

// BadgerConfig configures a BadgerStore
type BadgerConfig struct {
	Path       string         // Directory for badger files, ignored when InMemory
	InMemory   bool           // Keep everything in memory (tests, ephemeral clients)
	SyncWrites bool           // fsync every write
	Logger     *logrus.Logger // Also receives badger's own log output
	Clock      clock.Clock    // Source of stored_at timestamps
}

// DefaultBadgerConfig returns the on-disk defaults
func DefaultBadgerConfig() *BadgerConfig {
	return &BadgerConfig{
		Path:       constants.DefaultStorePath,
		SyncWrites: false,
	}
}

// envelope is the persisted form of a chunk
type envelope struct {
	Type     uint8  `cbor:"type"`
	Data     []byte `cbor:"data"`
	StoredAt int64  `cbor:"stored_at"`
}

// BadgerStore persists chunks in BadgerDB as canonical CBOR envelopes.
// Chunks are validated on write and re-validated on read.
type BadgerStore struct {
	db     *badger.DB
	log    *logrus.Logger
	clock  clock.Clock
	stats  Stats
	statMu sync.Mutex
}

// NewBadgerStore opens or creates a store
func NewBadgerStore(config *BadgerConfig) (*BadgerStore, error) {
	if config == nil {
		config = DefaultBadgerConfig()
	}

	logger := config.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.New()
	}

	opts := badger.DefaultOptions(config.Path).
		WithSyncWrites(config.SyncWrites).
		WithLogger(logger)
	if config.InMemory {
		opts = opts.WithDir("").WithValueDir("").WithInMemory(true)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store at %q: %w", config.Path, err)
	}

	s := &BadgerStore{db: db, log: logger, clock: clk}
	if err := s.countExisting(); err != nil {
		db.Close()
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"path":      config.Path,
		"in_memory": config.InMemory,
		"chunks":    s.stats.TotalChunks,
	}).Info("chunk store opened")

	return s, nil
}

func chunkKey(addr swarm.Hash) []byte {
	key := make([]byte, 0, len(chunkPrefix)+constants.HashSize)
	key = append(key, chunkPrefix...)
	return append(key, addr[:]...)
}

// countExisting seeds the size counters from what is already on disk
func (s *BadgerStore) countExisting() error {
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = chunkPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			s.stats.TotalChunks++
			s.stats.TotalBytes += uint64(it.Item().ValueSize())
		}
		return nil
	})
}

// Put validates the chunk and writes its envelope
func (s *BadgerStore) Put(ctx context.Context, ch swarm.Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	chunkType, err := Validate(ch)
	if err != nil {
		s.count(func(st *Stats) {
			st.FailedPuts++
			st.IntegrityErrors++
		})
		return err
	}

	value, err := cborcanon.Marshal(envelope{
		Type:     uint8(chunkType),
		Data:     ch.Data(),
		StoredAt: s.clock.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to encode chunk %s: %w", ch.Address(), err)
	}

	key := chunkKey(ch.Address())
	var existed bool
	var oldSize int64
	err = s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		switch {
		case err == nil:
			existed = true
			oldSize = item.ValueSize()
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		return txn.Set(key, value)
	})
	if err != nil {
		s.count(func(st *Stats) { st.FailedPuts++ })
		return fmt.Errorf("failed to write chunk %s: %w", ch.Address(), err)
	}

	s.count(func(st *Stats) {
		if existed {
			st.TotalBytes -= uint64(oldSize)
		} else {
			st.TotalChunks++
		}
		st.TotalBytes += uint64(len(value))
		st.SuccessfulPuts++
	})

	s.log.WithFields(logrus.Fields{
		"address": ch.Address().String(),
		"type":    chunkType.String(),
		"size":    ch.Size(),
	}).Debug("chunk stored")

	return nil
}

// Get reads, decodes and re-validates the chunk at addr
func (s *BadgerStore) Get(ctx context.Context, addr swarm.Hash) (swarm.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return swarm.Chunk{}, err
	}

	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(chunkKey(addr))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		s.count(func(st *Stats) { st.FailedGets++ })
		return swarm.Chunk{}, notFound(addr)
	}
	if err != nil {
		s.count(func(st *Stats) { st.FailedGets++ })
		return swarm.Chunk{}, fmt.Errorf("failed to read chunk %s: %w", addr, err)
	}

	var env envelope
	if err := cborcanon.Unmarshal(value, &env); err != nil {
		return swarm.Chunk{}, s.corrupt(addr, "undecodable envelope", err)
	}

	ch := swarm.NewChunk(addr, env.Data)
	chunkType, err := Validate(ch)
	if err != nil {
		return swarm.Chunk{}, s.corrupt(addr, "stored chunk failed validation", err)
	}
	if uint8(chunkType) != env.Type {
		return swarm.Chunk{}, s.corrupt(addr,
			fmt.Sprintf("stored as %s but validates as %s", swarm.ChunkType(env.Type), chunkType), nil)
	}

	s.count(func(st *Stats) { st.SuccessfulGets++ })
	return ch, nil
}

func (s *BadgerStore) corrupt(addr swarm.Hash, msg string, cause error) error {
	s.count(func(st *Stats) {
		st.FailedGets++
		st.IntegrityErrors++
	})
	s.log.WithFields(logrus.Fields{
		"address": addr.String(),
		"error":   cause,
	}).Warn(msg)
	return swarm.NewIntegrityError(msg, &addr, cause)
}

// Has reports whether addr is stored
func (s *BadgerStore) Has(ctx context.Context, addr swarm.Hash) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(chunkKey(addr))
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check chunk %s: %w", addr, err)
	}
	return true, nil
}

// Delete removes addr
func (s *BadgerStore) Delete(ctx context.Context, addr swarm.Hash) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := chunkKey(addr)
	var removed bool
	var size int64
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		removed = true
		size = item.ValueSize()
		return txn.Delete(key)
	})
	if err != nil {
		return fmt.Errorf("failed to delete chunk %s: %w", addr, err)
	}

	if removed {
		s.count(func(st *Stats) {
			st.TotalChunks--
			st.TotalBytes -= uint64(size)
		})
	}
	return nil
}

// Stats returns a copy of the counters
func (s *BadgerStore) Stats() Stats {
	s.statMu.Lock()
	defer s.statMu.Unlock()
	return s.stats
}

func (s *BadgerStore) count(update func(*Stats)) {
	s.statMu.Lock()
	update(&s.stats)
	s.statMu.Unlock()
}

// Close closes the underlying database
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
