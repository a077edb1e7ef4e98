package storage

import (
	"context"
	"sync"

	"github.com/WebFirstLanguage/swarmkit/pkg/swarm"
)

// MemStore keeps chunks in a map. It is safe for concurrent use and is the
// default backend for tests and short-lived clients.
type MemStore struct {
	mu      sync.RWMutex
	storage map[swarm.Hash][]byte
	stats   Stats
}

// NewMemStore creates an empty in-memory store
func NewMemStore() *MemStore {
	return &MemStore{
		storage: make(map[swarm.Hash][]byte),
	}
}

// Put validates and stores a copy of the chunk
func (m *MemStore) Put(ctx context.Context, ch swarm.Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := Validate(ch); err != nil {
		m.mu.Lock()
		m.stats.FailedPuts++
		m.stats.IntegrityErrors++
		m.mu.Unlock()
		return err
	}

	value := make([]byte, ch.Size())
	copy(value, ch.Data())

	m.mu.Lock()
	defer m.mu.Unlock()

	if old, exists := m.storage[ch.Address()]; exists {
		m.stats.TotalBytes -= uint64(len(old))
	} else {
		m.stats.TotalChunks++
	}
	m.storage[ch.Address()] = value
	m.stats.TotalBytes += uint64(len(value))
	m.stats.SuccessfulPuts++
	return nil
}

// Get returns the chunk at addr
func (m *MemStore) Get(ctx context.Context, addr swarm.Hash) (swarm.Chunk, error) {
	if err := ctx.Err(); err != nil {
		return swarm.Chunk{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	value, exists := m.storage[addr]
	if !exists {
		m.stats.FailedGets++
		return swarm.Chunk{}, notFound(addr)
	}
	m.stats.SuccessfulGets++
	return swarm.NewChunk(addr, value), nil
}

// Has reports whether addr is stored
func (m *MemStore) Has(ctx context.Context, addr swarm.Hash) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.storage[addr]
	return exists, nil
}

// Delete removes addr
func (m *MemStore) Delete(ctx context.Context, addr swarm.Hash) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if old, exists := m.storage[addr]; exists {
		m.stats.TotalChunks--
		m.stats.TotalBytes -= uint64(len(old))
		delete(m.storage, addr)
	}
	return nil
}

// Stats returns a copy of the counters
func (m *MemStore) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stats
}

// Clear removes every chunk
func (m *MemStore) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.storage = make(map[swarm.Hash][]byte)
	m.stats.TotalChunks = 0
	m.stats.TotalBytes = 0
}

// Size returns the number of stored chunks
func (m *MemStore) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.storage)
}

// Close is a no-op
func (m *MemStore) Close() error {
	return nil
}
