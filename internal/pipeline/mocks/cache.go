package mocks

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

// ErrCacheMiss is returned by Get when the key is absent.
var ErrCacheMiss = errors.New("cache miss")

// MockVectorCache is an in-memory implementation of the pipeline.VectorCache
// interface, JSON round-tripping values the way the Redis cache does.
type MockVectorCache struct {
	mu      sync.Mutex
	entries map[string][]byte

	Gets int
	Sets int
	Hits int
}

// Get implements the pipeline.VectorCache interface.
func (m *MockVectorCache) Get(ctx context.Context, key string, dest any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Gets++
	data, ok := m.entries[key]
	if !ok {
		return ErrCacheMiss
	}
	m.Hits++
	return json.Unmarshal(data, dest)
}

// Set implements the pipeline.VectorCache interface.
func (m *MockVectorCache) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sets++
	if m.entries == nil {
		m.entries = make(map[string][]byte)
	}
	m.entries[key] = data
	return nil
}
